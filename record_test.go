package divisions

import (
	"encoding/json"
	"math"
	"testing"
)

func TestClassificationRecord_UnmarshalLenient(t *testing.T) {
	t.Parallel()

	var r ClassificationRecord
	data := `{"room_url":"u","room_type":"  kitchen ","size_m2":"9","overall_condition":3,"windows_number":null,"detailed_notes":"ok","extra":[1,2]}`
	if err := json.Unmarshal([]byte(data), &r); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if r.RoomURL != "u" || r.Type() != "kitchen" {
		t.Errorf("url/type = %q/%q", r.RoomURL, r.Type())
	}
	if r.SizeM2 != nil {
		t.Errorf("SizeM2 = %v, want nil for string value", *r.SizeM2)
	}
	if r.OverallCondition == nil || *r.OverallCondition != 3 {
		t.Errorf("OverallCondition = %v", r.OverallCondition)
	}
	if r.WindowsNumber != nil {
		t.Errorf("WindowsNumber = %v, want nil", *r.WindowsNumber)
	}

	if err := json.Unmarshal([]byte(`[1]`), &r); err == nil {
		t.Error("expected error for non-object")
	}
}

func TestClassificationRecord_UnmarshalOutOfRange(t *testing.T) {
	t.Parallel()

	var r ClassificationRecord
	if err := json.Unmarshal([]byte(`{"size_m2":1e300,"windows_number":-2e9,"overall_condition":2.5}`), &r); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if r.SizeM2 != nil {
		t.Errorf("SizeM2 = %v, want nil for out-of-range value", *r.SizeM2)
	}
	if r.WindowsNumber != nil {
		t.Errorf("WindowsNumber = %v, want nil for out-of-range value", *r.WindowsNumber)
	}
	if r.OverallCondition == nil || *r.OverallCondition != 2.5 {
		t.Errorf("OverallCondition = %v, want 2.5", r.OverallCondition)
	}
}

func TestDivisionRecord_SetNumericClamps(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		v    float64
		want int
	}{
		{name: "huge", v: 1e300, want: maxNumericValue},
		{name: "negative huge", v: -1e300, want: -maxNumericValue},
		{name: "infinite", v: math.Inf(1), want: maxNumericValue},
		{name: "nan", v: math.NaN(), want: 0},
		{name: "ordinary", v: 42, want: 42},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			var d DivisionRecord
			d.setNumeric("size_m2", tc.v)
			if d.SizeM2 == nil || *d.SizeM2 != tc.want {
				t.Errorf("setNumeric(size_m2, %v) = %v, want %d", tc.v, d.SizeM2, tc.want)
			}
		})
	}
}

func TestClassificationRecord_Numeric(t *testing.T) {
	t.Parallel()

	r := ClassificationRecord{}
	for i, field := range NumericFields {
		if r.Numeric(field) != nil {
			t.Errorf("Numeric(%s) on empty record = %v", field, *r.Numeric(field))
		}
		v := float64(i + 1)
		var d DivisionRecord
		d.setNumeric(field, v)
		b, _ := json.Marshal(d)
		var back map[string]any
		_ = json.Unmarshal(b, &back)
		if back[field] != v {
			t.Errorf("setNumeric(%s, %v) serialised as %v", field, v, back[field])
		}
	}
	if r.Numeric("not_a_field") != nil {
		t.Error("Numeric(unknown) should be nil")
	}
}

func TestClassificationRecord_Bucket(t *testing.T) {
	t.Parallel()

	if got := rec("u", "").Bucket(); got != UnknownRoomType {
		t.Errorf("Bucket() = %q, want %q", got, UnknownRoomType)
	}
	if got := rec("u", "bathroom").Bucket(); got != "bathroom" {
		t.Errorf("Bucket() = %q", got)
	}
}
