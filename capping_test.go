package divisions

import (
	"testing"
)

func TestCapPolicies_Limit(t *testing.T) {
	t.Parallel()

	counts := RoomCounts{Bedrooms: ptrInt(2)}
	tests := []struct {
		roomType  string
		counts    RoomCounts
		wantLimit int
		wantOK    bool
	}{
		{roomType: "bedroom", counts: counts, wantLimit: 2, wantOK: true},
		{roomType: "quarto", counts: counts, wantLimit: 2, wantOK: true},
		{roomType: "bathroom", counts: counts, wantOK: false},
		{roomType: "bathroom", counts: RoomCounts{Bathrooms: ptrInt(1)}, wantLimit: 1, wantOK: true},
		{roomType: "casa_de_banho", counts: RoomCounts{Bathrooms: ptrInt(3)}, wantLimit: 3, wantOK: true},
		{roomType: "kitchen", counts: RoomCounts{}, wantLimit: 1, wantOK: true},
		{roomType: "living_room", counts: RoomCounts{}, wantLimit: 1, wantOK: true},
		{roomType: "hallway", counts: counts, wantOK: false},
		{roomType: "bedroom", counts: RoomCounts{}, wantOK: false},
	}

	for _, tc := range tests {
		limit, ok := DefaultCapPolicies.Limit(tc.roomType, tc.counts)
		if ok != tc.wantOK || limit != tc.wantLimit {
			t.Errorf("Limit(%q, %s) = (%d, %v), want (%d, %v)",
				tc.roomType, tc.counts, limit, ok, tc.wantLimit, tc.wantOK)
		}
	}
}

func TestApplyCap(t *testing.T) {
	t.Parallel()

	a := []ClassificationRecord{rec("a1", "bedroom")}
	b := []ClassificationRecord{rec("b1", "bedroom"), rec("b2", "bedroom"), rec("b3", "bedroom")}
	c := []ClassificationRecord{rec("c1", "bedroom"), rec("c2", "bedroom")}
	d := []ClassificationRecord{rec("d1", "bedroom"), rec("d2", "bedroom")}
	clusters := [][]ClassificationRecord{a, b, c, d}

	tests := []struct {
		name  string
		limit int
		want  []string // first URL of each kept cluster
	}{
		{name: "within cap", limit: 4, want: []string{"a1", "b1", "c1", "d1"}},
		{name: "above count", limit: 10, want: []string{"a1", "b1", "c1", "d1"}},
		{name: "largest first, ties in discovery order", limit: 2, want: []string{"b1", "c1"}},
		{name: "three", limit: 3, want: []string{"b1", "c1", "d1"}},
		{name: "zero", limit: 0, want: nil},
		{name: "negative", limit: -1, want: nil},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			got := ApplyCap(clusters, tc.limit)
			if len(got) != len(tc.want) {
				t.Fatalf("ApplyCap(limit=%d) kept %d clusters, want %d", tc.limit, len(got), len(tc.want))
			}
			for i, first := range tc.want {
				if got[i][0].RoomURL != first {
					t.Errorf("cluster %d starts with %q, want %q", i, got[i][0].RoomURL, first)
				}
			}
		})
	}

	if clusters[0][0].RoomURL != "a1" || clusters[1][0].RoomURL != "b1" {
		t.Error("ApplyCap modified its input")
	}
}

func TestParseCapSource(t *testing.T) {
	t.Parallel()

	for _, s := range []CapSource{CapNone, CapExpectedBedrooms, CapExpectedBathrooms, CapFixed} {
		got, err := ParseCapSource(s.String())
		if err != nil {
			t.Fatalf("ParseCapSource(%q): %v", s.String(), err)
		}
		if got != s {
			t.Errorf("ParseCapSource(%q) = %v, want %v", s.String(), got, s)
		}
	}
	if _, err := ParseCapSource("bedrooms_from_floorplan"); err == nil {
		t.Error("ParseCapSource(unknown) expected error")
	}
	if got := CapSource(42).String(); got != "CapSource(42)" {
		t.Errorf("String() = %q", got)
	}
}
