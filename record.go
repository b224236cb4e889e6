package divisions

import (
	"encoding/json"
	"math"
	"strings"
)

// UnknownRoomType is the bucket for records whose room_type the model left out.
const UnknownRoomType = "unknown"

// GalleryItem is one photo of a listing gallery, in gallery order.
type GalleryItem struct {
	URL         string `json:"url"`
	Description string `json:"description"`
	OrderIndex  int    `json:"-"`
}

// ClassificationRecord is the vision model's answer for a single gallery photo.
// A nil pointer means the model did not report the field; values are never
// defaulted.
type ClassificationRecord struct {
	RoomURL             string   `json:"room_url"`
	RoomType            *string  `json:"room_type"`
	SizeM2              *float64 `json:"size_m2"`
	OverallCondition    *float64 `json:"overall_condition"`
	FlooringCondition   *float64 `json:"flooring_condition"`
	PaintingCondition   *float64 `json:"painting_condition"`
	WindowsCondition    *float64 `json:"windows_condition"`
	PlumbingCondition   *float64 `json:"plumbing_condition"`
	ElectricalCondition *float64 `json:"electrical_condition"`
	AppliancesCondition *float64 `json:"appliances_condition"`
	CeilingCondition    *float64 `json:"ceiling_condition"`
	WindowsNumber       *float64 `json:"windows_number"`
	DetailedNotes       *string  `json:"detailed_notes"`
	ImageDescription    *string  `json:"image_description"`
}

// NumericFields lists the numeric attributes merged by Aggregate.
var NumericFields = []string{
	"size_m2",
	"overall_condition",
	"appliances_condition",
	"plumbing_condition",
	"electrical_condition",
	"flooring_condition",
	"ceiling_condition",
	"painting_condition",
	"windows_condition",
	"windows_number",
}

// integerFields are rounded to the nearest integer when aggregated; every other
// numeric field keeps one decimal.
var integerFields = map[string]bool{
	"size_m2":        true,
	"windows_number": true,
}

// Type returns the reported room type, or "" when the model gave none.
func (r ClassificationRecord) Type() string {
	if r.RoomType == nil {
		return ""
	}
	return *r.RoomType
}

// Bucket returns the room-type key the record is aggregated under.
func (r ClassificationRecord) Bucket() string {
	if t := r.Type(); t != "" {
		return t
	}
	return UnknownRoomType
}

// Numeric returns the value of one of NumericFields, or nil.
func (r ClassificationRecord) Numeric(field string) *float64 {
	switch field {
	case "size_m2":
		return r.SizeM2
	case "overall_condition":
		return r.OverallCondition
	case "flooring_condition":
		return r.FlooringCondition
	case "painting_condition":
		return r.PaintingCondition
	case "windows_condition":
		return r.WindowsCondition
	case "plumbing_condition":
		return r.PlumbingCondition
	case "electrical_condition":
		return r.ElectricalCondition
	case "appliances_condition":
		return r.AppliancesCondition
	case "ceiling_condition":
		return r.CeilingCondition
	case "windows_number":
		return r.WindowsNumber
	default:
		return nil
	}
}

// UnmarshalJSON accepts loosely typed model output: fields of the wrong JSON
// type are treated as absent instead of failing the whole record.
func (r *ClassificationRecord) UnmarshalJSON(data []byte) error {
	var obj map[string]any
	if err := json.Unmarshal(data, &obj); err != nil {
		return err
	}
	*r = recordFromObject(obj, "")
	return nil
}

// recordFromObject builds a record from a decoded JSON object. fallbackURL is
// used when the model did not echo room_url.
func recordFromObject(obj map[string]any, fallbackURL string) ClassificationRecord {
	rec := ClassificationRecord{
		RoomURL:             fallbackURL,
		SizeM2:              numberField(obj, "size_m2"),
		OverallCondition:    numberField(obj, "overall_condition"),
		FlooringCondition:   numberField(obj, "flooring_condition"),
		PaintingCondition:   numberField(obj, "painting_condition"),
		WindowsCondition:    numberField(obj, "windows_condition"),
		PlumbingCondition:   numberField(obj, "plumbing_condition"),
		ElectricalCondition: numberField(obj, "electrical_condition"),
		AppliancesCondition: numberField(obj, "appliances_condition"),
		CeilingCondition:    numberField(obj, "ceiling_condition"),
		WindowsNumber:       numberField(obj, "windows_number"),
		DetailedNotes:       stringField(obj, "detailed_notes"),
		ImageDescription:    stringField(obj, "image_description"),
	}
	if u := stringField(obj, "room_url"); u != nil && strings.TrimSpace(*u) != "" {
		rec.RoomURL = *u
	} else if u := stringField(obj, "image_url"); u != nil && strings.TrimSpace(*u) != "" {
		rec.RoomURL = *u
	}
	if t := stringField(obj, "room_type"); t != nil && strings.TrimSpace(*t) != "" {
		v := strings.TrimSpace(*t)
		rec.RoomType = &v
	}
	return rec
}

// maxNumericValue bounds every numeric field a model may report. Larger
// magnitudes are treated as absent so integer conversion stays defined.
const maxNumericValue = 1e6

func numberField(obj map[string]any, key string) *float64 {
	v, ok := obj[key].(float64)
	if !ok || math.IsNaN(v) || math.Abs(v) > maxNumericValue {
		return nil
	}
	return &v
}

func stringField(obj map[string]any, key string) *string {
	if v, ok := obj[key].(string); ok {
		return &v
	}
	return nil
}

// DivisionRecord is the canonical per-room output: one physical division backed
// by the photos of its cluster. Numeric fields absent from every source photo
// are omitted.
type DivisionRecord struct {
	DivisionID          string   `json:"division_id"`
	RoomType            string   `json:"room_type"`
	Images              []string `json:"images"`
	NumSourceImages     int      `json:"num_source_images"`
	SizeM2              *int     `json:"size_m2,omitempty"`
	OverallCondition    *float64 `json:"overall_condition,omitempty"`
	AppliancesCondition *float64 `json:"appliances_condition,omitempty"`
	PlumbingCondition   *float64 `json:"plumbing_condition,omitempty"`
	ElectricalCondition *float64 `json:"electrical_condition,omitempty"`
	FlooringCondition   *float64 `json:"flooring_condition,omitempty"`
	CeilingCondition    *float64 `json:"ceiling_condition,omitempty"`
	PaintingCondition   *float64 `json:"painting_condition,omitempty"`
	WindowsCondition    *float64 `json:"windows_condition,omitempty"`
	WindowsNumber       *int     `json:"windows_number,omitempty"`
	DetailedNotes       string   `json:"detailed_notes"`
}

func (d *DivisionRecord) setNumeric(field string, v float64) {
	switch field {
	case "size_m2":
		n := clampInt(v)
		d.SizeM2 = &n
	case "windows_number":
		n := clampInt(v)
		d.WindowsNumber = &n
	case "overall_condition":
		d.OverallCondition = &v
	case "appliances_condition":
		d.AppliancesCondition = &v
	case "plumbing_condition":
		d.PlumbingCondition = &v
	case "electrical_condition":
		d.ElectricalCondition = &v
	case "flooring_condition":
		d.FlooringCondition = &v
	case "ceiling_condition":
		d.CeilingCondition = &v
	case "painting_condition":
		d.PaintingCondition = &v
	case "windows_condition":
		d.WindowsCondition = &v
	}
}

func clampInt(v float64) int {
	if math.IsNaN(v) {
		return 0
	}
	return int(math.Max(-maxNumericValue, math.Min(maxNumericValue, v)))
}
