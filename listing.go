package divisions

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"strings"
)

// Listing is the subset of a scraped listing document the pipeline reads.
type Listing struct {
	ID              string
	Title           string
	Price           string
	Location        string
	Gallery         []GalleryItem
	Characteristics []string
}

type rawListing struct {
	ID              json.RawMessage   `json:"id"`
	Title           string            `json:"title"`
	Price           json.RawMessage   `json:"price"`
	Location        string            `json:"location"`
	Gallery         []json.RawMessage `json:"gallery"`
	Characteristics []any             `json:"characteristics"`
}

// ParseListing decodes a listing document. The document is either the listing
// object itself or an array whose first element is the listing. Gallery
// entries without a url are skipped; OrderIndex follows the remaining order.
func ParseListing(data []byte) (*Listing, error) {
	const op = "parse listing"
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return nil, wrapError(ErrMalformedListing, op, fmt.Errorf("empty document"))
	}

	if data[0] == '[' {
		var arr []json.RawMessage
		if err := json.Unmarshal(data, &arr); err != nil {
			return nil, wrapError(ErrMalformedListing, op, err)
		}
		if len(arr) == 0 {
			return nil, wrapError(ErrMalformedListing, op, fmt.Errorf("empty listing array"))
		}
		data = arr[0]
	}

	var raw rawListing
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, wrapError(ErrMalformedListing, op, err)
	}

	l := &Listing{
		ID:       scalarString(raw.ID),
		Title:    raw.Title,
		Price:    scalarString(raw.Price),
		Location: raw.Location,
	}
	for _, g := range raw.Gallery {
		var item struct {
			URL         string `json:"url"`
			Description string `json:"description"`
		}
		if err := json.Unmarshal(g, &item); err != nil {
			continue
		}
		item.URL = strings.TrimSpace(item.URL)
		if item.URL == "" {
			continue
		}
		l.Gallery = append(l.Gallery, GalleryItem{
			URL:         item.URL,
			Description: item.Description,
			OrderIndex:  len(l.Gallery),
		})
	}
	for _, c := range raw.Characteristics {
		switch v := c.(type) {
		case string:
			l.Characteristics = append(l.Characteristics, v)
		case float64:
			l.Characteristics = append(l.Characteristics, fmt.Sprint(v))
		}
	}
	return l, nil
}

// ReadListingFile loads and parses a listing document from disk.
func ReadListingFile(path string) (*Listing, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read listing %q: %w", path, err)
	}
	l, err := ParseListing(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return l, nil
}

// GalleryOrder maps each photo URL to its gallery position. Keys are trimmed
// the same way ValidateGallery trims item URLs. A URL listed twice keeps its
// first position.
func (l *Listing) GalleryOrder() map[string]int {
	order := make(map[string]int, len(l.Gallery))
	for _, g := range l.Gallery {
		key := strings.TrimSpace(g.URL)
		if _, ok := order[key]; !ok {
			order[key] = g.OrderIndex
		}
	}
	return order
}

// RoomCounts estimates bedroom and bathroom counts from the characteristics.
func (l *Listing) RoomCounts() RoomCounts {
	return EstimateRoomCounts(l.Characteristics)
}

// scalarString renders a JSON string or number as text; anything else is "".
func scalarString(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err == nil {
		return n.String()
	}
	return ""
}
