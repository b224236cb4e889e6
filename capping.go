package divisions

import (
	"fmt"
	"sort"
)

// CapSource says where the maximum number of divisions for a room type comes
// from.
type CapSource int

const (
	CapNone              CapSource = iota // never capped
	CapExpectedBedrooms                   // listing bedroom count
	CapExpectedBathrooms                  // listing bathroom count
	CapFixed                              // CapPolicy.Max
)

var capSourceNames = map[CapSource]string{
	CapNone:              "none",
	CapExpectedBedrooms:  "expected_bedrooms",
	CapExpectedBathrooms: "expected_bathrooms",
	CapFixed:             "fixed",
}

func (s CapSource) String() string {
	if name, ok := capSourceNames[s]; ok {
		return name
	}
	return fmt.Sprintf("CapSource(%d)", int(s))
}

// ParseCapSource is the inverse of CapSource.String.
func ParseCapSource(name string) (CapSource, error) {
	for s, n := range capSourceNames {
		if n == name {
			return s, nil
		}
	}
	return CapNone, fmt.Errorf("unknown cap source %q", name)
}

// CapPolicy bounds the number of divisions kept for one room type.
type CapPolicy struct {
	Source CapSource
	Max    int // used when Source is CapFixed
}

// CapPolicies maps a room type (as reported by the model) to its policy.
// Room types without an entry are never capped.
type CapPolicies map[string]CapPolicy

// DefaultCapPolicies caps bedrooms and bathrooms (and their aliases) to the
// listing's counts and keeps a single kitchen and living room.
var DefaultCapPolicies = CapPolicies{
	"bedroom":       {Source: CapExpectedBedrooms},
	"bedrooms":      {Source: CapExpectedBedrooms},
	"room":          {Source: CapExpectedBedrooms},
	"quarto":        {Source: CapExpectedBedrooms},
	"bathroom":      {Source: CapExpectedBathrooms},
	"bath":          {Source: CapExpectedBathrooms},
	"casa_de_banho": {Source: CapExpectedBathrooms},
	"kitchen":       {Source: CapFixed, Max: 1},
	"living_room":   {Source: CapFixed, Max: 1},
}

// Limit returns the cap for roomType. ok is false when the room type has no
// policy or its expected count is unknown.
func (p CapPolicies) Limit(roomType string, counts RoomCounts) (limit int, ok bool) {
	policy, found := p[roomType]
	if !found {
		return 0, false
	}
	switch policy.Source {
	case CapExpectedBedrooms:
		if counts.Bedrooms == nil {
			return 0, false
		}
		return *counts.Bedrooms, true
	case CapExpectedBathrooms:
		if counts.Bathrooms == nil {
			return 0, false
		}
		return *counts.Bathrooms, true
	case CapFixed:
		return policy.Max, true
	default:
		return 0, false
	}
}

// ApplyCap keeps the limit largest clusters. Clusters of equal size keep their
// discovery order. The input is returned unchanged when it is within the cap.
func ApplyCap(clusters [][]ClassificationRecord, limit int) [][]ClassificationRecord {
	if limit < 0 {
		limit = 0
	}
	if len(clusters) <= limit {
		return clusters
	}
	sorted := make([][]ClassificationRecord, len(clusters))
	copy(sorted, clusters)
	sort.SliceStable(sorted, func(i, j int) bool {
		return len(sorted[i]) > len(sorted[j])
	})
	return sorted[:limit]
}
