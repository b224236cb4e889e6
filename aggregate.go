package divisions

import (
	"math"
	"strconv"
	"strings"
)

// Aggregate collapses one cluster into a DivisionRecord. clusterIndex is the
// 1-based position of the cluster within its room-type bucket after capping.
//
// room_type is the majority of the members' reported types, ties going to the
// type seen first, or fallbackRoomType when no member reported one. Numeric
// fields are the mean of the non-null member values; fields that no member
// reported are left nil.
func Aggregate(cluster []ClassificationRecord, fallbackRoomType string, clusterIndex int) DivisionRecord {
	roomType := majorityRoomType(cluster, fallbackRoomType)

	d := DivisionRecord{
		DivisionID:      roomType + "_" + strconv.Itoa(clusterIndex),
		RoomType:        roomType,
		Images:          uniqueImages(cluster),
		NumSourceImages: len(cluster),
		DetailedNotes:   mergeNotes(cluster),
	}

	for _, field := range NumericFields {
		mean, ok := meanOf(cluster, field)
		if !ok {
			continue
		}
		if integerFields[field] {
			d.setNumeric(field, math.Round(mean))
		} else {
			d.setNumeric(field, math.Round(mean*10)/10)
		}
	}
	return d
}

func majorityRoomType(cluster []ClassificationRecord, fallback string) string {
	counts := make(map[string]int)
	var order []string
	for _, rec := range cluster {
		t := rec.Type()
		if t == "" {
			continue
		}
		if counts[t] == 0 {
			order = append(order, t)
		}
		counts[t]++
	}
	if len(order) == 0 {
		return fallback
	}
	best := order[0]
	for _, t := range order[1:] {
		if counts[t] > counts[best] {
			best = t
		}
	}
	return best
}

func meanOf(cluster []ClassificationRecord, field string) (float64, bool) {
	var sum float64
	n := 0
	for _, rec := range cluster {
		v := rec.Numeric(field)
		if v == nil || math.IsNaN(*v) || math.IsInf(*v, 0) {
			continue
		}
		sum += *v
		n++
	}
	if n == 0 {
		return 0, false
	}
	return sum / float64(n), true
}

// uniqueImages returns member URLs without duplicates, in member order.
func uniqueImages(cluster []ClassificationRecord) []string {
	seen := make(map[string]bool, len(cluster))
	images := make([]string, 0, len(cluster))
	for _, rec := range cluster {
		if rec.RoomURL == "" || seen[rec.RoomURL] {
			continue
		}
		seen[rec.RoomURL] = true
		images = append(images, rec.RoomURL)
	}
	return images
}

// mergeNotes trims member notes, drops case-insensitive repeats and joins the
// rest with newlines.
func mergeNotes(cluster []ClassificationRecord) string {
	seen := make(map[string]bool, len(cluster))
	var notes []string
	for _, rec := range cluster {
		if rec.DetailedNotes == nil {
			continue
		}
		n := strings.TrimSpace(*rec.DetailedNotes)
		if n == "" {
			continue
		}
		key := strings.ToLower(n)
		if seen[key] {
			continue
		}
		seen[key] = true
		notes = append(notes, n)
	}
	return strings.Join(notes, "\n")
}
