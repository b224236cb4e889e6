package divisions

import (
	"strconv"
	"strings"
)

// RoomCountSignal records which listing characteristic produced a count.
type RoomCountSignal struct {
	Source string // characteristic text as published
	Detail string // pattern name: "typology", "bedrooms", "bathrooms", "banhos"
	Room   string // "bedrooms" or "bathrooms"
	Count  int
}

// RoomCounts holds the expected number of bedrooms and bathrooms derived from
// listing characteristics. A nil count means the listing does not say.
type RoomCounts struct {
	Bedrooms  *int
	Bathrooms *int
	Signals   []RoomCountSignal // contributing evidence (never nil, may be empty)
}

// EstimateRoomCounts scans listing characteristics for bedroom and bathroom
// counts ("T3", "2 quartos", "1 casa de banho", "2 banhos", "3 bedrooms").
// Each characteristic contributes at most one count; when several
// characteristics report the same room, the last one wins.
func EstimateRoomCounts(characteristics []string) RoomCounts {
	counts := RoomCounts{Signals: make([]RoomCountSignal, 0, 2)} //nolint:mnd // usually one bedroom and one bathroom signal

	for _, c := range characteristics {
		text := strings.ToLower(c)
		for _, p := range roomCountPatterns {
			m := p.re.FindStringSubmatch(text)
			if m == nil {
				continue
			}
			n, err := strconv.Atoi(m[1])
			if err != nil {
				break
			}
			switch p.room {
			case "bedrooms":
				counts.Bedrooms = &n
			case "bathrooms":
				counts.Bathrooms = &n
			}
			counts.Signals = append(counts.Signals, RoomCountSignal{
				Source: c,
				Detail: p.name,
				Room:   p.room,
				Count:  n,
			})
			break
		}
	}

	return counts
}

// String renders the counts for logs, e.g. "bedrooms=2 bathrooms=?".
func (rc RoomCounts) String() string {
	return "bedrooms=" + optionalInt(rc.Bedrooms) + " bathrooms=" + optionalInt(rc.Bathrooms)
}

func optionalInt(n *int) string {
	if n == nil {
		return "?"
	}
	return strconv.Itoa(*n)
}
