package divisions

import (
	"context"
	"time"
)

// Analysis is the result of running the full pipeline on one listing.
type Analysis struct {
	ListingID       string
	Counts          RoomCounts
	Classifications map[string][]ClassificationRecord
	Divisions       map[string][]DivisionRecord
	Elapsed         time.Duration
}

// NumDivisions returns the total number of division records.
func (a *Analysis) NumDivisions() int {
	n := 0
	for _, d := range a.Divisions {
		n += len(d)
	}
	return n
}

// Analyze classifies the listing's gallery and deduplicates the result into
// divisions, capped by the room counts in its characteristics.
func (cfg *Config) Analyze(ctx context.Context, listing *Listing, maxConcurrency int, model string) (*Analysis, error) {
	start := time.Now()
	items := ValidateGallery(listing.Gallery)
	if len(items) == 0 {
		return nil, wrapError(ErrNoGalleryItems, "analyze "+listing.ID, nil)
	}

	byType, err := cfg.ClassifyGallery(ctx, items, maxConcurrency, model)
	if err != nil {
		return nil, err
	}

	counts := listing.RoomCounts()
	divisions, err := cfg.Deduplicate(ctx, byType, listing.GalleryOrder(), counts)
	if err != nil {
		return nil, err
	}

	a := &Analysis{
		ListingID:       listing.ID,
		Counts:          counts,
		Classifications: byType,
		Divisions:       divisions,
		Elapsed:         time.Since(start),
	}
	cfg.Logger.Info("divisions: listing analyzed",
		"listing_id", listing.ID,
		"photos", len(items),
		"divisions", a.NumDivisions(),
		"elapsed_ms", a.Elapsed.Milliseconds(),
	)
	return a, nil
}
