package divisions

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"
)

// ClassifyGallery classifies every gallery photo with at most maxConcurrency
// vision calls in flight and groups the parsed records by room type. Photos
// whose attempts are all exhausted are dropped and logged.
//
// Each record is appended to cfg.Sink before it is added to the returned map,
// so the sink always holds at least what the caller sees. A sink write failure
// stops the batch and is returned. An empty result returns ErrNoClassifications.
func (cfg *Config) ClassifyGallery(ctx context.Context, items []GalleryItem, maxConcurrency int, model string) (map[string][]ClassificationRecord, error) {
	const op = "classify gallery"
	if len(items) == 0 {
		return nil, wrapError(ErrNoGalleryItems, op, nil)
	}
	if maxConcurrency < 1 {
		return nil, wrapError(ErrInvalidConcurrency, op, fmt.Errorf("got %d", maxConcurrency))
	}
	if cfg.Classifier == nil {
		return nil, fmt.Errorf("%s: no classifier configured", op)
	}

	cfg.defaults()
	if model == "" {
		model = cfg.Model
	}

	parent := ctx
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	start := time.Now()
	sem := semaphore.NewWeighted(int64(maxConcurrency))
	results := make(chan ClassificationRecord)

	var wg sync.WaitGroup
	for _, item := range items {
		wg.Add(1)
		go func(item GalleryItem) {
			defer wg.Done()
			defer func() {
				if r := recover(); r != nil {
					cfg.Logger.Error("divisions: classification panicked", "url", item.URL, "panic", r)
					if cfg.OnPanic != nil {
						cfg.OnPanic("classifyItem", r)
					}
				}
			}()

			rec, ok := cfg.classifyItem(ctx, item, model, sem)
			if !ok {
				return
			}
			select {
			case results <- rec:
			case <-ctx.Done():
			}
		}(item)
	}

	go func() {
		wg.Wait()
		close(results)
	}()

	byType := make(map[string][]ClassificationRecord)
	var sinkErr error
	classified := 0
	for rec := range results {
		if sinkErr != nil {
			continue
		}
		if cfg.Sink != nil {
			if err := cfg.Sink.Append(rec); err != nil {
				sinkErr = fmt.Errorf("%s: append %s: %w", op, rec.RoomURL, err)
				cancel()
				continue
			}
		}
		bucket := rec.Bucket()
		byType[bucket] = append(byType[bucket], rec)
		classified++
	}

	cfg.Logger.Info("divisions: classification batch finished",
		"items", len(items),
		"classified", classified,
		"dropped", len(items)-classified,
		"room_types", len(byType),
		"elapsed_ms", time.Since(start).Milliseconds(),
	)

	if sinkErr != nil {
		return byType, sinkErr
	}
	if err := parent.Err(); err != nil {
		return byType, fmt.Errorf("%s: %w", op, err)
	}
	if classified == 0 {
		return nil, wrapError(ErrNoClassifications, op, nil)
	}
	return byType, nil
}

// GroupByRoomType buckets records the same way ClassifyGallery does.
func GroupByRoomType(records []ClassificationRecord) map[string][]ClassificationRecord {
	byType := make(map[string][]ClassificationRecord)
	for _, rec := range records {
		byType[rec.Bucket()] = append(byType[rec.Bucket()], rec)
	}
	return byType
}

// IsStructural reports whether err is one of the batch-level failures, as
// opposed to a context cancellation or I/O error.
func IsStructural(err error) bool {
	for _, kind := range []error{
		ErrNoGalleryItems,
		ErrInvalidConcurrency,
		ErrNoClassifications,
		ErrEmptyCluster,
		ErrMalformedListing,
	} {
		if errors.Is(err, kind) {
			return true
		}
	}
	return false
}
