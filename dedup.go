package divisions

import (
	"context"
	"fmt"
	"sort"
)

// Clusterer returns a Clusterer configured from cfg.
func (cfg *Config) Clusterer() *Clusterer {
	cfg.defaults()
	return &Clusterer{
		Fingerprinter: cfg.fingerprinter(),
		Threshold:     cfg.Threshold,
		MergeFactor:   cfg.MergeFactor,
		Concurrency:   cfg.FingerprintConcurrency,
		Logger:        cfg.Logger,
	}
}

// Deduplicate turns classifications grouped by room type into division
// records: each bucket is clustered, capped by cfg.CapPolicies and counts,
// and every surviving cluster is aggregated. Division ids are numbered per
// bucket in the order the clusters survive capping.
func (cfg *Config) Deduplicate(ctx context.Context, byType map[string][]ClassificationRecord, galleryOrder map[string]int, counts RoomCounts) (map[string][]DivisionRecord, error) {
	const op = "deduplicate"
	total := 0
	for _, recs := range byType {
		total += len(recs)
	}
	if total == 0 {
		return nil, wrapError(ErrEmptyCluster, op, nil)
	}

	clusterer := cfg.Clusterer()
	cfg.Logger.Info("divisions: deduplicating", "room_types", len(byType), "records", total, "expected", counts.String())

	roomTypes := make([]string, 0, len(byType))
	for rt := range byType {
		roomTypes = append(roomTypes, rt)
	}
	sort.Strings(roomTypes)

	out := make(map[string][]DivisionRecord, len(roomTypes))
	for _, roomType := range roomTypes {
		records := byType[roomType]
		if len(records) == 0 {
			continue
		}

		clusters, err := clusterer.Cluster(ctx, records, galleryOrder)
		if err != nil {
			return nil, fmt.Errorf("%s %s: %w", op, roomType, err)
		}

		initial := len(clusters)
		if limit, ok := cfg.CapPolicies.Limit(roomType, counts); ok {
			clusters = ApplyCap(clusters, limit)
			if len(clusters) < initial {
				cfg.Logger.Info("divisions: capped clusters",
					"room_type", roomType, "cap", limit, "before", initial, "after", len(clusters))
			}
		}

		divisions := make([]DivisionRecord, len(clusters))
		for i, members := range clusters {
			divisions[i] = Aggregate(members, roomType, i+1)
		}
		out[roomType] = divisions
		cfg.Metrics.observeDivisions(roomType, len(divisions))

		cfg.Logger.Info("divisions: clustered room type",
			"room_type", roomType,
			"images", len(records),
			"clusters", initial,
			"divisions", len(divisions),
		)
	}
	return out, nil
}
