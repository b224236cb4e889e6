package divisions

import (
	"context"
	"log/slog"
	"sort"

	"github.com/corona10/goimagehash"
	"golang.org/x/sync/errgroup"
)

// UnknownOrder is the gallery position assumed for photos missing from the
// gallery; they sort after every known photo.
const UnknownOrder = 10_000

// Clusterer groups the classifications of one room type into physical rooms
// by perceptual hash and gallery sequence.
type Clusterer struct {
	Fingerprinter Fingerprinter
	Threshold     int          // max Hamming distance within a cluster (default 15)
	MergeFactor   float64      // second-pass multiplier (default 1.5)
	Concurrency   int          // parallel fingerprint fetches (default 4)
	Logger        *slog.Logger // default: slog.Default()
}

// clusterKey is a record enriched with its hash and gallery position.
type clusterKey struct {
	rec   ClassificationRecord
	hash  *goimagehash.ImageHash
	order int
}

// Cluster partitions records into clusters. Records are walked in gallery
// order; each joins the open cluster while it stays within Threshold of the
// cluster's first photo. A second pass merges later clusters into earlier ones
// when any pair of hashed members is within Threshold*MergeFactor.
//
// The result depends only on the inputs and the fingerprints; fingerprints
// are fetched concurrently but consumed in a fixed order.
func (c *Clusterer) Cluster(ctx context.Context, records []ClassificationRecord, galleryOrder map[string]int) ([][]ClassificationRecord, error) {
	if len(records) == 0 {
		return nil, wrapError(ErrEmptyCluster, "cluster", nil)
	}

	threshold := c.Threshold
	if threshold <= 0 {
		threshold = DefaultThreshold
	}
	mergeFactor := c.MergeFactor
	if mergeFactor <= 0 {
		mergeFactor = DefaultMergeFactor
	}

	hashes, err := c.fingerprints(ctx, records)
	if err != nil {
		return nil, err
	}

	keys := make([]clusterKey, len(records))
	for i, rec := range records {
		order, ok := galleryOrder[rec.RoomURL]
		if !ok {
			order = UnknownOrder
		}
		keys[i] = clusterKey{rec: rec, hash: hashes[rec.RoomURL], order: order}
	}
	sort.SliceStable(keys, func(i, j int) bool {
		if keys[i].order != keys[j].order {
			return keys[i].order < keys[j].order
		}
		return keys[i].rec.RoomURL < keys[j].rec.RoomURL
	})

	groups := greedyPass(keys, threshold)
	groups = mergePass(groups, int(float64(threshold)*mergeFactor))

	clusters := make([][]ClassificationRecord, len(groups))
	for i, g := range groups {
		members := make([]ClassificationRecord, len(g))
		for j, k := range g {
			members[j] = k.rec
		}
		clusters[i] = members
	}
	return clusters, nil
}

// greedyPass walks keys in order, opening a new cluster whenever a photo is
// farther than threshold from the open cluster's anchor (its first member).
func greedyPass(keys []clusterKey, threshold int) [][]clusterKey {
	var groups [][]clusterKey
	var current []clusterKey
	for _, k := range keys {
		if len(current) == 0 {
			current = []clusterKey{k}
			continue
		}
		if Distance(current[0].hash, k.hash, threshold) <= threshold {
			current = append(current, k)
			continue
		}
		groups = append(groups, current)
		current = []clusterKey{k}
	}
	if len(current) > 0 {
		groups = append(groups, current)
	}
	return groups
}

// mergePass folds each later group into the earliest unconsumed group that has
// a hashed member within mergeThreshold of one of its hashed members. A merged
// group keeps growing, so later groups are compared against every member
// absorbed so far.
func mergePass(groups [][]clusterKey, mergeThreshold int) [][]clusterKey {
	used := make([]bool, len(groups))
	var merged [][]clusterKey
	for i := range groups {
		if used[i] {
			continue
		}
		used[i] = true
		acc := append([]clusterKey(nil), groups[i]...)
		for j := i + 1; j < len(groups); j++ {
			if used[j] {
				continue
			}
			if closeEnough(acc, groups[j], mergeThreshold) {
				acc = append(acc, groups[j]...)
				used[j] = true
			}
		}
		merged = append(merged, acc)
	}
	return merged
}

func closeEnough(a, b []clusterKey, mergeThreshold int) bool {
	for _, x := range a {
		if x.hash == nil {
			continue
		}
		for _, y := range b {
			if y.hash == nil {
				continue
			}
			if Distance(x.hash, y.hash, mergeThreshold) <= mergeThreshold {
				return true
			}
		}
	}
	return false
}

// fingerprints hashes every distinct URL once, with at most Concurrency
// fetches in flight. Only context cancellation is reported as an error; a
// photo that cannot be hashed maps to nil.
func (c *Clusterer) fingerprints(ctx context.Context, records []ClassificationRecord) (map[string]*goimagehash.ImageHash, error) {
	var urls []string
	seen := make(map[string]bool, len(records))
	for _, rec := range records {
		if rec.RoomURL == "" || seen[rec.RoomURL] {
			continue
		}
		seen[rec.RoomURL] = true
		urls = append(urls, rec.RoomURL)
	}

	hashes := make([]*goimagehash.ImageHash, len(urls))
	if c.Fingerprinter != nil {
		limit := c.Concurrency
		if limit <= 0 {
			limit = 4
		}
		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(limit)
		for i, u := range urls {
			g.Go(func() error {
				if err := gctx.Err(); err != nil {
					return err
				}
				hashes[i] = c.Fingerprinter.Fingerprint(gctx, u)
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return nil, err
		}
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	out := make(map[string]*goimagehash.ImageHash, len(urls))
	missing := 0
	for i, u := range urls {
		out[u] = hashes[i]
		if hashes[i] == nil {
			missing++
		}
	}
	if missing > 0 {
		c.logger().Warn("divisions: photos without fingerprint", "missing", missing, "total", len(urls))
	}
	return out, nil
}

func (c *Clusterer) logger() *slog.Logger {
	if c.Logger != nil {
		return c.Logger
	}
	return slog.Default()
}
