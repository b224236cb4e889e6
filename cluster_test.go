package divisions

import (
	"context"
	"errors"
	"slices"
	"testing"
)

// sixBedroomPhotos are three rooms photographed twice each: pairs are one bit
// apart and rooms at least 32 bits apart.
func sixBedroomPhotos() ([]ClassificationRecord, map[string]int, hashTable) {
	urls := []string{"u0", "u1", "u2", "u3", "u4", "u5"}
	hashes := hashTable{
		"u0": 0x0,
		"u1": 0x1,
		"u2": 0xFFFFFFFF,
		"u3": 0xFFFFFFFE,
		"u4": 0xFFFFFFFF00000000,
		"u5": 0xFFFFFFFF00000001,
	}
	order := make(map[string]int, len(urls))
	records := make([]ClassificationRecord, len(urls))
	for i, u := range urls {
		order[u] = i
		records[i] = rec(u, "bedroom")
	}
	return records, order, hashes
}

// clusterURLs flattens clusters to their member URLs.
func clusterURLs(clusters [][]ClassificationRecord) [][]string {
	out := make([][]string, len(clusters))
	for i, c := range clusters {
		for _, r := range c {
			out[i] = append(out[i], r.RoomURL)
		}
	}
	return out
}

func equalPartition(a, b [][]string) bool {
	return slices.EqualFunc(a, b, func(x, y []string) bool { return slices.Equal(x, y) })
}

func TestCluster_Empty(t *testing.T) {
	t.Parallel()

	c := &Clusterer{Fingerprinter: hashTable{}}
	_, err := c.Cluster(context.Background(), nil, nil)
	if !errors.Is(err, ErrEmptyCluster) {
		t.Fatalf("Cluster(nil) error = %v, want ErrEmptyCluster", err)
	}
}

func TestCluster_PairsOfPhotos(t *testing.T) {
	t.Parallel()

	records, order, hashes := sixBedroomPhotos()
	c := &Clusterer{Fingerprinter: hashes, Threshold: 10, MergeFactor: 1.5}

	clusters, err := c.Cluster(context.Background(), records, order)
	if err != nil {
		t.Fatalf("Cluster: %v", err)
	}
	want := [][]string{{"u0", "u1"}, {"u2", "u3"}, {"u4", "u5"}}
	if got := clusterURLs(clusters); !equalPartition(got, want) {
		t.Errorf("clusters = %v, want %v", got, want)
	}
}

func TestCluster_DeterministicAndComplete(t *testing.T) {
	t.Parallel()

	records, order, hashes := sixBedroomPhotos()
	c := &Clusterer{Fingerprinter: hashes, Threshold: 10, Concurrency: 3}

	first, err := c.Cluster(context.Background(), records, order)
	if err != nil {
		t.Fatalf("Cluster: %v", err)
	}

	reversed := slices.Clone(records)
	slices.Reverse(reversed)
	second, err := c.Cluster(context.Background(), reversed, order)
	if err != nil {
		t.Fatalf("Cluster: %v", err)
	}
	if a, b := clusterURLs(first), clusterURLs(second); !equalPartition(a, b) {
		t.Errorf("input order changed result: %v vs %v", a, b)
	}

	seen := make(map[string]int)
	for _, cl := range first {
		if len(cl) == 0 {
			t.Error("empty cluster in result")
		}
		for _, r := range cl {
			seen[r.RoomURL]++
		}
	}
	for _, r := range records {
		if seen[r.RoomURL] != 1 {
			t.Errorf("%s appears %d times, want exactly once", r.RoomURL, seen[r.RoomURL])
		}
	}
}

func TestCluster_ThresholdMonotonic(t *testing.T) {
	t.Parallel()

	records, order, hashes := sixBedroomPhotos()
	tests := []struct {
		threshold int
		want      int
	}{
		{threshold: 1, want: 3},
		{threshold: 10, want: 3},
		{threshold: 31, want: 2},
		{threshold: 40, want: 1},
		{threshold: 64, want: 1},
	}

	prev := len(records)
	for _, tc := range tests {
		c := &Clusterer{Fingerprinter: hashes, Threshold: tc.threshold, MergeFactor: 1}
		clusters, err := c.Cluster(context.Background(), records, order)
		if err != nil {
			t.Fatalf("Cluster(threshold=%d): %v", tc.threshold, err)
		}
		if len(clusters) != tc.want {
			t.Errorf("threshold %d: %d clusters, want %d", tc.threshold, len(clusters), tc.want)
		}
		if len(clusters) > prev {
			t.Errorf("threshold %d: %d clusters, more than %d at a lower threshold", tc.threshold, len(clusters), prev)
		}
		prev = len(clusters)
	}
}

func TestCluster_MissingHashSplits(t *testing.T) {
	t.Parallel()

	records := []ClassificationRecord{rec("a", "kitchen"), rec("b", "kitchen"), rec("c", "kitchen")}
	order := map[string]int{"a": 0, "b": 1, "c": 2}
	hashes := hashTable{"a": 0, "c": 0} // b cannot be fetched

	c := &Clusterer{Fingerprinter: hashes, Threshold: 10}
	clusters, err := c.Cluster(context.Background(), records, order)
	if err != nil {
		t.Fatalf("Cluster: %v", err)
	}
	want := [][]string{{"a", "c"}, {"b"}}
	if got := clusterURLs(clusters); !equalPartition(got, want) {
		t.Errorf("clusters = %v, want %v", got, want)
	}
}

func TestCluster_MergePass(t *testing.T) {
	t.Parallel()

	// c is 12 bits from a: too far for the greedy pass at 10, close enough
	// for the merge pass at 15. b is far from both.
	records := []ClassificationRecord{rec("a", "bedroom"), rec("b", "bedroom"), rec("c", "bedroom")}
	order := map[string]int{"a": 0, "b": 1, "c": 2}
	hashes := hashTable{"a": 0x0, "b": 0xFFFFFFFF, "c": 0xFFF}

	c := &Clusterer{Fingerprinter: hashes, Threshold: 10, MergeFactor: 1.5}
	clusters, err := c.Cluster(context.Background(), records, order)
	if err != nil {
		t.Fatalf("Cluster: %v", err)
	}
	want := [][]string{{"a", "c"}, {"b"}}
	if got := clusterURLs(clusters); !equalPartition(got, want) {
		t.Errorf("clusters = %v, want %v", got, want)
	}

	c.MergeFactor = 1
	clusters, err = c.Cluster(context.Background(), records, order)
	if err != nil {
		t.Fatalf("Cluster: %v", err)
	}
	if len(clusters) != 3 {
		t.Errorf("without merge headroom got %v, want 3 singletons", clusterURLs(clusters))
	}
}

func TestCluster_GalleryOrder(t *testing.T) {
	t.Parallel()

	// All photos hash alike, so one cluster forms; its member order follows
	// the gallery, with unknown photos last and sorted by URL.
	records := []ClassificationRecord{rec("z-extra", "hallway"), rec("second", "hallway"), rec("a-extra", "hallway"), rec("first", "hallway")}
	order := map[string]int{"first": 0, "second": 1}
	hashes := hashTable{"z-extra": 0, "second": 0, "a-extra": 0, "first": 0}

	c := &Clusterer{Fingerprinter: hashes, Threshold: 10}
	clusters, err := c.Cluster(context.Background(), records, order)
	if err != nil {
		t.Fatalf("Cluster: %v", err)
	}
	want := [][]string{{"first", "second", "a-extra", "z-extra"}}
	if got := clusterURLs(clusters); !equalPartition(got, want) {
		t.Errorf("clusters = %v, want %v", got, want)
	}
}

func TestCluster_Cancelled(t *testing.T) {
	t.Parallel()

	records, order, hashes := sixBedroomPhotos()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	c := &Clusterer{Fingerprinter: hashes, Threshold: 10}
	if _, err := c.Cluster(ctx, records, order); !errors.Is(err, context.Canceled) {
		t.Errorf("Cluster(cancelled) error = %v, want context.Canceled", err)
	}
}
