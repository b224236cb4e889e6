package divisions

import (
	"bytes"
	"context"
	"encoding/json"
	"image"
	"image/color"
	"image/png"
	"sync"
	"testing"

	"github.com/corona10/goimagehash"
)

// fakeClassifier answers from a function and records every call. It tracks the
// highest number of concurrent calls it has seen.
type fakeClassifier struct {
	mu       sync.Mutex
	respond  func(prompt string, images []ImageInput) (string, error)
	calls    map[string]int // keyed by the first image URL
	inFlight int
	maxSeen  int
}

func newFakeClassifier(respond func(prompt string, images []ImageInput) (string, error)) *fakeClassifier {
	return &fakeClassifier{respond: respond, calls: make(map[string]int)}
}

func (f *fakeClassifier) Classify(_ context.Context, _ string, prompt string, images []ImageInput) (string, error) {
	f.mu.Lock()
	key := ""
	if len(images) > 0 {
		key = images[0].URL
	}
	f.calls[key]++
	f.inFlight++
	if f.inFlight > f.maxSeen {
		f.maxSeen = f.inFlight
	}
	f.mu.Unlock()

	defer func() {
		f.mu.Lock()
		f.inFlight--
		f.mu.Unlock()
	}()

	return f.respond(prompt, images)
}

func (f *fakeClassifier) callsFor(url string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[url]
}

func (f *fakeClassifier) totalCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.calls {
		n += c
	}
	return n
}

func (f *fakeClassifier) maxConcurrent() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.maxSeen
}

// roomJSON returns a model answer for url classified as roomType.
func roomJSON(url, roomType string) string {
	b, _ := json.Marshal(map[string]any{
		"room_url":          url,
		"room_type":         roomType,
		"overall_condition": 3,
		"detailed_notes":    "fine",
	})
	return string(b)
}

// mockCache is a JSON-backed in-memory Cache.
type mockCache struct {
	mu    sync.Mutex
	store map[string][]byte
	gets  int
}

func newMockCache() *mockCache {
	return &mockCache{store: make(map[string][]byte)}
}

func (m *mockCache) Key(prefix, value string) string { return prefix + ":" + value }

func (m *mockCache) Get(_ context.Context, key string, dest any) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.gets++
	v, ok := m.store[key]
	if !ok {
		return false
	}
	return json.Unmarshal(v, dest) == nil
}

func (m *mockCache) Set(_ context.Context, key string, value any) {
	b, err := json.Marshal(value)
	if err != nil {
		return
	}
	m.mu.Lock()
	m.store[key] = b
	m.mu.Unlock()
}

// memSink collects appended records.
type memSink struct {
	mu      sync.Mutex
	records []ClassificationRecord
	err     error
}

func (s *memSink) Append(rec ClassificationRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.records = append(s.records, rec)
	return nil
}

// hashTable is a Fingerprinter answering from fixed 64-bit hashes. URLs
// missing from the table have no fingerprint.
type hashTable map[string]uint64

func (h hashTable) Fingerprint(_ context.Context, url string) *goimagehash.ImageHash {
	v, ok := h[url]
	if !ok {
		return nil
	}
	return goimagehash.NewImageHash(v, goimagehash.PHash)
}

func ptrFloat(v float64) *float64 { return &v }

func ptrString(s string) *string { return &s }

func rec(url, roomType string) ClassificationRecord {
	r := ClassificationRecord{RoomURL: url}
	if roomType != "" {
		r.RoomType = ptrString(roomType)
	}
	return r
}

// gradientPNG encodes a w×h image whose brightness increases left to right,
// or top to bottom when vertical is set.
func gradientPNG(t *testing.T, w, h int, vertical bool) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			v := uint8(x * 255 / (w - 1))
			if vertical {
				v = uint8(y * 255 / (h - 1))
			}
			img.Set(x, y, color.RGBA{R: v, G: v, B: v, A: 255})
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("encode png: %v", err)
	}
	return buf.Bytes()
}

func ptrInt(n int) *int { return &n }
