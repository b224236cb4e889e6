package divisions

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"golang.org/x/sync/semaphore"
)

// DefaultPrompt is the instruction sent with every gallery photo. The model
// must answer with a single JSON object.
const DefaultPrompt = `You are a building surveyor assessing photos of a property listed for sale.
Look at the photo and describe the single room or area it shows.

Answer with exactly one JSON object using these keys:
- room_url: the room_url given above, unchanged
- room_type: one of "bedroom", "kitchen", "bathroom", "living_room", "hallway",
  "balcony", "exterior", "views", "house_plan", "common_areas", or "unknown"
- size_m2: estimated floor area in square metres, or null
- overall_condition, flooring_condition, painting_condition, windows_condition,
  plumbing_condition, electrical_condition, appliances_condition, ceiling_condition:
  a number from 0 (needs full replacement) to 4 (as new), or null when not visible
- windows_number: number of windows visible, or null
- detailed_notes: short renovation-relevant observations
- image_description: one sentence describing the photo

Use null for anything you cannot see. Do not invent values.`

// buildPrompt prefixes the instruction with the photo's URL and gallery
// caption so the model can echo room_url back.
func buildPrompt(instruction string, item GalleryItem) string {
	var b strings.Builder
	b.WriteString("room_url: ")
	b.WriteString(item.URL)
	b.WriteString("\n")
	if d := strings.TrimSpace(item.Description); d != "" {
		b.WriteString("gallery_caption: ")
		b.WriteString(d)
		b.WriteString("\n")
	}
	b.WriteString("Return only the JSON, no prose.\n")
	b.WriteString(instruction)
	return b.String()
}

// ExtractJSONObject returns the JSON object contained in a model response.
// A response that is itself a JSON object is returned as is; otherwise the
// first balanced {...} span is returned. Braces inside JSON strings are
// ignored when balancing.
func ExtractJSONObject(text string) (string, bool) {
	trimmed := strings.TrimSpace(text)
	if strings.HasPrefix(trimmed, "{") && json.Valid([]byte(trimmed)) {
		return trimmed, true
	}

	start := strings.IndexByte(text, '{')
	if start < 0 {
		return "", false
	}

	depth := 0
	inString, escaped := false, false
	for i := start; i < len(text); i++ {
		ch := text[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case ch == '\\':
				escaped = true
			case ch == '"':
				inString = false
			}
			continue
		}
		switch ch {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return text[start : i+1], true
			}
		}
	}
	return "", false
}

// ParseClassification extracts the classification object from a model
// response. room_url falls back to imageURL when the model omitted it.
func ParseClassification(resp, imageURL string) (ClassificationRecord, error) {
	span, ok := ExtractJSONObject(resp)
	if !ok {
		return ClassificationRecord{}, ErrParseResponse
	}
	var obj map[string]any
	if err := json.Unmarshal([]byte(span), &obj); err != nil {
		return ClassificationRecord{}, fmt.Errorf("%w: %w", ErrParseResponse, err)
	}
	if obj == nil {
		return ClassificationRecord{}, ErrParseResponse
	}
	return recordFromObject(obj, imageURL), nil
}

var errImageUnavailable = errors.New("image unavailable for inline upload")

// ClassifyItem classifies one gallery photo with the configured retry policy.
// Returns false when every attempt failed; the failure is logged, not returned.
func (cfg *Config) ClassifyItem(ctx context.Context, item GalleryItem, model string) (ClassificationRecord, bool) {
	cfg.defaults()
	if model == "" {
		model = cfg.Model
	}
	return cfg.classifyItem(ctx, item, model, semaphore.NewWeighted(1))
}

func (cfg *Config) classifyItem(ctx context.Context, item GalleryItem, model string, sem *semaphore.Weighted) (ClassificationRecord, bool) {
	log := cfg.Logger.With("url", item.URL)

	var cacheKey string
	if cfg.Cache != nil {
		cacheKey = cfg.Cache.Key("division_cls", model+"|"+item.URL)
		var cached ClassificationRecord
		if cfg.Cache.Get(ctx, cacheKey, &cached) && cached.RoomURL != "" {
			log.Debug("divisions: classification cache hit")
			return cached, true
		}
	}

	prompt := buildPrompt(cfg.Prompt, item)

	for attempt := 1; attempt <= cfg.MaxRetries; attempt++ {
		rec, err := cfg.attempt(ctx, item, model, prompt, sem)
		if err == nil {
			cfg.Metrics.observeAttempt(statusSuccess)
			if cfg.Cache != nil {
				cfg.Cache.Set(ctx, cacheKey, rec)
			}
			return rec, true
		}
		cfg.Metrics.observeAttempt(attemptStatus(err))

		if ctx.Err() != nil {
			log.Warn("divisions: classification cancelled", "attempt", attempt, "error", err.Error())
			break
		}
		if attempt == cfg.MaxRetries {
			log.Warn("divisions: classification attempt failed",
				"attempt", attempt, "max_attempts", cfg.MaxRetries, "error", err.Error())
			break
		}

		wait := backoffDelay(cfg.BackoffBase, attempt)
		log.Warn("divisions: classification attempt failed",
			"attempt", attempt,
			"max_attempts", cfg.MaxRetries,
			"backoff_ms", float64(wait.Microseconds())/1000.0,
			"error", err.Error(),
		)
		if !sleepContext(ctx, wait) {
			break
		}
	}

	cfg.Metrics.observeDropped()
	log.Error("divisions: all retries failed, dropping photo", "max_attempts", cfg.MaxRetries)
	return ClassificationRecord{}, false
}

// attempt performs one classification call. The semaphore slot covers the
// inline download and the call, never the backoff sleep.
func (cfg *Config) attempt(ctx context.Context, item GalleryItem, model, prompt string, sem *semaphore.Weighted) (ClassificationRecord, error) {
	if cfg.limiter != nil {
		if err := cfg.limiter.Wait(ctx); err != nil {
			return ClassificationRecord{}, err
		}
	}

	start := time.Now()
	resp, err := withSlot(ctx, sem, func() (string, error) {
		images, err := cfg.imageInputs(ctx, item.URL)
		if err != nil {
			return "", err
		}
		return cfg.call(ctx, model, prompt, images)
	})
	if err != nil {
		return ClassificationRecord{}, err
	}

	rec, err := ParseClassification(resp, item.URL)
	if err != nil {
		return ClassificationRecord{}, err
	}
	cfg.Logger.Info("divisions: classified photo",
		"url", item.URL,
		"room_type", rec.Bucket(),
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return rec, nil
}

// withSlot runs fn while holding one semaphore slot. The slot is released even
// if fn panics.
func withSlot(ctx context.Context, sem *semaphore.Weighted, fn func() (string, error)) (string, error) {
	if err := sem.Acquire(ctx, 1); err != nil {
		return "", err
	}
	defer sem.Release(1)
	return fn()
}

func (cfg *Config) call(ctx context.Context, model, prompt string, images []ImageInput) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, cfg.CallTimeout)
	defer cancel()

	done := cfg.Metrics.startCall()
	defer done()

	if cfg.breaker == nil {
		return cfg.Classifier.Classify(ctx, model, prompt, images)
	}
	return cfg.breaker.Execute(func() (string, error) {
		return cfg.Classifier.Classify(ctx, model, prompt, images)
	})
}

func (cfg *Config) imageInputs(ctx context.Context, imageURL string) ([]ImageInput, error) {
	if !cfg.InlineImages {
		return []ImageInput{{URL: imageURL}}, nil
	}
	r, err := cfg.Download(ctx, imageURL, DownloadOpts{})
	if err != nil {
		return nil, err
	}
	if r == nil {
		return nil, errImageUnavailable
	}
	return []ImageInput{{URL: EncodeDataURL(r.Data, r.MIMEType), MIMEType: r.MIMEType}}, nil
}

// backoffDelay returns base^attempt seconds.
func backoffDelay(base float64, attempt int) time.Duration {
	return time.Duration(math.Pow(base, float64(attempt)) * float64(time.Second))
}

func sleepContext(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

func attemptStatus(err error) string {
	if errors.Is(err, ErrParseResponse) {
		return statusParseError
	}
	return statusCallError
}
