// Package divisions turns a listing photo gallery into one record per physical
// room: every photo is classified by a vision model, then photos of the same
// room are clustered by perceptual hash and merged.
package divisions

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/sony/gobreaker/v2"
	"golang.org/x/time/rate"
)

// Defaults applied by Config when the corresponding field is zero.
const (
	DefaultModel          = "gpt-4.1-mini"
	DefaultMaxRetries     = 3
	DefaultBackoffBase    = 1.5
	DefaultCallTimeout    = 90 * time.Second
	DefaultThreshold      = 15
	DefaultMergeFactor    = 1.5
	DefaultMaxConcurrency = 5
)

// ImageInput represents an image for multimodal LLM classification.
type ImageInput struct {
	URL      string // data: URI or HTTP URL
	MIMEType string // e.g. "image/jpeg", empty for remote URLs
}

// Cache abstracts key-value caching (Redis, sync.Map, etc.)
type Cache interface {
	Key(prefix, value string) string
	Get(ctx context.Context, key string, dest any) bool
	Set(ctx context.Context, key string, value any)
}

// Classifier abstracts the external vision model. Implementations return the
// model's free-text answer; parsing happens in this package.
type Classifier interface {
	Classify(ctx context.Context, model, prompt string, images []ImageInput) (string, error)
}

// RecordSink receives every parsed classification as soon as it completes.
type RecordSink interface {
	Append(rec ClassificationRecord) error
}

// Config holds all dependencies injected by the consumer.
type Config struct {
	Classifier    Classifier   // required for ClassifyGallery
	Cache         Cache        // optional: classification and fingerprint cache
	StealthClient *http.Client // optional: TLS-fingerprinted client for downloads
	HTTPClient    *http.Client // optional: default http client (nil = http.DefaultClient)
	UserAgent     string       // default: "Mozilla/5.0 (compatible; go-divisions/1.0)"
	Logger        *slog.Logger // default: slog.Default()
	Metrics       *Metrics     // optional

	// Prompt overrides DefaultPrompt.
	Prompt string
	// Model is used when ClassifyGallery is called with an empty model.
	Model string

	MaxRetries  int           // attempts per photo (default 3)
	BackoffBase float64       // wait BackoffBase^attempt seconds after a failed attempt (default 1.5)
	CallTimeout time.Duration // per vision call (default 90s)

	// InlineImages downloads each photo and sends it as a data: URI instead of
	// letting the provider fetch the URL.
	InlineImages bool

	// RateLimit caps vision calls per second across the batch (0 = unlimited).
	RateLimit rate.Limit
	RateBurst int

	// Breaker, when set, wraps vision calls in a circuit breaker. An open
	// breaker fails the attempt, which then follows the normal retry policy.
	Breaker *gobreaker.Settings

	// Sink receives each record as it completes (nil = no durable log).
	Sink RecordSink

	// Clustering.
	Threshold              int           // max Hamming distance within a cluster (default 15)
	MergeFactor            float64       // merge-pass multiplier (default 1.5)
	CapPolicies            CapPolicies   // default: DefaultCapPolicies
	Fingerprinter          Fingerprinter // default: the Config itself
	FingerprintConcurrency int           // parallel hash downloads (default 4)

	// Optional callbacks for metrics/logging.
	OnPanic func(tag string, r any)

	initOnce sync.Once
	limiter  *rate.Limiter
	breaker  *gobreaker.CircuitBreaker[string]
}

// defaults fills zero-value fields with sensible defaults.
func (c *Config) defaults() {
	if c.UserAgent == "" {
		c.UserAgent = "Mozilla/5.0 (compatible; go-divisions/1.0)"
	}
	if c.HTTPClient == nil {
		c.HTTPClient = http.DefaultClient
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	if c.Model == "" {
		c.Model = DefaultModel
	}
	if c.Prompt == "" {
		c.Prompt = DefaultPrompt
	}
	if c.MaxRetries <= 0 {
		c.MaxRetries = DefaultMaxRetries
	}
	if c.BackoffBase <= 0 {
		c.BackoffBase = DefaultBackoffBase
	}
	if c.CallTimeout <= 0 {
		c.CallTimeout = DefaultCallTimeout
	}
	if c.Threshold <= 0 {
		c.Threshold = DefaultThreshold
	}
	if c.MergeFactor <= 0 {
		c.MergeFactor = DefaultMergeFactor
	}
	if c.CapPolicies == nil {
		c.CapPolicies = DefaultCapPolicies
	}
	if c.FingerprintConcurrency <= 0 {
		c.FingerprintConcurrency = 4
	}

	c.initOnce.Do(func() {
		if c.RateLimit > 0 {
			burst := c.RateBurst
			if burst <= 0 {
				burst = 1
			}
			c.limiter = rate.NewLimiter(c.RateLimit, burst)
		}
		if c.Breaker != nil {
			c.breaker = gobreaker.NewCircuitBreaker[string](*c.Breaker)
		}
	})
}

func (c *Config) fingerprinter() Fingerprinter {
	if c.Fingerprinter != nil {
		return c.Fingerprinter
	}
	return c
}
