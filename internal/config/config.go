// Package config loads CLI configuration from an optional YAML file, a .env
// file and environment variables, in increasing order of precedence.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/sony/gobreaker/v2"
	"golang.org/x/time/rate"
	"gopkg.in/yaml.v3"

	divisions "github.com/armindomatias/go-divisions"
)

// Config holds all CLI configuration.
type Config struct {
	Provider string         `yaml:"provider"` // openai or gemini
	Model    string         `yaml:"model"`
	OpenAI   OpenAIConfig   `yaml:"openai"`
	Gemini   GeminiConfig   `yaml:"gemini"`
	Classify ClassifyConfig `yaml:"classify"`
	Cluster  ClusterConfig  `yaml:"cluster"`
	Redis    RedisConfig    `yaml:"redis"`
	Postgres PostgresConfig `yaml:"postgres"`
	Output   OutputConfig   `yaml:"output"`
	Log      LogConfig      `yaml:"log"`
	Metrics  MetricsConfig  `yaml:"metrics"`
}

// OpenAIConfig configures the OpenAI-compatible provider.
type OpenAIConfig struct {
	APIKey      string  `yaml:"api_key"`
	BaseURL     string  `yaml:"base_url"`
	Temperature float64 `yaml:"temperature"`
	MaxTokens   int     `yaml:"max_tokens"`
	JSONMode    bool    `yaml:"json_mode"`
}

// GeminiConfig configures the Gemini provider.
type GeminiConfig struct {
	APIKey      string  `yaml:"api_key"`
	Temperature float32 `yaml:"temperature"`
}

// ClassifyConfig configures the classification fan-out.
type ClassifyConfig struct {
	MaxConcurrency int           `yaml:"max_concurrency"`
	MaxRetries     int           `yaml:"max_retries"`
	BackoffBase    float64       `yaml:"backoff_base"`
	CallTimeout    time.Duration `yaml:"call_timeout"`
	InlineImages   bool          `yaml:"inline_images"`
	RateLimit      float64       `yaml:"rate_limit"` // calls per second, 0 = unlimited
	RateBurst      int           `yaml:"rate_burst"`
	Breaker        BreakerConfig `yaml:"breaker"`
}

// BreakerConfig configures the circuit breaker around vision calls.
type BreakerConfig struct {
	Enabled             bool          `yaml:"enabled"`
	MaxRequests         uint32        `yaml:"max_requests"`
	Interval            time.Duration `yaml:"interval"`
	Timeout             time.Duration `yaml:"timeout"`
	ConsecutiveFailures uint32        `yaml:"consecutive_failures"`
}

// ClusterConfig configures clustering and capping.
type ClusterConfig struct {
	Threshold              int                        `yaml:"threshold"`
	MergeFactor            float64                    `yaml:"merge_factor"`
	FingerprintConcurrency int                        `yaml:"fingerprint_concurrency"`
	CapPolicies            map[string]CapPolicyConfig `yaml:"cap_policies"`
}

// CapPolicyConfig is the YAML form of divisions.CapPolicy.
type CapPolicyConfig struct {
	Source string `yaml:"source"` // none, expected_bedrooms, expected_bathrooms, fixed
	Max    int    `yaml:"max"`
}

// RedisConfig enables the Redis cache when Addr is set.
type RedisConfig struct {
	Addr     string        `yaml:"addr"`
	Password string        `yaml:"password"`
	DB       int           `yaml:"db"`
	Prefix   string        `yaml:"prefix"`
	TTL      time.Duration `yaml:"ttl"`
}

// PostgresConfig enables division persistence when DSN is set.
type PostgresConfig struct {
	DSN string `yaml:"dsn"`
}

// OutputConfig sets where result files are written.
type OutputConfig struct {
	Dir string `yaml:"dir"`
}

// LogConfig configures the slog handler.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // json or text
}

// MetricsConfig enables the Prometheus endpoint when Addr is set.
type MetricsConfig struct {
	Addr string `yaml:"addr"`
}

// Default returns the configuration used when nothing is set.
func Default() *Config {
	return &Config{
		Provider: "openai",
		Model:    divisions.DefaultModel,
		Classify: ClassifyConfig{
			MaxConcurrency: divisions.DefaultMaxConcurrency,
			MaxRetries:     divisions.DefaultMaxRetries,
			BackoffBase:    divisions.DefaultBackoffBase,
			CallTimeout:    divisions.DefaultCallTimeout,
			RateBurst:      1,
			Breaker: BreakerConfig{
				MaxRequests:         1,
				Interval:            time.Minute,
				Timeout:             30 * time.Second,
				ConsecutiveFailures: 5,
			},
		},
		Cluster: ClusterConfig{
			Threshold:              divisions.DefaultThreshold,
			MergeFactor:            divisions.DefaultMergeFactor,
			FingerprintConcurrency: 4,
		},
		Output: OutputConfig{Dir: "data/image_analysis"},
		Log:    LogConfig{Level: "info", Format: "text"},
	}
}

// Load reads .env (if present), then the YAML file at path (if non-empty),
// then environment overrides, and validates the result.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config file: %w", err)
		}
	}

	if err := applyEnvOverrides(cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return cfg, nil
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	switch c.Provider {
	case "openai", "gemini":
	default:
		return fmt.Errorf("invalid provider: %q", c.Provider)
	}
	if c.Classify.MaxConcurrency < 1 {
		return fmt.Errorf("max_concurrency must be at least 1, got %d", c.Classify.MaxConcurrency)
	}
	if c.Classify.MaxRetries < 1 {
		return fmt.Errorf("max_retries must be at least 1, got %d", c.Classify.MaxRetries)
	}
	if c.Classify.BackoffBase < 1 {
		return fmt.Errorf("backoff_base must be at least 1, got %g", c.Classify.BackoffBase)
	}
	if c.Cluster.Threshold < 1 || c.Cluster.Threshold > 64 {
		return fmt.Errorf("threshold must be between 1 and 64, got %d", c.Cluster.Threshold)
	}
	if c.Cluster.MergeFactor < 1 {
		return fmt.Errorf("merge_factor must be at least 1, got %g", c.Cluster.MergeFactor)
	}
	if _, err := c.CapPolicies(); err != nil {
		return err
	}
	return nil
}

// APIKey returns the key of the selected provider.
func (c *Config) APIKey() string {
	if c.Provider == "gemini" {
		return c.Gemini.APIKey
	}
	return c.OpenAI.APIKey
}

// CapPolicies converts the YAML table. An empty table yields
// divisions.DefaultCapPolicies.
func (c *Config) CapPolicies() (divisions.CapPolicies, error) {
	if len(c.Cluster.CapPolicies) == 0 {
		return divisions.DefaultCapPolicies, nil
	}
	out := make(divisions.CapPolicies, len(c.Cluster.CapPolicies))
	for roomType, p := range c.Cluster.CapPolicies {
		src, err := divisions.ParseCapSource(p.Source)
		if err != nil {
			return nil, fmt.Errorf("cap policy %s: %w", roomType, err)
		}
		if src == divisions.CapFixed && p.Max < 0 {
			return nil, fmt.Errorf("cap policy %s: max must not be negative", roomType)
		}
		out[roomType] = divisions.CapPolicy{Source: src, Max: p.Max}
	}
	return out, nil
}

// BreakerSettings returns nil when the breaker is disabled.
func (c *Config) BreakerSettings(name string) *gobreaker.Settings {
	b := c.Classify.Breaker
	if !b.Enabled {
		return nil
	}
	threshold := b.ConsecutiveFailures
	return &gobreaker.Settings{
		Name:        name,
		MaxRequests: b.MaxRequests,
		Interval:    b.Interval,
		Timeout:     b.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= threshold
		},
	}
}

// RateLimit returns the limiter rate; 0 means unlimited.
func (c *Config) RateLimit() rate.Limit {
	return rate.Limit(c.Classify.RateLimit)
}

func applyEnvOverrides(cfg *Config) error {
	setString(&cfg.Provider, "DIVISIONS_PROVIDER")
	setString(&cfg.Model, "DIVISIONS_MODEL")
	setString(&cfg.OpenAI.APIKey, "OPENAI_API_KEY")
	setString(&cfg.OpenAI.BaseURL, "OPENAI_BASE_URL")
	setString(&cfg.Gemini.APIKey, "GEMINI_API_KEY")
	setString(&cfg.Redis.Addr, "REDIS_ADDR")
	setString(&cfg.Redis.Password, "REDIS_PASSWORD")
	setString(&cfg.Postgres.DSN, "DATABASE_URL")
	setString(&cfg.Output.Dir, "DIVISIONS_OUTPUT_DIR")
	setString(&cfg.Log.Level, "LOG_LEVEL")
	setString(&cfg.Log.Format, "LOG_FORMAT")
	setString(&cfg.Metrics.Addr, "METRICS_ADDR")

	var errs []error
	errs = append(errs,
		setInt(&cfg.Classify.MaxConcurrency, "DIVISIONS_MAX_CONCURRENCY"),
		setInt(&cfg.Classify.MaxRetries, "DIVISIONS_MAX_RETRIES"),
		setFloat(&cfg.Classify.BackoffBase, "DIVISIONS_BACKOFF_BASE"),
		setDuration(&cfg.Classify.CallTimeout, "DIVISIONS_CALL_TIMEOUT"),
		setBool(&cfg.Classify.InlineImages, "DIVISIONS_INLINE_IMAGES"),
		setFloat(&cfg.Classify.RateLimit, "DIVISIONS_RATE_LIMIT"),
		setBool(&cfg.Classify.Breaker.Enabled, "DIVISIONS_BREAKER"),
		setInt(&cfg.Cluster.Threshold, "DIVISIONS_THRESHOLD"),
		setFloat(&cfg.Cluster.MergeFactor, "DIVISIONS_MERGE_FACTOR"),
		setInt(&cfg.Redis.DB, "REDIS_DB"),
	)
	return errors.Join(errs...)
}

func setString(dst *string, key string) {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) error {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fmt.Errorf("%s: %w", key, err)
	}
	*dst = n
	return nil
}

func setFloat(dst *float64, key string) error {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return fmt.Errorf("%s: %w", key, err)
	}
	*dst = f
	return nil
}

func setBool(dst *bool, key string) error {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fmt.Errorf("%s: %w", key, err)
	}
	*dst = b
	return nil
}

func setDuration(dst *time.Duration, key string) error {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fmt.Errorf("%s: %w", key, err)
	}
	*dst = d
	return nil
}
