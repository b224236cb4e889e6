package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	divisions "github.com/armindomatias/go-divisions"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "divisions.yaml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Classify.MaxRetries != divisions.DefaultMaxRetries || cfg.Cluster.Threshold != divisions.DefaultThreshold {
		t.Errorf("defaults not applied: %+v", cfg)
	}
	caps, err := cfg.CapPolicies()
	if err != nil {
		t.Fatalf("CapPolicies: %v", err)
	}
	if _, ok := caps["bedroom"]; !ok {
		t.Error("default cap policies missing bedroom")
	}
	if cfg.BreakerSettings("x") != nil {
		t.Error("breaker should be disabled by default")
	}
}

func TestLoad_YAML(t *testing.T) {
	path := writeConfig(t, `
provider: gemini
model: gemini-2.0-flash
gemini:
  api_key: g-key
classify:
  max_concurrency: 8
  call_timeout: 45s
  breaker:
    enabled: true
    consecutive_failures: 3
cluster:
  threshold: 12
  merge_factor: 2
  cap_policies:
    bedroom: {source: expected_bedrooms}
    suite: {source: expected_bedrooms}
    garage: {source: fixed, max: 1}
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Provider != "gemini" || cfg.Model != "gemini-2.0-flash" {
		t.Errorf("provider/model = %q/%q", cfg.Provider, cfg.Model)
	}
	if cfg.Classify.MaxConcurrency != 8 || cfg.Classify.CallTimeout != 45*time.Second {
		t.Errorf("classify = %+v", cfg.Classify)
	}
	if cfg.Classify.MaxRetries != divisions.DefaultMaxRetries {
		t.Errorf("unset max_retries = %d, want default", cfg.Classify.MaxRetries)
	}
	if cfg.Cluster.Threshold != 12 || cfg.Cluster.MergeFactor != 2 {
		t.Errorf("cluster = %+v", cfg.Cluster)
	}

	caps, err := cfg.CapPolicies()
	if err != nil {
		t.Fatalf("CapPolicies: %v", err)
	}
	if caps["suite"].Source != divisions.CapExpectedBedrooms {
		t.Errorf("suite policy = %+v", caps["suite"])
	}
	if caps["garage"].Source != divisions.CapFixed || caps["garage"].Max != 1 {
		t.Errorf("garage policy = %+v", caps["garage"])
	}
	if _, ok := caps["kitchen"]; ok {
		t.Error("explicit cap_policies should replace the defaults")
	}

	s := cfg.BreakerSettings("vision")
	if s == nil || s.Name != "vision" {
		t.Fatalf("BreakerSettings = %+v", s)
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	path := writeConfig(t, "model: from-yaml\nclassify:\n  max_concurrency: 2\n")
	t.Setenv("DIVISIONS_MODEL", "from-env")
	t.Setenv("DIVISIONS_MAX_CONCURRENCY", "7")
	t.Setenv("DIVISIONS_CALL_TIMEOUT", "2m")
	t.Setenv("DIVISIONS_INLINE_IMAGES", "true")
	t.Setenv("DIVISIONS_RATE_LIMIT", "2.5")
	t.Setenv("OPENAI_API_KEY", "sk-env")
	t.Setenv("DIVISIONS_PROVIDER", "openai")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Model != "from-env" || cfg.Classify.MaxConcurrency != 7 {
		t.Errorf("model/concurrency = %q/%d", cfg.Model, cfg.Classify.MaxConcurrency)
	}
	if cfg.Classify.CallTimeout != 2*time.Minute || !cfg.Classify.InlineImages {
		t.Errorf("classify = %+v", cfg.Classify)
	}
	if float64(cfg.RateLimit()) != 2.5 {
		t.Errorf("RateLimit() = %v", cfg.RateLimit())
	}
	if cfg.APIKey() != "sk-env" {
		t.Errorf("APIKey() = %q", cfg.APIKey())
	}
}

func TestLoad_BadEnv(t *testing.T) {
	t.Setenv("DIVISIONS_MAX_RETRIES", "three")
	t.Setenv("DIVISIONS_THRESHOLD", "x")

	_, err := Load("")
	if err == nil {
		t.Fatal("expected error")
	}
	for _, key := range []string{"DIVISIONS_MAX_RETRIES", "DIVISIONS_THRESHOLD"} {
		if !strings.Contains(err.Error(), key) {
			t.Errorf("error %q does not mention %s", err, key)
		}
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{name: "provider", mutate: func(c *Config) { c.Provider = "claude" }, want: "invalid provider"},
		{name: "concurrency", mutate: func(c *Config) { c.Classify.MaxConcurrency = 0 }, want: "max_concurrency"},
		{name: "retries", mutate: func(c *Config) { c.Classify.MaxRetries = 0 }, want: "max_retries"},
		{name: "backoff", mutate: func(c *Config) { c.Classify.BackoffBase = 0.5 }, want: "backoff_base"},
		{name: "threshold", mutate: func(c *Config) { c.Cluster.Threshold = 65 }, want: "threshold"},
		{name: "merge factor", mutate: func(c *Config) { c.Cluster.MergeFactor = 0.9 }, want: "merge_factor"},
		{name: "cap source", mutate: func(c *Config) {
			c.Cluster.CapPolicies = map[string]CapPolicyConfig{"bedroom": {Source: "floorplan"}}
		}, want: "cap policy bedroom"},
		{name: "cap max", mutate: func(c *Config) {
			c.Cluster.CapPolicies = map[string]CapPolicyConfig{"kitchen": {Source: "fixed", Max: -1}}
		}, want: "must not be negative"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			cfg := Default()
			tc.mutate(cfg)
			err := cfg.Validate()
			if err == nil || !strings.Contains(err.Error(), tc.want) {
				t.Errorf("Validate() = %v, want error containing %q", err, tc.want)
			}
		})
	}

	if err := Default().Validate(); err != nil {
		t.Errorf("Default().Validate() = %v", err)
	}
}
