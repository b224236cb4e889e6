package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	divisions "github.com/armindomatias/go-divisions"
	"github.com/armindomatias/go-divisions/gemini"
	"github.com/armindomatias/go-divisions/internal/config"
	"github.com/armindomatias/go-divisions/internal/logging"
	"github.com/armindomatias/go-divisions/openai"
	"github.com/armindomatias/go-divisions/pgstore"
	"github.com/armindomatias/go-divisions/rediscache"
)

const service = "divisions"

// app wires configuration into a ready divisions.Config and owns every
// resource that must be released when the command ends.
type app struct {
	cfg     *config.Config
	runID   string
	logger  *slog.Logger
	engine  *divisions.Config
	store   *pgstore.Store
	closers []func() error
}

func newApp(ctx context.Context, flags *globalFlags, needClassifier bool) (*app, error) {
	cfg, err := config.Load(flags.configPath)
	if err != nil {
		return nil, err
	}
	if flags.model != "" {
		cfg.Model = flags.model
	}
	if flags.concurrency > 0 {
		cfg.Classify.MaxConcurrency = flags.concurrency
	}
	if flags.outputDir != "" {
		cfg.Output.Dir = flags.outputDir
	}

	runID := uuid.NewString()
	logger := logging.New(service, cfg.Log.Level, cfg.Log.Format).With("run_id", runID)
	slog.SetDefault(logger)

	caps, err := cfg.CapPolicies()
	if err != nil {
		return nil, err
	}

	a := &app{cfg: cfg, runID: runID, logger: logger}
	a.engine = &divisions.Config{
		Logger:                 logger,
		Model:                  cfg.Model,
		MaxRetries:             cfg.Classify.MaxRetries,
		BackoffBase:            cfg.Classify.BackoffBase,
		CallTimeout:            cfg.Classify.CallTimeout,
		InlineImages:           cfg.Classify.InlineImages,
		RateLimit:              cfg.RateLimit(),
		RateBurst:              cfg.Classify.RateBurst,
		Breaker:                cfg.BreakerSettings(service + "-vision"),
		Threshold:              cfg.Cluster.Threshold,
		MergeFactor:            cfg.Cluster.MergeFactor,
		CapPolicies:            caps,
		FingerprintConcurrency: cfg.Cluster.FingerprintConcurrency,
		OnPanic: func(tag string, r any) {
			logger.Error("divisions: recovered panic", "tag", tag, "panic", r)
		},
	}

	if err := a.setup(ctx, needClassifier); err != nil {
		_ = a.Close()
		return nil, err
	}
	return a, nil
}

func (a *app) setup(ctx context.Context, needClassifier bool) error {
	if needClassifier {
		classifier, err := a.classifier(ctx)
		if err != nil {
			return err
		}
		a.engine.Classifier = classifier
	}

	if a.cfg.Redis.Addr != "" {
		cache, err := rediscache.New(ctx, rediscache.Config{
			Addr:     a.cfg.Redis.Addr,
			Password: a.cfg.Redis.Password,
			DB:       a.cfg.Redis.DB,
			Prefix:   a.cfg.Redis.Prefix,
			TTL:      a.cfg.Redis.TTL,
		})
		if err != nil {
			return err
		}
		a.engine.Cache = cache
		a.closers = append(a.closers, cache.Close)
	}

	if a.cfg.Postgres.DSN != "" {
		store, err := pgstore.Open(ctx, a.cfg.Postgres.DSN)
		if err != nil {
			return err
		}
		a.store = store
		a.closers = append(a.closers, store.Close)
	}

	if a.cfg.Metrics.Addr != "" {
		a.engine.Metrics = divisions.NewMetrics(service)
		srv := &http.Server{
			Addr:              a.cfg.Metrics.Addr,
			Handler:           a.engine.Metrics.Handler(),
			ReadHeaderTimeout: 5 * time.Second,
		}
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				a.logger.Error("divisions: metrics server failed", "error", err.Error())
			}
		}()
		a.closers = append(a.closers, func() error {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return srv.Shutdown(ctx)
		})
	}
	return nil
}

func (a *app) classifier(ctx context.Context) (divisions.Classifier, error) {
	key := a.cfg.APIKey()
	switch a.cfg.Provider {
	case "gemini":
		c, err := gemini.New(ctx, key, a.engine)
		if err != nil {
			return nil, err
		}
		c.SetTemperature(a.cfg.Gemini.Temperature)
		a.closers = append(a.closers, c.Close)
		return c, nil
	default:
		if key == "" {
			return nil, fmt.Errorf("OPENAI_API_KEY environment variable not set")
		}
		c := openai.New(key)
		c.BaseURL = a.cfg.OpenAI.BaseURL
		c.Temperature = a.cfg.OpenAI.Temperature
		c.MaxTokens = a.cfg.OpenAI.MaxTokens
		c.JSONMode = a.cfg.OpenAI.JSONMode
		return c, nil
	}
}

// listingDir is the per-listing output folder.
func (a *app) listingDir(listingID string) string {
	if listingID == "" {
		listingID = "unknown"
	}
	return filepath.Join(a.cfg.Output.Dir, listingID)
}

// saveDivisions writes the divisions file and, when configured, the database.
func (a *app) saveDivisions(ctx context.Context, listingID string, byType map[string][]divisions.DivisionRecord) (string, error) {
	path := filepath.Join(a.listingDir(listingID), "divisions.json")
	if err := divisions.WriteDivisions(path, byType); err != nil {
		return "", err
	}
	if a.store != nil {
		if err := a.store.Save(ctx, listingID, a.runID, byType); err != nil {
			return path, err
		}
	}
	return path, nil
}

// Close releases resources in reverse order of acquisition.
func (a *app) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		errs = append(errs, a.closers[i]())
	}
	return errors.Join(errs...)
}
