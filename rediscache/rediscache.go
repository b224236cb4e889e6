// Package rediscache implements divisions.Cache on Redis. Values are stored as
// JSON with a fixed TTL; every Redis failure is treated as a miss.
package rediscache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

// DefaultTTL keeps classifications and hashes for a week.
const DefaultTTL = 7 * 24 * time.Hour

// Config holds Redis connection configuration.
type Config struct {
	Addr     string
	Password string
	DB       int
	PoolSize int
	Prefix   string        // default: "divisions:"
	TTL      time.Duration // default: DefaultTTL
}

// Cache stores JSON values in Redis.
type Cache struct {
	client redis.UniversalClient
	prefix string
	ttl    time.Duration
	logger *slog.Logger
}

// New connects to Redis and verifies the connection.
func New(ctx context.Context, cfg Config) (*Cache, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
		PoolSize: cfg.PoolSize,
	})

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}
	return NewWithClient(client, cfg.Prefix, cfg.TTL), nil
}

// NewWithClient wraps an existing client.
func NewWithClient(client redis.UniversalClient, prefix string, ttl time.Duration) *Cache {
	if prefix == "" {
		prefix = "divisions:"
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Cache{client: client, prefix: prefix, ttl: ttl, logger: slog.Default()}
}

// Key hashes value so arbitrary URLs make short, safe keys.
func (c *Cache) Key(prefix, value string) string {
	sum := sha256.Sum256([]byte(value))
	return c.prefix + prefix + ":" + hex.EncodeToString(sum[:16])
}

// Get decodes the cached value into dest. Returns false on a miss or any error.
func (c *Cache) Get(ctx context.Context, key string, dest any) bool {
	val, err := c.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return false
	}
	if err != nil {
		c.logger.Debug("divisions: redis get failed", "key", key, "error", err.Error())
		return false
	}
	if err := json.Unmarshal(val, dest); err != nil {
		c.logger.Debug("divisions: cached value undecodable", "key", key, "error", err.Error())
		return false
	}
	return true
}

// Set stores value as JSON. Failures are logged and otherwise ignored.
func (c *Cache) Set(ctx context.Context, key string, value any) {
	data, err := json.Marshal(value)
	if err != nil {
		c.logger.Debug("divisions: cache value unencodable", "key", key, "error", err.Error())
		return
	}
	if err := c.client.Set(ctx, key, data, c.ttl).Err(); err != nil {
		c.logger.Debug("divisions: redis set failed", "key", key, "error", err.Error())
	}
}

// Close closes the Redis connection.
func (c *Cache) Close() error {
	return c.client.Close()
}
