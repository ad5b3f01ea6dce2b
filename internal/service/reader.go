// Package service provides the cached read models behind the public API.
package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/cosmicwatch/neo-watch-service/internal/domain"
)

const (
	asteroidsCacheKey = "cache:asteroids"
	statsCacheKey     = "cache:stats"

	recentAsteroidLimit = 50
)

// ReadStore is the database surface the reader needs.
type ReadStore interface {
	RecentAsteroids(ctx context.Context, limit int) ([]domain.AsteroidSummary, error)
	Stats(ctx context.Context) (domain.Stats, error)
	RiskAnalysis(ctx context.Context, asteroidID int64) (domain.RiskAnalysis, error)
}

// Cache is a string key-value cache with per-entry expiry. Implementations
// must treat a missing key as an error distinguishable only by the caller
// falling through to the store.
type Cache interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string, ttl time.Duration) error
}

// RedisCache adapts a redis client to the Cache interface.
type RedisCache struct {
	client *redis.Client
}

// NewRedisCache wraps client.
func NewRedisCache(client *redis.Client) *RedisCache {
	return &RedisCache{client: client}
}

func (c *RedisCache) Get(ctx context.Context, key string) (string, error) {
	return c.client.Get(ctx, key).Result()
}

func (c *RedisCache) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	return c.client.Set(ctx, key, value, ttl).Err()
}

// Reader serves the dashboard read models, fronting the store with a short
// lived cache. Every cache failure degrades to a direct store read; the cache
// is an optimization, never a dependency.
type Reader struct {
	store  ReadStore
	cache  Cache // nil disables caching
	logger *slog.Logger
	ttl    time.Duration
}

// NewReader creates a Reader. Pass a nil cache to serve straight from the
// store.
func NewReader(store ReadStore, cache Cache, logger *slog.Logger, ttl time.Duration) *Reader {
	return &Reader{store: store, cache: cache, logger: logger, ttl: ttl}
}

// Asteroids returns recent close approaches, newest first.
func (r *Reader) Asteroids(ctx context.Context) ([]domain.AsteroidSummary, error) {
	return cached(ctx, r, asteroidsCacheKey, func(ctx context.Context) ([]domain.AsteroidSummary, error) {
		return r.store.RecentAsteroids(ctx, recentAsteroidLimit)
	})
}

// Stats returns the aggregate dashboard counters.
func (r *Reader) Stats(ctx context.Context) (domain.Stats, error) {
	return cached(ctx, r, statsCacheKey, r.store.Stats)
}

// RiskAnalysis returns one asteroid's approach history. Histories are
// unbounded per asteroid, so they are served uncached.
func (r *Reader) RiskAnalysis(ctx context.Context, asteroidID int64) (domain.RiskAnalysis, error) {
	return r.store.RiskAnalysis(ctx, asteroidID)
}

// Invalidate drops the cached read models, forcing the next read to hit the
// store. Called after a successful ingest so dashboards pick up fresh rows
// before the TTL lapses.
func (r *Reader) Invalidate(ctx context.Context) {
	if r.cache == nil {
		return
	}
	for _, key := range []string{asteroidsCacheKey, statsCacheKey} {
		if err := r.cache.Set(ctx, key, "", time.Millisecond); err != nil {
			r.logger.Warn("cache invalidation failed", "key", key, "error", err)
		}
	}
}

// cached reads key from the cache, falling back to load on any miss or error
// and repopulating the cache on the way out.
func cached[T any](ctx context.Context, r *Reader, key string, load func(ctx context.Context) (T, error)) (T, error) {
	var zero T
	if r.cache != nil {
		if raw, err := r.cache.Get(ctx, key); err == nil && raw != "" {
			var value T
			if err := json.Unmarshal([]byte(raw), &value); err == nil {
				return value, nil
			}
			r.logger.Warn("discarding corrupt cache entry", "key", key)
		}
	}

	value, err := load(ctx)
	if err != nil {
		return zero, err
	}

	if r.cache != nil {
		raw, err := json.Marshal(value)
		if err != nil {
			return zero, fmt.Errorf("serialize cache entry %s: %w", key, err)
		}
		if err := r.cache.Set(ctx, key, string(raw), r.ttl); err != nil {
			r.logger.Warn("cache write failed", "key", key, "error", err)
		}
	}
	return value, nil
}
