package planner

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/spherical-ai/spherical/libs/geo-engine/internal/cache"
	"github.com/spherical-ai/spherical/libs/geo-engine/internal/observability"
)

// CacheConfig configures the result cache.
type CacheConfig struct {
	TTL       time.Duration `yaml:"ttl"`
	Capacity  int           `yaml:"capacity"`
	KeyPrefix string        `yaml:"key_prefix"`
	Enabled   bool          `yaml:"enabled"`
}

// DefaultCacheConfig returns default cache configuration.
func DefaultCacheConfig() CacheConfig {
	return CacheConfig{
		TTL:       5 * time.Minute,
		Capacity:  100,
		KeyPrefix: "query:result:",
		Enabled:   true,
	}
}

// CachedResult is the stored envelope.
type CachedResult struct {
	Data       *ResultData `json:"data"`
	Confidence float64     `json:"confidence"`
	Intent     string      `json:"intent"`
	CachedAt   time.Time   `json:"cached_at"`
	ExpiresAt  time.Time   `json:"expires_at"`
}

// ResultCache stores successful query results keyed by plan cache key.
type ResultCache struct {
	client cache.Client
	logger *observability.Logger
	config CacheConfig
	now    func() time.Time
}

// NewResultCache wraps client. A nil client disables caching.
func NewResultCache(client cache.Client, logger *observability.Logger, config CacheConfig) *ResultCache {
	if logger == nil {
		logger = observability.NopLogger()
	}
	if config.TTL <= 0 {
		config.TTL = 5 * time.Minute
	}
	if config.KeyPrefix == "" {
		config.KeyPrefix = "query:result:"
	}
	return &ResultCache{
		client: client,
		logger: logger.WithComponent("result_cache"),
		config: config,
		now:    time.Now,
	}
}

// Get returns the cached result for key if present and not expired.
func (c *ResultCache) Get(ctx context.Context, key string) (*CachedResult, bool) {
	if !c.config.Enabled || c.client == nil {
		return nil, false
	}

	data, err := c.client.Get(ctx, c.config.KeyPrefix+key)
	if err != nil {
		if !errors.Is(err, cache.ErrCacheMiss) {
			c.logger.Debug().Err(err).Str("key", key).Msg("Cache get error")
		}
		return nil, false
	}

	var cached CachedResult
	if err := json.Unmarshal(data, &cached); err != nil {
		c.logger.Warn().Err(err).Str("key", key).Msg("Failed to unmarshal cached result")
		return nil, false
	}
	if c.now().After(cached.ExpiresAt) {
		return nil, false
	}

	c.logger.Debug().Str("key", key).Msg("Cache hit")
	return &cached, true
}

// Set stores a successful result.
func (c *ResultCache) Set(ctx context.Context, key string, res *QueryResult) error {
	if !c.config.Enabled || c.client == nil || !res.Success {
		return nil
	}

	now := c.now()
	data, err := json.Marshal(CachedResult{
		Data:       res.Data,
		Confidence: res.Metadata.Confidence,
		Intent:     res.Metadata.Intent,
		CachedAt:   now,
		ExpiresAt:  now.Add(c.config.TTL),
	})
	if err != nil {
		return fmt.Errorf("marshal result: %w", err)
	}

	if err := c.client.Set(ctx, c.config.KeyPrefix+key, data, c.config.TTL); err != nil {
		c.logger.Warn().Err(err).Str("key", key).Msg("Failed to cache result")
		return err
	}
	return nil
}

// Invalidate drops every cached result. Called after ingestion changes.
func (c *ResultCache) Invalidate(ctx context.Context) error {
	if c.client == nil {
		return nil
	}
	return c.client.DeleteByPrefix(ctx, c.config.KeyPrefix)
}

// Len returns the number of cached results, or 0 when unknown.
func (c *ResultCache) Len(ctx context.Context) int {
	if c.client == nil {
		return 0
	}
	n, err := c.client.Len(ctx)
	if err != nil {
		c.logger.Debug().Err(err).Msg("Cache size unavailable")
		return 0
	}
	return n
}
