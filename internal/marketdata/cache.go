package marketdata

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"github.com/ajitpratap0/foliosim/internal/metrics"
	"github.com/ajitpratap0/foliosim/pkg/sim"
)

const (
	defaultHistoryTTL = 5 * time.Minute

	// Cache operations never block a fetch for long.
	cacheReadTimeout  = 500 * time.Millisecond
	cacheWriteTimeout = 2 * time.Second
)

// CachedProvider fronts a price provider with Redis cache-aside. Reads
// go through the instrumented client so hit rates show up in metrics;
// writes happen asynchronously so a slow Redis never delays a fetch.
type CachedProvider struct {
	inner sim.PriceProvider
	cache *metrics.RedisMetrics
	ttl   time.Duration
}

// NewCachedProvider wraps a provider with Redis caching.
func NewCachedProvider(inner sim.PriceProvider, cache *metrics.RedisMetrics, ttl time.Duration) *CachedProvider {
	if ttl <= 0 {
		ttl = defaultHistoryTTL
	}
	return &CachedProvider{
		inner: inner,
		cache: cache,
		ttl:   ttl,
	}
}

// GetHistory serves candles from cache when present, otherwise fetches
// from the inner provider and caches the result.
func (c *CachedProvider) GetHistory(ctx context.Context, symbol, interval string, lookback int) ([]sim.Candle, error) {
	key := historyKey(symbol, interval, lookback)

	readCtx, cancel := context.WithTimeout(ctx, cacheReadTimeout)
	cached, err := c.cache.Get(readCtx, key)
	cancel()

	if err == nil {
		var candles []sim.Candle
		if err := json.Unmarshal([]byte(cached), &candles); err == nil {
			log.Debug().
				Str("symbol", symbol).
				Str("cache_key", key).
				Msg("Cache hit for price history")
			return candles, nil
		}
		log.Warn().Err(err).Str("cache_key", key).Msg("Failed to unmarshal cached history, fetching fresh")
	} else if err != redis.Nil {
		log.Warn().Err(err).Str("cache_key", key).Msg("Redis error during cache lookup")
	}

	candles, err := c.inner.GetHistory(ctx, symbol, interval, lookback)
	if err != nil {
		return nil, err
	}

	// Store in cache without blocking the caller.
	go func() {
		writeCtx, cancel := context.WithTimeout(context.Background(), cacheWriteTimeout)
		defer cancel()

		data, err := json.Marshal(candles)
		if err != nil {
			log.Warn().Err(err).Str("cache_key", key).Msg("Failed to marshal history for cache")
			return
		}
		if err := c.cache.Set(writeCtx, key, data, c.ttl); err != nil {
			log.Warn().Err(err).Str("cache_key", key).Msg("Failed to cache price history")
		}
	}()

	return candles, nil
}

// Health checks Redis and, when the inner provider reports health,
// the inner provider too.
func (c *CachedProvider) Health(ctx context.Context) error {
	if err := c.cache.Client().Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis unhealthy: %w", err)
	}
	if h, ok := c.inner.(interface{ Health(context.Context) error }); ok {
		if err := h.Health(ctx); err != nil {
			return fmt.Errorf("inner provider unhealthy: %w", err)
		}
	}
	return nil
}

// Invalidate removes all cached history for a symbol.
func (c *CachedProvider) Invalidate(ctx context.Context, symbol string) error {
	pattern := fmt.Sprintf("foliosim:history:%s:*", symbol)

	client := c.cache.Client()
	iter := client.Scan(ctx, 0, pattern, 0).Iterator()
	count := 0
	for iter.Next(ctx) {
		if err := client.Del(ctx, iter.Val()).Err(); err != nil {
			log.Warn().Err(err).Str("key", iter.Val()).Msg("Failed to delete cache key")
		} else {
			count++
		}
	}
	if err := iter.Err(); err != nil {
		return fmt.Errorf("cache invalidation failed: %w", err)
	}

	log.Info().
		Str("symbol", symbol).
		Int("keys_deleted", count).
		Msg("Invalidated cached history")

	return nil
}

func historyKey(symbol, interval string, lookback int) string {
	return fmt.Sprintf("foliosim:history:%s:%s:%d", symbol, interval, lookback)
}
