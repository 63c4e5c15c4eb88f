package metrics

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestRedis(t *testing.T) *redis.Client {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{
		Addr: mr.Addr(),
	})
	t.Cleanup(func() { _ = client.Close() })

	return client
}

func TestNewRedisMetrics(t *testing.T) {
	client := setupTestRedis(t)

	rm := NewRedisMetrics(client)

	assert.NotNil(t, rm)
	assert.Equal(t, client, rm.client)
	assert.Equal(t, int64(0), rm.hits.Load())
	assert.Equal(t, int64(0), rm.misses.Load())
}

func TestRedisMetrics_Client(t *testing.T) {
	client := setupTestRedis(t)

	rm := NewRedisMetrics(client)

	// Client() should return the underlying client
	assert.Equal(t, client, rm.Client())
}

func TestRedisMetrics_ResetStats(t *testing.T) {
	client := setupTestRedis(t)

	rm := NewRedisMetrics(client)

	rm.hits.Store(100)
	rm.misses.Store(50)

	rm.ResetStats()

	assert.Equal(t, int64(0), rm.hits.Load())
	assert.Equal(t, int64(0), rm.misses.Load())
}

func TestRedisMetrics_UpdateHitRate(t *testing.T) {
	client := setupTestRedis(t)

	rm := NewRedisMetrics(client)

	// No hits/misses yet
	assert.NotPanics(t, func() {
		rm.updateHitRate()
	})

	rm.hits.Store(80)
	rm.misses.Store(20)

	assert.NotPanics(t, func() {
		rm.updateHitRate()
	})

	rm.hits.Store(0)
	rm.misses.Store(100)

	assert.NotPanics(t, func() {
		rm.updateHitRate()
	})
}

func TestRedisMetrics_Get(t *testing.T) {
	client := setupTestRedis(t)
	ctx := context.Background()

	rm := NewRedisMetrics(client)

	testKey := "test:metrics:get"

	// Cache miss
	_, err := rm.Get(ctx, testKey)
	assert.Error(t, err)
	assert.Equal(t, redis.Nil, err)
	assert.Equal(t, int64(0), rm.hits.Load())
	assert.Equal(t, int64(1), rm.misses.Load())

	// Set a value
	client.Set(ctx, testKey, "test-value", time.Minute)

	rm.ResetStats()

	// Cache hit
	val, err := rm.Get(ctx, testKey)
	assert.NoError(t, err)
	assert.Equal(t, "test-value", val)
	assert.Equal(t, int64(1), rm.hits.Load())
	assert.Equal(t, int64(0), rm.misses.Load())
}

func TestRedisMetrics_Set(t *testing.T) {
	client := setupTestRedis(t)
	ctx := context.Background()

	rm := NewRedisMetrics(client)

	testKey := "test:metrics:set"

	err := rm.Set(ctx, testKey, "test-value", time.Minute)
	assert.NoError(t, err)

	// Verify value was set
	val, err := client.Get(ctx, testKey).Result()
	assert.NoError(t, err)
	assert.Equal(t, "test-value", val)
}

func TestRedisMetrics_Del(t *testing.T) {
	client := setupTestRedis(t)
	ctx := context.Background()

	rm := NewRedisMetrics(client)

	testKey := "test:metrics:del"

	client.Set(ctx, testKey, "test-value", time.Minute)

	err := rm.Del(ctx, testKey)
	assert.NoError(t, err)

	// Verify key was deleted
	_, err = client.Get(ctx, testKey).Result()
	assert.Error(t, err)
	assert.Equal(t, redis.Nil, err)
}

func TestRedisMetrics_Exists(t *testing.T) {
	client := setupTestRedis(t)
	ctx := context.Background()

	rm := NewRedisMetrics(client)

	testKey := "test:metrics:exists"

	// Non-existent key
	count, err := rm.Exists(ctx, testKey)
	assert.NoError(t, err)
	assert.Equal(t, int64(0), count)

	client.Set(ctx, testKey, "test-value", time.Minute)

	count, err = rm.Exists(ctx, testKey)
	assert.NoError(t, err)
	assert.Equal(t, int64(1), count)
}

func TestRedisMetrics_Expire(t *testing.T) {
	client := setupTestRedis(t)
	ctx := context.Background()

	rm := NewRedisMetrics(client)

	testKey := "test:metrics:expire"

	client.Set(ctx, testKey, "test-value", 0) // No expiration

	err := rm.Expire(ctx, testKey, time.Second)
	assert.NoError(t, err)

	// Verify TTL is set
	ttl, err := client.TTL(ctx, testKey).Result()
	assert.NoError(t, err)
	assert.Greater(t, ttl, time.Duration(0))
	assert.LessOrEqual(t, ttl, time.Second)
}

func TestRedisMetrics_HitRateCalculation(t *testing.T) {
	client := setupTestRedis(t)
	ctx := context.Background()

	rm := NewRedisMetrics(client)

	testKey1 := "test:metrics:hit1"
	testKey2 := "test:metrics:hit2"

	client.Set(ctx, testKey1, "value1", time.Minute)

	rm.ResetStats()

	// Generate 2 hits and 1 miss
	_, _ = rm.Get(ctx, testKey1) // hit
	_, _ = rm.Get(ctx, testKey1) // hit
	_, _ = rm.Get(ctx, testKey2) // miss

	assert.Equal(t, int64(2), rm.hits.Load())
	assert.Equal(t, int64(1), rm.misses.Load())
}

func TestRedisMetrics_MultipleKeys(t *testing.T) {
	client := setupTestRedis(t)
	ctx := context.Background()

	rm := NewRedisMetrics(client)

	keys := []string{"test:multi:1", "test:multi:2", "test:multi:3"}

	for i, key := range keys {
		err := rm.Set(ctx, key, i, time.Minute)
		assert.NoError(t, err)
	}

	err := rm.Del(ctx, keys...)
	assert.NoError(t, err)

	for _, key := range keys {
		_, err := client.Get(ctx, key).Result()
		assert.Error(t, err)
	}
}
