package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/edgegate/edgegate/internal/config"
	"github.com/edgegate/edgegate/internal/observability"
)

func newTestRedisCache(t *testing.T) (*redisCache, *miniredis.Miniredis) {
	t.Helper()

	mr := miniredis.RunT(t)

	cfg := &config.CacheConfig{
		Enabled: true,
		Backend: BackendRedis,
		TTL:     config.Duration(time.Minute),
		Redis:   config.RedisConfig{Address: mr.Addr()},
	}

	c, err := newRedisCache(cfg, observability.NopLogger())
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })

	return c, mr
}

func TestRedisCacheSetGet(t *testing.T) {
	c, _ := newTestRedisCache(t)
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "k", []byte("value"), time.Minute))

	value, err := c.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, []byte("value"), value)
}

func TestRedisCacheMiss(t *testing.T) {
	c, _ := newTestRedisCache(t)

	_, err := c.Get(context.Background(), "absent")
	assert.ErrorIs(t, err, ErrCacheMiss)
}

func TestRedisCacheKeyPrefix(t *testing.T) {
	c, mr := newTestRedisCache(t)
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "k", []byte("v"), time.Minute))

	assert.True(t, mr.Exists(redisKeyPrefix+"k"))
}

func TestRedisCacheExpiration(t *testing.T) {
	c, mr := newTestRedisCache(t)
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "k", []byte("v"), time.Second))

	mr.FastForward(2 * time.Second)

	_, err := c.Get(ctx, "k")
	assert.ErrorIs(t, err, ErrCacheMiss)
}

func TestRedisCacheDelete(t *testing.T) {
	c, _ := newTestRedisCache(t)
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "k", []byte("v"), time.Minute))
	require.NoError(t, c.Delete(ctx, "k"))

	_, err := c.Get(ctx, "k")
	assert.ErrorIs(t, err, ErrCacheMiss)
}

func TestRedisCacheExists(t *testing.T) {
	c, _ := newTestRedisCache(t)
	ctx := context.Background()

	exists, err := c.Exists(ctx, "k")
	require.NoError(t, err)
	assert.False(t, exists)

	require.NoError(t, c.Set(ctx, "k", []byte("v"), time.Minute))

	exists, err = c.Exists(ctx, "k")
	require.NoError(t, err)
	assert.True(t, exists)
}

func TestRedisCacheBodySizeLimit(t *testing.T) {
	mr := miniredis.RunT(t)

	cfg := &config.CacheConfig{
		Enabled:      true,
		Backend:      BackendRedis,
		TTL:          config.Duration(time.Minute),
		MaxBodyBytes: 4,
		Redis:        config.RedisConfig{Address: mr.Addr()},
	}

	c, err := newRedisCache(cfg, observability.NopLogger())
	require.NoError(t, err)
	defer func() { _ = c.Close() }()

	assert.ErrorIs(t, c.Set(context.Background(), "k", []byte("too large"), 0), ErrValueTooLarge)
}

func TestNewRedisCacheConnectFailure(t *testing.T) {
	cfg := &config.CacheConfig{
		Enabled: true,
		Backend: BackendRedis,
		Redis:   config.RedisConfig{Address: "127.0.0.1:1"},
	}

	_, err := newRedisCache(cfg, observability.NopLogger())
	assert.Error(t, err)
}

func TestNewRedisCacheMissingAddress(t *testing.T) {
	cfg := &config.CacheConfig{Enabled: true, Backend: BackendRedis}

	_, err := newRedisCache(cfg, observability.NopLogger())
	assert.Error(t, err)
}
