package ratelimit

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/edgegate/edgegate/internal/ratelimit/store"
)

func TestTokenBucketAllowWithinBurst(t *testing.T) {
	l := NewTokenBucketLimiter(10, 5)
	defer func() { _ = l.Close() }()

	ctx := context.Background()

	for i := 0; i < 5; i++ {
		result, err := l.Allow(ctx, "client-a")
		require.NoError(t, err)
		assert.True(t, result.Allowed, "request %d within burst", i)
	}

	result, err := l.Allow(ctx, "client-a")
	require.NoError(t, err)
	assert.False(t, result.Allowed, "burst exhausted")
	assert.Positive(t, result.RetryAfter)
	assert.Equal(t, 5, result.Limit)
}

func TestTokenBucketRefill(t *testing.T) {
	// 100 tokens/sec so the bucket refills quickly.
	l := NewTokenBucketLimiter(100, 2)
	defer func() { _ = l.Close() }()

	ctx := context.Background()

	for i := 0; i < 2; i++ {
		result, err := l.Allow(ctx, "k")
		require.NoError(t, err)
		require.True(t, result.Allowed)
	}

	result, err := l.Allow(ctx, "k")
	require.NoError(t, err)
	require.False(t, result.Allowed)

	time.Sleep(50 * time.Millisecond)

	result, err = l.Allow(ctx, "k")
	require.NoError(t, err)
	assert.True(t, result.Allowed, "tokens refilled after waiting")
}

func TestTokenBucketRefillCapsAtBurst(t *testing.T) {
	l := NewTokenBucketLimiter(100, 3)
	defer func() { _ = l.Close() }()

	ctx := context.Background()

	// Drain, wait long enough to refill far beyond burst, then verify
	// only burst tokens are available.
	for i := 0; i < 3; i++ {
		_, err := l.Allow(ctx, "k")
		require.NoError(t, err)
	}
	time.Sleep(100 * time.Millisecond)

	allowed := 0
	for i := 0; i < 10; i++ {
		result, err := l.Allow(ctx, "k")
		require.NoError(t, err)
		if result.Allowed {
			allowed++
		}
	}
	assert.Equal(t, 3, allowed)
}

func TestTokenBucketIndependentKeys(t *testing.T) {
	l := NewTokenBucketLimiter(1, 1)
	defer func() { _ = l.Close() }()

	ctx := context.Background()

	resultA, err := l.Allow(ctx, "a")
	require.NoError(t, err)
	resultB, err := l.Allow(ctx, "b")
	require.NoError(t, err)

	assert.True(t, resultA.Allowed)
	assert.True(t, resultB.Allowed, "keys do not share buckets")
}

func TestTokenBucketAllowN(t *testing.T) {
	l := NewTokenBucketLimiter(1, 10)
	defer func() { _ = l.Close() }()

	ctx := context.Background()

	result, err := l.AllowN(ctx, "k", 8)
	require.NoError(t, err)
	assert.True(t, result.Allowed)

	result, err = l.AllowN(ctx, "k", 5)
	require.NoError(t, err)
	assert.False(t, result.Allowed)

	result, err = l.AllowN(ctx, "k", 2)
	require.NoError(t, err)
	assert.True(t, result.Allowed)
}

func TestTokenBucketReset(t *testing.T) {
	l := NewTokenBucketLimiter(0.001, 1)
	defer func() { _ = l.Close() }()

	ctx := context.Background()

	result, err := l.Allow(ctx, "k")
	require.NoError(t, err)
	require.True(t, result.Allowed)

	result, err = l.Allow(ctx, "k")
	require.NoError(t, err)
	require.False(t, result.Allowed)

	require.NoError(t, l.Reset(ctx, "k"))

	result, err = l.Allow(ctx, "k")
	require.NoError(t, err)
	assert.True(t, result.Allowed, "bucket recreated full after reset")
}

func TestTokenBucketConcurrentExactBudget(t *testing.T) {
	// Near-zero refill. Exactly burst requests may pass no matter how
	// many goroutines race.
	l := NewTokenBucketLimiter(0.0001, 50)
	defer func() { _ = l.Close() }()

	ctx := context.Background()

	var allowed atomic.Int64
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 10; j++ {
				result, err := l.Allow(ctx, "shared")
				if err == nil && result.Allowed {
					allowed.Add(1)
				}
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int64(50), allowed.Load())
}

func TestTokenBucketCleanup(t *testing.T) {
	l := NewTokenBucketLimiter(1, 1)
	defer func() { _ = l.Close() }()

	ctx := context.Background()
	_, err := l.Allow(ctx, "stale")
	require.NoError(t, err)

	l.Cleanup(0)

	_, ok := l.buckets.Load("stale")
	assert.False(t, ok)
}

func TestTokenBucketGetLimit(t *testing.T) {
	l := NewTokenBucketLimiter(25, 50)
	defer func() { _ = l.Close() }()

	limit := l.GetLimit("any")
	require.NotNil(t, limit)
	assert.Equal(t, float64(25), limit.Rate)
	assert.Equal(t, 50, limit.Burst)
}

func TestTokenBucketCloseIdempotent(t *testing.T) {
	l := NewTokenBucketLimiter(1, 1)
	assert.NoError(t, l.Close())
	assert.NoError(t, l.Close())
}

func TestTokenBucketDistributedStore(t *testing.T) {
	s := store.NewMemoryStore()
	defer func() { _ = s.Close() }()

	l := NewTokenBucketLimiter(0.001, 2, WithStore(s))
	defer func() { _ = l.Close() }()

	ctx := context.Background()

	for i := 0; i < 2; i++ {
		result, err := l.Allow(ctx, "k")
		require.NoError(t, err)
		assert.True(t, result.Allowed)
	}

	result, err := l.Allow(ctx, "k")
	require.NoError(t, err)
	assert.False(t, result.Allowed)

	// A second limiter sharing the store sees the same exhausted bucket.
	l2 := NewTokenBucketLimiter(0.001, 2, WithStore(s))
	defer func() { _ = l2.Close() }()

	result, err = l2.Allow(ctx, "k")
	require.NoError(t, err)
	assert.False(t, result.Allowed)
}

func TestTokenBucketDistributedConcurrentExactBudget(t *testing.T) {
	// Near-zero refill and a bucket of capacity 1: no matter how many
	// requests race on the shared store, exactly one is admitted.
	l := NewTokenBucketLimiter(0.0001, 1, WithStore(store.NewMemoryStore()))
	defer func() { _ = l.Close() }()

	ctx := context.Background()

	var allowed atomic.Int64
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			result, err := l.Allow(ctx, "shared")
			if err == nil && result.Allowed {
				allowed.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int64(1), allowed.Load())
}

// closeCountingStore records Close calls for ownership tests.
type closeCountingStore struct {
	store.Store
	closes atomic.Int32
}

func (s *closeCountingStore) Close() error {
	s.closes.Add(1)
	return s.Store.Close()
}

func TestTokenBucketCloseClosesStore(t *testing.T) {
	s := &closeCountingStore{Store: store.NewMemoryStore()}
	l := NewTokenBucketLimiter(1, 1, WithStore(s))

	require.NoError(t, l.Close())
	require.NoError(t, l.Close())

	assert.Equal(t, int32(1), s.closes.Load(), "store closed exactly once")
}

func TestNoopLimiter(t *testing.T) {
	l := NewNoopLimiter()
	ctx := context.Background()

	for i := 0; i < 1000; i++ {
		result, err := l.Allow(ctx, "any")
		require.NoError(t, err)
		require.True(t, result.Allowed)
	}

	assert.Nil(t, l.GetLimit("any"))
	assert.NoError(t, l.Reset(ctx, "any"))
}
