package ratelimit

import (
	"context"
	"io"
	"sync"
	"time"

	"github.com/edgegate/edgegate/internal/observability"
	"github.com/edgegate/edgegate/internal/ratelimit/store"
)

var _ io.Closer = (*TokenBucketLimiter)(nil)

// TokenBucketLimiter implements the token bucket algorithm. Each key
// owns a bucket of capacity burst; tokens refill lazily at the
// configured rate when the bucket is consulted, so no per-key ticker
// goroutines exist. A background sweep drops buckets idle longer than
// the TTL. The limiter owns its store: Close stops the sweep and
// closes the store.
type TokenBucketLimiter struct {
	store store.Store
	rate  float64
	burst int

	logger observability.Logger

	// In-memory state, used when no distributed store is configured.
	buckets sync.Map

	cleanupInterval time.Duration
	bucketTTL       time.Duration
	stopCleanup     chan struct{}
	cleanupOnce     sync.Once
}

// bucket is the token bucket state for a single key.
type bucket struct {
	tokens     float64
	lastUpdate time.Time
	mu         sync.Mutex
}

// TokenBucketOption is a functional option for the limiter.
type TokenBucketOption func(*TokenBucketLimiter)

// WithStore sets a distributed store for shared bucket state.
func WithStore(s store.Store) TokenBucketOption {
	return func(l *TokenBucketLimiter) {
		l.store = s
	}
}

// WithLogger sets the limiter's logger.
func WithLogger(logger observability.Logger) TokenBucketOption {
	return func(l *TokenBucketLimiter) {
		l.logger = logger
	}
}

// WithBucketTTL sets the sweep interval and bucket idle TTL.
func WithBucketTTL(cleanupInterval, bucketTTL time.Duration) TokenBucketOption {
	return func(l *TokenBucketLimiter) {
		l.cleanupInterval = cleanupInterval
		l.bucketTTL = bucketTTL
	}
}

// NewTokenBucketLimiter creates a token bucket limiter with the given
// refill rate (tokens per second) and burst capacity.
func NewTokenBucketLimiter(rate float64, burst int, opts ...TokenBucketOption) *TokenBucketLimiter {
	l := &TokenBucketLimiter{
		rate:            rate,
		burst:           burst,
		logger:          observability.NopLogger(),
		cleanupInterval: 5 * time.Minute,
		bucketTTL:       10 * time.Minute,
		stopCleanup:     make(chan struct{}),
	}

	for _, opt := range opts {
		opt(l)
	}

	go l.cleanupLoop()

	return l
}

// cleanupLoop periodically sweeps stale buckets.
func (l *TokenBucketLimiter) cleanupLoop() {
	ticker := time.NewTicker(l.cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			l.Cleanup(l.bucketTTL)
		case <-l.stopCleanup:
			return
		}
	}
}

// Close stops the background sweep and closes the distributed store
// when one is configured. Safe to call multiple times.
func (l *TokenBucketLimiter) Close() error {
	var err error
	l.cleanupOnce.Do(func() {
		close(l.stopCleanup)
		if l.store != nil {
			err = l.store.Close()
		}
	})
	return err
}

// Allow implements Limiter.
func (l *TokenBucketLimiter) Allow(ctx context.Context, key string) (*Result, error) {
	return l.AllowN(ctx, key, 1)
}

// AllowN implements Limiter.
func (l *TokenBucketLimiter) AllowN(ctx context.Context, key string, n int) (*Result, error) {
	if l.store == nil {
		return l.allowLocal(key, n)
	}
	return l.allowDistributed(ctx, key, n)
}

// allowLocal performs rate limiting using in-memory buckets.
func (l *TokenBucketLimiter) allowLocal(key string, n int) (*Result, error) {
	now := time.Now()

	value, _ := l.buckets.LoadOrStore(key, &bucket{
		tokens:     float64(l.burst),
		lastUpdate: now,
	})
	b := value.(*bucket)

	b.mu.Lock()
	defer b.mu.Unlock()

	// Lazy refill based on elapsed time, capped at the burst size.
	elapsed := now.Sub(b.lastUpdate).Seconds()
	b.tokens += elapsed * l.rate
	if b.tokens > float64(l.burst) {
		b.tokens = float64(l.burst)
	}
	b.lastUpdate = now

	allowed := b.tokens >= float64(n)
	if allowed {
		b.tokens -= float64(n)
	}

	return l.buildResult(allowed, b.tokens, n), nil
}

// allowDistributed performs rate limiting against the shared store.
// The refill and take run as a single atomic store operation, so
// concurrent requests and concurrent gateway instances never admit on
// a stale token count.
func (l *TokenBucketLimiter) allowDistributed(ctx context.Context, key string, n int) (*Result, error) {
	expiration := time.Duration(float64(l.burst)/l.rate+1) * time.Second

	allowed, tokens, err := l.store.TakeBucket(ctx, "tb:"+key, l.rate, l.burst, n, expiration)
	if err != nil {
		return nil, err
	}

	return l.buildResult(allowed, tokens, n), nil
}

// buildResult computes the Result bookkeeping from the post-check
// token count.
func (l *TokenBucketLimiter) buildResult(allowed bool, tokens float64, n int) *Result {
	remaining := int(tokens)
	if remaining < 0 {
		remaining = 0
	}

	resetAfter := time.Duration((float64(l.burst) - tokens) / l.rate * float64(time.Second))

	var retryAfter time.Duration
	if !allowed {
		retryAfter = time.Duration((float64(n) - tokens) / l.rate * float64(time.Second))
	}

	return &Result{
		Allowed:    allowed,
		Limit:      l.burst,
		Remaining:  remaining,
		ResetAfter: resetAfter,
		RetryAfter: retryAfter,
	}
}

// GetLimit implements Limiter.
func (l *TokenBucketLimiter) GetLimit(key string) *Limit {
	return &Limit{
		Rate:  l.rate,
		Burst: l.burst,
	}
}

// Reset implements Limiter.
func (l *TokenBucketLimiter) Reset(ctx context.Context, key string) error {
	l.buckets.Delete(key)

	if l.store != nil {
		stateKey := "tb:" + key
		if err := l.store.Delete(ctx, stateKey+":tokens"); err != nil {
			return err
		}
		if err := l.store.Delete(ctx, stateKey+":time"); err != nil {
			return err
		}
	}

	return nil
}

// Cleanup removes buckets idle longer than maxAge.
func (l *TokenBucketLimiter) Cleanup(maxAge time.Duration) {
	now := time.Now()

	l.buckets.Range(func(key, value interface{}) bool {
		b := value.(*bucket)
		b.mu.Lock()
		if now.Sub(b.lastUpdate) > maxAge {
			l.buckets.Delete(key)
		}
		b.mu.Unlock()
		return true
	})
}
