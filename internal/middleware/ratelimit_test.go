package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/edgegate/edgegate/internal/observability"
	"github.com/edgegate/edgegate/internal/ratelimit"
)

func newRateLimitedHandler(t *testing.T, rate float64, burst int) http.Handler {
	t.Helper()

	limiter := ratelimit.NewTokenBucketLimiter(rate, burst)
	t.Cleanup(func() { limiter.Close() })

	mw := RouteRateLimit("orders", limiter, ratelimit.IPKeyFunc, nil, observability.NopLogger())
	return mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
}

func TestRouteRateLimitAllows(t *testing.T) {
	handler := newRateLimitedHandler(t, 100, 5)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "203.0.113.9:4455"
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "5", rec.Header().Get(HeaderRateLimitLimit))
	assert.NotEmpty(t, rec.Header().Get(HeaderRateLimitRemaining))
	assert.NotEmpty(t, rec.Header().Get(HeaderRateLimitReset))
}

func TestRouteRateLimitRejects(t *testing.T) {
	handler := newRateLimitedHandler(t, 0.0001, 2)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "203.0.113.9:4455"

	for i := 0; i < 2; i++ {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		require.Equal(t, http.StatusOK, rec.Code)
	}

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.NotEmpty(t, rec.Header().Get(HeaderRetryAfter))
	assert.Equal(t, "0", rec.Header().Get(HeaderRateLimitRemaining))
	assert.Contains(t, rec.Body.String(), "rate limit exceeded")
}

func TestRouteRateLimitIsolatesClients(t *testing.T) {
	handler := newRateLimitedHandler(t, 0.0001, 1)

	first := httptest.NewRequest(http.MethodGet, "/", nil)
	first.RemoteAddr = "203.0.113.9:4455"
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, first)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, first)
	require.Equal(t, http.StatusTooManyRequests, rec.Code)

	second := httptest.NewRequest(http.MethodGet, "/", nil)
	second.RemoteAddr = "198.51.100.7:4455"
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, second)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestServerRateLimiterShared(t *testing.T) {
	rl := NewServerRateLimiter(1, 2, false)
	defer rl.Close()

	assert.True(t, rl.Allow("203.0.113.9"))
	assert.True(t, rl.Allow("198.51.100.7"))
	assert.False(t, rl.Allow("192.0.2.1"), "shared bucket exhausted")
}

func TestServerRateLimiterPerClient(t *testing.T) {
	rl := NewServerRateLimiter(1, 1, true)
	defer rl.Close()

	assert.True(t, rl.Allow("203.0.113.9"))
	assert.False(t, rl.Allow("203.0.113.9"))
	assert.True(t, rl.Allow("198.51.100.7"), "each client has its own bucket")
}

func TestServerRateLimiterCleanup(t *testing.T) {
	rl := NewServerRateLimiter(1, 1, true)
	defer rl.Close()
	rl.clientTTL = time.Millisecond

	rl.Allow("203.0.113.9")

	time.Sleep(5 * time.Millisecond)
	rl.cleanup()

	rl.mu.Lock()
	defer rl.mu.Unlock()
	assert.Empty(t, rl.clients)
}

func TestServerRateLimitMiddleware(t *testing.T) {
	rl := NewServerRateLimiter(1, 1, false)
	defer rl.Close()

	handler := ServerRateLimit(rl, nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "203.0.113.9:4455"

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "1", rec.Header().Get(HeaderRetryAfter))
}
