package middleware

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/edgegate/edgegate/internal/observability"
	"github.com/edgegate/edgegate/internal/ratelimit"
)

// RouteRateLimit returns a middleware enforcing the route's rate limit.
// Rejected requests get 429 with Retry-After and X-RateLimit-* headers.
// When the limiter itself fails the request is allowed through.
func RouteRateLimit(
	routeName string,
	limiter ratelimit.Limiter,
	keyFunc ratelimit.KeyFunc,
	gwMetrics *observability.Metrics,
	logger observability.Logger,
) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := keyFunc(r)

			result, err := limiter.Allow(r.Context(), key)
			if err != nil {
				logger.Warn("rate limiter unavailable, allowing request",
					observability.String("route", routeName),
					observability.Error(err))
				next.ServeHTTP(w, r)
				return
			}

			w.Header().Set(HeaderRateLimitLimit, strconv.Itoa(result.Limit))
			w.Header().Set(HeaderRateLimitRemaining, strconv.Itoa(result.Remaining))
			w.Header().Set(HeaderRateLimitReset, strconv.Itoa(int(result.ResetAfter.Seconds())))

			if !result.Allowed {
				if gwMetrics != nil {
					gwMetrics.RecordRateLimitHit(routeName)
				}
				metrics.requestsRejected.WithLabelValues(routeName, "rate_limit").Inc()

				retryAfter := int(result.RetryAfter.Seconds())
				if retryAfter < 1 {
					retryAfter = 1
				}
				w.Header().Set(HeaderRetryAfter, strconv.Itoa(retryAfter))

				writeJSONError(w, http.StatusTooManyRequests, "rate limit exceeded")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// DefaultClientTTL is how long an idle per-client limiter entry is kept.
const DefaultClientTTL = 10 * time.Minute

// clientEntry holds a limiter and its last access time for cleanup.
type clientEntry struct {
	limiter    *rate.Limiter
	lastAccess time.Time
}

// ServerRateLimiter applies a gateway-wide request rate limit, either
// shared or per client IP. It backstops the per-route limiters so a
// flood across many routes cannot saturate the listener.
type ServerRateLimiter struct {
	limiter   *rate.Limiter
	perClient bool
	clients   map[string]*clientEntry
	mu        sync.Mutex
	rps       int
	burst     int
	clientTTL time.Duration
	stopCh    chan struct{}
	stopOnce  sync.Once
}

// NewServerRateLimiter creates a server-wide rate limiter. With
// perClient set, each client IP gets its own bucket.
func NewServerRateLimiter(rps, burst int, perClient bool) *ServerRateLimiter {
	rl := &ServerRateLimiter{
		limiter:   rate.NewLimiter(rate.Limit(rps), burst),
		perClient: perClient,
		clients:   make(map[string]*clientEntry),
		rps:       rps,
		burst:     burst,
		clientTTL: DefaultClientTTL,
		stopCh:    make(chan struct{}),
	}

	if perClient {
		go rl.cleanupLoop()
	}

	return rl
}

// Allow reports whether a request from the given client is allowed.
func (rl *ServerRateLimiter) Allow(clientIP string) bool {
	if rl.perClient {
		return rl.allowPerClient(clientIP)
	}
	return rl.limiter.Allow()
}

// allowPerClient looks up or creates the client's bucket and consumes a
// token. A single critical section keeps lookup and lastAccess update
// race free.
func (rl *ServerRateLimiter) allowPerClient(clientIP string) bool {
	now := time.Now()

	rl.mu.Lock()
	entry, exists := rl.clients[clientIP]
	if !exists {
		entry = &clientEntry{
			limiter: rate.NewLimiter(rate.Limit(rl.rps), rl.burst),
		}
		rl.clients[clientIP] = entry
	}
	entry.lastAccess = now
	rl.mu.Unlock()

	return entry.limiter.Allow()
}

// cleanupLoop periodically drops idle client entries.
func (rl *ServerRateLimiter) cleanupLoop() {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			rl.cleanup()
		case <-rl.stopCh:
			return
		}
	}
}

// cleanup removes client entries idle longer than clientTTL.
func (rl *ServerRateLimiter) cleanup() {
	cutoff := time.Now().Add(-rl.clientTTL)

	rl.mu.Lock()
	defer rl.mu.Unlock()

	for ip, entry := range rl.clients {
		if entry.lastAccess.Before(cutoff) {
			delete(rl.clients, ip)
		}
	}
}

// Close stops the cleanup loop.
func (rl *ServerRateLimiter) Close() {
	rl.stopOnce.Do(func() {
		close(rl.stopCh)
	})
}

// ServerRateLimit returns a middleware applying the server-wide rate
// limit. It expects ClientIP to run earlier in the chain.
func ServerRateLimit(rl *ServerRateLimiter, gwMetrics *observability.Metrics) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			clientIP := clientIPOrRemote(r)

			if !rl.Allow(clientIP) {
				if gwMetrics != nil {
					gwMetrics.RecordRateLimitHit("server")
				}
				metrics.requestsRejected.WithLabelValues("server", "rate_limit").Inc()

				w.Header().Set(HeaderRetryAfter, "1")
				writeJSONError(w, http.StatusTooManyRequests, "rate limit exceeded")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
