package middleware

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/edgegate/edgegate/internal/cache"
	"github.com/edgegate/edgegate/internal/observability"
	"github.com/edgegate/edgegate/internal/util"
)

// cachedResponse is the stored envelope for a cached backend response.
type cachedResponse struct {
	StatusCode int         `json:"statusCode"`
	Headers    http.Header `json:"headers"`
	Body       []byte      `json:"body"`
}

// RouteCache returns a middleware that serves GET responses from the
// route's response cache. The cache key covers method, path, query,
// and the configured vary headers. Only 2xx responses are stored.
// Cache state is reported in the X-Cache header.
func RouteCache(
	routeName string,
	store cache.Cache,
	ttl time.Duration,
	varyHeaders []string,
	gwMetrics *observability.Metrics,
	logger observability.Logger,
) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Method != http.MethodGet {
				next.ServeHTTP(w, r)
				return
			}

			key := cache.HashKey(cache.RequestKeyForRoute(routeName, r, varyHeaders))

			if data, err := store.Get(r.Context(), key); err == nil {
				var cached cachedResponse
				if err := json.Unmarshal(data, &cached); err == nil {
					if gwMetrics != nil {
						gwMetrics.RecordCacheLookup(routeName, "hit")
					}
					serveCachedResponse(w, &cached)
					return
				}
				// Unreadable entry, drop it and fall through to the backend.
				_ = store.Delete(r.Context(), key)
			} else if !errors.Is(err, cache.ErrCacheMiss) && !errors.Is(err, cache.ErrCacheDisabled) {
				logger.Warn("cache lookup failed",
					observability.String("route", routeName),
					observability.Error(err))
			}

			if gwMetrics != nil {
				gwMetrics.RecordCacheLookup(routeName, "miss")
			}

			recorder := newResponseRecorder(w)
			recorder.Header().Set(HeaderCacheStatus, CacheStatusMiss)
			next.ServeHTTP(recorder, r)

			if recorder.status < http.StatusOK || recorder.status >= http.StatusMultipleChoices {
				return
			}

			cached := cachedResponse{
				StatusCode: recorder.status,
				Headers:    recorder.Header().Clone(),
				Body:       recorder.body,
			}
			cached.Headers.Del(HeaderCacheStatus)

			data, err := json.Marshal(&cached)
			if err != nil {
				return
			}

			if err := store.Set(r.Context(), key, data, ttl); err != nil &&
				!errors.Is(err, cache.ErrValueTooLarge) && !errors.Is(err, cache.ErrCacheDisabled) {
				logger.Warn("cache store failed",
					observability.String("route", routeName),
					observability.Error(err))
			}
		})
	}
}

// serveCachedResponse replays a cached response to the client.
func serveCachedResponse(w http.ResponseWriter, cached *cachedResponse) {
	for k, vv := range cached.Headers {
		for _, v := range vv {
			w.Header().Add(k, v)
		}
	}
	w.Header().Set(HeaderCacheStatus, CacheStatusHit)
	w.WriteHeader(cached.StatusCode)
	_, _ = w.Write(cached.Body)
}

// responseRecorder tees the response to the client while buffering the
// body for cache storage.
type responseRecorder struct {
	*util.StatusCapturingResponseWriter
	status int
	body   []byte
}

func newResponseRecorder(w http.ResponseWriter) *responseRecorder {
	return &responseRecorder{
		StatusCapturingResponseWriter: util.NewStatusCapturingResponseWriter(w),
		status:                        http.StatusOK,
	}
}

func (rr *responseRecorder) WriteHeader(code int) {
	rr.status = code
	rr.StatusCapturingResponseWriter.WriteHeader(code)
}

func (rr *responseRecorder) Write(b []byte) (int, error) {
	rr.body = append(rr.body, b...)
	return rr.StatusCapturingResponseWriter.Write(b)
}
