package middleware

import (
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/edgegate/edgegate/internal/cache"
	"github.com/edgegate/edgegate/internal/config"
	"github.com/edgegate/edgegate/internal/observability"
)

func newCacheTestHandler(t *testing.T, status int) (http.Handler, *atomic.Int64) {
	t.Helper()

	store, err := cache.New(&config.CacheConfig{
		Enabled:    true,
		Backend:    cache.BackendMemory,
		TTL:        config.Duration(time.Minute),
		MaxEntries: 100,
	}, observability.NopLogger())
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	var backendHits atomic.Int64
	mw := RouteCache("orders", store, time.Minute, nil, nil, observability.NopLogger())
	handler := mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		backendHits.Add(1)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(`{"orders":[]}`))
	}))

	return handler, &backendHits
}

func TestRouteCacheMissThenHit(t *testing.T) {
	handler, backendHits := newCacheTestHandler(t, http.StatusOK)

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/orders", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, CacheStatusMiss, rec.Header().Get(HeaderCacheStatus))
	assert.Equal(t, int64(1), backendHits.Load())

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/orders", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, CacheStatusHit, rec.Header().Get(HeaderCacheStatus))
	assert.Equal(t, `{"orders":[]}`, rec.Body.String())
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	assert.Equal(t, int64(1), backendHits.Load(), "second request served from cache")
}

func TestRouteCacheSkipsNonGET(t *testing.T) {
	handler, backendHits := newCacheTestHandler(t, http.StatusOK)

	for i := 0; i < 2; i++ {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/orders", nil))
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Empty(t, rec.Header().Get(HeaderCacheStatus))
	}

	assert.Equal(t, int64(2), backendHits.Load())
}

func TestRouteCacheSkipsErrors(t *testing.T) {
	handler, backendHits := newCacheTestHandler(t, http.StatusBadGateway)

	for i := 0; i < 2; i++ {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/orders", nil))
		require.Equal(t, http.StatusBadGateway, rec.Code)
	}

	assert.Equal(t, int64(2), backendHits.Load(), "error responses are never cached")
}

func TestRouteCacheDistinguishesQueries(t *testing.T) {
	handler, backendHits := newCacheTestHandler(t, http.StatusOK)

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/orders?page=1", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/orders?page=2", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, CacheStatusMiss, rec.Header().Get(HeaderCacheStatus))

	assert.Equal(t, int64(2), backendHits.Load())
}

func TestRouteCacheDistinguishesVaryHeaders(t *testing.T) {
	store, err := cache.New(&config.CacheConfig{
		Enabled:    true,
		Backend:    cache.BackendMemory,
		TTL:        config.Duration(time.Minute),
		MaxEntries: 100,
	}, observability.NopLogger())
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	var backendHits atomic.Int64
	mw := RouteCache("orders", store, time.Minute, []string{"Accept-Language"}, nil, observability.NopLogger())
	handler := mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		backendHits.Add(1)
		_, _ = w.Write([]byte(r.Header.Get("Accept-Language")))
	}))

	get := func(lang string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodGet, "/orders", nil)
		req.Header.Set("Accept-Language", lang)
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		return rec
	}

	rec := get("en")
	require.Equal(t, CacheStatusMiss, rec.Header().Get(HeaderCacheStatus))

	rec = get("de")
	assert.Equal(t, CacheStatusMiss, rec.Header().Get(HeaderCacheStatus),
		"different vary header value gets its own entry")
	assert.Equal(t, "de", rec.Body.String())

	rec = get("en")
	assert.Equal(t, CacheStatusHit, rec.Header().Get(HeaderCacheStatus))
	assert.Equal(t, "en", rec.Body.String())

	assert.Equal(t, int64(2), backendHits.Load())
}

func TestRouteCacheDisabledBackend(t *testing.T) {
	store, err := cache.New(&config.CacheConfig{Enabled: false}, observability.NopLogger())
	require.NoError(t, err)

	var backendHits atomic.Int64
	mw := RouteCache("orders", store, time.Minute, nil, nil, observability.NopLogger())
	handler := mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		backendHits.Add(1)
	}))

	for i := 0; i < 2; i++ {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/orders", nil))
		require.Equal(t, http.StatusOK, rec.Code)
	}

	assert.Equal(t, int64(2), backendHits.Load(), "disabled cache always forwards")
}
