package gateway

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/edgegate/edgegate/internal/auth"
	"github.com/edgegate/edgegate/internal/config"
	"github.com/edgegate/edgegate/internal/observability"
)

// testDestination converts an httptest server address to a destination.
func testDestination(t *testing.T, srv *httptest.Server) config.Destination {
	t.Helper()

	u, err := url.Parse(srv.URL)
	require.NoError(t, err)

	port, err := strconv.Atoi(u.Port())
	require.NoError(t, err)

	return config.Destination{Scheme: u.Scheme, Host: u.Hostname(), Port: port}
}

// testConfig builds a minimal gateway configuration around the routes.
func testConfig(routes ...config.Route) *config.GatewayConfig {
	cfg := config.DefaultConfig()
	cfg.Routes = routes
	return cfg
}

// allowAllValidator accepts any non-empty token.
type allowAllValidator struct {
	subject string
}

func (v *allowAllValidator) Validate(_ context.Context, token string) (*auth.Claims, error) {
	if token == "valid" {
		return &auth.Claims{Subject: v.subject}, nil
	}
	return nil, auth.ErrInvalidSignature
}

func (v *allowAllValidator) ValidateWithAudiences(ctx context.Context, token string, _ []string) (*auth.Claims, error) {
	return v.Validate(ctx, token)
}

func TestNewRequiresConfig(t *testing.T) {
	_, err := New(nil)
	assert.Error(t, err)
}

func TestGatewayProxiesMatchedRoute(t *testing.T) {
	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("orders"))
	}))
	defer backend.Close()

	cfg := testConfig(config.Route{
		Name:         "orders",
		Path:         config.PathMatch{Type: config.PathMatchPrefix, Value: "/api/orders"},
		Destinations: []config.Destination{testDestination(t, backend)},
	})

	gw, err := New(cfg)
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	gw.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/orders", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "orders", rec.Body.String())
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))
}

func TestGatewayUnmatchedRouteIs404(t *testing.T) {
	gw, err := New(testConfig())
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	gw.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/nope", nil))

	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Contains(t, rec.Body.String(), "no route found")
}

func TestGatewayDirectResponseRoute(t *testing.T) {
	cfg := testConfig(config.Route{
		Name: "status",
		Path: config.PathMatch{Type: config.PathMatchExact, Value: "/status"},
		DirectResponse: &config.DirectResponse{
			StatusCode: http.StatusOK,
			Body:       `{"status":"ok"}`,
		},
	})

	gw, err := New(cfg)
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	gw.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/status", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, `{"status":"ok"}`, rec.Body.String())
}

func TestGatewayServerWideRateLimit(t *testing.T) {
	cfg := testConfig(config.Route{
		Name: "status",
		Path: config.PathMatch{Type: config.PathMatchExact, Value: "/status"},
		DirectResponse: &config.DirectResponse{
			StatusCode: http.StatusOK,
			Body:       "ok",
		},
	})
	cfg.Server.RateLimit = config.ServerRateLimitConfig{
		Enabled: true,
		RPS:     1,
		Burst:   2,
	}

	gw, err := New(cfg)
	require.NoError(t, err)
	handler := gw.Handler()

	for i := 0; i < 2; i++ {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/status", nil))
		require.Equal(t, http.StatusOK, rec.Code, "request %d within burst", i)
	}

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/status", nil))

	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("Retry-After"))
}

func TestGatewayRateLimitsRoute(t *testing.T) {
	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	defer backend.Close()

	cfg := testConfig(config.Route{
		Name:         "orders",
		Path:         config.PathMatch{Type: config.PathMatchPrefix, Value: "/"},
		Destinations: []config.Destination{testDestination(t, backend)},
		RateLimit: &config.RateLimitConfig{
			Enabled: true,
			Rate:    0.0001,
			Burst:   2,
			KeyBy:   "clientIP",
		},
	})

	gw, err := New(cfg)
	require.NoError(t, err)
	handler := gw.Handler()

	req := httptest.NewRequest(http.MethodGet, "/x", nil)
	req.RemoteAddr = "203.0.113.9:4455"

	for i := 0; i < 2; i++ {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		require.Equal(t, http.StatusOK, rec.Code)
	}

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("Retry-After"))
}

func TestGatewayAuthProtectedRoute(t *testing.T) {
	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	defer backend.Close()

	cfg := testConfig(config.Route{
		Name:         "orders",
		Path:         config.PathMatch{Type: config.PathMatchPrefix, Value: "/"},
		Destinations: []config.Destination{testDestination(t, backend)},
		Auth:         &config.RouteAuth{Required: true},
	})

	gw, err := New(cfg, WithValidator(&allowAllValidator{subject: "user-1"}))
	require.NoError(t, err)
	handler := gw.Handler()

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/x", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	req := httptest.NewRequest(http.MethodGet, "/x", nil)
	req.Header.Set("Authorization", "Bearer valid")
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestGatewayAuthWithoutValidatorFails(t *testing.T) {
	cfg := testConfig(config.Route{
		Name: "orders",
		Path: config.PathMatch{Type: config.PathMatchPrefix, Value: "/"},
		Auth: &config.RouteAuth{Required: true},
	})

	_, err := New(cfg)
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "no validator")
}

func TestGatewayCachesRoute(t *testing.T) {
	hits := 0
	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits++
		_, _ = w.Write([]byte("payload"))
	}))
	defer backend.Close()

	cfg := testConfig(config.Route{
		Name:         "orders",
		Path:         config.PathMatch{Type: config.PathMatchPrefix, Value: "/"},
		Destinations: []config.Destination{testDestination(t, backend)},
		Cache: &config.CacheConfig{
			Enabled: true,
			TTL:     config.Duration(time.Minute),
		},
	})

	gw, err := New(cfg)
	require.NoError(t, err)
	handler := gw.Handler()

	for i := 0; i < 3; i++ {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/orders", nil))
		require.Equal(t, http.StatusOK, rec.Code)
		require.Equal(t, "payload", rec.Body.String())
	}

	assert.Equal(t, 1, hits, "repeat requests served from cache")
}

func TestGatewayBreakerOpensOnFailures(t *testing.T) {
	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer backend.Close()

	cfg := testConfig(config.Route{
		Name:         "orders",
		Path:         config.PathMatch{Type: config.PathMatchPrefix, Value: "/"},
		Destinations: []config.Destination{testDestination(t, backend)},
		CircuitBreaker: &config.BreakerConfig{
			Enabled:          true,
			MaxFailures:      2,
			Cooldown:         config.Duration(time.Minute),
			HalfOpenMax:      1,
			SuccessThreshold: 1,
		},
	})

	gw, err := New(cfg)
	require.NoError(t, err)
	handler := gw.Handler()

	for i := 0; i < 2; i++ {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/x", nil))
		require.Equal(t, http.StatusBadGateway, rec.Code)
	}

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/x", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, rec.Body.String(), "backend unavailable")
}

func TestGatewayReloadSwapsRoutes(t *testing.T) {
	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	defer backend.Close()

	dest := testDestination(t, backend)

	gw, err := New(testConfig(config.Route{
		Name:         "old",
		Path:         config.PathMatch{Type: config.PathMatchExact, Value: "/old"},
		Destinations: []config.Destination{dest},
	}))
	require.NoError(t, err)
	handler := gw.Handler()

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/old", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	require.NoError(t, gw.Reload(testConfig(config.Route{
		Name:         "new",
		Path:         config.PathMatch{Type: config.PathMatchExact, Value: "/new"},
		Destinations: []config.Destination{dest},
	})))

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/old", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/new", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestGatewayReloadRejectsBadConfig(t *testing.T) {
	gw, err := New(testConfig(config.Route{
		Name: "orders",
		Path: config.PathMatch{Type: config.PathMatchExact, Value: "/orders"},
		DirectResponse: &config.DirectResponse{
			StatusCode: http.StatusOK,
		},
	}))
	require.NoError(t, err)

	bad := testConfig(config.Route{
		Name: "broken",
		Path: config.PathMatch{Type: "bogus", Value: "/x"},
	})
	assert.Error(t, gw.Reload(bad))

	// Previous routes still serve.
	rec := httptest.NewRecorder()
	gw.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/orders", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestGatewayLifecycle(t *testing.T) {
	cfg := testConfig()
	cfg.Server.Host = "127.0.0.1"
	cfg.Server.Port = 0

	gw, err := New(cfg, WithLogger(observability.NopLogger()))
	require.NoError(t, err)
	require.Equal(t, StateStopped, gw.State())

	require.NoError(t, gw.Start(context.Background()))
	assert.Equal(t, StateRunning, gw.State())

	assert.Error(t, gw.Start(context.Background()), "double start rejected")

	require.NoError(t, gw.Stop(context.Background()))
	assert.Equal(t, StateStopped, gw.State())
}

func TestMergeCacheConfig(t *testing.T) {
	def := config.CacheConfig{
		Backend:      "memory",
		TTL:          config.Duration(time.Minute),
		MaxEntries:   100,
		MaxBodyBytes: 1024,
	}

	assert.Equal(t, def, mergeCacheConfig(def, nil))

	merged := mergeCacheConfig(def, &config.CacheConfig{Enabled: true})
	assert.True(t, merged.Enabled)
	assert.Equal(t, "memory", merged.Backend)
	assert.Equal(t, config.Duration(time.Minute), merged.TTL)

	merged = mergeCacheConfig(def, &config.CacheConfig{
		Enabled: true,
		TTL:     config.Duration(time.Second),
	})
	assert.Equal(t, config.Duration(time.Second), merged.TTL)
	assert.Equal(t, 100, merged.MaxEntries)
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "stopped", StateStopped.String())
	assert.Equal(t, "starting", StateStarting.String())
	assert.Equal(t, "running", StateRunning.String())
	assert.Equal(t, "stopping", StateStopping.String())
	assert.Equal(t, "unknown", State(99).String())
}
