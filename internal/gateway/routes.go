package gateway

import (
	"fmt"
	"net/http"

	"github.com/edgegate/edgegate/internal/cache"
	"github.com/edgegate/edgegate/internal/circuitbreaker"
	"github.com/edgegate/edgegate/internal/config"
	"github.com/edgegate/edgegate/internal/middleware"
	"github.com/edgegate/edgegate/internal/observability"
	"github.com/edgegate/edgegate/internal/ratelimit"
	"github.com/edgegate/edgegate/internal/ratelimit/store"
	"github.com/edgegate/edgegate/internal/router"
)

// rateLimitKeyPrefix namespaces distributed rate limit counters.
const rateLimitKeyPrefix = "edgegate:ratelimit:"

// loadRoutes compiles the routing table and assembles each route's
// handler chain. On success the new table replaces the old one
// atomically and the previous generation's resources are released.
func (g *Gateway) loadRoutes(cfg *config.GatewayConfig) error {
	newRouter := router.New()
	if err := newRouter.LoadRoutes(cfg.Routes); err != nil {
		return fmt.Errorf("failed to load routes: %w", err)
	}

	handlers := make(map[string]http.Handler, len(cfg.Routes))
	var closers []func() error

	for _, route := range newRouter.GetRoutes() {
		handler, routeClosers, err := g.buildRouteChain(cfg, route)
		if err != nil {
			for _, closeFn := range closers {
				_ = closeFn()
			}
			return fmt.Errorf("route %s: %w", route.Name, err)
		}
		handlers[route.Name] = handler
		closers = append(closers, routeClosers...)
	}

	g.mu.Lock()
	oldClosers := g.closers
	g.router = newRouter
	g.handlers = handlers
	g.closers = closers
	g.config = cfg
	g.mu.Unlock()

	for _, closeFn := range oldClosers {
		_ = closeFn()
	}

	return nil
}

// Reload replaces the routing table from a new configuration. In-flight
// requests finish on the old handlers; new requests see the new table.
func (g *Gateway) Reload(cfg *config.GatewayConfig) error {
	if cfg == nil {
		return fmt.Errorf("configuration is required")
	}

	if err := g.loadRoutes(cfg); err != nil {
		g.logger.Error("config reload rejected, keeping previous routes",
			observability.Error(err))
		return err
	}

	g.logger.Info("routes reloaded",
		observability.Int("routes", len(cfg.Routes)))

	return nil
}

// buildRouteChain assembles the middleware chain for one route in the
// fixed order: circuit breaker, rate limiter, auth, response cache,
// reverse proxy.
func (g *Gateway) buildRouteChain(
	cfg *config.GatewayConfig,
	route *router.CompiledRoute,
) (http.Handler, []func() error, error) {
	var (
		mws     []middleware.Middleware
		closers []func() error
	)

	breakerCfg := cfg.CircuitBreaker
	if route.Config.CircuitBreaker != nil {
		breakerCfg = *route.Config.CircuitBreaker
	}
	if breakerCfg.Enabled {
		breaker := g.breakers.GetOrCreateWithConfig(route.Name, circuitbreaker.FromConfig(breakerCfg))
		mws = append(mws, middleware.RouteBreaker(breaker))
	}

	limitCfg := cfg.RateLimit
	if route.Config.RateLimit != nil {
		limitCfg = *route.Config.RateLimit
	}
	if limitCfg.Enabled {
		limiter, err := g.newLimiter(limitCfg)
		if err != nil {
			return nil, closers, fmt.Errorf("failed to create rate limiter: %w", err)
		}
		closers = append(closers, limiter.Close)

		keyFunc := ratelimit.KeyFuncFromConfig(limitCfg, route.Name)
		mws = append(mws, middleware.RouteRateLimit(route.Name, limiter, keyFunc, g.metrics, g.logger))
	}

	authRequired := cfg.Auth.Enabled
	audiences := cfg.Auth.Audiences
	if route.Config.Auth != nil {
		authRequired = route.Config.Auth.Required
		if len(route.Config.Auth.Audiences) > 0 {
			audiences = route.Config.Auth.Audiences
		}
	}
	if authRequired {
		if g.validator == nil {
			return nil, closers, fmt.Errorf("route requires auth but no validator is configured")
		}
		mws = append(mws, middleware.RouteAuth(
			route.Name, g.validator,
			cfg.Auth.TokenHeader, cfg.Auth.TokenPrefix,
			audiences, g.metrics, g.logger))
	}

	cacheCfg := mergeCacheConfig(cfg.Cache, route.Config.Cache)
	if cacheCfg.Enabled {
		routeCache, err := cache.New(&cacheCfg, g.logger)
		if err != nil {
			return nil, closers, fmt.Errorf("failed to create response cache: %w", err)
		}
		closers = append(closers, routeCache.Close)

		mws = append(mws, middleware.RouteCache(route.Name, routeCache, cacheCfg.TTL.Duration(), cacheCfg.VaryHeaders, g.metrics, g.logger))
	}

	compiled := route
	proxyHandler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		g.forwarder.ServeRoute(w, r, compiled)
	})

	return middleware.Chain(mws...)(proxyHandler), closers, nil
}

// newLimiter creates a token bucket limiter backed by the configured
// counter store.
func (g *Gateway) newLimiter(cfg config.RateLimitConfig) (*ratelimit.TokenBucketLimiter, error) {
	opts := []ratelimit.TokenBucketOption{
		ratelimit.WithLogger(g.logger),
	}

	if cfg.Store == "redis" {
		redisStore, err := store.NewRedisStore(cfg.Redis.Address, cfg.Redis.Password, cfg.Redis.DB, rateLimitKeyPrefix)
		if err != nil {
			return nil, err
		}
		opts = append(opts, ratelimit.WithStore(redisStore))
	}

	return ratelimit.NewTokenBucketLimiter(cfg.Rate, cfg.Burst, opts...), nil
}

// mergeCacheConfig overlays a route's cache overrides on the gateway
// defaults. Zero-valued override fields inherit the default.
func mergeCacheConfig(def config.CacheConfig, override *config.CacheConfig) config.CacheConfig {
	if override == nil {
		return def
	}

	merged := *override
	if merged.Backend == "" {
		merged.Backend = def.Backend
	}
	if merged.TTL == 0 {
		merged.TTL = def.TTL
	}
	if merged.MaxEntries == 0 {
		merged.MaxEntries = def.MaxEntries
	}
	if merged.MaxBodyBytes == 0 {
		merged.MaxBodyBytes = def.MaxBodyBytes
	}
	if merged.Redis.Address == "" {
		merged.Redis = def.Redis
	}
	if len(merged.VaryHeaders) == 0 {
		merged.VaryHeaders = def.VaryHeaders
	}
	return merged
}
