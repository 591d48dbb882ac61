package gateway

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"sync"
	"sync/atomic"

	"github.com/edgegate/edgegate/internal/auth"
	"github.com/edgegate/edgegate/internal/circuitbreaker"
	"github.com/edgegate/edgegate/internal/config"
	"github.com/edgegate/edgegate/internal/middleware"
	"github.com/edgegate/edgegate/internal/observability"
	"github.com/edgegate/edgegate/internal/proxy"
	"github.com/edgegate/edgegate/internal/router"
	"github.com/edgegate/edgegate/internal/util"
)

// outerBreakerMinRequests is the minimum sample before the gateway-wide
// breaker may trip.
const outerBreakerMinRequests = 10

// State represents the gateway lifecycle state.
type State int32

const (
	// StateStopped indicates the gateway is stopped.
	StateStopped State = iota
	// StateStarting indicates the gateway is starting.
	StateStarting
	// StateRunning indicates the gateway is serving traffic.
	StateRunning
	// StateStopping indicates the gateway is shutting down.
	StateStopping
)

// String returns the string representation of the state.
func (s State) String() string {
	switch s {
	case StateStopped:
		return "stopped"
	case StateStarting:
		return "starting"
	case StateRunning:
		return "running"
	case StateStopping:
		return "stopping"
	default:
		return "unknown"
	}
}

// Gateway assembles the routing table and per-route middleware chains
// and serves them over HTTP.
type Gateway struct {
	config      *config.GatewayConfig
	logger      observability.Logger
	metrics     *observability.Metrics
	ipExtractor *middleware.ClientIPExtractor

	router        *router.Router
	forwarder     *proxy.Forwarder
	validator     auth.Validator
	breakers      *circuitbreaker.Registry
	outer         *circuitbreaker.OuterBreaker
	serverLimiter *middleware.ServerRateLimiter

	// handlers maps route names to their assembled middleware chains.
	// Swapped wholesale on reload.
	handlers map[string]http.Handler

	// closers is the current generation of per-route resources
	// (limiters, caches). Replaced on reload.
	closers []func() error

	// shutdownHooks outlive reloads and run once on Stop.
	shutdownHooks []func() error

	server *http.Server
	state  atomic.Int32
	mu     sync.RWMutex
}

// Option is a functional option for configuring the gateway.
type Option func(*Gateway)

// WithLogger sets the gateway logger.
func WithLogger(logger observability.Logger) Option {
	return func(g *Gateway) {
		g.logger = logger
	}
}

// WithMetrics sets the metrics sink.
func WithMetrics(metrics *observability.Metrics) Option {
	return func(g *Gateway) {
		g.metrics = metrics
	}
}

// WithValidator overrides the token validator. Without it the gateway
// builds one from the auth configuration when auth is enabled.
func WithValidator(validator auth.Validator) Option {
	return func(g *Gateway) {
		g.validator = validator
	}
}

// WithTrustedProxies sets the proxy CIDRs whose X-Forwarded-For headers
// are honored for client IP resolution.
func WithTrustedProxies(cidrs []string) Option {
	return func(g *Gateway) {
		g.ipExtractor = middleware.NewClientIPExtractor(cidrs)
	}
}

// New creates a gateway from the given configuration. Route handler
// chains are assembled eagerly so misconfiguration fails at startup
// rather than on first request.
func New(cfg *config.GatewayConfig, opts ...Option) (*Gateway, error) {
	if cfg == nil {
		return nil, fmt.Errorf("configuration is required: %w", util.ErrConfigInvalid)
	}

	g := &Gateway{
		config:      cfg,
		logger:      observability.NopLogger(),
		ipExtractor: middleware.NewClientIPExtractor(nil),
		router:      router.New(),
	}

	for _, opt := range opts {
		opt(g)
	}

	g.forwarder = proxy.NewForwarder(proxy.WithForwarderLogger(g.logger))
	g.breakers = circuitbreaker.NewRegistry(circuitbreaker.FromConfig(cfg.CircuitBreaker), g.logger)
	g.outer = circuitbreaker.NewOuterBreaker(outerBreakerMinRequests, cfg.CircuitBreaker.Cooldown.Duration(), g.logger)

	if srl := cfg.Server.RateLimit; srl.Enabled {
		g.serverLimiter = middleware.NewServerRateLimiter(srl.RPS, srl.Burst, srl.PerClient)
		g.closeOnShutdown(func() error {
			g.serverLimiter.Close()
			return nil
		})
	}

	if cfg.Auth.Enabled && g.validator == nil {
		validator, err := auth.NewTokenValidator(cfg.Auth, auth.WithValidatorLogger(g.logger))
		if err != nil {
			return nil, fmt.Errorf("failed to create token validator: %w", err)
		}
		g.validator = validator
		g.closeOnShutdown(validator.Close)
	}

	if err := g.loadRoutes(cfg); err != nil {
		return nil, err
	}

	g.state.Store(int32(StateStopped))

	return g, nil
}

func (g *Gateway) closeOnShutdown(fn func() error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.shutdownHooks = append(g.shutdownHooks, fn)
}

// Handler returns the gateway's root HTTP handler with the server-wide
// middleware applied.
func (g *Gateway) Handler() http.Handler {
	mws := []middleware.Middleware{
		middleware.RequestID(),
		middleware.Recovery(g.logger),
		middleware.ClientIP(g.ipExtractor),
	}
	if g.serverLimiter != nil {
		mws = append(mws, middleware.ServerRateLimit(g.serverLimiter, g.metrics))
	}
	mws = append(mws, g.matchRoute())

	chain := middleware.Chain(mws...)

	inner := http.HandlerFunc(g.dispatch)
	if g.metrics != nil {
		return chain(observability.MetricsMiddleware(g.metrics)(middleware.Logging(g.logger)(inner)))
	}
	return chain(middleware.Logging(g.logger)(inner))
}

// matchRoute resolves the request's route and stores the match on the
// context so metrics and logging see the route name. Unmatched requests
// continue down the chain and are answered 404 by dispatch.
func (g *Gateway) matchRoute() middleware.Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			g.mu.RLock()
			rt := g.router
			g.mu.RUnlock()

			result, err := rt.Match(r)
			if err == nil {
				ctx := util.ContextWithRouteName(r.Context(), result.Route.Name)
				if len(result.PathParams) > 0 {
					ctx = util.ContextWithPathParams(ctx, result.PathParams)
				}
				r = r.WithContext(ctx)
			}

			next.ServeHTTP(w, r)
		})
	}
}

// errUpstreamFailure marks a request whose backend answered 5xx. The
// response has already been written when it is returned.
var errUpstreamFailure = errors.New("upstream failure")

// dispatch runs the matched route's handler chain under the
// gateway-wide breaker.
func (g *Gateway) dispatch(w http.ResponseWriter, r *http.Request) {
	routeName := util.RouteNameFromContext(r.Context())
	if routeName == "" {
		g.notFound(w, r)
		return
	}

	g.mu.RLock()
	handler := g.handlers[routeName]
	g.mu.RUnlock()

	if handler == nil {
		g.notFound(w, r)
		return
	}

	err := g.outer.Execute(func() error {
		rw := util.NewStatusCapturingResponseWriter(w)
		handler.ServeHTTP(rw, r)

		if rw.StatusCode() >= http.StatusInternalServerError {
			return errUpstreamFailure
		}
		return nil
	})

	if errors.Is(err, util.ErrCircuitOpen) {
		// Rejected before the handler ran, nothing written yet.
		g.logger.Warn("gateway breaker rejected request",
			observability.String("path", r.URL.Path))

		w.Header().Set("Retry-After", "1")
		writeJSONError(w, http.StatusServiceUnavailable, "gateway overloaded")
	}
}

// notFound answers requests that matched no route.
func (g *Gateway) notFound(w http.ResponseWriter, r *http.Request) {
	err := util.NewRouteNotFoundError(r.Method, r.URL.Path)

	g.logger.Debug("no route matched",
		observability.String("method", r.Method),
		observability.String("path", r.URL.Path))

	writeJSONError(w, http.StatusNotFound, err.Error())
}

// writeJSONError writes a JSON error response with the given status.
func writeJSONError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = fmt.Fprintf(w, `{"error":%q,"message":%q}`, http.StatusText(status), message)
}

// Start begins serving on the configured listener. It returns once the
// listener is bound; serving continues in the background.
func (g *Gateway) Start(ctx context.Context) error {
	if !g.state.CompareAndSwap(int32(StateStopped), int32(StateStarting)) {
		return fmt.Errorf("gateway is not in stopped state")
	}

	addr := net.JoinHostPort(g.config.Server.Host, strconv.Itoa(g.config.Server.Port))

	g.server = &http.Server{
		Addr:         addr,
		Handler:      g.Handler(),
		ReadTimeout:  g.config.Server.ReadTimeout.Duration(),
		WriteTimeout: g.config.Server.WriteTimeout.Duration(),
		IdleTimeout:  g.config.Server.IdleTimeout.Duration(),
	}

	listener, err := net.Listen("tcp", addr)
	if err != nil {
		g.state.Store(int32(StateStopped))
		return fmt.Errorf("failed to bind %s: %w", addr, err)
	}

	g.logger.Info("gateway listening",
		observability.String("address", addr),
		observability.Int("routes", len(g.config.Routes)))

	go func() {
		if serveErr := g.server.Serve(listener); serveErr != nil && !errors.Is(serveErr, http.ErrServerClosed) {
			g.logger.Error("gateway server stopped", observability.Error(serveErr))
		}
	}()

	g.state.Store(int32(StateRunning))

	return nil
}

// Stop gracefully drains in-flight requests and releases per-route
// resources. The context bounds the drain.
func (g *Gateway) Stop(ctx context.Context) error {
	if !g.state.CompareAndSwap(int32(StateRunning), int32(StateStopping)) {
		return fmt.Errorf("gateway is not running")
	}
	defer g.state.Store(int32(StateStopped))

	shutdownCtx, cancel := context.WithTimeout(ctx, g.config.Server.ShutdownTimeout.Duration())
	defer cancel()

	var firstErr error
	if g.server != nil {
		if err := g.server.Shutdown(shutdownCtx); err != nil {
			firstErr = fmt.Errorf("server shutdown: %w", err)
		}
	}

	g.mu.Lock()
	closers := g.closers
	hooks := g.shutdownHooks
	g.closers = nil
	g.shutdownHooks = nil
	g.mu.Unlock()

	for _, closeFn := range append(closers, hooks...) {
		if err := closeFn(); err != nil && firstErr == nil {
			firstErr = err
		}
	}

	g.logger.Info("gateway stopped")

	return firstErr
}

// State returns the gateway lifecycle state.
func (g *Gateway) State() State {
	return State(g.state.Load())
}

// Breakers exposes the circuit breaker registry for health reporting.
func (g *Gateway) Breakers() *circuitbreaker.Registry {
	return g.breakers
}
