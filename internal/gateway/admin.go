package gateway

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/edgegate/edgegate/internal/config"
	"github.com/edgegate/edgegate/internal/health"
	"github.com/edgegate/edgegate/internal/observability"
)

// adminReadTimeout bounds admin endpoint reads. The admin surface only
// serves small GET requests.
const adminReadTimeout = 10 * time.Second

// AdminServer serves the operational endpoints: health probes, metrics,
// and circuit breaker state.
type AdminServer struct {
	config  config.AdminConfig
	logger  observability.Logger
	engine  *gin.Engine
	server  *http.Server
	checker *health.Checker
}

// NewAdminServer creates the admin server for the given gateway. The
// checker supplies the health and readiness probes.
func NewAdminServer(
	cfg config.AdminConfig,
	gw *Gateway,
	checker *health.Checker,
	metrics *observability.Metrics,
	logger observability.Logger,
) *AdminServer {
	if logger == nil {
		logger = observability.NopLogger()
	}

	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(gin.Recovery())

	engine.GET("/health", gin.WrapF(checker.HealthHandler()))
	engine.GET("/ready", gin.WrapF(checker.ReadinessHandler()))
	engine.GET("/live", gin.WrapF(checker.LivenessHandler()))

	metricsPath := cfg.MetricsPath
	if metricsPath == "" {
		metricsPath = "/metrics"
	}
	if metrics != nil {
		engine.GET(metricsPath, gin.WrapH(metrics.Handler()))
	}

	engine.GET("/admin/breakers", func(c *gin.Context) {
		c.JSON(http.StatusOK, gw.Breakers().Stats())
	})

	engine.GET("/admin/routes", func(c *gin.Context) {
		gw.mu.RLock()
		routes := gw.router.GetRoutes()
		gw.mu.RUnlock()

		summaries := make([]gin.H, 0, len(routes))
		for _, route := range routes {
			summaries = append(summaries, gin.H{
				"name":     route.Name,
				"path":     route.Config.Path.Value,
				"type":     route.Config.Path.Type,
				"priority": route.Priority,
			})
		}
		c.JSON(http.StatusOK, summaries)
	})

	return &AdminServer{
		config:  cfg,
		logger:  logger,
		engine:  engine,
		checker: checker,
	}
}

// Handler exposes the underlying engine, mainly for tests.
func (a *AdminServer) Handler() http.Handler {
	return a.engine
}

// Start binds the admin listener and serves in the background.
func (a *AdminServer) Start(ctx context.Context) error {
	addr := net.JoinHostPort("", strconv.Itoa(a.config.Port))

	a.server = &http.Server{
		Addr:        addr,
		Handler:     a.engine,
		ReadTimeout: adminReadTimeout,
	}

	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to bind admin listener %s: %w", addr, err)
	}

	a.logger.Info("admin server listening",
		observability.String("address", addr))

	go func() {
		if serveErr := a.server.Serve(listener); serveErr != nil && !errors.Is(serveErr, http.ErrServerClosed) {
			a.logger.Error("admin server stopped", observability.Error(serveErr))
		}
	}()

	return nil
}

// Stop shuts down the admin server.
func (a *AdminServer) Stop(ctx context.Context) error {
	if a.server == nil {
		return nil
	}
	return a.server.Shutdown(ctx)
}
