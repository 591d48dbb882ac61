// Package main is the entry point for the edgegate API gateway.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/edgegate/edgegate/internal/cache"
	"github.com/edgegate/edgegate/internal/circuitbreaker"
	"github.com/edgegate/edgegate/internal/config"
	"github.com/edgegate/edgegate/internal/gateway"
	"github.com/edgegate/edgegate/internal/health"
	"github.com/edgegate/edgegate/internal/middleware"
	"github.com/edgegate/edgegate/internal/observability"
)

// Version information (set at build time).
var (
	version   = "dev"
	buildTime = "unknown"
	gitCommit = "unknown"
)

// cliFlags holds command line flags.
type cliFlags struct {
	configPath  string
	logLevel    string
	logFormat   string
	showVersion bool
}

func main() {
	flags := parseFlags()

	if flags.showVersion {
		printVersion()
		return
	}

	logger := initLogger(flags)
	defer func() { _ = logger.Sync() }()

	cfg := loadAndValidateConfig(flags.configPath, logger)

	app, err := newApplication(cfg, logger)
	if err != nil {
		logger.Fatal("failed to initialize gateway", observability.Error(err))
	}

	run(app, flags.configPath, logger)
}

// parseFlags parses command line flags.
func parseFlags() cliFlags {
	configPath := flag.String("config", getEnvOrDefault("EDGEGATE_CONFIG_PATH", "configs/gateway.yaml"),
		"Path to configuration file")
	logLevel := flag.String("log-level", getEnvOrDefault("EDGEGATE_LOG_LEVEL", "info"),
		"Log level (debug, info, warn, error)")
	logFormat := flag.String("log-format", getEnvOrDefault("EDGEGATE_LOG_FORMAT", "json"),
		"Log format (json, console)")
	showVersion := flag.Bool("version", false, "Show version information")
	flag.Parse()

	return cliFlags{
		configPath:  *configPath,
		logLevel:    *logLevel,
		logFormat:   *logFormat,
		showVersion: *showVersion,
	}
}

// printVersion prints version information.
func printVersion() {
	fmt.Printf("edgegate version %s\n", version)
	fmt.Printf("  Build time: %s\n", buildTime)
	fmt.Printf("  Git commit: %s\n", gitCommit)
}

// getEnvOrDefault returns the environment variable value or a default.
func getEnvOrDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

// initLogger initializes the global logger.
func initLogger(flags cliFlags) observability.Logger {
	logger, err := observability.NewLogger(observability.LogConfig{
		Level:  flags.logLevel,
		Format: flags.logFormat,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize logger: %v\n", err)
		os.Exit(1)
	}

	observability.SetGlobalLogger(logger)
	return logger
}

// loadAndValidateConfig loads the configuration and exits on failure.
func loadAndValidateConfig(configPath string, logger observability.Logger) *config.GatewayConfig {
	logger.Info("starting edgegate",
		observability.String("version", version),
		observability.String("config", configPath),
	)

	cfg, err := config.NewLoader().Load(configPath)
	if err != nil {
		logger.Fatal("failed to load configuration", observability.Error(err))
	}

	cfg.ApplyDefaults()

	if err := config.NewValidator().Validate(cfg); err != nil {
		logger.Fatal("invalid configuration", observability.Error(err))
	}

	logger.Info("configuration loaded",
		observability.Int("routes", len(cfg.Routes)),
		observability.Bool("auth", cfg.Auth.Enabled),
		observability.Bool("rate_limit", cfg.RateLimit.Enabled),
		observability.Bool("cache", cfg.Cache.Enabled),
	)

	return cfg
}

// application holds the running components.
type application struct {
	gateway *gateway.Gateway
	admin   *gateway.AdminServer
	checker *health.Checker
	metrics *observability.Metrics
	tracer  *observability.Tracer
	config  *config.GatewayConfig
}

// newApplication wires the gateway, metrics, tracing, health checks,
// and the admin server together.
func newApplication(cfg *config.GatewayConfig, logger observability.Logger) (*application, error) {
	metrics := observability.NewMetrics("edgegate")
	metrics.SetBuildInfo(version, gitCommit, buildTime)

	// Bridge the package-level collectors onto the admin registry.
	cache.RegisterMetrics(metrics.Registry())
	circuitbreaker.RegisterMetrics(metrics.Registry())
	if err := middleware.RegisterMetrics(metrics.Registry()); err != nil {
		return nil, fmt.Errorf("failed to register middleware metrics: %w", err)
	}

	var tracer *observability.Tracer
	if cfg.Tracing.Enabled {
		t, err := observability.NewTracer(observability.TracerConfig{
			ServiceName:  cfg.Tracing.ServiceName,
			OTLPEndpoint: cfg.Tracing.OTLPEndpoint,
			SamplingRate: cfg.Tracing.SamplingRate,
			Enabled:      true,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to initialize tracing: %w", err)
		}
		tracer = t
	}

	gw, err := gateway.New(cfg,
		gateway.WithLogger(logger),
		gateway.WithMetrics(metrics),
	)
	if err != nil {
		return nil, err
	}

	checker := health.NewChecker(version)
	checker.RegisterCheck("breakers", health.BreakerCheck(gw.Breakers()))
	if cfg.Auth.Enabled && cfg.Auth.JWKSURL != "" {
		checker.RegisterCheck("jwks", health.HTTPCheck(cfg.Auth.JWKSURL, nil))
	}

	var admin *gateway.AdminServer
	if cfg.Admin.Enabled {
		admin = gateway.NewAdminServer(cfg.Admin, gw, checker, metrics, logger)
	}

	return &application{
		gateway: gw,
		admin:   admin,
		checker: checker,
		metrics: metrics,
		tracer:  tracer,
		config:  cfg,
	}, nil
}

// run starts the gateway, watches the configuration file, and blocks
// until a shutdown signal arrives.
func run(app *application, configPath string, logger observability.Logger) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := app.gateway.Start(ctx); err != nil {
		logger.Fatal("failed to start gateway", observability.Error(err))
	}

	if app.admin != nil {
		if err := app.admin.Start(ctx); err != nil {
			logger.Fatal("failed to start admin server", observability.Error(err))
		}
	}

	watcher := startConfigWatcher(ctx, app, configPath, logger)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh

	logger.Info("shutdown signal received",
		observability.String("signal", sig.String()))

	shutdown(app, watcher, logger)
}

// startConfigWatcher begins watching the configuration file for hot
// reload. Watch failures are logged, not fatal; the gateway keeps
// serving its current routes.
func startConfigWatcher(
	ctx context.Context,
	app *application,
	configPath string,
	logger observability.Logger,
) *config.Watcher {
	watcher, err := config.NewWatcher(configPath, func(cfg *config.GatewayConfig) {
		cfg.ApplyDefaults()

		if err := config.NewValidator().Validate(cfg); err != nil {
			logger.Error("rejected config reload", observability.Error(err))
			return
		}

		if err := app.gateway.Reload(cfg); err != nil {
			logger.Error("failed to apply config reload", observability.Error(err))
		}
	}, config.WithLogger(logger))
	if err != nil {
		logger.Error("config watching disabled", observability.Error(err))
		return nil
	}

	if err := watcher.Start(ctx); err != nil {
		logger.Error("config watching disabled", observability.Error(err))
		return nil
	}

	return watcher
}

// shutdown drains and stops all components in dependency order.
func shutdown(app *application, watcher *config.Watcher, logger observability.Logger) {
	app.checker.SetDraining(true)

	shutdownCtx, cancel := context.WithTimeout(context.Background(),
		app.config.Server.ShutdownTimeout.Duration())
	defer cancel()

	if watcher != nil {
		if err := watcher.Stop(); err != nil {
			logger.Warn("config watcher stop failed", observability.Error(err))
		}
	}

	if err := app.gateway.Stop(shutdownCtx); err != nil {
		logger.Error("gateway shutdown failed", observability.Error(err))
	}

	if app.admin != nil {
		if err := app.admin.Stop(shutdownCtx); err != nil {
			logger.Warn("admin server shutdown failed", observability.Error(err))
		}
	}

	if app.tracer != nil {
		tracerCtx, tracerCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer tracerCancel()
		if err := app.tracer.Shutdown(tracerCtx); err != nil {
			logger.Warn("tracer shutdown failed", observability.Error(err))
		}
	}

	logger.Info("edgegate stopped")
}
