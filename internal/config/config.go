// Package config provides YAML-based configuration for the gateway,
// including environment variable substitution, validation, and hot
// reload via file watching.
package config

import "time"

// GatewayConfig is the root configuration document.
type GatewayConfig struct {
	// Server configures the public HTTP listener.
	Server ServerConfig `yaml:"server"`

	// Admin configures the operational endpoint (metrics, health).
	Admin AdminConfig `yaml:"admin"`

	// Logging configures structured logging.
	Logging LoggingConfig `yaml:"logging"`

	// Tracing configures distributed tracing export.
	Tracing TracingConfig `yaml:"tracing"`

	// Auth configures JWT validation defaults for protected routes.
	Auth AuthConfig `yaml:"auth"`

	// RateLimit configures the default rate limiting policy.
	RateLimit RateLimitConfig `yaml:"rateLimit"`

	// Cache configures the default response cache policy.
	Cache CacheConfig `yaml:"cache"`

	// CircuitBreaker configures per-backend circuit breaker defaults.
	CircuitBreaker BreakerConfig `yaml:"circuitBreaker"`

	// Routes defines the routing table.
	Routes []Route `yaml:"routes"`
}

// ServerConfig configures the public HTTP listener.
type ServerConfig struct {
	Host            string   `yaml:"host"`
	Port            int      `yaml:"port"`
	ReadTimeout     Duration `yaml:"readTimeout"`
	WriteTimeout    Duration `yaml:"writeTimeout"`
	IdleTimeout     Duration `yaml:"idleTimeout"`
	ShutdownTimeout Duration `yaml:"shutdownTimeout"`

	// RateLimit configures the listener-wide rate limit that backstops
	// the per-route limiters.
	RateLimit ServerRateLimitConfig `yaml:"rateLimit"`
}

// ServerRateLimitConfig configures the gateway-wide request rate limit
// applied before route matching.
type ServerRateLimitConfig struct {
	Enabled bool `yaml:"enabled"`

	// RPS is the sustained request rate in requests per second.
	RPS int `yaml:"rps"`

	// Burst is the bucket capacity.
	Burst int `yaml:"burst"`

	// PerClient gives each client IP its own bucket instead of one
	// shared bucket for the whole listener.
	PerClient bool `yaml:"perClient"`
}

// AdminConfig configures the operational HTTP endpoint.
type AdminConfig struct {
	Enabled     bool   `yaml:"enabled"`
	Port        int    `yaml:"port"`
	MetricsPath string `yaml:"metricsPath"`
}

// LoggingConfig configures structured logging.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// TracingConfig configures OTLP trace export.
type TracingConfig struct {
	Enabled      bool    `yaml:"enabled"`
	OTLPEndpoint string  `yaml:"otlpEndpoint"`
	SamplingRate float64 `yaml:"samplingRate"`
	ServiceName  string  `yaml:"serviceName"`
}

// AuthConfig configures JWT validation.
type AuthConfig struct {
	Enabled bool `yaml:"enabled"`

	// Issuer is the required "iss" claim value.
	Issuer string `yaml:"issuer"`

	// Audiences lists acceptable "aud" claim values. A token must
	// carry at least one of them.
	Audiences []string `yaml:"audiences"`

	// JWKSURL is the endpoint serving the signing key set.
	JWKSURL string `yaml:"jwksUrl"`

	// JWKSRefreshInterval bounds how long fetched keys are reused.
	JWKSRefreshInterval Duration `yaml:"jwksRefreshInterval"`

	// ClockSkew is the acceptable leeway for time-based claims.
	ClockSkew Duration `yaml:"clockSkew"`

	// ResultCacheTTL bounds how long a validation verdict for a given
	// token is reused. Must stay short so revocation is not delayed.
	ResultCacheTTL Duration `yaml:"resultCacheTTL"`

	// ResultCacheSize bounds the number of cached verdicts.
	ResultCacheSize int `yaml:"resultCacheSize"`

	// TokenHeader is the header carrying the token. Defaults to
	// Authorization with a "Bearer " prefix.
	TokenHeader string `yaml:"tokenHeader"`
	TokenPrefix string `yaml:"tokenPrefix"`
}

// RateLimitConfig configures a token-bucket rate limiting policy.
type RateLimitConfig struct {
	Enabled bool `yaml:"enabled"`

	// Rate is the sustained refill rate in tokens per second.
	Rate float64 `yaml:"rate"`

	// Burst is the bucket capacity.
	Burst int `yaml:"burst"`

	// KeyBy selects the client identity: "clientIP", "header", or "route".
	KeyBy string `yaml:"keyBy"`

	// KeyHeader names the header used when KeyBy is "header".
	KeyHeader string `yaml:"keyHeader"`

	// Store selects the counter backend: "memory" or "redis".
	Store string `yaml:"store"`

	// Redis configures the redis store when selected.
	Redis RedisConfig `yaml:"redis"`
}

// RedisConfig configures a redis connection.
type RedisConfig struct {
	Address  string `yaml:"address"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// CacheConfig configures the response cache.
type CacheConfig struct {
	Enabled bool `yaml:"enabled"`

	// Backend selects the cache store: "memory" or "redis".
	Backend string `yaml:"backend"`

	// TTL is the default entry lifetime.
	TTL Duration `yaml:"ttl"`

	// MaxEntries bounds the in-memory cache size.
	MaxEntries int `yaml:"maxEntries"`

	// MaxBodyBytes bounds the size of a cacheable response body.
	MaxBodyBytes int64 `yaml:"maxBodyBytes"`

	// VaryHeaders lists request headers folded into the cache key, so
	// requests differing in any of them get separate entries.
	VaryHeaders []string `yaml:"varyHeaders,omitempty"`

	// Redis configures the redis backend when selected.
	Redis RedisConfig `yaml:"redis"`
}

// BreakerConfig configures circuit breaker defaults.
type BreakerConfig struct {
	Enabled bool `yaml:"enabled"`

	// MaxFailures is the consecutive failure count that opens the circuit.
	MaxFailures int `yaml:"maxFailures"`

	// Cooldown is how long an open circuit rejects before probing.
	Cooldown Duration `yaml:"cooldown"`

	// HalfOpenMax bounds concurrent probe requests while half-open.
	HalfOpenMax int `yaml:"halfOpenMax"`

	// SuccessThreshold is the probe success count that closes the circuit.
	SuccessThreshold int `yaml:"successThreshold"`
}

// Default ports and timeouts.
const (
	DefaultServerPort      = 8080
	DefaultAdminPort       = 9090
	DefaultShutdownTimeout = 30 * time.Second
)

// DefaultConfig returns a GatewayConfig with sensible defaults. Loaded
// configuration is merged over these values.
func DefaultConfig() *GatewayConfig {
	return &GatewayConfig{
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            DefaultServerPort,
			ReadTimeout:     Duration(30 * time.Second),
			WriteTimeout:    Duration(30 * time.Second),
			IdleTimeout:     Duration(120 * time.Second),
			ShutdownTimeout: Duration(DefaultShutdownTimeout),
			RateLimit: ServerRateLimitConfig{
				Enabled:   false,
				RPS:       1000,
				Burst:     2000,
				PerClient: true,
			},
		},
		Admin: AdminConfig{
			Enabled:     true,
			Port:        DefaultAdminPort,
			MetricsPath: "/metrics",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
		Tracing: TracingConfig{
			Enabled:      false,
			OTLPEndpoint: "localhost:4317",
			SamplingRate: 1.0,
			ServiceName:  "edgegate",
		},
		Auth: AuthConfig{
			Enabled:             false,
			JWKSRefreshInterval: Duration(15 * time.Minute),
			ClockSkew:           Duration(30 * time.Second),
			ResultCacheTTL:      Duration(30 * time.Second),
			ResultCacheSize:     10000,
			TokenHeader:         "Authorization",
			TokenPrefix:         "Bearer ",
		},
		RateLimit: RateLimitConfig{
			Enabled: false,
			Rate:    100,
			Burst:   100,
			KeyBy:   "clientIP",
			Store:   "memory",
		},
		Cache: CacheConfig{
			Enabled:      false,
			Backend:      "memory",
			TTL:          Duration(60 * time.Second),
			MaxEntries:   10000,
			MaxBodyBytes: 10 * 1024 * 1024,
		},
		CircuitBreaker: BreakerConfig{
			Enabled:          true,
			MaxFailures:      5,
			Cooldown:         Duration(30 * time.Second),
			HalfOpenMax:      1,
			SuccessThreshold: 1,
		},
	}
}

// ApplyDefaults fills zero-valued fields of c from DefaultConfig.
func (c *GatewayConfig) ApplyDefaults() {
	def := DefaultConfig()

	if c.Server.Host == "" {
		c.Server.Host = def.Server.Host
	}
	if c.Server.Port == 0 {
		c.Server.Port = def.Server.Port
	}
	if c.Server.ReadTimeout == 0 {
		c.Server.ReadTimeout = def.Server.ReadTimeout
	}
	if c.Server.WriteTimeout == 0 {
		c.Server.WriteTimeout = def.Server.WriteTimeout
	}
	if c.Server.IdleTimeout == 0 {
		c.Server.IdleTimeout = def.Server.IdleTimeout
	}
	if c.Server.ShutdownTimeout == 0 {
		c.Server.ShutdownTimeout = def.Server.ShutdownTimeout
	}
	if c.Server.RateLimit.RPS == 0 {
		c.Server.RateLimit.RPS = def.Server.RateLimit.RPS
	}
	if c.Server.RateLimit.Burst == 0 {
		c.Server.RateLimit.Burst = def.Server.RateLimit.Burst
	}

	if c.Admin.Port == 0 {
		c.Admin.Port = def.Admin.Port
	}
	if c.Admin.MetricsPath == "" {
		c.Admin.MetricsPath = def.Admin.MetricsPath
	}

	if c.Logging.Level == "" {
		c.Logging.Level = def.Logging.Level
	}
	if c.Logging.Format == "" {
		c.Logging.Format = def.Logging.Format
	}
	if c.Logging.Output == "" {
		c.Logging.Output = def.Logging.Output
	}

	if c.Tracing.ServiceName == "" {
		c.Tracing.ServiceName = def.Tracing.ServiceName
	}
	if c.Tracing.OTLPEndpoint == "" {
		c.Tracing.OTLPEndpoint = def.Tracing.OTLPEndpoint
	}
	if c.Tracing.SamplingRate == 0 {
		c.Tracing.SamplingRate = def.Tracing.SamplingRate
	}

	if c.Auth.JWKSRefreshInterval == 0 {
		c.Auth.JWKSRefreshInterval = def.Auth.JWKSRefreshInterval
	}
	if c.Auth.ClockSkew == 0 {
		c.Auth.ClockSkew = def.Auth.ClockSkew
	}
	if c.Auth.ResultCacheTTL == 0 {
		c.Auth.ResultCacheTTL = def.Auth.ResultCacheTTL
	}
	if c.Auth.ResultCacheSize == 0 {
		c.Auth.ResultCacheSize = def.Auth.ResultCacheSize
	}
	if c.Auth.TokenHeader == "" {
		c.Auth.TokenHeader = def.Auth.TokenHeader
	}
	if c.Auth.TokenPrefix == "" {
		c.Auth.TokenPrefix = def.Auth.TokenPrefix
	}

	if c.RateLimit.Rate == 0 {
		c.RateLimit.Rate = def.RateLimit.Rate
	}
	if c.RateLimit.Burst == 0 {
		c.RateLimit.Burst = def.RateLimit.Burst
	}
	if c.RateLimit.KeyBy == "" {
		c.RateLimit.KeyBy = def.RateLimit.KeyBy
	}
	if c.RateLimit.Store == "" {
		c.RateLimit.Store = def.RateLimit.Store
	}

	if c.Cache.Backend == "" {
		c.Cache.Backend = def.Cache.Backend
	}
	if c.Cache.TTL == 0 {
		c.Cache.TTL = def.Cache.TTL
	}
	if c.Cache.MaxEntries == 0 {
		c.Cache.MaxEntries = def.Cache.MaxEntries
	}
	if c.Cache.MaxBodyBytes == 0 {
		c.Cache.MaxBodyBytes = def.Cache.MaxBodyBytes
	}

	if c.CircuitBreaker.MaxFailures == 0 {
		c.CircuitBreaker.MaxFailures = def.CircuitBreaker.MaxFailures
	}
	if c.CircuitBreaker.Cooldown == 0 {
		c.CircuitBreaker.Cooldown = def.CircuitBreaker.Cooldown
	}
	if c.CircuitBreaker.HalfOpenMax == 0 {
		c.CircuitBreaker.HalfOpenMax = def.CircuitBreaker.HalfOpenMax
	}
	if c.CircuitBreaker.SuccessThreshold == 0 {
		c.CircuitBreaker.SuccessThreshold = def.CircuitBreaker.SuccessThreshold
	}
}
