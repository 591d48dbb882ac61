package config

import (
	"fmt"
	"regexp"
	"strings"
)

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Path    string
	Message string
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	if e.Path != "" {
		return fmt.Sprintf("%s: %s", e.Path, e.Message)
	}
	return e.Message
}

// ValidationErrors is a collection of validation errors.
type ValidationErrors []ValidationError

// Error implements the error interface.
func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return "no validation errors"
	}
	if len(e) == 1 {
		return e[0].Error()
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("%d validation errors:\n", len(e)))
	for i, err := range e {
		sb.WriteString(fmt.Sprintf("  %d. %s\n", i+1, err.Error()))
	}
	return sb.String()
}

// HasErrors returns true if there are validation errors.
func (e ValidationErrors) HasErrors() bool {
	return len(e) > 0
}

// Validator validates gateway configuration.
type Validator struct {
	errors ValidationErrors
}

// NewValidator creates a new configuration validator.
func NewValidator() *Validator {
	return &Validator{errors: make(ValidationErrors, 0)}
}

// ValidateConfig validates a gateway configuration.
func ValidateConfig(config *GatewayConfig) error {
	return NewValidator().Validate(config)
}

// Validate validates the configuration and returns any errors.
func (v *Validator) Validate(config *GatewayConfig) error {
	v.errors = make(ValidationErrors, 0)

	if config == nil {
		v.addError("", "configuration is nil")
		return v.errors
	}

	v.validateServer(&config.Server)
	v.validateAuth(&config.Auth)
	v.validateRateLimit(&config.RateLimit, "rateLimit")
	v.validateCache(&config.Cache, "cache")
	v.validateBreaker(&config.CircuitBreaker, "circuitBreaker")
	v.validateRoutes(config.Routes)

	if v.errors.HasErrors() {
		return v.errors
	}
	return nil
}

func (v *Validator) validateServer(server *ServerConfig) {
	if server.Port < 1 || server.Port > 65535 {
		v.addError("server.port", "port must be between 1 and 65535")
	}
	if server.RateLimit.Enabled {
		if server.RateLimit.RPS <= 0 {
			v.addError("server.rateLimit.rps", "rps must be positive")
		}
		if server.RateLimit.Burst <= 0 {
			v.addError("server.rateLimit.burst", "burst must be positive")
		}
	}
}

func (v *Validator) validateAuth(auth *AuthConfig) {
	if !auth.Enabled {
		return
	}
	if auth.JWKSURL == "" {
		v.addError("auth.jwksUrl", "jwksUrl is required when auth is enabled")
	}
	if auth.Issuer == "" {
		v.addError("auth.issuer", "issuer is required when auth is enabled")
	}
}

func (v *Validator) validateRateLimit(rl *RateLimitConfig, path string) {
	if !rl.Enabled {
		return
	}
	if rl.Rate <= 0 {
		v.addError(path+".rate", "rate must be positive")
	}
	if rl.Burst <= 0 {
		v.addError(path+".burst", "burst must be positive")
	}
	switch rl.KeyBy {
	case "", "clientIP", "route":
	case "header":
		if rl.KeyHeader == "" {
			v.addError(path+".keyHeader", "keyHeader is required when keyBy is 'header'")
		}
	default:
		v.addError(path+".keyBy", fmt.Sprintf("unknown keyBy %q", rl.KeyBy))
	}
	switch rl.Store {
	case "", "memory":
	case "redis":
		if rl.Redis.Address == "" {
			v.addError(path+".redis.address", "redis address is required when store is 'redis'")
		}
	default:
		v.addError(path+".store", fmt.Sprintf("unknown store %q", rl.Store))
	}
}

func (v *Validator) validateCache(c *CacheConfig, path string) {
	if !c.Enabled {
		return
	}
	if c.TTL < 0 {
		v.addError(path+".ttl", "ttl must not be negative")
	}
	switch c.Backend {
	case "", "memory":
	case "redis":
		if c.Redis.Address == "" {
			v.addError(path+".redis.address", "redis address is required when backend is 'redis'")
		}
	default:
		v.addError(path+".backend", fmt.Sprintf("unknown backend %q", c.Backend))
	}
}

func (v *Validator) validateBreaker(b *BreakerConfig, path string) {
	if !b.Enabled {
		return
	}
	if b.MaxFailures <= 0 {
		v.addError(path+".maxFailures", "maxFailures must be positive")
	}
	if b.Cooldown <= 0 {
		v.addError(path+".cooldown", "cooldown must be positive")
	}
	if b.HalfOpenMax <= 0 {
		v.addError(path+".halfOpenMax", "halfOpenMax must be positive")
	}
	if b.SuccessThreshold <= 0 {
		v.addError(path+".successThreshold", "successThreshold must be positive")
	}
}

func (v *Validator) validateRoutes(routes []Route) {
	if len(routes) == 0 {
		v.addError("routes", "at least one route is required")
	}

	seen := make(map[string]bool, len(routes))
	for i, route := range routes {
		path := fmt.Sprintf("routes[%d]", i)

		if route.Name == "" {
			v.addError(path+".name", "name is required")
		} else if seen[route.Name] {
			v.addError(path+".name", fmt.Sprintf("duplicate route name %q", route.Name))
		}
		seen[route.Name] = true

		v.validatePathMatch(&route.Path, path+".path")

		for j, h := range route.Headers {
			v.validateMatchRule(h.Type, h.Value, fmt.Sprintf("%s.headers[%d]", path, j))
			if h.Name == "" {
				v.addError(fmt.Sprintf("%s.headers[%d].name", path, j), "name is required")
			}
		}
		for j, q := range route.QueryParams {
			v.validateMatchRule(q.Type, q.Value, fmt.Sprintf("%s.queryParams[%d]", path, j))
			if q.Name == "" {
				v.addError(fmt.Sprintf("%s.queryParams[%d].name", path, j), "name is required")
			}
		}

		if route.DirectResponse != nil {
			if route.DirectResponse.StatusCode < 100 || route.DirectResponse.StatusCode > 599 {
				v.addError(path+".directResponse.statusCode", "statusCode must be a valid HTTP status")
			}
		} else if len(route.Destinations) == 0 {
			v.addError(path+".destinations", "at least one destination is required")
		}

		for j, dest := range route.Destinations {
			destPath := fmt.Sprintf("%s.destinations[%d]", path, j)
			if dest.Host == "" {
				v.addError(destPath+".host", "host is required")
			}
			if dest.Port < 1 || dest.Port > 65535 {
				v.addError(destPath+".port", "port must be between 1 and 65535")
			}
			if dest.Weight < 0 {
				v.addError(destPath+".weight", "weight must not be negative")
			}
			switch dest.Scheme {
			case "", "http", "https":
			default:
				v.addError(destPath+".scheme", fmt.Sprintf("unknown scheme %q", dest.Scheme))
			}
		}

		if route.RateLimit != nil {
			v.validateRateLimit(route.RateLimit, path+".rateLimit")
		}
		if route.Cache != nil {
			v.validateCache(route.Cache, path+".cache")
		}
		if route.CircuitBreaker != nil {
			v.validateBreaker(route.CircuitBreaker, path+".circuitBreaker")
		}
	}
}

func (v *Validator) validatePathMatch(pm *PathMatch, path string) {
	if pm.Value == "" {
		v.addError(path+".value", "value is required")
	}

	switch pm.Type {
	case PathMatchExact, PathMatchPrefix, PathMatchParameter, PathMatchWildcard:
	case PathMatchRegex:
		if _, err := regexp.Compile(pm.Value); err != nil {
			v.addError(path+".value", fmt.Sprintf("invalid regex: %v", err))
		}
	case "":
		v.addError(path+".type", "type is required")
	default:
		v.addError(path+".type", fmt.Sprintf("unknown path match type %q", pm.Type))
	}
}

func (v *Validator) validateMatchRule(matchType, value, path string) {
	switch matchType {
	case "", MatchTypeExact, MatchTypePrefix, MatchTypePresent, MatchTypeAbsent:
	case MatchTypeRegex:
		if _, err := regexp.Compile(value); err != nil {
			v.addError(path+".value", fmt.Sprintf("invalid regex: %v", err))
		}
	default:
		v.addError(path+".type", fmt.Sprintf("unknown match type %q", matchType))
	}
}

func (v *Validator) addError(path, message string) {
	v.errors = append(v.errors, ValidationError{Path: path, Message: message})
}
