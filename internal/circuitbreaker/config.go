// Package circuitbreaker isolates failing backends. A breaker tracks
// consecutive failures per backend and fails fast while the backend is
// degraded, probing it again after a cooldown.
package circuitbreaker

import (
	"time"

	"github.com/edgegate/edgegate/internal/config"
)

// Config holds configuration for a circuit breaker.
type Config struct {
	// MaxFailures is the number of consecutive failures before the
	// circuit opens.
	MaxFailures int

	// Cooldown is how long the circuit stays open before it starts
	// probing the backend in half-open state.
	Cooldown time.Duration

	// HalfOpenMax is the maximum number of concurrent probe requests
	// allowed in half-open state.
	HalfOpenMax int

	// SuccessThreshold is the number of probe successes needed to
	// close the circuit from half-open state.
	SuccessThreshold int

	// IsSuccessful decides whether an error counts as a success.
	// If nil, any non-nil error is a failure.
	IsSuccessful func(err error) bool

	// OnStateChange is called when the breaker changes state.
	OnStateChange func(name string, from, to State)
}

// DefaultConfig returns a Config with default values.
func DefaultConfig() *Config {
	return &Config{
		MaxFailures:      5,
		Cooldown:         30 * time.Second,
		HalfOpenMax:      1,
		SuccessThreshold: 1,
	}
}

// FromConfig builds a breaker Config from gateway configuration.
func FromConfig(cfg config.BreakerConfig) *Config {
	c := &Config{
		MaxFailures:      cfg.MaxFailures,
		Cooldown:         cfg.Cooldown.Duration(),
		HalfOpenMax:      cfg.HalfOpenMax,
		SuccessThreshold: cfg.SuccessThreshold,
	}
	c.applyDefaults()
	return c
}

// applyDefaults replaces out-of-range values with defaults.
func (c *Config) applyDefaults() {
	def := DefaultConfig()
	if c.MaxFailures < 1 {
		c.MaxFailures = def.MaxFailures
	}
	if c.Cooldown < time.Millisecond {
		c.Cooldown = def.Cooldown
	}
	if c.HalfOpenMax < 1 {
		c.HalfOpenMax = def.HalfOpenMax
	}
	if c.SuccessThreshold < 1 {
		c.SuccessThreshold = def.SuccessThreshold
	}
}
