package circuitbreaker

import (
	"sync"

	"github.com/edgegate/edgegate/internal/observability"
)

// Registry manages one circuit breaker per backend.
type Registry struct {
	breakers sync.Map
	config   *Config
	logger   observability.Logger
}

// NewRegistry creates a registry whose breakers share config.
func NewRegistry(config *Config, logger observability.Logger) *Registry {
	if config == nil {
		config = DefaultConfig()
	}
	if logger == nil {
		logger = observability.NopLogger()
	}

	return &Registry{
		config: config,
		logger: logger,
	}
}

// Get returns the breaker for a backend, or nil if none exists.
func (r *Registry) Get(name string) *CircuitBreaker {
	value, ok := r.breakers.Load(name)
	if !ok {
		return nil
	}
	return value.(*CircuitBreaker)
}

// GetOrCreate returns the breaker for a backend, creating it with the
// registry's shared config on first use.
func (r *Registry) GetOrCreate(name string) *CircuitBreaker {
	return r.GetOrCreateWithConfig(name, r.config)
}

// GetOrCreateWithConfig returns the breaker for a backend, creating it
// with the given config on first use.
func (r *Registry) GetOrCreateWithConfig(name string, config *Config) *CircuitBreaker {
	if value, ok := r.breakers.Load(name); ok {
		return value.(*CircuitBreaker)
	}

	cb := NewCircuitBreaker(name, config, r.logger)

	actual, loaded := r.breakers.LoadOrStore(name, cb)
	if loaded {
		return actual.(*CircuitBreaker)
	}

	r.logger.Debug("created circuit breaker",
		observability.String("backend", name))

	return cb
}

// Remove removes a breaker from the registry.
func (r *Registry) Remove(name string) {
	r.breakers.Delete(name)
}

// List returns all breakers in the registry.
func (r *Registry) List() []*CircuitBreaker {
	var breakers []*CircuitBreaker
	r.breakers.Range(func(key, value interface{}) bool {
		breakers = append(breakers, value.(*CircuitBreaker))
		return true
	})
	return breakers
}

// ResetAll resets all breakers to closed state.
func (r *Registry) ResetAll() {
	r.breakers.Range(func(key, value interface{}) bool {
		value.(*CircuitBreaker).Reset()
		return true
	})
}

// Stats returns a snapshot of every breaker's counters.
func (r *Registry) Stats() map[string]Stats {
	stats := make(map[string]Stats)
	r.breakers.Range(func(key, value interface{}) bool {
		stats[key.(string)] = value.(*CircuitBreaker).Stats()
		return true
	})
	return stats
}

// Count returns the number of breakers in the registry.
func (r *Registry) Count() int {
	count := 0
	r.breakers.Range(func(key, value interface{}) bool {
		count++
		return true
	})
	return count
}
