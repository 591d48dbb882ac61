package circuitbreaker

import (
	"context"
	"sync"
	"time"

	"github.com/edgegate/edgegate/internal/observability"
	"github.com/edgegate/edgegate/internal/util"
)

// State represents the state of a circuit breaker.
type State int

const (
	// StateClosed indicates the circuit is closed and requests flow.
	StateClosed State = iota

	// StateOpen indicates the circuit is open and requests fail fast.
	StateOpen

	// StateHalfOpen indicates the circuit is probing the backend.
	StateHalfOpen
)

// String returns the string representation of the state.
func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// CircuitBreaker guards a single backend.
type CircuitBreaker struct {
	name   string
	config *Config
	logger observability.Logger

	mu    sync.RWMutex
	state State

	consecutiveFails int
	successes        int
	halfOpenRequests int

	lastFailure     time.Time
	lastStateChange time.Time
}

// NewCircuitBreaker creates a circuit breaker for the named backend.
func NewCircuitBreaker(name string, config *Config, logger observability.Logger) *CircuitBreaker {
	if config == nil {
		config = DefaultConfig()
	}
	config.applyDefaults()

	if logger == nil {
		logger = observability.NopLogger()
	}

	return &CircuitBreaker{
		name:            name,
		config:          config,
		logger:          logger,
		state:           StateClosed,
		lastStateChange: time.Now(),
	}
}

// Execute runs fn under breaker protection. When the circuit is open
// it returns a CircuitOpenError without calling fn.
func (cb *CircuitBreaker) Execute(ctx context.Context, fn func() error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	if !cb.Allow() {
		return util.NewCircuitOpenError(cb.name, cb.State().String())
	}

	err := fn()

	if cb.isSuccessful(err) {
		cb.RecordSuccess()
	} else {
		cb.RecordFailure()
	}

	return err
}

// Allow reports whether a request may proceed, transitioning from open
// to half-open once the cooldown has elapsed.
func (cb *CircuitBreaker) Allow() bool {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	var allowed bool

	switch cb.state {
	case StateClosed:
		allowed = true

	case StateOpen:
		if time.Since(cb.lastStateChange) >= cb.config.Cooldown {
			cb.transitionTo(StateHalfOpen)
			cb.halfOpenRequests = 1
			allowed = true
		}

	case StateHalfOpen:
		if cb.halfOpenRequests < cb.config.HalfOpenMax {
			cb.halfOpenRequests++
			allowed = true
		}
	}

	recordRequest(cb.name, allowed)

	return allowed
}

// RecordSuccess records a successful backend call.
func (cb *CircuitBreaker) RecordSuccess() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.successes++
	cb.consecutiveFails = 0

	recordSuccess(cb.name)

	if cb.state == StateHalfOpen && cb.successes >= cb.config.SuccessThreshold {
		cb.transitionTo(StateClosed)
	}
}

// RecordFailure records a failed backend call.
func (cb *CircuitBreaker) RecordFailure() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.consecutiveFails++
	cb.lastFailure = time.Now()

	recordFailure(cb.name)

	switch cb.state {
	case StateClosed:
		if cb.consecutiveFails >= cb.config.MaxFailures {
			cb.transitionTo(StateOpen)
		}

	case StateHalfOpen:
		// A failed probe reopens the circuit.
		cb.transitionTo(StateOpen)
	}
}

// transitionTo moves the breaker to a new state.
// Must be called with the lock held.
func (cb *CircuitBreaker) transitionTo(newState State) {
	oldState := cb.state
	cb.state = newState
	cb.lastStateChange = time.Now()

	cb.consecutiveFails = 0
	cb.successes = 0
	cb.halfOpenRequests = 0

	recordStateChange(cb.name, oldState, newState)

	cb.logger.Info("circuit breaker state changed",
		observability.String("backend", cb.name),
		observability.String("from", oldState.String()),
		observability.String("to", newState.String()))

	if cb.config.OnStateChange != nil {
		go cb.config.OnStateChange(cb.name, oldState, newState)
	}
}

// isSuccessful classifies the result of a backend call.
func (cb *CircuitBreaker) isSuccessful(err error) bool {
	if cb.config.IsSuccessful != nil {
		return cb.config.IsSuccessful(err)
	}
	return err == nil
}

// State returns the current state.
func (cb *CircuitBreaker) State() State {
	cb.mu.RLock()
	defer cb.mu.RUnlock()
	return cb.state
}

// Name returns the backend name this breaker guards.
func (cb *CircuitBreaker) Name() string {
	return cb.name
}

// Reset forces the breaker back to closed state.
func (cb *CircuitBreaker) Reset() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if cb.state != StateClosed {
		cb.transitionTo(StateClosed)
	} else {
		cb.consecutiveFails = 0
		cb.successes = 0
	}
}

// Stats returns a snapshot of the breaker's counters.
func (cb *CircuitBreaker) Stats() Stats {
	cb.mu.RLock()
	defer cb.mu.RUnlock()

	return Stats{
		State:            cb.state,
		ConsecutiveFails: cb.consecutiveFails,
		Successes:        cb.successes,
		LastFailure:      cb.lastFailure,
		LastStateChange:  cb.lastStateChange,
	}
}

// Stats holds circuit breaker counters.
type Stats struct {
	State            State
	ConsecutiveFails int
	Successes        int
	LastFailure      time.Time
	LastStateChange  time.Time
}
