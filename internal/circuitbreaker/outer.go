package circuitbreaker

import (
	"errors"
	"time"

	"github.com/sony/gobreaker"

	"github.com/edgegate/edgegate/internal/observability"
	"github.com/edgegate/edgegate/internal/util"
)

// OuterBreaker is a gateway-wide breaker sitting in front of the whole
// handler chain. Unlike the per-backend breakers it trips on the
// aggregate failure rate of the gateway itself, which catches systemic
// problems such as an exhausted connection pool or a dead upstream DNS.
type OuterBreaker struct {
	cb     *gobreaker.CircuitBreaker
	logger observability.Logger
}

// NewOuterBreaker creates the gateway-wide breaker. It opens when more
// than half of at least minRequests calls fail, and probes again after
// cooldown.
func NewOuterBreaker(minRequests uint32, cooldown time.Duration, logger observability.Logger) *OuterBreaker {
	if logger == nil {
		logger = observability.NopLogger()
	}

	o := &OuterBreaker{logger: logger}

	o.cb = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:    "gateway",
		Timeout: cooldown,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < minRequests {
				return false
			}
			return float64(counts.TotalFailures)/float64(counts.Requests) > 0.5
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("gateway breaker state changed",
				observability.String("from", from.String()),
				observability.String("to", to.String()))
		},
	})

	return o
}

// Execute runs fn under the gateway-wide breaker, mapping gobreaker's
// open-circuit errors to a CircuitOpenError.
func (o *OuterBreaker) Execute(fn func() error) error {
	_, err := o.cb.Execute(func() (interface{}, error) {
		return nil, fn()
	})

	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return util.NewCircuitOpenError("gateway", o.cb.State().String())
	}

	return err
}

// State returns the breaker's current state name.
func (o *OuterBreaker) State() string {
	return o.cb.State().String()
}
