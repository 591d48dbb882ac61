package circuitbreaker

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	stateGauge = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "edgegate",
			Subsystem: "circuit_breaker",
			Name:      "state",
			Help:      "Current state of the circuit breaker (0=closed, 1=open, 2=half-open)",
		},
		[]string{"backend"},
	)

	requestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "edgegate",
			Subsystem: "circuit_breaker",
			Name:      "requests_total",
			Help:      "Total number of requests through circuit breakers",
		},
		[]string{"backend", "result"},
	)

	failuresTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "edgegate",
			Subsystem: "circuit_breaker",
			Name:      "failures_total",
			Help:      "Total number of failures recorded by circuit breakers",
		},
		[]string{"backend"},
	)

	successesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "edgegate",
			Subsystem: "circuit_breaker",
			Name:      "successes_total",
			Help:      "Total number of successes recorded by circuit breakers",
		},
		[]string{"backend"},
	)

	stateChangesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "edgegate",
			Subsystem: "circuit_breaker",
			Name:      "state_changes_total",
			Help:      "Total number of circuit breaker state changes",
		},
		[]string{"backend", "from", "to"},
	)
)

// RegisterMetrics registers the breaker metric collectors with the
// given registry. promauto places them on the default global registry,
// but the gateway serves /metrics from its own registry.
func RegisterMetrics(registry *prometheus.Registry) {
	registry.MustRegister(
		stateGauge,
		requestsTotal,
		failuresTotal,
		successesTotal,
		stateChangesTotal,
	)
}

func recordRequest(name string, allowed bool) {
	result := "allowed"
	if !allowed {
		result = "rejected"
	}
	requestsTotal.WithLabelValues(name, result).Inc()
}

func recordFailure(name string) {
	failuresTotal.WithLabelValues(name).Inc()
}

func recordSuccess(name string) {
	successesTotal.WithLabelValues(name).Inc()
}

func recordStateChange(name string, from, to State) {
	stateChangesTotal.WithLabelValues(name, from.String(), to.String()).Inc()
	stateGauge.WithLabelValues(name).Set(float64(to))
}
