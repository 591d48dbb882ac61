package middleware

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// middlewareMetrics holds Prometheus metrics shared by the middleware
// in this package.
type middlewareMetrics struct {
	panicsRecovered  prometheus.Counter
	requestsRejected *prometheus.CounterVec
}

//nolint:gochecknoglobals // Package-level metrics registered once
var metrics = &middlewareMetrics{
	panicsRecovered: promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "edgegate",
		Subsystem: "middleware",
		Name:      "panics_recovered_total",
		Help:      "Total number of panics recovered by the recovery middleware",
	}),
	requestsRejected: promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "edgegate",
		Subsystem: "middleware",
		Name:      "requests_rejected_total",
		Help:      "Requests rejected before reaching a backend, by reason",
	}, []string{"route", "reason"}),
}

// RegisterMetrics registers the middleware metrics with the given
// registry. promauto has already registered them with the default
// registry; this makes them visible on a custom one.
func RegisterMetrics(registry *prometheus.Registry) error {
	if err := registry.Register(metrics.panicsRecovered); err != nil {
		if _, ok := err.(prometheus.AlreadyRegisteredError); !ok {
			return err
		}
	}
	if err := registry.Register(metrics.requestsRejected); err != nil {
		if _, ok := err.(prometheus.AlreadyRegisteredError); !ok {
			return err
		}
	}
	return nil
}
