package middleware

import (
	"net/http"

	"github.com/edgegate/edgegate/internal/circuitbreaker"
	"github.com/edgegate/edgegate/internal/util"
)

// RouteBreaker returns a middleware guarding the route's backend with
// the given circuit breaker. Requests are rejected with 503 while the
// circuit is open; responses with 5xx status count as failures.
func RouteBreaker(breaker *circuitbreaker.CircuitBreaker) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !breaker.Allow() {
				metrics.requestsRejected.WithLabelValues(breaker.Name(), "circuit_open").Inc()

				w.Header().Set(HeaderRetryAfter, "1")
				writeJSONError(w, http.StatusServiceUnavailable, "backend unavailable")
				return
			}

			rw := util.NewStatusCapturingResponseWriter(w)

			// The outcome is recorded in a defer so a handler panic,
			// such as http.ErrAbortHandler on client disconnect, still
			// releases the half-open probe slot.
			defer func() {
				if rw.StatusCode() >= http.StatusInternalServerError {
					breaker.RecordFailure()
				} else {
					breaker.RecordSuccess()
				}
			}()

			next.ServeHTTP(rw, r)
		})
	}
}
