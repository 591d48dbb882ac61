package middleware

import (
	"net/http"
	"runtime/debug"

	"github.com/edgegate/edgegate/internal/observability"
)

// Recovery returns a middleware that recovers from panics in the
// handler chain and answers 500 instead of tearing down the connection.
func Recovery(logger observability.Logger) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if err := recover(); err != nil {
					stack := debug.Stack()

					logger.Error("panic recovered",
						observability.String("path", r.URL.Path),
						observability.String("method", r.Method),
						observability.Any("error", err),
						observability.String("stack", string(stack)),
					)

					metrics.panicsRecovered.Inc()

					writeJSONError(w, http.StatusInternalServerError, "internal server error")
				}
			}()

			next.ServeHTTP(w, r)
		})
	}
}
