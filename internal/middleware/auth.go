package middleware

import (
	"errors"
	"net/http"

	"github.com/edgegate/edgegate/internal/auth"
	"github.com/edgegate/edgegate/internal/observability"
)

// RouteAuth returns a middleware that rejects requests without a valid
// bearer token. Validated claims are attached to the request context
// for downstream handlers.
func RouteAuth(
	routeName string,
	validator auth.Validator,
	tokenHeader, tokenPrefix string,
	audiences []string,
	gwMetrics *observability.Metrics,
	logger observability.Logger,
) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, err := auth.ExtractToken(r, tokenHeader, tokenPrefix)
			if err != nil {
				rejectUnauthenticated(w, routeName, err, gwMetrics, logger)
				return
			}

			claims, err := validator.ValidateWithAudiences(r.Context(), token, audiences)
			if err != nil {
				rejectUnauthenticated(w, routeName, err, gwMetrics, logger)
				return
			}

			ctx := auth.ContextWithClaims(r.Context(), claims)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// rejectUnauthenticated answers 401 and records the failure reason.
func rejectUnauthenticated(
	w http.ResponseWriter,
	routeName string,
	err error,
	gwMetrics *observability.Metrics,
	logger observability.Logger,
) {
	reason := authFailureReason(err)

	logger.Debug("authentication rejected",
		observability.String("route", routeName),
		observability.String("reason", reason),
		observability.Error(err))

	if gwMetrics != nil {
		gwMetrics.RecordAuthFailure(routeName, reason)
	}
	metrics.requestsRejected.WithLabelValues(routeName, "auth").Inc()

	w.Header().Set("WWW-Authenticate", `Bearer realm="edgegate"`)
	writeJSONError(w, http.StatusUnauthorized, "authentication required")
}

// authFailureReason maps validation errors to a bounded label set.
func authFailureReason(err error) string {
	switch {
	case errors.Is(err, auth.ErrMissingToken):
		return "missing_token"
	case errors.Is(err, auth.ErrTokenExpired):
		return "expired"
	case errors.Is(err, auth.ErrInvalidIssuer):
		return "invalid_issuer"
	case errors.Is(err, auth.ErrInvalidAudience):
		return "invalid_audience"
	case errors.Is(err, auth.ErrInvalidSignature):
		return "invalid_signature"
	case errors.Is(err, auth.ErrMalformedToken):
		return "malformed"
	default:
		return "invalid"
	}
}
