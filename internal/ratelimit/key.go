package ratelimit

import (
	"net/http"
	"strings"

	"github.com/edgegate/edgegate/internal/config"
)

// KeyFunc extracts a rate limit key from an HTTP request.
type KeyFunc func(r *http.Request) string

// IPKeyFunc uses the client IP as the rate limit key.
func IPKeyFunc(r *http.Request) string {
	return GetClientIP(r)
}

// HeaderKeyFunc uses a header value as the rate limit key, falling
// back to the client IP when the header is missing.
func HeaderKeyFunc(header string) KeyFunc {
	return func(r *http.Request) string {
		if value := r.Header.Get(header); value != "" {
			return value
		}
		return GetClientIP(r)
	}
}

// RouteKeyFunc returns a fixed key so all clients share one bucket.
func RouteKeyFunc(routeName string) KeyFunc {
	return func(r *http.Request) string {
		return routeName
	}
}

// PerRouteKeyFunc scopes a base key to a route, so the same client
// gets independent buckets on different routes.
func PerRouteKeyFunc(routeName string, base KeyFunc) KeyFunc {
	return func(r *http.Request) string {
		return routeName + ":" + base(r)
	}
}

// KeyFuncFromConfig builds a KeyFunc from rate limit configuration.
func KeyFuncFromConfig(cfg config.RateLimitConfig, routeName string) KeyFunc {
	switch cfg.KeyBy {
	case "header":
		return PerRouteKeyFunc(routeName, HeaderKeyFunc(cfg.KeyHeader))
	case "route":
		return RouteKeyFunc(routeName)
	default:
		return PerRouteKeyFunc(routeName, IPKeyFunc)
	}
}

// GetClientIP extracts the client IP from the request, preferring
// forwarding headers over the socket address.
func GetClientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		ips := strings.Split(xff, ",")
		if len(ips) > 0 {
			return strings.TrimSpace(ips[0])
		}
	}

	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return xri
	}

	ip := r.RemoteAddr
	if idx := strings.LastIndex(ip, ":"); idx != -1 {
		ip = ip[:idx]
	}

	// IPv6 literals arrive bracketed.
	ip = strings.TrimPrefix(ip, "[")
	ip = strings.TrimSuffix(ip, "]")

	return ip
}
