package util

import (
	"context"
	"time"
)

type contextKey string

const (
	requestIDKey  contextKey = "request_id"
	routeNameKey  contextKey = "route_name"
	pathParamsKey contextKey = "path_params"
	clientIPKey   contextKey = "client_ip"
	startTimeKey  contextKey = "start_time"
)

// ContextWithRequestID returns a context carrying the given request ID.
func ContextWithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, requestIDKey, requestID)
}

// RequestIDFromContext extracts the request ID, or "" if absent.
func RequestIDFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(requestIDKey).(string); ok {
		return v
	}
	return ""
}

// ContextWithRouteName returns a context carrying the matched route name.
func ContextWithRouteName(ctx context.Context, name string) context.Context {
	return context.WithValue(ctx, routeNameKey, name)
}

// RouteNameFromContext extracts the matched route name, or "" if absent.
func RouteNameFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(routeNameKey).(string); ok {
		return v
	}
	return ""
}

// ContextWithPathParams returns a context carrying extracted path parameters.
func ContextWithPathParams(ctx context.Context, params map[string]string) context.Context {
	return context.WithValue(ctx, pathParamsKey, params)
}

// PathParamsFromContext extracts path parameters, or nil if absent.
func PathParamsFromContext(ctx context.Context) map[string]string {
	if v, ok := ctx.Value(pathParamsKey).(map[string]string); ok {
		return v
	}
	return nil
}

// ContextWithClientIP returns a context carrying the resolved client IP.
func ContextWithClientIP(ctx context.Context, ip string) context.Context {
	return context.WithValue(ctx, clientIPKey, ip)
}

// ClientIPFromContext extracts the client IP, or "" if absent.
func ClientIPFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(clientIPKey).(string); ok {
		return v
	}
	return ""
}

// ContextWithStartTime returns a context carrying the request start time.
func ContextWithStartTime(ctx context.Context, t time.Time) context.Context {
	return context.WithValue(ctx, startTimeKey, t)
}

// StartTimeFromContext extracts the request start time. The second
// return value reports whether a start time was present.
func StartTimeFromContext(ctx context.Context) (time.Time, bool) {
	v, ok := ctx.Value(startTimeKey).(time.Time)
	return v, ok
}
