// Package middleware provides the HTTP middleware components the
// gateway chains around the reverse proxy.
//
// Middleware functions follow the standard Go pattern:
//
//	handler := middleware.Logging(logger)(
//	    middleware.Recovery(logger)(
//	        middleware.RequestID()(yourHandler),
//	    ),
//	)
//
// Server-wide middleware (RequestID, Recovery, Logging, ClientIP) wraps
// every request. Route-level middleware (RouteAuth, RouteRateLimit,
// RouteCache, RouteBreaker) is assembled per route from its
// configuration.
package middleware
