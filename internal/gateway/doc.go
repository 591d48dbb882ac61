// Package gateway wires the routing, authentication, rate limiting,
// caching, and circuit breaking components into a single HTTP handler
// and manages the listener lifecycle.
//
// A request flows through the gateway in a fixed order: route matching,
// the route's circuit breaker, rate limiter, token validation, the
// response cache, and finally the reverse proxy. Rejections short
// circuit the chain without touching the backend.
package gateway
