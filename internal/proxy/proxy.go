// Package proxy forwards matched requests to backend services.
package proxy

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"net"
	"net/http"
	"net/http/httputil"
	"net/url"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/edgegate/edgegate/internal/config"
	"github.com/edgegate/edgegate/internal/observability"
	"github.com/edgegate/edgegate/internal/router"
	"github.com/edgegate/edgegate/internal/util"
)

const proxyTracerName = "edgegate/proxy"

// hopHeaders are stripped before forwarding.
var hopHeaders = []string{
	"Connection",
	"Proxy-Connection",
	"Keep-Alive",
	"Proxy-Authenticate",
	"Proxy-Authorization",
	"Te",
	"Trailer",
	"Transfer-Encoding",
	"Upgrade",
}

// Forwarder proxies requests for a matched route to one of its
// destinations.
type Forwarder struct {
	logger       observability.Logger
	transport    http.RoundTripper
	errorHandler func(http.ResponseWriter, *http.Request, error)
	ws           *websocketProxy
}

// ForwarderOption is a functional option for the forwarder.
type ForwarderOption func(*Forwarder)

// WithForwarderLogger sets the forwarder's logger.
func WithForwarderLogger(logger observability.Logger) ForwarderOption {
	return func(f *Forwarder) {
		f.logger = logger
	}
}

// WithTransport sets the transport used for backend calls.
func WithTransport(transport http.RoundTripper) ForwarderOption {
	return func(f *Forwarder) {
		f.transport = transport
	}
}

// WithErrorHandler overrides the backend error handler.
func WithErrorHandler(handler func(http.ResponseWriter, *http.Request, error)) ForwarderOption {
	return func(f *Forwarder) {
		f.errorHandler = handler
	}
}

// NewForwarder creates a forwarder.
func NewForwarder(opts ...ForwarderOption) *Forwarder {
	f := &Forwarder{
		logger: observability.NopLogger(),
	}

	for _, opt := range opts {
		opt(f)
	}

	if f.errorHandler == nil {
		f.errorHandler = f.defaultErrorHandler
	}

	f.ws = &websocketProxy{logger: f.logger}

	return f
}

// ServeRoute forwards the request according to the route's
// configuration: direct responses are served locally, websocket
// upgrades are relayed, everything else goes through the reverse
// proxy with the route's timeout applied.
func (f *Forwarder) ServeRoute(w http.ResponseWriter, r *http.Request, route *router.CompiledRoute) {
	if route.Config.DirectResponse != nil {
		f.serveDirectResponse(w, route.Config.DirectResponse)
		return
	}

	dest, err := selectDestination(route.Config.Destinations)
	if err != nil {
		f.errorHandler(w, r, util.NewBackendErrorWithCause(route.Name, "no destination available", err))
		return
	}

	target := destinationURL(dest)

	ctx, span := otel.Tracer(proxyTracerName).Start(r.Context(), "proxy.forward",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("route", route.Name),
			attribute.String("backend", target.Host),
			attribute.String("http.method", r.Method),
		))
	defer span.End()
	r = r.WithContext(ctx)

	if route.Config.StripPrefix && route.Config.Path.Type == config.PathMatchPrefix {
		r = stripPrefix(r, route.Config.Path.Value)
	}

	if route.Config.WebSocket && isWebSocketUpgrade(r) {
		if err := f.ws.proxy(w, r, target, f.transport); err != nil {
			f.logger.Warn("websocket proxy failed",
				observability.String("route", route.Name),
				observability.Error(err))
		}
		return
	}

	if timeout := route.Config.Timeout.Duration(); timeout > 0 {
		ctx, cancel := context.WithTimeout(r.Context(), timeout)
		defer cancel()
		r = r.WithContext(ctx)
	}

	proxy := &httputil.ReverseProxy{
		Director: func(req *http.Request) {
			f.director(req, target, r)
		},
		Transport:    f.transport,
		ErrorHandler: f.errorHandler,
	}

	proxy.ServeHTTP(w, r)
}

// director rewrites the outbound request for the selected target.
func (f *Forwarder) director(req *http.Request, target *url.URL, originalReq *http.Request) {
	req.URL.Scheme = target.Scheme
	req.URL.Host = target.Host

	for _, h := range hopHeaders {
		req.Header.Del(h)
	}

	if clientIP, _, err := net.SplitHostPort(originalReq.RemoteAddr); err == nil {
		if prior := originalReq.Header.Get("X-Forwarded-For"); prior != "" {
			clientIP = prior + ", " + clientIP
		}
		req.Header.Set("X-Forwarded-For", clientIP)
	}

	proto := "http"
	if originalReq.TLS != nil {
		proto = "https"
	}
	req.Header.Set("X-Forwarded-Proto", proto)
	req.Header.Set("X-Forwarded-Host", originalReq.Host)

	if requestID := util.RequestIDFromContext(originalReq.Context()); requestID != "" {
		req.Header.Set("X-Request-ID", requestID)
	}

	observability.InjectTraceContext(originalReq.Context(), req)

	req.Host = target.Host
}

// serveDirectResponse writes a configured response without contacting
// any backend.
func (f *Forwarder) serveDirectResponse(w http.ResponseWriter, dr *config.DirectResponse) {
	for key, value := range dr.Headers {
		w.Header().Set(key, value)
	}

	status := dr.StatusCode
	if status == 0 {
		status = http.StatusOK
	}
	w.WriteHeader(status)

	if dr.Body != "" {
		_, _ = io.WriteString(w, dr.Body)
	}
}

// defaultErrorHandler maps backend failures to JSON error responses.
func (f *Forwarder) defaultErrorHandler(w http.ResponseWriter, r *http.Request, err error) {
	f.logger.Error("proxy error",
		observability.String("path", r.URL.Path),
		observability.String("method", r.Method),
		observability.Error(err))

	status := http.StatusBadGateway
	message := "failed to proxy request"

	if errors.Is(err, context.DeadlineExceeded) {
		status = http.StatusGatewayTimeout
		message = "backend timed out"
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = fmt.Fprintf(w, `{"error":%q,"message":%q}`, http.StatusText(status), message)
}

// selectDestination picks a destination, weighted when several are
// configured. A zero weight counts as one.
func selectDestination(destinations []config.Destination) (*config.Destination, error) {
	if len(destinations) == 0 {
		return nil, errors.New("no destinations configured")
	}

	if len(destinations) == 1 {
		return &destinations[0], nil
	}

	totalWeight := 0
	for _, dest := range destinations {
		totalWeight += effectiveWeight(dest)
	}

	pick := rand.Intn(totalWeight)
	for i := range destinations {
		pick -= effectiveWeight(destinations[i])
		if pick < 0 {
			return &destinations[i], nil
		}
	}

	return &destinations[len(destinations)-1], nil
}

func effectiveWeight(dest config.Destination) int {
	if dest.Weight <= 0 {
		return 1
	}
	return dest.Weight
}

// destinationURL builds the target URL for a destination.
func destinationURL(dest *config.Destination) *url.URL {
	scheme := dest.Scheme
	if scheme == "" {
		scheme = "http"
	}

	return &url.URL{
		Scheme: scheme,
		Host:   fmt.Sprintf("%s:%d", dest.Host, dest.Port),
	}
}

// stripPrefix removes a path prefix before forwarding.
func stripPrefix(r *http.Request, prefix string) *http.Request {
	path := strings.TrimPrefix(r.URL.Path, prefix)
	if path == "" {
		path = "/"
	}
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}

	r2 := r.Clone(r.Context())
	r2.URL.Path = path
	return r2
}

// isWebSocketUpgrade reports whether the request asks for a websocket
// upgrade.
func isWebSocketUpgrade(r *http.Request) bool {
	return strings.EqualFold(r.Header.Get("Upgrade"), "websocket") &&
		strings.Contains(strings.ToLower(r.Header.Get("Connection")), "upgrade")
}
