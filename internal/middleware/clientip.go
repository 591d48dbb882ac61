package middleware

import (
	"net"
	"net/http"
	"strings"

	"github.com/edgegate/edgegate/internal/util"
)

// ClientIPExtractor resolves the real client IP from requests, honoring
// X-Forwarded-For only when the direct peer is a trusted proxy. With no
// trusted proxies configured only RemoteAddr is used, which prevents
// header spoofing.
type ClientIPExtractor struct {
	trustedCIDRs []*net.IPNet
}

// NewClientIPExtractor creates an extractor trusting the given proxy
// CIDRs. Single IPs are accepted and converted to host CIDRs. Invalid
// entries are skipped.
func NewClientIPExtractor(trustedProxies []string) *ClientIPExtractor {
	cidrs := make([]*net.IPNet, 0, len(trustedProxies))
	for _, proxy := range trustedProxies {
		_, cidr, err := net.ParseCIDR(proxy)
		if err != nil {
			ip := net.ParseIP(proxy)
			if ip == nil {
				continue
			}
			cidr = singleIPToCIDR(ip)
		}
		cidrs = append(cidrs, cidr)
	}
	return &ClientIPExtractor{trustedCIDRs: cidrs}
}

// singleIPToCIDR converts a single IP address to a /32 or /128 CIDR.
func singleIPToCIDR(ip net.IP) *net.IPNet {
	bits := 32
	if ip.To4() == nil {
		bits = 128
	}
	return &net.IPNet{
		IP:   ip,
		Mask: net.CIDRMask(bits, bits),
	}
}

// Extract returns the real client IP for the request. When the direct
// peer is trusted it walks X-Forwarded-For right to left and returns
// the first untrusted hop.
func (e *ClientIPExtractor) Extract(r *http.Request) string {
	remoteIP := stripPort(r.RemoteAddr)

	if len(e.trustedCIDRs) == 0 {
		return remoteIP
	}

	if !e.isTrusted(remoteIP) {
		return remoteIP
	}

	return e.extractFromXFF(r, remoteIP)
}

// extractFromXFF walks the X-Forwarded-For chain right to left and
// returns the first untrusted IP, or fallback when the whole chain is
// trusted.
func (e *ClientIPExtractor) extractFromXFF(r *http.Request, fallback string) string {
	xff := r.Header.Get(HeaderXForwardedFor)
	if xff == "" {
		return fallback
	}

	ips := strings.Split(xff, ",")
	for i := len(ips) - 1; i >= 0; i-- {
		ip := strings.TrimSpace(ips[i])
		if ip == "" {
			continue
		}
		if !e.isTrusted(ip) {
			return ip
		}
	}

	return fallback
}

// isTrusted checks if the given IP string is within any trusted CIDR.
func (e *ClientIPExtractor) isTrusted(ipStr string) bool {
	ip := net.ParseIP(ipStr)
	if ip == nil {
		return false
	}
	for _, cidr := range e.trustedCIDRs {
		if cidr.Contains(ip) {
			return true
		}
	}
	return false
}

// stripPort removes the port from an address string. Handles both
// "192.168.1.1:8080" and "[::1]:8080" forms.
func stripPort(addr string) string {
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		return addr
	}
	return host
}

// clientIPOrRemote returns the context client IP when ClientIP ran
// earlier in the chain, falling back to RemoteAddr.
func clientIPOrRemote(r *http.Request) string {
	if ip := util.ClientIPFromContext(r.Context()); ip != "" {
		return ip
	}
	return stripPort(r.RemoteAddr)
}

// ClientIP returns a middleware that resolves the client IP with the
// given extractor and stores it on the request context for downstream
// rate limiting and logging.
func ClientIP(extractor *ClientIPExtractor) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ip := extractor.Extract(r)
			ctx := util.ContextWithClientIP(r.Context(), ip)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
