package config

// Route defines a single routing rule. The first matching route by
// priority wins; ties break on declaration order.
type Route struct {
	// Name is the unique identifier for this route.
	Name string `yaml:"name"`

	// Methods lists HTTP methods to match. Empty matches all methods.
	Methods []string `yaml:"methods,omitempty"`

	// Path defines how to match the request path.
	Path PathMatch `yaml:"path"`

	// Headers defines additional header matching rules.
	Headers []HeaderMatch `yaml:"headers,omitempty"`

	// QueryParams defines additional query parameter matching rules.
	QueryParams []QueryParamMatch `yaml:"queryParams,omitempty"`

	// Destinations lists the upstream targets. Requests are
	// distributed across them by weight.
	Destinations []Destination `yaml:"destinations"`

	// StripPrefix removes the matched prefix before forwarding.
	StripPrefix bool `yaml:"stripPrefix,omitempty"`

	// Timeout bounds the upstream round trip for this route.
	Timeout Duration `yaml:"timeout,omitempty"`

	// Auth overrides the gateway auth policy for this route.
	Auth *RouteAuth `yaml:"auth,omitempty"`

	// RateLimit overrides the gateway rate limit policy for this route.
	RateLimit *RateLimitConfig `yaml:"rateLimit,omitempty"`

	// Cache overrides the gateway cache policy for this route.
	Cache *CacheConfig `yaml:"cache,omitempty"`

	// CircuitBreaker overrides breaker defaults for this route's backends.
	CircuitBreaker *BreakerConfig `yaml:"circuitBreaker,omitempty"`

	// WebSocket enables upgrade passthrough on this route.
	WebSocket bool `yaml:"webSocket,omitempty"`

	// DirectResponse short-circuits the route with a fixed response.
	DirectResponse *DirectResponse `yaml:"directResponse,omitempty"`
}

// Path match types.
const (
	PathMatchExact     = "exact"
	PathMatchPrefix    = "prefix"
	PathMatchRegex     = "regex"
	PathMatchParameter = "parameter"
	PathMatchWildcard  = "wildcard"
)

// PathMatch defines path matching for a route.
type PathMatch struct {
	// Type is one of exact, prefix, regex, parameter, wildcard.
	Type string `yaml:"type"`

	// Value is the pattern. For parameter matches, segments of the
	// form {name} capture path parameters.
	Value string `yaml:"value"`
}

// Match types shared by header and query parameter matchers.
const (
	MatchTypeExact   = "exact"
	MatchTypePrefix  = "prefix"
	MatchTypeRegex   = "regex"
	MatchTypePresent = "present"
	MatchTypeAbsent  = "absent"
)

// HeaderMatch defines a header matching rule.
type HeaderMatch struct {
	Name string `yaml:"name"`

	// Type is one of exact, prefix, regex, present, absent.
	// Defaults to exact.
	Type  string `yaml:"type,omitempty"`
	Value string `yaml:"value,omitempty"`
}

// QueryParamMatch defines a query parameter matching rule.
type QueryParamMatch struct {
	Name string `yaml:"name"`

	// Type is one of exact, prefix, regex, present, absent.
	// Defaults to exact.
	Type  string `yaml:"type,omitempty"`
	Value string `yaml:"value,omitempty"`
}

// Destination is an upstream target.
type Destination struct {
	// Scheme is http or https. Defaults to http.
	Scheme string `yaml:"scheme,omitempty"`
	Host   string `yaml:"host"`
	Port   int    `yaml:"port"`

	// Weight biases selection across multiple destinations.
	// Defaults to 1.
	Weight int `yaml:"weight,omitempty"`
}

// RouteAuth overrides authentication for a single route.
type RouteAuth struct {
	// Required marks the route as protected. When false the route is
	// public even if gateway-level auth is enabled.
	Required bool `yaml:"required"`

	// Audiences overrides the accepted audiences for this route.
	Audiences []string `yaml:"audiences,omitempty"`
}

// DirectResponse defines a fixed response served without proxying.
type DirectResponse struct {
	StatusCode int               `yaml:"statusCode"`
	Body       string            `yaml:"body,omitempty"`
	Headers    map[string]string `yaml:"headers,omitempty"`
}
