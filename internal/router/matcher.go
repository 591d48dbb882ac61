// Package router provides route compilation and request matching for
// the gateway.
package router

import (
	"net/http"
	"net/url"
	"regexp"
	"strings"

	"github.com/edgegate/edgegate/internal/config"
)

// PathMatcher is the interface for path matching.
type PathMatcher interface {
	// Match reports whether path matches, along with any extracted
	// path parameters.
	Match(path string) (bool, map[string]string)
	Type() string
	Pattern() string
}

// ExactMatcher matches a path exactly.
type ExactMatcher struct {
	path string
}

// NewExactMatcher creates a new exact path matcher.
func NewExactMatcher(path string) *ExactMatcher {
	return &ExactMatcher{path: path}
}

// Match checks if the path matches exactly.
func (m *ExactMatcher) Match(path string) (matched bool, params map[string]string) {
	return path == m.path, nil
}

// Type returns the matcher type.
func (m *ExactMatcher) Type() string { return config.PathMatchExact }

// Pattern returns the pattern.
func (m *ExactMatcher) Pattern() string { return m.path }

// PrefixMatcher matches path prefixes at segment boundaries.
type PrefixMatcher struct {
	prefix string
}

// NewPrefixMatcher creates a new prefix path matcher.
func NewPrefixMatcher(prefix string) *PrefixMatcher {
	return &PrefixMatcher{prefix: prefix}
}

// Match checks if the path starts with the prefix. A prefix only
// matches at segment boundaries, so /api does not match /apiary.
func (m *PrefixMatcher) Match(path string) (matched bool, params map[string]string) {
	if strings.HasPrefix(path, m.prefix) {
		if len(path) == len(m.prefix) {
			return true, nil
		}
		if strings.HasSuffix(m.prefix, "/") || path[len(m.prefix)] == '/' {
			return true, nil
		}
	}
	return false, nil
}

// Type returns the matcher type.
func (m *PrefixMatcher) Type() string { return config.PathMatchPrefix }

// Pattern returns the pattern.
func (m *PrefixMatcher) Pattern() string { return m.prefix }

// RegexMatcher matches paths using regular expressions. Named capture
// groups become path parameters.
type RegexMatcher struct {
	pattern string
	regex   *regexp.Regexp
}

// NewRegexMatcher creates a new regex path matcher.
func NewRegexMatcher(pattern string) (*RegexMatcher, error) {
	regex, err := regexp.Compile(pattern)
	if err != nil {
		return nil, err
	}
	return &RegexMatcher{pattern: pattern, regex: regex}, nil
}

// Match checks if the path matches the regex.
func (m *RegexMatcher) Match(path string) (matched bool, params map[string]string) {
	matches := m.regex.FindStringSubmatch(path)
	if matches == nil {
		return false, nil
	}

	params = make(map[string]string)
	for i, name := range m.regex.SubexpNames() {
		if i > 0 && name != "" && i < len(matches) {
			params[name] = matches[i]
		}
	}

	return true, params
}

// Type returns the matcher type.
func (m *RegexMatcher) Type() string { return config.PathMatchRegex }

// Pattern returns the pattern.
func (m *RegexMatcher) Pattern() string { return m.pattern }

// ParameterMatcher matches paths with parameter segments like
// /users/{id}, capturing each {name} as a path parameter.
type ParameterMatcher struct {
	pattern string
	regex   *regexp.Regexp
}

// NewParameterMatcher creates a new parameter path matcher.
func NewParameterMatcher(pattern string) (*ParameterMatcher, error) {
	var regexPattern strings.Builder
	regexPattern.WriteString("^")

	for _, part := range strings.Split(strings.Trim(pattern, "/"), "/") {
		if part == "" {
			continue
		}
		if strings.HasPrefix(part, "{") && strings.HasSuffix(part, "}") {
			regexPattern.WriteString("/(?P<")
			regexPattern.WriteString(part[1 : len(part)-1])
			regexPattern.WriteString(">[^/]+)")
		} else {
			regexPattern.WriteString("/")
			regexPattern.WriteString(regexp.QuoteMeta(part))
		}
	}
	regexPattern.WriteString("$")

	regex, err := regexp.Compile(regexPattern.String())
	if err != nil {
		return nil, err
	}

	return &ParameterMatcher{pattern: pattern, regex: regex}, nil
}

// Match checks if the path matches the pattern and extracts parameters.
func (m *ParameterMatcher) Match(path string) (matched bool, params map[string]string) {
	matches := m.regex.FindStringSubmatch(path)
	if matches == nil {
		return false, nil
	}

	params = make(map[string]string)
	for i, name := range m.regex.SubexpNames() {
		if i > 0 && name != "" && i < len(matches) {
			params[name] = matches[i]
		}
	}

	return true, params
}

// Type returns the matcher type.
func (m *ParameterMatcher) Type() string { return config.PathMatchParameter }

// Pattern returns the pattern.
func (m *ParameterMatcher) Pattern() string { return m.pattern }

// WildcardMatcher matches paths with wildcards. * matches within a
// segment, ** matches across segments.
type WildcardMatcher struct {
	pattern string
	regex   *regexp.Regexp
}

// NewWildcardMatcher creates a new wildcard path matcher.
func NewWildcardMatcher(pattern string) (*WildcardMatcher, error) {
	regex, err := regexp.Compile(wildcardToRegex(pattern))
	if err != nil {
		return nil, err
	}
	return &WildcardMatcher{pattern: pattern, regex: regex}, nil
}

// wildcardToRegex converts a wildcard pattern to a regex pattern.
func wildcardToRegex(pattern string) string {
	var result strings.Builder
	result.WriteString("^")

	i := 0
	for i < len(pattern) {
		switch {
		case i+1 < len(pattern) && pattern[i:i+2] == "**":
			result.WriteString(".*")
			i += 2
		case pattern[i] == '*':
			result.WriteString("[^/]*")
			i++
		case pattern[i] == '?':
			result.WriteString("[^/]")
			i++
		default:
			result.WriteString(regexp.QuoteMeta(string(pattern[i])))
			i++
		}
	}

	result.WriteString("$")
	return result.String()
}

// Match checks if the path matches the wildcard pattern.
func (m *WildcardMatcher) Match(path string) (matched bool, params map[string]string) {
	return m.regex.MatchString(path), nil
}

// Type returns the matcher type.
func (m *WildcardMatcher) Type() string { return config.PathMatchWildcard }

// Pattern returns the pattern.
func (m *WildcardMatcher) Pattern() string { return m.pattern }

// MethodMatcher matches HTTP methods.
type MethodMatcher struct {
	methods map[string]bool
}

// NewMethodMatcher creates a new method matcher.
func NewMethodMatcher(methods []string) *MethodMatcher {
	m := &MethodMatcher{methods: make(map[string]bool)}
	for _, method := range methods {
		m.methods[strings.ToUpper(method)] = true
	}
	return m
}

// Match checks if the method matches. HEAD matches routes declared for
// GET, and "*" matches every method.
func (m *MethodMatcher) Match(method string) bool {
	method = strings.ToUpper(method)

	if m.methods["*"] {
		return true
	}
	if method == http.MethodHead && m.methods[http.MethodGet] {
		return true
	}
	return m.methods[method]
}

// HeaderMatcher matches a single HTTP header rule.
type HeaderMatcher struct {
	cfg   config.HeaderMatch
	regex *regexp.Regexp
}

// NewHeaderMatcher creates a new header matcher.
func NewHeaderMatcher(cfg config.HeaderMatch) (*HeaderMatcher, error) {
	m := &HeaderMatcher{cfg: cfg}

	if cfg.Type == config.MatchTypeRegex {
		regex, err := regexp.Compile(cfg.Value)
		if err != nil {
			return nil, err
		}
		m.regex = regex
	}

	return m, nil
}

// Match checks if the headers satisfy the rule.
func (m *HeaderMatcher) Match(headers http.Header) bool {
	value := headers.Get(m.cfg.Name)
	hasHeader := value != ""

	switch m.cfg.Type {
	case config.MatchTypePresent:
		return hasHeader
	case config.MatchTypeAbsent:
		return !hasHeader
	}

	if !hasHeader {
		return false
	}

	switch m.cfg.Type {
	case config.MatchTypePrefix:
		return strings.HasPrefix(value, m.cfg.Value)
	case config.MatchTypeRegex:
		return m.regex.MatchString(value)
	default:
		return value == m.cfg.Value
	}
}

// QueryParamMatcher matches a single query parameter rule.
type QueryParamMatcher struct {
	cfg   config.QueryParamMatch
	regex *regexp.Regexp
}

// NewQueryParamMatcher creates a new query parameter matcher.
func NewQueryParamMatcher(cfg config.QueryParamMatch) (*QueryParamMatcher, error) {
	m := &QueryParamMatcher{cfg: cfg}

	if cfg.Type == config.MatchTypeRegex {
		regex, err := regexp.Compile(cfg.Value)
		if err != nil {
			return nil, err
		}
		m.regex = regex
	}

	return m, nil
}

// Match checks if the query parameters satisfy the rule.
func (m *QueryParamMatcher) Match(query url.Values) bool {
	value := query.Get(m.cfg.Name)
	hasParam := query.Has(m.cfg.Name)

	switch m.cfg.Type {
	case config.MatchTypePresent:
		return hasParam
	case config.MatchTypeAbsent:
		return !hasParam
	}

	if !hasParam {
		return false
	}

	switch m.cfg.Type {
	case config.MatchTypePrefix:
		return strings.HasPrefix(value, m.cfg.Value)
	case config.MatchTypeRegex:
		return m.regex.MatchString(value)
	default:
		return value == m.cfg.Value
	}
}
