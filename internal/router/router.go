package router

import (
	"fmt"
	"net/http"
	"sort"
	"sync"

	"github.com/edgegate/edgegate/internal/config"
	"github.com/edgegate/edgegate/internal/util"
)

// Route priority constants. Higher priority routes are matched first.
const (
	// priorityExactMatch is the base priority for exact path matches.
	priorityExactMatch = 1000

	// priorityPrefixMatch is the base priority for prefix path matches.
	// Longer prefixes receive additional priority based on their length.
	priorityPrefixMatch = 500

	// priorityRegexMatch is the base priority for regex, parameter,
	// and wildcard path matches.
	priorityRegexMatch = 100

	// priorityMethodRestriction is the priority bonus for routes with
	// method restrictions.
	priorityMethodRestriction = 50

	// priorityHeaderRestriction is the priority bonus per header restriction.
	priorityHeaderRestriction = 10

	// priorityQueryRestriction is the priority bonus per query
	// parameter restriction.
	priorityQueryRestriction = 5
)

// Router is the routing engine. It is safe for concurrent matching
// while routes are reloaded.
type Router struct {
	routes   []*CompiledRoute
	routeMap map[string]*CompiledRoute
	mu       sync.RWMutex
}

// CompiledRoute is a pre-compiled route for efficient matching.
type CompiledRoute struct {
	Name           string
	Config         config.Route
	PathMatcher    PathMatcher
	MethodMatcher  *MethodMatcher
	HeaderMatchers []*HeaderMatcher
	QueryMatchers  []*QueryParamMatcher
	Priority       int
	order          int
}

// MatchResult contains the result of a route match.
type MatchResult struct {
	Route      *CompiledRoute
	PathParams map[string]string
}

// New creates a new router.
func New() *Router {
	return &Router{
		routes:   make([]*CompiledRoute, 0),
		routeMap: make(map[string]*CompiledRoute),
	}
}

// AddRoute compiles and adds a route to the routing table.
func (r *Router) AddRoute(route config.Route) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.routeMap[route.Name]; exists {
		return fmt.Errorf("duplicate route name: %s", route.Name)
	}

	compiled, err := compileRoute(route)
	if err != nil {
		return fmt.Errorf("failed to compile route %s: %w", route.Name, err)
	}
	compiled.order = len(r.routeMap)

	r.routes = append(r.routes, compiled)
	r.routeMap[route.Name] = compiled

	// Higher priority first; declaration order breaks ties.
	sort.SliceStable(r.routes, func(i, j int) bool {
		if r.routes[i].Priority != r.routes[j].Priority {
			return r.routes[i].Priority > r.routes[j].Priority
		}
		return r.routes[i].order < r.routes[j].order
	})

	return nil
}

// RemoveRoute removes a route from the routing table.
func (r *Router) RemoveRoute(name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.routeMap[name]; !exists {
		return fmt.Errorf("route not found: %s", name)
	}

	delete(r.routeMap, name)

	for i, route := range r.routes {
		if route.Name == name {
			r.routes = append(r.routes[:i], r.routes[i+1:]...)
			break
		}
	}

	return nil
}

// Match finds the highest-priority matching route for a request.
// It returns a RouteNotFoundError when nothing matches.
func (r *Router) Match(req *http.Request) (*MatchResult, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	path := req.URL.Path
	method := req.Method

	for _, route := range r.routes {
		if result := matchRoute(route, path, method, req); result != nil {
			return result, nil
		}
	}

	return nil, util.NewRouteNotFoundError(method, path)
}

// matchRoute checks if a request matches a compiled route.
func matchRoute(route *CompiledRoute, path, method string, req *http.Request) *MatchResult {
	// Method check first, it is the cheapest.
	if route.MethodMatcher != nil && !route.MethodMatcher.Match(method) {
		return nil
	}

	var pathParams map[string]string
	if route.PathMatcher != nil {
		matched, params := route.PathMatcher.Match(path)
		if !matched {
			return nil
		}
		pathParams = params
	}

	for _, headerMatcher := range route.HeaderMatchers {
		if !headerMatcher.Match(req.Header) {
			return nil
		}
	}

	if len(route.QueryMatchers) > 0 {
		query := req.URL.Query()
		for _, queryMatcher := range route.QueryMatchers {
			if !queryMatcher.Match(query) {
				return nil
			}
		}
	}

	return &MatchResult{
		Route:      route,
		PathParams: pathParams,
	}
}

// compileRoute compiles a route configuration into a CompiledRoute.
func compileRoute(route config.Route) (*CompiledRoute, error) {
	compiled := &CompiledRoute{
		Name:     route.Name,
		Config:   route,
		Priority: calculatePriority(route),
	}

	pathMatcher, err := createPathMatcher(route.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to create path matcher: %w", err)
	}
	compiled.PathMatcher = pathMatcher

	if len(route.Methods) > 0 {
		compiled.MethodMatcher = NewMethodMatcher(route.Methods)
	}

	for _, headerCfg := range route.Headers {
		headerMatcher, err := NewHeaderMatcher(headerCfg)
		if err != nil {
			return nil, fmt.Errorf("failed to create header matcher: %w", err)
		}
		compiled.HeaderMatchers = append(compiled.HeaderMatchers, headerMatcher)
	}

	for _, queryCfg := range route.QueryParams {
		queryMatcher, err := NewQueryParamMatcher(queryCfg)
		if err != nil {
			return nil, fmt.Errorf("failed to create query matcher: %w", err)
		}
		compiled.QueryMatchers = append(compiled.QueryMatchers, queryMatcher)
	}

	return compiled, nil
}

// createPathMatcher creates a path matcher from path match configuration.
func createPathMatcher(pm config.PathMatch) (PathMatcher, error) {
	switch pm.Type {
	case config.PathMatchExact:
		return NewExactMatcher(pm.Value), nil
	case config.PathMatchPrefix:
		return NewPrefixMatcher(pm.Value), nil
	case config.PathMatchRegex:
		return NewRegexMatcher(pm.Value)
	case config.PathMatchParameter:
		return NewParameterMatcher(pm.Value)
	case config.PathMatchWildcard:
		return NewWildcardMatcher(pm.Value)
	default:
		return nil, fmt.Errorf("unknown path match type: %s", pm.Type)
	}
}

// calculatePriority calculates the priority of a route. Exact matches
// rank highest, then prefixes (longer prefixes rank higher), then
// pattern matches. Method, header, and query restrictions each add a
// specificity bonus.
func calculatePriority(route config.Route) int {
	priority := 0

	switch route.Path.Type {
	case config.PathMatchExact:
		priority += priorityExactMatch
	case config.PathMatchPrefix:
		priority += priorityPrefixMatch + len(route.Path.Value)
	default:
		priority += priorityRegexMatch
	}

	if len(route.Methods) > 0 {
		priority += priorityMethodRestriction
	}
	priority += len(route.Headers) * priorityHeaderRestriction
	priority += len(route.QueryParams) * priorityQueryRestriction

	return priority
}

// GetRoute returns a route by name.
func (r *Router) GetRoute(name string) (*CompiledRoute, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	route, exists := r.routeMap[name]
	return route, exists
}

// GetRoutes returns a snapshot of all routes in priority order.
func (r *Router) GetRoutes() []*CompiledRoute {
	r.mu.RLock()
	defer r.mu.RUnlock()

	routes := make([]*CompiledRoute, len(r.routes))
	copy(routes, r.routes)
	return routes
}

// Clear removes all routes.
func (r *Router) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.routes = make([]*CompiledRoute, 0)
	r.routeMap = make(map[string]*CompiledRoute)
}

// LoadRoutes replaces the routing table with the given routes.
func (r *Router) LoadRoutes(routes []config.Route) error {
	r.Clear()

	for _, route := range routes {
		if err := r.AddRoute(route); err != nil {
			return err
		}
	}

	return nil
}
