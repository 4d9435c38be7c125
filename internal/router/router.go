package router

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/ensembleai/agentgate/internal/policy"
)

// Route describes a registered route. Routes are immutable after
// registration; the router owns them exclusively.
type Route struct {
	// Pattern is the route pattern. If empty, it is derived from SourcePath
	// via convention-based resolution at registration time.
	Pattern string

	// Methods restricts the HTTP methods the route serves. Empty means all
	// methods. "*" matches all methods.
	Methods []string

	// Kind classifies what the route serves.
	Kind policy.OperationKind

	// AuthOverride is the route-specific auth rule, applied with absolute
	// precedence during policy resolution.
	AuthOverride *policy.Rule

	// Priority lets operator-assigned routes outrank generic catch-alls.
	// Higher values match first.
	Priority int

	// SourcePath is the hierarchical resource name the route was derived
	// from, when registered by convention.
	SourcePath string
}

// compiledRoute pairs a route with its compiled pattern and registration
// order.
type compiledRoute struct {
	route   Route
	pattern *Pattern
	methods map[string]bool
	index   int
}

// Match is the result of a successful route lookup.
type Match struct {
	Route  Route
	Params map[string]string
}

// Router matches incoming (path, method) pairs against registered routes.
// Registration happens before traffic begins; Match is safe for concurrent
// use.
type Router struct {
	mu     sync.RWMutex
	routes []*compiledRoute
	nextID int
}

// New creates an empty router.
func New() *Router {
	return &Router{}
}

// Register adds a route. Routes without an explicit pattern must carry a
// SourcePath, which is resolved by convention.
func (r *Router) Register(route Route) error {
	pattern := route.Pattern
	if pattern == "" {
		if route.SourcePath == "" {
			return fmt.Errorf("route needs a pattern or a source path")
		}
		pattern = ResolveSourcePath(route.SourcePath, DefaultIndexNames)
		route.Pattern = pattern
	}

	compiled, err := CompilePattern(pattern)
	if err != nil {
		return fmt.Errorf("failed to compile route pattern: %w", err)
	}

	methods := make(map[string]bool, len(route.Methods))
	for _, m := range route.Methods {
		methods[strings.ToUpper(m)] = true
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.routes = append(r.routes, &compiledRoute{
		route:   route,
		pattern: compiled,
		methods: methods,
		index:   r.nextID,
	})
	r.nextID++

	// Matching precedence: explicit priority descending, then pattern
	// specificity (exact before parameterized before wildcard, more literal
	// segments first), then registration order as a stable tie-break.
	sort.SliceStable(r.routes, func(i, j int) bool {
		a, b := r.routes[i], r.routes[j]
		if a.route.Priority != b.route.Priority {
			return a.route.Priority > b.route.Priority
		}
		if a.pattern.class != b.pattern.class {
			return a.pattern.class < b.pattern.class
		}
		if a.pattern.literals != b.pattern.literals {
			return a.pattern.literals > b.pattern.literals
		}
		return a.index < b.index
	})

	return nil
}

// Load replaces all routes atomically. Used by config reload.
func (r *Router) Load(routes []Route) error {
	fresh := New()
	for _, route := range routes {
		if err := fresh.Register(route); err != nil {
			return err
		}
	}

	r.mu.Lock()
	r.routes = fresh.routes
	r.nextID = fresh.nextID
	r.mu.Unlock()

	return nil
}

// MatchRequest finds the highest-priority route for a path and method.
// Returns nil when nothing matches; the gateway maps that to a 404 at the
// boundary.
func (r *Router) MatchRequest(path, method string) *Match {
	method = strings.ToUpper(method)

	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, cr := range r.routes {
		if !cr.matchMethod(method) {
			continue
		}
		if matched, params := cr.pattern.Match(path); matched {
			return &Match{Route: cr.route, Params: params}
		}
	}

	return nil
}

// Routes returns the registered routes in match order.
func (r *Router) Routes() []Route {
	r.mu.RLock()
	defer r.mu.RUnlock()

	routes := make([]Route, len(r.routes))
	for i, cr := range r.routes {
		routes[i] = cr.route
	}
	return routes
}

// matchMethod checks the HTTP method against the route's method set.
func (cr *compiledRoute) matchMethod(method string) bool {
	if len(cr.methods) == 0 || cr.methods["*"] {
		return true
	}

	// HEAD is served by GET handlers.
	if method == "HEAD" && cr.methods["GET"] {
		return true
	}

	return cr.methods[method]
}
