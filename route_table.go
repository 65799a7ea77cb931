package routed

import (
	"fmt"
	"net/http"
	"sort"
	"sync"
)

// Handler processes a request within an EngineContext and writes a
// response, or returns an error for the negotiator (errors.go, negotiate.go)
// to map onto a status and body.
type Handler func(*EngineContext) error

// Gas is a middleware: a wrapper around the next stage of the chain,
// named after the teacher's own middleware type (see gases/gases.go.legacy)
// since it plays exactly the same FILO-composition role here.
type Gas func(Handler) Handler

// GasRef is either a string middleware-registry id (a placeholder resolved
// lazily against the registry, per spec.md §4.2) or an already-concrete
// Gas supplied directly at registration time. Exactly one of the two
// fields is set.
type GasRef struct {
	id   string
	gas  Gas
}

// RefID returns a GasRef naming a middleware registered under id.
func RefID(id string) GasRef { return GasRef{id: id} }

// RefGas returns a GasRef wrapping an already-concrete Gas.
func RefGas(g Gas) GasRef { return GasRef{gas: g} }

// Route is one registered (method, path) pair, per spec.md §3. It is
// immutable after the table freezes on first dispatch; only its cached
// chain is computed lazily.
type Route struct {
	Method  string
	Pattern string
	Name    string

	// IsWebSocket marks a route registered through Engine.WebSocket: it
	// still dispatches like any other GET route, but is reported under
	// RouteManifest.WebSockets instead of RouteManifest.Routes, per
	// spec.md §3/§6.
	IsWebSocket bool

	handler Handler
	gasRefs []GasRef

	chainOnce sync.Once
	chain     Handler
}

// RouteTable owns every registered Route plus the routeTree that indexes
// them, per spec.md §3's `RouteTable`. It mirrors the teacher's `router`
// (router.go) in keeping a flat slice of routes alongside the trie, so
// duplicate/ambiguity checks at registration time don't need a tree walk.
type RouteTable struct {
	mu       sync.RWMutex
	tree     *routeTree
	routes   []*Route
	byName   map[string]*Route
	frozen   bool
	registry *middlewareRegistry
	global   []GasRef

	defaultOptionsEnabled bool
}

func newRouteTable(cache *pathCache, registry *middlewareRegistry) *RouteTable {
	return &RouteTable{
		tree:                  newRouteTree(cache),
		byName:                map[string]*Route{},
		registry:              registry,
		defaultOptionsEnabled: true,
	}
}

// Add registers a new route. It panics on conflicting registrations, same
// as the teacher's `router.add`, since registration errors are always
// programmer errors caught at startup rather than runtime conditions.
func (t *RouteTable) Add(method, pattern, name string, handler Handler, gasRefs []GasRef) *Route {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.frozen {
		panic("routed: cannot register routes after the engine has begun serving requests")
	}

	route := &Route{
		Method:  method,
		Pattern: pattern,
		Name:    name,
		handler: handler,
		gasRefs: gasRefs,
	}

	t.tree.insert(pattern, route)
	t.routes = append(t.routes, route)
	if name != "" {
		if _, exists := t.byName[name]; exists {
			panic(fmt.Sprintf("routed: route name %q is already registered", name))
		}
		t.byName[name] = route
	}

	return route
}

// SetDefaultOptionsEnabled toggles the engine-provided default OPTIONS
// responder under the writer lock, for use by Engine.reloadConfig when an
// EngineConfig is hot-reloaded (config.go, spec.md §5).
func (t *RouteTable) SetDefaultOptionsEnabled(enabled bool) {
	t.mu.Lock()
	t.defaultOptionsEnabled = enabled
	t.mu.Unlock()
}

// DefaultOptionsEnabled reports whether the engine-provided default OPTIONS
// responder is active, read under the same lock SetDefaultOptionsEnabled
// writes under so a concurrent config reload can never race the dispatcher.
func (t *RouteTable) DefaultOptionsEnabled() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.defaultOptionsEnabled
}

// SetGlobalMiddleware replaces the table's global middleware id list,
// invalidating every route's cached chain per spec.md §3 ("A route's
// cached chain is invalidated when the global middleware list changes").
func (t *RouteTable) SetGlobalMiddleware(refs []GasRef) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.global = refs
	for _, r := range t.routes {
		r.chainOnce = sync.Once{}
		r.chain = nil
	}
}

// freeze marks the table immutable; called by the dispatcher on first
// request per spec.md §3's "mutated only before serving begins" lifecycle.
func (t *RouteTable) freeze() {
	t.mu.Lock()
	t.frozen = true
	t.mu.Unlock()
}

// ByName looks up a route by its registered name, used by URL-generation
// helpers and tests.
func (t *RouteTable) ByName(name string) (*Route, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	r, ok := t.byName[name]
	return r, ok
}

// lookup matches method and normalizedPath against the tree, returning the
// route, captured params, an Allow set on 405, or nothing on 404.
func (t *RouteTable) lookup(cache *pathCache, method, normalizedPath string) matchResult {
	segs := cache.segments(normalizedPath)
	return t.tree.match(method, segs)
}

// chain resolves route's composed handler chain: global ⧺ per-route gas,
// each entry de-duplicated by identity so the same middleware reference
// never runs twice in one request, per spec.md §4.2.
func (t *RouteTable) chain(route *Route) Handler {
	route.chainOnce.Do(func() {
		t.mu.RLock()
		global := append([]GasRef(nil), t.global...)
		t.mu.RUnlock()

		refs := append(global, route.gasRefs...)
		gases := t.registry.resolveDeduped(refs)

		h := route.handler
		for i := len(gases) - 1; i >= 0; i-- {
			h = gases[i](h)
		}
		route.chain = h
	})
	return route.chain
}

// allowedMethods returns the sorted set of methods registered for every
// route sharing pattern, used to build the Allow header on 405 responses
// and the default OPTIONS handler.
func (t *RouteTable) allowedMethods(methodsSet map[string]bool) []string {
	methods := make([]string, 0, len(methodsSet))
	for m := range methodsSet {
		methods = append(methods, m)
	}
	if !methodsSet[http.MethodOptions] {
		methods = append(methods, http.MethodOptions)
	}
	sort.Strings(methods)
	return methods
}
