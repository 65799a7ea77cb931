package routed

// Group is a set of sub-routes sharing a path prefix and a common set of
// middleware, grounded on the teacher's own `Group` (group.go.legacy),
// generalized to the new Gas/Handler/GasRef registration surface.
type Group struct {
	prefix string
	refs   []GasRef
	engine *Engine
}

// Use appends refs to every route subsequently registered on g (and on any
// sub-group derived from it).
func (g *Group) Use(refs ...GasRef) {
	g.refs = append(g.refs, refs...)
}

// Group derives a sub-group under g, inheriting g's prefix and middleware.
func (g *Group) Group(prefix string, refs ...GasRef) *Group {
	combined := append(append([]GasRef(nil), g.refs...), refs...)
	return &Group{prefix: g.prefix + prefix, refs: combined, engine: g.engine}
}

func (g *Group) add(method, path string, h Handler, refs ...GasRef) *Route {
	combined := append(append([]GasRef(nil), g.refs...), refs...)
	return g.engine.addRoute(method, g.prefix+path, h, combined)
}

// GET registers a GET route under g.
func (g *Group) GET(path string, h Handler, refs ...GasRef) *Route {
	return g.add("GET", path, h, refs...)
}

// HEAD registers a HEAD route under g.
func (g *Group) HEAD(path string, h Handler, refs ...GasRef) *Route {
	return g.add("HEAD", path, h, refs...)
}

// POST registers a POST route under g.
func (g *Group) POST(path string, h Handler, refs ...GasRef) *Route {
	return g.add("POST", path, h, refs...)
}

// PUT registers a PUT route under g.
func (g *Group) PUT(path string, h Handler, refs ...GasRef) *Route {
	return g.add("PUT", path, h, refs...)
}

// PATCH registers a PATCH route under g.
func (g *Group) PATCH(path string, h Handler, refs ...GasRef) *Route {
	return g.add("PATCH", path, h, refs...)
}

// DELETE registers a DELETE route under g.
func (g *Group) DELETE(path string, h Handler, refs ...GasRef) *Route {
	return g.add("DELETE", path, h, refs...)
}

// OPTIONS registers an OPTIONS route under g.
func (g *Group) OPTIONS(path string, h Handler, refs ...GasRef) *Route {
	return g.add("OPTIONS", path, h, refs...)
}

// WebSocket registers a websocket mount under g, reported separately from
// regular routes in RouteManifest (manifest.go), per spec.md §3/§6.
func (g *Group) WebSocket(path string, h Handler, refs ...GasRef) *Route {
	route := g.add("GET", path, h, refs...)
	route.IsWebSocket = true
	return route
}
