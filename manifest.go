package routed

// RouteManifest is the serializable introspection view of every
// registered route, per spec.md §3. It is produced on demand and never
// consulted by the dispatcher. Websocket mounts (Engine.WebSocket,
// Group.WebSocket) are reported under WebSockets rather than Routes, per
// spec.md §6.
type RouteManifest struct {
	Routes     []RouteManifestEntry  `json:"routes"`
	WebSockets []WebSocketMountEntry `json:"webSockets,omitempty"`
}

// RouteManifestEntry describes one registered route.
type RouteManifestEntry struct {
	Method     string   `json:"method"`
	Path       string   `json:"path"`
	Name       string   `json:"name,omitempty"`
	Middleware []string `json:"middleware,omitempty"`
}

// WebSocketMountEntry describes one registered websocket mount, matching
// spec.md §6's `webSockets: [{path, middleware: […]}, …]` shape.
type WebSocketMountEntry struct {
	Path       string   `json:"path"`
	Name       string   `json:"name,omitempty"`
	Middleware []string `json:"middleware,omitempty"`
}

func buildManifest(t *RouteTable) RouteManifest {
	t.mu.RLock()
	defer t.mu.RUnlock()

	entries := make([]RouteManifestEntry, 0, len(t.routes))
	mounts := make([]WebSocketMountEntry, 0)
	for _, r := range t.routes {
		ids := make([]string, 0, len(r.gasRefs))
		for _, ref := range r.gasRefs {
			if ref.id != "" {
				ids = append(ids, ref.id)
			}
		}
		if r.IsWebSocket {
			mounts = append(mounts, WebSocketMountEntry{
				Path:       r.Pattern,
				Name:       r.Name,
				Middleware: ids,
			})
			continue
		}
		entries = append(entries, RouteManifestEntry{
			Method:     r.Method,
			Path:       r.Pattern,
			Name:       r.Name,
			Middleware: ids,
		})
	}

	return RouteManifest{Routes: entries, WebSockets: mounts}
}
