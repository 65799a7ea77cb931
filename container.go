package routed

import "sync"

// Container is the engine-wide service registry described in spec.md §4.5.
// No library in the example pack offers a dependency-injection container,
// so this is a small stdlib-backed map guarded by a mutex (see DESIGN.md).
type Container struct {
	parent   *Container
	readOnly bool

	mu       sync.RWMutex
	services map[string]interface{}
}

// NewContainer returns a new, empty, writable root Container.
func NewContainer() *Container {
	return &Container{services: map[string]interface{}{}}
}

// Set registers v under key. It panics if c is a read-only child, per
// spec.md §4.5 ("mutations on the child raise an error").
func (c *Container) Set(key string, v interface{}) {
	if c.readOnly {
		panic("routed: cannot mutate a read-only request container; switch to a mutable child scope first")
	}
	c.mu.Lock()
	c.services[key] = v
	c.mu.Unlock()
}

// Get resolves key, falling through to the parent container when not
// found locally, so a read-only child transparently sees everything the
// engine container holds.
func (c *Container) Get(key string) (interface{}, bool) {
	c.mu.RLock()
	v, ok := c.services[key]
	c.mu.RUnlock()
	if ok {
		return v, true
	}
	if c.parent != nil {
		return c.parent.Get(key)
	}
	return nil, false
}

// ReadOnlyChild returns a read-only view over c, the fast path enabled by
// `features.enableRequestContainerFastPath` (see EngineConfig): reads
// resolve through c without cloning its contents, per spec.md §4.5.
func (c *Container) ReadOnlyChild() *Container {
	return &Container{parent: c, readOnly: true}
}

// MutableChild returns a writable child of c, for middleware that needs to
// override a service just for the remainder of one request.
func (c *Container) MutableChild() *Container {
	return &Container{parent: c}
}
