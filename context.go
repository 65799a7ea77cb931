package routed

import (
	"reflect"
)

// EngineContext is the per-request scope described in spec.md §3 and §4.5:
// it owns the adapted Request/Response pair, the matched Route (nil on a
// 404), captured path parameters, a key/value store for middleware
// handoff, and the error-handling hooks the dispatcher consults on step 6
// of its lifecycle.
type EngineContext struct {
	Engine   *Engine
	Request  *Request
	Response *Response
	Route    *Route

	container *Container
	store     map[string]interface{}

	beforeError []func(*EngineContext, error)
	afterError  []func(*EngineContext, error)
}

func newEngineContext(e *Engine) *EngineContext {
	return &EngineContext{Engine: e, store: make(map[string]interface{}, 4)}
}

func (c *EngineContext) reset(e *Engine, req *Request, res *Response, route *Route) {
	c.Engine = e
	c.Request = req
	c.Response = res
	c.Route = route
	if c.Engine.snapshotConfig().EnableRequestContainerFastPath {
		c.container = e.container.ReadOnlyChild()
	} else {
		c.container = e.container.MutableChild()
	}
	for k := range c.store {
		delete(c.store, k)
	}
	c.beforeError = nil
	c.afterError = nil
}

// Container returns the per-request service container view.
func (c *EngineContext) Container() *Container { return c.container }

// UseMutableContainer switches c onto a full mutable child scope, for
// middleware that needs to install a scoped override (see spec.md §4.5).
func (c *EngineContext) UseMutableContainer() {
	c.container = c.Engine.container.MutableChild()
}

// Set stores a middleware-handoff value under key, for the lifetime of the
// request.
func (c *EngineContext) Set(key string, v interface{}) { c.store[key] = v }

// Value retrieves a middleware-handoff value previously stored with Set.
func (c *EngineContext) Value(key string) (interface{}, bool) {
	v, ok := c.store[key]
	return v, ok
}

// OnBeforeError registers an observer that runs before any `onError<T>`
// handler is consulted, per spec.md §4.6 step 6.
func (c *EngineContext) OnBeforeError(fn func(*EngineContext, error)) {
	c.beforeError = append(c.beforeError, fn)
}

// OnAfterError registers an observer that runs once the error response has
// been written.
func (c *EngineContext) OnAfterError(fn func(*EngineContext, error)) {
	c.afterError = append(c.afterError, fn)
}

// errorHandler pairs a concrete error type with a handler that may claim
// the error (return true) or decline it (return false, falling through to
// the next registered handler or the default negotiator).
type errorHandler struct {
	typ reflect.Type
	fn  func(*EngineContext, error) bool
}

// handleError runs c's beforeError observers, then the engine's registered
// onError<T> handlers from most specific (exact type match) to least
// specific, then — if none claimed it — the default content negotiator.
// afterError observers always run last, per spec.md §4.6 step 6.
func (c *EngineContext) handleError(err error) {
	for _, fn := range c.beforeError {
		fn(c, err)
	}

	handled := false
	errType := reflect.TypeOf(err)
	for _, eh := range c.Engine.errorHandlers {
		if eh.typ == errType {
			if eh.fn(c, err) {
				handled = true
				break
			}
		}
	}
	if !handled {
		for _, eh := range c.Engine.errorHandlers {
			if eh.typ != errType && eh.fn(c, err) {
				handled = true
				break
			}
		}
	}

	if !handled {
		c.Engine.negotiator.write(c.Request, c.Response, err)
	}

	for _, fn := range c.afterError {
		fn(c, err)
	}
}
