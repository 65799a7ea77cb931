package routed

import (
	"fmt"
	"runtime"
)

// EventKind identifies one of the dispatch lifecycle events fired around
// routing and request handling, per spec.md §4.5.
type EventKind uint8

const (
	EventRequestStarted EventKind = iota
	EventBeforeRouting
	EventRouteMatched
	EventRouteNotFound
	EventAfterRouting
	EventRoutingError
	EventRequestFinished
)

// Event is the payload passed to an EventListener.
type Event struct {
	Kind  EventKind
	Ctx   *EngineContext
	Error error
}

// EventListener observes dispatch lifecycle events.
type EventListener func(Event)

// eventBus fans a fired Event out to its registered listeners. The engine
// caches, on first request, whether any listener is bound at all
// (see Engine.hasListeners) so that later requests skip Event construction
// entirely when nothing observes it, per spec.md §4.5.
type eventBus struct {
	listeners map[EventKind][]EventListener
}

func newEventBus() *eventBus {
	return &eventBus{listeners: map[EventKind][]EventListener{}}
}

// On registers listener for kind.
func (b *eventBus) On(kind EventKind, listener EventListener) {
	b.listeners[kind] = append(b.listeners[kind], listener)
}

// bound reports whether any listener is registered at all, across every
// kind.
func (b *eventBus) bound() bool {
	return len(b.listeners) > 0
}

// fire invokes every listener registered for kind, in registration order. A
// panic in a listener is recovered and logged rather than propagated, per
// spec.md §7, mirroring RecoverGas's panic handling in middleware.go.
func (b *eventBus) fire(kind EventKind, ctx *EngineContext, err error) {
	event := Event{Kind: kind, Ctx: ctx, Error: err}
	for _, l := range b.listeners[kind] {
		b.invoke(l, event, ctx)
	}
}

func (b *eventBus) invoke(l EventListener, event Event, ctx *EngineContext) {
	defer func() {
		if rec := recover(); rec != nil {
			if ctx != nil && ctx.Engine != nil && ctx.Engine.Logger != nil {
				stack := make([]byte, 4<<10)
				n := runtime.Stack(stack, false)
				ctx.Engine.Logger.Error("panic recovered in event listener", Fields{
					"event": event.Kind,
					"panic": fmt.Sprintf("%v", rec),
					"stack": string(stack[:n]),
				})
			}
		}
	}()
	l(event)
}
