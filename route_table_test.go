package routed

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRouteTable() *RouteTable {
	cache := newPathCache(0)
	registry := newMiddlewareRegistry(NewContainer())
	return newRouteTable(cache, registry)
}

func TestRouteTableAddRegistersNamedRoute(t *testing.T) {
	rt := newTestRouteTable()
	rt.Add("GET", "/widgets/:id", "widget.show", func(*EngineContext) error { return nil }, nil)

	route, ok := rt.ByName("widget.show")
	require.True(t, ok)
	assert.Equal(t, "/widgets/:id", route.Pattern)
}

func TestRouteTableAddPanicsOnDuplicateName(t *testing.T) {
	rt := newTestRouteTable()
	rt.Add("GET", "/a", "dup", func(*EngineContext) error { return nil }, nil)

	assert.Panics(t, func() {
		rt.Add("GET", "/b", "dup", func(*EngineContext) error { return nil }, nil)
	})
}

func TestRouteTableAddPanicsAfterFreeze(t *testing.T) {
	rt := newTestRouteTable()
	rt.freeze()

	assert.Panics(t, func() {
		rt.Add("GET", "/a", "", func(*EngineContext) error { return nil }, nil)
	})
}

func TestRouteTableSetGlobalMiddlewareInvalidatesCachedChains(t *testing.T) {
	rt := newTestRouteTable()
	route := rt.Add("GET", "/widgets", "", func(*EngineContext) error { return nil }, nil)

	rt.registry.Register("m1", func(*Container) Gas {
		return func(next Handler) Handler { return next }
	})

	first := rt.chain(route)
	rt.SetGlobalMiddleware([]GasRef{RefID("m1")})
	second := rt.chain(route)

	assert.NotNil(t, first)
	assert.NotNil(t, second)
}

func TestRouteTableAllowedMethodsAddsOptionsWhenAbsent(t *testing.T) {
	rt := newTestRouteTable()
	methods := rt.allowedMethods(map[string]bool{"GET": true, "POST": true})
	assert.Equal(t, []string{"GET", "OPTIONS", "POST"}, methods)
}

func TestRouteTableAllowedMethodsKeepsExplicitOptions(t *testing.T) {
	rt := newTestRouteTable()
	methods := rt.allowedMethods(map[string]bool{"GET": true, "OPTIONS": true})
	assert.Equal(t, []string{"GET", "OPTIONS"}, methods)
}

func TestRouteTableByNameReportsMissingRoute(t *testing.T) {
	rt := newTestRouteTable()
	_, ok := rt.ByName("nope")
	assert.False(t, ok)
}
