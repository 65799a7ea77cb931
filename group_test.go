package routed

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGroupAddPrefixesRoutePath(t *testing.T) {
	e := New()
	g := e.Group("/api")
	g.GET("/widgets", func(ctx *EngineContext) error { return nil })

	m := e.Manifest()
	require.Len(t, m.Routes, 1)
	assert.Equal(t, "/api/widgets", m.Routes[0].Path)
}

func TestGroupUseAppliesMiddlewareToSubsequentRoutes(t *testing.T) {
	e := New()
	var order []string
	mark := func(name string) Gas {
		return func(next Handler) Handler {
			return func(ctx *EngineContext) error {
				order = append(order, name)
				return next(ctx)
			}
		}
	}

	g := e.Group("/api")
	g.Use(RefGas(mark("outer")))
	g.GET("/widgets", func(ctx *EngineContext) error {
		order = append(order, "handler")
		return nil
	})

	ctx := newTestEngineContext(t, e, "GET", "/api/widgets")
	result := e.table.lookup(e.pathCache, "GET", "/api/widgets")
	require.NotNil(t, result.route)
	ctx.Route = result.route
	ctx.Request.pathParams = result.params

	h := e.table.chain(result.route)
	require.NoError(t, h(ctx))

	assert.Equal(t, []string{"outer", "handler"}, order)
}

func TestGroupGroupInheritsPrefixAndMiddleware(t *testing.T) {
	e := New()
	var touched []string
	mark := func(name string) Gas {
		return func(next Handler) Handler {
			return func(ctx *EngineContext) error {
				touched = append(touched, name)
				return next(ctx)
			}
		}
	}

	api := e.Group("/api")
	api.Use(RefGas(mark("api")))

	v1 := api.Group("/v1")
	v1.Use(RefGas(mark("v1")))
	v1.GET("/widgets", func(ctx *EngineContext) error { return nil })

	m := e.Manifest()
	require.Len(t, m.Routes, 1)
	assert.Equal(t, "/api/v1/widgets", m.Routes[0].Path)

	result := e.table.lookup(e.pathCache, "GET", "/api/v1/widgets")
	require.NotNil(t, result.route)
	h := e.table.chain(result.route)

	ctx := newTestEngineContext(t, e, "GET", "/api/v1/widgets")
	ctx.Route = result.route
	require.NoError(t, h(ctx))

	assert.Equal(t, []string{"api", "v1"}, touched)
}

func TestGroupWebSocketSetsIsWebSocketFlag(t *testing.T) {
	e := New()
	g := e.Group("/rooms")
	route := g.WebSocket("/:id", func(ctx *EngineContext) error { return nil })

	assert.True(t, route.IsWebSocket)
	assert.Equal(t, "/rooms/:id", route.Pattern)
}
