package routed

import (
	"bytes"
	"errors"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func newTestEngineContext(t *testing.T, e *Engine, method, path string) *EngineContext {
	t.Helper()
	hr := httptest.NewRequest(method, path, nil)
	rec := httptest.NewRecorder()

	req := &Request{}
	req.reset(e, hr, nil)
	res := &Response{}
	res.reset(e, rec, req)
	req.res = res

	ctx := newEngineContext(e)
	ctx.reset(e, req, res, nil)
	return ctx
}

func TestRecoverGasConvertsPanicIntoError(t *testing.T) {
	e := New()
	var buf bytes.Buffer
	e.Logger.Output = &buf

	h := RecoverGas()(func(*EngineContext) error {
		panic("exploded")
	})

	ctx := newTestEngineContext(t, e, "GET", "/")
	err := h(ctx)

	assert.Error(t, err)
	assert.Contains(t, err.Error(), "exploded")
	assert.Contains(t, buf.String(), "panic recovered")
}

func TestRecoverGasPassesThroughPanicErrorValues(t *testing.T) {
	e := New()
	e.Logger.Output = &bytes.Buffer{}

	sentinel := errors.New("sentinel failure")
	h := RecoverGas()(func(*EngineContext) error {
		panic(sentinel)
	})

	ctx := newTestEngineContext(t, e, "GET", "/")
	err := h(ctx)

	assert.Same(t, sentinel, err)
}

func TestRecoverGasDoesNotInterfereWhenNoPanicOccurs(t *testing.T) {
	e := New()
	h := RecoverGas()(func(*EngineContext) error { return nil })

	ctx := newTestEngineContext(t, e, "GET", "/")
	assert.NoError(t, h(ctx))
}

func TestCORSGasSetsAllowOriginWhenRequestHasOrigin(t *testing.T) {
	e := New()
	h := CORSGas(DefaultCORSConfig)(func(*EngineContext) error { return nil })

	ctx := newTestEngineContext(t, e, "GET", "/")
	ctx.Request.Header.Set("Origin", "https://example.com")

	assert.NoError(t, h(ctx))
	assert.Equal(t, "*", ctx.Response.Header.Get("Access-Control-Allow-Origin"))
}

func TestCORSGasRejectsOriginNotInAllowList(t *testing.T) {
	e := New()
	h := CORSGas(CORSConfig{AllowOrigins: []string{"https://allowed.example"}})(func(*EngineContext) error { return nil })

	ctx := newTestEngineContext(t, e, "GET", "/")
	ctx.Request.Header.Set("Origin", "https://evil.example")

	assert.NoError(t, h(ctx))
	assert.Empty(t, ctx.Response.Header.Get("Access-Control-Allow-Origin"))
}

func TestMiddlewareRegistryResolveDedupedKeepsFirstOccurrence(t *testing.T) {
	c := NewContainer()
	reg := newMiddlewareRegistry(c)

	var calls int
	reg.Register("count", func(*Container) Gas {
		calls++
		return func(next Handler) Handler { return next }
	})

	gases := reg.resolveDeduped([]GasRef{RefID("count"), RefID("count")})
	assert.Len(t, gases, 1)
	assert.Equal(t, 1, calls)
}

func TestMiddlewareRegistryResolveUnknownIDPanics(t *testing.T) {
	c := NewContainer()
	reg := newMiddlewareRegistry(c)

	assert.Panics(t, func() {
		reg.resolve("does-not-exist")
	})
}
