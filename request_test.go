package routed

import (
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRequestParamReturnsCapturedValues(t *testing.T) {
	e := New()
	hr := httptest.NewRequest("GET", "/widgets/7", nil)
	req := &Request{}
	req.reset(e, hr, nil)
	req.pathParams = map[string][]string{"id": {"7"}}

	assert.Equal(t, []string{"7"}, req.Param("id"))
	assert.Equal(t, "7", req.ParamValue("id"))
	assert.Empty(t, req.ParamValue("missing"))
}

func TestRequestParamsReturnsFullCaptureMap(t *testing.T) {
	e := New()
	hr := httptest.NewRequest("GET", "/files/a/b", nil)
	req := &Request{}
	req.reset(e, hr, nil)
	req.pathParams = map[string][]string{"path": {"a", "b"}}

	assert.Equal(t, map[string][]string{"path": {"a", "b"}}, req.Params())
}

func TestRequestQueryValuesParsesAndMemoizes(t *testing.T) {
	e := New()
	hr := httptest.NewRequest("GET", "/search?q=widgets&page=2", nil)
	req := &Request{}
	req.reset(e, hr, nil)

	first := req.QueryValues()
	assert.Equal(t, "widgets", first.Get("q"))
	assert.Equal(t, "2", first.Get("page"))

	first.Set("q", "mutated")
	second := req.QueryValues()
	assert.Equal(t, "mutated", second.Get("q"))
}

func TestRequestResetClearsPreviousPoolState(t *testing.T) {
	e := New()
	hr1 := httptest.NewRequest("GET", "/one?x=1", nil)
	req := &Request{}
	req.reset(e, hr1, nil)
	req.pathParams = map[string][]string{"id": {"1"}}
	req.QueryValues()

	hr2 := httptest.NewRequest("GET", "/two", nil)
	req.reset(e, hr2, nil)

	assert.Nil(t, req.Params())
	assert.Nil(t, req.queryValues)
}

func TestRequestHTTPRequestRoundTrips(t *testing.T) {
	e := New()
	hr := httptest.NewRequest("GET", "/", nil)
	req := &Request{}
	req.reset(e, hr, nil)
	assert.Same(t, hr, req.HTTPRequest())

	hr2 := httptest.NewRequest("POST", "/", nil)
	req.SetHTTPRequest(hr2)
	assert.Same(t, hr2, req.HTTPRequest())
	assert.Equal(t, hr2.Header, req.Header)
}
