package routed

import (
	"io"
	"net/http"
	"net/url"
	"sync"
)

// Request is an HTTP request, adapted from either an HTTP/1.1 or an
// HTTP/2 stream (see http2.go) into one common shape, per spec.md §6 and
// Design Notes §9.
type Request struct {
	// Engine is the `Engine` this request is being served by.
	Engine *Engine

	Method        string
	URL           *url.URL
	Proto         string
	Header        http.Header
	Body          io.ReadCloser
	ContentLength int64
	Host          string
	RemoteAddr    string

	hr  *http.Request
	res *Response

	pathParams   map[string][]string
	queryOnce    sync.Once
	queryValues  url.Values
	formOnce     sync.Once
	multipart    *MultipartForm
	multipartErr error
}

// reset re-initializes r to adapt hr for reuse from a pool.
func (r *Request) reset(e *Engine, hr *http.Request, res *Response) {
	r.Engine = e
	r.Method = hr.Method
	r.URL = hr.URL
	r.Proto = hr.Proto
	r.Header = hr.Header
	r.Body = hr.Body
	r.ContentLength = hr.ContentLength
	r.Host = hr.Host
	r.RemoteAddr = hr.RemoteAddr
	r.hr = hr
	r.res = res
	r.pathParams = nil
	r.queryOnce = sync.Once{}
	r.queryValues = nil
	r.formOnce = sync.Once{}
	r.multipart = nil
	r.multipartErr = nil
}

// HTTPRequest returns the underlying `*http.Request`, for interop with
// stdlib-shaped middleware (see `WrapHTTPMiddleware` in middleware.go).
func (r *Request) HTTPRequest() *http.Request { return r.hr }

// SetHTTPRequest replaces the underlying `*http.Request`, used by
// `WrapHTTPMiddleware` to observe mutations an adapted `http.Handler` makes.
func (r *Request) SetHTTPRequest(hr *http.Request) {
	r.hr = hr
	r.Header = hr.Header
	r.Body = hr.Body
}

// Param returns the values captured for the named path parameter. A
// catch-all (`{path:*}`) parameter is the only kind that can carry more
// than one value.
func (r *Request) Param(name string) []string {
	return r.pathParams[name]
}

// ParamValue returns the first value captured for the named path parameter,
// or the empty string if it was not captured.
func (r *Request) ParamValue(name string) string {
	if vs := r.pathParams[name]; len(vs) > 0 {
		return vs[0]
	}
	return ""
}

// Params returns every captured path parameter as a string-keyed map of
// lists, per spec.md §6.
func (r *Request) Params() map[string][]string { return r.pathParams }

// QueryValues returns the parsed query string, memoized for the lifetime of
// the request.
func (r *Request) QueryValues() url.Values {
	r.queryOnce.Do(func() {
		r.queryValues, _ = url.ParseQuery(r.URL.RawQuery)
	})
	return r.queryValues
}
