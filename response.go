package routed

import (
	"bufio"
	"bytes"
	"compress/gzip"
	"encoding/json"
	"errors"
	"io"
	"mime"
	"net"
	"net/http"
	"strconv"
	"strings"

	"github.com/aofei/mimesniffer"
	"github.com/gorilla/websocket"
)

// Response is an HTTP response. Like `Request`, it represents both the
// HTTP/1.1 and the HTTP/2 shape (see http2.go and Design Notes §9): callers
// only ever see byte streams and headers, never protocol framing.
type Response struct {
	Engine *Engine

	// Status is the status code; for HTTP/2 it becomes the ":status"
	// pseudo-header.
	Status int

	// Header is the header map. Set it before the first call to Write.
	Header http.Header

	// Written reports whether at least one byte has reached the client,
	// or the connection has been hijacked.
	Written bool

	req           *Request
	hrw           http.ResponseWriter
	deferredFuncs []func()
}

// reset re-initializes r to adapt hrw for reuse from a pool.
func (r *Response) reset(e *Engine, hrw http.ResponseWriter, req *Request) {
	r.Engine = e
	r.Status = http.StatusOK
	r.Header = make(http.Header)
	r.Written = false
	r.req = req
	r.hrw = hrw
	r.deferredFuncs = r.deferredFuncs[:0]
}

// HTTPResponseWriter returns the underlying `http.ResponseWriter`, for
// interop with stdlib-shaped middleware.
func (r *Response) HTTPResponseWriter() http.ResponseWriter { return r.hrw }

// SetHTTPResponseWriter replaces the underlying `http.ResponseWriter`.
func (r *Response) SetHTTPResponseWriter(hrw http.ResponseWriter) { r.hrw = hrw }

// Write writes b as the response body, sniffing a Content-Type when none
// has been set and gzip-compressing it when the client and the engine's
// configuration both allow it. It is the single point through which every
// other Write* helper, and every handler that writes raw bytes, ultimately
// flows — the "content-typed byte stream" the response surface promises.
func (r *Response) Write(b []byte) (int, error) {
	if r.Written {
		if r.req.Method == http.MethodHead {
			return len(b), nil
		}
		return r.hrw.Write(b)
	}

	if r.Header.Get("Content-Type") == "" && len(b) > 0 {
		r.Header.Set("Content-Type", mimesniffer.Sniff(b))
	}

	for k, vs := range r.Header {
		for _, v := range vs {
			r.hrw.Header().Add(k, v)
		}
	}

	if r.gzippable() {
		r.hrw.Header().Set("Content-Encoding", "gzip")
		r.hrw.Header().Del("Content-Length")
		r.hrw.WriteHeader(r.Status)
		r.Written = true

		if r.req.Method == http.MethodHead {
			return len(b), nil
		}

		gz := r.Engine.gzipWriterPool.Get().(*gzip.Writer)
		defer r.Engine.gzipWriterPool.Put(gz)
		gz.Reset(r.hrw)
		defer gz.Close()
		n, err := gz.Write(b)
		return n, err
	}

	r.hrw.Header().Set("Content-Length", strconv.Itoa(len(b)))
	r.hrw.WriteHeader(r.Status)
	r.Written = true

	if r.req.Method == http.MethodHead {
		return len(b), nil
	}

	return r.hrw.Write(b)
}

func (r *Response) gzippable() bool {
	cfg := r.Engine.snapshotConfig()

	if !cfg.GzipEnabled {
		return false
	}

	if !strings.Contains(r.req.Header.Get("Accept-Encoding"), "gzip") {
		return false
	}

	mt, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	for _, t := range cfg.GzipMIMETypes {
		if strings.EqualFold(t, mt) {
			return true
		}
	}
	return false
}

// WriteString writes s as a "text/plain" response.
func (r *Response) WriteString(s string) error {
	r.Header.Set("Content-Type", "text/plain; charset=utf-8")
	_, err := r.Write([]byte(s))
	return err
}

// WriteHTML writes h as a "text/html" response.
func (r *Response) WriteHTML(h string) error {
	r.Header.Set("Content-Type", "text/html; charset=utf-8")
	_, err := r.Write([]byte(h))
	return err
}

// WriteJSON marshals v and writes it as an "application/json" response.
func (r *Response) WriteJSON(v interface{}) error {
	var b []byte
	var err error
	if r.Engine.snapshotConfig().DebugMode {
		b, err = json.MarshalIndent(v, "", "\t")
	} else {
		b, err = json.Marshal(v)
	}
	if err != nil {
		return err
	}
	r.Header.Set("Content-Type", "application/json; charset=utf-8")
	_, err = r.Write(b)
	return err
}

// Stream copies from src as the response body without buffering it, useful
// for responses whose length is not known up front.
func (r *Response) Stream(contentType string, src io.Reader) error {
	if r.Header.Get("Content-Type") == "" {
		r.Header.Set("Content-Type", contentType)
	}

	for k, vs := range r.Header {
		for _, v := range vs {
			r.hrw.Header().Add(k, v)
		}
	}
	r.hrw.WriteHeader(r.Status)
	r.Written = true

	if r.req.Method == http.MethodHead {
		return nil
	}

	_, err := io.Copy(r.hrw, src)
	return err
}

// Flush sends any buffered data to the client immediately.
func (r *Response) Flush() {
	if flusher, ok := r.hrw.(http.Flusher); ok {
		flusher.Flush()
	}
}

// responseHijacker wraps an `http.Hijacker` to mark the response as written
// once the underlying connection is taken over.
type responseHijacker struct {
	r *Response
	h http.Hijacker
}

func (rh *responseHijacker) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	conn, rw, err := rh.h.Hijack()
	if err == nil {
		rh.r.Written = true
	}
	return conn, rw, err
}

// WebSocket upgrades the connection and hands it off, unparsed, to the
// caller. Per spec.md §1's explicit non-goal, the engine implements no
// websocket protocol logic beyond this handshake — framing, ping/pong, and
// message routing are the caller's responsibility.
func (r *Response) WebSocket() (*websocket.Conn, error) {
	if r.Written {
		return nil, errors.New("routed: response already written")
	}

	cfg := r.Engine.snapshotConfig()
	upgrader := &websocket.Upgrader{
		HandshakeTimeout: cfg.WebSocketHandshakeTimeout,
		Subprotocols:     cfg.WebSocketSubprotocols,
		CheckOrigin:      func(*http.Request) bool { return true },
	}

	conn, err := upgrader.Upgrade(r.hrw, r.req.HTTPRequest(), r.Header)
	if err != nil {
		return nil, err
	}

	r.Written = true
	return conn, nil
}

// Defer registers f to run after the response has been fully written and
// the dispatch chain has unwound, in LIFO order — mirroring the teacher's
// `deferredFuncs` drain in its ServeHTTP.
func (r *Response) Defer(f func()) {
	r.deferredFuncs = append(r.deferredFuncs, f)
}
