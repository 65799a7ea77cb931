package routed

import (
	"net/http"

	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"
)

// Adapter contract (Design Notes §9): both HTTP/1.1 and HTTP/2 ultimately
// present a request to the engine as (headers, bodyStream, ...) via the
// same Request/Response pair. Rather than re-implement HTTP/2 framing and
// pseudo-header mapping by hand, the engine delegates to
// golang.org/x/net/http2 (a teacher dependency already present in
// air.go.legacy's `Serve`): http2.Server and h2c.NewHandler both speak
// http.Handler, so Engine.ServeHTTP — the same method the HTTP/1.1 server
// calls — is the adapter. net/http's own http2→http.Request pseudo-header
// mapping (":method", ":path", ":authority", ...) is reused verbatim
// instead of hand-rolled.

// H2CHandler wraps e for cleartext HTTP/2 (h2c), useful for serving HTTP/2
// behind a proxy that does not terminate TLS, or in tests that want to
// exercise the HTTP/2 code path without a certificate.
func H2CHandler(e *Engine) http.Handler {
	return h2c.NewHandler(e, &http2.Server{})
}

// ConfigureHTTP2 enables HTTP/2 over TLS on e's underlying *http.Server,
// called automatically by Engine.Run when Config.HTTP2Enabled is set.
func ConfigureHTTP2(e *Engine) error {
	return http2.ConfigureServer(e.server, &http2.Server{})
}
