package routed

import (
	"encoding/json"
	"fmt"
	"html"
	"net/http"
	"strings"
)

// negotiator inspects Accept and X-Requested-With to decide whether an error
// or not-found response should be rendered as JSON, HTML, or plain text, per
// spec.md §4.8.
type negotiator struct {
	minifier *htmlMinifier
}

func newNegotiator() *negotiator {
	return &negotiator{minifier: newHTMLMinifier()}
}

func wantsJSON(req *Request) bool {
	accept := req.Header.Get("Accept")
	if strings.Contains(accept, "application/json") || strings.Contains(accept, "+json") {
		return true
	}
	return req.Header.Get("X-Requested-With") == "XMLHttpRequest"
}

func acceptsHTML(req *Request) bool {
	accept := req.Header.Get("Accept")
	return strings.Contains(accept, "text/html") || strings.Contains(accept, "application/xhtml+xml")
}

// write renders err (already classified by classify) onto res, content
// negotiated against req.
func (n *negotiator) write(req *Request, res *Response, err error) {
	kind, status := classify(err)
	if ve, ok := err.(*ValidationError); ok {
		n.writeValidation(req, res, ve, status)
		return
	}

	message := err.Error()
	var code string
	var allow []string
	switch kind {
	case KindMethodNotAllowed:
		if mna, ok := err.(*MethodNotAllowedError); ok {
			allow = mna.Allowed
		}
	case KindEngine:
		if ee, ok := err.(*EngineError); ok {
			code = ee.Code
		}
	}

	if len(allow) > 0 {
		res.Header.Set("Allow", strings.Join(allow, ", "))
	}

	res.Status = status

	switch {
	case wantsJSON(req):
		n.writeJSON(res, status, message, code, nil)
	case acceptsHTML(req):
		n.writeHTML(res, status, html.EscapeString(message))
	default:
		n.writeText(res, status, message)
	}
}

// writeNotFound renders a 404 when no route matched the request, content
// negotiated against req — used directly by the dispatcher, since a 404
// never flows through `classify`.
func (n *negotiator) writeNotFound(req *Request, res *Response) {
	res.Status = http.StatusNotFound
	switch {
	case wantsJSON(req):
		n.writeJSON(res, http.StatusNotFound, "Not Found", "", nil)
	case acceptsHTML(req):
		n.writeHTML(res, http.StatusNotFound, "Not Found")
	default:
		n.writeText(res, http.StatusNotFound, "Not Found")
	}
}

func (n *negotiator) writeValidation(req *Request, res *Response, ve *ValidationError, status int) {
	res.Status = status
	switch {
	case wantsJSON(req):
		n.writeJSON(res, status, "Validation Failed", "", ve.Fields)
	case acceptsHTML(req):
		var b strings.Builder
		for field, msgs := range ve.Fields {
			fmt.Fprintf(&b, "<li><strong>%s</strong>: %s</li>", html.EscapeString(field), html.EscapeString(strings.Join(msgs, ", ")))
		}
		n.writeHTML(res, status, "Validation Failed<ul>"+b.String()+"</ul>")
	default:
		var b strings.Builder
		for field, msgs := range ve.Fields {
			fmt.Fprintf(&b, "%s: %s; ", field, strings.Join(msgs, ", "))
		}
		n.writeText(res, status, b.String())
	}
}

func (n *negotiator) writeJSON(res *Response, status int, message, code string, fields map[string][]string) {
	body := map[string]interface{}{
		"error":  http.StatusText(status),
		"status": status,
	}
	if message != "" && message != http.StatusText(status) {
		body["message"] = message
	}
	if code != "" {
		body["code"] = code
	}
	for k, v := range fields {
		body[k] = v
	}
	res.Header.Set("Content-Type", "application/json; charset=utf-8")
	b, _ := json.Marshal(body)
	_, _ = res.Write(b)
}

// writeHTML renders message as the body of a minimal HTML error page.
// message is inserted as-is: callers that embed request- or error-derived
// text must escape it themselves (see write and writeValidation) since some
// callers intentionally pass pre-built HTML fragments (e.g. a <ul> of
// validation messages).
func (n *negotiator) writeHTML(res *Response, status int, message string) {
	doc := fmt.Sprintf(
		"<!DOCTYPE html><html><head><title>%d %s</title></head>"+
			"<body><h1>%d %s</h1><p>%s</p></body></html>",
		status, http.StatusText(status), status, http.StatusText(status), message,
	)
	res.Header.Set("Content-Type", "text/html; charset=utf-8")
	_, _ = res.Write(n.minifier.minify([]byte(doc)))
}

func (n *negotiator) writeText(res *Response, status int, message string) {
	res.Header.Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = res.Write([]byte(fmt.Sprintf("%d %s", status, message)))
}
