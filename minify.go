package routed

import (
	"bytes"

	"github.com/tdewolff/minify/v2"
	"github.com/tdewolff/minify/v2/html"
)

// htmlMinifier minifies the HTML bodies the negotiator renders for error
// responses. It is the only surviving use of the teacher's minify
// dependency: templating itself is out of scope per spec.md §1.
type htmlMinifier struct {
	m *minify.M
}

func newHTMLMinifier() *htmlMinifier {
	m := minify.New()
	m.AddFunc("text/html", html.Minify)
	return &htmlMinifier{m: m}
}

func (h *htmlMinifier) minify(b []byte) []byte {
	buf := &bytes.Buffer{}
	if err := h.m.Minify("text/html", buf, bytes.NewReader(b)); err != nil {
		return b
	}
	return buf.Bytes()
}
