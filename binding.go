package routed

import (
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
)

// Binding is the polymorphic binding capability described in spec.md §3
// and §4.3: `bind(ctx, target)` populates target from one source,
// grounded on the teacher's own content-type switch in
// binder.go.legacy's `Bind`, generalized into one implementation per
// source instead of one big switch.
type Binding interface {
	Bind(ctx *EngineContext, target interface{}) error
}

// Bindable lets a target populate itself from a decoded map, the
// non-struct counterpart to a plain JSON-tagged struct target.
type Bindable interface {
	BindMap(map[string]interface{}) error
}

// JSONBinding decodes the request body as JSON, memoizing the decode so a
// handler and its middleware can both call Bind without re-reading the
// body.
type JSONBinding struct{}

func (JSONBinding) Bind(ctx *EngineContext, target interface{}) error {
	if ctx.Request.Body == nil {
		return NewEngineError(400, "empty_body", "request body can't be empty")
	}
	dec := json.NewDecoder(ctx.Request.Body)
	if err := dec.Decode(target); err != nil {
		return NewEngineError(400, "invalid_json", err.Error())
	}
	return nil
}

// FormBinding parses URL-encoded pairs into target, supporting bracket
// notation (`user[addr][city]=x` nests; `tags[]=a&tags[]=b` lists;
// repeated plain keys become lists), per spec.md §4.3.
type FormBinding struct{}

func (FormBinding) Bind(ctx *EngineContext, target interface{}) error {
	if err := ctx.Request.hr.ParseForm(); err != nil {
		return NewEngineError(400, "invalid_form", err.Error())
	}
	m := decodeBracketForm(ctx.Request.hr.PostForm)
	return bindMap(m, target)
}

// MultipartBinding copies non-file fields from the multipart cache
// (multipart.go) into target; file fields remain accessible via
// EngineContext.FormFile.
type MultipartBinding struct{}

func (MultipartBinding) Bind(ctx *EngineContext, target interface{}) error {
	form, err := ctx.Request.multipartForm(ctx.Engine.snapshotConfig().Multipart)
	if err != nil {
		return err
	}
	m := make(map[string]interface{}, len(form.Fields))
	for k, v := range form.Fields {
		m[k] = v
	}
	return bindMap(m, target)
}

// QueryBinding reads from the memoized query cache.
type QueryBinding struct{}

func (QueryBinding) Bind(ctx *EngineContext, target interface{}) error {
	m := decodeBracketForm(ctx.Request.QueryValues())
	return bindMap(m, target)
}

// URIBinding reads captured path parameters.
type URIBinding struct{}

func (URIBinding) Bind(ctx *EngineContext, target interface{}) error {
	m := make(map[string]interface{}, len(ctx.Request.pathParams))
	for k, vs := range ctx.Request.pathParams {
		if len(vs) == 1 {
			m[k] = vs[0]
		} else {
			m[k] = vs
		}
	}
	return bindMap(m, target)
}

// defaultBinding chooses GET -> query; application/json -> JSON;
// multipart/form-data -> multipart; else form, per spec.md §4.3.
func defaultBinding(method, contentType string) Binding {
	switch {
	case method == "GET" || method == "HEAD":
		return QueryBinding{}
	case strings.HasPrefix(contentType, "application/json"):
		return JSONBinding{}
	case strings.HasPrefix(contentType, "multipart/form-data"):
		return MultipartBinding{}
	default:
		return FormBinding{}
	}
}

// Bind binds the request onto target using the content-type-appropriate
// Binding, per spec.md §4.3's `defaultBinding`.
func (c *EngineContext) Bind(target interface{}) error {
	b := defaultBinding(c.Request.Method, c.Request.Header.Get("Content-Type"))
	return b.Bind(c, target)
}

// bindMap applies m onto target: a Bindable gets BindMap directly;
// anything else is round-tripped through encoding/json (marshal m, then
// unmarshal into target), matching Go's usual struct-tag-driven decoding
// without a hand-rolled reflection walker.
func bindMap(m map[string]interface{}, target interface{}) error {
	if b, ok := target.(Bindable); ok {
		return b.BindMap(m)
	}
	b, err := json.Marshal(m)
	if err != nil {
		return err
	}
	return json.Unmarshal(b, target)
}

// decodeBracketForm expands bracket-notation keys (`a[b][c]`, `a[]`) from
// url.Values into a nested map, per spec.md §4.3.
func decodeBracketForm(values url.Values) map[string]interface{} {
	root := map[string]interface{}{}

	for key, vals := range values {
		path := splitBracketPath(key)
		if len(vals) > 1 || strings.HasSuffix(key, "[]") {
			insertBracketPath(root, path, vals)
		} else {
			insertBracketPath(root, path, vals[0])
		}
	}

	return root
}

// splitBracketPath turns "user[addr][city]" into ["user", "addr", "city"]
// and "tags[]" into ["tags"].
func splitBracketPath(key string) []string {
	key = strings.TrimSuffix(key, "[]")
	first := strings.IndexByte(key, '[')
	if first < 0 {
		return []string{key}
	}
	parts := []string{key[:first]}
	rest := key[first:]
	for len(rest) > 0 {
		if rest[0] != '[' {
			break
		}
		end := strings.IndexByte(rest, ']')
		if end < 0 {
			break
		}
		parts = append(parts, rest[1:end])
		rest = rest[end+1:]
	}
	return parts
}

func insertBracketPath(root map[string]interface{}, path []string, value interface{}) {
	if len(path) == 0 {
		return
	}
	if len(path) == 1 {
		if existing, ok := root[path[0]]; ok {
			root[path[0]] = appendFormValue(existing, value)
		} else {
			root[path[0]] = value
		}
		return
	}

	next, ok := root[path[0]].(map[string]interface{})
	if !ok {
		next = map[string]interface{}{}
		root[path[0]] = next
	}
	insertBracketPath(next, path[1:], value)
}

// appendFormValue merges a repeated key's new value into whatever was
// already stored there, growing a list in insertion order.
func appendFormValue(existing, value interface{}) interface{} {
	switch e := existing.(type) {
	case []string:
		if v, ok := value.(string); ok {
			return append(e, v)
		}
		if v, ok := value.([]string); ok {
			return append(e, v...)
		}
	case string:
		if v, ok := value.(string); ok {
			return []string{e, v}
		}
	}
	return fmt.Sprintf("%v", value)
}
