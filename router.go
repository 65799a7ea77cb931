package routed

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/google/uuid"
)

// node kinds, matched in this order at every level of the tree per
// spec.md §4.1: exact children before parameter children before wildcard
// children.
type nodeKind uint8

const (
	staticKind nodeKind = iota
	paramKind
	wildcardKind
)

// constraint validates a single captured path segment against a named type
// or a route-scoped regular expression.
type constraint struct {
	name string
	re   *regexp.Regexp
}

func (c *constraint) accepts(segment string) bool {
	if c == nil {
		return true
	}
	if c.re != nil {
		return c.re.MatchString(segment)
	}
	switch c.name {
	case "int":
		_, err := strconv.ParseInt(segment, 10, 64)
		return err == nil
	case "uuid":
		_, err := uuid.Parse(segment)
		return err == nil
	case "alpha":
		return alphaPattern.MatchString(segment)
	case "word":
		return wordPattern.MatchString(segment)
	case "string", "":
		return segment != ""
	}
	return true
}

var (
	alphaPattern = regexp.MustCompile(`^[A-Za-z]+$`)
	wordPattern  = regexp.MustCompile(`^\w+$`)
)

// node is a single level of the route tree, grounded on the teacher's
// `node` in router.go: a labeled radix node generalized here to also carry
// a parameter constraint and a catch-all flag, since the teacher only
// distinguished static/param/any by a bare `nodeKind` with no per-node
// constraint.
type node struct {
	kind       nodeKind
	label      byte
	prefix     string
	paramName  string
	constraint *constraint
	methodMap  map[string]*Route
	parent     *node
	children   []*node
}

func (n *node) child(label byte, kind nodeKind) *node {
	for _, c := range n.children {
		if c.kind == kind && c.label == label {
			return c
		}
	}
	return nil
}

func (n *node) childByKind(kind nodeKind) *node {
	for _, c := range n.children {
		if c.kind == kind {
			return c
		}
	}
	return nil
}

// routeTree is the path-segment trie described in spec.md §3 (`TrieNode`)
// and §4.1. It owns matching only; route bookkeeping (names, middleware
// lists, cached chains) lives in the RouteTable (route_table.go).
type routeTree struct {
	root  *node
	cache *pathCache
}

func newRouteTree(cache *pathCache) *routeTree {
	return &routeTree{
		root:  &node{methodMap: map[string]*Route{}},
		cache: cache,
	}
}

// segmentSpec is one parsed path-pattern segment.
type segmentSpec struct {
	kind       nodeKind
	literal    string
	paramName  string
	constraint *constraint
}

// parsePattern splits a route pattern such as "/users/{id:int}/posts/{path:*}"
// into its segmentSpecs, compiling any `{name:regex}` constraints that are
// not one of the built-in named types.
func parsePattern(pattern string) ([]segmentSpec, error) {
	if pattern == "" || pattern[0] != '/' {
		return nil, fmt.Errorf("routed: route pattern %q must start with /", pattern)
	}

	segs := splitPath(pattern)
	specs := make([]segmentSpec, 0, len(segs))

	for i, seg := range segs {
		switch {
		case seg == "*":
			if i != len(segs)-1 {
				return nil, fmt.Errorf("routed: %q: * must be the final segment", pattern)
			}
			specs = append(specs, segmentSpec{kind: wildcardKind, paramName: "*"})
		case strings.HasPrefix(seg, "{") && strings.HasSuffix(seg, "}"):
			inner := seg[1 : len(seg)-1]
			name := inner
			var typ string
			if idx := strings.Index(inner, ":"); idx >= 0 {
				name = inner[:idx]
				typ = inner[idx+1:]
			}
			if name == "" {
				return nil, fmt.Errorf("routed: %q: empty parameter name", pattern)
			}
			if typ == "*" {
				if i != len(segs)-1 {
					return nil, fmt.Errorf("routed: %q: catch-all must be the final segment", pattern)
				}
				specs = append(specs, segmentSpec{kind: wildcardKind, paramName: name})
				continue
			}
			var c *constraint
			if typ != "" {
				if isBuiltinConstraint(typ) {
					c = &constraint{name: typ}
				} else {
					re, err := regexp.Compile("^(?:" + typ + ")$")
					if err != nil {
						return nil, fmt.Errorf("routed: %q: invalid constraint regex: %w", pattern, err)
					}
					c = &constraint{name: typ, re: re}
				}
			}
			specs = append(specs, segmentSpec{kind: paramKind, paramName: name, constraint: c})
		default:
			specs = append(specs, segmentSpec{kind: staticKind, literal: seg})
		}
	}

	return specs, nil
}

func isBuiltinConstraint(typ string) bool {
	switch typ {
	case "int", "uuid", "alpha", "word", "string":
		return true
	}
	return false
}

// insert registers route at pattern's position in the tree. It panics on
// malformed patterns and on conflicting-variant insertions, mirroring the
// teacher's registration-time panics in router.go's `add`.
func (t *routeTree) insert(pattern string, route *Route) {
	specs, err := parsePattern(pattern)
	if err != nil {
		panic(err)
	}

	cn := t.root
	for _, spec := range specs {
		switch spec.kind {
		case staticKind:
			cn = t.insertStatic(cn, spec.literal)
		case paramKind:
			if existing := cn.childByKind(paramKind); existing != nil {
				if existing.paramName != spec.paramName {
					panic(fmt.Sprintf(
						"routed: route %q conflicts with an existing parameter %q at the same position",
						pattern, existing.paramName,
					))
				}
				cn = existing
				continue
			}
			child := &node{
				kind:       paramKind,
				paramName:  spec.paramName,
				constraint: spec.constraint,
				methodMap:  map[string]*Route{},
				parent:     cn,
			}
			cn.children = append(cn.children, child)
			cn = child
		case wildcardKind:
			if existing := cn.childByKind(wildcardKind); existing != nil {
				cn = existing
				continue
			}
			child := &node{
				kind:      wildcardKind,
				paramName: spec.paramName,
				methodMap: map[string]*Route{},
				parent:    cn,
			}
			cn.children = append(cn.children, child)
			cn = child
		}
	}

	if _, exists := cn.methodMap[route.Method]; exists {
		panic(fmt.Sprintf("routed: route [%s %s] is already registered", route.Method, pattern))
	}
	cn.methodMap[route.Method] = route
}

// insertStatic walks/creates static radix children for one literal segment,
// splitting an existing prefix node when the new literal only partially
// overlaps it — the same split-on-LCP strategy as the teacher's `insert`.
func (t *routeTree) insertStatic(cn *node, literal string) *node {
	s := literal
	for {
		if len(cn.children) == 0 && cn != t.root {
			break
		}

		var match *node
		for _, c := range cn.children {
			if c.kind == staticKind && c.label == s[0] {
				match = c
				break
			}
		}
		if match == nil {
			break
		}

		pl := len(match.prefix)
		sl := len(s)
		max := pl
		if sl < max {
			max = sl
		}
		ll := 0
		for ll < max && s[ll] == match.prefix[ll] {
			ll++
		}

		if ll == pl && ll == sl {
			return match
		}

		if ll == pl {
			cn = match
			s = s[ll:]
			continue
		}

		// Split match at ll.
		tail := &node{
			kind:      match.kind,
			label:     match.prefix[ll],
			prefix:    match.prefix[ll:],
			methodMap: match.methodMap,
			children:  match.children,
			parent:    match,
		}
		for _, c := range tail.children {
			c.parent = tail
		}

		match.prefix = match.prefix[:ll]
		match.label = match.prefix[0]
		match.methodMap = map[string]*Route{}
		match.children = []*node{tail}

		if ll == sl {
			return match
		}

		leaf := &node{
			kind:      staticKind,
			label:     s[ll],
			prefix:    s[ll:],
			methodMap: map[string]*Route{},
			parent:    match,
		}
		match.children = append(match.children, leaf)
		return leaf
	}

	leaf := &node{
		kind:      staticKind,
		label:     s[0],
		prefix:    s,
		methodMap: map[string]*Route{},
		parent:    cn,
	}
	cn.children = append(cn.children, leaf)
	return leaf
}

// matchResult is the outcome of a tree lookup.
type matchResult struct {
	route      *Route
	params     map[string][]string
	methodsSet map[string]bool // non-nil only on a 405 (node matched, method didn't)
}

// match walks segs against the tree using the exact > param > wildcard
// backtracking order spec.md §4.1 requires, so that "/users/me" wins over
// "/users/{id}" while "/users/42" still falls through to the parameter
// route when no static sibling matches.
func (t *routeTree) match(method string, segs []string) matchResult {
	params := map[string][]string{}
	res, ok := t.walk(t.root, segs, 0, method, params)
	if !ok {
		return matchResult{}
	}
	return res
}

func (t *routeTree) walk(n *node, segs []string, i int, method string, params map[string][]string) (matchResult, bool) {
	if i == len(segs) {
		if n.methodMap == nil {
			return matchResult{}, false
		}
		if route, ok := n.methodMap[method]; ok {
			return matchResult{route: route, params: cloneParams(params)}, true
		}
		if route, ok := n.methodMap[httpMethodGET]; ok && method == httpMethodHEAD {
			return matchResult{route: route, params: cloneParams(params)}, true
		}
		if len(n.methodMap) > 0 {
			return matchResult{methodsSet: methodSet(n.methodMap)}, true
		}
		return matchResult{}, false
	}

	seg := segs[i]

	// 1. exact (static) children, walking the radix prefix byte-by-byte.
	for _, c := range n.children {
		if c.kind != staticKind {
			continue
		}
		if matched, rest := matchStaticChain(c, seg); matched {
			if rest == "" {
				if res, ok := t.walk(c, segs, i+1, method, params); ok {
					return res, true
				}
			}
		}
	}

	// 2. parameter child.
	if p := n.childByKind(paramKind); p != nil && p.constraint.accepts(seg) {
		prev, had := params[p.paramName]
		params[p.paramName] = []string{seg}
		if res, ok := t.walk(p, segs, i+1, method, params); ok {
			return res, true
		}
		if had {
			params[p.paramName] = prev
		} else {
			delete(params, p.paramName)
		}
	}

	// 3. wildcard child: captures every remaining segment.
	if w := n.childByKind(wildcardKind); w != nil {
		rest := strings.Join(segs[i:], "/")
		prev, had := params[w.paramName]
		params[w.paramName] = []string{rest}
		if w.methodMap != nil {
			if route, ok := w.methodMap[method]; ok {
				return matchResult{route: route, params: cloneParams(params)}, true
			}
			if len(w.methodMap) > 0 {
				return matchResult{methodsSet: methodSet(w.methodMap)}, true
			}
		}
		if had {
			params[w.paramName] = prev
		} else {
			delete(params, w.paramName)
		}
	}

	return matchResult{}, false
}

// matchStaticChain checks whether seg is consumed by c's prefix (following
// into deeper static splits created by insertStatic); it returns the
// unconsumed remainder of seg, which must be empty for a full segment
// match since a tree node always ends at a '/' boundary.
func matchStaticChain(c *node, seg string) (bool, string) {
	if !strings.HasPrefix(seg, c.prefix) {
		return false, seg
	}
	rest := seg[len(c.prefix):]
	if rest == "" {
		return true, ""
	}
	for _, cc := range c.children {
		if cc.kind == staticKind && strings.HasPrefix(rest, cc.prefix) {
			return matchStaticChain(cc, rest)
		}
	}
	return false, rest
}

func methodSet(mm map[string]*Route) map[string]bool {
	set := make(map[string]bool, len(mm))
	for m := range mm {
		set[m] = true
	}
	return set
}

func cloneParams(p map[string][]string) map[string][]string {
	out := make(map[string][]string, len(p))
	for k, v := range p {
		out[k] = v
	}
	return out
}

const (
	httpMethodGET  = "GET"
	httpMethodHEAD = "HEAD"
)
