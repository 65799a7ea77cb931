package routed

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCanonicalizePathCollapsesSlashesAndResolvesDotSegments(t *testing.T) {
	cases := map[string]string{
		"/":            "/",
		"":             "/",
		"/a//b":        "/a/b",
		"/a/./b":       "/a/b",
		"/a/b/..":      "/a",
		"/a/../b":      "/b",
		"/a/b/../../c": "/c",
		"/./a/./b/.":   "/a/b",
	}

	for in, want := range cases {
		got, err := canonicalizePath(in)
		assert.NoError(t, err, "input %q", in)
		assert.Equal(t, want, got, "input %q", in)
	}
}

func TestCanonicalizePathRejectsEscapeAboveRoot(t *testing.T) {
	for _, in := range []string{"/..", "/a/../..", "/../a"} {
		_, err := canonicalizePath(in)
		assert.Error(t, err, "input %q", in)

		ee, ok := err.(*EngineError)
		if assert.True(t, ok, "input %q should produce an *EngineError", in) {
			assert.Equal(t, 400, ee.Status)
		}
	}
}

func TestCanonicalizePathIsIdempotent(t *testing.T) {
	inputs := []string{"/a//b/../c/./d", "/", "/x/y/z", "/a/./b/../../c"}
	for _, in := range inputs {
		once, err := canonicalizePath(in)
		if err != nil {
			continue
		}
		twice, err := canonicalizePath(once)
		assert.NoError(t, err, "input %q", in)
		assert.Equal(t, once, twice, "normalize(normalize(%q)) should equal normalize(%q)", in, in)
	}
}

func TestPathCacheNormalizeCachesAndPropagatesErrors(t *testing.T) {
	c := newPathCache(0)

	got, err := c.normalize("/a//b/./c")
	assert.NoError(t, err)
	assert.Equal(t, "/a/b/c", got)

	got2, err := c.normalize("/a//b/./c")
	assert.NoError(t, err)
	assert.Equal(t, got, got2)

	_, err = c.normalize("/../escape")
	assert.Error(t, err)
}
