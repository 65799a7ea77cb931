package routed

import (
	"strings"
	"sync"

	"github.com/VictoriaMetrics/fastcache"
	"github.com/cespare/xxhash/v2"
)

// pathCache interns normalized request paths, grounded on the teacher's
// `coffer` (coffer.go): both are a `sync.Once`-initialized `fastcache.Cache`
// guarding a bounded amount of runtime memory against disk or CPU pressure,
// here traded for repeated path-splitting work instead of repeated file
// reads. Keys are xxhash sums of the raw path, matching the teacher's use of
// checksums as cache keys rather than the strings themselves.
type pathCache struct {
	once       sync.Once
	cache      *fastcache.Cache
	maxMemory  int
	mu         sync.RWMutex
	segmentBuf map[uint64][]string
}

func newPathCache(maxMemoryBytes int) *pathCache {
	if maxMemoryBytes <= 0 {
		maxMemoryBytes = 32 * 1024 * 1024
	}
	return &pathCache{maxMemory: maxMemoryBytes}
}

func (c *pathCache) init() {
	c.once.Do(func() {
		c.cache = fastcache.New(c.maxMemory)
		c.segmentBuf = make(map[uint64][]string)
	})
}

// segments splits a path into its non-empty slash-delimited components,
// interning the result so repeat requests to a hot route skip the split.
func (c *pathCache) segments(path string) []string {
	c.init()

	h := xxhash.Sum64String(path)

	c.mu.RLock()
	if segs, ok := c.segmentBuf[h]; ok {
		c.mu.RUnlock()
		return segs
	}
	c.mu.RUnlock()

	segs := splitPath(path)

	c.mu.Lock()
	if len(c.segmentBuf) > 100000 {
		c.segmentBuf = make(map[uint64][]string)
	}
	c.segmentBuf[h] = segs
	c.mu.Unlock()

	return segs
}

// normalize interns the canonicalized form of path (collapsed slashes, `.`/
// `..` segments resolved, no trailing slash unless path is "/"), using the
// fastcache byte store so the interned string survives GC pressure the way
// the teacher's asset bytes do. It returns an error — never cached — when
// path attempts to resolve above the root, per spec.md §4.1.
func (c *pathCache) normalize(path string) (string, error) {
	c.init()

	h := xxhash.Sum64String(path)
	key := make([]byte, 8)
	for i := 0; i < 8; i++ {
		key[i] = byte(h >> (8 * i))
	}

	if v, ok := c.cache.HasGet(nil, key); ok {
		return string(v), nil
	}

	n, err := canonicalizePath(path)
	if err != nil {
		return "", err
	}
	c.cache.Set(key, []byte(n))
	return n, nil
}

// canonicalizePath collapses repeated slashes, resolves `.` and `..`
// segments, and strips a trailing slash, leaving the root path untouched.
// A `..` that would climb above the root is rejected rather than silently
// clamped, surfaced by normalize as a 400 (spec.md §4.1).
func canonicalizePath(path string) (string, error) {
	if path == "" || path == "/" {
		return "/", nil
	}

	raw := strings.Split(path, "/")
	stack := make([]string, 0, len(raw))
	for _, seg := range raw {
		switch seg {
		case "", ".":
			continue
		case "..":
			if len(stack) == 0 {
				return "", NewEngineError(400, "invalid_path", "path escapes above root: "+path)
			}
			stack = stack[:len(stack)-1]
		default:
			stack = append(stack, seg)
		}
	}

	if len(stack) == 0 {
		return "/", nil
	}
	return "/" + strings.Join(stack, "/"), nil
}

// splitPath splits a canonical path into its segments, e.g. "/a/b" -> ["a",
// "b"], "/" -> [].
func splitPath(path string) []string {
	if path == "/" || path == "" {
		return nil
	}
	start := 0
	if path[0] == '/' {
		start = 1
	}
	var segs []string
	seg := start
	for i := start; i <= len(path); i++ {
		if i == len(path) || path[i] == '/' {
			if i > seg {
				segs = append(segs, path[seg:i])
			}
			seg = i + 1
		}
	}
	return segs
}
