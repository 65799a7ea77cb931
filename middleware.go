package routed

import (
	"fmt"
	"net/http"
	"reflect"
	"runtime"
	"strings"
	"sync"

	"github.com/cespare/xxhash/v2"
)

// middlewareFactory builds a Gas from the per-engine container, per
// spec.md §4.2's `string id -> factory(container) -> Middleware`.
type middlewareFactory func(*Container) Gas

// middlewareRegistry maps string ids to factory functions and resolves
// placeholder references into concrete `Gas` values, deduplicating by
// identity the way the teacher's gas chain never had to (the teacher only
// ever composed concrete `GasFunc` values declared inline; see
// gases/gases.go.legacy).
type middlewareRegistry struct {
	container *Container

	mu       sync.RWMutex
	factories map[string]middlewareFactory
	resolved  map[string]Gas
}

func newMiddlewareRegistry(container *Container) *middlewareRegistry {
	r := &middlewareRegistry{
		container: container,
		factories: map[string]middlewareFactory{},
		resolved:  map[string]Gas{},
	}
	r.registerBuiltins()
	return r
}

// Register adds a named middleware factory, overwriting any earlier
// registration under the same id and invalidating its resolved cache entry.
func (r *middlewareRegistry) Register(id string, factory middlewareFactory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[id] = factory
	delete(r.resolved, id)
}

// resolve returns the concrete Gas bound to id, building and caching it on
// first access. An unknown id is a fatal configuration error enumerating
// the known ids, per spec.md §4.2.
func (r *middlewareRegistry) resolve(id string) Gas {
	r.mu.RLock()
	if g, ok := r.resolved[id]; ok {
		r.mu.RUnlock()
		return g
	}
	factory, ok := r.factories[id]
	r.mu.RUnlock()
	if !ok {
		panic(fmt.Sprintf("routed: unknown middleware id %q; known ids: %s", id, strings.Join(r.knownIDs(), ", ")))
	}

	g := factory(r.container)

	r.mu.Lock()
	r.resolved[id] = g
	r.mu.Unlock()

	return g
}

func (r *middlewareRegistry) knownIDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]string, 0, len(r.factories))
	for id := range r.factories {
		ids = append(ids, id)
	}
	return ids
}

// resolveDeduped resolves every ref in order — a string id against the
// registry, a concrete Gas as-is — and drops repeats, keeping only the
// first occurrence, per spec.md §4.2 ("duplicates (by tagged identity) are
// removed — only the first occurrence survives").
func (r *middlewareRegistry) resolveDeduped(refs []GasRef) []Gas {
	seen := make(map[uint64]bool, len(refs))
	out := make([]Gas, 0, len(refs))
	for _, ref := range refs {
		var g Gas
		var key string
		if ref.id != "" {
			g = r.resolve(ref.id)
			key = ref.id
		} else {
			g = ref.gas
			key = "~concrete"
		}
		h := gasIdentity(key, g)
		if seen[h] {
			continue
		}
		seen[h] = true
		out = append(out, g)
	}
	return out
}

// gasIdentity fingerprints a resolved Gas by its registry id together with
// the function pointer fastcache/xxhash style used elsewhere in the
// codebase (pathcache.go) for a stable, allocation-light hash.
func gasIdentity(id string, g Gas) uint64 {
	ptr := reflect.ValueOf(g).Pointer()
	return xxhash.Sum64String(fmt.Sprintf("%s:%d", id, ptr))
}

// WrapHTTPMiddleware adapts a stdlib `func(http.Handler) http.Handler` into
// a Gas, for interop with the broader net/http middleware ecosystem. The
// wrapped middleware observes request mutations made to the `*http.Request`
// it is handed through Request.SetHTTPRequest before next runs.
func WrapHTTPMiddleware(mw func(http.Handler) http.Handler) Gas {
	return func(next Handler) Handler {
		return func(c *EngineContext) error {
			var handlerErr error
			inner := http.HandlerFunc(func(_ http.ResponseWriter, hr *http.Request) {
				c.Request.SetHTTPRequest(hr)
				handlerErr = next(c)
			})
			mw(inner).ServeHTTP(c.Response.HTTPResponseWriter(), c.Request.HTTPRequest())
			return handlerErr
		}
	}
}

// registerBuiltins seeds the registry with the small set of built-in
// middlewares carried over in spirit from gases/*.go.legacy: panic
// recovery, structured request logging, and CORS. gzip compression and
// content-type sniffing live directly in Response.Write instead of as a
// wrapping gas, since every response (not just gas-wrapped ones) needs
// them; static-file serving, JWT, CSRF, and HTTP Basic Auth are dropped as
// out of scope (see DESIGN.md).
func (r *middlewareRegistry) registerBuiltins() {
	r.Register("recover", func(*Container) Gas { return RecoverGas() })
	r.Register("logger", func(*Container) Gas { return RequestLoggerGas() })
	r.Register("cors", func(*Container) Gas { return CORSGas(DefaultCORSConfig) })
}

// RecoverGas recovers from a panic anywhere later in the chain and turns it
// into an error the negotiator can render, mirroring the teacher's
// `RecoverWithConfig` (gases/recover.go.legacy) but returning the error
// through the dispatcher's normal error path instead of calling a
// `c.Error` side method.
func RecoverGas() Gas {
	return func(next Handler) Handler {
		return func(c *EngineContext) (err error) {
			defer func() {
				if rec := recover(); rec != nil {
					stack := make([]byte, 4<<10)
					n := runtime.Stack(stack, false)
					c.Engine.Logger.Error("panic recovered", Fields{
						"panic": fmt.Sprintf("%v", rec),
						"stack": string(stack[:n]),
					})
					if e, ok := rec.(error); ok {
						err = e
					} else {
						err = fmt.Errorf("%v", rec)
					}
				}
			}()
			return next(c)
		}
	}
}

// RequestLoggerGas logs one structured line per request, grounded on the
// teacher's own request-scoped logging calls (`a.DEBUG`/`a.ERROR` in
// coffer.go) but generalized into a dedicated gas rather than scattered
// call sites.
func RequestLoggerGas() Gas {
	return func(next Handler) Handler {
		return func(c *EngineContext) error {
			err := next(c)
			fields := Fields{
				"method": c.Request.Method,
				"path":   c.Request.URL.Path,
				"status": c.Response.Status,
			}
			if err != nil {
				fields["error"] = err.Error()
			}
			c.Engine.Logger.Info("request", fields)
			return err
		}
	}
}

// CORSConfig configures CORSGas, grounded on the teacher's
// gases/cors.go.legacy.
type CORSConfig struct {
	AllowOrigins     []string
	AllowHeaders     []string
	AllowCredentials bool
	ExposeHeaders    []string
}

// DefaultCORSConfig allows any origin and sets no extra headers.
var DefaultCORSConfig = CORSConfig{AllowOrigins: []string{"*"}}

// CORSGas returns a Gas implementing Cross-Origin Resource Sharing.
func CORSGas(config CORSConfig) Gas {
	if len(config.AllowOrigins) == 0 {
		config.AllowOrigins = DefaultCORSConfig.AllowOrigins
	}
	exposeHeaders := strings.Join(config.ExposeHeaders, ",")

	return func(next Handler) Handler {
		return func(c *EngineContext) error {
			origin := c.Request.Header.Get("Origin")
			c.Response.Header.Add("Vary", "Origin")

			if origin == "" {
				return next(c)
			}

			allowed := ""
			for _, o := range config.AllowOrigins {
				if o == "*" || o == origin {
					allowed = o
					break
				}
			}
			if allowed == "" {
				return next(c)
			}

			c.Response.Header.Set("Access-Control-Allow-Origin", allowed)
			if config.AllowCredentials {
				c.Response.Header.Set("Access-Control-Allow-Credentials", "true")
			}
			if exposeHeaders != "" {
				c.Response.Header.Set("Access-Control-Expose-Headers", exposeHeaders)
			}

			return next(c)
		}
	}
}
