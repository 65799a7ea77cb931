package routed

import (
	"compress/gzip"
	"context"
	"crypto/tls"
	"net"
	"net/http"
	"reflect"
	"sync"
	"time"

	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"
)

// Engine is the top-level struct of this framework: it owns the route
// table, the middleware registry, the per-request object pools, and the
// transport servers (HTTP/1.1 and, optionally, HTTP/2/h2c), grounded on
// the teacher's own `Air` (air.go.legacy) but reorganized around the
// RouteTable/middlewareRegistry/EngineContext types this package adds.
//
// It is safe to register routes and middleware on an Engine from a single
// goroutine before calling Run; after the first request is dispatched the
// route table freezes and further registration panics.
type Engine struct {
	// Config is read directly by callers setting it up before Run, and by
	// most internal code for the common case where it never changes after
	// startup. Once WatchConfig is active, concurrent readers on the
	// request-serving path must go through snapshotConfig instead, since
	// reloadConfig replaces this field from a separate fsnotify goroutine.
	Config EngineConfig
	Logger *Logger

	configMu sync.RWMutex

	container *Container
	table     *RouteTable
	registry  *middlewareRegistry
	pathCache *pathCache
	negotiator *negotiator
	events     *eventBus
	pool       *enginePool

	errorHandlers []errorHandler

	gzipWriterPool *sync.Pool

	server   *http.Server
	shutdown *shutdownController

	configWatcher *configWatcher

	inFlightMu sync.Mutex
	inFlight   map[*EngineContext]context.CancelFunc
}

// New returns a new Engine with its default EngineConfig.
func New() *Engine {
	return NewWithConfig(NewEngineConfig())
}

// NewWithConfig returns a new Engine configured by cfg.
func NewWithConfig(cfg EngineConfig) *Engine {
	e := &Engine{
		Config:    cfg,
		container: NewContainer(),
		events:    newEventBus(),
		inFlight:  map[*EngineContext]context.CancelFunc{},
	}

	e.Logger = newLogger(e)
	e.pathCache = newPathCache(cfg.PathInternCacheSize)
	e.registry = newMiddlewareRegistry(e.container)
	e.table = newRouteTable(e.pathCache, e.registry)
	e.table.defaultOptionsEnabled = cfg.DefaultOptionsEnabled
	e.negotiator = newNegotiator()
	e.pool = newEnginePool(e)

	e.gzipWriterPool = &sync.Pool{
		New: func() interface{} {
			w, _ := gzip.NewWriterLevel(nil, cfg.GzipCompressionLevel)
			return w
		},
	}

	e.server = &http.Server{
		Addr:              cfg.Address,
		Handler:           e,
		ReadTimeout:       cfg.ReadTimeout,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
		WriteTimeout:      cfg.WriteTimeout,
		IdleTimeout:       cfg.IdleTimeout,
		MaxHeaderBytes:    cfg.MaxHeaderBytes,
	}

	return e
}

// Container returns the engine-wide service container.
func (e *Engine) Container() *Container { return e.container }

// RegisterMiddleware adds a named middleware factory to the registry, for
// later reference by id in Use/GET/.../Group calls, per spec.md §4.2.
func (e *Engine) RegisterMiddleware(id string, factory func(*Container) Gas) {
	e.registry.Register(id, factory)
}

// Use appends refs to the engine's global middleware list, applied before
// any group- or route-level middleware on every route.
func (e *Engine) Use(refs ...GasRef) {
	e.table.SetGlobalMiddleware(append(e.table.global, refs...))
}

// OnError registers fn to handle errors of exactly the same concrete type
// as sample (a zero-value instance used only for its reflect.Type), per
// spec.md §4.6 step 6's "most specific registered onError<T>".
func (e *Engine) OnError(sample error, fn func(*EngineContext, error) bool) {
	e.errorHandlers = append(e.errorHandlers, errorHandler{typ: reflect.TypeOf(sample), fn: fn})
}

// Group returns a new route Group rooted at prefix.
func (e *Engine) Group(prefix string, refs ...GasRef) *Group {
	return &Group{prefix: prefix, refs: refs, engine: e}
}

func (e *Engine) addRoute(method, pattern string, h Handler, refs []GasRef) *Route {
	return e.table.Add(method, pattern, "", h, refs)
}

// GET registers a GET route.
func (e *Engine) GET(path string, h Handler, refs ...GasRef) *Route {
	return e.addRoute(http.MethodGet, path, h, refs)
}

// HEAD registers a HEAD route.
func (e *Engine) HEAD(path string, h Handler, refs ...GasRef) *Route {
	return e.addRoute(http.MethodHead, path, h, refs)
}

// POST registers a POST route.
func (e *Engine) POST(path string, h Handler, refs ...GasRef) *Route {
	return e.addRoute(http.MethodPost, path, h, refs)
}

// PUT registers a PUT route.
func (e *Engine) PUT(path string, h Handler, refs ...GasRef) *Route {
	return e.addRoute(http.MethodPut, path, h, refs)
}

// PATCH registers a PATCH route.
func (e *Engine) PATCH(path string, h Handler, refs ...GasRef) *Route {
	return e.addRoute(http.MethodPatch, path, h, refs)
}

// DELETE registers a DELETE route.
func (e *Engine) DELETE(path string, h Handler, refs ...GasRef) *Route {
	return e.addRoute(http.MethodDelete, path, h, refs)
}

// OPTIONS registers an explicit OPTIONS route, overriding the engine's
// default OPTIONS responder for this path.
func (e *Engine) OPTIONS(path string, h Handler, refs ...GasRef) *Route {
	return e.addRoute(http.MethodOptions, path, h, refs)
}

// WebSocket registers a websocket mount: a GET route whose handler is
// expected to call Response.WebSocket() to complete the upgrade
// (response.go). Unlike GET, it is reported separately from regular routes
// in RouteManifest (manifest.go), per spec.md §3/§6.
func (e *Engine) WebSocket(path string, h Handler, refs ...GasRef) *Route {
	route := e.addRoute(http.MethodGet, path, h, refs)
	route.IsWebSocket = true
	return route
}

// Named returns the route registered under name, if any.
func (e *Engine) Named(name string) (*Route, bool) { return e.table.ByName(name) }

// Manifest returns a RouteManifest describing every registered route, for
// introspection (see manifest.go). It never affects dispatch.
func (e *Engine) Manifest() RouteManifest { return buildManifest(e.table) }

// ServeHTTP implements http.Handler: it is the single entry point for both
// the HTTP/1.1 server and, when HTTP2Enabled, the HTTP/2 adapter in
// http2.go, per spec.md §4.6 and Design Notes §9.
func (e *Engine) ServeHTTP(rw http.ResponseWriter, hr *http.Request) {
	e.table.freeze()

	req := e.pool.getRequest()
	res := e.pool.getResponse()
	ctx := e.pool.getContext()

	req.reset(e, hr, res)
	res.reset(e, rw, req)
	ctx.reset(e, req, res, nil)

	reqCtx, cancel := context.WithCancel(hr.Context())
	req.SetHTTPRequest(hr.WithContext(reqCtx))
	e.trackInFlight(ctx, cancel)

	hasListeners := e.events.bound()
	if hasListeners {
		e.events.fire(EventRequestStarted, ctx, nil)
		e.events.fire(EventBeforeRouting, ctx, nil)
	}

	e.dispatch(ctx, hasListeners)

	if hasListeners {
		e.events.fire(EventRequestFinished, ctx, nil)
	}

	for i := len(res.deferredFuncs) - 1; i >= 0; i-- {
		res.deferredFuncs[i]()
	}

	cancel()
	e.untrackInFlight(ctx)

	e.pool.putContext(ctx)
	e.pool.putResponse(res)
	e.pool.putRequest(req)
}

// dispatch implements the lifecycle of spec.md §4.6 steps 3-6: lookup,
// chain resolution, invocation, and error handling.
func (e *Engine) dispatch(ctx *EngineContext, hasListeners bool) {
	req, res := ctx.Request, ctx.Response

	normalized, err := e.pathCache.normalize(req.URL.Path)
	if err != nil {
		if hasListeners {
			e.events.fire(EventRoutingError, ctx, err)
		}
		ctx.handleError(err)
		return
	}
	result := e.table.lookup(e.pathCache, req.Method, normalized)

	switch {
	case result.route != nil:
		ctx.Route = result.route
		req.pathParams = result.params
		if hasListeners {
			e.events.fire(EventRouteMatched, ctx, nil)
		}

		h := e.table.chain(result.route)
		if err := h(ctx); err != nil {
			if hasListeners {
				e.events.fire(EventRoutingError, ctx, err)
			}
			ctx.handleError(err)
		}

	case result.methodsSet != nil:
		if req.Method == http.MethodOptions && e.table.DefaultOptionsEnabled() {
			methods := e.table.allowedMethods(result.methodsSet)
			res.Header.Set("Allow", joinStrings(methods, ", "))
			res.Status = http.StatusNoContent
			res.Write(nil)
			break
		}
		methods := e.table.allowedMethods(result.methodsSet)
		ctx.handleError(&MethodNotAllowedError{Allowed: methods})

	default:
		if hasListeners {
			e.events.fire(EventRouteNotFound, ctx, nil)
		}
		e.negotiator.writeNotFound(req, res)
	}

	if hasListeners {
		e.events.fire(EventAfterRouting, ctx, nil)
	}
}

func (e *Engine) trackInFlight(ctx *EngineContext, cancel context.CancelFunc) {
	e.inFlightMu.Lock()
	e.inFlight[ctx] = cancel
	e.inFlightMu.Unlock()
}

func (e *Engine) untrackInFlight(ctx *EngineContext) {
	e.inFlightMu.Lock()
	delete(e.inFlight, ctx)
	e.inFlightMu.Unlock()
}

// cancelAllInFlight cancels every in-flight request's context, the
// cooperative half of the shutdown controller's force-close step
// (shutdown.go), per spec.md §4.7 step 3.
func (e *Engine) cancelAllInFlight() {
	e.inFlightMu.Lock()
	defer e.inFlightMu.Unlock()
	for _, cancel := range e.inFlight {
		cancel()
	}
}

// Run starts serving HTTP on e.Config.Address, blocking until the server
// is shut down. When e.Config.Shutdown.Enabled, it also installs the
// signal-driven shutdown controller of spec.md §4.7.
func (e *Engine) Run() error {
	if e.Config.Shutdown.Enabled {
		e.shutdown = newShutdownController(e)
		e.shutdown.listenForSignals(e.Config.Shutdown.Signals)
	}

	var handler http.Handler = e
	if e.Config.H2CEnabled {
		h2s := &http2.Server{}
		handler = h2c.NewHandler(e, h2s)
	}
	e.server.Handler = handler

	if e.Config.HTTP2Enabled && !e.Config.H2CEnabled {
		if err := http2.ConfigureServer(e.server, &http2.Server{}); err != nil {
			return err
		}
	}

	ln, err := e.listen(e.Config.Address)
	if err != nil {
		return err
	}

	err = e.server.Serve(ln)
	if e.shutdown != nil {
		<-e.shutdown.Done()
	}
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

// RunTLS is Run's counterpart for a TLS listener, given a certificate pair.
func (e *Engine) RunTLS(certFile, keyFile string) error {
	cert, err := tls.LoadX509KeyPair(certFile, keyFile)
	if err != nil {
		return err
	}
	e.server.TLSConfig = &tls.Config{
		MinVersion:   tls.VersionTLS12,
		Certificates: []tls.Certificate{cert},
	}
	if e.Config.Shutdown.Enabled {
		e.shutdown = newShutdownController(e)
		e.shutdown.listenForSignals(e.Config.Shutdown.Signals)
	}

	ln, err := e.listen(e.Config.Address)
	if err != nil {
		return err
	}
	ln = tls.NewListener(ln, e.server.TLSConfig)

	err = e.server.Serve(ln)
	if e.shutdown != nil {
		<-e.shutdown.Done()
	}
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

// WatchConfig starts hot-reloading the engine's EngineConfig from path on
// every write, using the fsnotify-backed configWatcher (config.go). Only
// the fields safe to change after the route table freezes are applied:
// the default-OPTIONS toggle (under RouteTable's writer lock, forcing a
// route-chain cache rebuild the same way Use/SetGlobalMiddleware does) and
// e.Config itself, for components that read it fresh per request (gzip,
// multipart, websocket, shutdown). Routes and middleware registrations are
// never recomputed from the reloaded file: spec.md §5 treats the route
// table as frozen and read-only once serving begins, and EngineConfig
// carries no route definitions to rebuild it from.
func (e *Engine) WatchConfig(path string) error {
	cw, err := watchEngineConfig(path, e.reloadConfig)
	if err != nil {
		return err
	}
	e.configWatcher = cw
	return nil
}

// snapshotConfig returns a copy of e.Config safe to read concurrently with
// reloadConfig, for request-path code that runs after WatchConfig may have
// started hot-reloading it.
func (e *Engine) snapshotConfig() EngineConfig {
	e.configMu.RLock()
	defer e.configMu.RUnlock()
	return e.Config
}

func (e *Engine) reloadConfig(cfg EngineConfig) {
	e.configMu.Lock()
	e.Config = cfg
	e.configMu.Unlock()

	e.table.SetDefaultOptionsEnabled(cfg.DefaultOptionsEnabled)
	e.table.SetGlobalMiddleware(e.table.global)
	if e.Logger != nil {
		e.Logger.Info("engine configuration reloaded", Fields{"address": cfg.Address})
	}
}

// listen opens address as a TCP listener with keep-alive enabled.
func (e *Engine) listen(address string) (net.Listener, error) {
	ln, err := net.Listen("tcp", address)
	if err != nil {
		return nil, err
	}
	if tl, ok := ln.(*net.TCPListener); ok {
		return tcpKeepAliveListener{tl}, nil
	}
	return ln, nil
}

// tcpKeepAliveListener wraps a *net.TCPListener to enable TCP keep-alives
// on every accepted connection, the same default net/http's own server
// applies internally.
type tcpKeepAliveListener struct {
	*net.TCPListener
}

func (l tcpKeepAliveListener) Accept() (net.Conn, error) {
	tc, err := l.AcceptTCP()
	if err != nil {
		return nil, err
	}
	tc.SetKeepAlive(true)
	tc.SetKeepAlivePeriod(3 * time.Minute)
	return tc, nil
}

// Shutdown triggers the drain sequence described in spec.md §4.7 and
// blocks until it resolves or ctx expires.
func (e *Engine) Shutdown(ctx context.Context) error {
	if e.configWatcher != nil {
		e.configWatcher.Close()
	}
	if e.shutdown == nil {
		e.shutdown = newShutdownController(e)
	}
	e.shutdown.trigger()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-e.shutdown.Done():
		return nil
	}
}

func joinStrings(ss []string, sep string) string {
	if len(ss) == 0 {
		return ""
	}
	out := ss[0]
	for _, s := range ss[1:] {
		out += sep + s
	}
	return out
}
