package routed

import "sync"

// enginePool holds the sync.Pool instances the dispatcher recycles
// Request/Response/EngineContext through on every request, grounded on
// the teacher's own `Pool` (pool.go.legacy) — generalized from pooling the
// teacher's Context/RequestHeader/ResponseHeader/URI/Cookie types to
// pooling this package's Request/Response/EngineContext instead.
type enginePool struct {
	requestPool *sync.Pool
	responsePool *sync.Pool
	contextPool *sync.Pool
}

func newEnginePool(e *Engine) *enginePool {
	return &enginePool{
		requestPool: &sync.Pool{
			New: func() interface{} { return &Request{} },
		},
		responsePool: &sync.Pool{
			New: func() interface{} { return &Response{} },
		},
		contextPool: &sync.Pool{
			New: func() interface{} { return newEngineContext(e) },
		},
	}
}

func (p *enginePool) getRequest() *Request   { return p.requestPool.Get().(*Request) }
func (p *enginePool) getResponse() *Response { return p.responsePool.Get().(*Response) }
func (p *enginePool) getContext() *EngineContext {
	return p.contextPool.Get().(*EngineContext)
}

func (p *enginePool) putRequest(r *Request)   { p.requestPool.Put(r) }
func (p *enginePool) putResponse(r *Response) { p.responsePool.Put(r) }
func (p *enginePool) putContext(c *EngineContext) { p.contextPool.Put(c) }
