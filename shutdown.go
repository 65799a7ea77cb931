package routed

import (
	"context"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"
)

// shutdownController implements the drain sequence of spec.md §4.7: stop
// accepting new connections, let in-flight handlers finish within
// gracePeriod, then force-close anything still running at forceAfter.
//
// It is built on golang.org/x/sync/errgroup (a pack-wide dependency none of
// the teacher's own files exercised) rather than a hand-rolled
// WaitGroup/select, since errgroup already gives us the
// cancel-on-first-error semantics the force-close path needs.
type shutdownController struct {
	engine      *Engine
	gracePeriod time.Duration
	forceAfter  time.Duration

	mu        sync.Mutex
	triggered bool
	done      chan struct{}
}

func newShutdownController(e *Engine) *shutdownController {
	return &shutdownController{
		engine:      e,
		gracePeriod: e.Config.Shutdown.GracePeriod,
		forceAfter:  e.Config.Shutdown.ForceAfter,
		done:        make(chan struct{}),
	}
}

// Done returns a channel closed once the shutdown sequence has resolved.
func (s *shutdownController) Done() <-chan struct{} { return s.done }

// trigger runs the drain sequence exactly once, even under concurrent
// calls (e.g. a signal arriving while a test also calls Trigger).
func (s *shutdownController) trigger() {
	s.mu.Lock()
	if s.triggered {
		s.mu.Unlock()
		return
	}
	s.triggered = true
	s.mu.Unlock()

	go s.run()
}

func (s *shutdownController) run() {
	defer close(s.done)

	graceCtx, cancelGrace := context.WithTimeout(context.Background(), s.gracePeriod)
	defer cancelGrace()

	g, gCtx := errgroup.WithContext(graceCtx)
	g.Go(func() error {
		return s.engine.server.Shutdown(gCtx)
	})

	if err := g.Wait(); err == nil {
		return
	}

	forceCtx, cancelForce := context.WithTimeout(context.Background(), s.forceAfter)
	defer cancelForce()
	<-forceCtx.Done()

	s.engine.cancelAllInFlight()
	s.engine.server.Close()
}

// listenForSignals installs handlers for every signal named in
// e.Config.Shutdown.Signals, invoking trigger() exactly once on the first
// one received, per spec.md §4.7.
func (s *shutdownController) listenForSignals(names []string) {
	if len(names) == 0 {
		return
	}

	sigs := make([]os.Signal, 0, len(names))
	for _, name := range names {
		if sig, ok := signalByName[name]; ok {
			sigs = append(sigs, sig)
		}
	}
	if len(sigs) == 0 {
		return
	}

	ch := make(chan os.Signal, 1)
	signal.Notify(ch, sigs...)

	go func() {
		<-ch
		s.trigger()
	}()
}

var signalByName = map[string]os.Signal{
	"SIGINT":  syscall.SIGINT,
	"SIGTERM": syscall.SIGTERM,
	"SIGHUP":  syscall.SIGHUP,
	"SIGQUIT": syscall.SIGQUIT,
}
