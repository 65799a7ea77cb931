package routed

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestShutdownDrainsInFlightRequestWithinGracePeriod(t *testing.T) {
	cfg := NewEngineConfig()
	cfg.Shutdown.GracePeriod = 500 * time.Millisecond
	cfg.Shutdown.ForceAfter = 500 * time.Millisecond
	e := NewWithConfig(cfg)

	handlerStarted := make(chan struct{})
	e.GET("/slow", func(c *EngineContext) error {
		close(handlerStarted)
		time.Sleep(80 * time.Millisecond)
		return c.Response.WriteString("ok")
	})

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	go e.server.Serve(ln)

	type result struct {
		status int
		body   string
	}
	resultCh := make(chan result, 1)
	go func() {
		resp, err := http.Get(fmt.Sprintf("http://%s/slow", ln.Addr()))
		if err != nil {
			resultCh <- result{}
			return
		}
		defer resp.Body.Close()
		buf := make([]byte, 16)
		n, _ := resp.Body.Read(buf)
		resultCh <- result{status: resp.StatusCode, body: string(buf[:n])}
	}()

	<-handlerStarted

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	assert.NoError(t, e.Shutdown(ctx))

	res := <-resultCh
	assert.Equal(t, http.StatusOK, res.status)
	assert.Equal(t, "ok", res.body)
}

func TestShutdownControllerTriggerIsIdempotent(t *testing.T) {
	cfg := NewEngineConfig()
	cfg.Shutdown.GracePeriod = 50 * time.Millisecond
	cfg.Shutdown.ForceAfter = 50 * time.Millisecond
	e := NewWithConfig(cfg)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	go e.server.Serve(ln)

	sc := newShutdownController(e)
	sc.trigger()
	sc.trigger()

	select {
	case <-sc.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("shutdown controller never resolved")
	}
}
