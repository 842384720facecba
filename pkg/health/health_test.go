package health

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/go-faster/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func pass(context.Context) error { return nil }

func fail(msg string) CheckFunc {
	return func(context.Context) error { return errors.New(msg) }
}

func serve(h http.HandlerFunc) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	h(w, httptest.NewRequest(http.MethodGet, "/", nil))
	return w
}

func only(h *Health, probe Probe) *check {
	return h.checks[probe][0]
}

func TestLive(t *testing.T) {
	t.Run("NoChecks", func(t *testing.T) {
		w := serve(New().LiveHandler)
		assert.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "application/json", w.Header().Get("Content-Type"))
		assert.JSONEq(t, `{"status":"ok"}`, w.Body.String())
	})

	t.Run("BelowThreshold", func(t *testing.T) {
		h := New()
		h.Register(Liveness, "db", fail("refused"))
		only(h, Liveness).run(context.Background())
		only(h, Liveness).run(context.Background())
		assert.Equal(t, http.StatusOK, serve(h.LiveHandler).Code)
	})

	t.Run("Failing", func(t *testing.T) {
		h := New()
		h.Register(Liveness, "db", fail("refused"))
		for range 3 {
			only(h, Liveness).run(context.Background())
		}
		w := serve(h.LiveHandler)
		assert.Equal(t, http.StatusServiceUnavailable, w.Code)
		assert.JSONEq(t, `{"status":"unhealthy","checks":{"db":"refused"}}`, w.Body.String())
	})
}

func TestReady(t *testing.T) {
	h := New()
	h.Register(Readiness, "postgres", pass)
	h.Register(Readiness, "cache", fail("cold"), WithThresholds(1, 1))

	w := serve(h.ReadyHandler)
	require.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.JSONEq(t, `{"status":"unhealthy","checks":{"server":"not ready"}}`, w.Body.String())
	assert.False(t, h.Ready())

	h.MarkReady(true)
	assert.True(t, h.Ready())
	assert.Equal(t, http.StatusOK, serve(h.ReadyHandler).Code)

	h.checks[Readiness][1].run(context.Background())
	assert.False(t, h.Ready())
	w = serve(h.ReadyHandler)
	assert.JSONEq(t, `{"status":"unhealthy","checks":{"cache":"cold"}}`, w.Body.String())

	h.MarkReady(false)
	w = serve(h.ReadyHandler)
	assert.JSONEq(t, `{"status":"unhealthy","checks":{"cache":"cold","server":"not ready"}}`, w.Body.String())
}

func TestCheck_Recovers(t *testing.T) {
	down := true
	h := New()
	h.Register(Liveness, "flaky", func(context.Context) error {
		if down {
			return errors.New("down")
		}
		return nil
	}, WithThresholds(2, 2))
	c := only(h, Liveness)
	ctx := context.Background()

	c.run(ctx)
	assert.Empty(t, c.failure())
	c.run(ctx)
	assert.Equal(t, "down", c.failure())

	down = false
	c.run(ctx)
	assert.Equal(t, "down", c.failure(), "one pass is below the success threshold")
	c.run(ctx)
	assert.Empty(t, c.failure())
}

func TestCheck_Timeout(t *testing.T) {
	h := New()
	h.Register(Liveness, "slow", func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	}, WithTimeout(time.Millisecond), WithThresholds(1, 1))
	c := only(h, Liveness)
	c.run(context.Background())
	assert.Equal(t, context.DeadlineExceeded.Error(), c.failure())
}

func TestStartStop(t *testing.T) {
	h := New()
	h.Register(Liveness, "live", fail("err"), WithThresholds(1, 1))
	h.Register(Readiness, "ready", pass)
	h.MarkReady(true)

	h.Start(context.Background(), 5*time.Millisecond)

	var wg sync.WaitGroup
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range 50 {
				h.Ready()
				serve(h.LiveHandler)
				serve(h.ReadyHandler)
			}
		}()
	}
	wg.Wait()

	require.Eventually(t, func() bool {
		return serve(h.LiveHandler).Code == http.StatusServiceUnavailable
	}, time.Second, 5*time.Millisecond)

	h.Stop()
	h.Stop()
}

type pinger struct{ err error }

func (p pinger) Ping(context.Context) error { return p.err }

func TestPingCheck(t *testing.T) {
	assert.NoError(t, PingCheck(pinger{})(context.Background()))
	err := PingCheck(pinger{err: errors.New("conn refused")})(context.Background())
	assert.EqualError(t, err, "ping: conn refused")
}

func TestGoroutineCheck(t *testing.T) {
	assert.NoError(t, GoroutineCheck(1_000_000)(context.Background()))
	err := GoroutineCheck(0)(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "limit 0")
}
