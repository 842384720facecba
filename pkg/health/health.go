// Package health serves liveness and readiness probes.
//
// Every registered check runs on its own ticker. A check turns unhealthy
// after Failures consecutive errors and healthy again after Successes
// consecutive passes, so one slow query does not flip the probe.
package health

import (
	"context"
	"net/http"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-faster/jx"
)

// CheckFunc returns nil when the checked dependency is usable.
type CheckFunc func(ctx context.Context) error

// Probe selects the endpoint a check reports to.
type Probe int

const (
	Liveness Probe = iota
	Readiness
)

// Option tunes a single check.
type Option func(*check)

// WithTimeout bounds one run of the check. Defaults to one second.
func WithTimeout(d time.Duration) Option {
	return func(c *check) { c.timeout = d }
}

// WithThresholds sets how many consecutive failures and successes flip the
// check state. Defaults to 3 and 1.
func WithThresholds(failures, successes int) Option {
	return func(c *check) {
		c.failures = max(failures, 1)
		c.successes = max(successes, 1)
	}
}

// check is run from exactly one goroutine. healthy and lastErr are also read
// by the HTTP handlers.
type check struct {
	name      string
	fn        CheckFunc
	timeout   time.Duration
	failures  int
	successes int

	healthy atomic.Bool
	lastErr atomic.Pointer[error]

	failRun int
	okRun   int
}

func (c *check) run(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	err := c.fn(ctx)
	c.lastErr.Store(&err)
	if err != nil {
		c.okRun = 0
		c.failRun++
		if c.failRun >= c.failures {
			c.healthy.Store(false)
		}
		return
	}
	c.failRun = 0
	c.okRun++
	if c.okRun >= c.successes {
		c.healthy.Store(true)
	}
}

// failure returns the reason the check is unhealthy, or "".
func (c *check) failure() string {
	if c.healthy.Load() {
		return ""
	}
	if p := c.lastErr.Load(); p != nil && *p != nil {
		return (*p).Error()
	}
	return "unhealthy"
}

// Health aggregates checks. The zero value is not usable, call New.
type Health struct {
	ready atomic.Bool

	mu     sync.RWMutex
	checks map[Probe][]*check
	cancel context.CancelFunc
}

// New returns a Health that reports not ready until MarkReady(true).
func New() *Health {
	return &Health{checks: make(map[Probe][]*check)}
}

// Register adds a check to probe. Checks start healthy. Register must be
// called before Start.
func (h *Health) Register(probe Probe, name string, fn CheckFunc, opts ...Option) {
	c := &check{
		name:      name,
		fn:        fn,
		timeout:   time.Second,
		failures:  3,
		successes: 1,
	}
	for _, o := range opts {
		o(c)
	}
	c.healthy.Store(true)

	h.mu.Lock()
	h.checks[probe] = append(h.checks[probe], c)
	h.mu.Unlock()
}

// Start runs every check once and then every interval until Stop or ctx is
// done.
func (h *Health) Start(ctx context.Context, interval time.Duration) {
	ctx, cancel := context.WithCancel(ctx)

	h.mu.Lock()
	if h.cancel != nil {
		h.cancel()
	}
	h.cancel = cancel
	var all []*check
	for _, cs := range h.checks {
		all = append(all, cs...)
	}
	h.mu.Unlock()

	for _, c := range all {
		go func() {
			ticker := time.NewTicker(interval)
			defer ticker.Stop()
			c.run(ctx)
			for {
				select {
				case <-ctx.Done():
					return
				case <-ticker.C:
					c.run(ctx)
				}
			}
		}()
	}
}

// Stop halts the background checks. It may be called more than once.
func (h *Health) Stop() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.cancel != nil {
		h.cancel()
		h.cancel = nil
	}
}

// MarkReady flips the manual readiness gate. The server marks itself ready
// after startup and not ready when shutdown begins.
func (h *Health) MarkReady(ready bool) {
	h.ready.Store(ready)
}

// Ready reports whether the gate is open and every readiness check passes.
func (h *Health) Ready() bool {
	return h.ready.Load() && len(h.failures(Readiness)) == 0
}

func (h *Health) failures(probe Probe) map[string]string {
	h.mu.RLock()
	cs := h.checks[probe]
	h.mu.RUnlock()

	out := make(map[string]string)
	for _, c := range cs {
		if msg := c.failure(); msg != "" {
			out[c.name] = msg
		}
	}
	return out
}

// LiveHandler serves /livez.
func (h *Health) LiveHandler(w http.ResponseWriter, _ *http.Request) {
	write(w, h.failures(Liveness))
}

// ReadyHandler serves /readyz.
func (h *Health) ReadyHandler(w http.ResponseWriter, _ *http.Request) {
	failures := h.failures(Readiness)
	if !h.ready.Load() {
		failures["server"] = "not ready"
	}
	write(w, failures)
}

// write renders {"status":"ok"} or {"status":"unhealthy","checks":{...}}.
func write(w http.ResponseWriter, failures map[string]string) {
	status, code := "ok", http.StatusOK
	if len(failures) > 0 {
		status, code = "unhealthy", http.StatusServiceUnavailable
	}

	names := make([]string, 0, len(failures))
	for name := range failures {
		names = append(names, name)
	}
	sort.Strings(names)

	var e jx.Encoder
	e.Obj(func(e *jx.Encoder) {
		e.Field("status", func(e *jx.Encoder) { e.Str(status) })
		if len(names) == 0 {
			return
		}
		e.Field("checks", func(e *jx.Encoder) {
			e.Obj(func(e *jx.Encoder) {
				for _, name := range names {
					e.Field(name, func(e *jx.Encoder) { e.Str(failures[name]) })
				}
			})
		})
	})

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(code)
	_, _ = w.Write(e.Bytes())
}
