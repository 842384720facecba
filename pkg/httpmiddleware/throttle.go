package httpmiddleware

import (
	"context"
	"math"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-faster/jx"
)

// ThrottleConfig bounds how often one key may hit the wrapped handler.
type ThrottleConfig struct {
	// Max attempts per Window. Zero disables the throttle.
	Max    int
	Window time.Duration
	// Key groups requests. Defaults to ClientIP.
	Key func(*http.Request) string
}

// window counts attempts in the current and the previous fixed window. The
// effective count weights the previous window by its remaining overlap with
// a sliding window ending now.
type window struct {
	start time.Time
	curr  float64
	prev  float64
}

// Throttler is a per-key sliding window counter.
type Throttler struct {
	cfg ThrottleConfig
	now func() time.Time

	mu   sync.Mutex
	keys map[string]*window
}

// NewThrottler returns a Throttler using the wall clock.
func NewThrottler(cfg ThrottleConfig) *Throttler {
	if cfg.Key == nil {
		cfg.Key = ClientIP
	}
	return &Throttler{cfg: cfg, now: time.Now, keys: make(map[string]*window)}
}

// take records an attempt for key and reports whether it is allowed, along
// with the attempts left and the end of the current window.
func (t *Throttler) take(key string) (left int, reset time.Time, ok bool) {
	now := t.now()
	t.mu.Lock()
	defer t.mu.Unlock()

	w, found := t.keys[key]
	if !found {
		w = &window{start: now.Truncate(t.cfg.Window)}
		t.keys[key] = w
	}
	if elapsed := now.Sub(w.start); elapsed >= t.cfg.Window {
		w.prev = w.curr
		if elapsed >= 2*t.cfg.Window {
			w.prev = 0
		}
		w.curr = 0
		w.start = now.Truncate(t.cfg.Window)
	}

	overlap := 1 - float64(now.Sub(w.start))/float64(t.cfg.Window)
	used := w.prev*math.Max(overlap, 0) + w.curr
	reset = w.start.Add(t.cfg.Window)
	if used >= float64(t.cfg.Max) {
		return 0, reset, false
	}
	w.curr++
	return max(t.cfg.Max-int(math.Ceil(used+1)), 0), reset, true
}

// Sweep drops keys idle for two windows.
func (t *Throttler) Sweep() {
	now := t.now()
	t.mu.Lock()
	defer t.mu.Unlock()
	for k, w := range t.keys {
		if now.Sub(w.start) >= 2*t.cfg.Window {
			delete(t.keys, k)
		}
	}
}

// Run sweeps idle keys every two windows until ctx is done.
func (t *Throttler) Run(ctx context.Context) {
	ticker := time.NewTicker(2 * t.cfg.Window)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			t.Sweep()
		}
	}
}

// Middleware rejects requests over the limit with 429 and a Retry-After
// header.
func (t *Throttler) Middleware() Middleware {
	return func(next http.Handler) http.Handler {
		if t.cfg.Max <= 0 || t.cfg.Window <= 0 {
			return next
		}
		limit := strconv.Itoa(t.cfg.Max)
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			left, reset, ok := t.take(t.cfg.Key(r))
			h := w.Header()
			h.Set("X-RateLimit-Limit", limit)
			h.Set("X-RateLimit-Remaining", strconv.Itoa(left))
			h.Set("X-RateLimit-Reset", strconv.FormatInt(reset.Unix(), 10))
			if ok {
				next.ServeHTTP(w, r)
				return
			}

			wait := max(reset.Sub(t.now()), 0)
			h.Set("Retry-After", strconv.Itoa(int(math.Ceil(wait.Seconds()))))
			h.Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusTooManyRequests)

			var e jx.Encoder
			e.Obj(func(e *jx.Encoder) {
				e.Field("status", func(e *jx.Encoder) { e.Str("error") })
				e.Field("kind", func(e *jx.Encoder) { e.Str("throttled") })
				e.Field("message", func(e *jx.Encoder) { e.Str("too many attempts, retry later") })
			})
			_, _ = w.Write(e.Bytes())
		})
	}
}

// ClientIP returns the first X-Forwarded-For hop, X-Real-IP, or the remote
// host, in that order.
func ClientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		return strings.TrimSpace(first)
	}
	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return xri
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
