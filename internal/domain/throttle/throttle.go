// Package throttle rate-limits push-triggered snapshot fetches per session.
package throttle

import (
	"context"
	"sync"
	"time"

	"github.com/okian/livewatch/pkg/logger"
	"github.com/okian/livewatch/pkg/metrics"
)

// DefaultWindow is the minimum gap between two fetches for one session.
const DefaultWindow = 3 * time.Second

// FetchFunc performs a full-snapshot fetch for sessionID.
type FetchFunc func(ctx context.Context, sessionID string) error

// Refresher drops triggers that arrive inside the window; it never queues.
type Refresher struct {
	mu        sync.Mutex
	lastFetch map[string]time.Time

	fetch    FetchFunc
	window   time.Duration
	now      func() time.Time
	dispatch func(func())
	log      logger.Logger
}

// Option configures a Refresher.
type Option func(*Refresher)

func WithWindow(d time.Duration) Option {
	return func(r *Refresher) {
		if d > 0 {
			r.window = d
		}
	}
}

// WithClock injects the time source.
func WithClock(now func() time.Time) Option {
	return func(r *Refresher) {
		if now != nil {
			r.now = now
		}
	}
}

// WithDispatch sets how an allowed fetch is run. The default starts a goroutine.
func WithDispatch(dispatch func(func())) Option {
	return func(r *Refresher) {
		if dispatch != nil {
			r.dispatch = dispatch
		}
	}
}

func WithLogger(l logger.Logger) Option {
	return func(r *Refresher) {
		if l != nil {
			r.log = l
		}
	}
}

// New creates a Refresher calling fetch for allowed triggers.
func New(fetch FetchFunc, opts ...Option) *Refresher {
	r := &Refresher{
		lastFetch: make(map[string]time.Time),
		fetch:     fetch,
		window:    DefaultWindow,
		now:       time.Now,
		dispatch:  func(f func()) { go f() },
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.log == nil {
		r.log = logger.Get().Named("throttle")
	}
	return r
}

// Trigger starts a fetch for sessionID unless one started within the window.
// It reports whether the fetch was started. Fetch errors are logged only.
func (r *Refresher) Trigger(ctx context.Context, sessionID string) bool {
	if sessionID == "" {
		return false
	}

	r.mu.Lock()
	now := r.now()
	last, seen := r.lastFetch[sessionID]
	if seen && now.Sub(last) < r.window {
		r.mu.Unlock()
		metrics.RecordThrottle(false)
		r.log.Debug(ctx, "refresh trigger dropped",
			logger.String("session_id", sessionID),
			logger.Duration("since_last", now.Sub(last)))
		return false
	}
	r.lastFetch[sessionID] = now
	r.mu.Unlock()

	metrics.RecordThrottle(true)
	r.dispatch(func() {
		if err := r.fetch(ctx, sessionID); err != nil {
			r.log.Warn(ctx, "throttled refresh failed",
				logger.String("session_id", sessionID),
				logger.Error(err))
		}
	})
	return true
}

// Forget drops the fetch history for sessionID.
func (r *Refresher) Forget(sessionID string) {
	r.mu.Lock()
	delete(r.lastFetch, sessionID)
	r.mu.Unlock()
}

