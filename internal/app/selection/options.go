package selection

import (
	"context"
	"time"

	"github.com/okian/livewatch/internal/domain/eventlog"
	"github.com/okian/livewatch/pkg/logger"
)

// Option configures a Controller.
type Option func(*Controller)

// WithBaseContext sets the context used for work the controller starts on
// its own (auto-select fetches, push-triggered refreshes, reconciliation).
func WithBaseContext(ctx context.Context) Option {
	return func(c *Controller) {
		if ctx != nil {
			c.baseCtx = ctx
		}
	}
}

// WithEventLog replaces the default event log.
func WithEventLog(l *eventlog.Log) Option {
	return func(c *Controller) {
		if l != nil {
			c.events = l
		}
	}
}

// WithThrottleWindow sets the minimum gap between push-triggered fetches per session.
func WithThrottleWindow(d time.Duration) Option {
	return func(c *Controller) {
		if d > 0 {
			c.throttleWindow = d
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(c *Controller) {
		if now != nil {
			c.now = now
		}
	}
}

// WithDispatch sets how background work is started. The default runs each
// job in its own goroutine.
func WithDispatch(dispatch func(func())) Option {
	return func(c *Controller) {
		if dispatch != nil {
			c.dispatch = dispatch
		}
	}
}

func WithLogger(l logger.Logger) Option {
	return func(c *Controller) {
		if l != nil {
			c.log = l
		}
	}
}
