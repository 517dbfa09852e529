// Package worker runs the single update loop.
package worker

import (
	"context"
	"fmt"
	"time"

	"github.com/okian/livewatch/internal/domain/model"
	"github.com/okian/livewatch/pkg/logger"
	"github.com/okian/livewatch/pkg/metrics"
)

// Applier applies one update. Implementations are never called concurrently
// by a Loop.
type Applier interface {
	Apply(ctx context.Context, u model.Update)
}

// Queue defines how the loop receives updates.
type Queue interface {
	Dequeue(ctx context.Context) <-chan model.Update
}

// Loop drains a queue and applies updates one at a time in arrival order.
type Loop struct {
	queue   Queue
	applier Applier
	name    string

	shutdown chan struct{}
	done     chan struct{}

	logger logger.Logger
}

// NewLoop creates a loop with configuration options.
func NewLoop(queue Queue, applier Applier, opts ...Option) *Loop {
	l := &Loop{
		queue:    queue,
		applier:  applier,
		name:     "update-loop",
		shutdown: make(chan struct{}),
		done:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(l)
	}
	if l.logger == nil {
		l.logger = logger.Get().Named(l.name)
	}
	return l
}

// Run applies updates until the queue channel closes, ctx is canceled, or
// Shutdown is called.
func (l *Loop) Run(ctx context.Context) {
	defer close(l.done)

	updates := l.queue.Dequeue(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-l.shutdown:
			return
		case u, ok := <-updates:
			if !ok {
				return
			}
			l.apply(ctx, u)
		}
	}
}

func (l *Loop) apply(ctx context.Context, u model.Update) { //nolint:gocritic // hugeParam: Update is passed by value for channel semantics
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			l.logger.Error(ctx, "update apply panicked",
				logger.String("kind", string(u.Kind)),
				logger.String("session_id", u.SessionID),
				logger.Any("panic", r))
		}
		metrics.RecordApplyLatency(float64(time.Since(start).Microseconds()) / 1000)
	}()
	l.applier.Apply(ctx, u)
}

// Shutdown stops the loop without draining and waits for it to exit.
func (l *Loop) Shutdown(ctx context.Context) error {
	select {
	case <-l.shutdown:
	default:
		close(l.shutdown)
	}
	return l.Wait(ctx)
}

// Wait blocks until Run has returned or ctx is done.
func (l *Loop) Wait(ctx context.Context) error {
	select {
	case <-l.done:
		return nil
	case <-ctx.Done():
		l.logger.Warn(ctx, "shutdown timed out")
		return fmt.Errorf("shutdown timed out: %w", ctx.Err())
	}
}
