// Package poll runs the periodic snapshot and roster refreshes that keep the
// live view correct when the push channel is closed or silent.
package poll

import (
	"context"
	"sync"
	"time"

	"github.com/okian/livewatch/internal/domain/model"
	"github.com/okian/livewatch/pkg/logger"
)

const (
	DefaultSnapshotInterval = 5 * time.Second
	DefaultRosterInterval   = 10 * time.Second
)

// Target is what the scheduler refreshes. Results are delivered through the
// target's own update path, so the scheduler never touches view state.
type Target interface {
	Focused() string
	FetchSnapshot(ctx context.Context, sessionID string, origin model.Origin) error
	RefreshRosters(ctx context.Context) error
}

// Scheduler owns two independent tickers.
type Scheduler struct {
	target        Target
	snapshotEvery time.Duration
	rosterEvery   time.Duration
	log           logger.Logger

	mu      sync.Mutex
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	running bool
}

// New creates a stopped scheduler.
func New(target Target, opts ...Option) *Scheduler {
	s := &Scheduler{
		target:        target,
		snapshotEvery: DefaultSnapshotInterval,
		rosterEvery:   DefaultRosterInterval,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.log == nil {
		s.log = logger.Get().Named("poll")
	}
	return s
}

// Start launches both loops. The roster loop refreshes once immediately so
// the initial auto-selection does not wait a full period.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return ErrAlreadyStarted
	}

	runCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.running = true

	s.wg.Add(2)
	go s.loop(runCtx, s.snapshotEvery, false, s.PollSnapshot)
	go s.loop(runCtx, s.rosterEvery, true, s.PollRosters)

	s.log.Info(ctx, "poll scheduler started",
		logger.Duration("snapshot_interval", s.snapshotEvery),
		logger.Duration("roster_interval", s.rosterEvery))
	return nil
}

// Stop cancels both loops and waits for them. In-flight fetches finish and
// are judged by the staleness gate like any other late response.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.cancel()
	s.running = false
	s.mu.Unlock()

	s.wg.Wait()
}

// Running reports whether the loops are active.
func (s *Scheduler) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

func (s *Scheduler) loop(ctx context.Context, every time.Duration, immediate bool, tick func(context.Context)) {
	defer s.wg.Done()

	if immediate {
		tick(ctx)
	}

	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			tick(ctx)
		}
	}
}

// PollSnapshot fetches the snapshot of whatever is focused right now. With
// nothing focused the tick is a no-op.
func (s *Scheduler) PollSnapshot(ctx context.Context) {
	id := s.target.Focused()
	if id == "" {
		return
	}
	if err := s.target.FetchSnapshot(ctx, id, model.OriginPoll); err != nil {
		s.log.Debug(ctx, "snapshot poll failed", logger.String("session_id", id), logger.Error(err))
	}
}

// PollRosters refreshes both session lists.
func (s *Scheduler) PollRosters(ctx context.Context) {
	if err := s.target.RefreshRosters(ctx); err != nil {
		s.log.Debug(ctx, "roster poll failed", logger.Error(err))
	}
}
