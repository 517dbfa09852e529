// Package service wires the live monitor together and implements the
// dependencies required by the HTTP API.
package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/okian/livewatch/internal/adapters/mq/queue"
	"github.com/okian/livewatch/internal/adapters/mq/worker"
	"github.com/okian/livewatch/internal/adapters/push"
	"github.com/okian/livewatch/internal/adapters/remote"
	"github.com/okian/livewatch/internal/adapters/repository"
	"github.com/okian/livewatch/internal/app/decision"
	"github.com/okian/livewatch/internal/app/poll"
	"github.com/okian/livewatch/internal/app/selection"
	"github.com/okian/livewatch/internal/config"
	"github.com/okian/livewatch/internal/domain/compose"
	"github.com/okian/livewatch/internal/domain/dedupe"
	"github.com/okian/livewatch/internal/domain/eventlog"
	"github.com/okian/livewatch/internal/domain/model"
	"github.com/okian/livewatch/pkg/logger"
	"github.com/okian/livewatch/pkg/metrics"
)

const (
	stopTimeout         = 5 * time.Second
	loopShutdownTimeout = time.Second
)

// Monitor owns one live view: the update queue and loop, the selection
// controller with its push channel, the poll scheduler and the decision
// recorder.
type Monitor struct {
	mu sync.RWMutex

	cfg           *config.Config
	storeOverride repository.Store
	now           func() time.Time

	// Core components, rebuilt on every Start
	updates    *queue.InMemoryQueue
	loop       *worker.Loop
	transport  *push.Manager
	controller *selection.Controller
	poller     *poll.Scheduler
	recorder   *decision.Recorder
	events     *eventlog.Log

	started bool
	cancel  context.CancelFunc

	logger logger.Logger
}

// New constructs a Monitor with default configuration.
func New(opts ...Option) *Monitor {
	m := &Monitor{
		cfg: config.New(),
		now: time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Start opens the decision store and starts the update loop and the poll
// scheduler. The first roster load runs immediately in the background.
func (m *Monitor) Start(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.started {
		return nil
	}
	if m.logger == nil {
		m.logger = logger.Get().Named("monitor")
	}
	if err := m.cfg.Validate(); err != nil {
		return err
	}

	m.logger.Info(ctx, "starting live monitor...",
		logger.String("scoring_base_url", m.cfg.ScoringBaseURL),
		logger.String("push_base_url", m.cfg.PushBaseURL))

	store, err := m.openStore(ctx)
	if err != nil {
		return fmt.Errorf("open decision store: %w", err)
	}
	recorder := decision.New(store,
		decision.WithClock(m.now),
		decision.WithMaxTries(m.cfg.DecisionMaxTries),
		decision.WithLogger(m.logger.Named("decision")),
	)
	if err := recorder.Open(ctx); err != nil {
		_ = recorder.Close()
		return fmt.Errorf("load decisions: %w", err)
	}

	// Start may be called with a short-lived ctx; the monitor outlives it.
	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))

	updates := queue.NewInMemoryQueue(queue.WithCapacity(m.cfg.UpdateQueueSize))

	client := remote.New(m.cfg.ScoringBaseURL,
		remote.WithTimeout(m.cfg.RequestTimeout()),
		remote.WithLogger(m.logger.Named("remote")),
	)
	transport := push.NewManager(push.NewWebsocketDialer(m.cfg.PushBaseURL), updates,
		push.WithDialTimeout(m.cfg.DialTimeout()),
		push.WithClock(m.now),
		push.WithLogger(m.logger.Named("push")),
	)

	logOpts := []eventlog.Option{eventlog.WithCapacity(m.cfg.EventLogCapacity)}
	if m.cfg.DedupeEvents {
		logOpts = append(logOpts, eventlog.WithDeduper(
			dedupe.NewInMemoryDeduper(dedupe.WithMaxSize(m.cfg.DedupeSize)),
		))
	}
	events := eventlog.New(logOpts...)

	controller := selection.New(client, transport, updates,
		selection.WithBaseContext(runCtx),
		selection.WithEventLog(events),
		selection.WithThrottleWindow(m.cfg.ThrottleWindow()),
		selection.WithClock(m.now),
		selection.WithLogger(m.logger.Named("selection")),
	)

	loop := worker.NewLoop(updates, controller, worker.WithLogger(m.logger.Named("update-loop")))
	go loop.Run(runCtx)

	poller := poll.New(controller,
		poll.WithSnapshotInterval(m.cfg.SnapshotPollInterval()),
		poll.WithRosterInterval(m.cfg.RosterPollInterval()),
		poll.WithLogger(m.logger.Named("poll")),
	)
	if err := poller.Start(runCtx); err != nil {
		cancel()
		_ = updates.Close()
		_ = recorder.Close()
		return fmt.Errorf("start poll scheduler: %w", err)
	}

	m.updates = updates
	m.loop = loop
	m.transport = transport
	m.controller = controller
	m.poller = poller
	m.recorder = recorder
	m.events = events
	m.cancel = cancel
	m.started = true

	m.logger.Info(ctx, "live monitor started",
		logger.Duration("snapshot_interval", m.cfg.SnapshotPollInterval()),
		logger.Duration("roster_interval", m.cfg.RosterPollInterval()),
		logger.Duration("throttle_window", m.cfg.ThrottleWindow()),
		logger.Int("queue_size", m.cfg.UpdateQueueSize),
		logger.String("decision_store", m.storeName()),
	)
	return nil
}

func (m *Monitor) openStore(ctx context.Context) (repository.Store, error) {
	if m.storeOverride != nil {
		return m.storeOverride, nil
	}
	storeLog := repository.WithLogger(m.logger.Named("repository"))
	switch m.cfg.DecisionStore {
	case config.StoreMemory:
		return repository.NewMemoryStore(), nil
	case config.StoreRedis:
		return repository.OpenRedis(ctx, &redis.Options{
			Addr:     m.cfg.RedisAddr,
			Password: m.cfg.RedisPassword,
			DB:       m.cfg.RedisDB,
		}, storeLog)
	default:
		return repository.OpenSQLite(ctx, m.cfg.DecisionDBPath, storeLog)
	}
}

func (m *Monitor) storeName() string {
	if m.storeOverride != nil {
		return "custom"
	}
	return m.cfg.DecisionStore
}

// Stop shuts the monitor down. Polling stops first and queued updates are
// applied. In-flight fetches are then cancelled, and the push channel and the
// decision store are closed. Every wait is bounded by stopTimeout.
func (m *Monitor) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.started {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), stopTimeout)
	defer cancel()

	m.logger.Info(ctx, "stopping live monitor...")

	m.poller.Stop()

	_ = m.updates.Close()
	if err := m.loop.Wait(ctx); err != nil {
		m.logger.Warn(ctx, "update loop did not drain; stopping it", logger.Error(err))
		sctx, scancel := context.WithTimeout(context.Background(), loopShutdownTimeout)
		if err := m.loop.Shutdown(sctx); err != nil {
			m.logger.Error(ctx, "update loop did not stop", logger.Error(err))
		}
		scancel()
	}
	// queued updates are applied; abort fetches and dials still in flight
	m.cancel()
	if err := m.controller.Wait(ctx); err != nil {
		m.logger.Warn(ctx, "background work did not finish", logger.Error(err))
	}
	m.controller.Close(ctx)

	if err := m.recorder.Close(); err != nil {
		m.logger.Warn(ctx, "closing decision store", logger.Error(err))
	}

	m.started = false
	m.logger.Info(ctx, "live monitor stopped")
}

func (m *Monitor) running() (*selection.Controller, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if !m.started {
		return nil, ErrNotStarted
	}
	return m.controller, nil
}

func (m *Monitor) decisions() (*decision.Recorder, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if !m.started {
		return nil, ErrNotStarted
	}
	return m.recorder, nil
}

// State returns the live view. A stopped monitor reports an empty view.
func (m *Monitor) State(_ context.Context) model.LiveViewState {
	c, err := m.running()
	if err != nil {
		return model.LiveViewState{
			Snapshot:        compose.Default(""),
			EventLog:        []model.NotableEvent{},
			ConnectionState: model.ConnIdle,
			Active:          []model.RosterEntry{},
			Completed:       []model.RosterEntry{},
			DeleteStates:    map[string]model.DeleteState{},
		}
	}
	return c.State()
}

// Select focuses sessionID.
func (m *Monitor) Select(ctx context.Context, sessionID string) error {
	c, err := m.running()
	if err != nil {
		return err
	}
	return c.Select(ctx, sessionID)
}

// RequestDelete marks sessionID as awaiting delete confirmation.
func (m *Monitor) RequestDelete(_ context.Context, sessionID string) error {
	c, err := m.running()
	if err != nil {
		return err
	}
	return c.RequestDelete(sessionID)
}

// CancelDelete withdraws a pending delete request.
func (m *Monitor) CancelDelete(_ context.Context, sessionID string) error {
	c, err := m.running()
	if err != nil {
		return err
	}
	return c.CancelDelete(sessionID)
}

// ConfirmDelete deletes sessionID on the remote service.
func (m *Monitor) ConfirmDelete(ctx context.Context, sessionID string) error {
	c, err := m.running()
	if err != nil {
		return err
	}
	return c.ConfirmDelete(ctx, sessionID)
}

// RecordDecision persists a decision for sessionID.
func (m *Monitor) RecordDecision(ctx context.Context, sessionID string, d model.Decision, dc model.DecisionContext) (model.DecisionRecord, error) {
	r, err := m.decisions()
	if err != nil {
		return model.DecisionRecord{}, err
	}
	return r.RecordDecision(ctx, sessionID, d, dc)
}

// Decision returns the decision recorded for sessionID.
func (m *Monitor) Decision(_ context.Context, sessionID string) (model.DecisionRecord, error) {
	r, err := m.decisions()
	if err != nil {
		return model.DecisionRecord{}, err
	}
	rec, ok := r.Get(sessionID)
	if !ok {
		return model.DecisionRecord{}, fmt.Errorf("%w: %s", ErrDecisionNotFound, sessionID)
	}
	return rec, nil
}

// Decisions returns every recorded decision.
func (m *Monitor) Decisions(_ context.Context) ([]model.DecisionRecord, error) {
	r, err := m.decisions()
	if err != nil {
		return nil, err
	}
	return r.All(), nil
}

// GetStats returns service statistics for monitoring.
func (m *Monitor) GetStats() map[string]interface{} {
	m.mu.RLock()
	defer m.mu.RUnlock()

	stats := map[string]interface{}{
		"started":        m.started,
		"queueSize":      m.cfg.UpdateQueueSize,
		"eventLogSize":   m.cfg.EventLogCapacity,
		"decisionStore":  m.storeName(),
		"throttleWindow": m.cfg.ThrottleWindow().String(),
	}

	if m.started {
		ctx := context.Background()
		st := m.controller.State()
		queueLen := m.updates.Len(ctx)

		stats["focusedSessionId"] = st.FocusedSessionID
		stats["connectionState"] = string(st.ConnectionState)
		stats["channelSessionId"] = st.ChannelSessionID
		stats["queueLength"] = queueLen
		stats["eventLogLength"] = m.events.Len()
		stats["activeSessions"] = len(st.Active)
		stats["completedSessions"] = len(st.Completed)
		stats["decisions"] = len(m.recorder.All())
		stats["autoSelected"] = m.controller.AutoSelected()

		metrics.UpdateQueueSize(queueLen)
	}

	return stats
}
