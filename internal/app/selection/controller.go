// Package selection owns which session is focused and is the single gate
// every asynchronous update passes through before it reaches the view.
//
// Results are tagged when they are requested (session id, focus epoch,
// per-session sequence) and checked against the current focus when the
// update loop applies them. Anything for a session that is no longer focused,
// from a push channel of an earlier focus, or older than what was already
// applied is dropped.
package selection

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/okian/livewatch/internal/adapters/push"
	"github.com/okian/livewatch/internal/domain/compose"
	"github.com/okian/livewatch/internal/domain/eventlog"
	"github.com/okian/livewatch/internal/domain/model"
	"github.com/okian/livewatch/internal/domain/throttle"
	"github.com/okian/livewatch/pkg/logger"
	"github.com/okian/livewatch/pkg/metrics"
)

// Fetcher is the remote scoring/session service.
type Fetcher interface {
	ActiveSessions(ctx context.Context) ([]model.RosterEntry, error)
	CompletedSessions(ctx context.Context) ([]model.RosterEntry, error)
	Snapshot(ctx context.Context, sessionID string) ([]byte, error)
	DeleteSession(ctx context.Context, sessionID string) error
}

// Transport owns the push channel.
type Transport interface {
	Reconcile(ctx context.Context, t push.Target) error
	State() model.ConnectionState
	SessionID() string
	Close(ctx context.Context)
}

// Sink receives fetch results for the update loop.
type Sink interface {
	Enqueue(ctx context.Context, u model.Update) error
}

// Controller is the SelectionController.
type Controller struct {
	fetcher   Fetcher
	transport Transport
	sink      Sink
	refresher *throttle.Refresher
	events    *eventlog.Log

	baseCtx        context.Context
	throttleWindow time.Duration
	now            func() time.Time
	dispatch       func(func())
	inflight       sync.WaitGroup
	log            logger.Logger

	mu             sync.Mutex
	focused        string
	epoch          uint64
	snapshot       model.Snapshot
	active         []model.RosterEntry
	completed      []model.RosterEntry
	autoSelected   bool
	manualSelected bool
	issued         map[string]uint64 // per-session snapshot request generation
	applied        map[string]uint64 // last applied generation per session
	rosterIssued   uint64
	rosterApplied  uint64
	deletes        map[string]model.DeleteState
}

// New creates a controller with nothing focused.
func New(fetcher Fetcher, transport Transport, sink Sink, opts ...Option) *Controller {
	c := &Controller{
		fetcher:        fetcher,
		transport:      transport,
		sink:           sink,
		baseCtx:        context.Background(),
		throttleWindow: throttle.DefaultWindow,
		now:            time.Now,
		snapshot:       compose.Default(""),
		issued:         make(map[string]uint64),
		applied:        make(map[string]uint64),
		deletes:        make(map[string]model.DeleteState),
	}
	c.dispatch = c.goDispatch
	for _, opt := range opts {
		opt(c)
	}
	if c.log == nil {
		c.log = logger.Get().Named("selection")
	}
	if c.events == nil {
		c.events = eventlog.New()
	}
	c.refresher = throttle.New(c.fetchForPush,
		throttle.WithWindow(c.throttleWindow),
		throttle.WithClock(c.now),
		throttle.WithDispatch(c.dispatch),
		throttle.WithLogger(c.log.Named("throttle")),
	)
	return c
}

func (c *Controller) goDispatch(f func()) {
	c.inflight.Add(1)
	go func() {
		defer c.inflight.Done()
		f()
	}()
}

// Wait blocks until background work started by the controller has finished
// or ctx is done.
func (c *Controller) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		c.inflight.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("background work still running: %w", ctx.Err())
	}
}

// Select focuses sessionID. The snapshot and event log are reset before any
// network call starts; the fetch and channel reconciliation run in the
// background. Re-selecting the focused id is a full focus change.
func (c *Controller) Select(ctx context.Context, sessionID string) error {
	if sessionID == "" {
		return ErrEmptySessionID
	}
	c.mu.Lock()
	c.manualSelected = true
	target := c.focusLocked(ctx, sessionID, model.OriginSelect)
	c.mu.Unlock()

	c.afterFocus(target, model.OriginSelect)
	return nil
}

// focusLocked resets the view for sessionID and opens a new focus epoch.
func (c *Controller) focusLocked(ctx context.Context, sessionID string, origin model.Origin) push.Target {
	prev := c.focused
	c.snapshot = compose.Default(sessionID)
	c.events.Clear(ctx)
	c.focused = sessionID
	c.epoch++

	metrics.RecordFocusChange(string(origin))
	metrics.UpdateEventLogSize(0)
	c.log.Info(ctx, "focus changed",
		logger.String("session_id", sessionID),
		logger.String("previous", prev),
		logger.String("source", string(origin)),
		logger.Uint64("epoch", c.epoch))

	return push.Target{SessionID: sessionID, Epoch: c.epoch, Active: c.isActiveLocked(sessionID)}
}

func (c *Controller) afterFocus(t push.Target, origin model.Origin) {
	c.dispatch(func() { c.reconcile(t) })
	if t.SessionID == "" {
		return
	}
	c.dispatch(func() {
		// failures are logged inside; the poll loop recovers
		_ = c.FetchSnapshot(c.baseCtx, t.SessionID, origin)
	})
}

func (c *Controller) reconcile(t push.Target) {
	if err := c.transport.Reconcile(c.baseCtx, t); err != nil {
		c.log.Warn(c.baseCtx, "push channel unavailable, relying on polling",
			logger.String("session_id", t.SessionID),
			logger.Error(err))
	}
}

func (c *Controller) isActiveLocked(id string) bool {
	e, ok := model.FindEntry(id, c.active, c.completed)
	return ok && e.Status == model.StatusActive
}

// Focused returns the focused session id, empty when nothing is focused.
func (c *Controller) Focused() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.focused
}

// FetchSnapshot fetches the full snapshot for sessionID and enqueues it tagged
// with a fresh per-session sequence. Errors are logged and returned.
func (c *Controller) FetchSnapshot(ctx context.Context, sessionID string, origin model.Origin) error {
	if sessionID == "" {
		return ErrEmptySessionID
	}
	c.mu.Lock()
	c.issued[sessionID]++
	seq := c.issued[sessionID]
	c.mu.Unlock()

	start := c.now()
	body, err := c.fetcher.Snapshot(ctx, sessionID)
	latency := float64(c.now().Sub(start).Microseconds()) / 1000
	if err != nil {
		metrics.RecordSnapshotFetch(string(origin), "error", latency)
		c.log.Warn(ctx, "snapshot fetch failed",
			logger.String("session_id", sessionID),
			logger.String("origin", string(origin)),
			logger.Error(err))
		return fmt.Errorf("fetch snapshot %s: %w", sessionID, err)
	}
	metrics.RecordSnapshotFetch(string(origin), "ok", latency)

	return c.enqueue(ctx, model.Update{
		Kind:       model.UpdateSnapshot,
		SessionID:  sessionID,
		Seq:        seq,
		Origin:     origin,
		Payload:    body,
		ReceivedAt: c.now(),
	})
}

func (c *Controller) fetchForPush(ctx context.Context, sessionID string) error {
	return c.FetchSnapshot(ctx, sessionID, model.OriginPush)
}

// RefreshRosters fetches the active and completed lists concurrently and
// enqueues them as one update.
func (c *Controller) RefreshRosters(ctx context.Context) error {
	c.mu.Lock()
	c.rosterIssued++
	seq := c.rosterIssued
	c.mu.Unlock()

	var active, completed []model.RosterEntry
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		active, err = c.fetcher.ActiveSessions(gctx)
		return err
	})
	g.Go(func() error {
		var err error
		completed, err = c.fetcher.CompletedSessions(gctx)
		return err
	})
	if err := g.Wait(); err != nil {
		metrics.RecordRosterRefresh("error")
		c.log.Warn(ctx, "roster refresh failed", logger.Error(err))
		return fmt.Errorf("refresh rosters: %w", err)
	}
	metrics.RecordRosterRefresh("ok")

	return c.enqueue(ctx, model.Update{
		Kind:       model.UpdateRoster,
		Seq:        seq,
		Active:     active,
		Completed:  completed,
		ReceivedAt: c.now(),
	})
}

func (c *Controller) enqueue(ctx context.Context, u model.Update) error { //nolint:gocritic // hugeParam: Update is passed by value for channel semantics
	if err := c.sink.Enqueue(ctx, u); err != nil {
		c.log.Warn(ctx, "update dropped",
			logger.String("kind", string(u.Kind)),
			logger.String("session_id", u.SessionID),
			logger.Error(err))
		return fmt.Errorf("enqueue %s update: %w", u.Kind, err)
	}
	return nil
}

// Apply is called by the update loop, one update at a time in arrival order.
func (c *Controller) Apply(ctx context.Context, u model.Update) { //nolint:gocritic // hugeParam: Update is passed by value for channel semantics
	switch u.Kind {
	case model.UpdateSnapshot:
		c.applySnapshot(ctx, u)
	case model.UpdatePush:
		c.applyPush(ctx, u)
	case model.UpdateRoster:
		c.applyRoster(ctx, u)
	default:
		c.discard(ctx, u, "unknown_kind")
	}
}

func (c *Controller) discard(ctx context.Context, u model.Update, reason string) { //nolint:gocritic // hugeParam: Update is passed by value for channel semantics
	metrics.RecordUpdateDiscarded(string(u.Kind), reason)
	c.log.Debug(ctx, "update discarded",
		logger.String("kind", string(u.Kind)),
		logger.String("session_id", u.SessionID),
		logger.Uint64("seq", u.Seq),
		logger.String("reason", reason))
}

func (c *Controller) applySnapshot(ctx context.Context, u model.Update) { //nolint:gocritic // hugeParam: Update is passed by value for channel semantics
	c.mu.Lock()
	defer c.mu.Unlock()

	if u.SessionID == "" || u.SessionID != c.focused {
		c.discard(ctx, u, "stale")
		return
	}
	if u.Seq <= c.applied[u.SessionID] {
		c.discard(ctx, u, "out_of_order")
		return
	}
	next, err := compose.Compose(c.snapshot, u.SessionID, u.Payload)
	if err != nil {
		metrics.RecordUpdateDiscarded(string(u.Kind), "invalid")
		c.log.Warn(ctx, "snapshot rejected", logger.String("session_id", u.SessionID), logger.Error(err))
		return
	}
	c.snapshot = next
	c.applied[u.SessionID] = u.Seq
	metrics.RecordUpdateApplied(string(u.Kind))
}

func (c *Controller) applyPush(ctx context.Context, u model.Update) { //nolint:gocritic // hugeParam: Update is passed by value for channel semantics
	if u.Message == nil {
		c.discard(ctx, u, "empty")
		return
	}

	c.mu.Lock()
	if u.SessionID == "" || u.SessionID != c.focused || u.Epoch != c.epoch {
		c.mu.Unlock()
		c.discard(ctx, u, "stale")
		return
	}
	action := push.Classify(*u.Message)
	if action == push.ActionLogAndRefresh {
		if c.events.Append(ctx, u.Message.NotableEvent()) {
			metrics.UpdateEventLogSize(c.events.Len())
		} else {
			c.log.Debug(ctx, "duplicate event dropped", logger.String("event_id", u.Message.EventID))
		}
	}
	c.mu.Unlock()

	switch action {
	case push.ActionLogAndRefresh, push.ActionRefresh:
		c.refresher.Trigger(c.baseCtx, u.SessionID)
	case push.ActionRosterRefresh:
		c.dispatch(func() {
			_ = c.RefreshRosters(c.baseCtx)
		})
	default:
		c.log.Debug(ctx, "push message ignored", logger.String("type", string(u.Message.Type)))
		return
	}
	metrics.RecordUpdateApplied(string(u.Kind))
}

func (c *Controller) applyRoster(ctx context.Context, u model.Update) { //nolint:gocritic // hugeParam: Update is passed by value for channel semantics
	c.mu.Lock()
	if u.Seq <= c.rosterApplied {
		c.mu.Unlock()
		c.discard(ctx, u, "out_of_order")
		return
	}
	c.rosterApplied = u.Seq
	c.active = u.Active
	c.completed = u.Completed
	metrics.UpdateRosterSize(string(model.StatusActive), len(u.Active))
	metrics.UpdateRosterSize(string(model.StatusCompleted), len(u.Completed))
	metrics.RecordUpdateApplied(string(u.Kind))

	if pick, ok := c.autoSelectLocked(); ok {
		c.autoSelected = true
		target := c.focusLocked(ctx, pick, model.OriginAutoSelect)
		c.mu.Unlock()
		c.afterFocus(target, model.OriginAutoSelect)
		return
	}

	var target push.Target
	hasFocus := c.focused != ""
	if hasFocus {
		target = push.Target{SessionID: c.focused, Epoch: c.epoch, Active: c.isActiveLocked(c.focused)}
	}
	c.mu.Unlock()

	if hasFocus {
		// opens the channel when the focused session became active, closes it when it finished
		c.dispatch(func() { c.reconcile(target) })
	}
}

// autoSelectLocked picks the first active, else first completed session,
// only while neither an automatic nor a manual selection has happened.
func (c *Controller) autoSelectLocked() (string, bool) {
	if c.autoSelected || c.manualSelected {
		return "", false
	}
	if len(c.active) > 0 {
		return c.active[0].ID, true
	}
	if len(c.completed) > 0 {
		return c.completed[0].ID, true
	}
	return "", false
}

// State returns a copy of the live view.
func (c *Controller) State() model.LiveViewState {
	conn := c.transport.State()
	channel := c.transport.SessionID()

	c.mu.Lock()
	defer c.mu.Unlock()
	snap := c.snapshot.Clone()
	return model.LiveViewState{
		FocusedSessionID: c.focused,
		Snapshot:         snap,
		HasStarted:       snap.HasStarted(),
		EventLog:         c.events.Entries(),
		ConnectionState:  conn,
		ChannelSessionID: channel,
		Active:           slices.Clone(c.active),
		Completed:        slices.Clone(c.completed),
		DeleteStates:     maps.Clone(c.deletes),
	}
}

// AutoSelected reports whether the automatic selection has fired.
func (c *Controller) AutoSelected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.autoSelected
}

// Close closes the push channel.
func (c *Controller) Close(ctx context.Context) {
	c.transport.Close(ctx)
}
