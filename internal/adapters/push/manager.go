// Package push owns the push-notification channel of the focused session.
//
// The channel follows Idle -> Connecting -> Open -> Closed. Closed is
// terminal for a focus epoch: the monitor relies on polling instead of
// reconnecting.
package push

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/okian/livewatch/internal/domain/model"
	"github.com/okian/livewatch/pkg/logger"
	"github.com/okian/livewatch/pkg/metrics"
)

// AutoReconnect is false: a channel that failed or closed is not reopened
// until the focus or the session status changes.
const AutoReconnect = false

const defaultDialTimeout = 5 * time.Second

// Sink receives tagged push updates. The update loop's queue satisfies it.
type Sink interface {
	Enqueue(ctx context.Context, u model.Update) error
}

// Target is the channel the monitor wants open.
type Target struct {
	SessionID string
	Epoch     uint64
	Active    bool
}

type channel struct {
	sessionID string
	epoch     uint64
	conn      Conn
	detached  atomic.Bool
	done      chan struct{}
}

type channelKey struct {
	sessionID string
	epoch     uint64
}

// Manager opens and closes channels so that at most one is live and a closed
// channel never delivers another update.
type Manager struct {
	dialer      Dialer
	sink        Sink
	dialTimeout time.Duration
	now         func() time.Time
	log         logger.Logger

	switchMu  sync.Mutex // serializes Reconcile and Close
	lastEpoch uint64
	attempted channelKey

	mu      sync.Mutex
	state   model.ConnectionState
	current *channel
}

// Option configures a Manager.
type Option func(*Manager)

func WithDialTimeout(d time.Duration) Option {
	return func(m *Manager) {
		if d > 0 {
			m.dialTimeout = d
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(m *Manager) {
		if now != nil {
			m.now = now
		}
	}
}

func WithLogger(l logger.Logger) Option {
	return func(m *Manager) {
		if l != nil {
			m.log = l
		}
	}
}

// NewManager creates an idle manager.
func NewManager(dialer Dialer, sink Sink, opts ...Option) *Manager {
	m := &Manager{
		dialer:      dialer,
		sink:        sink,
		dialTimeout: defaultDialTimeout,
		now:         time.Now,
		state:       model.ConnIdle,
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.log == nil {
		m.log = logger.Get().Named("push")
	}
	metrics.UpdateConnectionState(string(model.ConnIdle))
	return m
}

// State returns the current connection state.
func (m *Manager) State() model.ConnectionState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// SessionID returns the session of the live channel, if any.
func (m *Manager) SessionID() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.current == nil {
		return ""
	}
	return m.current.sessionID
}

// Reconcile makes the live channel match t. Any existing channel for a
// different target is detached, closed and its reader drained before a new
// one is dialed. A channel is dialed only for an active session, and at most
// once per (session, epoch). Targets from an older epoch are ignored.
func (m *Manager) Reconcile(ctx context.Context, t Target) error {
	m.switchMu.Lock()
	defer m.switchMu.Unlock()

	if t.Epoch < m.lastEpoch {
		m.log.Debug(ctx, "stale reconcile skipped",
			logger.String("session_id", t.SessionID),
			logger.Uint64("epoch", t.Epoch),
			logger.Uint64("current_epoch", m.lastEpoch))
		return nil
	}
	focusChanged := t.Epoch > m.lastEpoch || t.SessionID != m.attempted.sessionID
	m.lastEpoch = t.Epoch
	key := channelKey{sessionID: t.SessionID, epoch: t.Epoch}

	if !focusChanged && t.Active {
		// same focus, still active: keep whatever we have
		if m.attempted == key && !AutoReconnect {
			return nil
		}
	}

	had := m.detach(ctx)
	switch {
	case focusChanged:
		m.setState(model.ConnIdle)
	case had:
		m.setState(model.ConnClosed)
	}

	if t.SessionID == "" || !t.Active {
		return nil
	}
	return m.open(ctx, t, key)
}

// Close detaches and closes the live channel.
func (m *Manager) Close(ctx context.Context) {
	m.switchMu.Lock()
	defer m.switchMu.Unlock()
	if m.detach(ctx) {
		m.setState(model.ConnClosed)
	}
}

func (m *Manager) open(ctx context.Context, t Target, key channelKey) error {
	m.attempted = key
	m.setState(model.ConnConnecting)

	dctx, cancel := context.WithTimeout(ctx, m.dialTimeout)
	defer cancel()
	conn, err := m.dialer.Dial(dctx, t.SessionID)
	if err != nil {
		m.setState(model.ConnClosed)
		m.log.Warn(ctx, "push channel open failed",
			logger.String("session_id", t.SessionID),
			logger.Error(err))
		return fmt.Errorf("%w: %w", ErrDialFailed, err)
	}

	ch := &channel{
		sessionID: t.SessionID,
		epoch:     t.Epoch,
		conn:      conn,
		done:      make(chan struct{}),
	}
	m.mu.Lock()
	m.current = ch
	m.mu.Unlock()
	m.setState(model.ConnOpen)

	m.log.Info(ctx, "push channel open",
		logger.String("session_id", t.SessionID),
		logger.Uint64("epoch", t.Epoch))
	go m.read(context.WithoutCancel(ctx), ch)
	return nil
}

// detach stops the live channel's reader from delivering, closes the
// connection and waits for the reader to exit. Reports whether a channel existed.
func (m *Manager) detach(ctx context.Context) bool {
	m.mu.Lock()
	ch := m.current
	m.current = nil
	m.mu.Unlock()
	if ch == nil {
		return false
	}

	ch.detached.Store(true)
	if err := ch.conn.Close(); err != nil {
		m.log.Debug(ctx, "push channel close", logger.String("session_id", ch.sessionID), logger.Error(err))
	}
	select {
	case <-ch.done:
	case <-ctx.Done():
		m.log.Warn(ctx, "push reader did not exit before deadline", logger.String("session_id", ch.sessionID))
	}
	return true
}

func (m *Manager) read(ctx context.Context, ch *channel) {
	defer close(ch.done)

	for {
		_, data, err := ch.conn.ReadMessage()
		if ch.detached.Load() {
			return
		}
		if err != nil {
			m.log.Warn(ctx, "push channel closed",
				logger.String("session_id", ch.sessionID),
				logger.Error(err))
			m.markClosed(ch)
			return
		}

		now := m.now()
		msg, err := ParseMessage(data, now)
		if err != nil {
			m.log.Debug(ctx, "push message dropped", logger.String("session_id", ch.sessionID), logger.Error(err))
			continue
		}
		metrics.RecordPushMessage(string(msg.Type))

		u := model.Update{
			Kind:       model.UpdatePush,
			SessionID:  ch.sessionID,
			Epoch:      ch.epoch,
			Origin:     model.OriginPush,
			Message:    &msg,
			ReceivedAt: now,
		}
		if err := m.sink.Enqueue(ctx, u); err != nil {
			m.log.Warn(ctx, "push update dropped",
				logger.String("session_id", ch.sessionID),
				logger.String("type", string(msg.Type)),
				logger.Error(err))
		}
	}
}

func (m *Manager) markClosed(ch *channel) {
	m.mu.Lock()
	if m.current != ch {
		m.mu.Unlock()
		return
	}
	m.current = nil
	changed := m.state != model.ConnClosed
	m.state = model.ConnClosed
	m.mu.Unlock()

	_ = ch.conn.Close()
	if changed {
		metrics.UpdateConnectionState(string(model.ConnClosed))
	}
}

func (m *Manager) setState(s model.ConnectionState) {
	m.mu.Lock()
	changed := m.state != s
	m.state = s
	m.mu.Unlock()
	if changed {
		metrics.UpdateConnectionState(string(s))
	}
}
