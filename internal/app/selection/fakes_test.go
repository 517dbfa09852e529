package selection_test

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/okian/livewatch/internal/adapters/push"
	"github.com/okian/livewatch/internal/domain/model"
)

type fakeFetcher struct {
	mu            sync.Mutex
	active        []model.RosterEntry
	completed     []model.RosterEntry
	snapshots     map[string]string
	snapshotCalls map[string]int
	activeCalls   int
	doneCalls     int
	deleteErr     error
	deleteGate    chan struct{}
	deleted       []string
}

func newFakeFetcher() *fakeFetcher {
	return &fakeFetcher{
		snapshots:     map[string]string{},
		snapshotCalls: map[string]int{},
	}
}

func (f *fakeFetcher) ActiveSessions(context.Context) ([]model.RosterEntry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.activeCalls++
	return append([]model.RosterEntry(nil), f.active...), nil
}

func (f *fakeFetcher) CompletedSessions(context.Context) ([]model.RosterEntry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.doneCalls++
	return append([]model.RosterEntry(nil), f.completed...), nil
}

func (f *fakeFetcher) Snapshot(_ context.Context, id string) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.snapshotCalls[id]++
	body, ok := f.snapshots[id]
	if !ok {
		return nil, errors.New("unavailable")
	}
	return []byte(body), nil
}

func (f *fakeFetcher) DeleteSession(_ context.Context, id string) error {
	if f.deleteGate != nil {
		<-f.deleteGate
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.deleteErr != nil {
		return f.deleteErr
	}
	f.deleted = append(f.deleted, id)
	return nil
}

func (f *fakeFetcher) calls(id string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.snapshotCalls[id]
}

func (f *fakeFetcher) rosterCalls() (int, int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.activeCalls, f.doneCalls
}

type fakeTransport struct {
	mu      sync.Mutex
	targets []push.Target
	closed  bool
}

func (t *fakeTransport) Reconcile(_ context.Context, target push.Target) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.targets = append(t.targets, target)
	return nil
}

func (t *fakeTransport) State() model.ConnectionState {
	t.mu.Lock()
	defer t.mu.Unlock()
	if len(t.targets) > 0 && t.targets[len(t.targets)-1].Active {
		return model.ConnOpen
	}
	return model.ConnIdle
}

func (t *fakeTransport) SessionID() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed || len(t.targets) == 0 || !t.targets[len(t.targets)-1].Active {
		return ""
	}
	return t.targets[len(t.targets)-1].SessionID
}

func (t *fakeTransport) Close(context.Context) {
	t.mu.Lock()
	t.closed = true
	t.mu.Unlock()
}

func (t *fakeTransport) last() push.Target {
	t.mu.Lock()
	defer t.mu.Unlock()
	if len(t.targets) == 0 {
		return push.Target{}
	}
	return t.targets[len(t.targets)-1]
}

// captureSink holds updates so tests decide when, and in which order, they arrive.
type captureSink struct {
	mu      sync.Mutex
	updates []model.Update
}

func (s *captureSink) Enqueue(_ context.Context, u model.Update) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.updates = append(s.updates, u)
	return nil
}

func (s *captureSink) take() []model.Update {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := s.updates
	s.updates = nil
	return out
}

func (s *captureSink) takeKind(kind model.UpdateKind) []model.Update {
	var out []model.Update
	for _, u := range s.take() {
		if u.Kind == kind {
			out = append(out, u)
		}
	}
	return out
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func inline(f func()) { f() }

func active(ids ...string) []model.RosterEntry {
	out := make([]model.RosterEntry, 0, len(ids))
	for _, id := range ids {
		out = append(out, model.RosterEntry{ID: id, Status: model.StatusActive})
	}
	return out
}

func completed(ids ...string) []model.RosterEntry {
	out := make([]model.RosterEntry, 0, len(ids))
	for _, id := range ids {
		out = append(out, model.RosterEntry{ID: id, Status: model.StatusCompleted})
	}
	return out
}

func pushUpdate(id string, epoch uint64, msg model.PushMessage) model.Update {
	return model.Update{Kind: model.UpdatePush, SessionID: id, Epoch: epoch, Message: &msg}
}
