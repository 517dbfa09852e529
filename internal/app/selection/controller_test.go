package selection_test

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/okian/livewatch/internal/adapters/push"
	"github.com/okian/livewatch/internal/app/selection"
	"github.com/okian/livewatch/internal/domain/model"
	"github.com/okian/livewatch/pkg/logger"
	. "github.com/smartystreets/goconvey/convey"
)

type harness struct {
	ctx       context.Context
	fetcher   *fakeFetcher
	transport *fakeTransport
	sink      *captureSink
	clock     *fakeClock
	c         *selection.Controller
}

func newHarness() *harness {
	h := &harness{
		ctx:       context.Background(),
		fetcher:   newFakeFetcher(),
		transport: &fakeTransport{},
		sink:      &captureSink{},
		clock:     &fakeClock{now: time.Unix(1_700_000_000, 0)},
	}
	h.c = selection.New(h.fetcher, h.transport, h.sink,
		selection.WithDispatch(inline),
		selection.WithClock(h.clock.Now),
		selection.WithThrottleWindow(3*time.Second),
		selection.WithLogger(logger.Nop()),
	)
	return h
}

// drain applies queued updates in arrival order until none are left.
func (h *harness) drain() {
	for {
		updates := h.sink.take()
		if len(updates) == 0 {
			return
		}
		for _, u := range updates {
			h.c.Apply(h.ctx, u)
		}
	}
}

func (h *harness) loadRosters() {
	So(h.c.RefreshRosters(h.ctx), ShouldBeNil)
	h.drain()
}

func TestSelect(t *testing.T) {
	Convey("Given a controller with two active sessions", t, func() {
		h := newHarness()
		h.fetcher.active = active("a", "b")
		h.fetcher.snapshots["a"] = `{"metrics":{"paste_count":4},"per_task_metrics":[{"task_index":0,"completed":true}]}`
		h.fetcher.snapshots["b"] = `{"metrics":{"paste_count":1}}`

		Convey("When an empty id is selected", func() {
			So(errors.Is(h.c.Select(h.ctx, ""), selection.ErrEmptySessionID), ShouldBeTrue)
		})

		Convey("When a session is selected before any roster load", func() {
			So(h.c.Select(h.ctx, "b"), ShouldBeNil)

			Convey("Then the view is reset synchronously and a fetch is issued", func() {
				st := h.c.State()
				So(st.FocusedSessionID, ShouldEqual, "b")
				So(st.Snapshot.SessionID, ShouldEqual, "b")
				So(st.Snapshot.Metrics.PasteCount, ShouldEqual, 0)
				So(st.EventLog, ShouldBeEmpty)
				So(h.fetcher.calls("b"), ShouldEqual, 1)
			})

			Convey("Then the unknown status keeps the channel closed", func() {
				So(h.transport.last().SessionID, ShouldEqual, "b")
				So(h.transport.last().Active, ShouldBeFalse)
			})

			Convey("Then the snapshot is applied once the update arrives", func() {
				h.drain()
				So(h.c.State().Snapshot.Metrics.PasteCount, ShouldEqual, 1)
			})

			Convey("Then a later roster load does not auto-select", func() {
				h.loadRosters()
				So(h.c.Focused(), ShouldEqual, "b")
				So(h.c.AutoSelected(), ShouldBeFalse)

				Convey("And the now-known active status opens the channel", func() {
					So(h.transport.last(), ShouldResemble, pushTarget("b", 1, true))
				})
			})
		})

		Convey("When the focused session is selected again", func() {
			So(h.c.Select(h.ctx, "a"), ShouldBeNil)
			h.drain()
			So(h.c.State().Snapshot.Metrics.PasteCount, ShouldEqual, 4)
			So(h.c.Select(h.ctx, "a"), ShouldBeNil)

			Convey("Then it is a full focus change", func() {
				st := h.c.State()
				So(st.Snapshot.Metrics.PasteCount, ShouldEqual, 0)
				So(h.transport.last().Epoch, ShouldEqual, 2)
				So(h.fetcher.calls("a"), ShouldEqual, 2)
			})
		})

		Convey("When the state reports hasStarted", func() {
			So(h.c.Select(h.ctx, "a"), ShouldBeNil)
			h.drain()
			So(h.c.State().HasStarted, ShouldBeTrue)
			So(h.c.Select(h.ctx, "b"), ShouldBeNil)
			h.drain()
			So(h.c.State().HasStarted, ShouldBeFalse)
		})
	})
}

func TestAutoSelect(t *testing.T) {
	Convey("Scenario A: the first roster load has 2 active and 0 completed sessions", t, func() {
		h := newHarness()
		h.fetcher.active = active("a1", "a2")
		h.fetcher.snapshots["a1"] = `{}`
		h.loadRosters()

		Convey("Then focus is the first active session", func() {
			So(h.c.Focused(), ShouldEqual, "a1")
			So(h.c.AutoSelected(), ShouldBeTrue)
			So(h.fetcher.calls("a1"), ShouldEqual, 1)
			So(h.transport.last(), ShouldResemble, pushTarget("a1", 1, true))
			So(h.c.State().ChannelSessionID, ShouldEqual, "a1")
		})

		Convey("Then later roster refreshes never change focus", func() {
			for i := 0; i < 10; i++ {
				h.fetcher.active = active(fmt.Sprintf("x%d", i), "a2")
				h.loadRosters()
				So(h.c.Focused(), ShouldEqual, "a1")
			}
			So(h.fetcher.calls("a1"), ShouldEqual, 1)
		})
	})

	Convey("Given only completed sessions", t, func() {
		h := newHarness()
		h.fetcher.completed = completed("c1", "c2")
		h.loadRosters()

		Convey("Then the first completed session is focused without a channel", func() {
			So(h.c.Focused(), ShouldEqual, "c1")
			So(h.transport.last().Active, ShouldBeFalse)
			So(h.c.State().ChannelSessionID, ShouldBeEmpty)
		})
	})

	Convey("Given empty rosters at first load", t, func() {
		h := newHarness()
		h.loadRosters()

		Convey("Then nothing is selected and the flag stays unset", func() {
			So(h.c.Focused(), ShouldEqual, "")
			So(h.c.AutoSelected(), ShouldBeFalse)
		})

		Convey("And a later refresh finds candidates", func() {
			h.fetcher.completed = completed("c1")
			h.loadRosters()
			So(h.c.Focused(), ShouldEqual, "c1")
			So(h.c.AutoSelected(), ShouldBeTrue)

			h.fetcher.active = active("a1")
			h.loadRosters()
			So(h.c.Focused(), ShouldEqual, "c1")
		})
	})

	Convey("Given a manual selection after auto-select", t, func() {
		h := newHarness()
		h.fetcher.active = active("a1", "a2")
		h.loadRosters()
		So(h.c.Select(h.ctx, "a2"), ShouldBeNil)
		h.loadRosters()

		Convey("Then the manual choice is kept", func() {
			So(h.c.Focused(), ShouldEqual, "a2")
		})
	})
}

func TestStalenessGate(t *testing.T) {
	Convey("Scenario D: focus moves from A to B while A's fetch is pending", t, func() {
		h := newHarness()
		h.fetcher.active = active("A", "B")
		h.fetcher.snapshots["A"] = `{"candidate":{"name":"Alice"},"metrics":{"paste_count":9}}`
		h.fetcher.snapshots["B"] = `{"candidate":{"name":"Bob"}}`

		So(h.c.Select(h.ctx, "A"), ShouldBeNil)
		pendingA := h.sink.take()
		So(len(pendingA), ShouldEqual, 1)

		So(h.c.Select(h.ctx, "B"), ShouldBeNil)
		pendingB := h.sink.take()

		Convey("When A's response arrives after B's", func() {
			for _, u := range pendingB {
				h.c.Apply(h.ctx, u)
			}
			h.c.Apply(h.ctx, pendingA[0])

			Convey("Then the snapshot still belongs to B", func() {
				st := h.c.State()
				So(st.Snapshot.SessionID, ShouldEqual, "B")
				So(st.Snapshot.Candidate.Name, ShouldEqual, "Bob")
				So(st.Snapshot.Metrics.PasteCount, ShouldEqual, 0)
			})
		})

		Convey("When A's response arrives before B's", func() {
			h.c.Apply(h.ctx, pendingA[0])

			Convey("Then it is discarded and the skeleton for B remains", func() {
				st := h.c.State()
				So(st.Snapshot.SessionID, ShouldEqual, "B")
				So(st.Snapshot.Candidate.Name, ShouldEqual, "")
			})
		})

		Convey("When a push for A arrives after the switch", func() {
			h.c.Apply(h.ctx, pushUpdate("A", 1, model.PushMessage{
				Type: model.MessageEventLogged, EventType: model.EventPasteDetected, EventID: "e1",
			}))

			Convey("Then neither the log nor a fetch is touched", func() {
				So(h.c.State().EventLog, ShouldBeEmpty)
				So(h.fetcher.calls("A"), ShouldEqual, 1)
			})
		})
	})

	Convey("Given a quick A to B to A switch", t, func() {
		h := newHarness()
		h.fetcher.active = active("A", "B")
		h.loadRosters()
		So(h.c.Focused(), ShouldEqual, "A")
		So(h.c.Select(h.ctx, "B"), ShouldBeNil)
		So(h.c.Select(h.ctx, "A"), ShouldBeNil)
		h.sink.take()

		Convey("When a message from the first A channel arrives", func() {
			h.c.Apply(h.ctx, pushUpdate("A", 1, model.PushMessage{
				Type: model.MessageEventLogged, EventType: model.EventCopyDetected, EventID: "old",
			}))

			Convey("Then it is discarded by the epoch check", func() {
				So(h.c.State().EventLog, ShouldBeEmpty)
			})
		})

		Convey("When a message from the current channel arrives", func() {
			h.c.Apply(h.ctx, pushUpdate("A", 3, model.PushMessage{
				Type: model.MessageEventLogged, EventType: model.EventCopyDetected, EventID: "new",
			}))

			Convey("Then it is logged", func() {
				So(len(h.c.State().EventLog), ShouldEqual, 1)
			})
		})
	})

	Convey("Given two snapshot fetches for the focused session", t, func() {
		h := newHarness()
		So(h.c.Select(h.ctx, "A"), ShouldBeNil)
		h.sink.take() // select fetch failed: no snapshot configured

		h.fetcher.snapshots["A"] = `{"metrics":{"paste_count":1}}`
		So(h.c.FetchSnapshot(h.ctx, "A", model.OriginPoll), ShouldBeNil)
		older := h.sink.take()
		h.fetcher.snapshots["A"] = `{"metrics":{"paste_count":2}}`
		So(h.c.FetchSnapshot(h.ctx, "A", model.OriginPush), ShouldBeNil)
		newer := h.sink.take()

		Convey("When the newer response arrives first", func() {
			h.c.Apply(h.ctx, newer[0])
			h.c.Apply(h.ctx, older[0])

			Convey("Then the older one is discarded", func() {
				So(h.c.State().Snapshot.Metrics.PasteCount, ShouldEqual, 2)
			})
		})

		Convey("When they arrive in order", func() {
			h.c.Apply(h.ctx, older[0])
			h.c.Apply(h.ctx, newer[0])
			So(h.c.State().Snapshot.Metrics.PasteCount, ShouldEqual, 2)
		})
	})

	Convey("Given roster results that arrive out of order", t, func() {
		h := newHarness()
		h.fetcher.active = active("old")
		So(h.c.RefreshRosters(h.ctx), ShouldBeNil)
		first := h.sink.take()
		h.fetcher.active = active("new")
		So(h.c.RefreshRosters(h.ctx), ShouldBeNil)
		second := h.sink.take()

		h.c.Apply(h.ctx, second[0])
		h.c.Apply(h.ctx, first[0])

		Convey("Then the older roster is discarded", func() {
			st := h.c.State()
			So(len(st.Active), ShouldEqual, 1)
			So(st.Active[0].ID, ShouldEqual, "new")
		})
	})

	Convey("Given an invalid snapshot payload", t, func() {
		h := newHarness()
		h.fetcher.snapshots["A"] = `{"metrics":{"paste_count":3}}`
		So(h.c.Select(h.ctx, "A"), ShouldBeNil)
		h.drain()
		h.c.Apply(h.ctx, model.Update{Kind: model.UpdateSnapshot, SessionID: "A", Seq: 99, Payload: []byte(`[]`)})

		Convey("Then the previous snapshot is kept", func() {
			So(h.c.State().Snapshot.Metrics.PasteCount, ShouldEqual, 3)
		})
	})
}

func TestPushHandling(t *testing.T) {
	Convey("Given a focused active session", t, func() {
		h := newHarness()
		h.fetcher.active = active("s1")
		h.fetcher.snapshots["s1"] = `{}`
		h.loadRosters()
		So(h.c.Focused(), ShouldEqual, "s1")
		before := h.fetcher.calls("s1")

		Convey("Scenario B: 4 metrics_update messages within 2 seconds", func() {
			for i := 0; i < 4; i++ {
				h.c.Apply(h.ctx, pushUpdate("s1", 1, model.PushMessage{Type: model.MessageMetricsUpdate}))
				h.clock.Advance(500 * time.Millisecond)
			}

			Convey("Then exactly one full-snapshot fetch is performed", func() {
				So(h.fetcher.calls("s1")-before, ShouldEqual, 1)
			})
		})

		Convey("When notable events keep arriving", func() {
			for i := 0; i < 40; i++ {
				h.c.Apply(h.ctx, pushUpdate("s1", 1, model.PushMessage{
					Type:      model.MessageEventLogged,
					EventType: model.EventFocusLost,
					EventID:   fmt.Sprintf("e%d", i),
					Timestamp: h.clock.Now().Add(time.Duration(i) * time.Second),
				}))
			}

			Convey("Then the log holds the newest 30, newest first", func() {
				log := h.c.State().EventLog
				So(len(log), ShouldEqual, 30)
				So(log[0].ID, ShouldEqual, "e39")
				So(log[29].ID, ShouldEqual, "e10")
			})

			Convey("Then they count as one throttled refresh", func() {
				So(h.fetcher.calls("s1")-before, ShouldEqual, 1)
			})
		})

		Convey("When an event outside the allow-list is logged remotely", func() {
			h.c.Apply(h.ctx, pushUpdate("s1", 1, model.PushMessage{
				Type: model.MessageEventLogged, EventType: "keystroke", EventID: "k1",
			}))

			Convey("Then it is not logged but triggers a refresh", func() {
				So(h.c.State().EventLog, ShouldBeEmpty)
				So(h.fetcher.calls("s1")-before, ShouldEqual, 1)
			})
		})

		Convey("When the assessment completes", func() {
			activeBefore, _ := h.fetcher.rosterCalls()
			h.fetcher.active = nil
			h.fetcher.completed = completed("s1")
			h.c.Apply(h.ctx, pushUpdate("s1", 1, model.PushMessage{Type: model.MessageAssessmentCompleted}))
			h.drain()

			Convey("Then rosters are refreshed immediately and the channel closed", func() {
				activeAfter, _ := h.fetcher.rosterCalls()
				So(activeAfter-activeBefore, ShouldEqual, 1)
				So(h.transport.last(), ShouldResemble, pushTarget("s1", 1, false))
				So(h.c.Focused(), ShouldEqual, "s1")
			})
		})

		Convey("When status updates arrive back to back", func() {
			activeBefore, _ := h.fetcher.rosterCalls()
			for i := 0; i < 3; i++ {
				h.c.Apply(h.ctx, pushUpdate("s1", 1, model.PushMessage{Type: model.MessageStatusUpdate}))
			}

			Convey("Then each refreshes the rosters, unthrottled", func() {
				activeAfter, _ := h.fetcher.rosterCalls()
				So(activeAfter-activeBefore, ShouldEqual, 3)
			})
		})

		Convey("When an unknown message type arrives", func() {
			h.c.Apply(h.ctx, pushUpdate("s1", 1, model.PushMessage{Type: "heartbeat"}))
			So(h.fetcher.calls("s1"), ShouldEqual, before)
		})
	})
}

func pushTarget(id string, epoch uint64, isActive bool) push.Target {
	return push.Target{SessionID: id, Epoch: epoch, Active: isActive}
}
