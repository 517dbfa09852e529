package push_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/okian/livewatch/internal/adapters/push"
	"github.com/okian/livewatch/internal/domain/model"
	"github.com/okian/livewatch/pkg/logger"
	. "github.com/smartystreets/goconvey/convey"
)

type fakeConn struct {
	frames chan []byte
	closed chan struct{}
	once   sync.Once
}

func newFakeConn() *fakeConn {
	return &fakeConn{frames: make(chan []byte, 16), closed: make(chan struct{})}
}

func (c *fakeConn) ReadMessage() (int, []byte, error) {
	select {
	case f, ok := <-c.frames:
		if !ok {
			return 0, nil, errors.New("connection reset")
		}
		return websocket.TextMessage, f, nil
	case <-c.closed:
		return 0, nil, errors.New("use of closed connection")
	}
}

func (c *fakeConn) Close() error {
	c.once.Do(func() { close(c.closed) })
	return nil
}

type fakeDialer struct {
	mu    sync.Mutex
	conns map[string]*fakeConn
	dials []string
	fail  bool
}

func (d *fakeDialer) Dial(_ context.Context, id string) (push.Conn, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.dials = append(d.dials, id)
	if d.fail {
		return nil, errors.New("refused")
	}
	c := newFakeConn()
	d.conns[id] = c
	return c, nil
}

func (d *fakeDialer) conn(id string) *fakeConn {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.conns[id]
}

func (d *fakeDialer) dialCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.dials)
}

type sink struct {
	ch chan model.Update
}

func (s *sink) Enqueue(_ context.Context, u model.Update) error {
	s.ch <- u
	return nil
}

func waitState(m *push.Manager, want model.ConnectionState) bool {
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if m.State() == want {
			return true
		}
		time.Sleep(5 * time.Millisecond)
	}
	return false
}

func TestManager(t *testing.T) {
	Convey("Given a push manager", t, func() {
		ctx := context.Background()
		d := &fakeDialer{conns: map[string]*fakeConn{}}
		s := &sink{ch: make(chan model.Update, 16)}
		m := push.NewManager(d, s, push.WithLogger(logger.Nop()))

		Convey("Then it starts idle and never reconnects automatically", func() {
			So(m.State(), ShouldEqual, model.ConnIdle)
			So(push.AutoReconnect, ShouldBeFalse)
		})

		Convey("When reconciled to an active session", func() {
			So(m.Reconcile(ctx, push.Target{SessionID: "a", Epoch: 1, Active: true}), ShouldBeNil)

			Convey("Then the channel is open and messages are tagged", func() {
				So(m.State(), ShouldEqual, model.ConnOpen)
				So(m.SessionID(), ShouldEqual, "a")
				d.conn("a").frames <- []byte(`{"type":"metrics_update"}`)

				u := <-s.ch
				So(u.Kind, ShouldEqual, model.UpdatePush)
				So(u.SessionID, ShouldEqual, "a")
				So(u.Epoch, ShouldEqual, 1)
				So(u.Message.Type, ShouldEqual, model.MessageMetricsUpdate)
			})

			Convey("And reconciled again to the same target", func() {
				So(m.Reconcile(ctx, push.Target{SessionID: "a", Epoch: 1, Active: true}), ShouldBeNil)

				Convey("Then no second dial happens", func() {
					So(d.dialCount(), ShouldEqual, 1)
				})
			})

			Convey("And focus moves to another active session", func() {
				old := d.conn("a")
				So(m.Reconcile(ctx, push.Target{SessionID: "b", Epoch: 2, Active: true}), ShouldBeNil)

				Convey("Then the old channel is closed before the new one opens", func() {
					select {
					case <-old.closed:
					default:
						So("old channel still open", ShouldBeEmpty)
					}
					So(m.SessionID(), ShouldEqual, "b")
					So(m.State(), ShouldEqual, model.ConnOpen)
				})

				Convey("Then frames on the old channel are never delivered", func() {
					select {
					case old.frames <- []byte(`{"type":"metrics_update"}`):
					default:
					}
					d.conn("b").frames <- []byte(`{"type":"status_update"}`)
					u := <-s.ch
					So(u.SessionID, ShouldEqual, "b")
				})
			})

			Convey("And focus moves to a completed session", func() {
				So(m.Reconcile(ctx, push.Target{SessionID: "c", Epoch: 2, Active: false}), ShouldBeNil)

				Convey("Then nothing is dialed and the state is idle", func() {
					So(d.dialCount(), ShouldEqual, 1)
					So(m.State(), ShouldEqual, model.ConnIdle)
					So(m.SessionID(), ShouldEqual, "")
				})
			})

			Convey("And the focused session stops being active", func() {
				So(m.Reconcile(ctx, push.Target{SessionID: "a", Epoch: 1, Active: false}), ShouldBeNil)

				Convey("Then the channel is closed", func() {
					So(m.State(), ShouldEqual, model.ConnClosed)
					So(m.SessionID(), ShouldEqual, "")
				})
			})

			Convey("And the remote end drops the connection", func() {
				close(d.conn("a").frames)

				Convey("Then the state becomes closed and it is not redialed", func() {
					So(waitState(m, model.ConnClosed), ShouldBeTrue)
					So(m.Reconcile(ctx, push.Target{SessionID: "a", Epoch: 1, Active: true}), ShouldBeNil)
					So(d.dialCount(), ShouldEqual, 1)
					So(m.State(), ShouldEqual, model.ConnClosed)
				})
			})

			Convey("And a stale reconcile arrives", func() {
				So(m.Reconcile(ctx, push.Target{SessionID: "b", Epoch: 3, Active: true}), ShouldBeNil)
				So(m.Reconcile(ctx, push.Target{SessionID: "a", Epoch: 2, Active: true}), ShouldBeNil)

				Convey("Then it is skipped", func() {
					So(m.SessionID(), ShouldEqual, "b")
					So(d.dialCount(), ShouldEqual, 2)
				})
			})

			Convey("And the manager is closed", func() {
				m.Close(ctx)
				So(m.State(), ShouldEqual, model.ConnClosed)
				So(m.SessionID(), ShouldEqual, "")
			})
		})

		Convey("When the dial fails", func() {
			d.fail = true
			err := m.Reconcile(ctx, push.Target{SessionID: "a", Epoch: 1, Active: true})

			Convey("Then the state is closed and ErrDialFailed returned", func() {
				So(errors.Is(err, push.ErrDialFailed), ShouldBeTrue)
				So(m.State(), ShouldEqual, model.ConnClosed)
			})
		})

		Convey("When a garbage frame arrives", func() {
			So(m.Reconcile(ctx, push.Target{SessionID: "a", Epoch: 1, Active: true}), ShouldBeNil)
			d.conn("a").frames <- []byte(`not json`)
			d.conn("a").frames <- []byte(`{"type":"metrics_update"}`)

			Convey("Then it is skipped and the channel stays open", func() {
				u := <-s.ch
				So(u.Message.Type, ShouldEqual, model.MessageMetricsUpdate)
				So(m.State(), ShouldEqual, model.ConnOpen)
			})
		})
	})
}

func TestWebsocketDialer(t *testing.T) {
	Convey("Given a websocket push endpoint", t, func() {
		upgrader := websocket.Upgrader{}
		paths := make(chan string, 1)
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			paths <- r.URL.EscapedPath()
			c, err := upgrader.Upgrade(w, r, nil)
			if err != nil {
				return
			}
			defer c.Close()
			_ = c.WriteMessage(websocket.TextMessage, []byte(`{"type":"event_logged","event_type":"paste_detected","event_id":"e1"}`))
			_, _, _ = c.ReadMessage()
		}))
		defer srv.Close()

		d := push.NewWebsocketDialer("ws" + strings.TrimPrefix(srv.URL, "http") + "/")

		Convey("When dialing a session", func() {
			conn, err := d.Dial(context.Background(), "s 1")
			So(err, ShouldBeNil)
			defer conn.Close()

			Convey("Then the session path is used and frames are readable", func() {
				So(<-paths, ShouldEqual, "/ws/sessions/s%201")
				_, data, err := conn.ReadMessage()
				So(err, ShouldBeNil)
				msg, err := push.ParseMessage(data, time.Now())
				So(err, ShouldBeNil)
				So(msg.EventID, ShouldEqual, "e1")
			})
		})
	})
}
