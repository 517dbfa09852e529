package worker_test

import (
	"context"
	"sync"
	"testing"
	"time"

	worker "github.com/okian/livewatch/internal/adapters/mq/worker"
	model "github.com/okian/livewatch/internal/domain/model"
	logging "github.com/okian/livewatch/pkg/logger"
	"github.com/smartystreets/goconvey/convey"
)

type mockQueue struct {
	ch chan model.Update
}

func newMockQueue() *mockQueue {
	return &mockQueue{ch: make(chan model.Update, 16)}
}

func (mq *mockQueue) Dequeue(context.Context) <-chan model.Update { return mq.ch }

type recordingApplier struct {
	mu      sync.Mutex
	seen    []string
	active  int
	maxSeen int
	panicOn string
	applied chan struct{}
}

func (a *recordingApplier) Apply(_ context.Context, u model.Update) {
	a.mu.Lock()
	a.active++
	if a.active > a.maxSeen {
		a.maxSeen = a.active
	}
	a.mu.Unlock()

	defer func() {
		a.mu.Lock()
		a.active--
		a.seen = append(a.seen, u.SessionID)
		a.mu.Unlock()
		a.applied <- struct{}{}
	}()

	if u.SessionID == a.panicOn {
		panic("boom")
	}
	time.Sleep(time.Millisecond)
}

func TestLoop(t *testing.T) {
	convey.Convey("Given an update loop over a queue", t, func() {
		q := newMockQueue()
		a := &recordingApplier{applied: make(chan struct{}, 16), panicOn: "bad"}
		l := worker.NewLoop(q, a, worker.WithName("test-loop"), worker.WithLogger(logging.Nop()))
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		go l.Run(ctx)

		convey.Convey("When several updates are queued", func() {
			for _, id := range []string{"a", "b", "c"} {
				q.ch <- model.Update{SessionID: id}
			}
			for i := 0; i < 3; i++ {
				<-a.applied
			}

			convey.Convey("Then they are applied one at a time in arrival order", func() {
				a.mu.Lock()
				defer a.mu.Unlock()
				convey.So(a.seen, convey.ShouldResemble, []string{"a", "b", "c"})
				convey.So(a.maxSeen, convey.ShouldEqual, 1)
			})
		})

		convey.Convey("When an apply panics", func() {
			q.ch <- model.Update{SessionID: "bad"}
			q.ch <- model.Update{SessionID: "good"}
			<-a.applied
			<-a.applied

			convey.Convey("Then the loop keeps running", func() {
				a.mu.Lock()
				defer a.mu.Unlock()
				convey.So(a.seen, convey.ShouldResemble, []string{"bad", "good"})
			})
		})

		convey.Convey("When the queue channel is closed", func() {
			close(q.ch)

			convey.Convey("Then Run returns", func() {
				wctx, wcancel := context.WithTimeout(context.Background(), time.Second)
				defer wcancel()
				convey.So(l.Wait(wctx), convey.ShouldBeNil)
			})
		})

		convey.Convey("When shut down", func() {
			sctx, scancel := context.WithTimeout(context.Background(), time.Second)
			defer scancel()

			convey.Convey("Then Shutdown returns and is idempotent", func() {
				convey.So(l.Shutdown(sctx), convey.ShouldBeNil)
				convey.So(l.Shutdown(sctx), convey.ShouldBeNil)
			})
		})
	})
}
