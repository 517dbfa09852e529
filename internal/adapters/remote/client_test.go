package remote_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/okian/livewatch/internal/adapters/remote"
	"github.com/okian/livewatch/internal/domain/model"
	"github.com/okian/livewatch/pkg/logger"
	. "github.com/smartystreets/goconvey/convey"
)

func newServer(routes map[string]http.HandlerFunc) *httptest.Server {
	mux := http.NewServeMux()
	for pattern, h := range routes {
		mux.HandleFunc(pattern, h)
	}
	return httptest.NewServer(mux)
}

func write(body string) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(body))
	}
}

func TestRoster(t *testing.T) {
	Convey("Given a remote service", t, func() {
		ctx := context.Background()

		Convey("When the active roster is a bare array", func() {
			srv := newServer(map[string]http.HandlerFunc{
				"GET /api/sessions/active": write(`[
					{"id":"a1","candidate":{"name":"Ada","position":"SRE"},"progress":{"current":2,"total":5},"time_elapsed":125},
					{"id":"","candidate":{"name":"nobody"}},
					{"id":42,"candidate":{"name":"Numeric"}}
				]`),
			})
			defer srv.Close()
			c := remote.New(srv.URL, remote.WithLogger(logger.Nop()))

			list, err := c.ActiveSessions(ctx)

			Convey("Then entries are parsed and rows without an id skipped", func() {
				So(err, ShouldBeNil)
				So(len(list), ShouldEqual, 2)
				So(list[0].ID, ShouldEqual, "a1")
				So(list[0].Status, ShouldEqual, model.StatusActive)
				So(list[0].Candidate.Name, ShouldEqual, "Ada")
				So(list[0].Progress, ShouldResemble, model.Progress{Current: 2, Total: 5})
				So(list[0].TimeElapsed, ShouldEqual, 125)
				So(list[1].ID, ShouldEqual, "42")
			})
		})

		Convey("When the completed roster is wrapped and mixes score shapes", func() {
			srv := newServer(map[string]http.HandlerFunc{
				"GET /api/sessions/completed": write(`{"sessions":[
					{"id":"c1","candidate":{"name":"Bo"},"overall_fit":{"score":81.5,"grade":"B"}},
					{"id":"c2","candidate":{"name":"Cy"},"overall_score":64}
				]}`),
			})
			defer srv.Close()
			c := remote.New(srv.URL, remote.WithLogger(logger.Nop()))

			list, err := c.CompletedSessions(ctx)

			Convey("Then both shapes are understood", func() {
				So(err, ShouldBeNil)
				So(len(list), ShouldEqual, 2)
				So(list[0].Status, ShouldEqual, model.StatusCompleted)
				So(list[0].OverallScore, ShouldEqual, 81.5)
				So(list[0].Grade, ShouldEqual, "B")
				So(list[1].OverallScore, ShouldEqual, 64)
			})
		})

		Convey("When the roster is an unexpected object", func() {
			srv := newServer(map[string]http.HandlerFunc{
				"GET /api/sessions/active": write(`{"items":[]}`),
			})
			defer srv.Close()
			c := remote.New(srv.URL, remote.WithLogger(logger.Nop()))

			_, err := c.ActiveSessions(ctx)

			Convey("Then ErrInvalidPayload is returned", func() {
				So(errors.Is(err, remote.ErrInvalidPayload), ShouldBeTrue)
			})
		})
	})
}

func TestSnapshotAndDelete(t *testing.T) {
	Convey("Given a remote service", t, func() {
		ctx := context.Background()
		var deleted string
		srv := newServer(map[string]http.HandlerFunc{
			"GET /api/sessions/{id}/snapshot": func(w http.ResponseWriter, r *http.Request) {
				switch r.PathValue("id") {
				case "s 1":
					write(`{"metrics":{"paste_count":2}}`)(w, r)
				case "list":
					write(`[1,2]`)(w, r)
				case "slow":
					time.Sleep(200 * time.Millisecond)
					write(`{}`)(w, r)
				default:
					http.Error(w, "no such session", http.StatusNotFound)
				}
			},
			"DELETE /api/sessions/{id}": func(w http.ResponseWriter, r *http.Request) {
				if r.PathValue("id") == "locked" {
					http.Error(w, "locked", http.StatusConflict)
					return
				}
				deleted = r.PathValue("id")
				w.WriteHeader(http.StatusNoContent)
			},
		})
		defer srv.Close()
		c := remote.New(srv.URL+"/", remote.WithLogger(logger.Nop()), remote.WithTimeout(50*time.Millisecond))

		Convey("When fetching a snapshot with an escaped id", func() {
			body, err := c.Snapshot(ctx, "s 1")

			Convey("Then the raw object is returned", func() {
				So(err, ShouldBeNil)
				So(string(body), ShouldContainSubstring, "paste_count")
			})
		})

		Convey("When the snapshot is not an object", func() {
			_, err := c.Snapshot(ctx, "list")
			So(errors.Is(err, remote.ErrInvalidPayload), ShouldBeTrue)
		})

		Convey("When the session is unknown", func() {
			_, err := c.Snapshot(ctx, "missing")

			Convey("Then an HTTPError carries the status", func() {
				var httpErr *remote.HTTPError
				So(errors.As(err, &httpErr), ShouldBeTrue)
				So(httpErr.StatusCode, ShouldEqual, http.StatusNotFound)
				So(httpErr.Message, ShouldEqual, "no such session")
			})
		})

		Convey("When the service is slower than the timeout", func() {
			_, err := c.Snapshot(ctx, "slow")

			Convey("Then the fetch fails with a deadline error", func() {
				So(errors.Is(err, context.DeadlineExceeded), ShouldBeTrue)
			})
		})

		Convey("When the id is empty", func() {
			_, err := c.Snapshot(ctx, "")
			So(errors.Is(err, remote.ErrEmptySessionID), ShouldBeTrue)
			So(errors.Is(c.DeleteSession(ctx, ""), remote.ErrEmptySessionID), ShouldBeTrue)
		})

		Convey("When deleting a session", func() {
			So(c.DeleteSession(ctx, "s-9"), ShouldBeNil)
			So(deleted, ShouldEqual, "s-9")
		})

		Convey("When the delete is rejected", func() {
			err := c.DeleteSession(ctx, "locked")
			var httpErr *remote.HTTPError
			So(errors.As(err, &httpErr), ShouldBeTrue)
			So(httpErr.StatusCode, ShouldEqual, http.StatusConflict)
		})
	})
}
