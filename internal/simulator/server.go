package simulator

import (
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/websocket"

	"github.com/okian/livewatch/internal/domain/model"
	"github.com/okian/livewatch/pkg/logger"
)

const (
	writeWait      = 5 * time.Second
	pingPeriod     = 20 * time.Second
	subscriberBuf  = 64
	completedLimit = 100
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(*http.Request) bool { return true },
}

// Handler returns the HTTP surface of the fake remote service.
func (s *Simulator) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Route("/api/sessions", func(r chi.Router) {
		r.Get("/active", s.listActive)
		r.Get("/completed", s.listCompleted)
		r.Get("/{id}/snapshot", s.getSnapshot)
		r.Delete("/{id}", s.deleteSession)
	})
	r.Get("/ws/sessions/{id}", s.subscribe)
	return r
}

type activeSession struct {
	ID          string          `json:"id"`
	Candidate   model.Candidate `json:"candidate"`
	Progress    model.Progress  `json:"progress"`
	TimeElapsed float64         `json:"time_elapsed"`
}

type completedSession struct {
	ID         string           `json:"id"`
	Candidate  model.Candidate  `json:"candidate"`
	OverallFit model.OverallFit `json:"overall_fit"`
}

// listActive answers with a bare array.
func (s *Simulator) listActive(w http.ResponseWriter, _ *http.Request) {
	entries := s.Sessions(model.StatusActive)
	out := make([]activeSession, 0, len(entries))
	for _, e := range entries {
		out = append(out, activeSession{ID: e.ID, Candidate: e.Candidate, Progress: e.Progress, TimeElapsed: e.TimeElapsed})
	}
	writeJSON(w, http.StatusOK, out)
}

// listCompleted answers with the list wrapped under "sessions".
func (s *Simulator) listCompleted(w http.ResponseWriter, _ *http.Request) {
	entries := s.Sessions(model.StatusCompleted)
	if len(entries) > completedLimit {
		entries = entries[len(entries)-completedLimit:]
	}
	out := make([]completedSession, 0, len(entries))
	for _, e := range entries {
		snap, err := s.Snapshot(e.ID)
		if err != nil {
			continue
		}
		out = append(out, completedSession{ID: e.ID, Candidate: e.Candidate, OverallFit: snap.OverallFit})
	}
	writeJSON(w, http.StatusOK, map[string]any{"sessions": out})
}

func (s *Simulator) getSnapshot(w http.ResponseWriter, r *http.Request) {
	snap, err := s.Snapshot(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func (s *Simulator) deleteSession(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := s.Delete(id); err != nil {
		writeError(w, err)
		return
	}
	s.log.Info(r.Context(), "session deleted", logger.String("session_id", id))
	w.WriteHeader(http.StatusNoContent)
}

type subscriber struct {
	send   chan []byte
	done   chan struct{}
	closer sync.Once
}

func newSubscriber() *subscriber {
	return &subscriber{send: make(chan []byte, subscriberBuf), done: make(chan struct{})}
}

func (sub *subscriber) close() {
	sub.closer.Do(func() { close(sub.done) })
}

// Publish sends msg to every subscriber of sessionID. A subscriber that is
// not keeping up misses the message.
func (s *Simulator) Publish(sessionID string, msg model.PushMessage) {
	data, err := json.Marshal(msg)
	if err != nil {
		return
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	for sub := range s.subs[sessionID] {
		select {
		case sub.send <- data:
		default:
		}
	}
}

// Subscribers returns the number of open push channels for sessionID.
func (s *Simulator) Subscribers(sessionID string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.subs[sessionID])
}

func (s *Simulator) addSubscriber(id string, sub *subscriber) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.sessions[id]; !ok {
		return false
	}
	if s.subs[id] == nil {
		s.subs[id] = make(map[*subscriber]struct{})
	}
	s.subs[id][sub] = struct{}{}
	return true
}

func (s *Simulator) removeSubscriber(id string, sub *subscriber) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.subs[id], sub)
}

func (s *Simulator) subscribe(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if !s.exists(id) {
		writeError(w, ErrSessionNotFound)
		return
	}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn(r.Context(), "websocket upgrade failed", logger.Error(err))
		return
	}
	defer func() {
		_ = conn.Close()
	}()

	sub := newSubscriber()
	if !s.addSubscriber(id, sub) {
		return
	}
	defer s.removeSubscriber(id, sub)

	// The monitor never writes; reading only detects the peer going away.
	go func() {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				sub.close()
				return
			}
		}
	}()

	ping := time.NewTicker(pingPeriod)
	defer ping.Stop()

	for {
		select {
		case data := <-sub.send:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
		case <-ping.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-sub.done:
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(writeWait))
			return
		}
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	if errors.Is(err, ErrSessionNotFound) {
		status = http.StatusNotFound
	}
	writeJSON(w, status, map[string]string{"error": err.Error()})
}
