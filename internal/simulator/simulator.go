// Package simulator is a fake remote scoring/session service. It serves
// rosters, snapshots and per-session push channels, and advances active
// assessments on a tick.
package simulator

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/okian/livewatch/internal/domain/model"
	"github.com/okian/livewatch/internal/domain/scoring"
	"github.com/okian/livewatch/pkg/logger"
)

const (
	defaultTasks        = 4
	defaultTickInterval = 2 * time.Second
	defaultActive       = 3
	defaultCompleted    = 2

	// probability that a tick logs a notable event for a session
	notableChance = 0.6
)

var (
	taskTitles = []string{
		"Two Sum", "LRU Cache", "Rate Limiter", "Merge Intervals",
		"URL Shortener Design", "Debug a Flaky Test", "Parse a Log File", "Top K Frequent",
	}
	skillNames = []string{"problem_solving", "code_quality", "communication", "debugging"}
	candidates = []model.Candidate{
		{Name: "Ada Lovelace", Position: "Backend Engineer"},
		{Name: "Grace Hopper", Position: "Platform Engineer"},
		{Name: "Alan Turing", Position: "Data Engineer"},
		{Name: "Katherine Johnson", Position: "SRE"},
		{Name: "Edsger Dijkstra", Position: "Backend Engineer"},
		{Name: "Barbara Liskov", Position: "Staff Engineer"},
		{Name: "Ken Thompson", Position: "Systems Engineer"},
		{Name: "Frances Allen", Position: "Compiler Engineer"},
	}
	styles      = []string{"methodical", "exploratory", "iterative"}
	confidences = []string{"low", "medium", "high"}
)

type session struct {
	id        string
	status    model.Status
	startedAt time.Time
	snapshot  model.Snapshot
}

// Simulator holds all sessions in memory.
type Simulator struct {
	seedActive    int
	seedCompleted int
	tasks         int
	tickEvery     time.Duration
	seed          int64
	scorer        scoring.Scorer
	now           func() time.Time
	log           logger.Logger

	mu       sync.RWMutex
	rng      *rand.Rand
	sessions map[string]*session
	order    []string
	subs     map[string]map[*subscriber]struct{}
	created  int
}

// New creates a simulator seeded with sessions.
func New(opts ...Option) *Simulator {
	s := &Simulator{
		seedActive:    defaultActive,
		seedCompleted: defaultCompleted,
		tasks:         defaultTasks,
		tickEvery:     defaultTickInterval,
		seed:          time.Now().UnixNano(),
		now:           time.Now,
		sessions:      make(map[string]*session),
		subs:          make(map[string]map[*subscriber]struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.log == nil {
		s.log = logger.Get().Named("simulator")
	}
	if s.scorer == nil {
		s.scorer = scoring.NewInMemoryScorer(scoring.WithSkillWeightsFromConfig(map[string]float64{
			"problem_solving": 2,
			"code_quality":    1.5,
			"communication":   1,
			"debugging":       1,
		}, 1))
	}
	s.rng = rand.New(rand.NewSource(s.seed)) //nolint:gosec // simulated data

	for range s.seedCompleted {
		id := s.AddSession(model.Candidate{})
		s.finishNow(context.Background(), id)
	}
	for range s.seedActive {
		s.AddSession(model.Candidate{})
	}
	return s
}

// AddSession starts a new active assessment and returns its id. A zero
// candidate gets a generated identity.
func (s *Simulator) AddSession(c model.Candidate) string {
	s.mu.Lock()
	defer s.mu.Unlock()

	if c.Name == "" {
		c = candidates[s.created%len(candidates)]
	}
	if c.Email == "" {
		c.Email = strings.ToLower(strings.ReplaceAll(c.Name, " ", ".")) + "@example.com"
	}
	s.created++

	id := uuid.NewString()
	perTask := make(model.TaskMetricsList, s.tasks)
	for i := range perTask {
		perTask[i] = model.TaskMetrics{TaskIndex: i, Title: taskTitles[i%len(taskTitles)]}
	}
	s.sessions[id] = &session{
		id:        id,
		status:    model.StatusActive,
		startedAt: s.now(),
		snapshot: model.Snapshot{
			SessionID:      id,
			Candidate:      c,
			Progress:       model.Progress{Current: 0, Total: s.tasks},
			SkillProfile:   map[string]float64{},
			PerTaskMetrics: perTask,
			CurrentQuestion: &model.Question{
				ID: fmt.Sprintf("q-%d", 0), Index: 0, Title: perTask[0].Title, Kind: "coding",
			},
		},
	}
	s.order = append(s.order, id)
	return id
}

// Run advances active sessions every tick until ctx is done.
func (s *Simulator) Run(ctx context.Context) {
	ticker := time.NewTicker(s.tickEvery)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Tick(ctx)
		}
	}
}

type outgoing struct {
	sessionID string
	msg       model.PushMessage
}

// Tick completes the current task of every active session and notifies the
// session's subscribers.
func (s *Simulator) Tick(ctx context.Context) {
	var out []outgoing
	var finished []string

	s.mu.Lock()
	for _, id := range s.order {
		ss := s.sessions[id]
		if ss.status != model.StatusActive {
			continue
		}
		msgs, done := s.advanceLocked(ss)
		for _, m := range msgs {
			out = append(out, outgoing{sessionID: id, msg: m})
		}
		if done {
			finished = append(finished, id)
		}
	}
	s.mu.Unlock()

	for _, o := range out {
		s.Publish(o.sessionID, o.msg)
	}
	for _, id := range finished {
		s.finishNow(ctx, id)
	}
}

// advanceLocked completes one task. It reports whether the assessment has no
// tasks left.
func (s *Simulator) advanceLocked(ss *session) ([]model.PushMessage, bool) {
	snap := &ss.snapshot
	idx := snap.Progress.Current
	if idx >= snap.Progress.Total {
		return nil, true
	}
	now := s.now()

	task := &snap.PerTaskMetrics[idx]
	task.Completed = true
	task.Score = 50 + s.rng.Float64()*50
	task.TimeSpentSec = 60 + s.rng.Float64()*240
	snap.Progress.Current = idx + 1

	m := &snap.Metrics
	m.TypingSpeedWPM = 30 + s.rng.Float64()*60
	m.AvgResponseTimeSec = 5 + s.rng.Float64()*20
	m.RevisionRate = s.rng.Float64()
	m.IdleSeconds += s.rng.Float64() * 30
	m.ConfidenceLevel = confidences[s.rng.Intn(len(confidences))]
	m.WorkingStyle = styles[s.rng.Intn(len(styles))]

	for _, skill := range skillNames {
		prev := snap.SkillProfile[skill]
		sample := 40 + s.rng.Float64()*60
		if prev == 0 {
			snap.SkillProfile[skill] = sample
		} else {
			snap.SkillProfile[skill] = (prev + sample) / 2
		}
	}

	if snap.Progress.Current >= 2 {
		snap.BehavioralSummary = model.BehavioralSummary{
			Traits:     []string{m.WorkingStyle, m.ConfidenceLevel + " confidence"},
			Summary:    fmt.Sprintf("Completed %d of %d tasks with a %s approach.", snap.Progress.Current, snap.Progress.Total, m.WorkingStyle),
			Style:      m.WorkingStyle,
			Confidence: 0.5 + s.rng.Float64()/2,
		}
	}

	var msgs []model.PushMessage
	if s.rng.Float64() < notableChance {
		types := model.NotableEventTypes()
		et := types[s.rng.Intn(len(types))]
		switch et {
		case model.EventPasteDetected:
			m.PasteCount++
		case model.EventCopyDetected:
			m.CopyCount++
		case model.EventFocusLost:
			m.FocusLossCount++
		}
		payload, _ := json.Marshal(map[string]int{"task_index": idx})
		msgs = append(msgs, model.PushMessage{
			Type:      model.MessageEventLogged,
			EventType: et,
			EventID:   uuid.NewString(),
			Timestamp: now,
			Payload:   payload,
		})
	}
	msgs = append(msgs, model.PushMessage{Type: model.MessageMetricsUpdate, Timestamp: now})

	if snap.Progress.Current < snap.Progress.Total {
		next := snap.Progress.Current
		snap.CurrentQuestion = &model.Question{
			ID: fmt.Sprintf("q-%d", next), Index: next, Title: snap.PerTaskMetrics[next].Title, Kind: "coding",
		}
		return msgs, false
	}
	snap.CurrentQuestion = nil
	return msgs, true
}

// finishNow completes every remaining task, scores the session and marks it
// completed.
func (s *Simulator) finishNow(ctx context.Context, id string) {
	s.mu.Lock()
	ss, ok := s.sessions[id]
	if !ok || ss.status != model.StatusActive {
		s.mu.Unlock()
		return
	}
	for ss.snapshot.Progress.Current < ss.snapshot.Progress.Total {
		s.advanceLocked(ss)
	}
	in := scoring.Input{SessionID: id, Skills: ss.snapshot.SkillProfile}
	s.mu.Unlock()

	// scoring may simulate latency; do not hold the lock
	result, err := s.scorer.Score(ctx, in)
	if err != nil {
		s.log.Warn(ctx, "scoring failed", logger.String("session_id", id), logger.Error(err))
		return
	}

	s.mu.Lock()
	ss, ok = s.sessions[id]
	if !ok {
		s.mu.Unlock()
		return
	}
	ss.status = model.StatusCompleted
	ss.snapshot.OverallFit = model.OverallFit{Score: result.Score, Grade: result.Grade, Breakdown: result.Breakdown}
	ss.snapshot.ResumeComparison = model.ResumeComparison{
		MatchScore: result.Score,
		Verdict:    verdict(result.Grade),
	}
	s.mu.Unlock()

	now := s.now()
	s.Publish(id, model.PushMessage{Type: model.MessageAssessmentCompleted, Timestamp: now})
	status, _ := json.Marshal(map[string]string{"status": string(model.StatusCompleted)})
	s.Publish(id, model.PushMessage{Type: model.MessageStatusUpdate, Timestamp: now, Payload: status})
	s.log.Info(ctx, "assessment completed",
		logger.String("session_id", id),
		logger.Float64("score", result.Score),
		logger.String("grade", result.Grade))
}

// Complete finishes an active session immediately.
func (s *Simulator) Complete(ctx context.Context, id string) error {
	if !s.exists(id) {
		return fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	s.finishNow(ctx, id)
	return nil
}

func verdict(grade string) string {
	switch grade {
	case "A", "B":
		return "consistent with resume"
	case "C":
		return "partially consistent"
	default:
		return "below resume claims"
	}
}

// Delete removes a session and closes its push channels.
func (s *Simulator) Delete(id string) error {
	s.mu.Lock()
	if _, ok := s.sessions[id]; !ok {
		s.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	delete(s.sessions, id)
	for i, v := range s.order {
		if v == id {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
	subs := s.subs[id]
	delete(s.subs, id)
	s.mu.Unlock()

	for sub := range subs {
		sub.close()
	}
	return nil
}

func (s *Simulator) exists(id string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.sessions[id]
	return ok
}

// Snapshot returns a copy of the session's snapshot.
func (s *Simulator) Snapshot(id string) (model.Snapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ss, ok := s.sessions[id]
	if !ok {
		return model.Snapshot{}, fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	return ss.snapshot.Clone(), nil
}

// Sessions returns the roster entries with the given status in creation order.
func (s *Simulator) Sessions(status model.Status) []model.RosterEntry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	now := s.now()
	out := make([]model.RosterEntry, 0, len(s.order))
	for _, id := range s.order {
		ss := s.sessions[id]
		if ss.status != status {
			continue
		}
		out = append(out, model.RosterEntry{
			ID:           id,
			Status:       ss.status,
			Candidate:    ss.snapshot.Candidate,
			Progress:     ss.snapshot.Progress,
			TimeElapsed:  now.Sub(ss.startedAt).Seconds(),
			OverallScore: ss.snapshot.OverallFit.Score,
			Grade:        ss.snapshot.OverallFit.Grade,
		})
	}
	return out
}
