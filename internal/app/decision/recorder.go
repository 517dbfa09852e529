// Package decision records recruiter decisions durably.
package decision

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"

	"github.com/okian/livewatch/internal/adapters/repository"
	"github.com/okian/livewatch/internal/domain/model"
	"github.com/okian/livewatch/pkg/logger"
	"github.com/okian/livewatch/pkg/metrics"
)

const defaultMaxTries = 3

// Recorder keeps an in-memory copy of every decision and writes through to a
// durable store. A decision is visible in memory only after it was persisted.
// Concurrent writers sharing one store are not arbitrated: last write wins.
type Recorder struct {
	store    repository.Store
	now      func() time.Time
	maxTries uint
	backOff  func() backoff.BackOff
	log      logger.Logger

	mu      sync.RWMutex
	records map[string]model.DecisionRecord
}

// Option configures a Recorder.
type Option func(*Recorder)

func WithClock(now func() time.Time) Option {
	return func(r *Recorder) {
		if now != nil {
			r.now = now
		}
	}
}

// WithMaxTries bounds persistence attempts per decision.
func WithMaxTries(n int) Option {
	return func(r *Recorder) {
		if n > 0 {
			r.maxTries = uint(n)
		}
	}
}

// WithBackOff sets the retry policy factory, called once per write.
func WithBackOff(f func() backoff.BackOff) Option {
	return func(r *Recorder) {
		if f != nil {
			r.backOff = f
		}
	}
}

func WithLogger(l logger.Logger) Option {
	return func(r *Recorder) {
		if l != nil {
			r.log = l
		}
	}
}

// New creates a Recorder over store. Call Open to load existing decisions.
func New(store repository.Store, opts ...Option) *Recorder {
	r := &Recorder{
		store:    store,
		now:      time.Now,
		maxTries: defaultMaxTries,
		backOff: func() backoff.BackOff {
			b := backoff.NewExponentialBackOff()
			b.InitialInterval = 100 * time.Millisecond
			b.MaxInterval = time.Second
			return b
		},
		records: make(map[string]model.DecisionRecord),
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.log == nil {
		r.log = logger.Get().Named("decision")
	}
	return r
}

// Open loads every stored decision into memory.
func (r *Recorder) Open(ctx context.Context) error {
	all, err := r.store.All(ctx)
	if err != nil {
		return fmt.Errorf("load decisions: %w", err)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, rec := range all {
		r.records[rec.SessionID] = rec
	}
	r.log.Info(ctx, "decisions loaded", logger.Int("count", len(all)))
	return nil
}

// RecordDecision upserts the decision for sessionID. The returned error wraps
// ErrInvalidDecision for bad input and ErrPersistFailed when every attempt to
// write failed; in both cases the in-memory map is unchanged.
func (r *Recorder) RecordDecision(ctx context.Context, sessionID string, d model.Decision, dc model.DecisionContext) (model.DecisionRecord, error) {
	if strings.TrimSpace(sessionID) == "" {
		return model.DecisionRecord{}, ErrEmptySessionID
	}
	if !d.Valid() {
		return model.DecisionRecord{}, fmt.Errorf("%w: %q", ErrInvalidDecision, d)
	}

	rec := model.DecisionRecord{
		SessionID:         sessionID,
		Decision:          d,
		CandidateName:     dc.CandidateName,
		CandidateEmail:    dc.CandidateEmail,
		CandidatePosition: dc.CandidatePosition,
		Timestamp:         r.now().UTC(),
		Score:             dc.Score,
	}

	attempts := 0
	_, err := backoff.Retry(ctx, func() (struct{}, error) {
		attempts++
		err := r.store.Put(ctx, rec)
		if errors.Is(err, repository.ErrInvalidRecord) || errors.Is(err, repository.ErrStoreClosed) {
			return struct{}{}, backoff.Permanent(err)
		}
		return struct{}{}, err
	}, backoff.WithBackOff(r.backOff()), backoff.WithMaxTries(r.maxTries))
	if err != nil {
		metrics.RecordDecisionWrite("failed")
		r.log.Error(ctx, "decision not persisted",
			logger.String("session_id", sessionID),
			logger.String("decision", string(d)),
			logger.Int("attempts", attempts),
			logger.Error(err))
		return model.DecisionRecord{}, fmt.Errorf("%w: %w", ErrPersistFailed, err)
	}

	r.mu.Lock()
	r.records[sessionID] = rec
	r.mu.Unlock()

	metrics.RecordDecisionWrite("ok")
	r.log.Info(ctx, "decision recorded",
		logger.String("session_id", sessionID),
		logger.String("decision", string(d)),
		logger.Int("attempts", attempts))
	return rec, nil
}

// Get returns the decision for sessionID.
func (r *Recorder) Get(sessionID string) (model.DecisionRecord, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rec, ok := r.records[sessionID]
	return rec, ok
}

// All returns every decision ordered by session id.
func (r *Recorder) All() []model.DecisionRecord {
	r.mu.RLock()
	out := make([]model.DecisionRecord, 0, len(r.records))
	for _, rec := range r.records {
		out = append(out, rec)
	}
	r.mu.RUnlock()
	slices.SortFunc(out, func(a, b model.DecisionRecord) int {
		return strings.Compare(a.SessionID, b.SessionID)
	})
	return out
}

// Close closes the underlying store.
func (r *Recorder) Close() error {
	return r.store.Close()
}
