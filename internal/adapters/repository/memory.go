package repository

import (
	"context"
	"slices"
	"strings"
	"sync"

	"github.com/okian/livewatch/internal/domain/model"
)

// MemoryStore keeps decisions in process memory. Nothing survives a restart.
type MemoryStore struct {
	mu      sync.RWMutex
	records map[string]model.DecisionRecord
	closed  bool
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: make(map[string]model.DecisionRecord)}
}

func (s *MemoryStore) Put(_ context.Context, rec model.DecisionRecord) error {
	if err := validate(rec); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrStoreClosed
	}
	s.records[rec.SessionID] = rec
	return nil
}

func (s *MemoryStore) Get(_ context.Context, sessionID string) (model.DecisionRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return model.DecisionRecord{}, ErrStoreClosed
	}
	rec, ok := s.records[sessionID]
	if !ok {
		return model.DecisionRecord{}, ErrNotFound
	}
	return rec, nil
}

func (s *MemoryStore) All(_ context.Context) ([]model.DecisionRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, ErrStoreClosed
	}
	out := make([]model.DecisionRecord, 0, len(s.records))
	for _, rec := range s.records {
		out = append(out, rec)
	}
	sortRecords(out)
	return out, nil
}

func (s *MemoryStore) Close() error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	return nil
}

func sortRecords(recs []model.DecisionRecord) {
	slices.SortFunc(recs, func(a, b model.DecisionRecord) int {
		return strings.Compare(a.SessionID, b.SessionID)
	})
}
