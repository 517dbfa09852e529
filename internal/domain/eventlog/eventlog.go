// Package eventlog is the bounded newest-first log of notable activity for
// the focused session.
package eventlog

import (
	"context"
	"slices"
	"sync"

	"github.com/okian/livewatch/internal/domain/dedupe"
	"github.com/okian/livewatch/internal/domain/model"
)

// DefaultCapacity is the number of entries kept when no capacity is configured.
const DefaultCapacity = 30

// Log keeps at most capacity entries, newest first.
type Log struct {
	mu       sync.RWMutex
	entries  []model.NotableEvent
	capacity int
	deduper  dedupe.Deduper // nil disables dedupe
}

// Option configures a Log.
type Option func(*Log)

// WithCapacity sets the maximum number of entries.
func WithCapacity(n int) Option {
	return func(l *Log) {
		if n > 0 {
			l.capacity = n
		}
	}
}

// WithDeduper drops entries whose id the deduper has already seen since the
// last Clear.
func WithDeduper(d dedupe.Deduper) Option {
	return func(l *Log) {
		l.deduper = d
	}
}

// New creates an empty Log.
func New(opts ...Option) *Log {
	l := &Log{capacity: DefaultCapacity}
	for _, opt := range opts {
		opt(l)
	}
	l.entries = make([]model.NotableEvent, 0, l.capacity)
	return l
}

// Append prepends ev and truncates to capacity. It returns false when ev was
// dropped as a duplicate.
func (l *Log) Append(ctx context.Context, ev model.NotableEvent) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.deduper != nil && ev.ID != "" && l.deduper.SeenAndRecord(ctx, ev.ID) {
		return false
	}

	l.entries = slices.Insert(l.entries, 0, ev)
	if len(l.entries) > l.capacity {
		clear(l.entries[l.capacity:])
		l.entries = l.entries[:l.capacity]
	}
	return true
}

// Clear empties the log.
func (l *Log) Clear(ctx context.Context) {
	l.mu.Lock()
	defer l.mu.Unlock()
	clear(l.entries)
	l.entries = l.entries[:0]
	if l.deduper != nil {
		l.deduper.Reset(ctx)
	}
}

// Entries returns a copy, newest first.
func (l *Log) Entries() []model.NotableEvent {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return slices.Clone(l.entries)
}

func (l *Log) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.entries)
}

func (l *Log) Capacity() int { return l.capacity }
