package poll

import (
	"time"

	"github.com/okian/livewatch/pkg/logger"
)

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithSnapshotInterval sets the focused-snapshot poll period.
func WithSnapshotInterval(d time.Duration) Option {
	return func(s *Scheduler) {
		if d > 0 {
			s.snapshotEvery = d
		}
	}
}

// WithRosterInterval sets the roster poll period.
func WithRosterInterval(d time.Duration) Option {
	return func(s *Scheduler) {
		if d > 0 {
			s.rosterEvery = d
		}
	}
}

// WithLogger sets the scheduler logger.
func WithLogger(l logger.Logger) Option {
	return func(s *Scheduler) {
		if l != nil {
			s.log = l
		}
	}
}
