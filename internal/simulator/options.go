package simulator

import (
	"time"

	"github.com/okian/livewatch/internal/domain/scoring"
	"github.com/okian/livewatch/pkg/logger"
)

// Option configures a Simulator.
type Option func(*Simulator)

// WithSessions sets how many active and completed sessions are seeded.
func WithSessions(active, completed int) Option {
	return func(s *Simulator) {
		if active >= 0 {
			s.seedActive = active
		}
		if completed >= 0 {
			s.seedCompleted = completed
		}
	}
}

// WithTasks sets the number of tasks per assessment.
func WithTasks(n int) Option {
	return func(s *Simulator) {
		if n > 0 {
			s.tasks = n
		}
	}
}

// WithTickInterval sets how often Run advances active sessions.
func WithTickInterval(d time.Duration) Option {
	return func(s *Simulator) {
		if d > 0 {
			s.tickEvery = d
		}
	}
}

// WithSeed makes generated data reproducible.
func WithSeed(seed int64) Option {
	return func(s *Simulator) {
		s.seed = seed
	}
}

// WithScorer replaces the overall-fit scorer.
func WithScorer(scorer scoring.Scorer) Option {
	return func(s *Simulator) {
		if scorer != nil {
			s.scorer = scorer
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(s *Simulator) {
		if now != nil {
			s.now = now
		}
	}
}

func WithLogger(l logger.Logger) Option {
	return func(s *Simulator) {
		if l != nil {
			s.log = l
		}
	}
}
