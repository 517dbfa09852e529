// Package scoring computes a candidate's overall fit from per-skill scores.
package scoring

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"sort"
	"sync"
	"time"
)

// Default scoring configuration constants.
const (
	defaultSkillWeight = 1.0
	defaultRandomSeed  = 42
	maxScoreValue      = 100
)

// ErrNoSkills is returned when there is nothing to score.
var ErrNoSkills = errors.New("no skill scores")

// Option applies a configuration option to the InMemoryScorer.
type Option func(*InMemoryScorer)

// WithLatencyRange sets the simulated latency range.
func WithLatencyRange(minLatency, maxLatency time.Duration) Option {
	return func(s *InMemoryScorer) {
		if minLatency > 0 && maxLatency > minLatency {
			s.minLatency = minLatency
			s.maxLatency = maxLatency
		}
	}
}

// WithSkillWeightsFromConfig sets skill weights from a configuration map.
func WithSkillWeightsFromConfig(weights map[string]float64, defaultWeight float64) Option {
	return func(s *InMemoryScorer) {
		// Copy the weights map to avoid external modifications
		s.skillWeights = make(map[string]float64)
		for skill, weight := range weights {
			if weight > 0 {
				s.skillWeights[skill] = weight
			}
		}
		if defaultWeight > 0 {
			s.defaultWeight = defaultWeight
		}
	}
}

// Input carries the per-skill scores of one session, each in 0..100.
type Input struct {
	SessionID string
	Skills    map[string]float64
}

// Result is the overall fit of a session.
type Result struct {
	SessionID string
	Score     float64
	Grade     string
	// Breakdown holds each skill's weighted contribution to Score.
	Breakdown map[string]float64
}

// Scorer computes an overall fit. The implementation may simulate latency to
// model an external ML service.
type Scorer interface {
	// Score computes a fit, honoring ctx for cancellation.
	Score(ctx context.Context, in Input) (Result, error)
}

// InMemoryScorer implements Scorer as a skill-weighted average.
type InMemoryScorer struct {
	// Skill-specific scoring parameters
	skillWeights  map[string]float64
	defaultWeight float64
	// Simulated latency range; zero disables it
	minLatency time.Duration
	maxLatency time.Duration

	mu  sync.Mutex
	rng *rand.Rand
}

// NewInMemoryScorer creates a new in-memory scorer with configuration options.
func NewInMemoryScorer(opts ...Option) *InMemoryScorer {
	s := &InMemoryScorer{
		skillWeights:  make(map[string]float64),
		defaultWeight: defaultSkillWeight,
		rng:           rand.New(rand.NewSource(defaultRandomSeed)), //nolint:gosec // deterministic seed for reproducible testing
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

// Score computes the weighted average of the skill scores, clamped to 0..100,
// and grades it.
func (s *InMemoryScorer) Score(ctx context.Context, in Input) (Result, error) {
	if len(in.Skills) == 0 {
		return Result{}, fmt.Errorf("score session %s: %w", in.SessionID, ErrNoSkills)
	}

	if latency := s.latency(); latency > 0 {
		select {
		case <-ctx.Done():
			return Result{}, fmt.Errorf("context cancelled: %w", ctx.Err())
		case <-time.After(latency):
		}
	}

	skills := make([]string, 0, len(in.Skills))
	for skill := range in.Skills {
		skills = append(skills, skill)
	}
	sort.Strings(skills)

	var totalWeight float64
	for _, skill := range skills {
		totalWeight += s.weight(skill)
	}

	breakdown := make(map[string]float64, len(skills))
	var score float64
	for _, skill := range skills {
		v := math.Max(0, math.Min(maxScoreValue, in.Skills[skill]))
		contribution := v * s.weight(skill) / totalWeight
		breakdown[skill] = round2(contribution)
		score += contribution
	}
	score = round2(math.Max(0, math.Min(maxScoreValue, score)))

	return Result{
		SessionID: in.SessionID,
		Score:     score,
		Grade:     Grade(score),
		Breakdown: breakdown,
	}, nil
}

func (s *InMemoryScorer) weight(skill string) float64 {
	if w, ok := s.skillWeights[skill]; ok {
		return w
	}
	return s.defaultWeight
}

func (s *InMemoryScorer) latency() time.Duration {
	if s.maxLatency <= s.minLatency {
		return s.minLatency
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.minLatency + time.Duration(s.rng.Int63n(int64(s.maxLatency-s.minLatency)))
}

// Grade maps a 0..100 score to a letter.
func Grade(score float64) string {
	switch {
	case score >= 90:
		return "A"
	case score >= 80:
		return "B"
	case score >= 70:
		return "C"
	case score >= 60:
		return "D"
	default:
		return "F"
	}
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
