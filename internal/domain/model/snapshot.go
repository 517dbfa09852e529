package model

import (
	"bytes"
	"encoding/json"
	"maps"
	"slices"
)

// Placeholder is the neutral value shown for qualitative fields the remote
// service has not produced yet.
const Placeholder = "Analyzing…"

// Snapshot is the full computed-metrics state of one session.
type Snapshot struct {
	SessionID              string                 `json:"session_id"`
	Candidate              Candidate              `json:"candidate"`
	Progress               Progress               `json:"progress"`
	Metrics                Metrics                `json:"metrics"`
	SkillProfile           map[string]float64     `json:"skill_profile"`
	BehavioralSummary      BehavioralSummary      `json:"behavioral_summary"`
	ResumeComparison       ResumeComparison       `json:"resume_comparison"`
	OverallFit             OverallFit             `json:"overall_fit"`
	PerTaskMetrics         TaskMetricsList        `json:"per_task_metrics"`
	CurrentQuestion        *Question              `json:"current_question"`
	PopulationIntelligence PopulationIntelligence `json:"population_intelligence"`
}

// Metrics holds the numeric and categorical behavioral indicators.
type Metrics struct {
	TypingSpeedWPM     float64 `json:"typing_speed_wpm"`
	PasteCount         float64 `json:"paste_count"`
	CopyCount          float64 `json:"copy_count"`
	FocusLossCount     float64 `json:"focus_loss_count"`
	IdleSeconds        float64 `json:"idle_seconds"`
	AvgResponseTimeSec float64 `json:"avg_response_time_sec"`
	RevisionRate       float64 `json:"revision_rate"`
	ConfidenceLevel    string  `json:"confidence_level"`
	WorkingStyle       string  `json:"working_style"`

	// Extra holds metric keys the monitor has no field for, as sent.
	Extra map[string]any `json:"extra,omitempty"`
}

type BehavioralSummary struct {
	Traits     []string `json:"traits"`
	Summary    string   `json:"summary"`
	Style      string   `json:"style"`
	Confidence float64  `json:"confidence"`
}

type ResumeComparison struct {
	MatchScore    float64  `json:"match_score"`
	Verdict       string   `json:"verdict"`
	Discrepancies []string `json:"discrepancies"`
}

type OverallFit struct {
	Score     float64            `json:"score"`
	Grade     string             `json:"grade"`
	Breakdown map[string]float64 `json:"breakdown"`
}

type PopulationIntelligence struct {
	Percentile float64 `json:"percentile"`
	CohortSize int     `json:"cohort_size"`
	Summary    string  `json:"summary"`
}

// TaskMetrics is the per-task entry; Completed marks the task's data as final.
type TaskMetrics struct {
	TaskIndex    int     `json:"task_index"`
	Title        string  `json:"title"`
	Completed    bool    `json:"completed"`
	Score        float64 `json:"score"`
	TimeSpentSec float64 `json:"time_spent_sec"`
}

// Question is the task currently being worked on.
type Question struct {
	ID    string `json:"id"`
	Index int    `json:"index"`
	Title string `json:"title"`
	Kind  string `json:"kind,omitempty"`
}

// TaskMetricsList is an ordered list that a partial update replaces as a
// whole. A JSON null leaves the list untouched.
type TaskMetricsList []TaskMetrics

func (l *TaskMetricsList) UnmarshalJSON(data []byte) error {
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		return nil
	}
	var items []TaskMetrics
	if err := json.Unmarshal(data, &items); err != nil {
		return err
	}
	if items == nil {
		items = []TaskMetrics{}
	}
	*l = items
	return nil
}

// HasStarted reports whether at least one task's data is final.
func (s Snapshot) HasStarted() bool {
	for _, t := range s.PerTaskMetrics {
		if t.Completed {
			return true
		}
	}
	return false
}

// Clone returns a deep copy.
func (s Snapshot) Clone() Snapshot {
	out := s
	out.SkillProfile = maps.Clone(s.SkillProfile)
	out.Metrics.Extra = maps.Clone(s.Metrics.Extra)
	out.BehavioralSummary.Traits = slices.Clone(s.BehavioralSummary.Traits)
	out.ResumeComparison.Discrepancies = slices.Clone(s.ResumeComparison.Discrepancies)
	out.OverallFit.Breakdown = maps.Clone(s.OverallFit.Breakdown)
	out.PerTaskMetrics = slices.Clone(s.PerTaskMetrics)
	if s.CurrentQuestion != nil {
		q := *s.CurrentQuestion
		out.CurrentQuestion = &q
	}
	return out
}
