// Package compose merges partial remote snapshots onto a fully defined view.
package compose

import (
	"bytes"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/okian/livewatch/internal/domain/model"
)

// ErrInvalidSnapshot is returned when a partial snapshot is not a JSON object.
var ErrInvalidSnapshot = errors.New("invalid snapshot payload")

// Default returns the canonical skeleton for sessionID: numbers are zero,
// qualitative fields hold model.Placeholder, collections are empty.
func Default(sessionID string) model.Snapshot {
	s := model.Snapshot{SessionID: sessionID}
	normalize(&s)
	return s
}

// Compose merges partial onto previous when previous belongs to sessionID,
// otherwise onto Default(sessionID). Objects merge key by key; the per-task
// list is replaced as a whole. A leaf of the wrong type keeps its current
// value without affecting its siblings. previous is never modified.
func Compose(previous model.Snapshot, sessionID string, partial []byte) (model.Snapshot, error) {
	var base model.Snapshot
	if previous.SessionID == sessionID {
		base = previous.Clone()
	} else {
		base = Default(sessionID)
	}
	normalize(&base)

	trimmed := bytes.TrimSpace(partial)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return base, nil
	}
	if !gjson.ValidBytes(trimmed) {
		return previous, fmt.Errorf("%w: malformed JSON", ErrInvalidSnapshot)
	}
	root := gjson.ParseBytes(trimmed)
	if !root.IsObject() {
		return previous, fmt.Errorf("%w: expected object", ErrInvalidSnapshot)
	}

	mergeSnapshot(&base, root)
	base.SessionID = sessionID
	normalize(&base)
	return base, nil
}

func mergeSnapshot(s *model.Snapshot, root gjson.Result) {
	if v := root.Get("candidate"); v.IsObject() {
		setString(&s.Candidate.Name, v.Get("name"))
		setString(&s.Candidate.Position, v.Get("position"))
		setString(&s.Candidate.Email, v.Get("email"))
	}
	if v := root.Get("progress"); v.IsObject() {
		setInt(&s.Progress.Current, v.Get("current"))
		setInt(&s.Progress.Total, v.Get("total"))
	}
	if v := root.Get("metrics"); v.IsObject() {
		mergeMetrics(&s.Metrics, v)
	}
	mergeScores(&s.SkillProfile, root.Get("skill_profile"))
	if v := root.Get("behavioral_summary"); v.IsObject() {
		setStrings(&s.BehavioralSummary.Traits, v.Get("traits"))
		setString(&s.BehavioralSummary.Summary, v.Get("summary"))
		setString(&s.BehavioralSummary.Style, v.Get("style"))
		setFloat(&s.BehavioralSummary.Confidence, v.Get("confidence"))
	}
	if v := root.Get("resume_comparison"); v.IsObject() {
		setFloat(&s.ResumeComparison.MatchScore, v.Get("match_score"))
		setString(&s.ResumeComparison.Verdict, v.Get("verdict"))
		setStrings(&s.ResumeComparison.Discrepancies, v.Get("discrepancies"))
	}
	if v := root.Get("overall_fit"); v.IsObject() {
		setFloat(&s.OverallFit.Score, v.Get("score"))
		setString(&s.OverallFit.Grade, v.Get("grade"))
		mergeScores(&s.OverallFit.Breakdown, v.Get("breakdown"))
	}
	if v := root.Get("per_task_metrics"); v.IsArray() {
		s.PerTaskMetrics = taskList(v)
	}
	switch v := root.Get("current_question"); {
	case v.Type == gjson.Null && v.Exists():
		s.CurrentQuestion = nil
	case v.IsObject():
		q := model.Question{}
		if s.CurrentQuestion != nil {
			q = *s.CurrentQuestion
		}
		setString(&q.ID, v.Get("id"))
		setInt(&q.Index, v.Get("index"))
		setString(&q.Title, v.Get("title"))
		setString(&q.Kind, v.Get("kind"))
		s.CurrentQuestion = &q
	}
	if v := root.Get("population_intelligence"); v.IsObject() {
		setFloat(&s.PopulationIntelligence.Percentile, v.Get("percentile"))
		setInt(&s.PopulationIntelligence.CohortSize, v.Get("cohort_size"))
		setString(&s.PopulationIntelligence.Summary, v.Get("summary"))
	}
}

func mergeMetrics(m *model.Metrics, v gjson.Result) {
	v.ForEach(func(key, value gjson.Result) bool {
		switch k := key.String(); k {
		case "typing_speed_wpm":
			setFloat(&m.TypingSpeedWPM, value)
		case "paste_count":
			setFloat(&m.PasteCount, value)
		case "copy_count":
			setFloat(&m.CopyCount, value)
		case "focus_loss_count":
			setFloat(&m.FocusLossCount, value)
		case "idle_seconds":
			setFloat(&m.IdleSeconds, value)
		case "avg_response_time_sec":
			setFloat(&m.AvgResponseTimeSec, value)
		case "revision_rate":
			setFloat(&m.RevisionRate, value)
		case "confidence_level":
			setString(&m.ConfidenceLevel, value)
		case "working_style":
			setString(&m.WorkingStyle, value)
		case "extra":
			// our own encoding of unknown keys, read back from a stored view
			if value.IsObject() {
				value.ForEach(func(ek, ev gjson.Result) bool {
					setExtra(m, ek.String(), ev)
					return true
				})
			}
		default:
			setExtra(m, k, value)
		}
		return true
	})
}

func setExtra(m *model.Metrics, key string, v gjson.Result) {
	if v.Type == gjson.Null {
		delete(m.Extra, key)
		return
	}
	if m.Extra == nil {
		m.Extra = map[string]any{}
	}
	m.Extra[key] = v.Value()
}

// mergeScores merges a name→number object key by key; null resets it.
func mergeScores(dst *map[string]float64, v gjson.Result) {
	switch {
	case v.Type == gjson.Null && v.Exists():
		*dst = map[string]float64{}
	case v.IsObject():
		if *dst == nil {
			*dst = map[string]float64{}
		}
		v.ForEach(func(key, value gjson.Result) bool {
			if f, ok := number(value); ok {
				(*dst)[key.String()] = f
			}
			return true
		})
	}
}

func taskList(v gjson.Result) model.TaskMetricsList {
	out := model.TaskMetricsList{}
	for _, item := range v.Array() {
		if !item.IsObject() {
			continue
		}
		var t model.TaskMetrics
		setInt(&t.TaskIndex, item.Get("task_index"))
		setString(&t.Title, item.Get("title"))
		setBool(&t.Completed, item.Get("completed"))
		setFloat(&t.Score, item.Get("score"))
		setFloat(&t.TimeSpentSec, item.Get("time_spent_sec"))
		out = append(out, t)
	}
	return out
}

// number accepts JSON numbers and numeric strings.
func number(v gjson.Result) (float64, bool) {
	switch v.Type {
	case gjson.Number:
		return v.Float(), true
	case gjson.String:
		f, err := strconv.ParseFloat(strings.TrimSpace(v.Str), 64)
		return f, err == nil
	default:
		return 0, false
	}
}

func setFloat(dst *float64, v gjson.Result) {
	if f, ok := number(v); ok {
		*dst = f
	}
}

// setInt truncates fractional values.
func setInt(dst *int, v gjson.Result) {
	if f, ok := number(v); ok {
		*dst = int(f)
	}
}

func setString(dst *string, v gjson.Result) {
	switch v.Type {
	case gjson.String, gjson.Number:
		*dst = v.String()
	}
}

func setBool(dst *bool, v gjson.Result) {
	switch v.Type {
	case gjson.True, gjson.False:
		*dst = v.Bool()
	case gjson.Number:
		*dst = v.Float() != 0
	case gjson.String:
		if b, err := strconv.ParseBool(strings.TrimSpace(v.Str)); err == nil {
			*dst = b
		}
	}
}

// setStrings replaces a string list; null resets it and non-string items are skipped.
func setStrings(dst *[]string, v gjson.Result) {
	switch {
	case v.Type == gjson.Null && v.Exists():
		*dst = []string{}
	case v.IsArray():
		out := []string{}
		for _, item := range v.Array() {
			if item.Type == gjson.String {
				out = append(out, item.Str)
			}
		}
		*dst = out
	}
}

func normalize(s *model.Snapshot) {
	if s.SkillProfile == nil {
		s.SkillProfile = map[string]float64{}
	}
	if s.OverallFit.Breakdown == nil {
		s.OverallFit.Breakdown = map[string]float64{}
	}
	if s.BehavioralSummary.Traits == nil {
		s.BehavioralSummary.Traits = []string{}
	}
	if s.ResumeComparison.Discrepancies == nil {
		s.ResumeComparison.Discrepancies = []string{}
	}
	if s.PerTaskMetrics == nil {
		s.PerTaskMetrics = model.TaskMetricsList{}
	}

	placeholder(&s.Metrics.ConfidenceLevel)
	placeholder(&s.Metrics.WorkingStyle)
	placeholder(&s.BehavioralSummary.Summary)
	placeholder(&s.BehavioralSummary.Style)
	placeholder(&s.ResumeComparison.Verdict)
	placeholder(&s.OverallFit.Grade)
	placeholder(&s.PopulationIntelligence.Summary)
}

func placeholder(v *string) {
	if *v == "" {
		*v = model.Placeholder
	}
}
