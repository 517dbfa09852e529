package model

import (
	"fmt"
	"strings"
	"time"
)

// Decision is a recruiter's verdict on a session.
type Decision string

const (
	DecisionShortlist Decision = "shortlist"
	DecisionHold      Decision = "hold"
	DecisionReject    Decision = "reject"
)

// ParseDecision normalises s into a Decision.
func ParseDecision(s string) (Decision, error) {
	d := Decision(strings.ToLower(strings.TrimSpace(s)))
	if !d.Valid() {
		return "", fmt.Errorf("unknown decision %q", s)
	}
	return d, nil
}

func (d Decision) Valid() bool {
	switch d {
	case DecisionShortlist, DecisionHold, DecisionReject:
		return true
	}
	return false
}

// DecisionContext is the candidate identity and score captured with a decision.
type DecisionContext struct {
	CandidateName     string
	CandidateEmail    string
	CandidatePosition string
	Score             float64
}

// DecisionRecord is the persisted form of a decision.
type DecisionRecord struct {
	SessionID         string    `json:"sessionId"`
	Decision          Decision  `json:"decision"`
	CandidateName     string    `json:"candidateName"`
	CandidateEmail    string    `json:"candidateEmail"`
	CandidatePosition string    `json:"candidatePosition"`
	Timestamp         time.Time `json:"timestamp"`
	Score             float64   `json:"score"`
}
