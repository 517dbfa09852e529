package service

import "errors"

var (
	// ErrNotStarted is returned by operations that need a running monitor.
	ErrNotStarted = errors.New("monitor not started")

	// ErrDecisionNotFound is returned when no decision exists for a session.
	ErrDecisionNotFound = errors.New("decision not found")
)
