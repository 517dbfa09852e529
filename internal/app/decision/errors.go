package decision

import "errors"

var (
	ErrInvalidDecision = errors.New("invalid decision")
	ErrEmptySessionID  = errors.New("empty session id")
	ErrPersistFailed   = errors.New("decision not persisted")
)
