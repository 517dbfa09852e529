package repository

import "errors"

// Sentinel kinds for decision store errors.
var (
	ErrNotFound      = errors.New("decision not found")
	ErrStoreClosed   = errors.New("store closed")
	ErrInvalidRecord = errors.New("invalid decision record")
)
