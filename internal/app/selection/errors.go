package selection

import "errors"

var (
	ErrEmptySessionID     = errors.New("empty session id")
	ErrDeleteNotRequested = errors.New("delete not requested")
	ErrDeleteInFlight     = errors.New("delete already in flight")
)
