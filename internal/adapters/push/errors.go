package push

import "errors"

var (
	ErrDialFailed     = errors.New("push channel dial failed")
	ErrInvalidMessage = errors.New("invalid push message")
)
