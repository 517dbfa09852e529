package repository

import (
	"time"

	"github.com/okian/livewatch/pkg/logger"
)

const (
	defaultHashKey     = "livewatch:decisions"
	defaultBusyTimeout = 5 * time.Second
)

type options struct {
	hashKey     string
	busyTimeout time.Duration
	log         logger.Logger
}

func newOptions(component string, opts []Option) options {
	o := options{
		hashKey:     defaultHashKey,
		busyTimeout: defaultBusyTimeout,
	}
	for _, opt := range opts {
		opt(&o)
	}
	if o.log == nil {
		o.log = logger.Get().Named(component)
	}
	return o
}

// Option configures a store.
type Option func(*options)

// WithHashKey sets the Redis hash holding the decisions.
func WithHashKey(key string) Option {
	return func(o *options) {
		if key != "" {
			o.hashKey = key
		}
	}
}

// WithBusyTimeout sets how long SQLite waits on a locked database.
func WithBusyTimeout(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.busyTimeout = d
		}
	}
}

func WithLogger(l logger.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.log = l
		}
	}
}
