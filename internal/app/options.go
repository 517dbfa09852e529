package service

import (
	"time"

	"github.com/okian/livewatch/internal/adapters/repository"
	"github.com/okian/livewatch/internal/config"
	"github.com/okian/livewatch/pkg/logger"
)

// Option applies a configuration option to the Monitor.
type Option func(*Monitor)

// WithConfig replaces the default configuration.
func WithConfig(cfg *config.Config) Option {
	return func(m *Monitor) {
		if cfg != nil {
			m.cfg = cfg
		}
	}
}

// WithStore uses store for decisions instead of opening the configured backend.
// The monitor closes it on Stop.
func WithStore(store repository.Store) Option {
	return func(m *Monitor) {
		if store != nil {
			m.storeOverride = store
		}
	}
}

// WithClock sets the clock used for throttling and decision timestamps.
func WithClock(now func() time.Time) Option {
	return func(m *Monitor) {
		if now != nil {
			m.now = now
		}
	}
}

// WithLogger sets a custom logger for the monitor.
func WithLogger(l logger.Logger) Option {
	return func(m *Monitor) {
		if l != nil {
			m.logger = l
		}
	}
}
