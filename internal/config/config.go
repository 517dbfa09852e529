// Package config defines service configuration structures and loading hooks.
//
// Conventions:
// - New() builds a Config with defaults; Load(ctx) layers file and env on top.
// - All future functions must accept context.Context as the first parameter.
// - Validation failures wrap ErrInvalidConfig.
package config

import (
	"fmt"
	"strings"
	"time"
)

// Decision store backends.
const (
	StoreSQLite = "sqlite"
	StoreRedis  = "redis"
	StoreMemory = "memory"
)

// Config contains process configuration.
type Config struct {
	// LogLevel controls verbosity: debug, info, warn, error.
	LogLevel string `koanf:"log_level"`

	// LogFormat selects the log handler: text or json.
	LogFormat string `koanf:"log_format"`

	// Addr configures the monitor HTTP listen address, e.g. ":9090".
	Addr string `koanf:"addr"`

	// ScoringBaseURL is the remote scoring/session service, e.g. "http://localhost:8000".
	ScoringBaseURL string `koanf:"scoring_base_url"`

	// PushBaseURL is the WebSocket base for per-session push subscriptions.
	PushBaseURL string `koanf:"push_base_url"`

	// SnapshotPollIntervalMS and RosterPollIntervalMS drive the fallback polling loops.
	SnapshotPollIntervalMS int `koanf:"snapshot_poll_interval_ms"`
	RosterPollIntervalMS   int `koanf:"roster_poll_interval_ms"`

	// ThrottleWindowMS is the minimum gap between push-triggered snapshot fetches per session.
	ThrottleWindowMS int `koanf:"throttle_window_ms"`

	// RequestTimeoutMS bounds every remote fetch.
	RequestTimeoutMS int `koanf:"request_timeout_ms"`

	// DialTimeoutMS bounds the push channel handshake.
	DialTimeoutMS int `koanf:"dial_timeout_ms"`

	// EventLogCapacity bounds the recent-activity log.
	EventLogCapacity int `koanf:"event_log_capacity"`

	// UpdateQueueSize bounds the update loop inbox.
	UpdateQueueSize int `koanf:"update_queue_size"`

	// DedupeEvents drops notable events whose id was already logged for the current focus.
	DedupeEvents bool `koanf:"dedupe_events"`

	// DedupeSize is the number of event ids remembered when DedupeEvents is on.
	DedupeSize int `koanf:"dedupe_size"`

	// DecisionStore selects the durable decision backend: sqlite, redis or memory.
	DecisionStore string `koanf:"decision_store"`

	// DecisionDBPath is the SQLite database file.
	DecisionDBPath string `koanf:"decision_db_path"`

	// Redis connection for the redis decision store.
	RedisAddr     string `koanf:"redis_addr"`
	RedisPassword string `koanf:"redis_password"`
	RedisDB       int    `koanf:"redis_db"`

	// DecisionMaxTries is the number of persistence attempts before a decision write fails.
	DecisionMaxTries int `koanf:"decision_max_tries"`

	// MetricsRefreshIntervalMS is how often runtime and monitor gauges are refreshed.
	MetricsRefreshIntervalMS int `koanf:"metrics_refresh_interval_ms"`
}

// New creates a Config populated with defaults.
func New() *Config {
	return &Config{
		LogLevel:               "info",
		LogFormat:              "text",
		Addr:                   ":9090",
		ScoringBaseURL:         "http://localhost:8000",
		PushBaseURL:            "ws://localhost:8000",
		SnapshotPollIntervalMS: 5000,
		RosterPollIntervalMS:   10000,
		ThrottleWindowMS:       3000,
		RequestTimeoutMS:       8000,
		DialTimeoutMS:          5000,
		EventLogCapacity:       30,
		UpdateQueueSize:        1024,
		DedupeEvents:           false,
		DedupeSize:             256,
		DecisionStore:          StoreSQLite,
		DecisionDBPath:         "livewatch.db",
		DecisionMaxTries:       3,

		MetricsRefreshIntervalMS: 10000,
	}
}

// Validate checks the configuration for values the monitor cannot run with.
func (c *Config) Validate() error {
	switch {
	case strings.TrimSpace(c.Addr) == "":
		return fmt.Errorf("%w: addr must not be empty", ErrInvalidConfig)
	case strings.TrimSpace(c.ScoringBaseURL) == "":
		return fmt.Errorf("%w: scoring_base_url must not be empty", ErrInvalidConfig)
	case strings.TrimSpace(c.PushBaseURL) == "":
		return fmt.Errorf("%w: push_base_url must not be empty", ErrInvalidConfig)
	case c.SnapshotPollIntervalMS <= 0, c.RosterPollIntervalMS <= 0:
		return fmt.Errorf("%w: poll intervals must be positive", ErrInvalidConfig)
	case c.ThrottleWindowMS <= 0:
		return fmt.Errorf("%w: throttle_window_ms must be positive", ErrInvalidConfig)
	case c.RequestTimeoutMS <= 0, c.DialTimeoutMS <= 0:
		return fmt.Errorf("%w: timeouts must be positive", ErrInvalidConfig)
	case c.EventLogCapacity <= 0:
		return fmt.Errorf("%w: event_log_capacity must be positive", ErrInvalidConfig)
	case c.UpdateQueueSize <= 0:
		return fmt.Errorf("%w: update_queue_size must be positive", ErrInvalidConfig)
	case c.DecisionMaxTries <= 0:
		return fmt.Errorf("%w: decision_max_tries must be positive", ErrInvalidConfig)
	case c.MetricsRefreshIntervalMS <= 0:
		return fmt.Errorf("%w: metrics_refresh_interval_ms must be positive", ErrInvalidConfig)
	}

	switch c.DecisionStore {
	case StoreSQLite:
		if strings.TrimSpace(c.DecisionDBPath) == "" {
			return fmt.Errorf("%w: decision_db_path must not be empty", ErrInvalidConfig)
		}
	case StoreRedis:
		if strings.TrimSpace(c.RedisAddr) == "" {
			return fmt.Errorf("%w: redis_addr is required for the redis decision store", ErrInvalidConfig)
		}
	case StoreMemory:
	default:
		return fmt.Errorf("%w: unknown decision_store %q", ErrInvalidConfig, c.DecisionStore)
	}
	return nil
}

// Duration helpers.

func (c *Config) SnapshotPollInterval() time.Duration {
	return time.Duration(c.SnapshotPollIntervalMS) * time.Millisecond
}

func (c *Config) RosterPollInterval() time.Duration {
	return time.Duration(c.RosterPollIntervalMS) * time.Millisecond
}

func (c *Config) ThrottleWindow() time.Duration {
	return time.Duration(c.ThrottleWindowMS) * time.Millisecond
}

func (c *Config) RequestTimeout() time.Duration {
	return time.Duration(c.RequestTimeoutMS) * time.Millisecond
}

func (c *Config) DialTimeout() time.Duration {
	return time.Duration(c.DialTimeoutMS) * time.Millisecond
}

func (c *Config) MetricsRefreshInterval() time.Duration {
	return time.Duration(c.MetricsRefreshIntervalMS) * time.Millisecond
}
