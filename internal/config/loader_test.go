package config_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/okian/livewatch/internal/config"
	"github.com/smartystreets/goconvey/convey"
)

func TestConfigLoader(t *testing.T) {
	convey.Convey("Given a config loader", t, func() {
		ctx := context.Background()

		convey.Convey("When loading config with defaults only", func() {
			clearConfigEnvVars()

			cfg, err := config.Load(ctx)

			convey.Convey("Then it should load successfully with defaults", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg, convey.ShouldNotBeNil)
				convey.So(cfg.Addr, convey.ShouldEqual, ":9090")
				convey.So(cfg.ThrottleWindowMS, convey.ShouldEqual, 3000)
				convey.So(cfg.EventLogCapacity, convey.ShouldEqual, 30)
			})
		})

		convey.Convey("When loading config with environment variables", func() {
			_ = os.Setenv("LIVEWATCH_ADDR", ":8181")
			_ = os.Setenv("LIVEWATCH_THROTTLE_WINDOW_MS", "1500")
			_ = os.Setenv("LIVEWATCH_SCORING_BASE_URL", "http://scoring:8000")
			_ = os.Setenv("LIVEWATCH_DECISION_STORE", "memory")
			defer clearConfigEnvVars()

			cfg, err := config.Load(ctx)

			convey.Convey("Then it should override defaults with env vars", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg.Addr, convey.ShouldEqual, ":8181")
				convey.So(cfg.ThrottleWindowMS, convey.ShouldEqual, 1500)
				convey.So(cfg.ScoringBaseURL, convey.ShouldEqual, "http://scoring:8000")
				convey.So(cfg.DecisionStore, convey.ShouldEqual, config.StoreMemory)
			})
		})

		convey.Convey("When loading config with YAML file", func() {
			clearConfigEnvVars()
			path := filepath.Join(t.TempDir(), "livewatch.yaml")
			content := `addr: ":7070"
event_log_capacity: 10
dedupe_events: true
roster_poll_interval_ms: 2500
`
			convey.So(os.WriteFile(path, []byte(content), 0o600), convey.ShouldBeNil)
			_ = os.Setenv("LIVEWATCH_CONFIG", path)
			defer clearConfigEnvVars()

			cfg, err := config.Load(ctx)

			convey.Convey("Then it should load values from the file", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg.Addr, convey.ShouldEqual, ":7070")
				convey.So(cfg.EventLogCapacity, convey.ShouldEqual, 10)
				convey.So(cfg.DedupeEvents, convey.ShouldBeTrue)
				convey.So(cfg.RosterPollIntervalMS, convey.ShouldEqual, 2500)
				convey.So(cfg.ThrottleWindowMS, convey.ShouldEqual, 3000)
			})

			convey.Convey("And env overrides the file", func() {
				_ = os.Setenv("LIVEWATCH_ADDR", ":6060")

				cfg, err := config.Load(ctx)

				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg.Addr, convey.ShouldEqual, ":6060")
				convey.So(cfg.EventLogCapacity, convey.ShouldEqual, 10)
			})
		})

		convey.Convey("When the config file does not exist", func() {
			clearConfigEnvVars()
			_ = os.Setenv("LIVEWATCH_CONFIG", filepath.Join(t.TempDir(), "missing.yaml"))
			defer clearConfigEnvVars()

			_, err := config.Load(ctx)

			convey.Convey("Then it should fail with ErrLoadConfig", func() {
				convey.So(errors.Is(err, config.ErrLoadConfig), convey.ShouldBeTrue)
			})
		})

		convey.Convey("When env produces an invalid config", func() {
			clearConfigEnvVars()
			_ = os.Setenv("LIVEWATCH_EVENT_LOG_CAPACITY", "0")
			defer clearConfigEnvVars()

			_, err := config.Load(ctx)

			convey.Convey("Then validation fails", func() {
				convey.So(errors.Is(err, config.ErrInvalidConfig), convey.ShouldBeTrue)
			})
		})
	})
}

func clearConfigEnvVars() {
	for _, k := range []string{
		"LIVEWATCH_CONFIG",
		"LIVEWATCH_ADDR",
		"LIVEWATCH_THROTTLE_WINDOW_MS",
		"LIVEWATCH_SCORING_BASE_URL",
		"LIVEWATCH_DECISION_STORE",
		"LIVEWATCH_EVENT_LOG_CAPACITY",
	} {
		_ = os.Unsetenv(k)
	}
}
