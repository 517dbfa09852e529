// Command livewatch-sim runs a fake remote scoring/session service for local
// development of the monitor.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/okian/livewatch/internal/domain/scoring"
	"github.com/okian/livewatch/internal/simulator"
	"github.com/okian/livewatch/pkg/logger"
)

const (
	readHeaderTimeout = 5 * time.Second
	shutdownTimeout   = 10 * time.Second
)

type options struct {
	addr       string
	active     int
	completed  int
	tasks      int
	tick       time.Duration
	seed       int64
	logFormat  string
	minLatency time.Duration
	maxLatency time.Duration
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	opts := &options{}
	cmd := &cobra.Command{
		Use:           "livewatch-sim",
		Short:         "Fake remote scoring/session service",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run(cmd, opts)
		},
	}
	f := cmd.Flags()
	f.StringVar(&opts.addr, "addr", ":8000", "listen address")
	f.IntVar(&opts.active, "active", 3, "active sessions to seed")
	f.IntVar(&opts.completed, "completed", 2, "completed sessions to seed")
	f.IntVar(&opts.tasks, "tasks", 4, "tasks per assessment")
	f.DurationVar(&opts.tick, "tick", 2*time.Second, "how often active sessions advance")
	f.Int64Var(&opts.seed, "seed", time.Now().UnixNano(), "random seed")
	f.StringVar(&opts.logFormat, "log-format", logger.FormatText, "text or json")
	f.DurationVar(&opts.minLatency, "scoring-min-latency", 0, "minimum simulated scoring latency")
	f.DurationVar(&opts.maxLatency, "scoring-max-latency", 0, "maximum simulated scoring latency")
	return cmd
}

func run(cmd *cobra.Command, opts *options) error {
	if err := logger.InitWithWriter(os.Stdout, opts.logFormat); err != nil {
		fmt.Fprintln(cmd.ErrOrStderr(), "failed to initialize logging:", err)
		return err
	}
	log := logger.Named("simulator")

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	sim := simulator.New(
		simulator.WithSessions(opts.active, opts.completed),
		simulator.WithTasks(opts.tasks),
		simulator.WithTickInterval(opts.tick),
		simulator.WithSeed(opts.seed),
		simulator.WithScorer(scoring.NewInMemoryScorer(
			scoring.WithSkillWeightsFromConfig(map[string]float64{
				"problem_solving": 2,
				"code_quality":    1.5,
			}, 1),
			scoring.WithLatencyRange(opts.minLatency, opts.maxLatency),
		)),
		simulator.WithLogger(log),
	)
	go sim.Run(ctx)

	srv := &http.Server{
		Addr:              opts.addr,
		Handler:           sim.Handler(),
		ReadHeaderTimeout: readHeaderTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info(ctx, "simulator listening", logger.String("addr", opts.addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		log.Error(ctx, "HTTP server failed", logger.Error(err))
		return err
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	// hijacked websocket connections are not tracked by Shutdown
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Warn(ctx, "shutdown", logger.Error(err))
	}
	return nil
}
