package harness

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/leapstack-labs/duckstress/internal/source"
	"github.com/leapstack-labs/duckstress/internal/target"
	"github.com/leapstack-labs/duckstress/pkg/core"
)

// RunConfig describes one complete run.
type RunConfig struct {
	// Targets are prepared before any worker starts and removed afterwards.
	Targets []core.Target

	// Scheduler configures how the streams are executed. Its Sink and Logger
	// are overridden by the arguments of Execute.
	Scheduler Config
}

// Report is the result of a complete run.
type Report struct {
	Streams     []core.Stream
	Outcomes    []core.Outcome
	Hung        []string
	Crashed     []string
	Elapsed     time.Duration
	TeardownErr error
}

// Execute prepares the targets, runs one worker per stream of src and tears
// the targets down again on every exit path.
//
// A setup failure is returned before any worker starts. ErrHang is returned
// together with the partial report when the run timeout fired. A teardown
// failure does not fail Execute; it is reported in Report.TeardownErr.
func Execute(ctx context.Context, cfg RunConfig, src source.Source, sink Sink, logger *slog.Logger) (report *Report, err error) {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	registry, err := target.NewRegistry(cfg.Targets, target.WithLogger(logger))
	if err != nil {
		return nil, err
	}
	if err := registry.Setup(ctx); err != nil {
		return nil, err
	}
	report = &Report{}
	defer func() {
		if terr := registry.Teardown(); terr != nil {
			logger.Error("teardown failed", "error", terr)
			report.TeardownErr = terr
		}
	}()

	streams, err := source.Collect(ctx, src)
	if err != nil {
		return report, fmt.Errorf("failed to obtain streams: %w", err)
	}
	report.Streams = streams

	sched := cfg.Scheduler
	sched.Sink = sink
	sched.Logger = logger
	result, err := NewScheduler(sched).Run(ctx, streams)
	if result != nil {
		report.Outcomes = result.Outcomes
		report.Hung = result.Hung
		report.Crashed = result.Crashed
		report.Elapsed = result.Elapsed
	}
	return report, err
}
