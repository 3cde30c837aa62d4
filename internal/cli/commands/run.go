package commands

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/leapstack-labs/duckstress/internal/cli/config"
	"github.com/leapstack-labs/duckstress/internal/harness"
	"github.com/leapstack-labs/duckstress/internal/report"
	"github.com/leapstack-labs/duckstress/internal/resultstore"
	"github.com/leapstack-labs/duckstress/pkg/core"
)

// ErrUnexpected marks a run that completed but recorded at least one
// unexpected error.
var ErrUnexpected = errors.New("run recorded unexpected errors")

// NewRunCommand creates the run command.
func NewRunCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run statement streams concurrently against DuckDB",
		Long: `Attach the configured targets, run one worker per statement stream and
classify every statement as Success, ExpectedError or UnexpectedError.

Streams come from the *.sql files in --sql-dir, one stream per file, or are
generated with --generate. Workers run as goroutines sharing one database
(thread-shared), as goroutines with a database each (thread-independent) or
as child processes (process).

The command exits with status 1 when any unexpected error was recorded and
with status 2 when configuration, setup or teardown failed.`,
		Example: `  # Run every .sql file in ./sql in separate processes
  duckstress run --isolation process

  # Generate 5 streams of 1000 statements and keep them for replay
  duckstress run --generate --seed 42 --write-dir ./replay

  # Bound the run and persist every outcome
  duckstress run --generate --run-timeout 2m --results-db results.db`,
		RunE: runRun,
	}

	addTargetFlags(cmd)
	addGeneratorFlags(cmd)
	cmd.Flags().StringP("isolation", "i", config.DefaultIsolation, "Isolation mode (thread-shared|thread-independent|process)")
	cmd.Flags().StringSlice("expected-errors", []string{"io", "binder", "catalog"}, "Error kinds classified as expected")
	cmd.Flags().String("sql-dir", config.DefaultSQLDir, "Directory with one .sql file per stream")
	cmd.Flags().Bool("generate", false, "Generate statements instead of reading --sql-dir")
	cmd.Flags().Duration("statement-timeout", 0, "Interrupt statements running longer than this (0 = no limit)")
	cmd.Flags().Duration("run-timeout", 0, "Report unfinished workers as hung after this long (0 = wait forever)")
	cmd.Flags().String("results-db", "", "SQLite database to persist the run and its outcomes")
	cmd.Flags().String("metrics-file", "", "Write Prometheus metrics to this textfile after the run")
	cmd.Flags().StringP("output", "o", config.DefaultOutput, "Summary format (text|json)")
	cmd.Flags().Bool("errors-only", false, "Only log failed statements")
	cmd.Flags().Int("max-statement-length", config.DefaultMaxStatementLength, "Truncate logged statements to this many characters (0 = no limit)")

	_ = cmd.RegisterFlagCompletionFunc("isolation", func(_ *cobra.Command, _ []string, _ string) ([]string, cobra.ShellCompDirective) {
		return []string{"thread-shared", "thread-independent", "process"}, cobra.ShellCompDirectiveNoFileComp
	})
	_ = cmd.RegisterFlagCompletionFunc("expected-errors", func(_ *cobra.Command, _ []string, _ string) ([]string, cobra.ShellCompDirective) {
		return core.KindNames(), cobra.ShellCompDirectiveNoFileComp
	})
	_ = cmd.RegisterFlagCompletionFunc("output", func(_ *cobra.Command, _ []string, _ string) ([]string, cobra.ShellCompDirective) {
		return []string{"text", "json"}, cobra.ShellCompDirectiveNoFileComp
	})

	return cmd
}

func addTargetFlags(cmd *cobra.Command) {
	cmd.Flags().StringSlice("target", nil, "Target database as name=path, or name for an in-memory target (repeatable)")
}

func addGeneratorFlags(cmd *cobra.Command) {
	cmd.Flags().Int("streams", config.DefaultStreams, "Number of generated streams")
	cmd.Flags().Int("statements-per-stream", config.DefaultStatementsPerStream, "Statements per generated stream")
	cmd.Flags().Uint64("seed", 0, "Generator seed (0 = seed from the clock)")
	cmd.Flags().Int("string-length", 0, "Length of generated string values (0 = default)")
	cmd.Flags().String("write-dir", "", "Write generated streams to this directory")
}

func runRun(cmd *cobra.Command, _ []string) error {
	cc, err := NewCommandContext(cmd)
	if err != nil {
		return err
	}
	cfg := cc.Cfg
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	if err := cfg.ValidateDirectories(); err != nil {
		return err
	}
	isolation, _ := cfg.IsolationMode()
	classes, _ := cfg.ClassificationSet()

	ctx := cmd.Context()
	src, seed, err := statementSource(ctx, cfg, cc.Logger)
	if err != nil {
		return err
	}

	var (
		metrics  *report.Metrics
		registry *prometheus.Registry
	)
	if cfg.MetricsFile != "" {
		registry = prometheus.NewRegistry()
		if metrics, err = report.NewMetrics(registry); err != nil {
			return err
		}
	}

	opts := []report.CollectorOption{
		report.WithErrorsOnly(cfg.ErrorsOnly),
		report.WithMaxStatementLength(cfg.MaxStatementLength),
		report.WithMetrics(metrics),
	}
	jsonOutput := strings.EqualFold(cfg.OutputFormat, "json")
	if !jsonOutput {
		opts = append(opts, report.WithLog(cc.Out))
	}
	collector := report.NewCollector(opts...)

	var (
		store *resultstore.Store
		run   *resultstore.Run
	)
	if cfg.ResultsDB != "" {
		if store, err = resultstore.Open(ctx, cfg.ResultsDB); err != nil {
			return err
		}
		defer func() { _ = store.Close() }()
		run, err = store.CreateRun(ctx, resultstore.RunInfo{
			Isolation:     isolation,
			Streams:       src.Len(),
			ExpectedKinds: classes.Names(),
			Seed:          seed,
		})
		if err != nil {
			return err
		}
		cc.Logger.Info("recording run", "run_id", run.ID, "results_db", cfg.ResultsDB)
	}

	rep, runErr := harness.Execute(ctx, harness.RunConfig{
		Targets: cfg.Targets,
		Scheduler: harness.Config{
			Isolation:        isolation,
			Classes:          classes,
			StatementTimeout: cfg.StatementTimeout,
			RunTimeout:       cfg.RunTimeout,
		},
	}, src, collector, cc.Logger)

	if runErr != nil && !errors.Is(runErr, harness.ErrHang) {
		abortRun(ctx, store, run, runErr, cc)
		return runErr
	}
	if runErr != nil {
		cc.Logger.Warn("run timed out", "error", runErr)
	}
	if err := collector.Err(); err != nil {
		cc.Logger.Warn("outcome log stopped", "error", err)
	}

	summary := collector.Summary()
	summary.Hung = rep.Hung
	summary.Crashed = rep.Crashed
	summary.Elapsed = rep.Elapsed

	if jsonOutput {
		err = report.RenderJSON(cc.Out, summary)
	} else {
		err = report.RenderSummary(cc.Out, summary)
	}
	if err != nil {
		return fmt.Errorf("failed to render summary: %w", err)
	}

	if registry != nil {
		if err := report.WriteTextfile(cfg.MetricsFile, registry); err != nil {
			cc.Logger.Error("failed to write metrics", "path", cfg.MetricsFile, "error", err)
		}
	}

	if store != nil {
		status := resultstore.StatusFor(summary.Failed())
		errMsg := ""
		if rep.TeardownErr != nil {
			status = resultstore.RunStatusAborted
			errMsg = rep.TeardownErr.Error()
		}
		if err := saveRun(context.WithoutCancel(ctx), store, run.ID, collector.Outcomes(), status, summary, errMsg); err != nil {
			cc.Logger.Error("failed to persist run", "run_id", run.ID, "error", err)
		}
	}

	if rep.TeardownErr != nil {
		return rep.TeardownErr
	}
	if len(summary.Crashed) > 0 {
		return fmt.Errorf("%w: %d of %d statements, %d worker processes crashed",
			ErrUnexpected, summary.Unexpected, summary.Total(), len(summary.Crashed))
	}
	if summary.Failed() {
		return fmt.Errorf("%w: %d of %d statements", ErrUnexpected, summary.Unexpected, summary.Total())
	}
	return nil
}

func saveRun(ctx context.Context, store *resultstore.Store, runID string, outcomes []core.Outcome, status resultstore.RunStatus, s report.Summary, errMsg string) error {
	if err := store.SaveOutcomes(ctx, runID, outcomes); err != nil {
		return err
	}
	return store.CompleteRun(ctx, runID, status, resultstore.Counts{
		Success:    s.Success,
		Expected:   s.Expected,
		Unexpected: s.Unexpected,
	}, errMsg)
}

// abortRun marks a stored run as aborted. The context may already be
// cancelled, so the update runs detached from it.
func abortRun(ctx context.Context, store *resultstore.Store, run *resultstore.Run, cause error, cc *CommandContext) {
	if store == nil {
		return
	}
	if err := store.CompleteRun(context.WithoutCancel(ctx), run.ID, resultstore.RunStatusAborted, resultstore.Counts{}, cause.Error()); err != nil {
		cc.Logger.Error("failed to persist run", "run_id", run.ID, "error", err)
	}
}
