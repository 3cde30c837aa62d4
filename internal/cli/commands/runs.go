package commands

import (
	"errors"
	"fmt"
	"io"

	"github.com/dustin/go-humanize"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/leapstack-labs/duckstress/internal/report"
	"github.com/leapstack-labs/duckstress/internal/resultstore"
)

// RunsOptions holds options for the runs command.
type RunsOptions struct {
	Limit int
	All   bool
}

// NewRunsCommand creates the runs command.
func NewRunsCommand() *cobra.Command {
	opts := &RunsOptions{}

	cmd := &cobra.Command{
		Use:   "runs [run-id]",
		Short: "Inspect runs stored in the results database",
		Long: `Without arguments, list the runs stored in the results database, most recent
first. With a run id, show that run and the outcome log of its unexpected
errors, or of every statement with --all.`,
		Example: `  duckstress runs --results-db results.db
  duckstress runs --results-db results.db 0b6f1c0e-8a4e-4f55-9b7a-1f0c2f3d4e5a --all`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRuns(cmd, args, opts)
		},
	}

	cmd.Flags().String("results-db", "", "SQLite database written by run --results-db")
	cmd.Flags().IntVarP(&opts.Limit, "limit", "n", 20, "Maximum number of runs to list (0 = all)")
	cmd.Flags().BoolVar(&opts.All, "all", false, "Show every outcome of the run, not only unexpected errors")

	return cmd
}

func runRuns(cmd *cobra.Command, args []string, opts *RunsOptions) error {
	cc, err := NewCommandContext(cmd)
	if err != nil {
		return err
	}
	if cc.Cfg.ResultsDB == "" {
		return errors.New("no results database configured: set --results-db or results_db")
	}

	ctx := cmd.Context()
	store, err := resultstore.Open(ctx, cc.Cfg.ResultsDB)
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	if len(args) == 0 {
		runs, err := store.ListRuns(ctx, opts.Limit)
		if err != nil {
			return err
		}
		renderRuns(cc.Out, runs)
		return nil
	}

	run, err := store.GetRun(ctx, args[0])
	if err != nil {
		return err
	}
	outcomes, err := store.ListOutcomes(ctx, run.ID, !opts.All)
	if err != nil {
		return err
	}

	renderRuns(cc.Out, []*resultstore.Run{run})
	if run.Seed != nil {
		_, _ = fmt.Fprintf(cc.Out, "seed: %d\n", *run.Seed)
	}
	if run.Error != "" {
		_, _ = fmt.Fprintf(cc.Out, "error: %s\n", run.Error)
	}
	for _, o := range outcomes {
		if _, err := fmt.Fprintln(cc.Out, report.FormatOutcome(o)); err != nil {
			return err
		}
	}
	return nil
}

func renderRuns(w io.Writer, runs []*resultstore.Run) {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleLight)
	t.AppendHeader(table.Row{"Run", "Started", "Isolation", "Streams", "Status", "Success", "Expected", "Unexpected"})
	for _, r := range runs {
		t.AppendRow(table.Row{
			r.ID,
			humanize.Time(r.StartedAt),
			r.Isolation.String(),
			r.Streams,
			string(r.Status),
			humanize.Comma(int64(r.Success)),
			humanize.Comma(int64(r.Expected)),
			humanize.Comma(int64(r.Unexpected)),
		})
	}
	t.Render()
}
