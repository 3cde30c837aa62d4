package commands

import (
	"fmt"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/leapstack-labs/duckstress/internal/source"
	"github.com/leapstack-labs/duckstress/pkg/core"
)

// NewGenerateCommand creates the generate command.
func NewGenerateCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Write random statement streams to files",
		Long: `Generate random statement streams against the configured targets and write
them as file1.sql .. fileN.sql, one statement per line.

The files can be replayed with "duckstress run --sql-dir". Without --write-dir
the files are written to the configured sql_dir.`,
		Example: `  # Five files of 1000 statements in ./sql
  duckstress generate

  # A reproducible, smaller set
  duckstress generate --streams 2 --statements-per-stream 50 --seed 7 --write-dir ./replay`,
		RunE: runGenerate,
	}

	addTargetFlags(cmd)
	addGeneratorFlags(cmd)
	cmd.Flags().String("sql-dir", "", "Directory to write to when --write-dir is not set")

	return cmd
}

func runGenerate(cmd *cobra.Command, _ []string) error {
	cc, err := NewCommandContext(cmd)
	if err != nil {
		return err
	}
	cfg := *cc.Cfg
	if err := cfg.ValidateGenerator(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	dir := cfg.WriteDir
	if dir == "" {
		dir = cfg.SQLDir
	}
	if dir == "" {
		return fmt.Errorf("nowhere to write: set --write-dir or sql_dir")
	}
	cfg.Generate = true
	cfg.WriteDir = dir

	src, seed, err := statementSource(cmd.Context(), &cfg, cc.Logger)
	if err != nil {
		return err
	}
	streams, err := source.Collect(cmd.Context(), src)
	if err != nil {
		return err
	}

	_, err = fmt.Fprintf(cc.Out, "Wrote %s statements in %d files to %s (seed %d)\n",
		humanize.Comma(int64(core.CountStatements(streams))), len(streams), dir, *seed)
	return err
}
