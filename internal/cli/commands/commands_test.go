// Package commands_test provides tests for CLI command creation.
package commands

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leapstack-labs/duckstress/internal/cli/config"
	"github.com/leapstack-labs/duckstress/internal/resultstore"
	"github.com/leapstack-labs/duckstress/internal/source"
	"github.com/leapstack-labs/duckstress/internal/testutil"
	"github.com/leapstack-labs/duckstress/pkg/core"
)

func TestNewRunCommand(t *testing.T) {
	cmd := NewRunCommand()

	assert.Equal(t, "run", cmd.Use)
	assert.NotEmpty(t, cmd.Short, "Short should not be empty")
	assert.NotEmpty(t, cmd.Example, "Example should not be empty")

	flags := []string{
		"target", "streams", "statements-per-stream", "seed", "string-length", "write-dir",
		"isolation", "expected-errors", "sql-dir", "generate", "statement-timeout", "run-timeout",
		"results-db", "metrics-file", "output", "errors-only", "max-statement-length",
	}
	for _, flag := range flags {
		assert.NotNil(t, cmd.Flags().Lookup(flag), "flag %q should exist", flag)
	}
	assert.Equal(t, "i", cmd.Flags().Lookup("isolation").Shorthand)
}

func TestNewGenerateCommand(t *testing.T) {
	cmd := NewGenerateCommand()

	assert.Equal(t, "generate", cmd.Use)
	assert.NotEmpty(t, cmd.Short, "Short should not be empty")
	for _, flag := range []string{"target", "streams", "statements-per-stream", "seed", "write-dir", "sql-dir"} {
		assert.NotNil(t, cmd.Flags().Lookup(flag), "flag %q should exist", flag)
	}
}

func TestNewWorkerCommand(t *testing.T) {
	cmd := NewWorkerCommand()

	assert.Equal(t, "worker", cmd.Use)
	assert.True(t, cmd.Hidden, "worker is an internal entry point")
}

func TestNewRunsCommand(t *testing.T) {
	cmd := NewRunsCommand()

	assert.Equal(t, "runs [run-id]", cmd.Use)
	for _, flag := range []string{"results-db", "limit", "all"} {
		assert.NotNil(t, cmd.Flags().Lookup(flag), "flag %q should exist", flag)
	}
}

func TestNewCommandContext_NoConfig(t *testing.T) {
	cmd := &cobra.Command{}
	cmd.SetContext(context.Background())

	_, err := NewCommandContext(cmd)
	assert.ErrorIs(t, err, ErrNoConfig)
}

// execute runs cmd with cfg stored on its context, the way the root command
// prepares every subcommand.
func execute(t *testing.T, cmd *cobra.Command, cfg *config.Config, args ...string) (string, error) {
	t.Helper()
	ctx := config.WithConfig(context.Background(), cfg)
	ctx = config.WithLogger(ctx, testutil.NewTestLogger(t))

	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(ctx)
	return out.String(), err
}

func TestStatementSource_Files(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "b.sql"), []byte("SELECT 2;"), 0600))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.sql"), []byte("SELECT 1; SELECT 'x;y'"), 0600))

	src, seed, err := statementSource(context.Background(), &config.Config{SQLDir: dir}, testutil.NewTestLogger(t))
	require.NoError(t, err)
	assert.Nil(t, seed, "file streams have no seed")
	assert.True(t, src.Restartable())

	streams, err := source.Collect(context.Background(), src)
	require.NoError(t, err)
	require.Len(t, streams, 2)
	assert.Equal(t, core.Stream{Label: "a.sql", Statements: []string{"SELECT 1", "SELECT 'x;y'"}}, streams[0])
}

func TestStatementSource_EmptyDir(t *testing.T) {
	_, _, err := statementSource(context.Background(), &config.Config{SQLDir: t.TempDir()}, testutil.NewTestLogger(t))
	assert.Error(t, err)
}

func TestStatementSource_Generated(t *testing.T) {
	writeDir := filepath.Join(t.TempDir(), "replay")
	cfg := &config.Config{
		Targets:             config.DefaultTargets(),
		Generate:            true,
		Streams:             3,
		StatementsPerStream: 25,
		Seed:                42,
		StringLength:        8,
		WriteDir:            writeDir,
	}

	src, seed, err := statementSource(context.Background(), cfg, testutil.NewTestLogger(t))
	require.NoError(t, err)
	require.NotNil(t, seed)
	assert.Equal(t, uint64(42), *seed)

	streams, err := source.Collect(context.Background(), src)
	require.NoError(t, err)
	assert.Equal(t, 75, core.CountStatements(streams))

	replay, err := source.GlobDir(writeDir)
	require.NoError(t, err)
	fromDisk, err := source.Collect(context.Background(), replay)
	require.NoError(t, err)
	require.Len(t, fromDisk, len(streams))
	for i, s := range streams {
		assert.Equal(t, s.Label, fromDisk[i].Label)
		require.Len(t, fromDisk[i].Statements, s.Len())
		for j, stmt := range s.Statements {
			assert.Equal(t, strings.TrimSuffix(stmt, ";"), fromDisk[i].Statements[j], "written files replay the generated streams")
		}
	}

	again, _, err := statementSource(context.Background(), &config.Config{
		Targets: cfg.Targets, Generate: true, Streams: 3, StatementsPerStream: 25, Seed: 42, StringLength: 8,
	}, testutil.NewTestLogger(t))
	require.NoError(t, err)
	regenerated, err := source.Collect(context.Background(), again)
	require.NoError(t, err)
	assert.Equal(t, streams, regenerated, "a seed reproduces the streams")
}

func TestStatementSource_ClockSeed(t *testing.T) {
	cfg := &config.Config{Targets: config.DefaultTargets(), Generate: true, Streams: 1, StatementsPerStream: 1}

	_, seed, err := statementSource(context.Background(), cfg, testutil.NewTestLogger(t))
	require.NoError(t, err)
	require.NotNil(t, seed)
	assert.NotZero(t, *seed, "the effective seed is reported so the run can be replayed")
}

func TestGenerateCommand(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "sql")
	cfg := &config.Config{
		Targets:             config.DefaultTargets(),
		Streams:             2,
		StatementsPerStream: 1500,
		Seed:                7,
		StringLength:        4,
		SQLDir:              dir,
	}

	out, err := execute(t, NewGenerateCommand(), cfg)
	require.NoError(t, err)
	assert.Contains(t, out, "Wrote 3,000 statements in 2 files to "+dir+" (seed 7)")

	for _, name := range []string{"file1.sql", "file2.sql"} {
		_, err := os.Stat(filepath.Join(dir, name))
		assert.NoError(t, err, "%s should exist", name)
	}
	assert.False(t, cfg.Generate, "the loaded config is left untouched")
}

func TestGenerateCommand_InvalidConfig(t *testing.T) {
	cfg := &config.Config{Streams: 0, StatementsPerStream: 10, SQLDir: t.TempDir()}

	_, err := execute(t, NewGenerateCommand(), cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid configuration")
}

func TestRunsCommand(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "results.db")
	store, err := resultstore.Open(ctx, path)
	require.NoError(t, err)
	classes := core.DefaultClassificationSet()
	run, err := store.CreateRun(ctx, resultstore.RunInfo{Isolation: core.IsolationProcess, Streams: 2})
	require.NoError(t, err)
	require.NoError(t, store.SaveOutcomes(ctx, run.ID, []core.Outcome{
		core.Success("file1.sql", 0, 0, "SELECT 1", 0),
		core.Failure(classes, "file2.sql", 1, 0, "SELEC 1", core.KindParser, "Parser Error: syntax error", 0),
	}))
	require.NoError(t, store.CompleteRun(ctx, run.ID, resultstore.RunStatusFailed, resultstore.Counts{Success: 1, Unexpected: 1}, ""))
	require.NoError(t, store.Close())

	cfg := &config.Config{ResultsDB: path}

	t.Run("list", func(t *testing.T) {
		out, err := execute(t, NewRunsCommand(), cfg)
		require.NoError(t, err)
		assert.Contains(t, out, run.ID)
		assert.Contains(t, out, "process")
		assert.Contains(t, out, "failed")
	})

	t.Run("unexpected outcomes of one run", func(t *testing.T) {
		out, err := execute(t, NewRunsCommand(), cfg, run.ID)
		require.NoError(t, err)
		assert.Contains(t, out, "file2.sql - 0 - SELEC 1 -> UnexpectedError(parser, Parser Error: syntax error)")
		assert.NotContains(t, out, "-> Success")
	})

	t.Run("every outcome", func(t *testing.T) {
		out, err := execute(t, NewRunsCommand(), cfg, run.ID, "--all")
		require.NoError(t, err)
		assert.Equal(t, 2, strings.Count(out, " -> "))
	})

	t.Run("unknown run", func(t *testing.T) {
		_, err := execute(t, NewRunsCommand(), cfg, "missing")
		assert.ErrorIs(t, err, resultstore.ErrRunNotFound)
	})

	t.Run("no database", func(t *testing.T) {
		_, err := execute(t, NewRunsCommand(), &config.Config{})
		assert.Error(t, err)
	})
}
