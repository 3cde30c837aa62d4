package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leapstack-labs/duckstress/internal/cli/commands"
	"github.com/leapstack-labs/duckstress/internal/cli/testutil"
	"github.com/leapstack-labs/duckstress/internal/resultstore"
	"github.com/leapstack-labs/duckstress/internal/target"
)

func TestExitCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{name: "success", err: nil, want: ExitOK},
		{name: "unexpected errors", err: fmt.Errorf("%w: 1 of 5 statements", commands.ErrUnexpected), want: ExitUnexpected},
		{name: "setup failure", err: &target.SetupError{Reason: target.PathCollision, Err: errors.New("exists")}, want: ExitFailure},
		{name: "config failure", err: errors.New("invalid configuration"), want: ExitFailure},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ExitCode(tt.err))
		})
	}
}

func TestVersionCommand(t *testing.T) {
	t.Chdir(t.TempDir())

	res := testutil.ExecuteCommand(t, NewRootCmd(), "version")
	require.NoError(t, res.Err)
	assert.Contains(t, res.Out, "duckstress v"+Version)
}

func TestHelpCommand(t *testing.T) {
	res := testutil.ExecuteCommand(t, NewRootCmd(), "--help")
	require.NoError(t, res.Err)

	for _, expected := range []string{"run", "generate", "runs", "completion"} {
		assert.Contains(t, res.Out, expected)
	}
	assert.NotContains(t, res.Out, "worker", "the worker entry point is hidden")
	testutil.AssertNoANSI(t, res.Out)
}

func TestCompletionCommand(t *testing.T) {
	res := testutil.ExecuteCommand(t, NewRootCmd(), "completion", "bash")
	require.NoError(t, res.Err)
	assert.Contains(t, res.Out, "duckstress")
}

func TestRunCommand_FileStreams(t *testing.T) {
	t.Chdir(testutil.SetupTestProject(t, ""))

	res := testutil.ExecuteCommand(t, NewRootCmd(), "run")
	require.ErrorIs(t, res.Err, commands.ErrUnexpected)
	assert.Equal(t, ExitUnexpected, ExitCode(res.Err))

	lines := testutil.OutcomeLines(res.Out)
	assert.Len(t, lines, 5, "one log line per attempted statement")
	assert.Contains(t, lines, "file1.sql - 1 - INSERT INTO t1 VALUES ('it''s; fine') -> Success")
	assert.Contains(t, res.Out, "file2.sql - 1 - SELEC 1 -> UnexpectedError(parser, ")
	assert.Contains(t, res.Out, "verdict: failed (1 unexpected of 5 statements)")
}

func TestRunCommand_ExpectedParserErrorsPass(t *testing.T) {
	t.Chdir(testutil.SetupTestProject(t, ""))

	res := testutil.ExecuteCommand(t, NewRootCmd(), "run", "--expected-errors", "io,binder,catalog,parser", "--errors-only")
	require.NoError(t, res.Err)
	assert.Equal(t, ExitOK, ExitCode(res.Err))

	lines := testutil.OutcomeLines(res.Out)
	assert.Equal(t, []string{"file2.sql - 1 - SELEC 1 -> ExpectedError(parser)"}, lines)
	assert.Contains(t, res.Out, "verdict: passed")
}

func TestRunCommand_JSONOutput(t *testing.T) {
	t.Chdir(testutil.SetupTestProject(t, "output: json\n"))

	res := testutil.ExecuteCommand(t, NewRootCmd(), "run", "--isolation", "thread-shared")
	require.ErrorIs(t, res.Err, commands.ErrUnexpected)

	var doc struct {
		Verdict    string `json:"verdict"`
		Total      int    `json:"total"`
		Success    int    `json:"success"`
		Unexpected int    `json:"unexpected"`
	}
	require.NoError(t, json.Unmarshal([]byte(res.Out), &doc), "stdout holds only the summary document")
	assert.Equal(t, "failed", doc.Verdict)
	assert.Equal(t, 5, doc.Total)
	assert.Equal(t, 4, doc.Success)
	assert.Equal(t, 1, doc.Unexpected)
}

func TestRunCommand_PersistsResultsAndMetrics(t *testing.T) {
	dir := testutil.SetupTestProject(t, "results_db: results.db\nmetrics_file: duckstress.prom\n")
	t.Chdir(dir)

	res := testutil.ExecuteCommand(t, NewRootCmd(), "run")
	require.ErrorIs(t, res.Err, commands.ErrUnexpected)

	metrics, err := os.ReadFile(filepath.Join(dir, "duckstress.prom"))
	require.NoError(t, err)
	assert.Contains(t, string(metrics), `duckstress_statements_total{kind="parser",result="UnexpectedError"} 1`)

	ctx := context.Background()
	store, err := resultstore.Open(ctx, filepath.Join(dir, "results.db"))
	require.NoError(t, err)
	defer func() { _ = store.Close() }()

	runs, err := store.ListRuns(ctx, 0)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, resultstore.RunStatusFailed, runs[0].Status)
	assert.Equal(t, 4, runs[0].Success)
	assert.Equal(t, 1, runs[0].Unexpected)
	assert.Equal(t, []string{"io", "binder", "catalog"}, runs[0].ExpectedKinds)

	outcomes, err := store.ListOutcomes(ctx, runs[0].ID, false)
	require.NoError(t, err)
	assert.Len(t, outcomes, 5)

	listed := testutil.ExecuteCommand(t, NewRootCmd(), "runs", runs[0].ID)
	require.NoError(t, listed.Err)
	assert.Contains(t, listed.Out, "SELEC 1 -> UnexpectedError(parser")
}

func TestRunCommand_GeneratedInProcesses(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)

	res := testutil.ExecuteCommand(t, NewRootCmd(), "run",
		"--generate",
		"--isolation", "process",
		"--target", "db1=db1.duckdb",
		"--streams", "2",
		"--statements-per-stream", "20",
		"--string-length", "8",
		"--seed", "3",
		"--write-dir", "replay",
		"--run-timeout", "2m",
		"--output", "json",
	)
	if res.Err != nil {
		require.ErrorIs(t, res.Err, commands.ErrUnexpected, "stderr: %s", res.ErrOut)
	}

	var doc struct {
		Total int      `json:"total"`
		Hung  []string `json:"hung"`
	}
	require.NoError(t, json.Unmarshal([]byte(res.Out), &doc))
	assert.Equal(t, 40, doc.Total, "every generated statement is attempted exactly once")
	assert.Empty(t, doc.Hung)

	_, err := os.Stat(filepath.Join(dir, "db1.duckdb"))
	assert.True(t, os.IsNotExist(err), "target files are removed after the run")
	replay, err := filepath.Glob(filepath.Join(dir, "replay", "*.sql"))
	require.NoError(t, err)
	assert.Len(t, replay, 2)
}

func TestRunCommand_Failures(t *testing.T) {
	tests := []struct {
		name      string
		extra     string
		args      []string
		prepare   func(t *testing.T, dir string)
		errSubstr string
	}{
		{
			name:      "unknown isolation",
			args:      []string{"--isolation", "fork"},
			errSubstr: "unknown isolation mode",
		},
		{
			name:      "unknown error kind",
			args:      []string{"--expected-errors", "gremlins"},
			errSubstr: "expected_errors",
		},
		{
			name:      "missing statement directory",
			args:      []string{"--sql-dir", "nowhere"},
			errSubstr: "statement directory does not exist",
		},
		{
			name:      "bad log level",
			args:      []string{"--log-level", "loud"},
			errSubstr: "invalid log_level",
		},
		{
			name:  "target file already exists",
			extra: "",
			args:  []string{"--target", "db1=db1.duckdb"},
			prepare: func(t *testing.T, dir string) {
				require.NoError(t, os.WriteFile(filepath.Join(dir, "db1.duckdb"), []byte("keep"), 0600))
			},
			errSubstr: "db1.duckdb",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := testutil.SetupTestProject(t, tt.extra)
			t.Chdir(dir)
			if tt.prepare != nil {
				tt.prepare(t, dir)
			}

			res := testutil.ExecuteCommand(t, NewRootCmd(), append([]string{"run"}, tt.args...)...)
			require.Error(t, res.Err)
			assert.Equal(t, ExitFailure, ExitCode(res.Err))
			assert.Contains(t, res.Err.Error(), tt.errSubstr)
			assert.Empty(t, testutil.OutcomeLines(res.Out), "no worker ran")
		})
	}
}

func TestRunCommand_SetupFailureKeepsExistingFile(t *testing.T) {
	dir := testutil.SetupTestProject(t, "")
	t.Chdir(dir)
	path := filepath.Join(dir, "db1.duckdb")
	require.NoError(t, os.WriteFile(path, []byte("keep"), 0600))

	res := testutil.ExecuteCommand(t, NewRootCmd(), "run", "--target", "db1=db1.duckdb")
	require.ErrorIs(t, res.Err, target.ErrPathCollision)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "keep", string(data))
}
