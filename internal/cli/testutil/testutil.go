// Package testutil provides test utilities for CLI testing.
package testutil

import (
	"bytes"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"testing"

	"github.com/spf13/cobra"
)

// Streams are the statement files written by SetupTestProject. Stream
// file1.sql only succeeds; file2.sql ends in a parser error.
var Streams = map[string]string{
	"file1.sql": `CREATE TABLE t1 (c1 VARCHAR);
INSERT INTO t1 VALUES ('it''s; fine');
SELECT * FROM t1;`,
	"file2.sql": `SELECT 42;
SELEC 1;`,
}

// SetupTestProject creates a temporary project with a duckstress.yaml and a
// sql directory holding Streams. The config declares one in-memory target so
// runs leave nothing on disk. extraConfig is appended to the config file.
func SetupTestProject(t *testing.T, extraConfig string) string {
	t.Helper()

	tmpDir := t.TempDir()
	sqlDir := filepath.Join(tmpDir, "sql")
	if err := os.MkdirAll(sqlDir, 0755); err != nil {
		t.Fatalf("failed to create directory %s: %v", sqlDir, err)
	}

	for name, content := range Streams {
		if err := os.WriteFile(filepath.Join(sqlDir, name), []byte(content), 0644); err != nil {
			t.Fatalf("failed to create %s: %v", name, err)
		}
	}

	cfg := "targets:\n  - name: mem\nsql_dir: sql\nisolation: thread-independent\n" + extraConfig
	if err := os.WriteFile(filepath.Join(tmpDir, "duckstress.yaml"), []byte(cfg), 0644); err != nil {
		t.Fatalf("failed to create duckstress.yaml: %v", err)
	}

	return tmpDir
}

// Result is the captured output of one command execution.
type Result struct {
	Out    string
	ErrOut string
	Err    error
}

// ExecuteCommand runs cmd with args and captures stdout and stderr.
func ExecuteCommand(t *testing.T, cmd *cobra.Command, args ...string) Result {
	t.Helper()

	out := &bytes.Buffer{}
	errOut := &bytes.Buffer{}
	cmd.SetOut(out)
	cmd.SetErr(errOut)
	cmd.SetArgs(args)

	err := cmd.Execute()
	return Result{Out: out.String(), ErrOut: errOut.String(), Err: err}
}

// ansiPattern matches ANSI escape codes.
var ansiPattern = regexp.MustCompile(`\x1b\[[0-9;]*[a-zA-Z]`)

// AssertNoANSI checks that a string contains no ANSI escape codes.
func AssertNoANSI(t *testing.T, s string) {
	t.Helper()
	if ansiPattern.MatchString(s) {
		t.Errorf("string contains ANSI escape codes: %q", s)
	}
}

// OutcomeLines returns the lines of s that are outcome log entries.
func OutcomeLines(s string) []string {
	var lines []string
	for _, line := range strings.Split(s, "\n") {
		if strings.Contains(line, " -> ") {
			lines = append(lines, line)
		}
	}
	return lines
}
