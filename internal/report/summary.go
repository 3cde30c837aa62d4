// Package report aggregates statement outcomes into summaries, outcome logs,
// metrics and rendered tables.
package report

import (
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/leapstack-labs/duckstress/pkg/core"
)

// Summary aggregates the outcomes of a run.
type Summary struct {
	Success    int `json:"success"`
	Expected   int `json:"expected"`
	Unexpected int `json:"unexpected"`

	// ByKind counts failed attempts per error kind.
	ByKind map[core.Kind]KindCount `json:"by_kind"`

	// Detail holds one formatted line per outcome, in recorded order.
	Detail []string `json:"detail,omitempty"`

	// Hung lists streams that did not finish before the run timeout.
	Hung []string `json:"hung,omitempty"`

	// Crashed lists streams whose worker process exited abnormally after
	// its last statement.
	Crashed []string `json:"crashed,omitempty"`

	// Elapsed is the wall-clock duration of the run, if known.
	Elapsed time.Duration `json:"elapsed"`
}

// KindCount splits the failures of one kind by result.
type KindCount struct {
	Expected   int `json:"expected"`
	Unexpected int `json:"unexpected"`
}

// Summarize counts outcomes by result and kind.
func Summarize(outcomes []core.Outcome) Summary {
	s := Summary{
		ByKind: make(map[core.Kind]KindCount),
		Detail: make([]string, 0, len(outcomes)),
	}
	for _, o := range outcomes {
		kc := s.ByKind[o.Kind]
		switch o.Result {
		case core.ResultSuccess:
			s.Success++
		case core.ResultExpectedError:
			s.Expected++
			kc.Expected++
		default:
			s.Unexpected++
			kc.Unexpected++
		}
		if o.Failed() {
			s.ByKind[o.Kind] = kc
		}
		s.Detail = append(s.Detail, FormatOutcome(o))
	}
	return s
}

// Total returns the number of attempted statements.
func (s Summary) Total() int {
	return s.Success + s.Expected + s.Unexpected
}

// Failed reports whether the run recorded any unexpected error or a worker
// process crashed after its last statement.
func (s Summary) Failed() bool {
	return s.Unexpected > 0 || len(s.Crashed) > 0
}

// Verdict returns "passed" or "failed".
func (s Summary) Verdict() string {
	if s.Failed() {
		return "failed"
	}
	return "passed"
}

// FormatOutcome renders o as one outcome log line:
//
//	{label} - {index} - {statement} -> Success
//	{label} - {index} - {statement} -> ExpectedError(kind)
//	{label} - {index} - {statement} -> UnexpectedError(kind, message)
func FormatOutcome(o core.Outcome) string {
	return Formatter{}.Format(o)
}

// Formatter renders outcome log lines.
type Formatter struct {
	// MaxStatementLength truncates statements to this many characters.
	// Zero keeps statements whole.
	MaxStatementLength int
}

// Format renders o as one outcome log line.
func (f Formatter) Format(o core.Outcome) string {
	stmt := f.truncate(o.Statement)
	switch o.Result {
	case core.ResultSuccess:
		return fmt.Sprintf("%s - %d - %s -> %s", o.Stream, o.Index, stmt, o.Result)
	case core.ResultExpectedError:
		return fmt.Sprintf("%s - %d - %s -> %s(%s)", o.Stream, o.Index, stmt, o.Result, o.Kind)
	default:
		return fmt.Sprintf("%s - %d - %s -> %s(%s, %s)", o.Stream, o.Index, stmt, o.Result, o.Kind, o.Message)
	}
}

func (f Formatter) truncate(stmt string) string {
	if f.MaxStatementLength <= 0 || utf8.RuneCountInString(stmt) <= f.MaxStatementLength {
		return stmt
	}
	var b strings.Builder
	n := 0
	for _, r := range stmt {
		if n == f.MaxStatementLength {
			break
		}
		b.WriteRune(r)
		n++
	}
	b.WriteString("...")
	return b.String()
}
