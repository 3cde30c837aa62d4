package core

import (
	"fmt"
	"strings"
	"time"
)

// =============================================================================
// Result
// =============================================================================

// Result classifies a single statement attempt.
type Result int

// Result values.
const (
	ResultSuccess Result = iota
	ResultExpectedError
	ResultUnexpectedError
)

// String returns the name used in the outcome log.
func (r Result) String() string {
	switch r {
	case ResultSuccess:
		return "Success"
	case ResultExpectedError:
		return "ExpectedError"
	case ResultUnexpectedError:
		return "UnexpectedError"
	default:
		return fmt.Sprintf("Result(%d)", int(r))
	}
}

// MarshalText implements encoding.TextMarshaler.
func (r Result) MarshalText() ([]byte, error) {
	return []byte(r.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (r *Result) UnmarshalText(text []byte) error {
	switch strings.ToLower(string(text)) {
	case "success":
		*r = ResultSuccess
	case "expectederror":
		*r = ResultExpectedError
	case "unexpectederror":
		*r = ResultUnexpectedError
	default:
		return fmt.Errorf("unknown result %q", text)
	}
	return nil
}

// =============================================================================
// Outcome
// =============================================================================

// Outcome records one statement attempt. It is created once and never
// modified afterwards.
type Outcome struct {
	Stream    string        `json:"stream"`
	Worker    int           `json:"worker"`
	Index     int           `json:"index"`
	Statement string        `json:"statement"`
	Result    Result        `json:"result"`
	Kind      Kind          `json:"kind"`
	Message   string        `json:"message,omitempty"`
	Duration  time.Duration `json:"duration"`
}

// Failed reports whether the attempt produced an error of either class.
func (o Outcome) Failed() bool {
	return o.Result != ResultSuccess
}

// Unexpected reports whether the attempt counts against the run verdict.
func (o Outcome) Unexpected() bool {
	return o.Result == ResultUnexpectedError
}

// Success builds a successful outcome.
func Success(stream string, worker, index int, stmt string, d time.Duration) Outcome {
	return Outcome{Stream: stream, Worker: worker, Index: index, Statement: stmt, Result: ResultSuccess, Duration: d}
}

// Failure builds a failed outcome classified against set.
func Failure(set ClassificationSet, stream string, worker, index int, stmt string, kind Kind, msg string, d time.Duration) Outcome {
	return Outcome{
		Stream:    stream,
		Worker:    worker,
		Index:     index,
		Statement: stmt,
		Result:    set.Classify(kind),
		Kind:      kind,
		Message:   msg,
		Duration:  d,
	}
}
