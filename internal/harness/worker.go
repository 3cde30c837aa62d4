package harness

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"time"

	"github.com/leapstack-labs/duckstress/internal/duckdb"
	"github.com/leapstack-labs/duckstress/pkg/core"
)

// ErrHang is the cancellation cause used when a run exceeds its timeout.
var ErrHang = errors.New("run timeout exceeded")

// Worker executes one stream sequentially on one connection.
type Worker struct {
	// ID numbers the worker within its run.
	ID int

	// Stream is executed strictly in order.
	Stream core.Stream

	// Classes decides which error kinds are expected.
	Classes core.ClassificationSet

	// StatementTimeout bounds each statement. Zero means no bound.
	StatementTimeout time.Duration

	// Sink, if set, receives each outcome as soon as it is produced.
	Sink Sink

	// Logger defaults to a discard logger.
	Logger *slog.Logger
}

// Run acquires a connection from factory and executes every statement of the
// stream, returning one outcome per attempted statement in stream order.
// Statement errors are classified and execution continues. If no connection
// can be acquired, Run returns a single acquisition outcome at index 0.
//
// Run stops early only when ctx is cancelled: the statement in flight and,
// if none is in flight, the next statement get one hang (or interrupt)
// outcome and no further statements are attempted.
func (w *Worker) Run(ctx context.Context, factory ConnFactory) []core.Outcome {
	logger := w.logger()
	outcomes := make([]core.Outcome, 0, w.Stream.Len())
	emit := func(o core.Outcome) {
		outcomes = append(outcomes, o)
		if w.Sink != nil {
			w.Sink.Record(o)
		}
	}

	start := time.Now()
	conn, err := factory.Acquire(ctx)
	if err != nil {
		logger.Warn("connection acquisition failed", "error", err)
		emit(w.failure(0, "", core.KindAcquisition, err, time.Since(start)))
		return outcomes
	}
	defer func() {
		if err := conn.Close(); err != nil {
			logger.Warn("failed to close connection", "error", err)
		}
	}()

	logger.Debug("worker started", "statements", w.Stream.Len())
	for i, stmt := range w.Stream.Statements {
		if ctx.Err() != nil {
			emit(w.cancelled(ctx, i, stmt, 0))
			break
		}
		o := w.execute(ctx, conn.Conn, i, stmt)
		emit(o)
		if ctx.Err() != nil && (o.Kind == core.KindHang || o.Kind == core.KindInterrupt) {
			break
		}
	}
	logger.Debug("worker finished", "outcomes", len(outcomes), "elapsed", time.Since(start))
	return outcomes
}

// execute runs one statement and classifies the result.
func (w *Worker) execute(ctx context.Context, conn queryer, index int, stmt string) core.Outcome {
	stmtCtx := ctx
	if w.StatementTimeout > 0 {
		var cancel context.CancelFunc
		stmtCtx, cancel = context.WithTimeout(ctx, w.StatementTimeout)
		defer cancel()
	}

	start := time.Now()
	err := materialize(stmtCtx, conn, stmt)
	elapsed := time.Since(start)
	if err == nil {
		return core.Success(w.Stream.Label, w.ID, index, stmt, elapsed)
	}

	if ctx.Err() != nil {
		return w.cancelled(ctx, index, stmt, elapsed)
	}
	kind := duckdb.KindOf(err)
	if errors.Is(stmtCtx.Err(), context.DeadlineExceeded) {
		kind = core.KindTimeout
	}
	return w.failure(index, stmt, kind, err, elapsed)
}

// cancelled builds the outcome for a statement cut short by run cancellation.
func (w *Worker) cancelled(ctx context.Context, index int, stmt string, elapsed time.Duration) core.Outcome {
	cause := context.Cause(ctx)
	kind := core.KindInterrupt
	if errors.Is(cause, ErrHang) {
		kind = core.KindHang
	}
	return w.failure(index, stmt, kind, cause, elapsed)
}

func (w *Worker) failure(index int, stmt string, kind core.Kind, err error, elapsed time.Duration) core.Outcome {
	return core.Failure(w.Classes, w.Stream.Label, w.ID, index, stmt, kind, duckdb.Message(err), elapsed)
}

func (w *Worker) logger() *slog.Logger {
	l := w.Logger
	if l == nil {
		l = slog.New(slog.DiscardHandler)
	}
	return l.With("worker", w.ID, "stream", w.Stream.Label)
}

type queryer interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

// materialize executes stmt and reads every result row, so an error raised
// while producing rows is attributed to this statement and not a later one.
func materialize(ctx context.Context, q queryer, stmt string) error {
	rows, err := q.QueryContext(ctx, stmt)
	if err != nil {
		return err
	}
	defer func() { _ = rows.Close() }()

	cols, err := rows.Columns()
	if err != nil {
		return err
	}
	values := make([]any, len(cols))
	dest := make([]any, len(cols))
	for i := range values {
		dest[i] = &values[i]
	}
	for rows.Next() {
		if err := rows.Scan(dest...); err != nil {
			return err
		}
	}
	if err := rows.Err(); err != nil {
		return err
	}
	return rows.Close()
}
