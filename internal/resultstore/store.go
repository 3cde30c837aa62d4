// Package resultstore persists runs and their outcomes in SQLite so failing
// runs can be inspected after the fact.
package resultstore

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/pressly/goose/v3"
	_ "modernc.org/sqlite"

	"github.com/leapstack-labs/duckstress/pkg/core"
)

//go:embed migrations/*.sql
var migrations embed.FS

// ErrRunNotFound is returned when a run id is unknown.
var ErrRunNotFound = errors.New("run not found")

// RunStatus is the lifecycle state of a stored run.
type RunStatus string

// Run statuses.
const (
	RunStatusRunning RunStatus = "running"
	RunStatusPassed  RunStatus = "passed"
	RunStatusFailed  RunStatus = "failed"
	RunStatusAborted RunStatus = "aborted"
)

// Run is one stored harness run.
type Run struct {
	ID            string
	Isolation     core.IsolationMode
	Streams       int
	ExpectedKinds []string
	Seed          *uint64
	Status        RunStatus
	StartedAt     time.Time
	CompletedAt   *time.Time
	Success       int
	Expected      int
	Unexpected    int
	Error         string
}

// RunInfo describes a run being created.
type RunInfo struct {
	Isolation     core.IsolationMode
	Streams       int
	ExpectedKinds []string
	Seed          *uint64
}

// Counts are the final outcome counts of a run.
type Counts struct {
	Success    int
	Expected   int
	Unexpected int
}

// Store is a SQLite-backed result store.
type Store struct {
	db   *sql.DB
	path string
}

// Open opens (creating if needed) the store at path and applies pending
// migrations. Use ":memory:" for a private in-memory store.
func Open(ctx context.Context, path string) (*Store, error) {
	dsn := path + "?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)"
	if path != ":memory:" {
		dsn += "&_pragma=journal_mode(WAL)"
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open result store: %w", err)
	}
	// A single connection keeps ":memory:" stores on one database and
	// serializes writers on file stores.
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping result store: %w", err)
	}

	s := &Store{db: db, path: path}
	if err := s.Migrate(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// Close closes the store.
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// Migrate runs all pending database migrations.
func (s *Store) Migrate() error {
	goose.SetBaseFS(migrations)

	if err := goose.SetDialect("sqlite"); err != nil {
		return fmt.Errorf("failed to set dialect: %w", err)
	}

	if err := goose.Up(s.db, "migrations"); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	return nil
}

// MigrationVersion returns the current migration version.
func (s *Store) MigrationVersion() (int64, error) {
	goose.SetBaseFS(migrations)
	if err := goose.SetDialect("sqlite"); err != nil {
		return 0, fmt.Errorf("failed to set dialect: %w", err)
	}
	return goose.GetDBVersion(s.db)
}

// CreateRun stores a new running run.
func (s *Store) CreateRun(ctx context.Context, info RunInfo) (*Run, error) {
	run := &Run{
		ID:            uuid.New().String(),
		Isolation:     info.Isolation,
		Streams:       info.Streams,
		ExpectedKinds: info.ExpectedKinds,
		Seed:          info.Seed,
		Status:        RunStatusRunning,
		StartedAt:     time.Now().UTC(),
	}

	var seed sql.NullInt64
	if info.Seed != nil {
		seed = sql.NullInt64{Int64: int64(*info.Seed), Valid: true} //nolint:gosec // stored bit for bit
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO runs (id, isolation, streams, expected_kinds, seed, status, started_at) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		run.ID, run.Isolation.String(), run.Streams, strings.Join(run.ExpectedKinds, ","), seed, run.Status, run.StartedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create run: %w", err)
	}
	return run, nil
}

// SaveOutcomes stores outcomes of a run in one transaction.
func (s *Store) SaveOutcomes(ctx context.Context, runID string, outcomes []core.Outcome) (err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO outcomes (run_id, stream, worker, idx, statement, result, kind, message, duration_ns)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare outcome insert: %w", err)
	}
	defer func() { _ = stmt.Close() }()

	for _, o := range outcomes {
		var msg *string
		if o.Message != "" {
			msg = &o.Message
		}
		if _, err = stmt.ExecContext(ctx,
			runID, o.Stream, o.Worker, o.Index, o.Statement, o.Result.String(), o.Kind.String(), msg, int64(o.Duration),
		); err != nil {
			return fmt.Errorf("failed to save outcome %s #%d: %w", o.Stream, o.Index, err)
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit outcomes: %w", err)
	}
	return nil
}

// CompleteRun records the final status and counts of a run.
func (s *Store) CompleteRun(ctx context.Context, id string, status RunStatus, counts Counts, errMsg string) error {
	var errorPtr *string
	if errMsg != "" {
		errorPtr = &errMsg
	}

	result, err := s.db.ExecContext(ctx,
		`UPDATE runs SET status = ?, completed_at = ?, success_count = ?, expected_count = ?, unexpected_count = ?, error = ?
		 WHERE id = ?`,
		status, time.Now().UTC(), counts.Success, counts.Expected, counts.Unexpected, errorPtr, id,
	)
	if err != nil {
		return fmt.Errorf("failed to complete run: %w", err)
	}

	rowsAffected, _ := result.RowsAffected()
	if rowsAffected == 0 {
		return fmt.Errorf("%w: %s", ErrRunNotFound, id)
	}
	return nil
}

const runColumns = `id, isolation, streams, expected_kinds, seed, status, started_at, completed_at,
	success_count, expected_count, unexpected_count, error`

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(row scanner) (*Run, error) {
	run := &Run{}
	var (
		isolation   string
		kinds       string
		seed        sql.NullInt64
		completedAt sql.NullTime
		errMsg      sql.NullString
	)
	if err := row.Scan(&run.ID, &isolation, &run.Streams, &kinds, &seed, &run.Status, &run.StartedAt, &completedAt,
		&run.Success, &run.Expected, &run.Unexpected, &errMsg); err != nil {
		return nil, err
	}

	var err error
	if run.Isolation, err = core.ParseIsolationMode(isolation); err != nil {
		return nil, fmt.Errorf("run %s: %w", run.ID, err)
	}
	if kinds != "" {
		run.ExpectedKinds = strings.Split(kinds, ",")
	}
	if seed.Valid {
		v := uint64(seed.Int64) //nolint:gosec // stored bit for bit
		run.Seed = &v
	}
	if completedAt.Valid {
		run.CompletedAt = &completedAt.Time
	}
	if errMsg.Valid {
		run.Error = errMsg.String
	}
	return run, nil
}

// GetRun retrieves a run by id.
func (s *Store) GetRun(ctx context.Context, id string) (*Run, error) {
	run, err := scanRun(s.db.QueryRowContext(ctx, `SELECT `+runColumns+` FROM runs WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrRunNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get run: %w", err)
	}
	return run, nil
}

// ListRuns returns stored runs, most recent first. A limit of zero or less
// returns every run.
func (s *Store) ListRuns(ctx context.Context, limit int) ([]*Run, error) {
	query := `SELECT ` + runColumns + ` FROM runs ORDER BY started_at DESC, rowid DESC`
	args := []any{}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var runs []*Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	return runs, nil
}

// ListOutcomes returns the outcomes of a run ordered by stream and index.
// With unexpectedOnly set, only unexpected errors are returned.
func (s *Store) ListOutcomes(ctx context.Context, runID string, unexpectedOnly bool) ([]core.Outcome, error) {
	query := `SELECT stream, worker, idx, statement, result, kind, message, duration_ns
		FROM outcomes WHERE run_id = ?`
	args := []any{runID}
	if unexpectedOnly {
		query += ` AND result = ?`
		args = append(args, core.ResultUnexpectedError.String())
	}
	query += ` ORDER BY stream, idx`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list outcomes: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var outcomes []core.Outcome
	for rows.Next() {
		var (
			o        core.Outcome
			result   string
			kind     string
			msg      sql.NullString
			duration int64
		)
		if err := rows.Scan(&o.Stream, &o.Worker, &o.Index, &o.Statement, &result, &kind, &msg, &duration); err != nil {
			return nil, fmt.Errorf("failed to scan outcome: %w", err)
		}
		if err := o.Result.UnmarshalText([]byte(result)); err != nil {
			return nil, err
		}
		if err := o.Kind.UnmarshalText([]byte(kind)); err != nil {
			return nil, err
		}
		o.Message = msg.String
		o.Duration = time.Duration(duration)
		outcomes = append(outcomes, o)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list outcomes: %w", err)
	}
	return outcomes, nil
}

// StatusFor returns the terminal status matching a run verdict.
func StatusFor(failed bool) RunStatus {
	if failed {
		return RunStatusFailed
	}
	return RunStatusPassed
}
