// Package target manages the databases a run attaches, creates and destroys.
package target

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"sort"
	"strings"
	"sync"

	"github.com/leapstack-labs/duckstress/internal/duckdb"
	"github.com/leapstack-labs/duckstress/pkg/core"
)

// Sentinel errors for errors.Is checks.
var (
	ErrPathCollision = errors.New("backing path already exists")
	ErrAttach        = errors.New("attach failed")
)

// SetupReason describes why setup failed.
type SetupReason int

// Setup failure reasons.
const (
	PathCollision SetupReason = iota + 1
	AttachFailure
)

func (r SetupReason) String() string {
	switch r {
	case PathCollision:
		return "path collision"
	case AttachFailure:
		return "attach failure"
	default:
		return "unknown"
	}
}

// SetupError is returned when targets cannot be prepared. No workers may be
// started after a SetupError.
type SetupError struct {
	Reason SetupReason
	Target core.Target
	Err    error
}

func (e *SetupError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("setup of target %s: %s: %v", e.Target, e.Reason, e.Err)
	}
	return fmt.Sprintf("setup of target %s: %s", e.Target, e.Reason)
}

func (e *SetupError) Unwrap() error { return e.Err }

// Is matches ErrPathCollision and ErrAttach by reason.
func (e *SetupError) Is(target error) bool {
	switch target {
	case ErrPathCollision:
		return e.Reason == PathCollision
	case ErrAttach:
		return e.Reason == AttachFailure
	}
	return false
}

// TeardownError lists the backing files that could not be removed.
type TeardownError struct {
	Failures map[string]error
}

func (e *TeardownError) Error() string {
	paths := make([]string, 0, len(e.Failures))
	for path := range e.Failures {
		paths = append(paths, path)
	}
	sort.Strings(paths)
	parts := make([]string, len(paths))
	for i, path := range paths {
		parts[i] = fmt.Sprintf("%s: %v", path, e.Failures[path])
	}
	return "teardown failed: " + strings.Join(parts, "; ")
}

// Unwrap exposes the individual failures to errors.Is and errors.As.
func (e *TeardownError) Unwrap() []error {
	errs := make([]error, 0, len(e.Failures))
	for _, err := range e.Failures {
		errs = append(errs, err)
	}
	return errs
}

// walSuffix names the write-ahead log DuckDB keeps next to a database file.
const walSuffix = ".wal"

// Registry prepares and removes the targets of a run. Setup and Teardown are
// serialized; the control session used by Setup is closed before Setup
// returns and is never shared with workers.
type Registry struct {
	mu      sync.Mutex
	targets []core.Target
	open    duckdb.Opener
	logger  *slog.Logger
}

// Option configures a Registry.
type Option func(*Registry)

// WithOpener replaces the function used to open the control session.
func WithOpener(open duckdb.Opener) Option {
	return func(r *Registry) { r.open = open }
}

// WithLogger sets the logger. A nil logger discards output.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Registry) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// NewRegistry validates targets and returns a registry for them.
func NewRegistry(targets []core.Target, opts ...Option) (*Registry, error) {
	if err := core.ValidateTargets(targets); err != nil {
		return nil, err
	}
	r := &Registry{
		targets: append([]core.Target(nil), targets...),
		open:    duckdb.MemoryOpener,
		logger:  slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

// Targets returns the declared targets in order.
func (r *Registry) Targets() []core.Target {
	return append([]core.Target(nil), r.targets...)
}

// Setup creates the backing file of every file target. It fails with a
// PathCollision SetupError, before creating anything, if any backing file or
// its write-ahead log already exists, so state never leaks from an earlier run.
func (r *Registry) Setup(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	files := r.fileTargets()
	for _, t := range files {
		// A leftover write-ahead log would be replayed into the new database.
		for _, path := range []string{t.Path, t.Path + walSuffix} {
			if _, err := os.Stat(path); err == nil {
				return &SetupError{Reason: PathCollision, Target: t, Err: fmt.Errorf("%s exists", path)}
			} else if !errors.Is(err, fs.ErrNotExist) {
				return &SetupError{Reason: PathCollision, Target: t, Err: err}
			}
		}
	}
	if len(files) == 0 {
		return nil
	}

	db, err := r.open(ctx)
	if err != nil {
		return &SetupError{Reason: AttachFailure, Target: files[0], Err: err}
	}
	defer func() { _ = db.Close() }()

	// Pin one connection so ATTACH and DETACH see the same session.
	conn, err := db.Conn(ctx)
	if err != nil {
		return &SetupError{Reason: AttachFailure, Target: files[0], Err: err}
	}
	defer func() { _ = conn.Close() }()

	for i, t := range files {
		r.logger.Debug("attaching target", "name", t.Name, "path", t.Path)
		attach := fmt.Sprintf("ATTACH '%s' AS %s", escapeLiteral(t.Path), t.Name)
		if _, err := conn.ExecContext(ctx, attach); err != nil {
			r.rollback(files[:i+1])
			return &SetupError{Reason: AttachFailure, Target: t, Err: err}
		}
		if _, err := conn.ExecContext(ctx, "DETACH "+t.Name); err != nil {
			r.rollback(files[:i+1])
			return &SetupError{Reason: AttachFailure, Target: t, Err: err}
		}
	}

	r.logger.Info("targets ready", "files", len(files), "volatile", len(r.targets)-len(files))
	return nil
}

// Teardown deletes every backing file and its write-ahead log. Files that are
// already gone are skipped, so calling Teardown again is a no-op.
func (r *Registry) Teardown() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	failures := make(map[string]error)
	for _, t := range r.fileTargets() {
		for _, path := range []string{t.Path, t.Path + walSuffix} {
			err := os.Remove(path)
			switch {
			case err == nil:
				r.logger.Debug("removed target file", "name", t.Name, "path", path)
			case errors.Is(err, fs.ErrNotExist):
			default:
				failures[path] = err
			}
		}
	}

	if len(failures) > 0 {
		return &TeardownError{Failures: failures}
	}
	return nil
}

// rollback removes files created by a Setup call that then failed, so the
// next run does not trip over them.
func (r *Registry) rollback(created []core.Target) {
	for _, t := range created {
		for _, path := range []string{t.Path, t.Path + walSuffix} {
			if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
				r.logger.Warn("failed to remove target file after setup failure", "path", path, "error", err)
			}
		}
	}
}

func (r *Registry) fileTargets() []core.Target {
	var files []core.Target
	for _, t := range r.targets {
		if !t.Volatile() {
			files = append(files, t)
		}
	}
	return files
}

func escapeLiteral(s string) string {
	return strings.ReplaceAll(s, "'", "''")
}
