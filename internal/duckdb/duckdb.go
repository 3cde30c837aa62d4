// Package duckdb opens DuckDB sessions and maps DuckDB errors onto the closed
// core.Kind enumeration. It is the only package that inspects native driver
// errors.
package duckdb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/marcboeker/go-duckdb"

	"github.com/leapstack-labs/duckstress/pkg/core"
)

// MemoryPath is the DSN of a private in-memory database.
const MemoryPath = ":memory:"

// Opener opens an engine session.
type Opener func(ctx context.Context) (*sql.DB, error)

// Open establishes a DuckDB session. An empty path or ":memory:" opens a new
// in-memory database; every call yields an independent database instance.
func Open(ctx context.Context, path string) (*sql.DB, error) {
	dsn := path
	if dsn == MemoryPath {
		dsn = ""
	}

	db, err := sql.Open("duckdb", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open duckdb connection: %w", err)
	}

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping duckdb: %w", err)
	}
	return db, nil
}

// MemoryOpener opens fresh in-memory sessions.
func MemoryOpener(ctx context.Context) (*sql.DB, error) {
	return Open(ctx, MemoryPath)
}

// kindsByType maps native DuckDB error types onto kinds. Types not listed map
// to core.KindOther.
var kindsByType = map[duckdb.ErrorType]core.Kind{
	duckdb.ErrorTypeIO:            core.KindIO,
	duckdb.ErrorTypeBinder:        core.KindBinder,
	duckdb.ErrorTypeCatalog:       core.KindCatalog,
	duckdb.ErrorTypeParser:        core.KindParser,
	duckdb.ErrorTypeSyntax:        core.KindSyntax,
	duckdb.ErrorTypeTransaction:   core.KindTransaction,
	duckdb.ErrorTypeConstraint:    core.KindConstraint,
	duckdb.ErrorTypeConversion:    core.KindConversion,
	duckdb.ErrorTypeInvalidInput:  core.KindInvalidInput,
	duckdb.ErrorTypeDependency:    core.KindDependency,
	duckdb.ErrorTypeSerialization: core.KindSerialization,
	duckdb.ErrorTypeInterrupt:     core.KindInterrupt,
	duckdb.ErrorTypeConnection:    core.KindConnection,
	duckdb.ErrorTypeInternal:      core.KindInternal,
	duckdb.ErrorTypeFatal:         core.KindFatal,
	duckdb.ErrorTypeOutOfMemory:   core.KindOutOfMemory,
	duckdb.ErrorTypePermission:    core.KindPermission,
}

// KindOf maps err onto a kind. Deadline expiry maps to core.KindTimeout,
// errors that did not come from DuckDB map to core.KindUnknown.
func KindOf(err error) core.Kind {
	if err == nil {
		return core.KindNone
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return core.KindTimeout
	}

	var dErr *duckdb.Error
	if !errors.As(err, &dErr) {
		return core.KindUnknown
	}
	if k, ok := kindsByType[dErr.Type]; ok {
		return k
	}
	return core.KindOther
}

// Message returns the first line of an error message, which for DuckDB
// errors carries the error class and the reason.
func Message(err error) string {
	if err == nil {
		return ""
	}
	msg := err.Error()
	if i := strings.IndexByte(msg, '\n'); i >= 0 {
		msg = msg[:i]
	}
	return strings.TrimSpace(msg)
}

// NewError builds a native DuckDB error. Tests use it to script engine
// failures through mocked connections.
func NewError(t duckdb.ErrorType, msg string) error {
	return &duckdb.Error{Type: t, Msg: msg}
}
