package harness

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/leapstack-labs/duckstress/internal/duckdb"
)

// Conn is a connection exclusively owned by one worker. Closing it releases
// everything acquired with it.
type Conn struct {
	*sql.Conn
	release func() error
}

// Close closes the connection and, for independent sessions, the session.
func (c *Conn) Close() error {
	err := c.Conn.Close()
	if c.release != nil {
		err = errors.Join(err, c.release())
	}
	return err
}

// ConnFactory hands out worker connections.
type ConnFactory interface {
	Acquire(ctx context.Context) (*Conn, error)
}

// IndependentFactory opens a new engine session for every connection.
type IndependentFactory struct {
	Open duckdb.Opener
}

// Acquire implements ConnFactory.
func (f IndependentFactory) Acquire(ctx context.Context) (*Conn, error) {
	open := f.Open
	if open == nil {
		open = duckdb.MemoryOpener
	}
	db, err := open(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to open session: %w", err)
	}
	conn, err := db.Conn(ctx)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to acquire connection: %w", err)
	}
	return &Conn{Conn: conn, release: db.Close}, nil
}

// SharedFactory derives connections from one session owned by the caller.
// Connections share the session's catalog and attached databases; USE and
// other connection-local settings stay private to each connection.
type SharedFactory struct {
	DB *sql.DB
}

// Acquire implements ConnFactory.
func (f SharedFactory) Acquire(ctx context.Context) (*Conn, error) {
	conn, err := f.DB.Conn(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to derive connection: %w", err)
	}
	return &Conn{Conn: conn}, nil
}

// FactoryFunc adapts a function to ConnFactory.
type FactoryFunc func(ctx context.Context) (*Conn, error)

// Acquire implements ConnFactory.
func (f FactoryFunc) Acquire(ctx context.Context) (*Conn, error) {
	return f(ctx)
}
