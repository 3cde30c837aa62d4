// Package source produces the statement streams executed by the harness.
//
// A Source hands out one stream per worker. File-backed sources are
// restartable because re-reading a file is idempotent; the generator source is
// not, since every call consumes randomness.
package source

import (
	"context"
	"fmt"

	"github.com/leapstack-labs/duckstress/pkg/core"
)

// Source produces the stream for a logical stream id.
type Source interface {
	// Next returns the stream with the given id.
	Next(ctx context.Context, id int) (core.Stream, error)

	// Len returns the number of streams the source provides.
	Len() int

	// Restartable reports whether Next returns the same stream when called
	// again with the same id.
	Restartable() bool
}

// Collect obtains every stream of src in id order.
func Collect(ctx context.Context, src Source) ([]core.Stream, error) {
	streams := make([]core.Stream, 0, src.Len())
	for id := range src.Len() {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		s, err := src.Next(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("stream %d: %w", id, err)
		}
		streams = append(streams, s)
	}
	return streams, nil
}

// OutOfRangeError is returned when a stream id is not served by a source.
type OutOfRangeError struct {
	ID  int
	Len int
}

func (e *OutOfRangeError) Error() string {
	return fmt.Sprintf("stream id %d out of range [0, %d)", e.ID, e.Len)
}

// StaticSource serves a fixed list of streams.
type StaticSource struct {
	streams []core.Stream
}

// NewStaticSource returns a source serving streams in order.
func NewStaticSource(streams ...core.Stream) *StaticSource {
	return &StaticSource{streams: streams}
}

// Repeat returns a source serving n streams that all contain statements.
// Labels are "stream1" .. "streamN".
func Repeat(n int, statements ...string) *StaticSource {
	streams := make([]core.Stream, n)
	for i := range streams {
		streams[i] = core.Stream{
			Label:      fmt.Sprintf("stream%d", i+1),
			Statements: append([]string(nil), statements...),
		}
	}
	return NewStaticSource(streams...)
}

// Next implements Source.
func (s *StaticSource) Next(_ context.Context, id int) (core.Stream, error) {
	if id < 0 || id >= len(s.streams) {
		return core.Stream{}, &OutOfRangeError{ID: id, Len: len(s.streams)}
	}
	return s.streams[id], nil
}

// Len implements Source.
func (s *StaticSource) Len() int { return len(s.streams) }

// Restartable implements Source.
func (s *StaticSource) Restartable() bool { return true }
