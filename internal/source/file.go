package source

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/leapstack-labs/duckstress/pkg/core"
)

// FileSource serves one stream per statement file.
type FileSource struct {
	paths []string
}

// NewFileSource returns a source reading the given files in order.
func NewFileSource(paths ...string) *FileSource {
	return &FileSource{paths: paths}
}

// GlobDir returns a source over every *.sql file in dir, sorted by name.
func GlobDir(dir string) (*FileSource, error) {
	paths, err := filepath.Glob(filepath.Join(dir, "*.sql"))
	if err != nil {
		return nil, fmt.Errorf("failed to list %s: %w", dir, err)
	}
	if len(paths) == 0 {
		return nil, fmt.Errorf("no .sql files found in %s", dir)
	}
	sort.Strings(paths)
	return NewFileSource(paths...), nil
}

// Next implements Source. The stream label is the file's base name.
func (s *FileSource) Next(_ context.Context, id int) (core.Stream, error) {
	if id < 0 || id >= len(s.paths) {
		return core.Stream{}, &OutOfRangeError{ID: id, Len: len(s.paths)}
	}
	path := s.paths[id]

	f, err := os.Open(path) //nolint:gosec // paths come from configuration
	if err != nil {
		return core.Stream{}, fmt.Errorf("failed to open statement file: %w", err)
	}
	defer func() { _ = f.Close() }()

	statements, err := Split(f)
	if err != nil {
		return core.Stream{}, fmt.Errorf("failed to read %s: %w", path, err)
	}
	return core.Stream{Label: filepath.Base(path), Statements: statements}, nil
}

// Len implements Source.
func (s *FileSource) Len() int { return len(s.paths) }

// Restartable implements Source.
func (s *FileSource) Restartable() bool { return true }

// Paths returns the files served by the source.
func (s *FileSource) Paths() []string {
	return append([]string(nil), s.paths...)
}
