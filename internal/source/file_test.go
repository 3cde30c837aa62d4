package source

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leapstack-labs/duckstress/pkg/core"
)

func TestFileSource(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "b.sql"), []byte("SELECT 2;\nSELECT 'x;y';"), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.sql"), []byte("SELECT 1"), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("ignored"), 0o600))

	src, err := GlobDir(dir)
	require.NoError(t, err)
	assert.Equal(t, 2, src.Len())
	assert.True(t, src.Restartable())

	first, err := src.Next(context.Background(), 0)
	require.NoError(t, err)
	assert.Equal(t, core.Stream{Label: "a.sql", Statements: []string{"SELECT 1"}}, first)

	second, err := src.Next(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, core.Stream{Label: "b.sql", Statements: []string{"SELECT 2", "SELECT 'x;y'"}}, second)

	again, err := src.Next(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, second, again, "file sources are restartable")
}

func TestGlobDir_Empty(t *testing.T) {
	_, err := GlobDir(t.TempDir())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no .sql files")
}

func TestFileSource_MissingFile(t *testing.T) {
	src := NewFileSource(filepath.Join(t.TempDir(), "missing.sql"))
	_, err := src.Next(context.Background(), 0)
	require.Error(t, err)
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestWriteFiles_RoundTrip(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "sql")
	streams := []core.Stream{
		{Label: "file1.sql", Statements: []string{"ATTACH 'db1.duckdb';", "INSERT INTO t1 VALUES ('a;''b', 'c\nd');"}},
		{Label: "file2.sql", Statements: []string{"SELECT 1"}},
	}

	paths, err := WriteFiles(dir, streams)
	require.NoError(t, err)
	require.Len(t, paths, 2)

	src := NewFileSource(paths...)
	got, err := Collect(context.Background(), src)
	require.NoError(t, err)

	assert.Equal(t, []core.Stream{
		{Label: "file1.sql", Statements: []string{"ATTACH 'db1.duckdb'", "INSERT INTO t1 VALUES ('a;''b', 'c\nd')"}},
		{Label: "file2.sql", Statements: []string{"SELECT 1"}},
	}, got)
}

func TestStaticSource(t *testing.T) {
	src := Repeat(2, "SELECT 1", "SELECT 2")
	streams, err := Collect(context.Background(), src)
	require.NoError(t, err)
	require.Len(t, streams, 2)
	assert.Equal(t, "stream1", streams[0].Label)
	assert.Equal(t, "stream2", streams[1].Label)
	assert.Equal(t, []string{"SELECT 1", "SELECT 2"}, streams[1].Statements)

	_, err = src.Next(context.Background(), -1)
	assert.Error(t, err)
}
