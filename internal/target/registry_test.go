package target

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leapstack-labs/duckstress/internal/testutil"
	"github.com/leapstack-labs/duckstress/pkg/core"
)

func fileTargets(t *testing.T, names ...string) []core.Target {
	t.Helper()
	dir := t.TempDir()
	targets := []core.Target{{Name: "memory"}}
	for _, name := range names {
		targets = append(targets, core.Target{Name: name, Path: filepath.Join(dir, name+".duckdb")})
	}
	return targets
}

func TestNewRegistry_RejectsInvalidTargets(t *testing.T) {
	tests := []struct {
		name    string
		targets []core.Target
		errMsg  string
	}{
		{
			name:    "duplicate name",
			targets: []core.Target{{Name: "db1", Path: "a.duckdb"}, {Name: "db1", Path: "b.duckdb"}},
			errMsg:  "duplicate target name",
		},
		{
			name:    "shared path",
			targets: []core.Target{{Name: "db1", Path: "a.duckdb"}, {Name: "db2", Path: "a.duckdb"}},
			errMsg:  "share backing path",
		},
		{
			name:    "missing name",
			targets: []core.Target{{Path: "a.duckdb"}},
			errMsg:  "name is required",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewRegistry(tt.targets)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errMsg)
		})
	}
}

func TestRegistry_SetupCreatesFiles(t *testing.T) {
	targets := fileTargets(t, "db1", "db2")
	reg, err := NewRegistry(targets, WithLogger(testutil.NewTestLogger(t)))
	require.NoError(t, err)

	require.NoError(t, reg.Setup(context.Background()))
	defer func() { _ = reg.Teardown() }()

	for _, tgt := range targets[1:] {
		_, err := os.Stat(tgt.Path)
		assert.NoError(t, err, "expected %s to exist", tgt.Path)
	}
}

func TestRegistry_SetupPathCollision(t *testing.T) {
	targets := fileTargets(t, "db1", "db2")
	require.NoError(t, os.WriteFile(targets[2].Path, []byte("leftover"), 0o600))

	reg, err := NewRegistry(targets)
	require.NoError(t, err)

	err = reg.Setup(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrPathCollision)

	var setupErr *SetupError
	require.ErrorAs(t, err, &setupErr)
	assert.Equal(t, PathCollision, setupErr.Reason)
	assert.Equal(t, "db2", setupErr.Target.Name)

	_, statErr := os.Stat(targets[1].Path)
	assert.True(t, errors.Is(statErr, os.ErrNotExist), "collision must be detected before anything is created")

	content, err := os.ReadFile(targets[2].Path)
	require.NoError(t, err)
	assert.Equal(t, "leftover", string(content), "leftover file must not be touched")
}

func TestRegistry_SetupPathCollision_LeftoverWAL(t *testing.T) {
	targets := fileTargets(t, "db1")
	wal := targets[1].Path + walSuffix
	require.NoError(t, os.WriteFile(wal, []byte("stale log"), 0o600))

	reg, err := NewRegistry(targets)
	require.NoError(t, err)

	err = reg.Setup(context.Background())
	require.ErrorIs(t, err, ErrPathCollision)
	assert.Contains(t, err.Error(), wal)

	_, statErr := os.Stat(targets[1].Path)
	assert.True(t, errors.Is(statErr, os.ErrNotExist), "the database must not be created next to a stale log")
	content, err := os.ReadFile(wal)
	require.NoError(t, err)
	assert.Equal(t, "stale log", string(content), "leftover log must not be touched")
}

func TestRegistry_SetupAttachFailure(t *testing.T) {
	targets := fileTargets(t, "db1")
	openErr := errors.New("engine unavailable")
	reg, err := NewRegistry(targets, WithOpener(func(context.Context) (*sql.DB, error) {
		return nil, openErr
	}))
	require.NoError(t, err)

	err = reg.Setup(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrAttach)
	assert.ErrorIs(t, err, openErr)
	assert.NotErrorIs(t, err, ErrPathCollision)
}

func TestRegistry_SetupInvalidPathRollsBack(t *testing.T) {
	dir := t.TempDir()
	targets := []core.Target{
		{Name: "db1", Path: filepath.Join(dir, "db1.duckdb")},
		{Name: "db2", Path: filepath.Join(dir, "missing", "dir", "db2.duckdb")},
	}
	reg, err := NewRegistry(targets)
	require.NoError(t, err)

	err = reg.Setup(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrAttach)

	_, statErr := os.Stat(targets[0].Path)
	assert.True(t, errors.Is(statErr, os.ErrNotExist), "files created before the failure must be removed")
}

func TestRegistry_VolatileOnly(t *testing.T) {
	reg, err := NewRegistry([]core.Target{{Name: "memory"}}, WithOpener(func(context.Context) (*sql.DB, error) {
		t.Fatal("no control session is needed without file targets")
		return nil, nil
	}))
	require.NoError(t, err)

	require.NoError(t, reg.Setup(context.Background()))
	require.NoError(t, reg.Teardown())
}

func TestRegistry_TeardownIsIdempotent(t *testing.T) {
	targets := fileTargets(t, "db1", "db2")
	reg, err := NewRegistry(targets)
	require.NoError(t, err)
	require.NoError(t, reg.Setup(context.Background()))

	// Simulate a write-ahead log left behind by a crashed worker.
	require.NoError(t, os.WriteFile(targets[1].Path+walSuffix, []byte("wal"), 0o600))

	require.NoError(t, reg.Teardown())
	require.NoError(t, reg.Teardown(), "second teardown must be a no-op")

	for _, tgt := range targets[1:] {
		for _, path := range []string{tgt.Path, tgt.Path + walSuffix} {
			_, err := os.Stat(path)
			assert.True(t, errors.Is(err, os.ErrNotExist), "expected %s to be removed", path)
		}
	}
}

func TestRegistry_SetupAfterTeardown(t *testing.T) {
	targets := fileTargets(t, "db1")
	reg, err := NewRegistry(targets)
	require.NoError(t, err)

	require.NoError(t, reg.Setup(context.Background()))
	require.NoError(t, reg.Teardown())
	require.NoError(t, reg.Setup(context.Background()), "teardown must leave no collision behind")
	require.NoError(t, reg.Teardown())
}

func TestTeardownError(t *testing.T) {
	err := &TeardownError{Failures: map[string]error{
		"b.duckdb": os.ErrPermission,
		"a.duckdb": os.ErrPermission,
	}}
	assert.Equal(t, "teardown failed: a.duckdb: permission denied; b.duckdb: permission denied", err.Error())
	assert.ErrorIs(t, err, os.ErrPermission)
}
