package testutil

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leapstack-labs/duckstress/pkg/core"
)

// ByStream groups outcomes by stream label, keeping their recorded order.
func ByStream(outcomes []core.Outcome) map[string][]core.Outcome {
	m := make(map[string][]core.Outcome)
	for _, o := range outcomes {
		m[o.Stream] = append(m[o.Stream], o)
	}
	return m
}

// RequireOrdered asserts that every stream has exactly one outcome per
// statement, recorded with indices 0..len-1 in ascending order, and that each
// outcome carries the statement text at its index.
func RequireOrdered(t testing.TB, streams []core.Stream, outcomes []core.Outcome) {
	t.Helper()
	grouped := ByStream(outcomes)
	require.Len(t, grouped, len(streams), "outcomes for unknown or missing streams")
	for _, s := range streams {
		got := grouped[s.Label]
		require.Len(t, got, s.Len(), "stream %s", s.Label)
		for i, o := range got {
			assert.Equal(t, i, o.Index, "stream %s", s.Label)
			assert.Equal(t, s.Statements[i], o.Statement, "stream %s index %d", s.Label, i)
		}
	}
}

// RequireNoUnexpected fails the test listing every unexpected outcome.
func RequireNoUnexpected(t testing.TB, outcomes []core.Outcome) {
	t.Helper()
	for _, o := range outcomes {
		if o.Unexpected() {
			t.Errorf("unexpected outcome: %s #%d %q: %s (%s)", o.Stream, o.Index, o.Statement, o.Kind, o.Message)
		}
	}
	if t.Failed() {
		t.FailNow()
	}
}
