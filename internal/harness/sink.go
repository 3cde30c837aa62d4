package harness

import (
	"sync"

	"github.com/leapstack-labs/duckstress/pkg/core"
)

// Sink receives outcomes as soon as they are produced. Sinks shared between
// workers must be safe for concurrent use.
type Sink interface {
	Record(o core.Outcome)
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(o core.Outcome)

// Record implements Sink.
func (f SinkFunc) Record(o core.Outcome) { f(o) }

// recorder collects every outcome of a run and forwards it.
type recorder struct {
	mu       sync.Mutex
	outcomes []core.Outcome
	next     Sink
}

func (r *recorder) Record(o core.Outcome) {
	r.mu.Lock()
	r.outcomes = append(r.outcomes, o)
	r.mu.Unlock()
	if r.next != nil {
		r.next.Record(o)
	}
}

func (r *recorder) snapshot() []core.Outcome {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]core.Outcome(nil), r.outcomes...)
}

// tracker sits between one worker and the run recorder. Once sealed it drops
// everything, so a worker abandoned after a hang cannot add outcomes to a
// finished run.
type tracker struct {
	mu     sync.Mutex
	next   Sink
	stream core.Stream
	worker int
	count  int
	sealed bool
	hung   bool

	// crashed is set when the worker process exited abnormally after its
	// last statement, so no statement was in flight.
	crashed bool
}

func (t *tracker) Record(o core.Outcome) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.sealed {
		return
	}
	t.count++
	if o.Kind == core.KindHang {
		t.hung = true
	}
	t.next.Record(o)
}

// seal closes the tracker. If fn is non-nil and the worker has not already
// reported a hang, fn is called, under the lock, with the index and text of
// the next unrecorded statement; the outcome it returns is recorded before
// sealing unless ok is false. Once the stream is complete fn is not called.
func (t *tracker) seal(fn func(index int, stmt string) (o core.Outcome, ok bool)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.sealed {
		return
	}
	if fn != nil && !t.hung && t.count < t.stream.Len() {
		if o, ok := fn(t.count, t.statement(t.count)); ok {
			t.count++
			if o.Kind == core.KindHang {
				t.hung = true
			}
			t.next.Record(o)
		}
	}
	t.sealed = true
}

// recorded returns the number of outcomes recorded so far.
func (t *tracker) recorded() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.count
}

// sealCrashed closes the tracker for a worker process that exited abnormally.
// A crash during the stream is recorded through fn as the statement in
// flight; a crash after the last statement only marks the tracker.
func (t *tracker) sealCrashed(fn func(index int, stmt string) core.Outcome) {
	t.mu.Lock()
	if !t.sealed && !t.hung && t.count >= t.stream.Len() {
		t.crashed = true
	}
	t.mu.Unlock()
	t.seal(func(index int, stmt string) (core.Outcome, bool) {
		return fn(index, stmt), true
	})
}

func (t *tracker) isCrashed() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.crashed
}

func (t *tracker) isHung() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.hung
}

func (t *tracker) statement(i int) string {
	if i < len(t.stream.Statements) {
		return t.stream.Statements[i]
	}
	return ""
}
