package harness

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/leapstack-labs/duckstress/internal/duckdb"
	"github.com/leapstack-labs/duckstress/pkg/core"
)

// DefaultGrace is how long a timed-out run waits for interrupted workers
// before abandoning them.
const DefaultGrace = 5 * time.Second

// Config configures a Scheduler.
type Config struct {
	// Isolation selects the execution unit and connection sharing.
	Isolation core.IsolationMode

	// Classes decides which error kinds are expected.
	Classes core.ClassificationSet

	// StatementTimeout bounds each statement. Zero means no bound.
	StatementTimeout time.Duration

	// RunTimeout bounds the whole run. Zero means the run waits for every
	// worker indefinitely, so a hung worker hangs the run.
	RunTimeout time.Duration

	// Grace is how long to wait for workers after RunTimeout fired.
	// Defaults to DefaultGrace.
	Grace time.Duration

	// Open opens engine sessions for the thread modes. Defaults to a fresh
	// in-memory DuckDB database per call.
	Open duckdb.Opener

	// Command starts a worker process in process mode. Defaults to
	// re-executing the current binary with the "worker" argument.
	Command CommandFunc

	// Stderr receives the standard error of worker processes. Defaults to
	// os.Stderr.
	Stderr io.Writer

	// Sink receives every outcome as it is produced. Must be safe for
	// concurrent use.
	Sink Sink

	// Logger defaults to a discard logger.
	Logger *slog.Logger
}

// Result is the collected output of a run.
type Result struct {
	// Outcomes holds every outcome in the order it was recorded. Outcomes of
	// one stream are in index order; streams are interleaved.
	Outcomes []core.Outcome

	// Hung lists the labels of streams that did not finish in time.
	Hung []string

	// Crashed lists the labels of streams whose worker process exited
	// abnormally after its last statement. Such a crash has no statement
	// to attach an outcome to.
	Crashed []string

	// Elapsed is the wall-clock duration of the run.
	Elapsed time.Duration
}

// Scheduler runs one worker per stream concurrently and joins them.
type Scheduler struct {
	cfg    Config
	logger *slog.Logger
}

// NewScheduler returns a scheduler with cfg, applying defaults.
func NewScheduler(cfg Config) *Scheduler {
	if cfg.Open == nil {
		cfg.Open = duckdb.MemoryOpener
	}
	if cfg.Command == nil {
		cfg.Command = Reexec("worker")
	}
	if cfg.Stderr == nil {
		cfg.Stderr = os.Stderr
	}
	if cfg.Grace <= 0 {
		cfg.Grace = DefaultGrace
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Scheduler{cfg: cfg, logger: logger}
}

// Run starts one unit per stream, waits for all of them and returns every
// outcome. Workers are never retried and a failing worker does not stop its
// siblings. Run returns an error only if the run could not start or, with
// ErrHang, if the run timeout fired.
func (s *Scheduler) Run(ctx context.Context, streams []core.Stream) (*Result, error) {
	start := time.Now()

	l, closeSession, err := s.launcher(ctx)
	if err != nil {
		return nil, err
	}

	runCtx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)

	rec := &recorder{next: s.cfg.Sink}
	trackers := make([]*tracker, len(streams))
	units := make([]Unit, len(streams))
	for i, stream := range streams {
		t := &tracker{next: rec, stream: stream, worker: i}
		w := &Worker{
			ID:               i,
			Stream:           stream,
			Classes:          s.cfg.Classes,
			StatementTimeout: s.cfg.StatementTimeout,
			Sink:             t,
			Logger:           s.logger,
		}
		trackers[i] = t
		units[i] = l.launch(w, t)
	}

	s.logger.Info("starting workers",
		"workers", len(units),
		"isolation", s.cfg.Isolation.String(),
		"statements", core.CountStatements(streams))

	for _, u := range units {
		if err := u.Start(runCtx); err != nil {
			s.logger.Error("failed to start worker", "error", err)
		}
	}

	var g errgroup.Group
	for i, u := range units {
		g.Go(func() error {
			err := u.Wait()
			// A returned worker records nothing more.
			trackers[i].seal(nil)
			return err
		})
	}
	done := make(chan struct{})
	go func() {
		_ = g.Wait()
		close(done)
	}()

	abandoned := s.join(done, cancel)

	if abandoned {
		for i, t := range trackers {
			t.seal(func(index int, stmt string) (core.Outcome, bool) {
				return core.Failure(s.cfg.Classes, streams[i].Label, i, index, stmt,
					core.KindHang, "worker abandoned after run timeout", 0), true
			})
		}
	} else if closeSession != nil {
		if err := closeSession(); err != nil {
			s.logger.Warn("failed to close shared session", "error", err)
		}
	}

	result := &Result{Outcomes: rec.snapshot(), Elapsed: time.Since(start)}
	for i, t := range trackers {
		if t.isHung() {
			result.Hung = append(result.Hung, streams[i].Label)
		}
		if t.isCrashed() {
			result.Crashed = append(result.Crashed, streams[i].Label)
		}
	}

	s.logger.Info("workers finished", "outcomes", len(result.Outcomes), "hung", len(result.Hung),
		"crashed", len(result.Crashed), "elapsed", result.Elapsed)
	if len(result.Hung) > 0 {
		return result, fmt.Errorf("%w: %d of %d workers did not finish", ErrHang, len(result.Hung), len(streams))
	}
	return result, nil
}

// join waits for done. With a run timeout it cancels the run once the timeout
// fires and waits up to the grace period; it reports whether workers had to
// be abandoned.
func (s *Scheduler) join(done <-chan struct{}, cancel context.CancelCauseFunc) bool {
	if s.cfg.RunTimeout <= 0 {
		<-done
		return false
	}

	timer := time.NewTimer(s.cfg.RunTimeout)
	defer timer.Stop()
	select {
	case <-done:
		return false
	case <-timer.C:
	}

	s.logger.Error("run timeout exceeded, interrupting workers", "timeout", s.cfg.RunTimeout)
	cancel(ErrHang)

	grace := time.NewTimer(s.cfg.Grace)
	defer grace.Stop()
	select {
	case <-done:
		return false
	case <-grace.C:
		s.logger.Error("abandoning workers that ignored interruption", "grace", s.cfg.Grace)
		return true
	}
}

// launcher builds the execution units for the isolation mode. For the shared
// mode it opens the parent session and returns a function closing it.
func (s *Scheduler) launcher(ctx context.Context) (launcher, func() error, error) {
	switch s.cfg.Isolation {
	case core.IsolationThreadShared:
		db, err := s.cfg.Open(ctx)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to open shared session: %w", err)
		}
		return threadLauncher{factory: SharedFactory{DB: db}}, db.Close, nil
	case core.IsolationThreadIndependent:
		return threadLauncher{factory: IndependentFactory{Open: s.cfg.Open}}, nil, nil
	case core.IsolationProcess:
		return processLauncher{command: s.cfg.Command, stderr: s.cfg.Stderr, logger: s.logger}, nil, nil
	default:
		return nil, nil, fmt.Errorf("unsupported isolation mode %s", s.cfg.Isolation)
	}
}
