package harness

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"time"

	"github.com/leapstack-labs/duckstress/internal/duckdb"
	"github.com/leapstack-labs/duckstress/pkg/core"
)

// WorkerEnv is set to "1" in the environment of every worker process.
const WorkerEnv = "DUCKSTRESS_WORKER"

// WorkerRequest is the document a worker process reads from stdin.
type WorkerRequest struct {
	Worker           int           `json:"worker"`
	Stream           core.Stream   `json:"stream"`
	Expected         []core.Kind   `json:"expected"`
	StatementTimeout time.Duration `json:"statement_timeout"`
}

// CommandFunc builds the command that starts one worker process.
type CommandFunc func(ctx context.Context) (*exec.Cmd, error)

// Reexec returns a CommandFunc that runs the current executable with args and
// WorkerEnv set. The child must answer with ServeWorker.
func Reexec(args ...string) CommandFunc {
	return func(ctx context.Context) (*exec.Cmd, error) {
		exe, err := os.Executable()
		if err != nil {
			return nil, fmt.Errorf("failed to locate executable: %w", err)
		}
		cmd := exec.CommandContext(ctx, exe, args...) //nolint:gosec // re-executes this binary
		cmd.Env = append(os.Environ(), WorkerEnv+"=1")
		return cmd, nil
	}
}

// ServeWorker runs the worker described by the request on r and writes one
// JSON outcome per line to w. The worker opens its own in-memory session, so
// it shares nothing with its siblings except the filesystem.
func ServeWorker(ctx context.Context, r io.Reader, w io.Writer, logger *slog.Logger) error {
	var req WorkerRequest
	if err := json.NewDecoder(r).Decode(&req); err != nil {
		return fmt.Errorf("failed to decode worker request: %w", err)
	}

	enc := json.NewEncoder(w)
	var writeErr error
	worker := &Worker{
		ID:               req.Worker,
		Stream:           req.Stream,
		Classes:          core.NewClassificationSet(req.Expected...),
		StatementTimeout: req.StatementTimeout,
		Logger:           logger,
		Sink: SinkFunc(func(o core.Outcome) {
			if writeErr == nil {
				writeErr = enc.Encode(o)
			}
		}),
	}
	worker.Run(ctx, IndependentFactory{Open: duckdb.MemoryOpener})
	if writeErr != nil {
		return fmt.Errorf("failed to write outcome: %w", writeErr)
	}
	return nil
}

// processLauncher runs every worker in its own child process.
type processLauncher struct {
	command CommandFunc
	stderr  io.Writer
	logger  *slog.Logger
}

func (l processLauncher) launch(w *Worker, t *tracker) Unit {
	return &processUnit{launcher: l, worker: w, tracker: t, readDone: make(chan struct{})}
}

type processUnit struct {
	launcher processLauncher
	worker   *Worker
	tracker  *tracker

	ctx      context.Context
	cmd      *exec.Cmd
	readDone chan struct{}
	readErr  error
	started  bool
}

func (u *processUnit) Start(ctx context.Context) error {
	u.ctx = ctx
	if err := u.start(ctx); err != nil {
		// The process never ran, so the worker never got a connection.
		close(u.readDone)
		w := u.worker
		w.Sink.Record(w.failure(0, "", core.KindAcquisition, err, 0))
		u.tracker.seal(nil)
	}
	return nil
}

func (u *processUnit) start(ctx context.Context) error {
	w := u.worker
	req, err := json.Marshal(WorkerRequest{
		Worker:           w.ID,
		Stream:           w.Stream,
		Expected:         w.Classes.Kinds(),
		StatementTimeout: w.StatementTimeout,
	})
	if err != nil {
		return fmt.Errorf("failed to encode worker request: %w", err)
	}

	cmd, err := u.launcher.command(ctx)
	if err != nil {
		return err
	}
	cmd.Stdin = bytes.NewReader(req)
	cmd.Stderr = u.launcher.stderr
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("failed to attach worker stdout: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("failed to start worker process: %w", err)
	}

	u.cmd = cmd
	u.started = true
	go u.read(stdout)
	return nil
}

func (u *processUnit) read(stdout io.Reader) {
	defer close(u.readDone)
	dec := json.NewDecoder(stdout)
	for {
		var o core.Outcome
		if err := dec.Decode(&o); err != nil {
			if !errors.Is(err, io.EOF) {
				u.readErr = err
			}
			return
		}
		u.worker.Sink.Record(o)
	}
}

func (u *processUnit) Wait() error {
	<-u.readDone
	if !u.started {
		return nil
	}
	waitErr := u.cmd.Wait()

	w := u.worker
	if cause := context.Cause(u.ctx); cause != nil {
		kind := core.KindInterrupt
		if errors.Is(cause, ErrHang) {
			kind = core.KindHang
		}
		u.tracker.seal(func(index int, stmt string) (core.Outcome, bool) {
			return w.failure(index, stmt, kind, cause, 0), true
		})
		return nil
	}

	crash := waitErr
	if crash == nil {
		crash = u.readErr
	}
	if crash == nil && u.tracker.recorded() < w.Stream.Len() {
		crash = errors.New("worker process exited before finishing its stream")
	}
	if crash != nil {
		u.launcher.logger.Error("worker process crashed",
			"worker", w.ID, "stream", w.Stream.Label, "error", crash)
		u.tracker.sealCrashed(func(index int, stmt string) core.Outcome {
			return w.failure(index, stmt, core.KindCrash, fmt.Errorf("worker process: %w", crash), 0)
		})
	}
	return nil
}
