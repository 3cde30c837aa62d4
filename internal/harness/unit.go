package harness

import (
	"context"
)

// Unit is one concurrently executing worker. Start must not block on the
// worker; Wait blocks until the worker has finished.
type Unit interface {
	Start(ctx context.Context) error
	Wait() error
}

// launcher turns workers into execution units. The worker's Sink is t.
type launcher interface {
	launch(w *Worker, t *tracker) Unit
}

// threadLauncher runs workers as goroutines inside this process.
type threadLauncher struct {
	factory ConnFactory
}

func (l threadLauncher) launch(w *Worker, _ *tracker) Unit {
	return &threadUnit{worker: w, factory: l.factory, done: make(chan struct{})}
}

type threadUnit struct {
	worker  *Worker
	factory ConnFactory
	done    chan struct{}
}

func (u *threadUnit) Start(ctx context.Context) error {
	go func() {
		defer close(u.done)
		u.worker.Run(ctx, u.factory)
	}()
	return nil
}

func (u *threadUnit) Wait() error {
	<-u.done
	return nil
}
