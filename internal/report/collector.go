package report

import (
	"fmt"
	"io"
	"sync"

	"github.com/leapstack-labs/duckstress/pkg/core"
)

// Collector stores outcomes as they arrive and writes them to a live outcome
// log. It is safe for concurrent use by every worker of a run.
type Collector struct {
	mu         sync.Mutex
	outcomes   []core.Outcome
	w          io.Writer
	errorsOnly bool
	formatter  Formatter
	metrics    *Metrics
	writeErr   error
}

// CollectorOption configures a Collector.
type CollectorOption func(*Collector)

// WithLog writes one outcome log line per outcome to w.
func WithLog(w io.Writer) CollectorOption {
	return func(c *Collector) { c.w = w }
}

// WithErrorsOnly restricts the live log to failed attempts.
func WithErrorsOnly(errorsOnly bool) CollectorOption {
	return func(c *Collector) { c.errorsOnly = errorsOnly }
}

// WithMaxStatementLength truncates statements in the live log.
func WithMaxStatementLength(n int) CollectorOption {
	return func(c *Collector) { c.formatter.MaxStatementLength = n }
}

// WithMetrics updates m for every outcome.
func WithMetrics(m *Metrics) CollectorOption {
	return func(c *Collector) { c.metrics = m }
}

// NewCollector returns an empty collector.
func NewCollector(opts ...CollectorOption) *Collector {
	c := &Collector{}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Record stores o, logs it and updates metrics.
func (c *Collector) Record(o core.Outcome) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.outcomes = append(c.outcomes, o)
	if c.metrics != nil {
		c.metrics.Observe(o)
	}
	if c.w == nil || c.writeErr != nil || (c.errorsOnly && !o.Failed()) {
		return
	}
	if _, err := fmt.Fprintln(c.w, c.formatter.Format(o)); err != nil {
		c.writeErr = err
	}
}

// Outcomes returns a copy of the recorded outcomes.
func (c *Collector) Outcomes() []core.Outcome {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]core.Outcome(nil), c.outcomes...)
}

// Summary summarizes the recorded outcomes.
func (c *Collector) Summary() Summary {
	return Summarize(c.Outcomes())
}

// Err returns the first error writing the live log. Logging stops after it.
func (c *Collector) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.writeErr
}
