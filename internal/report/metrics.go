package report

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/leapstack-labs/duckstress/pkg/core"
)

// Keys for duckstress metrics.
const (
	StatementsTotalKey          = "duckstress_statements_total"
	StatementDurationSecondsKey = "duckstress_statement_duration_seconds"
)

// Metrics holds the collectors updated for every outcome.
type Metrics struct {
	StatementsTotal          *prometheus.CounterVec
	StatementDurationSeconds *prometheus.HistogramVec
}

// NewMetrics creates the duckstress collectors and registers them on reg.
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		StatementsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: StatementsTotalKey,
			Help: "Cumulative number of attempted statements.",
		}, []string{"result", "kind"}),
		StatementDurationSeconds: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    StatementDurationSecondsKey,
			Help:    "Duration of statement execution including row materialization.",
			Buckets: prometheus.ExponentialBuckets(0.0001, 4, 10),
		}, []string{"result"}),
	}
	for _, c := range m.Collectors() {
		if err := reg.Register(c); err != nil {
			return nil, fmt.Errorf("failed to register metrics: %w", err)
		}
	}
	return m, nil
}

// Collectors returns every duckstress collector.
func (m *Metrics) Collectors() []prometheus.Collector {
	return []prometheus.Collector{m.StatementsTotal, m.StatementDurationSeconds}
}

// Observe records one outcome.
func (m *Metrics) Observe(o core.Outcome) {
	result := o.Result.String()
	m.StatementsTotal.WithLabelValues(result, o.Kind.String()).Inc()
	m.StatementDurationSeconds.WithLabelValues(result).Observe(o.Duration.Seconds())
}

// WriteTextfile writes everything g gathers to path in the Prometheus text
// format, for pickup by a node exporter textfile collector.
func WriteTextfile(path string, g prometheus.Gatherer) error {
	if err := prometheus.WriteToTextfile(path, g); err != nil {
		return fmt.Errorf("failed to write metrics to %s: %w", path, err)
	}
	return nil
}
