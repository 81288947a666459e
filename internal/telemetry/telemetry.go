// Package telemetry captures counters emitted by the sync engine.
package telemetry

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Pass outcomes reported to ObservePass.
const (
	OutcomeOK    = "ok"
	OutcomeError = "error"
)

// Collector receives telemetry events from the engine. Implementations
// must be inexpensive to call because hooks run inline with sync passes.
type Collector interface {
	ObservePass(outcome string, duration time.Duration)
	AddRecordsWritten(n int)
	AddRecordErrors(n int)
}

type noopCollector struct{}

// Noop returns a collector that discards all metrics.
func Noop() Collector {
	return noopCollector{}
}

func (noopCollector) ObservePass(string, time.Duration) {}
func (noopCollector) AddRecordsWritten(int)             {}
func (noopCollector) AddRecordErrors(int)               {}

// PrometheusCollector exposes engine counters via Prometheus.
type PrometheusCollector struct {
	passes         *prometheus.CounterVec
	passDuration   prometheus.Histogram
	recordsWritten prometheus.Counter
	recordErrors   prometheus.Counter
}

// NewPrometheusCollector registers the engine metrics with the provided
// registerer. A nil registerer falls back to the default one.
func NewPrometheusCollector(reg prometheus.Registerer) (*PrometheusCollector, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	c := &PrometheusCollector{
		passes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "meshsync_passes_total",
			Help: "Number of synchronization passes by outcome.",
		}, []string{"outcome"}),
		passDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "meshsync_pass_duration_seconds",
			Help:    "Duration of synchronization passes.",
			Buckets: prometheus.DefBuckets,
		}),
		recordsWritten: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "meshsync_records_written_total",
			Help: "Number of records written to catalogs.",
		}),
		recordErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "meshsync_record_errors_total",
			Help: "Number of records rejected during normalization.",
		}),
	}

	for _, m := range []prometheus.Collector{c.passes, c.passDuration, c.recordsWritten, c.recordErrors} {
		if err := reg.Register(m); err != nil {
			if _, ok := err.(prometheus.AlreadyRegisteredError); ok {
				continue
			}
			return nil, err
		}
	}
	return c, nil
}

// ObservePass records one completed pass.
func (c *PrometheusCollector) ObservePass(outcome string, duration time.Duration) {
	c.passes.WithLabelValues(outcome).Inc()
	c.passDuration.Observe(duration.Seconds())
}

// AddRecordsWritten counts records committed to a catalog.
func (c *PrometheusCollector) AddRecordsWritten(n int) {
	c.recordsWritten.Add(float64(n))
}

// AddRecordErrors counts records excluded from a batch.
func (c *PrometheusCollector) AddRecordErrors(n int) {
	c.recordErrors.Add(float64(n))
}
