package export

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the exporter's self-diagnostic counters. Telemetry loss is
// never surfaced to producers, so these counters and the logs are the only
// place it becomes visible.
type Metrics struct {
	SpansReported  prometheus.Counter
	SpansDropped   prometheus.Counter
	SpansExported  prometheus.Counter
	SpansRejected  prometheus.Counter
	ExportBatches  prometheus.Counter
	ExportFailures prometheus.Counter
}

// NewMetrics registers the exporter counters with the given registerer.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		SpansReported: f.NewCounter(prometheus.CounterOpts{
			Name: "kortex_spans_reported_total",
			Help: "Spans submitted by producers.",
		}),
		SpansDropped: f.NewCounter(prometheus.CounterOpts{
			Name: "kortex_spans_dropped_total",
			Help: "Spans dropped because the queue was at capacity.",
		}),
		SpansExported: f.NewCounter(prometheus.CounterOpts{
			Name: "kortex_spans_exported_total",
			Help: "Spans accepted by the backend.",
		}),
		SpansRejected: f.NewCounter(prometheus.CounterOpts{
			Name: "kortex_spans_rejected_total",
			Help: "Spans rejected by the backend in partial-success replies.",
		}),
		ExportBatches: f.NewCounter(prometheus.CounterOpts{
			Name: "kortex_export_batches_total",
			Help: "Batches handed to the transport.",
		}),
		ExportFailures: f.NewCounter(prometheus.CounterOpts{
			Name: "kortex_export_failures_total",
			Help: "Batches lost to transport-level failures.",
		}),
	}
}
