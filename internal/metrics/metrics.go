package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics stores Prometheus collectors used across the service.
type Metrics struct {
	Operations        *prometheus.CounterVec
	OperationLatency  *prometheus.HistogramVec
	IdempotentReplays *prometheus.CounterVec
	LedgerEntries     *prometheus.CounterVec
	SweptRows         *prometheus.CounterVec
	CacheLookups      *prometheus.CounterVec
	Errors            *prometheus.CounterVec
}

var (
	regOnce         sync.Once
	metricsInstance *Metrics
)

// Registry builds and registers the metrics singleton with optional namespace.
func Registry(namespace string) *Metrics {
	regOnce.Do(func() {
		metricsInstance = &Metrics{
			Operations: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "operations_total",
				Help:      "Total state-changing operations by name and outcome.",
			}, []string{"operation", "outcome"}),
			OperationLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "operation_duration_seconds",
				Help:      "Latency distribution for marketplace operations.",
				Buckets:   prometheus.DefBuckets,
			}, []string{"operation"}),
			IdempotentReplays: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "idempotent_replays_total",
				Help:      "Total operations answered from a recorded result.",
			}, []string{"operation"}),
			LedgerEntries: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "ledger_entries_total",
				Help:      "Total wallet ledger entries written by type and source.",
			}, []string{"type", "source"}),
			SweptRows: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "swept_rows_total",
				Help:      "Total rows expired by background sweeps.",
			}, []string{"sweep"}),
			CacheLookups: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "cache_lookups_total",
				Help:      "Total feed cache lookups by result.",
			}, []string{"result"}),
			Errors: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "errors_total",
				Help:      "Total errors grouped by component.",
			}, []string{"component"}),
		}

		prometheus.MustRegister(
			metricsInstance.Operations,
			metricsInstance.OperationLatency,
			metricsInstance.IdempotentReplays,
			metricsInstance.LedgerEntries,
			metricsInstance.SweptRows,
			metricsInstance.CacheLookups,
			metricsInstance.Errors,
		)
	})
	return metricsInstance
}
