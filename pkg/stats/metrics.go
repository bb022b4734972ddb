package stats

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// operationsTotal tracks cache operations by tier, operation and outcome.
	operationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cache_operations_total",
			Help: "Total cache operations by tier, operation and outcome",
		},
		[]string{"tier", "operation", "outcome"},
	)

	// operationDuration tracks operation latency by tier and operation.
	operationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "cache_operation_duration_seconds",
			Help:    "Cache operation duration in seconds by tier and operation",
			Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
		},
		[]string{"tier", "operation"},
	)

	// cacheEntries tracks the current number of entries per tier.
	cacheEntries = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "cache_entries",
			Help: "Current number of entries per cache tier",
		},
		[]string{"tier"},
	)

	// compressionSaves tracks payloads stored compressed.
	compressionSaves = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "cache_compression_saves_total",
			Help: "Total number of payloads stored in compressed form",
		},
	)
)
