// Package metrics provides centralized Prometheus metrics registry for the cache engine.
// All metrics are defined in their respective packages (stats, breaker, l2)
// to maintain modularity and avoid circular dependencies.
//
// This package provides documentation and reference for all available metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Registry is the default Prometheus registry used by the cache engine.
// All metrics are automatically registered via promauto in their respective packages.
var Registry = prometheus.DefaultRegisterer

// Metrics Documentation
//
// Operation Metrics (pkg/stats):
//   - cache_operations_total{tier, operation, outcome} (Counter): Operations by tier, operation and outcome
//   - cache_operation_duration_seconds{tier, operation} (Histogram): Operation duration by tier and operation
//   - cache_entries{tier} (Gauge): Current number of entries per tier
//   - cache_compression_saves_total (Counter): Payloads stored in compressed form
//
// Circuit Breaker Metrics (pkg/breaker):
//   - cache_breaker_state{breaker} (Gauge): Current state (0=closed, 1=open, 2=half_open)
//   - cache_breaker_transitions_total{breaker, state} (Counter): State transitions by new state
//   - cache_breaker_rejections_total{breaker} (Counter): Operations rejected while the breaker was open
//
// Remote Tier Metrics (pkg/l2):
//   - cache_l2_retries_total{operation} (Counter): Retry attempts by operation
//   - cache_l2_retry_exhausted_total{operation} (Counter): Operations that exhausted all retries
//
// Example Prometheus Queries:
//
//   # L1 Hit Rate
//   sum(rate(cache_operations_total{tier="l1",operation="get",outcome="hit"}[5m])) /
//   sum(rate(cache_operations_total{tier="l1",operation="get"}[5m]))
//
//   # Breaker Open Alert
//   cache_breaker_state == 1
//
//   # Remote Tier Error Rate
//   rate(cache_operations_total{tier="l2",outcome="error"}[5m])
//
//   # P95 Remote Tier Latency
//   histogram_quantile(0.95, rate(cache_operation_duration_seconds_bucket{tier="l2"}[5m]))
//
//   # Retry Exhaustion Rate
//   rate(cache_l2_retry_exhausted_total[5m])
