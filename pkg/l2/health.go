package l2

import (
	"context"
	"time"

	"github.com/voiceops/multicache/pkg/breaker"
)

// HealthState summarizes the tier's reachability.
type HealthState string

const (
	HealthOK       HealthState = "ok"
	HealthDegraded HealthState = "degraded"
	HealthDown     HealthState = "down"
)

// Health is the tier's health payload. Field names are consumed by
// external health checks and must stay stable.
type Health struct {
	Status    HealthState    `json:"status"`
	Cluster   bool           `json:"cluster"`
	LatencyMS float64        `json:"latency_ms"`
	Breaker   breaker.Status `json:"breaker"`
	Error     string         `json:"error,omitempty"`
}

// Health pings the primary target and, when that fails, the fallback
// node. An open breaker caps the result at degraded even when a ping
// succeeds.
func (s *Store) Health(ctx context.Context) Health {
	h := Health{Cluster: s.cluster, Breaker: s.breaker.Status()}

	pctx, cancel := context.WithTimeout(ctx, s.cfg.OpTimeout)
	start := time.Now()
	err := s.primary.Ping(pctx).Err()
	cancel()

	if err == nil {
		h.LatencyMS = float64(time.Since(start).Microseconds()) / 1000
		h.Status = HealthOK
		if s.breaker.State() != breaker.Closed {
			h.Status = HealthDegraded
		}
		return h
	}
	h.Error = err.Error()

	if s.fallback != nil {
		fctx, cancel := context.WithTimeout(ctx, s.cfg.OpTimeout)
		start = time.Now()
		ferr := s.fallback.Ping(fctx).Err()
		cancel()
		if ferr == nil {
			h.LatencyMS = float64(time.Since(start).Microseconds()) / 1000
			h.Status = HealthDegraded
			return h
		}
	}

	h.Status = HealthDown
	return h
}
