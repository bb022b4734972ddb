package cache

import (
	"context"

	"github.com/voiceops/multicache/pkg/l2"
)

// Health is the engine-level health payload served by the health
// endpoint. L1 has no failure modes beyond process death, so overall
// status tracks the remote tier.
type Health struct {
	Status        l2.HealthState `json:"status"`
	L1Entries     int            `json:"l1_entries"`
	L1Capacity    int            `json:"l1_capacity"`
	L1Utilization float64        `json:"l1_utilization_percent"`
	L2            l2.Health      `json:"l2"`
}

// Health reports the engine's health. The engine keeps serving from L1
// and the loader while degraded or down.
func (c *Cache) Health(ctx context.Context) Health {
	h := Health{
		L1Entries:  c.l1.Len(),
		L1Capacity: c.l1.Capacity(),
		L2:         c.l2.Health(ctx),
	}
	if h.L1Capacity > 0 {
		h.L1Utilization = float64(h.L1Entries) / float64(h.L1Capacity) * 100
	}
	h.Status = h.L2.Status
	return h
}
