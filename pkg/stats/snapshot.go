package stats

import "time"

// OperationSnapshot is the accumulated view of one operation kind on one
// tier. Field names are a stable external contract: dashboards scrape
// them and they must not change between releases.
type OperationSnapshot struct {
	Count        int64   `json:"count"`
	AvgLatencyMS float64 `json:"avg_latency_ms"`
}

// TierSnapshot is the accumulated view of one cache tier.
type TierSnapshot struct {
	Hits      int64                        `json:"hits"`
	Misses    int64                        `json:"misses"`
	Successes int64                        `json:"successes"`
	Errors    int64                        `json:"errors"`
	HitRate   float64                      `json:"hit_rate"`
	Ops       map[string]OperationSnapshot `json:"operations"`
}

// Snapshot is a point-in-time read of the running totals. Counters are
// never decremented, so consecutive snapshots are monotonic.
type Snapshot struct {
	L1               TierSnapshot `json:"l1"`
	L2               TierSnapshot `json:"l2"`
	Loader           TierSnapshot `json:"loader"`
	Warmer           TierSnapshot `json:"warmer"`
	OverallHitRate   float64      `json:"overall_hit_rate"`
	CompressionSaves int64        `json:"compression_saves"`
	BreakerTrips     int64        `json:"breaker_trips"`
	UptimeSeconds    float64      `json:"uptime_seconds"`
}

// Snapshot returns the current totals. The read is not a single atomic
// cut across all counters; each counter is individually consistent,
// which is sufficient for monitoring.
func (c *Collector) Snapshot() Snapshot {
	s := Snapshot{
		L1:               c.tierSnapshot(TierL1),
		L2:               c.tierSnapshot(TierL2),
		Loader:           c.tierSnapshot(TierLoader),
		Warmer:           c.tierSnapshot(TierWarmer),
		CompressionSaves: c.compressionSaves.Load(),
		BreakerTrips:     c.breakerTrips.Load(),
		UptimeSeconds:    time.Since(c.start).Seconds(),
	}

	// Overall hit rate counts a request as served from cache when either
	// tier hit; total requests are L1 gets (every read enters through L1).
	totalGets := s.L1.Hits + s.L1.Misses
	if totalGets > 0 {
		s.OverallHitRate = round4(float64(s.L1.Hits+s.L2.Hits) / float64(totalGets))
	}
	return s
}

func (c *Collector) tierSnapshot(tier Tier) TierSnapshot {
	ts := TierSnapshot{Ops: make(map[string]OperationSnapshot, int(opCount))}

	for op := Operation(0); op < opCount; op++ {
		n := c.latCount[tier][op].Load()
		if n == 0 {
			continue
		}
		avg := float64(c.latNanos[tier][op].Load()) / float64(n) / 1e6
		ts.Ops[op.String()] = OperationSnapshot{Count: n, AvgLatencyMS: round4(avg)}
	}

	for op := Operation(0); op < opCount; op++ {
		ts.Hits += c.counts[tier][op][OutcomeHit].Load()
		ts.Misses += c.counts[tier][op][OutcomeMiss].Load()
		ts.Successes += c.counts[tier][op][OutcomeSuccess].Load()
		ts.Errors += c.counts[tier][op][OutcomeError].Load()
	}

	if total := ts.Hits + ts.Misses; total > 0 {
		ts.HitRate = round4(float64(ts.Hits) / float64(total))
	}
	return ts
}

func round4(f float64) float64 {
	return float64(int64(f*10000+0.5)) / 10000
}
