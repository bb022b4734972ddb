// Package stats collects per-tier, per-operation cache statistics.
//
// The collector is a leaf dependency: every tier holds a reference to it
// and reports inline, it holds no reference back to any tier. Counters
// are plain atomics so recording never takes a lock and never blocks the
// operation being measured.
package stats

import (
	"sync/atomic"
	"time"
)

// Tier identifies the cache layer an operation ran against.
type Tier int

const (
	TierL1 Tier = iota
	TierL2
	TierLoader
	TierWarmer

	tierCount
)

// String returns the stable label used in metrics and snapshots.
func (t Tier) String() string {
	switch t {
	case TierL1:
		return "l1"
	case TierL2:
		return "l2"
	case TierLoader:
		return "loader"
	case TierWarmer:
		return "warmer"
	default:
		return "unknown"
	}
}

// Operation identifies the kind of cache operation.
type Operation int

const (
	OpGet Operation = iota
	OpSet
	OpDelete
	OpWarm

	opCount
)

func (o Operation) String() string {
	switch o {
	case OpGet:
		return "get"
	case OpSet:
		return "set"
	case OpDelete:
		return "delete"
	case OpWarm:
		return "warm"
	default:
		return "unknown"
	}
}

// Outcome classifies how an operation ended.
type Outcome int

const (
	OutcomeHit Outcome = iota
	OutcomeMiss
	OutcomeSuccess
	OutcomeError

	outcomeCount
)

func (o Outcome) String() string {
	switch o {
	case OutcomeHit:
		return "hit"
	case OutcomeMiss:
		return "miss"
	case OutcomeSuccess:
		return "success"
	case OutcomeError:
		return "error"
	default:
		return "unknown"
	}
}

// Collector accumulates monotonically increasing counters. Safe for
// concurrent use without caller-side locking.
type Collector struct {
	start time.Time

	counts   [tierCount][opCount][outcomeCount]atomic.Int64
	latNanos [tierCount][opCount]atomic.Int64
	latCount [tierCount][opCount]atomic.Int64

	compressionSaves atomic.Int64
	breakerTrips     atomic.Int64
}

// NewCollector creates a collector with zeroed counters.
func NewCollector() *Collector {
	return &Collector{start: time.Now()}
}

// Record registers one operation outcome and its duration. It always
// succeeds and never blocks beyond the atomic adds.
func (c *Collector) Record(tier Tier, op Operation, outcome Outcome, d time.Duration) {
	if tier < 0 || tier >= tierCount || op < 0 || op >= opCount ||
		outcome < 0 || outcome >= outcomeCount {
		return
	}

	c.counts[tier][op][outcome].Add(1)
	c.latNanos[tier][op].Add(int64(d))
	c.latCount[tier][op].Add(1)

	operationsTotal.WithLabelValues(tier.String(), op.String(), outcome.String()).Inc()
	operationDuration.WithLabelValues(tier.String(), op.String()).Observe(d.Seconds())
}

// AddCompressionSave counts one payload stored in compressed form.
func (c *Collector) AddCompressionSave() {
	c.compressionSaves.Add(1)
	compressionSaves.Inc()
}

// AddBreakerTrip counts one breaker transition to open.
func (c *Collector) AddBreakerTrip() {
	c.breakerTrips.Add(1)
}

// SetEntries publishes the current entry count for a tier.
func (c *Collector) SetEntries(tier Tier, n int) {
	cacheEntries.WithLabelValues(tier.String()).Set(float64(n))
}
