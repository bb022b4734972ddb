// Package breaker implements the circuit breaker isolating callers from
// a failing remote cache tier.
//
// The breaker is CLOSED until the failure count reaches the configured
// threshold within the failure window, then OPEN: operations fail fast
// without touching the remote store. After the cool-down it moves to
// HALF_OPEN and admits exactly one probe; the probe's outcome decides
// whether the breaker closes again or re-opens.
package breaker

import (
	"errors"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
)

// Prometheus metrics for breaker state tracking.
var (
	breakerState = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "cache_breaker_state",
		Help: "Current breaker state (0=closed, 1=open, 2=half_open) by breaker name",
	}, []string{"name"})

	breakerTransitionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "cache_breaker_transitions_total",
		Help: "Total breaker state transitions by breaker name and new state",
	}, []string{"name", "state"})

	breakerRejectionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "cache_breaker_rejections_total",
		Help: "Total operations rejected while the breaker was open",
	}, []string{"name"})
)

// ErrOpen is returned by Allow when the breaker rejects an operation.
var ErrOpen = errors.New("circuit breaker is open")

// State is the breaker's current position.
type State int

const (
	// Closed passes operations through to the remote store.
	Closed State = iota

	// Open fails operations fast without contacting the remote store.
	Open

	// HalfOpen admits exactly one trial operation.
	HalfOpen
)

// String returns the stable label used in logs, metrics and health
// payloads.
func (s State) String() string {
	switch s {
	case Closed:
		return "closed"
	case Open:
		return "open"
	case HalfOpen:
		return "half_open"
	default:
		return "unknown"
	}
}

// Config holds breaker thresholds.
type Config struct {
	// Threshold is the failure count that opens the breaker.
	Threshold int

	// Window bounds how long failures accumulate; a failure older than
	// Window resets the count before the next one is added.
	Window time.Duration

	// Cooldown is how long the breaker stays open before probing.
	Cooldown time.Duration
}

// DefaultConfig returns the thresholds used in production.
func DefaultConfig() Config {
	return Config{
		Threshold: 5,
		Window:    time.Minute,
		Cooldown:  30 * time.Second,
	}
}

// Status is a point-in-time view for health probes.
type Status struct {
	State           string    `json:"state"`
	Failures        int       `json:"failures"`
	Threshold       int       `json:"threshold"`
	LastFailure     time.Time `json:"last_failure,omitempty"`
	CooldownSeconds float64   `json:"cooldown_seconds"`
}

// Breaker guards one logical remote target. All methods are safe for
// concurrent use; state transitions are serialized under one mutex.
type Breaker struct {
	name   string
	cfg    Config
	logger zerolog.Logger

	mu          sync.Mutex
	state       State
	failures    int
	lastFailure time.Time
	probing     bool

	// onTrip is invoked (outside any hot path concern, still under mu)
	// whenever the breaker opens.
	onTrip func()

	now func() time.Time
}

// New creates a closed breaker.
func New(name string, cfg Config, logger zerolog.Logger) *Breaker {
	if cfg.Threshold <= 0 {
		cfg.Threshold = DefaultConfig().Threshold
	}
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = DefaultConfig().Cooldown
	}
	b := &Breaker{
		name:   name,
		cfg:    cfg,
		logger: logger.With().Str("breaker", name).Logger(),
		now:    time.Now,
	}
	breakerState.WithLabelValues(name).Set(float64(Closed))
	return b
}

// OnTrip registers a callback invoked every time the breaker opens.
func (b *Breaker) OnTrip(fn func()) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.onTrip = fn
}

// Allow reports whether an operation may proceed. In HALF_OPEN only the
// first concurrent caller is admitted as the probe; the rest are
// rejected as if the breaker were still open. Callers that were allowed
// must report the outcome via Success or Failure.
func (b *Breaker) Allow() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case Closed:
		return nil
	case Open:
		if b.now().Sub(b.lastFailure) < b.cfg.Cooldown {
			breakerRejectionsTotal.WithLabelValues(b.name).Inc()
			return ErrOpen
		}
		b.transition(HalfOpen)
		b.probing = true
		return nil
	case HalfOpen:
		if b.probing {
			breakerRejectionsTotal.WithLabelValues(b.name).Inc()
			return ErrOpen
		}
		b.probing = true
		return nil
	}
	return nil
}

// Success records a successful operation. In HALF_OPEN it closes the
// breaker and resets the failure counter.
func (b *Breaker) Success() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.probing = false
	b.failures = 0
	if b.state != Closed {
		b.transition(Closed)
	}
}

// Failure records a failed operation. Connection errors, timeouts and
// topology errors count here; "key not found" must not be reported.
func (b *Breaker) Failure() {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := b.now()

	if b.state == HalfOpen {
		// Probe failed: back to open, cool-down restarts.
		b.probing = false
		b.lastFailure = now
		b.transition(Open)
		return
	}

	// Failures outside the window do not accumulate.
	if b.cfg.Window > 0 && !b.lastFailure.IsZero() && now.Sub(b.lastFailure) > b.cfg.Window {
		b.failures = 0
	}

	b.failures++
	b.lastFailure = now

	if b.state == Closed && b.failures >= b.cfg.Threshold {
		b.transition(Open)
	}
}

// State returns the current state, accounting for an elapsed cool-down.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state == Open && b.now().Sub(b.lastFailure) >= b.cfg.Cooldown {
		return HalfOpen
	}
	return b.state
}

// Status returns the breaker's current status for health reporting.
func (b *Breaker) Status() Status {
	b.mu.Lock()
	defer b.mu.Unlock()
	return Status{
		State:           b.state.String(),
		Failures:        b.failures,
		Threshold:       b.cfg.Threshold,
		LastFailure:     b.lastFailure,
		CooldownSeconds: b.cfg.Cooldown.Seconds(),
	}
}

// transition must be called with b.mu held.
func (b *Breaker) transition(next State) {
	prev := b.state
	b.state = next
	breakerState.WithLabelValues(b.name).Set(float64(next))
	breakerTransitionsTotal.WithLabelValues(b.name, next.String()).Inc()

	evt := b.logger.Info()
	if next == Open {
		evt = b.logger.Warn()
		if b.onTrip != nil {
			b.onTrip()
		}
	}
	evt.
		Str("from", prev.String()).
		Str("to", next.String()).
		Int("failures", b.failures).
		Msg("Circuit breaker state change")
}
