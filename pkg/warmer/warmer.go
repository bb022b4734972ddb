// Package warmer pre-populates the cache with hot keys so the first
// caller after a deploy or an expiry wave does not pay the loader's
// latency. Warming goes through the regular read path, so keys that are
// still cached are skipped instead of reloaded.
package warmer

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/voiceops/multicache/pkg/cache"
	"github.com/voiceops/multicache/pkg/cachekey"
	"github.com/voiceops/multicache/pkg/stats"
)

// KeysFunc enumerates the keys a spec wants warm. Called at the start
// of every cycle so the set can change between runs.
type KeysFunc func(ctx context.Context) ([]cachekey.Key, error)

// LoadFunc fetches the value for one key from the source of truth.
type LoadFunc func(ctx context.Context, key cachekey.Key) (any, error)

// Spec describes one warming job.
type Spec struct {
	// Name identifies the spec in logs and status output.
	Name string
	// TTL for warmed entries; 0 selects the key's namespace default.
	TTL time.Duration
	// Interval between cycles; 0 means run only via WarmNow.
	Interval time.Duration
	Keys     KeysFunc
	Load     LoadFunc
}

// Result summarizes one warming cycle.
type Result struct {
	Spec     string        `json:"spec"`
	Keys     int           `json:"keys"`
	Loaded   int           `json:"loaded"`
	Skipped  int           `json:"skipped"`
	Failed   int           `json:"failed"`
	Duration time.Duration `json:"duration"`
}

// Status is the per-spec view reported by the stats endpoint.
type Status struct {
	Spec     string    `json:"spec"`
	Runs     int64     `json:"runs"`
	LastRun  time.Time `json:"last_run"`
	LastKeys int       `json:"last_keys"`
	LastFail int       `json:"last_failed"`
}

type specState struct {
	spec    Spec
	runs    int64
	last    Result
	lastRun time.Time
}

// Warmer runs registered specs on their intervals with bounded
// concurrency across keys.
type Warmer struct {
	cache       *cache.Cache
	concurrency int
	logger      zerolog.Logger

	mu     sync.Mutex
	specs  map[string]*specState
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates a warmer feeding the given cache. Concurrency bounds how
// many keys load in parallel within one cycle.
func New(c *cache.Cache, concurrency int, logger zerolog.Logger) *Warmer {
	if concurrency <= 0 {
		concurrency = 1
	}
	return &Warmer{
		cache:       c,
		concurrency: concurrency,
		logger:      logger.With().Str("component", "warmer").Logger(),
		specs:       make(map[string]*specState),
	}
}

// Register adds a spec. Specs registered after Start only run via
// WarmNow until the warmer is restarted.
func (w *Warmer) Register(spec Spec) error {
	if spec.Name == "" {
		return fmt.Errorf("warming spec needs a name")
	}
	if spec.Keys == nil || spec.Load == nil {
		return fmt.Errorf("warming spec %q needs Keys and Load functions", spec.Name)
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	if _, exists := w.specs[spec.Name]; exists {
		return fmt.Errorf("warming spec %q already registered", spec.Name)
	}
	w.specs[spec.Name] = &specState{spec: spec}
	return nil
}

// Start launches a background loop per interval-bearing spec. Each loop
// runs one cycle immediately, then on its interval until Stop or ctx
// cancellation.
func (w *Warmer) Start(ctx context.Context) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.cancel != nil {
		return
	}

	ctx, w.cancel = context.WithCancel(ctx)
	for _, st := range w.specs {
		if st.spec.Interval <= 0 {
			continue
		}
		w.wg.Add(1)
		go w.loop(ctx, st.spec.Name, st.spec.Interval)
	}
	w.logger.Info().Int("specs", len(w.specs)).Msg("Cache warming started")
}

// Stop cancels the background loops and waits for in-flight cycles.
func (w *Warmer) Stop() {
	w.mu.Lock()
	cancel := w.cancel
	w.cancel = nil
	w.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	w.wg.Wait()
	w.logger.Info().Msg("Cache warming stopped")
}

// WarmNow runs one cycle of the named spec synchronously.
func (w *Warmer) WarmNow(ctx context.Context, name string) (Result, error) {
	w.mu.Lock()
	st, ok := w.specs[name]
	w.mu.Unlock()
	if !ok {
		return Result{}, fmt.Errorf("unknown warming spec %q", name)
	}
	return w.runCycle(ctx, st)
}

// StatusAll reports every spec's run history.
func (w *Warmer) StatusAll() []Status {
	w.mu.Lock()
	defer w.mu.Unlock()

	out := make([]Status, 0, len(w.specs))
	for name, st := range w.specs {
		out = append(out, Status{
			Spec:     name,
			Runs:     st.runs,
			LastRun:  st.lastRun,
			LastKeys: st.last.Keys,
			LastFail: st.last.Failed,
		})
	}
	return out
}

func (w *Warmer) loop(ctx context.Context, name string, interval time.Duration) {
	defer w.wg.Done()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	w.cycleByName(ctx, name)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.cycleByName(ctx, name)
		}
	}
}

func (w *Warmer) cycleByName(ctx context.Context, name string) {
	w.mu.Lock()
	st, ok := w.specs[name]
	w.mu.Unlock()
	if !ok {
		return
	}
	if _, err := w.runCycle(ctx, st); err != nil && ctx.Err() == nil {
		w.logger.Error().Err(err).Str("spec", name).Msg("Warming cycle failed")
	}
}

// runCycle enumerates keys and loads them through the cache's read
// path. A failing key is counted and logged, never aborts the cycle.
func (w *Warmer) runCycle(ctx context.Context, st *specState) (Result, error) {
	spec := st.spec
	start := time.Now()

	keys, err := spec.Keys(ctx)
	if err != nil {
		w.cache.Stats().Record(stats.TierWarmer, stats.OpWarm, stats.OutcomeError, time.Since(start))
		return Result{Spec: spec.Name}, fmt.Errorf("enumerate keys for %q: %w", spec.Name, err)
	}

	var loaded, failed atomic.Int64
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(w.concurrency)
	for _, key := range keys {
		g.Go(func() error {
			fresh := false
			var sink any
			err := w.cache.GetOrLoad(gctx, key, spec.TTL, &sink, func(ctx context.Context) (any, error) {
				fresh = true
				return spec.Load(ctx, key)
			})
			if err != nil {
				failed.Add(1)
				w.logger.Warn().Err(err).Str("spec", spec.Name).Str("key", key.String()).Msg("Failed to warm key")
				return nil
			}
			if fresh {
				loaded.Add(1)
			}
			return nil
		})
	}
	_ = g.Wait()

	res := Result{
		Spec:     spec.Name,
		Keys:     len(keys),
		Loaded:   int(loaded.Load()),
		Failed:   int(failed.Load()),
		Duration: time.Since(start),
	}
	res.Skipped = res.Keys - res.Loaded - res.Failed

	outcome := stats.OutcomeSuccess
	if res.Failed > 0 {
		outcome = stats.OutcomeError
	}
	w.cache.Stats().Record(stats.TierWarmer, stats.OpWarm, outcome, res.Duration)

	w.mu.Lock()
	st.runs++
	st.last = res
	st.lastRun = time.Now()
	w.mu.Unlock()

	w.logger.Info().
		Str("spec", spec.Name).
		Int("keys", res.Keys).
		Int("loaded", res.Loaded).
		Int("skipped", res.Skipped).
		Int("failed", res.Failed).
		Dur("duration", res.Duration).
		Msg("Warming cycle complete")
	return res, nil
}
