package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	"github.com/voiceops/multicache/pkg/breaker"
	"github.com/voiceops/multicache/pkg/cachekey"
	"github.com/voiceops/multicache/pkg/codec"
	"github.com/voiceops/multicache/pkg/config"
	"github.com/voiceops/multicache/pkg/l1"
	"github.com/voiceops/multicache/pkg/l2"
	"github.com/voiceops/multicache/pkg/stats"
)

// LoaderFunc computes a value from the ultimate source of truth when
// neither tier holds it. Loader failures are the only failure class
// that reaches the caller.
type LoaderFunc func(ctx context.Context) (any, error)

// Cache is the multi-level cache engine. Construct one per process and
// pass it by handle to every call site that needs caching.
type Cache struct {
	cfg     *config.CacheConfig
	l1      *l1.Store
	l2      *l2.Store
	breaker *breaker.Breaker
	stats   *stats.Collector
	logger  zerolog.Logger

	// flight coalesces concurrent loads of the same missing key.
	flight singleflight.Group
}

// New builds the engine from a validated configuration: stats collector,
// breaker, codec, both tiers.
func New(cfg *config.CacheConfig, logger zerolog.Logger) (*Cache, error) {
	if cfg == nil {
		return nil, fmt.Errorf("cache config is required")
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid cache config: %w", err)
	}

	collector := stats.NewCollector()

	brk := breaker.New("l2", breaker.Config{
		Threshold: cfg.BreakerThreshold,
		Window:    cfg.BreakerWindow,
		Cooldown:  cfg.BreakerCooldown,
	}, logger)
	brk.OnTrip(collector.AddBreakerTrip)

	cdc := codec.New(cfg.CompressionThreshold, collector)

	l2Store, err := l2.New(l2.Config{
		Endpoints:        cfg.RedisEndpoints,
		FallbackEndpoint: cfg.RedisFallback,
		Password:         cfg.RedisPassword,
		OpTimeout:        cfg.OpTimeout,
		MaxRetries:       cfg.MaxRetries,
		RetryDelay:       cfg.RetryDelay,
	}, cdc, brk, collector, logger)
	if err != nil {
		return nil, fmt.Errorf("create l2 store: %w", err)
	}

	c := &Cache{
		cfg:     cfg,
		l1:      l1.New(cfg.L1Capacity, collector),
		l2:      l2Store,
		breaker: brk,
		stats:   collector,
		logger:  logger.With().Str("component", "cache").Logger(),
	}

	c.logger.Info().
		Int("l1_capacity", cfg.L1Capacity).
		Strs("l2_endpoints", cfg.RedisEndpoints).
		Dur("business_ttl", cfg.BusinessLookupTTL).
		Dur("knowledge_ttl", cfg.KnowledgeBaseTTL).
		Msg("Multi-level cache initialized")

	return c, nil
}

// GetOrLoad returns the cached value for key, consulting L1, then L2,
// then the loader. A ttl of 0 selects the namespace default. The result
// is unmarshaled into dst.
//
// Loader results are written back to L2 best-effort; L1 is only
// populated when L2 accepted the write, so an unreachable remote tier
// keeps the loader authoritative instead of pinning values in process.
func (c *Cache) GetOrLoad(ctx context.Context, key cachekey.Key, ttl time.Duration, dst any, loader LoaderFunc) error {
	if ttl <= 0 {
		ttl = c.cfg.TTLFor(key.Namespace)
	}
	ks := key.String()

	if raw, ok := c.l1.Get(ks); ok {
		if err := json.Unmarshal(raw, dst); err == nil {
			return nil
		}
		// Stored shape no longer matches the caller's type: reload.
		c.logger.Error().Str("key", ks).Msg("Dropping undecodable L1 entry")
		c.l1.Delete(ks)
	}

	raw, remaining, err := c.l2.Get(ctx, ks)
	if err == nil {
		if uerr := json.Unmarshal(raw, dst); uerr == nil {
			c.promote(ks, raw, remaining)
			return nil
		}
		c.logger.Error().Str("key", ks).Msg("Dropping undecodable L2 entry")
		_ = c.l2.Delete(ctx, ks)
	} else if !errors.Is(err, l2.ErrMiss) {
		// Unavailable: absorbed here, the loader takes over.
		c.logger.Debug().Str("key", ks).Msg("L2 unavailable, falling through to loader")
	}

	loaded, err, _ := c.flight.Do(ks, func() (any, error) {
		return c.load(ctx, ks, ttl, loader)
	})
	if err != nil {
		return err
	}
	return json.Unmarshal(loaded.([]byte), dst)
}

// Set writes value through both tiers, bypassing the loader. The warmer
// and call sites with fresh data use this path. The L2 error, if any, is
// returned after L1 has been updated.
func (c *Cache) Set(ctx context.Context, key cachekey.Key, value any, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = c.cfg.TTLFor(key.Namespace)
	}
	ks := key.String()

	raw, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("marshal cache value: %w", err)
	}

	l2Err := c.l2.Set(ctx, ks, raw, ttl)
	c.l1.Set(ks, raw, c.l1TTL(ttl))

	if l2Err != nil {
		c.logger.Warn().Err(l2Err).Str("key", ks).Msg("L2 write-through failed")
	}
	return l2Err
}

// Invalidate removes key from both tiers. The L2 deletion is
// best-effort: under breaker-open conditions the failure is recorded
// and TTL expiry is the backstop, so no error is returned for it.
func (c *Cache) Invalidate(ctx context.Context, key cachekey.Key) error {
	ks := key.String()
	c.l1.Delete(ks)

	if err := c.l2.Delete(ctx, ks); err != nil {
		c.logger.Warn().Err(err).Str("key", ks).Msg("L2 invalidation failed, TTL is the backstop")
	}
	return nil
}

// InvalidatePattern removes every key in namespace whose suffix matches
// the glob pattern. Returns how many entries were removed across both
// tiers; the L2 sweep is best-effort.
func (c *Cache) InvalidatePattern(ctx context.Context, namespace, pattern string) (int, error) {
	prefix := cachekey.Prefix(namespace)

	removed := c.l1.DeleteFunc(func(key string) bool {
		if !strings.HasPrefix(key, prefix) {
			return false
		}
		ok, err := path.Match(pattern, strings.TrimPrefix(key, prefix))
		return err == nil && ok
	})

	n, err := c.l2.DeletePattern(ctx, prefix+pattern)
	if err != nil {
		c.logger.Warn().Err(err).
			Str("namespace", namespace).
			Str("pattern", pattern).
			Msg("L2 pattern invalidation failed, TTL is the backstop")
		return removed, nil
	}

	c.logger.Info().
		Str("namespace", namespace).
		Str("pattern", pattern).
		Int("l1_removed", removed).
		Int("l2_removed", n).
		Msg("Cache pattern invalidated")
	return removed + n, nil
}

// Clear empties L1 and sweeps every key owned by this engine from L2.
func (c *Cache) Clear(ctx context.Context) error {
	c.l1.Clear()
	if _, err := c.l2.DeletePattern(ctx, cachekey.GlobalPrefix()+"*"); err != nil {
		return err
	}
	return nil
}

// Snapshot returns the cumulative statistics.
func (c *Cache) Snapshot() stats.Snapshot {
	return c.stats.Snapshot()
}

// Stats exposes the collector so cooperating components (the warmer)
// can record into the same totals.
func (c *Cache) Stats() *stats.Collector {
	return c.stats
}

// Close releases the remote tier's connections.
func (c *Cache) Close() error {
	return c.l2.Close()
}

// load runs the loader and writes the result back. Called inside
// singleflight, so one missing key costs one loader invocation no
// matter how many callers are waiting.
func (c *Cache) load(ctx context.Context, ks string, ttl time.Duration, loader LoaderFunc) ([]byte, error) {
	start := time.Now()
	value, err := loader(ctx)
	if err != nil {
		c.stats.Record(stats.TierLoader, stats.OpGet, stats.OutcomeError, time.Since(start))
		return nil, err
	}
	c.stats.Record(stats.TierLoader, stats.OpGet, stats.OutcomeSuccess, time.Since(start))

	raw, err := json.Marshal(value)
	if err != nil {
		return nil, fmt.Errorf("marshal loaded value: %w", err)
	}

	if werr := c.l2.Set(ctx, ks, raw, ttl); werr != nil {
		c.logger.Warn().Err(werr).Str("key", ks).Msg("Best-effort L2 write-back failed")
	} else {
		c.l1.Set(ks, raw, c.l1TTL(ttl))
	}

	return raw, nil
}

// promote copies an L2 hit into L1 with the entry's remaining lifetime.
func (c *Cache) promote(ks string, raw []byte, remaining time.Duration) {
	c.l1.Set(ks, raw, c.l1TTL(remaining))
}

// l1TTL caps in-process lifetimes: L1 is never the source of truth, so
// its copies expire at least as fast as the configured L1 default.
func (c *Cache) l1TTL(ttl time.Duration) time.Duration {
	if c.cfg.L1DefaultTTL > 0 && ttl > c.cfg.L1DefaultTTL {
		return c.cfg.L1DefaultTTL
	}
	return ttl
}
