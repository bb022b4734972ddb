// Package l2 implements the clustered remote cache tier on Redis.
//
// The store routes keys through a cluster client when multiple endpoints
// are configured and falls back to a single-node client for degraded
// operation when the cluster is unreachable. All calls pass the circuit
// breaker first and carry a bounded per-attempt timeout; transient
// failures are retried with exponential backoff before the fallback node
// is consulted.
package l2

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/voiceops/multicache/pkg/breaker"
	"github.com/voiceops/multicache/pkg/codec"
	"github.com/voiceops/multicache/pkg/stats"
)

var (
	// ErrMiss indicates the key was not found. Not a failure: it never
	// counts toward the breaker threshold.
	ErrMiss = errors.New("l2 cache miss")

	// ErrUnavailable indicates the tier could not be reached: breaker
	// open, retries exhausted, or fallback also down. Distinct from
	// ErrMiss so the orchestrator can treat it as miss-and-fallback
	// rather than an authoritative absence.
	ErrUnavailable = errors.New("l2 cache unavailable")
)

// client is the common surface of redis.Client and redis.ClusterClient.
type client interface {
	redis.Cmdable
	Close() error
}

// Config holds the remote tier settings.
type Config struct {
	// Endpoints is the cluster node list. A single endpoint selects a
	// plain client instead of a cluster client.
	Endpoints []string

	// FallbackEndpoint is the single node used for degraded operation
	// when the cluster is unreachable. Empty disables the fallback.
	FallbackEndpoint string

	// Password applies to all nodes.
	Password string

	// OpTimeout bounds each attempt against Redis.
	OpTimeout time.Duration

	// MaxRetries is the number of retries after the initial attempt.
	MaxRetries int

	// RetryDelay is the initial backoff between attempts.
	RetryDelay time.Duration
}

// Store is the breaker-guarded Redis tier. Safe for concurrent use.
type Store struct {
	primary  client
	fallback client
	cluster  bool

	cfg     Config
	codec   *codec.Codec
	breaker *breaker.Breaker
	stats   *stats.Collector
	logger  zerolog.Logger
}

// New creates a store from the given configuration. The breaker and
// codec are required; the collector may be nil.
func New(cfg Config, cdc *codec.Codec, brk *breaker.Breaker, collector *stats.Collector, logger zerolog.Logger) (*Store, error) {
	if len(cfg.Endpoints) == 0 {
		return nil, fmt.Errorf("at least one redis endpoint is required")
	}
	if cdc == nil {
		return nil, fmt.Errorf("codec is required")
	}
	if brk == nil {
		return nil, fmt.Errorf("breaker is required")
	}
	if cfg.OpTimeout <= 0 {
		cfg.OpTimeout = 5 * time.Second
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = 100 * time.Millisecond
	}

	s := &Store{
		cfg:     cfg,
		codec:   cdc,
		breaker: brk,
		stats:   collector,
		logger:  logger.With().Str("component", "l2").Logger(),
	}

	if len(cfg.Endpoints) > 1 {
		s.primary = redis.NewClusterClient(&redis.ClusterOptions{
			Addrs:    cfg.Endpoints,
			Password: cfg.Password,
		})
		s.cluster = true
	} else {
		s.primary = redis.NewClient(&redis.Options{
			Addr:     cfg.Endpoints[0],
			Password: cfg.Password,
		})
	}

	if cfg.FallbackEndpoint != "" {
		s.fallback = redis.NewClient(&redis.Options{
			Addr:     cfg.FallbackEndpoint,
			Password: cfg.Password,
		})
	}

	return s, nil
}

// Get fetches and decodes the value stored under key. On hit it returns
// the plain value bytes and the remaining TTL. Returns ErrMiss for
// absent, expired or corrupt entries and ErrUnavailable when the tier
// cannot be reached.
func (s *Store) Get(ctx context.Context, key string) ([]byte, time.Duration, error) {
	start := time.Now()

	var raw []byte
	err := s.do(ctx, "get", func(ctx context.Context, c redis.Cmdable) error {
		b, err := c.Get(ctx, key).Bytes()
		if err != nil {
			return err
		}
		raw = b
		return nil
	})
	if errors.Is(err, redis.Nil) {
		s.record(stats.OpGet, stats.OutcomeMiss, start)
		return nil, 0, ErrMiss
	}
	if err != nil {
		s.record(stats.OpGet, stats.OutcomeError, start)
		return nil, 0, err
	}

	entry, value, err := s.codec.Decode(raw)
	if err != nil {
		// Corrupt payloads are safer reloaded than served.
		s.logger.Error().Err(err).Str("key", key).Msg("Dropping undecodable cache entry")
		s.record(stats.OpGet, stats.OutcomeError, start)
		s.deleteQuiet(ctx, key)
		return nil, 0, ErrMiss
	}

	now := time.Now()
	if entry.Expired(now) {
		s.record(stats.OpGet, stats.OutcomeMiss, start)
		s.deleteQuiet(ctx, key)
		return nil, 0, ErrMiss
	}

	s.record(stats.OpGet, stats.OutcomeHit, start)
	return value, entry.Remaining(now), nil
}

// Set encodes and stores value under key. The Redis expiry is set to the
// envelope TTL so Redis GC backs the freshness invariant.
func (s *Store) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	start := time.Now()

	if ttl <= 0 {
		return nil
	}

	data, err := s.codec.Encode(value, ttl)
	if err != nil {
		s.record(stats.OpSet, stats.OutcomeError, start)
		return fmt.Errorf("encode cache entry: %w", err)
	}

	err = s.do(ctx, "set", func(ctx context.Context, c redis.Cmdable) error {
		return c.Set(ctx, key, data, ttl).Err()
	})
	if err != nil {
		s.record(stats.OpSet, stats.OutcomeError, start)
		return err
	}

	s.record(stats.OpSet, stats.OutcomeSuccess, start)
	return nil
}

// Delete removes key. Deleting an absent key is a success.
func (s *Store) Delete(ctx context.Context, key string) error {
	start := time.Now()

	err := s.do(ctx, "delete", func(ctx context.Context, c redis.Cmdable) error {
		return c.Del(ctx, key).Err()
	})
	if err != nil && !errors.Is(err, redis.Nil) {
		s.record(stats.OpDelete, stats.OutcomeError, start)
		return err
	}

	s.record(stats.OpDelete, stats.OutcomeSuccess, start)
	return nil
}

// DeletePattern removes every key matching the glob pattern and returns
// how many were deleted.
func (s *Store) DeletePattern(ctx context.Context, pattern string) (int, error) {
	start := time.Now()

	deleted := 0
	err := s.do(ctx, "delete", func(ctx context.Context, c redis.Cmdable) error {
		iter := c.Scan(ctx, 0, pattern, 100).Iterator()
		var keys []string
		for iter.Next(ctx) {
			keys = append(keys, iter.Val())
		}
		if err := iter.Err(); err != nil {
			return err
		}
		if len(keys) == 0 {
			return nil
		}
		n, err := c.Del(ctx, keys...).Result()
		if err != nil {
			return err
		}
		deleted = int(n)
		return nil
	})
	if err != nil {
		s.record(stats.OpDelete, stats.OutcomeError, start)
		return 0, err
	}

	s.record(stats.OpDelete, stats.OutcomeSuccess, start)
	return deleted, nil
}

// Close releases both Redis clients.
func (s *Store) Close() error {
	err := s.primary.Close()
	if s.fallback != nil {
		if ferr := s.fallback.Close(); err == nil {
			err = ferr
		}
	}
	return err
}

// do runs fn behind the breaker: primary with retries first, fallback
// node once when the primary is exhausted. redis.Nil passes through
// untouched and never counts as a breaker failure.
func (s *Store) do(ctx context.Context, op string, fn func(ctx context.Context, c redis.Cmdable) error) error {
	if err := s.breaker.Allow(); err != nil {
		s.logger.Debug().Str("op", op).Msg("Breaker open, rejecting L2 operation")
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	err := s.withRetry(ctx, op, func(ctx context.Context) error {
		return fn(ctx, s.primary)
	})
	if err == nil || errors.Is(err, redis.Nil) {
		s.breaker.Success()
		return err
	}

	s.breaker.Failure()

	if s.fallback != nil {
		fctx, cancel := context.WithTimeout(ctx, s.cfg.OpTimeout)
		ferr := fn(fctx, s.fallback)
		cancel()
		if ferr == nil || errors.Is(ferr, redis.Nil) {
			s.logger.Warn().
				Str("op", op).
				Str("fallback", s.cfg.FallbackEndpoint).
				Msg("Primary unreachable, served by fallback node")
			return ferr
		}
		s.logger.Error().Err(ferr).Str("op", op).Msg("Fallback node also unreachable")
	}

	return fmt.Errorf("%w: %v", ErrUnavailable, err)
}

// deleteQuiet removes a key best-effort, outside the caller's breaker
// accounting.
func (s *Store) deleteQuiet(ctx context.Context, key string) {
	dctx, cancel := context.WithTimeout(ctx, s.cfg.OpTimeout)
	defer cancel()
	_ = s.primary.Del(dctx, key).Err()
}

func (s *Store) record(op stats.Operation, outcome stats.Outcome, start time.Time) {
	if s.stats != nil {
		s.stats.Record(stats.TierL2, op, outcome, time.Since(start))
	}
}
