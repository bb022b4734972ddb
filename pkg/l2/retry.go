package l2

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/redis/go-redis/v9"
)

var (
	l2RetriesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "cache_l2_retries_total",
		Help: "Total retry attempts against the remote cache tier by operation",
	}, []string{"operation"})

	l2RetryExhaustedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "cache_l2_retry_exhausted_total",
		Help: "Total operations that exhausted all retry attempts by operation",
	}, []string{"operation"})
)

// withRetry executes fn with bounded retries and exponential backoff.
// Each attempt carries its own timeout; jitter prevents thundering herd.
// redis.Nil is an application-level miss and is never retried.
func (s *Store) withRetry(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	backoff := s.cfg.RetryDelay
	attempts := s.cfg.MaxRetries + 1

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		actx, cancel := context.WithTimeout(ctx, s.cfg.OpTimeout)
		err := fn(actx)
		cancel()

		if err == nil || errors.Is(err, redis.Nil) {
			return err
		}
		lastErr = err

		if attempt >= attempts {
			break
		}

		l2RetriesTotal.WithLabelValues(op).Inc()

		// ±20% jitter.
		jitter := time.Duration(float64(backoff) * (0.8 + rand.Float64()*0.4))
		s.logger.Debug().
			Str("op", op).
			Int("attempt", attempt).
			Dur("backoff", jitter).
			Err(err).
			Msg("Retrying L2 operation after backoff")

		select {
		case <-ctx.Done():
			return fmt.Errorf("context cancelled during retry: %w", ctx.Err())
		case <-time.After(jitter):
		}

		backoff *= 2
	}

	l2RetryExhaustedTotal.WithLabelValues(op).Inc()
	s.logger.Warn().
		Str("op", op).
		Int("attempts", attempts).
		Err(lastErr).
		Msg("L2 retry attempts exhausted")
	return lastErr
}
