package l2

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/voiceops/multicache/internal/testutil"
	"github.com/voiceops/multicache/pkg/breaker"
	"github.com/voiceops/multicache/pkg/codec"
	"github.com/voiceops/multicache/pkg/stats"
)

func newTestStore(t *testing.T, cfg Config) *Store {
	t.Helper()

	if cfg.OpTimeout == 0 {
		cfg.OpTimeout = time.Second
	}
	if cfg.RetryDelay == 0 {
		cfg.RetryDelay = time.Millisecond
	}

	brk := breaker.New("l2-test", breaker.Config{Threshold: 5, Window: time.Minute, Cooldown: 30 * time.Second}, zerolog.Nop())
	s, err := New(cfg, codec.New(1024, nil), brk, stats.NewCollector(), zerolog.Nop())
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestStore_SetAndGet(t *testing.T) {
	mr := testutil.NewRedis(t)
	s := newTestStore(t, Config{Endpoints: []string{mr.Addr()}})
	ctx := context.Background()

	value := []byte(`{"name":"Acme"}`)
	if err := s.Set(ctx, "mlc:default:k1", value, 30*time.Minute); err != nil {
		t.Fatalf("Set failed: %v", err)
	}

	got, remaining, err := s.Get(ctx, "mlc:default:k1")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if string(got) != string(value) {
		t.Errorf("value = %s, want %s", got, value)
	}
	if remaining <= 29*time.Minute || remaining > 30*time.Minute {
		t.Errorf("remaining TTL = %v, want just under 30m", remaining)
	}
}

func TestStore_Miss(t *testing.T) {
	mr := testutil.NewRedis(t)
	s := newTestStore(t, Config{Endpoints: []string{mr.Addr()}})

	_, _, err := s.Get(context.Background(), "mlc:default:absent")
	if !errors.Is(err, ErrMiss) {
		t.Errorf("Get absent key = %v, want ErrMiss", err)
	}

	// A miss is not a failure: the breaker must stay closed.
	if got := s.breaker.State(); got != breaker.Closed {
		t.Errorf("breaker state after miss = %v, want closed", got)
	}
}

func TestStore_ExpiredEnvelopeIsMiss(t *testing.T) {
	mr := testutil.NewRedis(t)
	s := newTestStore(t, Config{Endpoints: []string{mr.Addr()}})
	ctx := context.Background()

	if err := s.Set(ctx, "mlc:default:short", []byte("v"), 30*time.Millisecond); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	time.Sleep(50 * time.Millisecond)

	// miniredis does not advance its TTL clock, so the key is still
	// present; the envelope's own expiry must catch it.
	_, _, err := s.Get(ctx, "mlc:default:short")
	if !errors.Is(err, ErrMiss) {
		t.Errorf("Get expired entry = %v, want ErrMiss", err)
	}
}

func TestStore_CorruptPayloadIsMiss(t *testing.T) {
	mr := testutil.NewRedis(t)
	s := newTestStore(t, Config{Endpoints: []string{mr.Addr()}})

	mr.Set("mlc:default:bad", "not an envelope")

	_, _, err := s.Get(context.Background(), "mlc:default:bad")
	if !errors.Is(err, ErrMiss) {
		t.Errorf("Get corrupt entry = %v, want ErrMiss", err)
	}

	// The corrupt entry is dropped so it cannot poison later reads.
	if mr.Exists("mlc:default:bad") {
		t.Error("corrupt entry should have been deleted")
	}
}

func TestStore_Delete(t *testing.T) {
	mr := testutil.NewRedis(t)
	s := newTestStore(t, Config{Endpoints: []string{mr.Addr()}})
	ctx := context.Background()

	if err := s.Set(ctx, "mlc:default:k", []byte("v"), time.Minute); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	if err := s.Delete(ctx, "mlc:default:k"); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if _, _, err := s.Get(ctx, "mlc:default:k"); !errors.Is(err, ErrMiss) {
		t.Errorf("Get after delete = %v, want ErrMiss", err)
	}

	// Deleting an absent key succeeds.
	if err := s.Delete(ctx, "mlc:default:gone"); err != nil {
		t.Errorf("Delete absent key = %v, want nil", err)
	}
}

func TestStore_DeletePattern(t *testing.T) {
	mr := testutil.NewRedis(t)
	s := newTestStore(t, Config{Endpoints: []string{mr.Addr()}})
	ctx := context.Background()

	for _, key := range []string{
		"mlc:knowledge-base:biz1:q1",
		"mlc:knowledge-base:biz1:q2",
		"mlc:knowledge-base:biz2:q1",
	} {
		if err := s.Set(ctx, key, []byte("v"), time.Minute); err != nil {
			t.Fatalf("Set %s failed: %v", key, err)
		}
	}

	deleted, err := s.DeletePattern(ctx, "mlc:knowledge-base:biz1:*")
	if err != nil {
		t.Fatalf("DeletePattern failed: %v", err)
	}
	if deleted != 2 {
		t.Errorf("deleted = %d, want 2", deleted)
	}
	if _, _, err := s.Get(ctx, "mlc:knowledge-base:biz2:q1"); err != nil {
		t.Errorf("unrelated key lost: %v", err)
	}
}

func TestStore_Unavailable(t *testing.T) {
	dead := testutil.DeadEndpoint(t)
	s := newTestStore(t, Config{Endpoints: []string{dead}, MaxRetries: 1})

	_, _, err := s.Get(context.Background(), "mlc:default:k")
	if !errors.Is(err, ErrUnavailable) {
		t.Errorf("Get against dead endpoint = %v, want ErrUnavailable", err)
	}
	if errors.Is(err, ErrMiss) {
		t.Error("unavailable must be distinct from miss")
	}
}

func TestStore_FallbackNode(t *testing.T) {
	dead := testutil.DeadEndpoint(t)
	mr := testutil.NewRedis(t)
	s := newTestStore(t, Config{
		Endpoints:        []string{dead},
		FallbackEndpoint: mr.Addr(),
		MaxRetries:       0,
	})
	ctx := context.Background()

	// Writes and reads survive through the fallback node.
	if err := s.Set(ctx, "mlc:default:k", []byte("v"), time.Minute); err != nil {
		t.Fatalf("Set via fallback failed: %v", err)
	}
	got, _, err := s.Get(ctx, "mlc:default:k")
	if err != nil {
		t.Fatalf("Get via fallback failed: %v", err)
	}
	if string(got) != "v" {
		t.Errorf("value = %s, want v", got)
	}
}

func TestStore_BreakerOpenShortCircuits(t *testing.T) {
	mr := testutil.NewRedis(t)

	brk := breaker.New("l2-open-test", breaker.Config{Threshold: 1, Window: time.Minute, Cooldown: time.Hour}, zerolog.Nop())
	s, err := New(Config{Endpoints: []string{mr.Addr()}, OpTimeout: time.Second, RetryDelay: time.Millisecond},
		codec.New(1024, nil), brk, nil, zerolog.Nop())
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	defer s.Close()

	brk.Failure() // trip it

	_, _, err = s.Get(context.Background(), "mlc:default:k")
	if !errors.Is(err, ErrUnavailable) {
		t.Errorf("Get with open breaker = %v, want ErrUnavailable", err)
	}
}

func TestStore_FailureTripsBreaker(t *testing.T) {
	dead := testutil.DeadEndpoint(t)

	brk := breaker.New("l2-trip-test", breaker.Config{Threshold: 2, Window: time.Minute, Cooldown: time.Hour}, zerolog.Nop())
	s, err := New(Config{Endpoints: []string{dead}, OpTimeout: 200 * time.Millisecond, RetryDelay: time.Millisecond},
		codec.New(1024, nil), brk, nil, zerolog.Nop())
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	defer s.Close()

	ctx := context.Background()
	s.Get(ctx, "k")
	s.Get(ctx, "k")

	if got := brk.State(); got != breaker.Open {
		t.Errorf("breaker state after 2 failed operations = %v, want open", got)
	}
}

func TestStore_Health(t *testing.T) {
	mr := testutil.NewRedis(t)
	s := newTestStore(t, Config{Endpoints: []string{mr.Addr()}})

	h := s.Health(context.Background())
	if h.Status != HealthOK {
		t.Errorf("health = %v, want ok", h.Status)
	}
	if h.Breaker.State != "closed" {
		t.Errorf("breaker status = %q, want closed", h.Breaker.State)
	}
}

func TestStore_HealthDown(t *testing.T) {
	dead := testutil.DeadEndpoint(t)
	s := newTestStore(t, Config{Endpoints: []string{dead}, OpTimeout: 200 * time.Millisecond})

	h := s.Health(context.Background())
	if h.Status != HealthDown {
		t.Errorf("health = %v, want down", h.Status)
	}
	if h.Error == "" {
		t.Error("health payload should carry the error")
	}
}

func TestStore_HealthDegradedViaFallback(t *testing.T) {
	dead := testutil.DeadEndpoint(t)
	mr := testutil.NewRedis(t)
	s := newTestStore(t, Config{
		Endpoints:        []string{dead},
		FallbackEndpoint: mr.Addr(),
		OpTimeout:        200 * time.Millisecond,
	})

	h := s.Health(context.Background())
	if h.Status != HealthDegraded {
		t.Errorf("health = %v, want degraded", h.Status)
	}
}

func TestNew_Validation(t *testing.T) {
	brk := breaker.New("v", breaker.DefaultConfig(), zerolog.Nop())

	if _, err := New(Config{}, codec.New(0, nil), brk, nil, zerolog.Nop()); err == nil {
		t.Error("New without endpoints should fail")
	}
	if _, err := New(Config{Endpoints: []string{"localhost:6379"}}, nil, brk, nil, zerolog.Nop()); err == nil {
		t.Error("New without codec should fail")
	}
	if _, err := New(Config{Endpoints: []string{"localhost:6379"}}, codec.New(0, nil), nil, nil, zerolog.Nop()); err == nil {
		t.Error("New without breaker should fail")
	}
}
