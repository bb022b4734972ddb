// Package testutil provides shared test fixtures. Unit tests run
// against miniredis; integration tests under tests/integration use
// testcontainers with a real Redis.
package testutil

import (
	"testing"

	"github.com/alicebob/miniredis/v2"
)

// NewRedis starts an in-memory Redis and tears it down with the test.
func NewRedis(t *testing.T) *miniredis.Miniredis {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("failed to start miniredis: %v", err)
	}
	t.Cleanup(mr.Close)
	return mr
}

// DeadEndpoint returns an address that refuses connections: a listener
// that existed briefly and is gone by the time it is dialed.
func DeadEndpoint(t *testing.T) string {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("failed to start miniredis: %v", err)
	}
	addr := mr.Addr()
	mr.Close()
	return addr
}
