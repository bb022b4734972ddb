// Package l1 implements the bounded in-process cache tier.
//
// The store is an LRU over a map and an intrusive list: reads bump
// recency, inserts at capacity evict the least-recently-used entry.
// Every entry carries its own TTL; expired entries are treated as
// absent on read and removed when observed (lazy expiration). L1 is
// authoritative only for freshness, never the source of truth, so no
// operation can fail.
package l1

import (
	"container/list"
	"strings"
	"sync"
	"time"

	"github.com/voiceops/multicache/pkg/stats"
)

type entry struct {
	key      string
	value    []byte
	storedAt time.Time
	ttl      time.Duration
}

func (e *entry) expired(now time.Time) bool {
	return now.Sub(e.storedAt) >= e.ttl
}

// Store is a bounded, TTL-aware LRU. Safe for concurrent use.
type Store struct {
	mu       sync.Mutex
	capacity int
	ll       *list.List
	items    map[string]*list.Element
	stats    *stats.Collector
}

// New creates a store holding at most capacity entries.
func New(capacity int, collector *stats.Collector) *Store {
	if capacity <= 0 {
		capacity = 1
	}
	return &Store{
		capacity: capacity,
		ll:       list.New(),
		items:    make(map[string]*list.Element, capacity),
		stats:    collector,
	}
}

// Get returns a copy of the stored value. Expired entries are absent
// and removed on observation.
func (s *Store) Get(key string) ([]byte, bool) {
	start := time.Now()

	s.mu.Lock()
	elem, ok := s.items[key]
	if !ok {
		s.mu.Unlock()
		s.record(stats.OpGet, stats.OutcomeMiss, start)
		return nil, false
	}

	ent := elem.Value.(*entry)
	if ent.expired(time.Now()) {
		s.removeElement(elem)
		s.mu.Unlock()
		s.record(stats.OpGet, stats.OutcomeMiss, start)
		return nil, false
	}

	s.ll.MoveToFront(elem)
	value := append([]byte(nil), ent.value...)
	s.mu.Unlock()

	s.record(stats.OpGet, stats.OutcomeHit, start)
	return value, true
}

// Set stores a copy of value under key with its own TTL. At capacity
// the least-recently-used entry is evicted. A ttl <= 0 is a no-op.
func (s *Store) Set(key string, value []byte, ttl time.Duration) {
	if ttl <= 0 {
		return
	}
	start := time.Now()

	ent := &entry{
		key:      key,
		value:    append([]byte(nil), value...),
		storedAt: time.Now(),
		ttl:      ttl,
	}

	s.mu.Lock()
	if elem, ok := s.items[key]; ok {
		elem.Value = ent
		s.ll.MoveToFront(elem)
	} else {
		if s.ll.Len() >= s.capacity {
			s.evictOldest()
		}
		s.items[key] = s.ll.PushFront(ent)
	}
	n := s.ll.Len()
	s.mu.Unlock()

	s.record(stats.OpSet, stats.OutcomeSuccess, start)
	if s.stats != nil {
		s.stats.SetEntries(stats.TierL1, n)
	}
}

// Delete removes key if present.
func (s *Store) Delete(key string) {
	start := time.Now()

	s.mu.Lock()
	if elem, ok := s.items[key]; ok {
		s.removeElement(elem)
	}
	n := s.ll.Len()
	s.mu.Unlock()

	s.record(stats.OpDelete, stats.OutcomeSuccess, start)
	if s.stats != nil {
		s.stats.SetEntries(stats.TierL1, n)
	}
}

// DeleteFunc removes every entry whose key the match function accepts
// and returns how many were removed.
func (s *Store) DeleteFunc(match func(key string) bool) int {
	s.mu.Lock()
	var doomed []*list.Element
	for key, elem := range s.items {
		if match(key) {
			doomed = append(doomed, elem)
		}
	}
	for _, elem := range doomed {
		s.removeElement(elem)
	}
	n := s.ll.Len()
	s.mu.Unlock()

	if s.stats != nil {
		s.stats.SetEntries(stats.TierL1, n)
	}
	return len(doomed)
}

// DeletePrefix removes every entry whose key starts with prefix.
func (s *Store) DeletePrefix(prefix string) int {
	return s.DeleteFunc(func(key string) bool {
		return strings.HasPrefix(key, prefix)
	})
}

// Clear removes all entries.
func (s *Store) Clear() {
	s.mu.Lock()
	s.ll.Init()
	s.items = make(map[string]*list.Element, s.capacity)
	s.mu.Unlock()

	if s.stats != nil {
		s.stats.SetEntries(stats.TierL1, 0)
	}
}

// Len returns the number of stored entries, including any that expired
// but have not been observed yet.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ll.Len()
}

// Capacity returns the configured maximum entry count.
func (s *Store) Capacity() int {
	return s.capacity
}

// evictOldest must be called with s.mu held.
func (s *Store) evictOldest() {
	elem := s.ll.Back()
	if elem == nil {
		return
	}
	s.removeElement(elem)
}

// removeElement must be called with s.mu held.
func (s *Store) removeElement(elem *list.Element) {
	s.ll.Remove(elem)
	delete(s.items, elem.Value.(*entry).key)
}

func (s *Store) record(op stats.Operation, outcome stats.Outcome, start time.Time) {
	if s.stats != nil {
		s.stats.Record(stats.TierL1, op, outcome, time.Since(start))
	}
}
