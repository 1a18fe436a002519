// Package dedupe suppresses repeated submissions within a short window.
//
// The guard is best effort: it absorbs double clicks and client retry storms,
// it does not give exactly-once delivery across restarts.
package dedupe

import (
	"context"
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

const (
	DefaultCapacity = 5000
	DefaultTTL      = 2 * time.Minute
)

// Store records fingerprints of recently relayed submissions.
type Store interface {
	// Claim returns false when fingerprint was recorded within the TTL, leaving
	// the existing entry untouched. Otherwise it records fingerprint and
	// returns true.
	Claim(ctx context.Context, fingerprint string) (bool, error)
}

// MemoryStore is a bounded, process-local LRU of fingerprints.
type MemoryStore struct {
	mu    sync.Mutex
	cache *expirable.LRU[string, time.Time]
}

// NewMemoryStore creates an LRU holding at most capacity fingerprints for ttl.
func NewMemoryStore(capacity int, ttl time.Duration) *MemoryStore {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &MemoryStore{
		cache: expirable.NewLRU[string, time.Time](capacity, nil, ttl),
	}
}

func (s *MemoryStore) Claim(_ context.Context, fingerprint string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	// Peek leaves recency alone, so a rejected repeat does not extend its own
	// lifetime in the cache.
	if _, ok := s.cache.Peek(fingerprint); ok {
		return false, nil
	}
	s.cache.Add(fingerprint, time.Now())
	return true, nil
}

// Len reports how many fingerprints are currently held.
func (s *MemoryStore) Len() int {
	return s.cache.Len()
}
