package clients

import (
	"context"
	"strconv"
	"sync"
	"time"

	"storefront/internal/domain"
)

type memoryEntry struct {
	value   string
	expires time.Time
}

var _ domain.IdempotencyStore = (*MemoryIdempotencyStore)(nil)

// MemoryIdempotencyStore is the single-process fallback used when no Redis is configured.
type MemoryIdempotencyStore struct {
	mu         sync.Mutex
	entries    map[string]memoryEntry
	ttl        time.Duration
	pendingTTL time.Duration
	nextSweep  time.Time
	now        func() time.Time
}

func NewMemoryIdempotencyStore(ttl, pendingTTL time.Duration) *MemoryIdempotencyStore {
	return &MemoryIdempotencyStore{
		entries:    make(map[string]memoryEntry),
		ttl:        ttl,
		pendingTTL: pendingTTL,
		now:        time.Now,
	}
}

func (s *MemoryIdempotencyStore) Reserve(_ context.Context, key string) (int64, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	if now.After(s.nextSweep) {
		s.sweep(now)
	}
	if e, ok := s.entries[key]; ok && now.Before(e.expires) {
		return parseMarker(e.value)
	}
	s.entries[key] = memoryEntry{value: pendingMarker, expires: now.Add(s.pendingTTL)}
	return 0, true, nil
}

func (s *MemoryIdempotencyStore) Complete(_ context.Context, key string, orderID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[key] = memoryEntry{value: strconv.FormatInt(orderID, 10), expires: s.now().Add(s.ttl)}
	return nil
}

func (s *MemoryIdempotencyStore) Release(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, key)
	return nil
}

// sweep drops expired entries. Callers hold s.mu.
func (s *MemoryIdempotencyStore) sweep(now time.Time) {
	for key, e := range s.entries {
		if !now.Before(e.expires) {
			delete(s.entries, key)
		}
	}
	s.nextSweep = now.Add(s.pendingTTL)
}
