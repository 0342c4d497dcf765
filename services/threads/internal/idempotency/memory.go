package idempotency

import (
	"context"
	"sync"
	"time"
)

// memoryStore is a development-only in-memory idempotency store.
// WARNING: state is lost on restart and is not shared between instances.
type memoryStore struct {
	mu   sync.Mutex
	ttl  time.Duration
	now  func() time.Time
	seen map[string]time.Time
}

func newMemoryStore(ttl time.Duration) *memoryStore {
	return &memoryStore{ttl: ttl, now: time.Now, seen: make(map[string]time.Time)}
}

func (s *memoryStore) Check(_ context.Context, commandID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	if at, ok := s.seen[commandID]; ok && (s.ttl <= 0 || now.Sub(at) < s.ttl) {
		return true, nil
	}
	s.seen[commandID] = now
	return false, nil
}

func (s *memoryStore) Forget(_ context.Context, commandID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.seen, commandID)
	return nil
}
