package dedupe

import (
	"context"
	"sync"
)

// MemoryStore is a process-local SeenStore. Its contents are lost on exit,
// so a restart falls back on the remote existence check.
type MemoryStore struct {
	mu   sync.RWMutex
	seen map[string]struct{}
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{seen: map[string]struct{}{}}
}

func (s *MemoryStore) HasSeen(ctx context.Context, id string) (bool, error) {
	_ = ctx
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.seen[id]
	return ok, nil
}

func (s *MemoryStore) MarkSeen(ctx context.Context, id string) error {
	_ = ctx
	s.mu.Lock()
	s.seen[id] = struct{}{}
	s.mu.Unlock()
	return nil
}

// Len returns the number of identities recorded.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.seen)
}

func (s *MemoryStore) Close() error {
	return nil
}
