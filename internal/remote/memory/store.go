package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/bakkerme/relaypipe/internal/core"
	"github.com/google/uuid"
)

// Store is an in-process remote store. WriteNew checks and writes under one
// lock, so concurrent writers of an equal value produce a single entry.
type Store struct {
	mu      sync.Mutex
	byKey   map[string]string
	byValue map[string]string
}

func NewStore() *Store {
	return &Store{
		byKey:   map[string]string{},
		byValue: map[string]string{},
	}
}

func (s *Store) Exists(ctx context.Context, value string) (bool, error) {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.byValue[value]
	return ok, nil
}

func (s *Store) WriteNew(ctx context.Context, value string) (string, error) {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.byValue[value]; ok {
		return "", core.ErrAlreadyExists
	}
	key := uuid.NewString()
	s.byKey[key] = value
	s.byValue[value] = key
	return key, nil
}

// Values returns the stored values in sorted order.
func (s *Store) Values() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.byValue))
	for v := range s.byValue {
		out = append(out, v)
	}
	sort.Strings(out)
	return out
}

func (s *Store) Close() error {
	return nil
}
