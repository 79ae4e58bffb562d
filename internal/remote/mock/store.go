package mock

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/bakkerme/relaypipe/internal/core"
)

// Store is a scriptable RemoteStore for tests. Failures are keyed by value.
type Store struct {
	mu       sync.Mutex
	values   map[string]string
	next     int
	Writes   []string
	Queries  []string
	QueryErr map[string]error
	WriteErr map[string]error
	// Delay is applied to every call to widen race windows.
	Delay time.Duration

	active    int32
	maxActive int32
}

func NewStore(existing ...string) *Store {
	s := &Store{values: map[string]string{}}
	for _, v := range existing {
		s.values[v] = fmt.Sprintf("existing-%d", len(s.values))
	}
	return s
}

func (s *Store) Exists(ctx context.Context, value string) (bool, error) {
	s.enter()
	defer s.leave()
	if err := s.wait(ctx); err != nil {
		return false, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Queries = append(s.Queries, value)
	if err, ok := s.QueryErr[value]; ok {
		return false, err
	}
	_, ok := s.values[value]
	return ok, nil
}

func (s *Store) WriteNew(ctx context.Context, value string) (string, error) {
	s.enter()
	defer s.leave()
	if err := s.wait(ctx); err != nil {
		return "", err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err, ok := s.WriteErr[value]; ok {
		return "", err
	}
	if _, ok := s.values[value]; ok {
		return "", core.ErrAlreadyExists
	}
	s.next++
	key := fmt.Sprintf("key-%d", s.next)
	s.values[value] = key
	s.Writes = append(s.Writes, value)
	return key, nil
}

// Calls returns the total number of Exists and WriteNew calls made.
func (s *Store) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.Queries) + len(s.Writes)
}

// MaxActive returns the highest number of overlapping calls observed.
func (s *Store) MaxActive() int {
	return int(atomic.LoadInt32(&s.maxActive))
}

func (s *Store) Close() error {
	return nil
}

func (s *Store) enter() {
	n := atomic.AddInt32(&s.active, 1)
	for {
		old := atomic.LoadInt32(&s.maxActive)
		if n <= old || atomic.CompareAndSwapInt32(&s.maxActive, old, n) {
			return
		}
	}
}

func (s *Store) leave() {
	atomic.AddInt32(&s.active, -1)
}

func (s *Store) wait(ctx context.Context) error {
	if s.Delay <= 0 {
		return nil
	}
	timer := time.NewTimer(s.Delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
