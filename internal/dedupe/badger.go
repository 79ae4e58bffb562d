package dedupe

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/dgraph-io/badger/v4"
)

const (
	badgerKeyPrefix       = "seen/"
	badgerConflictRetries = 3
)

// BadgerStore keeps seen identities as keys in an embedded Badger database.
// The value holds the time the identity was first marked.
type BadgerStore struct {
	db *badger.DB
}

func NewBadgerStore(path string) (*BadgerStore, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, fmt.Errorf("badger path is required")
	}
	if err := os.MkdirAll(path, 0o755); err != nil {
		return nil, fmt.Errorf("create badger directory: %w", err)
	}

	opts := badger.DefaultOptions(path)
	opts.Logger = nil

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger: %w", err)
	}
	return &BadgerStore{db: db}, nil
}

func (s *BadgerStore) HasSeen(ctx context.Context, id string) (bool, error) {
	_ = ctx
	err := s.db.View(func(txn *badger.Txn) error {
		_, err := txn.Get(badgerKey(id))
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// MarkSeen keeps the first-marked time of an existing identity. Concurrent
// marks of one key can conflict; the transaction is retried.
func (s *BadgerStore) MarkSeen(ctx context.Context, id string) error {
	_ = ctx
	now := []byte(time.Now().UTC().Format(time.RFC3339Nano))
	var err error
	for attempt := 0; attempt < badgerConflictRetries; attempt++ {
		err = s.markSeen(id, now)
		if !errors.Is(err, badger.ErrConflict) {
			return err
		}
	}
	return err
}

func (s *BadgerStore) markSeen(id string, now []byte) error {
	return s.db.Update(func(txn *badger.Txn) error {
		key := badgerKey(id)
		if _, err := txn.Get(key); err == nil {
			return nil
		} else if !errors.Is(err, badger.ErrKeyNotFound) {
			return err
		}
		return txn.Set(key, now)
	})
}

func (s *BadgerStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// badgerKey prefixes id; the empty identity maps to the bare prefix.
func badgerKey(id string) []byte {
	return []byte(badgerKeyPrefix + id)
}
