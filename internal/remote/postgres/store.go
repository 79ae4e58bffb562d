package postgres

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/bakkerme/relaypipe/internal/core"
	"github.com/bakkerme/relaypipe/internal/retry"
	"github.com/google/uuid"
	"github.com/lib/pq"
)

const (
	defaultTableName = "relayed_items"
	operationTimeout = 5 * time.Second
)

type sqlOpenFunc func(driverName, dsn string) (*sql.DB, error)

// Store relays items into a Postgres table. A unique index on the value hash
// rejects a second copy of a value written by a racing producer.
type Store struct {
	dsn       string
	tableName string
	retry     retry.Config
	openDB    sqlOpenFunc

	initOnce sync.Once
	initErr  error
	db       *sql.DB
}

func NewStore(dsn, tableName string, retryConfig retry.Config) (*Store, error) {
	dsn = strings.TrimSpace(dsn)
	if dsn == "" {
		return nil, fmt.Errorf("postgres dsn is required")
	}
	tableName = strings.TrimSpace(tableName)
	if tableName == "" {
		tableName = defaultTableName
	}
	return &Store{
		dsn:       dsn,
		tableName: tableName,
		retry:     retryConfig,
		openDB:    sql.Open,
	}, nil
}

func (s *Store) Exists(ctx context.Context, value string) (bool, error) {
	if err := s.ensureReady(); err != nil {
		return false, err
	}
	query := fmt.Sprintf("SELECT 1 FROM %s WHERE value_hash = $1 AND value = $2 LIMIT 1", quoteIdentifier(s.tableName))
	var exists bool
	err := retry.Do(ctx, s.retry, func() error {
		opCtx, cancel := context.WithTimeout(ctx, operationTimeout)
		defer cancel()
		var one int
		err := s.db.QueryRowContext(opCtx, query, valueHash(value), value).Scan(&one)
		if errors.Is(err, sql.ErrNoRows) {
			exists = false
			return nil
		}
		if err != nil {
			return classify(err)
		}
		exists = true
		return nil
	})
	return exists, err
}

func (s *Store) WriteNew(ctx context.Context, value string) (string, error) {
	if err := s.ensureReady(); err != nil {
		return "", err
	}
	key := uuid.NewString()
	query := fmt.Sprintf(`
		INSERT INTO %s (key, value, value_hash, created_at)
		VALUES ($1, $2, $3, NOW())
		ON CONFLICT (value_hash) DO NOTHING`, quoteIdentifier(s.tableName))
	var inserted int64
	err := retry.Do(ctx, s.retry, func() error {
		opCtx, cancel := context.WithTimeout(ctx, operationTimeout)
		defer cancel()
		res, err := s.db.ExecContext(opCtx, query, key, value, valueHash(value))
		if err != nil {
			return classify(err)
		}
		inserted, err = res.RowsAffected()
		return err
	})
	if err != nil {
		return "", err
	}
	if inserted == 0 {
		return "", core.ErrAlreadyExists
	}
	return key, nil
}

func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *Store) ensureReady() error {
	if s == nil {
		return fmt.Errorf("postgres store is nil")
	}
	s.initOnce.Do(func() {
		db, err := s.openDB("postgres", s.dsn)
		if err != nil {
			s.initErr = err
			return
		}
		ctx, cancel := context.WithTimeout(context.Background(), operationTimeout)
		defer cancel()

		query := fmt.Sprintf(`
			CREATE TABLE IF NOT EXISTS %s (
				key TEXT PRIMARY KEY,
				value TEXT NOT NULL,
				value_hash TEXT NOT NULL UNIQUE,
				created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
			)`, quoteIdentifier(s.tableName))
		if _, err := db.ExecContext(ctx, query); err != nil {
			_ = db.Close()
			s.initErr = err
			return
		}
		s.db = db
	})
	return s.initErr
}

// classify stops retries for errors another attempt cannot fix: bad SQL,
// missing objects, permissions and constraint violations.
func classify(err error) error {
	var pqErr *pq.Error
	if !errors.As(err, &pqErr) {
		return err
	}
	switch pqErr.Code.Class() {
	case "22", "23", "28", "42":
		return retry.Permanent(err)
	}
	return err
}

func valueHash(value string) string {
	sum := sha256.Sum256([]byte(value))
	return hex.EncodeToString(sum[:])
}

func quoteIdentifier(identifier string) string {
	identifier = strings.TrimSpace(identifier)
	if identifier == "" {
		return "\"\""
	}
	return `"` + strings.ReplaceAll(identifier, `"`, `""`) + `"`
}
