package dedupe

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

const (
	defaultSQLiteTable = "relayed_items"
)

// SQLiteStore persists seen identities in a single SQLite table.
// A ttl of zero keeps identities forever.
type SQLiteStore struct {
	db         *sql.DB
	table      string
	tableIdent string
	ttl        time.Duration
	now        func() time.Time
}

func NewSQLiteStore(dsn string, table string, ttl time.Duration) (*SQLiteStore, error) {
	dsn = strings.TrimSpace(dsn)
	if dsn == "" {
		return nil, fmt.Errorf("sqlite dsn is required")
	}
	if ttl < 0 {
		return nil, fmt.Errorf("sqlite ttl must be >= 0")
	}
	if table == "" {
		table = defaultSQLiteTable
	}
	tableIdent, err := QuoteSQLiteIdentifier(table)
	if err != nil {
		return nil, err
	}
	if err := EnsureSQLiteDir(dsn); err != nil {
		return nil, err
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// One connection serializes concurrent MarkSeen calls from the relay sink.
	db.SetMaxOpenConns(1)
	store := &SQLiteStore{
		db:         db,
		table:      table,
		tableIdent: tableIdent,
		ttl:        ttl,
		now:        time.Now,
	}
	if err := store.ensureSchema(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

// HasSeen reports whether id was marked. With a ttl, a record older than
// the ttl answers false but stays until Prune removes it.
func (s *SQLiteStore) HasSeen(ctx context.Context, id string) (bool, error) {
	var firstSeen int64
	query := fmt.Sprintf("SELECT first_seen_at FROM %s WHERE id = ?", s.tableIdent)
	err := s.db.QueryRowContext(ctx, query, id).Scan(&firstSeen)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return firstSeen >= s.cutoff(), nil
}

// MarkSeen records id. Marking a live identity again is a no-op; marking an
// expired one restarts its ttl.
func (s *SQLiteStore) MarkSeen(ctx context.Context, id string) error {
	query := fmt.Sprintf(`INSERT INTO %[1]s (id, first_seen_at) VALUES (?, ?)
		ON CONFLICT(id) DO UPDATE SET first_seen_at = excluded.first_seen_at
		WHERE %[1]s.first_seen_at < ?`, s.tableIdent)
	_, err := s.db.ExecContext(ctx, query, id, s.now().UnixNano(), s.cutoff())
	return err
}

// Prune deletes records older than the ttl and returns how many went. It is
// a no-op without a ttl.
func (s *SQLiteStore) Prune(ctx context.Context) (int64, error) {
	if s.ttl <= 0 {
		return 0, nil
	}
	res, err := s.db.ExecContext(ctx, fmt.Sprintf("DELETE FROM %s WHERE first_seen_at < ?", s.tableIdent), s.cutoff())
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// cutoff is the oldest live first_seen_at in unix nanoseconds.
func (s *SQLiteStore) cutoff() int64 {
	if s.ttl <= 0 {
		return math.MinInt64
	}
	return s.now().Add(-s.ttl).UnixNano()
}

// Count returns the number of identities currently recorded.
func (s *SQLiteStore) Count(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, fmt.Sprintf("SELECT COUNT(*) FROM %s", s.tableIdent)).Scan(&n)
	return n, err
}

func (s *SQLiteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *SQLiteStore) ensureSchema(ctx context.Context) error {
	if s.table == "" {
		return fmt.Errorf("sqlite table name is required")
	}
	ddl := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
		id TEXT PRIMARY KEY,
		first_seen_at INTEGER NOT NULL
	)`, s.tableIdent)
	if _, err := s.db.ExecContext(ctx, ddl); err != nil {
		return fmt.Errorf("create sqlite table: %w", err)
	}
	return nil
}

// EnsureSQLiteDir creates the parent directory of a file-backed DSN.
func EnsureSQLiteDir(dsn string) error {
	if strings.HasPrefix(dsn, "file:") {
		dsn = strings.TrimPrefix(dsn, "file:")
		if idx := strings.IndexRune(dsn, '?'); idx >= 0 {
			dsn = dsn[:idx]
		}
	}
	if dsn == "" || dsn == ":memory:" {
		return nil
	}
	dir := filepath.Dir(dsn)
	if dir == "." || dir == "" {
		return nil
	}
	return os.MkdirAll(dir, 0o755)
}

var sqliteIdentifierPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// QuoteSQLiteIdentifier validates and quotes a table or column name.
func QuoteSQLiteIdentifier(identifier string) (string, error) {
	if identifier == "" {
		return "", fmt.Errorf("sqlite identifier is required")
	}
	if !sqliteIdentifierPattern.MatchString(identifier) {
		return "", fmt.Errorf("sqlite identifier %q must match %s", identifier, sqliteIdentifierPattern.String())
	}
	return `"` + identifier + `"`, nil
}
