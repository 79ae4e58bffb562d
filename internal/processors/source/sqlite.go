package source

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/bakkerme/relaypipe/internal/config"
	"github.com/bakkerme/relaypipe/internal/core"
	"github.com/bakkerme/relaypipe/internal/dedupe"
	_ "modernc.org/sqlite"
)

type sqliteQuery struct {
	table  string
	column string
	stmt   string
}

// SQLiteProcessor reads a single text column from one or more tables of a
// local SQLite database. Results are concatenated in query order.
type SQLiteProcessor struct {
	name    string
	dsn     string
	queries []sqliteQuery
	now     func() time.Time
}

func NewSQLiteProcessor(cfg *config.SQLiteSource) (*SQLiteProcessor, error) {
	if cfg == nil {
		return nil, fmt.Errorf("sqlite source config is required")
	}
	if cfg.DSN == "" {
		return nil, fmt.Errorf("sqlite source dsn is required")
	}
	if len(cfg.Queries) == 0 {
		return nil, fmt.Errorf("sqlite source requires at least one query")
	}

	queries := make([]sqliteQuery, 0, len(cfg.Queries))
	for _, q := range cfg.Queries {
		table, err := dedupe.QuoteSQLiteIdentifier(q.Table)
		if err != nil {
			return nil, err
		}
		column, err := dedupe.QuoteSQLiteIdentifier(q.Column)
		if err != nil {
			return nil, err
		}
		queries = append(queries, sqliteQuery{
			table:  q.Table,
			column: q.Column,
			stmt:   fmt.Sprintf("SELECT %s FROM %s ORDER BY rowid", column, table),
		})
	}

	name := cfg.Name
	if name == "" {
		name = "sqlite"
	}
	return &SQLiteProcessor{
		name:    name,
		dsn:     cfg.DSN,
		queries: queries,
		now:     func() time.Time { return time.Now().UTC() },
	}, nil
}

func (p *SQLiteProcessor) Name() string {
	return p.name
}

// Read opens the database for the duration of the read only. The database is
// owned by another process, so no handle is kept between cycles.
func (p *SQLiteProcessor) Read(ctx context.Context) (core.Snapshot, error) {
	if err := p.checkExists(); err != nil {
		return nil, err
	}
	db, err := sql.Open("sqlite", p.dsn)
	if err != nil {
		return nil, fmt.Errorf("%w: open sqlite %s: %v", core.ErrSourceUnavailable, p.name, err)
	}
	defer db.Close()
	db.SetMaxOpenConns(1)

	readAt := p.now()
	snapshot := core.Snapshot{}
	for _, q := range p.queries {
		values, err := p.readColumn(ctx, db, q)
		if err != nil {
			return nil, fmt.Errorf("%w: sqlite %s %s.%s: %v", core.ErrSourceUnavailable, p.name, q.table, q.column, err)
		}
		for _, value := range values {
			snapshot = append(snapshot, core.Item{Value: value, Source: p.name, ReadAt: readAt})
		}
	}
	return snapshot, nil
}

func (p *SQLiteProcessor) readColumn(ctx context.Context, db *sql.DB, q sqliteQuery) ([]string, error) {
	rows, err := db.QueryContext(ctx, q.stmt)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var values []string
	for rows.Next() {
		var value sql.NullString
		if err := rows.Scan(&value); err != nil {
			return nil, err
		}
		if !value.Valid {
			continue
		}
		values = append(values, value.String)
	}
	return values, rows.Err()
}

// checkExists stops the driver from silently creating an empty database at a
// mistyped path.
func (p *SQLiteProcessor) checkExists() error {
	path := p.dsn
	if strings.HasPrefix(path, "file:") {
		path = strings.TrimPrefix(path, "file:")
		if idx := strings.IndexRune(path, '?'); idx >= 0 {
			path = path[:idx]
		}
	}
	if path == "" || path == ":memory:" {
		return nil
	}
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("%w: sqlite %s: database %s does not exist", core.ErrSourceUnavailable, p.name, path)
		}
		return fmt.Errorf("%w: sqlite %s: %v", core.ErrSourceUnavailable, p.name, err)
	}
	return nil
}
