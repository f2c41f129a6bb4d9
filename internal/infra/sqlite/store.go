// Package sqlite persists exported Monzo data in an embedded SQLite
// database and serves the aggregate queries behind the dashboard.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	_ "modernc.org/sqlite"
)

// timeLayout is how timestamps are written to the database. RFC3339 UTC
// text sorts chronologically and feeds SQLite's date functions.
const timeLayout = time.RFC3339

// Store wraps the SQLite database file.
type Store struct {
	db   *sql.DB
	path string
	log  zerolog.Logger
}

// Open opens (and creates if missing) the database file.
func Open(path string, log zerolog.Logger) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("Open: opening %s: %w", path, err)
	}
	// The driver serializes access per connection; a single connection
	// avoids SQLITE_BUSY on concurrent writes.
	db.SetMaxOpenConns(1)
	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("Open: enabling foreign keys: %w", err)
	}
	return &Store{db: db, path: path, log: log}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Path returns the database file path.
func (s *Store) Path() string {
	return s.path
}

// Setup creates all tables, views and indexes. Safe to run repeatedly.
func (s *Store) Setup(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("Setup: applying schema: %w", err)
	}
	s.log.Info().Str("path", s.path).Msg("database setup complete")
	return nil
}

// Reset drops everything and recreates an empty schema.
func (s *Store) Reset(ctx context.Context) error {
	for _, stmt := range dropStatements {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("Reset: %s: %w", stmt, err)
		}
	}
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("Reset: recreating schema: %w", err)
	}
	s.log.Warn().Str("path", s.path).Msg("database reset complete")
	return nil
}

// statsRelations lists the tables and views Stats reports on, in display
// order.
var statsRelations = []string{"accounts", "merchants", "transactions", "pots", "balances", "daily_balances"}

// TableStat is one row count in a Stats report.
type TableStat struct {
	Name string
	Rows int64
}

// Stats returns row counts for every table and view.
func (s *Store) Stats(ctx context.Context) ([]TableStat, error) {
	stats := make([]TableStat, 0, len(statsRelations))
	for _, name := range statsRelations {
		var n int64
		if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM "+name).Scan(&n); err != nil {
			return nil, fmt.Errorf("Stats: counting %s: %w", name, err)
		}
		stats = append(stats, TableStat{Name: name, Rows: n})
	}
	return stats, nil
}

// begin starts a write transaction.
func (s *Store) begin(ctx context.Context) (*sql.Tx, error) {
	return s.db.BeginTx(ctx, nil)
}

// nullString maps "" to NULL so filters like decline_reason IS NULL work.
func nullString(v string) any {
	if v == "" {
		return nil
	}
	return v
}

// nullTime maps the zero time to NULL.
func nullTime(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t.UTC().Format(timeLayout)
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}
