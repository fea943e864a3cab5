// Package sqlite provides an embedded SQLite storage backend.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/raphaelgruber/pluisje-go/internal/metrics"
	"github.com/raphaelgruber/pluisje-go/internal/store"
)

// Store implements store.Store using SQLite.
type Store struct {
	db      *sql.DB
	logger  *slog.Logger
	metrics *metrics.Collector
}

// Compile-time check that Store implements store.Store.
var _ store.Store = (*Store)(nil)

// Open opens or creates a SQLite database at path.
func Open(path string, log *slog.Logger, mc *metrics.Collector) (*Store, error) {
	if log == nil {
		log = slog.Default()
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create db dir: %w", err)
	}

	// _txlock=immediate takes the write lock at BEGIN so the count-delete-insert
	// sequence in AppendTurns cannot interleave with another writer.
	dsn := path + "?_pragma=journal_mode(wal)&_pragma=busy_timeout(5000)&_txlock=immediate"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}

	s := &Store{db: db, logger: log, metrics: mc}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	log.Info("SQLite database ready", "path", path)
	return s, nil
}

const schema = `
CREATE TABLE IF NOT EXISTS accounts (
	email              TEXT PRIMARY KEY,
	password_hash      TEXT NOT NULL,
	verified           INTEGER NOT NULL DEFAULT 0,
	verification_token TEXT,
	created_at         TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS turns (
	id         TEXT PRIMARY KEY,
	owner      TEXT NOT NULL,
	role       TEXT NOT NULL,
	content    TEXT NOT NULL,
	created_at TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_turns_owner ON turns(owner, id);
`

func (s *Store) migrate() error {
	_, err := s.db.Exec(schema)
	return err
}

// Close closes the database.
func (s *Store) Close(_ context.Context) error {
	return s.db.Close()
}

// WipeData deletes all data while preserving the schema.
// Use for testing only.
func (s *Store) WipeData(ctx context.Context) error {
	s.logger.Warn("wiping all data from database")
	for _, table := range []string{"turns", "accounts"} {
		if _, err := s.db.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			return fmt.Errorf("delete %s: %w", table, err)
		}
	}
	return nil
}

// Ping checks the database connection.
func (s *Store) Ping(ctx context.Context) error {
	defer s.metrics.Since(metrics.OpDBQuery, time.Now())
	var one int
	if err := s.db.QueryRowContext(ctx, `SELECT 1`).Scan(&one); err != nil {
		return fmt.Errorf("ping: %w", err)
	}
	return nil
}

// Stats counts stored turns, distinct owners and accounts.
func (s *Store) Stats(ctx context.Context) (store.Stats, error) {
	defer s.metrics.Since(metrics.OpDBQuery, time.Now())
	var st store.Stats
	err := s.db.QueryRowContext(ctx, `
		SELECT
			(SELECT COUNT(*) FROM turns),
			(SELECT COUNT(DISTINCT owner) FROM turns),
			(SELECT COUNT(*) FROM accounts)
	`).Scan(&st.Turns, &st.Owners, &st.Accounts)
	if err != nil {
		return store.Stats{}, fmt.Errorf("stats: %w", err)
	}
	return st, nil
}

// wrapError maps SQLite constraint failures to store sentinels.
func wrapError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return store.ErrNotFound
	}
	msg := err.Error()
	if strings.Contains(msg, "UNIQUE constraint failed") {
		return fmt.Errorf("%w: %s", store.ErrAlreadyExists, msg)
	}
	if strings.Contains(msg, "database is locked") || strings.Contains(msg, "SQLITE_BUSY") {
		return fmt.Errorf("%w: %s", store.ErrTransactionConflict, msg)
	}
	return err
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) time.Time {
	t, _ := time.Parse(time.RFC3339Nano, s)
	return t
}
