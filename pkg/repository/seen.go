// Package repository persists the cross-run seen-items index in an
// embedded SQLite database. The store mirrors the ids written to the
// daily JSON files and lets dedup look further back than the files kept
// on disk.
package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-pkgz/repeater/v2"
	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite" // pure Go SQLite driver
)

const schema = `
CREATE TABLE IF NOT EXISTS seen_items (
	id     TEXT PRIMARY KEY,
	day    TEXT NOT NULL,
	source TEXT NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS idx_seen_items_day ON seen_items(day);
`

// SeenStore records which item ids earlier runs produced
type SeenStore struct {
	db *sqlx.DB
}

// NewSeenStore opens (and creates if needed) the seen-items database
func NewSeenStore(ctx context.Context, dsn string) (*SeenStore, error) {
	db, err := sqlx.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open seen store: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			return nil, fmt.Errorf("execute %s: %w", pragma, err)
		}
	}

	if _, err := db.ExecContext(ctx, schema); err != nil {
		return nil, fmt.Errorf("init seen store schema: %w", err)
	}

	return &SeenStore{db: db}, nil
}

// Close closes the underlying database
func (s *SeenStore) Close() error {
	return s.db.Close()
}

// Record inserts the given ids for a day, ignoring ids already present.
// Lock errors are retried with backoff.
func (s *SeenStore) Record(ctx context.Context, day time.Time, ids []string, source string) error {
	if len(ids) == 0 {
		return nil
	}

	retrier := repeater.NewBackoff(5, 50*time.Millisecond, repeater.WithMaxDelay(2*time.Second))
	return retrier.Do(ctx, func() error {
		tx, err := s.db.BeginTxx(ctx, nil)
		if err != nil {
			if isLockError(err) {
				return err // retry
			}
			return &criticalError{err: fmt.Errorf("begin seen tx: %w", err)}
		}
		defer func() { _ = tx.Rollback() }()

		dayStr := day.Format("2006-01-02")
		for _, id := range ids {
			_, err := tx.ExecContext(ctx,
				"INSERT OR IGNORE INTO seen_items (id, day, source) VALUES (?, ?, ?)", id, dayStr, source)
			if err != nil {
				if isLockError(err) {
					return err // retry
				}
				return &criticalError{err: fmt.Errorf("record seen id: %w", err)}
			}
		}

		if err := tx.Commit(); err != nil {
			if isLockError(err) {
				return err // retry
			}
			return &criticalError{err: fmt.Errorf("commit seen tx: %w", err)}
		}
		return nil
	})
}

// SeenSince returns all ids recorded on or after the given day
func (s *SeenStore) SeenSince(ctx context.Context, day time.Time) (map[string]struct{}, error) {
	var ids []string
	err := s.db.SelectContext(ctx, &ids,
		"SELECT id FROM seen_items WHERE day >= ?", day.Format("2006-01-02"))
	if err != nil {
		return nil, fmt.Errorf("query seen ids: %w", err)
	}

	seen := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		seen[id] = struct{}{}
	}
	return seen, nil
}

// PruneBefore removes entries older than the given day, keeping the store
// bounded over long deployments
func (s *SeenStore) PruneBefore(ctx context.Context, day time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		"DELETE FROM seen_items WHERE day < ?", day.Format("2006-01-02"))
	if err != nil {
		return 0, fmt.Errorf("prune seen store: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("prune rows affected: %w", err)
	}
	return n, nil
}

// criticalError marks an error the backoff loop must not repeat
type criticalError struct {
	err error
}

func (e *criticalError) Error() string { return e.err.Error() }

// isLockError reports whether err is a transient SQLite busy or locked
// condition, the only failures worth retrying
func isLockError(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "SQLITE_BUSY") ||
		strings.Contains(msg, "database is locked") ||
		strings.Contains(msg, "database table is locked")
}
