// Package sqlite provides a session.Store backed by a local SQLite database.
//
// Several API servers may share one database file; rows are partitioned by
// namespace (see session.Namespace).
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/tinyvillage/villagehub/internal/domain/session"

	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS session_entries (
	namespace TEXT NOT NULL,
	key       TEXT NOT NULL,
	value     TEXT NOT NULL,
	PRIMARY KEY (namespace, key)
)`

// SessionStore implements session.Store on a session_entries table.
type SessionStore struct {
	db        *sql.DB
	namespace string
	logger    *slog.Logger
}

// Open opens (creating if needed) the database at path and ensures the schema.
// Use ":memory:" for a throwaway database.
func Open(ctx context.Context, path, namespace string, logger *slog.Logger) (*SessionStore, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
			return nil, fmt.Errorf("create session directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", path, err)
	}
	// A single connection keeps ":memory:" databases coherent and
	// serializes writers within the process.
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite %s: %w", path, err)
	}
	if _, err := db.ExecContext(ctx, "PRAGMA busy_timeout = 5000"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("set busy_timeout: %w", err)
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}

	logger.Debug("sqlite session store opened", "path", path, "namespace", namespace)
	return &SessionStore{db: db, namespace: namespace, logger: logger}, nil
}

// Close closes the database.
func (s *SessionStore) Close() error {
	return s.db.Close()
}

// Load reads every entry in the store's namespace.
func (s *SessionStore) Load(ctx context.Context) (session.Session, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT key, value FROM session_entries WHERE namespace = ?`, s.namespace)
	if err != nil {
		return session.Session{}, fmt.Errorf("query session entries: %w", err)
	}
	defer rows.Close()

	entries := make(map[string]string, 3)
	for rows.Next() {
		var k, v string
		if err := rows.Scan(&k, &v); err != nil {
			return session.Session{}, fmt.Errorf("scan session entry: %w", err)
		}
		entries[k] = v
	}
	if err := rows.Err(); err != nil {
		return session.Session{}, fmt.Errorf("iterate session entries: %w", err)
	}
	return session.FromEntries(entries)
}

// Save replaces the namespace's entries in one transaction.
func (s *SessionStore) Save(ctx context.Context, sess session.Session) error {
	entries, err := sess.Entries()
	if err != nil {
		return err
	}

	return s.inTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx,
			`DELETE FROM session_entries WHERE namespace = ?`, s.namespace); err != nil {
			return fmt.Errorf("delete session entries: %w", err)
		}
		for k, v := range entries {
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO session_entries (namespace, key, value) VALUES (?, ?, ?)`,
				s.namespace, k, v); err != nil {
				return fmt.Errorf("insert session entry %s: %w", k, err)
			}
		}
		return nil
	})
}

// Clear deletes the namespace's entries.
func (s *SessionStore) Clear(ctx context.Context) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx,
			`DELETE FROM session_entries WHERE namespace = ?`, s.namespace); err != nil {
			return fmt.Errorf("delete session entries: %w", err)
		}
		return nil
	})
}

func (s *SessionStore) inTx(ctx context.Context, fn func(*sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			s.logger.Warn("rollback failed", "error", rbErr)
		}
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// Compile-time interface verification.
var _ session.Store = (*SessionStore)(nil)
