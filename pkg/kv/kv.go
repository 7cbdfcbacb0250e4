// Package kv provides a namespaced key-value store used for workspace
// allowances, budget snapshots, and escape-handler state. Keys follow the
// "ws:<workspace-uuid>:<kind>" convention from the on-disk state layout.
package kv

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/gofrs/flock"
	_ "modernc.org/sqlite"
)

var ErrLockTimeout = fmt.Errorf("kv: lock acquisition timeout")

const lockTimeout = 5 * time.Second

// Store is a sqlite-backed namespaced key-value table guarded by a
// cross-process file lock on Put (Delete runs without it), mirroring the session package's
// async-writer locking discipline but synchronous: KV writes here are
// rare (once per turn) and must be durable before the caller proceeds.
type Store struct {
	db       *sql.DB
	lockPath string
}

// Open opens (creating if absent) the sqlite database at path and ensures
// the kv_entries table exists.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open kv store %s: %w", path, err)
	}
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enable WAL on %s: %w", path, err)
	}
	const schema = `
	CREATE TABLE IF NOT EXISTS kv_entries (
		key        TEXT PRIMARY KEY,
		value      BLOB NOT NULL,
		updated_at INTEGER NOT NULL
	);`
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create kv schema: %w", err)
	}
	return &Store{db: db, lockPath: path + ".lock"}, nil
}

// Close closes the underlying database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// Get returns the raw value for key, or (nil, false) if absent.
func (s *Store) Get(key string) ([]byte, bool, error) {
	var value []byte
	err := s.db.QueryRow(`SELECT value FROM kv_entries WHERE key = ?`, key).Scan(&value)
	if err == sql.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("kv get %s: %w", key, err)
	}
	return value, true, nil
}

// Put writes key/value, serialized under a cross-process file lock so that
// concurrent daemons sharing the same state.db don't interleave writes.
func (s *Store) Put(key string, value []byte) error {
	fl := flock.New(s.lockPath)
	ctx, cancel := context.WithTimeout(context.Background(), lockTimeout)
	defer cancel()
	locked, err := fl.TryLockContext(ctx, 50*time.Millisecond)
	if err != nil || !locked {
		return ErrLockTimeout
	}
	defer fl.Unlock()

	_, err = s.db.Exec(
		`INSERT INTO kv_entries (key, value, updated_at) VALUES (?, ?, ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		key, value, time.Now().Unix(),
	)
	if err != nil {
		return fmt.Errorf("kv put %s: %w", key, err)
	}
	return nil
}

// Delete removes key. It is not an error for key to be absent.
func (s *Store) Delete(key string) error {
	if _, err := s.db.Exec(`DELETE FROM kv_entries WHERE key = ?`, key); err != nil {
		return fmt.Errorf("kv delete %s: %w", key, err)
	}
	return nil
}

// WorkspaceKey builds the "ws:<uuid>:<kind>" key convention used by the
// allowance, budget, and escape persistence layers.
func WorkspaceKey(workspaceID, kind string) string {
	return fmt.Sprintf("ws:%s:%s", workspaceID, kind)
}
