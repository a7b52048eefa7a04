// Package handlestore is the durable store for values too large or too
// structured for the preferences file, most notably the granted directory handle.
package handlestore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"snipping-tool/src/fsaccess"
)

// KeyDirectoryHandle is the settings key holding the serialized directory grant.
const KeyDirectoryHandle = "directoryHandle"

var ErrNotFound = errors.New("key not found")

const createSettingsTableStmt = `
CREATE TABLE IF NOT EXISTS settings (
    key TEXT PRIMARY KEY,
    value BLOB NOT NULL,
    updated_at TEXT NOT NULL
);`

// Store is a small key/value table in a SQLite file.
type Store struct {
	db *sql.DB
}

// Open creates or opens the database at path.
func Open(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create store dir: %w", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(`PRAGMA busy_timeout = 5000;`); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("set busy timeout: %w", err)
	}
	if _, err := db.Exec(createSettingsTableStmt); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create settings table: %w", err)
	}
	return &Store{db: db}, nil
}

// Close releases the database.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Get returns the value stored under key, or ErrNotFound.
func (s *Store) Get(ctx context.Context, key string) ([]byte, error) {
	var value []byte
	err := s.db.QueryRowContext(ctx, `SELECT value FROM settings WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", key, err)
	}
	return value, nil
}

// Put stores value under key, replacing any previous value.
func (s *Store) Put(ctx context.Context, key string, value []byte) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO settings (key, value, updated_at) VALUES (?, ?, ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		key, value, time.Now().UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("write %s: %w", key, err)
	}
	return nil
}

// Delete removes key. Deleting a missing key is not an error.
func (s *Store) Delete(ctx context.Context, key string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM settings WHERE key = ?`, key); err != nil {
		return fmt.Errorf("delete %s: %w", key, err)
	}
	return nil
}

// LoadDirectoryHandle returns the granted directory, fsaccess.ErrNotConfigured
// when none was ever stored, or a permission error when the token is unusable.
func (s *Store) LoadDirectoryHandle(ctx context.Context) (fsaccess.Handle, error) {
	data, err := s.Get(ctx, KeyDirectoryHandle)
	if errors.Is(err, ErrNotFound) {
		return fsaccess.Handle{}, fsaccess.ErrNotConfigured
	}
	if err != nil {
		return fsaccess.Handle{}, err
	}
	return fsaccess.Unmarshal(data)
}

// SaveDirectoryHandle persists h as the granted directory.
func (s *Store) SaveDirectoryHandle(ctx context.Context, h fsaccess.Handle) error {
	data, err := h.Marshal()
	if err != nil {
		return fmt.Errorf("encode directory handle: %w", err)
	}
	return s.Put(ctx, KeyDirectoryHandle, data)
}

// ClearDirectoryHandle forgets the granted directory.
func (s *Store) ClearDirectoryHandle(ctx context.Context) error {
	return s.Delete(ctx, KeyDirectoryHandle)
}
