package db

import (
	"bytes"
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"

	_ "modernc.org/sqlite" // SQLite driver

	"github.com/Hussein-Mazeh/nostr-identity/store"
)

// DB is a SQLite-backed key-value store implementing store.KV.
type DB struct {
	sql  *sql.DB
	path string
}

var _ store.KV = (*DB)(nil)

// Open initialises a SQLite database at the given path and migrates it.
// Any failure to create or open the file is reported as store.ErrStorageUnavailable.
func Open(path string) (*DB, error) {
	if path == "" {
		return nil, fmt.Errorf("%w: database path is required", store.ErrStorageUnavailable)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("%w: create database directory: %v", store.ErrStorageUnavailable, err)
	}

	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)", path)
	handle, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("%w: open sqlite database: %v", store.ErrStorageUnavailable, err)
	}

	if err := handle.Ping(); err != nil {
		handle.Close()
		return nil, fmt.Errorf("%w: ping sqlite database: %v", store.ErrStorageUnavailable, err)
	}

	if err := EnsurePerm0600(path); err != nil {
		handle.Close()
		return nil, err
	}

	d := &DB{sql: handle, path: path}
	if err := d.Migrate(); err != nil {
		handle.Close()
		return nil, err
	}
	return d, nil
}

// Close releases the database resources.
func (d *DB) Close() error {
	if d == nil || d.sql == nil {
		return nil
	}
	return d.sql.Close()
}

// Path returns the database file location.
func (d *DB) Path() string { return d.path }

// EnsurePerm0600 restricts the database file to its owner on Unix systems.
func EnsurePerm0600(path string) error {
	if runtime.GOOS == "windows" {
		return nil
	}
	if err := os.Chmod(path, 0o600); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("chmod database: %w", err)
	}
	return nil
}

const createIdentityTable = `
CREATE TABLE IF NOT EXISTS identity_kv (
	key        TEXT     PRIMARY KEY,
	value      BLOB     NOT NULL,
	created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
	updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);`

// Migrate ensures the identity_kv table exists.
func (d *DB) Migrate() error {
	if d == nil || d.sql == nil {
		return fmt.Errorf("database handle is nil")
	}
	if _, err := d.sql.Exec(createIdentityTable); err != nil {
		return fmt.Errorf("migrate schema: %w", err)
	}
	return nil
}

// Get returns the value stored under key or store.ErrNotFound.
func (d *DB) Get(ctx context.Context, key string) ([]byte, error) {
	if d == nil || d.sql == nil {
		return nil, store.ErrStorageUnavailable
	}

	var value []byte
	err := d.sql.QueryRowContext(ctx, `SELECT value FROM identity_kv WHERE key = ?`, key).Scan(&value)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, fmt.Errorf("select %s: %w", key, err)
	}
	return value, nil
}

// Set upserts value under key. Writing the value already stored leaves the
// row, including updated_at, untouched.
func (d *DB) Set(ctx context.Context, key string, value []byte) error {
	if d == nil || d.sql == nil {
		return store.ErrStorageUnavailable
	}

	current, err := d.Get(ctx, key)
	switch {
	case err == nil && bytes.Equal(current, value):
		return nil
	case err != nil && !errors.Is(err, store.ErrNotFound):
		return err
	}

	_, err = d.sql.ExecContext(ctx,
		`INSERT INTO identity_kv (key, value) VALUES (?, ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = CURRENT_TIMESTAMP`,
		key, value,
	)
	if err != nil {
		return fmt.Errorf("upsert %s: %w", key, err)
	}
	return nil
}

// Delete removes key; deleting a missing key is not an error.
func (d *DB) Delete(ctx context.Context, key string) error {
	if d == nil || d.sql == nil {
		return store.ErrStorageUnavailable
	}
	if _, err := d.sql.ExecContext(ctx, `DELETE FROM identity_kv WHERE key = ?`, key); err != nil {
		return fmt.Errorf("delete %s: %w", key, err)
	}
	return nil
}
