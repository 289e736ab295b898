package store

import (
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite" // pure-Go sqlite driver, no cgo
)

// SQLiteStore is a Store backed by a local SQLite database file, suitable
// for single-host durable checkpointing without an external dependency
// (spec.md 6: pluggable checkpoint store).
type SQLiteStore struct {
	*sqlStore
	db *sql.DB
}

// NewSQLiteStore opens (creating if necessary) a SQLite database at path
// and migrates the checkpoint schema.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("store: open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1) // modernc.org/sqlite serializes writers; avoid SQLITE_BUSY
	inner, err := newSQLStore(db, func(n int) string { return "?" }, sqliteUpsert)
	if err != nil {
		db.Close()
		return nil, err
	}
	return &SQLiteStore{sqlStore: inner, db: db}, nil
}

// Close releases the underlying database handle.
func (s *SQLiteStore) Close() error { return s.db.Close() }
