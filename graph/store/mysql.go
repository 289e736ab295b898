package store

import (
	"database/sql"
	"fmt"

	_ "github.com/go-sql-driver/mysql"
)

// MySQLStore is a Store backed by MySQL, for multi-host deployments that
// need checkpoints visible to more than one engine process (spec.md 6:
// pluggable checkpoint store; spec.md explicit non-goal: no distributed
// scheduling — only checkpoint storage is shared, not execution).
type MySQLStore struct {
	*sqlStore
	db *sql.DB
}

// NewMySQLStore opens a MySQL connection using dsn (see
// github.com/go-sql-driver/mysql's DSN format) and migrates the
// checkpoint schema.
func NewMySQLStore(dsn string) (*MySQLStore, error) {
	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, fmt.Errorf("store: open mysql: %w", err)
	}
	inner, err := newSQLStore(db, func(n int) string { return "?" }, mysqlUpsert)
	if err != nil {
		db.Close()
		return nil, err
	}
	return &MySQLStore{sqlStore: inner, db: db}, nil
}

// Close releases the underlying database handle.
func (s *MySQLStore) Close() error { return s.db.Close() }
