package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/TVScoundrel/agentforge-sub003/graph/emit"
)

// sqlStore is the shared implementation behind SQLiteStore and MySQLStore:
// both drivers speak database/sql, so the checkpoint/idempotency/outbox
// logic and the schema DDL are written once against *sql.DB and each
// backend only supplies its placeholder style and upsert clause.
type sqlStore struct {
	db          *sql.DB
	placeholder func(n int) string
	// upsert builds the dialect's conflict clause from the conflict
	// columns and the one column to overwrite (SQLite/Postgres use
	// ON CONFLICT; MySQL uses ON DUPLICATE KEY UPDATE).
	upsert func(conflictCols, assignments string) string
}

// sqliteUpsert builds a SQLite/Postgres-style ON CONFLICT clause;
// assignCol is the single column to overwrite on conflict.
func sqliteUpsert(conflictCols, assignCol string) string {
	return fmt.Sprintf("ON CONFLICT (%s) DO UPDATE SET %s = excluded.%s", conflictCols, assignCol, assignCol)
}

// mysqlUpsert builds a MySQL ON DUPLICATE KEY UPDATE clause.
func mysqlUpsert(_ string, assignCol string) string {
	return fmt.Sprintf("ON DUPLICATE KEY UPDATE %s = VALUES(%s)", assignCol, assignCol)
}

// schema returns the DDL statements for the four tables a sqlStore needs.
// SQLite and MySQL both accept this syntax with minor type-affinity
// differences that SQLite tolerates (it is dynamically typed per column).
func schema() []string {
	return []string{
		`CREATE TABLE IF NOT EXISTS checkpoints (
			namespace VARCHAR(255) NOT NULL,
			thread VARCHAR(255) NOT NULL,
			checkpoint_id INTEGER NOT NULL,
			blob BLOB NOT NULL,
			PRIMARY KEY (namespace, thread, checkpoint_id)
		)`,
		`CREATE TABLE IF NOT EXISTS labeled_checkpoints (
			label VARCHAR(255) PRIMARY KEY,
			blob BLOB NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS idempotency_keys (
			k VARCHAR(255) PRIMARY KEY
		)`,
		`CREATE TABLE IF NOT EXISTS pending_events (
			event_id VARCHAR(255) PRIMARY KEY,
			run_id VARCHAR(255) NOT NULL,
			step INTEGER NOT NULL,
			node_id VARCHAR(255) NOT NULL,
			msg TEXT NOT NULL,
			meta TEXT
		)`,
	}
}

func newSQLStore(db *sql.DB, placeholder func(n int) string, upsert func(string, string) string) (*sqlStore, error) {
	s := &sqlStore{db: db, placeholder: placeholder, upsert: upsert}
	for _, stmt := range schema() {
		if _, err := db.Exec(stmt); err != nil {
			return nil, fmt.Errorf("store: migrate: %w", err)
		}
	}
	return s, nil
}

func (s *sqlStore) Put(ctx context.Context, namespace, thread string, checkpointID int, blob Blob) error {
	q := fmt.Sprintf(`INSERT INTO checkpoints (namespace, thread, checkpoint_id, blob) VALUES (%s, %s, %s, %s) %s`,
		s.placeholder(1), s.placeholder(2), s.placeholder(3), s.placeholder(4),
		s.upsert("namespace, thread, checkpoint_id", "blob"))
	_, err := s.db.ExecContext(ctx, q, namespace, thread, checkpointID, []byte(blob))
	return err
}

func (s *sqlStore) Latest(ctx context.Context, namespace, thread string) (int, Blob, error) {
	q := fmt.Sprintf(`SELECT checkpoint_id, blob FROM checkpoints WHERE namespace = %s AND thread = %s
		ORDER BY checkpoint_id DESC LIMIT 1`, s.placeholder(1), s.placeholder(2))
	row := s.db.QueryRowContext(ctx, q, namespace, thread)
	var id int
	var blob []byte
	if err := row.Scan(&id, &blob); err != nil {
		if err == sql.ErrNoRows {
			return 0, nil, ErrNotFound
		}
		return 0, nil, err
	}
	return id, Blob(blob), nil
}

func (s *sqlStore) List(ctx context.Context, namespace, thread string) ([]int, error) {
	q := fmt.Sprintf(`SELECT checkpoint_id FROM checkpoints WHERE namespace = %s AND thread = %s ORDER BY checkpoint_id ASC`,
		s.placeholder(1), s.placeholder(2))
	rows, err := s.db.QueryContext(ctx, q, namespace, thread)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var ids []int
	for rows.Next() {
		var id int
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (s *sqlStore) SaveLabeled(ctx context.Context, label string, blob Blob) error {
	q := fmt.Sprintf(`INSERT INTO labeled_checkpoints (label, blob) VALUES (%s, %s) %s`,
		s.placeholder(1), s.placeholder(2), s.upsert("label", "blob"))
	_, err := s.db.ExecContext(ctx, q, label, []byte(blob))
	return err
}

func (s *sqlStore) LoadLabeled(ctx context.Context, label string) (Blob, error) {
	q := fmt.Sprintf(`SELECT blob FROM labeled_checkpoints WHERE label = %s`, s.placeholder(1))
	row := s.db.QueryRowContext(ctx, q, label)
	var blob []byte
	if err := row.Scan(&blob); err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return Blob(blob), nil
}

func (s *sqlStore) CheckIdempotency(ctx context.Context, key string) (bool, error) {
	q := fmt.Sprintf(`SELECT 1 FROM idempotency_keys WHERE k = %s`, s.placeholder(1))
	row := s.db.QueryRowContext(ctx, q, key)
	var one int
	if err := row.Scan(&one); err != nil {
		if err == sql.ErrNoRows {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

func (s *sqlStore) MarkIdempotent(ctx context.Context, key string) error {
	q := fmt.Sprintf(`INSERT INTO idempotency_keys (k) VALUES (%s)`, s.placeholder(1))
	_, err := s.db.ExecContext(ctx, q, key)
	return err
}

func (s *sqlStore) PendingEvents(ctx context.Context, limit int) ([]emit.Event, error) {
	q := `SELECT run_id, step, node_id, msg FROM pending_events ORDER BY run_id, step ASC`
	if limit > 0 {
		q += fmt.Sprintf(" LIMIT %d", limit)
	}
	rows, err := s.db.QueryContext(ctx, q)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []emit.Event
	for rows.Next() {
		var ev emit.Event
		if err := rows.Scan(&ev.RunID, &ev.Step, &ev.NodeID, &ev.Msg); err != nil {
			return nil, err
		}
		out = append(out, ev)
	}
	return out, rows.Err()
}

func (s *sqlStore) MarkEventsEmitted(ctx context.Context, eventIDs []string) error {
	for _, id := range eventIDs {
		q := fmt.Sprintf(`DELETE FROM pending_events WHERE event_id = %s`, s.placeholder(1))
		if _, err := s.db.ExecContext(ctx, q, id); err != nil {
			return err
		}
	}
	return nil
}
