// Package sqlite provides a SQLite-backed history store.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/kkkqkx123/open-agent-sub019/record"
)

// Store implements history storage on SQLite. Each record is kept as
// its canonical JSON line in insertion order, so reads return the same
// shape the file backend produces. record_id is intentionally not
// unique: token usage is written twice per call, estimate then
// reconciliation, and both rows must survive.
type Store struct {
	db  *sql.DB
	log *slog.Logger
}

// New opens (or creates) the database at path. ":memory:" is accepted
// for tests.
func New(path string, log *slog.Logger) (*Store, error) {
	if log == nil {
		log = slog.Default()
	}
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("sqlite open: %w", err)
	}
	// SQLite permits one writer at a time; a single connection avoids
	// SQLITE_BUSY under concurrent appends.
	db.SetMaxOpenConns(1)
	return &Store{db: db, log: log}, nil
}

// Migrate creates the records table.
func (s *Store) Migrate(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS records (
			seq INTEGER PRIMARY KEY AUTOINCREMENT,
			record_id TEXT NOT NULL,
			session_id TEXT NOT NULL,
			record_type TEXT NOT NULL,
			ts_ns INTEGER NOT NULL,
			body TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_records_session ON records(session_id, seq)`,
		`CREATE INDEX IF NOT EXISTS idx_records_ts ON records(ts_ns)`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	return nil
}

func (s *Store) Close() error { return s.db.Close() }

// Append inserts one record row. Failures are logged, not returned.
func (s *Store) Append(ctx context.Context, rec record.Record) bool {
	if rec.Session() == "" {
		s.log.Error("history append: empty session id", "record_id", rec.ID())
		return false
	}
	body, err := json.Marshal(rec)
	if err != nil {
		s.log.Error("history append: encode record",
			"record_id", rec.ID(), "record_type", rec.Type(), "error", err)
		return false
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO records (record_id, session_id, record_type, ts_ns, body) VALUES (?,?,?,?,?)`,
		rec.ID(), rec.Session(), string(rec.Type()), rec.Time().UnixNano(), string(body),
	)
	if err != nil {
		s.log.Error("history append: insert record", "record_id", rec.ID(), "error", err)
		return false
	}
	return true
}

// ReadAll returns the session's records in insertion order. Rows whose
// body no longer decodes are skipped.
func (s *Store) ReadAll(ctx context.Context, sessionID string) ([]map[string]any, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT body FROM records WHERE session_id = ? ORDER BY seq`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("read history: %w", err)
	}
	defer rows.Close()

	var out []map[string]any
	for rows.Next() {
		var body string
		if err := rows.Scan(&body); err != nil {
			return nil, fmt.Errorf("read history: %w", err)
		}
		var m map[string]any
		if err := json.Unmarshal([]byte(body), &m); err != nil {
			s.log.Warn("history read: skipping corrupt row",
				"session_id", sessionID, "error", err)
			continue
		}
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("read history: %w", err)
	}
	return out, nil
}

// Sessions lists distinct session ids in lexical order.
func (s *Store) Sessions(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT DISTINCT session_id FROM records ORDER BY session_id`)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("list sessions: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	return ids, nil
}

// Cleanup deletes rows timestamped before cutoff and reports how many
// were removed.
func (s *Store) Cleanup(ctx context.Context, cutoff time.Time) (int, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM records WHERE ts_ns < ?`, cutoff.UnixNano())
	if err != nil {
		return 0, fmt.Errorf("cleanup: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("cleanup: %w", err)
	}
	return int(n), nil
}
