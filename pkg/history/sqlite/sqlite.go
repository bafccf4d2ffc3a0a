// Package sqlite implements the history store on an embedded SQLite
// database, so execution history survives bridge restarts. The driver
// is modernc.org/sqlite (pure Go, no cgo).
package sqlite

import (
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/rhuss/cadbridge/pkg/history"
)

// Store persists execution records in a SQLite database file.
type Store struct {
	db *sql.DB
}

var _ history.Store = (*Store)(nil)

// New opens (creating if needed) the database at path and runs the
// schema migration. Use ":memory:" for an ephemeral store in tests.
func New(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("sqlite: opening database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite: pinging database: %w", err)
	}

	// WAL lets status reads proceed while the drain goroutine writes.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite: setting WAL mode: %w", err)
	}

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite: running migrations: %w", err)
	}
	return s, nil
}

func (s *Store) migrate() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS executions (
			seq         INTEGER PRIMARY KEY AUTOINCREMENT,
			id          TEXT NOT NULL,
			code        TEXT NOT NULL DEFAULT '',
			success     INTEGER NOT NULL,
			error_type  TEXT NOT NULL DEFAULT '',
			duration_ms REAL NOT NULL DEFAULT 0,
			executed_at DATETIME NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_executions_executed_at ON executions(executed_at);
	`)
	if err != nil {
		return fmt.Errorf("creating executions table: %w", err)
	}
	return nil
}

// Append inserts one record.
func (s *Store) Append(rec history.Record) error {
	_, err := s.db.Exec(
		`INSERT INTO executions (id, code, success, error_type, duration_ms, executed_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		rec.ID,
		rec.Code,
		boolToInt(rec.Success),
		rec.ErrorType,
		float64(rec.Duration)/float64(time.Millisecond),
		rec.ExecutedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("inserting execution record: %w", err)
	}
	return nil
}

// Recent returns up to n records, newest first. n <= 0 means all.
func (s *Store) Recent(n int) ([]history.Record, error) {
	query := `SELECT id, code, success, error_type, duration_ms, executed_at
	          FROM executions ORDER BY seq DESC`
	var rows *sql.Rows
	var err error
	if n > 0 {
		rows, err = s.db.Query(query+` LIMIT ?`, n)
	} else {
		rows, err = s.db.Query(query)
	}
	if err != nil {
		return nil, fmt.Errorf("querying executions: %w", err)
	}
	defer rows.Close()

	var out []history.Record
	for rows.Next() {
		var rec history.Record
		var success int
		var durationMS float64
		if err := rows.Scan(&rec.ID, &rec.Code, &success, &rec.ErrorType, &durationMS, &rec.ExecutedAt); err != nil {
			return nil, fmt.Errorf("scanning execution record: %w", err)
		}
		rec.Success = success != 0
		rec.Duration = time.Duration(durationMS * float64(time.Millisecond))
		out = append(out, rec)
	}
	return out, rows.Err()
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
