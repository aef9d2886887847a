package usage

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// SQLiteStore keeps records in a single sqlite table.
type SQLiteStore struct {
	db  *sql.DB
	now func() time.Time
}

func NewSQLiteStore(path string) (*SQLiteStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create usage db dir: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	store := &SQLiteStore{db: db, now: time.Now}
	if err := store.init(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

func (s *SQLiteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *SQLiteStore) init() error {
	stmts := []string{
		`PRAGMA journal_mode=WAL;`,
		`PRAGMA synchronous=NORMAL;`,
		`PRAGMA busy_timeout=5000;`,
		`CREATE TABLE IF NOT EXISTS usage (
			id TEXT PRIMARY KEY,
			day TEXT NOT NULL,
			user_id TEXT NOT NULL,
			display_name TEXT NOT NULL DEFAULT '',
			created_at_ms INTEGER NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS usage_day_idx ON usage(day, created_at_ms);`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("init usage db: %w", err)
		}
	}
	return nil
}

func (s *SQLiteStore) Append(rec Record) error {
	_, err := s.db.Exec(
		`INSERT INTO usage(id, day, user_id, display_name, created_at_ms) VALUES(?, ?, ?, ?, ?)`,
		"use-"+uuid.NewString(), rec.Day, rec.UserID, rec.DisplayName, s.now().UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("insert usage record: %w", err)
	}
	return nil
}

// Records returns the records for day in insertion order.
func (s *SQLiteStore) Records(day string) ([]Record, error) {
	rows, err := s.db.Query(
		`SELECT day, user_id, display_name FROM usage WHERE day = ? ORDER BY created_at_ms ASC, rowid ASC`,
		day,
	)
	if err != nil {
		return nil, fmt.Errorf("query usage records: %w", err)
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		var rec Record
		if err := rows.Scan(&rec.Day, &rec.UserID, &rec.DisplayName); err != nil {
			return nil, fmt.Errorf("scan usage record: %w", err)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}
