// Package store keeps a durable copy of the network activity log in SQLite.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/torkjacobs/tork-guardian/internal/netaccess"
	"github.com/torkjacobs/tork-guardian/internal/redact"
)

const defaultListLimit = 100

// Store implements netaccess.ActivitySink.
type Store struct {
	db *sql.DB
}

// Filter narrows List results. Zero values match everything.
type Filter struct {
	SkillID    string
	Action     netaccess.Action
	DeniedOnly bool
	Limit      int
}

func Open(dbPath string) (*Store, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("cannot create database directory %s: %w", dir, err)
	}

	db, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("cannot open database: %w", err)
	}

	// One writer at a time for SQLite.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("database migration failed: %w", err)
	}
	return s, nil
}

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS activity (
		seq        INTEGER PRIMARY KEY AUTOINCREMENT,
		id         TEXT NOT NULL UNIQUE,
		created_at TEXT NOT NULL,
		skill_id   TEXT NOT NULL,
		action     TEXT NOT NULL,
		allowed    INTEGER NOT NULL,
		reason     TEXT
	);
	CREATE INDEX IF NOT EXISTS idx_activity_skill ON activity(skill_id, seq);
	`
	_, err := s.db.Exec(schema)
	return err
}

// Record inserts entry. Entries with an ID already stored are ignored.
func (s *Store) Record(entry netaccess.ActivityEntry) error {
	return s.RecordContext(context.Background(), entry)
}

func (s *Store) RecordContext(ctx context.Context, entry netaccess.ActivityEntry) error {
	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO activity (id, created_at, skill_id, action, allowed, reason)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		entry.ID, entry.Timestamp.UTC().Format(time.RFC3339Nano), entry.SkillID,
		string(entry.Action), entry.Allowed, redact.Redact(entry.Reason),
	)
	return err
}

// List returns the most recent matching entries, oldest first.
func (s *Store) List(ctx context.Context, f Filter) ([]netaccess.ActivityEntry, error) {
	var (
		where []string
		args  []any
	)
	if f.SkillID != "" {
		where = append(where, "skill_id = ?")
		args = append(args, f.SkillID)
	}
	if f.Action != "" {
		where = append(where, "action = ?")
		args = append(args, string(f.Action))
	}
	if f.DeniedOnly {
		where = append(where, "allowed = 0")
	}

	limit := f.Limit
	if limit <= 0 {
		limit = defaultListLimit
	}

	query := `SELECT id, created_at, skill_id, action, allowed, reason FROM activity`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY seq DESC LIMIT ?"
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []netaccess.ActivityEntry
	for rows.Next() {
		var (
			e       netaccess.ActivityEntry
			created string
			action  string
			reason  sql.NullString
		)
		if err := rows.Scan(&e.ID, &created, &e.SkillID, &action, &e.Allowed, &reason); err != nil {
			return nil, err
		}
		e.Action = netaccess.Action(action)
		e.Reason = reason.String
		if ts, err := time.Parse(time.RFC3339Nano, created); err == nil {
			e.Timestamp = ts
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i, j := 0, len(entries)-1; i < j; i, j = i+1, j-1 {
		entries[i], entries[j] = entries[j], entries[i]
	}
	return entries, nil
}

// Clear deletes every stored entry.
func (s *Store) Clear(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM activity`)
	return err
}

func (s *Store) Close() error {
	return s.db.Close()
}
