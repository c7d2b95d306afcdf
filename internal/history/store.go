// Package history is the agent daemon's connection-lifecycle
// observability log: an append-only SQLite table of open/busy-transition/
// teardown events. The daemon appends to it; no CLI command reads it
// back. Uses embedded
// migrations, WAL mode, and database/sql over modernc.org/sqlite, with
// an append/list shape generalized here from "task events" to
// "connection events" keyed by port instead of task id.
package history

import (
	"embed"
	"fmt"
	"sort"
	"strings"
	"time"

	"database/sql"

	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Store owns the observability database.
type Store struct {
	db *sql.DB
}

// Open opens (creating if absent) the SQLite database at dsn and applies
// any unapplied migrations.
func Open(dsn string) (*Store, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open history db: %w", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}
	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate history db: %w", err)
	}
	return s, nil
}

func (s *Store) Close() error { return s.db.Close() }

func (s *Store) migrate() error {
	if _, err := s.db.Exec(`CREATE TABLE IF NOT EXISTS schema_migrations (
		version TEXT PRIMARY KEY,
		applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
	)`); err != nil {
		return fmt.Errorf("create migrations table: %w", err)
	}

	entries, err := migrationsFS.ReadDir("migrations")
	if err != nil {
		return fmt.Errorf("read migrations dir: %w", err)
	}
	var files []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".sql") {
			files = append(files, e.Name())
		}
	}
	sort.Strings(files)

	for _, f := range files {
		var applied int
		if err := s.db.QueryRow("SELECT COUNT(*) FROM schema_migrations WHERE version = ?", f).Scan(&applied); err != nil {
			return fmt.Errorf("check migration %s: %w", f, err)
		}
		if applied > 0 {
			continue
		}
		content, err := migrationsFS.ReadFile("migrations/" + f)
		if err != nil {
			return fmt.Errorf("read migration %s: %w", f, err)
		}
		if _, err := s.db.Exec(string(content)); err != nil {
			return fmt.Errorf("apply migration %s: %w", f, err)
		}
		if _, err := s.db.Exec("INSERT INTO schema_migrations (version) VALUES (?)", f); err != nil {
			return fmt.Errorf("record migration %s: %w", f, err)
		}
	}
	return nil
}

// Event is one row of the connection_events log.
type Event struct {
	ID        int64
	Port      string
	Event     string
	Detail    *string
	Timestamp time.Time
}

// Append records a connection lifecycle event: "open", "busy:<kind>",
// "teardown", etc. detail is optional free-form context.
func (s *Store) Append(port, event string, detail *string) error {
	_, err := s.db.Exec("INSERT INTO connection_events (port, event, detail) VALUES (?, ?, ?)", port, event, detail)
	if err != nil {
		return fmt.Errorf("append history event: %w", err)
	}
	return nil
}

// ListByPort returns the event history for one port, newest first.
func (s *Store) ListByPort(port string, limit int) ([]*Event, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.Query(`SELECT id, port, event, detail, timestamp
		FROM connection_events WHERE port = ? ORDER BY timestamp DESC LIMIT ?`, port, limit)
	if err != nil {
		return nil, fmt.Errorf("list history by port: %w", err)
	}
	defer rows.Close()
	return scanEvents(rows)
}

// ListRecent returns the most recent events across all ports.
func (s *Store) ListRecent(limit int) ([]*Event, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.Query(`SELECT id, port, event, detail, timestamp
		FROM connection_events ORDER BY timestamp DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("list recent history: %w", err)
	}
	defer rows.Close()
	return scanEvents(rows)
}

func scanEvents(rows *sql.Rows) ([]*Event, error) {
	var events []*Event
	for rows.Next() {
		e := &Event{}
		if err := rows.Scan(&e.ID, &e.Port, &e.Event, &e.Detail, &e.Timestamp); err != nil {
			return nil, fmt.Errorf("scan history event: %w", err)
		}
		events = append(events, e)
	}
	return events, rows.Err()
}
