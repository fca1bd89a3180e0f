// Package history persists availability transitions and observed device
// states so outages can be inspected after the fact.
package history

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3" // SQLite driver
	"github.com/rs/zerolog/log"
)

// DefaultDBPath is the default path for the history database.
const DefaultDBPath = "data/history.db"

const schema = `
CREATE TABLE IF NOT EXISTS transitions (
	id         INTEGER PRIMARY KEY AUTOINCREMENT,
	target     TEXT    NOT NULL,
	available  INTEGER NOT NULL,
	state      TEXT    NOT NULL DEFAULT '',
	created_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_transitions_target ON transitions(target, created_at);
`

// Transition is one recorded availability edge or state change.
type Transition struct {
	ID        int64
	Target    string
	Available bool
	State     string
	At        time.Time
}

// Store records device transitions in a SQLite database.
type Store struct {
	mu   sync.Mutex
	db   *sql.DB
	path string
}

// NewStore creates a store backed by the database at path.
func NewStore(path string) *Store {
	if path == "" {
		path = DefaultDBPath
	}
	return &Store{path: path}
}

// Open opens the database and initializes the schema.
func (s *Store) Open() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create history directory: %w", err)
	}

	db, err := sql.Open("sqlite3", s.path+"?_journal=WAL&_busy_timeout=5000")
	if err != nil {
		return fmt.Errorf("failed to open history database: %w", err)
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return fmt.Errorf("failed to initialize history schema: %w", err)
	}

	s.db = db
	log.Debug().Str("path", s.path).Msg("History database opened")
	return nil
}

// Close closes the database.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return err
}

// Record appends a transition for target.
func (s *Store) Record(target string, available bool, state string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.db == nil {
		return fmt.Errorf("history database not open")
	}

	_, err := s.db.Exec(
		`INSERT INTO transitions (target, available, state, created_at) VALUES (?, ?, ?, ?)`,
		target, boolToInt(available), state, time.Now().Unix(),
	)
	if err != nil {
		return fmt.Errorf("failed to record transition: %w", err)
	}
	return nil
}

// Recent returns up to limit transitions for target, newest first.
func (s *Store) Recent(target string, limit int) ([]Transition, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.db == nil {
		return nil, fmt.Errorf("history database not open")
	}

	rows, err := s.db.Query(
		`SELECT id, target, available, state, created_at
		 FROM transitions WHERE target = ?
		 ORDER BY created_at DESC, id DESC LIMIT ?`,
		target, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query transitions: %w", err)
	}
	defer rows.Close()

	var transitions []Transition
	for rows.Next() {
		var t Transition
		var available int
		var createdAt int64
		if err := rows.Scan(&t.ID, &t.Target, &available, &t.State, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan transition: %w", err)
		}
		t.Available = available != 0
		t.At = time.Unix(createdAt, 0)
		transitions = append(transitions, t)
	}
	return transitions, rows.Err()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
