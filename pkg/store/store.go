// Package store persists agents, missions, and a ledger sink in SQLite.
// The in-memory gate remains authoritative; the store is a durable mirror
// for restarts and offline review.
package store

import (
	"database/sql"
	"errors"

	_ "modernc.org/sqlite"
)

// Store is a SQLite-backed persistence layer.
type Store struct {
	db *sql.DB
}

// Open opens (or creates) the SQLite database at path and ensures schema.
// Use ":memory:" for an ephemeral store.
func Open(path string) (*Store, error) {
	if path == "" {
		return nil, errors.New("store path is required")
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	return New(db)
}

// New wraps an existing database handle and ensures schema.
func New(db *sql.DB) (*Store, error) {
	if db == nil {
		return nil, errors.New("db is nil")
	}
	if err := ensureSchema(db); err != nil {
		return nil, err
	}
	return &Store{db: db}, nil
}

// Close releases the underlying handle.
func (s *Store) Close() error {
	return s.db.Close()
}

func ensureSchema(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS agents (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			role TEXT,
			department TEXT NOT NULL,
			provider TEXT,
			model TEXT,
			status TEXT NOT NULL,
			tokens_used INTEGER NOT NULL DEFAULT 0,
			cost_usd REAL NOT NULL DEFAULT 0,
			created_at TIMESTAMP
		);

		CREATE TABLE IF NOT EXISTS missions (
			id TEXT PRIMARY KEY,
			objective TEXT NOT NULL,
			status TEXT NOT NULL,
			created_at TIMESTAMP,
			updated_at TIMESTAMP
		);

		CREATE TABLE IF NOT EXISTS mission_steps (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			mission_id TEXT NOT NULL,
			agent_id TEXT,
			detail TEXT NOT NULL,
			created_at TIMESTAMP
		);
		CREATE INDEX IF NOT EXISTS idx_mission_steps_mission ON mission_steps(mission_id);

		CREATE TABLE IF NOT EXISTS mission_findings (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			mission_id TEXT NOT NULL,
			agent_id TEXT,
			topic TEXT NOT NULL,
			finding TEXT NOT NULL,
			created_at TIMESTAMP
		);
		CREATE INDEX IF NOT EXISTS idx_mission_findings_mission ON mission_findings(mission_id);

		CREATE TABLE IF NOT EXISTS ledger_entries (
			id TEXT PRIMARY KEY,
			agent_id TEXT,
			cluster_id TEXT,
			skill TEXT NOT NULL,
			decision TEXT NOT NULL,
			params_json TEXT,
			result_json TEXT,
			created_at TIMESTAMP
		);
		CREATE INDEX IF NOT EXISTS idx_ledger_agent ON ledger_entries(agent_id);
		CREATE INDEX IF NOT EXISTS idx_ledger_skill ON ledger_entries(skill);
	`)
	return err
}
