package storage

import (
	"database/sql"
	"errors"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// ErrNotFound is returned when a record is not found.
var ErrNotFound = errors.New("record not found")

// New opens a SQLite database connection at the given path.
// It enables foreign keys and sets connection pool settings.
func New(path string) (*sql.DB, error) {
	// The busy timeout makes concurrent writers queue on the file lock
	// instead of failing immediately with SQLITE_BUSY.
	db, err := sql.Open("sqlite3", path+"?_busy_timeout=5000")
	if err != nil {
		return nil, err
	}

	// Enable foreign keys (disabled by default in SQLite)
	if _, err := db.Exec("PRAGMA foreign_keys = ON;"); err != nil {
		_ = db.Close()
		return nil, err
	}

	// Set connection pool settings
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	// Verify connection
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, err
	}

	return db, nil
}

// Migrate runs database migrations to create the required tables.
// It is idempotent and can be run multiple times safely.
func Migrate(db *sql.DB) error {
	schema := []string{
		`CREATE TABLE IF NOT EXISTS index_slots (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			external_index_id TEXT NOT NULL UNIQUE,
			category_id TEXT NOT NULL,
			display_name TEXT NOT NULL DEFAULT '',
			state TEXT NOT NULL DEFAULT 'AVAILABLE',
			assigned_owner_id INTEGER,
			assigned_at DATETIME,
			created_at DATETIME NOT NULL,
			updated_at DATETIME NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS knowledge_base_bindings (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			owner_id INTEGER NOT NULL UNIQUE,
			external_index_id TEXT NOT NULL,
			workspace_id TEXT NOT NULL,
			display_name TEXT NOT NULL DEFAULT '',
			state TEXT NOT NULL DEFAULT 'ACTIVE',
			last_sync_at DATETIME,
			created_at DATETIME NOT NULL,
			updated_at DATETIME NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS notes (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			owner_id INTEGER NOT NULL,
			source TEXT NOT NULL DEFAULT '',
			title TEXT NOT NULL DEFAULT '',
			content TEXT NOT NULL DEFAULT '',
			comment TEXT NOT NULL DEFAULT '',
			tags TEXT NOT NULL DEFAULT '',
			state TEXT NOT NULL DEFAULT 'ACTIVE',
			created_at DATETIME NOT NULL,
			ingested_at DATETIME
		);`,
		`CREATE TABLE IF NOT EXISTS sync_records (
			id TEXT PRIMARY KEY,
			note_id INTEGER NOT NULL,
			owner_id INTEGER NOT NULL,
			external_index_id TEXT NOT NULL DEFAULT '',
			remote_document_id TEXT NOT NULL DEFAULT '',
			outcome TEXT NOT NULL,
			error_message TEXT NOT NULL DEFAULT '',
			synced_at DATETIME NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_index_slots_owner ON index_slots(assigned_owner_id);`,
		`CREATE INDEX IF NOT EXISTS idx_notes_owner_state ON notes(owner_id, state);`,
		`CREATE INDEX IF NOT EXISTS idx_sync_records_note ON sync_records(note_id, synced_at);`,
		`CREATE INDEX IF NOT EXISTS idx_sync_records_owner ON sync_records(owner_id);`,
	}

	for _, stmt := range schema {
		if _, err := db.Exec(stmt); err != nil {
			return err
		}
	}

	return nil
}
