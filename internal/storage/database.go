// Package storage provides SQLite persistence for the client-side state and
// for the reference collection service.
package storage

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"
)

// Database wraps the SQLite database connection
type Database struct {
	db *sql.DB
}

// ClientSchema holds the tables used by the telemetry client
var ClientSchema = []string{
	`CREATE TABLE IF NOT EXISTS client_state (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL,
		updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
	)`,
}

// CollectorSchema holds the tables used by the collection service
var CollectorSchema = []string{
	`CREATE TABLE IF NOT EXISTS clients (
		id TEXT PRIMARY KEY,
		token_hash TEXT NOT NULL,
		last_fp TEXT DEFAULT '',
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		last_checkin_at DATETIME
	)`,

	`CREATE TABLE IF NOT EXISTS checkins (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		client_id TEXT NOT NULL,
		fp TEXT NOT NULL,
		fpv INTEGER NOT NULL,
		version TEXT DEFAULT '',
		ua TEXT DEFAULT '',
		uad TEXT DEFAULT '',
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		FOREIGN KEY (client_id) REFERENCES clients(id)
	)`,

	`CREATE TABLE IF NOT EXISTS events (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		client_id TEXT NOT NULL,
		url TEXT NOT NULL,
		kind TEXT NOT NULL,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		FOREIGN KEY (client_id) REFERENCES clients(id)
	)`,

	`CREATE TABLE IF NOT EXISTS counters (
		url TEXT PRIMARY KEY,
		view_count INTEGER DEFAULT 0,
		like_count INTEGER DEFAULT 0,
		updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
	)`,

	// one like per client and URL
	`CREATE UNIQUE INDEX IF NOT EXISTS idx_events_like_once ON events(client_id, url) WHERE kind = 'like'`,
	`CREATE INDEX IF NOT EXISTS idx_checkins_client ON checkins(client_id)`,
	`CREATE INDEX IF NOT EXISTS idx_events_url ON events(url)`,
}

// Open creates or opens the SQLite database at the given path and applies the schema
func Open(dbPath string, schema []string) (*Database, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath+"?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	database := &Database{db: db}

	if err := database.Migrate(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return database, nil
}

// Close closes the database connection
func (d *Database) Close() error {
	return d.db.Close()
}

// Migrate executes the given schema statements
func (d *Database) Migrate(schema []string) error {
	for _, migration := range schema {
		if _, err := d.db.Exec(migration); err != nil {
			return fmt.Errorf("migration failed: %w\nQuery: %s", err, migration)
		}
	}

	return nil
}

// Transaction helper for running operations in a transaction
func (d *Database) Transaction(fn func(*sql.Tx) error) error {
	tx, err := d.db.Begin()
	if err != nil {
		return err
	}

	if err := fn(tx); err != nil {
		tx.Rollback()
		return err
	}

	return tx.Commit()
}
