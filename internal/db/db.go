// Package db opens the dimplan SQLite database and creates its tables.
package db

import (
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
)

// DB is the shared SQLite handle used by storage and the ledger.
type DB struct {
	*sql.DB
}

// schema is applied in order on every open; each statement is idempotent.
var schema = []struct {
	name string
	sql  string
}{
	{"event_ledger", `
		CREATE TABLE IF NOT EXISTS event_ledger (
			id TEXT PRIMARY KEY,
			event_type TEXT NOT NULL,
			timestamp INTEGER NOT NULL,
			channel TEXT,
			payload TEXT
		);
		CREATE INDEX IF NOT EXISTS idx_ledger_type_ts ON event_ledger(event_type, timestamp);
		CREATE INDEX IF NOT EXISTS idx_ledger_channel_ts ON event_ledger(channel, timestamp);
	`},
	// JSON records keyed by (kind, id); plan channels live under kind "channel"
	{"resource_state", `
		CREATE TABLE IF NOT EXISTS resource_state (
			kind TEXT NOT NULL,
			id TEXT NOT NULL,
			payload TEXT NOT NULL,
			version INTEGER DEFAULT 1,
			updated_at INTEGER NOT NULL,
			PRIMARY KEY (kind, id)
		);
		CREATE INDEX IF NOT EXISTS idx_resource_state_kind ON resource_state(kind);
	`},
}

// Open opens the database at dbPath in WAL mode and applies the schema.
func Open(dbPath string) (*DB, error) {
	conn, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	for _, table := range schema {
		if _, err := conn.Exec(table.sql); err != nil {
			conn.Close()
			return nil, fmt.Errorf("failed to create %s table: %w", table.name, err)
		}
	}

	return &DB{conn}, nil
}
