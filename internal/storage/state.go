// Package storage keeps versioned JSON records in SQLite.
package storage

import (
	"database/sql"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// Store holds JSON payloads keyed by (kind, id).
// Every write bumps the record version.
type Store struct {
	db *sql.DB
	mu sync.RWMutex
}

// NewStore creates a new state store.
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// Set upserts a record and returns its new version.
func (s *Store) Set(kind, id string, payload []byte) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var version int64
	err := s.db.QueryRow(`
		INSERT INTO resource_state (kind, id, payload, version, updated_at)
		VALUES (?, ?, ?, 1, ?)
		ON CONFLICT(kind, id) DO UPDATE SET
			payload = excluded.payload,
			version = version + 1,
			updated_at = excluded.updated_at
		RETURNING version
	`, kind, id, string(payload), time.Now().UTC().Unix()).Scan(&version)
	if err != nil {
		return 0, err
	}

	log.Debug().
		Str("kind", kind).
		Str("id", id).
		Int64("version", version).
		Msg("Record stored")
	return version, nil
}

// ReplaceAll makes records the complete set of a kind in one transaction.
// Records that survive keep bumping their version. Nothing changes on error.
func (s *Store) ReplaceAll(kind string, records map[string][]byte) (err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	ids := make([]any, 0, len(records)+1)
	ids = append(ids, kind)
	for id := range records {
		ids = append(ids, id)
	}

	query := `DELETE FROM resource_state WHERE kind = ?`
	if len(records) > 0 {
		query += ` AND id NOT IN (?` + strings.Repeat(`, ?`, len(records)-1) + `)`
	}
	if _, err = tx.Exec(query, ids...); err != nil {
		return err
	}

	now := time.Now().UTC().Unix()
	for id, payload := range records {
		_, err = tx.Exec(`
			INSERT INTO resource_state (kind, id, payload, version, updated_at)
			VALUES (?, ?, ?, 1, ?)
			ON CONFLICT(kind, id) DO UPDATE SET
				payload = excluded.payload,
				version = version + 1,
				updated_at = excluded.updated_at
		`, kind, id, string(payload), now)
		if err != nil {
			return err
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	log.Debug().Str("kind", kind).Int("records", len(records)).Msg("Records replaced")
	return nil
}

// Delete removes a record.
func (s *Store) Delete(kind, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.Exec(`DELETE FROM resource_state WHERE kind = ? AND id = ?`, kind, id)
	return err
}

// Clear removes all records of a kind. An empty kind clears everything.
func (s *Store) Clear(kind string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var err error
	if kind == "" {
		_, err = s.db.Exec(`DELETE FROM resource_state`)
	} else {
		_, err = s.db.Exec(`DELETE FROM resource_state WHERE kind = ?`, kind)
	}
	return err
}

// GetAll returns every record of a kind with its version.
func (s *Store) GetAll(kind string) (map[string][]byte, map[string]int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.Query(`
		SELECT id, payload, version FROM resource_state WHERE kind = ?
	`, kind)
	if err != nil {
		return nil, nil, err
	}
	defer rows.Close()

	payloads := make(map[string][]byte)
	versions := make(map[string]int64)
	for rows.Next() {
		var id, payload string
		var version int64
		if err := rows.Scan(&id, &payload, &version); err != nil {
			return nil, nil, err
		}
		payloads[id] = []byte(payload)
		versions[id] = version
	}
	return payloads, versions, rows.Err()
}
