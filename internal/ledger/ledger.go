// Package ledger provides an append-only audit history of plan edits.
package ledger

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// EventType represents the type of event in the ledger
type EventType string

const (
	EventPointDefined    EventType = "point_defined"
	EventPointUndefined  EventType = "point_undefined"
	EventChannelPinned   EventType = "channel_pinned"
	EventChannelUnpinned EventType = "channel_unpinned"
	EventChannelRemoved  EventType = "channel_removed"
	EventChannelColored  EventType = "channel_colored"
	EventPlanImported    EventType = "plan_imported"
)

// Entry represents a single event in the ledger
type Entry struct {
	ID        string         `json:"id"`
	EventType EventType      `json:"event_type"`
	Timestamp time.Time      `json:"timestamp"`
	Channel   string         `json:"channel,omitempty"`
	Payload   map[string]any `json:"payload,omitempty"`
}

// Ledger provides append-only event logging
type Ledger struct {
	db  *sql.DB
	now func() time.Time
}

// New creates a new Ledger using the provided database connection
func New(db *sql.DB) *Ledger {
	return &Ledger{db: db, now: time.Now}
}

// Append adds a new event and returns its id.
// channel may be empty for plan-wide events.
func (l *Ledger) Append(eventType EventType, channel string, payload map[string]any) (string, error) {
	var payloadJSON []byte
	if payload != nil {
		var err error
		payloadJSON, err = json.Marshal(payload)
		if err != nil {
			return "", fmt.Errorf("failed to marshal payload: %w", err)
		}
	}

	id := uuid.NewString()
	_, err := l.db.Exec(`
		INSERT INTO event_ledger (id, event_type, timestamp, channel, payload)
		VALUES (?, ?, ?, ?, ?)
	`, id, string(eventType), l.now().UTC().UnixNano(), nullString(channel), string(payloadJSON))
	if err != nil {
		return "", fmt.Errorf("failed to append %s: %w", eventType, err)
	}
	return id, nil
}

// Recent returns the newest entries first
func (l *Ledger) Recent(limit int) ([]*Entry, error) {
	rows, err := l.db.Query(`
		SELECT id, event_type, timestamp, channel, payload
		FROM event_ledger
		ORDER BY timestamp DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanEntries(rows)
}

// ByChannel returns the newest entries for one channel first
func (l *Ledger) ByChannel(channel string, limit int) ([]*Entry, error) {
	rows, err := l.db.Query(`
		SELECT id, event_type, timestamp, channel, payload
		FROM event_ledger
		WHERE channel = ?
		ORDER BY timestamp DESC
		LIMIT ?
	`, channel, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanEntries(rows)
}

// Cleanup removes entries older than retention and returns how many were dropped
func (l *Ledger) Cleanup(retention time.Duration) (int64, error) {
	cutoff := l.now().Add(-retention).UTC().UnixNano()
	result, err := l.db.Exec(`DELETE FROM event_ledger WHERE timestamp < ?`, cutoff)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

func scanEntries(rows *sql.Rows) ([]*Entry, error) {
	var entries []*Entry
	for rows.Next() {
		var entry Entry
		var channel, payload sql.NullString
		var timestamp int64

		if err := rows.Scan(&entry.ID, &entry.EventType, &timestamp, &channel, &payload); err != nil {
			return nil, err
		}

		entry.Timestamp = time.Unix(0, timestamp).UTC()
		entry.Channel = channel.String

		if payload.Valid && payload.String != "" {
			entry.Payload = make(map[string]any)
			if err := json.Unmarshal([]byte(payload.String), &entry.Payload); err != nil {
				return nil, fmt.Errorf("failed to unmarshal payload: %w", err)
			}
		}

		entries = append(entries, &entry)
	}

	return entries, rows.Err()
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
