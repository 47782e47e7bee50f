package store

import (
	"encoding/json"
	"fmt"
	"time"
)

// ActivityEvent is a human-readable record of something the system did —
// a delegation, a consolidation run, a guardian verdict — surfaced by the
// morning-brief and surface-ideas reports.
type ActivityEvent struct {
	EventType string
	Agent     string
	Summary   string
	Metadata  map[string]any
	CreatedAt time.Time
}

// RecordActivity appends one activity event.
func (db *DB) RecordActivity(e *ActivityEvent) error {
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}
	metaJSON, err := json.Marshal(nonNilMap(e.Metadata))
	if err != nil {
		return fmt.Errorf("store: marshaling activity metadata: %w", err)
	}
	_, err = db.conn.Exec(`
		INSERT INTO activity_log (event_type, agent, summary, metadata, created_at)
		VALUES (?, ?, ?, ?, ?)`,
		e.EventType, e.Agent, e.Summary, string(metaJSON), e.CreatedAt.Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("store: recording activity: %w", err)
	}
	return nil
}

// ActivitySince returns every activity event at or after t, newest first.
func (db *DB) ActivitySince(t time.Time) ([]*ActivityEvent, error) {
	rows, err := db.conn.Query(`
		SELECT event_type, agent, summary, metadata, created_at
		FROM activity_log WHERE created_at >= ? ORDER BY created_at DESC`, t.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return nil, fmt.Errorf("store: querying activity: %w", err)
	}
	defer rows.Close()

	var out []*ActivityEvent
	for rows.Next() {
		var e ActivityEvent
		var metaJSON, createdAt string
		if err := rows.Scan(&e.EventType, &e.Agent, &e.Summary, &metaJSON, &createdAt); err != nil {
			return nil, fmt.Errorf("store: scanning activity row: %w", err)
		}
		if err := json.Unmarshal([]byte(metaJSON), &e.Metadata); err != nil {
			return nil, fmt.Errorf("store: unmarshaling activity metadata: %w", err)
		}
		if e.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAt); err != nil {
			return nil, fmt.Errorf("store: parsing activity created_at: %w", err)
		}
		out = append(out, &e)
	}
	return out, rows.Err()
}
