package store

import (
	"fmt"
	"time"
)

// UsageRecord is a single durable usage event, persisted alongside the
// in-process usage.Tracker's JSON snapshot so historical per-day, per-agent
// totals survive process restarts.
type UsageRecord struct {
	Agent        string
	Model        string
	Provider     string
	InputTokens  int
	OutputTokens int
	DurationMS   int64
	Success      bool
	Error        string
	CreatedAt    time.Time
}

// RecordUsage persists one usage event.
func (db *DB) RecordUsage(r *UsageRecord) error {
	if r.CreatedAt.IsZero() {
		r.CreatedAt = time.Now().UTC()
	}
	_, err := db.conn.Exec(`
		INSERT INTO usage_records (agent, model, provider, input_tokens, output_tokens, duration_ms, success, error, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.Agent, r.Model, r.Provider, r.InputTokens, r.OutputTokens, r.DurationMS, boolToInt(r.Success), r.Error,
		r.CreatedAt.Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("store: recording usage: %w", err)
	}
	return nil
}

// UsageSince returns every usage record created at or after t, used to build
// daily/period token-budget summaries.
func (db *DB) UsageSince(t time.Time) ([]*UsageRecord, error) {
	rows, err := db.conn.Query(`
		SELECT agent, model, provider, input_tokens, output_tokens, duration_ms, success, error, created_at
		FROM usage_records WHERE created_at >= ? ORDER BY created_at ASC`, t.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return nil, fmt.Errorf("store: querying usage: %w", err)
	}
	defer rows.Close()

	var out []*UsageRecord
	for rows.Next() {
		var r UsageRecord
		var success int
		var createdAt string
		if err := rows.Scan(&r.Agent, &r.Model, &r.Provider, &r.InputTokens, &r.OutputTokens, &r.DurationMS,
			&success, &r.Error, &createdAt); err != nil {
			return nil, fmt.Errorf("store: scanning usage record: %w", err)
		}
		r.Success = success != 0
		if r.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAt); err != nil {
			return nil, fmt.Errorf("store: parsing usage created_at: %w", err)
		}
		out = append(out, &r)
	}
	return out, rows.Err()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
