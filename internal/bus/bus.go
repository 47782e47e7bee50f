// Package bus implements the durable, typed message queue that the
// orchestrator uses to dispatch tasks to specialist agents and receive their
// results. The SQLite-backed queue is authoritative. FanOut is an optional
// NATS publisher for status transitions that never gates delivery; Bus
// itself does not publish to it, so only callers holding a FanOut announce
// transitions.
package bus

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"cortex/internal/logging"
	"cortex/internal/metrics"
)

// Status is a message's place in its lifecycle.
type Status string

const (
	StatusPending    Status = "pending"
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
	// StatusBlocked is written exclusively by the guardian when a deep or
	// fast scan finds a critical issue.
	StatusBlocked Status = "blocked"
)

// ErrNotFound is returned when a task_id has no rows.
var ErrNotFound = errors.New("bus: not found")

// Message is one entry in the queue.
type Message struct {
	ID        int64
	TaskID    string
	ToAgent   string
	FromAgent string
	Payload   map[string]any
	Status    Status
	Result    string
	Error     string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Bus wraps the queue database.
type Bus struct {
	conn *sql.DB
}

const schema = `
CREATE TABLE IF NOT EXISTS message_queue (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	task_id     TEXT NOT NULL,
	to_agent    TEXT NOT NULL,
	from_agent  TEXT NOT NULL DEFAULT '',
	payload     TEXT NOT NULL DEFAULT '{}',
	status      TEXT NOT NULL DEFAULT 'pending',
	result      TEXT NOT NULL DEFAULT '',
	error       TEXT NOT NULL DEFAULT '',
	created_at  TEXT NOT NULL,
	updated_at  TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_queue_to_agent_status ON message_queue(to_agent, status);
CREATE INDEX IF NOT EXISTS idx_queue_task_id ON message_queue(task_id);
`

// Open opens (creating if necessary) the bus database at path.
func Open(path string) (*Bus, error) {
	conn, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("bus: opening %s: %w", path, err)
	}
	conn.SetMaxOpenConns(1)
	if _, err := conn.Exec(schema); err != nil {
		conn.Close()
		return nil, fmt.Errorf("bus: migrating %s: %w", path, err)
	}
	logging.Bus("opened message bus at %s", path)
	return &Bus{conn: conn}, nil
}

// Close closes the underlying connection.
func (b *Bus) Close() error { return b.conn.Close() }

// Send appends msg with status=pending and assigns it a monotonic row id,
// which is what preserves send-order delivery to a single recipient.
func (b *Bus) Send(msg *Message) error {
	now := time.Now().UTC()
	msg.CreatedAt, msg.UpdatedAt = now, now
	if msg.Status == "" {
		msg.Status = StatusPending
	}
	payloadJSON, err := json.Marshal(nonNilPayload(msg.Payload))
	if err != nil {
		return fmt.Errorf("bus: marshaling payload: %w", err)
	}
	res, err := b.conn.Exec(`
		INSERT INTO message_queue (task_id, to_agent, from_agent, payload, status, result, error, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		msg.TaskID, msg.ToAgent, msg.FromAgent, string(payloadJSON), string(msg.Status), msg.Result, msg.Error,
		msg.CreatedAt.Format(time.RFC3339Nano), msg.UpdatedAt.Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("bus: sending message: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("bus: reading inserted id: %w", err)
	}
	msg.ID = id
	logging.BusDebug("Send: task_id=%s to=%s id=%d", msg.TaskID, msg.ToAgent, id)
	b.sampleQueueDepth(msg.ToAgent)
	return nil
}

// sampleQueueDepth refreshes the pending-message gauge for toAgent. Errors
// are swallowed — a metrics sample is never allowed to fail a bus write.
func (b *Bus) sampleQueueDepth(toAgent string) {
	var depth int64
	row := b.conn.QueryRow(`SELECT COUNT(*) FROM message_queue WHERE to_agent = ? AND status = ?`, toAgent, string(StatusPending))
	if err := row.Scan(&depth); err == nil {
		metrics.BusQueueDepth.WithLabelValues(toAgent).Set(float64(depth))
	}
}

// Receive returns up to limit pending messages addressed to toAgent, ordered
// by row id (send order), atomically transitioning each to in_progress so no
// two receivers can claim the same message.
func (b *Bus) Receive(toAgent string, limit int) ([]*Message, error) {
	tx, err := b.conn.Begin()
	if err != nil {
		return nil, fmt.Errorf("bus: beginning receive tx: %w", err)
	}
	defer tx.Rollback()

	rows, err := tx.Query(`
		SELECT id, task_id, to_agent, from_agent, payload, status, result, error, created_at, updated_at
		FROM message_queue WHERE to_agent = ? AND status = ? ORDER BY id ASC LIMIT ?`,
		toAgent, string(StatusPending), limit)
	if err != nil {
		return nil, fmt.Errorf("bus: querying pending messages: %w", err)
	}
	msgs, err := scanMessages(rows)
	rows.Close()
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC().Format(time.RFC3339Nano)
	for _, m := range msgs {
		if _, err := tx.Exec(`UPDATE message_queue SET status = ?, updated_at = ? WHERE id = ?`,
			string(StatusInProgress), now, m.ID); err != nil {
			return nil, fmt.Errorf("bus: marking message %d in_progress: %w", m.ID, err)
		}
		m.Status = StatusInProgress
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("bus: committing receive tx: %w", err)
	}
	logging.BusDebug("Receive: to=%s claimed %d messages", toAgent, len(msgs))
	b.sampleQueueDepth(toAgent)
	return msgs, nil
}

// UpdateStatus updates the most recent row for task_id.
func (b *Bus) UpdateStatus(taskID string, status Status, result, errMsg string) error {
	row := b.conn.QueryRow(`SELECT id FROM message_queue WHERE task_id = ? ORDER BY id DESC LIMIT 1`, taskID)
	var id int64
	if err := row.Scan(&id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ErrNotFound
		}
		return fmt.Errorf("bus: finding task %s: %w", taskID, err)
	}
	_, err := b.conn.Exec(`UPDATE message_queue SET status = ?, result = ?, error = ?, updated_at = ? WHERE id = ?`,
		string(status), result, errMsg, time.Now().UTC().Format(time.RFC3339Nano), id)
	if err != nil {
		return fmt.Errorf("bus: updating task %s: %w", taskID, err)
	}
	logging.Bus("UpdateStatus: task_id=%s status=%s", taskID, status)
	return nil
}

// ListSince returns every row with id > sinceID, ordered by id ascending,
// up to limit rows. Used by the guardian's intercept loop to watch all bus
// traffic regardless of recipient.
func (b *Bus) ListSince(sinceID int64, limit int) ([]*Message, error) {
	rows, err := b.conn.Query(`
		SELECT id, task_id, to_agent, from_agent, payload, status, result, error, created_at, updated_at
		FROM message_queue WHERE id > ? ORDER BY id ASC LIMIT ?`, sinceID, limit)
	if err != nil {
		return nil, fmt.Errorf("bus: listing messages since %d: %w", sinceID, err)
	}
	defer rows.Close()
	return scanMessages(rows)
}

// SetBlocked marks a message blocked with reason, the guardian's exclusive
// write per the lifecycle-ownership invariant.
func (b *Bus) SetBlocked(taskID, reason string) error {
	return b.UpdateStatus(taskID, StatusBlocked, "", reason)
}

// SetFlagged records issues in a message's metadata without changing its
// status — a FLAG verdict never blocks delivery.
func (b *Bus) SetFlagged(taskID string, issuesJSON string) error {
	row := b.conn.QueryRow(`SELECT id, payload FROM message_queue WHERE task_id = ? ORDER BY id DESC LIMIT 1`, taskID)
	var id int64
	var payloadJSON string
	if err := row.Scan(&id, &payloadJSON); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ErrNotFound
		}
		return fmt.Errorf("bus: finding task %s: %w", taskID, err)
	}
	var payload map[string]any
	if err := json.Unmarshal([]byte(payloadJSON), &payload); err != nil {
		payload = map[string]any{}
	}
	var issues any
	if err := json.Unmarshal([]byte(issuesJSON), &issues); err == nil {
		payload["guardian_issues"] = issues
	}
	merged, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("bus: marshaling flagged payload: %w", err)
	}
	_, err = b.conn.Exec(`UPDATE message_queue SET payload = ?, updated_at = ? WHERE id = ?`,
		string(merged), time.Now().UTC().Format(time.RFC3339Nano), id)
	return err
}

// GetTask returns the most recent row for task_id.
func (b *Bus) GetTask(taskID string) (*Message, error) {
	row := b.conn.QueryRow(`
		SELECT id, task_id, to_agent, from_agent, payload, status, result, error, created_at, updated_at
		FROM message_queue WHERE task_id = ? ORDER BY id DESC LIMIT 1`, taskID)
	m, err := scanMessage(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return m, err
}

type scannable interface {
	Scan(dest ...any) error
}

func scanMessage(row scannable) (*Message, error) {
	var m Message
	var payloadJSON, status, createdAt, updatedAt string
	err := row.Scan(&m.ID, &m.TaskID, &m.ToAgent, &m.FromAgent, &payloadJSON, &status, &m.Result, &m.Error, &createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}
	m.Status = Status(status)
	if err := json.Unmarshal([]byte(payloadJSON), &m.Payload); err != nil {
		return nil, fmt.Errorf("bus: unmarshaling payload: %w", err)
	}
	if m.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAt); err != nil {
		return nil, fmt.Errorf("bus: parsing created_at: %w", err)
	}
	if m.UpdatedAt, err = time.Parse(time.RFC3339Nano, updatedAt); err != nil {
		return nil, fmt.Errorf("bus: parsing updated_at: %w", err)
	}
	return &m, nil
}

func scanMessages(rows *sql.Rows) ([]*Message, error) {
	var out []*Message
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, fmt.Errorf("bus: scanning message row: %w", err)
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

func nonNilPayload(p map[string]any) map[string]any {
	if p == nil {
		return map[string]any{}
	}
	return p
}
