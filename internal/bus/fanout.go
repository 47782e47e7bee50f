package bus

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"

	"cortex/internal/logging"
)

// subjectPrefix namespaces every message published by the fan-out layer.
const subjectPrefix = "cortex.bus"

// FanOut mirrors bus status transitions onto NATS subjects for live
// subscribers. It never gates delivery: the SQLite queue remains the only
// source of truth, and a broken or absent NATS connection degrades to a
// silent no-op rather than an error.
type FanOut struct {
	conn *nats.Conn
}

// event is the JSON payload published on every status transition.
type event struct {
	TaskID    string `json:"task_id"`
	ToAgent   string `json:"to_agent"`
	Status    string `json:"status"`
	Timestamp string `json:"timestamp"`
}

// NewFanOut connects to url with reconnect handling. An empty url disables
// the fan-out layer entirely (Publish becomes a no-op).
func NewFanOut(url string) (*FanOut, error) {
	if url == "" {
		return &FanOut{}, nil
	}
	conn, err := nats.Connect(url,
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				logging.Get(logging.CategoryBus).Warn("fanout: disconnected: %v", err)
			}
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			logging.Bus("fanout: reconnected to %s", c.ConnectedUrl())
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("bus: connecting to NATS at %s: %w", url, err)
	}
	logging.Bus("fanout: connected to %s", url)
	return &FanOut{conn: conn}, nil
}

// Close drains and closes the connection, if any.
func (f *FanOut) Close() {
	if f.conn != nil {
		f.conn.Drain()
	}
}

// Publish announces a status transition. Errors are logged, not returned —
// a publish failure must never block the authoritative SQLite write it
// follows.
func (f *FanOut) Publish(taskID, toAgent string, status Status) {
	if f == nil || f.conn == nil {
		return
	}
	payload, err := json.Marshal(event{
		TaskID: taskID, ToAgent: toAgent, Status: string(status),
		Timestamp: time.Now().UTC().Format(time.RFC3339Nano),
	})
	if err != nil {
		logging.Get(logging.CategoryBus).Warn("fanout: marshaling event for task %s: %v", taskID, err)
		return
	}
	subject := fmt.Sprintf("%s.%s.%s", subjectPrefix, toAgent, status)
	if err := f.conn.Publish(subject, payload); err != nil {
		logging.Get(logging.CategoryBus).Warn("fanout: publishing to %s: %v", subject, err)
	}
}
