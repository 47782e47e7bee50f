// Package logging also provides a structured audit trail: one JSON line per
// significant event (turn boundaries, intent classification, worker
// delegation, memory writes), written independently of the bus and the
// store so it keeps recording even if either of those is unavailable.
package logging

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// =============================================================================
// AUDIT EVENT TYPES
// =============================================================================

// AuditEventType names one kind of audited event.
type AuditEventType string

const (
	// Turn lifecycle -> one pair per call to Orchestrator.Handle
	AuditTurnStart AuditEventType = "turn_start"
	AuditTurnEnd   AuditEventType = "turn_end"

	// Intent classification
	AuditIntentParsed AuditEventType = "intent_parsed"

	// Worker delegation -> one pair per session.Manager.Delegate call
	AuditWorkerSpawn    AuditEventType = "worker_spawn"
	AuditWorkerComplete AuditEventType = "worker_complete"
	AuditWorkerError    AuditEventType = "worker_error"

	// Memory writes
	AuditMemoryStore AuditEventType = "memory_store"

	// Generic error events
	AuditErrorGeneric  AuditEventType = "error_generic"
	AuditErrorCritical AuditEventType = "error_critical"
)

// =============================================================================
// AUDIT EVENT STRUCTURE
// =============================================================================

// AuditEvent is one structured audit log entry.
type AuditEvent struct {
	Timestamp  int64                  `json:"ts"`      // Unix milliseconds
	EventType  AuditEventType         `json:"event"`
	TurnID     string                 `json:"turn"`   // correlates start/end of one Handle call
	Agent      string                 `json:"agent"`  // worker agent name, if applicable
	Target     string                 `json:"target"` // intent, memory id, or other subject
	Success    bool                   `json:"success"`
	DurationMs int64                  `json:"dur_ms"`
	Error      string                 `json:"error"`
	Message    string                 `json:"msg"`
	Fields     map[string]interface{} `json:"fields"`
}

// =============================================================================
// AUDIT LOGGER
// =============================================================================

var (
	auditFile   *os.File
	auditMu     sync.Mutex
	auditLogger *AuditLogger
)

// AuditLogger writes audit events scoped to one turn.
type AuditLogger struct {
	turnID string
}

// InitAudit opens the day's audit log file. A no-op outside debug mode.
func InitAudit() error {
	if !IsDebugMode() {
		return nil
	}

	auditMu.Lock()
	defer auditMu.Unlock()

	if auditFile != nil {
		return nil
	}

	date := time.Now().Format("2006-01-02")
	auditPath := filepath.Join(logsDir, fmt.Sprintf("%s_audit.log", date))

	file, err := os.OpenFile(auditPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return fmt.Errorf("failed to create audit log: %w", err)
	}
	auditFile = file

	header := fmt.Sprintf("# Audit log started at %s\n", time.Now().Format(time.RFC3339))
	auditFile.WriteString(header)

	return nil
}

// CloseAudit closes the audit log file.
func CloseAudit() {
	auditMu.Lock()
	defer auditMu.Unlock()

	if auditFile != nil {
		auditFile.Close()
		auditFile = nil
	}
}

// Audit returns the global, unscoped audit logger.
func Audit() *AuditLogger {
	if auditLogger == nil {
		auditLogger = &AuditLogger{}
	}
	return auditLogger
}

// AuditWithTurn scopes an audit logger to one orchestrator turn so its
// start/end and every event in between share a correlation id.
func AuditWithTurn(turnID string) *AuditLogger {
	return &AuditLogger{turnID: turnID}
}

// =============================================================================
// AUDIT LOGGING METHODS
// =============================================================================

// Log writes one audit event.
func (a *AuditLogger) Log(event AuditEvent) {
	if !IsDebugMode() || auditFile == nil {
		return
	}

	if event.Timestamp == 0 {
		event.Timestamp = time.Now().UnixMilli()
	}
	if event.TurnID == "" && a.turnID != "" {
		event.TurnID = a.turnID
	}
	if event.Fields == nil {
		event.Fields = make(map[string]interface{})
	}

	auditMu.Lock()
	defer auditMu.Unlock()

	data, err := json.Marshal(event)
	if err == nil {
		auditFile.WriteString(string(data) + "\n")
	}
}

func escapeString(s string) string {
	// Optimization: strings.Builder instead of repeated concatenation —
	// matters when error/message fields carry multi-KB worker output.
	var b strings.Builder
	b.Grow(len(s) + len(s)/10)

	for _, c := range s {
		switch c {
		case '"':
			b.WriteString("\\\"")
		case '\\':
			b.WriteString("\\\\")
		case '\n':
			b.WriteString("\\n")
		case '\r':
			b.WriteString("\\r")
		case '\t':
			b.WriteString("\\t")
		default:
			b.WriteRune(c)
		}
	}
	return b.String()
}

// =============================================================================
// CONVENIENCE METHODS
// =============================================================================

// TurnStart logs a turn's start.
func (a *AuditLogger) TurnStart(turnID string, inputLen int) {
	a.Log(AuditEvent{
		EventType: AuditTurnStart,
		TurnID:    turnID,
		Success:   true,
		Fields:    map[string]interface{}{"input_len": inputLen},
		Message:   fmt.Sprintf("turn %s started (%d chars)", turnID, inputLen),
	})
}

// TurnEnd logs a turn's completion.
func (a *AuditLogger) TurnEnd(turnID string, durationMs int64, success bool) {
	a.Log(AuditEvent{
		EventType:  AuditTurnEnd,
		TurnID:     turnID,
		Success:    success,
		DurationMs: durationMs,
		Message:    fmt.Sprintf("turn %s ended (%dms, success=%v)", turnID, durationMs, success),
	})
}

// IntentParsed logs the intent a turn was classified into.
func (a *AuditLogger) IntentParsed(intent string) {
	a.Log(AuditEvent{
		EventType: AuditIntentParsed,
		Target:    intent,
		Success:   true,
		Message:   fmt.Sprintf("intent classified: %s", intent),
	})
}

// WorkerSpawn logs a subprocess delegation starting.
func (a *AuditLogger) WorkerSpawn(agent, label string) {
	a.Log(AuditEvent{
		EventType: AuditWorkerSpawn,
		Agent:     agent,
		Target:    label,
		Success:   true,
		Message:   fmt.Sprintf("worker spawned: %s (%s)", agent, label),
	})
}

// WorkerComplete logs a subprocess delegation finishing, success or not.
func (a *AuditLogger) WorkerComplete(agent, label string, durationMs int64, success bool, errMsg string) {
	eventType := AuditWorkerComplete
	if !success {
		eventType = AuditWorkerError
	}
	a.Log(AuditEvent{
		EventType:  eventType,
		Agent:      agent,
		Target:     label,
		Success:    success,
		DurationMs: durationMs,
		Error:      escapeString(errMsg),
		Message:    fmt.Sprintf("worker %s (%s) finished: success=%v, %dms", agent, label, success, durationMs),
	})
}

// MemoryStore logs a memory write.
func (a *AuditLogger) MemoryStore(sourceAgent string, chunksProduced, chunksStored int) {
	a.Log(AuditEvent{
		EventType: AuditMemoryStore,
		Agent:     sourceAgent,
		Success:   true,
		Fields:    map[string]interface{}{"produced": chunksProduced, "stored": chunksStored},
		Message:   fmt.Sprintf("memory store: agent=%s produced=%d stored=%d", sourceAgent, chunksProduced, chunksStored),
	})
}

// Error logs an error event outside any specific turn.
func (a *AuditLogger) Error(category string, err error, critical bool) {
	eventType := AuditErrorGeneric
	if critical {
		eventType = AuditErrorCritical
	}
	errMsg := ""
	if err != nil {
		errMsg = err.Error()
	}
	a.Log(AuditEvent{
		EventType: eventType,
		Target:    category,
		Success:   false,
		Error:     escapeString(errMsg),
		Message:   fmt.Sprintf("error in %s: %s (critical=%v)", category, errMsg, critical),
	})
}
