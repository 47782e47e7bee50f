package logging

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func setupAuditTest(t *testing.T) string {
	t.Helper()
	tempDir, err := os.MkdirTemp("", "audit_test")
	if err != nil {
		t.Fatalf("failed to create temp dir: %v", err)
	}
	t.Cleanup(func() { os.RemoveAll(tempDir) })

	configDir := filepath.Join(tempDir, ".cortex")
	if err := os.MkdirAll(configDir, 0755); err != nil {
		t.Fatalf("failed to create config dir: %v", err)
	}
	configContent := `{"logging": {"debug_mode": true}}`
	if err := os.WriteFile(filepath.Join(configDir, "config.json"), []byte(configContent), 0644); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}

	CloseAll()
	loggers = make(map[Category]*Logger)
	logsDir = ""
	workspace = ""
	configLoaded = false
	auditLogger = nil

	if err := Initialize(tempDir); err != nil {
		t.Fatalf("failed to initialize logging: %v", err)
	}
	t.Cleanup(CloseAll)

	return logsDir
}

func readAuditLines(t *testing.T, dir string) []string {
	t.Helper()
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("reading logs dir: %v", err)
	}
	var auditPath string
	for _, e := range entries {
		if strings.HasSuffix(e.Name(), "_audit.log") {
			auditPath = filepath.Join(dir, e.Name())
		}
	}
	if auditPath == "" {
		t.Fatalf("no audit log file found in %s", dir)
	}
	data, err := os.ReadFile(auditPath)
	if err != nil {
		t.Fatalf("reading audit log: %v", err)
	}
	var lines []string
	for _, l := range strings.Split(string(data), "\n") {
		if l != "" && !strings.HasPrefix(l, "#") {
			lines = append(lines, l)
		}
	}
	return lines
}

func TestAuditTurnLifecycleIsCorrelatedByTurnID(t *testing.T) {
	dir := setupAuditTest(t)

	audit := AuditWithTurn("turn-123")
	audit.TurnStart("turn-123", 42)
	audit.IntentParsed("build_request")
	audit.TurnEnd("turn-123", 150, true)

	lines := readAuditLines(t, dir)
	if len(lines) != 3 {
		t.Fatalf("expected 3 audit lines, got %d: %v", len(lines), lines)
	}

	for _, l := range lines {
		var event AuditEvent
		if err := json.Unmarshal([]byte(l), &event); err != nil {
			t.Fatalf("unmarshaling audit line: %v", err)
		}
		if event.EventType != AuditIntentParsed && event.TurnID != "turn-123" {
			t.Errorf("expected turn id turn-123, got %q for event %s", event.TurnID, event.EventType)
		}
	}
}

func TestAuditWorkerCompleteMarksErrorOnFailure(t *testing.T) {
	dir := setupAuditTest(t)

	Audit().WorkerSpawn("builder", "builder_ab12cd34")
	Audit().WorkerComplete("builder", "builder_ab12cd34", 500, false, "exit status 1")

	lines := readAuditLines(t, dir)
	if len(lines) != 2 {
		t.Fatalf("expected 2 audit lines, got %d", len(lines))
	}

	var complete AuditEvent
	if err := json.Unmarshal([]byte(lines[1]), &complete); err != nil {
		t.Fatalf("unmarshaling: %v", err)
	}
	if complete.EventType != AuditWorkerError {
		t.Errorf("expected worker_error event type on failure, got %s", complete.EventType)
	}
	if complete.Success {
		t.Error("expected Success=false")
	}
}

func TestAuditIsNoopOutsideDebugMode(t *testing.T) {
	tempDir, err := os.MkdirTemp("", "audit_disabled_test")
	if err != nil {
		t.Fatalf("failed to create temp dir: %v", err)
	}
	defer os.RemoveAll(tempDir)

	CloseAll()
	loggers = make(map[Category]*Logger)
	logsDir = ""
	workspace = ""
	configLoaded = false
	auditLogger = nil

	if err := Initialize(tempDir); err != nil {
		t.Fatalf("failed to initialize logging: %v", err)
	}
	defer CloseAll()

	if IsDebugMode() {
		t.Skip("debug mode unexpectedly enabled by default config")
	}

	// Should not panic even though no audit file was opened.
	Audit().TurnStart("turn-1", 10)

	if _, err := os.Stat(filepath.Join(tempDir, ".cortex", "logs")); err == nil {
		t.Error("expected no logs directory to be created outside debug mode")
	}
}
