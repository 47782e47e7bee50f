// Package session spawns the external worker-session binary that runs each
// specialist agent (builder, verifier, researcher, guardian) as an isolated
// subprocess, and captures its result. The worker binary itself is opaque:
// this package only builds its invocation, enforces a timeout, and captures
// its output.
package session

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"cortex/internal/logging"
	"cortex/internal/metrics"
)

// Agent names an addressable specialist role.
type Agent string

const (
	AgentBuilder    Agent = "builder"
	AgentVerifier   Agent = "verifier"
	AgentResearcher Agent = "researcher"
	AgentGuardian   Agent = "guardian"
)

// ToolAllowlist is the default set of tools granted to each agent role.
var ToolAllowlist = map[Agent][]string{
	AgentBuilder:    {"exec", "read", "write", "edit"},
	AgentVerifier:   {"web_search", "web_fetch", "read"},
	AgentResearcher: {"web_search", "web_fetch", "read"},
	AgentGuardian:   {"read"},
}

// DefaultTimeout is the per-agent default delegation timeout.
var DefaultTimeout = map[Agent]time.Duration{
	AgentBuilder:    120 * time.Second,
	AgentVerifier:   90 * time.Second,
	AgentResearcher: 90 * time.Second,
	AgentGuardian:   120 * time.Second,
}

func timeoutFor(agent Agent) time.Duration {
	if d, ok := DefaultTimeout[agent]; ok {
		return d
	}
	return 120 * time.Second
}

// AgentConfig resolves the model, SOUL-document path, and tool allowlist
// for an agent. Missing values fall back to the defaults above.
type AgentConfig struct {
	Model     string
	SoulPath  string
	ToolNames []string
}

// Manager spawns session-spawn subprocesses.
type Manager struct {
	SpawnBinary string
	TeamDocPath string
	Configs     map[Agent]AgentConfig
	DefaultModel string
}

// NewManager constructs a Manager. spawnBinary is the external executable
// (e.g. "openclaw") that session-spawn invokes.
func NewManager(spawnBinary, teamDocPath, defaultModel string) *Manager {
	return &Manager{
		SpawnBinary:  spawnBinary,
		TeamDocPath:  teamDocPath,
		Configs:      map[Agent]AgentConfig{},
		DefaultModel: defaultModel,
	}
}

// Task describes one unit of work to delegate.
type Task struct {
	Agent   Agent
	Message string
	Context map[string]any
	Timeout time.Duration // zero uses the agent's default
}

// Result is the outcome of one delegation.
type Result struct {
	Agent    Agent
	Success  bool
	Output   string
	Error    string
	Duration time.Duration
}

func (m *Manager) configFor(agent Agent) AgentConfig {
	cfg, ok := m.Configs[agent]
	if !ok {
		cfg = AgentConfig{}
	}
	if cfg.Model == "" {
		cfg.Model = m.DefaultModel
	}
	if cfg.ToolNames == nil {
		cfg.ToolNames = ToolAllowlist[agent]
	}
	return cfg
}

// buildSystemPrompt concatenates the agent's SOUL document (or a generic
// fallback), the shared team document (if present), and a fenced JSON
// serialization of the scoped context.
func (m *Manager) buildSystemPrompt(agent Agent, cfg AgentConfig, scopedContext map[string]any) (string, error) {
	soul := fmt.Sprintf("You are the %s agent", agent)
	if cfg.SoulPath != "" {
		if b, err := os.ReadFile(cfg.SoulPath); err == nil {
			soul = string(b)
		} else {
			logging.SessionDebug("buildSystemPrompt: SOUL document %s unreadable, using fallback: %v", cfg.SoulPath, err)
		}
	}

	var team string
	if m.TeamDocPath != "" {
		if b, err := os.ReadFile(m.TeamDocPath); err == nil {
			team = string(b)
		}
	}

	ctxJSON, err := json.MarshalIndent(scopedContext, "", "  ")
	if err != nil {
		return "", fmt.Errorf("session: marshaling scoped context: %w", err)
	}

	prompt := soul
	if team != "" {
		prompt += "\n\n" + team
	}
	prompt += fmt.Sprintf("\n\n```json\n%s\n```\n", ctxJSON)
	return prompt, nil
}

// Delegate spawns one session for task, waits up to its timeout, and
// returns its result. The temporary system-prompt file is removed on every
// exit path.
func (m *Manager) Delegate(ctx context.Context, task Task) (result Result) {
	start := time.Now()
	label := fmt.Sprintf("%s_%s", task.Agent, uuid.NewString()[:8])
	defer func() {
		outcome := "success"
		if !result.Success {
			outcome = "error"
		}
		metrics.DelegationDuration.WithLabelValues(string(task.Agent), outcome).Observe(time.Since(start).Seconds())
		logging.Audit().WorkerComplete(string(task.Agent), label, time.Since(start).Milliseconds(), result.Success, result.Error)
	}()
	logging.Audit().WorkerSpawn(string(task.Agent), label)

	timeout := task.Timeout
	if timeout <= 0 {
		timeout = timeoutFor(task.Agent)
	}

	cfg := m.configFor(task.Agent)
	prompt, err := m.buildSystemPrompt(task.Agent, cfg, task.Context)
	if err != nil {
		return Result{Agent: task.Agent, Success: false, Error: err.Error(), Duration: time.Since(start)}
	}

	tmpFile, err := os.CreateTemp("", "cortex-session-*.txt")
	if err != nil {
		return Result{Agent: task.Agent, Success: false, Error: fmt.Sprintf("session: creating temp file: %v", err), Duration: time.Since(start)}
	}
	tmpPath := tmpFile.Name()
	defer os.Remove(tmpPath)

	if _, err := tmpFile.WriteString(prompt); err != nil {
		tmpFile.Close()
		return Result{Agent: task.Agent, Success: false, Error: fmt.Sprintf("session: writing system prompt: %v", err), Duration: time.Since(start)}
	}
	tmpFile.Close()

	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	args := []string{"sessions", "spawn", "--label", label, "--model", cfg.Model, "--system-file", tmpPath}
	for _, tool := range cfg.ToolNames {
		args = append(args, "--tool", tool)
	}
	args = append(args, "--message", task.Message)

	logging.Session("Delegate: agent=%s label=%s timeout=%s", task.Agent, label, timeout)

	cmd := exec.CommandContext(runCtx, m.SpawnBinary, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err = cmd.Run()
	duration := time.Since(start)

	if runCtx.Err() == context.DeadlineExceeded {
		logging.Get(logging.CategorySession).Warn("Delegate: agent=%s label=%s timed out after %s", task.Agent, label, timeout)
		return Result{Agent: task.Agent, Success: false, Error: "delegation timed out", Duration: duration}
	}
	if err != nil {
		logging.Get(logging.CategorySession).Warn("Delegate: agent=%s label=%s exited with error: %v", task.Agent, label, err)
		return Result{Agent: task.Agent, Success: false, Error: stderr.String(), Duration: duration}
	}

	logging.Session("Delegate: agent=%s label=%s completed in %s", task.Agent, label, duration)
	return Result{Agent: task.Agent, Success: true, Output: stdout.String(), Duration: duration}
}

// DelegateParallel dispatches every task concurrently and returns one result
// per task in the same order. A single failure never cancels the others.
func (m *Manager) DelegateParallel(ctx context.Context, tasks []Task) []Result {
	results := make([]Result, len(tasks))
	done := make(chan struct{})
	for i := range tasks {
		go func(i int) {
			results[i] = m.Delegate(ctx, tasks[i])
			done <- struct{}{}
		}(i)
	}
	for range tasks {
		<-done
	}
	return results
}

// ResolveSoulPath joins a workspace-relative agents directory with the
// agent's conventional SOUL.md location.
func ResolveSoulPath(workspace string, agent Agent) string {
	return filepath.Join(workspace, "agents", string(agent), "SOUL.md")
}
