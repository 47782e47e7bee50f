package brain

import (
	"context"
	"fmt"
	"strings"

	"cortex/internal/bus"
	"cortex/internal/llmclient"
	"cortex/internal/logging"
	"cortex/internal/session"
)

// contextCeilingTokens bounds how much conversation history a direct
// reply's prompt may carry, estimated at 4 characters per token; retrieved
// memories are not counted against it.
const contextCeilingTokens = 8000
const contextGuardRatio = 0.85
const charsPerToken = 4

// handleDirect answers a simple_chat turn itself: pull a handful of
// balanced memories, fold in recent conversation (trimmed to the context
// guard if it's grown too large), and generate one reply.
func (o *Orchestrator) handleDirect(ctx context.Context, userMessage string) (string, error) {
	memoryBlock := o.retrieveContext(ctx, userMessage)
	historyBlock := o.guardedHistory()

	prompt := fmt.Sprintf("Relevant memory:\n%s\n\nRecent conversation:\n%s\n\nUser: %s",
		memoryBlock, historyBlock, userMessage)

	resp := o.LLM.Generate(ctx, llmclient.Request{
		Model:       o.Model,
		System:      "You are a helpful, concise assistant with access to the user's memory.",
		Messages:    []llmclient.Message{{Role: "user", Content: prompt}},
		MaxTokens:   1024,
		Temperature: 0.7,
	})
	if resp.Error {
		return "", fmt.Errorf("brain: direct reply generation: %s", resp.Message)
	}
	return resp.Content, nil
}

func (o *Orchestrator) retrieveContext(ctx context.Context, query string) string {
	if o.Retrieval == nil {
		return "(none)"
	}
	results, err := o.Retrieval.Retrieve(ctx, query, "balanced", 5, true)
	if err != nil {
		logging.BrainWarn("retrieveContext: %v", err)
		return "(none)"
	}
	if len(results) == 0 {
		return "(none)"
	}
	var b strings.Builder
	for _, r := range results {
		b.WriteString("- ")
		b.WriteString(r.Content)
		b.WriteString("\n")
	}
	return b.String()
}

// guardedHistory renders recent history, trimming to the first two plus the
// last five turns whenever the full block would exceed 85% of the context
// ceiling.
func (o *Orchestrator) guardedHistory() string {
	o.mu.Lock()
	full := append([]Turn(nil), o.history...)
	o.mu.Unlock()

	rendered := renderTurns(full)
	if estimateTokens(rendered) <= int(contextCeilingTokens*contextGuardRatio) {
		return rendered
	}

	var trimmed []Turn
	if len(full) <= 7 {
		trimmed = full
	} else {
		trimmed = append(trimmed, full[:2]...)
		trimmed = append(trimmed, full[len(full)-5:]...)
	}
	return renderTurns(trimmed)
}

func renderTurns(turns []Turn) string {
	var b strings.Builder
	for _, t := range turns {
		b.WriteString(t.Role)
		b.WriteString(": ")
		b.WriteString(t.Content)
		b.WriteString("\n")
	}
	return b.String()
}

func estimateTokens(s string) int {
	return len(s) / charsPerToken
}

// handleSingleAgent delegates the whole message to one specialist agent and
// returns its output verbatim (formatting is the agent's job). The
// delegation is recorded on the bus before and after the subprocess runs so
// the guardian's intercept loop sees it like any other agent exchange.
func (o *Orchestrator) handleSingleAgent(ctx context.Context, agent session.Agent, userMessage string) (string, error) {
	_, result, err := o.delegate(ctx, agent, userMessage, nil)
	if err != nil {
		return "", err
	}
	if !result.Success {
		return "", fmt.Errorf("brain: %s delegation failed: %s", agent, result.Error)
	}
	return result.Output, nil
}

// delegate records a pending message on the bus, runs the subprocess
// delegation, and writes the outcome back so the bus remains the
// authoritative record of every agent exchange. It returns the bus task id
// alongside the result so callers that need to poll the guardian's
// asynchronous verdict (the task pipeline) can do so.
func (o *Orchestrator) delegate(ctx context.Context, agent session.Agent, message string, scopedContext map[string]any) (string, session.Result, error) {
	taskID := o.newTaskID()
	if o.Bus != nil {
		if err := o.Bus.Send(&bus.Message{TaskID: taskID, ToAgent: string(agent), FromAgent: "brain", Payload: map[string]any{"message": message}}); err != nil {
			logging.BrainWarn("delegate: recording task=%s on bus: %v", taskID, err)
		}
	}

	result := o.Sessions.Delegate(ctx, session.Task{Agent: agent, Message: message, Context: scopedContext})

	if o.Bus != nil {
		status := bus.StatusCompleted
		errMsg := ""
		if !result.Success {
			status = bus.StatusFailed
			errMsg = result.Error
		}
		if err := o.Bus.UpdateStatus(taskID, status, result.Output, errMsg); err != nil {
			logging.BrainWarn("delegate: updating task=%s status on bus: %v", taskID, err)
		}
	}
	return taskID, result, nil
}
