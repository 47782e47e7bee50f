package brain

import (
	"context"
	"fmt"
	"strings"
	"time"

	"cortex/internal/bus"
	"cortex/internal/llmclient"
	"cortex/internal/logging"
	"cortex/internal/project"
	"cortex/internal/session"
)

// researchTriggers names the keywords that earn a task an extra research
// pass before the builder touches it.
var researchTriggers = []string{
	"best practice", "architecture", "design", "compare", "evaluate", "research",
	"investigate", "security", "performance", "scalable", "pattern", "framework",
}

const maxVerifyRetries = 2
const resultSnapshotChars = 2000
const guardianPollInterval = 200 * time.Millisecond
const guardianPollAttempts = 5

// runTaskPipeline carries one project task through research (conditional),
// build, verify (with bounded retries), a guardian check, and a coherence
// pass, completing or failing it in the project store along the way.
func (o *Orchestrator) runTaskPipeline(ctx context.Context, proj *project.Project, task *project.Task) error {
	if err := o.Projects.SetTaskInProgress(task.ID); err != nil {
		return fmt.Errorf("marking task in_progress: %w", err)
	}

	brief := task.Description
	if needsResearch(brief) {
		_, research, err := o.delegate(ctx, session.AgentResearcher, "Research before implementing: "+brief, nil)
		if err == nil && research.Success {
			brief = brief + "\n\nResearch notes:\n" + research.Output
		}
	}

	buildTaskID, build, err := o.delegate(ctx, session.Agent(task.Agent), brief, nil)
	if err != nil || !build.Success {
		msg := errString(err, build.Error)
		_ = o.Projects.FailTask(task.ID, msg)
		return fmt.Errorf("build step failed: %s", msg)
	}

	verified, verifyErr := o.verifyWithRetries(ctx, task, build.Output)
	if verifyErr != nil {
		_ = o.Projects.FailTask(task.ID, verifyErr.Error())
		return verifyErr
	}

	if verdict := o.guardianVerdict(buildTaskID); verdict == "BLOCK" {
		_ = o.Projects.FailTask(task.ID, "blocked by guardian")
		return fmt.Errorf("guardian blocked task %q", task.Title)
	}

	if concern := o.coherenceCheck(ctx, task.Title, verified); concern != "" {
		logging.BrainWarn("runTaskPipeline: task=%s coherence concern: %s", task.ID, concern)
	}

	snapshot := truncateSnapshot(verified, resultSnapshotChars)
	if err := o.Projects.CompleteTask(task.ID, snapshot); err != nil {
		return fmt.Errorf("completing task: %w", err)
	}

	o.attemptAutoCommit(proj, task)
	return nil
}

func needsResearch(brief string) bool {
	lower := strings.ToLower(brief)
	for _, kw := range researchTriggers {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}

// verifyWithRetries delegates to the verifier, parsing a leading PASS/FAIL
// token from its output. On FAIL it sends the verifier's feedback back to
// the builder for a revision, up to maxVerifyRetries times.
func (o *Orchestrator) verifyWithRetries(ctx context.Context, task *project.Task, output string) (string, error) {
	current := output
	for attempt := 0; attempt <= maxVerifyRetries; attempt++ {
		_, verify, err := o.delegate(ctx, session.AgentVerifier, "Verify this work against the task:\n\nTask: "+task.Description+"\n\nWork:\n"+current, nil)
		if err != nil || !verify.Success {
			return "", fmt.Errorf("verification step failed: %s", errString(err, verify.Error))
		}
		if parseVerdictToken(verify.Output) == "PASS" {
			return current, nil
		}
		if attempt == maxVerifyRetries {
			return "", fmt.Errorf("verification failed after %d attempts: %s", maxVerifyRetries+1, verify.Output)
		}
		_, revision, err := o.delegate(ctx, session.Agent(task.Agent), "Revise based on verifier feedback:\n\n"+verify.Output+"\n\nOriginal work:\n"+current, nil)
		if err != nil || !revision.Success {
			return "", fmt.Errorf("revision step failed: %s", errString(err, revision.Error))
		}
		current = revision.Output
	}
	return current, nil
}

func parseVerdictToken(output string) string {
	fields := strings.Fields(strings.ToUpper(strings.TrimSpace(output)))
	if len(fields) == 0 {
		return ""
	}
	return strings.Trim(fields[0], ".:,")
}

// guardianVerdict polls the bus briefly for the guardian's asynchronous
// intercept verdict on taskID, defaulting to PASS if nothing lands in time —
// the guardian's own loop runs independently and a missed poll here never
// blocks forever.
func (o *Orchestrator) guardianVerdict(taskID string) string {
	if o.Bus == nil || taskID == "" {
		return "PASS"
	}
	for i := 0; i < guardianPollAttempts; i++ {
		msg, err := o.Bus.GetTask(taskID)
		if err == nil {
			if msg.Status == bus.StatusBlocked {
				return "BLOCK"
			}
			if _, flagged := msg.Payload["guardian_issues"]; flagged {
				return "FLAG"
			}
		}
		time.Sleep(guardianPollInterval)
	}
	return "PASS"
}

const coherencePrompt = `Does the following result coherently address its task? Respond with
exactly "COHERENT" or one sentence naming the concern.

Task: %s

Result:
%s`

func (o *Orchestrator) coherenceCheck(ctx context.Context, taskTitle, result string) string {
	resp := o.LLM.Generate(ctx, llmclient.Request{
		Model:       classificationModel,
		Messages:    []llmclient.Message{{Role: "user", Content: fmt.Sprintf(coherencePrompt, taskTitle, result)}},
		MaxTokens:   128,
		Temperature: 0,
	})
	if resp.Error {
		return ""
	}
	verdict := strings.TrimSpace(resp.Content)
	if strings.EqualFold(verdict, "COHERENT") {
		return ""
	}
	return verdict
}

// attemptAutoCommit is best-effort: builder agents are expected to make
// their own commits via their exec tool access, so this only logs the
// conventional message a caller could use to do so manually.
func (o *Orchestrator) attemptAutoCommit(proj *project.Project, task *project.Task) {
	msg := fmt.Sprintf("feat(%s): %s", proj.Name, task.Title)
	logging.BrainDebug("attemptAutoCommit: would commit %q", msg)
}

func truncateSnapshot(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "...(truncated)"
}

func errString(err error, fallback string) string {
	if err != nil {
		return err.Error()
	}
	return fallback
}
