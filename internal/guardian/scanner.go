// Package guardian implements the security interceptor: a background actor
// that watches every bus message for secret exposure, prompt injection, and
// budget overruns, optionally escalating builder output to a deep LLM
// security review before the orchestrator acts on it.
package guardian

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"cortex/internal/llmclient"
	"cortex/internal/logging"
)

// securityReviewPrompt asks the reviewing model to return a structured
// verdict over a piece of worker-produced content.
const securityReviewPrompt = `You are reviewing code or output produced by an autonomous coding agent before it is accepted. Check for:
1. Exposed secrets, API keys, or credentials
2. SQL injection or other injection vulnerabilities
3. Shell/command injection
4. Path traversal
5. Excessive or unscoped permissions
6. Missing input validation
7. Unsafe or unvetted dependencies
8. Sensitive data exposure in logs or error messages

Block only for: active secret exposure, code causing data loss, or critical vulnerabilities with an immediate exploit path. Flag for: best-practice violations, missing validation, or suboptimal patterns. Pass if nothing applies.

Respond with JSON: {"verdict": "pass|flag|block", "issues": [{"severity": "...", "category": "...", "description": "...", "location": "...", "recommendation": "..."}], "blocked_reason": "..."}

Content to review:
%s`

// Scanner runs the regex passes and, for builder content, the deep LLM
// review.
type Scanner struct {
	llm   *llmclient.Client
	model string
}

// NewScanner constructs a Scanner. llm may be nil to disable the deep
// review step entirely (regex scanning alone still runs).
func NewScanner(llm *llmclient.Client, model string) *Scanner {
	return &Scanner{llm: llm, model: model}
}

// ScanInput is everything about one bus row worth scanning.
type ScanInput struct {
	TaskID     string
	FromAgent  string
	ToAgent    string
	Payload    string
	Context    string
	Result     string
	Stdout     string
	Stderr     string
	IsBuilderCode bool
}

// Scan runs the fast regex passes and, when applicable, the deep LLM
// review, returning every issue found.
func (s *Scanner) Scan(ctx context.Context, in ScanInput) []Issue {
	var issues []Issue
	fields := map[string]string{
		"payload": in.Payload, "context": in.Context, "result": in.Result,
		"stdout": in.Stdout, "stderr": in.Stderr,
	}
	for location, text := range fields {
		if text == "" {
			continue
		}
		issues = append(issues, scanText(text, location)...)
	}

	if in.IsBuilderCode && s.llm != nil {
		issues = append(issues, s.deepReview(ctx, in)...)
	}
	return issues
}

type securityReviewResponse struct {
	Verdict       string  `json:"verdict"`
	Issues        []Issue `json:"issues"`
	BlockedReason string  `json:"blocked_reason"`
}

func (s *Scanner) deepReview(ctx context.Context, in ScanInput) []Issue {
	content := strings.Join([]string{in.Result, in.Stdout}, "\n")
	if content == "" {
		return nil
	}

	parsed, resp := s.llm.GenerateJSON(ctx, llmclient.Request{
		Model:    s.model,
		Messages: []llmclient.Message{{Role: "user", Content: fmt.Sprintf(securityReviewPrompt, content)}},
	})
	if resp.Error {
		logging.Get(logging.CategoryGuardian).Warn("deepReview: task=%s LLM review failed: %s", in.TaskID, resp.Message)
		return nil
	}

	raw, err := json.Marshal(parsed)
	if err != nil {
		return nil
	}
	var review securityReviewResponse
	if err := json.Unmarshal(raw, &review); err != nil {
		logging.Get(logging.CategoryGuardian).Warn("deepReview: task=%s unmarshaling review: %v", in.TaskID, err)
		return nil
	}

	for i := range review.Issues {
		if review.Issues[i].Location == "" {
			review.Issues[i].Location = "deep_review"
		}
	}
	return review.Issues
}
