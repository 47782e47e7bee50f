// Package brain implements the orchestrator: the single entry point that
// classifies an incoming user message, routes it to the right handling path
// (a direct reply, a single delegation, a project update, or a full
// multi-agent decomposition), and folds the outcome back into memory.
package brain

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"cortex/internal/bus"
	"cortex/internal/ingest"
	"cortex/internal/llmclient"
	"cortex/internal/logging"
	"cortex/internal/project"
	"cortex/internal/retrieval"
	"cortex/internal/session"
	"cortex/internal/store"
)

// Intent is the classification assigned to an incoming message.
type Intent string

const (
	IntentSimpleChat      Intent = "simple_chat"
	IntentBuildRequest    Intent = "build_request"
	IntentFactualQuestion Intent = "factual_question"
	IntentResearchRequest Intent = "research_request"
	IntentIdeaSuggestion  Intent = "idea_suggestion"
	IntentProjectRequest  Intent = "project_request"
	IntentComplexTask     Intent = "complex_task"
)

var validIntents = map[Intent]bool{
	IntentSimpleChat: true, IntentBuildRequest: true, IntentFactualQuestion: true,
	IntentResearchRequest: true, IntentIdeaSuggestion: true, IntentProjectRequest: true,
	IntentComplexTask: true,
}

// classificationModel is deliberately small and cheap — classification runs
// on every message and doesn't need the model used for the actual work.
const classificationModel = "claude-3-5-haiku-latest"

// Turn is one exchange kept in the bounded conversation history.
type Turn struct {
	Role    string // "user" or "assistant"
	Content string
}

// Orchestrator wires together every subsystem a turn might touch: the LLM
// client for classification/synthesis, memory retrieval and ingest, the
// project state machine, subprocess delegation, and the bus delegations are
// recorded on so the guardian can watch them.
type Orchestrator struct {
	LLM        *llmclient.Client
	Bus        *bus.Bus
	Store      *store.DB
	Projects   *project.Store
	Sessions   *session.Manager
	Retrieval  *retrieval.Engine
	Ingest     *ingest.Pipeline
	Model      string

	mu      sync.Mutex
	history []Turn
}

// New constructs an Orchestrator over its subsystems. model is the default
// model used for direct replies, decomposition, and synthesis calls
// (classification, the memory gate, and the coherence check always use the
// cheaper classificationModel).
func New(llm *llmclient.Client, b *bus.Bus, db *store.DB, projects *project.Store, sessions *session.Manager, retr *retrieval.Engine, ingestPipeline *ingest.Pipeline, model string) *Orchestrator {
	return &Orchestrator{LLM: llm, Bus: b, Store: db, Projects: projects, Sessions: sessions, Retrieval: retr, Ingest: ingestPipeline, Model: model}
}

// Response is what Handle returns to the transport layer.
type Response struct {
	Reply  string
	Intent Intent
}

// Handle is the orchestrator's single entry point: classify, route, and
// gate the outcome into memory. Any error in the routing pipeline is turned
// into a graceful apology reply rather than propagated — the caller always
// gets a Response.
func (o *Orchestrator) Handle(ctx context.Context, userMessage string) Response {
	start := time.Now()
	turnID := uuid.NewString()
	audit := logging.AuditWithTurn(turnID)
	audit.TurnStart(turnID, len(userMessage))

	o.appendHistory(Turn{Role: "user", Content: userMessage})

	intent := o.classify(ctx, userMessage)
	audit.IntentParsed(string(intent))

	reply, err := o.route(ctx, intent, userMessage)
	if err != nil {
		logging.BrainWarn("Handle: routing intent=%s failed: %v", intent, err)
		reply = "Sorry, I ran into a problem handling that. Could you try rephrasing?"
	}

	o.appendHistory(Turn{Role: "assistant", Content: reply})
	o.gateMemory(ctx, userMessage, reply)

	audit.TurnEnd(turnID, time.Since(start).Milliseconds(), err == nil)
	return Response{Reply: reply, Intent: intent}
}

func (o *Orchestrator) route(ctx context.Context, intent Intent, userMessage string) (string, error) {
	switch intent {
	case IntentSimpleChat:
		return o.handleDirect(ctx, userMessage)
	case IntentBuildRequest:
		return o.handleSingleAgent(ctx, session.AgentBuilder, userMessage)
	case IntentFactualQuestion:
		return o.handleSingleAgent(ctx, session.AgentVerifier, userMessage)
	case IntentResearchRequest:
		return o.handleSingleAgent(ctx, session.AgentResearcher, userMessage)
	case IntentIdeaSuggestion:
		return o.handleIdea(userMessage)
	case IntentProjectRequest:
		return o.handleProjectRequest(ctx, userMessage)
	case IntentComplexTask:
		return o.handleComplex(ctx, userMessage)
	default:
		return o.handleDirect(ctx, userMessage)
	}
}

// classify asks the LLM to pick one of the seven intents, falling back to
// simple_chat whenever the call fails or returns something unrecognized —
// the router always has somewhere safe to land.
func (o *Orchestrator) classify(ctx context.Context, userMessage string) Intent {
	prompt := fmt.Sprintf(classifyPrompt, strings.Join(o.recentContext(6), "\n"), userMessage)
	parsed, resp := o.LLM.GenerateJSON(ctx, llmclient.Request{
		Model:       classificationModel,
		System:      "You classify user messages for an assistant's router. Respond with JSON only.",
		Messages:    []llmclient.Message{{Role: "user", Content: prompt}},
		MaxTokens:   64,
		Temperature: 0,
	})
	if resp.Error {
		logging.BrainWarn("classify: LLM call failed, defaulting to simple_chat: %s", resp.Message)
		return IntentSimpleChat
	}
	label, _ := parsed["intent"].(string)
	intent := Intent(strings.TrimSpace(label))
	if !validIntents[intent] {
		logging.BrainWarn("classify: unrecognized intent %q, defaulting to simple_chat", label)
		return IntentSimpleChat
	}
	return intent
}

const classifyPrompt = `Classify the user's latest message into exactly one intent.

Intents:
- simple_chat: conversation, greetings, opinions, anything not requiring action
- build_request: asks for code, a feature, or a fix to be implemented
- factual_question: asks for a specific fact that can be looked up or verified
- research_request: asks for an investigation, comparison, or survey of options
- idea_suggestion: proposes something to maybe build later, not right now
- project_request: references an existing or new multi-step project, or project status/control
- complex_task: a single request that clearly needs multiple coordinated steps

Recent conversation:
%s

Message: %s

Respond with JSON: {"intent": "<one of the above>"}`

func (o *Orchestrator) handleIdea(userMessage string) (string, error) {
	idea, err := o.Projects.AddIdea(summarize(userMessage, 80), userMessage, "")
	if err != nil {
		return "", fmt.Errorf("brain: recording idea: %w", err)
	}
	return fmt.Sprintf("Got it, I've added that to the backlog as %q. Say \"promote idea N\" whenever you want to start on it.", idea.Title), nil
}

func summarize(s string, n int) string {
	s = strings.TrimSpace(strings.SplitN(s, "\n", 2)[0])
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

func (o *Orchestrator) newTaskID() string { return uuid.NewString() }
