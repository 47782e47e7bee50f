package brain

import (
	"context"
	"fmt"

	"cortex/internal/llmclient"
	"cortex/internal/logging"
	"cortex/internal/scoring"
	"cortex/internal/session"
	"cortex/internal/store"
)

const synthesisTemperature = 0.6

// factConfidenceThreshold is the minimum confidence a memory-gate fact needs
// before it graduates into the long-lived knowledge cache.
const factConfidenceThreshold = 0.75

const synthesizePrompt = `Rewrite the following subtask outputs into one coherent response in a
single voice, as if one assistant had done all the work. Keep it concise.
Drop internal status markers like [agent / ok].

Original request: %s

Subtask outputs:
%s`

// synthesizeMulti combines several subtask outputs into one reply. If the
// synthesis call itself fails, it falls back to a status-annotated
// concatenation rather than losing the work entirely.
func (o *Orchestrator) synthesizeMulti(ctx context.Context, userMessage string, subtasks []subtask, results map[string]session.Result) (string, error) {
	block := formatSubtaskResults(subtasks, results)

	resp := o.LLM.Generate(ctx, llmclient.Request{
		Model:       o.Model,
		System:      "You synthesize multi-agent work into one unified response.",
		Messages:    []llmclient.Message{{Role: "user", Content: fmt.Sprintf(synthesizePrompt, userMessage, block)}},
		MaxTokens:   1536,
		Temperature: synthesisTemperature,
	})
	if resp.Error {
		logging.BrainWarn("synthesizeMulti: synthesis call failed, falling back to raw concatenation: %s", resp.Message)
		return block, nil
	}
	return resp.Content, nil
}

const memoryGatePrompt = `Given the exchange below, decide what (if anything) is worth remembering.

User: %s
Assistant: %s

Respond with JSON:
{
  "memories": [{"text": "...", "importance": 0.5, "signals": ["user_preference"], "tags": ["..."]}],
  "facts_for_cache": [{"fact": "...", "category": "...", "confidence": 0.8}]
}
Both lists may be empty.`

// gateMemory runs the memory-decision call and persists whatever it
// recommends. This is best-effort: failures are logged and never
// propagated, since a missed memory write should never fail the turn that
// produced it.
func (o *Orchestrator) gateMemory(ctx context.Context, userMessage, reply string) {
	if o.Ingest == nil {
		return
	}
	parsed, resp := o.LLM.GenerateJSON(ctx, llmclient.Request{
		Model:       classificationModel,
		System:      "You decide what from a conversation turn belongs in long-term memory. Respond with JSON only.",
		Messages:    []llmclient.Message{{Role: "user", Content: fmt.Sprintf(memoryGatePrompt, userMessage, reply)}},
		MaxTokens:   512,
		Temperature: 0,
	})
	if resp.Error {
		logging.BrainWarn("gateMemory: decision call failed: %s", resp.Message)
		return
	}

	if rawMemories, ok := parsed["memories"].([]any); ok {
		for _, item := range rawMemories {
			m, ok := item.(map[string]any)
			if !ok {
				continue
			}
			text, _ := m["text"].(string)
			if text == "" {
				continue
			}
			importance, _ := m["importance"].(float64)
			var tags []string
			if rawTags, ok := m["tags"].([]any); ok {
				for _, t := range rawTags {
					if s, ok := t.(string); ok {
						tags = append(tags, s)
					}
				}
			}
			var signals []scoring.Signal
			if rawSignals, ok := m["signals"].([]any); ok {
				for _, s := range rawSignals {
					if s, ok := s.(string); ok {
						signals = append(signals, scoring.Signal(s))
					}
				}
			}
			if _, err := o.Ingest.Ingest(ctx, ingestTurn(text, importance, tags, signals)); err != nil {
				logging.BrainWarn("gateMemory: ingesting memory failed: %v", err)
			}
		}
	}

	if rawFacts, ok := parsed["facts_for_cache"].([]any); ok {
		for _, item := range rawFacts {
			f, ok := item.(map[string]any)
			if !ok {
				continue
			}
			fact, _ := f["fact"].(string)
			confidence, _ := f["confidence"].(float64)
			if fact == "" || confidence < factConfidenceThreshold {
				continue
			}
			category, _ := f["category"].(string)
			if _, err := o.Store.InsertFact(&store.Fact{Content: fact, Category: category, Confidence: confidence, Source: "brain", Verifier: "memory_gate"}); err != nil {
				logging.BrainWarn("gateMemory: persisting fact failed: %v", err)
			}
		}
	}
}
