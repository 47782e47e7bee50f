package brain

import (
	"context"
	"fmt"
	"strings"

	"golang.org/x/sync/errgroup"

	"cortex/internal/llmclient"
	"cortex/internal/logging"
	"cortex/internal/session"
)

// subtask is one node of a decomposed complex task.
type subtask struct {
	ID        string
	Agent     session.Agent
	Message   string
	DependsOn []string
}

const decomposePrompt = `Break the following request into 2-6 concrete subtasks, each assigned to
exactly one agent: builder (writes/edits code), verifier (checks facts or
code correctness), or researcher (investigates options).

List dependencies between subtasks by id where a later subtask genuinely
needs an earlier one's output.

Request: %s

Respond with JSON: {"subtasks": [{"id": "t1", "agent": "builder", "message": "...", "depends_on": []}, ...]}`

// handleComplex decomposes a request into subtasks, executes them in
// dependency-ordered layers, and synthesizes their combined output into one
// reply.
func (o *Orchestrator) handleComplex(ctx context.Context, userMessage string) (string, error) {
	subtasks, err := o.decompose(ctx, userMessage)
	if err != nil {
		return "", err
	}
	if len(subtasks) == 0 {
		return o.handleDirect(ctx, userMessage)
	}

	layers := buildExecutionLayers(subtasks)
	results := make(map[string]session.Result, len(subtasks))
	byID := make(map[string]subtask, len(subtasks))
	for _, s := range subtasks {
		byID[s.ID] = s
	}

	// priorResults accumulates one entry per completed subtask, keyed
	// "<agent>_<id>" (subtasks carry no separate action label, so the
	// subtask id stands in for it), so every layer's tasks see everything
	// earlier layers produced.
	priorResults := make(map[string]any)
	for _, layer := range layers {
		scopedContext := map[string]any{"prior_results": priorResults}
		group, gctx := errgroup.WithContext(ctx)
		layerResults := make([]session.Result, len(layer))
		for i, id := range layer {
			i, s := i, byID[id]
			group.Go(func() error {
				_, res, _ := o.delegate(gctx, s.Agent, s.Message, scopedContext)
				layerResults[i] = res
				return nil
			})
		}
		_ = group.Wait()
		for i, id := range layer {
			results[id] = layerResults[i]
			priorResults[fmt.Sprintf("%s_%s", byID[id].Agent, id)] = layerResults[i].Output
		}
	}

	return o.synthesizeMulti(ctx, userMessage, subtasks, results)
}

// decompose asks the LLM to break userMessage into subtasks. A parse or
// call failure yields no subtasks, which falls back to a direct reply.
func (o *Orchestrator) decompose(ctx context.Context, userMessage string) ([]subtask, error) {
	parsed, resp := o.LLM.GenerateJSON(ctx, llmclient.Request{
		Model:       o.Model,
		System:      "You plan multi-agent task decompositions. Respond with JSON only.",
		Messages:    []llmclient.Message{{Role: "user", Content: fmt.Sprintf(decomposePrompt, userMessage)}},
		MaxTokens:   1024,
		Temperature: 0.2,
	})
	if resp.Error {
		logging.BrainWarn("decompose: LLM call failed: %s", resp.Message)
		return nil, nil
	}

	raw, ok := parsed["subtasks"].([]any)
	if !ok {
		return nil, nil
	}

	var out []subtask
	for _, item := range raw {
		m, ok := item.(map[string]any)
		if !ok {
			continue
		}
		id, _ := m["id"].(string)
		agent, _ := m["agent"].(string)
		message, _ := m["message"].(string)
		if id == "" || agent == "" || message == "" {
			continue
		}
		var deps []string
		if rawDeps, ok := m["depends_on"].([]any); ok {
			for _, d := range rawDeps {
				if s, ok := d.(string); ok {
					deps = append(deps, s)
				}
			}
		}
		out = append(out, subtask{ID: id, Agent: session.Agent(agent), Message: message, DependsOn: deps})
	}
	return out, nil
}

// buildExecutionLayers groups subtask ids into dependency-ordered layers:
// every id in layer N depends only on ids in layers 0..N-1. A dependency
// that participates in a cycle is broken by forcing the cycle-closing task
// into layer 0 — every task still runs, just without its cyclic ordering
// honored.
func buildExecutionLayers(tasks []subtask) [][]string {
	byID := make(map[string]subtask, len(tasks))
	for _, t := range tasks {
		byID[t.ID] = t
	}

	layerOf := make(map[string]int, len(tasks))
	var assign func(id string, path map[string]bool) int
	assign = func(id string, path map[string]bool) int {
		if l, ok := layerOf[id]; ok {
			return l
		}
		t, ok := byID[id]
		if !ok {
			return 0
		}
		if path[id] {
			logging.BrainWarn("buildExecutionLayers: cycle detected at %s, forcing to layer 0", id)
			layerOf[id] = 0
			return 0
		}
		path[id] = true
		maxDepLayer := -1
		for _, dep := range t.DependsOn {
			if _, exists := byID[dep]; !exists {
				continue
			}
			if l := assign(dep, path); l > maxDepLayer {
				maxDepLayer = l
			}
		}
		delete(path, id)
		layer := maxDepLayer + 1
		layerOf[id] = layer
		return layer
	}

	maxLayer := 0
	for _, t := range tasks {
		l := assign(t.ID, map[string]bool{})
		if l > maxLayer {
			maxLayer = l
		}
	}

	layers := make([][]string, maxLayer+1)
	for _, t := range tasks {
		l := layerOf[t.ID]
		layers[l] = append(layers[l], t.ID)
	}
	return layers
}

func formatSubtaskResults(subtasks []subtask, results map[string]session.Result) string {
	var b strings.Builder
	for _, s := range subtasks {
		res := results[s.ID]
		status := "ok"
		if !res.Success {
			status = "failed: " + res.Error
		}
		fmt.Fprintf(&b, "[%s / %s] %s\n%s\n\n", s.Agent, status, s.Message, res.Output)
	}
	return b.String()
}
