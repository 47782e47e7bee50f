package brain

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cortex/internal/llmclient"
	"cortex/internal/project"
	"cortex/internal/session"
	"cortex/internal/store"
)

func newTestOrchestrator(t *testing.T) *Orchestrator {
	t.Helper()
	db, err := store.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	projects, err := project.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { projects.Close() })

	llm := llmclient.New(map[string]string{}, nil)
	sessions := session.NewManager("/bin/true", "", "claude-sonnet-4")

	return New(llm, nil, db, projects, sessions, nil, nil, "claude-sonnet-4")
}

func TestClassifyFallsBackToSimpleChatWithoutLLMAccess(t *testing.T) {
	o := newTestOrchestrator(t)
	intent := o.classify(context.Background(), "hey, how's it going?")
	assert.Equal(t, IntentSimpleChat, intent)
}

func TestHandleDirectFallsBackGracefullyOnLLMFailure(t *testing.T) {
	o := newTestOrchestrator(t)
	resp := o.Handle(context.Background(), "hello there")
	assert.Equal(t, IntentSimpleChat, resp.Intent)
	assert.NotEmpty(t, resp.Reply)
}

func TestTrimHistoryKeepsFirstTwoAndMostRecent(t *testing.T) {
	var history []Turn
	for i := 0; i < 60; i++ {
		history = append(history, Turn{Role: "user", Content: string(rune('a' + i%26))})
	}
	trimmed := trimHistory(history, 10)
	require.Len(t, trimmed, 10)
	assert.Equal(t, history[0], trimmed[0])
	assert.Equal(t, history[1], trimmed[1])
	assert.Equal(t, history[len(history)-1], trimmed[len(trimmed)-1])
}

func TestTrimHistoryNoOpUnderLimit(t *testing.T) {
	history := []Turn{{Role: "user", Content: "hi"}}
	assert.Equal(t, history, trimHistory(history, 50))
}

func TestBuildExecutionLayersRespectsDependencies(t *testing.T) {
	tasks := []subtask{
		{ID: "t1", Agent: session.AgentResearcher},
		{ID: "t2", Agent: session.AgentBuilder, DependsOn: []string{"t1"}},
		{ID: "t3", Agent: session.AgentVerifier, DependsOn: []string{"t2"}},
	}
	layers := buildExecutionLayers(tasks)
	require.Len(t, layers, 3)
	assert.Equal(t, []string{"t1"}, layers[0])
	assert.Equal(t, []string{"t2"}, layers[1])
	assert.Equal(t, []string{"t3"}, layers[2])
}

func TestBuildExecutionLayersParallelizesIndependentTasks(t *testing.T) {
	tasks := []subtask{
		{ID: "a", Agent: session.AgentBuilder},
		{ID: "b", Agent: session.AgentResearcher},
	}
	layers := buildExecutionLayers(tasks)
	require.Len(t, layers, 1)
	assert.ElementsMatch(t, []string{"a", "b"}, layers[0])
}

func TestBuildExecutionLayersBreaksCycles(t *testing.T) {
	tasks := []subtask{
		{ID: "x", DependsOn: []string{"y"}},
		{ID: "y", DependsOn: []string{"x"}},
	}
	layers := buildExecutionLayers(tasks)
	total := 0
	for _, l := range layers {
		total += len(l)
	}
	assert.Equal(t, 2, total, "no task is dropped even when its dependencies cycle")
}

func TestParseVerdictToken(t *testing.T) {
	assert.Equal(t, "PASS", parseVerdictToken("PASS: looks correct"))
	assert.Equal(t, "FAIL", parseVerdictToken("fail, missing edge case"))
	assert.Equal(t, "", parseVerdictToken(""))
}

func TestNeedsResearch(t *testing.T) {
	assert.True(t, needsResearch("evaluate the best practice for caching"))
	assert.False(t, needsResearch("fix the typo in the README"))
}

func TestEstimateTokensRoughlyFourCharsPerToken(t *testing.T) {
	assert.Equal(t, 25, estimateTokens(string(make([]byte, 100))))
}
