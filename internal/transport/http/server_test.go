package http

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cortex/internal/brain"
	"cortex/internal/llmclient"
	"cortex/internal/project"
	"cortex/internal/session"
	"cortex/internal/store"
)

func newTestServer(t *testing.T) *Server {
	t.Helper()
	db, err := store.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	projects, err := project.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { projects.Close() })

	llm := llmclient.New(map[string]string{}, nil)
	sessions := session.NewManager("/bin/true", "", "claude-sonnet-4")
	orchestrator := brain.New(llm, nil, db, projects, sessions, nil, nil, "claude-sonnet-4")

	return NewServer(":0", []string{"*"}, orchestrator)
}

func TestHealthzReturnsOK(t *testing.T) {
	s := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestMetricsEndpointServesPrometheusFormat(t *testing.T) {
	s := newTestServer(t)
	// Labeled cortex_ series are only exported once observed, so drive one
	// message through the server first to record LLM and retrieval metrics.
	body, _ := json.Marshal(messageRequest{Message: "hello there"})
	s.router.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/v1/messages", bytes.NewBuffer(body)))

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "cortex_")
}

func TestHandleMessageRejectsEmptyBody(t *testing.T) {
	s := newTestServer(t)
	req := httptest.NewRequest(http.MethodPost, "/v1/messages", bytes.NewBufferString(`{}`))
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleMessageReturnsReply(t *testing.T) {
	s := newTestServer(t)
	body, _ := json.Marshal(messageRequest{Message: "hello there"})
	req := httptest.NewRequest(http.MethodPost, "/v1/messages", bytes.NewBuffer(body))
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp messageResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.NotEmpty(t, resp.Reply)
	assert.Equal(t, "simple_chat", resp.Intent)
}

func TestListenAndServeShutsDownOnContextCancel(t *testing.T) {
	s := newTestServer(t)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.ListenAndServe(ctx) }()
	cancel()
	require.NoError(t, <-done)
}
