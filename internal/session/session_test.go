package session

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeSpawnBinary writes a shell script that echoes its arguments (so tests
// can assert on the CLI shape) and exits with exitCode.
func fakeSpawnBinary(t *testing.T, exitCode int, stdout, stderr string, sleep time.Duration) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("fake spawn binary is a shell script")
	}
	dir := t.TempDir()
	path := filepath.Join(dir, "fake-spawn.sh")
	script := "#!/bin/sh\n"
	if sleep > 0 {
		script += "sleep " + sleep.String() + "\n"
	}
	if stdout != "" {
		script += "echo '" + stdout + "'\n"
	}
	if stderr != "" {
		script += "echo '" + stderr + "' >&2\n"
	}
	script += "exit " + itoa(exitCode) + "\n"
	require.NoError(t, os.WriteFile(path, []byte(script), 0755))
	return path
}

func itoa(i int) string {
	if i == 0 {
		return "0"
	}
	neg := i < 0
	if neg {
		i = -i
	}
	var b []byte
	for i > 0 {
		b = append([]byte{byte('0' + i%10)}, b...)
		i /= 10
	}
	if neg {
		b = append([]byte{'-'}, b...)
	}
	return string(b)
}

func TestDelegateSuccess(t *testing.T) {
	bin := fakeSpawnBinary(t, 0, "result output", "", 0)
	m := NewManager(bin, "", "claude-sonnet-4-20250514")

	result := m.Delegate(context.Background(), Task{
		Agent:   AgentBuilder,
		Message: "build the widget",
		Context: map[string]any{"project": "demo"},
	})

	assert.True(t, result.Success)
	assert.Contains(t, result.Output, "result output")
}

func TestDelegateFailureCapturesStderr(t *testing.T) {
	bin := fakeSpawnBinary(t, 1, "", "boom", 0)
	m := NewManager(bin, "", "claude-sonnet-4-20250514")

	result := m.Delegate(context.Background(), Task{Agent: AgentVerifier, Message: "check it"})

	assert.False(t, result.Success)
	assert.Contains(t, result.Error, "boom")
}

func TestDelegateTimeout(t *testing.T) {
	bin := fakeSpawnBinary(t, 0, "too slow", "", 2*time.Second)
	m := NewManager(bin, "", "claude-sonnet-4-20250514")

	result := m.Delegate(context.Background(), Task{
		Agent:   AgentResearcher,
		Message: "research it",
		Timeout: 50 * time.Millisecond,
	})

	assert.False(t, result.Success)
	assert.Contains(t, result.Error, "timed out")
}

func TestDelegateOneFailureDoesNotAffectAnother(t *testing.T) {
	ok := fakeSpawnBinary(t, 0, "ok", "", 0)
	fail := fakeSpawnBinary(t, 1, "", "bad", 0)

	mOK := NewManager(ok, "", "model")
	mFail := NewManager(fail, "", "model")

	results := make([]Result, 2)
	results[0] = mOK.Delegate(context.Background(), Task{Agent: AgentBuilder, Message: "a"})
	results[1] = mFail.Delegate(context.Background(), Task{Agent: AgentVerifier, Message: "b"})

	assert.True(t, results[0].Success)
	assert.False(t, results[1].Success)
}

func TestBuildSystemPromptFallsBackWithoutSoul(t *testing.T) {
	m := NewManager("unused", "", "model")
	prompt, err := m.buildSystemPrompt(AgentGuardian, AgentConfig{}, map[string]any{"k": "v"})
	require.NoError(t, err)
	assert.Contains(t, prompt, "You are the guardian agent")
	assert.Contains(t, prompt, "\"k\": \"v\"")
}

func TestToolAllowlistDefaults(t *testing.T) {
	assert.Equal(t, []string{"exec", "read", "write", "edit"}, ToolAllowlist[AgentBuilder])
	assert.Equal(t, []string{"read"}, ToolAllowlist[AgentGuardian])
}
