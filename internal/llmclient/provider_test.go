package llmclient

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDetectProvider(t *testing.T) {
	cases := map[string]string{
		"claude-sonnet-4-20250514": "anthropic",
		"gemini-2.0-flash":         "google",
		"deepseek-chat":            "deepseek",
		"qwen-plus":                "qwen",
		"abab6.5s-chat":            "minimax",
		"moonshot-v1-8k":           "kimi",
		"kimi-k2":                  "kimi",
		"mistral-large-latest":     "mistral",
		"mixtral-8x7b":             "mistral",
		"some-unknown-model":       "anthropic",
	}
	for model, want := range cases {
		assert.Equal(t, want, detectProvider(model), "model=%s", model)
	}
}

func TestTryParseJSONDirect(t *testing.T) {
	m, ok := tryParseJSON(`{"intent": "build", "confidence": 0.9}`)
	assert.True(t, ok)
	assert.Equal(t, "build", m["intent"])
}

func TestTryParseJSONRejectsNonObject(t *testing.T) {
	_, ok := tryParseJSON(`[1, 2, 3]`)
	assert.False(t, ok)
}

func TestTryParseJSONRejectsGarbage(t *testing.T) {
	_, ok := tryParseJSON(`not json at all`)
	assert.False(t, ok)
}

func TestFencedJSONBlockExtraction(t *testing.T) {
	text := "Here is the result:\n```json\n{\"intent\": \"factual\"}\n```\nThanks."
	m := fencedJSONBlock.FindStringSubmatch(text)
	assert.NotNil(t, m)
	parsed, ok := tryParseJSON(m[1])
	assert.True(t, ok)
	assert.Equal(t, "factual", parsed["intent"])
}

func TestBraceSubstringExtraction(t *testing.T) {
	text := "sure, the answer is {\"intent\": \"research\"} hope that helps"
	candidate := braceSubstring.FindString(text)
	parsed, ok := tryParseJSON(candidate)
	assert.True(t, ok)
	assert.Equal(t, "research", parsed["intent"])
}
