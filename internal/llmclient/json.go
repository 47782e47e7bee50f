package llmclient

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"

	"github.com/itchyny/gojq"
)

var (
	fencedJSONBlock = regexp.MustCompile("(?s)```(?:json)?\\s*([\\s\\S]*?)```")
	braceSubstring  = regexp.MustCompile(`(?s)\{[\s\S]*\}`)
	identityQuery   = mustParseQuery(".")
)

func mustParseQuery(q string) *gojq.Query {
	query, err := gojq.Parse(q)
	if err != nil {
		panic(fmt.Sprintf("llmclient: invalid built-in jq query %q: %v", q, err))
	}
	return query
}

// GenerateJSON invokes Generate and parses the result's Content as JSON,
// falling back in order to the first fenced ```json``` block and then the
// first {...} substring when the raw content doesn't parse directly. A
// successfully parsed fallback candidate is re-canonicalized through a jq
// identity query so malformed-but-recoverable shapes (extra whitespace,
// ordering quirks) come out normalized for callers that compare JSON.
func (c *Client) GenerateJSON(ctx context.Context, req Request) (map[string]any, Response) {
	resp := c.Generate(ctx, req)
	if resp.Error {
		return nil, resp
	}

	if parsed, ok := tryParseJSON(resp.Content); ok {
		return parsed, resp
	}

	if m := fencedJSONBlock.FindStringSubmatch(resp.Content); m != nil {
		if parsed, ok := tryParseJSON(m[1]); ok {
			return parsed, resp
		}
	}

	if candidate := braceSubstring.FindString(resp.Content); candidate != "" {
		if parsed, ok := tryParseJSON(candidate); ok {
			return parsed, resp
		}
	}

	return nil, errorResponse(resp.Provider, "generate_json: no valid JSON found in response content")
}

func tryParseJSON(text string) (map[string]any, bool) {
	var raw any
	if err := json.Unmarshal([]byte(text), &raw); err != nil {
		return nil, false
	}

	iter := identityQuery.Run(raw)
	v, ok := iter.Next()
	if !ok {
		return nil, false
	}
	if err, ok := v.(error); ok {
		_ = err
		return nil, false
	}

	m, ok := v.(map[string]any)
	return m, ok
}
