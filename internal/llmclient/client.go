// Package llmclient provides a unified interface over several LLM providers
// (Anthropic, Google, and a family of OpenAI-compatible chat APIs), wrapping
// every call in a shared resilience policy: deadlines, retry-with-backoff on
// 429/5xx, and a circuit breaker per provider so a sustained outage on one
// provider doesn't keep retrying into it forever.
package llmclient

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/sony/gobreaker"
	anthropicsdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"google.golang.org/genai"

	"cortex/internal/logging"
	"cortex/internal/metrics"
)

// Message is one turn in a chat-style request.
type Message struct {
	Role    string
	Content string
}

// Request is a unified generation request across providers.
type Request struct {
	Model       string
	System      string
	Messages    []Message
	MaxTokens   int
	Temperature float64
	// IsCode extends the per-call deadline from 60s to 180s.
	IsCode bool
}

// Response is the unified result shape. Error is set (never an exception)
// on any failure so callers always branch on it rather than handling panics.
type Response struct {
	Error        bool
	Message      string
	Provider     string
	Content      string
	InputTokens  int
	OutputTokens int
}

// UsageRecorder receives one record per call, success or failure.
type UsageRecorder interface {
	RecordUsage(provider, model string, inputTokens, outputTokens int, duration time.Duration, success bool, errMsg string)
}

// Client dispatches generation requests to the appropriate provider.
type Client struct {
	apiKeys  map[string]string
	http     *http.Client
	breakers map[string]*gobreaker.CircuitBreaker
	usage    UsageRecorder
}

// New constructs a Client. apiKeys maps provider name ("anthropic",
// "google", "deepseek", ...) to its API key.
func New(apiKeys map[string]string, usage UsageRecorder) *Client {
	return &Client{
		apiKeys:  apiKeys,
		http:     &http.Client{},
		breakers: map[string]*gobreaker.CircuitBreaker{},
		usage:    usage,
	}
}

func (c *Client) breakerFor(provider string) *gobreaker.CircuitBreaker {
	if b, ok := c.breakers[provider]; ok {
		return b
	}
	b := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:    "llmclient:" + provider,
		Timeout: 30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logging.Get(logging.CategoryLLM).Warn("circuit breaker %s: %s -> %s", name, from, to)
		},
	})
	c.breakers[provider] = b
	return b
}

// Generate dispatches req to the provider selected by its model name,
// applying the resilience policy and circuit breaker, and returns a
// Response that is always populated (errors are data, not exceptions).
func (c *Client) Generate(ctx context.Context, req Request) Response {
	provider := detectProvider(req.Model)
	start := time.Now()

	out, err := c.breakerFor(provider).Execute(func() (any, error) {
		resp := c.callWithResilience(ctx, provider, req)
		if resp.Error {
			return resp, fmt.Errorf("%s", resp.Message)
		}
		return resp, nil
	})

	var resp Response
	if err != nil {
		if v, ok := out.(Response); ok {
			resp = v
		} else {
			resp = Response{Error: true, Message: err.Error(), Provider: provider}
		}
	} else {
		resp = out.(Response)
	}

	if c.usage != nil {
		c.usage.RecordUsage(provider, req.Model, resp.InputTokens, resp.OutputTokens, time.Since(start), !resp.Error, resp.Message)
	}

	outcome := "success"
	if resp.Error {
		outcome = "error"
	}
	metrics.LLMCallDuration.WithLabelValues(provider, outcome).Observe(time.Since(start).Seconds())
	if resp.InputTokens > 0 {
		metrics.LLMTokensTotal.WithLabelValues(provider, req.Model, "input").Add(float64(resp.InputTokens))
	}
	if resp.OutputTokens > 0 {
		metrics.LLMTokensTotal.WithLabelValues(provider, req.Model, "output").Add(float64(resp.OutputTokens))
	}
	return resp
}

// callWithResilience implements the deadline/retry policy around a single
// provider call.
func (c *Client) callWithResilience(ctx context.Context, provider string, req Request) Response {
	deadline := 60 * time.Second
	if req.IsCode {
		deadline = 180 * time.Second
	}

	resp, status := c.attempt(ctx, provider, req, deadline)
	if status == 401 {
		return errorResponse(provider, "invalid API key (401)")
	}
	if status == 0 && resp.Error && strings.Contains(resp.Message, "deadline exceeded") {
		logging.LLMDebug("callWithResilience: deadline exceeded, retrying with doubled deadline")
		resp, status = c.attempt(ctx, provider, req, deadline*2)
		if status == 0 && resp.Error {
			return resp
		}
	}
	if status == 429 {
		backoffs := []time.Duration{2 * time.Second, 4 * time.Second, 8 * time.Second}
		for _, wait := range backoffs {
			select {
			case <-ctx.Done():
				return errorResponse(provider, "context cancelled during 429 backoff")
			case <-time.After(wait):
			}
			resp, status = c.attempt(ctx, provider, req, deadline)
			if status != 429 {
				break
			}
		}
		if status == 429 {
			return errorResponse(provider, "rate limited after 3 retries")
		}
	}
	if status >= 500 && status < 600 {
		select {
		case <-ctx.Done():
			return errorResponse(provider, "context cancelled before 5xx retry")
		case <-time.After(3 * time.Second):
		}
		resp, status = c.attempt(ctx, provider, req, deadline)
		_ = status
	}
	return resp
}

// attempt performs exactly one HTTP round trip, returning the unified
// response and the raw HTTP status (0 if the request never reached the
// server, e.g. deadline exceeded).
func (c *Client) attempt(ctx context.Context, provider string, req Request, deadline time.Duration) (Response, int) {
	callCtx, cancel := context.WithTimeout(ctx, deadline)
	defer cancel()

	apiKey := c.apiKeys[provider]
	if apiKey == "" {
		return errorResponse(provider, fmt.Sprintf("no API key configured for provider %s", provider)), 0
	}

	switch provider {
	case "anthropic":
		return c.callAnthropic(callCtx, apiKey, req)
	case "google":
		return c.callGoogle(callCtx, apiKey, req)
	default:
		return c.callOpenAICompat(callCtx, provider, apiKey, req)
	}
}

func errorResponse(provider, msg string) Response {
	return Response{Error: true, Message: msg, Provider: provider, Content: ""}
}

func (c *Client) callAnthropic(ctx context.Context, apiKey string, req Request) (Response, int) {
	client := anthropicsdk.NewClient(option.WithAPIKey(apiKey))

	msgs := make([]anthropicsdk.MessageParam, 0, len(req.Messages))
	for _, m := range req.Messages {
		if m.Role == "user" {
			msgs = append(msgs, anthropicsdk.NewUserMessage(anthropicsdk.NewTextBlock(m.Content)))
		} else {
			msgs = append(msgs, anthropicsdk.NewAssistantMessage(anthropicsdk.NewTextBlock(m.Content)))
		}
	}

	maxTokens := int64(req.MaxTokens)
	if maxTokens == 0 {
		maxTokens = 4096
	}

	params := anthropicsdk.MessageNewParams{
		Model:     anthropicsdk.Model(req.Model),
		MaxTokens: maxTokens,
		Messages:  msgs,
	}
	if req.System != "" {
		params.System = []anthropicsdk.TextBlockParam{{Text: req.System}}
	}

	message, err := client.Messages.New(ctx, params)
	if err != nil {
		return classifyAnthropicError("anthropic", err)
	}

	var content strings.Builder
	for _, block := range message.Content {
		if block.Type == "text" {
			content.WriteString(block.Text)
		}
	}

	return Response{
		Provider:     "anthropic",
		Content:      content.String(),
		InputTokens:  int(message.Usage.InputTokens),
		OutputTokens: int(message.Usage.OutputTokens),
	}, 200
}

func (c *Client) callGoogle(ctx context.Context, apiKey string, req Request) (Response, int) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{APIKey: apiKey})
	if err != nil {
		return errorResponse("google", fmt.Sprintf("creating genai client: %v", err)), 0
	}

	var contents []*genai.Content
	for _, m := range req.Messages {
		role := genai.RoleUser
		if m.Role == "assistant" {
			role = genai.RoleModel
		}
		contents = append(contents, genai.NewContentFromText(m.Content, role))
	}

	cfg := &genai.GenerateContentConfig{}
	if req.System != "" {
		cfg.SystemInstruction = genai.NewContentFromText(req.System, genai.RoleUser)
	}

	result, err := client.Models.GenerateContent(ctx, req.Model, contents, cfg)
	if err != nil {
		return errorResponse("google", err.Error()), 0
	}

	text := result.Text()
	var inputTokens, outputTokens int
	if result.UsageMetadata != nil {
		inputTokens = int(result.UsageMetadata.PromptTokenCount)
		outputTokens = int(result.UsageMetadata.CandidatesTokenCount)
	}

	return Response{Provider: "google", Content: text, InputTokens: inputTokens, OutputTokens: outputTokens}, 200
}

type openAIChatRequest struct {
	Model       string              `json:"model"`
	Messages    []openAIChatMessage `json:"messages"`
	Temperature float64             `json:"temperature,omitempty"`
	MaxTokens   int                 `json:"max_tokens,omitempty"`
}

type openAIChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type openAIChatResponse struct {
	Choices []struct {
		Message openAIChatMessage `json:"message"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
	} `json:"usage"`
}

func (c *Client) callOpenAICompat(ctx context.Context, providerName, apiKey string, req Request) (Response, int) {
	info, ok := providers[providerName]
	if !ok {
		return errorResponse(providerName, fmt.Sprintf("unknown provider %s", providerName)), 0
	}

	messages := make([]openAIChatMessage, 0, len(req.Messages)+1)
	if req.System != "" {
		messages = append(messages, openAIChatMessage{Role: "system", Content: req.System})
	}
	for _, m := range req.Messages {
		messages = append(messages, openAIChatMessage{Role: m.Role, Content: m.Content})
	}

	body, err := json.Marshal(openAIChatRequest{
		Model: req.Model, Messages: messages, Temperature: req.Temperature, MaxTokens: req.MaxTokens,
	})
	if err != nil {
		return errorResponse(providerName, fmt.Sprintf("marshaling request: %v", err)), 0
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, info.baseURL+"/chat/completions", strings.NewReader(string(body)))
	if err != nil {
		return errorResponse(providerName, fmt.Sprintf("building request: %v", err)), 0
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+apiKey)

	httpResp, err := c.http.Do(httpReq)
	if err != nil {
		msg := err.Error()
		if ctx.Err() != nil {
			msg = "deadline exceeded: " + msg
		}
		return errorResponse(providerName, msg), 0
	}
	defer httpResp.Body.Close()

	if httpResp.StatusCode == 401 {
		return errorResponse(providerName, "invalid API key (401)"), 401
	}
	if httpResp.StatusCode == 429 {
		return errorResponse(providerName, "rate limited (429)"), 429
	}
	if httpResp.StatusCode >= 500 {
		return errorResponse(providerName, fmt.Sprintf("server error (%d)", httpResp.StatusCode)), httpResp.StatusCode
	}
	if httpResp.StatusCode != 200 {
		return errorResponse(providerName, fmt.Sprintf("unexpected status %d", httpResp.StatusCode)), httpResp.StatusCode
	}

	var parsed openAIChatResponse
	if err := json.NewDecoder(httpResp.Body).Decode(&parsed); err != nil {
		return errorResponse(providerName, fmt.Sprintf("decoding response: %v", err)), 200
	}
	if len(parsed.Choices) == 0 {
		return errorResponse(providerName, "no choices returned"), 200
	}

	return Response{
		Provider: providerName, Content: parsed.Choices[0].Message.Content,
		InputTokens: parsed.Usage.PromptTokens, OutputTokens: parsed.Usage.CompletionTokens,
	}, 200
}

var anthropicErrCode = regexp.MustCompile(`status code: (\d+)`)

func classifyAnthropicError(providerName string, err error) (Response, int) {
	msg := err.Error()
	status := 0
	if m := anthropicErrCode.FindStringSubmatch(msg); m != nil {
		fmt.Sscanf(m[1], "%d", &status)
	}
	if strings.Contains(msg, "401") {
		status = 401
	} else if strings.Contains(msg, "429") {
		status = 429
	}
	return errorResponse(providerName, msg), status
}
