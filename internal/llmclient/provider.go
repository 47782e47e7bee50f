package llmclient

import "strings"

// providerInfo names a provider's credential env var, base URL (for the
// OpenAI-compatible providers), and default model.
type providerInfo struct {
	envVar       string
	baseURL      string
	defaultModel string
}

// providers mirrors the reference client's PROVIDERS table exactly —
// Anthropic and Google dispatch through their SDKs; the rest share the
// OpenAI-compatible /chat/completions shape.
var providers = map[string]providerInfo{
	"anthropic": {"ANTHROPIC_API_KEY", "https://api.anthropic.com/v1", "claude-sonnet-4-20250514"},
	"google":    {"GOOGLE_API_KEY", "", "gemini-2.0-flash"},
	"deepseek":  {"DEEPSEEK_API_KEY", "https://api.deepseek.com/v1", "deepseek-chat"},
	"qwen":      {"QWEN_API_KEY", "https://dashscope.aliyuncs.com/compatible-mode/v1", "qwen-plus"},
	"minimax":   {"MINIMAX_API_KEY", "https://api.minimax.chat/v1", "abab6.5s-chat"},
	"kimi":      {"KIMI_API_KEY", "https://api.moonshot.cn/v1", "moonshot-v1-8k"},
	"mistral":   {"MISTRAL_API_KEY", "https://api.mistral.ai/v1", "mistral-large-latest"},
}

// detectProvider picks a provider by substring heuristic over the model
// name, defaulting to anthropic when nothing matches.
func detectProvider(model string) string {
	m := strings.ToLower(model)
	switch {
	case strings.Contains(m, "claude"):
		return "anthropic"
	case strings.Contains(m, "gemini"):
		return "google"
	case strings.Contains(m, "deepseek"):
		return "deepseek"
	case strings.Contains(m, "qwen"):
		return "qwen"
	case strings.Contains(m, "minimax"), strings.Contains(m, "abab"):
		return "minimax"
	case strings.Contains(m, "moonshot"), strings.Contains(m, "kimi"):
		return "kimi"
	case strings.Contains(m, "mistral"), strings.Contains(m, "mixtral"):
		return "mistral"
	default:
		return "anthropic"
	}
}
