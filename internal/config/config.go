// Package config loads cortex's runtime configuration: nested YAML defaults
// overridden by environment variables, with an optional .env file for local
// development.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config is the root configuration tree for a cortex process.
type Config struct {
	Name      string          `yaml:"name"`
	Workspace string          `yaml:"workspace"`
	LLM       LLMConfig       `yaml:"llm"`
	Embedding EmbeddingConfig `yaml:"embedding"`
	Memory    MemoryConfig    `yaml:"memory"`
	Bus       BusConfig       `yaml:"bus"`
	Guardian  GuardianConfig  `yaml:"guardian"`
	Session   SessionConfig   `yaml:"session"`
	Logging   LoggingConfig   `yaml:"logging"`
	Metrics   MetricsConfig   `yaml:"metrics"`
	Search    SearchConfig    `yaml:"search"`
	HTTP      HTTPConfig      `yaml:"http"`
}

// LLMConfig configures provider defaults and API keys for the LLM client.
type LLMConfig struct {
	DefaultModel string            `yaml:"default_model"`
	Timeout      time.Duration     `yaml:"timeout"`
	CodeTimeout  time.Duration     `yaml:"code_timeout"`
	APIKeys      map[string]string `yaml:"-"` // populated from env, never from YAML
}

// EmbeddingConfig configures the embedding provider.
type EmbeddingConfig struct {
	Provider       string `yaml:"provider"` // "ollama" or "genai"
	OllamaEndpoint string `yaml:"ollama_endpoint"`
	OllamaModel    string `yaml:"ollama_model"`
	GenAIAPIKey    string `yaml:"-"`
	GenAIModel     string `yaml:"genai_model"`
	Dimensions     int    `yaml:"dimensions"`
}

// MemoryConfig configures memory.db and projects.db locations and thresholds.
type MemoryConfig struct {
	DatabasePath         string        `yaml:"database_path"`
	ProjectsDatabasePath string        `yaml:"projects_database_path"`
	ConsolidationAge     time.Duration `yaml:"consolidation_age"`
	StaleAfter           time.Duration `yaml:"stale_after"`
}

// BusConfig configures bus.db and the optional NATS fan-out.
type BusConfig struct {
	DatabasePath string `yaml:"database_path"`
	NATSURL      string `yaml:"nats_url"` // empty disables fan-out
}

// GuardianConfig configures the guardian interceptor.
type GuardianConfig struct {
	DailyTokenBudget int64  `yaml:"daily_token_budget"`
	ConventionRules  string `yaml:"convention_rules"`      // inline Rego/YAML or a file path
	RedisURL         string `yaml:"redis_url"`              // empty keeps counters in-process only
	PollInterval     time.Duration `yaml:"poll_interval"`
}

// SessionConfig configures the child-process session spawner.
type SessionConfig struct {
	SpawnBinary     string        `yaml:"spawn_binary"`
	DefaultTimeout  time.Duration `yaml:"default_timeout"`
	BuilderTimeout  time.Duration `yaml:"builder_timeout"`
	VerifierTimeout time.Duration `yaml:"verifier_timeout"`
	ResearcherTimeout time.Duration `yaml:"researcher_timeout"`
}

// LoggingConfig configures internal/logging.
type LoggingConfig struct {
	DebugMode  bool            `yaml:"debug_mode"`
	Categories map[string]bool `yaml:"categories"`
	JSONFormat bool            `yaml:"json_format"`
}

// MetricsConfig configures the Prometheus exposition.
type MetricsConfig struct {
	ListenAddr string `yaml:"listen_addr"`
}

// SearchConfig configures the optional web-search backend.
type SearchConfig struct {
	Backend string `yaml:"backend"` // "brave" | "tavily" | "serpapi" | ""
	APIKey  string `yaml:"-"`
}

// HTTPConfig configures the inbound message transport — the single `POST
// /v1/messages` adapter and its co-located `/metrics` exposition.
type HTTPConfig struct {
	ListenAddr  string   `yaml:"listen_addr"`
	CORSOrigins []string `yaml:"cors_origins"`
}

// DefaultConfig returns the baseline configuration before YAML or env overrides.
func DefaultConfig() *Config {
	return &Config{
		Name:      "cortex",
		Workspace: "./workspace",
		LLM: LLMConfig{
			DefaultModel: "claude-sonnet-4-20250514",
			Timeout:      60 * time.Second,
			CodeTimeout:  180 * time.Second,
			APIKeys:      map[string]string{},
		},
		Embedding: EmbeddingConfig{
			Provider:       "ollama",
			OllamaEndpoint: "http://localhost:11434",
			OllamaModel:    "embeddinggemma",
			GenAIModel:     "text-embedding-004",
			Dimensions:     768,
		},
		Memory: MemoryConfig{
			DatabasePath:         "data/memory.db",
			ProjectsDatabasePath: "data/projects.db",
			ConsolidationAge:     7 * 24 * time.Hour,
			StaleAfter:           180 * 24 * time.Hour,
		},
		Bus: BusConfig{
			DatabasePath: "data/bus.db",
		},
		Guardian: GuardianConfig{
			DailyTokenBudget: 1_000_000,
			PollInterval:     1 * time.Second,
		},
		Session: SessionConfig{
			SpawnBinary:       "session-spawn",
			DefaultTimeout:    120 * time.Second,
			BuilderTimeout:    120 * time.Second,
			VerifierTimeout:   90 * time.Second,
			ResearcherTimeout: 90 * time.Second,
		},
		Logging: LoggingConfig{
			DebugMode:  false,
			Categories: map[string]bool{},
		},
		Metrics: MetricsConfig{
			ListenAddr: ":9090",
		},
		HTTP: HTTPConfig{
			ListenAddr:  ":8090",
			CORSOrigins: []string{"*"},
		},
	}
}

// Load reads an optional .env file, an optional YAML config file, then applies
// environment-variable overrides, in that precedence order (env wins).
func Load(yamlPath string) (*Config, error) {
	_ = godotenv.Load() // best-effort; absence of .env is not an error

	cfg := DefaultConfig()

	if yamlPath != "" {
		data, err := os.ReadFile(yamlPath)
		if err != nil {
			if !os.IsNotExist(err) {
				return nil, fmt.Errorf("config: reading %s: %w", yamlPath, err)
			}
		} else if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("config: parsing %s: %w", yamlPath, err)
		}
	}

	applyEnvOverrides(cfg)
	return cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	keys := map[string]string{
		"anthropic": os.Getenv("ANTHROPIC_API_KEY"),
		"deepseek":  os.Getenv("DEEPSEEK_API_KEY"),
		"qwen":      firstNonEmptyEnv("QWEN_API_KEY", "DASHSCOPE_API_KEY"),
		"google":    os.Getenv("GOOGLE_API_KEY"),
		"kimi":      firstNonEmptyEnv("KIMI_API_KEY", "MOONSHOT_API_KEY"),
	}
	for provider, envVal := range keys {
		if envVal != "" {
			cfg.LLM.APIKeys[provider] = envVal
		}
	}
	cfg.Embedding.GenAIAPIKey = cfg.LLM.APIKeys["google"]

	if v := os.Getenv("LLM_DEFAULT_MODEL"); v != "" {
		cfg.LLM.DefaultModel = v
	}
	if v := os.Getenv("COST_BUDGET_DAILY_TOKENS"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			cfg.Guardian.DailyTokenBudget = n
		}
	}
	if v := os.Getenv("WORKSPACE_DIR"); v != "" {
		cfg.Workspace = v
	}
	if v := os.Getenv("KNOWLEDGE_CACHE_PATH"); v != "" {
		cfg.Memory.DatabasePath = v
	}
	if v := os.Getenv("SEARCH_BACKEND"); v != "" {
		cfg.Search.Backend = v
		switch v {
		case "brave":
			cfg.Search.APIKey = os.Getenv("BRAVE_API_KEY")
		case "tavily":
			cfg.Search.APIKey = os.Getenv("TAVILY_API_KEY")
		case "serpapi":
			cfg.Search.APIKey = os.Getenv("SERPAPI_API_KEY")
		}
	}
	if v := os.Getenv("GUARDIAN_CONVENTION_RULES"); v != "" {
		cfg.Guardian.ConventionRules = v
	} else if _, err := os.Stat("configs/user/conventions.yaml"); err == nil {
		cfg.Guardian.ConventionRules = "configs/user/conventions.yaml"
	}
	if v := os.Getenv("REDIS_URL"); v != "" {
		cfg.Guardian.RedisURL = v
	}
	if v := os.Getenv("NATS_URL"); v != "" {
		cfg.Bus.NATSURL = v
	}
	if v := os.Getenv("HTTP_LISTEN_ADDR"); v != "" {
		cfg.HTTP.ListenAddr = v
	}
	if v := os.Getenv("HTTP_CORS_ORIGINS"); v != "" {
		cfg.HTTP.CORSOrigins = strings.Split(v, ",")
	}
}

// firstNonEmptyEnv returns the value of the first named env var that is set,
// or "" if none are set.
func firstNonEmptyEnv(names ...string) string {
	for _, n := range names {
		if v := os.Getenv(n); v != "" {
			return v
		}
	}
	return ""
}
