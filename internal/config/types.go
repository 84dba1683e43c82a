package config

import "time"

// Config is the root configuration for actionloop.
type Config struct {
	Agent     AgentConfig     `yaml:"agent,omitempty"`
	Providers ProvidersConfig `yaml:"providers,omitempty"`
	Search    SearchConfig    `yaml:"search,omitempty"`
	Store     StoreConfig     `yaml:"store,omitempty"`
	Gateway   GatewayConfig   `yaml:"gateway,omitempty"`
	Hooks     HooksConfig     `yaml:"hooks,omitempty"`
	Logging   LoggingConfig   `yaml:"logging,omitempty"`
}

// AgentConfig controls the step engine.
type AgentConfig struct {
	Model         string   `yaml:"model,omitempty"`     // provider name, alias, or "provider/model"
	Fallbacks     []string `yaml:"fallbacks,omitempty"` // tried in order on retryable provider errors
	MaxSteps      int      `yaml:"maxSteps,omitempty"`
	ModelTimeout  int      `yaml:"modelTimeout,omitempty"` // seconds
	ToolTimeout   int      `yaml:"toolTimeout,omitempty"`  // seconds
	ParallelTools bool     `yaml:"parallelTools,omitempty"`
	ActionMarker  string   `yaml:"actionMarker,omitempty"`
	SystemPrompt  string   `yaml:"systemPrompt,omitempty"` // extra instructions appended to the built-in prompt
	MaxTokens     int      `yaml:"maxTokens,omitempty"`
	Temperature   *float64 `yaml:"temperature,omitempty"`
}

// ModelTimeoutDuration returns the per-model-call timeout.
func (a AgentConfig) ModelTimeoutDuration() time.Duration {
	return time.Duration(a.ModelTimeout) * time.Second
}

// ToolTimeoutDuration returns the per-tool-call timeout.
func (a AgentConfig) ToolTimeoutDuration() time.Duration {
	return time.Duration(a.ToolTimeout) * time.Second
}

// ProvidersConfig holds one optional entry per supported model provider.
type ProvidersConfig struct {
	OpenAI    *ProviderEntry `yaml:"openai,omitempty"`
	Anthropic *ProviderEntry `yaml:"anthropic,omitempty"`
	Ollama    *ProviderEntry `yaml:"ollama,omitempty"`
	Gemini    *ProviderEntry `yaml:"gemini,omitempty"`
}

// Entries returns the configured providers keyed by provider name.
func (p ProvidersConfig) Entries() map[string]ProviderEntry {
	out := make(map[string]ProviderEntry)
	if p.OpenAI != nil {
		out["openai"] = *p.OpenAI
	}
	if p.Anthropic != nil {
		out["anthropic"] = *p.Anthropic
	}
	if p.Ollama != nil {
		out["ollama"] = *p.Ollama
	}
	if p.Gemini != nil {
		out["gemini"] = *p.Gemini
	}
	return out
}

// ProviderEntry configures a single model provider.
type ProviderEntry struct {
	APIKey  string   `yaml:"apiKey,omitempty"`
	BaseURL string   `yaml:"baseUrl,omitempty"`
	Model   string   `yaml:"model,omitempty"`
	Aliases []string `yaml:"aliases,omitempty"`
}

// SearchConfig configures the web_search tool.
type SearchConfig struct {
	Engine          string   `yaml:"engine,omitempty"` // "serpapi" | "brave"
	FallbackEngines []string `yaml:"fallbackEngines,omitempty"`
	NumResults      int      `yaml:"numResults,omitempty"`
	SerpAPIKey      string   `yaml:"serpapiKey,omitempty"`
	BraveAPIKey     string   `yaml:"braveKey,omitempty"`
	Timeout         int      `yaml:"timeout,omitempty"` // seconds
}

// TimeoutDuration returns the per-request search timeout.
func (s SearchConfig) TimeoutDuration() time.Duration {
	return time.Duration(s.Timeout) * time.Second
}

// StoreConfig selects where runs are recorded.
type StoreConfig struct {
	Driver string `yaml:"driver,omitempty"` // "sqlite" | "postgres" | "memory"
	Path   string `yaml:"path,omitempty"`   // sqlite file; defaults to <base>/data/runs.db
	DSN    string `yaml:"dsn,omitempty"`    // postgres connection string
}

// GatewayConfig controls the HTTP/WebSocket run API.
type GatewayConfig struct {
	Port           int      `yaml:"port,omitempty"`
	Bind           string   `yaml:"bind,omitempty"` // "loopback" | "lan"
	Token          string   `yaml:"token,omitempty"`
	AllowedOrigins []string `yaml:"allowedOrigins,omitempty"`
}

// LoggingConfig controls logging behavior.
type LoggingConfig struct {
	Level        string `yaml:"level,omitempty"` // "silent" | "fatal" | "error" | "warn" | "info" | "debug" | "trace"
	File         string `yaml:"file,omitempty"`
	ConsoleStyle string `yaml:"consoleStyle,omitempty"` // "pretty" | "json"
}

// HooksConfig defines shell commands run on agent lifecycle events.
type HooksConfig struct {
	RunStart     []HookEntry `yaml:"runStart,omitempty"`
	StepComplete []HookEntry `yaml:"stepComplete,omitempty"`
	ToolError    []HookEntry `yaml:"toolError,omitempty"`
	RunEnd       []HookEntry `yaml:"runEnd,omitempty"`
}

// HookEntry defines a single hook action.
type HookEntry struct {
	Command string `yaml:"command"`
	Timeout int    `yaml:"timeout,omitempty"` // milliseconds
}
