package config

import (
	"os"
	"regexp"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// envVarPattern matches ${VAR_NAME} patterns in strings.
var envVarPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// expandEnvVars replaces ${VAR} patterns with environment variable values.
// Unset variables are left unchanged.
func expandEnvVars(s string) string {
	return envVarPattern.ReplaceAllStringFunc(s, func(match string) string {
		varName := match[2 : len(match)-1]
		if val, ok := os.LookupEnv(varName); ok {
			return val
		}
		return match
	})
}

// expandSensitiveFields resolves ${ENV_VAR} references in credential fields.
func expandSensitiveFields(cfg *Config) {
	cfg.Gateway.Token = expandEnvVars(cfg.Gateway.Token)
	cfg.Store.DSN = expandEnvVars(cfg.Store.DSN)
	cfg.Search.SerpAPIKey = expandEnvVars(cfg.Search.SerpAPIKey)
	cfg.Search.BraveAPIKey = expandEnvVars(cfg.Search.BraveAPIKey)
	for _, p := range []*ProviderEntry{cfg.Providers.OpenAI, cfg.Providers.Anthropic, cfg.Providers.Ollama, cfg.Providers.Gemini} {
		if p != nil {
			p.APIKey = expandEnvVars(p.APIKey)
			p.BaseURL = expandEnvVars(p.BaseURL)
		}
	}
}

// Load reads the config file, applies environment overrides, and returns
// a merged Config. Missing files produce defaults only.
func Load(path string) (Config, error) {
	cfg := Defaults()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			applyEnvOverrides(&cfg)
			return cfg, nil
		}
		return cfg, err
	}

	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, &ConfigError{Message: "failed to parse config: " + err.Error()}
	}

	applyDefaults(&cfg)
	expandSensitiveFields(&cfg)
	applyEnvOverrides(&cfg)
	return cfg, nil
}

// LoadRaw reads the config file into a generic map for path-based access.
func LoadRaw(path string) (map[string]any, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return map[string]any{}, nil
		}
		return nil, err
	}

	var raw map[string]any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, &ConfigError{Message: "failed to parse config: " + err.Error()}
	}
	if raw == nil {
		raw = map[string]any{}
	}
	return raw, nil
}

// SaveRaw writes a generic map back to a YAML config file.
func SaveRaw(path string, raw map[string]any) error {
	data, err := yaml.Marshal(raw)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o600)
}

// applyDefaults fills zero-value fields with sensible defaults.
func applyDefaults(cfg *Config) {
	if cfg.Agent.Model == "" {
		cfg.Agent.Model = DefaultModel
	}
	if cfg.Agent.MaxSteps == 0 {
		cfg.Agent.MaxSteps = DefaultMaxSteps
	}
	if cfg.Agent.ModelTimeout == 0 {
		cfg.Agent.ModelTimeout = DefaultModelTimeout
	}
	if cfg.Agent.ToolTimeout == 0 {
		cfg.Agent.ToolTimeout = DefaultToolTimeout
	}
	if cfg.Agent.ActionMarker == "" {
		cfg.Agent.ActionMarker = DefaultActionMarker
	}
	if cfg.Agent.MaxTokens == 0 {
		cfg.Agent.MaxTokens = DefaultMaxTokens
	}
	if cfg.Search.Engine == "" {
		cfg.Search.Engine = DefaultSearchEngine
	}
	if cfg.Search.NumResults == 0 {
		cfg.Search.NumResults = DefaultNumResults
	}
	if cfg.Search.Timeout == 0 {
		cfg.Search.Timeout = DefaultSearchTimeout
	}
	if cfg.Store.Driver == "" {
		cfg.Store.Driver = "sqlite"
	}
	if cfg.Gateway.Port == 0 {
		cfg.Gateway.Port = DefaultGatewayPort
	}
	if cfg.Gateway.Bind == "" {
		cfg.Gateway.Bind = "loopback"
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.ConsoleStyle == "" {
		cfg.Logging.ConsoleStyle = "pretty"
	}
}

// applyEnvOverrides reads ACTIONLOOP_* environment variables and overrides
// config values. Well-known provider key variables fill in missing keys.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("ACTIONLOOP_MODEL"); v != "" {
		cfg.Agent.Model = v
	}
	if v := os.Getenv("ACTIONLOOP_MAX_STEPS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Agent.MaxSteps = n
		}
	}
	if v := os.Getenv("ACTIONLOOP_GATEWAY_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Gateway.Port = port
		}
	}
	if v := os.Getenv("ACTIONLOOP_GATEWAY_TOKEN"); v != "" {
		cfg.Gateway.Token = v
	}
	if v := os.Getenv("ACTIONLOOP_STORE_DRIVER"); v != "" {
		cfg.Store.Driver = strings.ToLower(v)
	}
	if v := os.Getenv("ACTIONLOOP_STORE_DSN"); v != "" {
		cfg.Store.DSN = v
	}
	if v := os.Getenv("ACTIONLOOP_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = strings.ToLower(v)
	}

	if cfg.Search.SerpAPIKey == "" {
		cfg.Search.SerpAPIKey = os.Getenv("SERPAPI_API_KEY")
	}
	if cfg.Search.BraveAPIKey == "" {
		cfg.Search.BraveAPIKey = os.Getenv("BRAVE_API_KEY")
	}

	envProvider(&cfg.Providers.OpenAI, "OPENAI_API_KEY", "")
	envProvider(&cfg.Providers.Anthropic, "ANTHROPIC_API_KEY", "")
	envProvider(&cfg.Providers.Gemini, "GEMINI_API_KEY", "")
	envProvider(&cfg.Providers.Ollama, "", "OLLAMA_HOST")
}

// envProvider fills a provider's key or base URL from the environment,
// creating the entry when the variable is set and the entry is absent.
func envProvider(entry **ProviderEntry, keyVar, hostVar string) {
	var key, host string
	if keyVar != "" {
		key = os.Getenv(keyVar)
	}
	if hostVar != "" {
		host = os.Getenv(hostVar)
	}
	if key == "" && host == "" {
		return
	}
	if *entry == nil {
		*entry = &ProviderEntry{}
	}
	if (*entry).APIKey == "" {
		(*entry).APIKey = key
	}
	if (*entry).BaseURL == "" {
		(*entry).BaseURL = host
	}
}
