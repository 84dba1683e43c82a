package config

import (
	"fmt"
	"slices"
)

// ValidationIssue describes a problem with a config value.
type ValidationIssue struct {
	Path    string
	Message string
}

func (v ValidationIssue) String() string {
	return fmt.Sprintf("%s: %s", v.Path, v.Message)
}

var (
	validLogLevels     = []string{"silent", "fatal", "error", "warn", "info", "debug", "trace"}
	validConsoleStyles = []string{"pretty", "json"}
	validStoreDrivers  = []string{"sqlite", "postgres", "memory"}
	validBinds         = []string{"loopback", "lan"}
	validSearchEngines = []string{"serpapi", "brave"}
)

// Validate checks a Config for issues. Returns nil if valid.
func Validate(cfg *Config) []ValidationIssue {
	var issues []ValidationIssue
	add := func(path, format string, args ...any) {
		issues = append(issues, ValidationIssue{Path: path, Message: fmt.Sprintf(format, args...)})
	}

	// Agent validation
	if cfg.Agent.MaxSteps < 1 {
		add("agent.maxSteps", "must be at least 1, got %d", cfg.Agent.MaxSteps)
	}
	if cfg.Agent.ModelTimeout < 0 {
		add("agent.modelTimeout", "must not be negative, got %d", cfg.Agent.ModelTimeout)
	}
	if cfg.Agent.ToolTimeout < 0 {
		add("agent.toolTimeout", "must not be negative, got %d", cfg.Agent.ToolTimeout)
	}
	if cfg.Agent.Temperature != nil && (*cfg.Agent.Temperature < 0 || *cfg.Agent.Temperature > 2) {
		add("agent.temperature", "must be between 0 and 2, got %v", *cfg.Agent.Temperature)
	}

	// Provider validation
	for name, p := range cfg.Providers.Entries() {
		if name != "ollama" && p.APIKey == "" && p.BaseURL == "" {
			add("providers."+name+".apiKey", "required unless baseUrl points at a keyless endpoint")
		}
	}

	// Search validation
	if cfg.Search.Engine != "" && !slices.Contains(validSearchEngines, cfg.Search.Engine) {
		add("search.engine", "must be one of %v, got %q", validSearchEngines, cfg.Search.Engine)
	}
	for i, e := range cfg.Search.FallbackEngines {
		if !slices.Contains(validSearchEngines, e) {
			add(fmt.Sprintf("search.fallbackEngines.%d", i), "must be one of %v, got %q", validSearchEngines, e)
		}
	}
	if cfg.Search.NumResults < 0 {
		add("search.numResults", "must not be negative, got %d", cfg.Search.NumResults)
	}

	// Store validation
	if cfg.Store.Driver != "" && !slices.Contains(validStoreDrivers, cfg.Store.Driver) {
		add("store.driver", "must be one of %v, got %q", validStoreDrivers, cfg.Store.Driver)
	}
	if cfg.Store.Driver == "postgres" && cfg.Store.DSN == "" {
		add("store.dsn", "required when store.driver is postgres")
	}

	// Gateway validation
	if cfg.Gateway.Port < 0 || cfg.Gateway.Port > 65535 {
		add("gateway.port", "port must be 0-65535, got %d", cfg.Gateway.Port)
	}
	if cfg.Gateway.Bind != "" && !slices.Contains(validBinds, cfg.Gateway.Bind) {
		add("gateway.bind", "must be one of %v, got %q", validBinds, cfg.Gateway.Bind)
	}
	if cfg.Gateway.Bind == "lan" && cfg.Gateway.Token == "" {
		add("gateway.token", "required when gateway.bind is lan")
	}

	// Hooks validation
	hookSets := map[string][]HookEntry{
		"hooks.runStart":     cfg.Hooks.RunStart,
		"hooks.stepComplete": cfg.Hooks.StepComplete,
		"hooks.toolError":    cfg.Hooks.ToolError,
		"hooks.runEnd":       cfg.Hooks.RunEnd,
	}
	for _, path := range []string{"hooks.runStart", "hooks.stepComplete", "hooks.toolError", "hooks.runEnd"} {
		for i, h := range hookSets[path] {
			if h.Command == "" {
				add(fmt.Sprintf("%s.%d.command", path, i), "command is required")
			}
			if h.Timeout < 0 {
				add(fmt.Sprintf("%s.%d.timeout", path, i), "must not be negative, got %d", h.Timeout)
			}
		}
	}

	// Logging validation
	if cfg.Logging.Level != "" && !slices.Contains(validLogLevels, cfg.Logging.Level) {
		add("logging.level", "must be one of %v, got %q", validLogLevels, cfg.Logging.Level)
	}
	if cfg.Logging.ConsoleStyle != "" && !slices.Contains(validConsoleStyles, cfg.Logging.ConsoleStyle) {
		add("logging.consoleStyle", "must be one of %v, got %q", validConsoleStyles, cfg.Logging.ConsoleStyle)
	}

	return issues
}
