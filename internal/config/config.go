package config

import "fmt"

// ConfigError represents a configuration error.
type ConfigError struct {
	Message string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("config: %s", e.Message)
}

const (
	DefaultModel         = "openai"
	DefaultMaxSteps      = 10
	DefaultModelTimeout  = 120
	DefaultToolTimeout   = 60
	DefaultActionMarker  = "Action:"
	DefaultMaxTokens     = 4096
	DefaultGatewayPort   = 18790
	DefaultSearchEngine  = "serpapi"
	DefaultNumResults    = 5
	DefaultSearchTimeout = 30
)

// Defaults returns a Config with sensible defaults applied.
func Defaults() Config {
	return Config{
		Agent: AgentConfig{
			Model:        DefaultModel,
			MaxSteps:     DefaultMaxSteps,
			ModelTimeout: DefaultModelTimeout,
			ToolTimeout:  DefaultToolTimeout,
			ActionMarker: DefaultActionMarker,
			MaxTokens:    DefaultMaxTokens,
		},
		Search: SearchConfig{
			Engine:          DefaultSearchEngine,
			FallbackEngines: []string{"brave"},
			NumResults:      DefaultNumResults,
			Timeout:         DefaultSearchTimeout,
		},
		Store: StoreConfig{
			Driver: "sqlite",
		},
		Gateway: GatewayConfig{
			Port: DefaultGatewayPort,
			Bind: "loopback",
		},
		Logging: LoggingConfig{
			Level:        "info",
			ConsoleStyle: "pretty",
		},
	}
}
