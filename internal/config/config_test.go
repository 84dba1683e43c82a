package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func clearProviderEnv(t *testing.T) {
	t.Helper()
	for _, v := range []string{"OPENAI_API_KEY", "ANTHROPIC_API_KEY", "GEMINI_API_KEY", "OLLAMA_HOST", "SERPAPI_API_KEY", "BRAVE_API_KEY"} {
		t.Setenv(v, "")
	}
}

func TestDefaults(t *testing.T) {
	cfg := Defaults()
	assert.Equal(t, "openai", cfg.Agent.Model)
	assert.Equal(t, 10, cfg.Agent.MaxSteps)
	assert.Equal(t, "Action:", cfg.Agent.ActionMarker)
	assert.Equal(t, 120, cfg.Agent.ModelTimeout)
	assert.Equal(t, 60, cfg.Agent.ToolTimeout)
	assert.Equal(t, "serpapi", cfg.Search.Engine)
	assert.Equal(t, []string{"brave"}, cfg.Search.FallbackEngines)
	assert.Equal(t, "sqlite", cfg.Store.Driver)
	assert.Equal(t, 18790, cfg.Gateway.Port)
	assert.Equal(t, "loopback", cfg.Gateway.Bind)
	assert.Equal(t, "info", cfg.Logging.Level)
}

func TestLoadMissingFile(t *testing.T) {
	clearProviderEnv(t)
	cfg, err := Load("/nonexistent/path/config.yaml")
	require.NoError(t, err)
	assert.Equal(t, 10, cfg.Agent.MaxSteps)
	assert.Nil(t, cfg.Providers.OpenAI)
}

func TestLoadValidYAML(t *testing.T) {
	clearProviderEnv(t)
	t.Setenv("TEST_ANTHROPIC_KEY", "sk-ant-123")
	path := filepath.Join(t.TempDir(), "config.yaml")

	yaml := `
agent:
  model: anthropic
  fallbacks: [openai]
  maxSteps: 4
  toolTimeout: 5
  parallelTools: true
  actionMarker: "ACTION:"
providers:
  anthropic:
    apiKey: ${TEST_ANTHROPIC_KEY}
    model: claude-sonnet-4-5
    aliases: [sonnet]
  openai:
    apiKey: sk-openai
    model: gpt-4o-mini
search:
  engine: brave
  fallbackEngines: [serpapi]
store:
  driver: memory
logging:
  level: debug
  consoleStyle: json
hooks:
  runEnd:
    - command: "cat > /dev/null"
      timeout: 500
`
	require.NoError(t, os.WriteFile(path, []byte(yaml), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "anthropic", cfg.Agent.Model)
	assert.Equal(t, []string{"openai"}, cfg.Agent.Fallbacks)
	assert.Equal(t, 4, cfg.Agent.MaxSteps)
	assert.Equal(t, 120, cfg.Agent.ModelTimeout, "unset fields keep their defaults")
	assert.Equal(t, "5s", cfg.Agent.ToolTimeoutDuration().String())
	assert.True(t, cfg.Agent.ParallelTools)
	assert.Equal(t, "ACTION:", cfg.Agent.ActionMarker)

	require.NotNil(t, cfg.Providers.Anthropic)
	assert.Equal(t, "sk-ant-123", cfg.Providers.Anthropic.APIKey)
	assert.Equal(t, []string{"sonnet"}, cfg.Providers.Anthropic.Aliases)
	assert.Len(t, cfg.Providers.Entries(), 2)

	assert.Equal(t, "brave", cfg.Search.Engine)
	assert.Equal(t, "memory", cfg.Store.Driver)
	assert.Equal(t, "json", cfg.Logging.ConsoleStyle)
	require.Len(t, cfg.Hooks.RunEnd, 1)
	assert.Equal(t, 500, cfg.Hooks.RunEnd[0].Timeout)
}

func TestLoadInvalidYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("{{invalid yaml"), 0o600))

	_, err := Load(path)
	require.Error(t, err)
	var ce *ConfigError
	assert.ErrorAs(t, err, &ce)
	assert.Contains(t, err.Error(), "failed to parse config")
}

func TestLoadEnvOverrides(t *testing.T) {
	clearProviderEnv(t)
	t.Setenv("ACTIONLOOP_MODEL", "ollama")
	t.Setenv("ACTIONLOOP_MAX_STEPS", "3")
	t.Setenv("ACTIONLOOP_GATEWAY_PORT", "12345")
	t.Setenv("ACTIONLOOP_LOG_LEVEL", "TRACE")
	t.Setenv("ACTIONLOOP_STORE_DRIVER", "Postgres")

	cfg, err := Load("/nonexistent/config.yaml")
	require.NoError(t, err)

	assert.Equal(t, "ollama", cfg.Agent.Model)
	assert.Equal(t, 3, cfg.Agent.MaxSteps)
	assert.Equal(t, 12345, cfg.Gateway.Port)
	assert.Equal(t, "trace", cfg.Logging.Level)
	assert.Equal(t, "postgres", cfg.Store.Driver)
}

func TestLoadProviderKeyFallbacks(t *testing.T) {
	clearProviderEnv(t)
	t.Setenv("OPENAI_API_KEY", "sk-env")
	t.Setenv("OLLAMA_HOST", "http://gpu-box:11434")
	t.Setenv("SERPAPI_API_KEY", "serp-env")

	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("providers:\n  openai:\n    model: gpt-4o\n"), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)

	require.NotNil(t, cfg.Providers.OpenAI)
	assert.Equal(t, "sk-env", cfg.Providers.OpenAI.APIKey)
	assert.Equal(t, "gpt-4o", cfg.Providers.OpenAI.Model)
	require.NotNil(t, cfg.Providers.Ollama)
	assert.Equal(t, "http://gpu-box:11434", cfg.Providers.Ollama.BaseURL)
	assert.Nil(t, cfg.Providers.Anthropic)
	assert.Equal(t, "serp-env", cfg.Search.SerpAPIKey)
}

func TestExpandEnvVars(t *testing.T) {
	t.Setenv("AL_SET", "value")

	assert.Equal(t, "value", expandEnvVars("${AL_SET}"))
	assert.Equal(t, "pre-value-post", expandEnvVars("pre-${AL_SET}-post"))
	assert.Equal(t, "${AL_DEFINITELY_UNSET}", expandEnvVars("${AL_DEFINITELY_UNSET}"))
	assert.Equal(t, "$AL_SET", expandEnvVars("$AL_SET"))
}

func TestLoadRawAndSaveRaw(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")

	raw := map[string]any{
		"agent": map[string]any{
			"maxSteps": 7,
		},
	}
	require.NoError(t, SaveRaw(path, raw))

	loaded, err := LoadRaw(path)
	require.NoError(t, err)

	val, ok := GetValueAtPath(loaded, []string{"agent", "maxSteps"})
	assert.True(t, ok)
	assert.Equal(t, 7, val)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 7, cfg.Agent.MaxSteps)
}

func TestLoadRawMissingFile(t *testing.T) {
	raw, err := LoadRaw(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)
	assert.Empty(t, raw)
}

func TestResolvePathsCustomHome(t *testing.T) {
	tmp := t.TempDir()
	t.Setenv("ACTIONLOOP_HOME", tmp)

	paths, err := ResolvePaths()
	require.NoError(t, err)
	assert.Equal(t, tmp, paths.Base)
	assert.Equal(t, filepath.Join(tmp, "config.yaml"), paths.Config)
	assert.Equal(t, filepath.Join(tmp, "data", "runs.db"), paths.RunsDB)
}

func TestResolvePathsDefaultHome(t *testing.T) {
	t.Setenv("ACTIONLOOP_HOME", "")

	paths, err := ResolvePaths()
	require.NoError(t, err)

	home, _ := os.UserHomeDir()
	assert.Equal(t, filepath.Join(home, ".actionloop"), paths.Base)
	assert.Equal(t, filepath.Join(home, ".actionloop", "logs"), paths.Logs)
}

func TestEnsureDirs(t *testing.T) {
	t.Setenv("ACTIONLOOP_HOME", t.TempDir())

	paths, err := ResolvePaths()
	require.NoError(t, err)
	require.NoError(t, paths.EnsureDirs())
	require.NoError(t, paths.EnsureDirs())

	for _, d := range []string{paths.Base, paths.Logs, paths.Data} {
		info, err := os.Stat(d)
		require.NoError(t, err)
		assert.True(t, info.IsDir())
	}
}
