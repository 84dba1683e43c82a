package cli

import (
	"context"
	"errors"
	"fmt"

	"github.com/soyeahso/actionloop/internal/agent"
	"github.com/soyeahso/actionloop/internal/config"
	"github.com/soyeahso/actionloop/internal/hooks"
	"github.com/soyeahso/actionloop/internal/llm"
	"github.com/soyeahso/actionloop/internal/logging"
	"github.com/soyeahso/actionloop/internal/search"
	"github.com/soyeahso/actionloop/internal/store"
	"github.com/soyeahso/actionloop/internal/tool"
	"github.com/soyeahso/actionloop/internal/toolset"
)

// app is everything a run needs, assembled from config.
type app struct {
	cfg      config.Config
	model    string
	engine   *agent.Engine
	tools    *tool.Registry
	searcher *search.Searcher
	runs     store.RunStore
	hooks    *hooks.Manager
}

// buildTools registers the built-in tools. web_search is only offered when
// at least one search engine is configured.
func buildTools(cfg config.Config, log *logging.Logger) (*tool.Registry, *search.Searcher, error) {
	reg := tool.NewRegistry(log)
	searcher := search.NewFromConfig(cfg.Search, log)

	var s toolset.Searcher
	if len(searcher.Engines()) > 0 {
		s = searcher
	} else {
		log.Warn().Msg("no search engine configured, web_search disabled")
	}
	if err := toolset.Register(reg, s); err != nil {
		return nil, nil, err
	}
	reg.Freeze()
	return reg, searcher, nil
}

var errNoProvider = errors.New("no model provider configured; set providers.* in the config or OPENAI_API_KEY, ANTHROPIC_API_KEY, GEMINI_API_KEY, OLLAMA_HOST")

// resolveModel picks the model reference: explicit override, then
// agent.model when a provider serves it, then the first registered provider.
func resolveModel(override string, cfg config.Config, reg *llm.Registry) (string, error) {
	providers := reg.List()
	if len(providers) == 0 {
		return "", errNoProvider
	}
	if override != "" {
		return override, nil
	}
	if m := cfg.Agent.Model; m != "" {
		if _, _, err := reg.Resolve(m); err == nil {
			return m, nil
		}
		log.Warn().Str("model", m).Str("using", providers[0]).Msg("no provider for configured model, using the first available")
	}
	return providers[0], nil
}

// engineConfig maps agent config onto the engine.
func engineConfig(a config.AgentConfig, model string) agent.Config {
	return agent.Config{
		Model:         model,
		MaxSteps:      a.MaxSteps,
		ModelTimeout:  a.ModelTimeoutDuration(),
		ToolTimeout:   a.ToolTimeoutDuration(),
		ParallelTools: a.ParallelTools,
		Marker:        a.ActionMarker,
		ExtraPrompt:   a.SystemPrompt,
		MaxTokens:     a.MaxTokens,
		Temperature:   a.Temperature,
	}
}

// newApp wires providers, tools, the run store and hooks into an engine.
// Close must be called to release the run store.
func newApp(ctx context.Context, cfg config.Config, model string) (*app, error) {
	registry, err := llm.NewRegistryFromConfig(cfg, log)
	if err != nil {
		return nil, fmt.Errorf("model providers: %w", err)
	}
	model, err = resolveModel(model, cfg, registry)
	if err != nil {
		return nil, err
	}
	log.Debug().Strs("providers", registry.List()).Str("model", model).Msg("model providers available")

	tools, searcher, err := buildTools(cfg, log)
	if err != nil {
		return nil, err
	}

	if err := paths.EnsureDirs(); err != nil {
		return nil, fmt.Errorf("creating data directories: %w", err)
	}
	runs, err := store.OpenRunStore(ctx, cfg.Store, paths.RunsDB, log)
	if err != nil {
		return nil, fmt.Errorf("opening run store: %w", err)
	}

	hookMgr := hooks.NewManager(log)
	if n := hooks.RegisterCommands(hookMgr, cfg.Hooks); n > 0 {
		log.Debug().Int("hooks", n).Msg("command hooks registered")
	}

	gw := llm.NewFailover(registry, model, cfg.Agent.Fallbacks, log)
	engine := agent.NewEngine(engineConfig(cfg.Agent, model), gw, tools, log,
		agent.WithRecorder(runs),
		agent.WithHooks(hookMgr),
	)

	return &app{
		cfg:      cfg,
		model:    model,
		engine:   engine,
		tools:    tools,
		searcher: searcher,
		runs:     runs,
		hooks:    hookMgr,
	}, nil
}

// Close waits for pending hooks and closes the run store.
func (a *app) Close() error {
	a.hooks.Wait()
	return a.runs.Close()
}

// openRunStore opens only the run store, for commands that read history.
func openRunStore(ctx context.Context, cfg config.Config) (store.RunStore, error) {
	if err := paths.EnsureDirs(); err != nil {
		return nil, fmt.Errorf("creating data directories: %w", err)
	}
	return store.OpenRunStore(ctx, cfg.Store, paths.RunsDB, log)
}
