package llm

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/soyeahso/actionloop/internal/config"
	"github.com/soyeahso/actionloop/internal/logging"
)

// Registry manages provider gateways and resolves model references to them.
type Registry struct {
	mu       sync.RWMutex
	gateways map[string]Gateway // provider name → gateway
	aliases  map[string]string  // alias → provider name
	fallback string             // default provider name
	log      *logging.Logger
}

// NewRegistry creates an empty provider registry.
func NewRegistry(log *logging.Logger) *Registry {
	return &Registry{
		gateways: make(map[string]Gateway),
		aliases:  make(map[string]string),
		log:      log.Sub("llm.registry"),
	}
}

// Register adds a gateway under the given provider name.
func (r *Registry) Register(name string, g Gateway) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.gateways[name] = g
	r.log.Info().Str("provider", name).Msg("registered model provider")
}

// Alias maps an alias to a provider, e.g. Alias("sonnet", "anthropic").
func (r *Registry) Alias(alias, provider string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.aliases[alias] = provider
}

// SetFallback sets the provider used when no name or alias matches.
func (r *Registry) SetFallback(provider string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.fallback = provider
}

// Resolve returns the Gateway for a model reference and the concrete model
// name to request ("" means the provider's configured model).
//
// A reference is either "provider/model" or a bare name resolved by:
// exact provider name → alias → fallback.
func (r *Registry) Resolve(ref string) (Gateway, string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if provider, model, ok := strings.Cut(ref, "/"); ok {
		if g, ok := r.gateways[provider]; ok {
			return g, model, nil
		}
	}

	if g, ok := r.gateways[ref]; ok {
		return g, "", nil
	}

	if provider, ok := r.aliases[ref]; ok {
		if g, ok := r.gateways[provider]; ok {
			return g, "", nil
		}
	}

	if r.fallback != "" {
		if g, ok := r.gateways[r.fallback]; ok {
			return g, "", nil
		}
	}

	return nil, "", fmt.Errorf("no model provider for %q", ref)
}

// List returns all registered provider names, sorted.
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.gateways))
	for n := range r.gateways {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// NewRegistryFromConfig builds a Registry with one gateway per configured
// provider. The first provider named by agent.model (before any "/") becomes
// the fallback when it is registered.
func NewRegistryFromConfig(cfg config.Config, log *logging.Logger) (*Registry, error) {
	reg := NewRegistry(log)
	p := cfg.Providers

	if p.OpenAI != nil {
		reg.Register("openai", NewOpenAIGateway(*p.OpenAI, log))
		aliasAll(reg, "openai", p.OpenAI.Aliases)
	}
	if p.Anthropic != nil {
		reg.Register("anthropic", NewAnthropicGateway(*p.Anthropic, log))
		aliasAll(reg, "anthropic", p.Anthropic.Aliases)
	}
	if p.Ollama != nil {
		g, err := NewOllamaGateway(*p.Ollama, log)
		if err != nil {
			return nil, err
		}
		reg.Register("ollama", g)
		aliasAll(reg, "ollama", p.Ollama.Aliases)
	}
	if p.Gemini != nil {
		reg.Register("gemini", NewGeminiGateway(*p.Gemini, log))
		aliasAll(reg, "gemini", p.Gemini.Aliases)
	}

	primary, _, _ := strings.Cut(cfg.Agent.Model, "/")
	if target, ok := reg.aliases[primary]; ok {
		primary = target
	}
	if _, ok := reg.gateways[primary]; ok {
		reg.SetFallback(primary)
	}

	return reg, nil
}

func aliasAll(reg *Registry, provider string, aliases []string) {
	for _, a := range aliases {
		reg.Alias(a, provider)
	}
}
