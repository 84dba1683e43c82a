// Package search runs web searches against a primary engine with ordered
// fallbacks.
package search

import (
	"context"
	"errors"
	"fmt"
	"strings"

	jsoniter "github.com/json-iterator/go"

	"github.com/soyeahso/actionloop/internal/config"
	"github.com/soyeahso/actionloop/internal/logging"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Item is one search result.
type Item struct {
	Title       string `json:"title"`
	URL         string `json:"url"`
	Description string `json:"description,omitempty"`
	Position    int    `json:"position"`
	Source      string `json:"source"`
}

// Engine performs a single search.
type Engine interface {
	Search(ctx context.Context, query string, num int) ([]Item, error)
	Name() string
}

// ErrNoResults is returned by Searcher when every engine came back empty.
var ErrNoResults = errors.New("no search results")

// EngineError records the failure of one engine inside a Searcher run.
type EngineError struct {
	Engine string
	Err    error
}

func (e *EngineError) Error() string { return e.Engine + ": " + e.Err.Error() }

func (e *EngineError) Unwrap() error { return e.Err }

// Searcher tries engines in order until one returns results.
type Searcher struct {
	engines    []Engine
	numResults int
	log        *logging.Logger
}

// NewSearcher creates a searcher over engines, tried in the given order.
func NewSearcher(engines []Engine, numResults int, log *logging.Logger) *Searcher {
	if numResults <= 0 {
		numResults = config.DefaultNumResults
	}
	return &Searcher{engines: engines, numResults: numResults, log: log.Sub("search")}
}

// Engines returns the engine names in try order.
func (s *Searcher) Engines() []string {
	names := make([]string, len(s.engines))
	for i, e := range s.engines {
		names[i] = e.Name()
	}
	return names
}

// Search runs query. num <= 0 uses the configured default. An engine error
// or an empty result moves on to the next engine.
func (s *Searcher) Search(ctx context.Context, query string, num int) ([]Item, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, errors.New("search query is empty")
	}
	if num <= 0 {
		num = s.numResults
	}
	if len(s.engines) == 0 {
		return nil, errors.New("no search engines configured")
	}

	var errs []error
	for _, e := range s.engines {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		items, err := e.Search(ctx, query, num)
		if err != nil {
			s.log.Warn().Str("engine", e.Name()).Err(err).Msg("search engine failed, trying next")
			errs = append(errs, &EngineError{Engine: e.Name(), Err: err})
			continue
		}
		if len(items) == 0 {
			s.log.Debug().Str("engine", e.Name()).Str("query", query).Msg("no results, trying next engine")
			continue
		}
		if len(items) > num {
			items = items[:num]
		}
		s.log.Debug().Str("engine", e.Name()).Int("results", len(items)).Msg("search complete")
		return items, nil
	}

	if len(errs) > 0 {
		return nil, fmt.Errorf("all search engines failed: %w", errors.Join(errs...))
	}
	return nil, ErrNoResults
}

// Format renders items as a numbered text list.
func Format(query string, items []Item) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Search results for: %s\n\n", query)
	if len(items) == 0 {
		b.WriteString("No results found.\n")
		return b.String()
	}
	for i, it := range items {
		fmt.Fprintf(&b, "%d. %s\n", i+1, it.Title)
		fmt.Fprintf(&b, "   URL: %s\n", it.URL)
		if it.Description != "" {
			fmt.Fprintf(&b, "   %s\n", it.Description)
		}
		b.WriteString("\n")
	}
	return b.String()
}

// NewFromConfig builds the primary engine followed by the fallbacks. An
// engine without an API key is skipped with a logged error.
func NewFromConfig(cfg config.SearchConfig, log *logging.Logger) *Searcher {
	timeout := cfg.TimeoutDuration()
	order := append([]string{cfg.Engine}, cfg.FallbackEngines...)

	seen := map[string]bool{}
	var engines []Engine
	for _, name := range order {
		name = strings.ToLower(strings.TrimSpace(name))
		if name == "" || seen[name] {
			continue
		}
		seen[name] = true

		switch name {
		case "serpapi":
			if cfg.SerpAPIKey == "" {
				log.Error().Str("engine", name).Msg("SerpAPI key is not set, engine disabled")
				continue
			}
			engines = append(engines, NewSerpAPI(cfg.SerpAPIKey, "", timeout))
		case "brave":
			if cfg.BraveAPIKey == "" {
				log.Error().Str("engine", name).Msg("Brave API key is not set, engine disabled")
				continue
			}
			engines = append(engines, NewBrave(cfg.BraveAPIKey, "", timeout))
		default:
			log.Error().Str("engine", name).Msg("unknown search engine")
		}
	}
	return NewSearcher(engines, cfg.NumResults, log)
}
