// Package toolset provides the built-in tools: final_answer and web_search.
package toolset

import (
	"context"
	"fmt"
	"math"
	"strings"

	"github.com/soyeahso/actionloop/internal/agent"
	"github.com/soyeahso/actionloop/internal/search"
	"github.com/soyeahso/actionloop/internal/tool"
)

// Searcher runs a web search. *search.Searcher satisfies it.
type Searcher interface {
	Search(ctx context.Context, query string, num int) ([]search.Item, error)
}

// FinalAnswer returns the reserved tool that ends a run. Its action returns
// the answer verbatim.
func FinalAnswer() tool.Spec {
	return tool.Spec{
		Name:        agent.FinalAnswerTool,
		Description: "Provides the final answer to the task and ends the run.",
		Params: tool.Schema{
			"answer": {Type: "string", Description: "The complete final answer.", Required: true},
		},
		Action: func(ctx context.Context, args map[string]any) (string, error) {
			switch v := args["answer"].(type) {
			case string:
				return v, nil
			case nil:
				return "", nil
			default:
				return fmt.Sprint(v), nil
			}
		},
	}
}

// WebSearch returns a tool that searches the web through s.
func WebSearch(s Searcher) tool.Spec {
	return tool.Spec{
		Name:        "web_search",
		Description: "Searches the web and returns a numbered list of results with titles, URLs and descriptions.",
		Params: tool.Schema{
			"query":       {Type: "string", Description: "The search query.", Required: true},
			"num_results": {Type: "integer", Description: "Number of results to return (default 5)."},
		},
		Action: func(ctx context.Context, args map[string]any) (string, error) {
			query, _ := args["query"].(string)
			query = strings.TrimSpace(query)
			if query == "" {
				return "", fmt.Errorf("query must be a non-empty string")
			}
			num, err := intArg(args, "num_results")
			if err != nil {
				return "", err
			}
			items, err := s.Search(ctx, query, num)
			if err != nil {
				return "", err
			}
			return search.Format(query, items), nil
		},
	}
}

// intArg reads an optional integer argument. JSON numbers arrive as float64.
func intArg(args map[string]any, key string) (int, error) {
	switch v := args[key].(type) {
	case nil:
		return 0, nil
	case float64:
		if v != math.Trunc(v) {
			return 0, fmt.Errorf("%s must be an integer", key)
		}
		return int(v), nil
	case int:
		return v, nil
	default:
		return 0, fmt.Errorf("%s must be an integer", key)
	}
}

// Register adds the built-in tools to reg. web_search is skipped when s is nil.
func Register(reg *tool.Registry, s Searcher) error {
	if err := reg.Register(FinalAnswer()); err != nil {
		return err
	}
	if s != nil {
		if err := reg.Register(WebSearch(s)); err != nil {
			return err
		}
	}
	return nil
}
