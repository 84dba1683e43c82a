package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/ollama/ollama/api"

	"github.com/soyeahso/actionloop/internal/config"
	"github.com/soyeahso/actionloop/internal/logging"
)

const (
	defaultOllamaURL   = "http://localhost:11434"
	defaultOllamaModel = "llama3.1"
)

// OllamaGateway talks to a local or remote Ollama server.
//
// Ollama has no tool_choice control: "none" drops the tool list, and
// "required" is left to the system prompt.
type OllamaGateway struct {
	client *api.Client
	model  string
	log    *logging.Logger
}

// NewOllamaGateway creates an Ollama gateway from a provider entry.
func NewOllamaGateway(entry config.ProviderEntry, log *logging.Logger) (*OllamaGateway, error) {
	base := entry.BaseURL
	if base == "" {
		base = defaultOllamaURL
	}
	u, err := url.Parse(base)
	if err != nil {
		return nil, fmt.Errorf("invalid ollama base URL: %w", err)
	}

	model := entry.Model
	if model == "" {
		model = defaultOllamaModel
	}
	return &OllamaGateway{
		client: api.NewClient(u, &http.Client{}),
		model:  model,
		log:    log.Sub("llm.ollama"),
	}, nil
}

// Name returns the provider name.
func (o *OllamaGateway) Name() string { return "ollama" }

// ollamaToolCall mirrors the wire shape of an Ollama tool call so the
// conversion does not depend on the SDK's Go field layout.
type ollamaToolCall struct {
	ID       string `json:"id,omitempty"`
	Function struct {
		Name      string         `json:"name"`
		Arguments map[string]any `json:"arguments"`
	} `json:"function"`
}

// Complete sends one non-streaming chat request.
func (o *OllamaGateway) Complete(ctx context.Context, req Request) (*AssistantMessage, error) {
	start := time.Now()
	model := modelOrDefault(req, o.model)

	messages, err := toOllamaMessages(req.History)
	if err != nil {
		return nil, &ModelUnavailableError{Provider: o.Name(), Message: "converting history", Err: err}
	}

	stream := false
	creq := &api.ChatRequest{
		Model:    model,
		Messages: messages,
		Stream:   &stream,
		Options:  map[string]any{"num_predict": maxTokensOrDefault(req)},
	}
	if req.Temperature != nil {
		creq.Options["temperature"] = *req.Temperature
	}
	if len(req.Tools) > 0 && req.ToolChoice != ToolChoiceNone {
		tools, err := toOllamaTools(req.Tools)
		if err != nil {
			return nil, &ModelUnavailableError{Provider: o.Name(), Message: "converting tools", Err: err}
		}
		creq.Tools = tools
	}

	var final api.ChatResponse
	var content string
	var calls []api.ToolCall
	err = o.client.Chat(ctx, creq, func(resp api.ChatResponse) error {
		content += resp.Message.Content
		calls = append(calls, resp.Message.ToolCalls...)
		if resp.Done {
			final = resp
		}
		return nil
	})
	if err != nil {
		return nil, unavailable(o.Name(), ollamaStatus(err), err)
	}

	out := &AssistantMessage{
		Role:       RoleAssistant,
		Content:    content,
		Model:      final.Model,
		StopReason: final.DoneReason,
		Provider:   o.Name(),
		Usage: Usage{
			InputTokens:  final.PromptEvalCount,
			OutputTokens: final.EvalCount,
		},
	}
	if out.Model == "" {
		out.Model = model
	}

	if len(calls) > 0 {
		raw, err := json.Marshal(calls)
		if err != nil {
			return nil, &ModelUnavailableError{Provider: o.Name(), Message: "decoding tool calls", Err: err}
		}
		var decoded []ollamaToolCall
		if err := json.Unmarshal(raw, &decoded); err != nil {
			return nil, &ModelUnavailableError{Provider: o.Name(), Message: "decoding tool calls", Err: err}
		}
		for _, tc := range decoded {
			args, err := json.Marshal(tc.Function.Arguments)
			if err != nil {
				args = []byte("{}")
			}
			out.ToolCalls = append(out.ToolCalls, ToolCall{
				ID:        tc.ID,
				Name:      tc.Function.Name,
				Arguments: string(args),
			})
		}
	}

	o.log.Debug().
		Str("model", model).
		Int("toolCalls", len(out.ToolCalls)).
		Dur("duration", time.Since(start)).
		Msg("completion received")
	return out, nil
}

// toOllamaMessages converts history through its JSON wire form.
func toOllamaMessages(history []Message) ([]api.Message, error) {
	wire := make([]map[string]any, 0, len(history))
	for _, m := range history {
		w := map[string]any{"role": m.Role, "content": m.Content}
		switch m.Role {
		case RoleTool:
			if m.Name != "" {
				w["tool_name"] = m.Name
			}
		case RoleAssistant:
			if len(m.ToolCalls) > 0 {
				calls := make([]map[string]any, 0, len(m.ToolCalls))
				for _, tc := range m.ToolCalls {
					args := map[string]any{}
					if tc.Arguments != "" {
						_ = json.Unmarshal([]byte(tc.Arguments), &args)
					}
					calls = append(calls, map[string]any{
						"function": map[string]any{"name": tc.Name, "arguments": args},
					})
				}
				w["tool_calls"] = calls
			}
		}
		wire = append(wire, w)
	}

	raw, err := json.Marshal(wire)
	if err != nil {
		return nil, err
	}
	var msgs []api.Message
	if err := json.Unmarshal(raw, &msgs); err != nil {
		return nil, err
	}
	return msgs, nil
}

func toOllamaTools(defs []ToolDefinition) (api.Tools, error) {
	wire := make([]map[string]any, len(defs))
	for i, d := range defs {
		wire[i] = map[string]any{
			"type": "function",
			"function": map[string]any{
				"name":        d.Name,
				"description": d.Description,
				"parameters":  d.Parameters,
			},
		}
	}

	raw, err := json.Marshal(wire)
	if err != nil {
		return nil, err
	}
	var tools api.Tools
	if err := json.Unmarshal(raw, &tools); err != nil {
		return nil, err
	}
	return tools, nil
}

func ollamaStatus(err error) int {
	var se api.StatusError
	if errors.As(err, &se) {
		return se.StatusCode
	}
	var sep *api.StatusError
	if errors.As(err, &sep) {
		return sep.StatusCode
	}
	return 0
}
