package llm

import (
	"context"
	"errors"
	"time"

	"github.com/sashabaranov/go-openai"

	"github.com/soyeahso/actionloop/internal/config"
	"github.com/soyeahso/actionloop/internal/logging"
)

const defaultOpenAIModel = "gpt-4o-mini"

// OpenAIGateway talks to the OpenAI chat completions API or any
// OpenAI-compatible endpoint (vLLM, LM Studio, OpenRouter) via baseUrl.
type OpenAIGateway struct {
	client *openai.Client
	model  string
	log    *logging.Logger
}

// NewOpenAIGateway creates an OpenAI gateway from a provider entry.
func NewOpenAIGateway(entry config.ProviderEntry, log *logging.Logger) *OpenAIGateway {
	cc := openai.DefaultConfig(entry.APIKey)
	if entry.BaseURL != "" {
		cc.BaseURL = entry.BaseURL
	}
	model := entry.Model
	if model == "" {
		model = defaultOpenAIModel
	}
	return &OpenAIGateway{
		client: openai.NewClientWithConfig(cc),
		model:  model,
		log:    log.Sub("llm.openai"),
	}
}

// Name returns the provider name.
func (o *OpenAIGateway) Name() string { return "openai" }

// Complete sends one chat completion request.
func (o *OpenAIGateway) Complete(ctx context.Context, req Request) (*AssistantMessage, error) {
	start := time.Now()
	model := modelOrDefault(req, o.model)

	creq := openai.ChatCompletionRequest{
		Model:     model,
		Messages:  toOpenAIMessages(req.History),
		MaxTokens: maxTokensOrDefault(req),
	}
	if req.Temperature != nil {
		creq.Temperature = float32(*req.Temperature)
	}
	if len(req.Tools) > 0 {
		creq.Tools = toOpenAITools(req.Tools)
		if req.ToolChoice != "" {
			creq.ToolChoice = string(req.ToolChoice)
		}
	}

	resp, err := o.client.CreateChatCompletion(ctx, creq)
	if err != nil {
		return nil, unavailable(o.Name(), openAIStatus(err), err)
	}
	if len(resp.Choices) == 0 {
		return nil, &ModelUnavailableError{Provider: o.Name(), Message: "no choices in response"}
	}

	choice := resp.Choices[0]
	out := &AssistantMessage{
		Role:       RoleAssistant,
		Content:    choice.Message.Content,
		Model:      resp.Model,
		StopReason: string(choice.FinishReason),
		Provider:   o.Name(),
		Usage: Usage{
			InputTokens:  resp.Usage.PromptTokens,
			OutputTokens: resp.Usage.CompletionTokens,
		},
	}
	for _, tc := range choice.Message.ToolCalls {
		out.ToolCalls = append(out.ToolCalls, ToolCall{
			ID:        tc.ID,
			Name:      tc.Function.Name,
			Arguments: tc.Function.Arguments,
		})
	}

	o.log.Debug().
		Str("model", model).
		Int("toolCalls", len(out.ToolCalls)).
		Dur("duration", time.Since(start)).
		Msg("completion received")
	return out, nil
}

func toOpenAIMessages(history []Message) []openai.ChatCompletionMessage {
	msgs := make([]openai.ChatCompletionMessage, 0, len(history))
	for _, m := range history {
		cm := openai.ChatCompletionMessage{
			Role:    m.Role,
			Content: m.Content,
		}
		switch m.Role {
		case RoleTool:
			cm.ToolCallID = m.ToolCallID
		case RoleAssistant:
			for _, tc := range m.ToolCalls {
				cm.ToolCalls = append(cm.ToolCalls, openai.ToolCall{
					ID:   tc.ID,
					Type: openai.ToolTypeFunction,
					Function: openai.FunctionCall{
						Name:      tc.Name,
						Arguments: tc.Arguments,
					},
				})
			}
		}
		msgs = append(msgs, cm)
	}
	return msgs
}

func toOpenAITools(defs []ToolDefinition) []openai.Tool {
	tools := make([]openai.Tool, len(defs))
	for i, d := range defs {
		tools[i] = openai.Tool{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name:        d.Name,
				Description: d.Description,
				Parameters:  d.Parameters,
			},
		}
	}
	return tools
}

func openAIStatus(err error) int {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return apiErr.HTTPStatusCode
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return reqErr.HTTPStatusCode
	}
	return 0
}
