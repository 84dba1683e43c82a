package llm

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/soyeahso/actionloop/internal/config"
	"github.com/soyeahso/actionloop/internal/logging"
)

const defaultAnthropicModel = "claude-sonnet-4-5"

// AnthropicGateway talks to the Anthropic Messages API with tool use.
type AnthropicGateway struct {
	client *anthropic.Client
	model  string
	log    *logging.Logger
}

// NewAnthropicGateway creates an Anthropic gateway from a provider entry.
func NewAnthropicGateway(entry config.ProviderEntry, log *logging.Logger) *AnthropicGateway {
	opts := []option.RequestOption{option.WithAPIKey(entry.APIKey)}
	if entry.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(entry.BaseURL))
	}
	cl := anthropic.NewClient(opts...)

	model := entry.Model
	if model == "" {
		model = defaultAnthropicModel
	}
	return &AnthropicGateway{
		client: &cl,
		model:  model,
		log:    log.Sub("llm.anthropic"),
	}
}

// Name returns the provider name.
func (a *AnthropicGateway) Name() string { return "anthropic" }

// Complete sends one Messages request.
func (a *AnthropicGateway) Complete(ctx context.Context, req Request) (*AssistantMessage, error) {
	start := time.Now()
	model := modelOrDefault(req, a.model)
	system, rest := splitSystem(req.History)

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(model),
		MaxTokens: int64(maxTokensOrDefault(req)),
		Messages:  toAnthropicMessages(rest),
	}
	if system != "" {
		params.System = []anthropic.TextBlockParam{{Text: system}}
	}
	if req.Temperature != nil {
		params.Temperature = anthropic.Float(*req.Temperature)
	}
	if len(req.Tools) > 0 {
		params.Tools = toAnthropicTools(req.Tools)
		switch req.ToolChoice {
		case ToolChoiceRequired:
			params.ToolChoice = anthropic.ToolChoiceUnionParam{OfAny: &anthropic.ToolChoiceAnyParam{}}
		case ToolChoiceNone:
			params.ToolChoice = anthropic.ToolChoiceUnionParam{OfNone: &anthropic.ToolChoiceNoneParam{}}
		case ToolChoiceAuto:
			params.ToolChoice = anthropic.ToolChoiceUnionParam{OfAuto: &anthropic.ToolChoiceAutoParam{}}
		}
	}

	msg, err := a.client.Messages.New(ctx, params)
	if err != nil {
		return nil, unavailable(a.Name(), anthropicStatus(err), err)
	}

	out := &AssistantMessage{
		Role:       RoleAssistant,
		Model:      string(msg.Model),
		StopReason: string(msg.StopReason),
		Provider:   a.Name(),
		Usage: Usage{
			InputTokens:  int(msg.Usage.InputTokens),
			OutputTokens: int(msg.Usage.OutputTokens),
		},
	}

	var text strings.Builder
	for _, cb := range msg.Content {
		switch b := cb.AsAny().(type) {
		case anthropic.TextBlock:
			text.WriteString(b.Text)
		case anthropic.ToolUseBlock:
			out.ToolCalls = append(out.ToolCalls, ToolCall{
				ID:        b.ID,
				Name:      b.Name,
				Arguments: string(b.Input),
			})
		}
	}
	out.Content = text.String()

	a.log.Debug().
		Str("model", model).
		Int("toolCalls", len(out.ToolCalls)).
		Dur("duration", time.Since(start)).
		Msg("completion received")
	return out, nil
}

// toAnthropicMessages converts history into alternating user/assistant
// turns. Consecutive tool results and user observations are merged into
// one user turn so every tool_result directly follows its tool_use.
func toAnthropicMessages(history []Message) []anthropic.MessageParam {
	var msgs []anthropic.MessageParam
	var pending []anthropic.ContentBlockParamUnion

	flush := func() {
		if len(pending) > 0 {
			msgs = append(msgs, anthropic.NewUserMessage(pending...))
			pending = nil
		}
	}

	for _, m := range history {
		switch m.Role {
		case RoleAssistant:
			flush()
			var blocks []anthropic.ContentBlockParamUnion
			if m.Content != "" {
				blocks = append(blocks, anthropic.NewTextBlock(m.Content))
			}
			for _, tc := range m.ToolCalls {
				var input any = map[string]any{}
				if tc.Arguments != "" {
					var decoded any
					if err := json.Unmarshal([]byte(tc.Arguments), &decoded); err == nil {
						input = decoded
					}
				}
				blocks = append(blocks, anthropic.NewToolUseBlock(tc.ID, input, tc.Name))
			}
			if len(blocks) == 0 {
				blocks = append(blocks, anthropic.NewTextBlock("(no content)"))
			}
			msgs = append(msgs, anthropic.NewAssistantMessage(blocks...))
		case RoleTool:
			pending = append(pending, anthropic.NewToolResultBlock(m.ToolCallID, m.Content, false))
		default:
			pending = append(pending, anthropic.NewTextBlock(m.Content))
		}
	}
	flush()
	return msgs
}

func toAnthropicTools(defs []ToolDefinition) []anthropic.ToolUnionParam {
	tools := make([]anthropic.ToolUnionParam, len(defs))
	for i, d := range defs {
		schema := anthropic.ToolInputSchemaParam{Properties: d.Parameters["properties"]}
		if req, ok := d.Parameters["required"].([]string); ok {
			schema.Required = req
		}
		tools[i] = anthropic.ToolUnionParam{OfTool: &anthropic.ToolParam{
			Name:        d.Name,
			Description: anthropic.String(d.Description),
			InputSchema: schema,
		}}
	}
	return tools
}

func anthropicStatus(err error) int {
	var apiErr *anthropic.Error
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode
	}
	return 0
}
