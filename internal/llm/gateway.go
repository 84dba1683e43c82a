// Package llm defines the model gateway contract and its provider
// implementations (OpenAI-compatible, Anthropic, Ollama, Gemini).
//
// A Gateway turns a conversation history plus a tool catalog into one
// assistant message. Structured tool calls are returned exactly as the
// provider produced them; interpreting them is the caller's job.
package llm

import (
	"context"

	jsoniter "github.com/json-iterator/go"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Role constants for messages.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleTool      = "tool"
)

// ToolChoice constrains whether the model must, may, or must not call a tool.
type ToolChoice string

const (
	ToolChoiceAuto     ToolChoice = "auto"
	ToolChoiceRequired ToolChoice = "required"
	ToolChoiceNone     ToolChoice = "none"
)

// Message is a single turn in a conversation.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`

	// ToolCalls is set on assistant turns that requested structured calls.
	ToolCalls []ToolCall `json:"toolCalls,omitempty"`
	// ToolCallID and Name are set on role "tool" result messages.
	ToolCallID string `json:"toolCallId,omitempty"`
	Name       string `json:"name,omitempty"`
}

// ToolDefinition describes a tool the model can invoke. Parameters is a
// JSON Schema object ({"type":"object","properties":{...},"required":[...]}).
type ToolDefinition struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  map[string]any `json:"parameters"`
}

// ToolCall is a structured request to invoke a tool, as returned by the
// provider. Arguments is the raw JSON argument string.
type ToolCall struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

// Usage tracks token consumption.
type Usage struct {
	InputTokens  int `json:"inputTokens"`
	OutputTokens int `json:"outputTokens"`
}

// AssistantMessage is the model's reply for one step.
type AssistantMessage struct {
	Role       string     `json:"role"`
	Content    string     `json:"content,omitempty"`
	ToolCalls  []ToolCall `json:"toolCalls,omitempty"`
	Usage      Usage      `json:"usage"`
	Model      string     `json:"model,omitempty"`
	StopReason string     `json:"stopReason,omitempty"`
	Provider   string     `json:"provider,omitempty"`
}

// Request is the input to Gateway.Complete. History starts with the system
// prompt (role "system") when one is used.
type Request struct {
	Model       string           `json:"model,omitempty"` // overrides the provider's configured model
	History     []Message        `json:"history"`
	Tools       []ToolDefinition `json:"tools,omitempty"`
	ToolChoice  ToolChoice       `json:"toolChoice,omitempty"`
	MaxTokens   int              `json:"maxTokens,omitempty"`
	Temperature *float64         `json:"temperature,omitempty"`
}

// Gateway is the interface all model providers implement.
type Gateway interface {
	// Complete sends the history and returns one assistant message.
	// Transport and provider failures are returned as *ModelUnavailableError.
	Complete(ctx context.Context, req Request) (*AssistantMessage, error)

	// Name returns the provider name (e.g., "openai", "anthropic").
	Name() string
}

// splitSystem separates leading system messages from the rest of the history.
func splitSystem(history []Message) (string, []Message) {
	var system string
	i := 0
	for ; i < len(history) && history[i].Role == RoleSystem; i++ {
		if system != "" {
			system += "\n\n"
		}
		system += history[i].Content
	}
	return system, history[i:]
}

func modelOrDefault(req Request, fallback string) string {
	if req.Model != "" {
		return req.Model
	}
	return fallback
}

func maxTokensOrDefault(req Request) int {
	if req.MaxTokens > 0 {
		return req.MaxTokens
	}
	return 4096
}
