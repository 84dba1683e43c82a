package llm

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/soyeahso/actionloop/internal/config"
	"github.com/soyeahso/actionloop/internal/logging"
)

const (
	defaultGeminiURL   = "https://generativelanguage.googleapis.com/v1beta"
	defaultGeminiModel = "gemini-2.0-flash"
)

// GeminiGateway is a direct HTTP client for the Gemini generateContent API
// with function calling.
type GeminiGateway struct {
	apiKey  string
	baseURL string
	model   string
	client  *http.Client
	log     *logging.Logger
}

// NewGeminiGateway creates a Gemini gateway from a provider entry.
func NewGeminiGateway(entry config.ProviderEntry, log *logging.Logger) *GeminiGateway {
	base := entry.BaseURL
	if base == "" {
		base = defaultGeminiURL
	}
	model := entry.Model
	if model == "" {
		model = defaultGeminiModel
	}
	return &GeminiGateway{
		apiKey:  entry.APIKey,
		baseURL: strings.TrimRight(base, "/"),
		model:   model,
		client:  &http.Client{},
		log:     log.Sub("llm.gemini"),
	}
}

// Name returns the provider name.
func (g *GeminiGateway) Name() string { return "gemini" }

// Complete sends one generateContent request.
func (g *GeminiGateway) Complete(ctx context.Context, req Request) (*AssistantMessage, error) {
	start := time.Now()
	model := modelOrDefault(req, g.model)

	payload, err := json.Marshal(g.buildRequestBody(req))
	if err != nil {
		return nil, &ModelUnavailableError{Provider: g.Name(), Message: "failed to marshal request", Err: err}
	}

	endpoint := fmt.Sprintf("%s/models/%s:generateContent?key=%s", g.baseURL, model, url.QueryEscape(g.apiKey))
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, &ModelUnavailableError{Provider: g.Name(), Message: "failed to create request", Err: err}
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := g.client.Do(httpReq)
	if err != nil {
		return nil, unavailable(g.Name(), 0, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, unavailable(g.Name(), resp.StatusCode, err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, &ModelUnavailableError{
			Provider: g.Name(),
			Code:     resp.StatusCode,
			Message:  fmt.Sprintf("API error: %s", strings.TrimSpace(string(respBody))),
		}
	}

	var result geminiResponse
	if err := json.Unmarshal(respBody, &result); err != nil {
		return nil, &ModelUnavailableError{Provider: g.Name(), Message: "failed to parse response", Err: err}
	}
	if len(result.Candidates) == 0 {
		return nil, &ModelUnavailableError{Provider: g.Name(), Message: "no candidates in response"}
	}

	out := g.toAssistantMessage(&result, model)
	g.log.Debug().
		Str("model", model).
		Int("toolCalls", len(out.ToolCalls)).
		Dur("duration", time.Since(start)).
		Msg("completion received")
	return out, nil
}

func (g *GeminiGateway) buildRequestBody(req Request) geminiRequest {
	system, rest := splitSystem(req.History)

	body := geminiRequest{
		Contents: toGeminiContents(rest),
		GenerationConfig: &geminiGenerationConfig{
			MaxOutputTokens: maxTokensOrDefault(req),
			Temperature:     req.Temperature,
		},
	}
	if system != "" {
		body.SystemInstruction = &geminiContent{Parts: []geminiPart{{Text: system}}}
	}

	if len(req.Tools) > 0 {
		decls := make([]geminiFunctionDeclaration, len(req.Tools))
		for i, t := range req.Tools {
			decls[i] = geminiFunctionDeclaration{
				Name:        t.Name,
				Description: t.Description,
				Parameters:  t.Parameters,
			}
		}
		body.Tools = []geminiTool{{FunctionDeclarations: decls}}

		mode := "AUTO"
		switch req.ToolChoice {
		case ToolChoiceRequired:
			mode = "ANY"
		case ToolChoiceNone:
			mode = "NONE"
		}
		body.ToolConfig = &geminiToolConfig{FunctionCallingConfig: geminiFunctionCallingConfig{Mode: mode}}
	}
	return body
}

// toGeminiContents maps roles onto Gemini's user/model turns. Tool results
// become functionResponse parts; consecutive user-side parts share a turn.
func toGeminiContents(history []Message) []geminiContent {
	var contents []geminiContent
	appendPart := func(role string, p geminiPart) {
		if n := len(contents); n > 0 && contents[n-1].Role == role && role == "user" {
			contents[n-1].Parts = append(contents[n-1].Parts, p)
			return
		}
		contents = append(contents, geminiContent{Role: role, Parts: []geminiPart{p}})
	}

	for _, m := range history {
		switch m.Role {
		case RoleAssistant:
			c := geminiContent{Role: "model"}
			if m.Content != "" {
				c.Parts = append(c.Parts, geminiPart{Text: m.Content})
			}
			for _, tc := range m.ToolCalls {
				args := map[string]any{}
				if tc.Arguments != "" {
					_ = json.Unmarshal([]byte(tc.Arguments), &args)
				}
				c.Parts = append(c.Parts, geminiPart{FunctionCall: &geminiFunctionCall{ID: tc.ID, Name: tc.Name, Args: args}})
			}
			if len(c.Parts) == 0 {
				c.Parts = []geminiPart{{Text: "(no content)"}}
			}
			contents = append(contents, c)
		case RoleTool:
			appendPart("user", geminiPart{FunctionResponse: &geminiFunctionResponse{
				ID:       m.ToolCallID,
				Name:     m.Name,
				Response: map[string]any{"result": m.Content},
			}})
		default:
			appendPart("user", geminiPart{Text: m.Content})
		}
	}
	return contents
}

func (g *GeminiGateway) toAssistantMessage(resp *geminiResponse, model string) *AssistantMessage {
	candidate := resp.Candidates[0]
	out := &AssistantMessage{
		Role:       RoleAssistant,
		Model:      model,
		StopReason: candidate.FinishReason,
		Provider:   g.Name(),
		Usage: Usage{
			InputTokens:  resp.UsageMetadata.PromptTokenCount,
			OutputTokens: resp.UsageMetadata.CandidatesTokenCount,
		},
	}
	if resp.ModelVersion != "" {
		out.Model = resp.ModelVersion
	}

	var content strings.Builder
	for _, part := range candidate.Content.Parts {
		if part.Text != "" {
			content.WriteString(part.Text)
		}
		if part.FunctionCall != nil {
			args, err := json.Marshal(part.FunctionCall.Args)
			if err != nil || part.FunctionCall.Args == nil {
				args = []byte("{}")
			}
			out.ToolCalls = append(out.ToolCalls, ToolCall{
				ID:        part.FunctionCall.ID,
				Name:      part.FunctionCall.Name,
				Arguments: string(args),
			})
		}
	}
	out.Content = content.String()
	return out
}

// Wire structures

type geminiRequest struct {
	Contents          []geminiContent         `json:"contents"`
	SystemInstruction *geminiContent          `json:"systemInstruction,omitempty"`
	Tools             []geminiTool            `json:"tools,omitempty"`
	ToolConfig        *geminiToolConfig       `json:"toolConfig,omitempty"`
	GenerationConfig  *geminiGenerationConfig `json:"generationConfig,omitempty"`
}

type geminiContent struct {
	Role  string       `json:"role,omitempty"`
	Parts []geminiPart `json:"parts"`
}

type geminiPart struct {
	Text             string                  `json:"text,omitempty"`
	FunctionCall     *geminiFunctionCall     `json:"functionCall,omitempty"`
	FunctionResponse *geminiFunctionResponse `json:"functionResponse,omitempty"`
}

type geminiFunctionCall struct {
	ID   string         `json:"id,omitempty"`
	Name string         `json:"name"`
	Args map[string]any `json:"args"`
}

type geminiFunctionResponse struct {
	ID       string         `json:"id,omitempty"`
	Name     string         `json:"name"`
	Response map[string]any `json:"response"`
}

type geminiTool struct {
	FunctionDeclarations []geminiFunctionDeclaration `json:"functionDeclarations"`
}

type geminiFunctionDeclaration struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  map[string]any `json:"parameters,omitempty"`
}

type geminiToolConfig struct {
	FunctionCallingConfig geminiFunctionCallingConfig `json:"functionCallingConfig"`
}

type geminiFunctionCallingConfig struct {
	Mode string `json:"mode"`
}

type geminiGenerationConfig struct {
	MaxOutputTokens int      `json:"maxOutputTokens,omitempty"`
	Temperature     *float64 `json:"temperature,omitempty"`
}

type geminiResponse struct {
	Candidates    []geminiCandidate `json:"candidates"`
	ModelVersion  string            `json:"modelVersion,omitempty"`
	UsageMetadata struct {
		PromptTokenCount     int `json:"promptTokenCount"`
		CandidatesTokenCount int `json:"candidatesTokenCount"`
	} `json:"usageMetadata"`
}

type geminiCandidate struct {
	Content      geminiContent `json:"content"`
	FinishReason string        `json:"finishReason"`
}
