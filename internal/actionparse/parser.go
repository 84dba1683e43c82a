// Package actionparse recovers a tool call that a model wrote into its text
// reply instead of returning it as a structured call.
//
// The grammar is a line containing only the marker (default "Action:")
// followed by a single JSON object:
//
//	Action:
//	{"name": "web_search", "arguments": {"query": "golang"}}
//
// The object may span several lines and may sit inside a Markdown code
// fence. Anything after the object is ignored.
package actionparse

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
	jsoniter "github.com/json-iterator/go"

	"github.com/soyeahso/actionloop/internal/llm"
	"github.com/soyeahso/actionloop/internal/memory"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// DefaultMarker introduces an embedded action.
const DefaultMarker = "Action:"

// MalformedActionError is returned when the text after the marker is not a
// usable action object.
type MalformedActionError struct {
	Reason string
	Err    error
}

func (e *MalformedActionError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("malformed action: %s: %v", e.Reason, e.Err)
	}
	return "malformed action: " + e.Reason
}

func (e *MalformedActionError) Unwrap() error { return e.Err }

// Validator checks a call against the tool catalog. *tool.Registry satisfies it.
type Validator interface {
	Validate(name string, args map[string]any) error
}

// Parser extracts embedded actions from assistant text.
type Parser struct {
	marker    string
	validator Validator
}

// Option configures a Parser.
type Option func(*Parser)

// WithMarker overrides the marker line.
func WithMarker(marker string) Option {
	return func(p *Parser) {
		if m := strings.TrimSpace(marker); m != "" {
			p.marker = m
		}
	}
}

// New creates a parser that validates against v.
func New(v Validator, opts ...Option) *Parser {
	p := &Parser{marker: DefaultMarker, validator: v}
	for _, o := range opts {
		o(p)
	}
	return p
}

// Marker returns the configured marker line.
func (p *Parser) Marker() string { return p.marker }

// Applies reports whether text parsing should run for msg under choice:
// tools were offered, no structured calls came back, and there is text.
func Applies(choice llm.ToolChoice, msg *llm.AssistantMessage) bool {
	if choice != llm.ToolChoiceAuto && choice != llm.ToolChoiceRequired {
		return false
	}
	return msg != nil && len(msg.ToolCalls) == 0 && strings.TrimSpace(msg.Content) != ""
}

// Parse looks for an embedded action in text.
//
// No marker line yields (nil, nil). A malformed object yields
// (nil, *MalformedActionError). An unknown tool or missing required
// arguments yield the single call together with the validation error, so
// the caller can record the error as that call's outcome.
func (p *Parser) Parse(text string) ([]memory.ToolCall, error) {
	body, ok := p.afterMarker(text)
	if !ok {
		return nil, nil
	}

	body = stripFence(body)
	if !strings.HasPrefix(body, "{") {
		return nil, &MalformedActionError{Reason: "expected a JSON object after " + p.marker}
	}

	var obj map[string]jsoniter.RawMessage
	if err := json.NewDecoder(strings.NewReader(body)).Decode(&obj); err != nil {
		return nil, &MalformedActionError{Reason: "invalid JSON", Err: err}
	}

	rawName, ok := obj["name"]
	if !ok {
		return nil, &MalformedActionError{Reason: `missing "name" field`}
	}
	var name string
	if err := json.Unmarshal(rawName, &name); err != nil || strings.TrimSpace(name) == "" {
		return nil, &MalformedActionError{Reason: `"name" must be a non-empty string`}
	}

	rawArgs, ok := obj["arguments"]
	if !ok {
		return nil, &MalformedActionError{Reason: `missing "arguments" field`}
	}
	var args map[string]any
	if err := json.Unmarshal(rawArgs, &args); err != nil || args == nil {
		return nil, &MalformedActionError{Reason: `"arguments" must be a JSON object`}
	}

	call := memory.ToolCall{
		ID:        uuid.NewString(),
		Name:      name,
		Arguments: args,
		Origin:    memory.OriginParsed,
	}
	if p.validator != nil {
		if err := p.validator.Validate(name, args); err != nil {
			return []memory.ToolCall{call}, err
		}
	}
	return []memory.ToolCall{call}, nil
}

// afterMarker returns the text following the first line that equals the
// marker, ignoring surrounding whitespace.
func (p *Parser) afterMarker(text string) (string, bool) {
	lines := strings.Split(text, "\n")
	for i, line := range lines {
		if strings.TrimSpace(line) == p.marker {
			return strings.TrimSpace(strings.Join(lines[i+1:], "\n")), true
		}
	}
	return "", false
}

// stripFence drops an opening Markdown fence line such as "```json".
func stripFence(body string) string {
	if !strings.HasPrefix(body, "```") {
		return body
	}
	nl := strings.IndexByte(body, '\n')
	if nl < 0 {
		return ""
	}
	return strings.TrimSpace(body[nl+1:])
}
