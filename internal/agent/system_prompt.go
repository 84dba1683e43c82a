package agent

import (
	"fmt"
	"strings"
	"time"

	"github.com/soyeahso/actionloop/internal/actionparse"
	"github.com/soyeahso/actionloop/internal/tool"
)

// FinalAnswerTool is the reserved tool name whose invocation ends a run.
const FinalAnswerTool = "final_answer"

// PromptConfig controls system prompt generation.
type PromptConfig struct {
	Tools       []tool.Spec
	Marker      string
	ExtraPrompt string
	Now         time.Time
}

// BuildSystemPrompt constructs the system prompt for the model.
func BuildSystemPrompt(cfg PromptConfig) string {
	var b strings.Builder

	now := cfg.Now
	if now.IsZero() {
		now = time.Now()
	}
	marker := cfg.Marker
	if marker == "" {
		marker = actionparse.DefaultMarker
	}

	fmt.Fprintf(&b, "Current date: %s\n\n", now.Format("2006-01-02"))

	b.WriteString("You solve the user's task step by step. At every step you call exactly one tool,\n")
	b.WriteString("read its result, and decide what to do next. When you know the answer, call\n")
	fmt.Fprintf(&b, "the %s tool with the complete answer.\n\n", FinalAnswerTool)

	b.WriteString("Guidelines:\n")
	b.WriteString("- Prefer a tool call over guessing.\n")
	b.WriteString("- If a tool returns an error, fix the arguments or try another approach.\n")
	fmt.Fprintf(&b, "- Only a %s call ends the task.\n", FinalAnswerTool)

	if len(cfg.Tools) > 0 {
		b.WriteString("\n## Available Tools\n\n")
		for _, t := range cfg.Tools {
			fmt.Fprintf(&b, "### %s\n", t.Name)
			if t.Description != "" {
				fmt.Fprintf(&b, "%s\n", t.Description)
			}
			if len(t.Params) > 0 {
				schema, err := json.Marshal(t.Params.JSONSchema())
				if err == nil {
					fmt.Fprintf(&b, "Input schema: %s\n", schema)
				}
			}
			b.WriteString("\n")
		}

		b.WriteString("## Calling tools\n\n")
		b.WriteString("Use the native tool calling interface when it is available. Otherwise write\n")
		fmt.Fprintf(&b, "a line containing only `%s` followed by one JSON object:\n\n", marker)
		fmt.Fprintf(&b, "%s\n{\"name\": \"%s\", \"arguments\": {\"answer\": \"...\"}}\n\n", marker, FinalAnswerTool)
		b.WriteString("The result is returned to you as an observation.\n")
	}

	if cfg.ExtraPrompt != "" {
		b.WriteString("\n")
		b.WriteString(cfg.ExtraPrompt)
		b.WriteString("\n")
	}

	return b.String()
}
