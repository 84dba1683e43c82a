// Package memory records the ordered, append-only step history of one run
// and renders it back into model messages.
package memory

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/soyeahso/actionloop/internal/llm"
)

// Origin tells where a canonical tool call came from.
type Origin string

const (
	OriginStructured Origin = "structured"
	OriginParsed     Origin = "parsed-from-text"
)

// ToolCall is the canonical form of one requested tool invocation.
type ToolCall struct {
	ID        string         `json:"id"`
	Name      string         `json:"name"`
	Arguments map[string]any `json:"arguments"`
	Origin    Origin         `json:"origin"`
}

// Outcome is the result of executing one ToolCall: a value or an error.
type Outcome struct {
	CallID   string        `json:"callId"`
	Value    string        `json:"value,omitempty"`
	Err      error         `json:"-"`
	Duration time.Duration `json:"duration"`
}

// OK reports whether the call succeeded.
func (o Outcome) OK() bool { return o.Err == nil }

// Text renders the outcome as an observation string.
func (o Outcome) Text() string {
	if o.Err != nil {
		return "Error: " + o.Err.Error()
	}
	return o.Value
}

// StepRecord is one completed step. Outcomes[i] belongs to Calls[i].
type StepRecord struct {
	Index      int                  `json:"index"`
	Message    llm.AssistantMessage `json:"message"`
	ToolChoice llm.ToolChoice       `json:"toolChoice"`
	Calls      []ToolCall           `json:"calls"`
	Outcomes   []Outcome            `json:"outcomes"`
	ParseError error                `json:"-"`
	Terminal   bool                 `json:"terminal"`
	StartedAt  time.Time            `json:"startedAt"`
	FinishedAt time.Time            `json:"finishedAt"`
}

// TextOnly reports whether the step produced no canonical tool calls.
func (r StepRecord) TextOnly() bool { return len(r.Calls) == 0 }

var (
	// ErrOutOfSequence is returned when a record's index is not len+1.
	ErrOutOfSequence = errors.New("step record out of sequence")
	// ErrOutcomeMismatch is returned when a record has a different number
	// of outcomes than calls.
	ErrOutcomeMismatch = errors.New("step record outcomes do not match calls")
)

const noActionNudge = "Observation: no action was taken. Call a tool to make progress, or call final_answer with your answer."

// Memory is the per-run step log. The engine is its only writer.
type Memory struct {
	mu           sync.RWMutex
	systemPrompt string
	task         string
	records      []StepRecord
}

// New creates an empty memory whose history starts with the system prompt
// (omitted when empty) and the user task.
func New(systemPrompt, task string) *Memory {
	return &Memory{systemPrompt: systemPrompt, task: task}
}

// Task returns the user task the run was started with.
func (m *Memory) Task() string { return m.task }

// Append adds the next record. Its Index must be Len()+1.
func (m *Memory) Append(rec StepRecord) error {
	if len(rec.Outcomes) != len(rec.Calls) {
		return fmt.Errorf("%w: %d calls, %d outcomes", ErrOutcomeMismatch, len(rec.Calls), len(rec.Outcomes))
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if want := len(m.records) + 1; rec.Index != want {
		return fmt.Errorf("%w: got index %d, want %d", ErrOutOfSequence, rec.Index, want)
	}
	m.records = append(m.records, rec)
	return nil
}

// Len returns the number of recorded steps.
func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.records)
}

// Latest returns the most recent record.
func (m *Memory) Latest() (StepRecord, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if len(m.records) == 0 {
		return StepRecord{}, false
	}
	return m.records[len(m.records)-1], true
}

// Records returns a copy of all records in order.
func (m *Memory) Records() []StepRecord {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]StepRecord(nil), m.records...)
}

// History renders the conversation for the next model call: the prelude,
// then per record the assistant turn followed by one result message per call.
func (m *Memory) History() []llm.Message {
	m.mu.RLock()
	defer m.mu.RUnlock()

	msgs := make([]llm.Message, 0, 2+3*len(m.records))
	if m.systemPrompt != "" {
		msgs = append(msgs, llm.Message{Role: llm.RoleSystem, Content: m.systemPrompt})
	}
	msgs = append(msgs, llm.Message{Role: llm.RoleUser, Content: m.task})

	for _, rec := range m.records {
		msgs = append(msgs, assistantTurn(rec))

		for i, call := range rec.Calls {
			out := rec.Outcomes[i]
			if call.Origin == OriginStructured {
				msgs = append(msgs, llm.Message{
					Role:       llm.RoleTool,
					Content:    out.Text(),
					ToolCallID: call.ID,
					Name:       call.Name,
				})
				continue
			}
			msgs = append(msgs, llm.Message{
				Role:    llm.RoleUser,
				Content: "Observation: " + out.Text(),
			})
		}

		switch {
		case rec.ParseError != nil:
			msgs = append(msgs, llm.Message{
				Role:    llm.RoleUser,
				Content: "Observation: your action could not be parsed: " + rec.ParseError.Error(),
			})
		case len(rec.Calls) == 0 && !rec.Terminal:
			msgs = append(msgs, llm.Message{Role: llm.RoleUser, Content: noActionNudge})
		}
	}
	return msgs
}

// assistantTurn rebuilds the assistant message, carrying structured calls
// under their canonical ids so tool results pair up with them.
func assistantTurn(rec StepRecord) llm.Message {
	msg := llm.Message{Role: llm.RoleAssistant, Content: rec.Message.Content}
	for i, tc := range rec.Message.ToolCalls {
		if i >= len(rec.Calls) || rec.Calls[i].Origin != OriginStructured {
			break
		}
		tc.ID = rec.Calls[i].ID
		msg.ToolCalls = append(msg.ToolCalls, tc)
	}
	return msg
}
