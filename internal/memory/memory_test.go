package memory

import (
	"errors"
	"testing"

	"github.com/soyeahso/actionloop/internal/llm"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAppendEnforcesSequence(t *testing.T) {
	m := New("sys", "task")

	require.NoError(t, m.Append(StepRecord{Index: 1}))
	assert.ErrorIs(t, m.Append(StepRecord{Index: 1}), ErrOutOfSequence)
	assert.ErrorIs(t, m.Append(StepRecord{Index: 3}), ErrOutOfSequence)
	require.NoError(t, m.Append(StepRecord{Index: 2}))
	assert.Equal(t, 2, m.Len())
}

func TestAppendRejectsOutcomeMismatch(t *testing.T) {
	m := New("", "task")
	err := m.Append(StepRecord{Index: 1, Calls: []ToolCall{{ID: "a", Name: "x"}}})
	assert.ErrorIs(t, err, ErrOutcomeMismatch)
	assert.Zero(t, m.Len())
}

func TestLatestAndRecords(t *testing.T) {
	m := New("", "task")
	_, ok := m.Latest()
	assert.False(t, ok)

	require.NoError(t, m.Append(StepRecord{Index: 1}))
	require.NoError(t, m.Append(StepRecord{Index: 2, Terminal: true}))

	latest, ok := m.Latest()
	require.True(t, ok)
	assert.Equal(t, 2, latest.Index)
	assert.True(t, latest.Terminal)

	recs := m.Records()
	recs[0].Index = 99
	assert.Equal(t, 1, m.Records()[0].Index, "Records returns a copy")
}

func TestHistoryPrelude(t *testing.T) {
	h := New("You are an agent.", "What is 6*7?").History()
	require.Len(t, h, 2)
	assert.Equal(t, llm.Message{Role: llm.RoleSystem, Content: "You are an agent."}, h[0])
	assert.Equal(t, llm.Message{Role: llm.RoleUser, Content: "What is 6*7?"}, h[1])

	h = New("", "task").History()
	require.Len(t, h, 1)
	assert.Equal(t, llm.RoleUser, h[0].Role)
}

func TestHistoryStructuredCalls(t *testing.T) {
	m := New("", "task")
	require.NoError(t, m.Append(StepRecord{
		Index: 1,
		Message: llm.AssistantMessage{
			Role: llm.RoleAssistant,
			ToolCalls: []llm.ToolCall{
				{ID: "", Name: "web_search", Arguments: `{"query":"a"}`},
				{ID: "dup", Name: "web_search", Arguments: `{"query":"b"}`},
			},
		},
		Calls: []ToolCall{
			{ID: "generated-1", Name: "web_search", Arguments: map[string]any{"query": "a"}, Origin: OriginStructured},
			{ID: "dup", Name: "web_search", Arguments: map[string]any{"query": "b"}, Origin: OriginStructured},
		},
		Outcomes: []Outcome{
			{CallID: "generated-1", Value: "result a"},
			{CallID: "dup", Err: errors.New("quota exceeded")},
		},
	}))

	h := m.History()
	require.Len(t, h, 4)

	asst := h[1]
	assert.Equal(t, llm.RoleAssistant, asst.Role)
	require.Len(t, asst.ToolCalls, 2)
	assert.Equal(t, "generated-1", asst.ToolCalls[0].ID, "canonical id replaces the missing one")
	assert.Equal(t, `{"query":"a"}`, asst.ToolCalls[0].Arguments)

	assert.Equal(t, llm.Message{Role: llm.RoleTool, Content: "result a", ToolCallID: "generated-1", Name: "web_search"}, h[2])
	assert.Equal(t, llm.RoleTool, h[3].Role)
	assert.Equal(t, "Error: quota exceeded", h[3].Content)
}

func TestHistoryParsedCall(t *testing.T) {
	m := New("", "task")
	require.NoError(t, m.Append(StepRecord{
		Index:    1,
		Message:  llm.AssistantMessage{Role: llm.RoleAssistant, Content: "Thought.\nAction:\n{\"name\":\"web_search\",\"arguments\":{\"query\":\"x\"}}"},
		Calls:    []ToolCall{{ID: "p1", Name: "web_search", Arguments: map[string]any{"query": "x"}, Origin: OriginParsed}},
		Outcomes: []Outcome{{CallID: "p1", Value: "1. x"}},
	}))

	h := m.History()
	require.Len(t, h, 3)
	assert.Empty(t, h[1].ToolCalls)
	assert.Contains(t, h[1].Content, "Action:")
	assert.Equal(t, llm.Message{Role: llm.RoleUser, Content: "Observation: 1. x"}, h[2])
}

func TestHistoryParseErrorAndTextOnly(t *testing.T) {
	m := New("", "task")
	require.NoError(t, m.Append(StepRecord{
		Index:      1,
		Message:    llm.AssistantMessage{Role: llm.RoleAssistant, Content: "Action:\n{broken"},
		ParseError: errors.New("malformed action"),
	}))
	require.NoError(t, m.Append(StepRecord{
		Index:   2,
		Message: llm.AssistantMessage{Role: llm.RoleAssistant, Content: "Let me think about it."},
	}))

	h := m.History()
	require.Len(t, h, 5)
	assert.Contains(t, h[2].Content, "could not be parsed: malformed action")
	assert.Equal(t, "Let me think about it.", h[3].Content)
	assert.Equal(t, noActionNudge, h[4].Content)
}

func TestOutcomeHelpers(t *testing.T) {
	ok := Outcome{Value: "v"}
	assert.True(t, ok.OK())
	assert.Equal(t, "v", ok.Text())

	bad := Outcome{Err: errors.New("boom")}
	assert.False(t, bad.OK())
	assert.Equal(t, "Error: boom", bad.Text())

	assert.True(t, StepRecord{}.TextOnly())
	assert.False(t, StepRecord{Calls: []ToolCall{{}}}.TextOnly())
}
