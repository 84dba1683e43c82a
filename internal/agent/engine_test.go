package agent

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/soyeahso/actionloop/internal/actionparse"
	"github.com/soyeahso/actionloop/internal/hooks"
	"github.com/soyeahso/actionloop/internal/llm"
	"github.com/soyeahso/actionloop/internal/logging"
	"github.com/soyeahso/actionloop/internal/memory"
	"github.com/soyeahso/actionloop/internal/tool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func silentLog() *logging.Logger {
	return logging.New(nil, "silent")
}

// completionLog records the order in which tool actions finish.
type completionLog struct {
	mu    sync.Mutex
	order []string
}

func (c *completionLog) add(name string) {
	c.mu.Lock()
	c.order = append(c.order, name)
	c.mu.Unlock()
}

func (c *completionLog) get() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.order...)
}

func testTools(t *testing.T, done *completionLog) *tool.Registry {
	t.Helper()
	reg := tool.NewRegistry(silentLog())

	must := func(s tool.Spec) { require.NoError(t, reg.Register(s)) }
	must(tool.Spec{
		Name:        FinalAnswerTool,
		Description: "Provides the final answer.",
		Params:      tool.Schema{"answer": {Type: "string", Required: true}},
		Action: func(ctx context.Context, args map[string]any) (string, error) {
			s, _ := args["answer"].(string)
			return s, nil
		},
	})
	must(tool.Spec{
		Name:   "slow",
		Params: tool.Schema{"label": {Type: "string"}},
		Action: func(ctx context.Context, args map[string]any) (string, error) {
			time.Sleep(60 * time.Millisecond)
			done.add("slow")
			return "slow done", nil
		},
	})
	must(tool.Spec{
		Name: "fast",
		Action: func(ctx context.Context, args map[string]any) (string, error) {
			done.add("fast")
			return "fast done", nil
		},
	})
	must(tool.Spec{
		Name: "flaky",
		Action: func(ctx context.Context, args map[string]any) (string, error) {
			return "", errors.New("upstream 503")
		},
	})
	reg.Freeze()
	return reg
}

func text(s string) *llm.AssistantMessage {
	return &llm.AssistantMessage{Content: s}
}

func structured(calls ...llm.ToolCall) *llm.AssistantMessage {
	return &llm.AssistantMessage{ToolCalls: calls}
}

const answer42 = "Action:\n{\"name\": \"final_answer\", \"arguments\": {\"answer\": \"42\"}}"

func newTestEngine(t *testing.T, cfg Config, gw llm.Gateway, opts ...Option) (*Engine, *completionLog) {
	t.Helper()
	done := &completionLog{}
	return NewEngine(cfg, gw, testTools(t, done), silentLog(), opts...), done
}

func TestScenarioA_EmptyReplyContinues(t *testing.T) {
	gw := llm.NewScriptedGateway(text(""), text(answer42))
	e, _ := newTestEngine(t, Config{MaxSteps: 5}, gw)

	res, err := e.Run(context.Background(), "What is 6*7?", RunOptions{})
	require.NoError(t, err)
	require.Len(t, res.Records, 2)

	first := res.Records[0]
	assert.Empty(t, first.Calls)
	assert.Empty(t, first.Outcomes)
	assert.False(t, first.Terminal)
	assert.NoError(t, first.ParseError)

	reqs := gw.Requests()
	require.Len(t, reqs, 2)
	assert.Equal(t, llm.ToolChoiceRequired, reqs[0].ToolChoice)
	assert.Equal(t, llm.ToolChoiceAuto, reqs[1].ToolChoice, "a text-only turn relaxes tool choice")
	assert.Equal(t, StateDone, res.State)
}

func TestScenarioB_TextActionFinalAnswer(t *testing.T) {
	gw := llm.NewScriptedGateway(text(answer42))
	e, _ := newTestEngine(t, Config{}, gw)

	res, err := e.Run(context.Background(), "What is 6*7?", RunOptions{})
	require.NoError(t, err)

	assert.Equal(t, StateDone, res.State)
	assert.Equal(t, "42", res.Answer)
	require.Len(t, res.Records, 1)

	rec := res.Records[0]
	assert.True(t, rec.Terminal)
	require.Len(t, rec.Calls, 1)
	assert.Equal(t, FinalAnswerTool, rec.Calls[0].Name)
	assert.Equal(t, map[string]any{"answer": "42"}, rec.Calls[0].Arguments)
	assert.Equal(t, memory.OriginParsed, rec.Calls[0].Origin)
	require.Len(t, rec.Outcomes, 1)
	assert.Equal(t, "42", rec.Outcomes[0].Value)
}

func TestScenarioC_UnknownToolIsRecorded(t *testing.T) {
	gw := llm.NewScriptedGateway(
		text("Action:\n{\"name\": \"unknown_tool\", \"arguments\": {}}"),
		text(answer42),
	)
	e, _ := newTestEngine(t, Config{}, gw)

	res, err := e.Run(context.Background(), "task", RunOptions{})
	require.NoError(t, err)
	require.Len(t, res.Records, 2)

	first := res.Records[0]
	assert.False(t, first.Terminal)
	require.Len(t, first.Outcomes, 1)
	var unk *tool.UnknownToolError
	assert.ErrorAs(t, first.Outcomes[0].Err, &unk)

	// The failed call still counts as an action, so tool choice stays required.
	assert.Equal(t, llm.ToolChoiceRequired, gw.Requests()[1].ToolChoice)

	history := gw.Requests()[1].History
	last := history[len(history)-1]
	assert.Equal(t, llm.RoleUser, last.Role)
	assert.Contains(t, last.Content, "unknown tool")
}

func TestScenarioD_OutcomesKeepCallOrder(t *testing.T) {
	for _, parallel := range []bool{true, false} {
		gw := llm.NewScriptedGateway(
			structured(
				llm.ToolCall{ID: "call_1", Name: "slow", Arguments: `{"label":"first"}`},
				llm.ToolCall{ID: "call_2", Name: "fast", Arguments: `{}`},
			),
			text(answer42),
		)
		e, done := newTestEngine(t, Config{ParallelTools: parallel}, gw)

		res, err := e.Run(context.Background(), "task", RunOptions{})
		require.NoError(t, err)

		rec := res.Records[0]
		require.Len(t, rec.Outcomes, 2)
		assert.Equal(t, "call_1", rec.Outcomes[0].CallID)
		assert.Equal(t, "slow done", rec.Outcomes[0].Value)
		assert.Equal(t, "call_2", rec.Outcomes[1].CallID)
		assert.Equal(t, "fast done", rec.Outcomes[1].Value)

		if parallel {
			assert.Equal(t, []string{"fast", "slow"}, done.get(), "fast finishes first when run concurrently")
		} else {
			assert.Equal(t, []string{"slow", "fast"}, done.get())
		}
	}
}

func TestScenarioE_StepLimit(t *testing.T) {
	gw := llm.NewScriptedGateway(
		structured(llm.ToolCall{ID: "a", Name: "fast"}),
		structured(llm.ToolCall{ID: "b", Name: "fast"}),
		structured(llm.ToolCall{ID: "c", Name: "fast"}),
	)
	e, _ := newTestEngine(t, Config{MaxSteps: 3}, gw)

	res, err := e.Run(context.Background(), "task", RunOptions{})

	var limit *StepLimitExceededError
	require.ErrorAs(t, err, &limit)
	assert.Equal(t, 3, limit.MaxSteps)
	assert.Equal(t, StateError, res.State)
	assert.Equal(t, KindStepLimitExceeded, res.ErrorKind)
	assert.Same(t, err, res.Err)

	require.Len(t, res.Records, 3)
	for i, rec := range res.Records {
		assert.Equal(t, i+1, rec.Index)
		assert.False(t, rec.Terminal)
		require.Len(t, rec.Outcomes, 1)
		assert.Equal(t, "fast done", rec.Outcomes[0].Value)
	}
	assert.Len(t, gw.Requests(), 3)
}

func TestStructuredCallsWinOverText(t *testing.T) {
	both := &llm.AssistantMessage{
		Content:   answer42,
		ToolCalls: []llm.ToolCall{{ID: "s1", Name: "fast", Arguments: "{}"}},
	}
	gw := llm.NewScriptedGateway(both, text(answer42))
	e, _ := newTestEngine(t, Config{}, gw)

	res, err := e.Run(context.Background(), "task", RunOptions{})
	require.NoError(t, err)
	require.Len(t, res.Records, 2)

	first := res.Records[0]
	assert.False(t, first.Terminal, "the embedded final answer is ignored")
	require.Len(t, first.Calls, 1)
	assert.Equal(t, "fast", first.Calls[0].Name)
	assert.Equal(t, memory.OriginStructured, first.Calls[0].Origin)
	assert.Equal(t, "s1", first.Calls[0].ID)
}

func TestStructuredFinalAnswer(t *testing.T) {
	gw := llm.NewScriptedGateway(structured(
		llm.ToolCall{ID: "x", Name: "fast", Arguments: "{}"},
		llm.ToolCall{ID: "y", Name: FinalAnswerTool, Arguments: `{"answer":"done"}`},
	))
	e, _ := newTestEngine(t, Config{}, gw)

	res, err := e.Run(context.Background(), "task", RunOptions{})
	require.NoError(t, err)
	assert.Equal(t, "done", res.Answer)
	require.Len(t, res.Records[0].Outcomes, 2)
	assert.Equal(t, "fast done", res.Records[0].Outcomes[0].Value, "every call in the step runs")
}

func TestFinalAnswerMissingArgumentIsNotTerminal(t *testing.T) {
	gw := llm.NewScriptedGateway(
		text("Action:\n{\"name\": \"final_answer\", \"arguments\": {}}"),
		text(answer42),
	)
	e, _ := newTestEngine(t, Config{}, gw)

	res, err := e.Run(context.Background(), "task", RunOptions{})
	require.NoError(t, err)
	require.Len(t, res.Records, 2)

	first := res.Records[0]
	assert.False(t, first.Terminal)
	var miss *tool.MissingArgumentError
	assert.ErrorAs(t, first.Outcomes[0].Err, &miss)
}

func TestMalformedActionIsRecorded(t *testing.T) {
	gw := llm.NewScriptedGateway(
		text("Action:\n{\"name\": \"fast\""),
		text(answer42),
	)
	e, _ := newTestEngine(t, Config{}, gw)

	res, err := e.Run(context.Background(), "task", RunOptions{})
	require.NoError(t, err)

	first := res.Records[0]
	assert.Empty(t, first.Calls)
	var mal *actionparse.MalformedActionError
	assert.ErrorAs(t, first.ParseError, &mal)

	req := gw.Requests()[1]
	assert.Equal(t, llm.ToolChoiceAuto, req.ToolChoice)
	assert.Contains(t, req.History[len(req.History)-1].Content, "could not be parsed")
}

func TestMalformedStructuredArguments(t *testing.T) {
	gw := llm.NewScriptedGateway(
		structured(
			llm.ToolCall{ID: "bad", Name: "fast", Arguments: `{"oops"`},
			llm.ToolCall{ID: "good", Name: "fast", Arguments: ``},
		),
		text(answer42),
	)
	e, _ := newTestEngine(t, Config{}, gw)

	res, err := e.Run(context.Background(), "task", RunOptions{})
	require.NoError(t, err)

	outs := res.Records[0].Outcomes
	require.Len(t, outs, 2)
	var mal *actionparse.MalformedActionError
	assert.ErrorAs(t, outs[0].Err, &mal)
	assert.Equal(t, "fast done", outs[1].Value)
}

func TestToolFailureDoesNotAbortStep(t *testing.T) {
	gw := llm.NewScriptedGateway(
		structured(
			llm.ToolCall{ID: "1", Name: "flaky"},
			llm.ToolCall{ID: "2", Name: "fast"},
		),
		text(answer42),
	)
	e, _ := newTestEngine(t, Config{}, gw)

	res, err := e.Run(context.Background(), "task", RunOptions{})
	require.NoError(t, err)

	outs := res.Records[0].Outcomes
	require.Len(t, outs, 2)
	var te *tool.ToolExecutionError
	require.ErrorAs(t, outs[0].Err, &te)
	assert.Equal(t, tool.KindFailure, te.Kind)
	assert.True(t, outs[1].OK())

	// Structured results go back as role "tool" messages paired by id.
	history := gw.Requests()[1].History
	n := len(history)
	assert.Equal(t, llm.Message{Role: llm.RoleTool, Content: "Error: " + outs[0].Err.Error(), ToolCallID: "1", Name: "flaky"}, history[n-2])
	assert.Equal(t, llm.Message{Role: llm.RoleTool, Content: "fast done", ToolCallID: "2", Name: "fast"}, history[n-1])
}

func TestToolTimeout(t *testing.T) {
	reg := tool.NewRegistry(silentLog())
	release := make(chan struct{})
	defer close(release)
	require.NoError(t, reg.Register(tool.Spec{
		Name: "stuck",
		Action: func(ctx context.Context, args map[string]any) (string, error) {
			<-release
			return "", nil
		},
	}))
	require.NoError(t, reg.Register(tool.Spec{
		Name:   FinalAnswerTool,
		Params: tool.Schema{"answer": {Type: "string", Required: true}},
		Action: func(ctx context.Context, args map[string]any) (string, error) { return args["answer"].(string), nil },
	}))

	gw := llm.NewScriptedGateway(structured(llm.ToolCall{ID: "s", Name: "stuck"}), text(answer42))
	e := NewEngine(Config{ToolTimeout: 20 * time.Millisecond}, gw, reg, silentLog())

	res, err := e.Run(context.Background(), "task", RunOptions{})
	require.NoError(t, err)

	var te *tool.ToolExecutionError
	require.ErrorAs(t, res.Records[0].Outcomes[0].Err, &te)
	assert.Equal(t, tool.KindTimeout, te.Kind)
	assert.Equal(t, KindToolTimeout, ErrorKind(te))
}

func TestDuplicateAndMissingCallIDsAreReplaced(t *testing.T) {
	gw := llm.NewScriptedGateway(
		structured(
			llm.ToolCall{ID: "same", Name: "fast"},
			llm.ToolCall{ID: "same", Name: "fast"},
			llm.ToolCall{Name: "fast"},
		),
		text(answer42),
	)
	e, _ := newTestEngine(t, Config{}, gw)

	res, err := e.Run(context.Background(), "task", RunOptions{})
	require.NoError(t, err)

	calls := res.Records[0].Calls
	require.Len(t, calls, 3)
	assert.Equal(t, "same", calls[0].ID)
	ids := map[string]bool{}
	for i, c := range calls {
		require.NotEmpty(t, c.ID)
		ids[c.ID] = true
		assert.Equal(t, c.ID, res.Records[0].Outcomes[i].CallID)
	}
	assert.Len(t, ids, 3)
}

func TestModelUnavailableIsFatal(t *testing.T) {
	gw := &llm.MockGateway{
		CompleteFunc: func(ctx context.Context, req llm.Request) (*llm.AssistantMessage, error) {
			return nil, &llm.ModelUnavailableError{Provider: "mock", Code: 503, Message: "overloaded"}
		},
	}
	e, _ := newTestEngine(t, Config{}, gw)

	res, err := e.Run(context.Background(), "task", RunOptions{})
	var mu *llm.ModelUnavailableError
	require.ErrorAs(t, err, &mu)
	assert.Equal(t, 503, mu.Code)
	assert.Equal(t, StateError, res.State)
	assert.Equal(t, KindModelUnavailable, res.ErrorKind)
	assert.Empty(t, res.Records)
	assert.Len(t, gw.Requests(), 1, "the engine does not retry")
}

func TestUntypedGatewayErrorIsWrapped(t *testing.T) {
	gw := &llm.MockGateway{
		CompleteFunc: func(ctx context.Context, req llm.Request) (*llm.AssistantMessage, error) {
			return nil, errors.New("connection refused")
		},
	}
	e, _ := newTestEngine(t, Config{}, gw)

	_, err := e.Run(context.Background(), "task", RunOptions{})
	var mu *llm.ModelUnavailableError
	require.ErrorAs(t, err, &mu)
	assert.Equal(t, "mock", mu.Provider)
	assert.Contains(t, err.Error(), "connection refused")
}

func TestModelTimeout(t *testing.T) {
	gw := &llm.MockGateway{
		CompleteFunc: func(ctx context.Context, req llm.Request) (*llm.AssistantMessage, error) {
			<-ctx.Done()
			return nil, ctx.Err()
		},
	}
	e, _ := newTestEngine(t, Config{ModelTimeout: 20 * time.Millisecond}, gw)

	res, err := e.Run(context.Background(), "task", RunOptions{})
	var mu *llm.ModelUnavailableError
	require.ErrorAs(t, err, &mu)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, KindModelUnavailable, res.ErrorKind)
}

func TestCancelledRun(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	gw := llm.NewScriptedGateway(text(answer42))
	e, _ := newTestEngine(t, Config{}, gw)

	res, err := e.Run(ctx, "task", RunOptions{})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, StateError, res.State)
	assert.Equal(t, KindCancelled, res.ErrorKind)
	assert.Empty(t, gw.Requests())
}

func TestCancelBetweenSteps(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	gw := llm.NewScriptedGateway(structured(llm.ToolCall{ID: "1", Name: "fast"}), text(answer42))
	e, _ := newTestEngine(t, Config{}, gw)

	res, err := e.Run(ctx, "task", RunOptions{OnStep: func(memory.StepRecord) { cancel() }})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Len(t, res.Records, 1, "completed steps are kept")
	assert.Len(t, gw.Requests(), 1)
}

func TestRunRequestShape(t *testing.T) {
	temp := 0.2
	gw := llm.NewScriptedGateway(text(answer42))
	e, _ := newTestEngine(t, Config{Model: "gpt-4o", MaxTokens: 512, Temperature: &temp, ExtraPrompt: "Be brief."}, gw)

	_, err := e.Run(context.Background(), "What is 6*7?", RunOptions{})
	require.NoError(t, err)

	req := gw.Requests()[0]
	assert.Equal(t, "gpt-4o", req.Model)
	assert.Equal(t, 512, req.MaxTokens)
	assert.Equal(t, &temp, req.Temperature)
	require.Len(t, req.Tools, 4)
	assert.Equal(t, FinalAnswerTool, req.Tools[0].Name)

	require.Len(t, req.History, 2)
	assert.Equal(t, llm.RoleSystem, req.History[0].Role)
	assert.Contains(t, req.History[0].Content, "Be brief.")
	assert.Equal(t, llm.Message{Role: llm.RoleUser, Content: "What is 6*7?"}, req.History[1])
}

func TestUsageAndModelAccumulate(t *testing.T) {
	first := structured(llm.ToolCall{ID: "1", Name: "fast"})
	first.Usage = llm.Usage{InputTokens: 10, OutputTokens: 3}
	second := text(answer42)
	second.Usage = llm.Usage{InputTokens: 20, OutputTokens: 5}
	second.Model = "gpt-4o-2024-08-06"

	e, _ := newTestEngine(t, Config{Model: "gpt-4o"}, llm.NewScriptedGateway(first, second))
	res, err := e.Run(context.Background(), "task", RunOptions{RunID: "run-1"})
	require.NoError(t, err)

	assert.Equal(t, "run-1", res.RunID)
	assert.Equal(t, llm.Usage{InputTokens: 30, OutputTokens: 8}, res.Usage)
	assert.Equal(t, "gpt-4o-2024-08-06", res.Model)
	assert.Equal(t, 2, res.Steps())
}

type fakeRecorder struct {
	mu       sync.Mutex
	begun    []RunInfo
	steps    []int
	finished []*RunResult
	failStep bool
}

func (f *fakeRecorder) BeginRun(_ context.Context, run RunInfo) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.begun = append(f.begun, run)
	return nil
}

func (f *fakeRecorder) RecordStep(_ context.Context, _ string, rec memory.StepRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.steps = append(f.steps, rec.Index)
	if f.failStep {
		return errors.New("disk full")
	}
	return nil
}

func (f *fakeRecorder) FinishRun(_ context.Context, res *RunResult) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.finished = append(f.finished, res)
	return nil
}

func TestRecorderHooksAndOnStep(t *testing.T) {
	rec := &fakeRecorder{failStep: true}
	hm := hooks.NewManager(silentLog())

	var mu sync.Mutex
	events := map[string]int{}
	count := func(_ context.Context, p hooks.Payload) error {
		mu.Lock()
		events[p.Event]++
		mu.Unlock()
		return nil
	}
	for _, ev := range []string{hooks.EventRunStart, hooks.EventStepComplete, hooks.EventToolError, hooks.EventRunEnd} {
		hm.On(ev, "count", count)
	}

	gw := llm.NewScriptedGateway(structured(llm.ToolCall{ID: "1", Name: "flaky"}), text(answer42))
	e, _ := newTestEngine(t, Config{}, gw, WithRecorder(rec), WithHooks(hm))

	var seen []int
	res, err := e.Run(context.Background(), "task", RunOptions{RunID: "r1", OnStep: func(r memory.StepRecord) {
		seen = append(seen, r.Index)
	}})
	require.NoError(t, err, "recorder failures are not fatal")
	hm.Wait()

	assert.Equal(t, []int{1, 2}, seen)
	require.Len(t, rec.begun, 1)
	assert.Equal(t, "r1", rec.begun[0].ID)
	assert.Equal(t, "task", rec.begun[0].Task)
	assert.Equal(t, []int{1, 2}, rec.steps)
	require.Len(t, rec.finished, 1)
	assert.Same(t, res, rec.finished[0])

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 1, events[hooks.EventRunStart])
	assert.Equal(t, 2, events[hooks.EventStepComplete])
	assert.Equal(t, 1, events[hooks.EventToolError])
	assert.Equal(t, 1, events[hooks.EventRunEnd])
}

func TestIndicesAndOutcomeCounts(t *testing.T) {
	gw := llm.NewScriptedGateway(
		text("thinking"),
		structured(llm.ToolCall{ID: "1", Name: "fast"}, llm.ToolCall{ID: "2", Name: "flaky"}, llm.ToolCall{ID: "3", Name: "nope"}),
		text("Action:\n{\"name\": \"fast\", \"arguments\": {}}"),
		text(answer42),
	)
	e, _ := newTestEngine(t, Config{}, gw)

	res, err := e.Run(context.Background(), "task", RunOptions{})
	require.NoError(t, err)
	require.Len(t, res.Records, 4)

	for i, rec := range res.Records {
		assert.Equal(t, i+1, rec.Index)
		assert.Len(t, rec.Outcomes, len(rec.Calls))
		assert.Equal(t, i == 3, rec.Terminal, "only the final answer step is terminal")
	}
}
