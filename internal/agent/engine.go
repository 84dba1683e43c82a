// Package agent drives the step loop: ask the model what to do, normalize its
// reply into canonical tool calls, execute them, record the step, and repeat
// until a final answer or a fatal error.
package agent

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	jsoniter "github.com/json-iterator/go"

	"github.com/soyeahso/actionloop/internal/actionparse"
	"github.com/soyeahso/actionloop/internal/hooks"
	"github.com/soyeahso/actionloop/internal/llm"
	"github.com/soyeahso/actionloop/internal/logging"
	"github.com/soyeahso/actionloop/internal/memory"
	"github.com/soyeahso/actionloop/internal/tool"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// DefaultMaxSteps is used when Config.MaxSteps is not positive.
const DefaultMaxSteps = 10

// Config configures the step engine.
type Config struct {
	Model         string // passed through to the gateway; empty uses the provider default
	MaxSteps      int
	ModelTimeout  time.Duration // 0 disables the per-call deadline
	ToolTimeout   time.Duration // 0 disables the per-call deadline
	ParallelTools bool
	Marker        string
	ExtraPrompt   string
	MaxTokens     int
	Temperature   *float64
}

// RunOptions are per-run settings.
type RunOptions struct {
	// RunID identifies the run; a UUID is generated when empty.
	RunID string
	// OnStep is called synchronously with every appended record.
	OnStep func(memory.StepRecord)
}

// RunResult is the outcome of a run. On failure it carries the partial
// records and the error that ended the run.
type RunResult struct {
	RunID     string              `json:"runId"`
	Task      string              `json:"task"`
	Model     string              `json:"model,omitempty"`
	State     State               `json:"state"`
	Answer    string              `json:"answer,omitempty"`
	Records   []memory.StepRecord `json:"-"`
	Err       error               `json:"-"`
	ErrorKind string              `json:"errorKind,omitempty"`
	Usage     llm.Usage           `json:"usage"`
	StartedAt time.Time           `json:"startedAt"`
	Duration  time.Duration       `json:"duration"`
}

// Steps returns the number of recorded steps.
func (r *RunResult) Steps() int { return len(r.Records) }

// Option configures an Engine.
type Option func(*Engine)

// WithHooks emits lifecycle events to m.
func WithHooks(m *hooks.Manager) Option {
	return func(e *Engine) { e.hooks = m }
}

// WithRecorder persists runs through r.
func WithRecorder(r Recorder) Option {
	return func(e *Engine) { e.recorder = r }
}

// Engine is the agent step loop. It is safe to run several runs concurrently;
// each run owns its own Memory.
type Engine struct {
	cfg      Config
	gateway  llm.Gateway
	tools    *tool.Registry
	parser   *actionparse.Parser
	hooks    *hooks.Manager
	recorder Recorder
	log      *logging.Logger
}

// NewEngine creates a step engine over gateway and the tool registry.
func NewEngine(cfg Config, gateway llm.Gateway, tools *tool.Registry, log *logging.Logger, opts ...Option) *Engine {
	if cfg.MaxSteps <= 0 {
		cfg.MaxSteps = DefaultMaxSteps
	}
	if cfg.Marker == "" {
		cfg.Marker = actionparse.DefaultMarker
	}
	e := &Engine{
		cfg:     cfg,
		gateway: gateway,
		tools:   tools,
		parser:  actionparse.New(tools, actionparse.WithMarker(cfg.Marker)),
		log:     log.Sub("agent"),
	}
	for _, o := range opts {
		o(e)
	}
	return e
}

// Run executes task until a final answer, a fatal error, cancellation or the
// step limit. The returned result is never nil; on failure it is in the error
// state and the same error is returned.
func (e *Engine) Run(ctx context.Context, task string, opts RunOptions) (*RunResult, error) {
	runID := opts.RunID
	if runID == "" {
		runID = uuid.NewString()
	}
	log := e.log.With("runId", runID)

	system := BuildSystemPrompt(PromptConfig{
		Tools:       e.tools.List(),
		Marker:      e.cfg.Marker,
		ExtraPrompt: e.cfg.ExtraPrompt,
	})
	mem := memory.New(system, task)

	res := &RunResult{
		RunID:     runID,
		Task:      task,
		Model:     e.cfg.Model,
		State:     StateRunning,
		StartedAt: time.Now(),
	}

	log.Info().Str("model", e.cfg.Model).Int("maxSteps", e.cfg.MaxSteps).Msg("run started")
	e.recordBegin(ctx, log, res)
	e.emit(ctx, hooks.EventRunStart, map[string]any{"runId": runID, "task": task, "model": e.cfg.Model})

	err := e.loop(ctx, log, runID, mem, res, opts.OnStep)
	return e.finish(ctx, log, mem, res, err)
}

func (e *Engine) loop(ctx context.Context, log *logging.Logger, runID string, mem *memory.Memory, res *RunResult, onStep func(memory.StepRecord)) error {
	choice := llm.ToolChoiceRequired

	for index := 1; ; index++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		if index > e.cfg.MaxSteps {
			return &StepLimitExceededError{MaxSteps: e.cfg.MaxSteps}
		}

		stepLog := log.WithInt("step", index)
		started := time.Now()

		// awaiting_model
		msg, err := e.complete(ctx, mem.History(), choice)
		if err != nil {
			stepLog.Error().Err(err).Str("phase", string(PhaseAwaitingModel)).Str("toolChoice", string(choice)).Msg("model call failed")
			return err
		}
		res.Usage.InputTokens += msg.Usage.InputTokens
		res.Usage.OutputTokens += msg.Usage.OutputTokens
		if msg.Model != "" {
			res.Model = msg.Model
		}

		// normalizing
		calls, preErrs, parseErr := e.normalize(msg, choice)
		if parseErr != nil {
			stepLog.Warn().Err(parseErr).Msg("could not parse action from text")
		}

		// executing
		outcomes, invoked := e.execute(ctx, stepLog, runID, index, calls, preErrs)

		// appending
		rec := memory.StepRecord{
			Index:      index,
			Message:    *msg,
			ToolChoice: choice,
			Calls:      calls,
			Outcomes:   outcomes,
			ParseError: parseErr,
			StartedAt:  started,
			FinishedAt: time.Now(),
		}
		answerAt := -1
		for i, c := range calls {
			if c.Name == FinalAnswerTool && invoked[i] {
				answerAt = i
				break
			}
		}
		rec.Terminal = answerAt >= 0

		if err := mem.Append(rec); err != nil {
			return err
		}

		stepLog.Info().
			Str("toolChoice", string(choice)).
			Int("calls", len(calls)).
			Bool("terminal", rec.Terminal).
			Dur("duration", rec.FinishedAt.Sub(started)).
			Msg("step complete")

		e.recordStep(ctx, stepLog, runID, rec)
		e.emitAsync(ctx, hooks.EventStepComplete, map[string]any{
			"runId":    runID,
			"step":     index,
			"calls":    len(calls),
			"terminal": rec.Terminal,
		})
		if onStep != nil {
			onStep(rec)
		}

		if rec.Terminal {
			res.Answer = outcomes[answerAt].Text()
			return nil
		}
		if rec.TextOnly() {
			choice = llm.ToolChoiceAuto
		}
	}
}

// complete runs one model call under ModelTimeout. Failures come back as
// *llm.ModelUnavailableError, except cancellation of ctx itself.
func (e *Engine) complete(ctx context.Context, history []llm.Message, choice llm.ToolChoice) (*llm.AssistantMessage, error) {
	mctx := ctx
	if e.cfg.ModelTimeout > 0 {
		var cancel context.CancelFunc
		mctx, cancel = context.WithTimeout(ctx, e.cfg.ModelTimeout)
		defer cancel()
	}

	msg, err := e.gateway.Complete(mctx, llm.Request{
		Model:       e.cfg.Model,
		History:     history,
		Tools:       e.tools.Definitions(),
		ToolChoice:  choice,
		MaxTokens:   e.cfg.MaxTokens,
		Temperature: e.cfg.Temperature,
	})
	if err == nil && msg == nil {
		err = errors.New("gateway returned no message")
	}
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		var mu *llm.ModelUnavailableError
		if !errors.As(err, &mu) {
			err = &llm.ModelUnavailableError{Provider: e.gateway.Name(), Err: err}
		}
		return nil, err
	}
	return msg, nil
}

// normalize turns the assistant message into canonical calls. Structured
// calls win; text is parsed only when there are none. preErrs[i] holds an
// error already known for calls[i] (undecodable arguments, or a validation
// failure reported by the parser). parseErr is set when the text carried a
// marker but no usable action.
func (e *Engine) normalize(msg *llm.AssistantMessage, choice llm.ToolChoice) (calls []memory.ToolCall, preErrs []error, parseErr error) {
	if len(msg.ToolCalls) > 0 {
		calls = make([]memory.ToolCall, len(msg.ToolCalls))
		preErrs = make([]error, len(msg.ToolCalls))
		seen := make(map[string]bool, len(msg.ToolCalls))

		for i, tc := range msg.ToolCalls {
			id := tc.ID
			if id == "" || seen[id] {
				id = uuid.NewString()
			}
			seen[id] = true

			args, err := decodeArguments(tc.Arguments)
			if err != nil {
				preErrs[i] = &actionparse.MalformedActionError{Reason: "tool call arguments are not a JSON object", Err: err}
			}
			calls[i] = memory.ToolCall{ID: id, Name: tc.Name, Arguments: args, Origin: memory.OriginStructured}
		}
		return calls, preErrs, nil
	}

	if !actionparse.Applies(choice, msg) {
		return nil, nil, nil
	}

	calls, err := e.parser.Parse(msg.Content)
	if err != nil && len(calls) == 0 {
		return nil, nil, err
	}
	preErrs = make([]error, len(calls))
	if err != nil {
		preErrs[0] = err
	}
	return calls, preErrs, nil
}

func decodeArguments(raw string) (map[string]any, error) {
	if strings.TrimSpace(raw) == "" {
		return map[string]any{}, nil
	}
	var args map[string]any
	if err := json.Unmarshal([]byte(raw), &args); err != nil {
		return nil, err
	}
	if args == nil {
		return nil, errors.New("arguments are null")
	}
	return args, nil
}

// execute runs every call and returns outcomes in call order. invoked[i]
// reports whether calls[i] passed validation and reached its action.
func (e *Engine) execute(ctx context.Context, log *logging.Logger, runID string, step int, calls []memory.ToolCall, preErrs []error) ([]memory.Outcome, []bool) {
	outcomes := make([]memory.Outcome, len(calls))
	invoked := make([]bool, len(calls))

	run := func(i int) {
		call := calls[i]
		start := time.Now()

		err := preErrs[i]
		if err == nil {
			err = e.tools.Validate(call.Name, call.Arguments)
		}

		var value string
		if err == nil {
			invoked[i] = true
			tctx := ctx
			cancel := func() {}
			if e.cfg.ToolTimeout > 0 {
				tctx, cancel = context.WithTimeout(ctx, e.cfg.ToolTimeout)
			}
			value, err = e.tools.Invoke(tctx, call.Name, call.Arguments)
			cancel()
		}

		outcomes[i] = memory.Outcome{CallID: call.ID, Value: value, Err: err, Duration: time.Since(start)}

		if err != nil {
			log.Warn().
				Str("tool", call.Name).
				Str("callId", call.ID).
				Str("kind", ErrorKind(err)).
				Err(err).
				Msg("tool call failed")
			e.emitAsync(ctx, hooks.EventToolError, map[string]any{
				"runId":  runID,
				"step":   step,
				"tool":   call.Name,
				"callId": call.ID,
				"kind":   ErrorKind(err),
				"error":  err.Error(),
			})
			return
		}
		log.Debug().
			Str("tool", call.Name).
			Str("callId", call.ID).
			Dur("duration", outcomes[i].Duration).
			Msg("tool call succeeded")
	}

	if e.cfg.ParallelTools && len(calls) > 1 {
		var wg sync.WaitGroup
		for i := range calls {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				run(i)
			}(i)
		}
		wg.Wait()
	} else {
		for i := range calls {
			run(i)
		}
	}
	return outcomes, invoked
}

func (e *Engine) finish(ctx context.Context, log *logging.Logger, mem *memory.Memory, res *RunResult, err error) (*RunResult, error) {
	res.Records = mem.Records()
	res.Duration = time.Since(res.StartedAt)

	if err != nil {
		res.State = StateError
		res.Err = err
		res.ErrorKind = ErrorKind(err)
		log.Error().
			Err(err).
			Str("kind", res.ErrorKind).
			Int("steps", len(res.Records)).
			Dur("duration", res.Duration).
			Msg("run failed")
	} else {
		res.State = StateDone
		log.Info().
			Int("steps", len(res.Records)).
			Int("inputTokens", res.Usage.InputTokens).
			Int("outputTokens", res.Usage.OutputTokens).
			Dur("duration", res.Duration).
			Msg("run done")
	}

	e.recordFinish(ctx, log, res)
	data := map[string]any{
		"runId": res.RunID,
		"state": string(res.State),
		"steps": len(res.Records),
	}
	if err != nil {
		data["error"] = err.Error()
		data["kind"] = res.ErrorKind
	} else {
		data["answer"] = res.Answer
	}
	e.emit(ctx, hooks.EventRunEnd, data)

	return res, err
}

func (e *Engine) emit(ctx context.Context, event string, data map[string]any) {
	if e.hooks != nil {
		e.hooks.Emit(context.WithoutCancel(ctx), event, data)
	}
}

func (e *Engine) emitAsync(ctx context.Context, event string, data map[string]any) {
	if e.hooks != nil {
		e.hooks.EmitAsync(context.WithoutCancel(ctx), event, data)
	}
}
