package store

import (
	"context"
	"errors"
	"time"

	jsoniter "github.com/json-iterator/go"

	"github.com/soyeahso/actionloop/internal/agent"
	"github.com/soyeahso/actionloop/internal/memory"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// ErrNotFound is returned by GetRun for an unknown id.
var ErrNotFound = errors.New("run not found")

// Run is the stored view of an agent run.
type Run struct {
	ID           string    `json:"id"`
	Task         string    `json:"task"`
	Model        string    `json:"model,omitempty"`
	State        string    `json:"state"`
	Answer       string    `json:"answer,omitempty"`
	Error        string    `json:"error,omitempty"`
	ErrorKind    string    `json:"errorKind,omitempty"`
	StepCount    int       `json:"stepCount"`
	InputTokens  int       `json:"inputTokens"`
	OutputTokens int       `json:"outputTokens"`
	StartedAt    time.Time `json:"startedAt"`
	FinishedAt   time.Time `json:"finishedAt"`
	Steps        []Step    `json:"steps,omitempty"`
}

// Step is the stored view of one step record.
type Step struct {
	Index        int       `json:"index"`
	ToolChoice   string    `json:"toolChoice"`
	Content      string    `json:"content,omitempty"`
	Provider     string    `json:"provider,omitempty"`
	Model        string    `json:"model,omitempty"`
	Calls        []Call    `json:"calls"`
	ParseError   string    `json:"parseError,omitempty"`
	Terminal     bool      `json:"terminal"`
	InputTokens  int       `json:"inputTokens"`
	OutputTokens int       `json:"outputTokens"`
	StartedAt    time.Time `json:"startedAt"`
	FinishedAt   time.Time `json:"finishedAt"`
}

// Call is one tool call together with its outcome.
type Call struct {
	ID         string         `json:"id"`
	Name       string         `json:"name"`
	Arguments  map[string]any `json:"arguments"`
	Origin     string         `json:"origin"`
	Output     string         `json:"output,omitempty"`
	Error      string         `json:"error,omitempty"`
	ErrorKind  string         `json:"errorKind,omitempty"`
	DurationMs int64          `json:"durationMs"`
}

// RunStore records runs and serves them back. Every implementation is an
// agent.Recorder.
type RunStore interface {
	agent.Recorder
	ListRuns(ctx context.Context, limit int) ([]Run, error)
	GetRun(ctx context.Context, id string) (*Run, error)
	Close() error
}

// DefaultListLimit caps ListRuns when no limit is given.
const DefaultListLimit = 50

// StepFromRecord converts a step record into its stored form.
func StepFromRecord(rec memory.StepRecord) Step {
	s := Step{
		Index:        rec.Index,
		ToolChoice:   string(rec.ToolChoice),
		Content:      rec.Message.Content,
		Provider:     rec.Message.Provider,
		Model:        rec.Message.Model,
		Calls:        make([]Call, len(rec.Calls)),
		Terminal:     rec.Terminal,
		InputTokens:  rec.Message.Usage.InputTokens,
		OutputTokens: rec.Message.Usage.OutputTokens,
		StartedAt:    rec.StartedAt.UTC(),
		FinishedAt:   rec.FinishedAt.UTC(),
	}
	if rec.ParseError != nil {
		s.ParseError = rec.ParseError.Error()
	}
	for i, c := range rec.Calls {
		call := Call{
			ID:        c.ID,
			Name:      c.Name,
			Arguments: c.Arguments,
			Origin:    string(c.Origin),
		}
		if i < len(rec.Outcomes) {
			out := rec.Outcomes[i]
			call.Output = out.Value
			call.DurationMs = out.Duration.Milliseconds()
			if out.Err != nil {
				call.Error = out.Err.Error()
				call.ErrorKind = agent.ErrorKind(out.Err)
			}
		}
		s.Calls[i] = call
	}
	return s
}

// RunFromResult converts a finished run, including its steps.
func RunFromResult(res *agent.RunResult) Run {
	r := Run{
		ID:           res.RunID,
		Task:         res.Task,
		Model:        res.Model,
		State:        string(res.State),
		Answer:       res.Answer,
		ErrorKind:    res.ErrorKind,
		StepCount:    len(res.Records),
		InputTokens:  res.Usage.InputTokens,
		OutputTokens: res.Usage.OutputTokens,
		StartedAt:    res.StartedAt.UTC(),
		FinishedAt:   res.StartedAt.Add(res.Duration).UTC(),
		Steps:        make([]Step, len(res.Records)),
	}
	if res.Err != nil {
		r.Error = res.Err.Error()
	}
	for i, rec := range res.Records {
		r.Steps[i] = StepFromRecord(rec)
	}
	return r
}

func listLimit(limit int) int {
	if limit <= 0 {
		return DefaultListLimit
	}
	return limit
}
