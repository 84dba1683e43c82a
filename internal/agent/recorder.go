package agent

import (
	"context"
	"time"

	"github.com/soyeahso/actionloop/internal/logging"
	"github.com/soyeahso/actionloop/internal/memory"
)

// RunInfo describes a run as it starts.
type RunInfo struct {
	ID        string
	Task      string
	Model     string
	StartedAt time.Time
}

// Recorder persists runs and their steps. Recording errors are logged and
// never end a run.
type Recorder interface {
	BeginRun(ctx context.Context, run RunInfo) error
	RecordStep(ctx context.Context, runID string, rec memory.StepRecord) error
	FinishRun(ctx context.Context, res *RunResult) error
}

func (e *Engine) recordBegin(ctx context.Context, log *logging.Logger, res *RunResult) {
	if e.recorder == nil {
		return
	}
	err := e.recorder.BeginRun(context.WithoutCancel(ctx), RunInfo{
		ID:        res.RunID,
		Task:      res.Task,
		Model:     res.Model,
		StartedAt: res.StartedAt,
	})
	if err != nil {
		log.Warn().Err(err).Msg("failed to record run start")
	}
}

func (e *Engine) recordStep(ctx context.Context, log *logging.Logger, runID string, rec memory.StepRecord) {
	if e.recorder == nil {
		return
	}
	if err := e.recorder.RecordStep(context.WithoutCancel(ctx), runID, rec); err != nil {
		log.Warn().Err(err).Msg("failed to record step")
	}
}

func (e *Engine) recordFinish(ctx context.Context, log *logging.Logger, res *RunResult) {
	if e.recorder == nil {
		return
	}
	if err := e.recorder.FinishRun(context.WithoutCancel(ctx), res); err != nil {
		log.Warn().Err(err).Msg("failed to record run result")
	}
}
