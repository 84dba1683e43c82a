package agent

import (
	"context"
	"errors"
	"fmt"

	"github.com/soyeahso/actionloop/internal/actionparse"
	"github.com/soyeahso/actionloop/internal/llm"
	"github.com/soyeahso/actionloop/internal/tool"
)

// StepLimitExceededError ends a run that reached MaxSteps without a final answer.
type StepLimitExceededError struct {
	MaxSteps int
}

func (e *StepLimitExceededError) Error() string {
	return fmt.Sprintf("step limit exceeded: no final answer after %d steps", e.MaxSteps)
}

// Error kinds reported in logs, run storage and the gateway API.
const (
	KindModelUnavailable  = "model_unavailable"
	KindMalformedAction   = "malformed_action"
	KindUnknownTool       = "unknown_tool"
	KindMissingArgument   = "missing_argument"
	KindToolFailure       = "tool_failure"
	KindToolTimeout       = "tool_timeout"
	KindDuplicateTool     = "duplicate_tool"
	KindStepLimitExceeded = "step_limit_exceeded"
	KindCancelled         = "cancelled"
	KindDeadlineExceeded  = "deadline_exceeded"
	KindInternal          = "internal"
)

// ErrorKind maps err to a stable kind string. It returns "" for nil.
func ErrorKind(err error) string {
	if err == nil {
		return ""
	}

	var (
		stepLimit   *StepLimitExceededError
		unavailable *llm.ModelUnavailableError
		duplicate   *tool.DuplicateToolError
		malformed   *actionparse.MalformedActionError
		unknown     *tool.UnknownToolError
		missing     *tool.MissingArgumentError
		execErr     *tool.ToolExecutionError
	)
	switch {
	case errors.As(err, &stepLimit):
		return KindStepLimitExceeded
	case errors.As(err, &unavailable):
		return KindModelUnavailable
	case errors.As(err, &duplicate):
		return KindDuplicateTool
	case errors.As(err, &malformed):
		return KindMalformedAction
	case errors.As(err, &unknown):
		return KindUnknownTool
	case errors.As(err, &missing):
		return KindMissingArgument
	case errors.As(err, &execErr):
		if execErr.Kind == tool.KindTimeout {
			return KindToolTimeout
		}
		return KindToolFailure
	case errors.Is(err, context.Canceled):
		return KindCancelled
	case errors.Is(err, context.DeadlineExceeded):
		return KindDeadlineExceeded
	}
	return KindInternal
}
