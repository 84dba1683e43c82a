package tool

import (
	"errors"
	"fmt"
	"strings"
)

// ErrFrozen is returned by Register after Freeze.
var ErrFrozen = errors.New("tool registry is frozen")

// ErrInvalidSpec is returned by Register for a spec with no name or action.
var ErrInvalidSpec = errors.New("invalid tool spec")

// DuplicateToolError is returned when a tool name is registered twice.
type DuplicateToolError struct {
	Name string
}

func (e *DuplicateToolError) Error() string {
	return fmt.Sprintf("duplicate tool: %q is already registered", e.Name)
}

// UnknownToolError is returned when a call names a tool that is not registered.
type UnknownToolError struct {
	Name string
}

func (e *UnknownToolError) Error() string {
	return fmt.Sprintf("unknown tool: %q", e.Name)
}

// MissingArgumentError is returned when required arguments are absent.
type MissingArgumentError struct {
	Tool    string
	Missing []string
}

func (e *MissingArgumentError) Error() string {
	return fmt.Sprintf("tool %q: missing required argument(s): %s", e.Tool, strings.Join(e.Missing, ", "))
}

// ExecKind classifies a tool execution failure.
type ExecKind string

const (
	KindFailure ExecKind = "failure"
	KindTimeout ExecKind = "timeout"
)

// ToolExecutionError wraps a failure raised while running a tool's action.
type ToolExecutionError struct {
	Tool string
	Kind ExecKind
	Err  error
}

func (e *ToolExecutionError) Error() string {
	if e.Kind == KindTimeout {
		return fmt.Sprintf("tool %q timed out: %v", e.Tool, e.Err)
	}
	return fmt.Sprintf("tool %q failed: %v", e.Tool, e.Err)
}

func (e *ToolExecutionError) Unwrap() error { return e.Err }
