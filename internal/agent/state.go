package agent

// State is the derived state of a run.
type State string

const (
	StateRunning State = "running"
	StateDone    State = "done"
	StateError   State = "error"
)

// Phase names the step engine's position inside a single step. It shows up
// in logs and in the phase field of fatal errors.
type Phase string

const (
	PhaseAwaitingModel Phase = "awaiting_model"
	PhaseNormalizing   Phase = "normalizing"
	PhaseExecuting     Phase = "executing"
	PhaseAppending     Phase = "appending"
	PhaseTerminal      Phase = "terminal"
	PhaseError         Phase = "error"
)
