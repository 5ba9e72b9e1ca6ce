package domain

// StateID identifies a state within one workflow.
type StateID string

// StateKind defines the control flow role of a state.
type StateKind string

const (
	StateStart        StateKind = "start"        // Entry point (exactly one per workflow)
	StateNormal       StateKind = "normal"       // Regular step
	StateEnd          StateKind = "end"          // Terminal, outgoing transitions are never evaluated
	StateCompensation StateKind = "compensation" // Executes like a normal state, tagged as an undo step
)

// State represents a named node in the workflow graph.
type State struct {
	ID          StateID     `json:"id" yaml:"id"`
	Kind        StateKind   `json:"kind" yaml:"kind"`
	Description string      `json:"description,omitempty" yaml:"description,omitempty"`
	Action      *ActionSpec `json:"action,omitempty" yaml:"action,omitempty"`
}

// IsTerminal reports whether reaching this state completes the run.
func (s State) IsTerminal() bool {
	return s.Kind == StateEnd
}
