package domain

import (
	"context"
	"time"
)

// EventType defines the category of the event.
type EventType string

const (
	EventRunStart     EventType = "run_start"
	EventRunFinish    EventType = "run_finish"
	EventStateEnter   EventType = "state_enter"
	EventStateLeave   EventType = "state_leave"
	EventActionStart  EventType = "action_start"
	EventActionFinish EventType = "action_finish"
)

// EventBase contains common fields for all events.
type EventBase struct {
	Timestamp time.Time    `json:"timestamp"`
	Type      EventType    `json:"type"`
	RunID     string       `json:"run_id"`
	Workflow  WorkflowName `json:"workflow"`
}

// RunEvent is emitted when a run starts or reaches a terminal status.
type RunEvent struct {
	EventBase
	Status   RunStatus     `json:"status"`
	Duration time.Duration `json:"duration,omitempty"`
	Error    string        `json:"error,omitempty"`
	Depth    int           `json:"depth"`
}

// StateEvent represents entry into or exit from a state.
type StateEvent struct {
	EventBase
	State    StateID       `json:"state"`
	Kind     StateKind     `json:"kind"`
	Duration time.Duration `json:"duration,omitempty"` // Set on leave
	Outcome  Outcome       `json:"outcome,omitempty"`  // Set on leave
	Next     StateID       `json:"next,omitempty"`     // Set on leave when a transition fired
}

// ActionEvent represents an action execution.
type ActionEvent struct {
	EventBase
	State     StateID       `json:"state"`
	Kind      ActionKind    `json:"kind"`
	Duration  time.Duration `json:"duration,omitempty"`
	Success   bool          `json:"success,omitempty"`
	Cancelled bool          `json:"cancelled,omitempty"`
	Error     string        `json:"error,omitempty"`
}

// LifecycleHooks defines callbacks for engine observability.
// Hooks are passive: a panicking hook is recovered and never affects the run.
type LifecycleHooks struct {
	OnRunStart     func(context.Context, *RunEvent)
	OnRunFinish    func(context.Context, *RunEvent)
	OnStateEnter   func(context.Context, *StateEvent)
	OnStateLeave   func(context.Context, *StateEvent)
	OnActionStart  func(context.Context, *ActionEvent)
	OnActionFinish func(context.Context, *ActionEvent)
}
