package domain

import "time"

// RunStatus is the lifecycle status of a Run.
type RunStatus string

const (
	RunCreated   RunStatus = "created"
	RunRunning   RunStatus = "running"
	RunCompleted RunStatus = "completed"
	RunFailed    RunStatus = "failed"
	RunCancelled RunStatus = "cancelled"
)

// Terminal reports whether the status is final.
func (s RunStatus) Terminal() bool {
	return s == RunCompleted || s == RunFailed || s == RunCancelled
}

// Outcome labels a history entry.
type Outcome string

const (
	OutcomeSuccess     Outcome = "success"
	OutcomeFailure     Outcome = "failure"
	OutcomeNoAction    Outcome = "no_action"
	OutcomeCompensated Outcome = "compensated"
	OutcomeTransition  Outcome = "transition"
	OutcomeCompleted   Outcome = "completed"
	OutcomeCancelled   Outcome = "cancelled"
	OutcomeFailed      Outcome = "failed"
)

// HistoryEntry records what happened at a state.
type HistoryEntry struct {
	State     StateID   `json:"state" yaml:"state"`
	Timestamp time.Time `json:"timestamp" yaml:"timestamp"`
	Outcome   Outcome   `json:"outcome" yaml:"outcome"`
	Detail    string    `json:"detail,omitempty" yaml:"detail,omitempty"`
}

// Run is one live execution of a WorkflowDefinition.
// It is mutated only by the executor driving it.
type Run struct {
	ID           string              `json:"id" yaml:"id"`
	Workflow     WorkflowName        `json:"workflow" yaml:"workflow"`
	Definition   *WorkflowDefinition `json:"definition,omitempty" yaml:"definition,omitempty"`
	CurrentState StateID             `json:"current_state" yaml:"current_state"`
	Status       RunStatus           `json:"status" yaml:"status"`
	Context      map[string]any      `json:"context" yaml:"context"`
	History      []HistoryEntry      `json:"history" yaml:"history"`
	CallStack    []WorkflowName      `json:"call_stack,omitempty" yaml:"call_stack,omitempty"`
	ParentID     string              `json:"parent_id,omitempty" yaml:"parent_id,omitempty"`
	Error        string              `json:"error,omitempty" yaml:"error,omitempty"`

	// InFlight names the state whose non-idempotent action was executing
	// at the last checkpoint. Empty when no such action is in progress.
	InFlight StateID `json:"in_flight,omitempty" yaml:"in_flight,omitempty"`

	// Signals queues signals delivered while the run was not driven by the
	// sending process. The executor consumes them during signal waits.
	Signals []string `json:"signals,omitempty" yaml:"signals,omitempty"`

	CreatedAt  time.Time  `json:"created_at" yaml:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at" yaml:"updated_at"`
	FinishedAt *time.Time `json:"finished_at,omitempty" yaml:"finished_at,omitempty"`
}

// NewRun creates a run in the created status, positioned at the initial state.
func NewRun(id string, def *WorkflowDefinition, vars map[string]any) *Run {
	now := time.Now().UTC()
	ctx := make(map[string]any, len(vars)+1)
	for k, v := range vars {
		ctx[k] = v
	}
	if _, ok := ctx[KeyLastActionResult]; !ok {
		ctx[KeyLastActionResult] = true
	}
	return &Run{
		ID:           id,
		Workflow:     def.Name,
		Definition:   def,
		CurrentState: def.InitialState,
		Status:       RunCreated,
		Context:      ctx,
		History:      []HistoryEntry{},
		CallStack:    []WorkflowName{def.Name},
		CreatedAt:    now,
		UpdatedAt:    now,
	}
}

// Depth is the number of workflows on the call stack, including this one.
func (r *Run) Depth() int {
	return len(r.CallStack)
}

// Record appends a history entry stamped with the current time.
func (r *Run) Record(state StateID, outcome Outcome, detail string) {
	r.History = append(r.History, HistoryEntry{
		State:     state,
		Timestamp: time.Now().UTC(),
		Outcome:   outcome,
		Detail:    detail,
	})
}

// Finish moves the run into a terminal status.
func (r *Run) Finish(status RunStatus, errMsg string) {
	now := time.Now().UTC()
	r.Status = status
	r.Error = errMsg
	r.InFlight = ""
	r.UpdatedAt = now
	r.FinishedAt = &now
}

// Snapshot returns a deep copy, safe to hand to other goroutines.
// The definition is shared since it is immutable.
func (r *Run) Snapshot() *Run {
	if r == nil {
		return nil
	}
	next := *r
	next.Context = CopyMap(r.Context)
	next.History = append([]HistoryEntry(nil), r.History...)
	next.CallStack = append([]WorkflowName(nil), r.CallStack...)
	next.Signals = append([]string(nil), r.Signals...)
	if r.FinishedAt != nil {
		t := *r.FinishedAt
		next.FinishedAt = &t
	}
	return &next
}

// CopyMap deep copies a JSON-like value map.
func CopyMap(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = copyValue(v)
	}
	return out
}

func copyValue(v any) any {
	switch val := v.(type) {
	case map[string]any:
		return CopyMap(val)
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = copyValue(item)
		}
		return out
	case map[string]string:
		out := make(map[string]string, len(val))
		for k, s := range val {
			out[k] = s
		}
		return out
	case []string:
		return append([]string(nil), val...)
	default:
		return v
	}
}
