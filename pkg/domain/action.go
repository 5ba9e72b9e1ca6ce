package domain

import (
	"fmt"
	"time"
)

// ActionKind is the tag of an ActionSpec. The set is closed.
type ActionKind string

const (
	ActionPrompt      ActionKind = "prompt"
	ActionShell       ActionKind = "shell"
	ActionSubWorkflow ActionKind = "subworkflow"
	ActionWait        ActionKind = "wait"
	ActionSet         ActionKind = "set"
	ActionLog         ActionKind = "log"
)

// ActionSpec describes a unit of work attached to a state or transition.
// Exactly one payload pointer, matching Kind, is set.
type ActionSpec struct {
	Kind       ActionKind    `json:"kind" yaml:"kind"`
	Text       string        `json:"text,omitempty" yaml:"text,omitempty"` // Source text as written on the diagram
	Timeout    time.Duration `json:"timeout,omitempty" yaml:"timeout,omitempty"`
	Idempotent bool          `json:"idempotent,omitempty" yaml:"idempotent,omitempty"`

	Prompt      *PromptAction      `json:"prompt,omitempty" yaml:"prompt,omitempty"`
	Shell       *ShellAction       `json:"shell,omitempty" yaml:"shell,omitempty"`
	SubWorkflow *SubWorkflowAction `json:"subworkflow,omitempty" yaml:"subworkflow,omitempty"`
	Wait        *WaitAction        `json:"wait,omitempty" yaml:"wait,omitempty"`
	Set         *SetAction         `json:"set,omitempty" yaml:"set,omitempty"`
	Log         *LogAction         `json:"log,omitempty" yaml:"log,omitempty"`
}

// PromptAction asks the agent executor to answer a prompt.
// Either Name (a prompt from the library) or Inline is set.
type PromptAction struct {
	Name      string         `json:"name,omitempty" yaml:"name,omitempty"`
	Inline    string         `json:"inline,omitempty" yaml:"inline,omitempty"`
	Params    map[string]any `json:"params,omitempty" yaml:"params,omitempty"`
	ResultVar string         `json:"result_var,omitempty" yaml:"result_var,omitempty"`
}

// ShellAction runs a command through the shell runner.
type ShellAction struct {
	Command   string            `json:"command" yaml:"command"`
	Dir       string            `json:"dir,omitempty" yaml:"dir,omitempty"`
	Env       map[string]string `json:"env,omitempty" yaml:"env,omitempty"`
	ResultVar string            `json:"result_var,omitempty" yaml:"result_var,omitempty"`
}

// SubWorkflowAction runs a child workflow to completion.
type SubWorkflowAction struct {
	Workflow  WorkflowName   `json:"workflow" yaml:"workflow"`
	Params    map[string]any `json:"params,omitempty" yaml:"params,omitempty"`
	ResultVar string         `json:"result_var,omitempty" yaml:"result_var,omitempty"`
}

// WaitAction suspends the run for Duration, or until Signal is received.
type WaitAction struct {
	Duration time.Duration `json:"duration,omitempty" yaml:"duration,omitempty"`
	Signal   string        `json:"signal,omitempty" yaml:"signal,omitempty"`
}

// Assignment is one key/value pair of a SetAction.
type Assignment struct {
	Key   string `json:"key" yaml:"key"`
	Value any    `json:"value" yaml:"value"`
}

// SetAction writes variables into the run context.
type SetAction struct {
	Assignments []Assignment `json:"assignments" yaml:"assignments"`
}

// LogAction emits a leveled log line.
type LogAction struct {
	Level   string `json:"level,omitempty" yaml:"level,omitempty"`
	Message string `json:"message" yaml:"message"`
}

// DefaultIdempotent reports whether actions of this kind are safe to re-run
// after a crash unless stated otherwise.
func DefaultIdempotent(kind ActionKind) bool {
	switch kind {
	case ActionPrompt, ActionShell, ActionSubWorkflow:
		return false
	default:
		return true
	}
}

// Validate checks that the payload matches the kind.
func (a *ActionSpec) Validate() error {
	if a == nil {
		return nil
	}
	set := 0
	for _, p := range []bool{a.Prompt != nil, a.Shell != nil, a.SubWorkflow != nil, a.Wait != nil, a.Set != nil, a.Log != nil} {
		if p {
			set++
		}
	}
	if set != 1 {
		return fmt.Errorf("action %q must carry exactly one payload, found %d", a.Kind, set)
	}

	var ok bool
	switch a.Kind {
	case ActionPrompt:
		ok = a.Prompt != nil && (a.Prompt.Name != "" || a.Prompt.Inline != "")
	case ActionShell:
		ok = a.Shell != nil && a.Shell.Command != ""
	case ActionSubWorkflow:
		ok = a.SubWorkflow != nil && a.SubWorkflow.Workflow != ""
	case ActionWait:
		ok = a.Wait != nil && (a.Wait.Duration > 0 || a.Wait.Signal != "")
	case ActionSet:
		ok = a.Set != nil && len(a.Set.Assignments) > 0
	case ActionLog:
		ok = a.Log != nil
	default:
		return fmt.Errorf("unknown action kind %q", a.Kind)
	}
	if !ok {
		return fmt.Errorf("action %q has an incomplete payload", a.Kind)
	}
	return nil
}

// ActionResult is the outcome of executing an action.
// Cancelled results are not failures; the executor stops the run instead.
type ActionResult struct {
	Success   bool         `json:"success"`
	Output    any          `json:"output,omitempty"`
	Error     *ActionError `json:"error,omitempty"`
	Cancelled bool         `json:"cancelled,omitempty"`
}

// Succeeded builds a successful result.
func Succeeded(output any) ActionResult {
	return ActionResult{Success: true, Output: output}
}

// Failed builds a failed result.
func Failed(output any, err *ActionError) ActionResult {
	return ActionResult{Success: false, Output: output, Error: err}
}

// CancelledResult builds the result of an action interrupted by run cancellation.
func CancelledResult() ActionResult {
	return ActionResult{Cancelled: true}
}
