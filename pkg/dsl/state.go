package dsl

import (
	"time"

	"github.com/aretw0/weft/pkg/domain"
)

// StateBuilder provides a fluent API for configuring a state and the
// transitions leaving it. Transitions are evaluated in the order they are added.
type StateBuilder struct {
	state       domain.State
	transitions []domain.Transition
	builder     *Builder
}

// Describe sets the human-readable description.
func (s *StateBuilder) Describe(text string) *StateBuilder {
	s.state.Description = text
	return s
}

// Do attaches an arbitrary action. Later calls replace earlier ones.
func (s *StateBuilder) Do(action *domain.ActionSpec) *StateBuilder {
	s.state.Action = action
	return s
}

// Prompt runs a named prompt from the prompt library.
func (s *StateBuilder) Prompt(name string, params map[string]any) *StateBuilder {
	return s.Do(PromptAction(name, params))
}

// Ask runs an inline prompt.
func (s *StateBuilder) Ask(text string) *StateBuilder {
	return s.Do(action(domain.ActionPrompt, func(a *domain.ActionSpec) { a.Prompt = &domain.PromptAction{Inline: text} }))
}

// Shell runs a command.
func (s *StateBuilder) Shell(command string) *StateBuilder {
	return s.Do(ShellAction(command))
}

// Run starts a sub-workflow and waits for it.
func (s *StateBuilder) Run(workflow string, params map[string]any) *StateBuilder {
	return s.Do(action(domain.ActionSubWorkflow, func(a *domain.ActionSpec) {
		a.SubWorkflow = &domain.SubWorkflowAction{Workflow: domain.WorkflowName(workflow), Params: params}
	}))
}

// Wait pauses for a fixed duration.
func (s *StateBuilder) Wait(d time.Duration) *StateBuilder {
	return s.Do(action(domain.ActionWait, func(a *domain.ActionSpec) { a.Wait = &domain.WaitAction{Duration: d} }))
}

// WaitFor pauses until the named signal arrives. A zero timeout waits forever.
func (s *StateBuilder) WaitFor(signal string, timeout time.Duration) *StateBuilder {
	return s.Do(action(domain.ActionWait, func(a *domain.ActionSpec) {
		a.Wait = &domain.WaitAction{Signal: signal}
		a.Timeout = timeout
	}))
}

// Set writes a variable. Consecutive calls accumulate into one action.
func (s *StateBuilder) Set(key string, value any) *StateBuilder {
	if a := s.state.Action; a != nil && a.Kind == domain.ActionSet {
		a.Set.Assignments = append(a.Set.Assignments, domain.Assignment{Key: key, Value: value})
		return s
	}
	return s.Do(SetAction(key, value))
}

// Log emits a log line at the given level (debug, info, warn, error).
func (s *StateBuilder) Log(level, message string) *StateBuilder {
	return s.Do(LogAction(level, message))
}

// Timeout overrides the timeout of the current action.
func (s *StateBuilder) Timeout(d time.Duration) *StateBuilder {
	if s.state.Action != nil {
		s.state.Action.Timeout = d
	}
	return s
}

// Idempotent marks the current action as safe to re-run on resume.
func (s *StateBuilder) Idempotent() *StateBuilder {
	if s.state.Action != nil {
		s.state.Action.Idempotent = true
	}
	return s
}

// Result stores the output of the current action under key instead of "result".
func (s *StateBuilder) Result(key string) *StateBuilder {
	a := s.state.Action
	if a == nil {
		return s
	}
	switch a.Kind {
	case domain.ActionPrompt:
		a.Prompt.ResultVar = key
	case domain.ActionShell:
		a.Shell.ResultVar = key
	case domain.ActionSubWorkflow:
		a.SubWorkflow.ResultVar = key
	}
	return s
}

// Go adds an unconditional transition.
func (s *StateBuilder) Go(target string) *StateBuilder {
	return s.To(target, domain.Always())
}

// OnSuccess adds a transition taken when the state's action succeeded.
func (s *StateBuilder) OnSuccess(target string) *StateBuilder {
	return s.To(target, domain.OnSuccess())
}

// OnFailure adds a transition taken when the state's action failed.
func (s *StateBuilder) OnFailure(target string) *StateBuilder {
	return s.To(target, domain.OnFailure())
}

// When adds a transition guarded by a CEL expression.
func (s *StateBuilder) When(expr string, target string) *StateBuilder {
	return s.To(target, domain.Custom(expr))
}

// To adds a transition with an explicit condition.
func (s *StateBuilder) To(target string, cond domain.TransitionCondition) *StateBuilder {
	s.transitions = append(s.transitions, domain.Transition{From: s.state.ID, To: domain.StateID(target), Condition: cond})
	return s
}

// Then attaches an action to the most recently added transition.
func (s *StateBuilder) Then(action *domain.ActionSpec) *StateBuilder {
	if n := len(s.transitions); n > 0 {
		s.transitions[n-1].Action = action
	}
	return s
}

// Builder returns the owning workflow builder.
func (s *StateBuilder) Builder() *Builder {
	return s.builder
}

// Build returns the underlying domain.State.
func (s *StateBuilder) Build() domain.State {
	return s.state
}
