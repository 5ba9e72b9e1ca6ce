package domain

import "strings"

// ConditionKind is the tag of a TransitionCondition.
type ConditionKind string

const (
	ConditionAlways    ConditionKind = "always"
	ConditionNever     ConditionKind = "never"
	ConditionOnSuccess ConditionKind = "on_success"
	ConditionOnFailure ConditionKind = "on_failure"
	ConditionCustom    ConditionKind = "custom"
)

// TransitionCondition decides whether a transition fires.
// Expression is only meaningful for ConditionCustom.
type TransitionCondition struct {
	Kind       ConditionKind `json:"kind" yaml:"kind"`
	Expression string        `json:"expression,omitempty" yaml:"expression,omitempty"`
}

// Always returns a condition that always matches.
func Always() TransitionCondition { return TransitionCondition{Kind: ConditionAlways} }

// Never returns a condition that never matches.
func Never() TransitionCondition { return TransitionCondition{Kind: ConditionNever} }

// OnSuccess matches when the preceding action succeeded.
func OnSuccess() TransitionCondition { return TransitionCondition{Kind: ConditionOnSuccess} }

// OnFailure matches when the preceding action failed.
func OnFailure() TransitionCondition { return TransitionCondition{Kind: ConditionOnFailure} }

// Custom delegates matching to the condition evaluator.
func Custom(expr string) TransitionCondition {
	return TransitionCondition{Kind: ConditionCustom, Expression: strings.TrimSpace(expr)}
}

// String renders the condition the way it is written on a diagram edge.
func (c TransitionCondition) String() string {
	if c.Kind == ConditionCustom {
		return c.Expression
	}
	if c.Kind == "" {
		return string(ConditionAlways)
	}
	return string(c.Kind)
}

// Transition defines a conditioned edge between two states.
// Transitions leaving the same state are evaluated in declaration order.
type Transition struct {
	From      StateID             `json:"from" yaml:"from"`
	To        StateID             `json:"to" yaml:"to"`
	Condition TransitionCondition `json:"condition" yaml:"condition"`
	Action    *ActionSpec         `json:"action,omitempty" yaml:"action,omitempty"`
	Metadata  map[string]string   `json:"metadata,omitempty" yaml:"metadata,omitempty"`
}
