package domain

// WorkflowName uniquely identifies a workflow definition.
type WorkflowName string

// Parameter declares an input a workflow accepts when a Run is created.
type Parameter struct {
	Name        string `json:"name" yaml:"name" mapstructure:"name"`
	Type        string `json:"type,omitempty" yaml:"type,omitempty" mapstructure:"type"` // e.g. "string", "int", "[string]"
	Description string `json:"description,omitempty" yaml:"description,omitempty" mapstructure:"description"`
	Required    bool   `json:"required,omitempty" yaml:"required,omitempty" mapstructure:"required"`
	Default     any    `json:"default,omitempty" yaml:"default,omitempty" mapstructure:"default"`
}

// WorkflowDefinition is the immutable graph of a workflow.
type WorkflowDefinition struct {
	Name         WorkflowName      `json:"name" yaml:"name"`
	Description  string            `json:"description,omitempty" yaml:"description,omitempty"`
	InitialState StateID           `json:"initial_state" yaml:"initial_state"`
	States       []State           `json:"states" yaml:"states"`
	Transitions  []Transition      `json:"transitions" yaml:"transitions"`
	Parameters   []Parameter       `json:"parameters,omitempty" yaml:"parameters,omitempty"`
	Metadata     map[string]string `json:"metadata,omitempty" yaml:"metadata,omitempty"`
}

// State looks up a state by ID.
func (d *WorkflowDefinition) State(id StateID) (State, bool) {
	for _, s := range d.States {
		if s.ID == id {
			return s, true
		}
	}
	return State{}, false
}

// Outgoing returns the transitions leaving a state, in declaration order.
func (d *WorkflowDefinition) Outgoing(id StateID) []Transition {
	var out []Transition
	for _, t := range d.Transitions {
		if t.From == id {
			out = append(out, t)
		}
	}
	return out
}

// StatesOfKind returns the states with the given kind, in declaration order.
func (d *WorkflowDefinition) StatesOfKind(kind StateKind) []State {
	var out []State
	for _, s := range d.States {
		if s.Kind == kind {
			out = append(out, s)
		}
	}
	return out
}

// WorkflowSource is the raw, unparsed form of a workflow as returned by a loader.
type WorkflowSource struct {
	Name        WorkflowName      `json:"name"`
	Description string            `json:"description,omitempty"`
	Parameters  []Parameter       `json:"parameters,omitempty"`
	Metadata    map[string]string `json:"metadata,omitempty"`
	Source      []byte            `json:"-"`
	Origin      string            `json:"origin,omitempty"` // e.g. file path
}

// WorkflowMetadata summarizes a workflow for listing.
type WorkflowMetadata struct {
	Name        WorkflowName      `json:"name" yaml:"name"`
	Description string            `json:"description,omitempty" yaml:"description,omitempty"`
	Parameters  []Parameter       `json:"parameters,omitempty" yaml:"parameters,omitempty"`
	Metadata    map[string]string `json:"metadata,omitempty" yaml:"metadata,omitempty"`
	Origin      string            `json:"origin,omitempty" yaml:"origin,omitempty"`
}
