package dsl

import (
	"fmt"

	"github.com/aretw0/weft/internal/validator"
	"github.com/aretw0/weft/pkg/adapters/memory"
	"github.com/aretw0/weft/pkg/domain"
)

// Builder manages the workflow construction. States keep the order in which
// they were first added.
type Builder struct {
	def    domain.WorkflowDefinition
	order  []domain.StateID
	states map[domain.StateID]*StateBuilder
}

// New creates a new workflow builder.
func New(name string) *Builder {
	return &Builder{
		def:    domain.WorkflowDefinition{Name: domain.WorkflowName(name)},
		states: make(map[domain.StateID]*StateBuilder),
	}
}

// Describe sets the workflow description.
func (b *Builder) Describe(text string) *Builder {
	b.def.Description = text
	return b
}

// Param declares a workflow parameter.
func (b *Builder) Param(p domain.Parameter) *Builder {
	b.def.Parameters = append(b.def.Parameters, p)
	return b
}

// Meta attaches a metadata entry.
func (b *Builder) Meta(key, value string) *Builder {
	if b.def.Metadata == nil {
		b.def.Metadata = make(map[string]string)
	}
	b.def.Metadata[key] = value
	return b
}

// Start adds the entry state.
func (b *Builder) Start(id string) *StateBuilder {
	b.def.InitialState = domain.StateID(id)
	return b.add(id, domain.StateStart)
}

// State adds a normal state.
// If the state already exists, it returns the existing builder.
func (b *Builder) State(id string) *StateBuilder {
	return b.add(id, domain.StateNormal)
}

// Compensation adds a state tagged as an undo step.
func (b *Builder) Compensation(id string) *StateBuilder {
	return b.add(id, domain.StateCompensation)
}

// End adds a terminal state.
func (b *Builder) End(id string) *StateBuilder {
	return b.add(id, domain.StateEnd)
}

func (b *Builder) add(id string, kind domain.StateKind) *StateBuilder {
	sid := domain.StateID(id)
	if sb, ok := b.states[sid]; ok {
		if kind != domain.StateNormal {
			sb.state.Kind = kind
		}
		return sb
	}
	sb := &StateBuilder{state: domain.State{ID: sid, Kind: kind}, builder: b}
	b.states[sid] = sb
	b.order = append(b.order, sid)
	return sb
}

// Definition assembles and validates the workflow.
// The error is a *domain.ValidationError when the graph is invalid.
func (b *Builder) Definition() (*domain.WorkflowDefinition, error) {
	def := b.def
	def.States = make([]domain.State, 0, len(b.order))
	def.Transitions = nil
	for _, id := range b.order {
		sb := b.states[id]
		def.States = append(def.States, sb.state)
		def.Transitions = append(def.Transitions, sb.transitions...)
	}

	if _, report := validator.Analyze(&def); !report.OK() {
		return nil, report.Err()
	}
	return &def, nil
}

// Build compiles the workflow into a memory.Loader.
func (b *Builder) Build() (*memory.Loader, error) {
	def, err := b.Definition()
	if err != nil {
		return nil, err
	}

	loader, err := memory.NewFromDefinitions(def)
	if err != nil {
		return nil, fmt.Errorf("failed to build memory loader: %w", err)
	}
	return loader, nil
}
