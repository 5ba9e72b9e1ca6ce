package validator

import (
	"fmt"
	"strings"

	"github.com/aretw0/weft/pkg/domain"
)

// WarningKind classifies non-fatal findings.
type WarningKind string

const (
	WarnUnreachableState   WarningKind = "UnreachableState"
	WarnEndStateAction     WarningKind = "EndStateAction"
	WarnShadowedTransition WarningKind = "ShadowedTransition"
	WarnDeadEnd            WarningKind = "DeadEnd"
)

// Warning is reported but does not block execution.
type Warning struct {
	Kind   WarningKind      `json:"kind"`
	States []domain.StateID `json:"states"`
	Msg    string           `json:"message"`
}

func (w Warning) String() string {
	return fmt.Sprintf("%s: %s", w.Kind, w.Msg)
}

// Report lists everything Analyze found.
type Report struct {
	Workflow domain.WorkflowName
	Errors   []*domain.GraphError
	Warnings []Warning
}

// OK reports whether the definition may be executed.
func (r *Report) OK() bool {
	return len(r.Errors) == 0
}

// Err returns a *domain.ValidationError, or nil when there are no errors.
func (r *Report) Err() error {
	if r.OK() {
		return nil
	}
	return &domain.ValidationError{Workflow: r.Workflow, Errors: r.Errors}
}

func (r *Report) fail(kind domain.GraphErrorKind, states []domain.StateID, format string, args ...any) {
	r.Errors = append(r.Errors, &domain.GraphError{Kind: kind, States: states, Msg: fmt.Sprintf(format, args...)})
}

func (r *Report) warn(kind WarningKind, states []domain.StateID, format string, args ...any) {
	r.Warnings = append(r.Warnings, Warning{Kind: kind, States: states, Msg: fmt.Sprintf(format, args...)})
}

// Workflow is a definition that passed analysis.
// Only Analyze constructs it; the executor refuses anything else.
type Workflow struct {
	def      *domain.WorkflowDefinition
	states   map[domain.StateID]domain.State
	outgoing map[domain.StateID][]domain.Transition
}

// Definition returns the underlying definition. Callers must not mutate it.
func (w *Workflow) Definition() *domain.WorkflowDefinition { return w.def }

// Name returns the workflow name.
func (w *Workflow) Name() domain.WorkflowName { return w.def.Name }

// Initial returns the start state.
func (w *Workflow) Initial() domain.StateID { return w.def.InitialState }

// State looks up a state.
func (w *Workflow) State(id domain.StateID) (domain.State, bool) {
	s, ok := w.states[id]
	return s, ok
}

// Outgoing returns the transitions leaving a state in declaration order.
func (w *Workflow) Outgoing(id domain.StateID) []domain.Transition {
	return w.outgoing[id]
}

// Analyze validates a definition. The returned Workflow is nil unless the
// report has no errors.
func Analyze(def *domain.WorkflowDefinition) (*Workflow, *Report) {
	report := &Report{}
	if def == nil {
		report.fail(domain.GraphMissingStart, nil, "no definition")
		return nil, report
	}
	report.Workflow = def.Name

	g := newGraph(def)

	starts := def.StatesOfKind(domain.StateStart)
	switch {
	case len(starts) == 0:
		report.fail(domain.GraphMissingStart, nil, "workflow has no start state")
	case len(starts) > 1:
		report.fail(domain.GraphMultipleStart, stateIDs(starts), "workflow has %d start states: %s", len(starts), joinIDs(stateIDs(starts)))
	case def.InitialState != starts[0].ID:
		report.fail(domain.GraphMissingStart, []domain.StateID{def.InitialState}, "initial state %q is not the start state %q", def.InitialState, starts[0].ID)
	}

	for _, t := range def.Transitions {
		var missing []domain.StateID
		if _, ok := g.states[t.From]; !ok {
			missing = append(missing, t.From)
		}
		if _, ok := g.states[t.To]; !ok {
			missing = append(missing, t.To)
		}
		if len(missing) > 0 {
			report.fail(domain.GraphDanglingTransition, missing, "transition %s --> %s references undeclared state %s", t.From, t.To, joinIDs(missing))
		}
		if err := t.Action.Validate(); err != nil {
			report.fail(domain.GraphInvalidAction, []domain.StateID{t.From, t.To}, "transition %s --> %s: %v", t.From, t.To, err)
		}
	}

	for _, s := range def.States {
		if err := s.Action.Validate(); err != nil {
			report.fail(domain.GraphInvalidAction, []domain.StateID{s.ID}, "state %q: %v", s.ID, err)
		}
		out := g.outgoing[s.ID]
		if s.IsTerminal() {
			if len(out) > 0 {
				report.fail(domain.GraphTerminalHasTransitions, []domain.StateID{s.ID}, "end state %q has %d outgoing transitions", s.ID, len(out))
			}
			if s.Action != nil {
				report.warn(WarnEndStateAction, []domain.StateID{s.ID}, "action on end state %q never runs", s.ID)
			}
			continue
		}
		if len(out) == 0 {
			report.warn(WarnDeadEnd, []domain.StateID{s.ID}, "state %q has no outgoing transitions", s.ID)
		}
		for i, t := range out {
			if t.Condition.Kind == domain.ConditionAlways && i < len(out)-1 {
				report.warn(WarnShadowedTransition, []domain.StateID{s.ID}, "%d transition(s) after %s --> %s can never fire", len(out)-1-i, s.ID, t.To)
				break
			}
		}
	}

	if len(starts) == 1 {
		reachable := g.reachable(starts[0].ID)
		var unreachable []domain.StateID
		endReached := false
		for _, s := range def.States {
			if !reachable[s.ID] {
				unreachable = append(unreachable, s.ID)
			} else if s.IsTerminal() {
				endReached = true
			}
		}
		for _, id := range unreachable {
			report.warn(WarnUnreachableState, []domain.StateID{id}, "state %q is not reachable from %q", id, starts[0].ID)
		}
		if !endReached {
			report.fail(domain.GraphNoReachableEnd, nil, "no end state is reachable from %q", starts[0].ID)
		}
	}

	for _, scc := range g.components() {
		if !g.cyclic(scc) || g.guarded(scc) {
			continue
		}
		report.fail(domain.GraphCircularDependency, scc, "cycle %s has no custom or on_failure guard that can exit it", joinIDs(scc))
	}

	if !report.OK() {
		return nil, report
	}
	return &Workflow{def: def, states: g.states, outgoing: g.outgoing}, report
}

func stateIDs(states []domain.State) []domain.StateID {
	out := make([]domain.StateID, len(states))
	for i, s := range states {
		out[i] = s.ID
	}
	return out
}

func joinIDs(ids []domain.StateID) string {
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = string(id)
	}
	return strings.Join(parts, ", ")
}
