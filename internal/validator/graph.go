package validator

import (
	"sort"

	"github.com/aretw0/weft/pkg/domain"
)

type graph struct {
	order    map[domain.StateID]int
	ids      []domain.StateID
	states   map[domain.StateID]domain.State
	outgoing map[domain.StateID][]domain.Transition
	// live drops never transitions, transitions to unknown states and
	// everything after the first always transition of a state.
	live map[domain.StateID][]domain.Transition
}

func newGraph(def *domain.WorkflowDefinition) *graph {
	g := &graph{
		order:    make(map[domain.StateID]int, len(def.States)),
		states:   make(map[domain.StateID]domain.State, len(def.States)),
		outgoing: make(map[domain.StateID][]domain.Transition),
		live:     make(map[domain.StateID][]domain.Transition),
	}
	for i, s := range def.States {
		if _, dup := g.states[s.ID]; dup {
			continue
		}
		g.order[s.ID] = i
		g.ids = append(g.ids, s.ID)
		g.states[s.ID] = s
	}
	for _, t := range def.Transitions {
		g.outgoing[t.From] = append(g.outgoing[t.From], t)
	}
	for from, out := range g.outgoing {
		for _, t := range out {
			if _, ok := g.states[t.To]; !ok || t.Condition.Kind == domain.ConditionNever {
				continue
			}
			g.live[from] = append(g.live[from], t)
			if t.Condition.Kind == domain.ConditionAlways {
				break
			}
		}
	}
	return g
}

// edges yields the targets a state can actually move to.
func (g *graph) edges(id domain.StateID) []domain.StateID {
	out := make([]domain.StateID, 0, len(g.live[id]))
	for _, t := range g.live[id] {
		out = append(out, t.To)
	}
	return out
}

func (g *graph) reachable(from domain.StateID) map[domain.StateID]bool {
	seen := map[domain.StateID]bool{from: true}
	queue := []domain.StateID{from}
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		if s, ok := g.states[id]; ok && s.IsTerminal() {
			continue
		}
		for _, next := range g.edges(id) {
			if !seen[next] {
				seen[next] = true
				queue = append(queue, next)
			}
		}
	}
	return seen
}

// components returns the strongly connected components (Tarjan), each sorted
// by declaration order, and ordered by their first member.
func (g *graph) components() [][]domain.StateID {
	var (
		index   = 0
		indices = make(map[domain.StateID]int)
		lowlink = make(map[domain.StateID]int)
		onStack = make(map[domain.StateID]bool)
		stack   []domain.StateID
		result  [][]domain.StateID
	)

	var strongConnect func(v domain.StateID)
	strongConnect = func(v domain.StateID) {
		indices[v] = index
		lowlink[v] = index
		index++
		stack = append(stack, v)
		onStack[v] = true

		for _, w := range g.edges(v) {
			if _, visited := indices[w]; !visited {
				strongConnect(w)
				lowlink[v] = min(lowlink[v], lowlink[w])
			} else if onStack[w] {
				lowlink[v] = min(lowlink[v], indices[w])
			}
		}

		if lowlink[v] == indices[v] {
			var scc []domain.StateID
			for {
				w := stack[len(stack)-1]
				stack = stack[:len(stack)-1]
				onStack[w] = false
				scc = append(scc, w)
				if w == v {
					break
				}
			}
			result = append(result, scc)
		}
	}

	for _, id := range g.ids {
		if _, visited := indices[id]; !visited {
			strongConnect(id)
		}
	}

	for _, scc := range result {
		sort.Slice(scc, func(i, j int) bool { return g.order[scc[i]] < g.order[scc[j]] })
	}
	sort.Slice(result, func(i, j int) bool { return g.order[result[i][0]] < g.order[result[j][0]] })
	return result
}

// cyclic reports whether a component loops: several states, or one with a self edge.
func (g *graph) cyclic(scc []domain.StateID) bool {
	if len(scc) > 1 {
		return true
	}
	for _, to := range g.edges(scc[0]) {
		if to == scc[0] {
			return true
		}
	}
	return false
}

// guarded reports whether a cycle is intended. That holds when a custom or
// on_failure transition leaves it, or when the loop itself is conditional
// (a custom or on_failure edge inside) and some live transition leaves it.
func (g *graph) guarded(scc []domain.StateID) bool {
	members := make(map[domain.StateID]bool, len(scc))
	for _, id := range scc {
		members[id] = true
	}

	hasExit, conditionalLoop := false, false
	for _, id := range scc {
		for _, t := range g.live[id] {
			escaping := t.Condition.Kind == domain.ConditionCustom || t.Condition.Kind == domain.ConditionOnFailure
			if !members[t.To] {
				if escaping {
					return true
				}
				hasExit = true
			} else if escaping {
				conditionalLoop = true
			}
		}
	}
	return hasExit && conditionalLoop
}
