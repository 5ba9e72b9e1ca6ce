package metrics

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/aretw0/weft/pkg/domain"
)

// StateKey identifies a state across workflows.
type StateKey struct {
	Workflow domain.WorkflowName `json:"workflow"`
	State    domain.StateID      `json:"state"`
}

// StateStats summarizes the executions of one state.
type StateStats struct {
	StateKey
	Count int64         `json:"count"`
	Total time.Duration `json:"total"`
	Min   time.Duration `json:"min"`
	Max   time.Duration `json:"max"`
}

// Mean returns the average execution time, or zero before the first execution.
func (s StateStats) Mean() time.Duration {
	if s.Count == 0 {
		return 0
	}
	return s.Total / time.Duration(s.Count)
}

func (s *StateStats) observe(d time.Duration) {
	if s.Count == 0 || d < s.Min {
		s.Min = d
	}
	if d > s.Max {
		s.Max = d
	}
	s.Count++
	s.Total += d
}

// RunStats counts runs by outcome.
type RunStats struct {
	Started   int64 `json:"started"`
	Completed int64 `json:"completed"`
	Failed    int64 `json:"failed"`
	Cancelled int64 `json:"cancelled"`
}

// Active is the number of runs started but not yet finished.
func (r RunStats) Active() int64 {
	return r.Started - r.Completed - r.Failed - r.Cancelled
}

// Summary is a point-in-time copy of a Collector.
type Summary struct {
	Runs   RunStats     `json:"runs"`
	States []StateStats `json:"states"`
}

// Collector aggregates lifecycle events in memory. Safe for concurrent use.
type Collector struct {
	mu     sync.Mutex
	runs   RunStats
	states map[StateKey]*StateStats
}

// NewCollector creates an empty Collector.
func NewCollector() *Collector {
	return &Collector{states: make(map[StateKey]*StateStats)}
}

// Hooks returns lifecycle hooks feeding this collector.
func (c *Collector) Hooks() domain.LifecycleHooks {
	return domain.LifecycleHooks{
		OnRunStart: func(_ context.Context, e *domain.RunEvent) {
			c.mu.Lock()
			c.runs.Started++
			c.mu.Unlock()
		},
		OnRunFinish: func(_ context.Context, e *domain.RunEvent) {
			c.RecordRun(e.Status)
		},
		OnStateLeave: func(_ context.Context, e *domain.StateEvent) {
			c.RecordState(e.Workflow, e.State, e.Duration)
		},
	}
}

// RecordRun counts a finished run.
func (c *Collector) RecordRun(status domain.RunStatus) {
	c.mu.Lock()
	defer c.mu.Unlock()
	switch status {
	case domain.RunCompleted:
		c.runs.Completed++
	case domain.RunFailed:
		c.runs.Failed++
	case domain.RunCancelled:
		c.runs.Cancelled++
	}
}

// RecordState adds one execution of a state.
func (c *Collector) RecordState(workflow domain.WorkflowName, state domain.StateID, d time.Duration) {
	key := StateKey{Workflow: workflow, State: state}
	c.mu.Lock()
	defer c.mu.Unlock()
	s, ok := c.states[key]
	if !ok {
		s = &StateStats{StateKey: key}
		c.states[key] = s
	}
	s.observe(d)
}

// State returns the statistics of one state.
func (c *Collector) State(workflow domain.WorkflowName, state domain.StateID) (StateStats, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	s, ok := c.states[StateKey{Workflow: workflow, State: state}]
	if !ok {
		return StateStats{}, false
	}
	return *s, true
}

// Summary copies the current statistics, states sorted by workflow then state.
func (c *Collector) Summary() Summary {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := Summary{Runs: c.runs, States: make([]StateStats, 0, len(c.states))}
	for _, s := range c.states {
		out.States = append(out.States, *s)
	}
	sort.Slice(out.States, func(i, j int) bool {
		a, b := out.States[i], out.States[j]
		if a.Workflow != b.Workflow {
			return a.Workflow < b.Workflow
		}
		return a.State < b.State
	})
	return out
}

// Reset clears all statistics.
func (c *Collector) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.runs = RunStats{}
	c.states = make(map[StateKey]*StateStats)
}
