package ports

import (
	"context"

	"github.com/aretw0/weft/pkg/domain"
)

// RunStore defines the interface for persisting runs.
// It enables "Stop & Resume": the executor checkpoints after every step.
type RunStore interface {
	// Save persists the run under run.ID, replacing any previous record.
	Save(ctx context.Context, run *domain.Run) error

	// Load retrieves the run with the given ID.
	// Returns domain.ErrRunNotFound if the run does not exist.
	Load(ctx context.Context, runID string) (*domain.Run, error)

	// Delete removes the run. Deleting a missing run is not an error.
	Delete(ctx context.Context, runID string) error

	// List returns runs matching the filter, oldest first.
	List(ctx context.Context, filter RunFilter) ([]*domain.Run, error)
}

// RunFilter narrows RunStore.List results. Zero values match everything.
type RunFilter struct {
	Statuses []domain.RunStatus
	Workflow domain.WorkflowName
	ParentID string
	Limit    int
}

// Match reports whether the run satisfies the filter (ignoring Limit).
func (f RunFilter) Match(run *domain.Run) bool {
	if f.Workflow != "" && run.Workflow != f.Workflow {
		return false
	}
	if f.ParentID != "" && run.ParentID != f.ParentID {
		return false
	}
	if len(f.Statuses) == 0 {
		return true
	}
	for _, s := range f.Statuses {
		if run.Status == s {
			return true
		}
	}
	return false
}

// Apply filters, sorts by creation time, and truncates a candidate list.
func (f RunFilter) Apply(runs []*domain.Run) []*domain.Run {
	out := make([]*domain.Run, 0, len(runs))
	for _, r := range runs {
		if f.Match(r) {
			out = append(out, r)
		}
	}
	sortByCreation(out)
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out
}

// LogStore captures log lines per run.
type LogStore interface {
	Append(ctx context.Context, runID string, entry domain.LogEntry) error
	Read(ctx context.Context, runID string, query domain.LogQuery) ([]domain.LogEntry, error)
}
