package ports

import (
	"context"

	"github.com/aretw0/weft/pkg/domain"
)

// WorkflowLoader defines how the engine retrieves workflow sources.
// This allows the storage layer (Loam, FS, Memory) to be decoupled.
type WorkflowLoader interface {
	// Source retrieves the raw definition of a workflow by name.
	// Returns domain.ErrWorkflowNotFound if no such workflow exists.
	Source(ctx context.Context, name domain.WorkflowName) (*domain.WorkflowSource, error)

	// List returns every workflow available, sorted by name.
	List(ctx context.Context) ([]domain.WorkflowSource, error)
}

// Watchable defines an interface for loaders that can notify about backend changes.
// This is typically used to invalidate cached definitions (hot reload).
type Watchable interface {
	// Watch returns a channel that receives the name of each changed workflow.
	Watch(ctx context.Context) (<-chan string, error)
}

// PromptLibrary resolves named prompts for prompt actions.
type PromptLibrary interface {
	// Prompt returns domain.ErrPromptNotFound if no such prompt exists.
	Prompt(ctx context.Context, name string) (*domain.Prompt, error)
}
