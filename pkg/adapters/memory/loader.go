package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/aretw0/weft/internal/presentation/graph"
	"github.com/aretw0/weft/pkg/domain"
)

// Loader implements ports.WorkflowLoader and ports.Watchable using an in-memory map.
type Loader struct {
	mu       sync.RWMutex
	sources  map[domain.WorkflowName]domain.WorkflowSource
	watchers []chan string
}

// NewLoader creates a new Loader with the provided raw diagram sources.
func NewLoader(data map[string]string) *Loader {
	l := &Loader{sources: make(map[domain.WorkflowName]domain.WorkflowSource)}
	for name, src := range data {
		l.sources[domain.WorkflowName(name)] = domain.WorkflowSource{
			Name:   domain.WorkflowName(name),
			Source: []byte(src),
			Origin: "memory",
		}
	}
	return l
}

// NewFromDefinitions creates a Loader from domain objects.
// Definitions are rendered to diagram source, improving DX for tests and embedding.
func NewFromDefinitions(defs ...*domain.WorkflowDefinition) (*Loader, error) {
	l := NewLoader(nil)
	for _, def := range defs {
		if def.Name == "" {
			return nil, fmt.Errorf("definition missing name")
		}
		l.sources[def.Name] = domain.WorkflowSource{
			Name:        def.Name,
			Description: def.Description,
			Parameters:  def.Parameters,
			Metadata:    def.Metadata,
			Source:      []byte(graph.RenderDiagram(def, nil)),
			Origin:      "memory",
		}
	}
	return l, nil
}

// Put adds or replaces a workflow and notifies watchers.
func (l *Loader) Put(src domain.WorkflowSource) {
	l.mu.Lock()
	if src.Origin == "" {
		src.Origin = "memory"
	}
	l.sources[src.Name] = src
	defer l.mu.Unlock()

	for _, ch := range l.watchers {
		select {
		case ch <- string(src.Name):
		default:
		}
	}
}

// Source retrieves the raw definition of a workflow.
func (l *Loader) Source(ctx context.Context, name domain.WorkflowName) (*domain.WorkflowSource, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	src, ok := l.sources[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", domain.ErrWorkflowNotFound, name)
	}
	src.Source = append([]byte(nil), src.Source...)
	return &src, nil
}

// List returns all available workflows sorted by name.
func (l *Loader) List(ctx context.Context) ([]domain.WorkflowSource, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]domain.WorkflowSource, 0, len(l.sources))
	for _, src := range l.sources {
		out = append(out, src)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name }) // Deterministic order
	return out, nil
}

// Watch returns a channel receiving the name of every workflow passed to Put.
// The channel is closed when ctx is done.
func (l *Loader) Watch(ctx context.Context) (<-chan string, error) {
	ch := make(chan string, 16)
	l.mu.Lock()
	l.watchers = append(l.watchers, ch)
	l.mu.Unlock()

	go func() {
		<-ctx.Done()
		l.mu.Lock()
		defer l.mu.Unlock()
		for i, w := range l.watchers {
			if w == ch {
				l.watchers = append(l.watchers[:i], l.watchers[i+1:]...)
				break
			}
		}
		close(ch)
	}()
	return ch, nil
}

// Prompts implements ports.PromptLibrary over a fixed set of prompts.
type Prompts struct {
	prompts map[string]domain.Prompt
}

// NewPrompts creates a prompt library.
func NewPrompts(prompts ...domain.Prompt) *Prompts {
	p := &Prompts{prompts: make(map[string]domain.Prompt, len(prompts))}
	for _, pr := range prompts {
		p.prompts[pr.Name] = pr
	}
	return p
}

// Prompt returns the named prompt.
func (p *Prompts) Prompt(ctx context.Context, name string) (*domain.Prompt, error) {
	pr, ok := p.prompts[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", domain.ErrPromptNotFound, name)
	}
	return &pr, nil
}
