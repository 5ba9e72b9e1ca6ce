// Package loam serves workflows and prompts from a Loam document repository.
//
// Layout:
//
//	workflows/<name>.md   frontmatter (name, description, parameters, metadata) + mermaid body
//	prompts/<name>.md     frontmatter (name, description, system) + template body
package loam

import (
	"context"
	"fmt"
	"path/filepath"
	"sort"
	"strings"

	"github.com/aretw0/loam"
	"github.com/aretw0/loam/pkg/core"
	"github.com/aretw0/weft/pkg/domain"
)

const (
	DefaultWorkflowDir = "workflows"
	DefaultPromptDir   = "prompts"
)

// Library adapts a Loam repository to ports.WorkflowLoader, ports.Watchable
// and ports.PromptLibrary.
type Library struct {
	Workflows *loam.TypedRepository[WorkflowMetadata]
	Prompts   *loam.TypedRepository[PromptMetadata]

	workflowDir string
	promptDir   string
}

// Option configures a Library.
type Option func(*Library)

// WithDirs overrides the workflow and prompt folders.
func WithDirs(workflows, prompts string) Option {
	return func(l *Library) {
		l.workflowDir = strings.Trim(filepath.ToSlash(workflows), "/")
		l.promptDir = strings.Trim(filepath.ToSlash(prompts), "/")
	}
}

// New creates a Library over an initialized repository.
func New(repo core.Repository, opts ...Option) *Library {
	l := &Library{
		Workflows:   loam.NewTypedRepository[WorkflowMetadata](repo),
		Prompts:     loam.NewTypedRepository[PromptMetadata](repo),
		workflowDir: DefaultWorkflowDir,
		promptDir:   DefaultPromptDir,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Open initializes a read-only, strict Loam repository at dir.
// Strict mode makes every numeric frontmatter value a json.Number.
func Open(dir string, opts ...Option) (*Library, error) {
	absPath, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("invalid path: %w", err)
	}
	repo, err := loam.Init(absPath,
		loam.WithStrict(true),
		loam.WithReadOnly(true),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize loam: %w", err)
	}
	return New(repo, opts...), nil
}

// Source implements ports.WorkflowLoader.
func (l *Library) Source(ctx context.Context, name domain.WorkflowName) (*domain.WorkflowSource, error) {
	index, err := l.workflowIndex(ctx)
	if err != nil {
		return nil, err
	}
	src, ok := index[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", domain.ErrWorkflowNotFound, name)
	}
	return &src, nil
}

// List implements ports.WorkflowLoader.
func (l *Library) List(ctx context.Context) ([]domain.WorkflowSource, error) {
	index, err := l.workflowIndex(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]domain.WorkflowSource, 0, len(index))
	for _, src := range index {
		out = append(out, src)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (l *Library) workflowIndex(ctx context.Context) (map[domain.WorkflowName]domain.WorkflowSource, error) {
	docs, err := l.Workflows.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("loam list failed: %w", err)
	}

	index := make(map[domain.WorkflowName]domain.WorkflowSource)
	for _, doc := range docs {
		fileName, ok := underDir(doc.ID, l.workflowDir)
		if !ok {
			continue
		}
		name := domain.WorkflowName(fileName)
		if doc.Data.Name != "" {
			name = domain.WorkflowName(doc.Data.Name)
		}

		// Collision Detection
		if existing, dup := index[name]; dup {
			return nil, fmt.Errorf("collision detected: workflow '%s' is defined in both '%s' and '%s'", name, existing.Origin, doc.ID)
		}

		params, err := convertParameters(doc.Data.Parameters)
		if err != nil {
			return nil, fmt.Errorf("workflow %s: %w", name, err)
		}
		src := domain.WorkflowSource{
			Name:        name,
			Description: doc.Data.Description,
			Parameters:  params,
			Source:      []byte(strings.TrimSpace(doc.Content)),
			Origin:      doc.ID,
		}
		if len(doc.Data.Metadata) > 0 {
			src.Metadata = flattenMetadata(doc.Data.Metadata)
		}
		index[name] = src
	}
	return index, nil
}

// Prompt implements ports.PromptLibrary.
func (l *Library) Prompt(ctx context.Context, name string) (*domain.Prompt, error) {
	docs, err := l.Prompts.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("loam list failed: %w", err)
	}
	for _, doc := range docs {
		fileName, ok := underDir(doc.ID, l.promptDir)
		if !ok {
			continue
		}
		if fileName != name && doc.Data.Name != name {
			continue
		}
		return &domain.Prompt{
			Name:        name,
			Description: doc.Data.Description,
			System:      doc.Data.System,
			Body:        strings.TrimSpace(doc.Content),
		}, nil
	}
	return nil, fmt.Errorf("%w: %s", domain.ErrPromptNotFound, name)
}

// Watch implements ports.Watchable. It emits the file name of every changed
// workflow document.
func (l *Library) Watch(ctx context.Context) (<-chan string, error) {
	events, err := l.Workflows.Watch(ctx, l.workflowDir+"/**/*.md")
	if err != nil {
		return nil, fmt.Errorf("failed to start loam watcher: %w", err)
	}

	ch := make(chan string, 1)

	go func() {
		defer close(ch)
		for {
			select {
			case <-ctx.Done():
				return
			case evt, ok := <-events:
				if !ok {
					return
				}
				name, ok := underDir(evt.ID, l.workflowDir)
				if !ok {
					continue
				}
				select {
				case ch <- name:
				case <-ctx.Done():
					return
				}
			}
		}
	}()

	return ch, nil
}

// underDir reports the extension-less path of id relative to dir.
func underDir(id, dir string) (string, bool) {
	id = trimExtension(id)
	prefix := dir + "/"
	if !strings.HasPrefix(id, prefix) {
		return "", false
	}
	return strings.TrimPrefix(id, prefix), true
}

func trimExtension(id string) string {
	id = filepath.ToSlash(id)
	return strings.TrimSuffix(id, filepath.Ext(id))
}

func convertParameters(raw []ParameterMetadata) ([]domain.Parameter, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	out := make([]domain.Parameter, 0, len(raw))
	for _, p := range raw {
		if p.Name == "" {
			return nil, fmt.Errorf("parameter missing name")
		}
		param := domain.Parameter{
			Name:        p.Name,
			Description: p.Description,
			Required:    p.Required,
			Default:     p.Default,
		}
		if p.Type != nil {
			typeStr, err := formatSchemaType(p.Type)
			if err != nil {
				return nil, fmt.Errorf("parameters.%s.type: %w", p.Name, err)
			}
			param.Type = typeStr
		}
		out = append(out, param)
	}
	return out, nil
}

func formatSchemaType(value any) (string, error) {
	switch v := value.(type) {
	case string:
		return v, nil
	case []any:
		if len(v) != 1 {
			return "", fmt.Errorf("expected single element list for slice type")
		}
		inner, err := formatSchemaType(v[0])
		if err != nil {
			return "", err
		}
		return "[" + inner + "]", nil
	case []string:
		if len(v) != 1 {
			return "", fmt.Errorf("expected single element list for slice type")
		}
		return "[" + v[0] + "]", nil
	default:
		return "", fmt.Errorf("expected string or list, got %T", value)
	}
}

// flattenMetadata converts a nested map into a flat map[string]string using
// dot notation for keys. Lists are joined with spaces.
func flattenMetadata(src map[string]any) map[string]string {
	res := make(map[string]string)
	var visit func(prefix string, v any)

	visit = func(prefix string, v any) {
		switch val := v.(type) {
		case map[string]any:
			for k, sub := range val {
				visit(join(prefix, k), sub)
			}
		case map[any]any: // YAML often decodes to this
			for k, sub := range val {
				visit(join(prefix, fmt.Sprintf("%v", k)), sub)
			}
		case []any:
			var parts []string
			for _, item := range val {
				parts = append(parts, fmt.Sprintf("%v", item))
			}
			res[prefix] = strings.Join(parts, " ")
		default:
			if prefix != "" {
				res[prefix] = fmt.Sprintf("%v", val)
			}
		}
	}

	for k, v := range src {
		visit(k, v)
	}
	return res
}

func join(prefix, key string) string {
	if prefix == "" {
		return key
	}
	return prefix + "." + key
}
