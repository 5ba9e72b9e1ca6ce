package weft

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/aretw0/weft/internal/compiler"
	"github.com/aretw0/weft/internal/validator"
	"github.com/aretw0/weft/pkg/cache"
	"github.com/aretw0/weft/pkg/domain"
	"github.com/aretw0/weft/pkg/ports"
	"golang.org/x/sync/singleflight"
)

// definitions resolves workflow names to validated workflows.
// Validated workflows are cached by source hash; the latest one per name is
// memoized until the loader reports a change.
type definitions struct {
	loader ports.WorkflowLoader
	cache  *cache.Cache
	group  singleflight.Group
	logger *slog.Logger

	mu     sync.RWMutex
	latest map[domain.WorkflowName]*validator.Workflow
}

func newDefinitions(loader ports.WorkflowLoader, size int64, logger *slog.Logger) (*definitions, error) {
	c, err := cache.New(size)
	if err != nil {
		return nil, fmt.Errorf("failed to create definition cache: %w", err)
	}
	return &definitions{
		loader: loader,
		cache:  c,
		logger: logger,
		latest: make(map[domain.WorkflowName]*validator.Workflow),
	}, nil
}

// Resolve implements runtime.Resolver.
func (d *definitions) Resolve(ctx context.Context, name domain.WorkflowName) (*validator.Workflow, error) {
	d.mu.RLock()
	wf, ok := d.latest[name]
	d.mu.RUnlock()
	if ok {
		return wf, nil
	}

	v, err, _ := d.group.Do(string(name), func() (any, error) {
		src, err := d.loader.Source(ctx, name)
		if err != nil {
			return nil, err
		}
		wf, report, err := d.compile(src)
		if err != nil {
			return nil, err
		}
		if err := report.Err(); err != nil {
			return nil, err
		}
		d.mu.Lock()
		d.latest[name] = wf
		d.mu.Unlock()
		return wf, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*validator.Workflow), nil
}

// Report parses and analyzes a workflow without caching a failure.
func (d *definitions) Report(ctx context.Context, name domain.WorkflowName) (*validator.Report, error) {
	src, err := d.loader.Source(ctx, name)
	if err != nil {
		return nil, err
	}
	_, report, err := d.compile(src)
	return report, err
}

func (d *definitions) compile(src *domain.WorkflowSource) (*validator.Workflow, *validator.Report, error) {
	key := cache.Key(string(src.Name), string(src.Source), fmt.Sprint(src.Parameters))
	if cached, ok := d.cache.Get(key); ok {
		wf := cached.(*validator.Workflow)
		return wf, &validator.Report{Workflow: wf.Name()}, nil
	}

	def, err := compiler.Parse(src.Name, src.Source)
	if err != nil {
		return nil, nil, fmt.Errorf("workflow %q: %w", src.Name, err)
	}
	if def.Description == "" {
		def.Description = src.Description
	}
	if len(def.Parameters) == 0 {
		def.Parameters = src.Parameters
	}
	if def.Metadata == nil {
		def.Metadata = src.Metadata
	}

	wf, report := validator.Analyze(def)
	for _, w := range report.Warnings {
		d.logger.Debug("workflow warning", "workflow", src.Name, "kind", w.Kind, "msg", w.Msg)
	}
	if wf != nil {
		d.cache.Set(key, wf)
	}
	return wf, report, nil
}

// Invalidate forgets the memoized workflow for name. Changed sources get a
// new hash, so stale cache entries are never served.
func (d *definitions) Invalidate(name domain.WorkflowName) {
	d.mu.Lock()
	delete(d.latest, name)
	d.mu.Unlock()
}

// InvalidateAll forgets every memoized workflow.
func (d *definitions) InvalidateAll() {
	d.mu.Lock()
	clear(d.latest)
	d.mu.Unlock()
}

// watch invalidates entries as the loader reports changes, until ctx ends.
func (d *definitions) watch(ctx context.Context, w ports.Watchable) error {
	changes, err := w.Watch(ctx)
	if err != nil {
		return err
	}
	go func() {
		for name := range changes {
			d.logger.Debug("workflow changed", "workflow", name)
			if name == "" {
				d.InvalidateAll()
				continue
			}
			d.Invalidate(domain.WorkflowName(name))
		}
	}()
	return nil
}

func (d *definitions) close() {
	d.cache.Close()
}
