package weft

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/aretw0/weft/internal/logging"
	"github.com/aretw0/weft/internal/runtime"
	"github.com/aretw0/weft/internal/validator"
	"github.com/aretw0/weft/pkg/adapters/loam"
	"github.com/aretw0/weft/pkg/adapters/memory"
	"github.com/aretw0/weft/pkg/adapters/process"
	"github.com/aretw0/weft/pkg/checkpoint"
	"github.com/aretw0/weft/pkg/condition"
	"github.com/aretw0/weft/pkg/domain"
	"github.com/aretw0/weft/pkg/ports"
	"github.com/aretw0/weft/pkg/schema"
	"github.com/google/uuid"
)

// DefaultLogCapacity is the number of log lines kept per run by the default log store.
const DefaultLogCapacity = 1000

// Engine is the high-level entry point of weft.
// It resolves workflows, creates runs and drives them through the executor.
// One Engine drives any number of concurrent runs.
type Engine struct {
	loader        ports.WorkflowLoader
	prompts       ports.PromptLibrary
	store         ports.RunStore
	logs          ports.LogStore
	locker        ports.DistributedLocker
	evaluator     ports.ConditionEvaluator
	agent         ports.AgentExecutor
	shell         ports.ShellRunner
	hooks         domain.LifecycleHooks
	logger        *slog.Logger
	maxDepth      int
	actionTimeout time.Duration
	pollInterval  time.Duration
	cacheSize     int64
	newID         func() string

	defs *definitions
	runs *checkpoint.Manager
	exec *runtime.Executor

	base   context.Context
	stop   context.CancelFunc
	mu     sync.Mutex
	active map[string]*activeRun
	wg     sync.WaitGroup

	// Name labels the engine, usually the project directory.
	Name string
}

type activeRun struct {
	cancel context.CancelFunc
	done   chan struct{}
}

// New initializes an Engine.
// By default workflows and prompts are read from a Loam repository at dir.
// If WithLoader is provided, dir can be empty and Loam is skipped.
func New(dir string, opts ...Option) (*Engine, error) {
	eng := &Engine{
		maxDepth:      runtime.DefaultMaxDepth,
		actionTimeout: runtime.DefaultActionTimeout,
		pollInterval:  runtime.DefaultPollInterval,
		cacheSize:     256,
		newID:         uuid.NewString,
		active:        make(map[string]*activeRun),
	}
	for _, opt := range opts {
		opt(eng)
	}

	if eng.loader == nil {
		if dir == "" {
			return nil, fmt.Errorf("dir is required when no custom loader is provided")
		}
		abs, err := filepath.Abs(dir)
		if err != nil {
			return nil, fmt.Errorf("invalid path: %w", err)
		}
		lib, err := loam.Open(abs)
		if err != nil {
			return nil, fmt.Errorf("failed to open workflow library: %w", err)
		}
		eng.loader = lib
		eng.Name = filepath.Base(abs)
	} else if dir != "" {
		eng.Name = filepath.Base(dir)
	}

	if eng.prompts == nil {
		if p, ok := eng.loader.(ports.PromptLibrary); ok {
			eng.prompts = p
		}
	}
	if eng.logger == nil {
		eng.logger = logging.NewNop()
	}
	if eng.logs == nil {
		eng.logs = memory.NewLogStore(DefaultLogCapacity)
	}
	// Records carrying run_id are also written to the run's log.
	eng.logger = slog.New(logging.NewRunLogHandler(eng.logger.Handler(), eng.logs))
	if eng.Name != "" {
		eng.logger = eng.logger.With("project", eng.Name)
	}

	if eng.store == nil {
		eng.store = memory.NewStore()
	}
	if eng.evaluator == nil {
		ev, err := condition.New(condition.WithLogger(eng.logger))
		if err != nil {
			return nil, err
		}
		eng.evaluator = ev
	}
	if eng.shell == nil {
		eng.shell = process.NewRunner(process.WithLogger(eng.logger))
	}

	defs, err := newDefinitions(eng.loader, eng.cacheSize, eng.logger)
	if err != nil {
		return nil, err
	}
	eng.defs = defs

	managerOpts := []checkpoint.Option{checkpoint.WithLogger(eng.logger)}
	if eng.locker != nil {
		managerOpts = append(managerOpts, checkpoint.WithLocker(eng.locker))
	}
	eng.runs = checkpoint.NewManager(eng.store, managerOpts...)

	eng.exec = runtime.NewExecutor(
		runtime.WithCheckpoints(eng.runs),
		runtime.WithResolver(eng.defs),
		runtime.WithEvaluator(eng.evaluator),
		runtime.WithAgent(eng.agent),
		runtime.WithPrompts(eng.prompts),
		runtime.WithShell(eng.shell),
		runtime.WithLifecycleHooks(eng.hooks),
		runtime.WithLogger(eng.logger),
		runtime.WithMaxDepth(eng.maxDepth),
		runtime.WithActionTimeout(eng.actionTimeout),
		runtime.WithPollInterval(eng.pollInterval),
		runtime.WithIDGenerator(eng.newID),
	)

	eng.base, eng.stop = context.WithCancel(context.Background())
	if w, ok := eng.loader.(ports.Watchable); ok {
		if err := eng.defs.watch(eng.base, w); err != nil {
			eng.logger.Debug("workflow watch unavailable", "err", err)
		}
	}
	return eng, nil
}

// Create validates vars against the workflow parameters and persists a new
// run in the created status without executing it.
func (e *Engine) Create(ctx context.Context, name domain.WorkflowName, vars map[string]any) (*domain.Run, error) {
	wf, err := e.defs.Resolve(ctx, name)
	if err != nil {
		return nil, err
	}
	resolved, err := schema.Resolve(wf.Definition().Parameters, vars)
	if err != nil {
		return nil, fmt.Errorf("workflow %q: %w", name, err)
	}
	run := domain.NewRun(e.newID(), wf.Definition(), resolved)
	if err := e.runs.Save(ctx, run); err != nil {
		return nil, fmt.Errorf("failed to save run: %w", err)
	}
	e.logger.Info("run created", "run_id", run.ID, "workflow", name)
	return run.Snapshot(), nil
}

// Run creates a run and drives it to a terminal status on the caller's
// goroutine. The returned error is the *domain.ExecutorError that failed
// the run, if any; a cancelled run is not an error.
func (e *Engine) Run(ctx context.Context, name domain.WorkflowName, vars map[string]any) (*domain.Run, error) {
	run, err := e.Create(ctx, name, vars)
	if err != nil {
		return nil, err
	}
	return e.drive(ctx, run)
}

// Start creates a run and drives it in the background. Use Wait, Status or
// Cancel with the returned id.
func (e *Engine) Start(ctx context.Context, name domain.WorkflowName, vars map[string]any) (*domain.Run, error) {
	run, err := e.Create(ctx, name, vars)
	if err != nil {
		return nil, err
	}
	snap := run.Snapshot()
	if err := e.launch(run); err != nil {
		return nil, err
	}
	return snap, nil
}

// Step advances a stored run by exactly one state.
func (e *Engine) Step(ctx context.Context, id string) (*domain.Run, error) {
	run, wf, err := e.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := runtime.CheckResume(wf, run, false); err != nil {
		return nil, err
	}
	runCtx, done, err := e.register(ctx, id)
	if err != nil {
		return nil, err
	}
	defer done()

	err = e.exec.Step(runCtx, wf, run)
	return run.Snapshot(), err
}

// Resume continues a stored, non-terminal run on the caller's goroutine.
// A run interrupted inside a non-idempotent action is refused unless force
// is set, since resuming re-executes that action.
func (e *Engine) Resume(ctx context.Context, id string, force bool) (*domain.Run, error) {
	run, wf, err := e.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := runtime.CheckResume(wf, run, force); err != nil {
		return nil, err
	}
	if run.InFlight != "" {
		e.logger.Warn("re-executing interrupted action", "run_id", id, "state", run.InFlight)
	}
	return e.drive(ctx, run)
}

// Continue is Resume in the background: the checks run on the caller's
// goroutine and the run is then driven until terminal or cancelled.
func (e *Engine) Continue(ctx context.Context, id string, force bool) (*domain.Run, error) {
	run, wf, err := e.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := runtime.CheckResume(wf, run, force); err != nil {
		return nil, err
	}
	snap := run.Snapshot()
	if err := e.launch(run); err != nil {
		return nil, err
	}
	return snap, nil
}

// Cancel stops a run. A run driven by this engine is interrupted at once;
// otherwise the stored record is marked cancelled and the process driving
// it stops at its next checkpoint or wait poll.
func (e *Engine) Cancel(ctx context.Context, id string) error {
	e.mu.Lock()
	ar, ok := e.active[id]
	e.mu.Unlock()
	if ok {
		ar.cancel()
		select {
		case <-ar.done:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	_, err := e.runs.Update(ctx, id, func(run *domain.Run) error {
		if run.Status.Terminal() {
			return domain.ErrRunFinished
		}
		run.Record(run.CurrentState, domain.OutcomeCancelled, "cancelled by request")
		run.Finish(domain.RunCancelled, "")
		return nil
	})
	if err != nil {
		return err
	}
	e.logger.Info("run cancelled", "run_id", id)
	return nil
}

// Signal delivers a named signal to a run. Signals not yet awaited are
// queued until a matching "Wait for signal" consumes them.
func (e *Engine) Signal(ctx context.Context, id, name string) error {
	if name == "" {
		return errors.New("signal name is required")
	}
	e.mu.Lock()
	_, ok := e.active[id]
	e.mu.Unlock()
	if ok {
		e.exec.Mailbox().Send(id, name)
		e.logger.Info("signal delivered", "run_id", id, "signal", name)
		return nil
	}

	_, err := e.runs.Update(ctx, id, func(run *domain.Run) error {
		if run.Status.Terminal() {
			return domain.ErrRunFinished
		}
		run.Signals = append(run.Signals, name)
		return nil
	})
	if err != nil {
		return err
	}
	e.logger.Info("signal queued", "run_id", id, "signal", name)
	return nil
}

// Status returns the last checkpoint of a run.
func (e *Engine) Status(ctx context.Context, id string) (*domain.Run, error) {
	return e.runs.Load(ctx, id)
}

// Wait blocks until the run is terminal and returns it.
func (e *Engine) Wait(ctx context.Context, id string) (*domain.Run, error) {
	e.mu.Lock()
	ar, ok := e.active[id]
	e.mu.Unlock()
	if ok {
		select {
		case <-ar.done:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	ticker := time.NewTicker(e.pollInterval)
	defer ticker.Stop()
	for {
		run, err := e.runs.Load(ctx, id)
		if err != nil {
			return nil, err
		}
		if run.Status.Terminal() {
			return run, nil
		}
		select {
		case <-ticker.C:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

// Logs returns the captured log lines of a run.
func (e *Engine) Logs(ctx context.Context, id string, query domain.LogQuery) ([]domain.LogEntry, error) {
	return e.logs.Read(ctx, id, query)
}

// ListRuns returns stored runs matching filter.
func (e *Engine) ListRuns(ctx context.Context, filter ports.RunFilter) ([]*domain.Run, error) {
	return e.runs.List(ctx, filter)
}

// ListWorkflows returns every workflow the loader knows, sorted by name.
func (e *Engine) ListWorkflows(ctx context.Context) ([]domain.WorkflowMetadata, error) {
	sources, err := e.loader.List(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]domain.WorkflowMetadata, len(sources))
	for i, src := range sources {
		out[i] = domain.WorkflowMetadata{
			Name:        src.Name,
			Description: src.Description,
			Parameters:  src.Parameters,
			Metadata:    src.Metadata,
			Origin:      src.Origin,
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// Validate parses and analyzes a workflow. Parse failures are returned as
// errors; structural problems and warnings are in the report.
func (e *Engine) Validate(ctx context.Context, name domain.WorkflowName) (*validator.Report, error) {
	return e.defs.Report(ctx, name)
}

// Definition returns the validated definition of a workflow.
func (e *Engine) Definition(ctx context.Context, name domain.WorkflowName) (*domain.WorkflowDefinition, error) {
	wf, err := e.defs.Resolve(ctx, name)
	if err != nil {
		return nil, err
	}
	return wf.Definition(), nil
}

// Delete removes a run and its logs. Runs driven by this engine are refused.
func (e *Engine) Delete(ctx context.Context, id string) error {
	e.mu.Lock()
	_, ok := e.active[id]
	e.mu.Unlock()
	if ok {
		return domain.ErrRunActive
	}
	if _, err := e.runs.Load(ctx, id); err != nil {
		return err
	}
	if err := e.runs.Delete(ctx, id); err != nil {
		return err
	}
	if d, ok := e.logs.(interface {
		Delete(context.Context, string) error
	}); ok {
		return d.Delete(ctx, id)
	}
	if f, ok := e.logs.(interface{ Forget(string) }); ok {
		f.Forget(id)
	}
	return nil
}

// Reload drops every memoized workflow so the next run reads sources again.
func (e *Engine) Reload() {
	e.defs.InvalidateAll()
}

// Loader returns the underlying WorkflowLoader.
func (e *Engine) Loader() ports.WorkflowLoader {
	return e.loader
}

// Shutdown cancels every run driven by this engine and waits for them to
// record their final status, or for ctx to end.
func (e *Engine) Shutdown(ctx context.Context) error {
	e.stop()
	e.mu.Lock()
	for _, ar := range e.active {
		ar.cancel()
	}
	e.mu.Unlock()

	done := make(chan struct{})
	go func() {
		e.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		e.defs.close()
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// load reads a stored run and validates the definition snapshot it carries.
func (e *Engine) load(ctx context.Context, id string) (*domain.Run, *validator.Workflow, error) {
	run, err := e.runs.Load(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	if run.Status.Terminal() {
		return nil, nil, domain.ErrRunFinished
	}
	wf, err := e.workflowFor(ctx, run)
	if err != nil {
		return nil, nil, err
	}
	return run, wf, nil
}

// register marks a run as driven by this engine. The returned context is
// cancelled by Cancel and Shutdown; done must be called when driving stops.
func (e *Engine) register(ctx context.Context, id string) (context.Context, func(), error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, ok := e.active[id]; ok {
		return nil, nil, domain.ErrRunActive
	}
	runCtx, cancel := context.WithCancel(ctx)
	stopOnShutdown := context.AfterFunc(e.base, cancel)
	ar := &activeRun{cancel: cancel, done: make(chan struct{})}
	e.active[id] = ar
	e.wg.Add(1)

	return runCtx, func() {
		stopOnShutdown()
		cancel()
		e.mu.Lock()
		delete(e.active, id)
		e.mu.Unlock()
		close(ar.done)
		e.wg.Done()
	}, nil
}

func (e *Engine) drive(ctx context.Context, run *domain.Run) (*domain.Run, error) {
	wf, err := e.workflowFor(ctx, run)
	if err != nil {
		return nil, err
	}
	runCtx, done, err := e.register(ctx, run.ID)
	if err != nil {
		return nil, err
	}
	defer done()

	err = e.exec.Execute(runCtx, wf, run)
	return run.Snapshot(), err
}

func (e *Engine) launch(run *domain.Run) error {
	wf, err := e.workflowFor(e.base, run)
	if err != nil {
		return err
	}
	runCtx, done, err := e.register(e.base, run.ID)
	if err != nil {
		return err
	}
	go func() {
		defer done()
		if err := e.exec.Execute(runCtx, wf, run); err != nil {
			e.logger.Warn("background run ended with error", "run_id", run.ID, "err", err)
		}
	}()
	return nil
}

func (e *Engine) workflowFor(ctx context.Context, run *domain.Run) (*validator.Workflow, error) {
	if run.Definition == nil {
		return e.defs.Resolve(ctx, run.Workflow)
	}
	wf, report := validator.Analyze(run.Definition)
	if err := report.Err(); err != nil {
		return nil, err
	}
	return wf, nil
}
