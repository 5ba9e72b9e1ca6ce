package runtime_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/aretw0/weft/internal/compiler"
	"github.com/aretw0/weft/internal/runtime"
	"github.com/aretw0/weft/internal/validator"
	"github.com/aretw0/weft/pkg/adapters/memory"
	"github.com/aretw0/weft/pkg/checkpoint"
	"github.com/aretw0/weft/pkg/domain"
	"github.com/aretw0/weft/pkg/ports"
	"github.com/stretchr/testify/require"
)

func compile(t *testing.T, name, src string) *validator.Workflow {
	t.Helper()
	def, err := compiler.Parse(domain.WorkflowName(name), []byte(src))
	require.NoError(t, err)
	wf, report := validator.Analyze(def)
	require.NoError(t, report.Err())
	return wf
}

type harness struct {
	exec  *runtime.Executor
	store *memory.Store
	runs  *checkpoint.Manager
}

func newHarness(opts ...runtime.Option) *harness {
	store := memory.NewStore()
	runs := checkpoint.NewManager(store)
	opts = append([]runtime.Option{
		runtime.WithCheckpoints(runs),
		runtime.WithPollInterval(10 * time.Millisecond),
	}, opts...)
	return &harness{exec: runtime.NewExecutor(opts...), store: store, runs: runs}
}

func (h *harness) run(t *testing.T, wf *validator.Workflow, vars map[string]any) (*domain.Run, error) {
	t.Helper()
	run := domain.NewRun("run-1", wf.Definition(), vars)
	err := h.exec.Execute(context.Background(), wf, run)
	return run, err
}

func resolver(wfs ...*validator.Workflow) runtime.Resolver {
	byName := make(map[domain.WorkflowName]*validator.Workflow, len(wfs))
	for _, wf := range wfs {
		byName[wf.Name()] = wf
	}
	return runtime.ResolverFunc(func(ctx context.Context, name domain.WorkflowName) (*validator.Workflow, error) {
		if wf, ok := byName[name]; ok {
			return wf, nil
		}
		return nil, domain.ErrWorkflowNotFound
	})
}

// fakeShell answers commands from a function and records them.
type fakeShell struct {
	mu    sync.Mutex
	calls []ports.ShellRequest
	fn    func(ctx context.Context, req ports.ShellRequest) (*ports.ShellResult, error)
}

func (f *fakeShell) Run(ctx context.Context, req ports.ShellRequest) (*ports.ShellResult, error) {
	f.mu.Lock()
	f.calls = append(f.calls, req)
	f.mu.Unlock()
	if f.fn == nil {
		return &ports.ShellResult{Stdout: req.Command + "\n"}, nil
	}
	return f.fn(ctx, req)
}

func (f *fakeShell) Calls() []ports.ShellRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]ports.ShellRequest(nil), f.calls...)
}

// countingEvaluator answers from a fixed table and counts evaluations.
type countingEvaluator struct {
	mu      sync.Mutex
	answers map[string]bool
	seen    []string
}

func (c *countingEvaluator) Evaluate(ctx context.Context, expr string, vars map[string]any) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.seen = append(c.seen, expr)
	return c.answers[expr], nil
}

func outcomes(run *domain.Run) []domain.Outcome {
	out := make([]domain.Outcome, len(run.History))
	for i, h := range run.History {
		out[i] = h.Outcome
	}
	return out
}
