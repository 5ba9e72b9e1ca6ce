package runtime

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/aretw0/weft/internal/logging"
	"github.com/aretw0/weft/internal/validator"
	"github.com/aretw0/weft/pkg/adapters/memory"
	"github.com/aretw0/weft/pkg/checkpoint"
	"github.com/aretw0/weft/pkg/domain"
	"github.com/aretw0/weft/pkg/ports"
	"github.com/google/uuid"
)

const (
	// DefaultMaxDepth bounds the sub-workflow call stack.
	DefaultMaxDepth = 8

	// DefaultActionTimeout applies to prompt and shell actions without an explicit timeout.
	DefaultActionTimeout = 10 * time.Minute

	// DefaultPollInterval is how often waits look for signals and cancellation
	// written to the store by other processes.
	DefaultPollInterval = 500 * time.Millisecond
)

// Resolver returns the validated workflow for a name. Sub-workflow actions use it.
type Resolver interface {
	Resolve(ctx context.Context, name domain.WorkflowName) (*validator.Workflow, error)
}

// ResolverFunc adapts a function to Resolver.
type ResolverFunc func(ctx context.Context, name domain.WorkflowName) (*validator.Workflow, error)

// Resolve calls f.
func (f ResolverFunc) Resolve(ctx context.Context, name domain.WorkflowName) (*validator.Workflow, error) {
	return f(ctx, name)
}

// Executor advances runs. It holds no per-run state besides the signal
// mailbox, so one Executor serves any number of concurrent runs.
type Executor struct {
	runs      *checkpoint.Manager
	resolver  Resolver
	evaluator ports.ConditionEvaluator
	agent     ports.AgentExecutor
	prompts   ports.PromptLibrary
	shell     ports.ShellRunner
	signals   *Mailbox
	hooks     domain.LifecycleHooks
	logger    *slog.Logger

	maxDepth      int
	actionTimeout time.Duration
	pollInterval  time.Duration
	newID         func() string

	// started holds runs this executor emitted OnRunStart for and has not
	// finished yet.
	mu      sync.Mutex
	started map[string]struct{}
}

// Option configures an Executor.
type Option func(*Executor)

// WithCheckpoints sets the run persistence. Defaults to an in-memory store.
func WithCheckpoints(m *checkpoint.Manager) Option {
	return func(e *Executor) { e.runs = m }
}

// WithResolver sets the workflow resolver used by sub-workflow actions.
func WithResolver(r Resolver) Option {
	return func(e *Executor) { e.resolver = r }
}

// WithEvaluator sets the evaluator for custom transition conditions.
func WithEvaluator(ev ports.ConditionEvaluator) Option {
	return func(e *Executor) { e.evaluator = ev }
}

// WithAgent sets the backend for prompt actions.
func WithAgent(a ports.AgentExecutor) Option {
	return func(e *Executor) { e.agent = a }
}

// WithPrompts sets the library for named prompts.
func WithPrompts(p ports.PromptLibrary) Option {
	return func(e *Executor) { e.prompts = p }
}

// WithShell sets the runner for shell actions.
func WithShell(r ports.ShellRunner) Option {
	return func(e *Executor) { e.shell = r }
}

// WithMailbox shares a signal mailbox with the caller.
func WithMailbox(m *Mailbox) Option {
	return func(e *Executor) { e.signals = m }
}

// WithLifecycleHooks registers observability hooks.
func WithLifecycleHooks(h domain.LifecycleHooks) Option {
	return func(e *Executor) { e.hooks = h }
}

// WithLogger sets the logger. Records carry run_id so they reach the run log.
func WithLogger(l *slog.Logger) Option {
	return func(e *Executor) {
		if l != nil {
			e.logger = l
		}
	}
}

// WithMaxDepth overrides DefaultMaxDepth.
func WithMaxDepth(n int) Option {
	return func(e *Executor) {
		if n > 0 {
			e.maxDepth = n
		}
	}
}

// WithActionTimeout overrides DefaultActionTimeout.
func WithActionTimeout(d time.Duration) Option {
	return func(e *Executor) {
		if d > 0 {
			e.actionTimeout = d
		}
	}
}

// WithPollInterval overrides DefaultPollInterval.
func WithPollInterval(d time.Duration) Option {
	return func(e *Executor) {
		if d > 0 {
			e.pollInterval = d
		}
	}
}

// WithIDGenerator replaces the uuid generator used for child run ids.
func WithIDGenerator(fn func() string) Option {
	return func(e *Executor) { e.newID = fn }
}

// NewExecutor creates an Executor.
func NewExecutor(opts ...Option) *Executor {
	e := &Executor{
		logger:        logging.NewNop(),
		maxDepth:      DefaultMaxDepth,
		actionTimeout: DefaultActionTimeout,
		pollInterval:  DefaultPollInterval,
		newID:         uuid.NewString,
		started:       make(map[string]struct{}),
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.runs == nil {
		e.runs = checkpoint.NewManager(memory.NewStore(), checkpoint.WithLogger(e.logger))
	}
	if e.signals == nil {
		e.signals = NewMailbox()
	}
	return e
}

// Mailbox returns the signal mailbox.
func (e *Executor) Mailbox() *Mailbox {
	return e.signals
}

// Checkpoints returns the run persistence.
func (e *Executor) Checkpoints() *checkpoint.Manager {
	return e.runs
}

// Execute steps the run until it is terminal. It returns nil when the run
// completed or was cancelled, the *domain.ExecutorError that failed it, or a
// persistence error that left it in place.
func (e *Executor) Execute(ctx context.Context, wf *validator.Workflow, run *domain.Run) error {
	for !run.Status.Terminal() {
		if err := e.Step(ctx, wf, run); err != nil {
			return err
		}
	}
	return nil
}

// Step performs one iteration on run and checkpoints it.
func (e *Executor) Step(ctx context.Context, wf *validator.Workflow, run *domain.Run) error {
	if wf == nil {
		return errors.New("executor requires a validated workflow")
	}
	if run.Status.Terminal() {
		return domain.ErrRunFinished
	}
	log := e.logger.With("run_id", run.ID, "workflow", run.Workflow)

	if run.Status == domain.RunCreated {
		run.Status = domain.RunRunning
		e.markStarted(run.ID)
		e.emitRun(ctx, e.hooks.OnRunStart, domain.EventRunStart, run)
		log.Debug("run started", "state", run.CurrentState, "depth", run.Depth())
		if stop, err := e.checkpoint(ctx, run); stop || err != nil {
			return err
		}
	} else if e.markStarted(run.ID) {
		// Resumed from the store: hooks see a start before the finish.
		e.emitRun(ctx, e.hooks.OnRunStart, domain.EventRunStart, run)
		log.Debug("run resumed", "state", run.CurrentState, "depth", run.Depth())
	}

	// Cancellation takes precedence over everything else.
	if ctx.Err() != nil {
		return e.interrupted(ctx, run)
	}

	state, ok := wf.State(run.CurrentState)
	if !ok {
		return e.fail(ctx, run, &domain.ExecutorError{
			Kind:  domain.ExecStateNotFound,
			State: run.CurrentState,
			Msg:   "state is not part of the workflow",
		})
	}

	if state.IsTerminal() {
		entered := time.Now()
		e.emitState(ctx, e.hooks.OnStateEnter, domain.EventStateEnter, run, state, nil)
		run.Record(state.ID, domain.OutcomeCompleted, "")
		e.emitState(ctx, e.hooks.OnStateLeave, domain.EventStateLeave, run, state, &stateLeave{started: entered, outcome: domain.OutcomeCompleted})
		return e.finish(ctx, run, domain.RunCompleted, "")
	}

	entered := time.Now()
	e.emitState(ctx, e.hooks.OnStateEnter, domain.EventStateEnter, run, state, nil)

	outcome := domain.OutcomeNoAction
	detail := ""
	if state.Action != nil {
		res := e.runAction(ctx, run, state.ID, state.Action)
		if res.Cancelled {
			e.emitState(ctx, e.hooks.OnStateLeave, domain.EventStateLeave, run, state, &stateLeave{started: entered, outcome: domain.OutcomeCancelled})
			return e.interrupted(ctx, run)
		}
		outcome, detail = actionOutcome(state, res)
	}
	run.Record(state.ID, outcome, detail)

	next, ok := e.selectTransition(ctx, log, run, state.ID, wf.Outgoing(state.ID))
	if !ok {
		e.emitState(ctx, e.hooks.OnStateLeave, domain.EventStateLeave, run, state, &stateLeave{started: entered, outcome: outcome})
		msg := fmt.Sprintf("no transition out of %q matched", state.ID)
		if last, ok := run.Context[domain.KeyLastError].(string); ok && last != "" {
			msg += "; last error: " + last
		}
		return e.fail(ctx, run, &domain.ExecutorError{Kind: domain.ExecNoMatchingTransition, State: state.ID, Msg: msg})
	}

	if next.Action != nil {
		res := e.runAction(ctx, run, state.ID, next.Action)
		if res.Cancelled {
			e.emitState(ctx, e.hooks.OnStateLeave, domain.EventStateLeave, run, state, &stateLeave{started: entered, outcome: domain.OutcomeCancelled})
			return e.interrupted(ctx, run)
		}
		if res.Success {
			run.Record(state.ID, domain.OutcomeTransition, fmt.Sprintf("%s --> %s", state.ID, next.To))
		} else {
			run.Record(state.ID, domain.OutcomeFailure, fmt.Sprintf("%s --> %s: %s", state.ID, next.To, res.Error.Error()))
		}
	}

	if _, ok := wf.State(next.To); !ok {
		return e.fail(ctx, run, &domain.ExecutorError{
			Kind:  domain.ExecInvalidTransition,
			State: state.ID,
			Msg:   fmt.Sprintf("transition targets unknown state %q", next.To),
		})
	}

	run.CurrentState = next.To
	e.emitState(ctx, e.hooks.OnStateLeave, domain.EventStateLeave, run, state, &stateLeave{started: entered, outcome: outcome, next: next.To})
	log.Debug("transition", "from", state.ID, "to", next.To, "condition", next.Condition.String())

	_, err := e.checkpoint(ctx, run)
	return err
}

func actionOutcome(state domain.State, res domain.ActionResult) (domain.Outcome, string) {
	if !res.Success {
		detail := "action failed"
		if res.Error != nil {
			detail = res.Error.Error()
		}
		return domain.OutcomeFailure, detail
	}
	if state.Kind == domain.StateCompensation {
		return domain.OutcomeCompensated, ""
	}
	return domain.OutcomeSuccess, ""
}

// checkpoint saves the run. stop reports that the run was finished as
// cancelled because another process cancelled the stored record.
func (e *Executor) checkpoint(ctx context.Context, run *domain.Run) (stop bool, err error) {
	run.UpdatedAt = time.Now().UTC()
	err = e.runs.Checkpoint(context.WithoutCancel(ctx), run)
	if errors.Is(err, checkpoint.ErrExternallyCancelled) {
		run.Record(run.CurrentState, domain.OutcomeCancelled, "cancelled externally")
		return true, e.finish(ctx, run, domain.RunCancelled, "")
	}
	if err != nil {
		return false, fmt.Errorf("failed to checkpoint run %s: %w", run.ID, err)
	}
	return false, nil
}

// interrupted finishes a run whose context ended. A deadline on the run
// context fails it; any other cancellation cancels it.
func (e *Executor) interrupted(ctx context.Context, run *domain.Run) error {
	if run.Status.Terminal() {
		return nil
	}
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return e.fail(ctx, run, &domain.ExecutorError{
			Kind:  domain.ExecTimeout,
			State: run.CurrentState,
			Msg:   "run deadline exceeded",
		})
	}
	run.Record(run.CurrentState, domain.OutcomeCancelled, "")
	return e.finish(ctx, run, domain.RunCancelled, "")
}

func (e *Executor) fail(ctx context.Context, run *domain.Run, cause *domain.ExecutorError) error {
	e.logger.Warn("run failed", "run_id", run.ID, "workflow", run.Workflow, "state", cause.State, "err", cause)
	run.Record(run.CurrentState, domain.OutcomeFailed, cause.Error())
	if err := e.finish(ctx, run, domain.RunFailed, cause.Error()); err != nil {
		return err
	}
	return cause
}

func (e *Executor) finish(ctx context.Context, run *domain.Run, status domain.RunStatus, msg string) error {
	if e.markStarted(run.ID) {
		e.emitRun(ctx, e.hooks.OnRunStart, domain.EventRunStart, run)
	}
	run.Finish(status, msg)
	e.signals.Drop(run.ID)
	e.mu.Lock()
	delete(e.started, run.ID)
	e.mu.Unlock()
	e.emitRun(ctx, e.hooks.OnRunFinish, domain.EventRunFinish, run)
	e.logger.Debug("run finished", "run_id", run.ID, "workflow", run.Workflow, "status", status)
	if err := e.runs.Checkpoint(context.WithoutCancel(ctx), run); err != nil {
		return fmt.Errorf("failed to checkpoint run %s: %w", run.ID, err)
	}
	return nil
}

// markStarted records that OnRunStart was emitted for id and reports whether
// it was not recorded before.
func (e *Executor) markStarted(id string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, ok := e.started[id]; ok {
		return false
	}
	e.started[id] = struct{}{}
	return true
}

// CheckResume reports whether run may be continued. A run interrupted inside
// a non-idempotent action is refused unless force is set.
func CheckResume(wf *validator.Workflow, run *domain.Run, force bool) error {
	if run.Status.Terminal() {
		return domain.ErrRunFinished
	}
	if run.InFlight == "" || force {
		return nil
	}
	state, ok := wf.State(run.InFlight)
	if !ok || state.Action == nil || state.Action.Idempotent {
		return nil
	}
	return fmt.Errorf("%w: state %q (%s)", domain.ErrNonIdempotentResume, state.ID, state.Action.Kind)
}
