package weft

import (
	"log/slog"
	"time"

	"github.com/aretw0/weft/pkg/domain"
	"github.com/aretw0/weft/pkg/ports"
)

// Option defines a functional option for configuring the Engine.
type Option func(*Engine)

// WithLoader injects a WorkflowLoader, bypassing the default Loam library.
func WithLoader(l ports.WorkflowLoader) Option {
	return func(e *Engine) {
		e.loader = l
	}
}

// WithPrompts sets the library for named prompts. Defaults to the loader
// when it also implements ports.PromptLibrary.
func WithPrompts(p ports.PromptLibrary) Option {
	return func(e *Engine) {
		e.prompts = p
	}
}

// WithStore sets the run store. Defaults to an in-memory store.
func WithStore(s ports.RunStore) Option {
	return func(e *Engine) {
		e.store = s
	}
}

// WithLogStore sets where run logs are kept. Defaults to an in-memory ring.
func WithLogStore(s ports.LogStore) Option {
	return func(e *Engine) {
		e.logs = s
	}
}

// WithLocker serializes checkpoints across processes.
func WithLocker(l ports.DistributedLocker) Option {
	return func(e *Engine) {
		e.locker = l
	}
}

// WithConditionEvaluator replaces the CEL evaluator.
func WithConditionEvaluator(ev ports.ConditionEvaluator) Option {
	return func(e *Engine) {
		e.evaluator = ev
	}
}

// WithAgent sets the backend for prompt actions.
func WithAgent(a ports.AgentExecutor) Option {
	return func(e *Engine) {
		e.agent = a
	}
}

// WithShell replaces the process runner used by shell actions.
func WithShell(r ports.ShellRunner) Option {
	return func(e *Engine) {
		e.shell = r
	}
}

// WithLifecycleHooks registers observability hooks.
func WithLifecycleHooks(hooks domain.LifecycleHooks) Option {
	return func(e *Engine) {
		e.hooks = hooks
	}
}

// WithLogger sets a custom structured logger for the engine.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		e.logger = logger
	}
}

// WithMaxDepth bounds nested sub-workflows.
func WithMaxDepth(n int) Option {
	return func(e *Engine) {
		e.maxDepth = n
	}
}

// WithActionTimeout sets the default timeout of prompt and shell actions.
func WithActionTimeout(d time.Duration) Option {
	return func(e *Engine) {
		e.actionTimeout = d
	}
}

// WithPollInterval sets how often waiting runs and Wait look at the store.
func WithPollInterval(d time.Duration) Option {
	return func(e *Engine) {
		e.pollInterval = d
	}
}

// WithIDGenerator replaces uuid run ids.
func WithIDGenerator(fn func() string) Option {
	return func(e *Engine) {
		e.newID = fn
	}
}

// WithCacheSize bounds the number of validated workflows kept in memory.
func WithCacheSize(n int64) Option {
	return func(e *Engine) {
		e.cacheSize = n
	}
}
