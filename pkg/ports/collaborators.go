package ports

import (
	"context"
	"time"

	"github.com/aretw0/weft/pkg/domain"
)

// AgentExecutor answers prompts. Errors should be *domain.ActionError
// (e.g. RateLimit with a WaitTime); other errors are treated as execution failures.
type AgentExecutor interface {
	ExecutePrompt(ctx context.Context, systemPrompt, prompt string, ec domain.ExecutionContext) (*domain.AgentResponse, error)
}

// ShellRequest describes a command to run.
type ShellRequest struct {
	Command string
	Dir     string
	Env     map[string]string
	Stdin   string
	Timeout time.Duration // Zero means no timeout beyond ctx
}

// ShellResult is the outcome of a finished command.
type ShellResult struct {
	ExitCode int
	Stdout   string
	Stderr   string
	Duration time.Duration
}

// ShellRunner executes commands. It must return as soon as the foreground
// process exits, without waiting on descendants that outlive it.
// A non-zero exit is reported through ExitCode, not as an error.
type ShellRunner interface {
	Run(ctx context.Context, req ShellRequest) (*ShellResult, error)
}

// ConditionEvaluator evaluates a boolean expression against a run context.
type ConditionEvaluator interface {
	Evaluate(ctx context.Context, expr string, vars map[string]any) (bool, error)
}
