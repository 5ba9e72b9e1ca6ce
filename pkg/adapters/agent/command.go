// Package agent provides AgentExecutor implementations: an external command,
// an echo for dry runs, and a scripted fake for tests and demos.
package agent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/aretw0/weft/internal/logging"
	"github.com/aretw0/weft/pkg/adapters/process"
	"github.com/aretw0/weft/pkg/domain"
	"github.com/aretw0/weft/pkg/ports"
	"github.com/cenkalti/backoff/v5"
	"golang.org/x/time/rate"
)

const (
	DefaultTimeout    = 5 * time.Minute
	DefaultMaxRetries = 3
)

// Environment variables set for the agent command.
const (
	EnvSystemPrompt = "WEFT_SYSTEM_PROMPT"
	EnvRunID        = "WEFT_RUN_ID"
	EnvWorkflow     = "WEFT_WORKFLOW"
	EnvState        = "WEFT_STATE"
)

var retryAfter = regexp.MustCompile(`(?i)retry[ -]after[: ]*(\d+)`)

// Command runs an external CLI agent per prompt. The prompt is written to
// stdin and the answer is read from stdout. A JSON object with a "content"
// field on stdout is decoded as a full response.
type Command struct {
	command    string
	args       []string
	runner     ports.ShellRunner
	timeout    time.Duration
	maxRetries uint
	limiter    *rate.Limiter
	newBackOff func() backoff.BackOff
	logger     *slog.Logger
}

// Option configures a Command.
type Option func(*Command)

// WithRunner replaces the shell runner.
func WithRunner(r ports.ShellRunner) Option {
	return func(c *Command) { c.runner = r }
}

// WithTimeout bounds a single attempt.
func WithTimeout(d time.Duration) Option {
	return func(c *Command) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// WithMaxRetries bounds the retries after a rate limit. Zero disables retrying.
func WithMaxRetries(n int) Option {
	return func(c *Command) {
		if n >= 0 {
			c.maxRetries = uint(n)
		}
	}
}

// WithRatePerMinute paces calls. Zero or less means unlimited.
func WithRatePerMinute(n int) Option {
	return func(c *Command) {
		if n > 0 {
			c.limiter = rate.NewLimiter(rate.Every(time.Minute/time.Duration(n)), 1)
		} else {
			c.limiter = nil
		}
	}
}

// WithBackOff sets the retry schedule.
func WithBackOff(f func() backoff.BackOff) Option {
	return func(c *Command) { c.newBackOff = f }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Command) { c.logger = l }
}

// NewCommand creates an agent that runs command with args.
func NewCommand(command string, args []string, opts ...Option) *Command {
	c := &Command{
		command:    command,
		args:       args,
		timeout:    DefaultTimeout,
		maxRetries: DefaultMaxRetries,
		newBackOff: func() backoff.BackOff {
			b := backoff.NewExponentialBackOff()
			b.InitialInterval = time.Second
			b.MaxInterval = time.Minute
			return b
		},
		logger: logging.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.runner == nil {
		c.runner = process.NewRunner(process.WithLogger(c.logger))
	}
	return c
}

// ExecutePrompt implements ports.AgentExecutor.
func (c *Command) ExecutePrompt(ctx context.Context, systemPrompt, prompt string, ec domain.ExecutionContext) (*domain.AgentResponse, error) {
	hint := new(time.Duration)
	attempt := 0
	op := func() (*domain.AgentResponse, error) {
		attempt++
		resp, err := c.once(ctx, systemPrompt, prompt, ec)
		if err == nil {
			return resp, nil
		}
		var ae *domain.ActionError
		if errors.As(err, &ae) && ae.Kind == domain.ActionErrRateLimit {
			*hint = ae.WaitTime
			return nil, err
		}
		return nil, backoff.Permanent(err)
	}

	resp, err := backoff.Retry(ctx, op,
		backoff.WithBackOff(&hinted{BackOff: c.newBackOff(), hint: hint}),
		backoff.WithMaxTries(c.maxRetries+1),
		backoff.WithNotify(func(err error, wait time.Duration) {
			c.logger.Warn("agent rate limited, retrying", "run_id", ec.RunID, "state", ec.State, "attempt", attempt, "wait", wait, "err", err)
		}),
	)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, err
	}
	return resp, nil
}

func (c *Command) once(ctx context.Context, systemPrompt, prompt string, ec domain.ExecutionContext) (*domain.AgentResponse, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			return nil, domain.NewActionError(domain.ActionErrRateLimit, err, "local call budget exhausted")
		}
	}

	res, err := c.runner.Run(ctx, ports.ShellRequest{
		Command: commandLine(c.command, c.args),
		Stdin:   prompt,
		Timeout: c.timeout,
		Env: map[string]string{
			EnvSystemPrompt: systemPrompt,
			EnvRunID:        ec.RunID,
			EnvWorkflow:     string(ec.Workflow),
			EnvState:        string(ec.State),
		},
	})
	if err != nil {
		switch {
		case ctx.Err() != nil:
			return nil, ctx.Err()
		case errors.Is(err, context.DeadlineExceeded):
			return nil, domain.NewActionError(domain.ActionErrTimeout, err, "agent did not answer within %s", c.timeout)
		default:
			return nil, domain.NewActionError(domain.ActionErrExecution, err, "agent command failed")
		}
	}

	if res.ExitCode != 0 {
		stderr := strings.TrimSpace(res.Stderr)
		if strings.Contains(strings.ToLower(stderr), "rate limit") {
			ae := domain.NewActionError(domain.ActionErrRateLimit, nil, "agent rate limited: %s", stderr)
			if m := retryAfter.FindStringSubmatch(stderr); m != nil {
				if secs, err := strconv.Atoi(m[1]); err == nil {
					ae.WaitTime = time.Duration(secs) * time.Second
				}
			}
			return nil, ae
		}
		return nil, domain.NewActionError(domain.ActionErrExecution, nil, "agent exited with status %d: %s", res.ExitCode, stderr)
	}
	return decode(res.Stdout), nil
}

func decode(stdout string) *domain.AgentResponse {
	trimmed := strings.TrimSpace(stdout)
	if strings.HasPrefix(trimmed, "{") && strings.HasSuffix(trimmed, "}") {
		var resp domain.AgentResponse
		if err := json.Unmarshal([]byte(trimmed), &resp); err == nil && resp.Content != "" {
			if resp.ResponseType == "" {
				resp.ResponseType = domain.ResponseSuccess
			}
			return &resp
		}
	}
	return &domain.AgentResponse{Content: trimmed, ResponseType: domain.ResponseSuccess}
}

func commandLine(command string, args []string) string {
	parts := make([]string, 0, len(args)+1)
	parts = append(parts, quote(command))
	for _, a := range args {
		parts = append(parts, quote(a))
	}
	return strings.Join(parts, " ")
}

// quote single-quotes s for a POSIX shell unless it is plainly safe.
func quote(s string) string {
	if s != "" && strings.IndexFunc(s, func(r rune) bool {
		return !(r == '-' || r == '_' || r == '.' || r == '/' || r == '=' || r == ':' ||
			(r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9'))
	}) < 0 {
		return s
	}
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}

// hinted stretches the next delay to a server-provided retry-after.
type hinted struct {
	backoff.BackOff
	hint *time.Duration
}

func (h *hinted) NextBackOff() time.Duration {
	d := h.BackOff.NextBackOff()
	if d != backoff.Stop && *h.hint > d {
		d = *h.hint
	}
	*h.hint = 0
	return d
}

func (h *hinted) String() string {
	return fmt.Sprintf("hinted(%T)", h.BackOff)
}
