// Package process runs shell commands for Shell actions.
package process

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/aretw0/weft/internal/logging"
	"github.com/aretw0/weft/pkg/ports"
)

// DefaultGracePeriod is how long a cancelled command may take to exit
// after SIGTERM before its process group is killed.
const DefaultGracePeriod = 2 * time.Second

// Runner implements ports.ShellRunner on top of os/exec.
//
// Output is captured in temporary files rather than pipes, so Run returns as
// soon as the foreground shell exits even when it leaves background children
// holding the output open.
type Runner struct {
	grace   time.Duration
	baseDir string
	env     map[string]string
	logger  *slog.Logger
}

// RunnerOption configures the runner.
type RunnerOption func(*Runner)

// WithGracePeriod sets the delay between SIGTERM and SIGKILL on cancellation.
func WithGracePeriod(d time.Duration) RunnerOption {
	return func(r *Runner) {
		if d > 0 {
			r.grace = d
		}
	}
}

// WithBaseDir sets the working directory for commands; relative request
// directories are resolved against it.
func WithBaseDir(dir string) RunnerOption {
	return func(r *Runner) {
		r.baseDir = dir
	}
}

// WithEnv adds variables to every command's environment. Request variables win.
func WithEnv(env map[string]string) RunnerOption {
	return func(r *Runner) {
		r.env = env
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) RunnerOption {
	return func(r *Runner) {
		r.logger = l
	}
}

// NewRunner creates a new Process Runner.
func NewRunner(opts ...RunnerOption) *Runner {
	r := &Runner{
		grace:  DefaultGracePeriod,
		logger: logging.NewNop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run executes req.Command through the platform shell.
// A non-zero exit is reported in the result. Cancellation and timeout are
// returned as the context error, together with whatever output was captured.
func (r *Runner) Run(ctx context.Context, req ports.ShellRequest) (*ports.ShellResult, error) {
	if strings.TrimSpace(req.Command) == "" {
		return nil, errors.New("empty command")
	}
	if req.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, req.Timeout)
		defer cancel()
	}

	stdout, err := os.CreateTemp("", "weft-stdout-*")
	if err != nil {
		return nil, fmt.Errorf("failed to create stdout capture: %w", err)
	}
	defer cleanup(stdout)
	stderr, err := os.CreateTemp("", "weft-stderr-*")
	if err != nil {
		return nil, fmt.Errorf("failed to create stderr capture: %w", err)
	}
	defer cleanup(stderr)

	cmd := shellCommand(req.Command)
	cmd.Dir = r.dir(req.Dir)
	cmd.Env = r.environ(req.Env)
	cmd.Stdout = stdout
	cmd.Stderr = stderr
	if req.Stdin != "" {
		stdin, err := os.CreateTemp("", "weft-stdin-*")
		if err != nil {
			return nil, fmt.Errorf("failed to create stdin file: %w", err)
		}
		defer cleanup(stdin)
		if _, err := io.WriteString(stdin, req.Stdin); err != nil {
			return nil, fmt.Errorf("failed to write stdin: %w", err)
		}
		if _, err := stdin.Seek(0, io.SeekStart); err != nil {
			return nil, fmt.Errorf("failed to rewind stdin: %w", err)
		}
		cmd.Stdin = stdin
	}
	configure(cmd)

	start := time.Now()
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("failed to start command: %w", err)
	}

	done := make(chan error, 1)
	go func() { done <- cmd.Wait() }()

	var waitErr, ctxErr error
	select {
	case waitErr = <-done:
	case <-ctx.Done():
		ctxErr = ctx.Err()
		waitErr = r.stop(cmd, done)
	}

	result := &ports.ShellResult{Duration: time.Since(start)}
	result.Stdout = readAll(stdout)
	result.Stderr = readAll(stderr)

	var exitErr *exec.ExitError
	switch {
	case waitErr == nil:
	case errors.As(waitErr, &exitErr):
		result.ExitCode = exitErr.ExitCode()
	default:
		return result, fmt.Errorf("command failed: %w", waitErr)
	}

	if ctxErr != nil {
		return result, ctxErr
	}
	return result, nil
}

// stop asks the process group to terminate and kills it after the grace period.
func (r *Runner) stop(cmd *exec.Cmd, done <-chan error) error {
	pid := cmd.Process.Pid
	if err := terminate(cmd); err != nil {
		r.logger.Debug("terminate failed", "pid", pid, "err", err)
	}

	timer := time.NewTimer(r.grace)
	defer timer.Stop()
	select {
	case err := <-done:
		return err
	case <-timer.C:
		r.logger.Warn("command ignored termination, killing", "pid", pid, "grace", r.grace)
		if err := kill(cmd); err != nil {
			r.logger.Debug("kill failed", "pid", pid, "err", err)
		}
		return <-done
	}
}

func (r *Runner) dir(requested string) string {
	switch {
	case requested == "":
		return r.baseDir
	case filepath.IsAbs(requested) || r.baseDir == "":
		return requested
	default:
		return filepath.Join(r.baseDir, requested)
	}
}

func (r *Runner) environ(extra map[string]string) []string {
	merged := make(map[string]string, len(r.env)+len(extra))
	for k, v := range r.env {
		merged[k] = v
	}
	for k, v := range extra {
		merged[k] = v
	}
	keys := make([]string, 0, len(merged))
	for k := range merged {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	env := os.Environ()
	for _, k := range keys {
		env = append(env, k+"="+merged[k])
	}
	return env
}

func readAll(f *os.File) string {
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return ""
	}
	data, err := io.ReadAll(f)
	if err != nil {
		return ""
	}
	return string(data)
}

func cleanup(f *os.File) {
	_ = f.Close()
	_ = os.Remove(f.Name())
}
