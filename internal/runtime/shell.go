package runtime

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/aretw0/weft/pkg/domain"
	"github.com/aretw0/weft/pkg/ports"
)

func (e *Executor) runShell(ctx context.Context, run *domain.Run, action *domain.ShellAction, timeout time.Duration) domain.ActionResult {
	if e.shell == nil {
		return domain.Failed(nil, domain.NewActionError(domain.ActionErrExecution, nil, "no shell runner configured"))
	}
	command, err := render(action.Command, run.Context)
	if err != nil {
		return failure(err)
	}
	dir, err := render(action.Dir, run.Context)
	if err != nil {
		return failure(err)
	}
	env, err := renderEnv(action.Env, run.Context)
	if err != nil {
		return failure(err)
	}

	res, err := e.shell.Run(ctx, ports.ShellRequest{Command: command, Dir: dir, Env: env, Timeout: timeout})
	if err != nil {
		return failure(err)
	}

	output := shellOutput(res)
	storeResult(run, action.ResultVar, output)
	if res.ExitCode != 0 {
		msg := strings.TrimSpace(res.Stderr)
		if msg == "" {
			msg = "no stderr"
		}
		return domain.Failed(output, domain.NewActionError(domain.ActionErrExecution, nil, "command exited with status %d: %s", res.ExitCode, msg))
	}
	return domain.Succeeded(output)
}

// shellOutput is the context value of a finished command. Stdout that is
// valid JSON is also exposed decoded under "json".
func shellOutput(res *ports.ShellResult) map[string]any {
	stdout := strings.TrimRight(res.Stdout, "\r\n")
	out := map[string]any{
		"stdout":    stdout,
		"stderr":    res.Stderr,
		"exit_code": res.ExitCode,
	}
	if trimmed := strings.TrimSpace(stdout); trimmed != "" && json.Valid([]byte(trimmed)) {
		var decoded any
		if json.Unmarshal([]byte(trimmed), &decoded) == nil {
			out["json"] = decoded
		}
	}
	return out
}
