package runtime

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/aretw0/weft/pkg/domain"
)

// runAction executes an action with its bookkeeping: the in-flight marker
// for non-idempotent actions, hooks, and the last_action_result and
// last_error context keys.
func (e *Executor) runAction(ctx context.Context, run *domain.Run, state domain.StateID, action *domain.ActionSpec) domain.ActionResult {
	if !action.Idempotent {
		run.InFlight = state
		stop, err := e.checkpoint(ctx, run)
		if err != nil {
			e.logger.Warn("failed to mark action in flight", "run_id", run.ID, "state", state, "err", err)
		}
		if stop {
			return domain.CancelledResult()
		}
	}

	started := time.Now()
	e.emitAction(ctx, e.hooks.OnActionStart, domain.EventActionStart, run, state, action.Kind, started, nil)
	res := e.executeAction(ctx, run, state, action)
	e.emitAction(ctx, e.hooks.OnActionFinish, domain.EventActionFinish, run, state, action.Kind, started, &res)

	run.InFlight = ""
	if res.Cancelled {
		return res
	}
	run.Context[domain.KeyLastActionResult] = res.Success
	if res.Success {
		delete(run.Context, domain.KeyLastError)
	} else {
		msg := "action failed"
		if res.Error != nil {
			msg = res.Error.Error()
		}
		run.Context[domain.KeyLastError] = msg
		e.logger.Info("action failed", "run_id", run.ID, "workflow", run.Workflow, "state", state, "kind", action.Kind, "err", msg)
	}
	return res
}

// executeAction dispatches on the action kind. Cancellation of ctx always
// yields a cancelled result, and an expired action deadline a Timeout failure.
func (e *Executor) executeAction(ctx context.Context, run *domain.Run, state domain.StateID, action *domain.ActionSpec) domain.ActionResult {
	timeout := action.Timeout
	if timeout == 0 && (action.Kind == domain.ActionPrompt || action.Kind == domain.ActionShell) {
		timeout = e.actionTimeout
	}
	actx := ctx
	if timeout > 0 && action.Kind != domain.ActionWait {
		var cancel context.CancelFunc
		actx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	var res domain.ActionResult
	switch action.Kind {
	case domain.ActionPrompt:
		res = e.prompt(actx, run, state, action.Prompt)
	case domain.ActionShell:
		res = e.runShell(actx, run, action.Shell, timeout)
	case domain.ActionSubWorkflow:
		res = e.subWorkflow(actx, run, action.SubWorkflow)
	case domain.ActionWait:
		res = e.wait(ctx, run, action.Wait, action.Timeout)
	case domain.ActionSet:
		res = e.set(run, action.Set)
	case domain.ActionLog:
		res = e.log(ctx, run, state, action.Log)
	default:
		res = domain.Failed(nil, domain.NewActionError(domain.ActionErrExecution, nil, "unknown action kind %q", action.Kind))
	}

	if ctx.Err() != nil {
		return domain.CancelledResult()
	}
	if !res.Success && actx.Err() != nil && errors.Is(actx.Err(), context.DeadlineExceeded) {
		res.Error = domain.NewActionError(domain.ActionErrTimeout, actx.Err(), "%s action exceeded %s", action.Kind, timeout)
	}
	return res
}

func failure(err error) domain.ActionResult {
	return domain.Failed(nil, domain.AsActionError(err))
}

// storeResult writes output under key, or under "result" when key is empty.
func storeResult(run *domain.Run, key string, output any) {
	if key == "" {
		key = domain.KeyResult
	}
	run.Context[key] = output
}

func (e *Executor) set(run *domain.Run, action *domain.SetAction) domain.ActionResult {
	values := make(map[string]any, len(action.Assignments))
	for _, a := range action.Assignments {
		v, err := renderValue(a.Value, run.Context)
		if err != nil {
			return failure(err)
		}
		values[a.Key] = v
	}
	for k, v := range values {
		run.Context[k] = v
	}
	return domain.Succeeded(values)
}

func (e *Executor) log(ctx context.Context, run *domain.Run, state domain.StateID, action *domain.LogAction) domain.ActionResult {
	attrs := []any{"run_id", run.ID, "workflow", run.Workflow, "state", state}
	msg, err := render(action.Message, run.Context)
	if err != nil {
		// A log line never fails the run; print the template as written.
		msg = action.Message
		attrs = append(attrs, "err", err)
	}
	e.logger.Log(ctx, logLevel(action.Level), msg, attrs...)
	return domain.Succeeded(msg)
}

func logLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
