package runtime

import (
	"context"
	"errors"
	"slices"
	"time"

	"github.com/aretw0/weft/pkg/domain"
)

var errNoSignal = errors.New("signal not queued")

// wait pauses the run for a duration or until a named signal arrives. It
// polls the store so that cancellation and signals written by other
// processes are noticed.
func (e *Executor) wait(ctx context.Context, run *domain.Run, action *domain.WaitAction, timeout time.Duration) domain.ActionResult {
	var deadline <-chan time.Time
	limit := action.Duration
	if action.Signal != "" {
		limit = timeout
	}
	if limit > 0 {
		timer := time.NewTimer(limit)
		defer timer.Stop()
		deadline = timer.C
	}

	poll := time.NewTicker(e.pollInterval)
	defer poll.Stop()

	for {
		if action.Signal != "" {
			if e.signals.Take(run.ID, action.Signal) || e.takeStored(ctx, run, action.Signal) {
				return domain.Succeeded(map[string]any{"signal": action.Signal})
			}
		}
		changed := e.signals.Changed(run.ID)

		select {
		case <-ctx.Done():
			return domain.CancelledResult()
		case <-deadline:
			if action.Signal == "" {
				return domain.Succeeded(map[string]any{"waited": action.Duration.String()})
			}
			return domain.Failed(nil, domain.NewActionError(domain.ActionErrTimeout, nil, "signal %q not received within %s", action.Signal, limit))
		case <-changed:
		case <-poll.C:
			if e.cancelledInStore(ctx, run.ID) {
				return domain.CancelledResult()
			}
		}
	}
}

// takeStored consumes one occurrence of name from the stored run record.
func (e *Executor) takeStored(ctx context.Context, run *domain.Run, name string) bool {
	stored, err := e.runs.Load(context.WithoutCancel(ctx), run.ID)
	if err != nil || !slices.Contains(stored.Signals, name) {
		return false
	}
	updated, err := e.runs.Update(context.WithoutCancel(ctx), run.ID, func(r *domain.Run) error {
		i := slices.Index(r.Signals, name)
		if i < 0 {
			return errNoSignal
		}
		r.Signals = slices.Delete(r.Signals, i, i+1)
		return nil
	})
	if err != nil {
		if !errors.Is(err, errNoSignal) {
			e.logger.Warn("failed to consume stored signal", "run_id", run.ID, "signal", name, "err", err)
		}
		return false
	}
	run.Signals = updated.Signals
	return true
}

func (e *Executor) cancelledInStore(ctx context.Context, runID string) bool {
	stored, err := e.runs.Load(context.WithoutCancel(ctx), runID)
	return err == nil && stored.Status == domain.RunCancelled
}
