package runtime

import (
	"context"
	"time"

	"github.com/aretw0/weft/pkg/domain"
	"github.com/aretw0/weft/pkg/observability"
)

type stateLeave struct {
	started time.Time
	outcome domain.Outcome
	next    domain.StateID
}

func base(typ domain.EventType, run *domain.Run) domain.EventBase {
	return domain.EventBase{Timestamp: time.Now(), Type: typ, RunID: run.ID, Workflow: run.Workflow}
}

func (e *Executor) emitRun(ctx context.Context, fn func(context.Context, *domain.RunEvent), typ domain.EventType, run *domain.Run) {
	if fn == nil {
		return
	}
	ev := &domain.RunEvent{EventBase: base(typ, run), Status: run.Status, Error: run.Error, Depth: run.Depth()}
	if run.FinishedAt != nil {
		ev.Duration = run.FinishedAt.Sub(run.CreatedAt)
	}
	observability.Guard(func() { fn(ctx, ev) })
}

func (e *Executor) emitState(ctx context.Context, fn func(context.Context, *domain.StateEvent), typ domain.EventType, run *domain.Run, state domain.State, leave *stateLeave) {
	if fn == nil {
		return
	}
	ev := &domain.StateEvent{EventBase: base(typ, run), State: state.ID, Kind: state.Kind}
	if leave != nil {
		ev.Duration = time.Since(leave.started)
		ev.Outcome = leave.outcome
		ev.Next = leave.next
	}
	observability.Guard(func() { fn(ctx, ev) })
}

func (e *Executor) emitAction(ctx context.Context, fn func(context.Context, *domain.ActionEvent), typ domain.EventType, run *domain.Run, state domain.StateID, kind domain.ActionKind, started time.Time, res *domain.ActionResult) {
	if fn == nil {
		return
	}
	ev := &domain.ActionEvent{EventBase: base(typ, run), State: state, Kind: kind}
	if res != nil {
		ev.Duration = time.Since(started)
		ev.Success = res.Success
		ev.Cancelled = res.Cancelled
		if res.Error != nil {
			ev.Error = res.Error.Error()
		}
	}
	observability.Guard(func() { fn(ctx, ev) })
}
