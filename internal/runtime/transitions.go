package runtime

import (
	"context"
	"log/slog"

	"github.com/aretw0/weft/pkg/domain"
)

// selectTransition returns the first outgoing transition whose condition
// holds. Custom expressions that fail to evaluate count as not matching.
func (e *Executor) selectTransition(ctx context.Context, log *slog.Logger, run *domain.Run, from domain.StateID, out []domain.Transition) (domain.Transition, bool) {
	for _, t := range out {
		if e.matches(ctx, log, run, from, t.Condition) {
			return t, true
		}
	}
	return domain.Transition{}, false
}

func (e *Executor) matches(ctx context.Context, log *slog.Logger, run *domain.Run, from domain.StateID, cond domain.TransitionCondition) bool {
	switch cond.Kind {
	case domain.ConditionAlways, "":
		return true
	case domain.ConditionNever:
		return false
	case domain.ConditionOnSuccess:
		return lastResult(run.Context)
	case domain.ConditionOnFailure:
		return !lastResult(run.Context)
	case domain.ConditionCustom:
		if e.evaluator == nil {
			log.Warn("no condition evaluator configured", "state", from, "expr", cond.Expression)
			return false
		}
		ok, err := e.evaluator.Evaluate(ctx, cond.Expression, run.Context)
		if err != nil {
			log.Warn("condition evaluation failed", "state", from, "expr", cond.Expression, "err", err)
			return false
		}
		return ok
	default:
		log.Warn("unknown condition kind", "state", from, "kind", cond.Kind)
		return false
	}
}

// lastResult reads last_action_result. Anything but false counts as success.
func lastResult(vars map[string]any) bool {
	v, ok := vars[domain.KeyLastActionResult].(bool)
	return !ok || v
}
