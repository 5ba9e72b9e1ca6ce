package observability

import (
	"context"

	"github.com/aretw0/weft/pkg/domain"
)

// Compose merges hooks into one set. Each observer is called in order and a
// panic in one of them does not prevent the others from running.
func Compose(hooks ...domain.LifecycleHooks) domain.LifecycleHooks {
	return domain.LifecycleHooks{
		OnRunStart:     fan(hooks, func(h domain.LifecycleHooks) func(context.Context, *domain.RunEvent) { return h.OnRunStart }),
		OnRunFinish:    fan(hooks, func(h domain.LifecycleHooks) func(context.Context, *domain.RunEvent) { return h.OnRunFinish }),
		OnStateEnter:   fan(hooks, func(h domain.LifecycleHooks) func(context.Context, *domain.StateEvent) { return h.OnStateEnter }),
		OnStateLeave:   fan(hooks, func(h domain.LifecycleHooks) func(context.Context, *domain.StateEvent) { return h.OnStateLeave }),
		OnActionStart:  fan(hooks, func(h domain.LifecycleHooks) func(context.Context, *domain.ActionEvent) { return h.OnActionStart }),
		OnActionFinish: fan(hooks, func(h domain.LifecycleHooks) func(context.Context, *domain.ActionEvent) { return h.OnActionFinish }),
	}
}

func fan[E any](hooks []domain.LifecycleHooks, pick func(domain.LifecycleHooks) func(context.Context, E)) func(context.Context, E) {
	var fns []func(context.Context, E)
	for _, h := range hooks {
		if fn := pick(h); fn != nil {
			fns = append(fns, fn)
		}
	}
	if len(fns) == 0 {
		return nil
	}
	return func(ctx context.Context, e E) {
		for _, fn := range fns {
			Guard(func() { fn(ctx, e) })
		}
	}
}

// Guard runs fn and swallows any panic.
func Guard(fn func()) {
	defer func() { _ = recover() }()
	fn()
}
