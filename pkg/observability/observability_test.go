package observability

import (
	"context"
	"testing"
	"time"

	"github.com/aretw0/weft/pkg/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func TestCompose(t *testing.T) {
	var calls []string
	a := domain.LifecycleHooks{
		OnStateEnter: func(context.Context, *domain.StateEvent) { calls = append(calls, "a") },
	}
	panicky := domain.LifecycleHooks{
		OnStateEnter: func(context.Context, *domain.StateEvent) { panic("observer bug") },
	}
	b := domain.LifecycleHooks{
		OnStateEnter: func(context.Context, *domain.StateEvent) { calls = append(calls, "b") },
		OnRunStart:   func(context.Context, *domain.RunEvent) { calls = append(calls, "run") },
	}

	hooks := Compose(a, panicky, b)
	assert.NotPanics(t, func() {
		hooks.OnStateEnter(context.Background(), &domain.StateEvent{})
	})
	hooks.OnRunStart(context.Background(), &domain.RunEvent{})
	assert.Equal(t, []string{"a", "b", "run"}, calls)
	assert.Nil(t, hooks.OnActionStart, "no observer means no hook")
}

func TestTracingHooks(t *testing.T) {
	sr := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(sr))
	hooks := TracingHooks(tp.Tracer("test"))
	ctx := context.Background()
	now := time.Now()

	base := func(typ domain.EventType) domain.EventBase {
		now = now.Add(time.Millisecond)
		return domain.EventBase{Timestamp: now, Type: typ, RunID: "r1", Workflow: "deploy"}
	}

	hooks.OnRunStart(ctx, &domain.RunEvent{EventBase: base(domain.EventRunStart), Depth: 1})
	hooks.OnStateEnter(ctx, &domain.StateEvent{EventBase: base(domain.EventStateEnter), State: "Build", Kind: domain.StateNormal})
	hooks.OnActionStart(ctx, &domain.ActionEvent{EventBase: base(domain.EventActionStart), State: "Build", Kind: domain.ActionShell})
	hooks.OnActionFinish(ctx, &domain.ActionEvent{EventBase: base(domain.EventActionFinish), State: "Build", Kind: domain.ActionShell, Error: "Execution: exit 1"})
	hooks.OnStateLeave(ctx, &domain.StateEvent{EventBase: base(domain.EventStateLeave), State: "Build", Outcome: domain.OutcomeFailure, Next: "Fix"})
	hooks.OnRunFinish(ctx, &domain.RunEvent{EventBase: base(domain.EventRunFinish), Status: domain.RunFailed, Error: "boom"})

	spans := sr.Ended()
	require.Len(t, spans, 3)
	action, state, run := spans[0], spans[1], spans[2]

	assert.Equal(t, "action shell", action.Name())
	assert.Equal(t, codes.Error, action.Status().Code)
	assert.Equal(t, "state Build", state.Name())
	assert.Equal(t, "run deploy", run.Name())
	assert.Equal(t, codes.Error, run.Status().Code)

	assert.Equal(t, run.SpanContext().SpanID(), state.Parent().SpanID())
	assert.Equal(t, state.SpanContext().SpanID(), action.Parent().SpanID())
	assert.Equal(t, run.SpanContext().TraceID(), action.SpanContext().TraceID())
}

func TestTracingHooks_UnmatchedFinish(t *testing.T) {
	sr := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(sr))
	hooks := TracingHooks(tp.Tracer("test"))

	assert.NotPanics(t, func() {
		hooks.OnStateLeave(context.Background(), &domain.StateEvent{EventBase: domain.EventBase{RunID: "ghost"}})
		hooks.OnRunFinish(context.Background(), &domain.RunEvent{EventBase: domain.EventBase{RunID: "ghost"}})
	})
	assert.Empty(t, sr.Ended())
}
