package observability

import (
	"context"
	"sync"

	"github.com/aretw0/weft/pkg/domain"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// TracerName is the instrumentation scope used when no tracer is given.
const TracerName = "github.com/aretw0/weft"

// Tracer keeps the spans opened by lifecycle hooks until their matching
// finish event arrives.
type Tracer struct {
	tracer trace.Tracer

	mu      sync.Mutex
	runs    map[string]trace.Span
	states  map[string]trace.Span
	actions map[string]trace.Span
}

// NewTracer creates a Tracer. A nil tracer uses the global provider.
func NewTracer(tracer trace.Tracer) *Tracer {
	if tracer == nil {
		tracer = otel.Tracer(TracerName)
	}
	return &Tracer{
		tracer:  tracer,
		runs:    make(map[string]trace.Span),
		states:  make(map[string]trace.Span),
		actions: make(map[string]trace.Span),
	}
}

// TracingHooks is a shortcut for NewTracer(tracer).Hooks().
func TracingHooks(tracer trace.Tracer) domain.LifecycleHooks {
	return NewTracer(tracer).Hooks()
}

// Hooks returns lifecycle hooks that open and close spans.
func (t *Tracer) Hooks() domain.LifecycleHooks {
	return domain.LifecycleHooks{
		OnRunStart:     t.runStart,
		OnRunFinish:    t.runFinish,
		OnStateEnter:   t.stateEnter,
		OnStateLeave:   t.stateLeave,
		OnActionStart:  t.actionStart,
		OnActionFinish: t.actionFinish,
	}
}

func (t *Tracer) runStart(ctx context.Context, e *domain.RunEvent) {
	_, span := t.tracer.Start(ctx, "run "+string(e.Workflow),
		trace.WithTimestamp(e.Timestamp),
		trace.WithAttributes(
			attribute.String("weft.run_id", e.RunID),
			attribute.String("weft.workflow", string(e.Workflow)),
			attribute.Int("weft.depth", e.Depth),
		),
	)
	t.put(t.runs, e.RunID, span)
}

func (t *Tracer) runFinish(_ context.Context, e *domain.RunEvent) {
	span := t.take(t.runs, e.RunID)
	if span == nil {
		return
	}
	span.SetAttributes(attribute.String("weft.status", string(e.Status)))
	if e.Status == domain.RunFailed {
		span.SetStatus(codes.Error, e.Error)
	}
	span.End(trace.WithTimestamp(e.Timestamp))
}

func (t *Tracer) stateEnter(ctx context.Context, e *domain.StateEvent) {
	parent := t.parent(ctx, t.runs, e.RunID)
	_, span := t.tracer.Start(parent, "state "+string(e.State),
		trace.WithTimestamp(e.Timestamp),
		trace.WithAttributes(
			attribute.String("weft.state", string(e.State)),
			attribute.String("weft.state_kind", string(e.Kind)),
		),
	)
	t.put(t.states, e.RunID, span)
}

func (t *Tracer) stateLeave(_ context.Context, e *domain.StateEvent) {
	span := t.take(t.states, e.RunID)
	if span == nil {
		return
	}
	span.SetAttributes(attribute.String("weft.outcome", string(e.Outcome)))
	if e.Next != "" {
		span.SetAttributes(attribute.String("weft.next", string(e.Next)))
	}
	span.End(trace.WithTimestamp(e.Timestamp))
}

func (t *Tracer) actionStart(ctx context.Context, e *domain.ActionEvent) {
	parent := t.parent(ctx, t.states, e.RunID)
	_, span := t.tracer.Start(parent, "action "+string(e.Kind),
		trace.WithTimestamp(e.Timestamp),
		trace.WithAttributes(attribute.String("weft.action", string(e.Kind))),
	)
	t.put(t.actions, e.RunID, span)
}

func (t *Tracer) actionFinish(_ context.Context, e *domain.ActionEvent) {
	span := t.take(t.actions, e.RunID)
	if span == nil {
		return
	}
	span.SetAttributes(
		attribute.Bool("weft.success", e.Success),
		attribute.Bool("weft.cancelled", e.Cancelled),
	)
	if e.Error != "" {
		span.SetStatus(codes.Error, e.Error)
	}
	span.End(trace.WithTimestamp(e.Timestamp))
}

func (t *Tracer) parent(ctx context.Context, spans map[string]trace.Span, runID string) context.Context {
	t.mu.Lock()
	span, ok := spans[runID]
	t.mu.Unlock()
	if !ok {
		return ctx
	}
	return trace.ContextWithSpan(ctx, span)
}

func (t *Tracer) put(spans map[string]trace.Span, runID string, span trace.Span) {
	t.mu.Lock()
	defer t.mu.Unlock()
	spans[runID] = span
}

func (t *Tracer) take(spans map[string]trace.Span, runID string) trace.Span {
	t.mu.Lock()
	defer t.mu.Unlock()
	span, ok := spans[runID]
	if !ok {
		return nil
	}
	delete(spans, runID)
	return span
}
