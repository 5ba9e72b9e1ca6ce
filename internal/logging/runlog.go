package logging

import (
	"context"
	"log/slog"

	"github.com/aretw0/weft/pkg/domain"
	"github.com/aretw0/weft/pkg/ports"
)

// RunIDKey is the attribute that routes a record into a run's log.
const RunIDKey = "run_id"

// RunLogHandler forwards records to an inner handler and copies every record
// carrying a run_id attribute into the run's log store, at any level.
type RunLogHandler struct {
	inner  slog.Handler
	logs   ports.LogStore
	attrs  []slog.Attr
	prefix string
}

// NewRunLogHandler wraps inner. A nil store disables the tee.
func NewRunLogHandler(inner slog.Handler, logs ports.LogStore) *RunLogHandler {
	return &RunLogHandler{inner: inner, logs: logs}
}

func (h *RunLogHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.logs != nil || h.inner.Enabled(ctx, level)
}

func (h *RunLogHandler) Handle(ctx context.Context, r slog.Record) error {
	if h.logs != nil {
		h.capture(ctx, r)
	}
	if !h.inner.Enabled(ctx, r.Level) {
		return nil
	}
	return h.inner.Handle(ctx, r)
}

func (h *RunLogHandler) capture(ctx context.Context, r slog.Record) {
	var runID string
	attrs := make(map[string]any)
	add := func(prefix string, a slog.Attr) {
		if prefix == "" && a.Key == RunIDKey {
			runID = a.Value.Resolve().String()
			return
		}
		flatten(attrs, prefix, a)
	}
	for _, a := range h.attrs {
		add("", a)
	}
	r.Attrs(func(a slog.Attr) bool {
		add(h.prefix, a)
		return true
	})
	if runID == "" {
		return
	}
	if len(attrs) == 0 {
		attrs = nil
	}

	entry := domain.LogEntry{
		Time:    r.Time.UTC(),
		Level:   r.Level,
		Message: r.Message,
		RunID:   runID,
		Attrs:   attrs,
	}
	// Log lines about a cancelled run still belong to it.
	_ = h.logs.Append(context.WithoutCancel(ctx), runID, entry)
}

func (h *RunLogHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	next := *h
	next.inner = h.inner.WithAttrs(attrs)
	next.attrs = append([]slog.Attr(nil), h.attrs...)
	for _, a := range attrs {
		if h.prefix != "" {
			a.Key = h.prefix + a.Key
		}
		next.attrs = append(next.attrs, a)
	}
	return &next
}

func (h *RunLogHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	next := *h
	next.inner = h.inner.WithGroup(name)
	next.prefix = h.prefix + name + "."
	return &next
}

func flatten(dst map[string]any, prefix string, a slog.Attr) {
	v := a.Value.Resolve()
	key := prefix + a.Key
	if v.Kind() == slog.KindGroup {
		for _, ga := range v.Group() {
			flatten(dst, key+".", ga)
		}
		return
	}
	switch val := v.Any().(type) {
	case error:
		dst[key] = val.Error()
	default:
		dst[key] = val
	}
}
