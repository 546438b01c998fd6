package logging

import (
	"context"
	"log/slog"
	"slices"
)

// CaptureHandler tees log records into a Collector while forwarding them to
// the wrapped handler. The pipeline runner wraps each stage logger with one
// so that everything a stage logs ends up attached to the execution record.
type CaptureHandler struct {
	next      slog.Handler
	collector *Collector
	scope     string
	attrs     []slog.Attr
}

// NewCaptureHandler wraps next, recording every log record under scope.
func NewCaptureHandler(next slog.Handler, collector *Collector, scope string) *CaptureHandler {
	return &CaptureHandler{next: next, collector: collector, scope: scope}
}

// Enabled reports true for every level. The capture buffer keeps debug
// records even when the output handler filters them out; Handle applies the
// wrapped handler's level before forwarding.
func (h *CaptureHandler) Enabled(context.Context, slog.Level) bool {
	return true
}

func (h *CaptureHandler) Handle(ctx context.Context, r slog.Record) error {
	attrs := make(map[string]any, r.NumAttrs()+len(h.attrs))
	for _, a := range h.attrs {
		attrs[a.Key] = attrValue(a.Value)
	}
	r.Attrs(func(a slog.Attr) bool {
		attrs[a.Key] = attrValue(a.Value)
		return true
	})

	h.collector.Append(h.scope, LogEntry{
		Time:       r.Time,
		Level:      r.Level.String(),
		Message:    r.Message,
		Attributes: attrs,
	})

	if !h.next.Enabled(ctx, r.Level) {
		return nil
	}
	return h.next.Handle(ctx, r)
}

// WithAttrs returns a capture-preserving handler. Returning the wrapped
// handler here would drop capture for loggers derived via With.
func (h *CaptureHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &CaptureHandler{
		next:      h.next.WithAttrs(attrs),
		collector: h.collector,
		scope:     h.scope,
		attrs:     slices.Concat(h.attrs, attrs),
	}
}

// WithGroup returns a capture-preserving handler. Captured attributes stay
// flat; only the forwarded output is grouped.
func (h *CaptureHandler) WithGroup(name string) slog.Handler {
	return &CaptureHandler{
		next:      h.next.WithGroup(name),
		collector: h.collector,
		scope:     h.scope,
		attrs:     h.attrs,
	}
}

// attrValue flattens a slog.Value into a plain value for the entry map.
// Errors become their message, groups become nested maps.
func attrValue(v slog.Value) any {
	v = v.Resolve()
	switch v.Kind() {
	case slog.KindString:
		return v.String()
	case slog.KindInt64:
		return v.Int64()
	case slog.KindUint64:
		return v.Uint64()
	case slog.KindFloat64:
		return v.Float64()
	case slog.KindBool:
		return v.Bool()
	case slog.KindDuration:
		return v.Duration().String()
	case slog.KindTime:
		return v.Time()
	case slog.KindGroup:
		group := make(map[string]any, len(v.Group()))
		for _, a := range v.Group() {
			group[a.Key] = attrValue(a.Value)
		}
		return group
	case slog.KindAny:
		if err, ok := v.Any().(error); ok {
			return err.Error()
		}
		return v.Any()
	default:
		return v.Any()
	}
}
