package events

import (
	"context"
	"log/slog"
)

// WrapHandler returns a slog.Handler that mirrors records onto the bus
// as log events before passing them to the wrapped handler.
func (s *Service) WrapHandler(handler slog.Handler) slog.Handler {
	return &busHandler{
		service: s,
		inner:   handler,
	}
}

type busHandler struct {
	service *Service
	inner   slog.Handler
	attrs   []slog.Attr
	group   string
}

func (h *busHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.inner.Enabled(ctx, level)
}

func (h *busHandler) Handle(ctx context.Context, record slog.Record) error {
	event := Event{
		Timestamp: record.Time,
		Level:     levelName(record.Level),
		Type:      TypeLog,
		Message:   record.Message,
	}

	for _, attr := range h.attrs {
		addAttr(&event, attr, h.group)
	}
	record.Attrs(func(attr slog.Attr) bool {
		addAttr(&event, attr, h.group)
		return true
	})

	h.service.Publish(event)

	return h.inner.Handle(ctx, record)
}

func (h *busHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	merged := make([]slog.Attr, 0, len(h.attrs)+len(attrs))
	merged = append(merged, h.attrs...)
	merged = append(merged, attrs...)
	return &busHandler{
		service: h.service,
		inner:   h.inner.WithAttrs(attrs),
		attrs:   merged,
		group:   h.group,
	}
}

func (h *busHandler) WithGroup(name string) slog.Handler {
	group := name
	if h.group != "" {
		group = h.group + "." + name
	}
	return &busHandler{
		service: h.service,
		inner:   h.inner.WithGroup(name),
		attrs:   h.attrs,
		group:   group,
	}
}

func addAttr(event *Event, attr slog.Attr, group string) {
	key := attr.Key
	if group != "" {
		key = group + "." + key
	}

	if key == "job_id" {
		event.JobID = attr.Value.String()
		return
	}

	if event.Fields == nil {
		event.Fields = make(map[string]any)
	}
	event.Fields[key] = attr.Value.Any()
}

func levelName(level slog.Level) string {
	switch {
	case level < slog.LevelDebug:
		return "trace"
	case level < slog.LevelInfo:
		return "debug"
	case level < slog.LevelWarn:
		return "info"
	case level < slog.LevelError:
		return "warn"
	default:
		return "error"
	}
}
