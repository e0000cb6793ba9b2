package logging

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
)

// slogHandler forwards slog records into a Logger so library code that
// expects *slog.Logger shares the stderr sink.
type slogHandler struct {
	logger Logger
	attrs  []slog.Attr
}

// NewSlogHandler wraps logger as a slog.Handler.
func NewSlogHandler(logger Logger) slog.Handler {
	return &slogHandler{logger: OrNop(logger)}
}

func (h *slogHandler) Enabled(context.Context, slog.Level) bool {
	// The sink applies its own level filter.
	return true
}

func (h *slogHandler) Handle(_ context.Context, record slog.Record) error {
	var sb strings.Builder
	sb.WriteString(record.Message)
	appendAttr := func(attr slog.Attr) {
		fmt.Fprintf(&sb, " %s=%v", attr.Key, attr.Value.Any())
	}
	for _, attr := range h.attrs {
		appendAttr(attr)
	}
	record.Attrs(func(attr slog.Attr) bool {
		appendAttr(attr)
		return true
	})

	line := sb.String()
	switch {
	case record.Level >= slog.LevelError:
		h.logger.Error("%s", line)
	case record.Level >= slog.LevelWarn:
		h.logger.Warn("%s", line)
	case record.Level >= slog.LevelInfo:
		h.logger.Info("%s", line)
	default:
		h.logger.Debug("%s", line)
	}
	return nil
}

func (h *slogHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	merged := make([]slog.Attr, 0, len(h.attrs)+len(attrs))
	merged = append(merged, h.attrs...)
	merged = append(merged, attrs...)
	return &slogHandler{logger: h.logger, attrs: merged}
}

func (h *slogHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	return &slogHandler{logger: h.logger, attrs: h.attrs}
}
