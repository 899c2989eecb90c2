package adapter

import (
	"context"
	"log/slog"

	"github.com/Chichichkin/LogMailer/internal/logging"
)

// Handler is a slog.Handler writing records to a logging.Logger.
type Handler struct {
	out    logging.Logger
	level  slog.Leveler
	attrs  []slog.Attr
	groups []string
}

var _ slog.Handler = (*Handler)(nil)

func NewHandler(out logging.Logger, level slog.Leveler) *Handler {
	if level == nil {
		level = slog.LevelInfo
	}
	return &Handler{out: out, level: level}
}

func (h *Handler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level.Level()
}

func (h *Handler) Handle(_ context.Context, r slog.Record) error {
	meta := make(map[string]any)
	for _, a := range h.attrs {
		addAttr(meta, a)
	}

	target := meta
	for _, g := range h.groups {
		sub, ok := target[g].(map[string]any)
		if !ok {
			sub = make(map[string]any)
			target[g] = sub
		}
		target = sub
	}
	r.Attrs(func(a slog.Attr) bool {
		addAttr(target, a)
		return true
	})
	pruneEmpty(meta)

	var out any
	if len(meta) > 0 {
		out = meta
	}

	var logErr error
	h.out.Log(slogLevel(r.Level), r.Message, out, func(err error, _ bool) {
		logErr = err
	})
	return logErr
}

func (h *Handler) WithAttrs(attrs []slog.Attr) slog.Handler {
	if len(attrs) == 0 {
		return h
	}
	clone := *h
	if len(h.groups) > 0 {
		attrs = []slog.Attr{nestGroups(h.groups, attrs)}
	}
	clone.attrs = append(append([]slog.Attr{}, h.attrs...), attrs...)
	return &clone
}

func (h *Handler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	clone := *h
	clone.groups = append(append([]string{}, h.groups...), name)
	return &clone
}

func nestGroups(groups []string, attrs []slog.Attr) slog.Attr {
	args := make([]any, 0, len(attrs))
	for _, a := range attrs {
		args = append(args, a)
	}
	attr := slog.Group(groups[len(groups)-1], args...)
	for i := len(groups) - 2; i >= 0; i-- {
		attr = slog.Group(groups[i], attr)
	}
	return attr
}

func addAttr(dst map[string]any, a slog.Attr) {
	a.Value = a.Value.Resolve()
	if a.Equal(slog.Attr{}) {
		return
	}

	if a.Value.Kind() != slog.KindGroup {
		dst[a.Key] = a.Value.Any()
		return
	}

	target := dst
	if a.Key != "" {
		sub, ok := dst[a.Key].(map[string]any)
		if !ok {
			sub = make(map[string]any)
			dst[a.Key] = sub
		}
		target = sub
	}
	for _, ga := range a.Value.Group() {
		addAttr(target, ga)
	}
}

func pruneEmpty(m map[string]any) {
	for k, v := range m {
		sub, ok := v.(map[string]any)
		if !ok {
			continue
		}
		pruneEmpty(sub)
		if len(sub) == 0 {
			delete(m, k)
		}
	}
}

func slogLevel(l slog.Level) string {
	switch {
	case l >= slog.LevelError:
		return "error"
	case l >= slog.LevelWarn:
		return "warn"
	case l >= slog.LevelInfo:
		return "info"
	default:
		return "debug"
	}
}
