package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/vk/slogxml/internal/level"
)

// Handler is the slog.Handler produced by a LoggerConfiguration.
type Handler struct {
	lc     *LoggerConfiguration
	attrs  []slog.Attr
	groups []string
	source string
}

var _ slog.Handler = (*Handler)(nil)

func newHandler(lc *LoggerConfiguration) *Handler {
	return &Handler{lc: lc}
}

// Enabled reports whether any source could accept an event at lvl. The
// per-source decision is made in Handle once the SourceContext is known.
func (h *Handler) Enabled(_ context.Context, lvl slog.Level) bool {
	if h.source != "" {
		return lvl >= h.lc.MinimumLevel.For(h.source).Slog()
	}
	return lvl >= h.lc.MinimumLevel.lowest().Slog()
}

// Handle runs r through enrichment, filtering and destructuring and writes
// it to every sink that accepts it. Only audit sink errors are returned.
func (h *Handler) Handle(ctx context.Context, r slog.Record) error {
	rec := h.compose(r)

	source := h.source
	if source == "" {
		source = sourceOf(rec)
	}
	if rec.Level < h.lc.MinimumLevel.For(source).Slog() {
		return nil
	}

	for _, e := range h.lc.Enrich.enrichers {
		e.Enrich(ctx, &rec)
	}
	for _, f := range h.lc.Filter.filters {
		if !f.IsEnabled(rec) {
			return nil
		}
	}
	if h.lc.Destructure.active() {
		rec = h.lc.Destructure.apply(rec)
	}

	for _, s := range h.lc.WriteTo.sinks {
		if !s.accepts(ctx, rec) {
			continue
		}
		if err := s.h.Handle(ctx, rec.Clone()); err != nil {
			h.lc.selfLog.Error("Sink failed to emit event.", "sink", fmt.Sprintf("%T", s.h), "error", err)
		}
	}

	var errs []error
	for _, s := range h.lc.AuditTo.sinks {
		if !s.accepts(ctx, rec) {
			continue
		}
		if err := s.h.Handle(ctx, rec.Clone()); err != nil {
			errs = append(errs, fmt.Errorf("audit sink %T: %w", s.h, err))
		}
	}
	return errors.Join(errs...)
}

func (h *Handler) compose(r slog.Record) slog.Record {
	out := slog.NewRecord(r.Time, r.Level, r.Message, r.PC)
	out.AddAttrs(h.attrs...)

	var own []slog.Attr
	r.Attrs(func(a slog.Attr) bool {
		own = append(own, a)
		return true
	})
	out.AddAttrs(wrapGroups(h.groups, own)...)
	return out
}

func wrapGroups(groups []string, attrs []slog.Attr) []slog.Attr {
	if len(attrs) == 0 {
		return nil
	}
	for i := len(groups) - 1; i >= 0; i-- {
		attrs = []slog.Attr{{Key: groups[i], Value: slog.GroupValue(attrs...)}}
	}
	return attrs
}

func sourceOf(r slog.Record) string {
	var source string
	r.Attrs(func(a slog.Attr) bool {
		if a.Key == SourceContextKey {
			source = a.Value.String()
			return false
		}
		return true
	})
	return source
}

// WithAttrs implements slog.Handler.
func (h *Handler) WithAttrs(attrs []slog.Attr) slog.Handler {
	if len(attrs) == 0 {
		return h
	}
	h2 := h.clone()
	if len(h.groups) == 0 {
		for _, a := range attrs {
			if a.Key == SourceContextKey {
				h2.source = a.Value.String()
			}
		}
	}
	h2.attrs = append(h2.attrs, wrapGroups(h.groups, attrs)...)
	return h2
}

// WithGroup implements slog.Handler.
func (h *Handler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	h2 := h.clone()
	h2.groups = append(h2.groups, name)
	return h2
}

func (h *Handler) clone() *Handler {
	return &Handler{
		lc:     h.lc,
		attrs:  append([]slog.Attr(nil), h.attrs...),
		groups: append([]string(nil), h.groups...),
		source: h.source,
	}
}

// MinimumLevel returns the configured global minimum level.
func (h *Handler) MinimumLevel() level.Level {
	return h.lc.MinimumLevel.Current()
}

// Close closes every sink and audit sink that implements io.Closer,
// including the sinks of nested loggers. Events handled afterwards may fail.
func (h *Handler) Close() error {
	return h.lc.Close()
}

// Close closes the sinks of lc that implement io.Closer.
func (lc *LoggerConfiguration) Close() error {
	var errs []error
	for _, sinks := range [][]sinkEntry{lc.WriteTo.sinks, lc.AuditTo.sinks} {
		for _, s := range sinks {
			if c, ok := s.h.(io.Closer); ok {
				if err := c.Close(); err != nil {
					errs = append(errs, fmt.Errorf("closing sink %T: %w", s.h, err))
				}
			}
		}
	}
	return errors.Join(errs...)
}
