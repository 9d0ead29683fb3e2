package pipeline

import (
	"context"
	"log/slog"
)

type logContextKey struct{}

// PushProperties returns a context whose events, when the FromLogContext
// enricher is configured, carry attrs in addition to any pushed earlier.
func PushProperties(ctx context.Context, attrs ...slog.Attr) context.Context {
	existing, _ := ctx.Value(logContextKey{}).([]slog.Attr)
	merged := make([]slog.Attr, 0, len(existing)+len(attrs))
	merged = append(merged, existing...)
	merged = append(merged, attrs...)
	return context.WithValue(ctx, logContextKey{}, merged)
}

// FromLogContext enriches events with the properties pushed onto the
// context passed to the logger. Later pushes shadow earlier ones.
func (c *EnrichmentConfiguration) FromLogContext() {
	c.With(EnricherFunc(func(ctx context.Context, r *slog.Record) {
		if ctx == nil {
			return
		}
		attrs, _ := ctx.Value(logContextKey{}).([]slog.Attr)
		for i := len(attrs) - 1; i >= 0; i-- {
			AddIfAbsent(r, attrs[i])
		}
	}))
}
