// Package pipeline is a log/slog event pipeline configured section by
// section: minimum level, enrichment, filtering, destructuring, sinks and
// audit sinks. Each section is a receiver type that configuration actions
// are registered against.
package pipeline

import (
	"context"
	"log/slog"
	"sort"
	"strings"

	"github.com/vk/slogxml/internal/level"
	"github.com/vk/slogxml/internal/switches"
)

// SourceContextKey is the attribute naming the component that wrote an
// event. Minimum level overrides match on its value.
const SourceContextKey = "SourceContext"

// ForContext returns a logger whose events carry source as their
// SourceContext.
func ForContext(l *slog.Logger, source string) *slog.Logger {
	return l.With(SourceContextKey, source)
}

// LoggerConfiguration collects the sections of one pipeline.
type LoggerConfiguration struct {
	MinimumLevel *LevelConfiguration
	Enrich       *EnrichmentConfiguration
	Filter       *FilterConfiguration
	Destructure  *DestructuringConfiguration
	WriteTo      *SinkConfiguration
	AuditTo      *AuditSinkConfiguration

	selfLog *slog.Logger
}

// NewLoggerConfiguration returns an empty configuration whose minimum level
// is Information.
func NewLoggerConfiguration() *LoggerConfiguration {
	lc := &LoggerConfiguration{
		MinimumLevel: &LevelConfiguration{minimum: level.Information},
		Enrich:       &EnrichmentConfiguration{},
		Filter:       &FilterConfiguration{},
		Destructure:  &DestructuringConfiguration{maxDepth: defaultMaxDepth},
		selfLog:      slog.New(slog.DiscardHandler),
	}
	lc.WriteTo = &SinkConfiguration{parent: lc}
	lc.AuditTo = &AuditSinkConfiguration{parent: lc}
	return lc
}

// WithSelfLog sets the logger that receives sink failures.
func (lc *LoggerConfiguration) WithSelfLog(l *slog.Logger) *LoggerConfiguration {
	if l != nil {
		lc.selfLog = l
	}
	return lc
}

func (lc *LoggerConfiguration) child() *LoggerConfiguration {
	return NewLoggerConfiguration().WithSelfLog(lc.selfLog)
}

// CreateHandler builds the slog.Handler for the current configuration.
func (lc *LoggerConfiguration) CreateHandler() *Handler {
	return newHandler(lc)
}

// CreateLogger builds a logger writing through the pipeline.
func (lc *LoggerConfiguration) CreateLogger() *slog.Logger {
	return slog.New(lc.CreateHandler())
}

// LevelConfiguration is the minimum level section.
type LevelConfiguration struct {
	minimum   level.Level
	sw        *switches.LevelSwitch
	overrides []override
}

type override struct {
	source string
	sw     *switches.LevelSwitch
}

// Is sets a fixed minimum level.
func (c *LevelConfiguration) Is(l level.Level) {
	c.minimum = l
	c.sw = nil
}

// ControlledBy makes sw the minimum level.
func (c *LevelConfiguration) ControlledBy(sw *switches.LevelSwitch) {
	c.sw = sw
}

// Override sets a fixed minimum level for events whose SourceContext is
// source or starts with source followed by a dot.
func (c *LevelConfiguration) Override(source string, l level.Level) {
	c.OverrideControlledBy(source, switches.NewLevelSwitch(l))
}

// OverrideControlledBy is Override with a switch-controlled level.
func (c *LevelConfiguration) OverrideControlledBy(source string, sw *switches.LevelSwitch) {
	source = strings.TrimSpace(source)
	for i, o := range c.overrides {
		if o.source == source {
			c.overrides[i].sw = sw
			return
		}
	}
	c.overrides = append(c.overrides, override{source: source, sw: sw})
	// Longest prefix first so the most specific override wins.
	sort.SliceStable(c.overrides, func(i, j int) bool {
		return len(c.overrides[i].source) > len(c.overrides[j].source)
	})
}

// Current returns the global minimum level.
func (c *LevelConfiguration) Current() level.Level {
	if c.sw != nil {
		return c.sw.MinimumLevel()
	}
	return c.minimum
}

// For returns the minimum level that applies to events from source.
func (c *LevelConfiguration) For(source string) level.Level {
	for _, o := range c.overrides {
		if matchesSource(source, o.source) {
			return o.sw.MinimumLevel()
		}
	}
	return c.Current()
}

func (c *LevelConfiguration) lowest() level.Level {
	low := c.Current()
	for _, o := range c.overrides {
		if l := o.sw.MinimumLevel(); l < low {
			low = l
		}
	}
	return low
}

func matchesSource(source, prefix string) bool {
	if !strings.HasPrefix(source, prefix) {
		return false
	}
	return len(source) == len(prefix) || source[len(prefix)] == '.'
}

// Enricher adds attributes to events.
type Enricher interface {
	Enrich(ctx context.Context, r *slog.Record)
}

// EnricherFunc adapts a function to Enricher.
type EnricherFunc func(ctx context.Context, r *slog.Record)

// Enrich implements Enricher.
func (f EnricherFunc) Enrich(ctx context.Context, r *slog.Record) { f(ctx, r) }

// EnrichmentConfiguration is the enrichment section.
type EnrichmentConfiguration struct {
	enrichers []Enricher
}

// With adds enrichers.
func (c *EnrichmentConfiguration) With(e ...Enricher) {
	c.enrichers = append(c.enrichers, e...)
}

// WithProperty adds name=value to every event that does not already carry
// name. Unless destructureObjects is set, composite values are stored as
// their string form.
func (c *EnrichmentConfiguration) WithProperty(name string, value any, destructureObjects bool) {
	attr := slog.Any(name, value)
	if !destructureObjects && attr.Value.Kind() == slog.KindAny {
		attr = slog.String(name, stringOf(value))
	}
	c.With(EnricherFunc(func(_ context.Context, r *slog.Record) {
		AddIfAbsent(r, attr)
	}))
}

// AddIfAbsent adds a to r unless r already has a top-level attribute with
// the same key.
func AddIfAbsent(r *slog.Record, a slog.Attr) {
	found := false
	r.Attrs(func(existing slog.Attr) bool {
		if existing.Key == a.Key {
			found = true
			return false
		}
		return true
	})
	if !found {
		r.AddAttrs(a)
	}
}

// Filter decides whether an event continues to the sinks.
type Filter interface {
	IsEnabled(r slog.Record) bool
}

// FilterFunc adapts a function to Filter.
type FilterFunc func(r slog.Record) bool

// IsEnabled implements Filter.
func (f FilterFunc) IsEnabled(r slog.Record) bool { return f(r) }

// FilterConfiguration is the filtering section. Every filter must accept an
// event for it to reach the sinks.
type FilterConfiguration struct {
	filters []Filter
}

// With adds filters.
func (c *FilterConfiguration) With(f ...Filter) {
	c.filters = append(c.filters, f...)
}

// ByExcluding drops events matching pred.
func (c *FilterConfiguration) ByExcluding(pred func(slog.Record) bool) {
	c.With(FilterFunc(func(r slog.Record) bool { return !pred(r) }))
}

// ByIncludingOnly keeps only events matching pred.
func (c *FilterConfiguration) ByIncludingOnly(pred func(slog.Record) bool) {
	c.With(FilterFunc(pred))
}

// ControlledBy delegates filtering to a filter switch.
func (c *FilterConfiguration) ControlledBy(sw *switches.FilterSwitch) {
	c.With(FilterFunc(sw.IsIncluded))
}

type sinkEntry struct {
	h       slog.Handler
	minimum level.Level
	sw      *switches.LevelSwitch
	when    func(slog.Record) bool
}

func (e sinkEntry) accepts(ctx context.Context, r slog.Record) bool {
	if r.Level < e.minimum.Slog() {
		return false
	}
	if e.sw != nil && r.Level < e.sw.Level() {
		return false
	}
	if e.when != nil && !e.when(r) {
		return false
	}
	return e.h.Enabled(ctx, r.Level)
}

// SinkConfiguration is the sink section. Sink failures are reported on the
// self log and never reach the caller.
type SinkConfiguration struct {
	parent *LoggerConfiguration
	sinks  []sinkEntry
}

// Sink adds h for events at or above restrictedToMinimumLevel and, when
// levelSwitch is set, at or above the switch's level.
func (c *SinkConfiguration) Sink(h slog.Handler, restrictedToMinimumLevel level.Level, levelSwitch *switches.LevelSwitch) {
	c.sinks = append(c.sinks, sinkEntry{h: h, minimum: restrictedToMinimumLevel, sw: levelSwitch})
}

// Logger writes to a nested pipeline that configure sets up.
func (c *SinkConfiguration) Logger(configure func(*LoggerConfiguration), restrictedToMinimumLevel level.Level, levelSwitch *switches.LevelSwitch) {
	sub := c.parent.child()
	configure(sub)
	c.Sink(sub.CreateHandler(), restrictedToMinimumLevel, levelSwitch)
}

// Conditional writes to the sinks configure adds only events matching pred.
func (c *SinkConfiguration) Conditional(pred func(slog.Record) bool, configure func(*SinkConfiguration)) {
	nested := &SinkConfiguration{parent: c.parent}
	configure(nested)
	for _, e := range nested.sinks {
		inner := e.when
		e.when = func(r slog.Record) bool {
			return pred(r) && (inner == nil || inner(r))
		}
		c.sinks = append(c.sinks, e)
	}
}

// AuditSinkConfiguration is the audit sink section. Audit sink failures are
// returned from Handle.
type AuditSinkConfiguration struct {
	parent *LoggerConfiguration
	sinks  []sinkEntry
}

// Sink adds h as an audit sink.
func (c *AuditSinkConfiguration) Sink(h slog.Handler) {
	c.sinks = append(c.sinks, sinkEntry{h: h, minimum: level.Verbose})
}

// Logger audits to a nested pipeline that configure sets up.
func (c *AuditSinkConfiguration) Logger(configure func(*LoggerConfiguration)) {
	sub := c.parent.child()
	configure(sub)
	c.Sink(sub.CreateHandler())
}
