package pipeline

import (
	"context"
	"log/slog"
	"reflect"

	"github.com/vk/slogxml/internal/level"
	"github.com/vk/slogxml/internal/registry"
	"github.com/vk/slogxml/internal/switches"
)

// AtLevel applies the enrichers configure adds only to events at or above
// enrichFromLevel.
func (c *EnrichmentConfiguration) AtLevel(enrichFromLevel level.Level, configure func(*EnrichmentConfiguration)) {
	c.when(func(r slog.Record) bool { return r.Level >= enrichFromLevel.Slog() }, configure)
}

// AtLevelControlledBy is AtLevel with a switch-controlled level.
func (c *EnrichmentConfiguration) AtLevelControlledBy(levelSwitch *switches.LevelSwitch, configure func(*EnrichmentConfiguration)) {
	c.when(func(r slog.Record) bool { return r.Level >= levelSwitch.Level() }, configure)
}

// When applies the enrichers configure adds only to events matching pred.
func (c *EnrichmentConfiguration) When(pred func(slog.Record) bool, configure func(*EnrichmentConfiguration)) {
	c.when(pred, configure)
}

func (c *EnrichmentConfiguration) when(pred func(slog.Record) bool, configure func(*EnrichmentConfiguration)) {
	nested := &EnrichmentConfiguration{}
	configure(nested)
	for _, e := range nested.enrichers {
		e := e
		c.With(EnricherFunc(func(ctx context.Context, r *slog.Record) {
			if pred(*r) {
				e.Enrich(ctx, r)
			}
		}))
	}
}

// Builtins registers the actions every pipeline supports. Actions taking a
// filter expression are only available when Compiler is set.
type Builtins struct {
	Compiler switches.Compiler
}

// Register implements registry.Module.
func (b Builtins) Register(r *registry.Registry) {
	members := make(map[string]any)
	for i, name := range level.Names() {
		members[name] = level.Level(i)
	}
	r.RegisterEnum(reflect.TypeOf(level.Level(0)), members)

	r.RegisterType(registry.TypeInfo{
		Name: "pipeline.RedactPolicy",
		Type: reflect.TypeOf(&RedactPolicy{}),
		New:  func() any { return NewRedactPolicy() },
	})
	r.RegisterType(registry.TypeInfo{
		Name:   "pipeline.Sinks",
		Fields: map[string]any{"Discard": slog.DiscardHandler},
	})

	r.RegisterMethod("WithProperty", (*EnrichmentConfiguration).WithProperty,
		registry.Required("name"), registry.Required("value"), registry.Optional("destructureObjects", false))
	r.RegisterMethod("FromLogContext", (*EnrichmentConfiguration).FromLogContext)
	r.RegisterMethod("AtLevel", (*EnrichmentConfiguration).AtLevel,
		registry.Required("enrichFromLevel"), registry.Required("configureEnricher"))
	r.RegisterMethod("AtLevel", (*EnrichmentConfiguration).AtLevelControlledBy,
		registry.Required("levelSwitch"), registry.Required("configureEnricher"))

	r.RegisterMethod("ControlledBy", (*FilterConfiguration).ControlledBy, registry.Required("switch"))

	r.RegisterMethod("ToMaximumDepth", (*DestructuringConfiguration).ToMaximumDepth, registry.Required("maximumDestructuringDepth"))
	r.RegisterMethod("ToMaximumStringLength", (*DestructuringConfiguration).ToMaximumStringLength, registry.Required("maximumStringLength"))
	r.RegisterMethod("ToMaximumCollectionCount", (*DestructuringConfiguration).ToMaximumCollectionCount, registry.Required("maximumCollectionCount"))
	r.RegisterMethod("With", (*DestructuringConfiguration).With, registry.Required("policy"))

	r.RegisterMethod("Logger", (*SinkConfiguration).Logger,
		registry.Required("configureLogger"), registry.Optional("restrictedToMinimumLevel", level.Verbose), registry.Optional("levelSwitch", nil))
	r.RegisterMethod("Sink", (*SinkConfiguration).Sink,
		registry.Required("sink"), registry.Optional("restrictedToMinimumLevel", level.Verbose), registry.Optional("levelSwitch", nil))

	r.RegisterMethod("Logger", (*AuditSinkConfiguration).Logger, registry.Required("configureLogger"))
	r.RegisterMethod("Sink", (*AuditSinkConfiguration).Sink, registry.Required("sink"))

	if b.Compiler != nil {
		b.registerExpressions(r)
	}
}

func (b Builtins) registerExpressions(r *registry.Registry) {
	r.RegisterMethod("When", func(c *EnrichmentConfiguration, expression string, configure func(*EnrichmentConfiguration)) error {
		pred, err := b.Compiler.Compile(expression)
		if err != nil {
			return err
		}
		c.When(pred, configure)
		return nil
	}, registry.Required("expression"), registry.Required("configureEnricher"))

	r.RegisterMethod("ByExcluding", func(c *FilterConfiguration, expression string) error {
		pred, err := b.Compiler.Compile(expression)
		if err != nil {
			return err
		}
		c.ByExcluding(pred)
		return nil
	}, registry.Required("expression"))

	r.RegisterMethod("ByIncludingOnly", func(c *FilterConfiguration, expression string) error {
		pred, err := b.Compiler.Compile(expression)
		if err != nil {
			return err
		}
		c.ByIncludingOnly(pred)
		return nil
	}, registry.Required("expression"))

	r.RegisterMethod("Conditional", func(c *SinkConfiguration, expression string, configure func(*SinkConfiguration)) error {
		pred, err := b.Compiler.Compile(expression)
		if err != nil {
			return err
		}
		c.Conditional(pred, configure)
		return nil
	}, registry.Required("expression"), registry.Required("configureSink"))
}
