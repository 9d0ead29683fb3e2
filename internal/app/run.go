package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/vk/slogxml/internal/ctxlog"
	"github.com/vk/slogxml/internal/level"
	"github.com/vk/slogxml/internal/pipeline"
)

// Event is one event the emit command writes through the pipeline.
type Event struct {
	Level      level.Level
	Message    string
	Source     string
	Properties map[string]string
}

var errNotLoaded = errors.New("no logging configuration has been loaded")

// Emit writes events through the loaded pipeline in order. Only audit sink
// failures are returned.
func (a *App) Emit(ctx context.Context, events ...Event) error {
	if a.handler == nil {
		return errNotLoaded
	}
	logger := ctxlog.FromContext(a.context(ctx))
	target := a.Logger()

	var errs []error
	for _, e := range events {
		l := target
		if e.Source != "" {
			l = pipeline.ForContext(l, e.Source)
		}
		r := slog.NewRecord(time.Now(), e.Level.Slog(), e.Message, 0)
		keys := make([]string, 0, len(e.Properties))
		for k := range e.Properties {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			r.AddAttrs(slog.String(k, e.Properties[k]))
		}
		if !l.Handler().Enabled(ctx, r.Level) {
			logger.Debug("Event below the minimum level.", "level", e.Level.String(), "source", e.Source)
			continue
		}
		if err := l.Handler().Handle(ctx, r); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// SetLevelSwitch moves the named level switch to value.
func (a *App) SetLevelSwitch(name, value string) error {
	sw, err := a.Switches().LookupLevel(strings.TrimSpace(name))
	if err != nil {
		return err
	}
	l, err := level.Parse(value)
	if err != nil {
		return err
	}
	sw.SetMinimumLevel(l)
	a.logger.Info("Level switch changed.", "switch", name, "level", l.String())
	return nil
}

// SetFilterSwitch replaces the expression of the named filter switch.
func (a *App) SetFilterSwitch(name, expression string) error {
	sw, err := a.Switches().LookupFilter(strings.TrimSpace(name))
	if err != nil {
		return err
	}
	if err := sw.SetExpression(expression); err != nil {
		return fmt.Errorf("filter switch %s: %w", name, err)
	}
	a.logger.Info("Filter switch changed.", "switch", name, "expression", expression)
	return nil
}
