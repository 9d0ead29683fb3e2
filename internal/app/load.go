package app

import (
	"context"
	"fmt"
	"sort"

	"github.com/vk/slogxml/internal/binder"
	"github.com/vk/slogxml/internal/ctxlog"
	"github.com/vk/slogxml/internal/doctree"
	"github.com/vk/slogxml/internal/expr"
	"github.com/vk/slogxml/internal/pipeline"
	"github.com/vk/slogxml/internal/switches"
)

// Load reads the configuration document and binds it onto a fresh
// pipeline. Sink failures of the pipeline are reported on the app's own
// logger.
func (a *App) Load(ctx context.Context) error {
	ctx = a.context(ctx)
	logger := ctxlog.FromContext(ctx)
	logger.Debug("Loading logging configuration...", "path", a.config.ConfigPath)

	root, err := doctree.Load(ctx, a.config.ConfigPath)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	opts := binder.Options{Modules: a.modules, Load: a.config.Load}
	if a.config.Expressions {
		opts.Compiler = expr.NewCompiler()
	}

	lc := pipeline.NewLoggerConfiguration().WithSelfLog(logger.With("component", "selflog"))
	rc, err := binder.Configure(ctx, lc, root, opts)
	if err != nil {
		return fmt.Errorf("failed to apply configuration: %w", err)
	}

	a.lc, a.rc, a.handler = lc, rc, lc.CreateHandler()
	levels, filters := rc.Switches.Len()
	logger.Info("Logging configuration applied.", "path", a.config.ConfigPath, "level_switches", levels, "filter_switches", filters)
	return nil
}

// Summary describes a loaded configuration.
type Summary struct {
	Path           string
	MinimumLevel   string
	Modules        []string
	LevelSwitches  map[string]string
	FilterSwitches map[string]string
}

// Summary describes the loaded configuration. It returns nil before Load.
func (a *App) Summary() *Summary {
	if a.rc == nil {
		return nil
	}
	s := &Summary{
		Path:           a.config.ConfigPath,
		MinimumLevel:   a.handler.MinimumLevel().String(),
		LevelSwitches:  make(map[string]string),
		FilterSwitches: make(map[string]string),
	}
	for id := range a.modules {
		if a.rc.Registry.Loaded(id) {
			s.Modules = append(s.Modules, id)
		}
	}
	sort.Strings(s.Modules)

	levels, filters := a.rc.Switches.Names()
	for _, name := range levels {
		sw, _ := a.rc.Switches.LookupLevel(name)
		s.LevelSwitches[name] = sw.MinimumLevel().String()
	}
	for _, name := range filters {
		sw, _ := a.rc.Switches.LookupFilter(name)
		s.FilterSwitches[name] = sw.Expression()
	}
	return s
}

// Switches returns the switches the loaded document declared.
func (a *App) Switches() *switches.Registry {
	if a.rc == nil {
		return switches.NewRegistry(nil)
	}
	return a.rc.Switches
}
