package binder

import (
	"context"
	"reflect"
	"sort"
	"strings"

	"github.com/vk/slogxml/internal/cfgerr"
	"github.com/vk/slogxml/internal/ctxlog"
	"github.com/vk/slogxml/internal/directive"
	"github.com/vk/slogxml/internal/doctree"
	"github.com/vk/slogxml/internal/level"
	"github.com/vk/slogxml/internal/pipeline"
	"github.com/vk/slogxml/internal/registry"
	"github.com/vk/slogxml/internal/switches"
)

// Tags of the sections a configuration document may contain.
const (
	TagUsing          = "Using"
	TagLevelSwitches  = "LevelSwitches"
	TagFilterSwitches = "FilterSwitches"
	TagSwitch         = "Switch"
	TagMinimumLevel   = "MinimumLevel"
	TagOverride       = "Override"
	TagEnrich         = "Enrich"
	TagProperty       = "Property"
	TagFilter         = "Filter"
	TagDestructure    = "Destructure"
	TagWriteTo        = "WriteTo"
	TagAuditTo        = "AuditTo"
)

// BuiltinsID is the module id the pipeline's own actions are loaded under.
const BuiltinsID = "pipeline"

// Options controls a Configure call.
type Options struct {
	// Modules are the modules a Using directive may name, by id.
	Modules map[string]registry.Module
	// Load lists module ids loaded without a Using directive.
	Load []string
	// Compiler compiles filter expressions. Nil disables filter switches and
	// expression-based actions.
	Compiler switches.Compiler
}

// Configure applies the configuration document rooted at root to lc. It
// returns the resolution context so callers can reach the declared
// switches.
func Configure(ctx context.Context, lc *pipeline.LoggerConfiguration, root *doctree.Node, opts Options) (*ResolutionContext, error) {
	rc := NewResolutionContext(opts.Compiler)
	rc.Registry.Load(BuiltinsID, pipeline.Builtins{Compiler: opts.Compiler})

	for _, id := range opts.Load {
		if err := rc.loadModule(ctx, id, opts.Modules); err != nil {
			return nil, err
		}
	}
	for _, n := range root.ChildrenNamed(TagUsing) {
		for _, id := range moduleIDs(n) {
			if strings.TrimSpace(id) == "" {
				return nil, cfgerr.Invalid("%s: a Using directive must name a module, like in <Using>console</Using>", n.Pos)
			}
			if err := rc.loadModule(ctx, id, opts.Modules); err != nil {
				return nil, wrapAt(n, err)
			}
		}
	}

	if err := rc.declareSwitches(ctx, root); err != nil {
		return nil, err
	}
	if err := rc.configureLogger(ctx, lc, root, false); err != nil {
		return nil, err
	}
	return rc, nil
}

// moduleIDs returns the ids a Using node names: its Name attribute, its
// inline text, or the text of each of its children.
func moduleIDs(n *doctree.Node) []string {
	if n.HasElements() {
		ids := make([]string, len(n.Children))
		for i, c := range n.Children {
			ids[i] = c.Text
		}
		return ids
	}
	if id, ok := n.Attr(directive.NameAttr); ok {
		return []string{id}
	}
	return []string{n.Text}
}

func (rc *ResolutionContext) loadModule(ctx context.Context, id string, available map[string]registry.Module) error {
	id = strings.TrimSpace(id)
	if strings.EqualFold(id, BuiltinsID) {
		return nil
	}
	for name, m := range available {
		if strings.EqualFold(name, id) {
			if rc.Registry.Load(name, m) {
				ctxlog.FromContext(ctx).Debug("Loaded module.", "module", name)
			}
			return nil
		}
	}
	known := make([]string, 0, len(available))
	for name := range available {
		known = append(known, name)
	}
	sort.Strings(known)
	return cfgerr.Invalid("module %q is not available; known modules are: %s", id, strings.Join(known, ", "))
}

// declareSwitches runs before any section is bound so that every directive
// can reference every switch.
func (rc *ResolutionContext) declareSwitches(ctx context.Context, root *doctree.Node) error {
	for _, block := range root.ChildrenNamed(TagLevelSwitches) {
		for _, n := range block.ChildrenNamed(TagSwitch) {
			name, _ := n.Attr(directive.NameAttr)
			initial := switchValue(n, "Level")
			if _, err := rc.Switches.DeclareLevel(name, initial); err != nil {
				return wrapAt(n, err)
			}
			ctxlog.FromContext(ctx).Debug("Declared level switch.", "switch", name, "initial", initial)
		}
	}
	for _, block := range root.ChildrenNamed(TagFilterSwitches) {
		for _, n := range block.ChildrenNamed(TagSwitch) {
			name, _ := n.Attr(directive.NameAttr)
			initial := switchValue(n, "Expression")
			if _, err := rc.Switches.DeclareFilter(ctx, name, initial); err != nil {
				return wrapAt(n, err)
			}
		}
	}
	return nil
}

func switchValue(n *doctree.Node, attr string) string {
	if v, ok := n.Value(attr); ok {
		return strings.TrimSpace(v)
	}
	if v, ok := n.Value("Value"); ok {
		return strings.TrimSpace(v)
	}
	text, _ := n.InlineText()
	return strings.TrimSpace(text)
}

// configureLogger binds every section of node to lc. Nested passes only
// read switches and modules declared by the top-level pass.
func (rc *ResolutionContext) configureLogger(ctx context.Context, lc *pipeline.LoggerConfiguration, node *doctree.Node, nested bool) error {
	logger := ctxlog.FromContext(ctx)
	if nested {
		for _, tag := range []string{TagUsing, TagLevelSwitches, TagFilterSwitches} {
			if node.Child(tag) != nil {
				logger.Warn("Ignoring section in a nested logger configuration; declare it at the top level.", "section", tag, "pos", node.Pos.String())
			}
		}
	}

	if err := rc.configureMinimumLevel(ctx, lc.MinimumLevel, node); err != nil {
		return err
	}

	if err := rc.bind(ctx, reflect.ValueOf(lc.Enrich), directive.Read(node, TagEnrich, directive.Options{})); err != nil {
		return err
	}
	for _, n := range node.ChildrenNamed(TagProperty) {
		if err := configureProperty(lc.Enrich, n); err != nil {
			return err
		}
	}

	filters := directive.Read(node, TagFilter, directive.Options{
		Shorthands: map[string]string{"ControlledBy": "switch"},
	})
	if err := rc.bind(ctx, reflect.ValueOf(lc.Filter), filters); err != nil {
		return err
	}
	if err := rc.bind(ctx, reflect.ValueOf(lc.Destructure), directive.Read(node, TagDestructure, directive.Options{})); err != nil {
		return err
	}
	if err := rc.bind(ctx, reflect.ValueOf(lc.WriteTo), directive.Read(node, TagWriteTo, directive.Options{})); err != nil {
		return err
	}
	return rc.bind(ctx, reflect.ValueOf(lc.AuditTo), directive.Read(node, TagAuditTo, directive.Options{}))
}

func (rc *ResolutionContext) configureMinimumLevel(ctx context.Context, c *pipeline.LevelConfiguration, node *doctree.Node) error {
	for _, n := range node.ChildrenNamed(TagMinimumLevel) {
		if text, ok := n.InlineText(); ok && strings.TrimSpace(text) != "" {
			l, err := rc.parseLevel(n, text)
			if err != nil {
				return err
			}
			c.Is(l)
		}
		if v, ok := n.Value("Default"); ok {
			l, err := rc.parseLevel(n, v)
			if err != nil {
				return err
			}
			c.Is(l)
		}
		if name, ok := n.Value("ControlledBy"); ok {
			sw, err := rc.Switches.LookupLevel(strings.TrimSpace(ExpandEnv(name)))
			if err != nil {
				return wrapAt(n, err)
			}
			c.ControlledBy(sw)
		}

		for _, o := range n.ChildrenNamed(TagOverride) {
			source, ok := o.Value("Source")
			if !ok {
				source, _ = o.Attr(directive.NameAttr)
			}
			if strings.TrimSpace(source) == "" {
				return cfgerr.Invalid("%s: a minimum level override must name its source, like in <Override Source=\"System\">Warning</Override>", o.Pos)
			}
			if name, ok := o.Value("ControlledBy"); ok {
				sw, err := rc.Switches.LookupLevel(strings.TrimSpace(ExpandEnv(name)))
				if err != nil {
					return wrapAt(o, err)
				}
				c.OverrideControlledBy(source, sw)
				continue
			}
			text, ok := o.InlineText()
			if !ok {
				text, _ = o.Value("Level")
			}
			l, err := rc.parseLevel(o, text)
			if err != nil {
				return err
			}
			c.Override(source, l)
			ctxlog.FromContext(ctx).Debug("Added minimum level override.", "source", source, "level", l.String())
		}
	}
	return nil
}

func (rc *ResolutionContext) parseLevel(n *doctree.Node, text string) (level.Level, error) {
	l, err := level.Parse(strings.TrimSpace(ExpandEnv(text)))
	if err != nil {
		return 0, wrapAt(n, &cfgerr.ConversionError{Value: text, Target: reflect.TypeOf(level.Level(0)), Err: err})
	}
	return l, nil
}

// configureProperty adds the constant property n declares. Name and value
// are both mandatory.
func configureProperty(c *pipeline.EnrichmentConfiguration, n *doctree.Node) error {
	name, _ := n.Attr(directive.NameAttr)
	if strings.TrimSpace(name) == "" {
		return cfgerr.Invalid("%s: a Property directive must have a Name, like in <Property Name=\"Application\" Value=\"Billing\"/>", n.Pos)
	}
	value, ok := n.Value("Value")
	if !ok {
		value, ok = n.InlineText()
	}
	if !ok {
		return cfgerr.Invalid("%s: property %q must have a Value attribute or inline text", n.Pos, name)
	}
	c.WithProperty(strings.TrimSpace(name), ExpandEnv(value), false)
	return nil
}

type posError struct {
	pos doctree.Pos
	err error
}

func (e *posError) Error() string { return e.pos.String() + ": " + e.err.Error() }

func (e *posError) Unwrap() error { return e.err }

func wrapAt(n *doctree.Node, err error) error {
	return &posError{pos: n.Pos, err: err}
}
