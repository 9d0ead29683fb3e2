package binder

import (
	"context"
	"fmt"
	"reflect"
	"strings"

	"github.com/vk/slogxml/internal/ctxlog"
	"github.com/vk/slogxml/internal/directive"
	"github.com/vk/slogxml/internal/registry"
)

// bind invokes one action on receiver for every directive, in order. A
// directive without a matching overload is skipped with a warning; any
// other failure aborts the pass.
func (rc *ResolutionContext) bind(ctx context.Context, receiver reflect.Value, directives []directive.Directive) error {
	if len(directives) == 0 {
		return nil
	}
	candidates := rc.Registry.FindCandidates(receiver.Type())
	for _, d := range directives {
		if err := rc.bindOne(ctx, receiver, candidates, d); err != nil {
			return err
		}
	}
	return nil
}

func (rc *ResolutionContext) bindOne(ctx context.Context, receiver reflect.Value, candidates []*registry.Method, d directive.Directive) error {
	logger := ctxlog.FromContext(ctx).With("directive", d.Name, "pos", d.Pos.String())

	m, ok := registry.SelectOverload(candidates, d.Name, d.Args.Names())
	if !ok {
		logger.Warn("Unable to find a method to configure; the directive is skipped.",
			"section", receiver.Type().Elem().Name(),
			"arguments", strings.Join(d.Args.Names(), ", "),
			"reason", registry.DescribeMiss(candidates, d.Name))
		return nil
	}
	logger.Debug("Selected overload.", "method", m.String())

	args := make([]reflect.Value, len(m.Params))
	for i, p := range m.Params {
		raw, supplied := d.Args.Get(p.Name)
		if !supplied {
			args[i] = p.Default
			continue
		}
		v, err := rc.Resolve(ctx, raw, p.Type)
		if err != nil {
			return fmt.Errorf("%s: %s: argument '%s': %w", d.Pos, d.Name, p.Name, err)
		}
		args[i] = v
	}
	for _, name := range d.Args.Names() {
		if !hasParam(m, name) {
			logger.Debug("Ignoring argument the selected method does not take.", "argument", name)
		}
	}

	if err := invoke(m, receiver, args); err != nil {
		return fmt.Errorf("%s: %s: %w", d.Pos, d.Name, err)
	}
	return nil
}

func hasParam(m *registry.Method, name string) bool {
	for _, p := range m.Params {
		if strings.EqualFold(p.Name, name) {
			return true
		}
	}
	return false
}

// invoke calls m and turns a nested configuration failure raised inside it
// back into an error.
func invoke(m *registry.Method, receiver reflect.Value, args []reflect.Value) (err error) {
	defer func() {
		if r := recover(); r != nil {
			ne, ok := r.(nestedError)
			if !ok {
				panic(r)
			}
			err = ne.err
		}
	}()
	return m.Invoke(receiver, args)
}
