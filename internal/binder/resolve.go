package binder

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/vk/slogxml/internal/cfgerr"
	"github.com/vk/slogxml/internal/ctxlog"
	"github.com/vk/slogxml/internal/directive"
	"github.com/vk/slogxml/internal/doctree"
	"github.com/vk/slogxml/internal/pipeline"
)

var (
	errorType      = reflect.TypeOf((*error)(nil)).Elem()
	nodeType       = reflect.TypeOf((*doctree.Node)(nil))
	loggerConfType = reflect.TypeOf((*pipeline.LoggerConfiguration)(nil))
)

// Resolve converts raw into a value of type t.
func (rc *ResolutionContext) Resolve(ctx context.Context, raw directive.RawArgument, t reflect.Type) (reflect.Value, error) {
	logger := ctxlog.FromContext(ctx).With("target", t.String(), "kind", raw.Kind.String())

	if t == nodeType {
		logger.Debug("Target is a raw node, passing it through.")
		if raw.Node == nil {
			return reflect.ValueOf(&doctree.Node{Text: raw.Text}), nil
		}
		return reflect.ValueOf(raw.Node), nil
	}

	if isConfigurator(t) {
		if raw.Node == nil || !raw.Node.HasElements() {
			return reflect.Value{}, &cfgerr.ConversionError{Value: raw.Text, Target: t, Err: errors.New("a nested configuration is required")}
		}
		logger.Debug("Target is a configurator, deferring nested bind.")
		return rc.configurator(ctx, raw.Node, t), nil
	}

	switch t.Kind() {
	case reflect.Slice, reflect.Array:
		if t.Elem().Kind() != reflect.Uint8 || raw.Kind != directive.Text {
			return rc.resolveCollection(ctx, raw, t)
		}
	}

	switch raw.Kind {
	case directive.Sequence:
		if t.Kind() == reflect.Interface && t.NumMethod() == 0 {
			return rc.resolveCollection(ctx, raw, reflect.TypeOf([]any(nil)))
		}
		return reflect.Value{}, &cfgerr.ConversionError{Value: describe(raw), Target: t, Err: errors.New("a list cannot be bound to a single value")}
	case directive.Nested:
		return rc.resolveNested(ctx, raw.Node, t)
	default:
		return rc.resolveText(ctx, raw.Text, t)
	}
}

func isConfigurator(t reflect.Type) bool {
	if t.Kind() != reflect.Func || t.IsVariadic() || t.NumIn() != 1 {
		return false
	}
	if t.In(0).Kind() != reflect.Pointer {
		return false
	}
	return t.NumOut() == 0 || (t.NumOut() == 1 && t.Out(0) == errorType)
}

// nestedError carries a nested bind failure out of a configurator that has
// no error result. invoke recovers it.
type nestedError struct{ err error }

func (rc *ResolutionContext) configurator(ctx context.Context, node *doctree.Node, t reflect.Type) reflect.Value {
	return reflect.MakeFunc(t, func(in []reflect.Value) []reflect.Value {
		err := rc.configureNested(ctx, node, in[0])
		if t.NumOut() == 1 {
			if err != nil {
				return []reflect.Value{reflect.ValueOf(&err).Elem()}
			}
			return []reflect.Value{reflect.Zero(errorType)}
		}
		if err != nil {
			panic(nestedError{err: err})
		}
		return nil
	})
}

func (rc *ResolutionContext) configureNested(ctx context.Context, node *doctree.Node, receiver reflect.Value) error {
	if receiver.Type() == loggerConfType {
		return rc.configureLogger(ctx, receiver.Interface().(*pipeline.LoggerConfiguration), node, true)
	}
	return rc.bind(ctx, receiver, directive.ReadAll(node, directive.Options{}))
}

func (rc *ResolutionContext) resolveCollection(ctx context.Context, raw directive.RawArgument, t reflect.Type) (reflect.Value, error) {
	var items []directive.RawArgument
	switch raw.Kind {
	case directive.Sequence:
		items = raw.Items
	case directive.Nested:
		for _, c := range raw.Node.Children {
			items = append(items, directive.Classify(c))
		}
	default:
		for _, part := range strings.Split(raw.Text, ",") {
			if part = strings.TrimSpace(part); part != "" {
				items = append(items, directive.TextArgument(part))
			}
		}
	}

	var out reflect.Value
	if t.Kind() == reflect.Array {
		if len(items) != t.Len() {
			return reflect.Value{}, &cfgerr.ConversionError{Value: describe(raw), Target: t, Err: fmt.Errorf("expected %d elements, got %d", t.Len(), len(items))}
		}
		out = reflect.New(t).Elem()
	} else {
		out = reflect.MakeSlice(t, len(items), len(items))
	}
	for i, item := range items {
		v, err := rc.Resolve(ctx, item, t.Elem())
		if err != nil {
			return reflect.Value{}, fmt.Errorf("in element %d: %w", i, err)
		}
		out.Index(i).Set(v)
	}
	return out, nil
}

// resolveNested binds a sub-tree to a struct, a map or an interface whose
// implementation is named by the sub-tree's only child.
func (rc *ResolutionContext) resolveNested(ctx context.Context, node *doctree.Node, t reflect.Type) (reflect.Value, error) {
	switch {
	case t.Kind() == reflect.Map && t.Key().Kind() == reflect.String:
		out := reflect.MakeMapWithSize(t, len(node.Children))
		for _, c := range node.Children {
			v, err := rc.Resolve(ctx, directive.Classify(c), t.Elem())
			if err != nil {
				return reflect.Value{}, fmt.Errorf("in key '%s': %w", c.Tag, err)
			}
			out.SetMapIndex(reflect.ValueOf(c.Tag).Convert(t.Key()), v)
		}
		return out, nil

	case t.Kind() == reflect.Struct:
		out := reflect.New(t)
		if err := rc.bindFields(ctx, node, out.Elem()); err != nil {
			return reflect.Value{}, err
		}
		return out.Elem(), nil

	case t.Kind() == reflect.Pointer && t.Elem().Kind() == reflect.Struct:
		out := reflect.New(t.Elem())
		if info, ok := rc.Registry.TypeFor(t); ok && info.New != nil {
			if v := reflect.ValueOf(info.New()); v.Type() == t {
				out = v
			}
		}
		if err := rc.bindFields(ctx, node, out.Elem()); err != nil {
			return reflect.Value{}, err
		}
		return out, nil

	case t.Kind() == reflect.Interface && t.NumMethod() == 0:
		if len(node.Children) == 1 {
			if _, ok := rc.Registry.LookupType(node.Children[0].Tag); ok {
				return rc.resolveImplementation(ctx, node.Children[0], t)
			}
		}
		v, err := rc.resolveNested(ctx, node, reflect.TypeOf(map[string]any(nil)))
		if err != nil {
			return reflect.Value{}, err
		}
		return assignable(v, t, node.Tag)

	case t.Kind() == reflect.Interface && len(node.Children) == 1:
		return rc.resolveImplementation(ctx, node.Children[0], t)
	}
	return reflect.Value{}, &cfgerr.ConversionError{Value: node.String(), Target: t, Err: errors.New("nested configuration cannot be bound to this type")}
}

// resolveImplementation creates the named type impl's tag refers to and
// binds impl's attributes and children to its fields.
func (rc *ResolutionContext) resolveImplementation(ctx context.Context, impl *doctree.Node, t reflect.Type) (reflect.Value, error) {
	info, ok := rc.Registry.LookupType(impl.Tag)
	if !ok {
		return reflect.Value{}, &cfgerr.TypeNotFoundError{Name: impl.Tag}
	}
	if info.New == nil {
		return reflect.Value{}, &cfgerr.NoUsableConstructorError{Type: info.Name}
	}
	out := reflect.ValueOf(info.New())
	if len(impl.Attrs) > 0 || impl.HasElements() {
		if out.Kind() != reflect.Pointer || out.Elem().Kind() != reflect.Struct {
			return reflect.Value{}, &cfgerr.ConversionError{Value: impl.String(), Target: t, Err: fmt.Errorf("%s has no settable fields", info.Name)}
		}
		if err := rc.bindFields(ctx, impl, out.Elem()); err != nil {
			return reflect.Value{}, err
		}
	}
	return assignable(out, t, impl.Tag)
}

// bindFields sets the fields of the struct v from node's attributes and
// children. A field matches by its `bind` tag or, failing that, its name,
// ignoring case.
func (rc *ResolutionContext) bindFields(ctx context.Context, node *doctree.Node, v reflect.Value) error {
	args := make([]directive.Argument, 0, len(node.Attrs)+len(node.Children))
	for _, a := range node.Attrs {
		args = append(args, directive.Argument{Name: a.Name, Raw: directive.TextArgument(a.Value)})
	}
	for _, c := range node.Children {
		args = append(args, directive.Argument{Name: c.Tag, Raw: directive.Classify(c)})
	}

	for _, arg := range args {
		idx, ok := fieldIndex(v.Type(), arg.Name)
		if !ok {
			return &cfgerr.ConversionError{Value: arg.Name, Target: v.Type(), Err: errors.New("no such field")}
		}
		f := v.Field(idx)
		val, err := rc.Resolve(ctx, arg.Raw, f.Type())
		if err != nil {
			return fmt.Errorf("in field '%s': %w", arg.Name, err)
		}
		f.Set(val)
	}
	return nil
}

func fieldIndex(t reflect.Type, name string) (int, bool) {
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		if !f.IsExported() {
			continue
		}
		tag := strings.Split(f.Tag.Get("bind"), ",")[0]
		if tag == "-" {
			continue
		}
		if strings.EqualFold(tag, name) || (tag == "" && strings.EqualFold(f.Name, name)) {
			return i, true
		}
	}
	return 0, false
}

func assignable(v reflect.Value, t reflect.Type, literal string) (reflect.Value, error) {
	if !v.IsValid() {
		return reflect.Zero(t), nil
	}
	if v.Type().AssignableTo(t) {
		out := reflect.New(t).Elem()
		out.Set(v)
		return out, nil
	}
	return reflect.Value{}, &cfgerr.ConversionError{Value: literal, Target: t, Err: fmt.Errorf("%s is not assignable", v.Type())}
}

func describe(raw directive.RawArgument) string {
	if raw.Kind == directive.Text || raw.Node == nil {
		return raw.Text
	}
	return raw.Node.String()
}
