// Package expr compiles filter predicates written in HCL expression syntax.
//
// A predicate sees three variables: level (the event's level name, e.g.
// "Warning"), message and props (an object holding the event's attributes,
// groups nested as objects). For example:
//
//	level == "Error" || startswith(props.SourceContext, "Billing")
//
// Evaluation errors, unknown or null results and non-boolean results all
// count as "no match".
package expr

import (
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/hclsyntax"
	"github.com/vk/slogxml/internal/level"
	"github.com/zclconf/go-cty/cty"
	"github.com/zclconf/go-cty/cty/function"
	"github.com/zclconf/go-cty/cty/function/stdlib"
	"github.com/zclconf/go-cty/cty/gocty"
)

// Predicate reports whether an event satisfies a compiled expression.
type Predicate = func(r slog.Record) bool

// Compiler turns expression source into Predicates. The zero value is ready
// to use.
type Compiler struct{}

// NewCompiler returns a Compiler.
func NewCompiler() *Compiler {
	return &Compiler{}
}

var knownRoots = map[string]struct{}{
	"level":   {},
	"message": {},
	"props":   {},
}

var functions = map[string]function.Function{
	"lower":      stdlib.LowerFunc,
	"upper":      stdlib.UpperFunc,
	"startswith": stringTest(strings.HasPrefix),
	"endswith":   stringTest(strings.HasSuffix),
	"contains":   stringTest(strings.Contains),
}

func stringTest(fn func(s, sub string) bool) function.Function {
	return function.New(&function.Spec{
		Params: []function.Parameter{
			{Name: "str", Type: cty.String},
			{Name: "sub", Type: cty.String},
		},
		Type: function.StaticReturnType(cty.Bool),
		Impl: func(args []cty.Value, _ cty.Type) (cty.Value, error) {
			return cty.BoolVal(fn(args[0].AsString(), args[1].AsString())), nil
		},
	})
}

// Compile parses src and checks that it only references known variables.
func (c *Compiler) Compile(src string) (Predicate, error) {
	if strings.TrimSpace(src) == "" {
		return nil, fmt.Errorf("filter expression is empty")
	}
	e, diags := hclsyntax.ParseExpression([]byte(src), "expression", hcl.InitialPos)
	if diags.HasErrors() {
		return nil, fmt.Errorf("failed to parse filter expression %q: %s", src, diags.Error())
	}
	for _, root := range Variables(e) {
		if _, ok := knownRoots[root]; !ok {
			return nil, fmt.Errorf("filter expression %q references unknown variable %q; use level, message or props", src, root)
		}
	}
	return func(r slog.Record) bool {
		return evaluate(e, r)
	}, nil
}

// Variables returns the sorted, de-duplicated root names referenced by e.
func Variables(e hcl.Expression) []string {
	seen := make(map[string]struct{})
	for _, traversal := range e.Variables() {
		seen[traversal.RootName()] = struct{}{}
	}
	roots := make([]string, 0, len(seen))
	for name := range seen {
		roots = append(roots, name)
	}
	sort.Strings(roots)
	return roots
}

func evaluate(e hcl.Expression, r slog.Record) bool {
	evalCtx := &hcl.EvalContext{
		Variables: EventVariables(r),
		Functions: functions,
	}
	v, diags := e.Value(evalCtx)
	if diags.HasErrors() || !v.IsKnown() || v.IsNull() || v.Type() != cty.Bool {
		return false
	}
	return v.True()
}

// EventVariables exposes r as the variables available to a predicate.
func EventVariables(r slog.Record) map[string]cty.Value {
	props := make(map[string]cty.Value, r.NumAttrs())
	r.Attrs(func(a slog.Attr) bool {
		if a.Key != "" {
			props[a.Key] = ValueOf(a.Value)
		}
		return true
	})
	return map[string]cty.Value{
		"level":   cty.StringVal(level.FromSlog(r.Level).String()),
		"message": cty.StringVal(r.Message),
		"props":   objectOrEmpty(props),
	}
}

// ValueOf converts a slog value into its cty equivalent.
func ValueOf(v slog.Value) cty.Value {
	v = v.Resolve()
	switch v.Kind() {
	case slog.KindString:
		return cty.StringVal(v.String())
	case slog.KindInt64:
		return cty.NumberIntVal(v.Int64())
	case slog.KindUint64:
		return cty.NumberUIntVal(v.Uint64())
	case slog.KindFloat64:
		return cty.NumberFloatVal(v.Float64())
	case slog.KindBool:
		return cty.BoolVal(v.Bool())
	case slog.KindDuration, slog.KindTime:
		return cty.StringVal(v.String())
	case slog.KindGroup:
		attrs := make(map[string]cty.Value)
		for _, a := range v.Group() {
			attrs[a.Key] = ValueOf(a.Value)
		}
		return objectOrEmpty(attrs)
	default:
		return anyValue(v.Any())
	}
}

func anyValue(x any) cty.Value {
	if x == nil {
		return cty.NullVal(cty.DynamicPseudoType)
	}
	ty, err := gocty.ImpliedType(x)
	if err == nil {
		if val, err := gocty.ToCtyValue(x, ty); err == nil {
			return val
		}
	}
	return cty.StringVal(fmt.Sprint(x))
}

func objectOrEmpty(attrs map[string]cty.Value) cty.Value {
	if len(attrs) == 0 {
		return cty.EmptyObjectVal
	}
	return cty.ObjectVal(attrs)
}
