// Package directive extracts named invocation requests from a configuration
// tree. It performs no conversion: every argument is handed on as a
// RawArgument for the binder to resolve against a parameter type.
package directive

import (
	"sort"
	"strings"

	"github.com/vk/slogxml/internal/doctree"
)

// Kind tells which variant of RawArgument is populated.
type Kind int

const (
	// Text is a literal value.
	Text Kind = iota
	// Nested is an element with child elements.
	Nested
	// Sequence is an ordered list of homogeneous child elements.
	Sequence
)

func (k Kind) String() string {
	switch k {
	case Text:
		return "text"
	case Nested:
		return "nested"
	case Sequence:
		return "sequence"
	default:
		return "unknown"
	}
}

// ItemTag is the conventional tag of list entries.
const ItemTag = "Item"

// RawArgument is an unconverted argument. Node is the element the argument
// was read from (nil for attribute and inline-text arguments); binders that
// need the verbatim sub-tree use it regardless of Kind.
type RawArgument struct {
	Kind  Kind
	Text  string
	Items []RawArgument
	Node  *doctree.Node
}

// TextArgument returns a Text RawArgument.
func TextArgument(s string) RawArgument {
	return RawArgument{Kind: Text, Text: s}
}

// Classify builds the RawArgument for an element: text-only elements are
// Text, elements whose children are all Items (or all share one tag and
// repeat) are Sequences, anything else with children is Nested.
func Classify(n *doctree.Node) RawArgument {
	if !n.HasElements() {
		return RawArgument{Kind: Text, Text: n.Text, Node: n}
	}
	if isSequence(n) {
		items := make([]RawArgument, len(n.Children))
		for i, c := range n.Children {
			items[i] = Classify(c)
		}
		return RawArgument{Kind: Sequence, Items: items, Node: n}
	}
	return RawArgument{Kind: Nested, Node: n}
}

func isSequence(n *doctree.Node) bool {
	first := n.Children[0].Tag
	for _, c := range n.Children[1:] {
		if !strings.EqualFold(c.Tag, first) {
			return false
		}
	}
	return len(n.Children) > 1 || strings.EqualFold(first, ItemTag)
}

// Argument is a named RawArgument.
type Argument struct {
	Name string
	Raw  RawArgument
}

// Arguments is an ordered set of arguments with case-insensitive names.
type Arguments []Argument

// Get returns the argument called name.
func (a Arguments) Get(name string) (RawArgument, bool) {
	for _, arg := range a {
		if strings.EqualFold(arg.Name, name) {
			return arg.Raw, true
		}
	}
	return RawArgument{}, false
}

// Names returns the argument names in order.
func (a Arguments) Names() []string {
	names := make([]string, len(a))
	for i, arg := range a {
		names[i] = arg.Name
	}
	return names
}

// set replaces the argument called name or appends a new one.
func (a Arguments) set(name string, raw RawArgument) Arguments {
	for i, arg := range a {
		if strings.EqualFold(arg.Name, name) {
			a[i].Raw = raw
			return a
		}
	}
	return append(a, Argument{Name: name, Raw: raw})
}

// Directive is one named invocation request.
type Directive struct {
	Name string
	Args Arguments
	Pos  doctree.Pos
	Node *doctree.Node
}

// Options tunes how a directive kind is read.
type Options struct {
	// InlineArgument names the argument that plain text content stands for,
	// e.g. "Value" for <Property Name="X">1</Property>. Empty disables the
	// shorthand.
	InlineArgument string

	// Shorthands maps an attribute to the argument it provides when the
	// attribute is used in place of a Name, e.g. <Filter ControlledBy="$f"/>
	// becomes the ControlledBy directive with argument "switch".
	Shorthands map[string]string
}

// NameAttr is the attribute carrying a directive's name.
const NameAttr = "Name"

// Read returns the directives found in parent's children tagged tag, in
// document order. Children without a usable name are skipped.
func Read(parent *doctree.Node, tag string, opts Options) []Directive {
	if parent == nil {
		return nil
	}
	var out []Directive
	for _, n := range parent.ChildrenNamed(tag) {
		if d, ok := readOne(n, opts); ok {
			out = append(out, d)
		}
	}
	return out
}

// ReadAll is Read for every child of parent, whatever its tag.
func ReadAll(parent *doctree.Node, opts Options) []Directive {
	if parent == nil {
		return nil
	}
	var out []Directive
	for _, n := range parent.Children {
		if d, ok := readOne(n, opts); ok {
			out = append(out, d)
		}
	}
	return out
}

func readOne(n *doctree.Node, opts Options) (Directive, bool) {
	name, hasName := n.Attr(NameAttr)
	if !hasName || strings.TrimSpace(name) == "" {
		attrs := make([]string, 0, len(opts.Shorthands))
		for attr := range opts.Shorthands {
			attrs = append(attrs, attr)
		}
		sort.Strings(attrs)
		for _, attr := range attrs {
			if v, ok := n.Value(attr); ok {
				arg := opts.Shorthands[attr]
				return Directive{
					Name: attr,
					Args: Arguments{{Name: arg, Raw: TextArgument(v)}},
					Pos:  n.Pos,
					Node: n,
				}, true
			}
		}
		return Directive{}, false
	}

	d := Directive{Name: strings.TrimSpace(name), Pos: n.Pos, Node: n}
	for _, a := range n.Attrs {
		if strings.EqualFold(a.Name, NameAttr) {
			continue
		}
		d.Args = d.Args.set(a.Name, TextArgument(a.Value))
	}

	if text, ok := n.InlineText(); ok && opts.InlineArgument != "" {
		d.Args = d.Args.set(opts.InlineArgument, TextArgument(text))
		return d, true
	}

	for _, c := range n.Children {
		d.Args = d.Args.set(c.Tag, Classify(c))
	}
	return d, true
}
