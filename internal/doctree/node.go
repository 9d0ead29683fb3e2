// Package doctree holds the format-agnostic configuration tree and the
// loaders that build it from XML and HCL sources.
//
// Tag and attribute lookups are case-insensitive: documents written as
// <writeto name="File"> and <WriteTo Name="File"> mean the same thing.
package doctree

import (
	"fmt"
	"strings"
)

// Pos is a location in a source document.
type Pos struct {
	File   string
	Line   int
	Column int
}

func (p Pos) String() string {
	if p.File == "" {
		return fmt.Sprintf("%d:%d", p.Line, p.Column)
	}
	return fmt.Sprintf("%s:%d:%d", p.File, p.Line, p.Column)
}

// Attr is a name/value pair attached to a Node.
type Attr struct {
	Name  string
	Value string
}

// Node is one element of a configuration document. A node carries either
// child elements or text content; when a node has children its Text is
// ignored by readers.
type Node struct {
	Tag      string
	Attrs    []Attr
	Text     string
	Children []*Node
	Pos      Pos
}

// Attr returns the value of the attribute called name.
func (n *Node) Attr(name string) (string, bool) {
	for _, a := range n.Attrs {
		if strings.EqualFold(a.Name, name) {
			return a.Value, true
		}
	}
	return "", false
}

// Child returns the first child element tagged tag, or nil.
func (n *Node) Child(tag string) *Node {
	for _, c := range n.Children {
		if strings.EqualFold(c.Tag, tag) {
			return c
		}
	}
	return nil
}

// ChildrenNamed returns every child element tagged tag, in document order.
func (n *Node) ChildrenNamed(tag string) []*Node {
	var out []*Node
	for _, c := range n.Children {
		if strings.EqualFold(c.Tag, tag) {
			out = append(out, c)
		}
	}
	return out
}

// HasElements reports whether n has child elements.
func (n *Node) HasElements() bool {
	return len(n.Children) > 0
}

// InlineText returns n's text content when n has no child elements and the
// text is not blank.
func (n *Node) InlineText() (string, bool) {
	if n.HasElements() || strings.TrimSpace(n.Text) == "" {
		return "", false
	}
	return n.Text, true
}

// Value looks name up as an attribute first and then as a text-only child
// element, so <X Level="Warning"/> and <X><Level>Warning</Level></X> agree.
func (n *Node) Value(name string) (string, bool) {
	if v, ok := n.Attr(name); ok {
		return v, true
	}
	if c := n.Child(name); c != nil && !c.HasElements() {
		return c.Text, true
	}
	return "", false
}

func (n *Node) String() string {
	if name, ok := n.Attr("Name"); ok {
		return fmt.Sprintf("<%s Name=%q> at %s", n.Tag, name, n.Pos)
	}
	return fmt.Sprintf("<%s> at %s", n.Tag, n.Pos)
}
