package doctree

import (
	"context"
	"fmt"
	"os"
	"sort"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/hclsyntax"
	"github.com/vk/slogxml/internal/ctxlog"
	"github.com/zclconf/go-cty/cty"
	"github.com/zclconf/go-cty/cty/convert"
	"github.com/zclconf/go-cty/cty/function"
)

// HCLRootTag is the tag given to the synthetic root of an HCL document.
const HCLRootTag = "Settings"

// HCLLoader reads configuration documents written in HCL.
//
// Blocks become child elements and their first label becomes the Name
// attribute. Primitive attributes become text-only child elements, lists
// become elements with one Item child per entry and objects become elements
// with one child per key. Expressions may call env("NAME").
type HCLLoader struct{}

// NewHCLLoader creates a new HCL loader.
func NewHCLLoader() *HCLLoader {
	return &HCLLoader{}
}

// Load reads and parses the HCL file at path.
func (l *HCLLoader) Load(ctx context.Context, path string) (*Node, error) {
	logger := ctxlog.FromContext(ctx)
	logger.Debug("Loading HCL configuration.", "path", path)

	src, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	root, err := ParseHCL(src, path)
	if err != nil {
		return nil, err
	}
	logger.Debug("Parsed HCL configuration.", "path", path, "children", len(root.Children))
	return root, nil
}

var envFunc = function.New(&function.Spec{
	Params: []function.Parameter{{Name: "name", Type: cty.String}},
	Type:   function.StaticReturnType(cty.String),
	Impl: func(args []cty.Value, _ cty.Type) (cty.Value, error) {
		return cty.StringVal(os.Getenv(args[0].AsString())), nil
	},
})

// ParseHCL parses src into a Node tree rooted at a Settings node.
func ParseHCL(src []byte, filename string) (*Node, error) {
	file, diags := hclsyntax.ParseConfig(src, filename, hcl.InitialPos)
	if diags.HasErrors() {
		return nil, fmt.Errorf("failed to parse HCL %s: %w", filename, diags)
	}
	body, ok := file.Body.(*hclsyntax.Body)
	if !ok {
		return nil, fmt.Errorf("failed to parse HCL %s: unexpected body type %T", filename, file.Body)
	}

	evalCtx := &hcl.EvalContext{
		Functions: map[string]function.Function{"env": envFunc},
	}
	root := &Node{Tag: HCLRootTag, Pos: Pos{File: filename, Line: 1, Column: 1}}
	if err := fillFromBody(root, body, evalCtx); err != nil {
		return nil, err
	}
	return root, nil
}

func fillFromBody(n *Node, body *hclsyntax.Body, evalCtx *hcl.EvalContext) error {
	attrs := make([]*hclsyntax.Attribute, 0, len(body.Attributes))
	for _, a := range body.Attributes {
		attrs = append(attrs, a)
	}
	// Attributes come back as a map; restore source order.
	sort.Slice(attrs, func(i, j int) bool {
		return attrs[i].SrcRange.Start.Byte < attrs[j].SrcRange.Start.Byte
	})

	for _, a := range attrs {
		val, diags := a.Expr.Value(evalCtx)
		if diags.HasErrors() {
			return fmt.Errorf("failed to evaluate attribute %q: %w", a.Name, diags)
		}
		if val.IsNull() {
			continue
		}
		child, err := valueNode(a.Name, val, posOf(a.SrcRange))
		if err != nil {
			return fmt.Errorf("attribute %q at %s: %w", a.Name, a.SrcRange, err)
		}
		n.Children = append(n.Children, child)
	}

	for _, b := range body.Blocks {
		child := &Node{Tag: b.Type, Pos: posOf(b.TypeRange)}
		if len(b.Labels) > 0 {
			child.Attrs = append(child.Attrs, Attr{Name: "Name", Value: b.Labels[0]})
		}
		if err := fillFromBody(child, b.Body, evalCtx); err != nil {
			return err
		}
		n.Children = append(n.Children, child)
	}

	// Blocks and attributes were collected separately; interleave them again.
	sort.SliceStable(n.Children, func(i, j int) bool {
		pi, pj := n.Children[i].Pos, n.Children[j].Pos
		if pi.Line != pj.Line {
			return pi.Line < pj.Line
		}
		return pi.Column < pj.Column
	})
	return nil
}

func valueNode(tag string, val cty.Value, pos Pos) (*Node, error) {
	n := &Node{Tag: tag, Pos: pos}
	if !val.IsKnown() {
		return nil, fmt.Errorf("value is not known")
	}
	ty := val.Type()
	switch {
	case ty.IsPrimitiveType():
		s, err := convert.Convert(val, cty.String)
		if err != nil {
			return nil, err
		}
		n.Text = s.AsString()
	case ty.IsListType() || ty.IsTupleType() || ty.IsSetType():
		for it := val.ElementIterator(); it.Next(); {
			_, elem := it.Element()
			if elem.IsNull() {
				continue
			}
			item, err := valueNode("Item", elem, pos)
			if err != nil {
				return nil, err
			}
			n.Children = append(n.Children, item)
		}
	case ty.IsObjectType() || ty.IsMapType():
		m := val.AsValueMap()
		keys := make([]string, 0, len(m))
		for k := range m {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			if m[k].IsNull() {
				continue
			}
			child, err := valueNode(k, m[k], pos)
			if err != nil {
				return nil, err
			}
			n.Children = append(n.Children, child)
		}
	default:
		return nil, fmt.Errorf("unsupported value type %s", ty.FriendlyName())
	}
	return n, nil
}

func posOf(r hcl.Range) Pos {
	return Pos{File: r.Filename, Line: r.Start.Line, Column: r.Start.Column}
}
