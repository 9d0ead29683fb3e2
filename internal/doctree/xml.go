package doctree

import (
	"bytes"
	"context"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/vk/slogxml/internal/ctxlog"
)

// XMLLoader reads configuration documents written in XML.
type XMLLoader struct{}

// NewXMLLoader creates a new XML loader.
func NewXMLLoader() *XMLLoader {
	return &XMLLoader{}
}

// Load reads and parses the XML file at path.
func (l *XMLLoader) Load(ctx context.Context, path string) (*Node, error) {
	logger := ctxlog.FromContext(ctx)
	logger.Debug("Loading XML configuration.", "path", path)

	src, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	root, err := ParseXML(src, path)
	if err != nil {
		return nil, err
	}
	logger.Debug("Parsed XML configuration.", "path", path, "root", root.Tag, "children", len(root.Children))
	return root, nil
}

// ParseXML parses src into a Node tree. filename is only used for positions.
func ParseXML(src []byte, filename string) (*Node, error) {
	dec := xml.NewDecoder(bytes.NewReader(src))

	var (
		root  *Node
		stack []*Node
		texts []strings.Builder
	)
	for {
		tok, err := dec.Token()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to parse XML %s: %w", filename, err)
		}

		switch t := tok.(type) {
		case xml.StartElement:
			line, col := dec.InputPos()
			n := &Node{Tag: t.Name.Local, Pos: Pos{File: filename, Line: line, Column: col}}
			for _, a := range t.Attr {
				if a.Name.Space == "xmlns" || a.Name.Local == "xmlns" {
					continue
				}
				n.Attrs = append(n.Attrs, Attr{Name: a.Name.Local, Value: a.Value})
			}
			if len(stack) == 0 {
				if root != nil {
					return nil, fmt.Errorf("failed to parse XML %s: more than one root element", filename)
				}
				root = n
			} else {
				parent := stack[len(stack)-1]
				parent.Children = append(parent.Children, n)
			}
			stack = append(stack, n)
			texts = append(texts, strings.Builder{})

		case xml.CharData:
			if len(texts) > 0 {
				texts[len(texts)-1].Write(t)
			}

		case xml.EndElement:
			n := stack[len(stack)-1]
			n.Text = strings.TrimSpace(texts[len(texts)-1].String())
			stack = stack[:len(stack)-1]
			texts = texts[:len(texts)-1]
		}
	}

	if root == nil {
		return nil, fmt.Errorf("failed to parse XML %s: no root element", filename)
	}
	return root, nil
}
