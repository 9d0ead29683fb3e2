package doctree

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
)

// Loader reads a configuration document from a path.
type Loader interface {
	Load(ctx context.Context, path string) (*Node, error)
}

// LoaderFor returns the loader matching path's extension.
func LoaderFor(path string) (Loader, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".xml", ".config":
		return NewXMLLoader(), nil
	case ".hcl":
		return NewHCLLoader(), nil
	default:
		return nil, fmt.Errorf("unsupported configuration file %q: expected a .xml, .config or .hcl extension", path)
	}
}

// Load reads the document at path with the loader matching its extension.
func Load(ctx context.Context, path string) (*Node, error) {
	l, err := LoaderFor(path)
	if err != nil {
		return nil, err
	}
	return l.Load(ctx, path)
}
