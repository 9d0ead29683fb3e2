// Package binder turns configuration directives into calls against the
// pipeline's configuration sections. It selects an overload for every
// directive, resolves each argument to the parameter's Go type and invokes
// the action.
package binder

import (
	"github.com/vk/slogxml/internal/registry"
	"github.com/vk/slogxml/internal/switches"
)

// ResolutionContext is the state of one top-level Configure call. Nested
// configurations share it with their parent.
type ResolutionContext struct {
	Switches *switches.Registry
	Registry *registry.Registry
}

// NewResolutionContext returns a context with an empty switch registry and
// an empty catalog.
func NewResolutionContext(compiler switches.Compiler) *ResolutionContext {
	return &ResolutionContext{
		Switches: switches.NewRegistry(compiler),
		Registry: registry.New(),
	}
}
