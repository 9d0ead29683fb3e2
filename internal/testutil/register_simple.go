package testutil

import "github.com/vk/slogxml/internal/registry"

// SimpleModule is a test helper for creating a module from a function.
type SimpleModule func(r *registry.Registry)

// Register implements the registry.Module interface.
func (m SimpleModule) Register(r *registry.Registry) { m(r) }
