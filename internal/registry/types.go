package registry

import (
	"fmt"
	"log/slog"
	"reflect"
	"sort"
	"strings"
)

// TypeInfo makes a Go type reachable by name from a configuration document.
type TypeInfo struct {
	// Name is the qualified name documents use, e.g. "formatting.JSONFormatter".
	// The part after the last dot also matches on its own.
	Name string
	Type reflect.Type

	// New creates an instance with default settings. Nil means the type
	// cannot be created from its name alone.
	New func() any

	// Properties are static accessors evaluated on each lookup, consulted
	// before Fields by Type::Member references.
	Properties map[string]func() any
	Fields     map[string]any
}

// ShortName returns the part of the name after the last dot.
func (t *TypeInfo) ShortName() string {
	return shortName(t.Name)
}

func shortName(name string) string {
	if i := strings.LastIndexByte(name, '.'); i >= 0 {
		return name[i+1:]
	}
	return name
}

// Member returns the static property or, failing that, the static field
// called name.
func (t *TypeInfo) Member(name string) (any, bool) {
	for k, get := range t.Properties {
		if strings.EqualFold(k, name) {
			return get(), true
		}
	}
	for k, v := range t.Fields {
		if strings.EqualFold(k, name) {
			return v, true
		}
	}
	return nil, false
}

// RegisterType adds info to the named-type table.
func (r *Registry) RegisterType(info TypeInfo) {
	if info.Name == "" {
		panic("type registration requires a name")
	}
	for _, existing := range r.types {
		if strings.EqualFold(existing.Name, info.Name) {
			panic(fmt.Sprintf("type '%s' already registered", info.Name))
		}
	}
	slog.Debug("Registering named type.", "name", info.Name)
	t := info
	r.types = append(r.types, &t)
}

// LookupType finds a named type. Anything after a comma (an assembly-style
// qualifier) is ignored. A dotted name must match a registered name in
// full; a bare name matches the short name of a registered type, first
// registration first.
func (r *Registry) LookupType(name string) (*TypeInfo, bool) {
	if i := strings.IndexByte(name, ','); i >= 0 {
		name = name[:i]
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, false
	}
	for _, t := range r.types {
		if strings.EqualFold(t.Name, name) {
			return t, true
		}
	}
	if strings.Contains(name, ".") {
		return nil, false
	}
	for _, t := range r.types {
		if strings.EqualFold(t.ShortName(), name) {
			return t, true
		}
	}
	return nil, false
}

// TypeFor returns the first named type registered for t.
func (r *Registry) TypeFor(t reflect.Type) (*TypeInfo, bool) {
	for _, info := range r.types {
		if info.Type == t {
			return info, true
		}
	}
	return nil, false
}

// TypeNames returns every registered type name, sorted.
func (r *Registry) TypeNames() []string {
	names := make([]string, len(r.types))
	for i, t := range r.types {
		names[i] = t.Name
	}
	sort.Strings(names)
	return names
}

// EnumInfo lists the members of an enum type by name.
type EnumInfo struct {
	Type    reflect.Type
	members map[string]reflect.Value
	names   []string
}

// Parse returns the member called name, ignoring case.
func (e *EnumInfo) Parse(name string) (reflect.Value, error) {
	if v, ok := e.members[strings.ToLower(strings.TrimSpace(name))]; ok {
		return v, nil
	}
	return reflect.Value{}, fmt.Errorf("%q is not a member of %s; expected one of %s", name, e.Type, strings.Join(e.names, ", "))
}

// RegisterEnum registers the members of enum type t. Every member value must
// be convertible to t.
func (r *Registry) RegisterEnum(t reflect.Type, members map[string]any) {
	if _, exists := r.enums[t]; exists {
		panic(fmt.Sprintf("enum '%s' already registered", t))
	}
	info := &EnumInfo{Type: t, members: make(map[string]reflect.Value, len(members))}
	for name, v := range members {
		rv := reflect.ValueOf(v)
		if !rv.Type().ConvertibleTo(t) {
			panic(fmt.Sprintf("enum '%s': member '%s' has type %s", t, name, rv.Type()))
		}
		info.members[strings.ToLower(name)] = rv.Convert(t)
		info.names = append(info.names, name)
	}
	sort.Strings(info.names)
	r.enums[t] = info
}

// Enum returns the enum registered for t.
func (r *Registry) Enum(t reflect.Type) (*EnumInfo, bool) {
	e, ok := r.enums[t]
	return e, ok
}
