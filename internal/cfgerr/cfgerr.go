// Package cfgerr defines the fatal error kinds raised while binding a
// configuration document. Each kind is a struct so callers can inspect it
// with errors.As.
package cfgerr

import (
	"fmt"
	"reflect"
)

// InvalidConfigurationError reports malformed configuration data, such as a
// badly formed switch name or a property without a value.
type InvalidConfigurationError struct {
	Message string
}

func (e *InvalidConfigurationError) Error() string {
	return e.Message
}

// Invalid builds an InvalidConfigurationError from a format string.
func Invalid(format string, args ...any) error {
	return &InvalidConfigurationError{Message: fmt.Sprintf(format, args...)}
}

// UnknownSwitchError is returned when a directive references a switch that
// was not declared in the current binding pass.
type UnknownSwitchError struct {
	Name string
	Kind string
}

func (e *UnknownSwitchError) Error() string {
	return fmt.Sprintf("no %s switch named %q was declared; declare it in the %s section before referencing it", e.Kind, e.Name, sectionFor(e.Kind))
}

func sectionFor(kind string) string {
	if kind == "filter" {
		return "FilterSwitches"
	}
	return "LevelSwitches"
}

// ConversionError is returned when a literal cannot be converted to the
// parameter's type.
type ConversionError struct {
	Value  string
	Target reflect.Type
	Err    error
}

func (e *ConversionError) Error() string {
	target := "<nil>"
	if e.Target != nil {
		target = e.Target.String()
	}
	if e.Err != nil {
		return fmt.Sprintf("cannot convert %q to %s: %v", e.Value, target, e.Err)
	}
	return fmt.Sprintf("cannot convert %q to %s", e.Value, target)
}

func (e *ConversionError) Unwrap() error {
	return e.Err
}

// MemberNotFoundError is returned when a Type::Member accessor names a type
// that exposes neither a property nor a field of that name.
type MemberNotFoundError struct {
	Type   string
	Member string
}

func (e *MemberNotFoundError) Error() string {
	return fmt.Sprintf("could not find a public static property or field named %q on type %q", e.Member, e.Type)
}

// NoUsableConstructorError is returned when a named type is known but has no
// constructor that can be called without arguments.
type NoUsableConstructorError struct {
	Type string
}

func (e *NoUsableConstructorError) Error() string {
	return fmt.Sprintf("type %q has no constructor callable without arguments", e.Type)
}

// TypeNotFoundError is returned when a type name cannot be located in the
// named-type table.
type TypeNotFoundError struct {
	Name string
}

func (e *TypeNotFoundError) Error() string {
	return fmt.Sprintf("type %q was not found; make sure the module that registers it is listed in a Using directive", e.Name)
}
