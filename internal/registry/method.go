package registry

import (
	"fmt"
	"reflect"
	"strings"
)

// Param is a named, typed parameter of an action.
type Param struct {
	Name       string
	Type       reflect.Type
	HasDefault bool
	Default    reflect.Value
}

// Method is one registered configuration action.
type Method struct {
	Name     string
	Receiver reflect.Type
	// Params excludes the receiver.
	Params []Param

	fn         reflect.Value
	returnsErr bool
}

// ParamNames returns the parameter names in declaration order.
func (m *Method) ParamNames() []string {
	names := make([]string, len(m.Params))
	for i, p := range m.Params {
		names[i] = p.Name
	}
	return names
}

// Invoke calls the action with receiver and args, in parameter order.
func (m *Method) Invoke(receiver reflect.Value, args []reflect.Value) error {
	if len(args) != len(m.Params) {
		return fmt.Errorf("action '%s' takes %d arguments, got %d", m.Name, len(m.Params), len(args))
	}
	in := make([]reflect.Value, 0, len(args)+1)
	in = append(in, receiver)
	in = append(in, args...)
	out := m.fn.Call(in)
	if m.returnsErr && !out[0].IsNil() {
		return out[0].Interface().(error)
	}
	return nil
}

func (m *Method) String() string {
	parts := make([]string, len(m.Params))
	for i, p := range m.Params {
		if p.HasDefault {
			parts[i] = fmt.Sprintf("%s %s = %v", p.Name, p.Type, formatDefault(p.Default))
		} else {
			parts[i] = fmt.Sprintf("%s %s", p.Name, p.Type)
		}
	}
	return fmt.Sprintf("%s(%s)", m.Name, strings.Join(parts, ", "))
}

func formatDefault(v reflect.Value) any {
	if !v.IsValid() {
		return "<nil>"
	}
	switch v.Kind() {
	case reflect.Pointer, reflect.Interface, reflect.Func, reflect.Map, reflect.Slice:
		if v.IsNil() {
			return "<nil>"
		}
	}
	return v.Interface()
}
