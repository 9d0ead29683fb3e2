package registry

import (
	"fmt"
	"log/slog"
	"reflect"
	"strings"
)

// Module is the interface that every module must implement to be registered.
type Module interface {
	Register(r *Registry)
}

// Registry holds the actions, named types and enums of one binding pass.
type Registry struct {
	methods []*Method
	types   []*TypeInfo
	enums   map[reflect.Type]*EnumInfo
	loaded  map[string]struct{}
}

// New creates an empty Registry.
func New() *Registry {
	return &Registry{
		enums:  make(map[reflect.Type]*EnumInfo),
		loaded: make(map[string]struct{}),
	}
}

// Load registers m under id unless a module with that id was already
// loaded. It reports whether m was registered.
func (r *Registry) Load(id string, m Module) bool {
	key := strings.ToLower(id)
	if _, ok := r.loaded[key]; ok {
		return false
	}
	r.loaded[key] = struct{}{}
	m.Register(r)
	slog.Debug("Registered module.", "module", id)
	return true
}

// Loaded reports whether a module with id was loaded.
func (r *Registry) Loaded(id string) bool {
	_, ok := r.loaded[strings.ToLower(id)]
	return ok
}

// ParamSpec describes one non-receiver parameter at registration time.
type ParamSpec struct {
	name       string
	def        any
	hasDefault bool
}

// Required declares a parameter that a directive must supply.
func Required(name string) ParamSpec {
	return ParamSpec{name: name}
}

// Optional declares a parameter that falls back to def when omitted. A nil
// def means the zero value of the parameter's type.
func Optional(name string, def any) ParamSpec {
	return ParamSpec{name: name, def: def, hasDefault: true}
}

var errorType = reflect.TypeOf((*error)(nil)).Elem()

// RegisterMethod registers fn as the action called name. fn's first
// parameter is the receiver category, the rest are described by params in
// order. fn may return nothing or a single error. Mismatches are
// programming errors and panic.
func (r *Registry) RegisterMethod(name string, fn any, params ...ParamSpec) {
	v := reflect.ValueOf(fn)
	t := v.Type()
	if t.Kind() != reflect.Func {
		panic(fmt.Sprintf("action '%s': expected a function, got %s", name, t))
	}
	if t.IsVariadic() {
		panic(fmt.Sprintf("action '%s': variadic functions are not supported", name))
	}
	if t.NumIn() != len(params)+1 {
		panic(fmt.Sprintf("action '%s': function takes %d parameters after the receiver but %d were described", name, t.NumIn()-1, len(params)))
	}
	returnsErr := false
	switch {
	case t.NumOut() == 0:
	case t.NumOut() == 1 && t.Out(0) == errorType:
		returnsErr = true
	default:
		panic(fmt.Sprintf("action '%s': function must return nothing or a single error", name))
	}

	m := &Method{
		Name:       name,
		Receiver:   t.In(0),
		fn:         v,
		returnsErr: returnsErr,
	}
	for i, spec := range params {
		p := Param{Name: spec.name, Type: t.In(i + 1), HasDefault: spec.hasDefault}
		if spec.hasDefault {
			p.Default = defaultValue(name, p, spec.def)
		}
		m.Params = append(m.Params, p)
	}

	for _, existing := range r.methods {
		if existing.Receiver == m.Receiver && strings.EqualFold(existing.Name, name) && sameParamNames(existing, m) {
			panic(fmt.Sprintf("action '%s' with parameters (%s) already registered for %s", name, strings.Join(m.ParamNames(), ", "), m.Receiver))
		}
	}
	slog.Debug("Registering configuration action.", "name", name, "receiver", m.Receiver.String())
	r.methods = append(r.methods, m)
}

func defaultValue(method string, p Param, def any) reflect.Value {
	if def == nil {
		return reflect.Zero(p.Type)
	}
	dv := reflect.ValueOf(def)
	switch {
	case dv.Type().AssignableTo(p.Type):
		out := reflect.New(p.Type).Elem()
		out.Set(dv)
		return out
	case dv.Type().ConvertibleTo(p.Type):
		return dv.Convert(p.Type)
	default:
		panic(fmt.Sprintf("action '%s': default %v for parameter '%s' is not assignable to %s", method, def, p.Name, p.Type))
	}
}

func sameParamNames(a, b *Method) bool {
	if len(a.Params) != len(b.Params) {
		return false
	}
	for i := range a.Params {
		if !strings.EqualFold(a.Params[i].Name, b.Params[i].Name) {
			return false
		}
	}
	return true
}

// FindCandidates returns every action registered for receiver, in
// registration order.
func (r *Registry) FindCandidates(receiver reflect.Type) []*Method {
	var out []*Method
	for _, m := range r.methods {
		if m.Receiver == receiver {
			out = append(out, m)
		}
	}
	return out
}
