// Package switches holds the named runtime controls a configuration document
// declares up front and later references by name.
//
// A Registry lives for exactly one binding pass. The switches it creates are
// handed to the logging pipeline, which reads them from concurrent logging
// call sites, so both switch types are safe for concurrent use.
package switches

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/vk/slogxml/internal/cfgerr"
	"github.com/vk/slogxml/internal/ctxlog"
	"github.com/vk/slogxml/internal/level"
)

// LevelSwitch is a minimum level that can be changed while the pipeline runs.
type LevelSwitch struct {
	lvl atomic.Int64
}

// NewLevelSwitch returns a switch starting at initial.
func NewLevelSwitch(initial level.Level) *LevelSwitch {
	s := &LevelSwitch{}
	s.lvl.Store(int64(initial))
	return s
}

// MinimumLevel returns the current minimum level.
func (s *LevelSwitch) MinimumLevel() level.Level {
	return level.Level(s.lvl.Load())
}

// SetMinimumLevel replaces the current minimum level.
func (s *LevelSwitch) SetMinimumLevel(l level.Level) {
	s.lvl.Store(int64(l))
}

// Level implements slog.Leveler.
func (s *LevelSwitch) Level() slog.Level {
	return s.MinimumLevel().Slog()
}

// Predicate matches log records.
type Predicate = func(r slog.Record) bool

// Compiler turns expression text into a Predicate.
type Compiler interface {
	Compile(src string) (func(r slog.Record) bool, error)
}

// FilterSwitch is a filter expression that can be replaced while the
// pipeline runs. An empty expression includes every event.
type FilterSwitch struct {
	compiler Compiler

	mu   sync.RWMutex
	src  string
	pred Predicate
}

// NewFilterSwitch returns a switch using compiler, starting at expression.
func NewFilterSwitch(compiler Compiler, expression string) (*FilterSwitch, error) {
	s := &FilterSwitch{compiler: compiler}
	if err := s.SetExpression(expression); err != nil {
		return nil, err
	}
	return s, nil
}

// Expression returns the current expression source.
func (s *FilterSwitch) Expression() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.src
}

// SetExpression compiles and installs a new expression. On error the
// previous expression stays active.
func (s *FilterSwitch) SetExpression(src string) error {
	var pred Predicate
	if src != "" {
		p, err := s.compiler.Compile(src)
		if err != nil {
			return err
		}
		pred = p
	}
	s.mu.Lock()
	s.src, s.pred = src, pred
	s.mu.Unlock()
	return nil
}

// IsIncluded reports whether r passes the current expression.
func (s *FilterSwitch) IsIncluded(r slog.Record) bool {
	s.mu.RLock()
	pred := s.pred
	s.mu.RUnlock()
	return pred == nil || pred(r)
}

// Registry maps declared switch names to switches for one binding pass.
type Registry struct {
	compiler Compiler
	levels   map[string]*LevelSwitch
	filters  map[string]*FilterSwitch
}

// NewRegistry creates an empty registry. compiler may be nil, in which
// case filter switch declarations are skipped.
func NewRegistry(compiler Compiler) *Registry {
	return &Registry{
		compiler: compiler,
		levels:   make(map[string]*LevelSwitch),
		filters:  make(map[string]*FilterSwitch),
	}
}

const (
	kindLevel  = "level"
	kindFilter = "filter"
)

// ValidName reports whether name starts with a letter or '$' and continues
// with letters or digits only.
func ValidName(name string) bool {
	if name == "" {
		return false
	}
	for i, r := range name {
		switch {
		case isLetter(r):
		case i == 0 && r == '$':
		case i > 0 && r >= '0' && r <= '9':
		default:
			return false
		}
	}
	return true
}

func isLetter(r rune) bool {
	return (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z')
}

func checkName(name string) error {
	if ValidName(name) {
		return nil
	}
	return cfgerr.Invalid("%q is not a valid name for a switch declaration. "+
		"The first character of the name must be a letter or '$' sign, like in <Switch Name=\"$switchName\" Level=\"InitialLevel\"/>. "+
		"Subsequent characters must be letters or digits", name)
}

// DeclareLevel creates the level switch called name. An empty initial value
// starts the switch at Information.
func (r *Registry) DeclareLevel(name, initial string) (*LevelSwitch, error) {
	if err := checkName(name); err != nil {
		return nil, err
	}
	start := level.Information
	if initial != "" {
		l, err := level.Parse(initial)
		if err != nil {
			return nil, &cfgerr.ConversionError{Value: initial, Err: err}
		}
		start = l
	}
	s := NewLevelSwitch(start)
	r.levels[name] = s
	return s, nil
}

// DeclareFilter creates the filter switch called name. Without a compiler the
// declaration is skipped with a warning and (nil, nil) is returned.
func (r *Registry) DeclareFilter(ctx context.Context, name, initial string) (*FilterSwitch, error) {
	if err := checkName(name); err != nil {
		return nil, err
	}
	if r.compiler == nil {
		ctxlog.FromContext(ctx).Warn("Filter switches need an expression compiler; skipping declaration.", "switch", name)
		return nil, nil
	}
	s, err := NewFilterSwitch(r.compiler, initial)
	if err != nil {
		return nil, cfgerr.Invalid("filter switch %q: %v", name, err)
	}
	r.filters[name] = s
	return s, nil
}

// LookupLevel returns the level switch declared as name.
func (r *Registry) LookupLevel(name string) (*LevelSwitch, error) {
	if s, ok := r.levels[name]; ok {
		return s, nil
	}
	return nil, &cfgerr.UnknownSwitchError{Name: name, Kind: kindLevel}
}

// LookupFilter returns the filter switch declared as name.
func (r *Registry) LookupFilter(name string) (*FilterSwitch, error) {
	if s, ok := r.filters[name]; ok {
		return s, nil
	}
	return nil, &cfgerr.UnknownSwitchError{Name: name, Kind: kindFilter}
}

// Len returns the number of declared level and filter switches.
func (r *Registry) Len() (levels, filters int) {
	return len(r.levels), len(r.filters)
}

// Names returns the declared level and filter switch names, sorted.
func (r *Registry) Names() (levels, filters []string) {
	for name := range r.levels {
		levels = append(levels, name)
	}
	for name := range r.filters {
		filters = append(filters, name)
	}
	sort.Strings(levels)
	sort.Strings(filters)
	return levels, filters
}
