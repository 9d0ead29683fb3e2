package pipeline

import (
	"fmt"
	"log/slog"
	"reflect"
	"strings"
	"unicode/utf8"
)

const defaultMaxDepth = 10

// Policy converts attribute values before they reach the sinks. The first
// policy that reports true wins.
type Policy interface {
	Destructure(key string, v slog.Value) (slog.Value, bool)
}

// DestructuringConfiguration is the value-shaping section.
type DestructuringConfiguration struct {
	maxDepth      int
	maxString     int
	maxCollection int
	policies      []Policy
}

// ToMaximumDepth limits group nesting; deeper values become null.
func (c *DestructuringConfiguration) ToMaximumDepth(maximumDestructuringDepth int) error {
	if maximumDestructuringDepth < 0 {
		return fmt.Errorf("maximum destructuring depth must be positive, got %d", maximumDestructuringDepth)
	}
	c.maxDepth = maximumDestructuringDepth
	return nil
}

// ToMaximumStringLength truncates longer strings.
func (c *DestructuringConfiguration) ToMaximumStringLength(maximumStringLength int) error {
	if maximumStringLength < 2 {
		return fmt.Errorf("maximum string length must be at least 2, got %d", maximumStringLength)
	}
	c.maxString = maximumStringLength
	return nil
}

// ToMaximumCollectionCount keeps only the first elements of slices and arrays.
func (c *DestructuringConfiguration) ToMaximumCollectionCount(maximumCollectionCount int) error {
	if maximumCollectionCount < 1 {
		return fmt.Errorf("maximum collection count must be at least 1, got %d", maximumCollectionCount)
	}
	c.maxCollection = maximumCollectionCount
	return nil
}

// With adds a policy.
func (c *DestructuringConfiguration) With(policy Policy) {
	if policy != nil {
		c.policies = append(c.policies, policy)
	}
}

func (c *DestructuringConfiguration) active() bool {
	return c.maxString > 0 || c.maxCollection > 0 || len(c.policies) > 0 || c.maxDepth != defaultMaxDepth
}

func (c *DestructuringConfiguration) shape(a slog.Attr, depth int) slog.Attr {
	v := a.Value.Resolve()
	for _, p := range c.policies {
		if out, ok := p.Destructure(a.Key, v); ok {
			v = out.Resolve()
			break
		}
	}

	switch v.Kind() {
	case slog.KindString:
		if c.maxString > 0 && utf8.RuneCountInString(v.String()) > c.maxString {
			runes := []rune(v.String())
			v = slog.StringValue(string(runes[:c.maxString-1]) + "…")
		}
	case slog.KindGroup:
		if depth >= c.maxDepth {
			return slog.Any(a.Key, nil)
		}
		group := v.Group()
		shaped := make([]slog.Attr, len(group))
		for i, g := range group {
			shaped[i] = c.shape(g, depth+1)
		}
		v = slog.GroupValue(shaped...)
	case slog.KindAny:
		v = c.truncateCollection(v)
	}
	return slog.Attr{Key: a.Key, Value: v}
}

func (c *DestructuringConfiguration) truncateCollection(v slog.Value) slog.Value {
	if c.maxCollection <= 0 || v.Any() == nil {
		return v
	}
	rv := reflect.ValueOf(v.Any())
	if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
		return v
	}
	if rv.Len() <= c.maxCollection {
		return v
	}
	out := make([]any, c.maxCollection)
	for i := range out {
		out[i] = rv.Index(i).Interface()
	}
	return slog.AnyValue(out)
}

func (c *DestructuringConfiguration) apply(r slog.Record) slog.Record {
	out := slog.NewRecord(r.Time, r.Level, r.Message, r.PC)
	r.Attrs(func(a slog.Attr) bool {
		out.AddAttrs(c.shape(a, 1))
		return true
	})
	return out
}

// RedactPolicy masks the values of attributes whose key names a secret.
type RedactPolicy struct {
	Keys []string
	Mask string
}

// NewRedactPolicy returns a policy masking password, secret and token keys.
func NewRedactPolicy() *RedactPolicy {
	return &RedactPolicy{Keys: []string{"password", "secret", "token"}, Mask: "***"}
}

// Destructure implements Policy.
func (p *RedactPolicy) Destructure(key string, v slog.Value) (slog.Value, bool) {
	for _, k := range p.Keys {
		if strings.EqualFold(k, key) {
			return slog.StringValue(p.Mask), true
		}
	}
	return v, false
}

func stringOf(v any) string {
	if s, ok := v.(fmt.Stringer); ok {
		return s.String()
	}
	return fmt.Sprint(v)
}
