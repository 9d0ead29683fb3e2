package binder

import (
	"context"
	"encoding"
	"errors"
	"fmt"
	"net/url"
	"os"
	"reflect"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/vk/slogxml/internal/cfgerr"
	"github.com/vk/slogxml/internal/ctxlog"
	"github.com/vk/slogxml/internal/switches"
	"github.com/zclconf/go-cty/cty"
	"github.com/zclconf/go-cty/cty/convert"
	"github.com/zclconf/go-cty/cty/gocty"
)

var (
	levelSwitchType   = reflect.TypeOf((*switches.LevelSwitch)(nil))
	filterSwitchType  = reflect.TypeOf((*switches.FilterSwitch)(nil))
	durationType      = reflect.TypeOf(time.Duration(0))
	urlType           = reflect.TypeOf(url.URL{})
	reflectTypeType   = reflect.TypeOf((*reflect.Type)(nil)).Elem()
	textUnmarshalType = reflect.TypeOf((*encoding.TextUnmarshaler)(nil)).Elem()

	envPlaceholder = regexp.MustCompile(`%([A-Za-z_][A-Za-z0-9_]*)%`)
	staticMember   = regexp.MustCompile(`^\s*([A-Za-z_][\w.]*)::([A-Za-z_]\w*)\s*(,.*)?$`)
	timeSpan       = regexp.MustCompile(`^(?:(\d+)\.)?(\d{1,2}):(\d{2}):(\d{2})(?:\.(\d{1,7}))?$`)
)

// ExpandEnv replaces %NAME% placeholders with the value of the environment
// variable NAME. Placeholders naming unset variables are left as they are.
func ExpandEnv(s string) string {
	return envPlaceholder.ReplaceAllStringFunc(s, func(m string) string {
		if v, ok := os.LookupEnv(m[1 : len(m)-1]); ok {
			return v
		}
		return m
	})
}

func (rc *ResolutionContext) resolveText(ctx context.Context, text string, t reflect.Type) (reflect.Value, error) {
	return rc.resolveLiteral(ctx, ExpandEnv(text), t)
}

func (rc *ResolutionContext) resolveLiteral(ctx context.Context, text string, t reflect.Type) (reflect.Value, error) {
	logger := ctxlog.FromContext(ctx)

	switch t {
	case levelSwitchType:
		sw, err := rc.Switches.LookupLevel(strings.TrimSpace(text))
		if err != nil {
			return reflect.Value{}, err
		}
		return reflect.ValueOf(sw), nil
	case filterSwitchType:
		sw, err := rc.Switches.LookupFilter(strings.TrimSpace(text))
		if err != nil {
			return reflect.Value{}, err
		}
		return reflect.ValueOf(sw), nil
	}

	if e, ok := rc.Registry.Enum(t); ok {
		v, err := e.Parse(text)
		if err != nil {
			return reflect.Value{}, &cfgerr.ConversionError{Value: text, Target: t, Err: err}
		}
		return v, nil
	}

	if isNullable(t) {
		if strings.TrimSpace(text) == "" {
			return reflect.Zero(t), nil
		}
		v, err := rc.resolveLiteral(ctx, text, t.Elem())
		if err != nil {
			return reflect.Value{}, err
		}
		ptr := reflect.New(t.Elem())
		ptr.Elem().Set(v)
		return ptr, nil
	}

	switch t {
	case durationType:
		d, err := parseDuration(text)
		if err != nil {
			return reflect.Value{}, &cfgerr.ConversionError{Value: text, Target: t, Err: err}
		}
		return reflect.ValueOf(d), nil
	case urlType:
		u, err := url.Parse(strings.TrimSpace(text))
		if err != nil {
			return reflect.Value{}, &cfgerr.ConversionError{Value: text, Target: t, Err: err}
		}
		return reflect.ValueOf(*u), nil
	case reflectTypeType:
		info, ok := rc.Registry.LookupType(text)
		if !ok || info.Type == nil {
			return reflect.Value{}, &cfgerr.TypeNotFoundError{Name: strings.TrimSpace(text)}
		}
		out := reflect.New(reflectTypeType).Elem()
		out.Set(reflect.ValueOf(info.Type))
		return out, nil
	}

	if t.Kind() != reflect.Interface && reflect.PointerTo(t).Implements(textUnmarshalType) {
		ptr := reflect.New(t)
		if err := ptr.Interface().(encoding.TextUnmarshaler).UnmarshalText([]byte(text)); err != nil {
			return reflect.Value{}, &cfgerr.ConversionError{Value: text, Target: t, Err: err}
		}
		return ptr.Elem(), nil
	}

	if isOpen(t) {
		if m := staticMember.FindStringSubmatch(text); m != nil {
			logger.Debug("Resolving static member.", "type", m[1], "member", m[2])
			return rc.resolveMember(m[1], m[2], t, text)
		}
		if t.Kind() != reflect.Interface || t.NumMethod() > 0 {
			logger.Debug("Resolving type name.", "type", text)
			return rc.instantiate(text, t)
		}
	}

	return convertScalar(text, t)
}

// isNullable reports whether t is a pointer to a value the text converters
// handle, so a blank literal can mean "absent".
func isNullable(t reflect.Type) bool {
	if t.Kind() != reflect.Pointer {
		return false
	}
	switch e := t.Elem(); {
	case e == urlType || e == durationType:
		return true
	case e.Kind() != reflect.Interface && reflect.PointerTo(e).Implements(textUnmarshalType):
		return true
	case e.Kind() == reflect.Struct || e.Kind() == reflect.Interface || e.Kind() == reflect.Pointer:
		return false
	default:
		return true
	}
}

// isOpen reports whether t can hold more than one concrete type, or is a
// struct pointer whose value a named type can supply.
func isOpen(t reflect.Type) bool {
	switch t.Kind() {
	case reflect.Interface:
		return true
	case reflect.Pointer:
		return t.Elem().Kind() == reflect.Struct
	}
	return false
}

func (rc *ResolutionContext) resolveMember(typeName, member string, t reflect.Type, literal string) (reflect.Value, error) {
	info, ok := rc.Registry.LookupType(typeName)
	if !ok {
		return reflect.Value{}, &cfgerr.TypeNotFoundError{Name: typeName}
	}
	v, ok := info.Member(member)
	if !ok {
		return reflect.Value{}, &cfgerr.MemberNotFoundError{Type: info.Name, Member: member}
	}
	return assignable(reflect.ValueOf(v), t, literal)
}

func (rc *ResolutionContext) instantiate(name string, t reflect.Type) (reflect.Value, error) {
	info, ok := rc.Registry.LookupType(name)
	if !ok {
		return reflect.Value{}, &cfgerr.TypeNotFoundError{Name: strings.TrimSpace(name)}
	}
	if info.New == nil {
		return reflect.Value{}, &cfgerr.NoUsableConstructorError{Type: info.Name}
	}
	return assignable(reflect.ValueOf(info.New()), t, name)
}

// parseDuration accepts Go duration syntax and [d.]hh:mm:ss[.fffffff].
func parseDuration(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	if d, err := time.ParseDuration(s); err == nil {
		return d, nil
	}
	m := timeSpan.FindStringSubmatch(s)
	if m == nil {
		return 0, fmt.Errorf("expected a duration such as 1m30s or 00:01:30")
	}
	var d time.Duration
	units := []time.Duration{24 * time.Hour, time.Hour, time.Minute, time.Second}
	for i, part := range m[1:5] {
		if part == "" {
			continue
		}
		n, err := strconv.Atoi(part)
		if err != nil {
			return 0, err
		}
		d += time.Duration(n) * units[i]
	}
	if frac := m[5]; frac != "" {
		ticks, err := strconv.Atoi(frac + strings.Repeat("0", 7-len(frac)))
		if err != nil {
			return 0, err
		}
		d += time.Duration(ticks) * 100 * time.Nanosecond
	}
	return d, nil
}

// convertScalar converts text to a string, boolean or numeric type. Numbers
// and booleans go through cty so range and syntax errors are reported the
// same way the HCL loader reports them.
func convertScalar(text string, t reflect.Type) (reflect.Value, error) {
	var ctyType cty.Type
	switch t.Kind() {
	case reflect.String:
		return reflect.ValueOf(text).Convert(t), nil
	case reflect.Interface:
		if t.NumMethod() == 0 {
			return assignable(reflect.ValueOf(text), t, text)
		}
		return reflect.Value{}, &cfgerr.ConversionError{Value: text, Target: t}
	case reflect.Slice:
		if t.Elem().Kind() == reflect.Uint8 {
			return reflect.ValueOf([]byte(text)).Convert(t), nil
		}
		return reflect.Value{}, &cfgerr.ConversionError{Value: text, Target: t}
	case reflect.Bool:
		ctyType = cty.Bool
		text = strings.ToLower(strings.TrimSpace(text))
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Float32, reflect.Float64:
		ctyType = cty.Number
		text = strings.TrimSpace(text)
	default:
		return reflect.Value{}, &cfgerr.ConversionError{Value: text, Target: t, Err: errors.New("no conversion from text exists for this type")}
	}

	v, err := convert.Convert(cty.StringVal(text), ctyType)
	if err != nil {
		return reflect.Value{}, &cfgerr.ConversionError{Value: text, Target: t, Err: err}
	}
	out := reflect.New(t)
	if err := gocty.FromCtyValue(v, out.Interface()); err != nil {
		return reflect.Value{}, &cfgerr.ConversionError{Value: text, Target: t, Err: err}
	}
	return out.Elem(), nil
}
