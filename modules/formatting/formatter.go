// Package formatting renders pipeline events as text or JSON lines and
// adapts a Formatter to a slog.Handler so sinks only need an io.Writer.
package formatting

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"reflect"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/tidwall/sjson"
	"github.com/vk/slogxml/internal/level"
	"github.com/vk/slogxml/internal/registry"
)

// Formatter writes one event, terminated by a newline, to w.
type Formatter interface {
	Format(w io.Writer, r slog.Record) error
}

// JSONFormatter writes each event as a JSON object with time, level and
// msg fields followed by the event's attributes. Groups become nested
// objects.
type JSONFormatter struct {
	// TimeFormat is a time layout; empty means RFC 3339 with nanoseconds.
	TimeFormat string
}

// Format implements Formatter.
func (f *JSONFormatter) Format(w io.Writer, r slog.Record) error {
	buf := []byte("{}")
	var err error
	if !r.Time.IsZero() {
		if buf, err = sjson.SetBytes(buf, "time", r.Time.Format(layout(f.TimeFormat))); err != nil {
			return err
		}
	}
	if buf, err = sjson.SetBytes(buf, "level", level.FromSlog(r.Level).String()); err != nil {
		return err
	}
	if buf, err = sjson.SetBytes(buf, "msg", r.Message); err != nil {
		return err
	}
	if buf, err = setAttrs(buf, r); err != nil {
		return err
	}
	_, err = w.Write(append(buf, '\n'))
	return err
}

// CompactJSONFormatter writes the shorter "@t", "@l", "@m" form. The level
// is left out for Information events.
type CompactJSONFormatter struct{}

// Format implements Formatter.
func (f *CompactJSONFormatter) Format(w io.Writer, r slog.Record) error {
	buf := []byte("{}")
	var err error
	if !r.Time.IsZero() {
		if buf, err = sjson.SetBytes(buf, `\@t`, r.Time.UTC().Format(time.RFC3339Nano)); err != nil {
			return err
		}
	}
	if l := level.FromSlog(r.Level); l != level.Information {
		if buf, err = sjson.SetBytes(buf, `\@l`, l.String()); err != nil {
			return err
		}
	}
	if buf, err = sjson.SetBytes(buf, `\@m`, r.Message); err != nil {
		return err
	}
	if buf, err = setAttrs(buf, r); err != nil {
		return err
	}
	_, err = w.Write(append(buf, '\n'))
	return err
}

func setAttrs(buf []byte, r slog.Record) ([]byte, error) {
	var err error
	r.Attrs(func(a slog.Attr) bool {
		buf, err = setAttr(buf, "", a)
		return err == nil
	})
	return buf, err
}

func setAttr(buf []byte, prefix string, a slog.Attr) ([]byte, error) {
	v := a.Value.Resolve()
	if a.Key == "" && v.Kind() != slog.KindGroup {
		return buf, nil
	}
	path := prefix + escapePath(a.Key)
	if v.Kind() == slog.KindGroup {
		if a.Key != "" {
			prefix = path + "."
		}
		var err error
		for _, ga := range v.Group() {
			if buf, err = setAttr(buf, prefix, ga); err != nil {
				return nil, err
			}
		}
		return buf, nil
	}
	return sjson.SetBytes(buf, path, jsonValue(v))
}

func jsonValue(v slog.Value) any {
	switch v.Kind() {
	case slog.KindTime:
		return v.Time().Format(time.RFC3339Nano)
	case slog.KindDuration:
		return v.Duration().String()
	case slog.KindAny:
		switch x := v.Any().(type) {
		case error:
			return x.Error()
		case fmt.Stringer:
			if rv := reflect.ValueOf(x); rv.Kind() != reflect.Map && rv.Kind() != reflect.Slice {
				return x.String()
			}
		}
		return v.Any()
	default:
		return v.Any()
	}
}

// escapePath escapes the characters sjson treats as path syntax.
func escapePath(key string) string {
	if !strings.ContainsAny(key, `.*?|#@\:!=<>%`) {
		return key
	}
	var b strings.Builder
	for _, c := range key {
		if strings.ContainsRune(`.*?|#@\:!=<>%`, c) {
			b.WriteByte('\\')
		}
		b.WriteRune(c)
	}
	return b.String()
}

// TextFormatter writes "time [LVL] message key=value ..." lines.
type TextFormatter struct {
	// TimeFormat is a time layout; empty means RFC 3339 with milliseconds.
	TimeFormat string
}

// Format implements Formatter.
func (f *TextFormatter) Format(w io.Writer, r slog.Record) error {
	var b bytes.Buffer
	if !r.Time.IsZero() {
		timeFormat := f.TimeFormat
		if timeFormat == "" {
			timeFormat = "2006-01-02T15:04:05.000Z07:00"
		}
		b.WriteString(r.Time.Format(timeFormat))
		b.WriteByte(' ')
	}
	b.WriteString("[" + level.FromSlog(r.Level).Short() + "] ")
	b.WriteString(r.Message)
	r.Attrs(func(a slog.Attr) bool {
		writeTextAttr(&b, "", a)
		return true
	})
	b.WriteByte('\n')
	_, err := w.Write(b.Bytes())
	return err
}

func writeTextAttr(b *bytes.Buffer, prefix string, a slog.Attr) {
	v := a.Value.Resolve()
	if v.Kind() == slog.KindGroup {
		if a.Key != "" {
			prefix += a.Key + "."
		}
		for _, ga := range v.Group() {
			writeTextAttr(b, prefix, ga)
		}
		return
	}
	if a.Key == "" {
		return
	}
	b.WriteByte(' ')
	b.WriteString(prefix + a.Key)
	b.WriteByte('=')
	s := fmt.Sprint(jsonValue(v))
	if s == "" || strings.ContainsAny(s, " =\"\n\t") {
		s = strconv.Quote(s)
	}
	b.WriteString(s)
}

func layout(format string) string {
	if format == "" {
		return time.RFC3339Nano
	}
	return format
}

// Handler writes events through a Formatter. Level decisions are left to
// the pipeline, so Enabled always reports true.
type Handler struct {
	mu     *sync.Mutex
	w      io.Writer
	f      Formatter
	attrs  []slog.Attr
	groups []string
}

var _ slog.Handler = (*Handler)(nil)

// NewHandler returns a Handler writing to w. A nil f means TextFormatter.
func NewHandler(w io.Writer, f Formatter) *Handler {
	if f == nil {
		f = &TextFormatter{}
	}
	return &Handler{mu: &sync.Mutex{}, w: w, f: f}
}

// Enabled implements slog.Handler.
func (h *Handler) Enabled(context.Context, slog.Level) bool { return true }

// Handle implements slog.Handler.
func (h *Handler) Handle(_ context.Context, r slog.Record) error {
	if len(h.attrs) > 0 || len(h.groups) > 0 {
		out := slog.NewRecord(r.Time, r.Level, r.Message, r.PC)
		out.AddAttrs(h.attrs...)
		var own []slog.Attr
		r.Attrs(func(a slog.Attr) bool {
			own = append(own, a)
			return true
		})
		out.AddAttrs(nest(h.groups, own)...)
		r = out
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.f.Format(h.w, r)
}

// WithAttrs implements slog.Handler.
func (h *Handler) WithAttrs(attrs []slog.Attr) slog.Handler {
	out := *h
	out.attrs = append(append([]slog.Attr(nil), h.attrs...), nest(h.groups, attrs)...)
	return &out
}

// WithGroup implements slog.Handler.
func (h *Handler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	out := *h
	out.groups = append(append([]string(nil), h.groups...), name)
	return &out
}

func nest(groups []string, attrs []slog.Attr) []slog.Attr {
	if len(attrs) == 0 {
		return nil
	}
	for i := len(groups) - 1; i >= 0; i-- {
		attrs = []slog.Attr{{Key: groups[i], Value: slog.GroupValue(attrs...)}}
	}
	return attrs
}

// Formatters holds the shared formatter instances documents reach with
// "Formatters::Json", "Formatters::Compact" and "Formatters::Text".
var Formatters = struct {
	Json, Compact, Text Formatter
}{
	Json:    &JSONFormatter{},
	Compact: &CompactJSONFormatter{},
	Text:    &TextFormatter{},
}

// Module makes the formatter types available by name.
type Module struct{}

// Register implements registry.Module.
func (Module) Register(r *registry.Registry) {
	r.RegisterType(registry.TypeInfo{
		Name: "formatting.JSONFormatter",
		Type: reflect.TypeOf(&JSONFormatter{}),
		New:  func() any { return &JSONFormatter{} },
	})
	r.RegisterType(registry.TypeInfo{
		Name: "formatting.CompactJSONFormatter",
		Type: reflect.TypeOf(&CompactJSONFormatter{}),
		New:  func() any { return &CompactJSONFormatter{} },
	})
	r.RegisterType(registry.TypeInfo{
		Name: "formatting.TextFormatter",
		Type: reflect.TypeOf(&TextFormatter{}),
		New:  func() any { return &TextFormatter{} },
	})
	r.RegisterType(registry.TypeInfo{
		Name: "formatting.Formatters",
		Fields: map[string]any{
			"Json":    Formatters.Json,
			"Compact": Formatters.Compact,
			"Text":    Formatters.Text,
		},
	})
}
