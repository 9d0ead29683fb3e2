package journald

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/coreos/go-systemd/v22/journal"
	"github.com/vk/slogxml/internal/level"
	"github.com/vk/slogxml/internal/pipeline"
	"github.com/vk/slogxml/internal/registry"
	"github.com/vk/slogxml/internal/switches"
)

// Module implements the registry.Module interface for this package.
type Module struct {
	// Send and Enabled default to the go-systemd journal functions.
	Send    func(message string, priority journal.Priority, vars map[string]string) error
	Enabled func() bool
}

// Sink sends each event to the systemd journal as one entry whose fields
// are the event's attributes.
type Sink struct {
	send       func(string, journal.Priority, map[string]string) error
	identifier string
	attrs      []slog.Attr
}

var _ slog.Handler = (*Sink)(nil)

// Enabled implements slog.Handler.
func (s *Sink) Enabled(context.Context, slog.Level) bool { return true }

// Handle implements slog.Handler.
func (s *Sink) Handle(_ context.Context, r slog.Record) error {
	vars := make(map[string]string)
	if s.identifier != "" {
		vars["SYSLOG_IDENTIFIER"] = s.identifier
	}
	if !r.Time.IsZero() {
		vars["SYSLOG_TIMESTAMP"] = r.Time.Format(time.RFC3339Nano)
	}
	lvl := level.FromSlog(r.Level)
	vars["LEVEL"] = lvl.String()
	for _, a := range s.attrs {
		addField(vars, "", a)
	}
	r.Attrs(func(a slog.Attr) bool {
		addField(vars, "", a)
		return true
	})
	return s.send(r.Message, Priority(lvl), vars)
}

// WithAttrs implements slog.Handler.
func (s *Sink) WithAttrs(attrs []slog.Attr) slog.Handler {
	out := *s
	out.attrs = append(append([]slog.Attr(nil), s.attrs...), attrs...)
	return &out
}

// WithGroup implements slog.Handler. The pipeline resolves groups before
// events reach a sink.
func (s *Sink) WithGroup(string) slog.Handler { return s }

// Priority maps a level onto a syslog priority.
func Priority(l level.Level) journal.Priority {
	switch {
	case l <= level.Debug:
		return journal.PriDebug
	case l == level.Information:
		return journal.PriInfo
	case l == level.Warning:
		return journal.PriWarning
	case l == level.Error:
		return journal.PriErr
	default:
		return journal.PriCrit
	}
}

func addField(vars map[string]string, prefix string, a slog.Attr) {
	v := a.Value.Resolve()
	if v.Kind() == slog.KindGroup {
		if a.Key != "" {
			prefix += a.Key + "_"
		}
		for _, ga := range v.Group() {
			addField(vars, prefix, ga)
		}
		return
	}
	if name := FieldName(prefix + a.Key); name != "" {
		vars[name] = v.String()
	}
}

// FieldName turns an attribute key into a valid journal field name:
// upper case letters, digits and underscores, not starting with an
// underscore or a digit.
func FieldName(key string) string {
	var b strings.Builder
	for _, c := range strings.ToUpper(key) {
		switch {
		case c >= 'A' && c <= 'Z', c >= '0' && c <= '9':
			b.WriteRune(c)
		default:
			b.WriteByte('_')
		}
	}
	return strings.TrimLeft(b.String(), "_0123456789")
}

// Journal writes events to the local systemd journal.
func (m *Module) Journal(c *pipeline.SinkConfiguration, syslogIdentifier string,
	restrictedToMinimumLevel level.Level, levelSwitch *switches.LevelSwitch) error {
	enabled, send := m.Enabled, m.Send
	if enabled == nil {
		enabled = journal.Enabled
	}
	if send == nil {
		send = journal.Send
	}
	if !enabled() {
		return errors.New("the systemd journal is not available on this host")
	}
	c.Sink(&Sink{send: send, identifier: syslogIdentifier}, restrictedToMinimumLevel, levelSwitch)
	return nil
}

// Register registers the Journal action.
func (m *Module) Register(r *registry.Registry) {
	r.RegisterMethod("Journal", m.Journal,
		registry.Optional("syslogIdentifier", ""),
		registry.Optional("restrictedToMinimumLevel", level.Verbose),
		registry.Optional("levelSwitch", nil))
}
