package nats

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/vk/slogxml/internal/level"
	"github.com/vk/slogxml/internal/pipeline"
	"github.com/vk/slogxml/internal/registry"
	"github.com/vk/slogxml/internal/switches"
	"github.com/vk/slogxml/modules/formatting"
)

// Module implements the registry.Module interface for this package.
type Module struct {
	// Connect opens the connection a sink publishes on. Nil means
	// nats.Connect with reconnect-on-failure enabled.
	Connect func(url string) (Publisher, error)
}

// Publisher is the part of *nats.Conn the sink uses.
type Publisher interface {
	Publish(subject string, data []byte) error
	FlushTimeout(timeout time.Duration) error
	Close()
}

// Sink publishes one message per event on a subject.
type Sink struct {
	conn      Publisher
	subject   string
	formatter formatting.Formatter
	attrs     []slog.Attr
	close     *sync.Once
}

var _ slog.Handler = (*Sink)(nil)

// Enabled implements slog.Handler.
func (s *Sink) Enabled(context.Context, slog.Level) bool { return true }

// Handle implements slog.Handler.
func (s *Sink) Handle(_ context.Context, r slog.Record) error {
	if len(s.attrs) > 0 {
		r = r.Clone()
		r.AddAttrs(s.attrs...)
	}
	var buf bytes.Buffer
	if err := s.formatter.Format(&buf, r); err != nil {
		return fmt.Errorf("format event: %w", err)
	}
	if err := s.conn.Publish(s.subject, bytes.TrimRight(buf.Bytes(), "\n")); err != nil {
		return fmt.Errorf("publish log event: %w", err)
	}
	return nil
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

// Close flushes pending messages and closes the connection.
func (s *Sink) Close() error {
	var err error
	s.close.Do(func() {
		err = s.conn.FlushTimeout(2 * time.Second)
		s.conn.Close()
	})
	return err
}

func (m *Module) connect(url string) (Publisher, error) {
	if m.Connect != nil {
		return m.Connect(url)
	}
	nc, err := nats.Connect(url,
		nats.Name("slogxml"),
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(-1),
	)
	if err != nil {
		return nil, err
	}
	return nc, nil
}

func (m *Module) newSink(url, subject string, formatter formatting.Formatter) (*Sink, error) {
	if strings.TrimSpace(subject) == "" {
		return nil, fmt.Errorf("a NATS sink needs a subject")
	}
	if formatter == nil {
		formatter = formatting.Formatters.Compact
	}
	conn, err := m.connect(url)
	if err != nil {
		return nil, fmt.Errorf("connect to nats %s: %w", url, err)
	}
	return &Sink{conn: conn, subject: subject, formatter: formatter, close: &sync.Once{}}, nil
}

// Nats publishes events to subject on the server at url. A nil formatter
// means the compact JSON form.
func (m *Module) Nats(c *pipeline.SinkConfiguration, url, subject string, formatter formatting.Formatter,
	restrictedToMinimumLevel level.Level, levelSwitch *switches.LevelSwitch) error {
	s, err := m.newSink(url, subject, formatter)
	if err != nil {
		return err
	}
	c.Sink(s, restrictedToMinimumLevel, levelSwitch)
	return nil
}

// Register registers the Nats action.
func (m *Module) Register(r *registry.Registry) {
	r.Load("formatting", formatting.Module{})
	r.RegisterMethod("Nats", m.Nats,
		registry.Optional("url", nats.DefaultURL),
		registry.Required("subject"),
		registry.Optional("formatter", nil),
		registry.Optional("restrictedToMinimumLevel", level.Verbose),
		registry.Optional("levelSwitch", nil))
}
