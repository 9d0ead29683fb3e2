package socketio

import (
	"bytes"
	"context"
	"crypto/tls"
	"fmt"
	"log/slog"
	"net/url"
	"sync"
	"time"

	"github.com/tidwall/gjson"
	"github.com/vk/slogxml/internal/level"
	"github.com/vk/slogxml/internal/pipeline"
	"github.com/vk/slogxml/internal/registry"
	"github.com/vk/slogxml/internal/switches"
	"github.com/vk/slogxml/modules/formatting"
	"github.com/zishang520/engine.io-client-go/transports"
	"github.com/zishang520/engine.io/v2/types"
	"github.com/zishang520/socket.io-client-go/socket"
)

// Module implements the registry.Module interface for this package.
type Module struct {
	// Dial connects the sink's client. Nil means a websocket socket.io
	// client.
	Dial func(ctx context.Context, opts DialOptions) (Emitter, error)
}

// DialOptions describes the connection a sink needs.
type DialOptions struct {
	URL                string
	Namespace          string
	InsecureSkipVerify bool
}

// Emitter is a connected client.
type Emitter interface {
	Emit(event string, args ...any) error
	Close()
}

// Sink emits one event per log event. The payload is the event rendered by
// formatting.JSONFormatter, decoded into a map.
type Sink struct {
	client Emitter
	event  string
	attrs  []slog.Attr
	close  *sync.Once
}

var _ slog.Handler = (*Sink)(nil)

var payloadFormatter = &formatting.JSONFormatter{}

// Enabled implements slog.Handler.
func (s *Sink) Enabled(context.Context, slog.Level) bool { return true }

// Handle implements slog.Handler.
func (s *Sink) Handle(_ context.Context, r slog.Record) error {
	if len(s.attrs) > 0 {
		r = r.Clone()
		r.AddAttrs(s.attrs...)
	}
	var buf bytes.Buffer
	if err := payloadFormatter.Format(&buf, r); err != nil {
		return err
	}
	payload := gjson.ParseBytes(buf.Bytes()).Value()
	if err := s.client.Emit(s.event, payload); err != nil {
		return fmt.Errorf("emit '%s': %w", s.event, err)
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

// Close disconnects the client.
func (s *Sink) Close() error {
	s.close.Do(s.client.Close)
	return nil
}

type client struct{ io *socket.Socket }

func (c client) Emit(event string, args ...any) error { return c.io.Emit(event, args...) }

func (c client) Close() { c.io.Disconnect() }

// Dial connects a websocket socket.io client and waits for the connect
// event.
func Dial(ctx context.Context, o DialOptions) (Emitter, error) {
	parsedURL, err := url.Parse(o.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse URL: %w", err)
	}

	opts := socket.DefaultOptions()
	opts.SetPath(parsedURL.Path)
	if o.InsecureSkipVerify {
		opts.SetTLSClientConfig(&tls.Config{InsecureSkipVerify: true})
	}
	opts.SetTransports(types.NewSet(transports.WebSocket))

	connected := make(chan error, 1)
	baseURL := fmt.Sprintf("%s://%s", parsedURL.Scheme, parsedURL.Host)
	io := socket.NewManager(baseURL, opts).Socket(o.Namespace, opts)
	report := func(err error) {
		select {
		case connected <- err:
		default:
		}
	}
	io.Once(types.EventName("connect"), func(...any) {
		report(nil)
	})
	io.Once(types.EventName("connect_error"), func(errs ...any) {
		err := fmt.Errorf("connect_error: %v", errs)
		if len(errs) > 0 {
			if e, ok := errs[0].(error); ok {
				err = e
			}
		}
		report(err)
	})
	io.Connect()

	select {
	case err := <-connected:
		if err != nil {
			io.Disconnect()
			return nil, fmt.Errorf("socket.io connection failed: %w", err)
		}
		return client{io: io}, nil
	case <-ctx.Done():
		io.Disconnect()
		return nil, fmt.Errorf("waiting for socket.io connection: %w", ctx.Err())
	}
}

// SocketIO emits events named event on the namespace of the server at
// url. The connection is established before the method returns.
func (m *Module) SocketIO(c *pipeline.SinkConfiguration, url, namespace, event string, insecureSkipVerify bool,
	connectTimeout time.Duration, restrictedToMinimumLevel level.Level, levelSwitch *switches.LevelSwitch) error {
	dial := m.Dial
	if dial == nil {
		dial = Dial
	}
	ctx, cancel := context.WithTimeout(context.Background(), connectTimeout)
	defer cancel()

	em, err := dial(ctx, DialOptions{URL: url, Namespace: namespace, InsecureSkipVerify: insecureSkipVerify})
	if err != nil {
		return err
	}
	c.Sink(&Sink{client: em, event: event, close: &sync.Once{}}, restrictedToMinimumLevel, levelSwitch)
	return nil
}

// Register registers the SocketIO action.
func (m *Module) Register(r *registry.Registry) {
	r.RegisterMethod("SocketIO", m.SocketIO,
		registry.Required("url"),
		registry.Optional("namespace", "/"),
		registry.Optional("event", "log"),
		registry.Optional("insecureSkipVerify", false),
		registry.Optional("connectTimeout", 15*time.Second),
		registry.Optional("restrictedToMinimumLevel", level.Verbose),
		registry.Optional("levelSwitch", nil))
}
