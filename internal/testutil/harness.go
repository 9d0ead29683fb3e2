package testutil

import (
	"bytes"
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// SafeBuffer is a thread-safe buffer for capturing log output in tests.
type SafeBuffer struct {
	b  bytes.Buffer
	mu sync.Mutex
}

// Write implements the io.Writer interface for SafeBuffer.
func (b *SafeBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.b.Write(p)
}

// String implements the fmt.Stringer interface for SafeBuffer.
func (b *SafeBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.b.String()
}

// NewTestLogger returns a debug-level text logger writing to a SafeBuffer.
// Set SLOGXML_TEST_LOGS=true to echo the buffer when the test ends.
func NewTestLogger(t *testing.T) (*slog.Logger, *SafeBuffer) {
	t.Helper()
	buf := &SafeBuffer{}
	t.Cleanup(func() {
		if os.Getenv("SLOGXML_TEST_LOGS") == "true" {
			t.Logf("--- Full Log Output for %s ---\n%s", t.Name(), buf.String())
		}
	})
	return slog.New(slog.NewTextHandler(buf, &slog.HandlerOptions{Level: slog.LevelDebug})), buf
}

// WriteFiles writes files, keyed by relative path, under a fresh temporary
// directory and returns it.
func WriteFiles(t *testing.T, files map[string]string) string {
	t.Helper()
	dir := t.TempDir()
	for name, content := range files {
		path := filepath.Join(dir, name)
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	}
	return dir
}

// CaptureSink is a slog.Handler that records every event it receives.
type CaptureSink struct {
	mu      *sync.Mutex
	records *[]slog.Record
	attrs   []slog.Attr
	Fail    error
}

// NewCaptureSink returns an empty CaptureSink.
func NewCaptureSink() *CaptureSink {
	return &CaptureSink{mu: &sync.Mutex{}, records: new([]slog.Record)}
}

// Enabled implements slog.Handler.
func (s *CaptureSink) Enabled(context.Context, slog.Level) bool { return true }

// Handle implements slog.Handler.
func (s *CaptureSink) Handle(_ context.Context, r slog.Record) error {
	r = r.Clone()
	r.AddAttrs(s.attrs...)
	s.mu.Lock()
	*s.records = append(*s.records, r)
	s.mu.Unlock()
	return s.Fail
}

// WithAttrs implements slog.Handler.
func (s *CaptureSink) WithAttrs(attrs []slog.Attr) slog.Handler {
	out := *s
	out.attrs = append(append([]slog.Attr(nil), s.attrs...), attrs...)
	return &out
}

// WithGroup implements slog.Handler. Groups are not tracked.
func (s *CaptureSink) WithGroup(string) slog.Handler { return s }

// Records returns a copy of the recorded events.
func (s *CaptureSink) Records() []slog.Record {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]slog.Record(nil), *s.records...)
}

// Messages returns the message of every recorded event.
func (s *CaptureSink) Messages() []string {
	var out []string
	for _, r := range s.Records() {
		out = append(out, r.Message)
	}
	return out
}

// Attr returns the top-level attribute key of r.
func Attr(r slog.Record, key string) (slog.Value, bool) {
	var v slog.Value
	found := false
	r.Attrs(func(a slog.Attr) bool {
		if a.Key == key {
			v, found = a.Value, true
			return false
		}
		return true
	})
	return v, found
}

// NewRecord returns an Information record stamped now with args as its
// attributes.
func NewRecord(msg string, args ...any) slog.Record {
	r := slog.NewRecord(time.Now(), slog.LevelInfo, msg, 0)
	r.Add(args...)
	return r
}
