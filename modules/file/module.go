package file

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/vk/slogxml/internal/level"
	"github.com/vk/slogxml/internal/pipeline"
	"github.com/vk/slogxml/internal/registry"
	"github.com/vk/slogxml/internal/switches"
	"github.com/vk/slogxml/modules/formatting"
)

// Module implements the registry.Module interface for this package.
type Module struct{}

// Sink appends formatted events to a file.
type Sink struct {
	*formatting.Handler
	f     *os.File
	close sync.Once
	err   error
}

// Open creates the file at path, and any missing parent directories, and
// returns a sink appending to it. A nil formatter means
// formatting.TextFormatter.
func Open(path string, formatter formatting.Formatter) (*Sink, error) {
	path = filepath.Clean(path)
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create log directory: %w", err)
		}
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("failed to open log file: %w", err)
	}
	return &Sink{Handler: formatting.NewHandler(f, formatter), f: f}, nil
}

// Path returns the name of the underlying file.
func (s *Sink) Path() string { return s.f.Name() }

// Close closes the file. Calling it again returns the first result.
func (s *Sink) Close() error {
	s.close.Do(func() { s.err = s.f.Close() })
	return s.err
}

// File writes events to the file at path in text form.
func File(c *pipeline.SinkConfiguration, path string, restrictedToMinimumLevel level.Level, levelSwitch *switches.LevelSwitch) error {
	return FileWithFormatter(c, path, nil, restrictedToMinimumLevel, levelSwitch)
}

// FileWithFormatter writes events to the file at path using formatter.
func FileWithFormatter(c *pipeline.SinkConfiguration, path string, formatter formatting.Formatter, restrictedToMinimumLevel level.Level, levelSwitch *switches.LevelSwitch) error {
	s, err := Open(path, formatter)
	if err != nil {
		return err
	}
	c.Sink(s, restrictedToMinimumLevel, levelSwitch)
	return nil
}

// AuditFile audits events to the file at path. Write failures reach the
// caller of the logger.
func AuditFile(c *pipeline.AuditSinkConfiguration, path string, formatter formatting.Formatter) error {
	s, err := Open(path, formatter)
	if err != nil {
		return err
	}
	c.Sink(s)
	return nil
}

// Register registers the File actions.
func (m *Module) Register(r *registry.Registry) {
	r.Load("formatting", formatting.Module{})

	r.RegisterMethod("File", File,
		registry.Required("path"),
		registry.Optional("restrictedToMinimumLevel", level.Verbose),
		registry.Optional("levelSwitch", nil))
	r.RegisterMethod("File", FileWithFormatter,
		registry.Required("path"),
		registry.Required("formatter"),
		registry.Optional("restrictedToMinimumLevel", level.Verbose),
		registry.Optional("levelSwitch", nil))
	r.RegisterMethod("File", AuditFile,
		registry.Required("path"),
		registry.Optional("formatter", nil))
}
