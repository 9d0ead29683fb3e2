package console

import (
	"io"
	"os"

	"github.com/vk/slogxml/internal/level"
	"github.com/vk/slogxml/internal/pipeline"
	"github.com/vk/slogxml/internal/registry"
	"github.com/vk/slogxml/internal/switches"
	"github.com/vk/slogxml/modules/formatting"
)

// Module implements the registry.Module interface for this package.
type Module struct {
	// Stdout and Stderr default to the process streams.
	Stdout io.Writer
	Stderr io.Writer
}

// Console writes events to standard output, or to standard error when
// standardError is set. A nil formatter means formatting.TextFormatter.
func (m *Module) Console(c *pipeline.SinkConfiguration, formatter formatting.Formatter, standardError bool,
	restrictedToMinimumLevel level.Level, levelSwitch *switches.LevelSwitch) {
	w := m.Stdout
	if w == nil {
		w = os.Stdout
	}
	if standardError {
		w = m.Stderr
		if w == nil {
			w = os.Stderr
		}
	}
	c.Sink(formatting.NewHandler(w, formatter), restrictedToMinimumLevel, levelSwitch)
}

// Register registers the Console action.
func (m *Module) Register(r *registry.Registry) {
	r.Load("formatting", formatting.Module{})
	r.RegisterMethod("Console", m.Console,
		registry.Optional("formatter", nil),
		registry.Optional("standardError", false),
		registry.Optional("restrictedToMinimumLevel", level.Verbose),
		registry.Optional("levelSwitch", nil))
}
