package app

import (
	"io"

	"github.com/vk/slogxml/internal/registry"
	"github.com/vk/slogxml/modules/console"
	"github.com/vk/slogxml/modules/environment"
	"github.com/vk/slogxml/modules/file"
	"github.com/vk/slogxml/modules/formatting"
	"github.com/vk/slogxml/modules/journald"
	"github.com/vk/slogxml/modules/nats"
	"github.com/vk/slogxml/modules/socketio"
)

// coreModules is the definitive list of the modules compiled into the
// slogxml binary, by the id a Using directive names them with. Console
// sinks write to stdout and stderr.
func coreModules(stdout, stderr io.Writer) map[string]registry.Module {
	return map[string]registry.Module{
		"console":     &console.Module{Stdout: stdout, Stderr: stderr},
		"environment": &environment.Module{},
		"file":        &file.Module{},
		"formatting":  formatting.Module{},
		"journald":    &journald.Module{},
		"nats":        &nats.Module{},
		"socketio":    &socketio.Module{},
	}
}
