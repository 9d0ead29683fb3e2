package cli

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"strings"

	ucli "github.com/urfave/cli/v2"
	"github.com/vk/slogxml/internal/app"
	"github.com/vk/slogxml/internal/level"
	"github.com/vk/slogxml/internal/registry"
)

// ExitError is a custom error type that includes a specific exit code.
type ExitError struct {
	Code    int
	Message string
}

// Error implements the error interface for ExitError.
func (e *ExitError) Error() string {
	return e.Message
}

// ExitCode implements urfave/cli's ExitCoder.
func (e *ExitError) ExitCode() int {
	return e.Code
}

func usageError(format string, args ...any) error {
	return &ExitError{Code: 2, Message: fmt.Sprintf(format, args...)}
}

// Options wires the command line to its environment.
type Options struct {
	Out  io.Writer
	Diag io.Writer
	// Modules overrides the modules compiled into the binary.
	Modules map[string]registry.Module
}

// New builds the slogxml command line application.
func New(opts Options) *ucli.App {
	globalFlags := []ucli.Flag{
		&ucli.StringFlag{Name: "settings", Usage: "TOML settings file, or a directory of .toml drop-ins", EnvVars: []string{"SLOGXML_SETTINGS"}},
		&ucli.StringFlag{Name: "log-format", Value: "text", Usage: "Diagnostic log format: 'text' or 'json'"},
		&ucli.StringFlag{Name: "log-level", Value: "info", Usage: "Diagnostic log level: 'debug', 'info', 'warn' or 'error'", EnvVars: []string{"SLOGXML_LOG_LEVEL"}},
		&ucli.StringSliceFlag{Name: "load", Usage: "Module to load without a Using directive (repeatable)"},
		&ucli.BoolFlag{Name: "expressions", Usage: "Enable filter switches and expression-based directives"},
	}

	return &ucli.App{
		Name:            "slogxml",
		Usage:           "Build a log/slog pipeline from an XML or HCL configuration document",
		Writer:          opts.Out,
		ErrWriter:       opts.Diag,
		Flags:           globalFlags,
		HideHelpCommand: true,
		ExitErrHandler:  func(*ucli.Context, error) {},
		Commands: []*ucli.Command{
			{
				Name:      "check",
				Usage:     "Load a configuration document and describe the pipeline it builds",
				ArgsUsage: "CONFIG",
				Action: func(c *ucli.Context) error {
					a, err := load(c, opts)
					if err != nil {
						return err
					}
					defer a.Close()
					printSummary(c.App.Writer, a.Summary())
					return nil
				},
			},
			{
				Name:      "emit",
				Usage:     "Write events through the pipeline a configuration document builds",
				ArgsUsage: "CONFIG [MESSAGE]",
				Flags: []ucli.Flag{
					&ucli.StringFlag{Name: "level", Aliases: []string{"l"}, Value: "Information", Usage: "Event level"},
					&ucli.StringFlag{Name: "message", Aliases: []string{"m"}, Usage: "Event message"},
					&ucli.StringFlag{Name: "source", Usage: "SourceContext of the event"},
					&ucli.StringSliceFlag{Name: "prop", Aliases: []string{"p"}, Usage: "Event property as key=value (repeatable)"},
					&ucli.StringSliceFlag{Name: "switch", Usage: "Set a level switch before emitting, as name=Level (repeatable)"},
					&ucli.IntFlag{Name: "count", Value: 1, Usage: "Number of copies of the event"},
				},
				Action: func(c *ucli.Context) error {
					return emit(c, opts)
				},
			},
			{
				Name:      "serve",
				Usage:     "Keep the pipeline loaded and serve the switch control endpoint",
				ArgsUsage: "CONFIG",
				Flags: []ucli.Flag{
					&ucli.IntFlag{Name: "port", Value: 8080, Usage: "Port for the control endpoint"},
				},
				Action: func(c *ucli.Context) error {
					a, err := load(c, opts)
					if err != nil {
						return err
					}
					defer a.Close()
					return a.Serve(c.Context)
				},
			},
		},
	}
}

// Run parses args, whose first element is the program name, and runs the
// selected command.
func Run(ctx context.Context, opts Options, args []string) error {
	return New(opts).RunContext(ctx, args)
}

func buildConfig(c *ucli.Context) (*app.Config, error) {
	if c.NArg() < 1 {
		return nil, usageError("missing CONFIG argument; see '%s --help'", c.Command.FullName())
	}
	cfg := app.Config{
		ConfigPath: c.Args().First(),
		LogFormat:  c.String("log-format"),
		LogLevel:   c.String("log-level"),
	}
	if path := c.String("settings"); path != "" {
		if err := cfg.ReadSettings(path); err != nil {
			return nil, &ExitError{Code: 1, Message: err.Error()}
		}
	}
	if c.IsSet("log-format") {
		cfg.LogFormat = c.String("log-format")
	}
	if c.IsSet("log-level") {
		cfg.LogLevel = c.String("log-level")
	}
	if c.IsSet("expressions") {
		cfg.Expressions = c.Bool("expressions")
	}
	cfg.Load = append(cfg.Load, c.StringSlice("load")...)
	if c.Command.Name == "serve" {
		if c.IsSet("port") || cfg.ControlPort == 0 {
			cfg.ControlPort = c.Int("port")
		}
	}

	config, err := app.NewConfig(cfg)
	if err != nil {
		return nil, usageError("%s", err.Error())
	}
	slog.Debug("CLI parser finished successfully.", "config", config)
	return config, nil
}

func load(c *ucli.Context, opts Options) (*app.App, error) {
	cfg, err := buildConfig(c)
	if err != nil {
		return nil, err
	}
	a := app.NewApp(c.App.Writer, c.App.ErrWriter, cfg, opts.Modules)
	if err := a.Load(c.Context); err != nil {
		return nil, &ExitError{Code: 1, Message: err.Error()}
	}
	return a, nil
}

func emit(c *ucli.Context, opts Options) error {
	lvl, err := level.Parse(c.String("level"))
	if err != nil {
		return usageError("%s", err.Error())
	}
	props, err := pairs(c.StringSlice("prop"))
	if err != nil {
		return err
	}
	sets, err := pairs(c.StringSlice("switch"))
	if err != nil {
		return err
	}
	if c.Int("count") < 0 {
		return usageError("--count must not be negative")
	}
	message := c.String("message")
	if message == "" {
		message = c.Args().Get(1)
	}
	if message == "" {
		return usageError("an event needs a message: pass --message or a MESSAGE argument")
	}

	a, err := load(c, opts)
	if err != nil {
		return err
	}
	defer a.Close()

	names := make([]string, 0, len(sets))
	for name := range sets {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		if err := a.SetLevelSwitch(name, sets[name]); err != nil {
			return &ExitError{Code: 1, Message: err.Error()}
		}
	}

	events := make([]app.Event, c.Int("count"))
	for i := range events {
		events[i] = app.Event{Level: lvl, Message: message, Source: c.String("source"), Properties: props}
	}
	if err := a.Emit(c.Context, events...); err != nil {
		return &ExitError{Code: 1, Message: fmt.Sprintf("audit sink failed: %v", err)}
	}
	return nil
}

func pairs(items []string) (map[string]string, error) {
	out := make(map[string]string, len(items))
	for _, item := range items {
		k, v, ok := strings.Cut(item, "=")
		if !ok || strings.TrimSpace(k) == "" {
			return nil, usageError("%q is not a key=value pair", item)
		}
		out[strings.TrimSpace(k)] = v
	}
	return out, nil
}

func printSummary(w io.Writer, s *app.Summary) {
	fmt.Fprintf(w, "Configuration: %s\n", s.Path)
	fmt.Fprintf(w, "Minimum level: %s\n", s.MinimumLevel)
	fmt.Fprintf(w, "Modules: %s\n", strings.Join(s.Modules, ", "))
	for _, kind := range []struct {
		label    string
		switches map[string]string
	}{{"Level switch", s.LevelSwitches}, {"Filter switch", s.FilterSwitches}} {
		names := make([]string, 0, len(kind.switches))
		for name := range kind.switches {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			fmt.Fprintf(w, "%s %s = %s\n", kind.label, name, kind.switches[name])
		}
	}
	fmt.Fprintln(w, "OK")
}

var _ ucli.ExitCoder = (*ExitError)(nil)
