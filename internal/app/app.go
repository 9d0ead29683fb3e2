package app

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"os"

	"github.com/vk/slogxml/internal/binder"
	"github.com/vk/slogxml/internal/ctxlog"
	"github.com/vk/slogxml/internal/pipeline"
	"github.com/vk/slogxml/internal/registry"
)

// App encapsulates the application's dependencies, configuration, and lifecycle.
type App struct {
	outW    io.Writer
	logger  *slog.Logger
	config  *Config
	modules map[string]registry.Module

	lc         *pipeline.LoggerConfiguration
	rc         *binder.ResolutionContext
	handler    *pipeline.Handler
	httpServer *http.Server
}

// NewApp is the constructor for the main application. Console sinks write
// to outW, the tool's own diagnostics to diagW. A nil modules map means the
// modules compiled into the binary.
func NewApp(outW, diagW io.Writer, cfg *Config, modules map[string]registry.Module) *App {
	logger := newLogger(cfg.LogLevel, cfg.LogFormat, diagW)
	logger.Debug("Logger configured successfully.")

	if modules == nil {
		modules = coreModules(outW, os.Stderr)
	}
	return &App{
		outW:    outW,
		logger:  logger,
		config:  cfg,
		modules: modules,
	}
}

func (a *App) context(ctx context.Context) context.Context {
	return ctxlog.WithLogger(ctx, a.logger)
}

// Logger returns a logger writing through the loaded pipeline.
func (a *App) Logger() *slog.Logger {
	return slog.New(a.handler)
}

// Close releases the pipeline's sinks.
func (a *App) Close() error {
	if a.handler == nil {
		return nil
	}
	return a.handler.Close()
}
