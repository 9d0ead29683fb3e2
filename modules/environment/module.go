package environment

import (
	"context"
	"log/slog"
	"os"
	"sort"
	"strings"

	"github.com/google/uuid"
	"github.com/vk/slogxml/internal/pipeline"
	"github.com/vk/slogxml/internal/registry"
)

// Module implements the registry.Module interface for this package.
type Module struct{}

// WithEnvironmentVariable adds the value of the named variable, read once,
// as propertyName. An empty propertyName means the variable's name. Unset
// variables add nothing.
func WithEnvironmentVariable(c *pipeline.EnrichmentConfiguration, environmentVariableName, propertyName string) {
	value, ok := os.LookupEnv(environmentVariableName)
	if !ok {
		return
	}
	if propertyName == "" {
		propertyName = environmentVariableName
	}
	c.WithProperty(propertyName, value, false)
}

// WithEnvironmentVariables adds an "Environment" group holding every
// variable whose name starts with prefix, read once.
func WithEnvironmentVariables(c *pipeline.EnrichmentConfiguration, prefix string) {
	envMap := make(map[string]string)
	for _, e := range os.Environ() {
		pair := strings.SplitN(e, "=", 2)
		if len(pair) == 2 && strings.HasPrefix(pair[0], prefix) {
			envMap[pair[0]] = pair[1]
		}
	}
	if len(envMap) == 0 {
		return
	}

	keys := make([]string, 0, len(envMap))
	for k := range envMap {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	attrs := make([]any, 0, len(keys))
	for _, k := range keys {
		attrs = append(attrs, slog.String(k, envMap[k]))
	}
	group := slog.Group("Environment", attrs...)
	c.With(pipeline.EnricherFunc(func(_ context.Context, r *slog.Record) {
		pipeline.AddIfAbsent(r, group)
	}))
}

// WithMachineName adds the host name as MachineName.
func WithMachineName(c *pipeline.EnrichmentConfiguration) {
	name, err := os.Hostname()
	if err != nil {
		name = os.Getenv("HOSTNAME")
	}
	c.WithProperty("MachineName", name, false)
}

// WithProcessID adds the current process id as ProcessId.
func WithProcessID(c *pipeline.EnrichmentConfiguration) {
	c.WithProperty("ProcessId", os.Getpid(), false)
}

// WithEventID adds a random UUID, fresh for every event, as EventId.
func WithEventID(c *pipeline.EnrichmentConfiguration) {
	c.With(pipeline.EnricherFunc(func(_ context.Context, r *slog.Record) {
		pipeline.AddIfAbsent(r, slog.String("EventId", uuid.NewString()))
	}))
}

// Register registers the enrichment actions.
func (m *Module) Register(r *registry.Registry) {
	r.RegisterMethod("WithEnvironmentVariable", WithEnvironmentVariable,
		registry.Required("environmentVariableName"), registry.Optional("propertyName", ""))
	r.RegisterMethod("WithEnvironmentVariables", WithEnvironmentVariables, registry.Optional("prefix", ""))
	r.RegisterMethod("WithMachineName", WithMachineName)
	r.RegisterMethod("WithProcessId", WithProcessID)
	r.RegisterMethod("WithEventId", WithEventID)
}
