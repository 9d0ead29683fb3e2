package app

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/pelletier/go-toml/v2"
	"github.com/vk/slogxml/internal/fsutil"
	"github.com/vk/slogxml/internal/level"
)

// Config holds all the necessary configuration for an App instance to run.
type Config struct {
	ConfigPath string // .xml or .hcl logging document

	LogFormat string
	LogLevel  string

	// Load lists modules loaded without a Using directive.
	Load []string
	// Expressions enables filter switches and expression-based actions.
	Expressions bool
	ControlPort int
}

func NewConfig(cfg Config) (*Config, error) {
	if cfg.ConfigPath == "" {
		return nil, errors.New("ConfigPath is a required configuration field and cannot be empty")
	}
	cfg.LogFormat = strings.ToLower(cfg.LogFormat)
	if cfg.LogFormat == "" {
		cfg.LogFormat = "text"
	}
	if cfg.LogFormat != "text" && cfg.LogFormat != "json" {
		return nil, errors.New("invalid log-format: must be 'text' or 'json'")
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
	}
	if _, ok := parseLogLevel(cfg.LogLevel); !ok {
		return nil, fmt.Errorf("invalid log-level %q: must be 'debug', 'info', 'warn', 'error' or a level name", cfg.LogLevel)
	}
	if cfg.ControlPort < 0 {
		return nil, errors.New("control-port must not be negative")
	}
	return &cfg, nil
}

// settingsDTO is one settings file. Nil fields leave the current value.
type settingsDTO struct {
	LogFormat   *string  `toml:"log-format"`
	LogLevel    *string  `toml:"log-level"`
	Load        []string `toml:"load"`
	Expressions *bool    `toml:"expressions"`
	ControlPort *int     `toml:"control-port"`
}

// Update applies non-nil values from a settingsDTO. Load lists accumulate.
func (c *Config) Update(dto settingsDTO) {
	if dto.LogFormat != nil {
		c.LogFormat = *dto.LogFormat
	}
	if dto.LogLevel != nil {
		c.LogLevel = *dto.LogLevel
	}
	if dto.Expressions != nil {
		c.Expressions = *dto.Expressions
	}
	if dto.ControlPort != nil {
		c.ControlPort = *dto.ControlPort
	}
	c.Load = append(c.Load, dto.Load...)
}

// ReadSettings applies the TOML settings at path: a single file, or a
// directory whose .toml files are applied in lexical order. A missing path
// is not an error.
func (c *Config) ReadSettings(path string) error {
	paths, err := fsutil.SettingsFiles(path, ".toml")
	if err != nil {
		return fmt.Errorf("failed to read settings: %w", err)
	}
	if len(paths) == 0 {
		slog.Debug("No settings found.", "path", path)
		return nil
	}
	for _, p := range paths {
		data, err := os.ReadFile(p)
		if err != nil {
			return err
		}
		var dto settingsDTO
		if err := toml.Unmarshal(data, &dto); err != nil {
			return fmt.Errorf("failed to parse %s: %w", p, err)
		}
		c.Update(dto)
	}
	return nil
}

// parseLogLevel accepts slog level names and document level names.
func parseLogLevel(s string) (slog.Level, bool) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(s)); err == nil {
		return lvl, true
	}
	if l, err := level.Parse(s); err == nil {
		return l.Slog(), true
	}
	return 0, false
}
