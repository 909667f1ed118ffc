package config

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/knadh/koanf/parsers/toml/v2"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/spf13/pflag"
)

// Config holds all configuration for the application
type Config struct {
	Metadata  string `koanf:"metadata"` // resolved-metadata JSON document
	Policy    string `koanf:"policy"`   // policy TOML file, optional
	Why       string `koanf:"why"`      // crate identity to explain instead of auditing
	Watch     bool   `koanf:"watch"`
	WebMode   bool   `koanf:"web"`
	Port      int    `koanf:"port"`
	Verbosity string `koanf:"verbosity"`
	JSONLogs  bool   `koanf:"json-logs"`
}

// Load loads configuration from defaults, config file, environment variables, and flags.
// Priority: Flags > Env > Config File > Defaults
func Load(f *pflag.FlagSet) (*Config, error) {
	k := koanf.New(".")

	// 1. Defaults
	defaults := map[string]interface{}{
		"metadata":  "metadata.json",
		"policy":    "",
		"why":       "",
		"watch":     false,
		"web":       false,
		"port":      8080,
		"verbosity": "",
		"json-logs": false,
	}
	if err := k.Load(makeMapProvider(defaults), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	// 2. Config File (optional) - depsentry.toml
	// Ignore errors here as the file might not exist
	_ = k.Load(file.Provider("depsentry.toml"), toml.Parser())

	// 3. Environment Variables
	// Prefix: DEPSENTRY_ (e.g., DEPSENTRY_PORT=9090)
	if err := k.Load(env.Provider("DEPSENTRY_", ".", func(s string) string {
		return strings.ReplaceAll(strings.ToLower(
			strings.TrimPrefix(s, "DEPSENTRY_")), "_", ".")
	}), nil); err != nil {
		return nil, fmt.Errorf("failed to load env vars: %w", err)
	}

	// 4. Flags
	if f != nil {
		if err := k.Load(posflag.Provider(f, ".", k), nil); err != nil {
			return nil, fmt.Errorf("failed to load flags: %w", err)
		}
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &cfg, nil
}

// LogLevel maps the verbosity knob to a slog level.
func (c *Config) LogLevel() slog.Level {
	switch c.Verbosity {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Helper to use map as a provider
type mapProvider struct {
	m map[string]interface{}
}

func makeMapProvider(m map[string]interface{}) *mapProvider {
	return &mapProvider{m: m}
}

func (p *mapProvider) Read() (map[string]interface{}, error) {
	return p.m, nil
}

func (p *mapProvider) ReadBytes() ([]byte, error) {
	return nil, fmt.Errorf("not implemented")
}
