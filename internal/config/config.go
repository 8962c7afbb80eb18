// Package config loads server configuration from an optional YAML file,
// environment variables, and command-line flags, in that order of
// precedence (flags win).
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/spf13/pflag"
)

// envPrefix namespaces environment variables, e.g. ANKI_MCP_ANKI_URL.
const envPrefix = "ANKI_MCP_"

// Config is the full server configuration.
type Config struct {
	Anki struct {
		URL     string        `koanf:"url" validate:"required,url"`
		Timeout time.Duration `koanf:"timeout" validate:"required,gt=0"`
	} `koanf:"anki"`
	Log struct {
		Level string `koanf:"level" validate:"required,oneof=debug info warn error"`
	} `koanf:"log"`
}

// Flags returns the flag set the server accepts. Defaults declared here are
// the configuration defaults.
func Flags() *pflag.FlagSet {
	f := pflag.NewFlagSet("anki-mcp", pflag.ContinueOnError)
	f.String("config", "", "path to a YAML config file")
	f.String("anki.url", "http://localhost:8765", "AnkiConnect endpoint URL")
	f.Duration("anki.timeout", 30*time.Second, "overall timeout for AnkiConnect calls")
	f.String("log.level", "info", "log level (debug, info, warn, error)")
	return f
}

// Load resolves configuration from the file named by --config (if any),
// then the environment, then the parsed flags.
func Load(f *pflag.FlagSet) (Config, error) {
	k := koanf.New(".")

	if path, _ := f.GetString("config"); path != "" {
		if _, err := os.Stat(path); err != nil {
			return Config{}, fmt.Errorf("config file %s: %w", path, err)
		}
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return Config{}, fmt.Errorf("loading config file %s: %w", path, err)
		}
	}

	// ANKI_MCP_ANKI_URL -> anki.url
	if err := k.Load(env.Provider(envPrefix, ".", func(s string) string {
		return strings.ReplaceAll(strings.ToLower(strings.TrimPrefix(s, envPrefix)), "_", ".")
	}), nil); err != nil {
		return Config{}, fmt.Errorf("loading environment: %w", err)
	}

	if err := k.Load(posflag.Provider(f, ".", k), nil); err != nil {
		return Config{}, fmt.Errorf("loading flags: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshaling config: %w", err)
	}

	if err := validator.New().Struct(cfg); err != nil {
		return Config{}, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}
