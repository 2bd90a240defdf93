package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

// Format identifies a config file syntax.
type Format string

// Supported formats.
const (
	FormatYAML Format = "yaml"
	FormatTOML Format = "toml"
)

// EnvPrefix prefixes environment overrides, e.g. SKIN_RELAY_LISTEN.
const EnvPrefix = "SKIN_RELAY_"

// ErrUnknownFormat is returned for files that are neither YAML nor TOML.
var ErrUnknownFormat = errors.New("config: unsupported file extension (want .yaml, .yml or .toml)")

// envOverrides maps variables (after EnvPrefix) to the field they replace.
var envOverrides = map[string]func(*Config, string){
	"LISTEN":            func(c *Config, v string) { c.Server.Listen = v },
	"API_KEY":           func(c *Config, v string) { c.Server.APIKey = v },
	"UPSTREAM_BASE_URL": func(c *Config, v string) { c.Upstream.BaseURL = v },
	"UPSTREAM_API_KEY":  func(c *Config, v string) { c.Upstream.APIKey = v },
	"UPSTREAM_MODEL":    func(c *Config, v string) { c.Upstream.Model = v },
	"RATE_LIMIT_STORE":  func(c *Config, v string) { c.RateLimit.Store = v },
	"REDIS_ADDR":        func(c *Config, v string) { c.RateLimit.Redis.Addr = v },
	"LOG_LEVEL":         func(c *Config, v string) { c.Logging.Level = v },
	"LOG_FORMAT":        func(c *Config, v string) { c.Logging.Format = v },
}

// DetectFormat picks the format from the file extension.
func DetectFormat(path string) (Format, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return FormatYAML, nil
	case ".toml":
		return FormatTOML, nil
	default:
		return "", fmt.Errorf("%w: %s", ErrUnknownFormat, path)
	}
}

// Load reads a YAML or TOML configuration file. A .env file next to it is
// loaded first without overriding variables already set. ${VAR} references
// are expanded before parsing and SKIN_RELAY_* variables override the result.
func Load(path string) (*Config, error) {
	format, err := DetectFormat(path)
	if err != nil {
		return nil, err
	}

	loadDotEnv(filepath.Join(filepath.Dir(path), ".env"))

	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open config file %s: %w", path, err)
	}
	defer file.Close()

	return LoadFromReader(file, format)
}

// LoadFromReader parses configuration in the given format from r.
func LoadFromReader(r io.Reader, format Format) (*Config, error) {
	content, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	expanded := []byte(os.ExpandEnv(string(content)))

	var cfg Config
	switch format {
	case FormatYAML:
		if err := yaml.Unmarshal(expanded, &cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config YAML: %w", err)
		}
	case FormatTOML:
		if err := toml.Unmarshal(expanded, &cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config TOML: %w", err)
		}
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownFormat, format)
	}

	ApplyEnv(&cfg)
	return &cfg, nil
}

// LoadDefault returns Default() with environment overrides applied. It is
// used when no config file is found.
func LoadDefault() *Config {
	loadDotEnv(".env")
	cfg := Default()
	ApplyEnv(cfg)
	return cfg
}

// ApplyEnv applies SKIN_RELAY_* overrides to cfg.
func ApplyEnv(cfg *Config) {
	for name, set := range envOverrides {
		if v, ok := os.LookupEnv(EnvPrefix + name); ok && v != "" {
			set(cfg, v)
		}
	}
}

// loadDotEnv is best effort; a missing file is the common case.
func loadDotEnv(path string) {
	if _, err := os.Stat(path); err != nil {
		return
	}
	_ = godotenv.Load(path)
}
