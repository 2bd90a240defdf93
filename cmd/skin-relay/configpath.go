package main

import (
	"os"
	"path/filepath"

	"github.com/omarluq/skin-relay/internal/config"
)

// resolveConfigPath returns --config if set, otherwise the first default
// location holding a config file. An empty result means none was found and
// the built-in defaults apply.
func resolveConfigPath() string {
	if cfgFile != "" {
		return cfgFile
	}
	wd, err := os.Getwd()
	if err != nil {
		wd = "."
	}
	home, err := os.UserHomeDir()
	if err != nil {
		home = ""
	}
	return findConfigIn(wd, home)
}

// findConfigIn looks for config.yaml in dir, then under
// home/.config/skin-relay.
func findConfigIn(dir, home string) string {
	candidates := []string{filepath.Join(dir, defaultConfigFile)}
	if home != "" {
		candidates = append(candidates, defaultConfigPath(home))
	}
	for _, p := range candidates {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return ""
}

func defaultConfigPath(home string) string {
	return filepath.Join(home, ".config", appName, defaultConfigFile)
}

// loadConfig loads and validates path, or the defaults when path is empty.
func loadConfig(path string) (*config.Config, error) {
	var cfg *config.Config
	if path == "" {
		cfg = config.LoadDefault()
	} else {
		var err error
		if cfg, err = config.Load(path); err != nil {
			return nil, err
		}
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}
