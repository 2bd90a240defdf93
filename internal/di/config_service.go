package di

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"
	"github.com/samber/do/v2"

	"github.com/omarluq/skin-relay/internal/config"
)

// ConfigService holds the live configuration. Reads go through Get so
// in-flight requests keep the config they started with while new requests
// see the reloaded one.
type ConfigService struct {
	runtime *config.Runtime
	watcher *config.Watcher
	path    string
}

// Get returns the current configuration.
func (c *ConfigService) Get() *config.Config {
	return c.runtime.Get()
}

// Path returns the config file path, or "" when running on defaults.
func (c *ConfigService) Path() string {
	return c.path
}

// Reloads counts applied reloads.
func (c *ConfigService) Reloads() int64 {
	return c.runtime.Reloads()
}

// OnReload registers cb to run after a valid config has been swapped in.
// It is a no-op without a watcher.
func (c *ConfigService) OnReload(cb config.ReloadCallback) {
	if c.watcher == nil {
		return
	}
	c.watcher.OnReload(cb)
}

// StartWatching starts the file watcher in the background. Call it once the
// container is fully built; cancel ctx to stop.
func (c *ConfigService) StartWatching(ctx context.Context) {
	if c.watcher == nil {
		return
	}

	go func() {
		if err := c.watcher.Watch(ctx); err != nil {
			log.Error().Err(err).Msg("config watcher error")
		}
	}()

	log.Info().Str("path", c.path).Msg("config file watcher started")
}

// Shutdown implements do.Shutdowner.
func (c *ConfigService) Shutdown() error {
	if c.watcher != nil {
		return c.watcher.Close()
	}
	return nil
}

// NewConfig loads and validates the configuration and prepares a watcher.
// The watcher is not started until StartWatching.
func NewConfig(i do.Injector) (*ConfigService, error) {
	path := do.MustInvokeNamed[string](i, ConfigPathKey)

	var cfg *config.Config
	if path == "" {
		cfg = config.LoadDefault()
	} else {
		var err error
		cfg, err = config.Load(path)
		if err != nil {
			return nil, fmt.Errorf("failed to load config from %s: %w", path, err)
		}
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	svc := &ConfigService{runtime: config.NewRuntime(cfg), path: path}
	if path == "" {
		return svc, nil
	}

	watcher, err := config.NewWatcher(path)
	if err != nil {
		log.Warn().Err(err).Str("path", path).Msg("config watcher creation failed, hot-reload disabled")
		return svc, nil
	}
	svc.watcher = watcher

	// Registered first so every later callback observes the new config via Get.
	watcher.OnReload(func(newCfg *config.Config) error {
		svc.runtime.Store(newCfg)
		log.Info().Str("path", path).Msg("config hot-reloaded successfully")
		return nil
	})

	return svc, nil
}

var _ config.RuntimeConfig = (*ConfigService)(nil)
