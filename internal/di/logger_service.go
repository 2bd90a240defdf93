package di

import (
	"fmt"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/samber/do/v2"

	"github.com/omarluq/skin-relay/internal/cache"
	"github.com/omarluq/skin-relay/internal/config"
	"github.com/omarluq/skin-relay/internal/server"
)

// LoggerService wraps the zerolog logger for DI.
//
// The logger itself is built at trace level; the effective level is the
// zerolog global level, which follows logging.level across reloads.
type LoggerService struct {
	Logger *zerolog.Logger
}

// NewLogger creates the logger from configuration and makes it the default
// for the log package and the cache backends.
func NewLogger(i do.Injector) (*LoggerService, error) {
	cfgSvc := do.MustInvoke[*ConfigService](i)
	cfg := cfgSvc.Get()

	logger, err := server.NewLogger(cfg.Logging)
	if err != nil {
		return nil, fmt.Errorf("failed to create logger: %w", err)
	}
	logger = logger.Level(zerolog.TraceLevel)
	zerolog.SetGlobalLevel(cfg.Logging.ParseLevel())

	log.Logger = logger
	cache.SetLogger(&logger)

	cfgSvc.OnReload(func(newCfg *config.Config) error {
		level := newCfg.Logging.ParseLevel()
		if old := zerolog.GlobalLevel(); old != level {
			zerolog.SetGlobalLevel(level)
			logger.Info().
				Str("old_level", old.String()).
				Str("new_level", level.String()).
				Msg("log level updated via hot-reload")
		}
		return nil
	})

	return &LoggerService{Logger: &logger}, nil
}
