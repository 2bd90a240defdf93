package cache

import (
	"context"
	"fmt"
	"time"
)

// New builds the backend selected by cfg. The context bounds Olric startup
// or cluster connection and is unused by the local backends.
func New(ctx context.Context, cfg *Config) (Cache, error) {
	log := logger().With().Str("component", "cache_factory").Logger()
	start := time.Now()
	mode := cfg.GetMode()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	var (
		c   Cache
		err error
	)
	switch mode {
	case ModeSingle:
		c, err = newRistrettoCache(cfg.Ristretto.withDefaults())
	case ModeHA:
		c, err = newOlricCache(ctx, &cfg.Olric)
	case ModeDisabled:
		c = newNoopCache()
	default:
		return nil, fmt.Errorf("cache: unknown mode %q", mode)
	}
	if err != nil {
		log.Error().Err(err).Str("mode", string(mode)).Msg("cache backend initialization failed")
		return nil, err
	}

	log.Info().
		Str("mode", string(mode)).
		Dur("init_time", time.Since(start)).
		Msg("cache backend initialized")
	return c, nil
}
