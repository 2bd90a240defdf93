package di

import (
	"context"
	"fmt"
	"time"

	"github.com/samber/do/v2"

	"github.com/omarluq/skin-relay/internal/cache"
)

// cacheStartTimeout bounds backend start-up, mostly olric cluster join.
const cacheStartTimeout = 30 * time.Second

// CacheService wraps the cache backend.
type CacheService struct {
	Cache cache.Cache
}

// NewCache creates the cache selected by cache.mode.
func NewCache(i do.Injector) (*CacheService, error) {
	cfgSvc := do.MustInvoke[*ConfigService](i)
	do.MustInvoke[*LoggerService](i)

	ctx, cancel := context.WithTimeout(context.Background(), cacheStartTimeout)
	defer cancel()

	cfg := cfgSvc.Get()
	c, err := cache.New(ctx, &cfg.Cache)
	if err != nil {
		return nil, fmt.Errorf("failed to create cache: %w", err)
	}

	return &CacheService{Cache: c}, nil
}

// Shutdown implements do.Shutdowner. Closing twice is harmless, which
// matters when the rate limiter's cache store closed it first.
func (c *CacheService) Shutdown() error {
	if c.Cache != nil {
		return c.Cache.Close()
	}
	return nil
}
