package di

import (
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/samber/do/v2"

	"github.com/omarluq/skin-relay/internal/config"
	"github.com/omarluq/skin-relay/internal/ratelimit"
)

// RateLimitService wraps the three-tier limiter.
type RateLimitService struct {
	Limiter *ratelimit.Limiter
	Store   string
}

// NewRateLimitService builds the bucket store named by rate_limit.store and
// the limiter over it. Tier quotas follow hot-reloads; switching stores
// needs a restart.
func NewRateLimitService(i do.Injector) (*RateLimitService, error) {
	cfgSvc := do.MustInvoke[*ConfigService](i)
	loggerSvc := do.MustInvoke[*LoggerService](i)
	cfg := cfgSvc.Get()

	store, err := newBucketStore(i, &cfg.RateLimit)
	if err != nil {
		return nil, err
	}

	limiter := ratelimit.NewLimiter(store, cfg.RateLimit.Tiers(), ratelimit.WithLogger(*loggerSvc.Logger))
	svc := &RateLimitService{Limiter: limiter, Store: cfg.RateLimit.GetStore()}

	cfgSvc.OnReload(func(newCfg *config.Config) error {
		tiers := newCfg.RateLimit.Tiers()
		if tiers != limiter.Tiers() {
			limiter.SetTiers(tiers)
			loggerSvc.Logger.Info().
				Int("ip_points", tiers.IP.Points).
				Int("user_points", tiers.User.Points).
				Int("operation_points", tiers.Operation.Points).
				Msg("rate limit tiers updated via hot-reload")
		}
		if newStore := newCfg.RateLimit.GetStore(); newStore != svc.Store {
			loggerSvc.Logger.Warn().
				Str("current", svc.Store).
				Str("configured", newStore).
				Msg("rate limit store change requires restart")
		}
		return nil
	})

	return svc, nil
}

func newBucketStore(i do.Injector, cfg *config.RateLimitConfig) (ratelimit.Store, error) {
	switch cfg.GetStore() {
	case ratelimit.StoreMemory:
		return ratelimit.NewMemoryStore(ratelimit.WithSweepInterval(cfg.GetSweepInterval())), nil
	case ratelimit.StoreCache:
		cacheSvc, err := do.Invoke[*CacheService](i)
		if err != nil {
			return nil, err
		}
		return ratelimit.NewCacheStore(cacheSvc.Cache), nil
	case ratelimit.StoreRedis:
		client := redis.NewUniversalClient(&redis.UniversalOptions{
			Addrs:    []string{cfg.Redis.Addr},
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		return ratelimit.NewRedisStore(client, cfg.Redis.Prefix), nil
	default:
		return nil, fmt.Errorf("unknown rate limit store %q", cfg.Store)
	}
}

// Shutdown implements do.Shutdowner.
func (s *RateLimitService) Shutdown() error {
	return s.Limiter.Close()
}
