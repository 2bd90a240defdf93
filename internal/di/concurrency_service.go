package di

import (
	"github.com/samber/do/v2"

	"github.com/omarluq/skin-relay/internal/concurrency"
	"github.com/omarluq/skin-relay/internal/config"
)

// ConcurrencyService wraps the FIFO gate in front of the upstream.
type ConcurrencyService struct {
	Limiter *concurrency.Limiter
}

// NewConcurrencyService creates the gate with gateway.max_concurrent and
// resizes it on hot-reload.
func NewConcurrencyService(i do.Injector) (*ConcurrencyService, error) {
	cfgSvc := do.MustInvoke[*ConfigService](i)
	loggerSvc := do.MustInvoke[*LoggerService](i)
	cfg := cfgSvc.Get()

	svc := &ConcurrencyService{Limiter: concurrency.NewLimiter(cfg.Gateway.GetMaxConcurrent())}

	cfgSvc.OnReload(func(newCfg *config.Config) error {
		newLimit := newCfg.Gateway.GetMaxConcurrent()
		if oldLimit := svc.Limiter.Limit(); newLimit != oldLimit {
			svc.Limiter.SetLimit(newLimit)
			loggerSvc.Logger.Info().
				Int("old_limit", oldLimit).
				Int("new_limit", newLimit).
				Msg("concurrency limit updated via hot-reload")
		}
		return nil
	})

	return svc, nil
}

// Shutdown implements do.Shutdowner. Queued callers fail with
// concurrency.ErrClosed.
func (s *ConcurrencyService) Shutdown() error {
	return s.Limiter.Close()
}
