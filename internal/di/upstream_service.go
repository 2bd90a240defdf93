package di

import (
	"context"
	"sync/atomic"

	"github.com/samber/do/v2"

	"github.com/omarluq/skin-relay/internal/config"
	"github.com/omarluq/skin-relay/internal/health"
	"github.com/omarluq/skin-relay/internal/ratelimit"
	"github.com/omarluq/skin-relay/internal/upstream"
)

// UpstreamService holds the retrying invoker for the chat endpoint.
// Any change to the upstream section swaps in a new client and invoker;
// calls already running keep the one they started with. The pacer and
// the circuit breaker are shared across swaps.
type UpstreamService struct {
	Pacer   *ratelimit.Pacer
	tracker *health.Tracker
	current atomic.Pointer[upstreamState]
}

type upstreamState struct {
	invoker *upstream.Invoker
	cfg     config.UpstreamConfig
}

// NewUpstream creates the invoker from the upstream section.
func NewUpstream(i do.Injector) (*UpstreamService, error) {
	cfgSvc := do.MustInvoke[*ConfigService](i)
	trackerSvc := do.MustInvoke[*HealthTrackerService](i)
	loggerSvc := do.MustInvoke[*LoggerService](i)
	cfg := cfgSvc.Get()

	svc := &UpstreamService{
		Pacer:   ratelimit.NewPacer(cfg.Upstream.GetRPMOption().OrElse(0)),
		tracker: trackerSvc.Tracker,
	}
	svc.current.Store(svc.build(cfg.Upstream))

	cfgSvc.OnReload(func(newCfg *config.Config) error {
		old := svc.current.Load().cfg
		if newCfg.Upstream == old {
			return nil
		}
		if newCfg.Upstream.RPM != old.RPM {
			svc.Pacer.SetRPM(newCfg.Upstream.GetRPMOption().OrElse(0))
		}
		svc.current.Store(svc.build(newCfg.Upstream))
		loggerSvc.Logger.Info().
			Str("base_url", newCfg.Upstream.GetBaseURL()).
			Str("model", newCfg.Upstream.GetModel()).
			Int("max_attempts", newCfg.Upstream.RetryPolicy().MaxRetries).
			Msg("upstream client updated via hot-reload")
		return nil
	})

	return svc, nil
}

func (s *UpstreamService) build(cfg config.UpstreamConfig) *upstreamState {
	client := upstream.NewClient(cfg.ClientConfig())
	inv := upstream.NewInvoker(client,
		upstream.WithPolicy(cfg.RetryPolicy()),
		upstream.WithHealthTracker(s.tracker, upstream.DefaultTarget),
		upstream.WithPacer(s.Pacer),
	)
	return &upstreamState{invoker: inv, cfg: cfg}
}

// Invoker returns the invoker new calls will use.
func (s *UpstreamService) Invoker() *upstream.Invoker {
	return s.current.Load().invoker
}

// Invoke runs req on the current invoker.
func (s *UpstreamService) Invoke(ctx context.Context, req upstream.ChatRequest) (*upstream.ChatResponse, error) {
	return s.Invoker().Invoke(ctx, req)
}
