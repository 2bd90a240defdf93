package di

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/samber/do/v2"

	"github.com/omarluq/skin-relay/internal/config"
	"github.com/omarluq/skin-relay/internal/gateway"
	"github.com/omarluq/skin-relay/internal/sanitize"
)

// GatewayService holds the transformation pipeline. The gateway is rebuilt
// from the gateway section on every reload; the rate limiter, concurrency
// gate and upstream invoker are shared, so quotas and queue positions
// survive the swap.
type GatewayService struct {
	current atomic.Pointer[gatewayState]
}

type gatewayState struct {
	gw    *gateway.Gateway
	skins *sanitize.SkinValidator
}

// NewGateway builds the gateway over the shared services.
func NewGateway(i do.Injector) (*GatewayService, error) {
	cfgSvc := do.MustInvoke[*ConfigService](i)
	loggerSvc := do.MustInvoke[*LoggerService](i)
	rlSvc := do.MustInvoke[*RateLimitService](i)
	concSvc := do.MustInvoke[*ConcurrencyService](i)
	upSvc := do.MustInvoke[*UpstreamService](i)

	deps := gatewayDeps{
		limiter: rlSvc.Limiter,
		gate:    concSvc.Limiter,
		invoker: upSvc,
		logger:  loggerSvc,
	}

	state, err := deps.build(cfgSvc.Get())
	if err != nil {
		return nil, err
	}
	svc := &GatewayService{}
	svc.current.Store(state)

	cfgSvc.OnReload(func(newCfg *config.Config) error {
		next, err := deps.build(newCfg)
		if err != nil {
			return err
		}
		svc.current.Store(next)
		loggerSvc.Logger.Info().
			Strs("skins", next.skins.Allowed()).
			Int("max_input_length", next.gw.MaxInputLength()).
			Str("operation", next.gw.Operation()).
			Msg("gateway rebuilt via hot-reload")
		return nil
	})

	return svc, nil
}

type gatewayDeps struct {
	limiter gateway.RateLimiter
	gate    gateway.ConcurrencyGate
	invoker gateway.Invoker
	logger  *LoggerService
}

func (d gatewayDeps) build(cfg *config.Config) (*gatewayState, error) {
	gc := &cfg.Gateway

	sanitizer, err := sanitize.NewSanitizer(gc.ExtraInjectionPatterns...)
	if err != nil {
		return nil, fmt.Errorf("gateway: injection patterns: %w", err)
	}
	output, err := sanitize.NewOutputValidator(gc.ExtraLeakPatterns...)
	if err != nil {
		return nil, fmt.Errorf("gateway: leak patterns: %w", err)
	}
	skins := sanitize.NewSkinValidator(gc.GetSkins())

	gw := gateway.New(d.limiter, d.gate, d.invoker,
		gateway.WithSanitizer(sanitizer),
		gateway.WithSkinValidator(skins),
		gateway.WithOutputValidator(output),
		gateway.WithPromptBuilder(gateway.TemplatePrompt{Template: gc.SystemPrompt}),
		gateway.WithOperation(gc.GetOperation()),
		gateway.WithMaxInputLength(gc.GetMaxInputLength()),
		gateway.WithMaxOutputTokens(cfg.Upstream.MaxOutputTokens),
		gateway.WithLogger(*d.logger.Logger),
	)
	return &gatewayState{gw: gw, skins: skins}, nil
}

// Gateway returns the gateway new requests will use.
func (s *GatewayService) Gateway() *gateway.Gateway {
	return s.current.Load().gw
}

// Transform runs req on the current gateway.
func (s *GatewayService) Transform(ctx context.Context, req gateway.Request) (*gateway.Result, error) {
	return s.Gateway().Transform(ctx, req)
}

// Allowed lists the skins the current gateway accepts.
func (s *GatewayService) Allowed() []string {
	return s.current.Load().skins.Allowed()
}

// Operation returns the operation-tier key the current gateway charges.
func (s *GatewayService) Operation() string {
	return s.Gateway().Operation()
}
