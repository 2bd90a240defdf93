package di

import (
	"net/http"

	"github.com/samber/do/v2"

	"github.com/omarluq/skin-relay/internal/server"
)

// HandlerService wraps the HTTP routes.
type HandlerService struct {
	Handler http.Handler
}

// NewHandler builds the routes over the gateway and its shared services.
func NewHandler(i do.Injector) (*HandlerService, error) {
	cfgSvc := do.MustInvoke[*ConfigService](i)
	loggerSvc := do.MustInvoke[*LoggerService](i)
	gwSvc := do.MustInvoke[*GatewayService](i)
	rlSvc := do.MustInvoke[*RateLimitService](i)
	concSvc := do.MustInvoke[*ConcurrencyService](i)
	trackerSvc := do.MustInvoke[*HealthTrackerService](i)

	handler := server.SetupRoutes(server.Deps{
		Config:    cfgSvc,
		Gateway:   gwSvc,
		Limits:    rlSvc.Limiter,
		Skins:     gwSvc,
		Gate:      concSvc.Limiter,
		Circuits:  trackerSvc.Tracker,
		Operation: gwSvc.Operation,
		Logger:    *loggerSvc.Logger,
	})

	return &HandlerService{Handler: handler}, nil
}
