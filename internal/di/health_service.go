package di

import (
	"github.com/samber/do/v2"

	"github.com/omarluq/skin-relay/internal/health"
)

// HealthTrackerService wraps the upstream circuit breakers.
type HealthTrackerService struct {
	Tracker *health.Tracker
}

// NewHealthTracker creates the tracker from health.circuit_breaker.
// Breaker settings are read once; changing them needs a restart.
func NewHealthTracker(i do.Injector) (*HealthTrackerService, error) {
	cfgSvc := do.MustInvoke[*ConfigService](i)
	loggerSvc := do.MustInvoke[*LoggerService](i)

	tracker := health.NewTracker(cfgSvc.Get().Health.CircuitBreaker, loggerSvc.Logger)
	return &HealthTrackerService{Tracker: tracker}, nil
}
