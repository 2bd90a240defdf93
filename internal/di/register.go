package di

import "github.com/samber/do/v2"

// RegisterSingletons registers all service providers as singletons.
// Services are registered in dependency order:
// 1. Config (no dependencies)
// 2. Logger (depends on Config)
// 3. Cache (depends on Config, Logger)
// 4. RateLimit (depends on Config, Logger, Cache when the store is "cache")
// 5. Concurrency (depends on Config, Logger)
// 6. HealthTracker (depends on Config, Logger)
// 7. Upstream (depends on Config, Logger, HealthTracker)
// 8. Gateway (depends on all above services)
// 9. Handler (depends on Gateway, RateLimit, Concurrency, HealthTracker)
// 10. Server (depends on Handler, Config).
func RegisterSingletons(i do.Injector) {
	do.Provide(i, NewConfig)
	do.Provide(i, NewLogger)
	do.Provide(i, NewCache)
	do.Provide(i, NewRateLimitService)
	do.Provide(i, NewConcurrencyService)
	do.Provide(i, NewHealthTracker)
	do.Provide(i, NewUpstream)
	do.Provide(i, NewGateway)
	do.Provide(i, NewHandler)
	do.Provide(i, NewHTTPServer)
}
