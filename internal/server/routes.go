package server

import (
	"net/http"

	"github.com/rs/zerolog"

	"github.com/omarluq/skin-relay/internal/config"
)

// Deps are the collaborators the routes are built from. Gate, Circuits and
// Operation are optional; without Operation the operation key is read from
// Config.
type Deps struct {
	Config    config.RuntimeConfig
	Gateway   Transformer
	Limits    LimitInspector
	Skins     SkinLister
	Gate      GateStats
	Circuits  CircuitSnapshotter
	Operation func() string
	Logger    zerolog.Logger
}

// SetupRoutes builds the HTTP handler.
// Routes:
//   - POST /v1/transform - run a transformation (auth if configured)
//   - GET /v1/limits - remaining quota for the caller (auth if configured)
//   - GET /v1/skins - allowed skins
//   - GET /health - gate occupancy and circuit states
//
// The user header counts only with service auth or trust_user_header.
// Settings that can change on reload (API key, body cap, user header,
// forwarded-for trust, operation key) are read from Config per request.
func SetupRoutes(d Deps) http.Handler {
	cfg := d.Config
	caller := HeaderCallerResolver(
		func() string {
			srv := cfg.Get().Server
			if !srv.UserHeaderTrusted() {
				return ""
			}
			return srv.GetUserHeader()
		},
		func() bool { return cfg.Get().Server.TrustForwardedFor },
	)
	operation := d.Operation
	if operation == nil {
		operation = func() string { return cfg.Get().Gateway.GetOperation() }
	}

	api := []Middleware{
		RequestIDMiddleware(d.Logger),
		LoggingMiddleware(),
		AuthMiddleware(func() string { return cfg.Get().Server.APIKey }),
	}

	mux := http.NewServeMux()
	mux.Handle("POST /v1/transform", Chain(NewTransformHandler(d.Gateway, caller),
		append(api, MaxBodyBytesMiddleware(func() int64 { return cfg.Get().Server.GetMaxBodyBytes() }))...))
	mux.Handle("GET /v1/limits", Chain(NewLimitsHandler(d.Limits, caller, operation), api...))
	mux.Handle("GET /v1/skins", SkinsHandler(d.Skins))
	mux.Handle("GET /health", HealthHandler(d.Gate, d.Circuits))

	return mux
}
