package server

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"strings"

	"github.com/rs/zerolog"

	"github.com/omarluq/skin-relay/internal/concurrency"
	"github.com/omarluq/skin-relay/internal/gateway"
	"github.com/omarluq/skin-relay/internal/health"
	"github.com/omarluq/skin-relay/internal/ratelimit"
)

// Transformer runs one transformation.
type Transformer interface {
	Transform(ctx context.Context, req gateway.Request) (*gateway.Result, error)
}

// LimitInspector reports bucket state without consuming points.
type LimitInspector interface {
	Info(ctx context.Context, tierName, id string) (ratelimit.Info, error)
}

// SkinLister lists the allowed skins.
type SkinLister interface {
	Allowed() []string
}

// GateStats reports concurrency gate occupancy.
type GateStats interface {
	Stats() concurrency.Stats
}

// CircuitSnapshotter reports circuit breaker states.
type CircuitSnapshotter interface {
	Snapshot() []health.TargetState
}

// Caller identifies who a request is charged to.
type Caller struct {
	IP     string
	UserID string
}

// CallerResolver extracts the caller from a request.
type CallerResolver func(r *http.Request) Caller

// HeaderCallerResolver reads the user ID from the header named by
// userHeader() and the address from RemoteAddr, or from the first
// X-Forwarded-For entry when trustForwarded() is true. An empty header name
// leaves UserID empty, so the caller is charged by address.
func HeaderCallerResolver(userHeader func() string, trustForwarded func() bool) CallerResolver {
	return func(r *http.Request) Caller {
		c := Caller{IP: clientIP(r, trustForwarded())}
		if name := userHeader(); name != "" {
			c.UserID = strings.TrimSpace(r.Header.Get(name))
		}
		return c
	}
}

func clientIP(r *http.Request, trustForwarded bool) string {
	if trustForwarded {
		if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
			first, _, _ := strings.Cut(xff, ",")
			if ip := strings.TrimSpace(first); ip != "" {
				return ip
			}
		}
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// TransformHandler serves POST /v1/transform.
type TransformHandler struct {
	gateway Transformer
	caller  CallerResolver
}

// NewTransformHandler creates a TransformHandler.
func NewTransformHandler(gw Transformer, caller CallerResolver) *TransformHandler {
	return &TransformHandler{gateway: gw, caller: caller}
}

// ServeHTTP implements http.Handler.
func (h *TransformHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var req gateway.Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		if IsBodyTooLargeError(err) {
			WriteBodyTooLargeError(w)
			return
		}
		WriteError(w, http.StatusBadRequest, ErrTypeInvalidRequest, "request body must be a JSON object")
		return
	}

	caller := h.caller(r)
	req.CallerIP = caller.IP
	req.UserID = caller.UserID

	res, err := h.gateway.Transform(r.Context(), req)
	if err != nil {
		WriteGatewayError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// LimitsResponse is returned by GET /v1/limits.
type LimitsResponse struct {
	CallerTier string         `json:"caller_tier"`
	Caller     ratelimit.Info `json:"caller"`
	Operation  ratelimit.Info `json:"operation"`
}

// LimitsHandler serves GET /v1/limits: the caller's remaining quota.
type LimitsHandler struct {
	limits    LimitInspector
	caller    CallerResolver
	operation func() string
}

// NewLimitsHandler creates a LimitsHandler.
func NewLimitsHandler(limits LimitInspector, caller CallerResolver, operation func() string) *LimitsHandler {
	return &LimitsHandler{limits: limits, caller: caller, operation: operation}
}

// ServeHTTP implements http.Handler.
func (h *LimitsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	caller := h.caller(r)
	tier, id := ratelimit.TierIP, caller.IP
	if caller.UserID != "" {
		tier, id = ratelimit.TierUser, caller.UserID
	}

	callerInfo, err := h.limits.Info(r.Context(), tier, id)
	if err == nil {
		var opInfo ratelimit.Info
		opInfo, err = h.limits.Info(r.Context(), ratelimit.TierOperation, h.operation())
		if err == nil {
			writeJSON(w, http.StatusOK, LimitsResponse{CallerTier: tier, Caller: callerInfo, Operation: opInfo})
			return
		}
	}

	zerolog.Ctx(r.Context()).Error().Err(err).Msg("rate limit lookup failed")
	WriteError(w, http.StatusServiceUnavailable, ErrTypeUpstream, "rate limit state unavailable")
}

// SkinsHandler serves GET /v1/skins.
func SkinsHandler(skins SkinLister) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string][]string{"skins": skins.Allowed()})
	}
}

// HealthResponse is returned by GET /health.
type HealthResponse struct {
	Status      string               `json:"status"`
	Circuits    []health.TargetState `json:"circuits"`
	Concurrency concurrency.Stats    `json:"concurrency"`
}

// HealthHandler serves GET /health. Status is "degraded" while any upstream
// circuit is open; the endpoint still answers 200 so the process is not
// restarted for an upstream outage.
func HealthHandler(gate GateStats, circuits CircuitSnapshotter) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		resp := HealthResponse{Status: "ok", Circuits: []health.TargetState{}}
		if gate != nil {
			resp.Concurrency = gate.Stats()
		}
		if circuits != nil {
			resp.Circuits = circuits.Snapshot()
		}
		for _, c := range resp.Circuits {
			if c.State == health.StateOpen.String() {
				resp.Status = "degraded"
			}
		}
		writeJSON(w, http.StatusOK, resp)
	}
}
