package server_test

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"

	"github.com/omarluq/skin-relay/internal/concurrency"
	"github.com/omarluq/skin-relay/internal/config"
	"github.com/omarluq/skin-relay/internal/gateway"
	"github.com/omarluq/skin-relay/internal/health"
	"github.com/omarluq/skin-relay/internal/ratelimit"
	"github.com/omarluq/skin-relay/internal/sanitize"
	"github.com/omarluq/skin-relay/internal/server"
	"github.com/omarluq/skin-relay/internal/upstream"
)

type stubGateway struct {
	err  error
	last gateway.Request
	mu   sync.Mutex
}

func (s *stubGateway) Transform(_ context.Context, req gateway.Request) (*gateway.Result, error) {
	s.mu.Lock()
	s.last = req
	s.mu.Unlock()
	if s.err != nil {
		return nil, s.err
	}
	in := 3
	return &gateway.Result{Output: "こんにちはやで", Skin: req.Skin, Meta: gateway.Meta{TokensIn: &in}}, nil
}

type stubLimits struct {
	err   error
	tiers []string
	ids   []string
}

func (s *stubLimits) Info(_ context.Context, tier, id string) (ratelimit.Info, error) {
	s.tiers = append(s.tiers, tier)
	s.ids = append(s.ids, id)
	if s.err != nil {
		return ratelimit.Info{}, s.err
	}
	return ratelimit.Info{RemainingPoints: 7, TotalPoints: 10, ResetTime: time.Unix(1_700_000_000, 0).UTC()}, nil
}

type stubCircuits []health.TargetState

func (s stubCircuits) Snapshot() []health.TargetState { return s }

func newHandler(t *testing.T, mutate func(*config.Config), gw server.Transformer, limits server.LimitInspector) http.Handler {
	t.Helper()
	cfg := config.Default()
	if mutate != nil {
		mutate(cfg)
	}
	return server.SetupRoutes(server.Deps{
		Config:  config.NewRuntime(cfg),
		Gateway: gw,
		Limits:  limits,
		Skins:   sanitize.NewSkinValidator(nil),
		Gate:    concurrency.NewLimiter(5),
		Logger:  zerolog.Nop(),
	})
}

func trustUserHeader(c *config.Config) { c.Server.TrustUserHeader = true }

func post(h http.Handler, body string, headers map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/v1/transform", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

const transformBody = `{"text":"Hello","skin":"kansai_banter","params":{"temperature":0.5,"length_ratio":1.2}}`

func TestTransformSuccess(t *testing.T) {
	t.Parallel()

	gw := &stubGateway{}
	h := newHandler(t, trustUserHeader, gw, &stubLimits{})
	rec := post(h, transformBody, map[string]string{"X-User-ID": "u-42"})

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "こんにちはやで", gjson.Get(rec.Body.String(), "output").String())
	assert.Equal(t, int64(3), gjson.Get(rec.Body.String(), "meta.tokens_in").Int())
	assert.False(t, gjson.Get(rec.Body.String(), "meta.tokens_out").Exists())
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))

	assert.Equal(t, "Hello", gw.last.Text)
	assert.Equal(t, "u-42", gw.last.UserID)
	assert.Equal(t, "192.0.2.1", gw.last.CallerIP)
	require.NotNil(t, gw.last.Params.Temperature)
	assert.InDelta(t, 0.5, *gw.last.Params.Temperature, 1e-9)
	assert.InDelta(t, 1.2, gw.last.Params.LengthRatio, 1e-9)
}

func TestTransformErrorMapping(t *testing.T) {
	t.Parallel()

	tests := []struct {
		err        error
		name       string
		wantType   string
		wantMsg    string
		wantStatus int
	}{
		{
			name: "rate limited",
			err: &gateway.Error{Reason: gateway.ReasonRateLimited, Stage: gateway.StageRateLimiting,
				Err: &ratelimit.RateLimitError{Tier: "ip", Key: "ip:x", RetryAfterSeconds: 17}},
			wantStatus: http.StatusTooManyRequests,
			wantType:   server.ErrTypeRateLimit,
			wantMsg:    "try again in 17 seconds",
		},
		{
			name: "validation",
			err: &gateway.Error{Reason: gateway.ReasonValidation, Stage: gateway.StageSanitizing,
				Err: &sanitize.ValidationError{Reason: sanitize.ReasonTooLong}},
			wantStatus: http.StatusBadRequest,
			wantType:   server.ErrTypeInvalidRequest,
			wantMsg:    server.MsgInvalidInput,
		},
		{
			name: "security",
			err: &gateway.Error{Reason: gateway.ReasonSecurity, Stage: gateway.StageValidating,
				Err: &sanitize.SecurityError{Reason: sanitize.ReasonSensitiveInformation}},
			wantStatus: http.StatusBadRequest,
			wantType:   server.ErrTypeInvalidRequest,
			wantMsg:    server.MsgInvalidInput,
		},
		{
			name: "upstream",
			err: &gateway.Error{Reason: gateway.ReasonUpstreamUnavailable, Stage: gateway.StageInvoking,
				Err: &upstream.UpstreamError{Attempts: 3, StatusCode: 503, Message: "internal detail"}},
			wantStatus: http.StatusBadGateway,
			wantType:   server.ErrTypeUpstream,
			wantMsg:    server.MsgTransformFailed,
		},
		{
			name:       "untagged",
			err:        errors.New("boom"),
			wantStatus: http.StatusBadGateway,
			wantType:   server.ErrTypeUpstream,
			wantMsg:    server.MsgTransformFailed,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			h := newHandler(t, nil, &stubGateway{err: tt.err}, &stubLimits{})
			rec := post(h, transformBody, nil)

			assert.Equal(t, tt.wantStatus, rec.Code)
			body := rec.Body.String()
			assert.Equal(t, "error", gjson.Get(body, "type").String())
			assert.Equal(t, tt.wantType, gjson.Get(body, "error.type").String())
			assert.Contains(t, gjson.Get(body, "error.message").String(), tt.wantMsg)
			assert.NotContains(t, body, "Hello")
			assert.NotContains(t, body, "internal detail")
		})
	}
}

func TestTransformRetryAfterHeader(t *testing.T) {
	t.Parallel()

	err := &gateway.Error{Reason: gateway.ReasonRateLimited,
		Err: &ratelimit.RateLimitError{RetryAfterSeconds: 17}}
	rec := post(newHandler(t, nil, &stubGateway{err: err}, &stubLimits{}), transformBody, nil)
	assert.Equal(t, "17", rec.Header().Get("Retry-After"))

	// Without a typed error the header still carries the one-second floor.
	err = &gateway.Error{Reason: gateway.ReasonRateLimited, Err: errors.New("no detail")}
	rec = post(newHandler(t, nil, &stubGateway{err: err}, &stubLimits{}), transformBody, nil)
	assert.Equal(t, "1", rec.Header().Get("Retry-After"))
}

func TestTransformMalformedBody(t *testing.T) {
	t.Parallel()

	rec := post(newHandler(t, nil, &stubGateway{}, &stubLimits{}), `{"text":`, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, server.ErrTypeInvalidRequest, gjson.Get(rec.Body.String(), "error.type").String())
}

func TestTransformBodyTooLarge(t *testing.T) {
	t.Parallel()

	h := newHandler(t, func(c *config.Config) { c.Server.MaxBodyBytes = 32 }, &stubGateway{}, &stubLimits{})
	rec := post(h, `{"text":"`+strings.Repeat("a", 100)+`","skin":"pirate"}`, nil)
	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
}

func TestAuthProtectsAPIRoutes(t *testing.T) {
	t.Parallel()

	h := newHandler(t, func(c *config.Config) { c.Server.APIKey = "svc-key" }, &stubGateway{}, &stubLimits{})

	assert.Equal(t, http.StatusUnauthorized, post(h, transformBody, nil).Code)
	assert.Equal(t, http.StatusOK, post(h, transformBody, map[string]string{"x-api-key": "svc-key"}).Code)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/limits", http.NoBody))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	for _, path := range []string{"/health", "/v1/skins"} {
		rec = httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, http.NoBody))
		assert.Equal(t, http.StatusOK, rec.Code, path)
	}
}

func TestForwardedForTrust(t *testing.T) {
	t.Parallel()

	headers := map[string]string{"X-Forwarded-For": "198.51.100.9, 10.0.0.1"}

	gw := &stubGateway{}
	post(newHandler(t, nil, gw, &stubLimits{}), transformBody, headers)
	assert.Equal(t, "192.0.2.1", gw.last.CallerIP)

	gw = &stubGateway{}
	post(newHandler(t, func(c *config.Config) { c.Server.TrustForwardedFor = true }, gw, &stubLimits{}),
		transformBody, headers)
	assert.Equal(t, "198.51.100.9", gw.last.CallerIP)
}

func TestLimitsEndpoint(t *testing.T) {
	t.Parallel()

	limits := &stubLimits{}
	h := newHandler(t, func(c *config.Config) {
		c.Gateway.Operation = "rewrite"
		c.Server.TrustUserHeader = true
	}, &stubGateway{}, limits)

	req := httptest.NewRequest(http.MethodGet, "/v1/limits", http.NoBody)
	req.Header.Set("X-User-ID", "u-1")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Equal(t, "user", gjson.Get(body, "caller_tier").String())
	assert.Equal(t, int64(7), gjson.Get(body, "caller.remaining_points").Int())
	assert.Equal(t, int64(10), gjson.Get(body, "operation.total_points").Int())
	assert.Equal(t, []string{ratelimit.TierUser, ratelimit.TierOperation}, limits.tiers)
	assert.Equal(t, []string{"u-1", "rewrite"}, limits.ids)
}

func TestLimitsEndpointStoreDown(t *testing.T) {
	t.Parallel()

	h := newHandler(t, nil, &stubGateway{}, &stubLimits{err: ratelimit.ErrStoreUnavailable})
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/limits", http.NoBody))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestSkinsEndpoint(t *testing.T) {
	t.Parallel()

	rec := httptest.NewRecorder()
	newHandler(t, nil, &stubGateway{}, &stubLimits{}).
		ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/skins", http.NoBody))

	require.Equal(t, http.StatusOK, rec.Code)
	skins := gjson.Get(rec.Body.String(), "skins").Array()
	assert.Len(t, skins, len(sanitize.DefaultSkins))
}

func TestHealthEndpoint(t *testing.T) {
	t.Parallel()

	gate := concurrency.NewLimiter(5)
	release, err := gate.Acquire(context.Background())
	require.NoError(t, err)
	defer release()

	h := server.HealthHandler(gate, stubCircuits{{Name: "chat", State: health.StateOpen.String()}})
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", http.NoBody))

	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Equal(t, "degraded", gjson.Get(body, "status").String())
	assert.Equal(t, int64(1), gjson.Get(body, "concurrency.active").Int())
	assert.Equal(t, int64(5), gjson.Get(body, "concurrency.limit").Int())
	assert.Equal(t, "chat", gjson.Get(body, "circuits.0.name").String())

	rec = httptest.NewRecorder()
	server.HealthHandler(nil, nil).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", http.NoBody))
	assert.Equal(t, "ok", gjson.Get(rec.Body.String(), "status").String())
}

func TestUserHeaderIgnoredWithoutTrust(t *testing.T) {
	t.Parallel()

	gw := &stubGateway{}
	post(newHandler(t, nil, gw, &stubLimits{}), transformBody, map[string]string{"X-User-ID": "u-42"})
	assert.Empty(t, gw.last.UserID)
	assert.Equal(t, "192.0.2.1", gw.last.CallerIP)

	limits := &stubLimits{}
	req := httptest.NewRequest(http.MethodGet, "/v1/limits", http.NoBody)
	req.Header.Set("X-User-ID", "u-1")
	rec := httptest.NewRecorder()
	newHandler(t, nil, &stubGateway{}, limits).ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ip", gjson.Get(rec.Body.String(), "caller_tier").String())
	assert.Equal(t, []string{ratelimit.TierIP, ratelimit.TierOperation}, limits.tiers)
}

func TestRotatingUserHeaderQuota(t *testing.T) {
	t.Parallel()

	tests := []struct {
		mutate     func(*config.Config)
		headers    map[string]string
		name       string
		wantStatus int
	}{
		{name: "default config charges the ip tier", wantStatus: http.StatusTooManyRequests},
		{name: "trusted header charges the user tier", mutate: trustUserHeader, wantStatus: http.StatusOK},
		{
			name:       "service auth enables the header",
			mutate:     func(c *config.Config) { c.Server.APIKey = "svc-key" },
			headers:    map[string]string{"x-api-key": "svc-key"},
			wantStatus: http.StatusOK,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			tiers := ratelimit.DefaultTiers()
			tiers.Operation.Points = 10_000
			limiter := ratelimit.NewLimiter(ratelimit.NewMemoryStore(ratelimit.WithSweepInterval(0)), tiers)
			defer limiter.Close()
			gw := gateway.New(limiter, concurrency.NewLimiter(5), stubInvoker{})
			h := newHandler(t, tt.mutate, gw, limiter)

			var rec *httptest.ResponseRecorder
			for i := range tiers.IP.Points + 1 {
				headers := map[string]string{"X-User-ID": fmt.Sprintf("u-%d", i)}
				for k, v := range tt.headers {
					headers[k] = v
				}
				rec = post(h, transformBody, headers)
				if i < tiers.IP.Points {
					require.Equal(t, http.StatusOK, rec.Code, "request %d", i+1)
				}
			}

			assert.Equal(t, tt.wantStatus, rec.Code)
			if tt.wantStatus == http.StatusTooManyRequests {
				assert.Equal(t, "60", rec.Header().Get("Retry-After"))
			}
		})
	}
}

type stubInvoker struct{}

func (stubInvoker) Invoke(context.Context, upstream.ChatRequest) (*upstream.ChatResponse, error) {
	return &upstream.ChatResponse{Content: "ok"}, nil
}
