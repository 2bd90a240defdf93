package di

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"

	"github.com/omarluq/skin-relay/internal/ratelimit"
	"github.com/omarluq/skin-relay/internal/sanitize"
)

const validConfig = `
server:
  listen: "127.0.0.1:0"
upstream:
  base_url: http://127.0.0.1:1
  model: test-model
logging:
  level: warn
  format: json
  output: stderr
cache:
  mode: disabled
gateway:
  max_concurrent: 2
`

func writeConfig(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
}

// createTempConfigFile writes content (validConfig when empty) to a temp file.
func createTempConfigFile(t *testing.T, content string) string {
	t.Helper()
	if content == "" {
		content = validConfig
	}
	path := filepath.Join(t.TempDir(), "config.yaml")
	writeConfig(t, path, content)
	return path
}

func newTestContainer(t *testing.T, content string) (*Container, string) {
	t.Helper()
	path := createTempConfigFile(t, content)
	c, err := NewContainer(path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Shutdown() })
	return c, path
}

func TestNewContainer(t *testing.T) {
	t.Run("creates container with valid config", func(t *testing.T) {
		container, err := NewContainer(createTempConfigFile(t, ""))
		require.NoError(t, err)
		require.NotNil(t, container)
		assert.NotNil(t, container.Injector())
		assert.NoError(t, container.Shutdown())
	})

	t.Run("fails with missing config file", func(t *testing.T) {
		container, err := NewContainer("/nonexistent/config.yaml")
		assert.Error(t, err)
		assert.Nil(t, container)
		assert.Contains(t, err.Error(), "failed to load config")
	})

	t.Run("fails with invalid config", func(t *testing.T) {
		path := createTempConfigFile(t, validConfig+"rate_limit:\n  store: etcd\n")
		container, err := NewContainer(path)
		assert.Error(t, err)
		assert.Nil(t, container)
		assert.Contains(t, err.Error(), "rate_limit.store")
	})

	t.Run("empty path runs on defaults without watcher", func(t *testing.T) {
		container, err := NewContainer("")
		require.NoError(t, err)
		defer container.Shutdown()

		cfgSvc := MustInvoke[*ConfigService](container)
		assert.Empty(t, cfgSvc.Path())
		assert.Nil(t, cfgSvc.watcher)
		assert.NotEmpty(t, cfgSvc.Get().Server.GetListen())
	})
}

func TestContainerInvoke(t *testing.T) {
	container, configPath := newTestContainer(t, "")

	t.Run("Invoke resolves config service", func(t *testing.T) {
		cfgSvc, err := Invoke[*ConfigService](container)
		require.NoError(t, err)
		assert.Equal(t, "127.0.0.1:0", cfgSvc.Get().Server.Listen)
		assert.Equal(t, configPath, cfgSvc.Path())
		assert.NotNil(t, cfgSvc.watcher)
	})

	t.Run("InvokeNamed resolves config path", func(t *testing.T) {
		path, err := InvokeNamed[string](container, ConfigPathKey)
		require.NoError(t, err)
		assert.Equal(t, configPath, path)
		assert.Equal(t, configPath, MustInvokeNamed[string](container, ConfigPathKey))
	})

	t.Run("rate limiter uses memory store by default", func(t *testing.T) {
		svc := MustInvoke[*RateLimitService](container)
		assert.Equal(t, ratelimit.StoreMemory, svc.Store)
		assert.Equal(t, ratelimit.DefaultTiers(), svc.Limiter.Tiers())
	})

	t.Run("concurrency limit comes from gateway section", func(t *testing.T) {
		svc := MustInvoke[*ConcurrencyService](container)
		assert.Equal(t, 2, svc.Limiter.Limit())
	})

	t.Run("gateway uses built-in skins", func(t *testing.T) {
		svc := MustInvoke[*GatewayService](container)
		assert.ElementsMatch(t, sanitize.DefaultSkins, svc.Allowed())
		assert.Equal(t, "transform", svc.Operation())
	})

	t.Run("upstream invoker carries configured policy", func(t *testing.T) {
		svc := MustInvoke[*UpstreamService](container)
		assert.Equal(t, 3, svc.Invoker().Policy().MaxRetries)
		assert.Equal(t, 30*time.Second, svc.Invoker().Policy().Timeout)
	})

	t.Run("server listens on configured address", func(t *testing.T) {
		svc := MustInvoke[*ServerService](container)
		assert.Equal(t, "127.0.0.1:0", svc.Server.Addr())
	})

	t.Run("health check passes", func(t *testing.T) {
		assert.NoError(t, container.HealthCheck())
	})
}

func TestRateLimitStores(t *testing.T) {
	t.Run("redis", func(t *testing.T) {
		mr := miniredis.RunT(t)
		container, _ := newTestContainer(t, validConfig+fmt.Sprintf(`
rate_limit:
  store: redis
  redis:
    addr: %s
  ip:
    points: 1
`, mr.Addr()))

		svc := MustInvoke[*RateLimitService](container)
		assert.Equal(t, ratelimit.StoreRedis, svc.Store)

		ctx := context.Background()
		require.NoError(t, svc.Limiter.Consume(ctx, ratelimit.TierIP, "198.51.100.7"))
		var rlErr *ratelimit.RateLimitError
		assert.ErrorAs(t, svc.Limiter.Consume(ctx, ratelimit.TierIP, "198.51.100.7"), &rlErr)
		assert.NotEmpty(t, mr.Keys())
	})

	t.Run("cache", func(t *testing.T) {
		container, _ := newTestContainer(t, strings.Replace(validConfig, "mode: disabled", "mode: single", 1)+`
rate_limit:
  store: cache
`)

		svc := MustInvoke[*RateLimitService](container)
		assert.Equal(t, ratelimit.StoreCache, svc.Store)
		require.NoError(t, svc.Limiter.Consume(context.Background(), ratelimit.TierUser, "alice"))
		// Shutdown closes the cache twice: once through the store, once directly.
		assert.NoError(t, container.Shutdown())
	})
}

func TestContainerShutdown(t *testing.T) {
	t.Run("shutdown cleans up initialized services", func(t *testing.T) {
		container, err := NewContainer(createTempConfigFile(t, ""))
		require.NoError(t, err)

		_, err = Invoke[*ServerService](container)
		require.NoError(t, err)

		assert.NoError(t, container.Shutdown())
	})

	t.Run("ShutdownWithContext completes within timeout", func(t *testing.T) {
		container, err := NewContainer(createTempConfigFile(t, ""))
		require.NoError(t, err)
		_, err = Invoke[*GatewayService](container)
		require.NoError(t, err)

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		assert.NoError(t, container.ShutdownWithContext(ctx))
	})
}

func TestHandlerEndToEnd(t *testing.T) {
	var gotModel string
	upstreamSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		gotModel = gjson.GetBytes(body, "model").String()
		_, _ = io.WriteString(w, `{"choices":[{"message":{"content":"Ahoy, matey"}}],`+
			`"usage":{"prompt_tokens":5,"completion_tokens":3}}`)
	}))
	defer upstreamSrv.Close()

	container, _ := newTestContainer(t, strings.Replace(validConfig, "http://127.0.0.1:1", upstreamSrv.URL, 1))
	handler := MustInvoke[*HandlerService](container).Handler

	req := httptest.NewRequest(http.MethodPost, "/v1/transform",
		strings.NewReader(`{"text":"Hello there","skin":"Pirate"}`))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "Ahoy, matey", gjson.Get(rec.Body.String(), "output").String())
	assert.Equal(t, "pirate", gjson.Get(rec.Body.String(), "skin").String())
	assert.Equal(t, "test-model", gotModel)

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/limits", http.NoBody))
	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Equal(t, ratelimit.TierIP, gjson.Get(body, "caller_tier").String())
	assert.Equal(t, int64(99), gjson.Get(body, "caller.remaining_points").Int())
	assert.Equal(t, int64(ratelimit.DefaultTiers().Operation.Points-1), gjson.Get(body, "operation.remaining_points").Int())
}
