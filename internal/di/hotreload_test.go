package di

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const reloadedConfig = `
server:
  listen: "127.0.0.1:0"
upstream:
  base_url: http://127.0.0.1:2
  model: other-model
  max_retries: 5
  rpm: 120
logging:
  level: error
  format: json
  output: stderr
cache:
  mode: disabled
gateway:
  max_concurrent: 7
  max_input_length: 50
  operation: rewrite
  skins: [pirate, haiku]
rate_limit:
  ip:
    points: 5
`

func TestHotReloadAppliesToServices(t *testing.T) {
	container, path := newTestContainer(t, "")

	cfgSvc := MustInvoke[*ConfigService](container)
	rlSvc := MustInvoke[*RateLimitService](container)
	concSvc := MustInvoke[*ConcurrencyService](container)
	upSvc := MustInvoke[*UpstreamService](container)
	gwSvc := MustInvoke[*GatewayService](container)

	oldInvoker := upSvc.Invoker()
	oldGateway := gwSvc.Gateway()

	writeConfig(t, path, reloadedConfig)
	cfgSvc.watcher.Reload()

	assert.Equal(t, int64(1), cfgSvc.Reloads())
	assert.Equal(t, "other-model", cfgSvc.Get().Upstream.Model)

	assert.Equal(t, 7, concSvc.Limiter.Limit())
	assert.Equal(t, 5, rlSvc.Limiter.Tiers().IP.Points)

	assert.NotSame(t, oldInvoker, upSvc.Invoker())
	assert.Equal(t, 5, upSvc.Invoker().Policy().MaxRetries)
	assert.Equal(t, 120, upSvc.Pacer.RPM())

	assert.NotSame(t, oldGateway, gwSvc.Gateway())
	assert.Equal(t, []string{"haiku", "pirate"}, gwSvc.Allowed())
	assert.Equal(t, "rewrite", gwSvc.Operation())
	assert.Equal(t, 50, gwSvc.Gateway().MaxInputLength())
}

func TestHotReloadRejectsInvalidConfig(t *testing.T) {
	container, path := newTestContainer(t, "")

	cfgSvc := MustInvoke[*ConfigService](container)
	concSvc := MustInvoke[*ConcurrencyService](container)

	writeConfig(t, path, strings.Replace(validConfig, "max_concurrent: 2", "max_concurrent: -1", 1))
	cfgSvc.watcher.Reload()

	assert.Equal(t, int64(0), cfgSvc.Reloads())
	assert.Equal(t, 2, cfgSvc.Get().Gateway.MaxConcurrent)
	assert.Equal(t, 2, concSvc.Limiter.Limit())
}

func TestHotReloadKeepsUnchangedUpstream(t *testing.T) {
	container, path := newTestContainer(t, "")

	cfgSvc := MustInvoke[*ConfigService](container)
	upSvc := MustInvoke[*UpstreamService](container)
	before := upSvc.Invoker()

	writeConfig(t, path, strings.Replace(validConfig, "max_concurrent: 2", "max_concurrent: 3", 1))
	cfgSvc.watcher.Reload()

	require.Equal(t, int64(1), cfgSvc.Reloads())
	assert.Same(t, before, upSvc.Invoker())
}
