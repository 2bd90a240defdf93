package config

import (
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/samber/lo"
	"github.com/samber/mo"

	"github.com/omarluq/skin-relay/internal/cache"
	"github.com/omarluq/skin-relay/internal/concurrency"
	"github.com/omarluq/skin-relay/internal/health"
	"github.com/omarluq/skin-relay/internal/ratelimit"
	"github.com/omarluq/skin-relay/internal/retry"
	"github.com/omarluq/skin-relay/internal/sanitize"
	"github.com/omarluq/skin-relay/internal/upstream"
)

// RuntimeConfig gives access to the configuration in effect after hot-reload.
// Components that must observe reloads hold this instead of a *Config.
type RuntimeConfig interface {
	Get() *Config
}

// Log level constants.
const (
	LevelDebug = "debug"
	LevelInfo  = "info"
	LevelWarn  = "warn"
	LevelError = "error"
)

// Defaults.
const (
	DefaultListen       = "127.0.0.1:8787"
	DefaultBaseURL      = "https://api.openai.com/v1"
	DefaultModel        = "gpt-4o-mini"
	DefaultOperation    = "transform"
	DefaultUserHeader   = "X-User-ID"
	DefaultMaxBodyBytes = 1 << 20
)

// Config represents the complete skin-relay configuration.
type Config struct {
	Upstream  UpstreamConfig  `yaml:"upstream" toml:"upstream"`
	Server    ServerConfig    `yaml:"server" toml:"server"`
	Logging   LoggingConfig   `yaml:"logging" toml:"logging"`
	Gateway   GatewayConfig   `yaml:"gateway" toml:"gateway"`
	RateLimit RateLimitConfig `yaml:"rate_limit" toml:"rate_limit"`
	Cache     cache.Config    `yaml:"cache" toml:"cache"`
	Health    HealthConfig    `yaml:"health" toml:"health"`
}

// ServerConfig defines the HTTP listener.
type ServerConfig struct {
	Listen string `yaml:"listen" toml:"listen"`

	// APIKey, when set, is required in the x-api-key header of every /v1 request.
	APIKey string `yaml:"api_key" toml:"api_key"`

	// UserHeader names the header carrying the authenticated user ID that
	// an upstream auth proxy sets. Default: X-User-ID
	UserHeader string `yaml:"user_header" toml:"user_header"`

	// TrustUserHeader honours UserHeader without APIKey. Without either,
	// every caller is charged to the IP tier.
	TrustUserHeader bool `yaml:"trust_user_header" toml:"trust_user_header"`

	MaxBodyBytes int64 `yaml:"max_body_bytes" toml:"max_body_bytes"`

	// TrustForwardedFor takes the caller address from X-Forwarded-For.
	// Enable only behind a proxy that overwrites the header.
	TrustForwardedFor bool `yaml:"trust_forwarded_for" toml:"trust_forwarded_for"`

	EnableHTTP2 bool `yaml:"enable_http2" toml:"enable_http2"`
}

// GetListen returns the listen address with default fallback.
func (s *ServerConfig) GetListen() string {
	return lo.Ternary(s.Listen == "", DefaultListen, s.Listen)
}

// GetUserHeader returns the user header name with default fallback.
func (s *ServerConfig) GetUserHeader() string {
	return lo.Ternary(s.UserHeader == "", DefaultUserHeader, s.UserHeader)
}

// UserHeaderTrusted reports whether UserHeader identifies the caller. It
// does once service auth is on or TrustUserHeader is set.
func (s *ServerConfig) UserHeaderTrusted() bool {
	return s.TrustUserHeader || s.APIKey != ""
}

// GetMaxBodyBytes returns the request body cap, 1 MiB when unset.
func (s *ServerConfig) GetMaxBodyBytes() int64 {
	if s.MaxBodyBytes <= 0 {
		return DefaultMaxBodyBytes
	}
	return s.MaxBodyBytes
}

// GetAPIKeyOption returns the service API key if authentication is enabled.
func (s *ServerConfig) GetAPIKeyOption() mo.Option[string] {
	if s.APIKey == "" {
		return mo.None[string]()
	}
	return mo.Some(s.APIKey)
}

// UpstreamConfig addresses the completion service and bounds each call.
type UpstreamConfig struct {
	BaseURL string `yaml:"base_url" toml:"base_url"`
	Path    string `yaml:"path" toml:"path"`
	APIKey  string `yaml:"api_key" toml:"api_key"`
	Model   string `yaml:"model" toml:"model"`

	// TimeoutMS bounds each attempt. Default: 30000
	TimeoutMS int `yaml:"timeout_ms" toml:"timeout_ms"`

	// MaxRetries is the total number of attempts. Default: 3
	MaxRetries int `yaml:"max_retries" toml:"max_retries"`

	BaseDelayMS int `yaml:"base_delay_ms" toml:"base_delay_ms"`
	MaxDelayMS  int `yaml:"max_delay_ms" toml:"max_delay_ms"`

	// RPM paces outbound calls. 0 disables pacing.
	RPM int `yaml:"rpm" toml:"rpm"`

	MaxOutputTokens int `yaml:"max_output_tokens" toml:"max_output_tokens"`
}

// GetBaseURL returns the base URL with default fallback.
func (u *UpstreamConfig) GetBaseURL() string {
	return lo.Ternary(u.BaseURL == "", DefaultBaseURL, u.BaseURL)
}

// GetModel returns the model with default fallback.
func (u *UpstreamConfig) GetModel() string {
	return lo.Ternary(u.Model == "", DefaultModel, u.Model)
}

// GetTimeoutOption returns the per-attempt timeout if configured.
func (u *UpstreamConfig) GetTimeoutOption() mo.Option[time.Duration] {
	if u.TimeoutMS <= 0 {
		return mo.None[time.Duration]()
	}
	return mo.Some(time.Duration(u.TimeoutMS) * time.Millisecond)
}

// GetRPMOption returns the pacing rate if configured.
func (u *UpstreamConfig) GetRPMOption() mo.Option[int] {
	if u.RPM <= 0 {
		return mo.None[int]()
	}
	return mo.Some(u.RPM)
}

// ClientConfig converts the section for upstream.NewClient.
func (u *UpstreamConfig) ClientConfig() upstream.ClientConfig {
	return upstream.ClientConfig{
		BaseURL: u.GetBaseURL(),
		Path:    u.Path,
		APIKey:  u.APIKey,
		Model:   u.GetModel(),
	}
}

// RetryPolicy converts the section to a retry.Policy; unset fields take retry's defaults.
func (u *UpstreamConfig) RetryPolicy() retry.Policy {
	return retry.Policy{
		MaxRetries: u.MaxRetries,
		Timeout:    u.GetTimeoutOption().OrElse(0),
		BaseDelay:  time.Duration(u.BaseDelayMS) * time.Millisecond,
		MaxDelay:   time.Duration(u.MaxDelayMS) * time.Millisecond,
	}.WithDefaults()
}

// GatewayConfig tunes the transformation pipeline.
type GatewayConfig struct {
	// Operation is the operation-tier key for transformations. Default: transform
	Operation string `yaml:"operation" toml:"operation"`

	// SystemPrompt overrides the instruction template. %s is replaced with the skin.
	SystemPrompt string `yaml:"system_prompt" toml:"system_prompt"`

	// Skins is the allow-list. Empty means the built-in skins.
	Skins []string `yaml:"skins" toml:"skins"`

	ExtraInjectionPatterns []string `yaml:"extra_injection_patterns" toml:"extra_injection_patterns"`
	ExtraLeakPatterns      []string `yaml:"extra_leak_patterns" toml:"extra_leak_patterns"`

	// MaxConcurrent is the number of concurrent upstream sessions. Default: 5
	MaxConcurrent int `yaml:"max_concurrent" toml:"max_concurrent"`

	// MaxInputLength caps input text in characters. Default: 10000
	MaxInputLength int `yaml:"max_input_length" toml:"max_input_length"`
}

// GetOperation returns the operation key with default fallback.
func (g *GatewayConfig) GetOperation() string {
	return lo.Ternary(g.Operation == "", DefaultOperation, g.Operation)
}

// GetMaxConcurrent returns the concurrency limit, 5 when unset.
func (g *GatewayConfig) GetMaxConcurrent() int {
	if g.MaxConcurrent <= 0 {
		return concurrency.DefaultLimit
	}
	return g.MaxConcurrent
}

// GetMaxInputLength returns the input cap, 10000 when unset.
func (g *GatewayConfig) GetMaxInputLength() int {
	if g.MaxInputLength <= 0 {
		return sanitize.DefaultMaxLength
	}
	return g.MaxInputLength
}

// GetSkins returns the configured allow-list or the built-in skins.
func (g *GatewayConfig) GetSkins() []string {
	if len(g.Skins) == 0 {
		return sanitize.DefaultSkins
	}
	return g.Skins
}

// RateLimitConfig selects the bucket store and sizes the tiers.
type RateLimitConfig struct {
	// Store is memory (default), cache or redis.
	Store     string      `yaml:"store" toml:"store"`
	Redis     RedisConfig `yaml:"redis" toml:"redis"`
	IP        TierConfig  `yaml:"ip" toml:"ip"`
	User      TierConfig  `yaml:"user" toml:"user"`
	Operation TierConfig  `yaml:"operation" toml:"operation"`

	// SweepIntervalMS is how often the memory store drops expired buckets. Default: 60000
	SweepIntervalMS int `yaml:"sweep_interval_ms" toml:"sweep_interval_ms"`
}

// TierConfig overrides one tier. Zero fields keep the built-in value.
type TierConfig struct {
	Points        int `yaml:"points" toml:"points"`
	WindowSeconds int `yaml:"window_seconds" toml:"window_seconds"`
	BlockSeconds  int `yaml:"block_seconds" toml:"block_seconds"`
}

// RedisConfig addresses the Redis bucket store.
type RedisConfig struct {
	Addr     string `yaml:"addr" toml:"addr"`
	Password string `yaml:"password" toml:"password"`
	Prefix   string `yaml:"prefix" toml:"prefix"`
	DB       int    `yaml:"db" toml:"db"`
}

// GetStore returns the store backend with default fallback.
func (r *RateLimitConfig) GetStore() string {
	return lo.Ternary(r.Store == "", ratelimit.StoreMemory, strings.ToLower(r.Store))
}

// GetSweepInterval returns the janitor interval.
func (r *RateLimitConfig) GetSweepInterval() time.Duration {
	if r.SweepIntervalMS <= 0 {
		return ratelimit.DefaultSweepInterval
	}
	return time.Duration(r.SweepIntervalMS) * time.Millisecond
}

// Tiers merges the overrides onto ratelimit.DefaultTiers.
func (r *RateLimitConfig) Tiers() ratelimit.Tiers {
	d := ratelimit.DefaultTiers()
	return ratelimit.Tiers{
		IP:        r.IP.apply(d.IP),
		User:      r.User.apply(d.User),
		Operation: r.Operation.apply(d.Operation),
	}
}

func (t TierConfig) apply(base ratelimit.Tier) ratelimit.Tier {
	if t.Points > 0 {
		base.Points = t.Points
	}
	if t.WindowSeconds > 0 {
		base.Window = time.Duration(t.WindowSeconds) * time.Second
	}
	if t.BlockSeconds > 0 {
		base.BlockDuration = time.Duration(t.BlockSeconds) * time.Second
	}
	return base
}

// HealthConfig groups upstream health settings.
type HealthConfig struct {
	CircuitBreaker health.CircuitBreakerConfig `yaml:"circuit_breaker" toml:"circuit_breaker"`
}

// LoggingConfig defines logging behavior.
type LoggingConfig struct {
	Level  string `yaml:"level" toml:"level"`   // debug, info, warn, error
	Format string `yaml:"format" toml:"format"` // json, console, pretty
	Output string `yaml:"output" toml:"output"` // stdout, stderr, or file path
	Pretty bool   `yaml:"pretty" toml:"pretty"` // enable colored console output
}

// ParseLevel converts a string log level to zerolog.Level.
// Returns zerolog.InfoLevel if the level string is invalid.
func (l *LoggingConfig) ParseLevel() zerolog.Level {
	switch strings.ToLower(l.Level) {
	case LevelDebug:
		return zerolog.DebugLevel
	case LevelInfo:
		return zerolog.InfoLevel
	case LevelWarn:
		return zerolog.WarnLevel
	case LevelError:
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

// Default returns a configuration that runs with no file: local listener,
// in-memory buckets, local cache, console logging.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Listen:     DefaultListen,
			UserHeader: DefaultUserHeader,
		},
		Upstream: UpstreamConfig{
			BaseURL:    DefaultBaseURL,
			Model:      DefaultModel,
			TimeoutMS:  int(retry.DefaultTimeout / time.Millisecond),
			MaxRetries: retry.DefaultMaxRetries,
		},
		Gateway: GatewayConfig{
			Operation:      DefaultOperation,
			MaxConcurrent:  concurrency.DefaultLimit,
			MaxInputLength: sanitize.DefaultMaxLength,
		},
		RateLimit: RateLimitConfig{Store: ratelimit.StoreMemory},
		Cache:     cache.Config{Mode: cache.ModeSingle},
		Logging:   LoggingConfig{Level: LevelInfo, Format: "console"},
	}
}
