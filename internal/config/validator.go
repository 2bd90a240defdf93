package config

import (
	"net"
	"net/url"
	"strings"

	"github.com/omarluq/skin-relay/internal/cache"
	"github.com/omarluq/skin-relay/internal/ratelimit"
	"github.com/omarluq/skin-relay/internal/sanitize"
)

var validStores = map[string]bool{
	ratelimit.StoreMemory: true,
	ratelimit.StoreCache:  true,
	ratelimit.StoreRedis:  true,
}

// Valid logging levels.
var validLogLevels = map[string]bool{
	"":         true, // Empty defaults to info
	LevelDebug: true,
	LevelInfo:  true,
	LevelWarn:  true,
	LevelError: true,
}

// Valid logging formats.
var validLogFormats = map[string]bool{
	"":        true, // Empty defaults to console
	"json":    true,
	"console": true,
	"text":    true, // Alias for console
	"pretty":  true,
}

// Validate checks the configuration for errors.
// Returns a ValidationError containing all errors found, or nil if valid.
func (c *Config) Validate() error {
	errs := &ValidationError{}

	validateServer(c, errs)
	validateUpstream(c, errs)
	validateGateway(c, errs)
	validateRateLimit(c, errs)
	validateLogging(c, errs)

	if err := c.Cache.Validate(); err != nil {
		errs.Add(err.Error())
	}

	return errs.ToError()
}

func validateServer(c *Config, errs *ValidationError) {
	if c.Server.Listen != "" {
		validateListenAddress(c.Server.Listen, errs)
	}
	if c.Server.MaxBodyBytes < 0 {
		errs.Add("server.max_body_bytes must be >= 0")
	}
	if strings.ContainsAny(c.Server.UserHeader, " \t:") {
		errs.Addf("server.user_header is not a valid header name (got %q)", c.Server.UserHeader)
	}
}

// validateListenAddress validates a listen address in host:port format.
func validateListenAddress(addr string, errs *ValidationError) {
	host, port, err := net.SplitHostPort(addr)
	if err != nil {
		errs.Addf("server.listen must be in host:port format (got %q)", addr)
		return
	}

	if host != "" && net.ParseIP(host) == nil && strings.ContainsAny(host, " \t\n") {
		errs.Add("server.listen host contains invalid characters")
	}
	if port == "" {
		errs.Add("server.listen port is required")
	}
}

func validateUpstream(c *Config, errs *ValidationError) {
	u := &c.Upstream
	if parsed, err := url.Parse(u.GetBaseURL()); err != nil || parsed.Scheme == "" || parsed.Host == "" {
		errs.Addf("upstream.base_url must be an absolute URL (got %q)", u.BaseURL)
	}

	nonNegative := map[string]int{
		"upstream.timeout_ms":        u.TimeoutMS,
		"upstream.max_retries":       u.MaxRetries,
		"upstream.base_delay_ms":     u.BaseDelayMS,
		"upstream.max_delay_ms":      u.MaxDelayMS,
		"upstream.rpm":               u.RPM,
		"upstream.max_output_tokens": u.MaxOutputTokens,
	}
	for field, v := range nonNegative {
		if v < 0 {
			errs.Addf("%s must be >= 0 (got %d)", field, v)
		}
	}

	if err := u.RetryPolicy().Validate(); err != nil {
		errs.Addf("upstream: %v", err)
	}
}

func validateGateway(c *Config, errs *ValidationError) {
	g := &c.Gateway
	if g.MaxConcurrent < 0 {
		errs.Add("gateway.max_concurrent must be >= 0")
	}
	if g.MaxInputLength < 0 {
		errs.Add("gateway.max_input_length must be >= 0")
	}
	if g.SystemPrompt != "" && !strings.Contains(g.SystemPrompt, "%s") {
		errs.Add("gateway.system_prompt must contain %s for the skin name")
	}
	for i, s := range g.Skins {
		if strings.TrimSpace(s) == "" {
			errs.Addf("gateway.skins[%d] is empty", i)
		}
	}
	if _, err := sanitize.NewSanitizer(g.ExtraInjectionPatterns...); err != nil {
		errs.Addf("gateway.extra_injection_patterns: %v", err)
	}
	if _, err := sanitize.NewOutputValidator(g.ExtraLeakPatterns...); err != nil {
		errs.Addf("gateway.extra_leak_patterns: %v", err)
	}
}

func validateRateLimit(c *Config, errs *ValidationError) {
	r := &c.RateLimit
	store := r.GetStore()
	if !validStores[store] {
		errs.Addf("rate_limit.store is invalid (got %q, valid: memory, cache, redis)", r.Store)
	}
	if store == ratelimit.StoreRedis && r.Redis.Addr == "" {
		errs.Add("rate_limit.redis.addr is required when store is redis")
	}
	if store == ratelimit.StoreCache && c.Cache.GetMode() == cache.ModeDisabled {
		errs.Add("rate_limit.store=cache requires cache.mode other than disabled")
	}

	for name, t := range map[string]TierConfig{"ip": r.IP, "user": r.User, "operation": r.Operation} {
		if t.Points < 0 || t.WindowSeconds < 0 || t.BlockSeconds < 0 {
			errs.Addf("rate_limit.%s values must be >= 0", name)
		}
	}
	if r.SweepIntervalMS < 0 {
		errs.Add("rate_limit.sweep_interval_ms must be >= 0")
	}
}

func validateLogging(c *Config, errs *ValidationError) {
	if !validLogLevels[strings.ToLower(c.Logging.Level)] {
		errs.Addf("logging.level is invalid (got %q, valid: debug, info, warn, error)", c.Logging.Level)
	}
	if !validLogFormats[strings.ToLower(c.Logging.Format)] {
		errs.Addf("logging.format is invalid (got %q, valid: json, console, text, pretty)", c.Logging.Format)
	}
}
