// Package gateway runs one text transformation through the full pipeline:
// sanitize the input, check the skin, charge the rate-limit tiers, wait for a
// concurrency slot, invoke the upstream model with retries, and screen the
// output. Each request moves strictly forward through the stages and stops at
// the first failure with a tagged *Error.
package gateway

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/omarluq/skin-relay/internal/sanitize"
	"github.com/omarluq/skin-relay/internal/upstream"
)

// Stage is a step of the transformation pipeline.
type Stage string

// Pipeline stages in order, plus the terminal failure stage.
const (
	StageIdle         Stage = "idle"
	StageSanitizing   Stage = "sanitizing"
	StageRateLimiting Stage = "rate_limiting"
	StageAwaitingSlot Stage = "awaiting_slot"
	StageInvoking     Stage = "invoking"
	StageValidating   Stage = "validating"
	StageDone         Stage = "done"
	StageFailed       Stage = "failed"
)

// DefaultOperation is the operation-tier key for transformations.
const DefaultOperation = "transform"

// Sanitizer cleans untrusted input.
type Sanitizer interface {
	Sanitize(input string, maxLength int) (string, error)
}

// SkinValidator normalizes a style identifier against the allow-list.
type SkinValidator interface {
	Validate(name string) (string, error)
}

// RateLimiter charges the caller's tiers for one request.
type RateLimiter interface {
	CheckRequest(ctx context.Context, ip, userID, operation string) error
}

// ConcurrencyGate admits a bounded number of upstream sessions.
type ConcurrencyGate interface {
	Acquire(ctx context.Context) (release func(), err error)
}

// Invoker calls the model, retrying transient failures.
type Invoker interface {
	Invoke(ctx context.Context, req upstream.ChatRequest) (*upstream.ChatResponse, error)
}

// OutputValidator screens model output.
type OutputValidator interface {
	Validate(text string) (string, error)
}

// Params tune the generation. Zero values leave the upstream defaults.
type Params struct {
	Temperature     *float64 `json:"temperature,omitempty"`
	TopP            *float64 `json:"top_p,omitempty"`
	MaxOutputTokens int      `json:"max_output_tokens,omitempty"`
	LengthRatio     float64  `json:"length_ratio,omitempty"`
}

// Request is one transformation. UserID is empty for anonymous callers.
type Request struct {
	Text     string `json:"text"`
	Skin     string `json:"skin"`
	CallerIP string `json:"-"`
	UserID   string `json:"-"`
	Params   Params `json:"params"`
}

// Meta carries token usage when the upstream reports it.
type Meta struct {
	TokensIn  *int `json:"tokens_in,omitempty"`
	TokensOut *int `json:"tokens_out,omitempty"`
}

// Result is a successful transformation.
type Result struct {
	Output string `json:"output"`
	Skin   string `json:"skin"`
	Meta   Meta   `json:"meta"`
}

// Gateway orchestrates transformations. It holds no per-request state and is
// safe for concurrent use.
type Gateway struct {
	sanitizer Sanitizer
	skins     SkinValidator
	limiter   RateLimiter
	gate      ConcurrencyGate
	invoker   Invoker
	output    OutputValidator
	prompts   PromptBuilder
	onStage   func(Stage)
	now       func() time.Time
	log       zerolog.Logger
	operation string

	maxLength       atomic.Int64
	maxOutputTokens atomic.Int64
}

// Option configures a Gateway.
type Option func(*Gateway)

// WithSanitizer replaces the default input sanitizer.
func WithSanitizer(s Sanitizer) Option {
	return func(g *Gateway) { g.sanitizer = s }
}

// WithSkinValidator replaces the default allow-list.
func WithSkinValidator(v SkinValidator) Option {
	return func(g *Gateway) { g.skins = v }
}

// WithOutputValidator replaces the default output screen.
func WithOutputValidator(v OutputValidator) Option {
	return func(g *Gateway) { g.output = v }
}

// WithPromptBuilder replaces the default prompt.
func WithPromptBuilder(p PromptBuilder) Option {
	return func(g *Gateway) { g.prompts = p }
}

// WithOperation sets the operation-tier key.
func WithOperation(op string) Option {
	return func(g *Gateway) {
		if op != "" {
			g.operation = op
		}
	}
}

// WithMaxInputLength sets the input cap in runes.
func WithMaxInputLength(n int) Option {
	return func(g *Gateway) { g.SetMaxInputLength(n) }
}

// WithMaxOutputTokens sets the token cap used when a request does not set one.
func WithMaxOutputTokens(n int) Option {
	return func(g *Gateway) { g.SetMaxOutputTokens(n) }
}

// WithLogger sets the logger used when the request context carries none.
func WithLogger(l zerolog.Logger) Option {
	return func(g *Gateway) { g.log = l }
}

// WithClock replaces time.Now for duration measurements.
func WithClock(now func() time.Time) Option {
	return func(g *Gateway) { g.now = now }
}

// WithStageHook calls fn on every stage a request enters, StageFailed included.
func WithStageHook(fn func(Stage)) Option {
	return func(g *Gateway) { g.onStage = fn }
}

// New builds a Gateway around the shared limiter, gate and invoker. The
// input, skin and output checks default to the sanitize package defaults.
func New(limiter RateLimiter, gate ConcurrencyGate, invoker Invoker, opts ...Option) *Gateway {
	g := &Gateway{
		sanitizer: sanitize.MustNewSanitizer(),
		skins:     sanitize.NewSkinValidator(nil),
		limiter:   limiter,
		gate:      gate,
		invoker:   invoker,
		output:    sanitize.MustNewOutputValidator(),
		prompts:   TemplatePrompt{},
		now:       time.Now,
		log:       zerolog.Nop(),
		operation: DefaultOperation,
	}
	g.maxLength.Store(sanitize.DefaultMaxLength)
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// SetMaxInputLength changes the input cap; n <= 0 restores the default.
func (g *Gateway) SetMaxInputLength(n int) {
	if n <= 0 {
		n = sanitize.DefaultMaxLength
	}
	g.maxLength.Store(int64(n))
}

// MaxInputLength returns the input cap in runes.
func (g *Gateway) MaxInputLength() int {
	return int(g.maxLength.Load())
}

// SetMaxOutputTokens changes the default token cap; 0 defers to the client.
func (g *Gateway) SetMaxOutputTokens(n int) {
	g.maxOutputTokens.Store(int64(max(n, 0)))
}

// Operation returns the operation-tier key.
func (g *Gateway) Operation() string {
	return g.operation
}

// Transform runs req through the pipeline. Failures are *Error values tagged
// with the stage and reason. The concurrency slot is held only around the
// upstream call and is released on every path out of it.
func (g *Gateway) Transform(ctx context.Context, req Request) (*Result, error) {
	start := g.now()
	logger := g.requestLogger(ctx, req)
	ctx = logger.WithContext(ctx)

	g.enter(StageIdle)
	logger.Info().Int("input_runes", len([]rune(req.Text))).Msg("transform started")

	result, stage, err := g.run(ctx, req)
	duration := g.now().Sub(start)

	if err != nil {
		g.enter(StageFailed)
		gwErr := &Error{Stage: stage, Reason: classify(err), Err: err}
		g.logFailure(logger, gwErr, duration)
		return nil, gwErr
	}

	g.enter(StageDone)
	ev := logger.Info().Dur("duration", duration).Int("output_runes", len([]rune(result.Output)))
	if result.Meta.TokensIn != nil {
		ev = ev.Int("tokens_in", *result.Meta.TokensIn)
	}
	if result.Meta.TokensOut != nil {
		ev = ev.Int("tokens_out", *result.Meta.TokensOut)
	}
	ev.Msg("transform succeeded")
	return result, nil
}

func (g *Gateway) run(ctx context.Context, req Request) (*Result, Stage, error) {
	g.enter(StageSanitizing)
	text, err := g.sanitizer.Sanitize(req.Text, g.MaxInputLength())
	if err != nil {
		return nil, StageSanitizing, err
	}
	skin, err := g.skins.Validate(req.Skin)
	if err != nil {
		return nil, StageSanitizing, err
	}

	g.enter(StageRateLimiting)
	if err := g.limiter.CheckRequest(ctx, req.CallerIP, req.UserID, g.operation); err != nil {
		return nil, StageRateLimiting, err
	}

	g.enter(StageAwaitingSlot)
	release, err := g.gate.Acquire(ctx)
	if err != nil {
		return nil, StageAwaitingSlot, err
	}
	resp, err := g.invoke(ctx, release, g.chatRequest(text, skin, req.Params))
	if err != nil {
		return nil, StageInvoking, err
	}

	g.enter(StageValidating)
	output, err := g.output.Validate(resp.Content)
	if err != nil {
		return nil, StageValidating, err
	}

	return &Result{
		Output: output,
		Skin:   skin,
		Meta:   Meta{TokensIn: resp.PromptTokens, TokensOut: resp.CompletionTokens},
	}, StageValidating, nil
}

// invoke owns the slot: release runs however the call ends.
func (g *Gateway) invoke(
	ctx context.Context,
	release func(),
	req upstream.ChatRequest,
) (*upstream.ChatResponse, error) {
	defer release()
	g.enter(StageInvoking)
	return g.invoker.Invoke(ctx, req)
}

func (g *Gateway) chatRequest(text, skin string, params Params) upstream.ChatRequest {
	maxTokens := params.MaxOutputTokens
	if maxTokens <= 0 {
		maxTokens = int(g.maxOutputTokens.Load())
	}
	return upstream.ChatRequest{
		Messages:    g.prompts.Build(text, skin, params),
		Temperature: params.Temperature,
		TopP:        params.TopP,
		MaxTokens:   maxTokens,
	}
}

func (g *Gateway) enter(s Stage) {
	if g.onStage != nil {
		g.onStage(s)
	}
}

// requestLogger extends the context logger (request ID and the like) or the
// gateway's own logger when the context has none.
func (g *Gateway) requestLogger(ctx context.Context, req Request) zerolog.Logger {
	base := zerolog.Ctx(ctx)
	if base.GetLevel() == zerolog.Disabled {
		base = &g.log
	}
	lc := base.With().
		Str("op", g.operation).
		Str("skin", req.Skin).
		Str("ip", req.CallerIP)
	if req.UserID != "" {
		lc = lc.Str("user", req.UserID)
	}
	return lc.Logger()
}

func (g *Gateway) logFailure(logger zerolog.Logger, gwErr *Error, duration time.Duration) {
	var ev *zerolog.Event
	switch gwErr.Reason {
	case ReasonSecurity:
		ev = logger.Warn().Bool("security_event", true)
	case ReasonRateLimited:
		ev = logger.Warn()
	case ReasonValidation:
		ev = logger.Info()
	default:
		ev = logger.Error()
	}
	ev.Str("reason", string(gwErr.Reason)).
		Str("stage", string(gwErr.Stage)).
		Dur("duration", duration).
		Err(gwErr.Err).
		Msg("transform failed")
}
