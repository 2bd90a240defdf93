// Package upstream talks to the chat-completion service that performs
// skin transformations, retrying transient failures.
package upstream

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
	"golang.org/x/oauth2"

	"github.com/omarluq/skin-relay/internal/version"
)

// Defaults for ClientConfig.
const (
	DefaultPath      = "/chat/completions"
	DefaultMaxTokens = 1024

	// maxErrorBody caps how much of an error response is read.
	maxErrorBody = 64 << 10
)

// Message is one chat turn.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ChatRequest is the provider-neutral completion request.
type ChatRequest struct {
	Temperature    *float64
	TopP           *float64
	ThinkingBudget *int
	Model          string
	Messages       []Message
	MaxTokens      int
}

// ChatResponse carries the completion text and token usage when reported.
type ChatResponse struct {
	PromptTokens     *int
	CompletionTokens *int
	Content          string
}

// ClientConfig addresses the completion endpoint.
type ClientConfig struct {
	BaseURL string
	// Path is appended to BaseURL. Default: /chat/completions
	Path   string
	APIKey string
	Model  string
}

// Endpoint returns the full completion URL.
func (c ClientConfig) Endpoint() string {
	path := c.Path
	if path == "" {
		path = DefaultPath
	}
	return strings.TrimRight(c.BaseURL, "/") + "/" + strings.TrimLeft(path, "/")
}

// Client sends completion requests. It does not retry; see Invoker.
type Client struct {
	http     *http.Client
	endpoint string
	model    string
}

// ClientOption configures a Client.
type ClientOption func(*clientOptions)

type clientOptions struct {
	transport http.RoundTripper
}

// WithTransport sets the base transport under the auth layer.
func WithTransport(rt http.RoundTripper) ClientOption {
	return func(o *clientOptions) { o.transport = rt }
}

// NewClient builds a client that authenticates with cfg.APIKey as a bearer token.
// Per-attempt deadlines come from the request context, not the http.Client.
func NewClient(cfg ClientConfig, opts ...ClientOption) *Client {
	o := clientOptions{transport: http.DefaultTransport}
	for _, opt := range opts {
		opt(&o)
	}

	rt := o.transport
	if cfg.APIKey != "" {
		rt = &oauth2.Transport{
			Source: oauth2.StaticTokenSource(&oauth2.Token{AccessToken: cfg.APIKey, TokenType: "Bearer"}),
			Base:   o.transport,
		}
	}

	return &Client{
		http:     &http.Client{Transport: rt},
		endpoint: cfg.Endpoint(),
		model:    cfg.Model,
	}
}

// Model returns the default model.
func (c *Client) Model() string { return c.model }

// Complete performs one request.
func (c *Client) Complete(ctx context.Context, req ChatRequest) (*ChatResponse, error) {
	body, err := c.encode(req)
	if err != nil {
		return nil, err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("upstream: build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")
	httpReq.Header.Set("User-Agent", version.UserAgent())

	start := time.Now()
	resp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	zerolog.Ctx(ctx).Debug().
		Int("status", resp.StatusCode).
		Dur("latency", time.Since(start)).
		Msg("upstream responded")

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return nil, &StatusError{StatusCode: resp.StatusCode, Message: errorMessage(raw)}
	}

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("upstream: read response: %w", err)
	}
	return decode(raw)
}

func (c *Client) encode(req ChatRequest) ([]byte, error) {
	model := req.Model
	if model == "" {
		model = c.model
	}
	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = DefaultMaxTokens
	}

	body := []byte(`{}`)
	var err error
	set := func(path string, value any) {
		if err == nil {
			body, err = sjson.SetBytes(body, path, value)
		}
	}

	set("model", model)
	for i, m := range req.Messages {
		prefix := "messages." + strconv.Itoa(i)
		set(prefix+".role", m.Role)
		set(prefix+".content", m.Content)
	}
	set("max_tokens", maxTokens)
	if req.Temperature != nil {
		set("temperature", *req.Temperature)
	}
	if req.TopP != nil {
		set("top_p", *req.TopP)
	}
	if req.ThinkingBudget != nil {
		set("thinking.budget_tokens", *req.ThinkingBudget)
	}

	if err != nil {
		return nil, fmt.Errorf("upstream: encode request: %w", err)
	}
	return body, nil
}

func decode(raw []byte) (*ChatResponse, error) {
	content := gjson.GetBytes(raw, "choices.0.message.content")
	if !content.Exists() || content.String() == "" {
		return nil, ErrEmptyResponse
	}

	out := &ChatResponse{Content: content.String()}
	if v := gjson.GetBytes(raw, "usage.prompt_tokens"); v.Exists() {
		n := int(v.Int())
		out.PromptTokens = &n
	}
	if v := gjson.GetBytes(raw, "usage.completion_tokens"); v.Exists() {
		n := int(v.Int())
		out.CompletionTokens = &n
	}
	return out, nil
}

// errorMessage pulls a message out of an OpenAI- or Anthropic-shaped error
// body, falling back to the trimmed text.
func errorMessage(raw []byte) string {
	if gjson.ValidBytes(raw) {
		for _, path := range []string{"error.message", "message", "error"} {
			if v := gjson.GetBytes(raw, path); v.Type == gjson.String {
				return v.String()
			}
		}
	}
	msg := strings.TrimSpace(string(raw))
	if len(msg) > 200 {
		msg = msg[:200]
	}
	return msg
}
