package anthropic

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	sdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"quizqa/internal/backend"
	"quizqa/internal/services"
)

const (
	component          = "anthropic"
	defaultModel       = "claude-sonnet-4-5"
	defaultMaxTokens   = 1024
	defaultHTTPTimeout = 60 * time.Second
	statusOverloaded   = 529
)

// Config captures the settings for the Anthropic Messages API backend.
type Config struct {
	Name      string
	APIKey    string
	BaseURL   string
	Model     string
	Timeout   time.Duration
	MaxTokens int
}

// Client is a backend.Backend backed by the Anthropic SDK. SDK retries are
// disabled; each call is one HTTP request.
type Client struct {
	cfg    Config
	client sdk.Client
}

// Option customizes the client.
type Option func(*options)

type options struct {
	httpClient *http.Client
}

// WithHTTPClient overrides the HTTP client handed to the SDK.
func WithHTTPClient(client *http.Client) Option {
	return func(o *options) {
		o.httpClient = client
	}
}

// NewClient constructs a client using the supplied configuration.
func NewClient(cfg Config, opts ...Option) *Client {
	cfg.Name = strings.TrimSpace(cfg.Name)
	cfg.APIKey = strings.TrimSpace(cfg.APIKey)
	cfg.BaseURL = strings.TrimSpace(cfg.BaseURL)
	cfg.Model = strings.TrimSpace(cfg.Model)
	if cfg.Name == "" {
		cfg.Name = "anthropic"
	}
	if cfg.Model == "" {
		cfg.Model = defaultModel
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = defaultMaxTokens
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultHTTPTimeout
	}

	var o options
	for _, opt := range opts {
		opt(&o)
	}
	requestOpts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithMaxRetries(0),
		option.WithRequestTimeout(cfg.Timeout),
	}
	if cfg.BaseURL != "" {
		requestOpts = append(requestOpts, option.WithBaseURL(cfg.BaseURL))
	}
	if o.httpClient != nil {
		requestOpts = append(requestOpts, option.WithHTTPClient(o.httpClient))
	}
	return &Client{cfg: cfg, client: sdk.NewClient(requestOpts...)}
}

// Name returns the configured backend name.
func (c *Client) Name() string { return c.cfg.Name }

// Evaluate sends one evaluation request. The system instructions and the
// shared group context are sent as separate system blocks, the latter marked
// for ephemeral prompt caching so items from one group reuse it.
func (c *Client) Evaluate(ctx context.Context, req backend.Request) (backend.Response, error) {
	system := strings.TrimSpace(req.System)
	prompt := strings.TrimSpace(req.Prompt)
	if system == "" || prompt == "" {
		return backend.Response{}, services.Wrap(services.ErrPermanent, component, "evaluate", "system and item prompts are required", nil)
	}
	if c.cfg.APIKey == "" {
		return backend.Response{}, services.Wrap(services.ErrConfiguration, component, "evaluate", "api key required", nil)
	}

	blocks := []sdk.TextBlockParam{{Text: system}}
	if shared := strings.TrimSpace(req.Shared); shared != "" {
		blocks = append(blocks, sdk.TextBlockParam{Text: shared, CacheControl: sdk.NewCacheControlEphemeralParam()})
	} else {
		blocks[0].CacheControl = sdk.NewCacheControlEphemeralParam()
	}

	var reqOpts []option.RequestOption
	if req.CorrelationID != "" {
		reqOpts = append(reqOpts, option.WithHeader("X-Request-Id", req.CorrelationID))
	}
	message, err := c.client.Messages.New(ctx, sdk.MessageNewParams{
		Model:       sdk.Model(c.cfg.Model),
		MaxTokens:   int64(c.cfg.MaxTokens),
		Temperature: sdk.Float(0),
		System:      blocks,
		Messages: []sdk.MessageParam{
			sdk.NewUserMessage(sdk.NewTextBlock(prompt)),
		},
	}, reqOpts...)
	if err != nil {
		return backend.Response{}, classify(ctx, "evaluate", err)
	}

	resp := backend.Response{
		Model: string(message.Model),
		Usage: backend.Usage{
			InputTokens:       message.Usage.InputTokens,
			OutputTokens:      message.Usage.OutputTokens,
			CacheReadTokens:   message.Usage.CacheReadInputTokens,
			CacheCreateTokens: message.Usage.CacheCreationInputTokens,
		},
	}
	for _, block := range message.Content {
		if block.Type == "text" && strings.TrimSpace(block.Text) != "" {
			resp.Text = block.Text
			return resp, nil
		}
	}
	if string(message.StopReason) == "refusal" {
		return resp, services.Wrap(services.ErrPermanent, component, "evaluate", "model refused", nil)
	}
	return resp, services.Wrap(services.ErrTransient, component, "evaluate",
		fmt.Sprintf("no text content (stop_reason=%q)", message.StopReason), nil)
}

// HealthCheck issues a minimal request to verify the key and model.
func (c *Client) HealthCheck(ctx context.Context) error {
	if c.cfg.APIKey == "" {
		return services.Wrap(services.ErrConfiguration, component, "health", "api key required", nil)
	}
	message, err := c.client.Messages.New(ctx, sdk.MessageNewParams{
		Model:     sdk.Model(c.cfg.Model),
		MaxTokens: 16,
		System:    []sdk.TextBlockParam{{Text: "You must respond with JSON only."}},
		Messages: []sdk.MessageParam{
			sdk.NewUserMessage(sdk.NewTextBlock(`Respond with {"ok":true}`)),
		},
	})
	if err != nil {
		return services.Wrap(services.ErrUnavailable, component, "health", c.cfg.Name, classify(ctx, "health", err))
	}
	for _, block := range message.Content {
		if block.Type != "text" {
			continue
		}
		var parsed struct {
			OK bool `json:"ok"`
		}
		if err := json.Unmarshal([]byte(backend.ExtractJSON(block.Text)), &parsed); err == nil && parsed.OK {
			return nil
		}
		return services.Wrap(services.ErrUnavailable, component, "health", "unexpected response: "+backend.Snippet(block.Text), nil)
	}
	return services.Wrap(services.ErrUnavailable, component, "health", "no text content", nil)
}

// classify tags SDK errors: 429 and 529 are throttles, 408/409 and 5xx are
// transient, other API errors are permanent, and transport failures are
// transient unless the caller canceled.
func classify(ctx context.Context, op string, err error) error {
	var apiErr *sdk.Error
	if errors.As(err, &apiErr) {
		detail := fmt.Sprintf("http %d", apiErr.StatusCode)
		var tagged error
		switch {
		case apiErr.StatusCode == http.StatusTooManyRequests, apiErr.StatusCode == statusOverloaded:
			tagged = services.Wrap(services.ErrThrottled, component, op, detail, err)
		case apiErr.StatusCode == http.StatusRequestTimeout,
			apiErr.StatusCode == http.StatusConflict,
			apiErr.StatusCode >= http.StatusInternalServerError:
			tagged = services.Wrap(services.ErrTransient, component, op, detail, err)
		default:
			tagged = services.Wrap(services.ErrPermanent, component, op, detail, err)
		}
		if apiErr.Response != nil {
			if after, ok := retryAfter(apiErr.Response.Header); ok {
				tagged = services.WithRetryAfter(tagged, after)
			}
		}
		return tagged
	}
	if errors.Is(ctx.Err(), context.Canceled) {
		return fmt.Errorf("%s: %s: %w", component, op, ctx.Err())
	}
	return services.Wrap(services.ErrTransient, component, op, "transport", err)
}

func retryAfter(header http.Header) (time.Duration, bool) {
	if ms := strings.TrimSpace(header.Get("Retry-After-Ms")); ms != "" {
		if n, err := strconv.ParseFloat(ms, 64); err == nil && n > 0 {
			return time.Duration(n * float64(time.Millisecond)), true
		}
	}
	value := strings.TrimSpace(header.Get("Retry-After"))
	if value == "" {
		return 0, false
	}
	if seconds, err := strconv.ParseFloat(value, 64); err == nil && seconds > 0 {
		return time.Duration(seconds * float64(time.Second)), true
	}
	if when, err := http.ParseTime(value); err == nil {
		if d := time.Until(when); d > 0 {
			return d, true
		}
	}
	return 0, false
}
