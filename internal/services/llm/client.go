package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"quizqa/internal/backend"
	"quizqa/internal/services"
)

const (
	jsonResponseType   = "json_object"
	defaultHTTPTimeout = 60 * time.Second
	defaultBaseURL     = "https://openrouter.ai/api/v1/chat/completions"
	component          = "llm"
)

// Config captures the runtime settings required to talk to an
// OpenAI-compatible chat completion endpoint.
type Config struct {
	Name      string
	APIKey    string
	BaseURL   string
	Model     string
	Referer   string
	Title     string
	Timeout   time.Duration
	MaxTokens int
}

// Client is a backend.Backend for OpenAI-compatible chat completion APIs
// (OpenRouter, OpenAI, local gateways). It issues exactly one HTTP request
// per call; retries belong to the caller.
type Client struct {
	cfg        Config
	httpClient *http.Client
	now        func() time.Time
}

// Option customizes the client.
type Option func(*Client)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		if client != nil {
			c.httpClient = client
		}
	}
}

// WithClock overrides the time source used to interpret Retry-After dates.
func WithClock(now func() time.Time) Option {
	return func(c *Client) {
		if now != nil {
			c.now = now
		}
	}
}

// NewClient constructs a client using the supplied configuration.
func NewClient(cfg Config, opts ...Option) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultHTTPTimeout
	}
	client := &Client{
		cfg: Config{
			Name:      strings.TrimSpace(cfg.Name),
			APIKey:    strings.TrimSpace(cfg.APIKey),
			BaseURL:   strings.TrimSpace(cfg.BaseURL),
			Model:     strings.TrimSpace(cfg.Model),
			Referer:   strings.TrimSpace(cfg.Referer),
			Title:     strings.TrimSpace(cfg.Title),
			Timeout:   timeout,
			MaxTokens: cfg.MaxTokens,
		},
		httpClient: &http.Client{Timeout: timeout},
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(client)
	}
	if client.cfg.BaseURL == "" {
		client.cfg.BaseURL = defaultBaseURL
	}
	if client.cfg.Name == "" {
		client.cfg.Name = "openai"
	}
	return client
}

// Name returns the configured backend name.
func (c *Client) Name() string { return c.cfg.Name }

// Evaluate sends one evaluation request and returns the model's raw reply.
func (c *Client) Evaluate(ctx context.Context, req backend.Request) (backend.Response, error) {
	system := strings.TrimSpace(req.System)
	prompt := strings.TrimSpace(req.Prompt)
	if system == "" || prompt == "" {
		return backend.Response{}, services.Wrap(services.ErrPermanent, component, "evaluate", "system and item prompts are required", nil)
	}
	if c.cfg.APIKey == "" {
		return backend.Response{}, services.Wrap(services.ErrConfiguration, component, "evaluate", "api key required", nil)
	}
	// The shared context rides at the end of the system message so that
	// items from the same group share a stable prefix for provider-side
	// prompt caching.
	if shared := strings.TrimSpace(req.Shared); shared != "" {
		system = system + "\n\n" + shared
	}
	payload := chatCompletionRequest{
		Model: c.cfg.Model,
		Messages: []chatMessage{
			{Role: "system", Content: system},
			{Role: "user", Content: prompt},
		},
		Temperature:    0,
		MaxTokens:      c.cfg.MaxTokens,
		ResponseFormat: map[string]string{"type": jsonResponseType},
	}
	content, completion, err := c.complete(ctx, payload, req.CorrelationID, "evaluate")
	if err != nil {
		return backend.Response{}, err
	}
	return backend.Response{
		Text:  content,
		Model: firstNonEmpty(completion.Model, c.cfg.Model),
		Usage: completion.usage(),
	}, nil
}

// HealthCheck issues a fast ping to verify the API key and model are usable.
func (c *Client) HealthCheck(ctx context.Context) error {
	if c.cfg.APIKey == "" {
		return services.Wrap(services.ErrConfiguration, component, "health", "api key required", nil)
	}
	payload := chatCompletionRequest{
		Model: c.cfg.Model,
		Messages: []chatMessage{
			{Role: "system", Content: "You must respond with JSON only."},
			{Role: "user", Content: "Respond with {\"ok\":true}"},
		},
		Temperature:    0,
		MaxTokens:      16,
		ResponseFormat: map[string]string{"type": jsonResponseType},
	}
	content, _, err := c.complete(ctx, payload, "", "health")
	if err != nil {
		return services.Wrap(services.ErrUnavailable, component, "health", c.cfg.Name, err)
	}
	var parsed struct {
		OK bool `json:"ok"`
	}
	if err := json.Unmarshal([]byte(backend.ExtractJSON(content)), &parsed); err != nil {
		return services.Wrap(services.ErrUnavailable, component, "health", "parse payload: "+backend.Snippet(content), err)
	}
	if !parsed.OK {
		return services.Wrap(services.ErrUnavailable, component, "health", "unexpected response", nil)
	}
	return nil
}

type chatCompletionRequest struct {
	Model          string            `json:"model"`
	Messages       []chatMessage     `json:"messages"`
	Temperature    float64           `json:"temperature"`
	MaxTokens      int               `json:"max_tokens,omitempty"`
	ResponseFormat map[string]string `json:"response_format"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatCompletionResponse struct {
	Model   string `json:"model"`
	Choices []struct {
		Message chatCompletionMessage `json:"message"`
		// Some providers return the streaming schema (delta) even when
		// stream=false.
		Delta chatCompletionMessage `json:"delta"`
		// Legacy completion-style responses.
		Text         string `json:"text"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
	Usage *struct {
		PromptTokens        int64 `json:"prompt_tokens"`
		CompletionTokens    int64 `json:"completion_tokens"`
		PromptTokensDetails *struct {
			CachedTokens int64 `json:"cached_tokens"`
		} `json:"prompt_tokens_details"`
	} `json:"usage"`
	Error *apiError `json:"error"`
}

type apiError struct {
	Message string `json:"message"`
	Code    any    `json:"code"`
}

func (e *apiError) status() int {
	switch v := e.Code.(type) {
	case float64:
		return int(v)
	case string:
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
		if strings.Contains(v, "rate_limit") {
			return http.StatusTooManyRequests
		}
	}
	return 0
}

func (r chatCompletionResponse) usage() backend.Usage {
	if r.Usage == nil {
		return backend.Usage{}
	}
	usage := backend.Usage{
		InputTokens:  r.Usage.PromptTokens,
		OutputTokens: r.Usage.CompletionTokens,
	}
	if r.Usage.PromptTokensDetails != nil {
		usage.CacheReadTokens = r.Usage.PromptTokensDetails.CachedTokens
	}
	return usage
}

type chatCompletionMessage struct {
	Content      string        `json:"content"`
	ToolCalls    []toolCall    `json:"tool_calls"`
	FunctionCall *functionCall `json:"function_call"`
	Refusal      string        `json:"refusal"`
}

type toolCall struct {
	Type     string       `json:"type"`
	ID       string       `json:"id"`
	Index    int          `json:"index"`
	Function functionCall `json:"function"`
}

type functionCall struct {
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

func (c *Client) complete(ctx context.Context, payload chatCompletionRequest, correlationID, op string) (string, chatCompletionResponse, error) {
	completion, body, err := c.sendChatRequestOnce(ctx, payload, correlationID)
	if err != nil {
		return "", completion, err
	}
	content, finishReason := extractCompletionPayload(completion)
	if content != "" {
		return content, completion, nil
	}
	if refusal := extractCompletionRefusal(completion); refusal != "" {
		return "", completion, services.Wrap(services.ErrPermanent, component, op, "model refused: "+refusal, nil)
	}
	if len(completion.Choices) == 0 {
		return "", completion, services.Wrap(services.ErrTransient, component, op, "empty choices: "+backend.Snippet(string(body)), nil)
	}
	return "", completion, services.Wrap(services.ErrTransient, component, op,
		fmt.Sprintf("empty content (finish_reason=%q, response_snippet=%s)", finishReason, backend.Snippet(string(body))), nil)
}

func extractCompletionPayload(completion chatCompletionResponse) (string, string) {
	var finishReason string
	for _, choice := range completion.Choices {
		if finishReason == "" {
			finishReason = strings.TrimSpace(choice.FinishReason)
		}
		if content := firstNonEmpty(
			choice.Message.Content,
			choice.Delta.Content,
			choice.Text,
		); content != "" {
			return content, finishReason
		}
		if args := firstNonEmpty(
			functionCallArguments(choice.Message.FunctionCall),
			functionCallArguments(choice.Delta.FunctionCall),
		); args != "" {
			return args, finishReason
		}
		if args := firstNonEmpty(
			toolCallArguments(choice.Message.ToolCalls),
			toolCallArguments(choice.Delta.ToolCalls),
		); args != "" {
			return args, finishReason
		}
	}
	return "", finishReason
}

func extractCompletionRefusal(completion chatCompletionResponse) string {
	for _, choice := range completion.Choices {
		if refusal := firstNonEmpty(choice.Message.Refusal, choice.Delta.Refusal); refusal != "" {
			return refusal
		}
	}
	return ""
}

func functionCallArguments(fc *functionCall) string {
	if fc == nil {
		return ""
	}
	return strings.TrimSpace(fc.Arguments)
}

func toolCallArguments(calls []toolCall) string {
	for _, call := range calls {
		if args := strings.TrimSpace(call.Function.Arguments); args != "" {
			return args
		}
	}
	return ""
}

func firstNonEmpty(values ...string) string {
	for _, value := range values {
		if trimmed := strings.TrimSpace(value); trimmed != "" {
			return trimmed
		}
	}
	return ""
}

func (c *Client) sendChatRequestOnce(ctx context.Context, payload chatCompletionRequest, correlationID string) (chatCompletionResponse, []byte, error) {
	var completion chatCompletionResponse
	endpoint, err := url.JoinPath(c.cfg.BaseURL, "")
	if err != nil {
		return completion, nil, services.Wrap(services.ErrConfiguration, component, "request", "build url", err)
	}
	encoded, err := json.Marshal(payload)
	if err != nil {
		return completion, nil, services.Wrap(services.ErrPermanent, component, "request", "encode body", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(encoded))
	if err != nil {
		return completion, nil, services.Wrap(services.ErrPermanent, component, "request", "new request", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	req.Header.Set("Content-Type", "application/json")
	if c.cfg.Referer != "" {
		req.Header.Set("HTTP-Referer", c.cfg.Referer)
		req.Header.Set("Referer", c.cfg.Referer)
	}
	if c.cfg.Title != "" {
		req.Header.Set("X-Title", c.cfg.Title)
	}
	if correlationID != "" {
		req.Header.Set("X-Request-Id", correlationID)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return completion, nil, c.transportError(ctx, "http error", err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return completion, nil, c.transportError(ctx, "read body", err)
	}
	if resp.StatusCode >= http.StatusMultipleChoices {
		retryAfter, _ := parseRetryAfter(resp.Header.Get("Retry-After"), c.now())
		return completion, body, statusError(resp.StatusCode, string(body), retryAfter)
	}
	if err := json.Unmarshal(body, &completion); err != nil {
		return completion, body, services.Wrap(services.ErrTransient, component, "request",
			"decode envelope: "+backend.Snippet(string(body)), err)
	}
	if completion.Error != nil {
		return completion, body, statusError(completion.Error.status(), "api error: "+completion.Error.Message, 0)
	}
	return completion, body, nil
}

// transportError tags network failures. A caller cancellation stays untagged
// so it is reported as canceled rather than retried.
func (c *Client) transportError(ctx context.Context, message string, err error) error {
	if errors.Is(ctx.Err(), context.Canceled) {
		return fmt.Errorf("%s: %s: %w", component, message, ctx.Err())
	}
	return services.Wrap(services.ErrTransient, component, "request",
		fmt.Sprintf("%s (timeout=%s)", message, c.cfg.Timeout), err)
}

// statusError maps an HTTP status onto the error taxonomy: 429 is a throttle,
// 408 and 5xx are transient, anything else is permanent.
func statusError(status int, body string, retryAfter time.Duration) error {
	detail := fmt.Sprintf("http %d: %s", status, backend.Snippet(body))
	var err error
	switch {
	case status == http.StatusTooManyRequests:
		err = services.Wrap(services.ErrThrottled, component, "request", detail, nil)
	case status == http.StatusRequestTimeout, status >= http.StatusInternalServerError:
		err = services.Wrap(services.ErrTransient, component, "request", detail, nil)
	default:
		err = services.Wrap(services.ErrPermanent, component, "request", detail, nil)
	}
	return services.WithRetryAfter(err, retryAfter)
}

func parseRetryAfter(value string, now time.Time) (time.Duration, bool) {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0, false
	}
	if seconds, err := strconv.Atoi(value); err == nil {
		if seconds < 0 {
			return 0, false
		}
		return time.Duration(seconds) * time.Second, true
	}
	if when, err := http.ParseTime(value); err == nil {
		delay := when.Sub(now)
		if delay < 0 {
			return 0, false
		}
		return delay, true
	}
	return 0, false
}
