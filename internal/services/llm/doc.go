// Package llm is the evaluation backend for OpenAI-compatible chat completion
// APIs such as OpenRouter.
//
// # Entry Points
//
// NewClient: construct a client from Config.
// Client.Evaluate: send one evaluation request, receive the raw JSON reply.
// Client.HealthCheck: verify the API key and model are usable.
//
// # Error Tagging
//
// Every error is tagged for the retry loop: HTTP 429 (or an in-body error
// with a rate-limit code) is throttled and carries any Retry-After hint; 408,
// 5xx, network timeouts and empty completions are transient; other 4xx
// responses and refusals are permanent. The client itself never retries.
package llm
