// Package llm provides an OpenRouter chat completion client shared by the
// transcript analyzer and the report generator.
//
// # Entry Points
//
// NewClient: construct client from Config.
// Client.Complete: send system/user prompts, receive the reply text.
// Client.HealthCheck: verify API key and model availability.
// DecodeLLMJSON: decode JSON from a reply, tolerating code fences and prose.
//
// # Failures
//
// Each call makes exactly one HTTP request. Failures are tagged with the
// services error taxonomy so the workflow executor decides whether to retry:
// 408/504 and client timeouts are timeouts, 429 is rate limiting, other 5xx
// responses are upstream outages, and remaining 4xx responses or API error
// payloads are rejections.
//
// # Pacing
//
// When RequestsPerMinute is set, requests wait on a token bucket limiter
// before being sent. Context cancellation aborts the wait.
package llm
