// Package specialist invokes one named role against one model through an
// injected transport, classifies the outcome into the closed stop-reason
// vocabulary, and retries transient failures through a bounded ladder with
// per-rung model substitution.
package specialist

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Request is one model call. Instructions are an opaque payload resolved
// from the prompt registry; the transport must not interpret them.
type Request struct {
	Role         string         `json:"role"`
	Model        string         `json:"model"`
	Instructions string         `json:"instructions"`
	Input        map[string]any `json:"input"`
	TraceID      string         `json:"traceId"`
	RequestID    string         `json:"requestId"`
}

type Usage struct {
	InputTokens  int `json:"inputTokens"`
	OutputTokens int `json:"outputTokens"`
}

// Response is what a transport returns on a completed request. JSON is the
// model's structured output, nil when the model produced none.
type Response struct {
	JSON    json.RawMessage `json:"json"`
	Usage   Usage           `json:"usage"`
	CostUSD float64         `json:"costUsd"`
	Model   string          `json:"model"`
}

// Transport is the injected model-call capability. The real provider client
// lives outside the engine; tests use fakes.
type Transport interface {
	Complete(ctx context.Context, req Request) (Response, error)
}

// RateLimitError marks a provider throttling response. It is retryable and
// surfaces as rate_limited when the ladder is exhausted.
type RateLimitError struct {
	Provider   string
	RetryAfter *time.Duration
	Message    string
}

func (e *RateLimitError) Error() string {
	msg := strings.TrimSpace(e.Message)
	if msg == "" {
		msg = "rate limited"
	}
	return fmt.Sprintf("%s: %s", e.Provider, msg)
}

// ProviderError covers transport and provider-side failures that are not
// rate limits: network errors, 5xx responses, malformed frames.
type ProviderError struct {
	Provider   string
	StatusCode int
	Message    string
}

func (e *ProviderError) Error() string {
	msg := strings.TrimSpace(e.Message)
	if msg == "" {
		msg = "request failed"
	}
	return fmt.Sprintf("%s error (status=%d): %s", e.Provider, e.StatusCode, msg)
}
