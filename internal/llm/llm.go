// Package llm provides completion clients for the providers pensiond
// calls during reasoning, synthesis, validation, and Tier-3
// classification. One Client serves all four; callers differ only in
// the prompt they pass and the way they parse the returned text.
package llm

import (
	"context"
	"errors"
	"time"

	"github.com/fyrsmithlabs/pensiond/internal/config"
)

// Default configuration values.
const (
	defaultAnthropicBaseURL = "https://api.anthropic.com"
	defaultAnthropicModel   = "claude-3-5-sonnet-20241022"
	defaultOpenAIBaseURL    = "https://api.openai.com"
	defaultOpenAIModel      = "gpt-4o-mini"
	defaultMaxTokens        = 2048
	defaultTimeout          = 60 * time.Second
	defaultMaxRetries       = 3
	defaultBaseBackoff      = 1 * time.Second
)

// Rate limiter defaults: 50 requests per minute for both APIs.
const (
	defaultRateLimit = 50.0 / 60.0 // ~0.83 requests per second
	defaultBurst     = 5           // Allow bursts of up to 5 requests
)

// Usage reports token consumption for one completion.
type Usage struct {
	InputTokens  int
	OutputTokens int
}

// Completion is the result of one provider call, with cost attributed
// from the model's pricing table.
type Completion struct {
	Text    string
	Usage   Usage
	CostUSD float64
	Latency time.Duration
}

// Request is a single completion request. Temperature stays low across
// the service; answers about members' money should not be creative.
type Request struct {
	System      string
	Prompt      string
	MaxTokens   int
	Temperature float64
}

// Client generates completions from a single configured provider.
type Client interface {
	// Complete sends a prompt and returns the generated text with usage.
	Complete(ctx context.Context, req Request) (Completion, error)

	// Model returns the configured model identifier.
	Model() string
}

// NewClient creates a completion client from configuration.
func NewClient(cfg config.LLMConfig) (Client, error) {
	switch cfg.Provider {
	case "anthropic":
		return newAnthropicClient(cfg)
	case "openai":
		return newOpenAIClient(cfg)
	default:
		return nil, errors.New("llm provider must be anthropic or openai")
	}
}

// retryableError marks transient provider failures worth retrying.
type retryableError struct {
	err error
}

func (r *retryableError) Error() string {
	return r.err.Error()
}

func (r *retryableError) Unwrap() error {
	return r.err
}

// isRetryableError checks if an error should trigger a retry.
func isRetryableError(err error) bool {
	var re *retryableError
	return errors.As(err, &re)
}
