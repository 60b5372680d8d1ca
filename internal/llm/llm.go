package llm

import (
	"context"
	"errors"
	"time"
)

// Client abstracts text-generation providers.
type Client interface {
	Generate(ctx context.Context, req Request) (Response, error)
}

// Request captures a single bounded generation call.
type Request struct {
	Prompt       string
	SystemPrompt string
	Model        string
	MaxTokens    int
	Temperature  float64
}

// Response is the provider-neutral generation result.
type Response struct {
	Content      string
	InputTokens  int
	OutputTokens int
	StopReason   string
}

// RetryConfig bounds retries for transient provider failures.
type RetryConfig struct {
	MaxAttempts  int
	InitialDelay time.Duration
	MaxDelay     time.Duration
}

// FastRetryConfig is tuned for the latency-sensitive identifier extraction.
func FastRetryConfig() RetryConfig {
	return RetryConfig{MaxAttempts: 2, InitialDelay: 300 * time.Millisecond, MaxDelay: 2 * time.Second}
}

// FullRetryConfig is tuned for the larger referral-context extraction.
func FullRetryConfig() RetryConfig {
	return RetryConfig{MaxAttempts: 3, InitialDelay: time.Second, MaxDelay: 10 * time.Second}
}

// HighAccuracyRetryConfig is used for explicit re-extraction with a more
// capable model; delays are larger because latency no longer matters.
func HighAccuracyRetryConfig() RetryConfig {
	return RetryConfig{MaxAttempts: 3, InitialDelay: 3 * time.Second, MaxDelay: 30 * time.Second}
}

// ErrNotImplemented is returned by the placeholder client.
var ErrNotImplemented = errors.New("LLM not implemented")

// PlaceholderClient is a stub implementation until provider wiring is added.
type PlaceholderClient struct{}

// Generate returns ErrNotImplemented.
func (PlaceholderClient) Generate(ctx context.Context, req Request) (Response, error) {
	_ = ctx
	_ = req
	return Response{}, ErrNotImplemented
}
