package pipeline

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"time"

	"referral-backend/internal/llm"
	"referral-backend/internal/shared/telemetry"
)

// ExternalServiceError marks a provider failure that survived the retry
// budget. Parse and validation errors are never wrapped in it.
type ExternalServiceError struct {
	Service string
	Err     error
}

func (e *ExternalServiceError) Error() string {
	return fmt.Sprintf("%s unavailable: %v", e.Service, e.Err)
}

func (e *ExternalServiceError) Unwrap() error { return e.Err }

// generateWithRetry issues a generation call with exponential backoff. Only
// transient provider failures are retried; anything else returns on first
// occurrence.
func generateWithRetry(ctx context.Context, client llm.Client, req llm.Request, cfg llm.RetryConfig, documentID string) (llm.Response, error) {
	attempts := cfg.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}
	delay := cfg.InitialDelay

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		resp, err := client.Generate(ctx, req)
		if err == nil {
			return resp, nil
		}
		lastErr = err
		if !shouldRetry(err) || attempt == attempts {
			break
		}

		telemetry.Info("pipeline.llm.retry", map[string]any{
			"document_id": documentID,
			"model":       req.Model,
			"attempt":     attempt,
			"delay_ms":    delay.Milliseconds(),
			"err":         err.Error(),
		})
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return llm.Response{}, ctx.Err()
		}
		delay *= 2
		if cfg.MaxDelay > 0 && delay > cfg.MaxDelay {
			delay = cfg.MaxDelay
		}
	}
	return llm.Response{}, &ExternalServiceError{Service: "llm", Err: lastErr}
}

func shouldRetry(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	msg := strings.ToLower(err.Error())
	if strings.Contains(msg, "http status 5") || strings.Contains(msg, "server_error") {
		return true
	}
	if strings.Contains(msg, "timeout") && (strings.Contains(msg, "openai") || strings.Contains(msg, "llm") || strings.Contains(msg, "client.timeout")) {
		return true
	}
	if strings.Contains(msg, "connection reset") ||
		strings.Contains(msg, "connection refused") ||
		strings.Contains(msg, "connection closed") ||
		strings.Contains(msg, "broken pipe") ||
		strings.Contains(msg, "tls handshake timeout") ||
		strings.Contains(msg, "eof") {
		return true
	}

	return false
}
