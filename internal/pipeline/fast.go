package pipeline

import (
	"context"
	"time"

	"referral-backend/internal/extraction"
	"referral-backend/internal/llm"
	"referral-backend/internal/referrals"
	"referral-backend/internal/shared/metrics"
	"referral-backend/internal/shared/telemetry"
)

const (
	errCodeNoData = "NO_DATA"

	fastMaxTokens = 400
)

// FastResult is what callers see from phase 1. Failures are swallowed into
// the result: callers poll phase status, they do not catch errors.
type FastResult struct {
	Status  referrals.PhaseStatus         `json:"status"`
	Data    *extraction.FastExtractedData `json:"data,omitempty"`
	Error   string                        `json:"error,omitempty"`
	Skipped bool                          `json:"skipped,omitempty"`
}

// FastService runs phase-1 identifier extraction: one bounded, low-latency
// model call asking only for name, DOB and MRN.
type FastService struct {
	Repo  referrals.Repo
	LLM   llm.Client
	Model string
	Now   func() time.Time
}

func (s *FastService) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

// Run executes fast extraction for a document. The conditional phase update
// serializes concurrent attempts: the loser observes zero affected rows and
// returns a skipped result without touching the document.
func (s *FastService) Run(ctx context.Context, practiceID, documentID string) (FastResult, error) {
	doc, err := s.Repo.GetByID(ctx, practiceID, documentID)
	if err != nil {
		return FastResult{}, err
	}

	if !doc.HasContentText() {
		return s.fail(ctx, documentID, errCodeNoData)
	}

	affected, err := s.Repo.UpdateFastStatusIf(ctx, documentID,
		[]referrals.PhaseStatus{referrals.PhasePending, referrals.PhaseFailed}, referrals.PhaseProcessing)
	if err != nil {
		return FastResult{}, err
	}
	if affected == 0 {
		telemetry.Info("pipeline.fast.already_processing", map[string]any{"document_id": documentID})
		return FastResult{Status: doc.FastStatus, Skipped: true}, nil
	}

	metrics.IncFastExtractionStarted()
	startedAt := s.now()

	resp, err := generateWithRetry(ctx, s.LLM, llm.Request{
		Prompt:       buildFastPrompt(documentID, doc.ContentText),
		SystemPrompt: fastSystemPrompt,
		Model:        s.Model,
		MaxTokens:    fastMaxTokens,
		Temperature:  0,
	}, llm.FastRetryConfig(), documentID)
	if err != nil {
		return s.fail(ctx, documentID, err.Error())
	}

	data, err := extraction.ParseFastResponse(resp.Content, s.Model, s.now())
	if err != nil {
		return s.fail(ctx, documentID, err.Error())
	}
	data.ProcessingTimeMs = s.now().Sub(startedAt).Milliseconds()

	if err := s.Repo.SetFastResult(ctx, documentID, &data, referrals.PhaseComplete, ""); err != nil {
		return FastResult{}, err
	}

	metrics.IncFastExtractionCompleted()
	metrics.ObserveFastExtractionDurationMs(float64(data.ProcessingTimeMs))
	telemetry.Info("pipeline.fast.completed", map[string]any{
		"document_id":        documentID,
		"processing_time_ms": data.ProcessingTimeMs,
		"overall_confidence": data.OverallConfidence,
	})
	return FastResult{Status: referrals.PhaseComplete, Data: &data}, nil
}

// Retry clears the prior fast result and error, then runs again. Only FAILED
// phases re-enter PENDING this way.
func (s *FastService) Retry(ctx context.Context, practiceID, documentID string) (FastResult, error) {
	doc, err := s.Repo.GetByID(ctx, practiceID, documentID)
	if err != nil {
		return FastResult{}, err
	}
	if doc.FastStatus == referrals.PhaseFailed {
		if err := s.Repo.SetFastResult(ctx, documentID, nil, referrals.PhasePending, ""); err != nil {
			return FastResult{}, err
		}
	}
	return s.Run(ctx, practiceID, documentID)
}

// fail records the error against the phase and hands back a failure result
// instead of an error.
func (s *FastService) fail(ctx context.Context, documentID, message string) (FastResult, error) {
	metrics.IncFastExtractionFailed()
	if err := s.Repo.SetFastResult(ctx, documentID, nil, referrals.PhaseFailed, message); err != nil {
		return FastResult{}, err
	}
	telemetry.Error("pipeline.fast.failed", map[string]any{
		"document_id": documentID,
		"err":         message,
	})
	return FastResult{Status: referrals.PhaseFailed, Error: message}, nil
}
