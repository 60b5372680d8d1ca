package pipeline

import (
	"context"
	"fmt"
	"time"

	"referral-backend/internal/extraction"
	"referral-backend/internal/llm"
	"referral-backend/internal/referrals"
	"referral-backend/internal/shared/metrics"
	"referral-backend/internal/shared/telemetry"
)

const fullMaxTokens = 2_000

// FullService runs phase-2 extraction: the complete referral context with a
// larger token budget. Unlike the fast phase, failures propagate to the
// caller after being recorded on the document.
type FullService struct {
	Repo              referrals.Repo
	LLM               llm.Client
	Model             string
	HighAccuracyModel string
	Now               func() time.Time
}

func (s *FullService) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

// Run executes full extraction. The document must be TEXT_EXTRACTED.
func (s *FullService) Run(ctx context.Context, practiceID, documentID string) (extraction.ReferralExtractedData, error) {
	doc, err := s.Repo.GetByID(ctx, practiceID, documentID)
	if err != nil {
		return extraction.ReferralExtractedData{}, err
	}
	if doc.Status != referrals.StatusTextExtracted {
		return extraction.ReferralExtractedData{}, &referrals.StateError{
			Op:      "full-extraction",
			Current: doc.Status,
			Want:    []referrals.Status{referrals.StatusTextExtracted},
		}
	}
	if !doc.HasContentText() {
		return extraction.ReferralExtractedData{}, fmt.Errorf("%w: %s", referrals.ErrNoData, documentID)
	}
	return s.extract(ctx, doc, s.Model, llm.FullRetryConfig())
}

// RetryHigherAccuracy resets a document back to TEXT_EXTRACTED, clears the
// prior result, and re-extracts with the more capable model and a patient
// retry budget.
func (s *FullService) RetryHigherAccuracy(ctx context.Context, practiceID, documentID string) (extraction.ReferralExtractedData, error) {
	doc, err := s.Repo.GetByID(ctx, practiceID, documentID)
	if err != nil {
		return extraction.ReferralExtractedData{}, err
	}
	switch doc.Status {
	case referrals.StatusTextExtracted, referrals.StatusExtracted, referrals.StatusFailed:
	default:
		return extraction.ReferralExtractedData{}, &referrals.StateError{
			Op:      "full-extraction-retry",
			Current: doc.Status,
			Want:    []referrals.Status{referrals.StatusTextExtracted, referrals.StatusExtracted, referrals.StatusFailed},
		}
	}
	if !doc.HasContentText() {
		return extraction.ReferralExtractedData{}, fmt.Errorf("%w: %s", referrals.ErrNoData, documentID)
	}

	if err := s.Repo.SetFullResult(ctx, documentID, nil, referrals.StatusTextExtracted, referrals.PhasePending, ""); err != nil {
		return extraction.ReferralExtractedData{}, err
	}
	doc.Status = referrals.StatusTextExtracted
	doc.ExtractedData = nil

	model := s.HighAccuracyModel
	if model == "" {
		model = s.Model
	}
	return s.extract(ctx, doc, model, llm.HighAccuracyRetryConfig())
}

// Retry re-runs full extraction after a failure, resetting FAILED documents
// to TEXT_EXTRACTED first.
func (s *FullService) Retry(ctx context.Context, practiceID, documentID string) (extraction.ReferralExtractedData, error) {
	doc, err := s.Repo.GetByID(ctx, practiceID, documentID)
	if err != nil {
		return extraction.ReferralExtractedData{}, err
	}
	if doc.Status == referrals.StatusFailed {
		if err := s.Repo.SetFullResult(ctx, documentID, nil, referrals.StatusTextExtracted, referrals.PhasePending, ""); err != nil {
			return extraction.ReferralExtractedData{}, err
		}
	}
	return s.Run(ctx, practiceID, documentID)
}

func (s *FullService) extract(ctx context.Context, doc referrals.Document, model string, retryCfg llm.RetryConfig) (extraction.ReferralExtractedData, error) {
	if err := s.Repo.SetFullResult(ctx, doc.ID, nil, referrals.StatusTextExtracted, referrals.PhaseProcessing, ""); err != nil {
		return extraction.ReferralExtractedData{}, err
	}

	metrics.IncFullExtractionStarted()
	startedAt := s.now()

	resp, err := generateWithRetry(ctx, s.LLM, llm.Request{
		Prompt:       buildFullPrompt(doc.ID, doc.ContentText),
		SystemPrompt: fullSystemPrompt,
		Model:        model,
		MaxTokens:    fullMaxTokens,
		Temperature:  0,
	}, retryCfg, doc.ID)
	if err != nil {
		return extraction.ReferralExtractedData{}, s.fail(ctx, doc.ID, err)
	}

	data, err := extraction.ParseFullResponse(resp.Content, model, s.now())
	if err != nil {
		return extraction.ReferralExtractedData{}, s.fail(ctx, doc.ID, err)
	}

	if err := s.Repo.SetFullResult(ctx, doc.ID, &data, referrals.StatusExtracted, referrals.PhaseComplete, ""); err != nil {
		return extraction.ReferralExtractedData{}, err
	}

	durationMs := s.now().Sub(startedAt).Milliseconds()
	metrics.IncFullExtractionCompleted()
	metrics.ObserveFullExtractionDurationMs(float64(durationMs))
	telemetry.Info("pipeline.full.completed", map[string]any{
		"document_id":        doc.ID,
		"model":              model,
		"duration_ms":        durationMs,
		"overall_confidence": data.OverallConfidence,
		"input_tokens":       resp.InputTokens,
		"output_tokens":      resp.OutputTokens,
	})
	return data, nil
}

// fail records the failure on the document, then returns the original error
// so callers see the cause.
func (s *FullService) fail(ctx context.Context, documentID string, cause error) error {
	metrics.IncFullExtractionFailed()
	telemetry.Error("pipeline.full.failed", map[string]any{
		"document_id": documentID,
		"err":         cause.Error(),
	})
	if err := s.Repo.SetFullResult(ctx, documentID, nil, referrals.StatusFailed, referrals.PhaseFailed, cause.Error()); err != nil {
		telemetry.Error("pipeline.full.mark_failed.error", map[string]any{
			"document_id": documentID,
			"err":         err.Error(),
		})
	}
	return cause
}
