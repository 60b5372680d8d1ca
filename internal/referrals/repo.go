package referrals

import (
	"context"

	"referral-backend/internal/extraction"
)

// Repo defines persistence operations for referral documents.
type Repo interface {
	Create(ctx context.Context, doc Document) error
	GetByID(ctx context.Context, practiceID, id string) (Document, error)
	ListByPractice(ctx context.Context, practiceID string, limit, offset int) ([]Document, error)
	SetStatus(ctx context.Context, id string, status Status, processingError string) error
	SetContentText(ctx context.Context, id, contentText string, status Status) error
	SetFullResult(ctx context.Context, id string, data *extraction.ReferralExtractedData, status Status, phase PhaseStatus, processingError string) error
	SetFastResult(ctx context.Context, id string, data *extraction.FastExtractedData, phase PhaseStatus, fastError string) error
	// UpdateFastStatusIf conditionally moves the fast-extraction phase to
	// next only when the stored phase is in expected, returning the number
	// of rows affected. Zero means another request holds the phase.
	UpdateFastStatusIf(ctx context.Context, id string, expected []PhaseStatus, next PhaseStatus) (int64, error)
	LinkApplied(ctx context.Context, id, patientID, consultationID string) error
	Delete(ctx context.Context, practiceID, id string) error
}
