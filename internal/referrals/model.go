package referrals

import (
	"time"

	"referral-backend/internal/extraction"
)

// Document is an uploaded referral letter moving through the intake lifecycle.
type Document struct {
	ID              string
	UserID          string
	PracticeID      string
	FileName        string
	MimeType        string
	SizeBytes       int64
	StorageKey      string
	Status          Status
	ContentText     string
	ExtractedData   *extraction.ReferralExtractedData
	FastStatus      PhaseStatus
	FastData        *extraction.FastExtractedData
	FastError       string
	FullStatus      PhaseStatus
	ProcessingError string
	PatientID       string
	ConsultationID  string
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// HasContentText reports whether text extraction produced usable content.
func (d Document) HasContentText() bool {
	return d.ContentText != ""
}
