package referrals

import (
	"time"

	"referral-backend/internal/extraction"
)

// DocumentResponse is the outward-facing representation of a referral
// document.
type DocumentResponse struct {
	DocumentID      string                            `json:"documentId"`
	FileName        string                            `json:"fileName"`
	MimeType        string                            `json:"mimeType"`
	SizeBytes       int64                             `json:"sizeBytes"`
	Status          Status                            `json:"status"`
	HasContentText  bool                              `json:"hasContentText"`
	ExtractedData   *extraction.ReferralExtractedData `json:"extractedData,omitempty"`
	FastStatus      PhaseStatus                       `json:"fastExtractionStatus"`
	FastData        *extraction.FastExtractedData     `json:"fastExtractionData,omitempty"`
	FastError       string                            `json:"fastExtractionError,omitempty"`
	FullStatus      PhaseStatus                       `json:"fullExtractionStatus"`
	ProcessingError string                            `json:"processingError,omitempty"`
	PatientID       string                            `json:"patientId,omitempty"`
	ConsultationID  string                            `json:"consultationId,omitempty"`
	UploadedAt      time.Time                         `json:"uploadedAt"`
	UpdatedAt       time.Time                         `json:"updatedAt"`
}

func toResponse(doc Document) DocumentResponse {
	return DocumentResponse{
		DocumentID:      doc.ID,
		FileName:        doc.FileName,
		MimeType:        doc.MimeType,
		SizeBytes:       doc.SizeBytes,
		Status:          doc.Status,
		HasContentText:  doc.HasContentText(),
		ExtractedData:   doc.ExtractedData,
		FastStatus:      doc.FastStatus,
		FastData:        doc.FastData,
		FastError:       doc.FastError,
		FullStatus:      doc.FullStatus,
		ProcessingError: doc.ProcessingError,
		PatientID:       doc.PatientID,
		ConsultationID:  doc.ConsultationID,
		UploadedAt:      doc.CreatedAt,
		UpdatedAt:       doc.UpdatedAt,
	}
}

// StatusResponse is the lightweight polling payload.
type StatusResponse struct {
	DocumentID      string      `json:"documentId"`
	Status          Status      `json:"status"`
	FastStatus      PhaseStatus `json:"fastExtractionStatus"`
	FastError       string      `json:"fastExtractionError,omitempty"`
	FullStatus      PhaseStatus `json:"fullExtractionStatus"`
	ProcessingError string      `json:"processingError,omitempty"`
	UpdatedAt       time.Time   `json:"updatedAt"`
}

func toStatusResponse(doc Document) StatusResponse {
	return StatusResponse{
		DocumentID:      doc.ID,
		Status:          doc.Status,
		FastStatus:      doc.FastStatus,
		FastError:       doc.FastError,
		FullStatus:      doc.FullStatus,
		ProcessingError: doc.ProcessingError,
		UpdatedAt:       doc.UpdatedAt,
	}
}
