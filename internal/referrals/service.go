package referrals

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"

	"referral-backend/internal/audit"
	"referral-backend/internal/extract"
	"referral-backend/internal/shared/storage/object"
	"referral-backend/internal/shared/telemetry"
	"referral-backend/internal/shared/util"
)

const (
	// MaxUploadBytes is the hard cap on referral letter size.
	MaxUploadBytes = 20 << 20

	defaultListLimit = 20
	maxListLimit     = 100
)

var baseMimeTypes = map[string]struct{}{
	"application/pdf": {},
	"text/plain":      {},
}

var extendedMimeTypes = map[string]struct{}{
	"image/jpeg":      {},
	"image/png":       {},
	"image/heic":      {},
	"image/heif":      {},
	"application/rtf": {},
	"text/rtf":        {},
	"application/vnd.openxmlformats-officedocument.wordprocessingml.document": {},
}

var imageMimeTypes = map[string]struct{}{
	"image/jpeg": {},
	"image/png":  {},
	"image/heic": {},
	"image/heif": {},
}

// MimeAllowed reports whether the content type may be uploaded. Extended
// types are behind a feature flag so practices opt into photo uploads.
func MimeAllowed(contentType string, extended bool) bool {
	clean := strings.ToLower(strings.TrimSpace(strings.Split(contentType, ";")[0]))
	if _, ok := baseMimeTypes[clean]; ok {
		return true
	}
	if !extended {
		return false
	}
	_, ok := extendedMimeTypes[clean]
	return ok
}

// SignedURL is a time-limited URL for direct object access.
type SignedURL struct {
	URL       string
	ExpiresAt time.Time
}

// UploadSigner produces presigned PUT URLs for client-direct uploads.
type UploadSigner interface {
	SignUpload(ctx context.Context, storageKey, contentType string) (SignedURL, error)
}

// UploadTicket is the result of reserving an upload slot. No document record
// exists until the client confirms the upload.
type UploadTicket struct {
	DocumentID string
	StorageKey string
	UploadURL  string
	ExpiresAt  time.Time
}

// Service contains business logic for referral documents.
type Service struct {
	Repo          Repo
	Store         object.ObjectStore
	Signer        UploadSigner
	Audit         audit.Sink
	ExtendedMimes bool
}

// CreateUpload validates metadata and reserves a storage key plus presigned
// PUT URL. The lifecycle record is created later by ConfirmUpload.
func (s *Service) CreateUpload(ctx context.Context, userID, practiceID, fileName, mimeType string, sizeBytes int64) (UploadTicket, error) {
	fileName = strings.TrimSpace(fileName)
	if fileName == "" || practiceID == "" {
		return UploadTicket{}, fmt.Errorf("%w: fileName is required", ErrInvalidInput)
	}
	if !MimeAllowed(mimeType, s.ExtendedMimes) {
		return UploadTicket{}, fmt.Errorf("%w: mime type %s is not allowed", ErrInvalidInput, mimeType)
	}
	if sizeBytes <= 0 || sizeBytes > MaxUploadBytes {
		return UploadTicket{}, fmt.Errorf("%w: sizeBytes must be in (0, %d]", ErrInvalidInput, MaxUploadBytes)
	}

	sanitized, err := util.SanitizeFileName(fileName)
	if err != nil {
		return UploadTicket{}, fmt.Errorf("%w: invalid fileName", ErrInvalidInput)
	}

	docID := uuid.NewString()
	storageKey := path.Join("referrals", util.HashUserKey(practiceID), docID, sanitized)

	signed, err := s.Signer.SignUpload(ctx, storageKey, mimeType)
	if err != nil {
		return UploadTicket{}, fmt.Errorf("sign upload key=%s: %w", storageKey, err)
	}

	return UploadTicket{
		DocumentID: docID,
		StorageKey: storageKey,
		UploadURL:  signed.URL,
		ExpiresAt:  signed.ExpiresAt,
	}, nil
}

// ConfirmUpload creates the lifecycle record once the client has PUT the
// object. The document enters the lifecycle at UPLOADED with both extraction
// phases pending.
func (s *Service) ConfirmUpload(ctx context.Context, userID, practiceID, docID, storageKey, fileName, mimeType string, sizeBytes int64) (Document, error) {
	if docID == "" || storageKey == "" || strings.TrimSpace(fileName) == "" {
		return Document{}, fmt.Errorf("%w: documentId, storageKey and fileName are required", ErrInvalidInput)
	}
	if !MimeAllowed(mimeType, s.ExtendedMimes) {
		return Document{}, fmt.Errorf("%w: mime type %s is not allowed", ErrInvalidInput, mimeType)
	}
	if sizeBytes <= 0 || sizeBytes > MaxUploadBytes {
		return Document{}, fmt.Errorf("%w: sizeBytes must be in (0, %d]", ErrInvalidInput, MaxUploadBytes)
	}

	now := time.Now().UTC()
	doc := Document{
		ID:         docID,
		UserID:     userID,
		PracticeID: practiceID,
		FileName:   strings.TrimSpace(fileName),
		MimeType:   strings.ToLower(strings.TrimSpace(strings.Split(mimeType, ";")[0])),
		SizeBytes:  sizeBytes,
		StorageKey: storageKey,
		Status:     StatusUploaded,
		FastStatus: PhasePending,
		FullStatus: PhasePending,
		CreatedAt:  now,
		UpdatedAt:  now,
	}

	if err := s.Repo.Create(ctx, doc); err != nil {
		return Document{}, err
	}

	s.Audit.Record(ctx, audit.Event{
		Action:     "referral.uploaded",
		DocumentID: doc.ID,
		UserID:     userID,
		PracticeID: practiceID,
		Detail:     map[string]any{"mime_type": doc.MimeType, "size_bytes": sizeBytes},
	})
	return doc, nil
}

// ExtractText decodes the stored object into ContentText and advances the
// document to TEXT_EXTRACTED. Callers may supply providedText (OCR or manual
// transcription done outside the service), which skips decoding; image
// uploads require it since OCR is not performed here.
func (s *Service) ExtractText(ctx context.Context, practiceID, docID, providedText string) (Document, error) {
	doc, err := s.Repo.GetByID(ctx, practiceID, docID)
	if err != nil {
		return Document{}, err
	}
	if err := requireStatus("extract-text", doc, StatusUploaded); err != nil {
		return Document{}, err
	}

	text := extract.CleanText(providedText)
	if text == "" {
		text, err = s.decodeStored(ctx, doc)
		if err != nil {
			s.fail(ctx, doc, err)
			return Document{}, err
		}
	}
	if text == "" {
		err := errors.New("document produced no text")
		s.fail(ctx, doc, err)
		return Document{}, err
	}

	if err := s.Repo.SetContentText(ctx, doc.ID, text, StatusTextExtracted); err != nil {
		return Document{}, err
	}

	s.Audit.Record(ctx, audit.Event{
		Action:     "referral.text_extracted",
		DocumentID: doc.ID,
		PracticeID: practiceID,
		Detail:     map[string]any{"chars": len(text)},
	})

	doc.ContentText = text
	doc.Status = StatusTextExtracted
	return doc, nil
}

func (s *Service) decodeStored(ctx context.Context, doc Document) (string, error) {
	body, err := s.Store.Open(ctx, doc.StorageKey)
	if err != nil {
		return "", fmt.Errorf("open stored object key=%s: %w", doc.StorageKey, err)
	}
	defer body.Close()

	raw, err := io.ReadAll(io.LimitReader(body, MaxUploadBytes+1))
	if err != nil {
		return "", fmt.Errorf("read stored object key=%s: %w", doc.StorageKey, err)
	}
	if int64(len(raw)) > MaxUploadBytes {
		return "", fmt.Errorf("%w: stored object exceeds %d bytes", ErrInvalidInput, int64(MaxUploadBytes))
	}

	if _, isImage := imageMimeTypes[doc.MimeType]; isImage {
		if doc.MimeType != "image/heic" && doc.MimeType != "image/heif" {
			if err := extract.ValidateImage(raw); err != nil {
				return "", err
			}
		}
		return "", fmt.Errorf("%w: %s requires transcribed text", extract.ErrUnsupportedMime, doc.MimeType)
	}

	res, err := extract.TextFromBytes(ctx, raw, doc.MimeType, doc.FileName)
	if err != nil {
		return "", err
	}
	for _, w := range res.Warnings {
		telemetry.Info("referrals.extract_text.warning", map[string]any{
			"document_id": doc.ID,
			"warning":     w,
		})
	}
	return res.Text, nil
}

func (s *Service) fail(ctx context.Context, doc Document, cause error) {
	if err := s.Repo.SetStatus(ctx, doc.ID, StatusFailed, cause.Error()); err != nil {
		telemetry.Error("referrals.mark_failed.error", map[string]any{
			"document_id": doc.ID,
			"err":         err.Error(),
		})
	}
	s.Audit.Record(ctx, audit.Event{
		Action:     "referral.failed",
		DocumentID: doc.ID,
		PracticeID: doc.PracticeID,
		Detail:     map[string]any{"error": cause.Error()},
	})
}

// Get returns a practice-scoped document.
func (s *Service) Get(ctx context.Context, practiceID, docID string) (Document, error) {
	return s.Repo.GetByID(ctx, practiceID, docID)
}

// List returns documents for a practice, newest first.
func (s *Service) List(ctx context.Context, practiceID string, limit, offset int) ([]Document, error) {
	if limit <= 0 {
		limit = defaultListLimit
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}
	if offset < 0 {
		offset = 0
	}
	return s.Repo.ListByPractice(ctx, practiceID, limit, offset)
}

// Delete removes a document. Applied documents are part of the clinical
// record and stay.
func (s *Service) Delete(ctx context.Context, practiceID, docID string) error {
	doc, err := s.Repo.GetByID(ctx, practiceID, docID)
	if err != nil {
		return err
	}
	if !doc.Deletable() {
		return ErrDeleteApplied
	}
	if err := s.Repo.Delete(ctx, practiceID, docID); err != nil {
		return err
	}
	s.Audit.Record(ctx, audit.Event{
		Action:     "referral.deleted",
		DocumentID: docID,
		PracticeID: practiceID,
	})
	return nil
}
