package referrals

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"referral-backend/internal/extraction"
)

// PGRepo implements Repo using Postgres.
type PGRepo struct {
	DB *sql.DB
}

const documentColumns = `
id, user_id, practice_id, file_name, mime_type, size_bytes, storage_key, status,
content_text, extracted_data, fast_extraction_status, fast_extraction_data,
fast_extraction_error, full_extraction_status, processing_error,
patient_id, consultation_id, created_at, updated_at`

// Create inserts a new referral document.
func (r *PGRepo) Create(ctx context.Context, doc Document) error {
	const query = `
INSERT INTO referral_documents (
    id, user_id, practice_id, file_name, mime_type, size_bytes, storage_key,
    status, fast_extraction_status, full_extraction_status, created_at, updated_at
) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`
	_, err := r.DB.ExecContext(ctx, query,
		doc.ID,
		doc.UserID,
		doc.PracticeID,
		doc.FileName,
		doc.MimeType,
		doc.SizeBytes,
		doc.StorageKey,
		string(doc.Status),
		string(doc.FastStatus),
		string(doc.FullStatus),
		doc.CreatedAt,
		doc.UpdatedAt,
	)
	return err
}

// GetByID fetches a document scoped to a practice.
func (r *PGRepo) GetByID(ctx context.Context, practiceID, id string) (Document, error) {
	query := `SELECT ` + documentColumns + `
FROM referral_documents
WHERE practice_id = $1 AND id = $2 AND deleted_at IS NULL
LIMIT 1`
	row := r.DB.QueryRowContext(ctx, query, practiceID, id)
	doc, err := scanDocument(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Document{}, ErrNotFound
		}
		return Document{}, err
	}
	return doc, nil
}

// ListByPractice returns documents for a practice ordered newest-first.
func (r *PGRepo) ListByPractice(ctx context.Context, practiceID string, limit, offset int) ([]Document, error) {
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}
	query := `SELECT ` + documentColumns + `
FROM referral_documents
WHERE practice_id = $1 AND deleted_at IS NULL
ORDER BY created_at DESC
LIMIT $2 OFFSET $3`
	rows, err := r.DB.QueryContext(ctx, query, practiceID, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	docs := make([]Document, 0, limit)
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, err
		}
		docs = append(docs, doc)
	}
	return docs, rows.Err()
}

// SetStatus updates the lifecycle status and processing error.
func (r *PGRepo) SetStatus(ctx context.Context, id string, status Status, processingError string) error {
	const query = `
UPDATE referral_documents
SET status = $2, processing_error = $3, updated_at = $4
WHERE id = $1 AND deleted_at IS NULL`
	return r.exec(ctx, query, id, string(status), nullString(processingError), time.Now().UTC())
}

// SetContentText records extracted text and the resulting lifecycle status.
func (r *PGRepo) SetContentText(ctx context.Context, id, contentText string, status Status) error {
	const query = `
UPDATE referral_documents
SET content_text = $2, status = $3, updated_at = $4
WHERE id = $1 AND deleted_at IS NULL`
	return r.exec(ctx, query, id, contentText, string(status), time.Now().UTC())
}

// SetFullResult records the full-extraction outcome.
func (r *PGRepo) SetFullResult(ctx context.Context, id string, data *extraction.ReferralExtractedData, status Status, phase PhaseStatus, processingError string) error {
	payload, err := marshalJSONB(data)
	if err != nil {
		return err
	}
	const query = `
UPDATE referral_documents
SET extracted_data = $2, status = $3, full_extraction_status = $4, processing_error = $5, updated_at = $6
WHERE id = $1 AND deleted_at IS NULL`
	return r.exec(ctx, query, id, payload, string(status), string(phase), nullString(processingError), time.Now().UTC())
}

// SetFastResult records the fast-extraction outcome.
func (r *PGRepo) SetFastResult(ctx context.Context, id string, data *extraction.FastExtractedData, phase PhaseStatus, fastError string) error {
	payload, err := marshalJSONB(data)
	if err != nil {
		return err
	}
	const query = `
UPDATE referral_documents
SET fast_extraction_data = $2, fast_extraction_status = $3, fast_extraction_error = $4, updated_at = $5
WHERE id = $1 AND deleted_at IS NULL`
	return r.exec(ctx, query, id, payload, string(phase), nullString(fastError), time.Now().UTC())
}

// UpdateFastStatusIf conditionally advances the fast-extraction phase. The
// WHERE clause makes this a compare-and-swap; zero affected rows means the
// expected phase was not the stored one.
func (r *PGRepo) UpdateFastStatusIf(ctx context.Context, id string, expected []PhaseStatus, next PhaseStatus) (int64, error) {
	if len(expected) == 0 {
		return 0, errors.New("expected phase set is empty")
	}
	placeholders := make([]string, 0, len(expected))
	args := []any{id, string(next), time.Now().UTC()}
	for i, phase := range expected {
		placeholders = append(placeholders, fmt.Sprintf("$%d", i+4))
		args = append(args, string(phase))
	}
	query := `
UPDATE referral_documents
SET fast_extraction_status = $2, updated_at = $3
WHERE id = $1 AND deleted_at IS NULL AND fast_extraction_status IN (` + strings.Join(placeholders, ", ") + `)`
	res, err := r.DB.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// LinkApplied links the document to its patient and consultation.
func (r *PGRepo) LinkApplied(ctx context.Context, id, patientID, consultationID string) error {
	const query = `
UPDATE referral_documents
SET patient_id = $2, consultation_id = $3, status = $4, updated_at = $5
WHERE id = $1 AND deleted_at IS NULL`
	return r.exec(ctx, query, id, patientID, nullString(consultationID), string(StatusApplied), time.Now().UTC())
}

// Delete soft-deletes a document scoped to a practice.
func (r *PGRepo) Delete(ctx context.Context, practiceID, id string) error {
	const query = `
UPDATE referral_documents
SET deleted_at = $3
WHERE practice_id = $1 AND id = $2 AND deleted_at IS NULL`
	res, err := r.DB.ExecContext(ctx, query, practiceID, id, time.Now().UTC())
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *PGRepo) exec(ctx context.Context, query string, args ...any) error {
	res, err := r.DB.ExecContext(ctx, query, args...)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanDocument(row rowScanner) (Document, error) {
	var doc Document
	var status, fastStatus, fullStatus string
	var contentText, extractedData, fastData, fastError, processingError sql.NullString
	var patientID, consultationID sql.NullString
	err := row.Scan(
		&doc.ID,
		&doc.UserID,
		&doc.PracticeID,
		&doc.FileName,
		&doc.MimeType,
		&doc.SizeBytes,
		&doc.StorageKey,
		&status,
		&contentText,
		&extractedData,
		&fastStatus,
		&fastData,
		&fastError,
		&fullStatus,
		&processingError,
		&patientID,
		&consultationID,
		&doc.CreatedAt,
		&doc.UpdatedAt,
	)
	if err != nil {
		return Document{}, err
	}
	doc.Status = Status(status)
	doc.FastStatus = PhaseStatus(fastStatus)
	doc.FullStatus = PhaseStatus(fullStatus)
	doc.ContentText = contentText.String
	doc.FastError = fastError.String
	doc.ProcessingError = processingError.String
	doc.PatientID = patientID.String
	doc.ConsultationID = consultationID.String
	if extractedData.Valid && extractedData.String != "" {
		var data extraction.ReferralExtractedData
		if err := json.Unmarshal([]byte(extractedData.String), &data); err != nil {
			return Document{}, fmt.Errorf("decode extracted_data for %s: %w", doc.ID, err)
		}
		doc.ExtractedData = &data
	}
	if fastData.Valid && fastData.String != "" {
		var data extraction.FastExtractedData
		if err := json.Unmarshal([]byte(fastData.String), &data); err != nil {
			return Document{}, fmt.Errorf("decode fast_extraction_data for %s: %w", doc.ID, err)
		}
		doc.FastData = &data
	}
	return doc, nil
}

func marshalJSONB(value any) (any, error) {
	switch v := value.(type) {
	case *extraction.ReferralExtractedData:
		if v == nil {
			return nil, nil
		}
	case *extraction.FastExtractedData:
		if v == nil {
			return nil, nil
		}
	}
	payload, err := json.Marshal(value)
	if err != nil {
		return nil, err
	}
	return string(payload), nil
}

func nullString(value string) sql.NullString {
	if value == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: value, Valid: true}
}

var _ Repo = (*PGRepo)(nil)
