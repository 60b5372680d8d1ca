package referrals

import (
	"context"
	"sort"
	"sync"
	"time"

	"referral-backend/internal/extraction"
)

// MemoryRepo stores documents in memory and is safe for concurrent use.
type MemoryRepo struct {
	mu   sync.Mutex
	byID map[string]Document
}

// NewMemoryRepo constructs a MemoryRepo.
func NewMemoryRepo() *MemoryRepo {
	return &MemoryRepo{byID: make(map[string]Document)}
}

// Create stores the document.
func (r *MemoryRepo) Create(ctx context.Context, doc Document) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.byID[doc.ID] = doc
	return nil
}

// GetByID returns a document scoped to a practice.
func (r *MemoryRepo) GetByID(ctx context.Context, practiceID, id string) (Document, error) {
	if err := ctx.Err(); err != nil {
		return Document{}, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	doc, ok := r.byID[id]
	if !ok || doc.PracticeID != practiceID {
		return Document{}, ErrNotFound
	}
	return doc, nil
}

// ListByPractice returns documents for a practice, newest first.
func (r *MemoryRepo) ListByPractice(ctx context.Context, practiceID string, limit, offset int) ([]Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	var docs []Document
	for _, doc := range r.byID {
		if doc.PracticeID == practiceID {
			docs = append(docs, doc)
		}
	}
	sort.Slice(docs, func(i, j int) bool { return docs[i].CreatedAt.After(docs[j].CreatedAt) })
	if offset >= len(docs) {
		return []Document{}, nil
	}
	docs = docs[offset:]
	if limit > 0 && limit < len(docs) {
		docs = docs[:limit]
	}
	return docs, nil
}

// SetStatus updates the lifecycle status and processing error.
func (r *MemoryRepo) SetStatus(ctx context.Context, id string, status Status, processingError string) error {
	return r.mutate(ctx, id, func(doc *Document) {
		doc.Status = status
		doc.ProcessingError = processingError
	})
}

// SetContentText records extracted text and the resulting lifecycle status.
func (r *MemoryRepo) SetContentText(ctx context.Context, id, contentText string, status Status) error {
	return r.mutate(ctx, id, func(doc *Document) {
		doc.ContentText = contentText
		doc.Status = status
	})
}

// SetFullResult records the full-extraction outcome.
func (r *MemoryRepo) SetFullResult(ctx context.Context, id string, data *extraction.ReferralExtractedData, status Status, phase PhaseStatus, processingError string) error {
	return r.mutate(ctx, id, func(doc *Document) {
		doc.ExtractedData = data
		doc.Status = status
		doc.FullStatus = phase
		doc.ProcessingError = processingError
	})
}

// SetFastResult records the fast-extraction outcome.
func (r *MemoryRepo) SetFastResult(ctx context.Context, id string, data *extraction.FastExtractedData, phase PhaseStatus, fastError string) error {
	return r.mutate(ctx, id, func(doc *Document) {
		doc.FastData = data
		doc.FastStatus = phase
		doc.FastError = fastError
	})
}

// UpdateFastStatusIf is the conditional-update primitive backing the
// optimistic lock.
func (r *MemoryRepo) UpdateFastStatusIf(ctx context.Context, id string, expected []PhaseStatus, next PhaseStatus) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	doc, ok := r.byID[id]
	if !ok {
		return 0, nil
	}
	for _, want := range expected {
		if doc.FastStatus == want {
			doc.FastStatus = next
			doc.UpdatedAt = time.Now().UTC()
			r.byID[id] = doc
			return 1, nil
		}
	}
	return 0, nil
}

// LinkApplied links the document to its patient and consultation.
func (r *MemoryRepo) LinkApplied(ctx context.Context, id, patientID, consultationID string) error {
	return r.mutate(ctx, id, func(doc *Document) {
		doc.PatientID = patientID
		doc.ConsultationID = consultationID
		doc.Status = StatusApplied
	})
}

// Delete removes a document scoped to a practice.
func (r *MemoryRepo) Delete(ctx context.Context, practiceID, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	doc, ok := r.byID[id]
	if !ok || doc.PracticeID != practiceID {
		return ErrNotFound
	}
	delete(r.byID, id)
	return nil
}

func (r *MemoryRepo) mutate(ctx context.Context, id string, apply func(*Document)) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	doc, ok := r.byID[id]
	if !ok {
		return ErrNotFound
	}
	apply(&doc)
	doc.UpdatedAt = time.Now().UTC()
	r.byID[id] = doc
	return nil
}

var _ Repo = (*MemoryRepo)(nil)
