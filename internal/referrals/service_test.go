package referrals

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"referral-backend/internal/audit"
)

type stubStore struct {
	data map[string][]byte
}

func (s *stubStore) Save(ctx context.Context, userId string, fileName string, r io.Reader) (string, int64, string, error) {
	return "", 0, "", errors.New("not used")
}

func (s *stubStore) Open(ctx context.Context, storageKey string) (io.ReadCloser, error) {
	raw, ok := s.data[storageKey]
	if !ok {
		return nil, errors.New("object not found")
	}
	return io.NopCloser(bytes.NewReader(raw)), nil
}

type stubSigner struct{}

func (stubSigner) SignUpload(_ context.Context, storageKey, _ string) (SignedURL, error) {
	return SignedURL{URL: "https://uploads.test/" + storageKey, ExpiresAt: time.Now().Add(15 * time.Minute)}, nil
}

func newTestService(store *stubStore) (*Service, *MemoryRepo, *audit.MemorySink) {
	repo := NewMemoryRepo()
	sink := &audit.MemorySink{}
	if store == nil {
		store = &stubStore{data: map[string][]byte{}}
	}
	svc := &Service{Repo: repo, Store: store, Signer: stubSigner{}, Audit: sink}
	return svc, repo, sink
}

func confirmTestDoc(t *testing.T, svc *Service, mime string) Document {
	t.Helper()
	ticket, err := svc.CreateUpload(context.Background(), "user-1", "practice-1", "letter.txt", mime, 512)
	if err != nil {
		t.Fatalf("CreateUpload: %v", err)
	}
	doc, err := svc.ConfirmUpload(context.Background(), "user-1", "practice-1", ticket.DocumentID, ticket.StorageKey, "letter.txt", mime, 512)
	if err != nil {
		t.Fatalf("ConfirmUpload: %v", err)
	}
	return doc
}

func TestCreateUploadRejectsDisallowedMime(t *testing.T) {
	svc, _, _ := newTestService(nil)

	_, err := svc.CreateUpload(context.Background(), "user-1", "practice-1", "letter.docx",
		"application/vnd.openxmlformats-officedocument.wordprocessingml.document", 512)
	if !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput without extended mimes, got %v", err)
	}

	svc.ExtendedMimes = true
	if _, err := svc.CreateUpload(context.Background(), "user-1", "practice-1", "letter.docx",
		"application/vnd.openxmlformats-officedocument.wordprocessingml.document", 512); err != nil {
		t.Fatalf("extended mime should be allowed when flagged: %v", err)
	}
}

func TestCreateUploadRejectsOversize(t *testing.T) {
	svc, _, _ := newTestService(nil)

	_, err := svc.CreateUpload(context.Background(), "user-1", "practice-1", "letter.pdf", "application/pdf", MaxUploadBytes+1)
	if !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput for oversize upload, got %v", err)
	}
}

func TestConfirmUploadStartsLifecycle(t *testing.T) {
	svc, repo, sink := newTestService(nil)

	doc := confirmTestDoc(t, svc, "text/plain")

	stored, err := repo.GetByID(context.Background(), "practice-1", doc.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if stored.Status != StatusUploaded {
		t.Fatalf("status = %s, want %s", stored.Status, StatusUploaded)
	}
	if stored.FastStatus != PhasePending || stored.FullStatus != PhasePending {
		t.Fatalf("phases = %s/%s, want pending/pending", stored.FastStatus, stored.FullStatus)
	}
	events := sink.Events()
	if len(events) != 1 || events[0].Action != "referral.uploaded" {
		t.Fatalf("unexpected audit events: %+v", events)
	}
}

func TestExtractTextAdvancesLifecycle(t *testing.T) {
	store := &stubStore{data: map[string][]byte{}}
	svc, repo, _ := newTestService(store)

	doc := confirmTestDoc(t, svc, "text/plain")
	store.data[doc.StorageKey] = []byte("Referral for Jane Citizen, DOB 15/05/1990.")

	updated, err := svc.ExtractText(context.Background(), "practice-1", doc.ID, "")
	if err != nil {
		t.Fatalf("ExtractText: %v", err)
	}
	if updated.Status != StatusTextExtracted {
		t.Fatalf("status = %s, want %s", updated.Status, StatusTextExtracted)
	}
	if !strings.Contains(updated.ContentText, "Jane Citizen") {
		t.Fatalf("unexpected content text %q", updated.ContentText)
	}

	stored, _ := repo.GetByID(context.Background(), "practice-1", doc.ID)
	if stored.Status != StatusTextExtracted || !stored.HasContentText() {
		t.Fatalf("persisted document not advanced: %+v", stored)
	}
}

func TestExtractTextAcceptsProvidedTranscription(t *testing.T) {
	svc, _, _ := newTestService(nil)

	doc := confirmTestDoc(t, svc, "text/plain")

	updated, err := svc.ExtractText(context.Background(), "practice-1", doc.ID, "  Transcribed   referral\r\ntext  ")
	if err != nil {
		t.Fatalf("ExtractText with provided text: %v", err)
	}
	if updated.ContentText != "Transcribed referral\ntext" {
		t.Fatalf("provided text not cleaned: %q", updated.ContentText)
	}
}

func TestExtractTextRequiresUploadedStatus(t *testing.T) {
	store := &stubStore{data: map[string][]byte{}}
	svc, _, _ := newTestService(store)

	doc := confirmTestDoc(t, svc, "text/plain")
	store.data[doc.StorageKey] = []byte("some text")

	if _, err := svc.ExtractText(context.Background(), "practice-1", doc.ID, ""); err != nil {
		t.Fatalf("first ExtractText: %v", err)
	}

	_, err := svc.ExtractText(context.Background(), "practice-1", doc.ID, "")
	var stateErr *StateError
	if !errors.As(err, &stateErr) {
		t.Fatalf("expected StateError on repeat extract, got %v", err)
	}
}

func TestExtractTextFailureMarksDocumentFailed(t *testing.T) {
	store := &stubStore{data: map[string][]byte{}}
	svc, repo, _ := newTestService(store)

	doc := confirmTestDoc(t, svc, "application/pdf")
	store.data[doc.StorageKey] = []byte("not a pdf at all")

	if _, err := svc.ExtractText(context.Background(), "practice-1", doc.ID, ""); err == nil {
		t.Fatal("expected decode error")
	}

	stored, _ := repo.GetByID(context.Background(), "practice-1", doc.ID)
	if stored.Status != StatusFailed {
		t.Fatalf("status = %s, want %s", stored.Status, StatusFailed)
	}
	if stored.ProcessingError == "" {
		t.Fatal("processing error not recorded")
	}
}

func TestDeleteBlockedOnceApplied(t *testing.T) {
	svc, repo, _ := newTestService(nil)

	doc := confirmTestDoc(t, svc, "text/plain")
	if err := repo.LinkApplied(context.Background(), doc.ID, "patient-1", "consult-1"); err != nil {
		t.Fatalf("LinkApplied: %v", err)
	}

	if err := svc.Delete(context.Background(), "practice-1", doc.ID); !errors.Is(err, ErrDeleteApplied) {
		t.Fatalf("expected ErrDeleteApplied, got %v", err)
	}
	if _, err := repo.GetByID(context.Background(), "practice-1", doc.ID); err != nil {
		t.Fatalf("applied document should survive delete attempt: %v", err)
	}
}

func TestDeleteRemovesDocument(t *testing.T) {
	svc, repo, _ := newTestService(nil)

	doc := confirmTestDoc(t, svc, "text/plain")
	if err := svc.Delete(context.Background(), "practice-1", doc.ID); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := repo.GetByID(context.Background(), "practice-1", doc.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound after delete, got %v", err)
	}
}

func TestGetScopedToPractice(t *testing.T) {
	svc, _, _ := newTestService(nil)

	doc := confirmTestDoc(t, svc, "text/plain")
	if _, err := svc.Get(context.Background(), "practice-2", doc.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound for other practice, got %v", err)
	}
}
