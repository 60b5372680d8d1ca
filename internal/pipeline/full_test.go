package pipeline

import (
	"context"
	"errors"
	"testing"

	"referral-backend/internal/llm"
	"referral-backend/internal/referrals"
)

const fullResponseJSON = `{
  "patient": {"fullName": "Jane Citizen", "dateOfBirth": "15/05/1990", "medicare": "2428 77813 1", "confidence": 0.9},
  "gp": {"practiceName": "Hillside Medical", "gpName": "Dr A Smith", "confidence": 0.8},
  "referralContext": {"reasonForReferral": "Knee pain", "urgency": "routine", "confidence": 0.7}
}`

func TestFullRunCompletes(t *testing.T) {
	repo := referrals.NewMemoryRepo()
	seedDoc(t, repo, referrals.StatusTextExtracted, "Referral letter body")
	client := &stubLLM{responses: []llm.Response{{Content: fullResponseJSON}}}
	svc := &FullService{Repo: repo, LLM: client, Model: "gpt-4o"}

	data, err := svc.Run(context.Background(), "practice-1", "doc-1")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if data.Patient.FullName == nil || *data.Patient.FullName != "Jane Citizen" {
		t.Fatalf("unexpected patient %+v", data.Patient)
	}
	if data.Patient.DateOfBirth == nil || *data.Patient.DateOfBirth != "1990-05-15" {
		t.Fatalf("dob not normalized: %+v", data.Patient.DateOfBirth)
	}

	doc, _ := repo.GetByID(context.Background(), "practice-1", "doc-1")
	if doc.Status != referrals.StatusExtracted || doc.FullStatus != referrals.PhaseComplete {
		t.Fatalf("document not advanced: status=%s phase=%s", doc.Status, doc.FullStatus)
	}
	if doc.ExtractedData == nil {
		t.Fatal("extracted data not persisted")
	}
}

func TestFullRunRequiresTextExtracted(t *testing.T) {
	repo := referrals.NewMemoryRepo()
	seedDoc(t, repo, referrals.StatusUploaded, "")
	svc := &FullService{Repo: repo, LLM: &stubLLM{}, Model: "gpt-4o"}

	_, err := svc.Run(context.Background(), "practice-1", "doc-1")
	var stateErr *referrals.StateError
	if !errors.As(err, &stateErr) {
		t.Fatalf("expected StateError, got %v", err)
	}

	doc, _ := repo.GetByID(context.Background(), "practice-1", "doc-1")
	if doc.Status != referrals.StatusUploaded || doc.FullStatus != referrals.PhasePending {
		t.Fatalf("document mutated despite precondition failure: %+v", doc)
	}
}

func TestFullRunSurfacesFailureAndMarksFailed(t *testing.T) {
	repo := referrals.NewMemoryRepo()
	seedDoc(t, repo, referrals.StatusTextExtracted, "Referral letter body")
	client := &stubLLM{errs: []error{
		errors.New("openai http status 500"),
		errors.New("openai http status 500"),
		errors.New("openai http status 500"),
	}}
	svc := &FullService{Repo: repo, LLM: client, Model: "gpt-4o"}

	_, err := svc.Run(context.Background(), "practice-1", "doc-1")
	var extErr *ExternalServiceError
	if !errors.As(err, &extErr) {
		t.Fatalf("expected ExternalServiceError, got %v", err)
	}
	if client.calls != 3 {
		t.Fatalf("calls = %d, want 3 attempts", client.calls)
	}

	doc, _ := repo.GetByID(context.Background(), "practice-1", "doc-1")
	if doc.Status != referrals.StatusFailed || doc.FullStatus != referrals.PhaseFailed {
		t.Fatalf("failure not recorded: status=%s phase=%s", doc.Status, doc.FullStatus)
	}
	if doc.ProcessingError == "" {
		t.Fatal("processing error not recorded")
	}
}

func TestFullParseErrorNotRetried(t *testing.T) {
	repo := referrals.NewMemoryRepo()
	seedDoc(t, repo, referrals.StatusTextExtracted, "Referral letter body")
	client := &stubLLM{responses: []llm.Response{{Content: "I could not find any structured data, sorry."}}}
	svc := &FullService{Repo: repo, LLM: client, Model: "gpt-4o"}

	_, err := svc.Run(context.Background(), "practice-1", "doc-1")
	if err == nil {
		t.Fatal("expected parse failure")
	}
	if client.calls != 1 {
		t.Fatalf("calls = %d, parse errors must not trigger retries", client.calls)
	}
}

func TestRetryHigherAccuracyResetsAndUsesBetterModel(t *testing.T) {
	repo := referrals.NewMemoryRepo()
	seedDoc(t, repo, referrals.StatusTextExtracted, "Referral letter body")
	client := &stubLLM{responses: []llm.Response{{Content: fullResponseJSON}, {Content: fullResponseJSON}}}
	svc := &FullService{Repo: repo, LLM: client, Model: "gpt-4o-mini", HighAccuracyModel: "gpt-4o"}

	if _, err := svc.Run(context.Background(), "practice-1", "doc-1"); err != nil {
		t.Fatalf("initial Run: %v", err)
	}

	data, err := svc.RetryHigherAccuracy(context.Background(), "practice-1", "doc-1")
	if err != nil {
		t.Fatalf("RetryHigherAccuracy: %v", err)
	}
	if data.ModelUsed != "gpt-4o" {
		t.Fatalf("modelUsed = %s, want high-accuracy model", data.ModelUsed)
	}
	if got := client.requests[1].Model; got != "gpt-4o" {
		t.Fatalf("request model = %s, want gpt-4o", got)
	}

	doc, _ := repo.GetByID(context.Background(), "practice-1", "doc-1")
	if doc.Status != referrals.StatusExtracted {
		t.Fatalf("status = %s after re-extraction", doc.Status)
	}
}

func TestFullRetryAfterFailure(t *testing.T) {
	repo := referrals.NewMemoryRepo()
	seedDoc(t, repo, referrals.StatusTextExtracted, "Referral letter body")
	if err := repo.SetFullResult(context.Background(), "doc-1", nil, referrals.StatusFailed, referrals.PhaseFailed, "boom"); err != nil {
		t.Fatalf("SetFullResult: %v", err)
	}

	client := &stubLLM{responses: []llm.Response{{Content: fullResponseJSON}}}
	svc := &FullService{Repo: repo, LLM: client, Model: "gpt-4o"}

	if _, err := svc.Retry(context.Background(), "practice-1", "doc-1"); err != nil {
		t.Fatalf("Retry: %v", err)
	}

	doc, _ := repo.GetByID(context.Background(), "practice-1", "doc-1")
	if doc.Status != referrals.StatusExtracted || doc.ProcessingError != "" {
		t.Fatalf("retry did not recover document: %+v", doc)
	}
}
