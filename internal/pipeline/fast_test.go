package pipeline

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"referral-backend/internal/llm"
	"referral-backend/internal/referrals"
)

type stubLLM struct {
	responses []llm.Response
	errs      []error
	calls     int
	requests  []llm.Request
}

func (s *stubLLM) Generate(_ context.Context, req llm.Request) (llm.Response, error) {
	idx := s.calls
	s.calls++
	s.requests = append(s.requests, req)
	var err error
	if idx < len(s.errs) {
		err = s.errs[idx]
	}
	var resp llm.Response
	if idx < len(s.responses) {
		resp = s.responses[idx]
	}
	return resp, err
}

func seedDoc(t *testing.T, repo *referrals.MemoryRepo, status referrals.Status, contentText string) referrals.Document {
	t.Helper()
	doc := referrals.Document{
		ID:          "doc-1",
		UserID:      "user-1",
		PracticeID:  "practice-1",
		FileName:    "letter.pdf",
		MimeType:    "application/pdf",
		SizeBytes:   1024,
		StorageKey:  "referrals/x/doc-1/letter.pdf",
		Status:      status,
		ContentText: contentText,
		FastStatus:  referrals.PhasePending,
		FullStatus:  referrals.PhasePending,
		CreatedAt:   time.Now().UTC(),
		UpdatedAt:   time.Now().UTC(),
	}
	if err := repo.Create(context.Background(), doc); err != nil {
		t.Fatalf("Create: %v", err)
	}
	return doc
}

const fastResponseJSON = `{"name":"Jane Citizen","nameConfidence":0.95,"dob":"15/05/1990","dobConfidence":0.9,"mrn":null,"mrnConfidence":0}`

func TestFastRunCompletes(t *testing.T) {
	repo := referrals.NewMemoryRepo()
	seedDoc(t, repo, referrals.StatusTextExtracted, "Referral letter body")
	client := &stubLLM{responses: []llm.Response{{Content: fastResponseJSON}}}
	svc := &FastService{Repo: repo, LLM: client, Model: "gpt-4o-mini"}

	result, err := svc.Run(context.Background(), "practice-1", "doc-1")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if result.Status != referrals.PhaseComplete {
		t.Fatalf("status = %s, want COMPLETE", result.Status)
	}
	if result.Data == nil || *result.Data.PatientName.Value != "Jane Citizen" {
		t.Fatalf("unexpected data %+v", result.Data)
	}
	if got := *result.Data.DateOfBirth.Value; got != "1990-05-15" {
		t.Fatalf("dob = %q, want ISO normalized", got)
	}

	doc, _ := repo.GetByID(context.Background(), "practice-1", "doc-1")
	if doc.FastStatus != referrals.PhaseComplete || doc.FastData == nil {
		t.Fatalf("fast result not persisted: %+v", doc)
	}
	if req := client.requests[0]; req.Temperature != 0 || req.MaxTokens != fastMaxTokens {
		t.Fatalf("unexpected request bounds %+v", req)
	}
}

func TestFastRunWithoutContentTextFailsNoData(t *testing.T) {
	repo := referrals.NewMemoryRepo()
	seedDoc(t, repo, referrals.StatusUploaded, "")
	svc := &FastService{Repo: repo, LLM: &stubLLM{}, Model: "gpt-4o-mini"}

	result, err := svc.Run(context.Background(), "practice-1", "doc-1")
	if err != nil {
		t.Fatalf("fast phase must not surface errors, got %v", err)
	}
	if result.Status != referrals.PhaseFailed || result.Error != errCodeNoData {
		t.Fatalf("expected NO_DATA failure result, got %+v", result)
	}

	doc, _ := repo.GetByID(context.Background(), "practice-1", "doc-1")
	if doc.FastStatus != referrals.PhaseFailed || doc.FastError != errCodeNoData {
		t.Fatalf("failure not recorded: %+v", doc)
	}
}

func TestFastRunSwallowsLLMFailure(t *testing.T) {
	repo := referrals.NewMemoryRepo()
	seedDoc(t, repo, referrals.StatusTextExtracted, "Referral letter body")
	client := &stubLLM{errs: []error{errors.New("openai http status 500"), errors.New("openai http status 503")}}
	svc := &FastService{Repo: repo, LLM: client, Model: "gpt-4o-mini"}

	result, err := svc.Run(context.Background(), "practice-1", "doc-1")
	if err != nil {
		t.Fatalf("fast phase must not surface errors, got %v", err)
	}
	if result.Status != referrals.PhaseFailed || result.Error == "" {
		t.Fatalf("expected failure result, got %+v", result)
	}
	if client.calls != 2 {
		t.Fatalf("calls = %d, want 2 attempts", client.calls)
	}
}

func TestFastRunSecondAttemptIsNoOp(t *testing.T) {
	repo := referrals.NewMemoryRepo()
	seedDoc(t, repo, referrals.StatusTextExtracted, "Referral letter body")
	if _, err := repo.UpdateFastStatusIf(context.Background(), "doc-1",
		[]referrals.PhaseStatus{referrals.PhasePending}, referrals.PhaseProcessing); err != nil {
		t.Fatalf("UpdateFastStatusIf: %v", err)
	}

	client := &stubLLM{}
	svc := &FastService{Repo: repo, LLM: client, Model: "gpt-4o-mini"}

	result, err := svc.Run(context.Background(), "practice-1", "doc-1")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !result.Skipped {
		t.Fatalf("expected skipped result while phase held, got %+v", result)
	}
	if client.calls != 0 {
		t.Fatal("no model call may happen when the phase is already processing")
	}

	doc, _ := repo.GetByID(context.Background(), "practice-1", "doc-1")
	if doc.FastStatus != referrals.PhaseProcessing {
		t.Fatalf("phase mutated by losing request: %s", doc.FastStatus)
	}
}

func TestFastRetryClearsPriorFailure(t *testing.T) {
	repo := referrals.NewMemoryRepo()
	seedDoc(t, repo, referrals.StatusTextExtracted, "Referral letter body")
	if err := repo.SetFastResult(context.Background(), "doc-1", nil, referrals.PhaseFailed, "boom"); err != nil {
		t.Fatalf("SetFastResult: %v", err)
	}

	client := &stubLLM{responses: []llm.Response{{Content: fastResponseJSON}}}
	svc := &FastService{Repo: repo, LLM: client, Model: "gpt-4o-mini"}

	result, err := svc.Retry(context.Background(), "practice-1", "doc-1")
	if err != nil {
		t.Fatalf("Retry: %v", err)
	}
	if result.Status != referrals.PhaseComplete {
		t.Fatalf("status = %s, want COMPLETE", result.Status)
	}

	doc, _ := repo.GetByID(context.Background(), "practice-1", "doc-1")
	if doc.FastError != "" {
		t.Fatalf("prior error not cleared: %q", doc.FastError)
	}
}

func TestFastPromptTruncatesLongInput(t *testing.T) {
	repo := referrals.NewMemoryRepo()
	long := strings.Repeat("a", fastMaxInputChars+500)
	seedDoc(t, repo, referrals.StatusTextExtracted, long)
	client := &stubLLM{responses: []llm.Response{{Content: fastResponseJSON}}}
	svc := &FastService{Repo: repo, LLM: client, Model: "gpt-4o-mini"}

	if _, err := svc.Run(context.Background(), "practice-1", "doc-1"); err != nil {
		t.Fatalf("Run: %v", err)
	}
	prompt := client.requests[0].Prompt
	if len(prompt) > len(fastPromptHeader)+fastMaxInputChars {
		t.Fatalf("prompt not truncated: %d chars", len(prompt))
	}
}
