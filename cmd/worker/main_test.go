package main

import (
	"context"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	sqstypes "github.com/aws/aws-sdk-go-v2/service/sqs/types"

	"referral-backend/internal/bootstrap"
	"referral-backend/internal/llm"
	"referral-backend/internal/pipeline"
	"referral-backend/internal/queue"
	"referral-backend/internal/referrals"
)

type fakeSQS struct {
	deleted []string
}

func (f *fakeSQS) ReceiveMessage(ctx context.Context, params *sqs.ReceiveMessageInput, optFns ...func(*sqs.Options)) (*sqs.ReceiveMessageOutput, error) {
	_ = ctx
	_ = params
	_ = optFns
	return &sqs.ReceiveMessageOutput{}, nil
}

func (f *fakeSQS) DeleteMessage(ctx context.Context, params *sqs.DeleteMessageInput, optFns ...func(*sqs.Options)) (*sqs.DeleteMessageOutput, error) {
	_ = ctx
	_ = optFns
	f.deleted = append(f.deleted, aws.ToString(params.ReceiptHandle))
	return &sqs.DeleteMessageOutput{}, nil
}

type fakeLLM struct {
	response string
	err      error
}

func (f fakeLLM) Generate(_ context.Context, _ llm.Request) (llm.Response, error) {
	if f.err != nil {
		return llm.Response{}, f.err
	}
	return llm.Response{Content: f.response}, nil
}

func testApp(client llm.Client) (*bootstrap.App, *referrals.MemoryRepo) {
	repo := referrals.NewMemoryRepo()
	return &bootstrap.App{
		FastPipeline: &pipeline.FastService{Repo: repo, LLM: client, Model: "fast-model"},
		FullPipeline: &pipeline.FullService{Repo: repo, LLM: client, Model: "full-model", HighAccuracyModel: "ha-model"},
	}, repo
}

func seedExtractable(t *testing.T, repo *referrals.MemoryRepo, id string) {
	t.Helper()
	err := repo.Create(context.Background(), referrals.Document{
		ID:          id,
		UserID:      "user-1",
		PracticeID:  "practice-1",
		FileName:    "letter.pdf",
		MimeType:    "application/pdf",
		StorageKey:  "referrals/x/" + id + "/letter.pdf",
		Status:      referrals.StatusTextExtracted,
		ContentText: "Dear Dr Smith, please see Jane Citizen, DOB 12/03/1974.",
		FastStatus:  referrals.PhasePending,
		FullStatus:  referrals.PhasePending,
	})
	if err != nil {
		t.Fatalf("seed document: %v", err)
	}
}

func TestWorkerDeletesMessageOnSuccess(t *testing.T) {
	client := &fakeSQS{}
	app, repo := testApp(fakeLLM{response: `{"name":"Jane Citizen","nameConfidence":0.95,"dob":"1974-03-12","dobConfidence":0.9,"mrn":null,"mrnConfidence":0}`})
	seedExtractable(t, repo, "doc-1")

	msgBody, _ := queue.EncodeMessage(queue.Message{DocumentID: "doc-1", PracticeID: "practice-1", Phase: queue.PhaseFast, RequestID: "req-1"})
	msg := sqstypes.Message{
		MessageId:     aws.String("m1"),
		ReceiptHandle: aws.String("r1"),
		Body:          aws.String(string(msgBody)),
		Attributes:    map[string]string{"ApproximateReceiveCount": "1"},
	}

	handleMessage(context.Background(), app, client, "queue", msg)

	if len(client.deleted) != 1 {
		t.Fatalf("expected delete, got %d", len(client.deleted))
	}
}

func TestWorkerDoesNotDeleteOnFailure(t *testing.T) {
	client := &fakeSQS{}
	// Full extraction on a missing document fails the job.
	app, _ := testApp(fakeLLM{response: `{}`})

	msgBody, _ := queue.EncodeMessage(queue.Message{DocumentID: "missing", PracticeID: "practice-1", Phase: queue.PhaseFull, RequestID: "req-2"})
	msg := sqstypes.Message{
		MessageId:     aws.String("m2"),
		ReceiptHandle: aws.String("r2"),
		Body:          aws.String(string(msgBody)),
	}

	handleMessage(context.Background(), app, client, "queue", msg)

	if len(client.deleted) != 0 {
		t.Fatalf("expected no delete, got %d", len(client.deleted))
	}
}

func TestWorkerDeletesOnInvalidJSON(t *testing.T) {
	client := &fakeSQS{}
	app, _ := testApp(fakeLLM{response: `{}`})
	msg := sqstypes.Message{
		MessageId:     aws.String("m3"),
		ReceiptHandle: aws.String("r3"),
		Body:          aws.String("{bad-json"),
	}

	handleMessage(context.Background(), app, client, "queue", msg)

	if len(client.deleted) != 1 {
		t.Fatalf("expected delete, got %d", len(client.deleted))
	}
}

func TestWorkerDeletesOnUnknownPhase(t *testing.T) {
	client := &fakeSQS{}
	app, _ := testApp(fakeLLM{response: `{}`})
	msgBody, _ := queue.EncodeMessage(queue.Message{DocumentID: "doc-9", PracticeID: "practice-1", Phase: "ocr"})
	msg := sqstypes.Message{
		MessageId:     aws.String("m4"),
		ReceiptHandle: aws.String("r4"),
		Body:          aws.String(string(msgBody)),
	}

	handleMessage(context.Background(), app, client, "queue", msg)

	if len(client.deleted) != 1 {
		t.Fatalf("expected delete, got %d", len(client.deleted))
	}
}
