package workerproc

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strings"

	"referral-backend/internal/bootstrap"
	"referral-backend/internal/queue"
)

// MessageMeta captures details useful for logging and diagnostics.
type MessageMeta struct {
	BodyLen int
	BodySHA string
}

// ComputeMeta returns the body length and SHA-256 hash.
func ComputeMeta(body string) MessageMeta {
	if body == "" {
		return MessageMeta{BodyLen: 0, BodySHA: ""}
	}
	sum := sha256.Sum256([]byte(body))
	return MessageMeta{BodyLen: len(body), BodySHA: hex.EncodeToString(sum[:])}
}

// ErrEmptyBody indicates an empty queue payload.
type ErrEmptyBody struct {
	Meta MessageMeta
}

func (e ErrEmptyBody) Error() string { return "empty message body" }

// ErrDecode indicates a JSON decode failure.
type ErrDecode struct {
	Meta MessageMeta
	Err  error
}

func (e ErrDecode) Error() string {
	if e.Err == nil {
		return "decode message"
	}
	return "decode message: " + e.Err.Error()
}

// ErrInvalidJob indicates a message missing the document id or carrying an
// unknown phase.
type ErrInvalidJob struct {
	Meta      MessageMeta
	RequestID string
	Reason    string
}

func (e ErrInvalidJob) Error() string { return "invalid extraction job: " + e.Reason }

// ErrProcess indicates processing failed after successful parsing.
type ErrProcess struct {
	DocumentID string
	Phase      string
	RequestID  string
	Err        error
}

func (e ErrProcess) Error() string {
	if e.Err == nil {
		return "process extraction job"
	}
	return "process extraction job: " + e.Err.Error()
}

// ParseMessage validates and decodes the queue payload.
func ParseMessage(body string) (queue.Message, MessageMeta, error) {
	meta := ComputeMeta(body)
	if strings.TrimSpace(body) == "" {
		return queue.Message{}, meta, ErrEmptyBody{Meta: meta}
	}

	msg, err := queue.DecodeMessage([]byte(body))
	if err != nil {
		return queue.Message{}, meta, ErrDecode{Meta: meta, Err: err}
	}
	if strings.TrimSpace(msg.DocumentID) == "" {
		return msg, meta, ErrInvalidJob{Meta: meta, RequestID: msg.RequestID, Reason: "missing document id"}
	}
	switch msg.Phase {
	case queue.PhaseFast, queue.PhaseFull:
	default:
		return msg, meta, ErrInvalidJob{Meta: meta, RequestID: msg.RequestID, Reason: "unknown phase " + msg.Phase}
	}
	return msg, meta, nil
}

type parsedMessageKey struct{}

// WithParsedMessage stores a decoded message in the context for reuse.
func WithParsedMessage(ctx context.Context, msg queue.Message) context.Context {
	return context.WithValue(ctx, parsedMessageKey{}, msg)
}

func parsedMessageFromContext(ctx context.Context) (queue.Message, bool) {
	if ctx == nil {
		return queue.Message{}, false
	}
	msg, ok := ctx.Value(parsedMessageKey{}).(queue.Message)
	return msg, ok
}

// HandleMessage parses, validates, and runs one extraction job.
func HandleMessage(ctx context.Context, app *bootstrap.App, body string) error {
	if app == nil || app.FastPipeline == nil || app.FullPipeline == nil {
		return errors.New("extraction pipelines not configured")
	}

	msg, ok := parsedMessageFromContext(ctx)
	if !ok {
		var err error
		msg, _, err = ParseMessage(body)
		if err != nil {
			return err
		}
	}

	var err error
	switch msg.Phase {
	case queue.PhaseFast:
		_, err = app.FastPipeline.Run(ctx, msg.PracticeID, msg.DocumentID)
	case queue.PhaseFull:
		if msg.HigherAccuracy {
			_, err = app.FullPipeline.RetryHigherAccuracy(ctx, msg.PracticeID, msg.DocumentID)
		} else {
			_, err = app.FullPipeline.Run(ctx, msg.PracticeID, msg.DocumentID)
		}
	default:
		return ErrInvalidJob{Meta: ComputeMeta(body), RequestID: msg.RequestID, Reason: "unknown phase " + msg.Phase}
	}
	if err != nil {
		return ErrProcess{DocumentID: msg.DocumentID, Phase: msg.Phase, RequestID: msg.RequestID, Err: err}
	}
	return nil
}
