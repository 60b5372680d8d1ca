package audit

import (
	"context"
	"sync"
	"time"

	"referral-backend/internal/shared/telemetry"
)

// Event is one audit trail entry. Detail carries action-specific fields and
// must never contain patient identifiers in the clear.
type Event struct {
	Action     string
	DocumentID string
	UserID     string
	PracticeID string
	Detail     map[string]any
	OccurredAt time.Time
}

// Sink records audit events. Recording is fire and forget: failures are the
// sink's problem, callers never block on them.
type Sink interface {
	Record(ctx context.Context, e Event)
}

// LogSink writes audit events to the structured log stream.
type LogSink struct{}

func (LogSink) Record(_ context.Context, e Event) {
	if e.OccurredAt.IsZero() {
		e.OccurredAt = time.Now().UTC()
	}
	fields := map[string]any{
		"action":      e.Action,
		"document_id": e.DocumentID,
		"user_id":     e.UserID,
		"practice_id": e.PracticeID,
		"occurred_at": e.OccurredAt.Format(time.RFC3339),
	}
	for k, v := range e.Detail {
		fields[k] = v
	}
	telemetry.Info("audit.event", fields)
}

// MemorySink accumulates events for tests.
type MemorySink struct {
	mu     sync.Mutex
	events []Event
}

func (s *MemorySink) Record(_ context.Context, e Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, e)
}

func (s *MemorySink) Events() []Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Event, len(s.events))
	copy(out, s.events)
	return out
}
