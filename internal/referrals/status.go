package referrals

import "fmt"

// Status is the document lifecycle state.
type Status string

const (
	StatusUploaded      Status = "UPLOADED"
	StatusTextExtracted Status = "TEXT_EXTRACTED"
	StatusExtracted     Status = "EXTRACTED"
	StatusApplied       Status = "APPLIED"
	StatusFailed        Status = "FAILED"
)

// PhaseStatus tracks the fast and full extraction side-channels, independent
// of the document lifecycle so both phases can run concurrently.
type PhaseStatus string

const (
	PhasePending    PhaseStatus = "PENDING"
	PhaseProcessing PhaseStatus = "PROCESSING"
	PhaseComplete   PhaseStatus = "COMPLETE"
	PhaseFailed     PhaseStatus = "FAILED"
)

// StateError reports an operation attempted against a document whose current
// status does not satisfy the operation's precondition. The document is left
// unchanged.
type StateError struct {
	Op      string
	Current Status
	Want    []Status
}

func (e *StateError) Error() string {
	return fmt.Sprintf("%s requires status %v, document is %s", e.Op, e.Want, e.Current)
}

// lifecycle transitions keyed by operation precondition.
var lifecycleNext = map[Status][]Status{
	StatusUploaded:      {StatusTextExtracted, StatusFailed},
	StatusTextExtracted: {StatusExtracted, StatusFailed},
	StatusExtracted:     {StatusApplied, StatusFailed},
	// FAILED re-enters only via explicit retry, which resets to the prior
	// valid state rather than transitioning forward.
	StatusApplied: {},
	StatusFailed:  {},
}

// CanTransition reports whether from -> to is a legal lifecycle edge.
func CanTransition(from, to Status) bool {
	for _, next := range lifecycleNext[from] {
		if next == to {
			return true
		}
	}
	return false
}

// IsTerminal reports whether the status ends the lifecycle.
func (s Status) IsTerminal() bool {
	return s == StatusApplied || s == StatusFailed
}

// requireStatus returns a StateError unless the document's status is one of
// the wanted set.
func requireStatus(op string, doc Document, want ...Status) error {
	for _, w := range want {
		if doc.Status == w {
			return nil
		}
	}
	return &StateError{Op: op, Current: doc.Status, Want: want}
}

// Deletable reports whether a user-initiated delete is allowed. Applied
// documents are part of the clinical record and cannot be removed.
func (d Document) Deletable() bool {
	return d.Status != StatusApplied
}
