package referrals

import (
	"errors"
	"testing"
)

func TestCanTransition(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		from Status
		to   Status
		want bool
	}{
		{name: "uploaded to text extracted", from: StatusUploaded, to: StatusTextExtracted, want: true},
		{name: "uploaded to failed", from: StatusUploaded, to: StatusFailed, want: true},
		{name: "uploaded skips to extracted", from: StatusUploaded, to: StatusExtracted, want: false},
		{name: "text extracted to extracted", from: StatusTextExtracted, to: StatusExtracted, want: true},
		{name: "extracted to applied", from: StatusExtracted, to: StatusApplied, want: true},
		{name: "applied is terminal", from: StatusApplied, to: StatusFailed, want: false},
		{name: "failed is terminal", from: StatusFailed, to: StatusUploaded, want: false},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := CanTransition(tt.from, tt.to); got != tt.want {
				t.Fatalf("CanTransition(%s, %s) = %v, want %v", tt.from, tt.to, got, tt.want)
			}
		})
	}
}

func TestRequireStatusLeavesDocumentUnchanged(t *testing.T) {
	doc := Document{ID: "doc-1", Status: StatusUploaded}

	err := requireStatus("full-extraction", doc, StatusTextExtracted)
	var stateErr *StateError
	if !errors.As(err, &stateErr) {
		t.Fatalf("expected StateError, got %v", err)
	}
	if stateErr.Current != StatusUploaded {
		t.Fatalf("unexpected current status %s", stateErr.Current)
	}
	if doc.Status != StatusUploaded {
		t.Fatalf("document mutated by precondition check")
	}
}

func TestIsTerminal(t *testing.T) {
	if !StatusApplied.IsTerminal() || !StatusFailed.IsTerminal() {
		t.Fatal("applied and failed must be terminal")
	}
	if StatusUploaded.IsTerminal() || StatusTextExtracted.IsTerminal() || StatusExtracted.IsTerminal() {
		t.Fatal("in-flight statuses must not be terminal")
	}
}

func TestDeletable(t *testing.T) {
	for _, status := range []Status{StatusUploaded, StatusTextExtracted, StatusExtracted, StatusFailed} {
		if !(Document{Status: status}).Deletable() {
			t.Fatalf("status %s should be deletable", status)
		}
	}
	if (Document{Status: StatusApplied}).Deletable() {
		t.Fatal("applied documents must not be deletable")
	}
}
