package patients

import (
	"context"
	"errors"
)

var (
	ErrNotFound = errors.New("patient not found")
)

// Repo persists patients, practice-level referrers, and patient contacts.
// ListByPractice returns the full practice set: the matching engine decrypts
// each candidate in turn, so no identity-based lookup exists here.
type Repo interface {
	CreatePatient(ctx context.Context, p Patient) error
	GetPatient(ctx context.Context, practiceID, id string) (Patient, error)
	ListByPractice(ctx context.Context, practiceID string) ([]Patient, error)

	CreateReferrer(ctx context.Context, r Referrer) error
	FindReferrerByName(ctx context.Context, practiceID, name string) (Referrer, error)

	CreateContact(ctx context.Context, c Contact) error
	FindContactByName(ctx context.Context, patientID, kind, name string) (Contact, error)
}
