package patients

import "time"

// Contact kinds within a patient record.
const (
	ContactKindGP       = "GP"
	ContactKindReferrer = "REFERRER"
)

// Patient is a practice-scoped patient record. Identity fields are stored
// encrypted; plaintext only exists transiently inside the matching engine.
type Patient struct {
	ID                   string
	PracticeID           string
	EncryptedName        []byte
	EncryptedDateOfBirth []byte
	EncryptedMedicare    []byte
	EncryptedMRN         []byte
	CreatedAt            time.Time
}

// Referrer is a practice-level referring clinician or organization, shared
// across patients.
type Referrer struct {
	ID             string
	PracticeID     string
	Name           string
	Specialty      string
	ProviderNumber string
	Organization   string
	CreatedAt      time.Time
}

// Contact is a patient-level relationship: the patient's GP or the referrer
// named in a specific letter.
type Contact struct {
	ID             string
	PatientID      string
	Kind           string
	Name           string
	PracticeName   string
	ProviderNumber string
	Phone          string
	Fax            string
	CreatedAt      time.Time
}
