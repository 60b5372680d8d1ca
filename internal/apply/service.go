package apply

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"referral-backend/internal/audit"
	"referral-backend/internal/extraction"
	"referral-backend/internal/patients"
	"referral-backend/internal/referrals"
	"referral-backend/internal/shared/metrics"
	"referral-backend/internal/shared/telemetry"
)

// Request carries the identity and contacts to apply. Fields default to the
// document's full-extraction result; callers override them when the user has
// corrected values in the intake UI.
type Request struct {
	Patient        *extraction.ExtractedPatientInfo  `json:"patient,omitempty"`
	GP             *extraction.ExtractedGPInfo       `json:"gp,omitempty"`
	Referrer       *extraction.ExtractedReferrerInfo `json:"referrer,omitempty"`
	ConsultationID string                            `json:"consultationId,omitempty"`
}

// Result reports what the apply sequence produced.
type Result struct {
	PatientID      string               `json:"patientId"`
	PatientCreated bool                 `json:"patientCreated"`
	ReferrerID     string               `json:"referrerId,omitempty"`
	ConsultationID string               `json:"consultationId,omitempty"`
	Status         referrals.Status     `json:"status"`
	Match          patients.MatchResult `json:"match"`
}

// Service links an extracted referral to a consultation: match or create the
// patient, reconcile GP and referrer contacts, then mark the document
// APPLIED.
//
// The sequence is deliberately not transactional across steps. A failure
// after patient creation leaves a patient without a linked document; retrying
// apply finds that patient again through the matching engine.
type Service struct {
	Documents referrals.Repo
	Patients  patients.Repo
	Matcher   *patients.Matcher
	Encryptor patients.Encryptor
	Audit     audit.Sink
}

// Apply runs the orchestration for one document. The document must be
// EXTRACTED.
func (s *Service) Apply(ctx context.Context, userID, practiceID, documentID string, req Request) (Result, error) {
	doc, err := s.Documents.GetByID(ctx, practiceID, documentID)
	if err != nil {
		return Result{}, err
	}
	if doc.Status != referrals.StatusExtracted {
		return Result{}, &referrals.StateError{
			Op:      "apply",
			Current: doc.Status,
			Want:    []referrals.Status{referrals.StatusExtracted},
		}
	}

	patient, gp, referrer := resolveSections(doc, req)
	if patient == nil {
		return Result{}, fmt.Errorf("%w: no patient identity available", referrals.ErrInvalidInput)
	}

	identity := patients.Identity{
		FullName:    patient.FullName,
		DateOfBirth: extraction.NormalizeDate(patient.DateOfBirth),
		Medicare:    patient.Medicare,
		MRN:         patient.MRN,
	}

	match, err := s.Matcher.Match(ctx, practiceID, identity)
	if err != nil {
		return Result{}, err
	}

	result := Result{Match: match, PatientID: match.PatientID}
	if match.MatchType == patients.MatchTypeNone {
		created, err := s.createPatient(ctx, practiceID, identity)
		if err != nil {
			return Result{}, err
		}
		result.PatientID = created.ID
		result.PatientCreated = true
	}

	if gp != nil {
		referrerID, err := s.reconcileGP(ctx, practiceID, result.PatientID, gp)
		if err != nil {
			return Result{}, err
		}
		result.ReferrerID = referrerID
	}

	if referrer != nil {
		if err := s.reconcileReferrerContact(ctx, result.PatientID, referrer); err != nil {
			return Result{}, err
		}
	}

	consultationID := req.ConsultationID
	if consultationID == "" {
		consultationID = uuid.NewString()
	}

	if err := s.Documents.LinkApplied(ctx, documentID, result.PatientID, consultationID); err != nil {
		return Result{}, err
	}
	result.ConsultationID = consultationID
	result.Status = referrals.StatusApplied
	metrics.IncReferralApplied()

	s.Audit.Record(ctx, audit.Event{
		Action:     "referral.applied",
		DocumentID: documentID,
		UserID:     userID,
		PracticeID: practiceID,
		Detail: map[string]any{
			"patient_id":      result.PatientID,
			"patient_created": result.PatientCreated,
			"match_type":      match.MatchType,
			"consultation_id": consultationID,
		},
	})
	return result, nil
}

// resolveSections prefers request overrides, falling back to the stored
// extraction result.
func resolveSections(doc referrals.Document, req Request) (*extraction.ExtractedPatientInfo, *extraction.ExtractedGPInfo, *extraction.ExtractedReferrerInfo) {
	patient := req.Patient
	gp := req.GP
	referrer := req.Referrer
	if doc.ExtractedData != nil {
		if patient == nil {
			p := doc.ExtractedData.Patient
			patient = &p
		}
		if gp == nil {
			g := doc.ExtractedData.GP
			gp = &g
		}
		if referrer == nil {
			referrer = doc.ExtractedData.Referrer
		}
	}
	if gp != nil && gp.GPName == nil && gp.PracticeName == nil {
		gp = nil
	}
	if referrer != nil && referrer.Name == nil {
		referrer = nil
	}
	return patient, gp, referrer
}

func (s *Service) createPatient(ctx context.Context, practiceID string, identity patients.Identity) (patients.Patient, error) {
	seal := func(v *string) ([]byte, error) {
		if v == nil || *v == "" {
			return nil, nil
		}
		return s.Encryptor.Encrypt(*v)
	}

	p := patients.Patient{
		ID:         uuid.NewString(),
		PracticeID: practiceID,
		CreatedAt:  time.Now().UTC(),
	}
	var err error
	if p.EncryptedName, err = seal(identity.FullName); err != nil {
		return patients.Patient{}, fmt.Errorf("encrypt name: %w", err)
	}
	if p.EncryptedDateOfBirth, err = seal(identity.DateOfBirth); err != nil {
		return patients.Patient{}, fmt.Errorf("encrypt dob: %w", err)
	}
	if p.EncryptedMedicare, err = seal(identity.Medicare); err != nil {
		return patients.Patient{}, fmt.Errorf("encrypt medicare: %w", err)
	}
	if p.EncryptedMRN, err = seal(identity.MRN); err != nil {
		return patients.Patient{}, fmt.Errorf("encrypt mrn: %w", err)
	}

	if err := s.Patients.CreatePatient(ctx, p); err != nil {
		return patients.Patient{}, err
	}
	telemetry.Info("apply.patient_created", map[string]any{
		"patient_id":  p.ID,
		"practice_id": practiceID,
	})
	return p, nil
}

// reconcileGP finds or creates the practice-level referrer and the
// patient-level GP contact, both matched case-insensitively by name.
func (s *Service) reconcileGP(ctx context.Context, practiceID, patientID string, gp *extraction.ExtractedGPInfo) (string, error) {
	name := firstValue(gp.GPName, gp.PracticeName)
	if name == "" {
		return "", nil
	}

	ref, err := s.Patients.FindReferrerByName(ctx, practiceID, name)
	if errors.Is(err, patients.ErrNotFound) {
		ref = patients.Referrer{
			ID:             uuid.NewString(),
			PracticeID:     practiceID,
			Name:           name,
			ProviderNumber: deref(gp.ProviderNumber),
			Organization:   deref(gp.PracticeName),
			CreatedAt:      time.Now().UTC(),
		}
		if err := s.Patients.CreateReferrer(ctx, ref); err != nil {
			return "", err
		}
	} else if err != nil {
		return "", err
	}

	_, err = s.Patients.FindContactByName(ctx, patientID, patients.ContactKindGP, name)
	if errors.Is(err, patients.ErrNotFound) {
		contact := patients.Contact{
			ID:             uuid.NewString(),
			PatientID:      patientID,
			Kind:           patients.ContactKindGP,
			Name:           name,
			PracticeName:   deref(gp.PracticeName),
			ProviderNumber: deref(gp.ProviderNumber),
			Phone:          deref(gp.Phone),
			Fax:            deref(gp.Fax),
			CreatedAt:      time.Now().UTC(),
		}
		if err := s.Patients.CreateContact(ctx, contact); err != nil {
			return "", err
		}
	} else if err != nil {
		return "", err
	}

	return ref.ID, nil
}

// reconcileReferrerContact records the named referrer (when distinct from
// the GP) as a patient-level contact.
func (s *Service) reconcileReferrerContact(ctx context.Context, patientID string, referrer *extraction.ExtractedReferrerInfo) error {
	name := deref(referrer.Name)
	if name == "" {
		return nil
	}
	_, err := s.Patients.FindContactByName(ctx, patientID, patients.ContactKindReferrer, name)
	if errors.Is(err, patients.ErrNotFound) {
		contact := patients.Contact{
			ID:             uuid.NewString(),
			PatientID:      patientID,
			Kind:           patients.ContactKindReferrer,
			Name:           name,
			PracticeName:   deref(referrer.Organization),
			ProviderNumber: deref(referrer.ProviderNumber),
			CreatedAt:      time.Now().UTC(),
		}
		return s.Patients.CreateContact(ctx, contact)
	}
	return err
}

func firstValue(values ...*string) string {
	for _, v := range values {
		if v != nil && *v != "" {
			return *v
		}
	}
	return ""
}

func deref(v *string) string {
	if v == nil {
		return ""
	}
	return *v
}
