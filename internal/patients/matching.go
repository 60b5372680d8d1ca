package patients

import (
	"context"
	"strings"
	"unicode"

	"referral-backend/internal/shared/telemetry"
)

// Identity is the partial identity handed to the matching engine, typically
// assembled from extraction output.
type Identity struct {
	FullName    *string
	DateOfBirth *string // ISO yyyy-mm-dd
	Medicare    *string
	MRN         *string
}

// Match outcome classification.
const (
	MatchTypeMRN      = "mrn"
	MatchTypeMedicare = "medicare"
	MatchTypeNameDOB  = "name_dob"
	MatchTypeNone     = "none"

	ConfidenceExact = "exact"
	ConfidenceNone  = "none"
)

// MatchResult reports how an identity resolved against the practice's
// patient set.
type MatchResult struct {
	MatchType   string `json:"matchType"`
	PatientID   string `json:"patientId,omitempty"`
	PatientName string `json:"patientName,omitempty"`
	Confidence  string `json:"confidence"`
}

// Matcher resolves extracted identities against existing patients. Candidate
// identity fields only exist encrypted at rest, so every match is a linear
// scan with a decrypt per candidate. Acceptable at practice scale; do not
// add a plaintext or hash index without agreeing search-by-hash semantics
// for the encrypted fields first.
type Matcher struct {
	Repo      Repo
	Encryptor Encryptor
}

// Match applies the priority order MRN, then Medicare, then name+DOB. First
// hit wins.
func (m *Matcher) Match(ctx context.Context, practiceID string, identity Identity) (MatchResult, error) {
	candidates, err := m.Repo.ListByPractice(ctx, practiceID)
	if err != nil {
		return MatchResult{}, err
	}

	mrn := normalizeIdentifier(identity.MRN)
	medicare := normalizeIdentifier(identity.Medicare)
	name := normalizeName(identity.FullName)
	dob := ""
	if identity.DateOfBirth != nil {
		dob = strings.TrimSpace(*identity.DateOfBirth)
	}

	type decrypted struct {
		id     string
		fields candidateFields
	}
	pool := make([]decrypted, 0, len(candidates))
	for _, candidate := range candidates {
		fields, ok := m.decryptCandidate(candidate)
		if !ok {
			continue
		}
		pool = append(pool, decrypted{id: candidate.ID, fields: fields})
	}

	// Each strategy scans the whole practice before the next one runs, so a
	// Medicare hit never shadows an MRN hit on a later candidate.
	if mrn != "" {
		for _, c := range pool {
			if normalizeIdentifierString(c.fields.mrn) == mrn {
				return m.hit(MatchTypeMRN, c.id, c.fields.name), nil
			}
		}
	}
	if medicare != "" {
		for _, c := range pool {
			if normalizeIdentifierString(c.fields.medicare) == medicare {
				return m.hit(MatchTypeMedicare, c.id, c.fields.name), nil
			}
		}
	}
	if name != "" && dob != "" {
		for _, c := range pool {
			if normalizeNameString(c.fields.name) == name && strings.TrimSpace(c.fields.dob) == dob {
				return m.hit(MatchTypeNameDOB, c.id, c.fields.name), nil
			}
		}
	}

	return MatchResult{MatchType: MatchTypeNone, Confidence: ConfidenceNone}, nil
}

type candidateFields struct {
	name     string
	dob      string
	medicare string
	mrn      string
}

func (m *Matcher) decryptCandidate(p Patient) (candidateFields, bool) {
	var fields candidateFields
	var err error
	decrypt := func(dst *string, ciphertext []byte) bool {
		if len(ciphertext) == 0 {
			return true
		}
		*dst, err = m.Encryptor.Decrypt(ciphertext)
		if err != nil {
			telemetry.Error("patients.match.decrypt_failed", map[string]any{
				"patient_id": p.ID,
				"err":        err.Error(),
			})
			return false
		}
		return true
	}
	if !decrypt(&fields.name, p.EncryptedName) ||
		!decrypt(&fields.dob, p.EncryptedDateOfBirth) ||
		!decrypt(&fields.medicare, p.EncryptedMedicare) ||
		!decrypt(&fields.mrn, p.EncryptedMRN) {
		return candidateFields{}, false
	}
	return fields, true
}

func (m *Matcher) hit(matchType, patientID, patientName string) MatchResult {
	return MatchResult{
		MatchType:   matchType,
		PatientID:   patientID,
		PatientName: patientName,
		Confidence:  ConfidenceExact,
	}
}

func normalizeIdentifier(v *string) string {
	if v == nil {
		return ""
	}
	return normalizeIdentifierString(*v)
}

// normalizeIdentifierString strips all whitespace and case-folds, so
// "2428 77813 1" and "242877813-1"-style Medicare renderings compare equal
// modulo separators the extractor kept.
func normalizeIdentifierString(v string) string {
	var b strings.Builder
	for _, r := range v {
		// OCR output carries non-breaking spaces and stray newlines, so
		// all Unicode whitespace is stripped, not just ASCII space.
		if unicode.IsSpace(r) {
			continue
		}
		b.WriteRune(r)
	}
	return strings.ToLower(b.String())
}

func normalizeName(v *string) string {
	if v == nil {
		return ""
	}
	return normalizeNameString(*v)
}

func normalizeNameString(v string) string {
	return strings.ToLower(strings.TrimSpace(v))
}
