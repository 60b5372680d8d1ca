package extraction

import (
	"strings"
	"time"
)

// Confidence levels assigned to extracted fields.
const (
	LevelHigh   = "high"
	LevelMedium = "medium"
	LevelLow    = "low"
)

const (
	highConfidenceFloor   = 0.85
	mediumConfidenceFloor = 0.70
)

// FieldConfidence is a single extracted value with the model's confidence in it.
type FieldConfidence struct {
	Value      *string `json:"value"`
	Confidence float64 `json:"confidence"`
	Level      string  `json:"level"`
}

// NewFieldConfidence builds a FieldConfidence from a raw value and confidence.
// Empty or whitespace-only values become nil; confidence is clamped to [0,1].
func NewFieldConfidence(value *string, confidence float64) FieldConfidence {
	cleaned := cleanString(value)
	clamped := clampConfidence(confidence)
	return FieldConfidence{
		Value:      cleaned,
		Confidence: clamped,
		Level:      LevelForConfidence(clamped),
	}
}

// LevelForConfidence maps a confidence score to its display level.
func LevelForConfidence(confidence float64) string {
	switch {
	case confidence >= highConfidenceFloor:
		return LevelHigh
	case confidence >= mediumConfidenceFloor:
		return LevelMedium
	default:
		return LevelLow
	}
}

// FastExtractedData is the phase-1 result: identifiers only.
type FastExtractedData struct {
	PatientName       FieldConfidence `json:"patientName"`
	DateOfBirth       FieldConfidence `json:"dateOfBirth"`
	MRN               FieldConfidence `json:"mrn"`
	OverallConfidence float64         `json:"overallConfidence"`
	ExtractedAt       time.Time       `json:"extractedAt"`
	ModelUsed         string          `json:"modelUsed"`
	ProcessingTimeMs  int64           `json:"processingTimeMs"`
}

// HasData reports whether any identifier field was extracted.
func (d FastExtractedData) HasData() bool {
	return d.PatientName.Value != nil || d.DateOfBirth.Value != nil || d.MRN.Value != nil
}

// HasMinimumData reports whether enough was extracted to pre-fill a patient
// (a name at minimum).
func (d FastExtractedData) HasMinimumData() bool {
	return d.PatientName.Value != nil
}

// ExtractedPatientInfo is the patient section of a full extraction.
type ExtractedPatientInfo struct {
	FullName    *string `json:"fullName,omitempty"`
	DateOfBirth *string `json:"dateOfBirth,omitempty"`
	Medicare    *string `json:"medicare,omitempty"`
	MRN         *string `json:"mrn,omitempty"`
	Address     *string `json:"address,omitempty"`
	Phone       *string `json:"phone,omitempty"`
	Email       *string `json:"email,omitempty"`
	Confidence  float64 `json:"confidence"`
}

func (p ExtractedPatientInfo) present() bool {
	return anyPresent(p.FullName, p.DateOfBirth, p.Medicare, p.MRN, p.Address, p.Phone, p.Email)
}

// ExtractedGPInfo is the general-practitioner section of a full extraction.
type ExtractedGPInfo struct {
	PracticeName   *string `json:"practiceName,omitempty"`
	GPName         *string `json:"gpName,omitempty"`
	ProviderNumber *string `json:"providerNumber,omitempty"`
	Address        *string `json:"address,omitempty"`
	Phone          *string `json:"phone,omitempty"`
	Fax            *string `json:"fax,omitempty"`
	Confidence     float64 `json:"confidence"`
}

func (g ExtractedGPInfo) present() bool {
	return anyPresent(g.PracticeName, g.GPName, g.ProviderNumber, g.Address, g.Phone, g.Fax)
}

// ExtractedReferrerInfo is the referring-clinician section, when the referrer
// is someone other than the GP.
type ExtractedReferrerInfo struct {
	Name           *string `json:"name,omitempty"`
	Specialty      *string `json:"specialty,omitempty"`
	ProviderNumber *string `json:"providerNumber,omitempty"`
	Organization   *string `json:"organization,omitempty"`
	Confidence     float64 `json:"confidence"`
}

func (r ExtractedReferrerInfo) present() bool {
	return anyPresent(r.Name, r.Specialty, r.ProviderNumber, r.Organization)
}

// ExtractedReferralContext is the clinical-context section of a full extraction.
type ExtractedReferralContext struct {
	Reason          *string `json:"reason,omitempty"`
	ClinicalHistory *string `json:"clinicalHistory,omitempty"`
	Medications     *string `json:"medications,omitempty"`
	Allergies       *string `json:"allergies,omitempty"`
	Urgency         *string `json:"urgency,omitempty"`
	ReferralDate    *string `json:"referralDate,omitempty"`
	Confidence      float64 `json:"confidence"`
}

func (c ExtractedReferralContext) present() bool {
	return anyPresent(c.Reason, c.ClinicalHistory, c.Medications, c.Allergies, c.Urgency, c.ReferralDate)
}

// ReferralExtractedData aggregates all full-extraction sections.
type ReferralExtractedData struct {
	Patient           ExtractedPatientInfo     `json:"patient"`
	GP                ExtractedGPInfo          `json:"gp"`
	Referrer          *ExtractedReferrerInfo   `json:"referrer,omitempty"`
	Context           ExtractedReferralContext `json:"context"`
	OverallConfidence float64                  `json:"overallConfidence"`
	ExtractedAt       time.Time                `json:"extractedAt"`
	ModelUsed         string                   `json:"modelUsed"`
}

// Section weights for the overall confidence of a full extraction. Only
// sections with at least one extracted value contribute.
const (
	patientSectionWeight  = 2.0
	gpSectionWeight       = 1.0
	contextSectionWeight  = 1.0
	referrerSectionWeight = 1.0
)

// Field weights for the overall confidence of a fast extraction. Only fields
// with a present value contribute; the total is renormalized over what did.
const (
	fastNameWeight = 0.40
	fastDOBWeight  = 0.35
	fastMRNWeight  = 0.25
)

func fastOverallConfidence(name, dob, mrn FieldConfidence) float64 {
	var weighted, total float64
	if name.Value != nil {
		weighted += name.Confidence * fastNameWeight
		total += fastNameWeight
	}
	if dob.Value != nil {
		weighted += dob.Confidence * fastDOBWeight
		total += fastDOBWeight
	}
	if mrn.Value != nil {
		weighted += mrn.Confidence * fastMRNWeight
		total += fastMRNWeight
	}
	if total == 0 {
		return 0
	}
	return clampConfidence(weighted / total)
}

func fullOverallConfidence(data ReferralExtractedData) float64 {
	var weighted, total float64
	if data.Patient.present() {
		weighted += data.Patient.Confidence * patientSectionWeight
		total += patientSectionWeight
	}
	if data.GP.present() {
		weighted += data.GP.Confidence * gpSectionWeight
		total += gpSectionWeight
	}
	if data.Context.present() {
		weighted += data.Context.Confidence * contextSectionWeight
		total += contextSectionWeight
	}
	if data.Referrer != nil && data.Referrer.present() {
		weighted += data.Referrer.Confidence * referrerSectionWeight
		total += referrerSectionWeight
	}
	if total == 0 {
		return 0
	}
	return clampConfidence(weighted / total)
}

func clampConfidence(value float64) float64 {
	if value < 0 {
		return 0
	}
	if value > 1 {
		return 1
	}
	return value
}

func cleanString(value *string) *string {
	if value == nil {
		return nil
	}
	trimmed := strings.TrimSpace(*value)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}

func anyPresent(values ...*string) bool {
	for _, v := range values {
		if v != nil && strings.TrimSpace(*v) != "" {
			return true
		}
	}
	return false
}
