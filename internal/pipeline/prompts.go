package pipeline

import (
	"referral-backend/internal/shared/telemetry"
)

// Input budgets in characters. Fast extraction only needs the letterhead and
// opening paragraphs; full extraction wants the whole letter.
const (
	fastMaxInputChars = 6_000
	fullMaxInputChars = 24_000
)

const fastSystemPrompt = `You extract patient identifiers from Australian medical referral letters. ` +
	`Respond with a single JSON object and nothing else. Dates are day-first (DD/MM/YYYY) unless written otherwise.`

const fastPromptHeader = `Extract ONLY the patient's full name, date of birth and medical record number (MRN/UR number) from the referral letter below.

Return JSON exactly in this shape:
{
  "name": "string or null",
  "nameConfidence": 0.0,
  "dob": "string or null",
  "dobConfidence": 0.0,
  "mrn": "string or null",
  "mrnConfidence": 0.0
}

Rules:
- each confidence is your certainty in [0,1] for that field
- use null when a field is absent or illegible, never guess
- copy values verbatim from the letter

Referral letter:
`

const fullSystemPrompt = `You extract structured referral data from Australian medical referral letters. ` +
	`Respond with a single JSON object and nothing else. Dates are day-first (DD/MM/YYYY) unless written otherwise.`

const fullPromptHeader = `Extract all referral information from the letter below.

Return JSON exactly in this shape:
{
  "patient": {"fullName": null, "dateOfBirth": null, "medicare": null, "mrn": null, "address": null, "phone": null, "email": null, "confidence": 0.0},
  "gp": {"practiceName": null, "gpName": null, "providerNumber": null, "address": null, "phone": null, "fax": null, "confidence": 0.0},
  "referrer": {"name": null, "specialty": null, "providerNumber": null, "organization": null, "confidence": 0.0},
  "referralContext": {"reasonForReferral": null, "clinicalHistory": null, "medications": null, "allergies": null, "urgency": null, "referralDate": null, "confidence": 0.0}
}

Rules:
- every leaf value is a string or null; confidence is your certainty in [0,1] per section
- "patient" is required; omit "referrer" entirely if the referrer is the GP
- use null for anything absent or illegible, never guess
- copy values verbatim from the letter

Referral letter:
`

// buildFastPrompt truncates the content when it exceeds the fast budget.
// Truncation is logged, never an error: identifiers live at the top of the
// letter.
func buildFastPrompt(documentID, contentText string) string {
	return fastPromptHeader + truncate(documentID, contentText, fastMaxInputChars, "fast")
}

func buildFullPrompt(documentID, contentText string) string {
	return fullPromptHeader + truncate(documentID, contentText, fullMaxInputChars, "full")
}

func truncate(documentID, text string, max int, phase string) string {
	if len(text) <= max {
		return text
	}
	telemetry.Info("pipeline.input_truncated", map[string]any{
		"document_id": documentID,
		"phase":       phase,
		"chars":       len(text),
		"max_chars":   max,
	})
	return text[:max]
}
