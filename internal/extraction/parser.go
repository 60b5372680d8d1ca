package extraction

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

var reJSONObject = regexp.MustCompile(`(?s)\{.*\}`)

// ParseFastResponse turns raw model output from a fast (phase-1) extraction
// into typed, confidence-annotated data. Model output is untrusted: every
// field is coerced with explicit fallbacks rather than trusting the declared
// shape.
func ParseFastResponse(rawText, modelUsed string, extractedAt time.Time) (FastExtractedData, error) {
	payload, err := decodeObject(rawText)
	if err != nil {
		return FastExtractedData{}, err
	}

	name := NewFieldConfidence(coerceString(payload["name"]), coerceConfidence(payload["nameConfidence"]))
	dob := NewFieldConfidence(NormalizeDate(coerceString(payload["dob"])), coerceConfidence(payload["dobConfidence"]))
	mrn := NewFieldConfidence(coerceString(payload["mrn"]), coerceConfidence(payload["mrnConfidence"]))

	return FastExtractedData{
		PatientName:       name,
		DateOfBirth:       dob,
		MRN:               mrn,
		OverallConfidence: fastOverallConfidence(name, dob, mrn),
		ExtractedAt:       extractedAt.UTC(),
		ModelUsed:         modelUsed,
	}, nil
}

// ParseFullResponse turns raw model output from a full (phase-2) extraction
// into the complete referral context.
func ParseFullResponse(rawText, modelUsed string, extractedAt time.Time) (ReferralExtractedData, error) {
	payload, err := decodeObject(rawText)
	if err != nil {
		return ReferralExtractedData{}, err
	}

	patientRaw, ok := section(payload, "patient")
	if !ok {
		return ReferralExtractedData{}, schemaError("missing patient section")
	}

	data := ReferralExtractedData{
		Patient:     parsePatientSection(patientRaw),
		ExtractedAt: extractedAt.UTC(),
		ModelUsed:   modelUsed,
	}
	if gpRaw, ok := section(payload, "gp"); ok {
		data.GP = parseGPSection(gpRaw)
	}
	if ctxRaw, ok := section(payload, "referralContext", "context"); ok {
		data.Context = parseContextSection(ctxRaw)
	}
	if refRaw, ok := section(payload, "referrer"); ok {
		ref := parseReferrerSection(refRaw)
		if ref.present() {
			data.Referrer = &ref
		}
	}

	data.OverallConfidence = fullOverallConfidence(data)
	return data, nil
}

func parsePatientSection(raw map[string]any) ExtractedPatientInfo {
	return ExtractedPatientInfo{
		FullName:    coerceString(raw["fullName"]),
		DateOfBirth: NormalizeDate(coerceString(raw["dateOfBirth"])),
		Medicare:    coerceString(raw["medicare"]),
		MRN:         coerceString(raw["mrn"]),
		Address:     coerceString(raw["address"]),
		Phone:       coerceString(raw["phone"]),
		Email:       coerceString(raw["email"]),
		Confidence:  coerceConfidence(raw["confidence"]),
	}
}

func parseGPSection(raw map[string]any) ExtractedGPInfo {
	return ExtractedGPInfo{
		PracticeName:   coerceString(raw["practiceName"]),
		GPName:         coerceString(raw["gpName"]),
		ProviderNumber: coerceString(raw["providerNumber"]),
		Address:        coerceString(raw["address"]),
		Phone:          coerceString(raw["phone"]),
		Fax:            coerceString(raw["fax"]),
		Confidence:     coerceConfidence(raw["confidence"]),
	}
}

func parseReferrerSection(raw map[string]any) ExtractedReferrerInfo {
	return ExtractedReferrerInfo{
		Name:           coerceString(raw["name"]),
		Specialty:      coerceString(raw["specialty"]),
		ProviderNumber: coerceString(raw["providerNumber"]),
		Organization:   coerceString(raw["organization"]),
		Confidence:     coerceConfidence(raw["confidence"]),
	}
}

func parseContextSection(raw map[string]any) ExtractedReferralContext {
	return ExtractedReferralContext{
		Reason:          coerceString(field(raw, "reasonForReferral", "reason")),
		ClinicalHistory: coerceString(raw["clinicalHistory"]),
		Medications:     coerceString(raw["medications"]),
		Allergies:       coerceString(raw["allergies"]),
		Urgency:         coerceString(raw["urgency"]),
		ReferralDate:    NormalizeDate(coerceString(raw["referralDate"])),
		Confidence:      coerceConfidence(raw["confidence"]),
	}
}

// decodeObject parses raw model text into a JSON object, stripping markdown
// code fences and, on a failed direct parse, rescuing the first {...} block.
func decodeObject(rawText string) (map[string]any, error) {
	cleaned := StripCodeFences(rawText)
	if strings.TrimSpace(cleaned) == "" {
		return nil, parseError("empty response", nil)
	}

	var value any
	if err := json.Unmarshal([]byte(cleaned), &value); err != nil {
		block := reJSONObject.FindString(cleaned)
		if block == "" {
			return nil, parseError("no JSON object in response", err)
		}
		if retryErr := json.Unmarshal([]byte(block), &value); retryErr != nil {
			return nil, parseError("extracted block is not valid JSON", retryErr)
		}
	}

	switch typed := value.(type) {
	case map[string]any:
		return typed, nil
	case []any:
		return nil, schemaError("expected object, got array")
	default:
		return nil, validationError(fmt.Sprintf("expected object, got %T", value))
	}
}

// StripCodeFences removes leading/trailing markdown fences (```json ... ```)
// that models wrap around JSON payloads.
func StripCodeFences(raw string) string {
	trimmed := strings.TrimSpace(raw)
	if !strings.HasPrefix(trimmed, "```") {
		return trimmed
	}
	trimmed = strings.TrimPrefix(trimmed, "```")
	if idx := strings.Index(trimmed, "\n"); idx >= 0 && strings.EqualFold(strings.TrimSpace(trimmed[:idx]), "json") {
		trimmed = trimmed[idx+1:]
	} else {
		trimmed = strings.TrimPrefix(trimmed, "json")
	}
	trimmed = strings.TrimSuffix(strings.TrimSpace(trimmed), "```")
	return strings.TrimSpace(trimmed)
}

// field returns the first of keys present in raw. Models are told one key
// name but drift between synonyms, so readers accept the known aliases.
func field(raw map[string]any, keys ...string) any {
	for _, key := range keys {
		if value, ok := raw[key]; ok {
			return value
		}
	}
	return nil
}

func section(payload map[string]any, keys ...string) (map[string]any, bool) {
	for _, key := range keys {
		if raw, ok := payload[key]; ok {
			if m, ok := raw.(map[string]any); ok {
				return m, true
			}
		}
	}
	return nil, false
}

// coerceString turns a loosely-typed JSON value into a trimmed string or nil.
func coerceString(value any) *string {
	switch typed := value.(type) {
	case string:
		return cleanString(&typed)
	case float64:
		s := strconv.FormatFloat(typed, 'f', -1, 64)
		return &s
	case bool:
		s := strconv.FormatBool(typed)
		return &s
	default:
		return nil
	}
}

// coerceConfidence turns a loosely-typed JSON value into a confidence in
// [0,1], defaulting to 0 for non-numeric input.
func coerceConfidence(value any) float64 {
	switch typed := value.(type) {
	case float64:
		return clampConfidence(typed)
	case string:
		if parsed, err := strconv.ParseFloat(strings.TrimSpace(typed), 64); err == nil {
			return clampConfidence(parsed)
		}
		return 0
	case json.Number:
		if parsed, err := typed.Float64(); err == nil {
			return clampConfidence(parsed)
		}
		return 0
	default:
		return 0
	}
}
