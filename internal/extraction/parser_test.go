package extraction

import (
	"errors"
	"testing"
	"time"
)

var parseTime = time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)

const fastPayload = `{"name":"John Smith","dob":"15/05/1990","mrn":"445566","nameConfidence":0.95,"dobConfidence":0.9,"mrnConfidence":0.88}`

func TestParseFastResponse(t *testing.T) {
	data, err := ParseFastResponse(fastPayload, "gpt-4o-mini", parseTime)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if data.PatientName.Value == nil || *data.PatientName.Value != "John Smith" {
		t.Fatalf("unexpected name: %v", deref(data.PatientName.Value))
	}
	if data.PatientName.Level != LevelHigh {
		t.Errorf("expected high level for 0.95, got %s", data.PatientName.Level)
	}
	if data.DateOfBirth.Value == nil || *data.DateOfBirth.Value != "1990-05-15" {
		t.Errorf("expected ISO DOB, got %v", deref(data.DateOfBirth.Value))
	}
	if !data.HasData() || !data.HasMinimumData() {
		t.Error("expected data predicates to hold")
	}
	if data.OverallConfidence <= 0 || data.OverallConfidence > 1 {
		t.Errorf("overall confidence out of range: %f", data.OverallConfidence)
	}
	if data.ModelUsed != "gpt-4o-mini" {
		t.Errorf("model not recorded: %s", data.ModelUsed)
	}
}

func TestParseFastResponseFencedMatchesBare(t *testing.T) {
	bare, err := ParseFastResponse(fastPayload, "m", parseTime)
	if err != nil {
		t.Fatalf("bare parse: %v", err)
	}
	fenced, err := ParseFastResponse("```json\n"+fastPayload+"\n```", "m", parseTime)
	if err != nil {
		t.Fatalf("fenced parse: %v", err)
	}
	if *bare.PatientName.Value != *fenced.PatientName.Value ||
		bare.OverallConfidence != fenced.OverallConfidence {
		t.Fatal("fenced payload parsed differently from bare payload")
	}
}

func TestParseFastResponseRescuesSurroundingProse(t *testing.T) {
	data, err := ParseFastResponse("Here is the extraction:\n"+fastPayload+"\nLet me know.", "m", parseTime)
	if err != nil {
		t.Fatalf("parse with prose: %v", err)
	}
	if data.PatientName.Value == nil {
		t.Fatal("expected name after JSON rescue")
	}
}

func TestParseFastResponseCoercion(t *testing.T) {
	raw := `{"name":"  ","dob":null,"mrn":12345,"nameConfidence":"0.8","dobConfidence":9,"mrnConfidence":"bad"}`
	data, err := ParseFastResponse(raw, "m", parseTime)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if data.PatientName.Value != nil {
		t.Error("whitespace-only name should be nil")
	}
	if data.MRN.Value == nil || *data.MRN.Value != "12345" {
		t.Errorf("numeric mrn should coerce to string, got %v", deref(data.MRN.Value))
	}
	if data.DateOfBirth.Confidence != 1 {
		t.Errorf("confidence above 1 should clamp, got %f", data.DateOfBirth.Confidence)
	}
	if data.MRN.Confidence != 0 {
		t.Errorf("non-numeric confidence should default 0, got %f", data.MRN.Confidence)
	}
}

func TestParseFastResponseErrors(t *testing.T) {
	cases := []struct {
		raw  string
		code string
	}{
		{"no braces here", CodeParseError},
		{"", CodeParseError},
		{"[1,2,3]", CodeSchemaError},
		{`"just a string"`, CodeValidationError},
	}
	for _, tc := range cases {
		_, err := ParseFastResponse(tc.raw, "m", parseTime)
		var xerr *Error
		if !errors.As(err, &xerr) {
			t.Fatalf("raw %q: expected *Error, got %v", tc.raw, err)
		}
		if xerr.Code != tc.code {
			t.Errorf("raw %q: expected %s, got %s", tc.raw, tc.code, xerr.Code)
		}
	}
}

func TestFastOverallConfidenceRenormalizes(t *testing.T) {
	// Only a name: the full weight renormalizes to that field.
	data, err := ParseFastResponse(`{"name":"Jane Doe","nameConfidence":0.9}`, "m", parseTime)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if data.OverallConfidence != 0.9 {
		t.Fatalf("expected 0.9 with only name present, got %f", data.OverallConfidence)
	}

	// Nothing present: exactly zero.
	empty, err := ParseFastResponse(`{}`, "m", parseTime)
	if err != nil {
		t.Fatalf("parse empty: %v", err)
	}
	if empty.OverallConfidence != 0 {
		t.Fatalf("expected 0 with nothing present, got %f", empty.OverallConfidence)
	}
	if empty.HasData() {
		t.Error("empty extraction should report no data")
	}
}

func TestParseFullResponse(t *testing.T) {
	raw := `{
		"patient": {"fullName":"John Smith","dateOfBirth":"15/05/1990","medicare":"1234 56789 0","confidence":0.92},
		"gp": {"practiceName":"Riverside Family Practice","gpName":"Dr Sarah Lee","confidence":0.85},
		"referralContext": {"reason":"Cardiology review","urgency":"routine","referralDate":"01/04/2025","confidence":0.8},
		"referrer": {"name":"Dr Alan Wu","specialty":"Cardiology","confidence":0.75}
	}`
	data, err := ParseFullResponse(raw, "gpt-4o", parseTime)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if data.Patient.FullName == nil || *data.Patient.FullName != "John Smith" {
		t.Fatalf("unexpected patient name: %v", deref(data.Patient.FullName))
	}
	if data.Patient.DateOfBirth == nil || *data.Patient.DateOfBirth != "1990-05-15" {
		t.Errorf("DOB not normalized: %v", deref(data.Patient.DateOfBirth))
	}
	if data.Context.ReferralDate == nil || *data.Context.ReferralDate != "2025-04-01" {
		t.Errorf("referral date not normalized: %v", deref(data.Context.ReferralDate))
	}
	if data.Referrer == nil || data.Referrer.Name == nil || *data.Referrer.Name != "Dr Alan Wu" {
		t.Error("referrer section missing")
	}
	// patient 2 * .92 + gp 1 * .85 + context 1 * .8 + referrer 1 * .75 over 5
	want := (0.92*2 + 0.85 + 0.8 + 0.75) / 5
	if diff := data.OverallConfidence - want; diff > 1e-9 || diff < -1e-9 {
		t.Errorf("overall confidence: got %f want %f", data.OverallConfidence, want)
	}
}

func TestParseFullResponsePromptShape(t *testing.T) {
	// The full-extraction prompt asks for "referralContext" with a
	// "reasonForReferral" key; a compliant model response must not lose it.
	raw := `{
		"patient": {"fullName":"John Smith","dateOfBirth":"15/05/1990","medicare":"1234 56789 0","mrn":null,"address":null,"phone":null,"email":null,"confidence":0.92},
		"gp": {"practiceName":"Riverside Family Practice","gpName":"Dr Sarah Lee","providerNumber":null,"address":null,"phone":null,"fax":null,"confidence":0.85},
		"referrer": {"name":"Dr Alan Wu","specialty":"Cardiology","providerNumber":null,"organization":null,"confidence":0.75},
		"referralContext": {"reasonForReferral":"Cardiology review","clinicalHistory":null,"medications":null,"allergies":null,"urgency":"routine","referralDate":"01/04/2025","confidence":0.8}
	}`
	data, err := ParseFullResponse(raw, "gpt-4o", parseTime)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if data.Context.Reason == nil || *data.Context.Reason != "Cardiology review" {
		t.Fatalf("reason for referral dropped: %v", deref(data.Context.Reason))
	}
	if data.Context.Urgency == nil || *data.Context.Urgency != "routine" {
		t.Errorf("urgency dropped: %v", deref(data.Context.Urgency))
	}
}

func TestParseFullResponseWithoutReferrer(t *testing.T) {
	raw := `{"patient":{"fullName":"Jane Doe","confidence":0.9},"gp":{},"referralContext":{"reason":"review","confidence":0.5}}`
	data, err := ParseFullResponse(raw, "m", parseTime)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if data.Referrer != nil {
		t.Error("empty referrer section should stay nil")
	}
	// Empty GP section contributes no weight.
	want := (0.9*2 + 0.5) / 3
	if diff := data.OverallConfidence - want; diff > 1e-9 || diff < -1e-9 {
		t.Errorf("overall confidence: got %f want %f", data.OverallConfidence, want)
	}
}

func TestParseFullResponseMissingPatient(t *testing.T) {
	_, err := ParseFullResponse(`{"gp":{}}`, "m", parseTime)
	var xerr *Error
	if !errors.As(err, &xerr) || xerr.Code != CodeSchemaError {
		t.Fatalf("expected SCHEMA_ERROR, got %v", err)
	}
}

func TestLevelForConfidence(t *testing.T) {
	if LevelForConfidence(0.85) != LevelHigh || LevelForConfidence(0.99) != LevelHigh {
		t.Error("expected high at >=0.85")
	}
	if LevelForConfidence(0.70) != LevelMedium || LevelForConfidence(0.84) != LevelMedium {
		t.Error("expected medium at >=0.70")
	}
	if LevelForConfidence(0.69) != LevelLow || LevelForConfidence(0) != LevelLow {
		t.Error("expected low below 0.70")
	}
}

func TestStripCodeFences(t *testing.T) {
	if got := StripCodeFences("```json {\"a\":1} ```"); got != `{"a":1}` {
		t.Errorf("inline fence: got %q", got)
	}
	if got := StripCodeFences("```\n{\"a\":1}\n```"); got != `{"a":1}` {
		t.Errorf("bare fence: got %q", got)
	}
	if got := StripCodeFences(`{"a":1}`); got != `{"a":1}` {
		t.Errorf("unfenced: got %q", got)
	}
}
