package extraction

import (
	"fmt"
	"sort"
	"strings"
)

// Conflict types reported when documents in one intake batch disagree.
const (
	ConflictName = "name"
	ConflictDOB  = "dob"
	ConflictBoth = "both"
)

// SuggestedPatient is the most trustworthy identity in a batch: the raw name
// from the document with the highest overall confidence.
type SuggestedPatient struct {
	Name       string  `json:"name"`
	Confidence float64 `json:"confidence"`
}

// ConflictResult reports whether documents in a batch describe different
// patients.
type ConflictResult struct {
	HasConflict         bool              `json:"hasConflict"`
	ConflictType        string            `json:"conflictType,omitempty"`
	UniqueNames         []string          `json:"uniqueNames"`
	UniqueDOBs          []string          `json:"uniqueDobs"`
	SuggestedPatient    *SuggestedPatient `json:"suggestedPatient,omitempty"`
	ConflictDescription string            `json:"conflictDescription,omitempty"`
}

// DetectConflicts compares fast-extraction results across the documents of a
// single intake batch. Nil entries (documents still pending) are skipped.
func DetectConflicts(results []*FastExtractedData) ConflictResult {
	nameSet := map[string]struct{}{}
	dobSet := map[string]struct{}{}
	var suggested *SuggestedPatient

	for _, r := range results {
		if r == nil {
			continue
		}
		if r.PatientName.Value != nil {
			if normalized := NormalizePatientName(*r.PatientName.Value); normalized != "" {
				nameSet[normalized] = struct{}{}
			}
			if suggested == nil || r.OverallConfidence > suggested.Confidence {
				suggested = &SuggestedPatient{
					Name:       *r.PatientName.Value,
					Confidence: r.OverallConfidence,
				}
			}
		}
		if dob := NormalizeDate(r.DateOfBirth.Value); dob != nil {
			dobSet[*dob] = struct{}{}
		}
	}

	result := ConflictResult{
		UniqueNames:      sortedKeys(nameSet),
		UniqueDOBs:       sortedKeys(dobSet),
		SuggestedPatient: suggested,
	}

	nameConflict := len(result.UniqueNames) > 1
	dobConflict := len(result.UniqueDOBs) > 1
	switch {
	case nameConflict && dobConflict:
		result.HasConflict = true
		result.ConflictType = ConflictBoth
		result.ConflictDescription = fmt.Sprintf(
			"documents name %d different patients with %d different dates of birth",
			len(result.UniqueNames), len(result.UniqueDOBs))
	case nameConflict:
		result.HasConflict = true
		result.ConflictType = ConflictName
		result.ConflictDescription = fmt.Sprintf(
			"documents name %d different patients: %s",
			len(result.UniqueNames), strings.Join(result.UniqueNames, "; "))
	case dobConflict:
		result.HasConflict = true
		result.ConflictType = ConflictDOB
		result.ConflictDescription = fmt.Sprintf(
			"documents carry %d different dates of birth: %s",
			len(result.UniqueDOBs), strings.Join(result.UniqueDOBs, "; "))
	}
	return result
}

func sortedKeys(set map[string]struct{}) []string {
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
