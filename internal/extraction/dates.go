package extraction

import (
	"fmt"
	"regexp"
	"time"
)

var (
	reISODate     = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}$`)
	reDayFirst    = regexp.MustCompile(`^(\d{1,2})[/\-.](\d{1,2})[/\-.](\d{4})$`)
	genericDateLayouts = []string{
		"2 January 2006",
		"2 Jan 2006",
		"January 2, 2006",
		"Jan 2, 2006",
		"2006/01/02",
		time.RFC3339,
	}
)

// NormalizeDate converts a date-like string to ISO YYYY-MM-DD. Day-first
// forms (DD/MM/YYYY, DD-MM-YYYY, DD.MM.YYYY) follow the Australian
// convention. Returns nil when the input cannot be read as a date; a single
// bad date never fails an extraction.
func NormalizeDate(raw *string) *string {
	cleaned := cleanString(raw)
	if cleaned == nil {
		return nil
	}
	value := *cleaned

	if reISODate.MatchString(value) {
		if _, err := time.Parse("2006-01-02", value); err == nil {
			return &value
		}
		return nil
	}

	if m := reDayFirst.FindStringSubmatch(value); m != nil {
		candidate := fmt.Sprintf("%s-%s-%s", m[3], pad2(m[2]), pad2(m[1]))
		if _, err := time.Parse("2006-01-02", candidate); err == nil {
			return &candidate
		}
		return nil
	}

	for _, layout := range genericDateLayouts {
		if t, err := time.Parse(layout, value); err == nil {
			iso := t.Format("2006-01-02")
			return &iso
		}
	}
	return nil
}

func pad2(s string) string {
	if len(s) == 1 {
		return "0" + s
	}
	return s
}
