package extraction

import (
	"regexp"
	"strings"
)

var (
	reWhitespaceRun = regexp.MustCompile(`\s+`)

	honorificPrefixes = []string{"mr", "mrs", "ms", "miss", "dr", "prof", "a/prof"}
	nameSuffixes      = []string{"jr", "sr", "i", "ii", "iii", "iv", "v"}
)

// NormalizePatientName lower-cases, trims, collapses internal whitespace, and
// strips honorific prefixes and generational suffixes so that variants of the
// same name compare equal.
func NormalizePatientName(name string) string {
	lowered := strings.ToLower(strings.TrimSpace(name))
	lowered = reWhitespaceRun.ReplaceAllString(lowered, " ")
	if lowered == "" {
		return ""
	}

	parts := strings.Split(lowered, " ")
	for len(parts) > 1 && isHonorific(parts[0]) {
		parts = parts[1:]
	}
	for len(parts) > 1 && isSuffix(parts[len(parts)-1]) {
		parts = parts[:len(parts)-1]
	}
	return strings.Join(parts, " ")
}

func isHonorific(word string) bool {
	word = strings.TrimSuffix(word, ".")
	for _, p := range honorificPrefixes {
		if word == p {
			return true
		}
	}
	return false
}

func isSuffix(word string) bool {
	word = strings.TrimSuffix(word, ".")
	for _, s := range nameSuffixes {
		if word == s {
			return true
		}
	}
	return false
}
