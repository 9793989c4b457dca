package vault

import (
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"
)

const maxSlugLen = 80

var (
	nonSlugChars = regexp.MustCompile(`[^a-z0-9]+`)
	dashRuns     = regexp.MustCompile(`-+`)
)

// SanitizeNoteID normalizes an arbitrary string into a note_id: NFKD-normalized
// to strip combining marks, lowercased, collapsed to ASCII alphanumerics and
// single dashes, trimmed, and capped at 80 chars with no trailing dash.
func SanitizeNoteID(s string) string {
	decomposed := norm.NFKD.String(s)

	var stripped strings.Builder
	for _, r := range decomposed {
		if unicode.Is(unicode.Mn, r) {
			continue // combining mark, drop
		}
		stripped.WriteRune(r)
	}

	lower := strings.ToLower(stripped.String())
	collapsed := nonSlugChars.ReplaceAllString(lower, "-")
	collapsed = dashRuns.ReplaceAllString(collapsed, "-")
	trimmed := strings.Trim(collapsed, "-")

	if len(trimmed) > maxSlugLen {
		trimmed = trimmed[:maxSlugLen]
		trimmed = strings.TrimRight(trimmed, "-")
	}

	return trimmed
}
