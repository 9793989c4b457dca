package extraction

import (
	"context"
	"regexp"

	"github.com/mdombrov-33/go-promptguard/detector"
)

// knownSentinelTags lists the UI sentinel wrapper tags stripped before a
// transcript excerpt is interpolated into the extraction prompt (spec §4.6
// step 5). RE2 has no backreferences, so each tag name is matched literally
// rather than with a generic open/close capture.
var knownSentinelTags = []string{"system-reminder", "user-prompt-submit-hook", "system-warning"}

func buildSentinelTagRe() *regexp.Regexp {
	pattern := ""
	for i, tag := range knownSentinelTags {
		if i > 0 {
			pattern += "|"
		}
		pattern += "<" + tag + ">.*?</" + tag + ">"
	}
	return regexp.MustCompile("(?is)" + pattern)
}

var stripSentinelTagsRe = buildSentinelTagRe()

// StripSentinelTags removes known UI sentinel wrapper tags from text.
func StripSentinelTags(s string) string {
	return stripSentinelTagsRe.ReplaceAllString(s, "")
}

// guard mirrors the teacher's package-level go-promptguard detector
// (internal/hooks/injection.go), generalized from vault-snippet filtering to
// the extraction prompt's related-context note bodies and transcript
// excerpts (spec §9, SPEC_FULL.md domain-stack wiring).
var guard = detector.New(
	detector.WithThreshold(0.6),
	detector.WithAllDetectors(),
	detector.WithMaxInputLength(4000),
)

// SanitizeForPrompt strips sentinel tags and, if the remaining text trips
// the prompt-injection detector, drops it entirely rather than interpolating
// it into the extraction prompt — a note or transcript turn crafted to
// contain role-override or delimiter-injection text never reaches the LLM.
func SanitizeForPrompt(s string) string {
	cleaned := StripSentinelTags(s)
	if cleaned == "" {
		return ""
	}
	if !guard.Detect(context.Background(), cleaned).Safe {
		return ""
	}
	return cleaned
}
