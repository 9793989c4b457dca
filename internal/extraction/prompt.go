package extraction

import (
	"fmt"
	"strings"
)

// NoteSummary is the minimal shape needed for the "related context" and
// "existing notes" sections of the extraction prompt (spec §4.6 steps 3-4).
type NoteSummary struct {
	NoteID      string
	Description string
	Body        string
}

const extractionInstructions = `You extract atomic, durable facts from a coding session transcript.
Return ONLY a JSON array, no prose, no surrounding code fence. Each element:
  {"note_id": "kebab-slug", "relation": "NEW" | "UPDATES:<existing-id>" | "EXTENDS:<existing-id>",
   "content": "markdown body", "description": "one sentence", "type": "...", "confidence": "..."}

Rules:
- One atomic fact per note.
- note_id is a short kebab-case slug: lowercase ascii letters, digits, and dashes only.
- content is the note's markdown body (no frontmatter), under ~1500 chars.
- description is a single human sentence summarizing the fact, under 150 chars.
- type is one of: decision, result, method, concept, context, argument, module, preference.
- confidence is "confirmed" when the transcript states the fact outright, "experimental" when it's
  tentative, unverified, or still being explored.
- Use UPDATES:<id> when a new fact corrects or supersedes one of the existing notes listed below outright.
- Use EXTENDS:<id> when a new fact adds detail to an existing note without contradicting it.
- Otherwise use NEW.
- If nothing durable was established in this transcript, return [].`

// BuildExtractionPrompt assembles the extraction LLM prompt (spec §4.6 step
// 5): the extraction rules, related-context bodies (pre-query hits, for
// conflict detection), the existing-notes list, and the sanitized
// transcript tail. Related bodies and transcript turns are run through
// SanitizeForPrompt so a note or transcript turn crafted to contain
// role-override / delimiter-injection text cannot hijack the extractor.
func BuildExtractionPrompt(turns []Turn, related, existing []NoteSummary) string {
	var b strings.Builder
	b.WriteString(extractionInstructions)
	b.WriteString("\n\n")

	if len(related) > 0 {
		b.WriteString("## Related context (for conflict detection)\n")
		for _, r := range related {
			body := SanitizeForPrompt(r.Body)
			if body == "" {
				continue
			}
			fmt.Fprintf(&b, "### %s\n%s\n\n", r.NoteID, body)
		}
	}

	if len(existing) > 0 {
		b.WriteString("## Existing notes\n")
		for _, n := range existing {
			fmt.Fprintf(&b, "- %s: %s\n", n.NoteID, n.Description)
		}
		b.WriteString("\n")
	}

	b.WriteString("## Transcript\n")
	for _, t := range turns {
		text := SanitizeForPrompt(t.Text)
		if text == "" {
			continue
		}
		fmt.Fprintf(&b, "%s: %s\n\n", t.Role, text)
	}

	return b.String()
}

const validationInstructions = `You are a fact-checker for a memory-extraction pipeline. Given a list of
candidate facts and the tail of the transcript they were extracted from,
return a JSON array of the 0-based indices of candidates that are genuinely
grounded in the transcript — i.e. the transcript actually supports the
claim, not just plausible-sounding. Return ONLY the JSON array of indices,
e.g. [0,2]. An empty array means none are grounded.`

// BuildValidationPrompt assembles the second, grounding-check LLM call
// (spec §4.6 step 6), over the last validationTailChars of the transcript.
func BuildValidationPrompt(factSummaries []string, tailText string) string {
	var b strings.Builder
	b.WriteString(validationInstructions)
	b.WriteString("\n\n## Candidates\n")
	for _, s := range factSummaries {
		b.WriteString(s)
		b.WriteString("\n")
	}
	b.WriteString("\n## Transcript tail\n")
	b.WriteString(SanitizeForPrompt(tailText))
	return b.String()
}
