package extraction

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
)

// RawFact is one LLM-emitted extraction record before normalization (spec
// §4.6 step 5, §3 "Note" for the description/type/confidence frontmatter
// fields the extractor is also responsible for judging).
type RawFact struct {
	NoteID      string `json:"note_id"`
	Relation    string `json:"relation"`
	Content     string `json:"content"`
	Description string `json:"description"`
	Type        string `json:"type"`
	Confidence  string `json:"confidence"`
}

var codeFenceRe = regexp.MustCompile("(?s)```(?:json)?\\s*(.*?)\\s*```")

// stripFence returns the trimmed contents of the first ```...``` /
// ```json...``` code fence found anywhere in text, or text unchanged when
// there is none.
func stripFence(text string) string {
	if m := codeFenceRe.FindStringSubmatch(text); m != nil {
		return strings.TrimSpace(m[1])
	}
	return text
}

// RepairJSONStrings escapes stray control characters (literal newlines,
// carriage returns, tabs) that occur inside JSON string literals, leaving
// whitespace outside strings untouched (spec §4.6 step 5, §8 boundary
// scenario 3). LLMs occasionally emit a literal newline inside a JSON
// string value instead of the escaped "\n" sequence; this repairs exactly
// that without reformatting otherwise-valid JSON.
func RepairJSONStrings(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	inString := false
	escaped := false
	for _, r := range s {
		if inString {
			if escaped {
				b.WriteRune(r)
				escaped = false
				continue
			}
			switch r {
			case '\\':
				escaped = true
				b.WriteRune(r)
			case '"':
				inString = false
				b.WriteRune(r)
			case '\n':
				b.WriteString(`\n`)
			case '\r':
				b.WriteString(`\r`)
			case '\t':
				b.WriteString(`\t`)
			default:
				b.WriteRune(r)
			}
			continue
		}
		if r == '"' {
			inString = true
		}
		b.WriteRune(r)
	}
	return b.String()
}

func extractArray(text string) (string, error) {
	start := strings.IndexByte(text, '[')
	end := strings.LastIndexByte(text, ']')
	if start < 0 || end < start {
		return "", fmt.Errorf("no JSON array found in LLM output")
	}
	return text[start : end+1], nil
}

// ParseFacts robustly parses the extraction LLM's JSON array output: strips
// a surrounding code fence if present, attempts a direct parse, then
// repairs stray control characters inside strings and retries. A second
// failure drops the whole extraction batch (spec §7 "Parse failure").
func ParseFacts(raw string) ([]RawFact, error) {
	text := stripFence(strings.TrimSpace(raw))
	arr, err := extractArray(text)
	if err != nil {
		return nil, err
	}

	var facts []RawFact
	if err := json.Unmarshal([]byte(arr), &facts); err == nil {
		return facts, nil
	}

	repaired := RepairJSONStrings(arr)
	if err := json.Unmarshal([]byte(repaired), &facts); err != nil {
		return nil, fmt.Errorf("parse extraction JSON (after repair): %w", err)
	}
	return facts, nil
}

// parseIndexList parses the validation pass's JSON array of grounded fact
// indices (spec §4.6 step 6), tolerating the same code-fence wrapping as
// ParseFacts.
func parseIndexList(raw string) ([]int, error) {
	text := stripFence(strings.TrimSpace(raw))
	arr, err := extractArray(text)
	if err != nil {
		return nil, err
	}
	var indices []int
	if err := json.Unmarshal([]byte(arr), &indices); err != nil {
		repaired := RepairJSONStrings(arr)
		if err := json.Unmarshal([]byte(repaired), &indices); err != nil {
			return nil, fmt.Errorf("parse validation indices: %w", err)
		}
	}
	return indices, nil
}
