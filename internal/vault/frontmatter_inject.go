package vault

import (
	"fmt"
	"strings"
)

const frontmatterDelim = "---"

// InjectFrontmatterField inserts "field: value" into content's frontmatter
// block, immediately before the closing delimiter. It is idempotent: if a
// line already begins with "field:" the content is returned unchanged. If
// content has no frontmatter block, one is created.
func InjectFrontmatterField(content, field, value string) string {
	lines := strings.Split(content, "\n")

	if len(lines) < 2 || strings.TrimSpace(lines[0]) != frontmatterDelim {
		fm := fmt.Sprintf("---\n%s: %s\n---\n", field, value)
		return fm + content
	}

	closeIdx := -1
	prefix := field + ":"
	for i := 1; i < len(lines); i++ {
		if strings.TrimSpace(lines[i]) == frontmatterDelim {
			closeIdx = i
			break
		}
		if strings.HasPrefix(strings.TrimSpace(lines[i]), prefix) {
			return content // already present, no-op
		}
	}

	if closeIdx == -1 {
		// Malformed: no closing delimiter found, append a new block instead
		// of guessing where the real one should go.
		fm := fmt.Sprintf("---\n%s: %s\n---\n", field, value)
		return fm + content
	}

	newLine := fmt.Sprintf("%s: %s", field, value)
	out := make([]string, 0, len(lines)+1)
	out = append(out, lines[:closeIdx]...)
	out = append(out, newLine)
	out = append(out, lines[closeIdx:]...)
	return strings.Join(out, "\n")
}

// AddSupersededByContent injects "superseded_by: <successorID>" into an old
// note's content.
func AddSupersededByContent(content, successorID string) string {
	return InjectFrontmatterField(content, "superseded_by", successorID)
}
