package extraction

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeJSONL(t *testing.T, dir string, lines []string) string {
	t.Helper()
	path := filepath.Join(dir, "transcript.jsonl")
	if err := os.WriteFile(path, []byte(strings.Join(lines, "\n")), 0o644); err != nil {
		t.Fatalf("write transcript: %v", err)
	}
	return path
}

func TestReadTranscriptTail_DropsToolUseAndEmpty(t *testing.T) {
	dir := t.TempDir()
	path := writeJSONL(t, dir, []string{
		`{"type":"user","message":{"role":"user","content":"hello there"}}`,
		`{"type":"tool_use","message":{"role":"assistant","content":"irrelevant"}}`,
		`{"type":"assistant","message":{"role":"assistant","content":[{"type":"tool_use","text":""},{"type":"text","text":"hi back"}]}}`,
		`{"type":"user","message":{"role":"user","content":"   "}}`,
	})

	turns, err := ReadTranscriptTail(path, 1500)
	if err != nil {
		t.Fatalf("ReadTranscriptTail: %v", err)
	}
	if len(turns) != 2 {
		t.Fatalf("expected 2 surviving turns, got %d: %+v", len(turns), turns)
	}
	if turns[0].Text != "hello there" {
		t.Fatalf("turn 0 = %q", turns[0].Text)
	}
	if turns[1].Text != "hi back" {
		t.Fatalf("turn 1 = %q", turns[1].Text)
	}
}

func TestReadTranscriptTail_CapsMessageLength(t *testing.T) {
	dir := t.TempDir()
	long := strings.Repeat("x", maxMessageChars+500)
	path := writeJSONL(t, dir, []string{
		`{"type":"user","message":{"role":"user","content":"` + long + `"}}`,
	})

	turns, err := ReadTranscriptTail(path, 1500)
	if err != nil {
		t.Fatalf("ReadTranscriptTail: %v", err)
	}
	if len(turns) != 1 {
		t.Fatalf("expected 1 turn, got %d", len(turns))
	}
	if len(turns[0].Text) != maxMessageChars {
		t.Fatalf("expected message capped to %d chars, got %d", maxMessageChars, len(turns[0].Text))
	}
}

func TestReadTranscriptTail_KeepsOnlyChronologicalTail(t *testing.T) {
	dir := t.TempDir()
	chunk := strings.Repeat("y", maxMessageChars)
	lines := make([]string, 0, 25)
	for i := 0; i < 25; i++ {
		lines = append(lines, `{"type":"user","message":{"role":"user","content":"`+chunk+`"}}`)
	}
	path := writeJSONL(t, dir, lines)

	turns, err := ReadTranscriptTail(path, 1500)
	if err != nil {
		t.Fatalf("ReadTranscriptTail: %v", err)
	}
	// Each turn is capped at 2000 chars, so 25 turns total 50000 chars and
	// the 40000-char tail keeps only the last 20.
	if len(turns) >= 25 {
		t.Fatalf("expected tail to drop earliest turns, got %d turns", len(turns))
	}
	if len(turns) == 0 {
		t.Fatalf("expected at least one turn kept")
	}
}

func TestTruncateCodeBlocks(t *testing.T) {
	inner := strings.Repeat("a", 100)
	text := "before\n```go\n" + inner + "\n```\nafter"
	out := truncateCodeBlocks(text, 10)
	if !strings.Contains(out, "[truncated") {
		t.Fatalf("expected truncation marker, got %q", out)
	}
	if strings.Contains(out, inner) {
		t.Fatalf("expected oversized code block to be shortened, got %q", out)
	}
	if !strings.HasPrefix(out, "before\n") || !strings.HasSuffix(out, "after") {
		t.Fatalf("expected surrounding text preserved, got %q", out)
	}
}

func TestTruncateCodeBlocks_LeavesSmallBlocksAlone(t *testing.T) {
	text := "```go\nfmt.Println(1)\n```"
	out := truncateCodeBlocks(text, 1500)
	if out != text {
		t.Fatalf("expected unchanged, got %q", out)
	}
}

func TestExtractText_BareString(t *testing.T) {
	got := extractText([]byte(`"plain text"`))
	if got != "plain text" {
		t.Fatalf("got %q", got)
	}
}

func TestExtractText_BlockArraySkipsNonText(t *testing.T) {
	got := extractText([]byte(`[{"type":"tool_result","text":"nope"},{"type":"text","text":"keep me"}]`))
	if got != "keep me" {
		t.Fatalf("got %q", got)
	}
}
