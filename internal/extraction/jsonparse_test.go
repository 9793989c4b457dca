package extraction

import "testing"

func TestRepairJSONStrings_EscapesLiteralNewlineInsideString(t *testing.T) {
	// Spec boundary scenario: {"k":"l1\nl2"} emitted with a literal newline
	// instead of the escaped sequence.
	raw := "{\"k\":\"l1\nl2\"}"
	repaired := RepairJSONStrings(raw)
	want := `{"k":"l1\nl2"}`
	if repaired != want {
		t.Fatalf("got %q, want %q", repaired, want)
	}
}

func TestRepairJSONStrings_LeavesWhitespaceOutsideStringsAlone(t *testing.T) {
	raw := "[\n  {\"k\":\"v\"}\n]"
	repaired := RepairJSONStrings(raw)
	if repaired != raw {
		t.Fatalf("expected unchanged outside strings, got %q", repaired)
	}
}

func TestParseFacts_DirectParse(t *testing.T) {
	raw := `[{"note_id":"a","relation":"NEW","content":"body"}]`
	facts, err := ParseFacts(raw)
	if err != nil {
		t.Fatalf("ParseFacts: %v", err)
	}
	if len(facts) != 1 || facts[0].NoteID != "a" {
		t.Fatalf("got %+v", facts)
	}
}

func TestParseFacts_StripsCodeFence(t *testing.T) {
	raw := "```json\n[{\"note_id\":\"a\",\"relation\":\"NEW\",\"content\":\"body\"}]\n```"
	facts, err := ParseFacts(raw)
	if err != nil {
		t.Fatalf("ParseFacts: %v", err)
	}
	if len(facts) != 1 {
		t.Fatalf("got %+v", facts)
	}
}

func TestParseFacts_RepairsControlCharacterThenSucceeds(t *testing.T) {
	raw := "[{\"note_id\":\"a\",\"relation\":\"NEW\",\"content\":\"l1\nl2\"}]"
	facts, err := ParseFacts(raw)
	if err != nil {
		t.Fatalf("ParseFacts: %v", err)
	}
	if len(facts) != 1 || facts[0].Content != "l1\nl2" {
		t.Fatalf("got %+v", facts)
	}
}

func TestParseFacts_NoArrayReturnsError(t *testing.T) {
	if _, err := ParseFacts("not json at all"); err == nil {
		t.Fatalf("expected error for input with no JSON array")
	}
}

func TestParseIndexList(t *testing.T) {
	indices, err := parseIndexList("[0, 2]")
	if err != nil {
		t.Fatalf("parseIndexList: %v", err)
	}
	if len(indices) != 2 || indices[0] != 0 || indices[1] != 2 {
		t.Fatalf("got %v", indices)
	}
}

func TestParseIndexList_Empty(t *testing.T) {
	indices, err := parseIndexList("[]")
	if err != nil {
		t.Fatalf("parseIndexList: %v", err)
	}
	if len(indices) != 0 {
		t.Fatalf("got %v", indices)
	}
}
