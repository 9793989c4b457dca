package bm25index

import (
	"path/filepath"
	"testing"
)

func sampleNotes() []NoteInput {
	return []NoteInput{
		{NoteID: "note-a", Text: "vault_embed.py uses qdrant-client for vector storage", Description: "embed script", Type: "method", Confidence: "confirmed"},
		{NoteID: "note-b", Text: "the reflector archives stale notes after a TTL expires", Description: "reflector ttl", Type: "concept", Confidence: "experimental"},
		{NoteID: "note-c", Text: "bm25 scoring uses k1 and b parameters for term weighting", Description: "bm25 scoring", Type: "concept", Confidence: "confirmed"},
	}
}

func TestTokenize_PreservesIdentifiers(t *testing.T) {
	toks := Tokenize("vault_embed.py and qdrant-client v1.2")
	want := map[string]bool{"vault_embed.py": true, "qdrant-client": true, "v1.2": true}
	found := map[string]bool{}
	for _, tok := range toks {
		found[tok] = true
	}
	for w := range want {
		if !found[w] {
			t.Errorf("expected token %q in %v", w, toks)
		}
	}
	if found["and"] {
		t.Errorf("stopword 'and' should have been dropped: %v", toks)
	}
}

func TestScore_NonNegativeAndOwnTokensPositive(t *testing.T) {
	idx := Build(sampleNotes())

	for _, n := range sampleNotes() {
		results := idx.Score(n.Text, 10)
		var found bool
		for _, r := range results {
			if r.Score < 0 {
				t.Errorf("negative score for %s: %v", r.NoteID, r.Score)
			}
			if r.NoteID == n.NoteID {
				found = true
				if r.Score <= 0 {
					t.Errorf("own-tokens score for %s should be > 0, got %v", n.NoteID, r.Score)
				}
			}
		}
		if !found {
			t.Errorf("expected %s to score against its own text", n.NoteID)
		}
	}
}

func TestScore_OutOfVocabularyYieldsNoResults(t *testing.T) {
	idx := Build(sampleNotes())
	results := idx.Score("xyzzy plugh quux", 10)
	if len(results) != 0 {
		t.Errorf("expected no results for out-of-vocabulary query, got %v", results)
	}
}

func TestSaveLoad_RoundTrip(t *testing.T) {
	idx := Build(sampleNotes())
	path := filepath.Join(t.TempDir(), "bm25.json")
	if err := idx.Save(path); err != nil {
		t.Fatalf("Save: %v", err)
	}

	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(loaded.Docs()) != len(sampleNotes()) {
		t.Fatalf("expected %d docs, got %d", len(sampleNotes()), len(loaded.Docs()))
	}

	results := loaded.Score("bm25 scoring k1 b parameters", 5)
	if len(results) == 0 || results[0].NoteID != "note-c" {
		t.Fatalf("expected note-c to rank first after reload, got %v", results)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "absent.json")); err == nil {
		t.Error("expected error loading missing index file")
	}
}
