package vectorindex

import (
	"math"
	"path/filepath"
	"testing"
)

// stubEmbedder deterministically maps text to a small fixed-dimension
// vector so tests don't depend on a live embedding provider.
type stubEmbedder struct{ dim int }

func (s stubEmbedder) Name() string  { return "stub" }
func (s stubEmbedder) Model() string { return "stub" }
func (s stubEmbedder) Dimensions() int { return s.dim }

func (s stubEmbedder) GetEmbedding(text string, _ string) ([]float32, error) {
	vec := make([]float32, s.dim)
	var sum float64
	for i, r := range text {
		vec[i%s.dim] += float32(r)
		sum += float64(r)
	}
	var norm float64
	for _, v := range vec {
		norm += float64(v) * float64(v)
	}
	norm = math.Sqrt(norm)
	if norm == 0 {
		norm = 1
	}
	for i := range vec {
		vec[i] = float32(float64(vec[i]) / norm)
	}
	return vec, nil
}

func (s stubEmbedder) GetDocumentEmbedding(text string) ([]float32, error) {
	return s.GetEmbedding(text, "document")
}

func (s stubEmbedder) GetQueryEmbedding(text string) ([]float32, error) {
	return s.GetEmbedding(text, "query")
}

func newTestStore(t *testing.T) *Store {
	t.Helper()
	dir := t.TempDir()
	s, err := Open(filepath.Join(dir, "vectors.db"), 16, stubEmbedder{dim: 16})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestPointID_Deterministic(t *testing.T) {
	a := PointID("my-note")
	b := PointID("my-note")
	if a != b {
		t.Fatalf("PointID not deterministic: %s != %s", a, b)
	}
	if PointID("other-note") == a {
		t.Fatal("PointID collided for different note ids")
	}
}

func TestUpsertAndQuery(t *testing.T) {
	s := newTestStore(t)

	notes := []NoteInput{
		{NoteID: "apples-are-red", EmbedText: "apples are red and sweet", Description: "about apples", Type: "concept", Confidence: "confirmed", Created: "2026-01-01"},
		{NoteID: "go-uses-goroutines", EmbedText: "go concurrency uses goroutines and channels", Description: "about go concurrency", Type: "concept", Confidence: "experimental", Created: "2026-01-02"},
	}
	if err := s.UpsertBatch(notes, 1); err != nil {
		t.Fatalf("UpsertBatch: %v", err)
	}

	count, err := s.Count()
	if err != nil {
		t.Fatalf("Count: %v", err)
	}
	if count != 2 {
		t.Fatalf("expected 2 points, got %d", count)
	}

	vec, err := stubEmbedder{dim: 16}.GetQueryEmbedding("apples are red and sweet")
	if err != nil {
		t.Fatalf("embed query: %v", err)
	}
	results, err := s.Query(vec, 5, 0)
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if len(results) == 0 {
		t.Fatal("expected at least one result")
	}
	if results[0].Payload.NoteID != "apples-are-red" {
		t.Errorf("expected apples-are-red top result, got %s", results[0].Payload.NoteID)
	}
}

func TestUpsertIsIdempotent(t *testing.T) {
	s := newTestStore(t)
	note := NoteInput{NoteID: "n1", EmbedText: "first version", Description: "d1", Type: "fact", Confidence: "experimental", Created: "2026-01-01"}
	if err := s.UpsertBatch([]NoteInput{note}, 1); err != nil {
		t.Fatalf("first upsert: %v", err)
	}
	note.EmbedText = "second version, materially different"
	note.Description = "d2"
	if err := s.UpsertBatch([]NoteInput{note}, 1); err != nil {
		t.Fatalf("second upsert: %v", err)
	}
	count, _ := s.Count()
	if count != 1 {
		t.Fatalf("expected re-upsert to replace, got %d points", count)
	}
}

func TestSetLastRetrieved(t *testing.T) {
	s := newTestStore(t)
	if err := s.UpsertBatch([]NoteInput{{NoteID: "n1", EmbedText: "hello world", Created: "2026-01-01"}}, 1); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	if err := s.SetLastRetrieved([]string{"n1"}, "2026-02-01"); err != nil {
		t.Fatalf("SetLastRetrieved: %v", err)
	}
	vec, _ := stubEmbedder{dim: 16}.GetQueryEmbedding("hello world")
	results, err := s.Query(vec, 1, 0)
	if err != nil || len(results) == 0 {
		t.Fatalf("Query failed: %v", err)
	}
	if results[0].Payload.LastRetrieved != "2026-02-01" {
		t.Errorf("expected patched last_retrieved, got %q", results[0].Payload.LastRetrieved)
	}
}

func TestDeletePoint(t *testing.T) {
	s := newTestStore(t)
	if err := s.UpsertBatch([]NoteInput{{NoteID: "n1", EmbedText: "to be deleted"}}, 1); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	if err := s.DeletePoint("n1"); err != nil {
		t.Fatalf("DeletePoint: %v", err)
	}
	count, _ := s.Count()
	if count != 0 {
		t.Fatalf("expected 0 points after delete, got %d", count)
	}
}
