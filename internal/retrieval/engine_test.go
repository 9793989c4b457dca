package retrieval

import (
	"context"
	"math"
	"path/filepath"
	"strings"
	"testing"

	"github.com/tofunori/memo-rize/internal/bm25index"
	"github.com/tofunori/memo-rize/internal/config"
	"github.com/tofunori/memo-rize/internal/graphcache"
	"github.com/tofunori/memo-rize/internal/rerank"
	"github.com/tofunori/memo-rize/internal/vault"
	"github.com/tofunori/memo-rize/internal/vectorindex"
)

// stubEmbedder deterministically embeds by keyword presence so tests don't
// depend on a live embedding provider.
type stubEmbedder struct {
	dim     int
	lexicon []string
}

func (s stubEmbedder) Name() string    { return "stub" }
func (s stubEmbedder) Model() string   { return "stub" }
func (s stubEmbedder) Dimensions() int { return s.dim }

func (s stubEmbedder) GetEmbedding(text, _ string) ([]float32, error) {
	vec := make([]float32, s.dim)
	lower := strings.ToLower(text)
	for i, term := range s.lexicon {
		if strings.Contains(lower, term) {
			vec[i%s.dim] += 1
		}
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

func newTestEngine(t *testing.T) (*Engine, *vectorindex.Store) {
	t.Helper()
	dir := t.TempDir()
	lexicon := []string{"alpha", "beta", "gamma"}
	embedder := stubEmbedder{dim: 8, lexicon: lexicon}

	store, err := vectorindex.Open(filepath.Join(dir, "vectors.db"), 8, embedder)
	if err != nil {
		t.Fatalf("vectorindex.Open: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	notes := []vectorindex.NoteInput{
		{NoteID: "a", EmbedText: "alpha is the strongest match for this query", Description: "about alpha", Type: "fact", Confidence: "confirmed", Created: "2026-01-01"},
		{NoteID: "b", EmbedText: "beta is somewhat related", Description: "about beta", Type: "fact", Confidence: "experimental", Created: "2026-01-01"},
		{NoteID: "c", EmbedText: "gamma is barely related", Description: "about gamma", Type: "fact", Confidence: "experimental", Created: "2026-01-01"},
	}
	if err := store.UpsertBatch(notes, 10); err != nil {
		t.Fatalf("UpsertBatch: %v", err)
	}

	bm25Idx := bm25index.Build([]bm25index.NoteInput{
		{NoteID: "a", Text: "alpha is the strongest match for this query", Description: "about alpha", Type: "fact", Confidence: "confirmed"},
		{NoteID: "b", Text: "beta is somewhat related", Description: "about beta", Type: "fact", Confidence: "experimental"},
		{NoteID: "c", Text: "gamma is barely related", Description: "about gamma", Type: "fact", Confidence: "experimental"},
	})

	graph := &graphcache.Cache{
		Outbound:  map[string][]string{"a": {"b"}, "b": {"c"}, "c": {}},
		Backlinks: map[string][]string{"b": {"a"}, "c": {"b"}},
	}

	cfg := config.Defaults()
	cfg.Retrieval.MinQueryLength = 5
	cfg.Sources.SourceChunksEnabled = false

	eng := New(cfg, vault.New(dir), store, bm25Idx, graph, rerank.Stub{}, embedder, nil)
	return eng, store
}

func TestRetrieve_ShortCircuitsOnShortPrompt(t *testing.T) {
	eng, _ := newTestEngine(t)
	out, err := eng.Retrieve(context.Background(), "hi")
	if err != nil {
		t.Fatalf("Retrieve: %v", err)
	}
	if out != "" {
		t.Errorf("expected empty output for short prompt, got %q", out)
	}
}

func TestRetrieve_ShortCircuitsWithoutVectorStore(t *testing.T) {
	eng, _ := newTestEngine(t)
	eng.vectors = nil
	out, err := eng.Retrieve(context.Background(), "a sufficiently long query about alpha")
	if err != nil {
		t.Fatalf("Retrieve: %v", err)
	}
	if out != "" {
		t.Errorf("expected empty output without vector store, got %q", out)
	}
}

func TestRetrieve_EndToEnd_PrimaryAndGraphBlock(t *testing.T) {
	// spec §8 boundary scenario 7: vault {a,b,c}, a links to b, b links to c;
	// query matches a strongest; expect a as primary, b and c in the graph
	// block (depth-1, depth-2 respectively), in that order.
	eng, _ := newTestEngine(t)
	out, err := eng.Retrieve(context.Background(), "tell me about alpha in detail please")
	if err != nil {
		t.Fatalf("Retrieve: %v", err)
	}
	if !strings.Contains(out, "=== Relevant vault notes ===") {
		t.Fatalf("missing primary header in output:\n%s", out)
	}
	if !strings.Contains(out, "[[a]]") {
		t.Errorf("expected a as a primary result:\n%s", out)
	}
	graphIdx := strings.Index(out, "=== Connected notes (graph) ===")
	if graphIdx == -1 {
		t.Fatalf("missing graph header in output:\n%s", out)
	}
	graphBlock := out[graphIdx:]
	bIdx := strings.Index(graphBlock, "[[b]]")
	cIdx := strings.Index(graphBlock, "[[c]]")
	if bIdx == -1 || cIdx == -1 {
		t.Fatalf("expected both b and c in graph block:\n%s", graphBlock)
	}
	if bIdx > cIdx {
		t.Errorf("expected b (depth-1) before c (depth-2) in graph block:\n%s", graphBlock)
	}
}

func TestRetrieve_WritesBackLastRetrieved(t *testing.T) {
	eng, store := newTestEngine(t)
	if _, err := eng.Retrieve(context.Background(), "tell me about alpha in detail please"); err != nil {
		t.Fatalf("Retrieve: %v", err)
	}
	payload, ok, err := store.GetPayload("a")
	if err != nil || !ok {
		t.Fatalf("GetPayload: ok=%v err=%v", ok, err)
	}
	if payload.LastRetrieved == "" {
		t.Error("expected last_retrieved to be patched after retrieval")
	}
}
