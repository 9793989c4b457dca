// Package bm25index implements the persistent Okapi BM25 lexical index over
// vault notes (spec §4.3), grounded on the BM25 storage backend pattern
// (NewBM25Okapi + per-document GetScores) and generalized to the spec's
// {note_id, tf, len, description, type, confidence} persisted document
// shape.
package bm25index

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strings"
	"sync"

	"github.com/crawlab-team/bm25"
)

const (
	k1 = 1.5
	b  = 0.75
)

// Doc is one persisted BM25 document record (spec §3 "BM25 document").
type Doc struct {
	NoteID      string         `json:"note_id"`
	TF          map[string]int `json:"tf"`
	Len         int            `json:"len"`
	Description string         `json:"description"`
	Type        string         `json:"type"`
	Confidence  string         `json:"confidence"`
}

// NoteInput is the minimal shape the index needs from a vault note to build
// a BM25 document.
type NoteInput struct {
	NoteID      string
	Text        string // content to tokenize (embed_text or body)
	Description string
	Type        string
	Confidence  string
}

// ScoredDoc is one BM25 query result.
type ScoredDoc struct {
	NoteID string
	Score  float64
}

// Index is an in-memory, optionally persisted BM25 index.
type Index struct {
	mu     sync.RWMutex
	docs   []Doc
	engine bm25.BM25
}

// Build constructs a fresh index from notes, tokenizing each with Tokenize.
func Build(notes []NoteInput) *Index {
	idx := &Index{}
	docs := make([]Doc, 0, len(notes))
	corpus := make([]string, 0, len(notes))

	for _, n := range notes {
		tokens := Tokenize(n.Text)
		tf := make(map[string]int, len(tokens))
		for _, t := range tokens {
			tf[t]++
		}
		docs = append(docs, Doc{
			NoteID:      n.NoteID,
			TF:          tf,
			Len:         len(tokens),
			Description: n.Description,
			Type:        n.Type,
			Confidence:  n.Confidence,
		})
		corpus = append(corpus, strings.Join(tokens, " "))
	}

	idx.docs = docs
	idx.rebuildEngine(corpus)
	return idx
}

func (idx *Index) rebuildEngine(corpus []string) {
	if len(corpus) == 0 {
		idx.engine = nil
		return
	}
	engine, err := bm25.NewBM25Okapi(corpus, Tokenize, k1, b, nil)
	if err != nil {
		fmt.Fprintf(os.Stderr, "memo-rize: warning: bm25 index build failed: %v\n", err)
		idx.engine = nil
		return
	}
	idx.engine = engine
}

// corpusFromDocs reconstructs a bag-of-words corpus from persisted tf maps.
// Term order within a reconstructed document doesn't affect BM25 scoring
// (only term frequency and document length do), so this is equivalent to
// rebuilding from the original text.
func corpusFromDocs(docs []Doc) []string {
	corpus := make([]string, 0, len(docs))
	for _, d := range docs {
		var sb strings.Builder
		for term, count := range d.TF {
			for i := 0; i < count; i++ {
				sb.WriteString(term)
				sb.WriteByte(' ')
			}
		}
		corpus = append(corpus, sb.String())
	}
	return corpus
}

// Save persists the index's documents as a JSON array file (spec §6
// BM25_INDEX_PATH).
func (idx *Index) Save(path string) error {
	idx.mu.RLock()
	data, err := json.MarshalIndent(idx.docs, "", "  ")
	idx.mu.RUnlock()
	if err != nil {
		return fmt.Errorf("marshal bm25 index: %w", err)
	}
	return writeAtomic(path, data)
}

func writeAtomic(path string, data []byte) error {
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write temp bm25 index: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("rename bm25 index: %w", err)
	}
	return nil
}

// Load reads a persisted BM25 index and rebuilds the scoring engine from it.
// If the file is missing or unreadable, it returns an error; callers should
// fall back to Build from the live vault (spec §4.3 "Fallback").
func Load(path string) (*Index, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read bm25 index %s: %w", path, err)
	}
	var docs []Doc
	if err := json.Unmarshal(data, &docs); err != nil {
		return nil, fmt.Errorf("parse bm25 index %s: %w", path, err)
	}

	idx := &Index{docs: docs}
	idx.rebuildEngine(corpusFromDocs(docs))
	return idx, nil
}

// Score runs a BM25 query and returns the top-K scoring documents,
// descending, ties broken by insertion order. Zero-score documents are
// dropped (spec §4.3, §8).
func (idx *Index) Score(query string, topK int) []ScoredDoc {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	if idx.engine == nil || len(idx.docs) == 0 {
		return nil
	}

	queryTokens := Tokenize(query)
	scores, err := idx.engine.GetScores(queryTokens)
	if err != nil || len(scores) != len(idx.docs) {
		return nil
	}

	type ranked struct {
		idx   int
		score float64
	}
	var candidates []ranked
	for i, s := range scores {
		if s > 0 {
			candidates = append(candidates, ranked{idx: i, score: s})
		}
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].score > candidates[j].score
	})

	if topK > 0 && len(candidates) > topK {
		candidates = candidates[:topK]
	}

	out := make([]ScoredDoc, 0, len(candidates))
	for _, c := range candidates {
		out = append(out, ScoredDoc{NoteID: idx.docs[c.idx].NoteID, Score: c.score})
	}
	return out
}

// Docs returns the index's underlying document records.
func (idx *Index) Docs() []Doc {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return idx.docs
}
