// Package retrieval implements the Retrieval Engine (spec §4.5): the
// hybrid vector+BM25+graph pipeline triggered per prompt, emitting a
// structured context block on stdout or nothing at all. Grounded on the
// RRF/rerank shape of a hybrid search engine observed in the pack
// (other_examples' amanmcp internal/search Engine.fuseResults/rerankResults)
// and on the teacher's own retrieval entrypoint for the "degrade silently,
// never error the user path" policy (spec §7).
package retrieval

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/tofunori/memo-rize/internal/bm25index"
	"github.com/tofunori/memo-rize/internal/config"
	"github.com/tofunori/memo-rize/internal/embedding"
	"github.com/tofunori/memo-rize/internal/graphcache"
	"github.com/tofunori/memo-rize/internal/logx"
	"github.com/tofunori/memo-rize/internal/rerank"
	"github.com/tofunori/memo-rize/internal/vault"
	"github.com/tofunori/memo-rize/internal/vectorindex"
)

const queryEmbedMaxChars = 4000

// Engine runs the per-prompt hybrid retrieval pipeline.
type Engine struct {
	cfg      config.Config
	vault    *vault.Store
	vectors  *vectorindex.Store // nil is a valid "store missing" state (spec §4.5 preamble)
	bm25     *bm25index.Index   // nil disables BM25 fusion even if enabled in config
	graph    *graphcache.Cache  // nil disables graph expansion
	reranker rerank.Reranker
	embedder embedding.Provider
	log      *logx.Logger
}

// New builds a retrieval Engine. vectors, bm25, and graph may be nil to
// reflect missing on-disk caches (spec §9 "File-as-database"): the pipeline
// degrades rather than erroring.
func New(cfg config.Config, store *vault.Store, vectors *vectorindex.Store, bm25 *bm25index.Index, graph *graphcache.Cache, reranker rerank.Reranker, embedder embedding.Provider, log *logx.Logger) *Engine {
	if reranker == nil {
		reranker = rerank.Stub{}
	}
	return &Engine{cfg: cfg, vault: store, vectors: vectors, bm25: bm25, graph: graph, reranker: reranker, embedder: embedder, log: log}
}

// primary is one fused-and-rescored top-level result (spec §4.5 step 6).
type primary struct {
	noteID    string
	payload   vectorindex.Payload
	baseScore float64
	effective float64
}

// Retrieve runs the full pipeline for prompt and returns the structured
// stdout block (spec §4.5 step 10), or "" when any short-circuit condition
// applies. It never returns an error for conditions the pipeline is
// specified to degrade through; it only returns an error for truly
// unexpected states the caller should log.
func (e *Engine) Retrieve(ctx context.Context, prompt string) (string, error) {
	if len(prompt) < e.cfg.Retrieval.MinQueryLength {
		return "", nil
	}
	if e.vectors == nil || e.embedder == nil {
		return "", nil
	}

	queryText := prompt
	if len(queryText) > queryEmbedMaxChars {
		queryText = queryText[:queryEmbedMaxChars]
	}
	queryVec, err := e.embedder.GetQueryEmbedding(queryText)
	if err != nil {
		if e.log != nil {
			e.log.RetrieveError(err)
		}
		return "", nil
	}

	vectorHits, err := e.vectors.Query(queryVec, e.cfg.Retrieval.VectorTopK, e.cfg.Retrieval.RetrieveScoreThreshold)
	if err != nil {
		if e.log != nil {
			e.log.RetrieveError(err)
		}
		return "", nil
	}

	vectorList := make(rankedList, len(vectorHits))
	vectorScore := make(map[string]float64, len(vectorHits))
	payloadByID := make(map[string]vectorindex.Payload, len(vectorHits))
	for i, h := range vectorHits {
		vectorList[i] = h.Payload.NoteID
		vectorScore[h.Payload.NoteID] = h.Score
		payloadByID[h.Payload.NoteID] = h.Payload
	}

	var keywordList rankedList
	if e.cfg.Retrieval.BM25Enabled && e.bm25 != nil {
		bm25Hits := e.bm25.Score(prompt, e.cfg.Retrieval.BM25TopK)
		keywordList = make(rankedList, len(bm25Hits))
		for i, h := range bm25Hits {
			keywordList[i] = h.NoteID
		}
	}

	fused := fuse(e.cfg.Retrieval.RRFK, vectorList, keywordList)

	candidateCap := e.cfg.Retrieval.RRFFinalTopK
	if e.cfg.Retrieval.RerankEnabled {
		candidateCap = e.cfg.Retrieval.RerankCandidates
	}
	if candidateCap > 0 && len(fused) > candidateCap {
		fused = fused[:candidateCap]
	}

	fused = e.maybeRerank(ctx, prompt, fused, payloadByID)

	if e.cfg.Retrieval.RRFFinalTopK > 0 && len(fused) > e.cfg.Retrieval.RRFFinalTopK {
		fused = fused[:e.cfg.Retrieval.RRFFinalTopK]
	}

	now := time.Now()
	primaries := make([]primary, 0, len(fused))
	for _, id := range fused {
		p, ok := payloadByID[id]
		if !ok {
			p, ok, err = e.vectors.GetPayload(id)
			if err != nil || !ok {
				continue // BM25-only hit with no vector payload: can't score, drop it
			}
		}
		base := vectorScore[id]
		if base == 0 {
			base = 1 // BM25-only hit still above threshold conceptually: neutral base
		}
		ref := referenceDate(p.LastRetrieved, p.Created, now)
		d := decay(e.cfg.Scoring.DecayEnabled, ref, e.cfg.Scoring.DecayHalfLifeDays, e.cfg.Scoring.DecayFloor, now)
		boost := confidenceBoost(p.Confidence, e.cfg.Scoring.ConfidenceBoost)
		primaries = append(primaries, primary{
			noteID:    id,
			payload:   p,
			baseScore: base,
			effective: base * d * boost,
		})
	}
	sort.SliceStable(primaries, func(i, j int) bool { return primaries[i].effective > primaries[j].effective })

	primaryIDs := make([]string, len(primaries))
	for i, p := range primaries {
		primaryIDs[i] = p.noteID
	}

	var secondary []secondaryHit
	if e.graph != nil {
		ids := expandGraph(e.graph, primaryIDs, e.cfg.Graph.MaxBacklinksPerNote, e.cfg.Graph.MaxSecondary)
		secondary = e.scoreSecondary(queryVec, ids)
	}

	var sourceBlock string
	if len(primaries) > 0 && e.cfg.Sources.SourceChunksEnabled {
		sourceBlock = e.sourceContext(primaries[0].noteID)
	}

	e.writeback(primaries, secondary, now)

	if len(primaries) == 0 {
		return "", nil
	}
	return renderBlock(primaries, sourceBlock, secondary), nil
}

// maybeRerank implements spec §4.5 step 5: (query, description+note_id)
// pairs sent to the cross-encoder adapter, reordered by relevance_score. A
// down or erroring reranker falls through to RRF order untouched.
func (e *Engine) maybeRerank(ctx context.Context, query string, ids []string, payloadByID map[string]vectorindex.Payload) []string {
	if !e.cfg.Retrieval.RerankEnabled || e.reranker == nil || !e.reranker.Available(ctx) {
		return ids
	}
	docs := make([]string, len(ids))
	for i, id := range ids {
		desc := payloadByID[id].Description
		if desc == "" {
			if p, ok, err := e.vectors.GetPayload(id); err == nil && ok {
				desc = p.Description
			}
		}
		docs[i] = desc + " " + id
	}
	results, err := e.reranker.Rerank(ctx, query, docs, e.cfg.Retrieval.RRFFinalTopK)
	if err != nil {
		if e.log != nil {
			e.log.RetrieveError(fmt.Errorf("rerank failed, falling back to RRF order: %w", err))
		}
		return ids
	}
	out := make([]string, 0, len(results))
	for _, r := range results {
		if r.Index >= 0 && r.Index < len(ids) {
			out = append(out, ids[r.Index])
		}
	}
	if len(out) == 0 {
		return ids
	}
	return out
}

type secondaryHit struct {
	noteID  string
	payload vectorindex.Payload
	score   float64
	scored  bool
}

// scoreSecondary resolves payloads for graph-expansion candidates via a
// filtered vector query constrained to the candidate set (spec §4.5 step 7):
// any candidate missing from the vector store is kept unscored with its id
// only; its note frontmatter is not read. Output preserves the caller's BFS composition order,
// not the vector-query's score order.
func (e *Engine) scoreSecondary(queryVec []float32, ids []string) []secondaryHit {
	if len(ids) == 0 {
		return nil
	}
	scoreByID := make(map[string]float64, len(ids))
	if hits, err := e.vectors.FilteredQuery(queryVec, ids, len(ids)); err == nil {
		for _, h := range hits {
			scoreByID[h.Payload.NoteID] = h.Score
		}
	}

	out := make([]secondaryHit, 0, len(ids))
	for _, id := range ids {
		p, ok, err := e.vectors.GetPayload(id)
		if err != nil || !ok {
			out = append(out, secondaryHit{noteID: id, scored: false})
			continue
		}
		score, hasScore := scoreByID[id]
		out = append(out, secondaryHit{noteID: id, payload: p, score: score, scored: hasScore})
	}
	return out
}

func (e *Engine) sourceContext(noteID string) string {
	sc := vault.NewSourceChunks(e.cfg.Paths.SourceChunksDir, e.cfg.Sources.SourceChunkMaxChars)
	text, err := sc.Read(noteID, e.cfg.Sources.SourceInjectMaxChars)
	if err != nil || text == "" {
		return ""
	}
	return text
}

// writeback patches last_retrieved := today for every scored surfaced note
// (spec §4.5 step 9), best-effort.
func (e *Engine) writeback(primaries []primary, secondary []secondaryHit, now time.Time) {
	ids := make([]string, 0, len(primaries)+len(secondary))
	for _, p := range primaries {
		ids = append(ids, p.noteID)
	}
	for _, s := range secondary {
		if s.scored {
			ids = append(ids, s.noteID)
		}
	}
	if len(ids) == 0 {
		return
	}
	if err := e.vectors.SetLastRetrieved(ids, now.Format(dayLayout)); err != nil && e.log != nil {
		e.log.RetrieveError(fmt.Errorf("writeback failed: %w", err))
	}
}

func renderBlock(primaries []primary, sourceBlock string, secondary []secondaryHit) string {
	var b strings.Builder
	b.WriteString("=== Relevant vault notes ===\n")
	for _, p := range primaries {
		pct := int(p.effective * 100)
		confirmed := ""
		if p.payload.Confidence == "confirmed" {
			confirmed = " confirmed"
		}
		fmt.Fprintf(&b, "[[%s]] (%s, %d%%%s) — %s\n", p.noteID, p.payload.Type, pct, confirmed, p.payload.Description)
	}
	if sourceBlock != "" {
		b.WriteString("\n")
		b.WriteString(sourceBlock)
		b.WriteString("\n")
	}
	if len(secondary) > 0 {
		b.WriteString("\n=== Connected notes (graph) ===\n")
		for _, s := range secondary {
			if s.scored {
				fmt.Fprintf(&b, "[[%s]] (%s) — %s\n", s.noteID, s.payload.Type, s.payload.Description)
			} else {
				fmt.Fprintf(&b, "[[%s]]\n", s.noteID)
			}
		}
	}
	return b.String()
}
