package extraction

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/tofunori/memo-rize/internal/config"
	"github.com/tofunori/memo-rize/internal/graphcache"
	"github.com/tofunori/memo-rize/internal/llmclient"
	"github.com/tofunori/memo-rize/internal/logx"
	"github.com/tofunori/memo-rize/internal/queue"
	"github.com/tofunori/memo-rize/internal/vault"
	"github.com/tofunori/memo-rize/internal/vectorindex"
)

const (
	preQueryProbeChars   = 1000
	preQueryTopK         = 5
	preQueryThreshold    = 0.50
	existingNotesMaxList = 80
	validationTailChars  = 5000
	upsertPoolWorkers    = 2
)

// Engine runs the Extraction Engine pipeline (spec §4.6) for one ticket at
// a time; the caller is responsible for the filesystem lock serializing
// extraction workers (spec §5).
type Engine struct {
	cfg     config.Config
	vault   *vault.Store
	vectors *vectorindex.Store // nil disables dedup + pre-query (spec §4.2 preamble)
	graph   *graphcache.Cache  // nil: incremental patch is skipped silently (spec §4.4)
	llm     llmclient.Client   // nil: no facts are ever extracted (spec §7)
	sources *vault.SourceChunks
	queue   *queue.Queue
	log     *logx.Logger
	pool    *upsertPool
}

// New builds an Engine. vectors, graph, and llm may all be nil; the
// pipeline degrades per spec §7 rather than failing.
func New(cfg config.Config, store *vault.Store, vectors *vectorindex.Store, graph *graphcache.Cache, llm llmclient.Client, q *queue.Queue, log *logx.Logger) *Engine {
	return &Engine{
		cfg:     cfg,
		vault:   store,
		vectors: vectors,
		graph:   graph,
		llm:     llm,
		sources: vault.NewSourceChunks(cfg.Paths.SourceChunksDir, cfg.Sources.SourceChunkMaxChars),
		queue:   q,
		log:     log,
		pool:    newUpsertPool(upsertPoolWorkers),
	}
}

// Close drains any in-flight asynchronous vector upserts. Callers must call
// this before exiting so a queued upsert is never silently dropped.
func (e *Engine) Close() { e.pool.Close() }

// Process runs the full pipeline for a single ticket (spec §4.6 steps 1-8).
func (e *Engine) Process(t queue.Ticket) error {
	if _, err := os.Stat(e.cfg.Paths.VaultNotesDir); err != nil {
		return e.archive(t) // precondition failed: archive as a no-op (spec §4.6 step 1)
	}
	if _, err := os.Stat(t.TranscriptPath); err != nil {
		return e.archive(t)
	}
	if e.llm == nil {
		return e.archive(t) // spec §7: extraction without an LLM emits no facts
	}

	turns, err := ReadTranscriptTail(t.TranscriptPath, e.cfg.Extract.MaxCodeBlockChars)
	if err != nil {
		e.logf("EXTRACT error reading transcript for %s: %v", t.SessionID, err)
		return e.archive(t)
	}
	if len(turns) == 0 {
		return e.archive(t)
	}

	if e.log != nil {
		e.log.ProcessingSession(t.SessionID)
	}

	conversation := RenderTurns(turns)

	existingIDs, err := e.vault.ListNotes()
	if err != nil {
		e.logf("EXTRACT error listing vault for %s: %v", t.SessionID, err)
		return e.archive(t)
	}

	related := e.preQuery(conversation)
	existing := e.existingNotesSummary(existingIDs)

	prompt := BuildExtractionPrompt(turns, related, existing)
	raw, err := e.llm.GenerateJSON(prompt)
	if err != nil {
		e.logf("EXTRACT LLM error for %s: %v", t.SessionID, err)
		return e.archive(t)
	}

	rawFacts, err := ParseFacts(raw)
	if err != nil {
		e.logf("EXTRACT parse error for %s: %v (dropping batch)", t.SessionID, err)
		return e.archive(t)
	}

	if e.cfg.Extract.ValidationEnabled {
		rawFacts = e.validate(rawFacts, conversation)
	}

	applied := 0
	for _, rf := range rawFacts {
		if e.applyFact(rf, existingIDs, conversation) {
			applied++
		}
	}
	if e.log != nil {
		e.log.FactsExtracted(applied)
	}

	return e.archive(t)
}

func (e *Engine) archive(t queue.Ticket) error {
	return e.queue.Archive(t, t.TurnCount)
}

func (e *Engine) logf(format string, args ...any) {
	if e.log != nil {
		e.log.Printf(format, args...)
	}
}

// preQuery embeds the first preQueryProbeChars of the conversation and
// fetches the top-K related notes above preQueryThreshold, injected as
// "related context" for conflict detection (spec §4.6 step 3).
func (e *Engine) preQuery(conversation string) []NoteSummary {
	if e.vectors == nil {
		return nil
	}
	probe := conversation
	if len(probe) > preQueryProbeChars {
		probe = probe[:preQueryProbeChars]
	}
	vec, err := e.vectors.EmbedQuery(probe)
	if err != nil {
		return nil
	}
	hits, err := e.vectors.Query(vec, preQueryTopK, preQueryThreshold)
	if err != nil {
		return nil
	}
	out := make([]NoteSummary, 0, len(hits))
	for _, h := range hits {
		n, err := e.vault.Parse(h.Payload.NoteID)
		if err != nil {
			continue
		}
		out = append(out, NoteSummary{NoteID: n.NoteID, Description: n.Meta.Description, Body: n.Body})
	}
	return out
}

// existingNotesSummary lists up to existingNotesMaxList notes as
// "- <slug>: <description>" (spec §4.6 step 4).
func (e *Engine) existingNotesSummary(ids []string) []NoteSummary {
	limit := existingNotesMaxList
	if len(ids) < limit {
		limit = len(ids)
	}
	out := make([]NoteSummary, 0, limit)
	for _, id := range ids[:limit] {
		n, err := e.vault.Parse(id)
		if err != nil {
			continue
		}
		out = append(out, NoteSummary{NoteID: id, Description: n.Meta.Description})
	}
	return out
}

// validate runs the optional second LLM call and drops facts whose index
// isn't returned as grounded (spec §4.6 step 6, §7 "Hallucination"). A
// validator that errors degrades to "keep everything" rather than drop
// every candidate extracted this round.
func (e *Engine) validate(facts []RawFact, conversation string) []RawFact {
	tailText := conversation
	if len(tailText) > validationTailChars {
		tailText = tailText[len(tailText)-validationTailChars:]
	}

	summaries := make([]string, len(facts))
	for i, f := range facts {
		summaries[i] = fmt.Sprintf("%d. [%s] %s", i, f.Relation, f.Content)
	}

	raw, err := e.llm.GenerateJSON(BuildValidationPrompt(summaries, tailText))
	if err != nil {
		e.logf("EXTRACT validation call failed, keeping all candidates: %v", err)
		return facts
	}
	grounded, err := parseIndexList(raw)
	if err != nil {
		e.logf("EXTRACT validation parse failed, keeping all candidates: %v", err)
		return facts
	}

	keep := make(map[int]bool, len(grounded))
	for _, i := range grounded {
		keep[i] = true
	}
	out := make([]RawFact, 0, len(keep))
	for i, f := range facts {
		if keep[i] {
			out = append(out, f)
		}
	}
	return out
}

// titleIndex maps a lowercased note description (the closest thing this
// schema has to a title) to its note_id, for wikilink alias rewriting (spec
// §4.6 step 7).
func (e *Engine) titleIndex(ids []string) map[string]string {
	out := make(map[string]string, len(ids))
	for _, id := range ids {
		n, err := e.vault.Parse(id)
		if err != nil || n.Meta.Description == "" {
			continue
		}
		out[strings.ToLower(n.Meta.Description)] = id
	}
	return out
}

// applyFact normalizes, dedups, writes, and indexes a single surviving fact
// (spec §4.6 step 7). It returns true if the fact was applied.
func (e *Engine) applyFact(rf RawFact, existingIDs []string, conversation string) bool {
	noteID := vault.SanitizeNoteID(rf.NoteID)
	if noteID == "" {
		return false
	}
	rel := vault.ParseRelation(rf.Relation)

	validIDs := make(map[string]bool, len(existingIDs)+1)
	for _, id := range existingIDs {
		validIDs[id] = true
	}
	validIDs[noteID] = true
	body := vault.RewriteWikilinks(rf.Content, validIDs, e.titleIndex(existingIDs))

	if rel.Kind == "NEW" && e.vectors != nil {
		if dup, dupID, err := e.vectors.SemanticDup(body, e.cfg.Extract.DedupThreshold); err == nil && dup {
			e.logf("DEDUP: merged into %s", dupID)
			rel = vault.Relation{Kind: "EXTENDS", Target: dupID}
		}
	}

	// Determine the file actually mutated, and whether this resolves to a
	// true EXTENDS append, before calling ApplyRelation, which demotes
	// UPDATES/EXTENDS to NEW internally when the target is missing (spec
	// §4.1, §7 "Data invariant violation"). NEW and (demoted-or-not) UPDATES
	// both write a fresh frontmatter block; a true EXTENDS append carries
	// none, since it lands inside the target's existing body.
	affectedID := noteID
	targetExists := rel.Target != "" && e.vault.Exists(rel.Target)
	isAppend := rel.Kind == "EXTENDS" && targetExists
	if (rel.Kind == "UPDATES" || rel.Kind == "EXTENDS") && targetExists {
		affectedID = rel.Target
	}

	content := body
	if !isAppend {
		today := time.Now().Format("2006-01-02")
		content = vault.BuildFrontmatter(rf.Description, rf.Type, rf.Confidence, today) + body
	}

	if err := e.vault.ApplyRelation(noteID, content, rel); err != nil {
		e.logf("EXTRACT write error for %s: %v", noteID, err)
		return false
	}

	if err := e.sources.Save(affectedID, conversation, rel); err != nil {
		e.logf("EXTRACT source chunk error for %s: %v", affectedID, err)
	}

	e.patchGraph(affectedID, validIDs)
	e.asyncUpsert(affectedID)

	return true
}

func (e *Engine) patchGraph(affectedID string, validIDs map[string]bool) {
	if e.graph == nil {
		return
	}
	raw, err := os.ReadFile(e.vault.Path(affectedID))
	if err != nil {
		return
	}
	validIDs[affectedID] = true
	e.graph.ApplyIncremental(affectedID, string(raw), validIDs)
	if err := e.graph.Save(e.cfg.Paths.GraphCachePath); err != nil {
		e.logf("GRAPH incremental save error: %v", err)
		return
	}
	if e.log != nil {
		e.log.GraphIncremental(affectedID, len(e.graph.Outbound[affectedID]))
	}
}

func (e *Engine) asyncUpsert(noteID string) {
	if e.vectors == nil {
		return
	}
	e.pool.Submit(func() {
		n, err := e.vault.Parse(noteID)
		if err != nil {
			return
		}
		if err := e.vectors.UpsertBatch([]vectorindex.NoteInput{{
			NoteID:      n.NoteID,
			EmbedText:   n.EmbedText,
			Description: n.Meta.Description,
			Type:        n.Meta.Type,
			Confidence:  n.Meta.Confidence,
			Created:     n.Meta.Created,
		}}, 1); err != nil {
			e.logf("EMBED error upserting %s: %v", noteID, err)
		}
	})
}
