package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/tofunori/memo-rize/internal/bm25index"
	"github.com/tofunori/memo-rize/internal/graphcache"
	"github.com/tofunori/memo-rize/internal/vault"
	"github.com/tofunori/memo-rize/internal/vectorindex"
)

// indexCmd implements the Indexer CLI surface (spec §6): no args rebuilds
// every cache from the full vault; --note/--notes upserts a subset.
func indexCmd() *cobra.Command {
	var notes []string

	cmd := &cobra.Command{
		Use:   "index",
		Short: "Rebuild or incrementally update the vector, BM25, and graph caches",
		RunE: func(cmd *cobra.Command, args []string) error {
			d, err := loadDeps()
			if err != nil {
				return err
			}
			defer d.close()

			if len(notes) > 0 {
				return runIndexNotes(d, notes)
			}
			return runIndexRebuild(d)
		},
	}
	cmd.Flags().StringSliceVar(&notes, "note", nil, "Upsert only the given note id(s) instead of a full rebuild")
	cmd.Flags().StringSliceVar(&notes, "notes", nil, "Alias for --note, accepts multiple ids")
	return cmd
}

// runIndexRebuild implements "no args": re-embed and rebuild the vector,
// BM25, and graph caches from the full vault (spec §6 "Indexer").
func runIndexRebuild(d *deps) error {
	parsed, err := d.store.ParseAll()
	if err != nil {
		return fmt.Errorf("parse vault: %w", err)
	}
	if len(parsed) == 0 {
		return nil // silent skip: empty vault
	}

	if d.vectors != nil {
		inputs := make([]vectorindex.NoteInput, len(parsed))
		for i, n := range parsed {
			inputs[i] = toVectorInput(n)
		}
		if err := d.vectors.UpsertBatch(inputs, d.cfg.Models.EmbedBatchSize); err != nil {
			d.log.Printf("INDEX vector rebuild error: %v", err)
		}
	}

	bm25Inputs := make([]bm25index.NoteInput, len(parsed))
	for i, n := range parsed {
		bm25Inputs[i] = toBM25Input(n)
	}
	idx := bm25index.Build(bm25Inputs)
	if err := idx.Save(d.cfg.Paths.BM25IndexPath); err != nil {
		return fmt.Errorf("save bm25 index: %w", err)
	}

	graph := graphcache.Build(parsed)
	if err := graph.Save(d.cfg.Paths.GraphCachePath); err != nil {
		return fmt.Errorf("save graph cache: %w", err)
	}

	d.log.Printf("INDEX full rebuild: %d notes", len(parsed))
	return nil
}

// runIndexNotes implements --note/--notes: upsert the named notes into the
// vector store, incrementally patch the graph cache, and rebuild the BM25
// index (which has no incremental-update API of its own).
func runIndexNotes(d *deps, ids []string) error {
	var inputs []vectorindex.NoteInput
	var parsed []vault.Note
	for _, id := range ids {
		if !d.store.Exists(id) {
			d.log.Printf("INDEX skip missing note: %s", id)
			continue
		}
		n, err := d.store.Parse(id)
		if err != nil {
			d.log.Printf("INDEX parse error for %s: %v", id, err)
			continue
		}
		parsed = append(parsed, n)
		inputs = append(inputs, toVectorInput(n))
	}
	if len(parsed) == 0 {
		return nil // silent skip: nothing to index
	}

	if d.vectors != nil {
		if err := d.vectors.UpsertBatch(inputs, d.cfg.Models.EmbedBatchSize); err != nil {
			d.log.Printf("INDEX vector upsert error: %v", err)
		}
	}

	if d.graph != nil {
		allIDs, err := d.store.ListNotes()
		if err == nil {
			validIDs := make(map[string]bool, len(allIDs))
			for _, v := range allIDs {
				validIDs[v] = true
			}
			for _, n := range parsed {
				d.graph.ApplyIncremental(n.NoteID, n.Raw, validIDs)
			}
			if err := d.graph.Save(d.cfg.Paths.GraphCachePath); err != nil {
				d.log.Printf("INDEX graph save error: %v", err)
			}
		}
	}

	allParsed, err := d.store.ParseAll()
	if err == nil {
		bm25Inputs := make([]bm25index.NoteInput, len(allParsed))
		for i, n := range allParsed {
			bm25Inputs[i] = toBM25Input(n)
		}
		if err := bm25index.Build(bm25Inputs).Save(d.cfg.Paths.BM25IndexPath); err != nil {
			d.log.Printf("INDEX bm25 save error: %v", err)
		}
	}

	d.log.Printf("INDEX upsert: %d note(s)", len(parsed))
	return nil
}

func toVectorInput(n vault.Note) vectorindex.NoteInput {
	return vectorindex.NoteInput{
		NoteID:      n.NoteID,
		EmbedText:   n.EmbedText,
		Description: n.Meta.Description,
		Type:        n.Meta.Type,
		Confidence:  n.Meta.Confidence,
		Created:     n.Meta.Created,
	}
}

func toBM25Input(n vault.Note) bm25index.NoteInput {
	return bm25index.NoteInput{
		NoteID:      n.NoteID,
		Text:        n.EmbedText,
		Description: n.Meta.Description,
		Type:        n.Meta.Type,
		Confidence:  n.Meta.Confidence,
	}
}
