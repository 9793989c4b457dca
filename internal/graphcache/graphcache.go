// Package graphcache implements the Graph Cache (spec §4.4): a materialized
// outbound+backlinks view of the vault's wikilink structure, full-rebuilt
// from all notes or incrementally patched on a single note write. Grounded
// on vault.ExtractLinks for the link-extraction rules (spec §3 "A link is
// retained only if...") and on the teacher's atomic-write idiom
// (vault.WriteAtomic) for the on-disk cache file (spec §6 GRAPH_CACHE_PATH).
package graphcache

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"time"

	"github.com/tofunori/memo-rize/internal/vault"
)

// Cache is the persisted graph structure (spec §3 "Graph cache").
type Cache struct {
	BuiltAt         string              `json:"built_at"`
	NoteCount       int                 `json:"note_count"`
	Outbound        map[string][]string `json:"outbound"`
	Backlinks       map[string][]string `json:"backlinks"`
	LastIncremental string              `json:"last_incremental"`
}

func today() string { return time.Now().Format("2006-01-02") }

// Build performs a full rebuild from every parsed note (spec §4.4 "Full
// build"): outbound links are extracted per note, then inverted into
// backlinks.
func Build(notes []vault.Note) *Cache {
	validIDs := make(map[string]bool, len(notes))
	for _, n := range notes {
		validIDs[n.NoteID] = true
	}

	outbound := make(map[string][]string, len(notes))
	for _, n := range notes {
		outbound[n.NoteID] = vault.ExtractLinks(n.Body, validIDs)
	}

	return &Cache{
		BuiltAt:   today(),
		NoteCount: len(notes),
		Outbound:  outbound,
		Backlinks: invert(outbound),
	}
}

// invert derives backlinks as the dual of outbound (spec §3).
func invert(outbound map[string][]string) map[string][]string {
	backlinks := make(map[string][]string, len(outbound))
	// Ensure every node with outbound edges also has a (possibly empty)
	// backlinks entry, so orphan detection (spec §4.7) sees every note.
	for src := range outbound {
		if _, ok := backlinks[src]; !ok {
			backlinks[src] = nil
		}
	}
	for src, targets := range outbound {
		for _, t := range targets {
			if !containsStr(backlinks[t], src) {
				backlinks[t] = append(backlinks[t], src)
			}
		}
		_ = src
	}
	return backlinks
}

func containsStr(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

func removeStr(list []string, s string) []string {
	out := list[:0]
	for _, v := range list {
		if v != s {
			out = append(out, v)
		}
	}
	return out
}

// Load reads a persisted graph cache from path.
func Load(path string) (*Cache, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read graph cache %s: %w", path, err)
	}
	var c Cache
	if err := json.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("parse graph cache %s: %w", path, err)
	}
	if c.Outbound == nil {
		c.Outbound = map[string][]string{}
	}
	if c.Backlinks == nil {
		c.Backlinks = map[string][]string{}
	}
	return &c, nil
}

// Save atomically persists the cache as JSON.
func (c *Cache) Save(path string) error {
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal graph cache: %w", err)
	}
	return vault.WriteAtomic(path, data)
}

// ApplyIncremental patches the cache for a single note write (spec §4.4
// "Incremental patch on note write"). affectedID is note_id for NEW, or the
// UPDATES/EXTENDS target. newContent is the written file's body (frontmatter
// stripped is not required; link extraction only looks at [[...]] syntax).
// validIDs must contain every indexable note_id, including affectedID.
func (c *Cache) ApplyIncremental(affectedID, newContent string, validIDs map[string]bool) {
	for _, oldTarget := range c.Outbound[affectedID] {
		c.Backlinks[oldTarget] = removeStr(c.Backlinks[oldTarget], affectedID)
	}

	newLinks := vault.ExtractLinks(newContent, validIDs)
	c.Outbound[affectedID] = newLinks

	for _, target := range newLinks {
		if !containsStr(c.Backlinks[target], affectedID) {
			c.Backlinks[target] = append(c.Backlinks[target], affectedID)
		}
	}

	if _, ok := c.Backlinks[affectedID]; !ok {
		c.Backlinks[affectedID] = nil
	}

	c.LastIncremental = today()
}

// Orphans returns every note with empty outbound and empty backlinks (spec
// §4.7 "Orphans"), in sorted order for deterministic reporting.
func (c *Cache) Orphans() []string {
	var out []string
	for id := range c.Outbound {
		if len(c.Outbound[id]) == 0 && len(c.Backlinks[id]) == 0 {
			out = append(out, id)
		}
	}
	sort.Strings(out)
	return out
}
