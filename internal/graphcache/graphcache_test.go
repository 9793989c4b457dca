package graphcache

import (
	"path/filepath"
	"reflect"
	"sort"
	"testing"

	"github.com/tofunori/memo-rize/internal/vault"
)

func note(id, body string) vault.Note {
	return vault.Note{NoteID: id, Body: body}
}

func TestBuild_InvertsOutboundIntoBacklinks(t *testing.T) {
	notes := []vault.Note{
		note("a", "links to [[b]]"),
		note("b", "links to [[c]]"),
		note("c", "no links here"),
	}
	c := Build(notes)

	if !reflect.DeepEqual(c.Outbound["a"], []string{"b"}) {
		t.Errorf("outbound[a] = %v", c.Outbound["a"])
	}
	if !reflect.DeepEqual(c.Outbound["b"], []string{"c"}) {
		t.Errorf("outbound[b] = %v", c.Outbound["b"])
	}
	if !reflect.DeepEqual(c.Backlinks["b"], []string{"a"}) {
		t.Errorf("backlinks[b] = %v", c.Backlinks["b"])
	}
	if !reflect.DeepEqual(c.Backlinks["c"], []string{"b"}) {
		t.Errorf("backlinks[c] = %v", c.Backlinks["c"])
	}
}

func TestBuildThenInvert_RoundTrip(t *testing.T) {
	notes := []vault.Note{
		note("a", "[[b]] [[c]]"),
		note("b", "[[c]]"),
		note("c", ""),
	}
	c := Build(notes)
	recomputed := invert(c.Outbound)
	for id := range c.Outbound {
		sort.Strings(c.Backlinks[id])
		sort.Strings(recomputed[id])
		if !reflect.DeepEqual(c.Backlinks[id], recomputed[id]) {
			t.Errorf("backlinks[%s] = %v, recomputed = %v", id, c.Backlinks[id], recomputed[id])
		}
	}
}

func TestApplyIncremental_DualInvariant(t *testing.T) {
	notes := []vault.Note{
		note("a", "[[b]]"),
		note("b", ""),
		note("c", ""),
	}
	c := Build(notes)
	validIDs := map[string]bool{"a": true, "b": true, "c": true}

	// a now links to c instead of b.
	c.ApplyIncremental("a", "now links to [[c]]", validIDs)

	if containsStr(c.Outbound["a"], "b") {
		t.Error("expected a -> b edge removed")
	}
	if containsStr(c.Backlinks["b"], "a") {
		t.Error("expected b's backlinks to drop a")
	}
	if !containsStr(c.Outbound["a"], "c") {
		t.Error("expected a -> c edge added")
	}
	if !containsStr(c.Backlinks["c"], "a") {
		t.Error("expected c's backlinks to include a")
	}

	// Invariant: id in backlinks[t] iff t in outbound[id], for every (id, t).
	for id, targets := range c.Outbound {
		for _, t := range targets {
			if !containsStr(c.Backlinks[t], id) {
				panic("invariant violated")
			}
		}
	}
	for tgt, sources := range c.Backlinks {
		for _, id := range sources {
			if !containsStr(c.Outbound[id], tgt) {
				panic("invariant violated")
			}
		}
	}
}

func TestOrphans(t *testing.T) {
	notes := []vault.Note{
		note("a", "[[b]]"),
		note("b", ""),
		note("c", ""), // orphan: no outbound, no backlinks
	}
	c := Build(notes)
	orphans := c.Orphans()
	if !reflect.DeepEqual(orphans, []string{"c"}) {
		t.Errorf("expected [c], got %v", orphans)
	}
}

func TestSaveLoad_RoundTrip(t *testing.T) {
	notes := []vault.Note{note("a", "[[b]]"), note("b", "")}
	c := Build(notes)

	path := filepath.Join(t.TempDir(), "graph_cache.json")
	if err := c.Save(path); err != nil {
		t.Fatalf("Save: %v", err)
	}
	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if !reflect.DeepEqual(loaded.Outbound, c.Outbound) {
		t.Errorf("outbound mismatch after round-trip")
	}
}
