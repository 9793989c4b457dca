package retrieval

import (
	"reflect"
	"testing"

	"github.com/tofunori/memo-rize/internal/graphcache"
)

func TestExpandGraph_BacklinksFirst(t *testing.T) {
	cache := &graphcache.Cache{
		Outbound:  map[string][]string{"a": {}, "z": {}},
		Backlinks: map[string][]string{"a": {"z"}},
	}
	got := expandGraph(cache, []string{"a"}, 3, 10)
	if !reflect.DeepEqual(got, []string{"z"}) {
		t.Errorf("expandGraph() = %v, want [z]", got)
	}
}

func TestExpandGraph_Depth1ThenDepth2(t *testing.T) {
	// spec §8 boundary scenario 7: a -> b -> c, query matches a strongest;
	// expected graph block lists b (depth-1) then c (depth-2).
	c := &graphcache.Cache{
		Outbound:  map[string][]string{"a": {"b"}, "b": {"c"}, "c": {}},
		Backlinks: map[string][]string{"b": {"a"}, "c": {"b"}},
	}
	got := expandGraph(c, []string{"a"}, 3, 10)
	want := []string{"b", "c"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("expandGraph() = %v, want %v", got, want)
	}
}

func TestExpandGraph_RespectsMaxSecondary(t *testing.T) {
	c := &graphcache.Cache{
		Outbound:  map[string][]string{"a": {"b", "c", "d"}},
		Backlinks: map[string][]string{},
	}
	got := expandGraph(c, []string{"a"}, 3, 2)
	if len(got) != 2 {
		t.Fatalf("expandGraph() returned %d ids, want 2", len(got))
	}
}

func TestExpandGraph_DedupsAgainstPrimaries(t *testing.T) {
	c := &graphcache.Cache{
		Outbound:  map[string][]string{"a": {"b"}, "b": {"a"}},
		Backlinks: map[string][]string{"a": {"b"}, "b": {"a"}},
	}
	got := expandGraph(c, []string{"a", "b"}, 3, 10)
	if len(got) != 0 {
		t.Errorf("expandGraph() = %v, want empty (both already primary)", got)
	}
}
