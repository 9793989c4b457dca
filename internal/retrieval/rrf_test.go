package retrieval

import "testing"

func TestFuse_RRF(t *testing.T) {
	// Boundary scenario from spec §8: vector=[a:0.9,b:0.8], keyword=[b:5,c:3],
	// RRF_K=60, top-3 -> order [b,a,c].
	vector := rankedList{"a", "b"}
	keyword := rankedList{"b", "c"}

	got := fuse(60, vector, keyword)
	want := []string{"b", "a", "c"}
	if len(got) != len(want) {
		t.Fatalf("fuse() = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("fuse()[%d] = %s, want %s", i, got[i], want[i])
		}
	}
}

func TestFuse_EmptyLists(t *testing.T) {
	if got := fuse(60); len(got) != 0 {
		t.Errorf("fuse() with no lists = %v, want empty", got)
	}
}

func TestFuse_DocOnlyInOneList(t *testing.T) {
	got := fuse(60, rankedList{"x", "y"}, rankedList{})
	if len(got) != 2 || got[0] != "x" || got[1] != "y" {
		t.Errorf("fuse() = %v, want [x y]", got)
	}
}
