package retrieval

import "sort"

// rankedList is an ordered list of note_ids, best match first, as produced
// by the vector search or BM25 search stages (spec §4.5 steps 2-3).
type rankedList []string

// fuse combines any number of ranked lists via Reciprocal Rank Fusion (spec
// §4.5 step 4): score(d) = Σ 1 / (rrfK + rank_list(d) + 1) over every list
// that contains d. Lists are 0-indexed; a document absent from a list
// contributes nothing for that list. Ties broken by first-seen order for
// determinism.
func fuse(rrfK int, lists ...rankedList) []string {
	scores := make(map[string]float64)
	order := make(map[string]int)
	seq := 0
	for _, list := range lists {
		for rank, id := range list {
			if _, ok := order[id]; !ok {
				order[id] = seq
				seq++
			}
			scores[id] += 1.0 / float64(rrfK+rank+1)
		}
	}

	ids := make([]string, 0, len(scores))
	for id := range scores {
		ids = append(ids, id)
	}
	sort.SliceStable(ids, func(i, j int) bool {
		si, sj := scores[ids[i]], scores[ids[j]]
		if si != sj {
			return si > sj
		}
		return order[ids[i]] < order[ids[j]]
	})
	return ids
}
