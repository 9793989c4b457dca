package retrieval

import "github.com/tofunori/memo-rize/internal/graphcache"

// expandGraph performs the BFS graph expansion of spec §4.5 step 7: from
// primaryIDs (in descending score order), first inject up to
// maxBacklinksPerNote backlinks per primary, then a depth-1 outbound
// round-robin across primaries, then a depth-2 outbound round-robin across
// the depth-1 frontier, deduping against everything already surfaced and
// capping the total number of secondary (non-primary) ids at maxSecondary.
// The returned slice preserves BFS composition order, as required by step
// 10's ordering guarantee for the graph block.
func expandGraph(cache *graphcache.Cache, primaryIDs []string, maxBacklinksPerNote, maxSecondary int) []string {
	if cache == nil || maxSecondary <= 0 {
		return nil
	}

	surfaced := make(map[string]bool, len(primaryIDs))
	for _, id := range primaryIDs {
		surfaced[id] = true
	}

	var secondary []string
	full := func() bool { return len(secondary) >= maxSecondary }
	// tryAdd reports whether id was newly added (i.e. wasn't already
	// surfaced and there was room). Callers use the return value to build
	// the next phase's frontier out of only what actually landed.
	tryAdd := func(id string) bool {
		if full() || surfaced[id] {
			return false
		}
		surfaced[id] = true
		secondary = append(secondary, id)
		return true
	}

	// Phase 1: backlinks, up to maxBacklinksPerNote per primary.
	for _, pid := range primaryIDs {
		if full() {
			break
		}
		count := 0
		for _, b := range cache.Backlinks[pid] {
			if count >= maxBacklinksPerNote || full() {
				break
			}
			if surfaced[b] {
				continue
			}
			tryAdd(b)
			count++
		}
	}

	// Phase 2: depth-1 outbound round-robin across primaries.
	depth1Frontier := roundRobinExpand(cache, primaryIDs, tryAdd, full)

	// Phase 3: depth-2 outbound round-robin across the depth-1 frontier.
	if len(depth1Frontier) > 0 {
		roundRobinExpand(cache, depth1Frontier, tryAdd, full)
	}

	return secondary
}

// roundRobinExpand walks cache.Outbound[source] for each source in sources,
// round-robin (one not-yet-visited candidate per source per pass), calling
// tryAdd for each until every source is exhausted or full reports true. It
// returns, in discovery order, every id tryAdd actually accepted — the next
// phase's frontier.
func roundRobinExpand(cache *graphcache.Cache, sources []string, tryAdd func(string) bool, full func() bool) []string {
	cursors := make([]int, len(sources))
	visited := make(map[string]bool)
	var frontier []string

	for {
		if full() {
			return frontier
		}
		progressed := false
		for i, src := range sources {
			if full() {
				return frontier
			}
			targets := cache.Outbound[src]
			for cursors[i] < len(targets) {
				cand := targets[cursors[i]]
				cursors[i]++
				if cand == src || visited[cand] {
					continue
				}
				visited[cand] = true
				progressed = true
				if tryAdd(cand) {
					frontier = append(frontier, cand)
				}
				break
			}
		}
		if !progressed {
			return frontier
		}
	}
}
