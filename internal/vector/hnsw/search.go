package hnsw

import (
	"container/heap"
	"sort"

	"github.com/nidx/nidx/internal/vector"
)

// Result is one ranked search hit.
type Result struct {
	Ordinal uint32
	Score   float32
}

// Accept decides whether an ordinal survives deletion/filter checks. It is
// the seam the vector segment uses to plug in the delete log and the
// filter engine's bitset without hnsw needing to know about either.
type Accept func(ordinal uint32) bool

// Search runs the three-phase search: ef=1 descent from the entry point
// down to layer 1, an ef-bounded beam search on layer 0, then a
// post-filter BFS that walks layer-0 edges until k accepted results are
// emitted or the frontier is exhausted.
func (g *Graph) Search(src VectorSource, query vector.Vec, k int, minScore float32, accept Accept, dedupe bool) []Result {
	if g.NumNodes() == 0 || k <= 0 {
		return nil
	}

	ep := candidate{ordinal: g.Entry.Node, score: score(src, query, g.Entry.Node)}
	for l := g.Entry.Layer; l > 0; l-- {
		res := g.searchLayer(src, query, []candidate{ep}, 1, l)
		if len(res) > 0 {
			ep = res[0]
		}
	}

	ef := k
	if g.Params.EfSearch > ef {
		ef = g.Params.EfSearch
	}
	seed := g.searchLayer(src, query, []candidate{ep}, ef, 0)
	return g.postFilterBFS(src, query, seed, k, minScore, accept, dedupe)
}

// postFilterBFS implements the third search phase: pop the
// highest-similarity unvisited node; if it survives filter+delete+dedup,
// emit it; otherwise expand its layer-0 neighbours, pushing those scoring
// above minScore. Accepted nodes are terminal — expansion happens only
// through rejected ones, since the seed frontier already covers the
// surviving neighbourhood of the query.
func (g *Graph) postFilterBFS(src VectorSource, query vector.Vec, seed []candidate, k int, minScore float32, accept Accept, dedupe bool) []Result {
	frontier := newMaxHeap()
	visited := make(map[uint32]bool, len(seed)*2)
	for _, c := range seed {
		heap.Push(frontier, c)
	}

	seenVectors := make(map[string]bool)
	var out []Result
	for frontier.Len() > 0 && len(out) < k {
		c := heap.Pop(frontier).(candidate)
		if visited[c.ordinal] {
			continue
		}
		visited[c.ordinal] = true
		if c.score < minScore {
			continue
		}

		passes := accept == nil || accept(c.ordinal)
		if passes && dedupe {
			key := src.Vector(c.ordinal).RawBytes()
			if seenVectors[key] {
				passes = false
			} else {
				seenVectors[key] = true
			}
		}

		if passes {
			out = append(out, Result{Ordinal: c.ordinal, Score: c.score})
			continue
		}

		for _, nb := range g.neighbours(0, c.ordinal) {
			if visited[nb] {
				continue
			}
			s := score(src, query, nb)
			if s >= minScore {
				heap.Push(frontier, candidate{ordinal: nb, score: s})
			}
		}
	}

	sort.SliceStable(out, func(i, j int) bool { return out[i].Score > out[j].Score })
	return out
}
