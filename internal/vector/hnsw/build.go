package hnsw

import (
	"container/heap"
	"math"
	"math/rand"

	"github.com/nidx/nidx/internal/vector"
)

func score(src VectorSource, query vector.Vec, ordinal uint32) float32 {
	return vector.Dot(query, src.Vector(ordinal))
}

// drawLevel draws a node's top layer:
// layer = floor(-ln(U) * (1/ln(M))), U ~ Uniform(0,1).
func drawLevel(rng *rand.Rand, m int) int {
	u := rng.Float64()
	for u == 0 {
		u = rng.Float64()
	}
	return int(math.Floor(-math.Log(u) * (1.0 / math.Log(float64(m)))))
}

// Build constructs a fresh graph by inserting every ordinal in
// [0, src.Len()) in order, matching the node store's key-sorted ordinal
// order.
func Build(src VectorSource, params Params, seed int64) *Graph {
	g := &Graph{Params: params, Entry: EntryPoint{Node: 0, Layer: -1}}
	rng := rand.New(rand.NewSource(seed))
	for i := 0; i < src.Len(); i++ {
		g.insert(src, rng, uint32(i))
	}
	return g
}

// insert runs the standard four-step HNSW insertion algorithm: descend to
// the target layer with an ef=1 greedy search, register the node at any
// new top layers, then build connections layer by layer down to 0.
func (g *Graph) insert(src VectorSource, rng *rand.Rand, ordinal uint32) {
	layer := drawLevel(rng, g.Params.M)

	if g.Entry.Layer < 0 {
		for l := 0; l <= layer; l++ {
			g.setNeighbours(l, ordinal, nil)
		}
		g.Entry = EntryPoint{Node: ordinal, Layer: layer}
		return
	}

	query := src.Vector(ordinal)
	ep := candidate{ordinal: g.Entry.Node, score: score(src, query, g.Entry.Node)}

	for l := g.Entry.Layer; l > layer; l-- {
		res := g.searchLayer(src, query, []candidate{ep}, 1, l)
		if len(res) > 0 {
			ep = res[0]
		}
	}

	for l := g.Entry.Layer + 1; l <= layer; l++ {
		g.setNeighbours(l, ordinal, nil)
	}

	start := layer
	if g.Entry.Layer < start {
		start = g.Entry.Layer
	}
	for l := start; l >= 0; l-- {
		mMax := g.Params.mMax()
		if l == 0 {
			mMax = g.Params.mMax0()
		}
		found := g.searchLayer(src, query, []candidate{ep}, g.Params.EfConstruction, l)
		selected := selectNeighboursHeuristic(src, query, found, mMax)
		g.setNeighbours(l, ordinal, extractOrdinals(selected))

		for _, nb := range selected {
			merged := append(append([]uint32(nil), g.neighbours(l, nb.ordinal)...), ordinal)
			if len(merged) > mMax {
				nbVec := src.Vector(nb.ordinal)
				cands := make([]candidate, len(merged))
				for i, e := range merged {
					cands[i] = candidate{ordinal: e, score: score(src, nbVec, e)}
				}
				merged = extractOrdinals(selectNeighboursHeuristic(src, nbVec, cands, mMax))
			}
			g.setNeighbours(l, nb.ordinal, merged)
		}
		if len(found) > 0 {
			ep = found[0]
		}
	}

	if layer > g.Entry.Layer {
		g.Entry = EntryPoint{Node: ordinal, Layer: layer}
	}
}

// selectNeighboursHeuristic is the standard neighbour-selection heuristic:
// iterate candidates in descending similarity and admit a
// candidate only if it is closer to x than to any already-admitted
// neighbor, which prevents cluster collapse by favoring diversity over
// raw proximity once enough close neighbours are already admitted.
func selectNeighboursHeuristic(src VectorSource, query vector.Vec, candidates []candidate, maxResults int) []candidate {
	ordered := append([]candidate(nil), candidates...)
	sortDesc(ordered)

	admitted := make([]candidate, 0, maxResults)
	for _, c := range ordered {
		if len(admitted) >= maxResults {
			break
		}
		cVec := src.Vector(c.ordinal)
		closerToExisting := false
		for _, a := range admitted {
			if vector.Dot(cVec, src.Vector(a.ordinal)) > c.score {
				closerToExisting = true
				break
			}
		}
		if !closerToExisting {
			admitted = append(admitted, c)
		}
	}
	return admitted
}

func extractOrdinals(cs []candidate) []uint32 {
	out := make([]uint32, len(cs))
	for i, c := range cs {
		out[i] = c.ordinal
	}
	return out
}

func sortDesc(cs []candidate) {
	for i := 1; i < len(cs); i++ {
		for j := i; j > 0 && cs[j].score > cs[j-1].score; j-- {
			cs[j], cs[j-1] = cs[j-1], cs[j]
		}
	}
}

// searchLayer is the ef-bounded beam search shared by Insert and Search:
// expand while the best remaining candidate could still improve the
// current worst kept result.
func (g *Graph) searchLayer(src VectorSource, query vector.Vec, entryPoints []candidate, ef int, layer int) []candidate {
	visited := make(map[uint32]bool, ef*4)
	candidates := newMaxHeap()
	results := newMinHeap()

	for _, ep := range entryPoints {
		if visited[ep.ordinal] {
			continue
		}
		visited[ep.ordinal] = true
		heap.Push(candidates, ep)
		heap.Push(results, ep)
	}

	for candidates.Len() > 0 {
		c := heap.Pop(candidates).(candidate)
		if results.Len() >= ef && c.score < (*results)[0].score {
			break
		}
		for _, nb := range g.neighbours(layer, c.ordinal) {
			if visited[nb] {
				continue
			}
			visited[nb] = true
			s := score(src, query, nb)
			if results.Len() < ef || s > (*results)[0].score {
				heap.Push(candidates, candidate{ordinal: nb, score: s})
				heap.Push(results, candidate{ordinal: nb, score: s})
				if results.Len() > ef {
					heap.Pop(results)
				}
			}
		}
	}

	out := make([]candidate, results.Len())
	for i := len(out) - 1; i >= 0; i-- {
		out[i] = heap.Pop(results).(candidate)
	}
	return out
}
