// Package hnsw implements the layered graph build/search algorithm: a
// single mutable build pass over an immutable vector segment's node
// ordinals, producing an immutable Graph that the vector segment
// serializes alongside its node store.
package hnsw

import (
	"github.com/nidx/nidx/internal/vector"
)

// Params are the fixed, documented HNSW construction/search parameters.
// M_max0 = 2*M and M_max = M are derived, not configured.
type Params struct {
	M              int
	EfConstruction int
	EfSearch       int
}

// DefaultParams matches the documented fixed values.
func DefaultParams() Params {
	return Params{M: 30, EfConstruction: 100, EfSearch: 100}
}

func (p Params) mMax0() int { return 2 * p.M }
func (p Params) mMax() int  { return p.M }

// VectorSource gives the graph builder/searcher access to the vectors a
// segment's node store holds, by ordinal. It is the seam that lets hnsw
// stay ignorant of the node-store file format.
type VectorSource interface {
	Vector(ordinal uint32) vector.Vec
	Len() int
}

// EntryPoint is the (node, layer) pair search begins from.
type EntryPoint struct {
	Node  uint32
	Layer int
}

// Graph is a multi-layer directed graph over node ordinals in one segment.
// Layer 0 contains every node; higher layers contain a geometrically
// shrinking subset. Edges are plain ordinal indices into the segment's own
// node array — never cross-owned pointers.
type Graph struct {
	Params  Params
	Entry   EntryPoint
	// Edges[layer][nodeOrdinal] holds that node's out-edges on that layer.
	// A node absent from Edges[layer] (because it doesn't reach that layer)
	// has no entry at all, not an empty slice, so NodeTopLayer can recover
	// each node's membership cheaply.
	Edges   []map[uint32][]uint32
}

// NodeTopLayer returns the highest layer a node participates in, or -1 if
// the node is unknown to the graph (e.g. ordinal count mismatch).
func (g *Graph) NodeTopLayer(ordinal uint32) int {
	for l := len(g.Edges) - 1; l >= 0; l-- {
		if _, ok := g.Edges[l][ordinal]; ok {
			return l
		}
	}
	return -1
}

func (g *Graph) ensureLayer(l int) {
	for len(g.Edges) <= l {
		g.Edges = append(g.Edges, map[uint32][]uint32{})
	}
}

func (g *Graph) neighbours(layer int, node uint32) []uint32 {
	if layer >= len(g.Edges) {
		return nil
	}
	return g.Edges[layer][node]
}

func (g *Graph) setNeighbours(layer int, node uint32, neighbours []uint32) {
	g.ensureLayer(layer)
	g.Edges[layer][node] = neighbours
}

// NumNodes returns the number of distinct nodes present in layer 0, i.e.
// the full node count the graph was built over.
func (g *Graph) NumNodes() int {
	if len(g.Edges) == 0 {
		return 0
	}
	return len(g.Edges[0])
}
