package vector

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/nidx/nidx/internal/vector/hnsw"
	"github.com/nidx/nidx/internal/xerrors"
)

// translateGraph rebuilds g with every ordinal rewritten through perm. Edges
// to an ordinal absent from perm (shouldn't happen for a well-formed input
// graph) are dropped defensively rather than panicking.
func translateGraph(g *hnsw.Graph, perm map[uint32]uint32) *hnsw.Graph {
	out := &hnsw.Graph{Params: g.Params, Entry: hnsw.EntryPoint{Node: perm[g.Entry.Node], Layer: g.Entry.Layer}}
	out.Edges = make([]map[uint32][]uint32, len(g.Edges))
	for l, layer := range g.Edges {
		translated := make(map[uint32][]uint32, len(layer))
		for node, edges := range layer {
			newNode, ok := perm[node]
			if !ok {
				continue
			}
			newEdges := make([]uint32, 0, len(edges))
			for _, e := range edges {
				if ne, ok := perm[e]; ok {
					newEdges = append(newEdges, ne)
				}
			}
			translated[newNode] = newEdges
		}
		out.Edges[l] = translated
	}
	return out
}

// mergeGraphInto folds src's layers into dst. Inputs were built
// independently so their node sets are disjoint; this is a plain union of
// per-layer edge maps, not a graph-theoretic merge.
func mergeGraphInto(dst, src *hnsw.Graph) {
	for len(dst.Edges) < len(src.Edges) {
		dst.Edges = append(dst.Edges, map[uint32][]uint32{})
	}
	for l, layer := range src.Edges {
		for node, edges := range layer {
			dst.Edges[l][node] = edges
		}
	}
}

// bridge adds one bidirectional layer-0 edge between a and b so the merged
// graph's single entry point can still reach every input segment's nodes.
func bridge(g *hnsw.Graph, a, b uint32) {
	if len(g.Edges) == 0 {
		g.Edges = append(g.Edges, map[uint32][]uint32{})
	}
	g.Edges[0][a] = append(g.Edges[0][a], b)
	g.Edges[0][b] = append(g.Edges[0][b], a)
}

// MergeInput pairs a segment with the deletion view it should be merged
// under.
type MergeInput struct {
	Segment *Segment
	Deleted DeletedChecker
}

// Merge combines inputs into one new segment, taking the fast path
// (HNSW-preserving, O(N)) when no input has any applicable deletion, and
// the slow path (drop-and-rebuild) otherwise.
func Merge(dir string, inputs []MergeInput, similarity Similarity, params hnsw.Params, seed int64, now time.Time) (*Segment, error) {
	if len(inputs) == 0 {
		return nil, xerrors.New(xerrors.InvalidRequest, "merge requires at least one input segment")
	}

	fastEligible := true
	for _, in := range inputs {
		if in.Deleted == nil {
			continue
		}
		for i := 0; i < in.Segment.store.Len() && fastEligible; i++ {
			n, err := in.Segment.store.At(i)
			if err != nil {
				return nil, err
			}
			if in.Deleted.IsDeleted(n.Key) {
				fastEligible = false
			}
		}
		if !fastEligible {
			break
		}
	}

	if fastEligible {
		return fastMerge(dir, inputs, similarity, params, now)
	}
	return slowMerge(dir, inputs, similarity, params, seed, now)
}

// fastMerge concatenates node stores into one key-sorted store and
// translates each input's HNSW graph through the resulting ordinal
// permutation instead of re-inserting every node. Distinct input segments
// were built independently, so their subgraphs share no edges; to keep the
// merged graph's entry point able to reach every node, we additionally
// bridge each input's local entry point to the segment's chosen global
// entry point with one bidirectional layer-0 edge — O(number of inputs)
// extra work, not O(N), so the fast path keeps its complexity bound.
func fastMerge(dir string, inputs []MergeInput, similarity Similarity, params hnsw.Params, now time.Time) (*Segment, error) {
	type placed struct {
		key  Key
		node Node
		from int // input index
		old  uint32
	}
	var all []placed
	seen := map[string]bool{}
	for si, in := range inputs {
		for i := 0; i < in.Segment.store.Len(); i++ {
			n, err := in.Segment.store.At(i)
			if err != nil {
				return nil, err
			}
			if seen[string(n.Key)] {
				continue
			}
			seen[string(n.Key)] = true
			all = append(all, placed{key: n.Key, node: n, from: si, old: uint32(i)})
		}
	}
	sort.Slice(all, func(i, j int) bool { return all[i].key.Compare(all[j].key) < 0 })

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, xerrors.Mark(xerrors.IO, err, "create merged segment directory")
	}
	ok := false
	defer func() {
		if !ok {
			os.RemoveAll(dir)
		}
	}()

	sortedNodes := make([]Node, len(all))
	// perm[si][oldOrdinal] = new ordinal
	perm := make([]map[uint32]uint32, len(inputs))
	for i := range perm {
		perm[i] = map[uint32]uint32{}
	}
	for newOrd, p := range all {
		sortedNodes[newOrd] = p.node
		perm[p.from][p.old] = uint32(newOrd)
	}

	if err := writeNodeStore(filepath.Join(dir, nodesFile), sortedNodes); err != nil {
		return nil, err
	}
	store, err := openNodeStore(filepath.Join(dir, nodesFile))
	if err != nil {
		return nil, err
	}

	merged := &hnsw.Graph{Params: params}
	var globalEntry hnsw.EntryPoint
	bestSize := -1
	localEntries := make([]hnsw.EntryPoint, len(inputs))
	for si, in := range inputs {
		translated := translateGraph(in.Segment.graph, perm[si])
		mergeGraphInto(merged, translated)
		localEntries[si] = hnsw.EntryPoint{
			Node:  perm[si][in.Segment.graph.Entry.Node],
			Layer: in.Segment.graph.Entry.Layer,
		}
		if in.Segment.store.Len() > bestSize {
			bestSize = in.Segment.store.Len()
			globalEntry = localEntries[si]
		}
	}
	merged.Entry = globalEntry
	for si := range inputs {
		if localEntries[si].Node == globalEntry.Node {
			continue
		}
		bridge(merged, globalEntry.Node, localEntries[si].Node)
	}

	graphBytes, edgesBytes, err := hnsw.EncodeV2(merged, vectorSource{store})
	if err != nil {
		return nil, err
	}
	if err := os.WriteFile(filepath.Join(dir, graphFile), graphBytes, 0o644); err != nil {
		return nil, xerrors.Mark(xerrors.IO, err, "write merged hnsw graph")
	}
	if err := os.WriteFile(filepath.Join(dir, edgesFile), edgesBytes, 0o644); err != nil {
		return nil, xerrors.Mark(xerrors.IO, err, "write merged hnsw edges")
	}

	seg, err := finalizeSegment(dir, store, merged, similarity, now)
	if err != nil {
		return nil, err
	}
	ok = true
	return seg, nil
}

// slowMerge drops deleted nodes and rebuilds the HNSW graph from scratch.
// Markedly slower than the fast path since every surviving node is
// re-inserted.
func slowMerge(dir string, inputs []MergeInput, similarity Similarity, params hnsw.Params, seed int64, now time.Time) (*Segment, error) {
	var survivors []Node
	seen := map[string]bool{}
	for _, in := range inputs {
		for i := 0; i < in.Segment.store.Len(); i++ {
			n, err := in.Segment.store.At(i)
			if err != nil {
				return nil, err
			}
			if seen[string(n.Key)] {
				continue
			}
			if in.Deleted != nil && in.Deleted.IsDeleted(n.Key) {
				continue
			}
			seen[string(n.Key)] = true
			survivors = append(survivors, n)
		}
	}
	if len(survivors) == 0 {
		return nil, xerrors.New(xerrors.InvalidRequest, "merge produced an empty segment")
	}
	sort.Slice(survivors, func(i, j int) bool { return survivors[i].Key.Compare(survivors[j].Key) < 0 })

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, xerrors.Mark(xerrors.IO, err, "create merged segment directory")
	}
	if err := writeNodeStore(filepath.Join(dir, nodesFile), survivors); err != nil {
		os.RemoveAll(dir)
		return nil, err
	}
	store, err := openNodeStore(filepath.Join(dir, nodesFile))
	if err != nil {
		os.RemoveAll(dir)
		return nil, err
	}

	graph := hnsw.Build(vectorSource{store}, params, seed)
	graphBytes, edgesBytes, err := hnsw.EncodeV2(graph, vectorSource{store})
	if err != nil {
		os.RemoveAll(dir)
		return nil, err
	}
	if err := os.WriteFile(filepath.Join(dir, graphFile), graphBytes, 0o644); err != nil {
		os.RemoveAll(dir)
		return nil, xerrors.Mark(xerrors.IO, err, "write rebuilt hnsw graph")
	}
	if err := os.WriteFile(filepath.Join(dir, edgesFile), edgesBytes, 0o644); err != nil {
		os.RemoveAll(dir)
		return nil, xerrors.Mark(xerrors.IO, err, "write rebuilt hnsw edges")
	}

	seg, err := finalizeSegment(dir, store, graph, similarity, now)
	if err != nil {
		os.RemoveAll(dir)
		return nil, err
	}
	return seg, nil
}

func finalizeSegment(dir string, store *NodeStore, graph *hnsw.Graph, similarity Similarity, now time.Time) (*Segment, error) {
	uid := uuid.New()
	journal := Journal{UID: uid.String(), NodeCount: store.Len(), CTime: now}
	jb, err := json.Marshal(journal)
	if err != nil {
		return nil, xerrors.Mark(xerrors.Internal, err, "marshal journal")
	}
	if err := os.WriteFile(filepath.Join(dir, journalFile), jb, 0o644); err != nil {
		return nil, xerrors.Mark(xerrors.IO, err, "write journal")
	}
	return &Segment{dir: dir, uid: uid, journal: journal, store: store, graph: graph, similarity: similarity}, nil
}
