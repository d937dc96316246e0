// Package vector implements the vector segment engine: an immutable
// on-disk artifact holding labeled, filtered float vectors plus the HNSW
// graph over them (internal/vector/hnsw).
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

// Journal is the segment's small JSON metadata record.
type Journal struct {
	UID       string    `json:"uid"`
	NodeCount int       `json:"nodes"`
	CTime     time.Time `json:"ctime"`
}

const (
	nodesFile   = "nodes.kv"
	graphFile   = "hnsw.graph"
	edgesFile   = "hnsw.edges"
	journalFile = "journal.json"
)

// Segment is an immutable, memory-mapped vector index artifact.
type Segment struct {
	dir        string
	uid        uuid.UUID
	journal    Journal
	store      *NodeStore
	graph      *hnsw.Graph
	similarity Similarity
}

// UID is the segment's random 128-bit identity.
func (s *Segment) UID() uuid.UUID { return s.uid }

// NodeCount returns the number of nodes in the segment.
func (s *Segment) NodeCount() int { return s.store.Len() }

// vectorSource adapts a NodeStore to hnsw.VectorSource.
type vectorSource struct{ store *NodeStore }

func (v vectorSource) Len() int { return v.store.Len() }
func (v vectorSource) Vector(ordinal uint32) Vec {
	n, err := v.store.At(int(ordinal))
	if err != nil {
		return nil
	}
	return n.Vector
}

// Create deduplicates elems by key (keeping the first occurrence), sorts
// them, writes the node store, builds the HNSW graph over every node, and
// writes the journal. A partially-written directory is discarded without
// being left for a caller to accidentally register.
func Create(dir string, elems []Node, similarity Similarity, params hnsw.Params, seed int64, now time.Time) (*Segment, error) {
	if len(elems) == 0 {
		return nil, xerrors.New(xerrors.InvalidRequest, "cannot create a segment with no elements")
	}
	dim := len(elems[0].Vector)
	dedup := make(map[string]Node, len(elems))
	order := make([]string, 0, len(elems))
	for _, e := range elems {
		if len(e.Vector) != dim {
			return nil, xerrors.Newf(xerrors.InvalidRequest, "vector dimension mismatch: got %d want %d", len(e.Vector), dim)
		}
		k := string(e.Key)
		if _, exists := dedup[k]; !exists {
			dedup[k] = e
			order = append(order, k)
		}
	}
	sort.Strings(order)
	sorted := make([]Node, len(order))
	for i, k := range order {
		sorted[i] = dedup[k]
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, xerrors.Mark(xerrors.IO, err, "create segment directory")
	}
	ok := false
	defer func() {
		if !ok {
			os.RemoveAll(dir)
		}
	}()

	if err := writeNodeStore(filepath.Join(dir, nodesFile), sorted); err != nil {
		return nil, err
	}
	store, err := openNodeStore(filepath.Join(dir, nodesFile))
	if err != nil {
		return nil, err
	}

	graph := hnsw.Build(vectorSource{store}, params, seed)
	graphBytes, edgesBytes, err := hnsw.EncodeV2(graph, vectorSource{store})
	if err != nil {
		return nil, err
	}
	if err := os.WriteFile(filepath.Join(dir, graphFile), graphBytes, 0o644); err != nil {
		return nil, xerrors.Mark(xerrors.IO, err, "write hnsw graph")
	}
	if err := os.WriteFile(filepath.Join(dir, edgesFile), edgesBytes, 0o644); err != nil {
		return nil, xerrors.Mark(xerrors.IO, err, "write hnsw edges")
	}

	uid := uuid.New()
	journal := Journal{UID: uid.String(), NodeCount: len(sorted), CTime: now}
	jb, err := json.Marshal(journal)
	if err != nil {
		return nil, xerrors.Mark(xerrors.Internal, err, "marshal journal")
	}
	if err := os.WriteFile(filepath.Join(dir, journalFile), jb, 0o644); err != nil {
		return nil, xerrors.Mark(xerrors.IO, err, "write journal")
	}

	ok = true
	return &Segment{dir: dir, uid: uid, journal: journal, store: store, graph: graph, similarity: similarity}, nil
}

// Open reads an existing segment's journal and HNSW graph and memory-maps
// its node store; hnsw.edges is not read.
func Open(dir string, params hnsw.Params, similarity Similarity) (*Segment, error) {
	jb, err := os.ReadFile(filepath.Join(dir, journalFile))
	if err != nil {
		return nil, xerrors.Mark(xerrors.IO, err, "read journal")
	}
	var journal Journal
	if err := json.Unmarshal(jb, &journal); err != nil {
		return nil, xerrors.Mark(xerrors.SegmentCorrupt, err, "malformed journal")
	}
	uid, err := uuid.Parse(journal.UID)
	if err != nil {
		return nil, xerrors.Mark(xerrors.SegmentCorrupt, err, "malformed journal uid")
	}

	store, err := openNodeStore(filepath.Join(dir, nodesFile))
	if err != nil {
		return nil, err
	}

	graphBytes, err := os.ReadFile(filepath.Join(dir, graphFile))
	if err != nil {
		store.Close()
		return nil, xerrors.Mark(xerrors.IO, err, "read hnsw graph")
	}
	graph, err := hnsw.DecodeV2(graphBytes, store.Len(), params)
	if err != nil {
		store.Close()
		return nil, err
	}

	return &Segment{dir: dir, uid: uid, journal: journal, store: store, graph: graph, similarity: similarity}, nil
}

// Close releases the segment's memory mappings.
func (s *Segment) Close() error { return s.store.Close() }

// DeletedChecker decides, for this segment's open-stamp, whether a key is
// hidden by a later tombstone prefix. Implemented by the catalog's open
// cut, kept opaque here so the vector engine has no dependency on catalog.
type DeletedChecker interface {
	IsDeleted(key []byte) bool
}

// LabelKeeper evaluates the filter engine's compiled predicate against a
// node's label trie.
type LabelKeeper func(trie *LabelTrie) bool

// Search returns up to k non-deleted, filter-passing neighbours in
// descending similarity order.
func (s *Segment) Search(deleted DeletedChecker, query Vec, keep LabelKeeper, withDuplicates bool, k int, minScore float32) ([]Neighbour, error) {
	if len(query) != 0 && s.store.Len() > 0 {
		first, err := s.store.At(0)
		if err == nil && len(first.Vector) != len(query) {
			return nil, xerrors.Newf(xerrors.InvalidRequest, "query dimension mismatch: got %d want %d", len(query), len(first.Vector))
		}
	}

	src := vectorSource{s.store}
	accept := func(ordinal uint32) bool {
		n, err := s.store.At(int(ordinal))
		if err != nil {
			return false
		}
		if deleted != nil && deleted.IsDeleted(n.Key) {
			return false
		}
		if keep != nil {
			trie, err := OpenLabelTrie(n.LabelsBlob)
			if err != nil || !keep(trie) {
				return false
			}
		}
		return true
	}

	results := s.graph.Search(src, query, k, minScore, accept, !withDuplicates)
	out := make([]Neighbour, 0, len(results))
	for _, r := range results {
		n, err := s.store.At(int(r.Ordinal))
		if err != nil {
			continue
		}
		out = append(out, Neighbour{Key: n.Key, Score: r.Score, Metadata: n.Metadata, ParagraphID: paragraphIDOf(n.Key)})
	}
	return out, nil
}

// GetKeys lists every live key under deleted's view.
func (s *Segment) GetKeys(deleted DeletedChecker) ([]Key, error) {
	out := make([]Key, 0, s.store.Len())
	for i := 0; i < s.store.Len(); i++ {
		n, err := s.store.At(i)
		if err != nil {
			return nil, err
		}
		if deleted != nil && deleted.IsDeleted(n.Key) {
			continue
		}
		out = append(out, n.Key)
	}
	return out, nil
}

// paragraphIDOf derives the owning paragraph's identity from a vector
// key's resource/field_type/field_id prefix, dropping the start-end span.
// Multi-vector cardinality collapses results to at most one per paragraph
// during ranking; vector nodes carry no separate paragraph_id field, so
// that grouping key is derived from the key shape instead.
func paragraphIDOf(k Key) string {
	s := string(k)
	for i := len(s) - 1; i >= 0; i-- {
		if s[i] == '/' {
			return s[:i]
		}
	}
	return s
}
