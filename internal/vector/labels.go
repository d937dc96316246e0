package vector

import (
	"bytes"
	"sort"

	"github.com/blevesearch/vellum"

	"github.com/nidx/nidx/internal/xerrors"
)

// LabelSet is a node's set of "/"-delimited label paths.
type LabelSet []string

// CompileLabels builds the prefix-trie blob for a node's label set so that
// HasPrefix runs in O(prefix length) rather than scanning every label. The
// trie is a vellum FST over the sorted, de-duplicated label paths, giving
// ordered-byte-key range iteration for free.
func CompileLabels(labels LabelSet) ([]byte, error) {
	uniq := make(map[string]struct{}, len(labels))
	for _, l := range labels {
		uniq[l] = struct{}{}
	}
	sorted := make([]string, 0, len(uniq))
	for l := range uniq {
		sorted = append(sorted, l)
	}
	sort.Strings(sorted)

	var buf bytes.Buffer
	builder, err := vellum.New(&buf, nil)
	if err != nil {
		return nil, xerrors.Mark(xerrors.Internal, err, "create label trie builder")
	}
	for i, l := range sorted {
		if err := builder.Insert([]byte(l), uint64(i)); err != nil {
			return nil, xerrors.Mark(xerrors.Internal, err, "insert label into trie")
		}
	}
	if err := builder.Close(); err != nil {
		return nil, xerrors.Mark(xerrors.Internal, err, "close label trie builder")
	}
	return buf.Bytes(), nil
}

// LabelTrie is a read-only view over a compiled label blob.
type LabelTrie struct {
	fst *vellum.FST
}

// OpenLabelTrie loads a blob produced by CompileLabels. An empty blob is a
// valid, empty trie.
func OpenLabelTrie(blob []byte) (*LabelTrie, error) {
	if len(blob) == 0 {
		return &LabelTrie{}, nil
	}
	fst, err := vellum.Load(blob)
	if err != nil {
		return nil, xerrors.Mark(xerrors.SegmentCorrupt, err, "load label trie")
	}
	return &LabelTrie{fst: fst}, nil
}

// HasPrefix reports whether any label in the set has prefix as a prefix.
// Implemented as a single bounded FST range iteration: [prefix, upperBound)
// where upperBound is prefix with its last byte incremented, so the scan
// touches only candidates that could possibly match.
func (t *LabelTrie) HasPrefix(prefix string) bool {
	if t == nil || t.fst == nil {
		return prefix == ""
	}
	if prefix == "" {
		return t.fst.Len() > 0
	}
	lo := []byte(prefix)
	hi := upperBound(lo)
	it, err := t.fst.Iterator(lo, hi)
	if err != nil {
		// vellum.Iterator returns ErrIteratorDone when the range is empty.
		return false
	}
	defer it.Close()
	return true
}

// upperBound returns the smallest byte string greater than every string
// with prefix p, or nil (meaning "no upper bound") if p is all 0xFF bytes.
func upperBound(p []byte) []byte {
	out := append([]byte(nil), p...)
	for i := len(out) - 1; i >= 0; i-- {
		if out[i] != 0xFF {
			out[i]++
			return out[:i+1]
		}
	}
	return nil
}
