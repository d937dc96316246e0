package search

import (
	"bytes"
	"context"
	"sort"

	"golang.org/x/sync/errgroup"

	"github.com/nidx/nidx/internal/filter"
	"github.com/nidx/nidx/internal/query"
	"github.com/nidx/nidx/internal/vector"
)

// combineExprs ANDs two possibly-nil filter trees together.
func combineExprs(a, b filter.Expr) filter.Expr {
	if a == nil {
		return b
	}
	if b == nil {
		return a
	}
	return filter.And{a, b}
}

// labelKeeperFor builds a vector.LabelKeeper from expr. Only Literal, Not,
// And and Or have a vector-side meaning (a node's label trie); any other
// leaf kind (Keyword, Facet, FieldRef, Resource, DateRange) has no
// posting-list equivalent on a vector segment and is treated as
// unconditionally satisfied, the same permissive-widening approximation
// internal/filter.Compile documents for a tree mixing label and bitmap
// leaves under a shared connective.
func labelKeeperFor(expr filter.Expr) vector.LabelKeeper {
	if expr == nil {
		return func(*vector.LabelTrie) bool { return true }
	}
	switch v := expr.(type) {
	case filter.Literal:
		label := v.Label
		return func(t *vector.LabelTrie) bool { return t.HasPrefix(label) }
	case filter.Not:
		inner := labelKeeperFor(v.Expr)
		return func(t *vector.LabelTrie) bool { return !inner(t) }
	case filter.And:
		keeps := make([]vector.LabelKeeper, len(v))
		for i, c := range v {
			keeps[i] = labelKeeperFor(c)
		}
		return func(t *vector.LabelTrie) bool {
			for _, k := range keeps {
				if !k(t) {
					return false
				}
			}
			return true
		}
	case filter.Or:
		keeps := make([]vector.LabelKeeper, len(v))
		for i, c := range v {
			keeps[i] = labelKeeperFor(c)
		}
		return func(t *vector.LabelTrie) bool {
			for _, k := range keeps {
				if k(t) {
					return true
				}
			}
			return false
		}
	default:
		return func(*vector.LabelTrie) bool { return true }
	}
}

type vectorPartial struct {
	neighbours []vector.Neighbour
}

// fieldSetPrefixes turns a pre-filter's Some result into the vector.Key
// prefixes ("resource/field_type/field_id/") that cover its surviving
// fields. A nil return means no restriction: the result was All (or the
// caller never ran a pre-filter pass), not a narrowed field set.
func fieldSetPrefixes(pre filter.Result) [][]byte {
	if pre.Kind != filter.Some {
		return nil
	}
	prefixes := make([][]byte, 0, len(pre.Fields))
	for id := range pre.Fields {
		prefixes = append(prefixes, []byte(id.ResourceID+"/"+id.FieldPath+"/"))
	}
	return prefixes
}

// fieldRestrictedChecker composes a segment's ordinary tombstone check with
// the pre-filter's surviving field set: a key outside every prefix is
// treated as deleted, the same exclusion a real tombstone produces, so the
// graph search drops it before counting toward k rather than after.
type fieldRestrictedChecker struct {
	inner    vector.DeletedChecker
	prefixes [][]byte
}

func (f fieldRestrictedChecker) IsDeleted(key []byte) bool {
	if f.inner != nil && f.inner.IsDeleted(key) {
		return true
	}
	if f.prefixes == nil {
		return false
	}
	for _, p := range f.prefixes {
		if bytes.HasPrefix(key, p) {
			return false
		}
	}
	return true
}

func runVector(ctx context.Context, req *query.VectorRequest, idx VectorIndex, pre filter.Result, maxParallel int) *VectorOutcome {
	keep := labelKeeperFor(combineExprs(req.FilterExpr, req.SegmentFilteringFormula))
	prefixes := fieldSetPrefixes(pre)

	partials := make([]vectorPartial, len(idx.Cut.Segments))
	g, _ := errgroup.WithContext(ctx)
	sem := make(chan struct{}, maxParallel)
	for i, ref := range idx.Cut.Segments {
		i, ref := i, ref
		g.Go(func() error {
			sem <- struct{}{}
			defer func() { <-sem }()

			seg, release, err := idx.Opener.Open(ref.ID)
			if err != nil {
				return err
			}
			defer release()

			deleted := fieldRestrictedChecker{inner: idx.Cut.ForSegment(ref.OpenStamp), prefixes: prefixes}
			neighbours, err := seg.Search(deleted, vector.Vec(req.Embedding), keep, req.WithDuplicates, req.K, float32(req.MinScore))
			if err != nil {
				return err
			}
			partials[i] = vectorPartial{neighbours: neighbours}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return &VectorOutcome{Err: err}
	}

	var all []vector.Neighbour
	for _, p := range partials {
		all = append(all, p.neighbours...)
	}
	return &VectorOutcome{Neighbours: mergeVector(all, req.K, req.WithDuplicates)}
}

// mergeVector implements the documented vector merge rule: similarity
// descending, then top-k. Cross-segment duplicates of the same paragraph
// (multi-vector cardinality) collapse to their best-scoring occurrence
// unless the caller asked to keep duplicates.
func mergeVector(all []vector.Neighbour, k int, withDuplicates bool) []vector.Neighbour {
	sort.SliceStable(all, func(i, j int) bool { return all[i].Score > all[j].Score })

	if !withDuplicates {
		seen := make(map[string]bool, len(all))
		out := all[:0]
		for _, n := range all {
			if seen[n.ParagraphID] {
				continue
			}
			seen[n.ParagraphID] = true
			out = append(out, n)
		}
		all = out
	}

	if k > 0 && len(all) > k {
		all = all[:k]
	}
	return all
}
