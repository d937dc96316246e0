package search

import (
	"context"
	"sort"

	"github.com/RoaringBitmap/roaring"
	"golang.org/x/sync/errgroup"

	"github.com/nidx/nidx/internal/filter"
	"github.com/nidx/nidx/internal/text"
	"github.com/nidx/nidx/internal/vector"
)

// paragraphRestriction splits expr into the label prefixes a search can
// apply directly as index clauses and a single ordinal bitmap covering
// everything else, folding in the pre-filter's surviving field set. Only a
// top-level And of pure Literal leaves maps cleanly onto
// internal/text.SearchRequest's two independent restriction mechanisms;
// anything else (a bare Or, a Not, a lone non-Literal leaf) is folded
// wholesale into the bitmap side via filter.Compile.
//
// pre.Kind == filter.Some still restricts the bitmap even when expr itself
// carries nothing but label leaves (or is nil): a pre-filter pass narrowed
// the candidate fields, and a paragraph or text search outside those fields
// must not see results the pre-filter already ruled out.
func paragraphRestriction(seg *text.Segment, pre filter.Result, expr filter.Expr) ([]string, *roaring.Bitmap, error) {
	var labelPrefixes []string
	var bitmapLeaves filter.And
	if expr != nil {
		leaves, ok := expr.(filter.And)
		if !ok {
			leaves = filter.And{expr}
		}
		for _, c := range leaves {
			if lit, isLit := c.(filter.Literal); isLit {
				labelPrefixes = append(labelPrefixes, lit.Label)
				continue
			}
			bitmapLeaves = append(bitmapLeaves, c)
		}
	}

	if len(bitmapLeaves) == 0 && pre.Kind != filter.Some {
		return labelPrefixes, nil, nil
	}

	var combined filter.Expr
	switch len(bitmapLeaves) {
	case 0:
		combined = nil
	case 1:
		combined = bitmapLeaves[0]
	default:
		combined = bitmapLeaves
	}

	universe, err := seg.AllOrdinals()
	if err != nil {
		return nil, nil, err
	}
	bm, _, err := filter.Compile(combined, pre, seg, universe)
	if err != nil {
		return nil, nil, err
	}
	return labelPrefixes, bm, nil
}

type textPartial struct {
	resp *text.Response
}

func runText(ctx context.Context, req textRequest, idx TextIndex, pre filter.Result, maxParallel int) *TextOutcome {
	partials := make([]textPartial, len(idx.Cut.Segments))
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

			labelPrefixes, ordinals, err := paragraphRestriction(seg, pre, req.FilterExpr)
			if err != nil {
				return err
			}

			resp, err := seg.Search(text.SearchRequest{
				Query:         req.Query,
				LabelPrefixes: labelPrefixes,
				Ordinals:      ordinals,
				MinScore:      req.MinScore,
				Order:         req.Order,
				Descending:    req.Descending,
				Page:          req.Page,
				PageSize:      req.PageSize,
				FacetFields:   req.FacetFields,
				OnlyFaceted:   req.OnlyFaceted,
			})
			if err != nil {
				return err
			}

			resp.Results = removeDeletedParagraphs(resp.Results, idx.Cut.ForSegment(ref.OpenStamp))
			partials[i] = textPartial{resp: resp}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return &TextOutcome{Err: err}
	}
	return &TextOutcome{Response: mergeText(partials, req.PageSize)}
}

// removeDeletedParagraphs filters out results whose owning resource/field
// has been tombstoned since this segment's open-stamp, reusing the same
// DeletedChecker the vector index applies, keyed on the UUID/field prefix a
// paragraph result shares with the vector key scheme.
func removeDeletedParagraphs(results []text.Result, deleted vector.DeletedChecker) []text.Result {
	if deleted == nil {
		return results
	}
	out := results[:0]
	for _, r := range results {
		key := []byte(r.UUID + "/" + r.Field)
		if deleted.IsDeleted(key) {
			continue
		}
		out = append(out, r)
	}
	return out
}

// mergeText implements the documented paragraph/text merge rule: score
// descending with a stable (uuid, start, end) tiebreak, facet counts summed
// across segments.
func mergeText(partials []textPartial, pageSize int) *text.Response {
	var all []text.Result
	facets := map[string]map[string]int64{}
	nextPage := false
	fuzzy := 0

	for _, p := range partials {
		if p.resp == nil {
			continue
		}
		all = append(all, p.resp.Results...)
		if p.resp.NextPage {
			nextPage = true
		}
		if p.resp.FuzzyDistance > fuzzy {
			fuzzy = p.resp.FuzzyDistance
		}
		for field, counts := range p.resp.Facets {
			dst, ok := facets[field]
			if !ok {
				dst = map[string]int64{}
				facets[field] = dst
			}
			for val, n := range counts {
				dst[val] += n
			}
		}
	}

	sort.SliceStable(all, func(i, j int) bool {
		if all[i].Score.BM25 != all[j].Score.BM25 {
			return all[i].Score.BM25 > all[j].Score.BM25
		}
		if all[i].UUID != all[j].UUID {
			return all[i].UUID < all[j].UUID
		}
		if all[i].Start != all[j].Start {
			return all[i].Start < all[j].Start
		}
		return all[i].End < all[j].End
	})

	if pageSize > 0 && len(all) > pageSize {
		nextPage = true
		all = all[:pageSize]
	}

	return &text.Response{Results: all, Facets: facets, NextPage: nextPage, FuzzyDistance: fuzzy}
}
