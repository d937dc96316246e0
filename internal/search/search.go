// Package search is the searcher façade: it opens a consistent cut of
// segments per index, fans out the query planner's sub-requests across
// those segments with a bounded worker pool, and merges the per-segment
// results under the documented per-index merge rules. A failure on one
// index never fails the others — each outcome records its own error.
package search

import (
	"context"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/nidx/nidx/internal/catalog"
	"github.com/nidx/nidx/internal/filter"
	"github.com/nidx/nidx/internal/prefilter"
	"github.com/nidx/nidx/internal/query"
	"github.com/nidx/nidx/internal/relation"
	"github.com/nidx/nidx/internal/text"
	"github.com/nidx/nidx/internal/vector"
)

// VectorOpener resolves a catalog segment ID to an open vector segment
// handle plus a release callback, decrementing whatever refcount the
// caller's writer cache keeps.
type VectorOpener interface {
	Open(id string) (*vector.Segment, func(), error)
}

// TextOpener is the paragraph/text segment equivalent of VectorOpener.
type TextOpener interface {
	Open(id string) (*text.Segment, func(), error)
}

// RelationOpener is the relation segment equivalent of VectorOpener.
type RelationOpener interface {
	Open(id string) (*relation.Segment, func(), error)
}

// VectorIndex is one index's worth of searchable state: the catalog's
// current read snapshot and a way to turn its segment IDs into handles.
type VectorIndex struct {
	Cut    *catalog.Cut
	Opener VectorOpener
}

// TextIndex is the paragraph/text equivalent of VectorIndex.
type TextIndex struct {
	Cut    *catalog.Cut
	Opener TextOpener
}

// RelationIndex is the relation equivalent of VectorIndex.
type RelationIndex struct {
	Cut    *catalog.Cut
	Opener RelationOpener
}

// Indexes is the set of per-index cuts a Run call searches across. A nil
// field means that index isn't available for this shard; the corresponding
// plan sub-request, if any, is skipped.
type Indexes struct {
	Vector    *VectorIndex
	Paragraph *TextIndex
	Text      *TextIndex
	Relation  *RelationIndex
}

// DefaultMaxParallel bounds per-index segment fan-out when a caller passes
// zero.
const DefaultMaxParallel = 8

// VectorOutcome is the vector index's contribution to a Response.
type VectorOutcome struct {
	Neighbours []vector.Neighbour
	Err        error
}

// TextOutcome is a paragraph or text index's contribution to a Response.
type TextOutcome struct {
	Response *text.Response
	Err      error
}

// RelationOutcome is the relation index's contribution to a Response.
type RelationOutcome struct {
	Triples []relation.Triple
	Err     error
}

// Response collects every requested index's outcome. A nil field means
// that index wasn't requested or had nothing to run (the plan dropped it,
// e.g. a None pre-filter result); a non-nil field with Err set means the
// index ran and failed, distinct from a non-nil field with Err nil and no
// results, which means the index ran and legitimately matched nothing.
type Response struct {
	Vector    *VectorOutcome
	Paragraph *TextOutcome
	Text      *TextOutcome
	Relation  *RelationOutcome
}

// Run builds a plan from req, evaluates the pre-filter if one is needed,
// and fans out the resulting per-index sub-requests across idxs.
func Run(ctx context.Context, req query.Request, idxs Indexes, maxParallel int) (*Response, error) {
	if maxParallel <= 0 {
		maxParallel = DefaultMaxParallel
	}

	plan := query.Build(req)

	pre := filter.AllResult()
	if plan.Prefilter != nil {
		result, err := runPrefilter(ctx, plan.Prefilter, idxs.Paragraph, maxParallel)
		if err != nil {
			return nil, err
		}
		pre = result
		query.ApplyPrefilterResult(plan, result)
	}

	resp := &Response{}
	var wg sync.WaitGroup

	if plan.Vector != nil && idxs.Vector != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			resp.Vector = runVector(ctx, plan.Vector, *idxs.Vector, pre, maxParallel)
		}()
	}
	if plan.Paragraph != nil && idxs.Paragraph != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			resp.Paragraph = runText(ctx, paragraphAsTextRequest(plan.Paragraph), *idxs.Paragraph, pre, maxParallel)
		}()
	}
	if plan.Text != nil && idxs.Text != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			resp.Text = runText(ctx, textAsTextRequest(plan.Text), *idxs.Text, pre, maxParallel)
		}()
	}
	if plan.Relation != nil && idxs.Relation != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			resp.Relation = runRelation(ctx, plan.Relation, *idxs.Relation, maxParallel)
		}()
	}

	wg.Wait()
	return resp, nil
}

// runPrefilter evaluates the pre-filter against every live segment of the
// paragraph index and folds the per-segment results together: any segment
// answering All makes the whole pass All (the predicate is segment-
// independent, so if it's unconditionally true against one segment's
// universe it is against all of them); otherwise the field sets union.
func runPrefilter(ctx context.Context, req *query.PrefilterRequest, idx *TextIndex, maxParallel int) (filter.Result, error) {
	if idx == nil {
		return filter.AllResult(), nil
	}

	type partial struct {
		result filter.Result
	}
	partials := make([]partial, len(idx.Cut.Segments))

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
			res, err := prefilter.Evaluate(seg, req.Expr, req.Security)
			if err != nil {
				return err
			}
			partials[i] = partial{result: res}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return filter.Result{}, err
	}

	fields := map[filter.FieldID]struct{}{}
	sawSome := false
	for _, p := range partials {
		switch p.result.Kind {
		case filter.All:
			return filter.AllResult(), nil
		case filter.Some:
			sawSome = true
			for f := range p.result.Fields {
				fields[f] = struct{}{}
			}
		}
	}
	if !sawSome {
		return filter.NoneResult(), nil
	}
	out := make([]filter.FieldID, 0, len(fields))
	for f := range fields {
		out = append(out, f)
	}
	return filter.SomeResult(out), nil
}

func paragraphAsTextRequest(r *query.ParagraphRequest) textRequest {
	return textRequest{
		Query:       r.Query,
		FilterExpr:  r.FilterExpr,
		MinScore:    r.MinScore,
		Order:       r.Order,
		Descending:  r.Descending,
		Page:        r.Page,
		PageSize:    r.PageSize,
		FacetFields: r.FacetFields,
		OnlyFaceted: r.OnlyFaceted,
	}
}

func textAsTextRequest(r *query.TextRequest) textRequest {
	return textRequest{
		Query:       r.Query,
		FilterExpr:  r.FilterExpr,
		MinScore:    r.MinScore,
		Order:       r.Order,
		Descending:  r.Descending,
		Page:        r.Page,
		PageSize:    r.PageSize,
		FacetFields: r.FacetFields,
		OnlyFaceted: r.OnlyFaceted,
	}
}

// textRequest is the common shape of query.ParagraphRequest and
// query.TextRequest once resolved to a bleve search — the two packages are
// kept distinct in internal/query because they're conceptually separate
// indices (paragraph spans vs whole-document text), but both run against
// the same internal/text.Segment engine here.
type textRequest struct {
	Query       string
	FilterExpr  filter.Expr
	MinScore    float64
	Order       text.Order
	Descending  bool
	Page        int
	PageSize    int
	FacetFields []string
	OnlyFaceted bool
}
