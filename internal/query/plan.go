package query

import "github.com/nidx/nidx/internal/filter"

// Build runs steps 1-4 of the planning algorithm: split the filter into a
// pre-filterable tree and a search-time tree, decide whether a pre-filter
// is worth running at all, and build whichever per-index sub-requests the
// caller asked for. ApplyPrefilterResult performs step 5 once the
// pre-filter has actually executed.
func Build(req Request) *Plan {
	prefilterExpr, searchExpr := splitFilter(req.Filter, req.ParagraphLabels)

	plan := &Plan{}
	if prefilterExpr != nil || len(req.Security) > 0 {
		plan.Prefilter = &PrefilterRequest{Expr: prefilterExpr, Security: req.Security}
	}

	if req.WantVector && len(req.Embedding) > 0 && req.ResultPerPage > 0 {
		plan.Vector = &VectorRequest{
			Embedding:               req.Embedding,
			K:                       req.ResultPerPage,
			WithDuplicates:          req.WithDuplicates,
			MinScore:                req.MinScoreSemantic,
			FilterExpr:              searchExpr,
			SegmentFilteringFormula: extractSegmentTags(prefilterExpr),
		}
	}

	if req.WantParagraph {
		plan.Paragraph = &ParagraphRequest{
			Query:       req.Query,
			FilterExpr:  searchExpr,
			MinScore:    req.MinScoreBM25,
			Order:       req.Order,
			Descending:  req.Descending,
			Page:        req.Page,
			PageSize:    req.ResultPerPage,
			FacetFields: req.FacetFields,
			OnlyFaceted: req.OnlyFaceted,
		}
	}

	if req.WantText {
		plan.Text = &TextRequest{
			Query:       req.Query,
			FilterExpr:  prefilterExpr,
			MinScore:    req.MinScoreBM25,
			Order:       req.Order,
			Descending:  req.Descending,
			Page:        req.Page,
			PageSize:    req.ResultPerPage,
			FacetFields: req.FacetFields,
			OnlyFaceted: req.OnlyFaceted,
		}
	}

	if req.RelationQuery != nil {
		plan.Relation = &RelationRequest{Query: *req.RelationQuery}
	}

	return plan
}

// ApplyPrefilterResult rewrites plan's sub-requests once the pre-filter has
// run: None drops every sub-request, All drops the paragraph request's
// timestamp filter (the pre-filter already proved it matches everything),
// and Some needs no rewrite here — the surviving field set narrows each
// per-index search directly (the searcher façade threads the filter.Result
// itself into the vector/paragraph/text dispatch), not by editing the plan's
// FilterExpr trees.
func ApplyPrefilterResult(plan *Plan, result filter.Result) {
	if result.Kind == filter.None {
		plan.Vector = nil
		plan.Paragraph = nil
		plan.Text = nil
		plan.Relation = nil
		return
	}
	if result.Kind == filter.All && plan.Paragraph != nil {
		plan.Paragraph.FilterExpr = dropDateRanges(plan.Paragraph.FilterExpr)
	}
}
