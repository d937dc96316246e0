// Package query implements the planner: it turns one user search request
// into a pre-filter request plus up to four per-index sub-requests, then
// rewrites those sub-requests once the pre-filter has actually run.
package query

import (
	"github.com/nidx/nidx/internal/filter"
	"github.com/nidx/nidx/internal/relation"
	"github.com/nidx/nidx/internal/text"
)

// SegmentTagPrefix is the reserved label namespace a vector sub-request's
// segment_filtering_formula is built from; labels under this prefix prune
// whole segments at open time instead of individual nodes.
const SegmentTagPrefix = "/q/h"

// Request is the user-facing search request the planner consumes.
type Request struct {
	Filter filter.Expr
	// ParagraphLabels names every Literal label in Filter that must be
	// evaluated inside the paragraph/vector search itself rather than
	// pre-filtered at field granularity (e.g. labels that only exist on
	// individual paragraphs, not on the resource/field as a whole).
	ParagraphLabels map[string]bool
	Security        []string

	Query         string
	Embedding     []float32
	WithDuplicates bool

	WantVector    bool
	WantParagraph bool
	WantText      bool
	RelationQuery *relation.PathQuery

	MinScoreSemantic float64
	MinScoreBM25     float64

	Page          int
	ResultPerPage int
	Order         text.Order
	Descending    bool
	FacetFields   []string
	OnlyFaceted   bool
}

// PrefilterRequest is what gets evaluated against the text index to produce
// a filter.Result, or nil if the request has nothing worth pre-filtering.
type PrefilterRequest struct {
	Expr     filter.Expr
	Security []string
}

// VectorRequest is the sub-request handed to the vector segment.
type VectorRequest struct {
	Embedding             []float32
	K                     int
	WithDuplicates        bool
	MinScore              float64
	FilterExpr            filter.Expr
	SegmentFilteringFormula filter.Expr
}

// ParagraphRequest is the sub-request handed to the paragraph index.
type ParagraphRequest struct {
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

// TextRequest is the sub-request handed to the full-document text index.
type TextRequest struct {
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

// RelationRequest is the sub-request handed to the relation segment.
type RelationRequest struct {
	Query relation.PathQuery
}

// Plan is everything the searcher façade needs to run one request: the
// pre-filter (if any) and whichever per-index sub-requests the caller
// asked for.
type Plan struct {
	Prefilter *PrefilterRequest
	Vector    *VectorRequest
	Paragraph *ParagraphRequest
	Text      *TextRequest
	Relation  *RelationRequest
}
