package query

import (
	"strings"

	"github.com/nidx/nidx/internal/filter"
)

// splitFilter partitions expr into a pre-filterable tree (everything that
// can be resolved against the text index at field granularity) and a
// search-time tree (paragraph-label literals that only the paragraph and
// vector searches can evaluate). Every leaf kind except Literal is always
// pre-filterable; a Literal is search-time-only when its label is in
// paragraphLabels.
//
// Pruning preserves And/Or structure but drops any subtree with no
// surviving leaves, and collapses a connective down to its single
// surviving child rather than keeping a one-operand And/Or around.
func splitFilter(expr filter.Expr, paragraphLabels map[string]bool) (prefilterExpr, searchExpr filter.Expr) {
	pre, _ := pruneExpr(expr, func(leaf filter.Expr) bool {
		lit, ok := leaf.(filter.Literal)
		return !ok || !paragraphLabels[lit.Label]
	})
	search, _ := pruneExpr(expr, func(leaf filter.Expr) bool {
		lit, ok := leaf.(filter.Literal)
		return ok && paragraphLabels[lit.Label]
	})
	return pre, search
}

func pruneExpr(e filter.Expr, keepLeaf func(filter.Expr) bool) (filter.Expr, bool) {
	if e == nil {
		return nil, false
	}
	switch v := e.(type) {
	case filter.And:
		kept := pruneChildren(v, keepLeaf)
		return collapse(kept, func(xs []filter.Expr) filter.Expr { return filter.And(xs) })
	case filter.Or:
		kept := pruneChildren(v, keepLeaf)
		return collapse(kept, func(xs []filter.Expr) filter.Expr { return filter.Or(xs) })
	case filter.Not:
		if inner, ok := pruneExpr(v.Expr, keepLeaf); ok {
			return filter.Not{Expr: inner}, true
		}
		return nil, false
	default:
		if keepLeaf(e) {
			return e, true
		}
		return nil, false
	}
}

func pruneChildren(children []filter.Expr, keepLeaf func(filter.Expr) bool) []filter.Expr {
	var kept []filter.Expr
	for _, c := range children {
		if p, ok := pruneExpr(c, keepLeaf); ok {
			kept = append(kept, p)
		}
	}
	return kept
}

func collapse(kept []filter.Expr, wrap func([]filter.Expr) filter.Expr) (filter.Expr, bool) {
	switch len(kept) {
	case 0:
		return nil, false
	case 1:
		return kept[0], true
	default:
		return wrap(kept), true
	}
}

// extractSegmentTags keeps only the Literal leaves of expr whose label
// falls under SegmentTagPrefix; these prune whole segments at open time.
func extractSegmentTags(expr filter.Expr) filter.Expr {
	pruned, _ := pruneExpr(expr, func(leaf filter.Expr) bool {
		lit, ok := leaf.(filter.Literal)
		return ok && strings.HasPrefix(lit.Label, SegmentTagPrefix)
	})
	return pruned
}

// dropDateRanges removes every DateRange leaf from expr; used when the
// pre-filter already matched everything, making an explicit timestamp
// filter on the paragraph request superfluous.
func dropDateRanges(expr filter.Expr) filter.Expr {
	pruned, _ := pruneExpr(expr, func(leaf filter.Expr) bool {
		_, isDate := leaf.(filter.DateRange)
		return !isDate
	})
	return pruned
}
