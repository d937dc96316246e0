package query

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/nidx/nidx/internal/filter"
)

func TestSplitFilterCollapsesSingleSurvivorOutOfAnd(t *testing.T) {
	expr := filter.And{
		filter.Literal{Label: "this"},
		filter.Literal{Label: "and"},
		filter.Literal{Label: "that"},
	}
	pre, search := splitFilter(expr, map[string]bool{"and": true, "that": true})
	assert.Equal(t, filter.Literal{Label: "this"}, pre)
	assert.Equal(t, filter.And{filter.Literal{Label: "and"}, filter.Literal{Label: "that"}}, search)
}

func TestSplitFilterDropsEntireTreeWhenNothingSurvives(t *testing.T) {
	expr := filter.Literal{Label: "paragraph-only"}
	pre, _ := splitFilter(expr, map[string]bool{"paragraph-only": true})
	assert.Nil(t, pre)
}

func TestSplitFilterKeepsNonLiteralLeavesOnlyInPrefilterTree(t *testing.T) {
	expr := filter.And{
		filter.Keyword{Text: "hello"},
		filter.Literal{Label: "paragraph-only"},
	}
	pre, search := splitFilter(expr, map[string]bool{"paragraph-only": true})
	assert.Equal(t, filter.Keyword{Text: "hello"}, pre)
	assert.Equal(t, filter.Literal{Label: "paragraph-only"}, search)
}

func TestPruneExprDropsNotWhenInnerDoesNotSurvive(t *testing.T) {
	expr := filter.Not{Expr: filter.Literal{Label: "paragraph-only"}}
	pre, ok := pruneExpr(expr, func(leaf filter.Expr) bool {
		lit, isLit := leaf.(filter.Literal)
		return !isLit || lit.Label != "paragraph-only"
	})
	assert.False(t, ok)
	assert.Nil(t, pre)
}
