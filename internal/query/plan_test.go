package query

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nidx/nidx/internal/filter"
)

func TestBuildSplitsFieldAndParagraphLiterals(t *testing.T) {
	req := Request{
		Filter: filter.And{
			filter.Literal{Label: "/n/i/en"},
			filter.Literal{Label: "/e/mytag"},
		},
		ParagraphLabels: map[string]bool{"/e/mytag": true},
		WantParagraph:   true,
		ResultPerPage:   10,
	}
	plan := Build(req)
	require.NotNil(t, plan.Prefilter)
	assert.Equal(t, filter.Literal{Label: "/n/i/en"}, plan.Prefilter.Expr)
	require.NotNil(t, plan.Paragraph)
	assert.Equal(t, filter.Literal{Label: "/e/mytag"}, plan.Paragraph.FilterExpr)
}

func TestBuildOmitsPrefilterWhenNothingToFilter(t *testing.T) {
	req := Request{WantParagraph: true, ResultPerPage: 10}
	plan := Build(req)
	assert.Nil(t, plan.Prefilter)
}

func TestBuildEmitsPrefilterOnSecurityAlone(t *testing.T) {
	req := Request{Security: []string{"/a/allowed"}, WantParagraph: true}
	plan := Build(req)
	require.NotNil(t, plan.Prefilter)
	assert.Nil(t, plan.Prefilter.Expr)
	assert.Equal(t, []string{"/a/allowed"}, plan.Prefilter.Security)
}

func TestBuildSkipsVectorWithoutEmbeddingOrPageSize(t *testing.T) {
	req := Request{WantVector: true, ResultPerPage: 10}
	assert.Nil(t, Build(req).Vector)

	req2 := Request{WantVector: true, Embedding: []float32{1, 2}, ResultPerPage: 0}
	assert.Nil(t, Build(req2).Vector)

	req3 := Request{WantVector: true, Embedding: []float32{1, 2}, ResultPerPage: 5}
	assert.NotNil(t, Build(req3).Vector)
}

func TestBuildExtractsSegmentTagsForVector(t *testing.T) {
	req := Request{
		Filter: filter.And{
			filter.Literal{Label: "/q/h/shard1"},
			filter.Literal{Label: "/e/other"},
		},
		WantVector:    true,
		Embedding:     []float32{1},
		ResultPerPage: 10,
	}
	plan := Build(req)
	require.NotNil(t, plan.Vector)
	assert.Equal(t, filter.Literal{Label: "/q/h/shard1"}, plan.Vector.SegmentFilteringFormula)
}

func TestApplyPrefilterResultNoneDropsEverySubRequest(t *testing.T) {
	plan := &Plan{
		Vector:    &VectorRequest{},
		Paragraph: &ParagraphRequest{},
		Text:      &TextRequest{},
	}
	ApplyPrefilterResult(plan, filter.NoneResult())
	assert.Nil(t, plan.Vector)
	assert.Nil(t, plan.Paragraph)
	assert.Nil(t, plan.Text)
}

func TestApplyPrefilterResultAllDropsParagraphTimestampFilter(t *testing.T) {
	since := time.Now()
	plan := &Plan{
		Paragraph: &ParagraphRequest{FilterExpr: filter.And{
			filter.DateRange{Field: "created", Since: &since},
			filter.Literal{Label: "/e/mytag"},
		}},
	}
	ApplyPrefilterResult(plan, filter.AllResult())
	assert.Equal(t, filter.Literal{Label: "/e/mytag"}, plan.Paragraph.FilterExpr)
}

func TestApplyPrefilterResultSomeLeavesSubRequestsIntact(t *testing.T) {
	plan := &Plan{Vector: &VectorRequest{FilterExpr: filter.Literal{Label: "/e/mytag"}}}
	ApplyPrefilterResult(plan, filter.SomeResult([]filter.FieldID{{ResourceID: "r1", FieldPath: "title"}}))
	assert.Equal(t, filter.Literal{Label: "/e/mytag"}, plan.Vector.FilterExpr)
}
