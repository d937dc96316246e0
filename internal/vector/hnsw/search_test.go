package hnsw

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nidx/nidx/internal/vector"
)

func TestSearchFindsNearestAxisVector(t *testing.T) {
	src := axisSource()
	g := Build(src, Params{M: 4, EfConstruction: 16, EfSearch: 16}, 1)

	res := g.Search(src, vector.Vec{1, 0, 0}, 1, 0, nil, false)
	require.Len(t, res, 1)
	assert.Equal(t, uint32(0), res[0].Ordinal)
}

func TestSearchHonoursAcceptCallback(t *testing.T) {
	src := axisSource()
	g := Build(src, Params{M: 4, EfConstruction: 16, EfSearch: 16}, 1)

	reject0 := func(ordinal uint32) bool { return ordinal != 0 }
	res := g.Search(src, vector.Vec{1, 0, 0}, 1, 0, reject0, false)
	require.Len(t, res, 1)
	assert.NotEqual(t, uint32(0), res[0].Ordinal)
}

func TestSearchHonoursMinScore(t *testing.T) {
	src := axisSource()
	g := Build(src, Params{M: 4, EfConstruction: 16, EfSearch: 16}, 1)

	res := g.Search(src, vector.Vec{1, 0, 0}, 4, 0.5, nil, false)
	for _, r := range res {
		assert.GreaterOrEqual(t, r.Score, float32(0.5))
	}
}

func TestSearchDedupeDropsDuplicateVectors(t *testing.T) {
	src := sliceSource{{1, 0}, {1, 0}, {0, 1}}
	g := Build(src, Params{M: 4, EfConstruction: 16, EfSearch: 16}, 1)

	res := g.Search(src, vector.Vec{1, 0}, 3, 0, nil, true)
	count := 0
	for _, r := range res {
		if r.Ordinal == 0 || r.Ordinal == 1 {
			count++
		}
	}
	assert.LessOrEqual(t, count, 1)
}

func TestSearchEmptyGraphReturnsNil(t *testing.T) {
	g := &Graph{}
	res := g.Search(sliceSource{}, vector.Vec{1, 0}, 1, 0, nil, false)
	assert.Nil(t, res)
}
