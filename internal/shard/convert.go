package shard

import (
	"github.com/nidx/nidx/internal/config"
	"github.com/nidx/nidx/internal/vector"
	"github.com/nidx/nidx/internal/vector/hnsw"
)

func vectorParams(p config.HNSWParams) hnsw.Params {
	return hnsw.Params{M: p.M, EfConstruction: p.EfConstruction, EfSearch: p.EfSearch}
}

func vectorSimilarity(s config.Similarity) vector.Similarity {
	if s == config.SimilarityDot {
		return vector.DotProduct
	}
	return vector.Cosine
}
