package hnsw

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeDecodeV2RoundTrip(t *testing.T) {
	src := axisSource()
	params := Params{M: 4, EfConstruction: 16, EfSearch: 16}
	g := Build(src, params, 1)

	graphBytes, edgesBytes, err := EncodeV2(g, src)
	require.NoError(t, err)
	assert.NotEmpty(t, graphBytes)
	assert.NotEmpty(t, edgesBytes)

	decoded, err := DecodeV2(graphBytes, src.Len(), params)
	require.NoError(t, err)
	assert.Equal(t, g.Entry, decoded.Entry)
	for i := 0; i < src.Len(); i++ {
		assert.Equal(t, g.NodeTopLayer(uint32(i)), decoded.NodeTopLayer(uint32(i)))
		for l := 0; l <= g.NodeTopLayer(uint32(i)); l++ {
			assert.ElementsMatch(t, g.neighbours(l, uint32(i)), decoded.neighbours(l, uint32(i)))
		}
	}
}

func TestDecodeV2EmptyGraph(t *testing.T) {
	g, err := DecodeV2(nil, 0, Params{})
	require.NoError(t, err)
	assert.Equal(t, -1, g.Entry.Layer)
}

func TestDecodeV2RejectsTruncatedTrailer(t *testing.T) {
	_, err := DecodeV2([]byte{1, 2, 3}, 1, Params{})
	assert.Error(t, err)
}

func TestDecodeV2RejectsSizeMismatch(t *testing.T) {
	src := axisSource()
	params := Params{M: 4, EfConstruction: 16, EfSearch: 16}
	g := Build(src, params, 1)
	graphBytes, _, err := EncodeV2(g, src)
	require.NoError(t, err)

	corrupted := append([]byte(nil), graphBytes...)
	corrupted[0] ^= 0xFF
	_, err = DecodeV2(corrupted, src.Len(), params)
	assert.Error(t, err)
}
