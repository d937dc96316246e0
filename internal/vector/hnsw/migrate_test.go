package hnsw

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMigrateV1ToV2PreservesTopology(t *testing.T) {
	src := axisSource()
	params := Params{M: 4, EfConstruction: 16, EfSearch: 16}
	g := Build(src, params, 1)

	v1 := EncodeV1(g, src)
	graphBytes, _, err := MigrateV1ToV2(v1, src.Len(), params, src)
	require.NoError(t, err)

	migrated, err := DecodeV2(graphBytes, src.Len(), params)
	require.NoError(t, err)
	assert.Equal(t, g.Entry, migrated.Entry)
	for i := 0; i < src.Len(); i++ {
		assert.Equal(t, g.NodeTopLayer(uint32(i)), migrated.NodeTopLayer(uint32(i)))
	}
}

func TestDecodeV1EmptyGraph(t *testing.T) {
	g, err := DecodeV1(nil, 0, Params{})
	require.NoError(t, err)
	assert.Equal(t, -1, g.Entry.Layer)
}

func TestDecodeV1RejectsTruncatedInput(t *testing.T) {
	_, err := DecodeV1([]byte{1, 2, 3}, 1, Params{})
	assert.Error(t, err)
}
