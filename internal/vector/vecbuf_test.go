package vector

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeDecodeVecRoundTrip(t *testing.T) {
	v := Vec{1, 2, 3.5, -4}
	buf := EncodeVec(v)
	got, rest, err := DecodeVec(buf)
	require.NoError(t, err)
	assert.Equal(t, v, got)
	assert.Empty(t, rest)
}

func TestDecodeVecTruncated(t *testing.T) {
	_, _, err := DecodeVec([]byte{1, 2, 3})
	assert.Error(t, err)

	buf := EncodeVec(Vec{1, 2})
	_, _, err = DecodeVec(buf[:len(buf)-1])
	assert.Error(t, err)
}

func TestNormalizeUnitLength(t *testing.T) {
	v := Normalize(Vec{3, 4})
	assert.InDelta(t, float32(1), Dot(v, v), 1e-6)
}

func TestNormalizeZeroVector(t *testing.T) {
	v := Normalize(Vec{0, 0, 0})
	assert.Equal(t, Vec{0, 0, 0}, v)
}

func TestScoreIsPlainDotProduct(t *testing.T) {
	a := Vec{1, 0, 0}
	b := Vec{0.5, 0.5, 0}
	assert.Equal(t, Dot(a, b), Score(Cosine, a, b))
	assert.Equal(t, Dot(a, b), Score(DotProduct, a, b))
}

func TestRawBytesDistinguishesVectors(t *testing.T) {
	a := Vec{1, 2, 3}
	b := Vec{1, 2, 4}
	assert.NotEqual(t, a.RawBytes(), b.RawBytes())
	assert.Equal(t, a.RawBytes(), Vec{1, 2, 3}.RawBytes())
}
