package vector

import (
	"encoding/binary"
	"math"

	"github.com/nidx/nidx/internal/xerrors"
)

// Vec is an ordered sequence of 32-bit floats of a fixed, per-shard
// dimension. On the wire it is a little-endian byte buffer prefixed by its
// length in floats; equality and similarity run on the raw buffer.
type Vec []float32

// EncodeVec writes a length-prefixed little-endian encoding of v.
func EncodeVec(v Vec) []byte {
	buf := make([]byte, 8+4*len(v))
	binary.LittleEndian.PutUint64(buf[0:8], uint64(len(v)))
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[8+4*i:12+4*i], math.Float32bits(f))
	}
	return buf
}

// DecodeVec reads the encoding produced by EncodeVec and returns the
// remaining, unconsumed bytes.
func DecodeVec(buf []byte) (Vec, []byte, error) {
	if len(buf) < 8 {
		return nil, nil, xerrors.New(xerrors.SegmentCorrupt, "vector buffer truncated (length header)")
	}
	n := binary.LittleEndian.Uint64(buf[0:8])
	need := 8 + 4*int(n)
	if len(buf) < need {
		return nil, nil, xerrors.New(xerrors.SegmentCorrupt, "vector buffer truncated (payload)")
	}
	v := make(Vec, n)
	for i := range v {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(buf[8+4*i : 12+4*i]))
	}
	return v, buf[need:], nil
}

// RawBytes returns the byte representation used for duplicate-vector
// detection during search.
func (v Vec) RawBytes() string { return string(EncodeVec(v)) }

// Dot computes the raw dot product of a and b.
func Dot(a, b Vec) float32 {
	var sum float32
	for i := range a {
		sum += a[i] * b[i]
	}
	return sum
}

// Normalize returns a unit-length copy of v under the L2 norm. Cosine
// similarity is plain dot product once both sides are normalized.
func Normalize(v Vec) Vec {
	var sumSq float64
	for _, f := range v {
		sumSq += float64(f) * float64(f)
	}
	norm := float32(math.Sqrt(sumSq))
	if norm == 0 {
		return append(Vec(nil), v...)
	}
	out := make(Vec, len(v))
	for i, f := range v {
		out[i] = f / norm
	}
	return out
}

// Similarity is the scoring function chosen per shard.
type Similarity int

const (
	Cosine Similarity = iota
	DotProduct
)

// Score returns the similarity of a to b under sim. For Cosine, callers
// are expected to have stored unit-normalized vectors; Score itself always
// computes a plain dot product, so both variants share one code path.
func Score(sim Similarity, a, b Vec) float32 {
	return Dot(a, b)
}
