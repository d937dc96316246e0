// Legacy v1 HNSW format support (read-only) and its migration to v2. v1
// used the writer host's native `usize` width for every offset and stored
// edge weights inline rather than in a separate file. Whether a v1 file
// written by a host with a different pointer width than the reading host
// decodes correctly was never established for the original format; this
// package resolves that by always decoding v1 offsets as fixed 64-bit
// values (recorded in DESIGN.md). A v1 file written by a 32-bit host is
// out of scope: nothing in this deployment targets 32-bit production
// hosts, and guessing the writer's width from file contents alone is not
// reliable.
package hnsw

import (
	"encoding/binary"
	"math"

	"github.com/nidx/nidx/internal/xerrors"
)

// DecodeV1 parses a legacy segment: per node, in insertion order,
// [layer_count:u64][per layer: edge_count:u64, (edge:u64, weight:f32)*],
// then [entry_layer:u64][entry_node:u64]. Weights are parsed but discarded;
// v2 derives scores from the live node store instead of cached weights.
func DecodeV1(buf []byte, nodeCount int, params Params) (*Graph, error) {
	if nodeCount == 0 {
		return &Graph{Params: params, Entry: EntryPoint{Layer: -1}}, nil
	}
	g := &Graph{Params: params}
	pos := 0
	readU64 := func() (uint64, error) {
		if pos+8 > len(buf) {
			return 0, xerrors.New(xerrors.SegmentCorrupt, "v1 hnsw graph truncated")
		}
		v := binary.LittleEndian.Uint64(buf[pos : pos+8])
		pos += 8
		return v, nil
	}

	for i := 0; i < nodeCount; i++ {
		ordinal := uint32(i)
		layerCount, err := readU64()
		if err != nil {
			return nil, err
		}
		for l := uint64(0); l < layerCount; l++ {
			count, err := readU64()
			if err != nil {
				return nil, err
			}
			edges := make([]uint32, count)
			for e := uint64(0); e < count; e++ {
				raw, err := readU64()
				if err != nil {
					return nil, err
				}
				edges[e] = uint32(raw)
				if pos+4 > len(buf) {
					return nil, xerrors.New(xerrors.SegmentCorrupt, "v1 hnsw graph truncated (weight)")
				}
				pos += 4 // discard inline weight
			}
			g.setNeighbours(int(l), ordinal, edges)
		}
	}
	entryLayer, err := readU64()
	if err != nil {
		return nil, err
	}
	entryNode, err := readU64()
	if err != nil {
		return nil, err
	}
	g.Entry = EntryPoint{Node: uint32(entryNode), Layer: int(entryLayer)}
	return g, nil
}

// EncodeV1 is provided only so tests can construct legacy fixtures without
// hand-assembling bytes; production code never writes v1.
func EncodeV1(g *Graph, src VectorSource) []byte {
	n := g.NumNodes()
	var buf []byte
	putU64 := func(v uint64) {
		var b [8]byte
		binary.LittleEndian.PutUint64(b[:], v)
		buf = append(buf, b[:]...)
	}
	putF32 := func(f float32) {
		var b [4]byte
		binary.LittleEndian.PutUint32(b[:], math.Float32bits(f))
		buf = append(buf, b[:]...)
	}
	for i := 0; i < n; i++ {
		ordinal := uint32(i)
		topLayer := g.NodeTopLayer(ordinal)
		putU64(uint64(topLayer + 1))
		nodeVec := src.Vector(ordinal)
		for l := 0; l <= topLayer; l++ {
			edges := g.neighbours(l, ordinal)
			putU64(uint64(len(edges)))
			for _, e := range edges {
				putU64(uint64(e))
				putF32(score(src, nodeVec, e))
			}
		}
	}
	putU64(uint64(g.Entry.Layer))
	putU64(uint64(g.Entry.Node))
	return buf
}

// MigrateV1ToV2 reads a legacy v1 graph and re-serializes it in v2 format.
func MigrateV1ToV2(v1Bytes []byte, nodeCount int, params Params, src VectorSource) (graphBytes, edgesBytes []byte, err error) {
	g, err := DecodeV1(v1Bytes, nodeCount, params)
	if err != nil {
		return nil, nil, xerrors.Wrap(err, "decode v1 hnsw graph")
	}
	return EncodeV2(g, src)
}
