// v2 on-disk graph format. Each node's block is prefixed with its own
// layer count so a reader can size the trailing layer_offset table
// without a second pass. Per node: per-layer edge_count/edge arrays, then
// a reversed layer_offset table measured from the end of the node's edge
// data; after every node, a reversed node_end table and the trailing
// entry_layer/entry_node pair.
package hnsw

import (
	"bytes"
	"encoding/binary"
	"math"

	"github.com/nidx/nidx/internal/vector"
	"github.com/nidx/nidx/internal/xerrors"
)

// EncodeV2 serializes g into the hnsw.graph and hnsw.edges byte streams.
// src is required to compute the edge weights hnsw.edges records.
func EncodeV2(g *Graph, src VectorSource) (graphBytes, edgesBytes []byte, err error) {
	n := g.NumNodes()
	var graphBuf, edgesBuf bytes.Buffer
	nodeEnds := make([]uint32, n)

	var u32 [4]byte
	writeU32 := func(buf *bytes.Buffer, v uint32) {
		binary.LittleEndian.PutUint32(u32[:], v)
		buf.Write(u32[:])
	}

	for i := 0; i < n; i++ {
		ordinal := uint32(i)
		nodeStart := graphBuf.Len()
		topLayer := g.NodeTopLayer(ordinal)
		if topLayer < 0 {
			return nil, nil, xerrors.Newf(xerrors.Internal, "node %d missing from layer 0", ordinal)
		}
		layerCount := topLayer + 1
		writeU32(&graphBuf, uint32(layerCount))

		layerStarts := make([]uint32, layerCount)
		for l := 0; l < layerCount; l++ {
			layerStarts[l] = uint32(graphBuf.Len() - nodeStart)
			edges := g.neighbours(l, ordinal)
			writeU32(&graphBuf, uint32(len(edges)))
			nodeVec := src.Vector(ordinal)
			for _, e := range edges {
				writeU32(&graphBuf, e)
				writeU32(&edgesBuf, math.Float32bits(vector.Dot(nodeVec, src.Vector(e))))
			}
		}

		edgesEnd := uint32(graphBuf.Len() - nodeStart)
		for l := layerCount - 1; l >= 0; l-- {
			writeU32(&graphBuf, edgesEnd-layerStarts[l])
		}
		nodeEnds[i] = uint32(graphBuf.Len())
	}

	for i := n - 1; i >= 0; i-- {
		writeU32(&graphBuf, nodeEnds[i])
	}
	writeU32(&graphBuf, uint32(g.Entry.Layer))
	writeU32(&graphBuf, g.Entry.Node)

	return graphBuf.Bytes(), edgesBuf.Bytes(), nil
}

// DecodeV2 parses the hnsw.graph format back into a Graph. It reads only
// hnsw.graph; the hnsw.edges weights are neither read nor validated here.
func DecodeV2(graphBytes []byte, nodeCount int, params Params) (*Graph, error) {
	if nodeCount == 0 {
		return &Graph{Params: params, Entry: EntryPoint{Layer: -1}}, nil
	}
	if len(graphBytes) < 8 {
		return nil, xerrors.New(xerrors.SegmentCorrupt, "hnsw graph truncated (trailer)")
	}
	entryNode := binary.LittleEndian.Uint32(graphBytes[len(graphBytes)-4:])
	entryLayer := int32(binary.LittleEndian.Uint32(graphBytes[len(graphBytes)-8 : len(graphBytes)-4]))

	nodeEndsOff := len(graphBytes) - 8 - 4*nodeCount
	if nodeEndsOff < 0 {
		return nil, xerrors.New(xerrors.SegmentCorrupt, "hnsw graph truncated (node_end table)")
	}
	nodeEnds := make([]uint32, nodeCount)
	for i := 0; i < nodeCount; i++ {
		// node_end table is written for i = n-1..0, i.e. reverse order.
		nodeEnds[nodeCount-1-i] = binary.LittleEndian.Uint32(graphBytes[nodeEndsOff+4*i:])
	}

	g := &Graph{Params: params, Entry: EntryPoint{Node: entryNode, Layer: int(entryLayer)}}
	pos := uint32(0)
	for i := 0; i < nodeCount; i++ {
		ordinal := uint32(i)
		nodeStart := pos
		if int(nodeStart)+4 > len(graphBytes) {
			return nil, xerrors.New(xerrors.SegmentCorrupt, "hnsw graph truncated (node header)")
		}
		layerCount := int(binary.LittleEndian.Uint32(graphBytes[nodeStart : nodeStart+4]))
		cursor := nodeStart + 4
		layerStarts := make([]uint32, layerCount)
		for l := 0; l < layerCount; l++ {
			layerStarts[l] = cursor - nodeStart
			if int(cursor)+4 > len(graphBytes) {
				return nil, xerrors.New(xerrors.SegmentCorrupt, "hnsw graph truncated (edge count)")
			}
			count := binary.LittleEndian.Uint32(graphBytes[cursor : cursor+4])
			cursor += 4
			edges := make([]uint32, count)
			for e := uint32(0); e < count; e++ {
				if int(cursor)+4 > len(graphBytes) {
					return nil, xerrors.New(xerrors.SegmentCorrupt, "hnsw graph truncated (edge)")
				}
				edges[e] = binary.LittleEndian.Uint32(graphBytes[cursor : cursor+4])
				cursor += 4
			}
			g.setNeighbours(l, ordinal, edges)
		}
		// Skip the reversed layer_offset table for this node (layerCount
		// entries); its values are derivable from layerStarts above, kept
		// on disk only so a reader that skips edge bytes can still jump.
		cursor += uint32(4 * layerCount)
		if cursor != nodeEnds[i] {
			return nil, xerrors.Newf(xerrors.SegmentCorrupt, "hnsw graph node %d size mismatch: got %d want %d", i, cursor, nodeEnds[i])
		}
		pos = cursor
	}
	return g, nil
}
