// Node-store binary format:
//
//	[node_count:u64_le][ptr_i:u64_le x count][slot_i]
//
// Each slot: key_len:u64 key:bytes vec_len:u64 vec:bytes
// labels_len:u64 labels:bytes meta_len:u64 meta:bytes, slots sorted by key.
// ptr_i is the byte offset of slot_i from the start of the file, giving
// O(1) access by ordinal and O(log n) lookup by key via binary search over
// the ordinals (the slots themselves are already key-sorted).
package vector

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"os"
	"sort"

	"github.com/nidx/nidx/internal/xerrors"
)

const u64size = 8

// writeNodeStore writes elems (already deduplicated-by-key-keeping-first and
// sorted) to path.
func writeNodeStore(path string, elems []Node) error {
	f, err := os.Create(path)
	if err != nil {
		return xerrors.Mark(xerrors.IO, err, "create node store")
	}
	defer f.Close()
	w := bufio.NewWriter(f)

	slots := make([][]byte, len(elems))
	for i, n := range elems {
		slots[i] = encodeSlot(n)
	}

	header := make([]byte, u64size)
	binary.LittleEndian.PutUint64(header, uint64(len(elems)))
	if _, err := w.Write(header); err != nil {
		return xerrors.Mark(xerrors.IO, err, "write node count")
	}

	ptrStart := u64size + u64size*len(elems)
	offset := uint64(ptrStart)
	ptrBuf := make([]byte, u64size)
	for _, s := range slots {
		binary.LittleEndian.PutUint64(ptrBuf, offset)
		if _, err := w.Write(ptrBuf); err != nil {
			return xerrors.Mark(xerrors.IO, err, "write node pointer")
		}
		offset += uint64(len(s))
	}
	for _, s := range slots {
		if _, err := w.Write(s); err != nil {
			return xerrors.Mark(xerrors.IO, err, "write node slot")
		}
	}
	if err := w.Flush(); err != nil {
		return xerrors.Mark(xerrors.IO, err, "flush node store")
	}
	return f.Sync()
}

func encodeSlot(n Node) []byte {
	vecBuf := EncodeVec(n.Vector)
	labelsBlob, _ := CompileLabels(n.Labels) // CompileLabels only fails on OOM-class errors.
	var buf bytes.Buffer
	writeLenPrefixed(&buf, n.Key)
	buf.Write(vecBuf) // already length-prefixed
	writeLenPrefixed(&buf, labelsBlob)
	writeLenPrefixed(&buf, n.Metadata)
	return buf.Bytes()
}

func writeLenPrefixed(buf *bytes.Buffer, b []byte) {
	var lenBuf [u64size]byte
	binary.LittleEndian.PutUint64(lenBuf[:], uint64(len(b)))
	buf.Write(lenBuf[:])
	buf.Write(b)
}

// NodeStore is a read-only, memory-mapped view over nodes.kv.
type NodeStore struct {
	data  []byte
	mm    mmapHandle
	count int
	ptrs  []uint64
}

func openNodeStore(path string) (*NodeStore, error) {
	mm, data, err := mmapFile(path)
	if err != nil {
		return nil, err
	}
	if len(data) < u64size {
		mm.Close()
		return nil, xerrors.New(xerrors.SegmentCorrupt, "node store truncated")
	}
	count := int(binary.LittleEndian.Uint64(data[0:u64size]))
	need := u64size + u64size*count
	if len(data) < need {
		mm.Close()
		return nil, xerrors.New(xerrors.SegmentCorrupt, "node store pointer table truncated")
	}
	ptrs := make([]uint64, count)
	for i := 0; i < count; i++ {
		off := u64size + u64size*i
		ptrs[i] = binary.LittleEndian.Uint64(data[off : off+u64size])
	}
	return &NodeStore{data: data, mm: mm, count: count, ptrs: ptrs}, nil
}

func (s *NodeStore) Close() error {
	if s.mm == nil {
		return nil
	}
	return s.mm.Close()
}

// Len is the number of nodes in the store.
func (s *NodeStore) Len() int { return s.count }

// At returns the ordinal-th node in key-sorted order, O(1).
func (s *NodeStore) At(ordinal int) (Node, error) {
	if ordinal < 0 || ordinal >= s.count {
		return Node{}, xerrors.Newf(xerrors.Internal, "node ordinal %d out of range [0,%d)", ordinal, s.count)
	}
	return decodeSlot(s.data[s.ptrs[ordinal]:])
}

// Find does a binary search by key, O(log n).
func (s *NodeStore) Find(key Key) (Node, int, bool, error) {
	idx := sort.Search(s.count, func(i int) bool {
		n, err := s.At(i)
		if err != nil {
			return false
		}
		return n.Key.Compare(key) >= 0
	})
	if idx >= s.count {
		return Node{}, -1, false, nil
	}
	n, err := s.At(idx)
	if err != nil {
		return Node{}, -1, false, err
	}
	if n.Key.Compare(key) != 0 {
		return Node{}, -1, false, nil
	}
	return n, idx, true, nil
}

func decodeSlot(buf []byte) (Node, error) {
	key, rest, err := readLenPrefixed(buf)
	if err != nil {
		return Node{}, err
	}
	vec, rest, err := DecodeVec(rest)
	if err != nil {
		return Node{}, err
	}
	labelsBlob, rest, err := readLenPrefixed(rest)
	if err != nil {
		return Node{}, err
	}
	meta, _, err := readLenPrefixed(rest)
	if err != nil {
		return Node{}, err
	}
	trie, err := OpenLabelTrie(labelsBlob)
	if err != nil {
		return Node{}, err
	}
	return Node{Key: Key(key), Vector: vec, Labels: labelsFromTrie(trie), LabelsBlob: labelsBlob, Metadata: meta}, nil
}

// labelsFromTrie materializes every label stored in t. decodeSlot calls it
// for each node it decodes to fill Node.Labels; the search path checks
// prefixes through the trie's HasPrefix instead.
func labelsFromTrie(t *LabelTrie) LabelSet {
	if t == nil || t.fst == nil {
		return nil
	}
	var out LabelSet
	it, err := t.fst.Iterator(nil, nil)
	for err == nil {
		k, _ := it.Current()
		out = append(out, string(k))
		err = it.Next()
	}
	return out
}

func readLenPrefixed(buf []byte) ([]byte, []byte, error) {
	if len(buf) < u64size {
		return nil, nil, xerrors.New(xerrors.SegmentCorrupt, "slot truncated (length header)")
	}
	n := binary.LittleEndian.Uint64(buf[0:u64size])
	need := u64size + int(n)
	if len(buf) < need {
		return nil, nil, xerrors.New(xerrors.SegmentCorrupt, "slot truncated (payload)")
	}
	return buf[u64size:need], buf[need:], nil
}
