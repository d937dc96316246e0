package catalog

import (
	"strings"

	"github.com/google/btree"
)

// deleteEntry is one tombstone: every key sharing prefix as a byte prefix is
// hidden from any cut whose segment open-stamp is below seq.
type deleteEntry struct {
	prefix string
	seq    uint64
}

func (e deleteEntry) Less(than btree.Item) bool { return e.prefix < than.(deleteEntry).prefix }

// DeleteLog is an ordered prefix -> sequence index. A key is deleted for a
// reader holding open-stamp s iff some stored prefix of the key has
// seq > s. Ordering by prefix string lets Compact and serialization walk
// entries in a stable order; lookups fall back to a bounded scan of
// candidates at or below the queried key since prefixes of arbitrary length
// don't correspond to a single predecessor in byte order.
type DeleteLog struct {
	tree *btree.BTree
}

// NewDeleteLog returns an empty log.
func NewDeleteLog() *DeleteLog {
	return &DeleteLog{tree: btree.New(32)}
}

// Add records a tombstone for prefix at seq. If the exact same prefix is
// already recorded, the higher of the two sequences is kept.
func (d *DeleteLog) Add(prefix string, seq uint64) {
	if existing := d.tree.Get(deleteEntry{prefix: prefix}); existing != nil {
		if existing.(deleteEntry).seq >= seq {
			return
		}
	}
	d.tree.ReplaceOrInsert(deleteEntry{prefix: prefix, seq: seq})
}

// SeqFor returns the highest sequence of any stored prefix of key, or 0 if
// key matches no tombstone.
func (d *DeleteLog) SeqFor(key []byte) uint64 {
	s := string(key)
	var best uint64
	d.tree.AscendRange(deleteEntry{prefix: ""}, deleteEntry{prefix: s + "\xff"}, func(i btree.Item) bool {
		e := i.(deleteEntry)
		if strings.HasPrefix(s, e.prefix) && e.seq > best {
			best = e.seq
		}
		return true
	})
	return best
}

// Compact drops every tombstone at or below floor: no live segment can have
// an open-stamp below floor once callers have pruned past it, so those
// entries can never hide anything again.
func (d *DeleteLog) Compact(floor uint64) {
	var drop []btree.Item
	d.tree.Ascend(func(i btree.Item) bool {
		if i.(deleteEntry).seq <= floor {
			drop = append(drop, i)
		}
		return true
	})
	for _, item := range drop {
		d.tree.Delete(item)
	}
}

// Clone returns an independent copy sharing no mutable state with d.
func (d *DeleteLog) Clone() *DeleteLog {
	return &DeleteLog{tree: d.tree.Clone()}
}

// Entries returns every (prefix, seq) pair in ascending prefix order, for
// serialization.
func (d *DeleteLog) Entries() []Tombstone {
	out := make([]Tombstone, 0, d.tree.Len())
	d.tree.Ascend(func(i btree.Item) bool {
		e := i.(deleteEntry)
		out = append(out, Tombstone{Prefix: e.prefix, Seq: e.seq})
		return true
	})
	return out
}

// Tombstone is the serializable form of one DeleteLog entry.
type Tombstone struct {
	Prefix string `json:"prefix"`
	Seq    uint64 `json:"seq"`
}

// deleteLogFromTombstones rebuilds a DeleteLog from its serialized form.
func deleteLogFromTombstones(entries []Tombstone) *DeleteLog {
	d := NewDeleteLog()
	for _, e := range entries {
		d.Add(e.Prefix, e.Seq)
	}
	return d
}
