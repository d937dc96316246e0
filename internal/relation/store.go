// Package relation implements the directed labeled graph segment: a
// badger-backed triple store queried through a small node/relation/path
// expression DSL.
package relation

import (
	"encoding/json"

	"github.com/RoaringBitmap/roaring"
	badger "github.com/dgraph-io/badger/v4"

	"github.com/nidx/nidx/internal/xerrors"
)

// Triple is one edge: source -[label]-> target, each endpoint optionally
// typed and subtyped.
type Triple struct {
	SourceValue   string `json:"source_value"`
	SourceType    string `json:"source_type"`
	SourceSubtype string `json:"source_subtype"`
	Label         string `json:"label"`
	RelationType  string `json:"relation_type"`
	TargetValue   string `json:"target_value"`
	TargetType    string `json:"target_type"`
	TargetSubtype string `json:"target_subtype"`
}

// Node is a leaf match against a triple endpoint. A zero Value, Type, or
// Subtype means that sub-condition matches anything; the three are ANDed
// together.
type Node struct {
	Value   *Term
	Type    string
	Subtype string
}

// Relation is a leaf match against a triple's edge.
type Relation struct {
	Value        *Term
	RelationType string
}

type role int

const (
	roleSource role = iota
	roleDestination
)

type field int

const (
	fieldValue field = iota
	fieldType
	fieldSubtype
)

// Segment is one immutable relation index.
type Segment struct {
	dir string
	db  *badger.DB
	all *roaring.Bitmap
}

// Create builds a new relation segment from triples, in order; each
// triple's ordinal is its position in the input slice.
func Create(dir string, triples []Triple) (*Segment, error) {
	opts := badger.DefaultOptions(dir)
	opts.Logger = nil
	db, err := badger.Open(opts)
	if err != nil {
		return nil, xerrors.Mark(xerrors.IO, err, "create relation segment")
	}
	seg := &Segment{dir: dir, db: db, all: roaring.New()}

	wb := db.NewWriteBatch()
	defer wb.Cancel()
	for i, t := range triples {
		ordinal := uint32(i)
		if err := writeTriple(wb, ordinal, t); err != nil {
			db.Close()
			return nil, xerrors.Mark(xerrors.Internal, err, "stage triple")
		}
		seg.all.Add(ordinal)
	}
	if err := wb.Flush(); err != nil {
		db.Close()
		return nil, xerrors.Mark(xerrors.IO, err, "commit relation batch")
	}
	return seg, nil
}

// Open reopens a relation segment previously written by Create.
func Open(dir string) (*Segment, error) {
	opts := badger.DefaultOptions(dir)
	opts.Logger = nil
	db, err := badger.Open(opts)
	if err != nil {
		return nil, xerrors.Mark(xerrors.SegmentCorrupt, err, "open relation segment")
	}
	seg := &Segment{dir: dir, db: db, all: roaring.New()}
	if err := seg.loadAll(); err != nil {
		db.Close()
		return nil, err
	}
	return seg, nil
}

// Close releases the underlying database handle.
func (s *Segment) Close() error { return s.db.Close() }

func (s *Segment) loadAll() error {
	return s.db.View(func(txn *badger.Txn) error {
		iterOpts := badger.DefaultIteratorOptions
		iterOpts.PrefetchValues = false
		iterOpts.Prefix = []byte{prefixTriple}
		it := txn.NewIterator(iterOpts)
		defer it.Close()
		for it.Seek(iterOpts.Prefix); it.ValidForPrefix(iterOpts.Prefix); it.Next() {
			key := it.Item().KeyCopy(nil)
			s.all.Add(parseOrdinalBytes(key[1:]))
		}
		return nil
	})
}

func writeTriple(wb *badger.WriteBatch, ordinal uint32, t Triple) error {
	data, err := json.Marshal(t)
	if err != nil {
		return err
	}
	if err := wb.Set(tripleKey(ordinal), data); err != nil {
		return err
	}
	entries := []struct {
		prefix byte
		value  string
	}{
		{prefixSourceValue, normalize(t.SourceValue)},
		{prefixSourceType, normalize(t.SourceType)},
		{prefixSourceSubtype, normalize(t.SourceSubtype)},
		{prefixTargetValue, normalize(t.TargetValue)},
		{prefixTargetType, normalize(t.TargetType)},
		{prefixTargetSubtype, normalize(t.TargetSubtype)},
		{prefixRelationLabel, normalize(t.Label)},
		{prefixRelationType, normalize(t.RelationType)},
	}
	for _, e := range entries {
		if err := wb.Set(indexKey(e.prefix, e.value, ordinal), []byte{}); err != nil {
			return err
		}
	}
	return nil
}

// Triple returns the triple stored at ordinal.
func (s *Segment) Triple(ordinal uint32) (Triple, error) {
	var t Triple
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(tripleKey(ordinal))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error { return json.Unmarshal(val, &t) })
	})
	if err != nil {
		return Triple{}, xerrors.Mark(xerrors.Internal, err, "read triple")
	}
	return t, nil
}

// AllOrdinals is the ordinal set of every triple in the segment, the full
// scan a merge reads from and a path query with no live endpoint falls
// back to.
func (s *Segment) AllOrdinals() *roaring.Bitmap { return s.all.Clone() }

// scanBitmap collects the ordinals indexed under a single badger key
// prefix into a roaring bitmap.
func (s *Segment) scanBitmap(prefix []byte) (*roaring.Bitmap, error) {
	bm := roaring.New()
	err := s.db.View(func(txn *badger.Txn) error {
		iterOpts := badger.DefaultIteratorOptions
		iterOpts.PrefetchValues = false
		iterOpts.Prefix = prefix
		it := txn.NewIterator(iterOpts)
		defer it.Close()
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			key := it.Item().KeyCopy(nil)
			bm.Add(parseOrdinalBytes(key[len(prefix):]))
		}
		return nil
	})
	if err != nil {
		return nil, xerrors.Mark(xerrors.Internal, err, "scan relation index")
	}
	return bm, nil
}

// fuzzyBitmap scans every distinct value under prefixByte and keeps the
// ordinals whose normalized value matches term. Used only when term cannot
// be resolved by a plain prefix scan.
func (s *Segment) fuzzyBitmap(prefixByte byte, term Term) (*roaring.Bitmap, error) {
	bm := roaring.New()
	prefix := []byte{prefixByte}
	err := s.db.View(func(txn *badger.Txn) error {
		iterOpts := badger.DefaultIteratorOptions
		iterOpts.PrefetchValues = false
		iterOpts.Prefix = prefix
		it := txn.NewIterator(iterOpts)
		defer it.Close()
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			key := it.Item().KeyCopy(nil)
			rest := key[1:]
			sep := indexOf(rest, 0x00)
			if sep < 0 {
				continue
			}
			value := string(rest[:sep])
			if !term.matches(value) {
				continue
			}
			bm.Add(parseOrdinalBytes(rest[sep+1:]))
		}
		return nil
	})
	if err != nil {
		return nil, xerrors.Mark(xerrors.Internal, err, "scan relation index")
	}
	return bm, nil
}

func indexOf(b []byte, target byte) int {
	for i, c := range b {
		if c == target {
			return i
		}
	}
	return -1
}

func (s *Segment) termBitmap(prefixByte byte, term Term) (*roaring.Bitmap, error) {
	if term.isPlainPrefix() {
		return s.scanBitmap(indexPrefix(prefixByte, term.prefixValue()))
	}
	return s.fuzzyBitmap(prefixByte, term)
}

func (s *Segment) exactFieldBitmap(prefixByte byte, normalizedValue string) (*roaring.Bitmap, error) {
	return s.scanBitmap(indexPrefix(prefixByte, normalizedValue))
}

// nodeBitmap is the ordinal set matching a Node's value/type/subtype
// sub-conditions, ANDed together; an absent sub-condition matches anything.
func (s *Segment) nodeBitmap(r role, n Node) (*roaring.Bitmap, error) {
	var acc *roaring.Bitmap
	and := func(bm *roaring.Bitmap, err error) error {
		if err != nil {
			return err
		}
		if acc == nil {
			acc = bm
		} else {
			acc.And(bm)
		}
		return nil
	}
	if n.Value != nil {
		if err := and(s.termBitmap(fieldPrefix(r, fieldValue), *n.Value)); err != nil {
			return nil, err
		}
	}
	if n.Type != "" {
		if err := and(s.exactFieldBitmap(fieldPrefix(r, fieldType), normalize(n.Type))); err != nil {
			return nil, err
		}
	}
	if n.Subtype != "" {
		if err := and(s.exactFieldBitmap(fieldPrefix(r, fieldSubtype), normalize(n.Subtype))); err != nil {
			return nil, err
		}
	}
	if acc == nil {
		return s.all.Clone(), nil
	}
	return acc, nil
}

// relationBitmap is the ordinal set matching a Relation's label/type
// sub-conditions.
func (s *Segment) relationBitmap(rel Relation) (*roaring.Bitmap, error) {
	var acc *roaring.Bitmap
	and := func(bm *roaring.Bitmap, err error) error {
		if err != nil {
			return err
		}
		if acc == nil {
			acc = bm
		} else {
			acc.And(bm)
		}
		return nil
	}
	if rel.Value != nil {
		if err := and(s.termBitmap(prefixRelationLabel, *rel.Value)); err != nil {
			return nil, err
		}
	}
	if rel.RelationType != "" {
		if err := and(s.exactFieldBitmap(prefixRelationType, normalize(rel.RelationType))); err != nil {
			return nil, err
		}
	}
	if acc == nil {
		return s.all.Clone(), nil
	}
	return acc, nil
}
