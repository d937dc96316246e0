// Package catalog tracks the live segment set and delete log for one index
// within a shard: an ordered list of segments, each carrying the open-stamp
// it was registered under, plus the prefix-keyed tombstone log that decides
// whether a given cut still sees a node. The catalog itself never touches
// segment files; it only knows IDs, node counts, and sequence numbers.
package catalog

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/nidx/nidx/internal/vector"
	"github.com/nidx/nidx/internal/xerrors"
)

const stateFile = "catalog.json"

// SegmentRef names one live segment and the open-stamp it was registered
// under. open_stamp is unique and strictly increasing within one catalog.
type SegmentRef struct {
	ID        string `json:"id"`
	OpenStamp uint64 `json:"open_stamp"`
}

// ReplaceRecord audits one merge-driven segment swap.
type ReplaceRecord struct {
	OldIDs []string `json:"old_ids"`
	NewID  string   `json:"new_id"`
}

// TxnRecord audits one applied commit.
type TxnRecord struct {
	Seq             uint64          `json:"seq"`
	Added           []string        `json:"added,omitempty"`
	Replaced        []ReplaceRecord `json:"replaced,omitempty"`
	DeletedPrefixes []string        `json:"deleted_prefixes,omitempty"`
	At              time.Time       `json:"at"`
}

// persistedState is the on-disk shape of one index's catalog.
type persistedState struct {
	Segments        []SegmentRef `json:"segments"`
	NodeCounts      map[string]uint64 `json:"node_counts"`
	DeleteLog       []Tombstone  `json:"delete_log"`
	TotalNodes      uint64       `json:"total_nodes"`
	OldestPrunedSeq uint64       `json:"oldest_pruned_seq"`
	NextSeq         uint64       `json:"next_seq"`
	TransactionLog  []TxnRecord  `json:"transaction_log"`
}

// Catalog is the per-index segment lifecycle manager. One Catalog guards
// exactly one index's state file; callers needing several indexes (vector,
// text, relations) run one Catalog per index.
type Catalog struct {
	dir string

	mu              sync.Mutex
	segments        []SegmentRef
	nodeCounts      map[string]uint64
	deleteLog       *DeleteLog
	totalNodes      uint64
	oldestPrunedSeq uint64
	nextSeq         uint64
	txnLog          []TxnRecord
	epoch           uint64
}

// Open loads dir/catalog.json, or starts an empty catalog if it doesn't
// exist yet.
func Open(dir string) (*Catalog, error) {
	c := &Catalog{
		dir:        dir,
		nodeCounts: map[string]uint64{},
		deleteLog:  NewDeleteLog(),
		nextSeq:    1,
	}

	b, err := os.ReadFile(filepath.Join(dir, stateFile))
	if os.IsNotExist(err) {
		return c, nil
	}
	if err != nil {
		return nil, xerrors.Mark(xerrors.IO, err, "read catalog state")
	}

	var st persistedState
	if err := json.Unmarshal(b, &st); err != nil {
		return nil, xerrors.Mark(xerrors.SegmentCorrupt, err, "decode catalog state")
	}
	c.segments = st.Segments
	c.nodeCounts = st.NodeCounts
	if c.nodeCounts == nil {
		c.nodeCounts = map[string]uint64{}
	}
	c.deleteLog = deleteLogFromTombstones(st.DeleteLog)
	c.totalNodes = st.TotalNodes
	c.oldestPrunedSeq = st.OldestPrunedSeq
	c.nextSeq = st.NextSeq
	c.txnLog = st.TransactionLog
	return c, nil
}

// pendingAdd and pendingReplace are Txn's in-memory staging records; they
// become SegmentRef/TxnRecord entries only once Commit succeeds.
type pendingAdd struct {
	id        string
	nodeCount uint64
}

type pendingReplace struct {
	oldIDs    []string
	newID     string
	nodeCount uint64
}

// Txn stages one commit's worth of catalog mutations.
type Txn struct {
	adds     []pendingAdd
	replaces []pendingReplace
	deletes  []string
}

// Begin opens a new staging transaction.
func (c *Catalog) Begin() *Txn { return &Txn{} }

// AddSegment stages registration of a freshly written segment.
func (t *Txn) AddSegment(id string, nodeCount uint64) {
	t.adds = append(t.adds, pendingAdd{id: id, nodeCount: nodeCount})
}

// Replace stages an atomic swap of oldIDs for a single merged segment.
func (t *Txn) Replace(oldIDs []string, newID string, nodeCount uint64) {
	t.replaces = append(t.replaces, pendingReplace{oldIDs: append([]string(nil), oldIDs...), newID: newID, nodeCount: nodeCount})
}

// DeletePrefix stages a tombstone; it is assigned next_seq at Commit time.
func (t *Txn) DeletePrefix(prefix string) {
	t.deletes = append(t.deletes, prefix)
}

// Commit applies every staged op under a single new sequence number, bumps
// the epoch, and persists the result. A failed persist leaves the in-memory
// state rolled back so a retried commit sees the catalog unchanged.
func (c *Catalog) Commit(txn *Txn, now time.Time) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	segments := append([]SegmentRef(nil), c.segments...)
	nodeCounts := make(map[string]uint64, len(c.nodeCounts))
	for k, v := range c.nodeCounts {
		nodeCounts[k] = v
	}
	deleteLog := c.deleteLog.Clone()

	seq := c.nextSeq
	rec := TxnRecord{Seq: seq, At: now}

	for _, a := range txn.adds {
		segments = append(segments, SegmentRef{ID: a.id, OpenStamp: seq})
		nodeCounts[a.id] = a.nodeCount
		rec.Added = append(rec.Added, a.id)
	}
	for _, r := range txn.replaces {
		segments = removeIDs(segments, r.oldIDs)
		for _, old := range r.oldIDs {
			delete(nodeCounts, old)
		}
		segments = append(segments, SegmentRef{ID: r.newID, OpenStamp: seq})
		nodeCounts[r.newID] = r.nodeCount
		rec.Replaced = append(rec.Replaced, ReplaceRecord{OldIDs: r.oldIDs, NewID: r.newID})
	}
	for _, p := range txn.deletes {
		deleteLog.Add(p, seq)
		rec.DeletedPrefixes = append(rec.DeletedPrefixes, p)
	}

	var total uint64
	for _, n := range nodeCounts {
		total += n
	}

	prevSegments, prevNodeCounts, prevDeleteLog, prevTotal, prevNextSeq, prevTxnLog :=
		c.segments, c.nodeCounts, c.deleteLog, c.totalNodes, c.nextSeq, c.txnLog

	c.segments = segments
	c.nodeCounts = nodeCounts
	c.deleteLog = deleteLog
	c.totalNodes = total
	c.nextSeq = seq + 1
	c.txnLog = append(c.txnLog, rec)

	if err := c.persistLocked(); err != nil {
		c.segments, c.nodeCounts, c.deleteLog, c.totalNodes, c.nextSeq, c.txnLog =
			prevSegments, prevNodeCounts, prevDeleteLog, prevTotal, prevNextSeq, prevTxnLog
		return err
	}
	c.epoch++
	return nil
}

func removeIDs(segments []SegmentRef, ids []string) []SegmentRef {
	drop := make(map[string]bool, len(ids))
	for _, id := range ids {
		drop[id] = true
	}
	out := segments[:0:0]
	for _, s := range segments {
		if !drop[s.ID] {
			out = append(out, s)
		}
	}
	return out
}

func (c *Catalog) persistLocked() error {
	st := persistedState{
		Segments:        c.segments,
		NodeCounts:      c.nodeCounts,
		DeleteLog:       c.deleteLog.Entries(),
		TotalNodes:      c.totalNodes,
		OldestPrunedSeq: c.oldestPrunedSeq,
		NextSeq:         c.nextSeq,
		TransactionLog:  c.txnLog,
	}
	b, err := json.Marshal(st)
	if err != nil {
		return xerrors.Mark(xerrors.Internal, err, "encode catalog state")
	}
	if err := os.MkdirAll(c.dir, 0o755); err != nil {
		return xerrors.Mark(xerrors.IO, err, "create catalog dir")
	}
	tmp, err := os.CreateTemp(c.dir, stateFile+".tmp-*")
	if err != nil {
		return xerrors.Mark(xerrors.IO, err, "create catalog temp file")
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(b); err != nil {
		tmp.Close()
		return xerrors.Mark(xerrors.IO, err, "write catalog temp file")
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return xerrors.Mark(xerrors.IO, err, "sync catalog temp file")
	}
	if err := tmp.Close(); err != nil {
		return xerrors.Mark(xerrors.IO, err, "close catalog temp file")
	}
	if err := os.Rename(tmp.Name(), filepath.Join(c.dir, stateFile)); err != nil {
		return xerrors.Mark(xerrors.IO, err, "publish catalog state")
	}
	return nil
}

// Cut is an immutable read snapshot of a catalog: the live segment set and
// delete log at the moment OpenCut was called. It is never mutated for its
// own lifetime, even if the catalog it came from advances.
type Cut struct {
	Segments  []SegmentRef
	deleteLog *DeleteLog
	Epoch     uint64
}

// OpenCut takes a consistent snapshot for a reader.
func (c *Catalog) OpenCut() *Cut {
	c.mu.Lock()
	defer c.mu.Unlock()
	return &Cut{
		Segments:  append([]SegmentRef(nil), c.segments...),
		deleteLog: c.deleteLog.Clone(),
		Epoch:     c.epoch,
	}
}

// ForSegment returns the vector.DeletedChecker a segment's Search should use
// given its own open-stamp: a key is hidden iff some tombstone prefix of it
// was recorded at a sequence strictly greater than the segment's open-stamp.
func (cut *Cut) ForSegment(openStamp uint64) vector.DeletedChecker {
	return segmentView{log: cut.deleteLog, stamp: openStamp}
}

type segmentView struct {
	log   *DeleteLog
	stamp uint64
}

func (v segmentView) IsDeleted(key []byte) bool { return v.log.SeqFor(key) > v.stamp }

// CompactLog drops delete-log entries that can no longer hide anything: the
// new floor is the oldest live segment's open-stamp, so no live segment has
// an open-stamp below it and no entry at or below it can still apply.
func (c *Catalog) CompactLog(now time.Time) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	floor := c.nextSeq
	for _, s := range c.segments {
		if s.OpenStamp < floor {
			floor = s.OpenStamp
		}
	}
	if floor <= c.oldestPrunedSeq {
		return nil
	}

	prevLog, prevFloor := c.deleteLog, c.oldestPrunedSeq
	c.deleteLog = c.deleteLog.Clone()
	c.deleteLog.Compact(floor)
	c.oldestPrunedSeq = floor

	if err := c.persistLocked(); err != nil {
		c.deleteLog, c.oldestPrunedSeq = prevLog, prevFloor
		return err
	}
	c.epoch++
	return nil
}

// NodeCounts returns a copy of the live segment-id to node-count map, the
// input merge.SelectSegments needs to pick a merge prefix by size.
func (c *Catalog) NodeCounts() map[string]uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make(map[string]uint64, len(c.nodeCounts))
	for k, v := range c.nodeCounts {
		out[k] = v
	}
	return out
}

// DeleteLogLen reports how many tombstone entries the delete log currently
// holds, the other input merge.SelectSegments needs for its fallback rule.
func (c *Catalog) DeleteLogLen() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.deleteLog.Entries())
}

// TotalNodes reports the sum of node counts across every live segment.
func (c *Catalog) TotalNodes() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.totalNodes
}

// Epoch reports the current state-version epoch; stale readers compare this
// against the value captured in their Cut to detect a newer commit.
func (c *Catalog) Epoch() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.epoch
}
