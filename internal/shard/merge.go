package shard

import (
	"context"
	"os"
	"time"

	"github.com/google/uuid"

	"github.com/nidx/nidx/internal/catalog"
	"github.com/nidx/nidx/internal/merge"
	"github.com/nidx/nidx/internal/relation"
	"github.com/nidx/nidx/internal/text"
	"github.com/nidx/nidx/internal/vector"
)

// merge runs one pass across all four co-located indexes, each picking its
// own merge candidates via merge.SelectSegments. A pass that finds nothing
// to do for an index is a no-op for it, not an error.
func (s *Shard) merge(ctx context.Context, params merge.Params) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := s.mergeVector(params); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := s.mergeTextLike(s.paragraphCatalog, s.paragraphPool, dirParagraph, params); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := s.mergeTextLike(s.textCatalog, s.textPool, dirText, params); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.mergeRelation(params)
}

func (s *Shard) mergeVector(params merge.Params) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	cut := s.vectorCatalog.OpenCut()
	ids := merge.SelectSegments(cut.Segments, s.vectorCatalog.NodeCounts(), s.vectorCatalog.DeleteLogLen(), params)
	if len(ids) < 2 {
		return nil
	}

	var inputs []vector.MergeInput
	var releases []func()
	defer func() {
		for _, r := range releases {
			r()
		}
	}()
	for _, id := range ids {
		ref := findSegmentRef(cut.Segments, id)
		seg, release, err := s.vectorPool.Acquire(id, func() (*vector.Segment, error) {
			return vector.Open(segmentDir(s.dir, dirVector, id), vectorParams(s.cfg.HNSW), vectorSimilarity(s.cfg.Similarity))
		})
		if err != nil {
			return err
		}
		releases = append(releases, release)
		inputs = append(inputs, vector.MergeInput{Segment: seg, Deleted: cut.ForSegment(ref.OpenStamp)})
	}

	now := time.Now()
	newID := uuid.NewString()
	newDir := segmentDir(s.dir, dirVector, newID)
	merged, err := vector.Merge(newDir, inputs, vectorSimilarity(s.cfg.Similarity), vectorParams(s.cfg.HNSW), now.UnixNano(), now)
	if err != nil {
		return err
	}
	nodeCount := uint64(merged.NodeCount())
	merged.Close()

	txn := s.vectorCatalog.Begin()
	txn.Replace(ids, newID, nodeCount)
	if err := s.vectorCatalog.Commit(txn, now); err != nil {
		os.RemoveAll(newDir)
		return err
	}

	for _, id := range ids {
		id := id
		s.vectorPool.Evict(id, func() { os.RemoveAll(segmentDir(s.dir, dirVector, id)) })
	}
	return nil
}

// mergeTextLike merges paragraph or full-document text segments. Neither
// engine has a native structural merge (unlike the vector segment's
// HNSW-preserving fast path), so this reads every live paragraph back out
// with AllParagraphs, drops the ones tombstoned since their segment's
// open-stamp, and recreates a single segment from what remains.
func (s *Shard) mergeTextLike(cat *catalog.Catalog, pool *refPool[*text.Segment], index string, params merge.Params) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	cut := cat.OpenCut()
	ids := merge.SelectSegments(cut.Segments, cat.NodeCounts(), cat.DeleteLogLen(), params)
	if len(ids) < 2 {
		return nil
	}

	var combined []text.Paragraph
	var releases []func()
	defer func() {
		for _, r := range releases {
			r()
		}
	}()
	for _, id := range ids {
		ref := findSegmentRef(cut.Segments, id)
		seg, release, err := pool.Acquire(id, func() (*text.Segment, error) {
			return text.Open(segmentDir(s.dir, index, id))
		})
		if err != nil {
			return err
		}
		releases = append(releases, release)

		paragraphs, err := seg.AllParagraphs()
		if err != nil {
			return err
		}
		deleted := cut.ForSegment(ref.OpenStamp)
		for _, p := range paragraphs {
			if deleted != nil && deleted.IsDeleted([]byte(p.ResourceID+"/"+p.Field)) {
				continue
			}
			combined = append(combined, p)
		}
	}

	newID := uuid.NewString()
	newDir := segmentDir(s.dir, index, newID)
	merged, err := text.Create(newDir, combined)
	if err != nil {
		return err
	}
	merged.Close()

	now := time.Now()
	txn := cat.Begin()
	txn.Replace(ids, newID, uint64(len(combined)))
	if err := cat.Commit(txn, now); err != nil {
		os.RemoveAll(newDir)
		return err
	}

	for _, id := range ids {
		id := id
		pool.Evict(id, func() { os.RemoveAll(segmentDir(s.dir, index, id)) })
	}
	return nil
}

func (s *Shard) mergeRelation(params merge.Params) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	cut := s.relationCatalog.OpenCut()
	ids := merge.SelectSegments(cut.Segments, s.relationCatalog.NodeCounts(), s.relationCatalog.DeleteLogLen(), params)
	if len(ids) < 2 {
		return nil
	}

	var combined []relation.Triple
	var releases []func()
	defer func() {
		for _, r := range releases {
			r()
		}
	}()
	for _, id := range ids {
		ref := findSegmentRef(cut.Segments, id)
		seg, release, err := s.relationPool.Acquire(id, func() (*relation.Segment, error) {
			return relation.Open(segmentDir(s.dir, dirRelation, id))
		})
		if err != nil {
			return err
		}
		releases = append(releases, release)

		deleted := cut.ForSegment(ref.OpenStamp)
		bm := seg.AllOrdinals()
		it := bm.Iterator()
		for it.HasNext() {
			tr, err := seg.Triple(it.Next())
			if err != nil {
				continue
			}
			key := []byte(tr.SourceValue + "/" + tr.Label + "/" + tr.TargetValue)
			if deleted != nil && deleted.IsDeleted(key) {
				continue
			}
			combined = append(combined, tr)
		}
	}

	newID := uuid.NewString()
	newDir := segmentDir(s.dir, dirRelation, newID)
	merged, err := relation.Create(newDir, combined)
	if err != nil {
		return err
	}
	merged.Close()

	now := time.Now()
	txn := s.relationCatalog.Begin()
	txn.Replace(ids, newID, uint64(len(combined)))
	if err := s.relationCatalog.Commit(txn, now); err != nil {
		os.RemoveAll(newDir)
		return err
	}

	for _, id := range ids {
		id := id
		s.relationPool.Evict(id, func() { os.RemoveAll(segmentDir(s.dir, dirRelation, id)) })
	}
	return nil
}
