package shard

import (
	"github.com/nidx/nidx/internal/relation"
	"github.com/nidx/nidx/internal/text"
	"github.com/nidx/nidx/internal/vector"
)

// vectorOpener, textOpener and relationOpener adapt a Shard's refcounted
// pools to internal/search's VectorOpener/TextOpener/RelationOpener
// interfaces, so the searcher façade never has to know a shard exists.
type vectorOpener struct{ s *Shard }

func (o vectorOpener) Open(id string) (*vector.Segment, func(), error) {
	return o.s.vectorPool.Acquire(id, func() (*vector.Segment, error) {
		return vector.Open(segmentDir(o.s.dir, dirVector, id), vectorParams(o.s.cfg.HNSW), vectorSimilarity(o.s.cfg.Similarity))
	})
}

type textOpener struct {
	pool  *refPool[*text.Segment]
	s     *Shard
	index string
}

func (o textOpener) Open(id string) (*text.Segment, func(), error) {
	return o.pool.Acquire(id, func() (*text.Segment, error) {
		return text.Open(segmentDir(o.s.dir, o.index, id))
	})
}

type relationOpener struct{ s *Shard }

func (o relationOpener) Open(id string) (*relation.Segment, func(), error) {
	return o.s.relationPool.Acquire(id, func() (*relation.Segment, error) {
		return relation.Open(segmentDir(o.s.dir, dirRelation, id))
	})
}
