// Package shard ties the four co-located indexes (vector, paragraph,
// full-document text, relation) into a single per-shard handle: one
// catalog and one refcounted segment-file pool per index, a search entry
// point built on internal/search, and a merge entry point built on
// internal/merge's selection policy. Manager is the process-wide, never a
// package-level singleton, cache that owns these handles.
package shard

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/nidx/nidx/internal/catalog"
	"github.com/nidx/nidx/internal/config"
	"github.com/nidx/nidx/internal/query"
	"github.com/nidx/nidx/internal/relation"
	"github.com/nidx/nidx/internal/search"
	"github.com/nidx/nidx/internal/text"
	"github.com/nidx/nidx/internal/vector"
	"github.com/nidx/nidx/internal/xerrors"
)

const (
	dirVector    = "vector"
	dirParagraph = "paragraph"
	dirText      = "text"
	dirRelation  = "relation"
)

func indexDir(shardDir, index string) string      { return filepath.Join(shardDir, index) }
func segmentDir(shardDir, index, id string) string { return filepath.Join(shardDir, index, id) }

func findSegmentRef(segments []catalog.SegmentRef, id string) catalog.SegmentRef {
	for _, s := range segments {
		if s.ID == id {
			return s
		}
	}
	return catalog.SegmentRef{}
}

// Shard is one shard's live handle. The catalog mutex inside each Catalog
// and this writeMu are the concurrency model's two locks: the catalog
// guards its own segment list, writeMu serializes the commits a write (or
// a merge) makes against all four catalogs together. The model calls for a
// per-resource lock; absent the ingestion pipeline that would hand us
// resource identity, this coarsens it to one lock per shard.
type Shard struct {
	ID  string
	dir string
	cfg config.ShardConfig

	vectorCatalog    *catalog.Catalog
	paragraphCatalog *catalog.Catalog
	textCatalog      *catalog.Catalog
	relationCatalog  *catalog.Catalog

	vectorPool    *refPool[*vector.Segment]
	paragraphPool *refPool[*text.Segment]
	textPool      *refPool[*text.Segment]
	relationPool  *refPool[*relation.Segment]

	writeMu sync.Mutex
}

// Open loads a shard rooted at dir, reading each of its four index
// catalogs (an absent catalog.json just means an empty index).
func Open(dir, id string, cfg config.ShardConfig) (*Shard, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	vc, err := catalog.Open(indexDir(dir, dirVector))
	if err != nil {
		return nil, err
	}
	pc, err := catalog.Open(indexDir(dir, dirParagraph))
	if err != nil {
		return nil, err
	}
	tc, err := catalog.Open(indexDir(dir, dirText))
	if err != nil {
		return nil, err
	}
	rc, err := catalog.Open(indexDir(dir, dirRelation))
	if err != nil {
		return nil, err
	}

	return &Shard{
		ID:               id,
		dir:              dir,
		cfg:              cfg,
		vectorCatalog:    vc,
		paragraphCatalog: pc,
		textCatalog:      tc,
		relationCatalog:  rc,
		vectorPool:       newRefPool[*vector.Segment](),
		paragraphPool:    newRefPool[*text.Segment](),
		textPool:         newRefPool[*text.Segment](),
		relationPool:     newRefPool[*relation.Segment](),
	}, nil
}

// Close force-closes every open segment handle regardless of outstanding
// references. For a graceful shutdown, not for a live shard delete (which
// should let in-flight searches drain through the refcounted pools).
func (s *Shard) Close() {
	s.vectorPool.CloseAll()
	s.paragraphPool.CloseAll()
	s.textPool.CloseAll()
	s.relationPool.CloseAll()
}

// Search runs req against the shard's current state, opening one cut per
// index and fanning out through internal/search.
func (s *Shard) Search(ctx context.Context, req query.Request, maxParallel int) (*search.Response, error) {
	idxs := search.Indexes{
		Vector:    &search.VectorIndex{Cut: s.vectorCatalog.OpenCut(), Opener: vectorOpener{s}},
		Paragraph: &search.TextIndex{Cut: s.paragraphCatalog.OpenCut(), Opener: textOpener{s.paragraphPool, s, dirParagraph}},
		Text:      &search.TextIndex{Cut: s.textCatalog.OpenCut(), Opener: textOpener{s.textPool, s, dirText}},
		Relation:  &search.RelationIndex{Cut: s.relationCatalog.OpenCut(), Opener: relationOpener{s}},
	}
	return search.Run(ctx, req, idxs, maxParallel)
}

// Config returns the configuration the shard was opened with, for callers
// (the merge scheduler, a CLI command) that need it without threading it
// through separately.
func (s *Shard) Config() config.ShardConfig { return s.cfg }

// IndexStats summarizes one index's catalog state, the shape a dev tool
// wants for a quick inspection without reading the catalog's internals.
type IndexStats struct {
	Segments     []catalog.SegmentRef
	TotalNodes   uint64
	DeleteLogLen int
}

// Stats summarizes all four indexes' catalog state.
type Stats struct {
	Vector    IndexStats
	Paragraph IndexStats
	Text      IndexStats
	Relation  IndexStats
}

func statsOf(cat *catalog.Catalog) IndexStats {
	return IndexStats{
		Segments:     cat.OpenCut().Segments,
		TotalNodes:   cat.TotalNodes(),
		DeleteLogLen: cat.DeleteLogLen(),
	}
}

// Stats reports every index's current segment set and size, for inspection
// tooling with no need to search or mutate the shard.
func (s *Shard) Stats() Stats {
	return Stats{
		Vector:    statsOf(s.vectorCatalog),
		Paragraph: statsOf(s.paragraphCatalog),
		Text:      statsOf(s.textCatalog),
		Relation:  statsOf(s.relationCatalog),
	}
}

// AddVectorSegment writes nodes as a new immutable vector segment and
// registers it with the catalog in one commit.
func (s *Shard) AddVectorSegment(nodes []vector.Node, seed int64) (string, error) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	id := uuid.NewString()
	dir := segmentDir(s.dir, dirVector, id)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", xerrors.Mark(xerrors.IO, err, "create vector segment dir")
	}
	now := time.Now()
	seg, err := vector.Create(dir, nodes, vectorSimilarity(s.cfg.Similarity), vectorParams(s.cfg.HNSW), seed, now)
	if err != nil {
		return "", err
	}
	seg.Close()

	txn := s.vectorCatalog.Begin()
	txn.AddSegment(id, uint64(len(nodes)))
	if err := s.vectorCatalog.Commit(txn, now); err != nil {
		return "", err
	}
	return id, nil
}

// AddParagraphSegment writes paragraphs as a new paragraph-index segment.
func (s *Shard) AddParagraphSegment(paragraphs []text.Paragraph) (string, error) {
	return s.addTextSegment(s.paragraphCatalog, dirParagraph, paragraphs)
}

// AddTextSegment writes paragraphs as a new full-document-text-index
// segment. It is the same underlying engine as the paragraph index, kept
// in a separate catalog and directory because the two serve distinct
// query-planner sub-requests over distinct spans.
func (s *Shard) AddTextSegment(paragraphs []text.Paragraph) (string, error) {
	return s.addTextSegment(s.textCatalog, dirText, paragraphs)
}

func (s *Shard) addTextSegment(cat *catalog.Catalog, index string, paragraphs []text.Paragraph) (string, error) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	id := uuid.NewString()
	dir := segmentDir(s.dir, index, id)
	seg, err := text.Create(dir, paragraphs)
	if err != nil {
		return "", err
	}
	seg.Close()

	txn := cat.Begin()
	txn.AddSegment(id, uint64(len(paragraphs)))
	if err := cat.Commit(txn, time.Now()); err != nil {
		return "", err
	}
	return id, nil
}

// AddRelationSegment writes triples as a new relation-index segment.
func (s *Shard) AddRelationSegment(triples []relation.Triple) (string, error) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	id := uuid.NewString()
	dir := segmentDir(s.dir, dirRelation, id)
	seg, err := relation.Create(dir, triples)
	if err != nil {
		return "", err
	}
	seg.Close()

	txn := s.relationCatalog.Begin()
	txn.AddSegment(id, uint64(len(triples)))
	if err := s.relationCatalog.Commit(txn, time.Now()); err != nil {
		return "", err
	}
	return id, nil
}

// DeleteVectorPrefix, DeleteParagraphPrefix, DeleteTextPrefix and
// DeleteRelationPrefix stage a tombstone against the respective catalog.
// The prefix scheme is index-specific: a vector.Key prefix for vectors,
// "resourceID/field" for paragraph/text, "source/label/target" for
// relations.
func (s *Shard) DeleteVectorPrefix(prefix string) error {
	return s.deletePrefix(s.vectorCatalog, prefix)
}

func (s *Shard) DeleteParagraphPrefix(prefix string) error {
	return s.deletePrefix(s.paragraphCatalog, prefix)
}

func (s *Shard) DeleteTextPrefix(prefix string) error {
	return s.deletePrefix(s.textCatalog, prefix)
}

func (s *Shard) DeleteRelationPrefix(prefix string) error {
	return s.deletePrefix(s.relationCatalog, prefix)
}

func (s *Shard) deletePrefix(cat *catalog.Catalog, prefix string) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	txn := cat.Begin()
	txn.DeletePrefix(prefix)
	return cat.Commit(txn, time.Now())
}
