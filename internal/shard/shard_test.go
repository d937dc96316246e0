package shard

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nidx/nidx/internal/config"
	"github.com/nidx/nidx/internal/merge"
	"github.com/nidx/nidx/internal/query"
	"github.com/nidx/nidx/internal/relation"
	"github.com/nidx/nidx/internal/text"
	"github.com/nidx/nidx/internal/vector"
)

func testConfig() config.ShardConfig {
	return config.ShardConfig{
		Dimension:   3,
		Similarity:  config.SimilarityCosine,
		Cardinality: config.CardinalitySingle,
		HNSW:        config.HNSWParams{M: 4, EfConstruction: 16, EfSearch: 16},
		Merge:       config.MergeParams{MaxNodesInMerge: 1000, SegmentsBeforeMerge: 2, MaximumDeletedEntries: 1000},
	}
}

func openTestShard(t *testing.T) *Shard {
	s, err := Open(t.TempDir(), "s1", testConfig())
	require.NoError(t, err)
	t.Cleanup(s.Close)
	return s
}

func TestShardAddVectorSegmentAndSearch(t *testing.T) {
	s := openTestShard(t)

	id, err := s.AddVectorSegment([]vector.Node{
		{Key: vector.NewKey("r1", "a", "t", 0, 1), Vector: vector.Vec{1, 0, 0}, Labels: vector.LabelSet{"/l/en"}},
		{Key: vector.NewKey("r2", "a", "t", 0, 1), Vector: vector.Vec{0, 1, 0}, Labels: vector.LabelSet{"/l/en"}},
	}, 1)
	require.NoError(t, err)
	assert.NotEmpty(t, id)

	resp, err := s.Search(context.Background(), query.Request{
		WantVector:    true,
		Embedding:     []float32{1, 0, 0},
		ResultPerPage: 10,
	}, 4)
	require.NoError(t, err)
	require.NotNil(t, resp.Vector)
	require.NoError(t, resp.Vector.Err)
	require.NotEmpty(t, resp.Vector.Neighbours)
	assert.Equal(t, vector.NewKey("r1", "a", "t", 0, 1), resp.Vector.Neighbours[0].Key)
}

func TestShardAddParagraphSegmentAndSearch(t *testing.T) {
	s := openTestShard(t)

	_, err := s.AddParagraphSegment([]text.Paragraph{
		{ResourceID: "r1", Field: "a/title", ParagraphID: "r1/a/title/0-10", Text: "hello world"},
	})
	require.NoError(t, err)

	resp, err := s.Search(context.Background(), query.Request{
		Query:         "hello",
		WantParagraph: true,
		ResultPerPage: 10,
	}, 4)
	require.NoError(t, err)
	require.NotNil(t, resp.Paragraph)
	require.NoError(t, resp.Paragraph.Err)
	require.Len(t, resp.Paragraph.Response.Results, 1)
	assert.Equal(t, "r1", resp.Paragraph.Response.Results[0].UUID)
}

func TestShardAddRelationSegmentAndSearch(t *testing.T) {
	s := openTestShard(t)

	_, err := s.AddRelationSegment([]relation.Triple{
		{SourceValue: "alice", Label: "knows", TargetValue: "bob"},
	})
	require.NoError(t, err)

	path := relation.PathQuery{
		Source:      relation.ValueExpr(relation.Node{}),
		Relation:    relation.ValueExpr(relation.Relation{}),
		Destination: relation.ValueExpr(relation.Node{}),
	}
	resp, err := s.Search(context.Background(), query.Request{
		WantVector:    false,
		RelationQuery: &path,
		ResultPerPage: 10,
	}, 4)
	require.NoError(t, err)
	require.NotNil(t, resp.Relation)
	require.NoError(t, resp.Relation.Err)
	require.Len(t, resp.Relation.Triples, 1)
	assert.Equal(t, "alice", resp.Relation.Triples[0].SourceValue)
}

func TestShardMergeVectorCombinesSegments(t *testing.T) {
	s := openTestShard(t)

	_, err := s.AddVectorSegment([]vector.Node{
		{Key: vector.NewKey("r1", "a", "t", 0, 1), Vector: vector.Vec{1, 0, 0}},
	}, 1)
	require.NoError(t, err)
	_, err = s.AddVectorSegment([]vector.Node{
		{Key: vector.NewKey("r2", "a", "t", 0, 1), Vector: vector.Vec{0, 1, 0}},
	}, 2)
	require.NoError(t, err)

	require.Len(t, s.vectorCatalog.OpenCut().Segments, 2)

	require.NoError(t, s.merge(context.Background(), merge.Params(s.cfg.Merge)))

	cut := s.vectorCatalog.OpenCut()
	require.Len(t, cut.Segments, 1)

	resp, err := s.Search(context.Background(), query.Request{
		WantVector:    true,
		Embedding:     []float32{1, 0, 0},
		ResultPerPage: 10,
	}, 4)
	require.NoError(t, err)
	require.NoError(t, resp.Vector.Err)
	require.Len(t, resp.Vector.Neighbours, 2)
}

func TestShardMergeTextCombinesSegmentsAndDropsDeleted(t *testing.T) {
	s := openTestShard(t)

	_, err := s.AddParagraphSegment([]text.Paragraph{
		{ResourceID: "r1", Field: "a/title", ParagraphID: "r1/a/title/0-10", Text: "hello world"},
	})
	require.NoError(t, err)
	_, err = s.AddParagraphSegment([]text.Paragraph{
		{ResourceID: "r2", Field: "a/title", ParagraphID: "r2/a/title/0-10", Text: "hello there"},
	})
	require.NoError(t, err)
	require.NoError(t, s.DeleteParagraphPrefix("r2/a/title"))

	require.NoError(t, s.mergeTextLike(s.paragraphCatalog, s.paragraphPool, dirParagraph, merge.Params(s.cfg.Merge)))

	cut := s.paragraphCatalog.OpenCut()
	require.Len(t, cut.Segments, 1)

	resp, err := s.Search(context.Background(), query.Request{
		Query:         "hello",
		WantParagraph: true,
		ResultPerPage: 10,
	}, 4)
	require.NoError(t, err)
	require.NoError(t, resp.Paragraph.Err)
	require.Len(t, resp.Paragraph.Response.Results, 1)
	assert.Equal(t, "r1", resp.Paragraph.Response.Results[0].UUID)
}

func TestManagerCreateGetDelete(t *testing.T) {
	root := t.TempDir()
	m := NewManager(root)

	s, err := m.Create("shard-a", testConfig())
	require.NoError(t, err)
	require.NotNil(t, s)

	_, err = m.Create("shard-a", testConfig())
	assert.Error(t, err)

	got, err := m.Get("shard-a")
	require.NoError(t, err)
	assert.Same(t, s, got)

	ids, err := m.ShardIDs()
	require.NoError(t, err)
	assert.Contains(t, ids, "shard-a")

	require.NoError(t, m.Delete("shard-a"))
	_, err = os.Stat(filepath.Join(root, "shard-a"))
	assert.True(t, os.IsNotExist(err))
}

func TestManagerGetUnknownShardIsShardNotFound(t *testing.T) {
	m := NewManager(t.TempDir())
	_, err := m.Get("nope")
	assert.Error(t, err)
}

func TestManagerMergeDispatchesToShard(t *testing.T) {
	root := t.TempDir()
	m := NewManager(root)

	s, err := m.Create("shard-a", testConfig())
	require.NoError(t, err)

	_, err = s.AddVectorSegment([]vector.Node{{Key: vector.NewKey("r1", "a", "t", 0, 1), Vector: vector.Vec{1, 0, 0}}}, 1)
	require.NoError(t, err)
	_, err = s.AddVectorSegment([]vector.Node{{Key: vector.NewKey("r2", "a", "t", 0, 1), Vector: vector.Vec{0, 1, 0}}}, 2)
	require.NoError(t, err)

	require.NoError(t, m.Merge(context.Background(), "shard-a", merge.Params(testConfig().Merge)))
	assert.Len(t, s.vectorCatalog.OpenCut().Segments, 1)
}
