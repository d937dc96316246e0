package vector

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nidx/nidx/internal/vector/hnsw"
)

func testParams() hnsw.Params {
	return hnsw.Params{M: 4, EfConstruction: 16, EfSearch: 16}
}

type fixedDeleted map[string]bool

func (f fixedDeleted) IsDeleted(key []byte) bool { return f[string(key)] }

func axisNodes() []Node {
	return []Node{
		{Key: NewKey("r1", "a", "t", 0, 1), Vector: Vec{1, 0, 0}, Labels: LabelSet{"/l/en"}, Metadata: []byte("x")},
		{Key: NewKey("r1", "a", "t", 1, 2), Vector: Vec{0, 1, 0}, Labels: LabelSet{"/l/fr"}, Metadata: []byte("y")},
		{Key: NewKey("r2", "a", "t", 0, 1), Vector: Vec{0, 0, 1}, Labels: LabelSet{"/l/en"}, Metadata: []byte("z")},
	}
}

func TestSegmentCreateAndSearch(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "seg")
	seg, err := Create(dir, axisNodes(), Cosine, testParams(), 1, time.Now())
	require.NoError(t, err)
	defer seg.Close()

	assert.Equal(t, 3, seg.NodeCount())

	results, err := seg.Search(nil, Vec{1, 0, 0}, nil, true, 3, 0)
	require.NoError(t, err)
	require.NotEmpty(t, results)
	assert.Equal(t, "x", string(results[0].Metadata))
}

func TestSegmentSearchHonoursDeletedChecker(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "seg")
	nodes := axisNodes()
	seg, err := Create(dir, nodes, Cosine, testParams(), 1, time.Now())
	require.NoError(t, err)
	defer seg.Close()

	deleted := fixedDeleted{string(nodes[0].Key): true}
	results, err := seg.Search(deleted, Vec{1, 0, 0}, nil, true, 3, 0)
	require.NoError(t, err)
	for _, r := range results {
		assert.NotEqual(t, string(nodes[0].Key), string(r.Key))
	}
}

func TestSegmentSearchHonoursLabelKeeper(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "seg")
	seg, err := Create(dir, axisNodes(), Cosine, testParams(), 1, time.Now())
	require.NoError(t, err)
	defer seg.Close()

	onlyFrench := LabelKeeper(func(trie *LabelTrie) bool { return trie.HasPrefix("/l/fr") })
	results, err := seg.Search(nil, Vec{0, 1, 0}, onlyFrench, true, 3, 0)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "y", string(results[0].Metadata))
}

func TestSegmentSearchRejectsDimensionMismatch(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "seg")
	seg, err := Create(dir, axisNodes(), Cosine, testParams(), 1, time.Now())
	require.NoError(t, err)
	defer seg.Close()

	_, err = seg.Search(nil, Vec{1, 0}, nil, true, 3, 0)
	assert.Error(t, err)
}

func TestSegmentGetKeysExcludesDeleted(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "seg")
	nodes := axisNodes()
	seg, err := Create(dir, nodes, Cosine, testParams(), 1, time.Now())
	require.NoError(t, err)
	defer seg.Close()

	keys, err := seg.GetKeys(fixedDeleted{string(nodes[1].Key): true})
	require.NoError(t, err)
	assert.Len(t, keys, 2)
}

func TestSegmentCreateRejectsDimensionMismatch(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "seg")
	_, err := Create(dir, []Node{
		{Key: NewKey("r1", "a", "t", 0, 1), Vector: Vec{1, 0}},
		{Key: NewKey("r1", "a", "t", 1, 2), Vector: Vec{1, 0, 0}},
	}, Cosine, testParams(), 1, time.Now())
	assert.Error(t, err)
}

func TestSegmentOpenRoundTrip(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "seg")
	created, err := Create(dir, axisNodes(), Cosine, testParams(), 1, time.Now())
	require.NoError(t, err)
	created.Close()

	opened, err := Open(dir, testParams(), Cosine)
	require.NoError(t, err)
	defer opened.Close()

	assert.Equal(t, 3, opened.NodeCount())
	results, err := opened.Search(nil, Vec{1, 0, 0}, nil, true, 1, 0)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "x", string(results[0].Metadata))
}

func TestParagraphIDOfStripsStartEnd(t *testing.T) {
	k := NewKey("r1", "a", "title", 10, 20)
	assert.Equal(t, "r1/a/title", paragraphIDOf(k))
}
