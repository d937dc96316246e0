package vector

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustLabelBlob(t *testing.T, labels LabelSet) []byte {
	t.Helper()
	blob, err := CompileLabels(labels)
	require.NoError(t, err)
	return blob
}

func TestNodeStoreRoundTrip(t *testing.T) {
	nodes := []Node{
		{Key: NewKey("r1", "a", "title", 0, 4), Vector: Vec{1, 0}, Labels: LabelSet{"/l/en"}, Metadata: []byte("m0")},
		{Key: NewKey("r1", "a", "title", 4, 8), Vector: Vec{0, 1}, Labels: LabelSet{"/l/fr"}, Metadata: []byte("m1")},
	}
	path := filepath.Join(t.TempDir(), "nodes.kv")
	require.NoError(t, writeNodeStore(path, nodes))

	store, err := openNodeStore(path)
	require.NoError(t, err)
	defer store.Close()

	assert.Equal(t, 2, store.Len())

	got0, err := store.At(0)
	require.NoError(t, err)
	assert.Equal(t, nodes[0].Key, got0.Key)
	assert.Equal(t, nodes[0].Vector, got0.Vector)
	assert.Equal(t, []byte("m0"), got0.Metadata)

	n, idx, found, err := store.Find(nodes[1].Key)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, 1, idx)
	assert.Equal(t, []byte("m1"), n.Metadata)

	_, _, found, err = store.Find(NewKey("r9", "a", "title", 0, 1))
	require.NoError(t, err)
	assert.False(t, found)
}

func TestNodeStoreAtOutOfRange(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nodes.kv")
	require.NoError(t, writeNodeStore(path, []Node{
		{Key: NewKey("r1", "a", "t", 0, 1), Vector: Vec{1}},
	}))
	store, err := openNodeStore(path)
	require.NoError(t, err)
	defer store.Close()

	_, err = store.At(5)
	assert.Error(t, err)
	_, err = store.At(-1)
	assert.Error(t, err)
}

func TestNodeStorePreservesLabelsBlob(t *testing.T) {
	labels := LabelSet{"/l/en", "/e/PERSON/alice"}
	path := filepath.Join(t.TempDir(), "nodes.kv")
	require.NoError(t, writeNodeStore(path, []Node{
		{Key: NewKey("r1", "a", "t", 0, 1), Vector: Vec{1}, Labels: labels},
	}))
	store, err := openNodeStore(path)
	require.NoError(t, err)
	defer store.Close()

	n, err := store.At(0)
	require.NoError(t, err)
	trie, err := OpenLabelTrie(n.LabelsBlob)
	require.NoError(t, err)
	assert.True(t, trie.HasPrefix("/l/en"))
	assert.True(t, trie.HasPrefix("/e/PERSON"))
}
