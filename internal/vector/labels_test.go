package vector

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLabelTrieHasPrefix(t *testing.T) {
	blob, err := CompileLabels(LabelSet{"/l/en", "/l/fr", "/e/PERSON/alice"})
	require.NoError(t, err)
	trie, err := OpenLabelTrie(blob)
	require.NoError(t, err)

	assert.True(t, trie.HasPrefix("/l/en"))
	assert.True(t, trie.HasPrefix("/l/"))
	assert.True(t, trie.HasPrefix("/e/PERSON"))
	assert.False(t, trie.HasPrefix("/l/de"))
	assert.False(t, trie.HasPrefix("/x"))
	assert.True(t, trie.HasPrefix(""))
}

func TestLabelTrieEmptyBlob(t *testing.T) {
	blob, err := CompileLabels(nil)
	require.NoError(t, err)
	trie, err := OpenLabelTrie(blob)
	require.NoError(t, err)
	assert.False(t, trie.HasPrefix("/l/en"))
	assert.False(t, trie.HasPrefix(""))
}

func TestLabelTrieDeduplicatesLabels(t *testing.T) {
	blob, err := CompileLabels(LabelSet{"/l/en", "/l/en", "/l/en"})
	require.NoError(t, err)
	trie, err := OpenLabelTrie(blob)
	require.NoError(t, err)
	assert.True(t, trie.HasPrefix("/l/en"))
}

func TestUpperBoundIncrementsLastByte(t *testing.T) {
	assert.Equal(t, []byte{'/', 'm'}, upperBound([]byte{'/', 'l'}))
	assert.Nil(t, upperBound([]byte{0xFF, 0xFF}))
}
