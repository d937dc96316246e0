package catalog

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDeleteLogReturnsHighestSeqAmongMatchingPrefixes(t *testing.T) {
	d := NewDeleteLog()
	d.Add("res-1/", 5)
	d.Add("res-1/field-a/", 9)

	assert.EqualValues(t, 9, d.SeqFor([]byte("res-1/field-a/0-10")))
	assert.EqualValues(t, 5, d.SeqFor([]byte("res-1/field-b/0-10")))
	assert.EqualValues(t, 0, d.SeqFor([]byte("res-2/field-a/0-10")))
}

func TestDeleteLogAddKeepsHigherSeqForSamePrefix(t *testing.T) {
	d := NewDeleteLog()
	d.Add("res-1/", 5)
	d.Add("res-1/", 3)
	assert.EqualValues(t, 5, d.SeqFor([]byte("res-1/x")))
}

func TestDeleteLogCompactDropsLowSeqEntries(t *testing.T) {
	d := NewDeleteLog()
	d.Add("res-1/", 5)
	d.Add("res-2/", 20)
	d.Compact(10)

	assert.EqualValues(t, 0, d.SeqFor([]byte("res-1/x")))
	assert.EqualValues(t, 20, d.SeqFor([]byte("res-2/x")))
}

func TestDeleteLogCloneIsIndependent(t *testing.T) {
	d := NewDeleteLog()
	d.Add("res-1/", 1)
	clone := d.Clone()
	clone.Add("res-2/", 2)

	assert.EqualValues(t, 0, d.SeqFor([]byte("res-2/x")))
	assert.EqualValues(t, 2, clone.SeqFor([]byte("res-2/x")))
}
