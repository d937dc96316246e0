package filter

import (
	"testing"
	"time"

	"github.com/RoaringBitmap/roaring"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nidx/nidx/internal/vector"
)

type fakeIndex struct {
	keyword  map[string]*roaring.Bitmap
	facet    map[string]*roaring.Bitmap
	field    map[string]*roaring.Bitmap
	resource map[string]*roaring.Bitmap
}

func newFakeIndex() *fakeIndex {
	return &fakeIndex{
		keyword:  map[string]*roaring.Bitmap{},
		facet:    map[string]*roaring.Bitmap{},
		field:    map[string]*roaring.Bitmap{},
		resource: map[string]*roaring.Bitmap{},
	}
}

func (f *fakeIndex) Keyword(text string) (*roaring.Bitmap, error) {
	if bm, ok := f.keyword[text]; ok {
		return bm, nil
	}
	return roaring.New(), nil
}

func (f *fakeIndex) Facet(path string) (*roaring.Bitmap, error) {
	if bm, ok := f.facet[path]; ok {
		return bm, nil
	}
	return roaring.New(), nil
}

func (f *fakeIndex) Field(typ, id string) (*roaring.Bitmap, error) {
	if bm, ok := f.field[typ+"/"+id]; ok {
		return bm, nil
	}
	return roaring.New(), nil
}

func (f *fakeIndex) Resource(id string) (*roaring.Bitmap, error) {
	if bm, ok := f.resource[id]; ok {
		return bm, nil
	}
	return roaring.New(), nil
}

func (f *fakeIndex) DateRange(field string, since, until *time.Time) (*roaring.Bitmap, error) {
	return roaring.New(), nil
}

func (f *fakeIndex) FieldSet(fields map[FieldID]struct{}) (*roaring.Bitmap, error) {
	bm := roaring.New()
	for id := range fields {
		fbm, err := f.Field(id.FieldPath, id.ResourceID)
		if err != nil {
			return nil, err
		}
		bm.Or(fbm)
	}
	return bm, nil
}

func universeOf(ords ...uint32) *roaring.Bitmap {
	bm := roaring.New()
	bm.AddMany(ords)
	return bm
}

func mustTrie(t *testing.T, labels ...string) *vector.LabelTrie {
	blob, err := vector.CompileLabels(labels)
	require.NoError(t, err)
	trie, err := vector.OpenLabelTrie(blob)
	require.NoError(t, err)
	return trie
}

func TestCompilePureBitmapExpression(t *testing.T) {
	idx := newFakeIndex()
	idx.keyword["cat"] = universeOf(1, 2, 3)
	idx.resource["r1"] = universeOf(2, 3, 4)

	expr := And{Keyword{Text: "cat"}, Resource{ID: "r1"}}
	universe := universeOf(1, 2, 3, 4, 5)

	bm, keep, err := Compile(expr, AllResult(), idx, universe)
	require.NoError(t, err)
	assert.ElementsMatch(t, []uint32{2, 3}, bm.ToArray())
	assert.True(t, keep(mustTrie(t)))
}

func TestCompilePureLabelExpression(t *testing.T) {
	idx := newFakeIndex()
	universe := universeOf(1, 2, 3)

	expr := And{Literal{Label: "/n/i/en"}, Not{Expr: Literal{Label: "/e/deleted"}}}
	bm, keep, err := Compile(expr, AllResult(), idx, universe)
	require.NoError(t, err)

	assert.ElementsMatch(t, []uint32{1, 2, 3}, bm.ToArray())
	assert.True(t, keep(mustTrie(t, "/n/i/en")))
	assert.False(t, keep(mustTrie(t, "/n/i/en", "/e/deleted")))
}

func TestCompileAndShortCircuitsOnEmptySet(t *testing.T) {
	idx := newFakeIndex()
	idx.keyword["missing"] = roaring.New()
	idx.resource["r1"] = universeOf(1, 2)

	expr := And{Keyword{Text: "missing"}, Resource{ID: "r1"}}
	bm, _, err := Compile(expr, AllResult(), idx, universeOf(1, 2, 3))
	require.NoError(t, err)
	assert.True(t, bm.IsEmpty())
}

func TestCompileOrUnionsBitmapLeaves(t *testing.T) {
	idx := newFakeIndex()
	idx.resource["r1"] = universeOf(1)
	idx.resource["r2"] = universeOf(2)

	expr := Or{Resource{ID: "r1"}, Resource{ID: "r2"}}
	bm, _, err := Compile(expr, AllResult(), idx, universeOf(1, 2, 3))
	require.NoError(t, err)
	assert.ElementsMatch(t, []uint32{1, 2}, bm.ToArray())
}

func TestCompileNoneResultIsEmptyAndRejectsEverything(t *testing.T) {
	idx := newFakeIndex()
	bm, keep, err := Compile(And{}, NoneResult(), idx, universeOf(1, 2))
	require.NoError(t, err)
	assert.True(t, bm.IsEmpty())
	assert.False(t, keep(mustTrie(t, "/n/i/en")))
}

func TestCompileSomeResultRestrictsToFieldSet(t *testing.T) {
	idx := newFakeIndex()
	idx.field["a/f1"] = universeOf(1, 2)
	universe := universeOf(1, 2, 3, 4)

	pre := SomeResult([]FieldID{{ResourceID: "f1", FieldPath: "a"}})
	bm, _, err := Compile(nil, pre, idx, universe)
	require.NoError(t, err)
	assert.ElementsMatch(t, []uint32{1, 2}, bm.ToArray())
}

func TestCompileSomeResultWithNoExprStillRestricts(t *testing.T) {
	idx := newFakeIndex()
	idx.field["a/f1"] = universeOf(1, 2)
	idx.field["b/f2"] = universeOf(3)
	universe := universeOf(1, 2, 3, 4)

	pre := SomeResult([]FieldID{{ResourceID: "f1", FieldPath: "a"}, {ResourceID: "f2", FieldPath: "b"}})
	bm, keep, err := Compile(nil, pre, idx, universe)
	require.NoError(t, err)
	assert.ElementsMatch(t, []uint32{1, 2, 3}, bm.ToArray())
	assert.True(t, keep(mustTrie(t)))
}
