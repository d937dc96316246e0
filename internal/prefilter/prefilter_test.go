package prefilter

import (
	"testing"
	"time"

	"github.com/RoaringBitmap/roaring"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nidx/nidx/internal/filter"
	"github.com/nidx/nidx/internal/text"
)

type fakeIndex struct {
	labels    map[string]*roaring.Bitmap
	keywords  map[string]*roaring.Bitmap
	resources map[string]*roaring.Bitmap
	refs      map[uint32]text.FieldRef
	universe  *roaring.Bitmap
}

func newFakeIndex() *fakeIndex {
	return &fakeIndex{
		labels:    map[string]*roaring.Bitmap{},
		keywords:  map[string]*roaring.Bitmap{},
		resources: map[string]*roaring.Bitmap{},
		refs:      map[uint32]text.FieldRef{},
		universe:  roaring.New(),
	}
}

func bm(ords ...uint32) *roaring.Bitmap {
	b := roaring.New()
	b.AddMany(ords)
	return b
}

func (f *fakeIndex) LabelBitmap(prefix string) (*roaring.Bitmap, error) {
	if b, ok := f.labels[prefix]; ok {
		return b, nil
	}
	return roaring.New(), nil
}

func (f *fakeIndex) KeywordBitmap(term string) (*roaring.Bitmap, error) {
	if b, ok := f.keywords[term]; ok {
		return b, nil
	}
	return roaring.New(), nil
}

func (f *fakeIndex) FacetBitmap(path string) (*roaring.Bitmap, error) {
	return roaring.New(), nil
}

func (f *fakeIndex) FieldBitmap(typ, id string) (*roaring.Bitmap, error) {
	return roaring.New(), nil
}

func (f *fakeIndex) ResourceBitmap(id string) (*roaring.Bitmap, error) {
	if b, ok := f.resources[id]; ok {
		return b, nil
	}
	return roaring.New(), nil
}

func (f *fakeIndex) DateRangeBitmap(field string, since, until *time.Time) (*roaring.Bitmap, error) {
	return roaring.New(), nil
}

func (f *fakeIndex) FieldRefs(ordinals *roaring.Bitmap) ([]text.FieldRef, error) {
	seen := map[text.FieldRef]struct{}{}
	it := ordinals.Iterator()
	for it.HasNext() {
		ref, ok := f.refs[it.Next()]
		if !ok {
			continue
		}
		seen[ref] = struct{}{}
	}
	out := make([]text.FieldRef, 0, len(seen))
	for ref := range seen {
		out = append(out, ref)
	}
	return out, nil
}

func (f *fakeIndex) AllOrdinals() (*roaring.Bitmap, error) {
	return f.universe, nil
}

func TestEvaluateNilExprNoSecurityIsAll(t *testing.T) {
	idx := newFakeIndex()
	res, err := Evaluate(idx, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, filter.All, res.Kind)
}

func TestEvaluateLiteralResolvesToFields(t *testing.T) {
	idx := newFakeIndex()
	idx.labels["/n/i/en"] = bm(1, 2)
	idx.refs[1] = text.FieldRef{ResourceID: "r1", FieldPath: "title"}
	idx.refs[2] = text.FieldRef{ResourceID: "r2", FieldPath: "title"}

	res, err := Evaluate(idx, filter.Literal{Label: "/n/i/en"}, nil)
	require.NoError(t, err)
	require.Equal(t, filter.Some, res.Kind)
	assert.Contains(t, res.Fields, filter.FieldID{ResourceID: "r1", FieldPath: "title"})
	assert.Contains(t, res.Fields, filter.FieldID{ResourceID: "r2", FieldPath: "title"})
}

func TestEvaluateUnsatisfiableAndIsNone(t *testing.T) {
	idx := newFakeIndex()
	idx.labels["/n/i/en"] = bm(1, 2)
	idx.labels["/n/i/es"] = bm(3, 4)

	expr := filter.And{filter.Literal{Label: "/n/i/en"}, filter.Literal{Label: "/n/i/es"}}
	res, err := Evaluate(idx, expr, nil)
	require.NoError(t, err)
	assert.Equal(t, filter.None, res.Kind)
}

func TestEvaluateSecurityAloneRestrictsResult(t *testing.T) {
	idx := newFakeIndex()
	idx.labels["/a/allowed"] = bm(5)
	idx.refs[5] = text.FieldRef{ResourceID: "r5", FieldPath: "body"}

	res, err := Evaluate(idx, nil, []string{"/a/allowed"})
	require.NoError(t, err)
	require.Equal(t, filter.Some, res.Kind)
	assert.Contains(t, res.Fields, filter.FieldID{ResourceID: "r5", FieldPath: "body"})
}

func TestEvaluateSecurityNarrowsExistingBitmap(t *testing.T) {
	idx := newFakeIndex()
	idx.labels["/n/i/en"] = bm(1, 2, 3)
	idx.labels["/a/allowed"] = bm(2, 3, 4)
	idx.refs[2] = text.FieldRef{ResourceID: "r2", FieldPath: "title"}
	idx.refs[3] = text.FieldRef{ResourceID: "r3", FieldPath: "title"}

	res, err := Evaluate(idx, filter.Literal{Label: "/n/i/en"}, []string{"/a/allowed"})
	require.NoError(t, err)
	require.Equal(t, filter.Some, res.Kind)
	assert.Len(t, res.Fields, 2)
}

func TestEvaluateNotComplementsAgainstUniverse(t *testing.T) {
	idx := newFakeIndex()
	idx.universe = bm(1, 2, 3, 4)
	idx.labels["/e/deleted"] = bm(3, 4)
	idx.refs[1] = text.FieldRef{ResourceID: "r1", FieldPath: "title"}
	idx.refs[2] = text.FieldRef{ResourceID: "r2", FieldPath: "title"}

	res, err := Evaluate(idx, filter.Not{Expr: filter.Literal{Label: "/e/deleted"}}, nil)
	require.NoError(t, err)
	require.Equal(t, filter.Some, res.Kind)
	assert.Len(t, res.Fields, 2)
}

func TestEvaluateOrUnionsLeaves(t *testing.T) {
	idx := newFakeIndex()
	idx.keywords["cat"] = bm(1)
	idx.keywords["dog"] = bm(2)
	idx.refs[1] = text.FieldRef{ResourceID: "r1", FieldPath: "body"}
	idx.refs[2] = text.FieldRef{ResourceID: "r2", FieldPath: "body"}

	expr := filter.Or{filter.Keyword{Text: "cat"}, filter.Keyword{Text: "dog"}}
	res, err := Evaluate(idx, expr, nil)
	require.NoError(t, err)
	require.Equal(t, filter.Some, res.Kind)
	assert.Len(t, res.Fields, 2)
}
