package text

import (
	"time"

	"github.com/RoaringBitmap/roaring"
	"github.com/blevesearch/bleve/v2"
	bleveQuery "github.com/blevesearch/bleve/v2/search/query"

	"github.com/nidx/nidx/internal/filter"
	"github.com/nidx/nidx/internal/xerrors"
)

// FieldRef names one field of one resource — the granularity a pre-filter
// pass resolves matching paragraphs down to.
type FieldRef struct {
	ResourceID string
	FieldPath  string
}

// matchOrdinals runs q and returns every matching paragraph's ordinal as a
// bitmap, paginating in StreamBatchSize pages since the caller wants the
// full match set rather than one ranked page.
func (s *Segment) matchOrdinals(q bleveQuery.Query) (*roaring.Bitmap, error) {
	bm := roaring.New()
	for offset := 0; ; offset += StreamBatchSize {
		bq := bleve.NewSearchRequestOptions(q, StreamBatchSize, offset, false)
		res, err := s.index.Search(bq)
		if err != nil {
			return nil, xerrors.Mark(xerrors.Internal, err, "scan paragraph index")
		}
		for _, hit := range res.Hits {
			ordinal, err := parseOrdinalID(hit.ID)
			if err != nil {
				continue
			}
			bm.Add(uint32(ordinal))
		}
		if len(res.Hits) < StreamBatchSize {
			break
		}
	}
	return bm, nil
}

// LabelBitmap is the ordinal set of paragraphs carrying prefix as one of
// their labels.
func (s *Segment) LabelBitmap(prefix string) (*roaring.Bitmap, error) {
	q := bleve.NewPrefixQuery(prefix)
	q.SetField("labels")
	return s.matchOrdinals(q)
}

// KeywordBitmap is the ordinal set of paragraphs whose text matches term.
func (s *Segment) KeywordBitmap(term string) (*roaring.Bitmap, error) {
	q := bleve.NewMatchQuery(term)
	q.SetField("text")
	return s.matchOrdinals(q)
}

// FacetBitmap is the ordinal set of paragraphs tagged under a facet path.
func (s *Segment) FacetBitmap(path string) (*roaring.Bitmap, error) {
	q := bleve.NewPrefixQuery(path)
	q.SetField("facets")
	return s.matchOrdinals(q)
}

// FieldBitmap is the ordinal set of paragraphs belonging to field typ, or
// to the specific typ/id field when id is non-empty.
func (s *Segment) FieldBitmap(typ, id string) (*roaring.Bitmap, error) {
	if id == "" {
		q := bleve.NewPrefixQuery(typ)
		q.SetField("field")
		return s.matchOrdinals(q)
	}
	q := bleve.NewMatchQuery(typ + "/" + id)
	q.SetField("field")
	return s.matchOrdinals(q)
}

// AllOrdinals is the ordinal set of every paragraph in the segment, the
// universe a pre-filter pass complements Not against.
func (s *Segment) AllOrdinals() (*roaring.Bitmap, error) {
	return s.matchOrdinals(bleve.NewMatchAllQuery())
}

// ResourceBitmap is the ordinal set of paragraphs belonging to a resource.
func (s *Segment) ResourceBitmap(id string) (*roaring.Bitmap, error) {
	q := bleve.NewMatchQuery(id)
	q.SetField("resource_id")
	return s.matchOrdinals(q)
}

// DateRangeBitmap is the ordinal set of paragraphs whose named date field
// falls within [since, until]. A nil bound is open on that side.
func (s *Segment) DateRangeBitmap(field string, since, until *time.Time) (*roaring.Bitmap, error) {
	q := bleve.NewDateRangeQuery(derefTime(since), derefTime(until))
	q.SetField(field)
	return s.matchOrdinals(q)
}

func derefTime(t *time.Time) time.Time {
	if t == nil {
		return time.Time{}
	}
	return *t
}

// FieldRefs resolves an ordinal set to the (resource, field) pairs those
// paragraphs belong to, deduplicated.
func (s *Segment) FieldRefs(ordinals *roaring.Bitmap) ([]FieldRef, error) {
	seen := map[FieldRef]struct{}{}
	it := ordinals.Iterator()
	var ids []string
	for it.HasNext() {
		ids = append(ids, ordinalID(int(it.Next())))
	}
	if len(ids) == 0 {
		return nil, nil
	}
	q := bleve.NewDocIDQuery(ids)
	for offset := 0; ; offset += StreamBatchSize {
		bq := bleve.NewSearchRequestOptions(q, StreamBatchSize, offset, false)
		bq.Fields = []string{"resource_id", "field"}
		res, err := s.index.Search(bq)
		if err != nil {
			return nil, xerrors.Mark(xerrors.Internal, err, "resolve field refs")
		}
		for _, hit := range res.Hits {
			seen[FieldRef{ResourceID: fieldString(hit.Fields, "resource_id"), FieldPath: fieldString(hit.Fields, "field")}] = struct{}{}
		}
		if len(res.Hits) < StreamBatchSize {
			break
		}
	}
	out := make([]FieldRef, 0, len(seen))
	for ref := range seen {
		out = append(out, ref)
	}
	return out, nil
}

// Keyword, Facet, Field, Resource and DateRange adapt Segment's bitmap
// methods to internal/filter.Index, so the shared filter engine can compile
// a predicate tree against this segment directly.
func (s *Segment) Keyword(text string) (*roaring.Bitmap, error)  { return s.KeywordBitmap(text) }
func (s *Segment) Facet(path string) (*roaring.Bitmap, error)    { return s.FacetBitmap(path) }
func (s *Segment) Field(typ, id string) (*roaring.Bitmap, error) { return s.FieldBitmap(typ, id) }
func (s *Segment) Resource(id string) (*roaring.Bitmap, error)   { return s.ResourceBitmap(id) }
func (s *Segment) DateRange(field string, since, until *time.Time) (*roaring.Bitmap, error) {
	return s.DateRangeBitmap(field, since, until)
}

// FieldSet is the ordinal set of paragraphs belonging to any of fields,
// matching each pair's resource and its exact field value rather than the
// FieldBitmap prefix match FieldRef uses.
func (s *Segment) FieldSet(fields map[filter.FieldID]struct{}) (*roaring.Bitmap, error) {
	bm := roaring.New()
	for id := range fields {
		resourceBM, err := s.ResourceBitmap(id.ResourceID)
		if err != nil {
			return nil, err
		}
		fieldBM, err := s.fieldExact(id.FieldPath)
		if err != nil {
			return nil, err
		}
		bm.Or(roaring.And(resourceBM, fieldBM))
	}
	return bm, nil
}

// fieldExact is the ordinal set of paragraphs whose "field" value matches
// path exactly, the building block FieldSet pairs with a resource match.
func (s *Segment) fieldExact(path string) (*roaring.Bitmap, error) {
	q := bleve.NewMatchQuery(path)
	q.SetField("field")
	return s.matchOrdinals(q)
}
