// Package text implements the paragraph/text segment: a bleve-backed
// inverted index over paragraph spans, supporting BM25 search with facet
// counts and a fuzzy fallback, a paginated stream for full scans, and a
// suggest endpoint.
package text

import (
	"fmt"
	"sort"
	"strconv"

	"github.com/RoaringBitmap/roaring"
	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/search"
	bleveQuery "github.com/blevesearch/bleve/v2/search/query"

	"github.com/nidx/nidx/internal/xerrors"
)

// FuzzyDistance is the edit distance used for the exact-then-fuzzy fallback
// and for suggest's second pass.
const FuzzyDistance = 2

// SuggestLimit caps how many hits suggest returns.
const SuggestLimit = 20

// StreamBatchSize is how many items one Stream page yields.
const StreamBatchSize = 1000

// Segment is one immutable paragraph index. Paragraphs are assigned a
// stable ordinal at Create time (their position in the input slice); that
// ordinal is also the bleve document ID, zero-padded so lexical and numeric
// order agree, which lets a paragraph-ordinal bitmap from the filter engine
// restrict a search via a plain doc-ID query.
type Segment struct {
	dir   string
	index bleve.Index
}

func ordinalID(ordinal int) string { return fmt.Sprintf("%020d", ordinal) }

func parseOrdinalID(id string) (int, error) {
	return strconv.Atoi(id)
}

// Create builds a new paragraph segment from paragraphs, in order.
func Create(dir string, paragraphs []Paragraph) (*Segment, error) {
	idx, err := bleve.New(dir, buildMapping())
	if err != nil {
		return nil, xerrors.Mark(xerrors.IO, err, "create paragraph index")
	}

	batch := idx.NewBatch()
	for ordinal, p := range paragraphs {
		if err := batch.Index(ordinalID(ordinal), p); err != nil {
			idx.Close()
			return nil, xerrors.Mark(xerrors.Internal, err, "stage paragraph")
		}
	}
	if err := idx.Batch(batch); err != nil {
		idx.Close()
		return nil, xerrors.Mark(xerrors.IO, err, "commit paragraph batch")
	}
	return &Segment{dir: dir, index: idx}, nil
}

// Open reopens a paragraph segment previously written by Create.
func Open(dir string) (*Segment, error) {
	idx, err := bleve.Open(dir)
	if err != nil {
		return nil, xerrors.Mark(xerrors.SegmentCorrupt, err, "open paragraph index")
	}
	return &Segment{dir: dir, index: idx}, nil
}

// Close releases the underlying index handle.
func (s *Segment) Close() error { return s.index.Close() }

// Order picks the field a search is sorted by.
type Order int

const (
	// OrderByScore sorts by BM25 relevance, descending.
	OrderByScore Order = iota
	OrderByCreated
	OrderByModified
)

// SearchRequest is one paragraph search.
type SearchRequest struct {
	Query         string
	LabelPrefixes []string
	FacetPaths    []string
	Ordinals      *roaring.Bitmap // restricts candidates; nil means unrestricted
	MinScore      float64
	Order         Order
	Descending    bool
	Page          int
	PageSize      int
	FacetFields   []string
	OnlyFaceted   bool
}

// Score carries both the raw BM25 relevance and the position-stabilizing
// booster.
type Score struct {
	BM25    float64
	Booster float64
}

// Result is one matched paragraph.
type Result struct {
	UUID        string
	Field       string
	Start, End  int
	ParagraphID string
	Labels      []string
	Score       Score
	MatchedText string
	Metadata    map[string]string
}

// Response is a page of paragraph search results.
type Response struct {
	Results       []Result
	Facets        map[string]map[string]int64
	NextPage      bool
	FuzzyDistance int
}

func (s *Segment) buildQuery(req SearchRequest, fuzzy bool) bleveQuery.Query {
	var clauses []bleveQuery.Query
	if req.Query != "" {
		if fuzzy {
			fq := bleve.NewFuzzyQuery(req.Query)
			fq.SetField("text")
			fq.SetFuzziness(FuzzyDistance)
			clauses = append(clauses, fq)
		} else {
			mq := bleve.NewMatchQuery(req.Query)
			mq.SetField("text")
			clauses = append(clauses, mq)
		}
	} else {
		clauses = append(clauses, bleve.NewMatchAllQuery())
	}
	for _, prefix := range req.LabelPrefixes {
		pq := bleve.NewPrefixQuery(prefix)
		pq.SetField("labels")
		clauses = append(clauses, pq)
	}
	for _, facet := range req.FacetPaths {
		pq := bleve.NewPrefixQuery(facet)
		pq.SetField("facets")
		clauses = append(clauses, pq)
	}
	if req.Ordinals != nil {
		ids := make([]string, 0, req.Ordinals.GetCardinality())
		it := req.Ordinals.Iterator()
		for it.HasNext() {
			ids = append(ids, ordinalID(int(it.Next())))
		}
		clauses = append(clauses, bleve.NewDocIDQuery(ids))
	}
	if len(clauses) == 1 {
		return clauses[0]
	}
	return bleve.NewConjunctionQuery(clauses...)
}

func (s *Segment) runSearch(req SearchRequest, fuzzy bool) (*search.Result, error) {
	pageSize := req.PageSize
	if req.OnlyFaceted {
		pageSize = 0
	}
	bq := bleve.NewSearchRequestOptions(s.buildQuery(req, fuzzy), pageSize, req.Page*req.PageSize, false)
	bq.Fields = []string{"*"}

	switch req.Order {
	case OrderByCreated:
		if req.Descending {
			bq.SortBy([]string{"-created"})
		} else {
			bq.SortBy([]string{"created"})
		}
	case OrderByModified:
		if req.Descending {
			bq.SortBy([]string{"-modified"})
		} else {
			bq.SortBy([]string{"modified"})
		}
	}

	for _, field := range req.FacetFields {
		bq.AddFacet(field, bleve.NewFacetRequest(field, 100))
	}

	res, err := s.index.Search(bq)
	if err != nil {
		return nil, xerrors.Mark(xerrors.Internal, err, "paragraph search")
	}
	return res, nil
}

// Search runs req, applying the exact-then-fuzzy fallback documented for
// this index: if an exact match returns nothing and min_score is zero, the
// same request is retried with a fuzzy query before giving up.
func (s *Segment) Search(req SearchRequest) (*Response, error) {
	res, err := s.runSearch(req, false)
	if err != nil {
		return nil, err
	}

	fuzzyDistance := 0
	if len(res.Hits) == 0 && req.Query != "" && req.MinScore == 0 {
		fuzzyRes, err := s.runSearch(req, true)
		if err != nil {
			return nil, err
		}
		res = fuzzyRes
		fuzzyDistance = FuzzyDistance
	}

	return s.toResponse(res, req.MinScore, fuzzyDistance)
}

func (s *Segment) toResponse(res *search.Result, minScore float64, fuzzyDistance int) (*Response, error) {
	total := float64(len(res.Hits))
	out := &Response{NextPage: true, FuzzyDistance: fuzzyDistance}

	for i, hit := range res.Hits {
		if hit.Score < minScore {
			out.NextPage = false
			break
		}
		out.Results = append(out.Results, Result{
			UUID:        fieldString(hit.Fields, "resource_id"),
			Field:       fieldString(hit.Fields, "field"),
			Start:       fieldInt(hit.Fields, "start"),
			End:         fieldInt(hit.Fields, "end"),
			ParagraphID: fieldString(hit.Fields, "paragraph_id"),
			Labels:      fieldStringSlice(hit.Fields, "labels"),
			Score:       Score{BM25: hit.Score, Booster: total - float64(i)},
			MatchedText: fieldString(hit.Fields, "text"),
			Metadata:    fieldStringMap(hit.Fields, "metadata"),
		})
	}

	if len(res.Facets) > 0 {
		out.Facets = map[string]map[string]int64{}
		for name, facet := range res.Facets {
			counts := map[string]int64{}
			for _, term := range facet.Terms.Terms() {
				counts[term.Term] = int64(term.Count)
			}
			out.Facets[name] = counts
		}
	}
	return out, nil
}

// Suggest returns up to SuggestLimit paragraph matches for prefix-style
// completion: exact first, fuzzy only if exact found nothing.
func (s *Segment) Suggest(text string) (*Response, error) {
	req := SearchRequest{Query: text, PageSize: SuggestLimit}
	res, err := s.runSearch(req, false)
	if err != nil {
		return nil, err
	}
	fuzzyDistance := 0
	if len(res.Hits) == 0 {
		fuzzyRes, err := s.runSearch(req, true)
		if err != nil {
			return nil, err
		}
		res = fuzzyRes
		fuzzyDistance = FuzzyDistance
	}
	return s.toResponse(res, 0, fuzzyDistance)
}

// StreamItem is one paragraph yielded by Stream.
type StreamItem struct {
	Ordinal int
	Result  Result
}

// Stream performs a paginated full scan in batches of StreamBatchSize,
// invoking yield for every item in ordinal order. Stream stops early if
// yield returns false.
func (s *Segment) Stream(yield func(StreamItem) bool) error {
	count, err := s.index.DocCount()
	if err != nil {
		return xerrors.Mark(xerrors.Internal, err, "count paragraphs")
	}

	for offset := uint64(0); offset < count; offset += StreamBatchSize {
		bq := bleve.NewSearchRequestOptions(bleve.NewMatchAllQuery(), StreamBatchSize, int(offset), false)
		bq.Fields = []string{"*"}
		bq.SortBy([]string{"_id"})
		res, err := s.index.Search(bq)
		if err != nil {
			return xerrors.Mark(xerrors.Internal, err, "stream paragraphs")
		}
		for _, hit := range res.Hits {
			ordinal, err := parseOrdinalID(hit.ID)
			if err != nil {
				continue
			}
			item := StreamItem{
				Ordinal: ordinal,
				Result: Result{
					UUID:        fieldString(hit.Fields, "resource_id"),
					Field:       fieldString(hit.Fields, "field"),
					Start:       fieldInt(hit.Fields, "start"),
					End:         fieldInt(hit.Fields, "end"),
					ParagraphID: fieldString(hit.Fields, "paragraph_id"),
					Labels:      fieldStringSlice(hit.Fields, "labels"),
					MatchedText: fieldString(hit.Fields, "text"),
					Metadata:    fieldStringMap(hit.Fields, "metadata"),
				},
			}
			if !yield(item) {
				return nil
			}
		}
		if len(res.Hits) == 0 {
			break
		}
	}
	return nil
}

// AllParagraphs does a full scan like Stream and rebuilds each Paragraph a
// merge feeds back into Create from the fields Stream's Result carries.
// Facets and the Created/Modified timestamps are not in that Result, so they
// come back empty.
func (s *Segment) AllParagraphs() ([]Paragraph, error) {
	var out []Paragraph
	err := s.Stream(func(item StreamItem) bool {
		out = append(out, Paragraph{
			ResourceID:  item.Result.UUID,
			Field:       item.Result.Field,
			Start:       item.Result.Start,
			End:         item.Result.End,
			ParagraphID: item.Result.ParagraphID,
			Labels:      item.Result.Labels,
			Text:        item.Result.MatchedText,
			Metadata:    item.Result.Metadata,
		})
		return true
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func fieldString(fields map[string]interface{}, name string) string {
	v, ok := fields[name]
	if !ok {
		return ""
	}
	s, _ := v.(string)
	return s
}

func fieldInt(fields map[string]interface{}, name string) int {
	v, ok := fields[name]
	if !ok {
		return 0
	}
	switch n := v.(type) {
	case float64:
		return int(n)
	case int:
		return n
	default:
		return 0
	}
}

func fieldStringSlice(fields map[string]interface{}, name string) []string {
	v, ok := fields[name]
	if !ok {
		return nil
	}
	switch vv := v.(type) {
	case []interface{}:
		out := make([]string, 0, len(vv))
		for _, e := range vv {
			if s, ok := e.(string); ok {
				out = append(out, s)
			}
		}
		sort.Strings(out)
		return out
	case string:
		return []string{vv}
	default:
		return nil
	}
}

func fieldStringMap(fields map[string]interface{}, prefix string) map[string]string {
	out := map[string]string{}
	p := prefix + "."
	for k, v := range fields {
		if len(k) > len(p) && k[:len(p)] == p {
			if s, ok := v.(string); ok {
				out[k[len(p):]] = s
			}
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}
