package text

import (
	"time"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/mapping"
)

// Paragraph is one unit of indexed text: a span of a resource's field,
// carrying the labels and facets it was tagged with at ingest time.
type Paragraph struct {
	ResourceID  string            `json:"resource_id"`
	Field       string            `json:"field"`
	Start       int               `json:"start"`
	End         int               `json:"end"`
	ParagraphID string            `json:"paragraph_id"`
	Labels      []string          `json:"labels"`
	Facets      []string          `json:"facets"`
	Text        string            `json:"text"`
	Created     time.Time         `json:"created"`
	Modified    time.Time         `json:"modified"`
	Metadata    map[string]string `json:"metadata"`
}

func buildMapping() mapping.IndexMapping {
	im := bleve.NewIndexMapping()
	im.DefaultAnalyzer = "standard"

	keyword := bleve.NewTextFieldMapping()
	keyword.Analyzer = "keyword"

	text := bleve.NewTextFieldMapping()
	text.Analyzer = "standard"

	date := bleve.NewDateTimeFieldMapping()

	num := bleve.NewNumericFieldMapping()
	num.Index = true

	doc := bleve.NewDocumentMapping()
	doc.AddFieldMappingsAt("resource_id", keyword)
	doc.AddFieldMappingsAt("field", keyword)
	doc.AddFieldMappingsAt("paragraph_id", keyword)
	doc.AddFieldMappingsAt("labels", keyword)
	doc.AddFieldMappingsAt("facets", keyword)
	doc.AddFieldMappingsAt("text", text)
	doc.AddFieldMappingsAt("created", date)
	doc.AddFieldMappingsAt("modified", date)
	doc.AddFieldMappingsAt("start", num)
	doc.AddFieldMappingsAt("end", num)

	metadataDoc := bleve.NewDocumentMapping()
	metadataDoc.Dynamic = false
	doc.AddSubDocumentMapping("metadata", metadataDoc)

	im.AddDocumentMapping("paragraph", doc)
	im.DefaultMapping = doc
	return im
}
