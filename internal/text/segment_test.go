package text

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/RoaringBitmap/roaring"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleParagraphs() []Paragraph {
	now := time.Now()
	return []Paragraph{
		{ResourceID: "r1", Field: "title", Start: 0, End: 10, ParagraphID: "r1/title/0-10", Labels: []string{"/n/i/en"}, Text: "the quick brown fox", Created: now},
		{ResourceID: "r2", Field: "title", Start: 0, End: 12, ParagraphID: "r2/title/0-12", Labels: []string{"/n/i/es"}, Text: "el zorro rapido", Created: now.Add(time.Minute)},
		{ResourceID: "r3", Field: "body", Start: 0, End: 20, ParagraphID: "r3/body/0-20", Labels: []string{"/n/i/en"}, Text: "lorem ipsum dolor", Created: now.Add(2 * time.Minute)},
	}
}

func TestSearchFindsExactMatch(t *testing.T) {
	seg, err := Create(filepath.Join(t.TempDir(), "s1"), sampleParagraphs())
	require.NoError(t, err)
	defer seg.Close()

	resp, err := seg.Search(SearchRequest{Query: "quick", PageSize: 10})
	require.NoError(t, err)
	require.Len(t, resp.Results, 1)
	assert.Equal(t, "r1", resp.Results[0].UUID)
	assert.Equal(t, 0, int(resp.FuzzyDistance))
}

func TestSearchFallsBackToFuzzyOnNoExactMatch(t *testing.T) {
	seg, err := Create(filepath.Join(t.TempDir(), "s1"), sampleParagraphs())
	require.NoError(t, err)
	defer seg.Close()

	resp, err := seg.Search(SearchRequest{Query: "quik", PageSize: 10})
	require.NoError(t, err)
	assert.Equal(t, FuzzyDistance, resp.FuzzyDistance)
}

func TestSearchDoesNotFuzzyFallbackWhenMinScoreSet(t *testing.T) {
	seg, err := Create(filepath.Join(t.TempDir(), "s1"), sampleParagraphs())
	require.NoError(t, err)
	defer seg.Close()

	resp, err := seg.Search(SearchRequest{Query: "quik", PageSize: 10, MinScore: 0.1})
	require.NoError(t, err)
	assert.Empty(t, resp.Results)
	assert.Equal(t, 0, resp.FuzzyDistance)
}

func TestSearchRestrictsToOrdinalBitmap(t *testing.T) {
	seg, err := Create(filepath.Join(t.TempDir(), "s1"), sampleParagraphs())
	require.NoError(t, err)
	defer seg.Close()

	bm := roaring.New()
	bm.Add(2)
	resp, err := seg.Search(SearchRequest{Query: "lorem", Ordinals: bm, PageSize: 10})
	require.NoError(t, err)
	require.Len(t, resp.Results, 1)
	assert.Equal(t, "r3", resp.Results[0].UUID)
}

func TestSearchFiltersByLabelPrefix(t *testing.T) {
	seg, err := Create(filepath.Join(t.TempDir(), "s1"), sampleParagraphs())
	require.NoError(t, err)
	defer seg.Close()

	resp, err := seg.Search(SearchRequest{LabelPrefixes: []string{"/n/i/es"}, PageSize: 10})
	require.NoError(t, err)
	require.Len(t, resp.Results, 1)
	assert.Equal(t, "r2", resp.Results[0].UUID)
}

func TestBoosterStabilizesOrderAcrossPage(t *testing.T) {
	seg, err := Create(filepath.Join(t.TempDir(), "s1"), sampleParagraphs())
	require.NoError(t, err)
	defer seg.Close()

	resp, err := seg.Search(SearchRequest{PageSize: 10})
	require.NoError(t, err)
	require.Len(t, resp.Results, 3)
	for i, r := range resp.Results {
		assert.Equal(t, float64(len(resp.Results)-i), r.Score.Booster)
	}
}

func TestStreamVisitsEveryParagraphOnce(t *testing.T) {
	seg, err := Create(filepath.Join(t.TempDir(), "s1"), sampleParagraphs())
	require.NoError(t, err)
	defer seg.Close()

	seen := map[string]bool{}
	err = seg.Stream(func(item StreamItem) bool {
		seen[item.Result.UUID] = true
		return true
	})
	require.NoError(t, err)
	assert.Len(t, seen, 3)
}

func TestSuggestCapsAtLimit(t *testing.T) {
	seg, err := Create(filepath.Join(t.TempDir(), "s1"), sampleParagraphs())
	require.NoError(t, err)
	defer seg.Close()

	resp, err := seg.Suggest("fox")
	require.NoError(t, err)
	assert.LessOrEqual(t, len(resp.Results), SuggestLimit)
}

func TestOpenReopensCreatedSegment(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "s1")
	seg, err := Create(dir, sampleParagraphs())
	require.NoError(t, err)
	require.NoError(t, seg.Close())

	reopened, err := Open(dir)
	require.NoError(t, err)
	defer reopened.Close()

	resp, err := reopened.Search(SearchRequest{Query: "quick", PageSize: 10})
	require.NoError(t, err)
	assert.Len(t, resp.Results, 1)
}
