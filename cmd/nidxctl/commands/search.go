package commands

import (
	"context"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/nidx/nidx/internal/query"
	"github.com/nidx/nidx/internal/relation"
	"github.com/nidx/nidx/internal/search"
)

var searchFlags struct {
	query        string
	embedding    string
	vector       bool
	paragraph    bool
	text         bool
	top          int
	page         int
	minScoreBM25 float64
	minScoreVec  float64

	relSource string
	relLabel  string
	relTarget string
	relation  bool
}

var searchCmd = &cobra.Command{
	Use:   "search <id>",
	Short: "Run a query.Request against a shard and print the matches",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := openManager().Get(args[0])
		if err != nil {
			return fail("open shard: %w", err)
		}

		req := query.Request{
			Query:         searchFlags.query,
			WantParagraph: searchFlags.paragraph,
			WantText:      searchFlags.text,
			Page:          searchFlags.page,
			ResultPerPage: searchFlags.top,
			MinScoreBM25:  searchFlags.minScoreBM25,
		}

		if searchFlags.vector {
			embedding, err := parseEmbedding(searchFlags.embedding)
			if err != nil {
				return err
			}
			req.WantVector = true
			req.Embedding = embedding
			req.MinScoreSemantic = searchFlags.minScoreVec
		}

		if searchFlags.relation {
			path := relationPathQuery()
			req.RelationQuery = &path
		}

		resp, err := s.Search(context.Background(), req, search.DefaultMaxParallel)
		if err != nil {
			return fail("search: %w", err)
		}
		return printJSON(resp)
	},
}

func init() {
	f := searchCmd.Flags()
	f.StringVar(&searchFlags.query, "query", "", "query text for paragraph/text search")
	f.BoolVar(&searchFlags.paragraph, "paragraph", false, "search the paragraph index")
	f.BoolVar(&searchFlags.text, "text", false, "search the full-document text index")
	f.Float64Var(&searchFlags.minScoreBM25, "min-score-bm25", 0, "minimum BM25 score")
	f.BoolVar(&searchFlags.vector, "vector", false, "search the vector index")
	f.StringVar(&searchFlags.embedding, "embedding", "", "comma-separated query vector, e.g. 0.1,0.2,0.3")
	f.Float64Var(&searchFlags.minScoreVec, "min-score-vector", 0, "minimum vector similarity score")
	f.IntVar(&searchFlags.top, "top", 10, "result page size")
	f.IntVar(&searchFlags.page, "page", 0, "result page number")
	f.BoolVar(&searchFlags.relation, "relation", false, "search the relation index")
	f.StringVar(&searchFlags.relSource, "rel-source", "", "exact match on a triple's source value; empty matches any")
	f.StringVar(&searchFlags.relLabel, "rel-label", "", "exact match on a triple's relation label; empty matches any")
	f.StringVar(&searchFlags.relTarget, "rel-target", "", "exact match on a triple's target value; empty matches any")
}

func parseEmbedding(s string) ([]float32, error) {
	if s == "" {
		return nil, fail("--vector requires --embedding")
	}
	parts := strings.Split(s, ",")
	out := make([]float32, len(parts))
	for i, p := range parts {
		v, err := strconv.ParseFloat(strings.TrimSpace(p), 32)
		if err != nil {
			return nil, fail("parse embedding component %q: %w", p, err)
		}
		out[i] = float32(v)
	}
	return out, nil
}

// relationPathQuery builds a path query from the --rel-* flags. A blank
// flag matches any value at that position, the same zero-Value-matches-
// anything rule the relation package documents for Node/Relation.
func relationPathQuery() relation.PathQuery {
	source := relation.Node{}
	if searchFlags.relSource != "" {
		t := relation.Exact(searchFlags.relSource)
		source.Value = &t
	}
	rel := relation.Relation{}
	if searchFlags.relLabel != "" {
		t := relation.Exact(searchFlags.relLabel)
		rel.Value = &t
	}
	dest := relation.Node{}
	if searchFlags.relTarget != "" {
		t := relation.Exact(searchFlags.relTarget)
		dest.Value = &t
	}
	return relation.PathQuery{
		Source:      relation.ValueExpr(source),
		Relation:    relation.ValueExpr(rel),
		Destination: relation.ValueExpr(dest),
	}
}
