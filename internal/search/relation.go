package search

import (
	"context"

	"golang.org/x/sync/errgroup"

	"github.com/nidx/nidx/internal/query"
	"github.com/nidx/nidx/internal/relation"
)

type relationPartial struct {
	triples []relation.Triple
}

func runRelation(ctx context.Context, req *query.RelationRequest, idx RelationIndex, maxParallel int) *RelationOutcome {
	partials := make([]relationPartial, len(idx.Cut.Segments))
	g, _ := errgroup.WithContext(ctx)
	sem := make(chan struct{}, maxParallel)
	for i, ref := range idx.Cut.Segments {
		i, ref := i, ref
		g.Go(func() error {
			sem <- struct{}{}
			defer func() { <-sem }()

			seg, release, err := idx.Opener.Open(ref.ID)
			if err != nil {
				return err
			}
			defer release()

			bm, err := seg.EvaluatePath(req.Query)
			if err != nil {
				return err
			}

			deleted := idx.Cut.ForSegment(ref.OpenStamp)
			triples := make([]relation.Triple, 0, bm.GetCardinality())
			it := bm.Iterator()
			for it.HasNext() {
				tr, err := seg.Triple(it.Next())
				if err != nil {
					continue
				}
				key := []byte(tr.SourceValue + "/" + tr.Label + "/" + tr.TargetValue)
				if deleted != nil && deleted.IsDeleted(key) {
					continue
				}
				triples = append(triples, tr)
			}
			partials[i] = relationPartial{triples: triples}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return &RelationOutcome{Err: err}
	}

	seen := map[relation.Triple]bool{}
	var out []relation.Triple
	for _, p := range partials {
		for _, t := range p.triples {
			if seen[t] {
				continue
			}
			seen[t] = true
			out = append(out, t)
		}
	}
	return &RelationOutcome{Triples: out}
}
