package relation

import (
	"errors"

	"github.com/RoaringBitmap/roaring"

	"github.com/nidx/nidx/internal/xerrors"
)

// ExprKind selects how an Expression combines its values.
type ExprKind int

const (
	ExprValue ExprKind = iota
	ExprNot
	ExprAnd
	ExprOr
)

// Expression is the flat And/Or/Not/Value DSL applied to a single path
// position (source, relation, or destination). And, Or and Not combine
// plain values directly; they do not nest further expressions, matching
// the translation rules below.
type Expression[T any] struct {
	Kind   ExprKind
	Values []T
}

func ValueExpr[T any](v T) Expression[T]   { return Expression[T]{Kind: ExprValue, Values: []T{v}} }
func NotExpr[T any](v T) Expression[T]     { return Expression[T]{Kind: ExprNot, Values: []T{v}} }
func AndExpr[T any](vs ...T) Expression[T] { return Expression[T]{Kind: ExprAnd, Values: vs} }
func OrExpr[T any](vs ...T) Expression[T]  { return Expression[T]{Kind: ExprOr, Values: vs} }

func anyNode() Expression[Node]         { return ValueExpr(Node{}) }
func anyRelation() Expression[Relation] { return ValueExpr(Relation{}) }

// NodeQueryKind selects which endpoint(s) a NodeQuery matches against.
type NodeQueryKind int

const (
	AsSource NodeQueryKind = iota
	AsDestination
	AsEither
)

// NodeQuery asks whether a node appears as a triple's source, destination,
// or either endpoint.
type NodeQuery struct {
	Kind NodeQueryKind
	Expr Expression[Node]
}

func (q NodeQuery) toPathQuery() PathQuery {
	switch q.Kind {
	case AsSource:
		return PathQuery{Source: q.Expr, Relation: anyRelation(), Destination: anyNode()}
	case AsDestination:
		return PathQuery{Source: anyNode(), Relation: anyRelation(), Destination: q.Expr}
	default:
		return PathQuery{Undirected: true, Source: q.Expr, Relation: anyRelation(), Destination: anyNode()}
	}
}

// RelationQuery matches against a triple's edge only.
type RelationQuery struct {
	Expr Expression[Relation]
}

func (q RelationQuery) toPathQuery() PathQuery {
	return PathQuery{Source: anyNode(), Relation: q.Expr, Destination: anyNode()}
}

// PathQuery is a full three-position query, (source)-[relation]->(dest).
// Undirected asks for the directed query evaluated in both orientations,
// unioned: (A)-[R]-(B) is (A)-[R]->(B) OR (B)-[R]->(A).
type PathQuery struct {
	Undirected  bool
	Source      Expression[Node]
	Relation    Expression[Relation]
	Destination Expression[Node]
}

// EvaluateNodeQuery returns the ordinals of triples matching q.
func (s *Segment) EvaluateNodeQuery(q NodeQuery) (*roaring.Bitmap, error) {
	return s.EvaluatePath(q.toPathQuery())
}

// EvaluateRelationQuery returns the ordinals of triples matching q.
func (s *Segment) EvaluateRelationQuery(q RelationQuery) (*roaring.Bitmap, error) {
	return s.EvaluatePath(q.toPathQuery())
}

// EvaluatePath returns the ordinals of triples matching q.
func (s *Segment) EvaluatePath(q PathQuery) (*roaring.Bitmap, error) {
	if q.Undirected {
		forward, err := s.evaluateDirected(q.Source, q.Relation, q.Destination)
		if err != nil {
			return nil, err
		}
		reverse, err := s.evaluateDirected(q.Destination, q.Relation, q.Source)
		if err != nil {
			return nil, err
		}
		return roaring.Or(forward, reverse), nil
	}
	return s.evaluateDirected(q.Source, q.Relation, q.Destination)
}

// evaluateDirected implements the translation rules: an And at any
// position is expanded into an intersection of directed sub-queries with
// the other two positions held fixed, since a single triple can never by
// itself satisfy a conjunction of distinct values at one position.
func (s *Segment) evaluateDirected(source Expression[Node], relation Expression[Relation], dest Expression[Node]) (*roaring.Bitmap, error) {
	switch {
	case source.Kind == ExprAnd:
		return intersectAcross(source.Values, func(v Node) (*roaring.Bitmap, error) {
			return s.evaluateDirected(ValueExpr(v), relation, dest)
		})
	case relation.Kind == ExprAnd:
		return intersectAcross(relation.Values, func(v Relation) (*roaring.Bitmap, error) {
			return s.evaluateDirected(source, ValueExpr(v), dest)
		})
	case dest.Kind == ExprAnd:
		return intersectAcross(dest.Values, func(v Node) (*roaring.Bitmap, error) {
			return s.evaluateDirected(source, relation, ValueExpr(v))
		})
	}

	srcSet, srcExclude, err := s.nodeOccurrence(source, roleSource)
	if err != nil {
		return nil, err
	}
	relSet, relExclude, err := s.relationOccurrence(relation)
	if err != nil {
		return nil, err
	}
	dstSet, dstExclude, err := s.nodeOccurrence(dest, roleDestination)
	if err != nil {
		return nil, err
	}

	result := s.all.Clone()
	for _, clause := range []struct {
		bitmap  *roaring.Bitmap
		exclude bool
	}{
		{srcSet, srcExclude},
		{relSet, relExclude},
		{dstSet, dstExclude},
	} {
		if clause.exclude {
			result.AndNot(clause.bitmap)
		} else {
			result.And(clause.bitmap)
		}
	}
	return result, nil
}

// intersectAcross evaluates eval for every item and intersects the
// results. Go methods cannot carry their own type parameters, so this is a
// free function rather than a method on Segment.
func intersectAcross[T any](items []T, eval func(T) (*roaring.Bitmap, error)) (*roaring.Bitmap, error) {
	var acc *roaring.Bitmap
	for _, v := range items {
		bm, err := eval(v)
		if err != nil {
			return nil, err
		}
		if acc == nil {
			acc = bm
		} else {
			acc.And(bm)
		}
	}
	if acc == nil {
		return roaring.New(), nil
	}
	return acc, nil
}

// nodeOccurrence resolves a node-position expression to a bitmap and
// whether it is a must-not clause. Not flips occurrence rather than
// nesting a negation, and must not appear wrapped inside a positive Must:
// an Or of Nots or an And of Nots has no single-clause occurrence to
// report and is rejected.
func (s *Segment) nodeOccurrence(expr Expression[Node], r role) (*roaring.Bitmap, bool, error) {
	switch expr.Kind {
	case ExprValue:
		bm, err := s.nodeBitmap(r, expr.Values[0])
		return bm, false, err
	case ExprNot:
		bm, err := s.nodeBitmap(r, expr.Values[0])
		return bm, true, err
	case ExprOr:
		acc := roaring.New()
		for _, v := range expr.Values {
			bm, err := s.nodeBitmap(r, v)
			if err != nil {
				return nil, false, err
			}
			acc.Or(bm)
		}
		return acc, false, nil
	default:
		return nil, false, xerrors.Mark(xerrors.InvalidRequest, errors.New("and expression must be expanded before reaching a leaf position"), "relation query")
	}
}

func (s *Segment) relationOccurrence(expr Expression[Relation]) (*roaring.Bitmap, bool, error) {
	switch expr.Kind {
	case ExprValue:
		bm, err := s.relationBitmap(expr.Values[0])
		return bm, false, err
	case ExprNot:
		bm, err := s.relationBitmap(expr.Values[0])
		return bm, true, err
	case ExprOr:
		acc := roaring.New()
		for _, v := range expr.Values {
			bm, err := s.relationBitmap(v)
			if err != nil {
				return nil, false, err
			}
			acc.Or(bm)
		}
		return acc, false, nil
	default:
		return nil, false, xerrors.Mark(xerrors.InvalidRequest, errors.New("and expression must be expanded before reaching a leaf position"), "relation query")
	}
}
