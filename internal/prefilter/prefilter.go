// Package prefilter evaluates a filter expression and a security predicate
// against the paragraph/text index, producing the field-id set a query
// plan rewrites its per-index sub-requests against. It never loads actual
// search results — only which (resource, field) pairs could possibly
// match.
package prefilter

import (
	"time"

	"github.com/RoaringBitmap/roaring"

	"github.com/nidx/nidx/internal/filter"
	"github.com/nidx/nidx/internal/text"
)

// Index is the subset of *text.Segment this evaluator needs; narrowed to
// an interface so it can be tested without a real bleve index.
type Index interface {
	LabelBitmap(prefix string) (*roaring.Bitmap, error)
	KeywordBitmap(term string) (*roaring.Bitmap, error)
	FacetBitmap(path string) (*roaring.Bitmap, error)
	FieldBitmap(typ, id string) (*roaring.Bitmap, error)
	ResourceBitmap(id string) (*roaring.Bitmap, error)
	DateRangeBitmap(field string, since, until *time.Time) (*roaring.Bitmap, error)
	FieldRefs(ordinals *roaring.Bitmap) ([]text.FieldRef, error)
	AllOrdinals() (*roaring.Bitmap, error)
}

// Evaluate resolves expr (possibly nil) and security (an OR of required
// access-label prefixes, possibly empty) into a filter.Result. A nil expr
// with no security predicate is trivially universal.
func Evaluate(idx Index, expr filter.Expr, security []string) (filter.Result, error) {
	if expr == nil && len(security) == 0 {
		return filter.AllResult(), nil
	}

	bm, hasBitmap, err := evalNode(idx, expr)
	if err != nil {
		return filter.Result{}, err
	}

	if len(security) > 0 {
		secBitmap := roaring.New()
		for _, label := range security {
			lb, err := idx.LabelBitmap(label)
			if err != nil {
				return filter.Result{}, err
			}
			secBitmap.Or(lb)
		}
		if hasBitmap {
			bm.And(secBitmap)
		} else {
			bm = secBitmap
			hasBitmap = true
		}
	}

	if !hasBitmap {
		return filter.AllResult(), nil
	}
	if bm.IsEmpty() {
		return filter.NoneResult(), nil
	}

	refs, err := idx.FieldRefs(bm)
	if err != nil {
		return filter.Result{}, err
	}
	fields := make([]filter.FieldID, len(refs))
	for i, r := range refs {
		fields[i] = filter.FieldID{ResourceID: r.ResourceID, FieldPath: r.FieldPath}
	}
	return filter.SomeResult(fields), nil
}

// evalNode folds expr bottom-up into a single ordinal bitmap. Unlike the
// vector filter engine, every leaf kind here — including Literal — is a
// plain bitmap lookup, since the paragraph index stores labels directly on
// each document rather than as a trie consulted per-candidate.
func evalNode(idx Index, expr filter.Expr) (*roaring.Bitmap, bool, error) {
	if expr == nil {
		return nil, false, nil
	}
	switch v := expr.(type) {
	case filter.Literal:
		bm, err := idx.LabelBitmap(v.Label)
		return bm, true, err
	case filter.Keyword:
		bm, err := idx.KeywordBitmap(v.Text)
		return bm, true, err
	case filter.Facet:
		bm, err := idx.FacetBitmap(v.Path)
		return bm, true, err
	case filter.FieldRef:
		bm, err := idx.FieldBitmap(v.Type, v.ID)
		return bm, true, err
	case filter.Resource:
		bm, err := idx.ResourceBitmap(v.ID)
		return bm, true, err
	case filter.DateRange:
		bm, err := idx.DateRangeBitmap(v.Field, v.Since, v.Until)
		return bm, true, err
	case filter.And:
		return evalAnd(idx, v)
	case filter.Or:
		return evalOr(idx, v)
	case filter.Not:
		return evalNotExpr(idx, v)
	default:
		return nil, false, nil
	}
}

func evalNotExpr(idx Index, n filter.Not) (*roaring.Bitmap, bool, error) {
	inner, has, err := evalNode(idx, n.Expr)
	if err != nil {
		return nil, false, err
	}
	if !has {
		return nil, false, nil
	}
	universe, err := idx.AllOrdinals()
	if err != nil {
		return nil, false, err
	}
	return roaring.AndNot(universe, inner), true, nil
}

func evalAnd(idx Index, children filter.And) (*roaring.Bitmap, bool, error) {
	var bm *roaring.Bitmap
	has := false
	for _, c := range children {
		cbm, chas, err := evalNode(idx, c)
		if err != nil {
			return nil, false, err
		}
		if !chas {
			continue
		}
		has = true
		if bm == nil {
			bm = cbm.Clone()
		} else {
			bm.And(cbm)
		}
		if bm.IsEmpty() {
			break
		}
	}
	if len(children) == 0 {
		return roaring.New(), true, nil
	}
	return bm, has, nil
}

func evalOr(idx Index, children filter.Or) (*roaring.Bitmap, bool, error) {
	var bm *roaring.Bitmap
	has := false
	for _, c := range children {
		cbm, chas, err := evalNode(idx, c)
		if err != nil {
			return nil, false, err
		}
		if !chas {
			continue
		}
		has = true
		if bm == nil {
			bm = cbm.Clone()
		} else {
			bm.Or(cbm)
		}
	}
	if len(children) == 0 {
		return roaring.New(), true, nil
	}
	return bm, has, nil
}
