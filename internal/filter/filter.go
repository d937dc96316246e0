// Package filter compiles a boolean predicate tree over labels, keywords,
// facets, fields, resources and date ranges into the two artifacts each
// index actually needs at search time: a paragraph-ordinal bitmap for the
// text segment's posting-list intersections, and a label-trie predicate for
// the vector segment's per-node check.
package filter

import (
	"time"

	"github.com/RoaringBitmap/roaring"

	"github.com/nidx/nidx/internal/vector"
)

// Expr is a node in a filter predicate tree.
type Expr interface{ isExpr() }

// Literal matches paragraphs/vectors carrying label as a prefix of one of
// their labels.
type Literal struct{ Label string }

// Keyword matches paragraphs containing text in their full-text index.
type Keyword struct{ Text string }

// Facet matches paragraphs tagged under a facet path.
type Facet struct{ Path string }

// FieldRef matches paragraphs belonging to a field of the given type, and
// optionally a specific field ID within that type.
type FieldRef struct{ Type, ID string }

// Resource matches every paragraph belonging to a resource.
type Resource struct{ ID string }

// DateRange matches paragraphs whose named date field falls within
// [Since, Until]. A nil bound is open on that side.
type DateRange struct {
	Field        string
	Since, Until *time.Time
}

// And requires every child to match. An empty And matches nothing.
type And []Expr

// Or requires at least one child to match. An empty Or matches nothing.
type Or []Expr

// Not inverts its child.
type Not struct{ Expr Expr }

func (Literal) isExpr()   {}
func (Keyword) isExpr()   {}
func (Facet) isExpr()     {}
func (FieldRef) isExpr()  {}
func (Resource) isExpr()  {}
func (DateRange) isExpr() {}
func (And) isExpr()       {}
func (Or) isExpr()        {}
func (Not) isExpr()       {}

// FieldID names one field of one resource, the unit a pre-filter pass
// resolves predicates down to.
type FieldID struct{ ResourceID, FieldPath string }

// Kind discriminates the three shapes a pre-filter pass can settle on.
type Kind int

const (
	// All means no pre-filterable predicate ruled anything out; every
	// field is a candidate.
	All Kind = iota
	// None means the pre-filterable predicates are jointly unsatisfiable;
	// no field can match and the search is skipped entirely.
	None
	// Some restricts candidates to the given field set.
	Some
)

// Result is what a pre-filter pass over the text index hands to query
// planning: either "everything", "nothing", or a concrete field set.
type Result struct {
	Kind   Kind
	Fields map[FieldID]struct{}
}

// AllResult builds the unrestricted result.
func AllResult() Result { return Result{Kind: All} }

// NoneResult builds the unsatisfiable result.
func NoneResult() Result { return Result{Kind: None} }

// SomeResult builds a result restricted to fields.
func SomeResult(fields []FieldID) Result {
	set := make(map[FieldID]struct{}, len(fields))
	for _, f := range fields {
		set[f] = struct{}{}
	}
	return Result{Kind: Some, Fields: set}
}

// Index resolves the non-label leaves of a filter tree to paragraph-ordinal
// bitmaps. The text segment's posting lists implement this; every method
// can fail since the text segment backs it with a live bleve query.
type Index interface {
	Keyword(text string) (*roaring.Bitmap, error)
	Facet(path string) (*roaring.Bitmap, error)
	Field(typ, id string) (*roaring.Bitmap, error)
	Resource(id string) (*roaring.Bitmap, error)
	DateRange(field string, since, until *time.Time) (*roaring.Bitmap, error)
	// FieldSet is the pre-filter's Some result folded into a bitmap: the
	// union, over every surviving (resource, field) pair, of the
	// paragraphs belonging to it.
	FieldSet(fields map[FieldID]struct{}) (*roaring.Bitmap, error)
}

// node is the result of compiling one subtree: a bitmap side (built from
// Keyword/Facet/FieldRef/Resource/DateRange leaves) and a label side (built
// from Literal leaves). hasBitmap/hasLabel record whether that side carries
// real information at all, since an And/Or fold must use the correct
// identity element (Universe/true for And, Empty/false for Or) for whichever
// side a given branch is silent on.
type node struct {
	bitmap   *roaring.Bitmap
	hasBitmap bool
	keep     vector.LabelKeeper
	hasLabel bool
}

// Compile evaluates expr bottom-up against idx and folds in pre, returning
// the paragraph-ordinal bitmap (for the text segment) and the label
// predicate (for the vector segment). universe is the full ordinal set for
// this segment, used to complement Not under the bitmap side. A Some pre
// restricts the returned bitmap to idx.FieldSet(pre.Fields) even when expr
// itself is nil, so a pre-filter-only request still narrows the search.
//
// A tree mixing label leaves and bitmap leaves under a shared Or is only an
// approximation: each side ignores the other's contribution in that branch,
// which can only widen the result, never narrow it past a true match. Pure
// label trees, pure bitmap trees, and any mix combined solely through And/Not
// are evaluated exactly.
func Compile(expr Expr, pre Result, idx Index, universe *roaring.Bitmap) (*roaring.Bitmap, vector.LabelKeeper, error) {
	if pre.Kind == None {
		return roaring.New(), func(*vector.LabelTrie) bool { return false }, nil
	}

	n, err := evalNode(expr, idx, universe)
	if err != nil {
		return nil, nil, err
	}

	bm := universe
	if pre.Kind == Some {
		bm, err = idx.FieldSet(pre.Fields)
		if err != nil {
			return nil, nil, err
		}
	}
	if n.hasBitmap {
		bm = roaring.And(bm, n.bitmap)
	} else {
		bm = bm.Clone()
	}

	keep := n.keep
	if !n.hasLabel {
		keep = func(*vector.LabelTrie) bool { return true }
	}
	return bm, keep, nil
}

func evalNode(e Expr, idx Index, universe *roaring.Bitmap) (node, error) {
	if e == nil {
		return node{}, nil
	}
	switch v := e.(type) {
	case Literal:
		label := v.Label
		return node{hasLabel: true, keep: func(t *vector.LabelTrie) bool { return t.HasPrefix(label) }}, nil
	case Keyword:
		bm, err := idx.Keyword(v.Text)
		return node{hasBitmap: true, bitmap: bm}, err
	case Facet:
		bm, err := idx.Facet(v.Path)
		return node{hasBitmap: true, bitmap: bm}, err
	case FieldRef:
		bm, err := idx.Field(v.Type, v.ID)
		return node{hasBitmap: true, bitmap: bm}, err
	case Resource:
		bm, err := idx.Resource(v.ID)
		return node{hasBitmap: true, bitmap: bm}, err
	case DateRange:
		bm, err := idx.DateRange(v.Field, v.Since, v.Until)
		return node{hasBitmap: true, bitmap: bm}, err
	case And:
		return evalAnd(v, idx, universe)
	case Or:
		return evalOr(v, idx, universe)
	case Not:
		return evalNot(v, idx, universe)
	default:
		return node{}, nil
	}
}

func evalAnd(children And, idx Index, universe *roaring.Bitmap) (node, error) {
	var bm *roaring.Bitmap
	hasBitmap := false
	var keeps []vector.LabelKeeper
	for _, c := range children {
		cn, err := evalNode(c, idx, universe)
		if err != nil {
			return node{}, err
		}
		if cn.hasBitmap {
			hasBitmap = true
			if bm == nil {
				bm = cn.bitmap.Clone()
			} else {
				bm.And(cn.bitmap)
			}
			if bm.IsEmpty() {
				break
			}
		}
		if cn.hasLabel {
			keeps = append(keeps, cn.keep)
		}
	}
	if len(children) == 0 {
		hasBitmap = true
		bm = roaring.New()
		keeps = []vector.LabelKeeper{func(*vector.LabelTrie) bool { return false }}
	}
	out := node{hasBitmap: hasBitmap, bitmap: bm}
	if len(keeps) > 0 {
		out.hasLabel = true
		out.keep = func(t *vector.LabelTrie) bool {
			for _, k := range keeps {
				if !k(t) {
					return false
				}
			}
			return true
		}
	}
	return out, nil
}

func evalOr(children Or, idx Index, universe *roaring.Bitmap) (node, error) {
	var bm *roaring.Bitmap
	hasBitmap := false
	var keeps []vector.LabelKeeper
	for _, c := range children {
		cn, err := evalNode(c, idx, universe)
		if err != nil {
			return node{}, err
		}
		if cn.hasBitmap {
			hasBitmap = true
			if bm == nil {
				bm = cn.bitmap.Clone()
			} else {
				bm.Or(cn.bitmap)
			}
		}
		if cn.hasLabel {
			keeps = append(keeps, cn.keep)
		}
	}
	if len(children) == 0 {
		hasBitmap = true
		bm = roaring.New()
		keeps = []vector.LabelKeeper{func(*vector.LabelTrie) bool { return false }}
	}
	out := node{hasBitmap: hasBitmap, bitmap: bm}
	if len(keeps) > 0 {
		out.hasLabel = true
		out.keep = func(t *vector.LabelTrie) bool {
			for _, k := range keeps {
				if k(t) {
					return true
				}
			}
			return false
		}
	}
	return out, nil
}

func evalNot(n Not, idx Index, universe *roaring.Bitmap) (node, error) {
	cn, err := evalNode(n.Expr, idx, universe)
	if err != nil {
		return node{}, err
	}
	out := node{}
	if cn.hasBitmap {
		out.hasBitmap = true
		out.bitmap = roaring.AndNot(universe, cn.bitmap)
	}
	if cn.hasLabel {
		out.hasLabel = true
		inner := cn.keep
		out.keep = func(t *vector.LabelTrie) bool { return !inner(t) }
	}
	return out, nil
}
