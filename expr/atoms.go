package expr

import "fmt"

// FieldSet is an insertion-ordered set of grid fields keyed by base name.
// The iteration order is first-seen order, which keeps generated argument
// lists byte-stable across runs.
type FieldSet struct {
	order []*Field
	index map[string]int
}

// NewFieldSet returns an empty set.
func NewFieldSet() *FieldSet {
	return &FieldSet{index: make(map[string]int)}
}

// Add inserts f if no field with the same base name is present.
func (s *FieldSet) Add(f *Field) {
	if _, ok := s.index[f.Name]; ok {
		return
	}
	s.index[f.Name] = len(s.order)
	s.order = append(s.order, f)
}

// Has reports whether a field with the given base name is present.
func (s *FieldSet) Has(name string) bool {
	_, ok := s.index[name]
	return ok
}

// Len returns the number of fields in the set.
func (s *FieldSet) Len() int {
	return len(s.order)
}

// Fields returns the fields in first-seen order.
func (s *FieldSet) Fields() []*Field {
	out := make([]*Field, len(s.order))
	copy(out, s.order)
	return out
}

// Union returns a new set holding this set's fields followed by those of
// other not already present.
func (s *FieldSet) Union(other *FieldSet) *FieldSet {
	out := NewFieldSet()
	for _, f := range s.order {
		out.Add(f)
	}
	for _, f := range other.order {
		out.Add(f)
	}
	return out
}

// Intersect returns the fields of this set that other also contains,
// keeping this set's order.
func (s *FieldSet) Intersect(other *FieldSet) *FieldSet {
	out := NewFieldSet()
	for _, f := range s.order {
		if other.Has(f.Name) {
			out.Add(f)
		}
	}
	return out
}

// Difference returns the fields of this set that other does not contain,
// keeping this set's order.
func (s *FieldSet) Difference(other *FieldSet) *FieldSet {
	out := NewFieldSet()
	for _, f := range s.order {
		if !other.Has(f.Name) {
			out.Add(f)
		}
	}
	return out
}

// AccessesOf returns every field access in e, in order of appearance.
// Duplicate accesses are kept; callers dedupe on the derived offsets.
func AccessesOf(e Expr) []*Access {
	var out []*Access
	Walk(e, func(n Expr) {
		if a, ok := n.(*Access); ok {
			out = append(out, a)
		}
	})
	return out
}

// FieldsOf collects the distinct field bases referenced in e.
func FieldsOf(e Expr) *FieldSet {
	s := NewFieldSet()
	Walk(e, func(n Expr) {
		if a, ok := n.(*Access); ok {
			s.Add(a.Base)
		}
	})
	return s
}

// ConstantsOf collects the named scalar constants in e, first-seen order.
func ConstantsOf(e Expr) []Constant {
	seen := make(map[string]bool)
	var out []Constant
	Walk(e, func(n Expr) {
		if c, ok := n.(Constant); ok && !seen[c.Name] {
			seen[c.Name] = true
			out = append(out, c)
		}
	})
	return out
}

// IndexedConstantsOf collects the indexed constant accesses in e, deduplicated
// by constant name, first-seen order.
func IndexedConstantsOf(e Expr) []ConstIndexed {
	seen := make(map[string]bool)
	var out []ConstIndexed
	Walk(e, func(n Expr) {
		if c, ok := n.(ConstIndexed); ok && !seen[c.Name] {
			seen[c.Name] = true
			out = append(out, c)
		}
	})
	return out
}

// RationalsOf collects the true non-integer rationals in e. Integer literals
// are Rationals too in this representation and are excluded here.
func RationalsOf(e Expr) []Rational {
	seen := make(map[Rational]bool)
	var out []Rational
	Walk(e, func(n Expr) {
		if r, ok := n.(Rational); ok && !r.IsInt() && !seen[r] {
			seen[r] = true
			out = append(out, r)
		}
	})
	return out
}

// InversePowersOf collects the negative-power sub-expressions whose base is
// free of field accesses, i.e. candidates for precomputed inverse constants.
func InversePowersOf(e Expr) []Pow {
	var out []Pow
	Walk(e, func(n Expr) {
		p, ok := n.(Pow)
		if !ok {
			return
		}
		r, ok := p.Exp.(Rational)
		if !ok || r.P >= 0 {
			return
		}
		if len(AccessesOf(p.Base)) == 0 {
			out = append(out, p)
		}
	})
	return out
}

// HasGridIdx reports whether e references the absolute grid-index primitive.
func HasGridIdx(e Expr) bool {
	found := false
	Walk(e, func(n Expr) {
		if _, ok := n.(GridIdx); ok {
			found = true
		}
	})
	return found
}

// CountOps counts arithmetic operator applications in e: an n-ary sum or
// product contributes n-1 operations and each power contributes one. Used
// only for the diagnostic operation-count annotations.
func CountOps(e Expr) int {
	count := 0
	Walk(e, func(n Expr) {
		switch t := n.(type) {
		case Add:
			count += len(t.Terms) - 1
		case Mul:
			count += len(t.Factors) - 1
		case Pow:
			count++
		}
	})
	return count
}

// OffsetsOf reduces an access to its relative offset tuple by substituting
// every index symbol with zero. It fails when an index does not reduce to a
// literal integer, which is a derivation error: the compiler cannot declare
// a stencil footprint for a symbolic, non-constant offset.
func OffsetsOf(a *Access) ([]int, error) {
	out := make([]int, len(a.Indices))
	for d, idx := range a.Indices {
		v, err := evalConstIndex(idx)
		if err != nil {
			return nil, fmt.Errorf("field %s dimension %d: %w", a.Base.Name, d, err)
		}
		out[d] = int(v)
	}
	return out, nil
}

func evalConstIndex(e Expr) (int64, error) {
	switch n := e.(type) {
	case Rational:
		if !n.IsInt() {
			return 0, fmt.Errorf("offset %d/%d is not an integer", n.P, n.Q)
		}
		return n.P, nil
	case Symbol:
		// Loop symbols are the grid location; relative offsets zero them.
		return 0, nil
	case Add:
		var sum int64
		for _, t := range n.Terms {
			v, err := evalConstIndex(t)
			if err != nil {
				return 0, err
			}
			sum += v
		}
		return sum, nil
	case Mul:
		var prod int64 = 1
		for _, f := range n.Factors {
			v, err := evalConstIndex(f)
			if err != nil {
				return 0, err
			}
			prod *= v
		}
		return prod, nil
	case Pow:
		b, err := evalConstIndex(n.Base)
		if err != nil {
			return 0, err
		}
		p, err := evalConstIndex(n.Exp)
		if err != nil {
			return 0, err
		}
		if p < 0 {
			return 0, fmt.Errorf("offset has negative exponent")
		}
		var out int64 = 1
		for i := int64(0); i < p; i++ {
			out *= b
		}
		return out, nil
	default:
		return 0, fmt.Errorf("offset does not reduce to an integer: %T", e)
	}
}
