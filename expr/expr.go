// Package expr defines the symbolic expression representation consumed by the
// stencil compiler: equalities over indexed grid-field accesses, named and
// indexed constants, rational coefficients and the grid-index primitive.
//
// Expressions arrive here already formed; no algebraic simplification is
// performed. The package only provides the structural queries the compiler
// needs: atom collection, operation counting and offset reduction.
package expr

import "fmt"

// Expr is a node of a symbolic expression tree.
type Expr interface {
	isExpr()
}

// Rational is an exact rational coefficient p/q with q > 0. Integers are
// represented as Rational with Q == 1.
type Rational struct {
	P, Q int64
}

// Symbol is a per-dimension loop index symbol (e.g. i0, i1).
type Symbol struct {
	Name string
}

// GridVar is a kernel-local scratch variable evaluated per grid point.
type GridVar struct {
	Name string
}

// GridIdx is the absolute grid-index primitive for dimension Dim.
type GridIdx struct {
	Dim int
}

// Constant is a named scalar constant resolved from the parameter table.
type Constant struct {
	Name string
}

// ConstIndexed is an access into a named fixed-length constant array, e.g.
// rkold[stage]. Rank is the declared number of values.
type ConstIndexed struct {
	Name  string
	Rank  int
	Index Expr
}

// Field is a named base array on the grid. Two field references denote the
// same field iff their base names match.
type Field struct {
	Name string
	NDim int
}

// Access is an indexed read or write of a grid field. Indices holds one index
// expression per grid dimension, typically a loop symbol plus a fixed offset.
type Access struct {
	Base    *Field
	Indices []Expr
}

// Add is an n-ary sum.
type Add struct {
	Terms []Expr
}

// Mul is an n-ary product.
type Mul struct {
	Factors []Expr
}

// Pow raises Base to Exp.
type Pow struct {
	Base, Exp Expr
}

func (Rational) isExpr()     {}
func (Symbol) isExpr()       {}
func (GridVar) isExpr()      {}
func (GridIdx) isExpr()      {}
func (Constant) isExpr()     {}
func (ConstIndexed) isExpr() {}
func (*Access) isExpr()      {}
func (Add) isExpr()          {}
func (Mul) isExpr()          {}
func (Pow) isExpr()          {}

// Eq is a single equality "LHS = RHS". Emitted kernels treat it as an
// assignment statement, not a mathematical assertion.
type Eq struct {
	LHS, RHS Expr
}

// Int returns the integer n as a Rational.
func Int(n int64) Rational {
	return Rational{P: n, Q: 1}
}

// NewRational returns p/q in lowest terms with a positive denominator.
// It panics if q is zero.
func NewRational(p, q int64) Rational {
	if q == 0 {
		panic("expr: rational with zero denominator")
	}
	if q < 0 {
		p, q = -p, -q
	}
	g := gcd(abs64(p), q)
	if g > 1 {
		p /= g
		q /= g
	}
	return Rational{P: p, Q: q}
}

// IsInt reports whether the rational reduces to an integer.
func (r Rational) IsInt() bool {
	return r.Q == 1
}

func abs64(n int64) int64 {
	if n < 0 {
		return -n
	}
	return n
}

func gcd(a, b int64) int64 {
	for b != 0 {
		a, b = b, a%b
	}
	return a
}

// NewAdd builds a sum over terms. A single term is returned unchanged.
func NewAdd(terms ...Expr) Expr {
	if len(terms) == 1 {
		return terms[0]
	}
	return Add{Terms: terms}
}

// NewMul builds a product over factors. A single factor is returned unchanged.
func NewMul(factors ...Expr) Expr {
	if len(factors) == 1 {
		return factors[0]
	}
	return Mul{Factors: factors}
}

// Neg returns -e.
func Neg(e Expr) Expr {
	return Mul{Factors: []Expr{Int(-1), e}}
}

// NewField declares a grid field base.
func NewField(name string, ndim int) *Field {
	return &Field{Name: name, NDim: ndim}
}

// At builds an access of the field at the given per-dimension indices. The
// index count must match the field's dimensionality.
func (f *Field) At(indices ...Expr) *Access {
	if len(indices) != f.NDim {
		panic(fmt.Sprintf("expr: field %s is %d-dimensional, got %d indices",
			f.Name, f.NDim, len(indices)))
	}
	return &Access{Base: f, Indices: indices}
}

// Shifted builds an access at the loop point offset by off in each dimension.
// syms supplies the loop symbol per dimension.
func (f *Field) Shifted(syms []Symbol, off []int) *Access {
	indices := make([]Expr, f.NDim)
	for d := 0; d < f.NDim; d++ {
		if off[d] == 0 {
			indices[d] = syms[d]
		} else {
			indices[d] = NewAdd(syms[d], Int(int64(off[d])))
		}
	}
	return &Access{Base: f, Indices: indices}
}

// Walk calls fn for e and every descendant node, in depth-first order.
// Index expressions of field and constant accesses are visited too.
func Walk(e Expr, fn func(Expr)) {
	if e == nil {
		return
	}
	fn(e)
	switch n := e.(type) {
	case Add:
		for _, t := range n.Terms {
			Walk(t, fn)
		}
	case Mul:
		for _, f := range n.Factors {
			Walk(f, fn)
		}
	case Pow:
		Walk(n.Base, fn)
		Walk(n.Exp, fn)
	case *Access:
		for _, idx := range n.Indices {
			Walk(idx, fn)
		}
	case ConstIndexed:
		Walk(n.Index, fn)
	}
}

// WalkEq walks both sides of an equality.
func WalkEq(eq Eq, fn func(Expr)) {
	Walk(eq.LHS, fn)
	Walk(eq.RHS, fn)
}
