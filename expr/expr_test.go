package expr

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRational(t *testing.T) {
	tests := []struct {
		name string
		p, q int64
		want Rational
	}{
		{"already reduced", 3, 4, Rational{P: 3, Q: 4}},
		{"common factor", 6, 8, Rational{P: 3, Q: 4}},
		{"integer collapse", 8, 4, Rational{P: 2, Q: 1}},
		{"sign moves to numerator", 1, -2, Rational{P: -1, Q: 2}},
		{"double negative", -1, -2, Rational{P: 1, Q: 2}},
		{"zero", 0, 5, Rational{P: 0, Q: 1}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got := NewRational(tc.p, tc.q)
			if got != tc.want {
				t.Errorf("NewRational(%d, %d) = %+v, want %+v", tc.p, tc.q, got, tc.want)
			}
		})
	}

	t.Run("zero denominator panics", func(t *testing.T) {
		assert.Panics(t, func() { NewRational(1, 0) })
	})
}

func TestRationalIsInt(t *testing.T) {
	if !Int(7).IsInt() {
		t.Error("Int(7) should be an integer")
	}
	if NewRational(1, 2).IsInt() {
		t.Error("1/2 should not be an integer")
	}
	if !NewRational(4, 2).IsInt() {
		t.Error("4/2 reduces to 2 and should be an integer")
	}
}

func TestNewAddNewMulPassthrough(t *testing.T) {
	x := Symbol{Name: "x"}
	if got := NewAdd(x); got != x {
		t.Errorf("single-term sum should be the term itself, got %#v", got)
	}
	if got := NewMul(x); got != x {
		t.Errorf("single-factor product should be the factor itself, got %#v", got)
	}
	sum, ok := NewAdd(x, Int(1)).(Add)
	if !ok || len(sum.Terms) != 2 {
		t.Errorf("two-term sum should be an Add node, got %#v", sum)
	}
}

func TestFieldAt(t *testing.T) {
	u := NewField("u", 2)
	i0, i1 := Symbol{Name: "i0"}, Symbol{Name: "i1"}

	a := u.At(i0, i1)
	if a.Base != u || len(a.Indices) != 2 {
		t.Fatalf("unexpected access %#v", a)
	}

	assert.Panics(t, func() { u.At(i0) }, "index count must match field dimension")
}

func TestFieldShifted(t *testing.T) {
	u := NewField("u", 2)
	syms := []Symbol{{Name: "i0"}, {Name: "i1"}}

	a := u.Shifted(syms, []int{1, 0})
	off, err := OffsetsOf(a)
	require.NoError(t, err)
	assert.Equal(t, []int{1, 0}, off)

	// Zero shift keeps the bare symbol rather than wrapping it in a sum.
	if _, ok := a.Indices[1].(Symbol); !ok {
		t.Errorf("unshifted index should stay a plain symbol, got %#v", a.Indices[1])
	}
}

func TestOffsetsOf(t *testing.T) {
	u := NewField("u", 1)
	i0 := Symbol{Name: "i0"}

	tests := []struct {
		name  string
		index Expr
		want  int
	}{
		{"bare symbol", i0, 0},
		{"symbol plus literal", NewAdd(i0, Int(2)), 2},
		{"negative shift", NewAdd(i0, Int(-1)), -1},
		{"scaled symbol", NewAdd(NewMul(Int(2), i0), Int(3)), 3},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			off, err := OffsetsOf(u.At(tc.index))
			require.NoError(t, err)
			assert.Equal(t, []int{tc.want}, off)
		})
	}

	t.Run("fractional offset fails", func(t *testing.T) {
		_, err := OffsetsOf(u.At(NewAdd(i0, NewRational(1, 2))))
		require.Error(t, err)
	})
}

func TestCountOps(t *testing.T) {
	u := NewField("u", 1)
	i0 := Symbol{Name: "i0"}
	// -1 * 1/2 * u[i0] * (u[i0+1] - u[i0-1]) is 3 multiplications plus the
	// sum's 1 plus the negation product inside Neg.
	e := NewMul(Int(-1), NewRational(1, 2), u.At(i0),
		NewAdd(u.Shifted([]Symbol{i0}, []int{1}), Neg(u.Shifted([]Symbol{i0}, []int{-1}))))

	if got := CountOps(e); got != 5 {
		t.Errorf("CountOps = %d, want 5", got)
	}
	if got := CountOps(Pow{Base: Symbol{Name: "x"}, Exp: Int(2)}); got != 1 {
		t.Errorf("CountOps(pow) = %d, want 1", got)
	}
	if got := CountOps(u.At(i0)); got != 0 {
		t.Errorf("CountOps(access) = %d, want 0", got)
	}
}

func TestFieldSetOrderAndOps(t *testing.T) {
	u := NewField("u", 1)
	v := NewField("v", 1)
	w := NewField("w", 1)

	s := NewFieldSet()
	s.Add(v)
	s.Add(u)
	s.Add(v) // duplicate is a no-op
	require.Equal(t, 2, s.Len())

	names := func(fs *FieldSet) []string {
		var out []string
		for _, f := range fs.Fields() {
			out = append(out, f.Name)
		}
		return out
	}
	assert.Equal(t, []string{"v", "u"}, names(s), "insertion order must be preserved")

	other := NewFieldSet()
	other.Add(u)
	other.Add(w)
	assert.Equal(t, []string{"v", "u", "w"}, names(s.Union(other)))
	assert.Equal(t, []string{"u"}, names(s.Intersect(other)))
	assert.Equal(t, []string{"v"}, names(s.Difference(other)))
}

func TestAtomCollectors(t *testing.T) {
	u := NewField("u", 1)
	i0 := Symbol{Name: "i0"}
	niu := Constant{Name: "niu"}
	rk := ConstIndexed{Name: "rkold", Rank: 1, Index: Symbol{Name: "stage"}}
	invD := Pow{Base: Constant{Name: "deltai0"}, Exp: Int(-1)}

	e := NewAdd(
		NewMul(niu, invD, u.At(i0)),
		NewMul(niu, rk, NewRational(1, 2), rk),
		GridIdx{Dim: 0},
	)

	consts := ConstantsOf(e)
	require.Len(t, consts, 2)
	assert.Equal(t, "niu", consts[0].Name)
	assert.Equal(t, "deltai0", consts[1].Name)

	indexed := IndexedConstantsOf(e)
	require.Len(t, indexed, 1, "repeated indexed constants collapse by name")
	assert.Equal(t, "rkold", indexed[0].Name)

	rats := RationalsOf(e)
	require.Len(t, rats, 1, "integer literals are not rational constants")
	assert.Equal(t, NewRational(1, 2), rats[0])

	inverses := InversePowersOf(e)
	require.Len(t, inverses, 1)
	assert.Equal(t, invD, inverses[0])

	assert.True(t, HasGridIdx(e))
	assert.False(t, HasGridIdx(u.At(i0)))
}

func TestInversePowersOfSkipsFieldBases(t *testing.T) {
	u := NewField("u", 1)
	i0 := Symbol{Name: "i0"}
	p := Pow{Base: u.At(i0), Exp: Int(-1)}
	if got := InversePowersOf(p); len(got) != 0 {
		t.Errorf("powers of field accesses are not constant candidates, got %v", got)
	}
}
