package opsc

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/structmesh/opsgen/expr"
)

func TestPrintRational(t *testing.T) {
	p := &printer{}
	tests := []struct {
		name string
		r    expr.Rational
		want string
	}{
		{"integer", expr.Int(4), "4"},
		{"negative integer", expr.Int(-2), "-2"},
		{"half", expr.NewRational(1, 2), "1.0/2.0"},
		{"negative half", expr.NewRational(-1, 2), "-1.0/2.0"},
		{"reduced", expr.NewRational(2, 4), "1.0/2.0"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, p.printRational(tc.r))
		})
	}
}

func TestCcodeKernelMode(t *testing.T) {
	i0 := expr.Symbol{Name: "i0"}
	phi := expr.NewField("phi", 1)
	wk := expr.NewField("wk", 1)

	eq := expr.Eq{
		LHS: wk.At(i0),
		RHS: expr.NewAdd(
			phi.Shifted([]expr.Symbol{i0}, []int{-1}),
			phi.Shifted([]expr.Symbol{i0}, []int{1})),
	}
	p := &printer{accessTags: map[string]string{"phi": "OPS_ACC0", "wk": "OPS_ACC1"}}
	got, err := p.ccode(eq)
	require.NoError(t, err)
	assert.Equal(t, "wk[OPS_ACC1(0)] = phi[OPS_ACC0(-1)] + phi[OPS_ACC0(1)]", got)
}

func TestCcodeSourceMode(t *testing.T) {
	i0 := expr.Symbol{Name: "i0"}
	phi := expr.NewField("phi", 1)
	wk := expr.NewField("wk", 1)

	eq := expr.Eq{
		LHS: wk.At(i0),
		RHS: expr.NewAdd(
			phi.Shifted([]expr.Symbol{i0}, []int{-1}),
			expr.Neg(phi.Shifted([]expr.Symbol{i0}, []int{1}))),
	}
	p := &printer{source: true}
	got, err := p.ccode(eq)
	require.NoError(t, err)
	assert.Equal(t, "wk[i0] = phi[i0 - 1] - phi[i0 + 1]", got)
}

func TestPrintMulPrecedence(t *testing.T) {
	i0 := expr.Symbol{Name: "i0"}
	u := expr.NewField("u", 1)
	p := &printer{source: true}

	e := expr.NewMul(expr.Constant{Name: "niu"},
		expr.NewAdd(u.At(i0), expr.Int(1)))
	got, err := p.print(e, precAdd)
	require.NoError(t, err)
	assert.Equal(t, "niu*(u[i0] + 1)", got)
}

func TestPrintNegativeProduct(t *testing.T) {
	i0 := expr.Symbol{Name: "i0"}
	u := expr.NewField("u", 1)
	p := &printer{source: true}

	// A leading -1 coefficient collapses into a sign.
	e := expr.NewAdd(u.At(i0), expr.Neg(expr.NewMul(expr.Constant{Name: "a"}, u.At(i0))))
	got, err := p.print(e, precAdd)
	require.NoError(t, err)
	assert.Equal(t, "u[i0] - a*u[i0]", got)
}

func TestPrintPow(t *testing.T) {
	p := &printer{}
	d := expr.Constant{Name: "deltai0"}

	tests := []struct {
		name string
		e    expr.Pow
		want string
	}{
		{"inverse", expr.Pow{Base: d, Exp: expr.Int(-1)}, "1.0/deltai0"},
		{"inverse square", expr.Pow{Base: d, Exp: expr.Int(-2)}, "1.0/pow(deltai0, 2)"},
		{"square", expr.Pow{Base: d, Exp: expr.Int(2)}, "pow(deltai0, 2)"},
		{"symbolic exponent", expr.Pow{Base: d, Exp: expr.Symbol{Name: "n"}}, "pow(deltai0, n)"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, err := p.print(tc.e, precAdd)
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestPrintConstIndexed(t *testing.T) {
	rk := expr.ConstIndexed{Name: "rkold", Rank: 3, Index: expr.Symbol{Name: "stage"}}

	src := &printer{source: true}
	got, err := src.printConstIndexed(rk)
	require.NoError(t, err)
	assert.Equal(t, "rkold[stage]", got)

	// Kernel bodies receive a single element, so the stage symbol zeroes.
	body := &printer{}
	got, err = body.printConstIndexed(rk)
	require.NoError(t, err)
	assert.Equal(t, "rkold[0]", got)
}

func TestPrintGridIdx(t *testing.T) {
	p := &printer{}
	got, err := p.print(expr.GridIdx{Dim: 1}, precAdd)
	require.NoError(t, err)
	assert.Equal(t, "idx[1]", got)
}
