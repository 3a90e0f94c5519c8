package kernel

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/structmesh/opsgen/expr"
)

func access1d(f *expr.Field, off int) *expr.Access {
	return f.Shifted([]expr.Symbol{{Name: "i0"}}, []int{off})
}

func TestRelativeStencil1D(t *testing.T) {
	u := expr.NewField("u", 1)

	tests := []struct {
		name    string
		offsets []int
		want    [][]int
	}{
		{"central difference", []int{-1, 1}, [][]int{{-1}, {0}, {1}}},
		{"one sided", []int{1, 2}, [][]int{{0}, {1}, {2}}},
		{"duplicates collapse", []int{1, 1, -1, -1}, [][]int{{-1}, {0}, {1}}},
		{"point access", []int{0}, [][]int{{0}}},
		{"zero always included", []int{-2}, [][]int{{-2}, {0}}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			var accesses []*expr.Access
			for _, off := range tc.offsets {
				accesses = append(accesses, access1d(u, off))
			}
			st, err := relativeStencil(accesses, 1)
			require.NoError(t, err)
			assert.Equal(t, tc.want, st.Points)
		})
	}
}

func TestRelativeStencilOrderIndependent(t *testing.T) {
	u := expr.NewField("u", 1)
	a := []*expr.Access{access1d(u, 2), access1d(u, -1), access1d(u, 0)}
	b := []*expr.Access{access1d(u, 0), access1d(u, 2), access1d(u, -1)}

	sa, err := relativeStencil(a, 1)
	require.NoError(t, err)
	sb, err := relativeStencil(b, 1)
	require.NoError(t, err)
	assert.Equal(t, sa.Key(), sb.Key(), "canonical key must not depend on access order")
	assert.Equal(t, "-1,0,1,2", sa.Key())
}

func TestRelativeStencilRejectsSymbolicOffset(t *testing.T) {
	u := expr.NewField("u", 1)
	i0 := expr.Symbol{Name: "i0"}
	a := u.At(expr.NewAdd(i0, expr.NewRational(1, 2)))
	_, err := relativeStencil([]*expr.Access{a}, 1)
	require.Error(t, err)
}

func TestSortStencilPoints2D(t *testing.T) {
	// One stable sort per dimension in increasing dimension order; with ties
	// the last pass wins, so the second dimension ends up the primary key.
	points := [][]int{{1, 0}, {0, 1}, {-1, 0}, {0, -1}, {0, 0}}
	sortStencilPoints(points, 2)
	want := [][]int{{0, -1}, {-1, 0}, {0, 0}, {1, 0}, {0, 1}}
	assert.Equal(t, want, points)
}

func TestStencilKey2D(t *testing.T) {
	st := Stencil{Points: [][]int{{0, -1}, {-1, 0}, {0, 0}, {1, 0}, {0, 1}}}
	assert.Equal(t, "0,-1,-1,0,0,0,1,0,0,1", st.Key())
	assert.Equal(t, 5, st.NPoints())
}

func TestKernelStencilsFirstSeenOrder(t *testing.T) {
	b := testBlock(t)
	i0 := expr.Symbol{Name: "i0"}
	u := expr.NewField("u", 1)
	v := expr.NewField("v", 1)

	k := New(b, "two fields")
	require.NoError(t, k.AddEquation(expr.Eq{
		LHS: v.At(i0),
		RHS: expr.NewAdd(access1d(u, -1), access1d(u, 1)),
	}))

	stencils, err := k.Stencils()
	require.NoError(t, err)
	require.Len(t, stencils, 2)
	assert.Equal(t, "v", stencils[0].Field.Name)
	assert.Equal(t, [][]int{{0}}, stencils[0].Stencil.Points)
	assert.Equal(t, "u", stencils[1].Field.Name)
	assert.Equal(t, [][]int{{-1}, {0}, {1}}, stencils[1].Stencil.Points)
}
