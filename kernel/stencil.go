package kernel

import (
	"sort"
	"strconv"
	"strings"

	"github.com/structmesh/opsgen/expr"
)

// Stencil is a canonical relative-offset access pattern: the deduplicated,
// sorted offset tuples a kernel touches for one field, independent of the
// absolute loop index.
type Stencil struct {
	Points [][]int
}

// Key returns the canonical registry key: the sorted points flattened and
// comma-joined. Two stencils with the same offsets in any input order
// normalise to the same key.
func (s Stencil) Key() string {
	parts := make([]string, 0, len(s.Points)*len(s.Points[0]))
	for _, p := range s.Points {
		for _, v := range p {
			parts = append(parts, strconv.Itoa(v))
		}
	}
	return strings.Join(parts, ",")
}

// NPoints returns the number of grid points in the footprint.
func (s Stencil) NPoints() int {
	return len(s.Points)
}

// sortStencilPoints orders offset tuples the way the declared stencils are
// numbered: one full stable sort per dimension, in increasing dimension
// order. For more than one dimension with ties this makes the last dimension
// the primary key, which differs from plain lexicographic order; downstream
// naming depends on this exact order, so it is kept as-is.
func sortStencilPoints(points [][]int, ndim int) {
	for dim := 0; dim < ndim; dim++ {
		d := dim
		sort.SliceStable(points, func(i, j int) bool {
			return points[i][d] < points[j][d]
		})
	}
}

// relativeStencil reduces a set of accesses of one field to its canonical
// stencil. Index symbols are substituted with zero, leaving pure offsets;
// duplicates collapse; the zero-offset tuple is always included because the
// execution library requires the accessed point in the declared footprint.
func relativeStencil(accesses []*expr.Access, ndim int) (Stencil, error) {
	seen := make(map[string]bool)
	var points [][]int
	add := func(offset []int) {
		key := offsetKey(offset)
		if !seen[key] {
			seen[key] = true
			points = append(points, offset)
		}
	}
	for _, a := range accesses {
		offset, err := expr.OffsetsOf(a)
		if err != nil {
			return Stencil{}, err
		}
		add(offset)
	}
	add(make([]int, ndim))
	sortStencilPoints(points, ndim)
	return Stencil{Points: points}, nil
}

func offsetKey(offset []int) string {
	parts := make([]string, len(offset))
	for i, v := range offset {
		parts[i] = strconv.Itoa(v)
	}
	return strings.Join(parts, ",")
}

// FieldStencil pairs a field with its canonical footprint for this kernel.
type FieldStencil struct {
	Field   *expr.Field
	Stencil Stencil
}

// Stencils derives the canonical stencil of every field the kernel touches,
// reads and writes combined, in first-seen field order. It fails when an
// offset does not reduce to a literal integer.
func (k *Kernel) Stencils() ([]FieldStencil, error) {
	fields := expr.NewFieldSet()
	byField := make(map[string][]*expr.Access)
	for _, eq := range k.equations {
		for _, side := range []expr.Expr{eq.LHS, eq.RHS} {
			for _, a := range expr.AccessesOf(side) {
				fields.Add(a.Base)
				byField[a.Base.Name] = append(byField[a.Base.Name], a)
			}
		}
	}
	out := make([]FieldStencil, 0, fields.Len())
	for _, f := range fields.Fields() {
		st, err := relativeStencil(byField[f.Name], k.NDim)
		if err != nil {
			return nil, err
		}
		out = append(out, FieldStencil{Field: f, Stencil: st})
	}
	return out, nil
}
