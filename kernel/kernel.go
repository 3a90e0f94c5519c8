// Package kernel builds one computational unit: an ordered equation set, its
// iteration range, its halo requirements, and the derived metadata the code
// emitter needs (dataset classification, stencil footprints, constants).
package kernel

import (
	"errors"
	"fmt"

	"github.com/structmesh/opsgen/block"
	"github.com/structmesh/opsgen/expr"
)

// ErrBadEquation reports an invalid argument to AddEquation.
var ErrBadEquation = errors.New("not an equality or list of equalities")

// ErrUnclassified reports a field that classification cannot place.
var ErrUnclassified = errors.New("cannot classify dataset")

// Kernel is a computational kernel executed over a grid range in parallel.
// It is created empty, populated with equations and halo requirements, and
// finalized once with UpdateBlockDatasets, after which it is ready for
// emission.
type Kernel struct {
	BlockNumber int
	NDim        int
	BlockName   string

	// ComputationName is the human-readable label emitted with the call.
	ComputationName string
	// Name is the generated kernel function name. The emitter assigns one
	// if left empty.
	Name string
	No   int

	equations  []expr.Eq
	ranges     [][2]int
	haloRanges []block.HaloPair

	// stencilNames maps field base name to its resolved registry stencil,
	// set by UpdateBlockDatasets for this kernel's emission.
	stencilNames map[string]string
}

// New creates an empty kernel on the block, consuming the block's kernel
// counter for the generated name.
func New(b *block.Block, computationName string) *Kernel {
	no := b.NextKernelNumber()
	return &Kernel{
		BlockNumber:     b.Number,
		NDim:            b.NDim,
		BlockName:       b.Name,
		ComputationName: computationName,
		Name:            fmt.Sprintf("%sKernel%03d", b.Name, no),
		No:              no,
		haloRanges:      block.NewHaloRanges(b.NDim),
		stencilNames:    make(map[string]string),
	}
}

// AddEquation appends equations to the kernel. It accepts a single equality,
// a flat list of equalities, or nil as a no-op; anything else is an error.
// Input order is preserved and becomes the emitted statement order: no
// reordering or dependency analysis is performed, the caller is responsible
// for a legal sequential order per grid point.
func (k *Kernel) AddEquation(equation any) error {
	switch eq := equation.(type) {
	case nil:
		return nil
	case expr.Eq:
		k.equations = append(k.equations, eq)
	case []expr.Eq:
		k.equations = append(k.equations, eq...)
	default:
		return fmt.Errorf("kernel %s: %T: %w", k.Name, equation, ErrBadEquation)
	}
	return nil
}

// Equations returns the accumulated equations in insertion order.
func (k *Kernel) Equations() []expr.Eq {
	return k.equations
}

// SetGridRange copies the block's working range. The copy is deep: later
// mutation of the block's range must not alter an already-built kernel.
func (k *Kernel) SetGridRange(b *block.Block) {
	k.ranges = make([][2]int, len(b.Ranges))
	copy(k.ranges, b.Ranges)
}

// SetGridRangeToZero sets a single-point range, used for reduction-style
// kernels evaluated once.
func (k *Kernel) SetGridRangeToZero(b *block.Block) {
	k.ranges = make([][2]int, b.NDim)
}

// Ranges returns the kernel's base iteration range.
func (k *Kernel) Ranges() [][2]int {
	return k.ranges
}

// SetHaloRange unions halo contributors into the kernel's requirement set
// for one direction and side.
func (k *Kernel) SetHaloRange(direction int, side block.Side, halos ...block.Halo) {
	for _, h := range halos {
		k.haloRanges[direction][side][h] = struct{}{}
	}
}

// HaloRanges returns the per-direction halo requirement sets.
func (k *Kernel) HaloRanges() []block.HaloPair {
	return k.haloRanges
}

// MergeHaloRanges unions another kernel's halo requirements into this one.
// Equations are not checked; this supports fusing compatible kernels.
func (k *Kernel) MergeHaloRanges(other *Kernel) {
	for d := range k.haloRanges {
		k.haloRanges[d][block.Minus].Union(other.haloRanges[d][block.Minus])
		k.haloRanges[d][block.Plus].Union(other.haloRanges[d][block.Plus])
	}
}

// RangeOfEvaluation returns the finalized iteration range: the base range
// extended by the reduced halo extents on each side.
func (k *Kernel) RangeOfEvaluation() [][2]int {
	haloM, haloP := block.MinMaxHalos(k.haloRanges)
	out := make([][2]int, len(k.ranges))
	for d := range k.ranges {
		out[d][0] = k.ranges[d][0] + haloM[d]
		out[d][1] = k.ranges[d][1] + haloP[d]
	}
	return out
}

// GridPointCount returns the number of grid points in the finalized range.
func (k *Kernel) GridPointCount() int {
	count := 1
	for _, r := range k.RangeOfEvaluation() {
		count *= r[1] - r[0]
	}
	return count
}

// LHSDatasets returns the fields written by the kernel's equations,
// first-seen order.
func (k *Kernel) LHSDatasets() *expr.FieldSet {
	s := expr.NewFieldSet()
	for _, eq := range k.equations {
		for _, f := range expr.FieldsOf(eq.LHS).Fields() {
			s.Add(f)
		}
	}
	return s
}

// RHSDatasets returns the fields read by the kernel's equations,
// first-seen order.
func (k *Kernel) RHSDatasets() *expr.FieldSet {
	s := expr.NewFieldSet()
	for _, eq := range k.equations {
		for _, f := range expr.FieldsOf(eq.RHS).Fields() {
			s.Add(f)
		}
	}
	return s
}

// RequiredDataSets returns the fields the kernel reads.
func (k *Kernel) RequiredDataSets() *expr.FieldSet {
	return k.RHSDatasets()
}

// Classify partitions the referenced fields into read-only, write-only and
// read-write sets over the kernel's full equation set. A field written in
// one equation and read in another is read-write, never counted twice.
func (k *Kernel) Classify() (in, out, inout *expr.FieldSet, err error) {
	if len(k.equations) == 0 {
		return nil, nil, nil, fmt.Errorf("kernel %s has no equations: %w", k.Name, ErrUnclassified)
	}
	lhs := k.LHSDatasets()
	rhs := k.RHSDatasets()
	inout = rhs.Intersect(lhs)
	in = rhs.Difference(inout)
	out = lhs.Difference(inout)
	all := lhs.Union(rhs)
	for _, f := range all.Fields() {
		if !in.Has(f.Name) && !out.Has(f.Name) && !inout.Has(f.Name) {
			return nil, nil, nil, fmt.Errorf("dataset %s in kernel %s: %w", f.Name, k.Name, ErrUnclassified)
		}
	}
	return in, out, inout, nil
}

// Constants returns the named scalar constants used by the equations,
// first-seen order.
func (k *Kernel) Constants() []expr.Constant {
	seen := make(map[string]bool)
	var out []expr.Constant
	for _, eq := range k.equations {
		for _, side := range []expr.Expr{eq.LHS, eq.RHS} {
			for _, c := range expr.ConstantsOf(side) {
				if !seen[c.Name] {
					seen[c.Name] = true
					out = append(out, c)
				}
			}
		}
	}
	return out
}

// IndexedConstants returns the indexed constant accesses used by the
// equations, deduplicated by name, first-seen order.
func (k *Kernel) IndexedConstants() []expr.ConstIndexed {
	seen := make(map[string]bool)
	var out []expr.ConstIndexed
	for _, eq := range k.equations {
		for _, side := range []expr.Expr{eq.LHS, eq.RHS} {
			for _, c := range expr.IndexedConstantsOf(side) {
				if !seen[c.Name] {
					seen[c.Name] = true
					out = append(out, c)
				}
			}
		}
	}
	return out
}

// RationalConstants returns the distinct non-integer rationals appearing in
// the equations.
func (k *Kernel) RationalConstants() []expr.Rational {
	seen := make(map[expr.Rational]bool)
	var out []expr.Rational
	for _, eq := range k.equations {
		for _, side := range []expr.Expr{eq.LHS, eq.RHS} {
			for _, r := range expr.RationalsOf(side) {
				if !seen[r] {
					seen[r] = true
					out = append(out, r)
				}
			}
		}
	}
	return out
}

// InverseConstants returns the negative-power sub-expressions over non-field
// bases, candidates for precomputed inverse constants.
func (k *Kernel) InverseConstants() []expr.Pow {
	var out []expr.Pow
	for _, eq := range k.equations {
		for _, side := range []expr.Expr{eq.LHS, eq.RHS} {
			out = append(out, expr.InversePowersOf(side)...)
		}
	}
	return out
}

// UsesGridIndex reports whether any equation references the absolute
// grid-index primitive.
func (k *Kernel) UsesGridIndex() bool {
	for _, eq := range k.equations {
		if expr.HasGridIdx(eq.LHS) || expr.HasGridIdx(eq.RHS) {
			return true
		}
	}
	return false
}

// StencilName returns the registry stencil name resolved for a field by
// UpdateBlockDatasets.
func (k *Kernel) StencilName(field string) (string, bool) {
	name, ok := k.stencilNames[field]
	return name, ok
}

// UpdateBlockDatasets finalizes the kernel against the block registries:
// every touched field is registered or merged into the field metadata table,
// and each field's canonical footprint is resolved against the stencil
// registry, allocating a new entry only on a genuinely new footprint. The
// method is idempotent with respect to both registries; the deduplication
// key is the canonical footprint, not kernel identity.
func (k *Kernel) UpdateBlockDatasets(b *block.Block) error {
	all := k.LHSDatasets().Union(k.RHSDatasets())
	for _, f := range all.Fields() {
		d, err := b.Datasets.Register(f.Name, b)
		if err != nil {
			return fmt.Errorf("kernel %s: %w", k.Name, err)
		}
		d.MergeHalos(k.haloRanges)
	}
	stencils, err := k.Stencils()
	if err != nil {
		return fmt.Errorf("kernel %s: %w", k.Name, err)
	}
	for _, fs := range stencils {
		spec := b.Stencils.Resolve(fs.Stencil.Key(), fs.Stencil.Points, k.NDim)
		k.stencilNames[fs.Field.Name] = spec.Name
	}
	return nil
}
