// Package block holds the simulation block and the program-wide registries a
// single code-generation pass accumulates: the field metadata table and the
// stencil registry. Both are insertion-ordered so that registry entry order,
// which becomes emitted identifier order, is deterministic.
package block

import (
	"errors"
	"fmt"
	"slices"
)

// Side selects the negative or positive halo side of a dimension.
type Side int

const (
	Minus Side = iota
	Plus
)

// Halo is one contributor to a halo requirement, e.g. a discretisation
// scheme's footprint. Extent returns the halo depth on a side: negative
// values on the Minus side, positive on the Plus side.
type Halo interface {
	Extent(side Side) int
}

// ConstHalo is a fixed [minus, plus] halo extent pair.
type ConstHalo [2]int

// Extent implements Halo.
func (h ConstHalo) Extent(side Side) int {
	return h[side]
}

// HaloSet is a set of halo contributors for one dimension side.
type HaloSet map[Halo]struct{}

// NewHaloSet builds a set from the given contributors.
func NewHaloSet(halos ...Halo) HaloSet {
	s := make(HaloSet, len(halos))
	for _, h := range halos {
		s[h] = struct{}{}
	}
	return s
}

// Union adds every contributor of other to s.
func (s HaloSet) Union(other HaloSet) {
	for h := range other {
		s[h] = struct{}{}
	}
}

// HaloPair holds the [minus, plus] contributor sets of one dimension.
type HaloPair [2]HaloSet

// NewHaloRanges returns empty per-dimension halo requirement sets.
func NewHaloRanges(ndim int) []HaloPair {
	out := make([]HaloPair, ndim)
	for d := range out {
		out[d] = HaloPair{make(HaloSet), make(HaloSet)}
	}
	return out
}

// MinMaxHalos reduces per-dimension contributor sets to scalar extents: the
// minimum over the negative side and the maximum over the positive side.
// An empty set reduces to zero. The reduction is order-independent, so
// merging kernels in any order yields the same extents.
func MinMaxHalos(ranges []HaloPair) (haloM, haloP []int) {
	haloM = make([]int, len(ranges))
	haloP = make([]int, len(ranges))
	for d, pair := range ranges {
		for h := range pair[Minus] {
			if v := h.Extent(Minus); v < haloM[d] {
				haloM[d] = v
			}
		}
		for h := range pair[Plus] {
			if v := h.Extent(Plus); v > haloP[d] {
				haloP[d] = v
			}
		}
	}
	return haloM, haloP
}

// Registration conflicts are fatal consistency errors: a field's block and
// shape must never change once registered.
var (
	ErrBlockMismatch = errors.New("block number conflicts with registered dataset")
	ErrShapeMismatch = errors.New("shape conflicts with registered dataset")
)

// Block is one structured-mesh execution block. It owns the working grid
// range, the per-scheme halo contributors, and the registries shared by
// every kernel of the compilation pass.
type Block struct {
	Number int
	NDim   int
	Name   string

	// Shape is the persisted grid size per dimension, halo padding included.
	Shape []int
	// Ranges is the working iteration range, one [lower, upper) pair per
	// dimension. Kernels deep-copy it at SetGridRange time.
	Ranges [][2]int
	// Halos is the per-dimension [minus, plus] extent the block supports.
	Halos [][2]int

	Datasets *DatasetTable
	Stencils *StencilRegistry

	schemeHalos   HaloSet
	kernelCounter int
}

// New creates a block with empty registries.
func New(number, ndim int, name string) *Block {
	return &Block{
		Number:      number,
		NDim:        ndim,
		Name:        name,
		Datasets:    NewDatasetTable(),
		Stencils:    NewStencilRegistry(),
		schemeHalos: make(HaloSet),
	}
}

// AddSchemeHalo records a discretisation scheme's halo contributor. Every
// field registered on the block starts from these on all sides.
func (b *Block) AddSchemeHalo(h Halo) {
	b.schemeHalos[h] = struct{}{}
}

// SchemeHalos returns the contributors of all registered schemes.
func (b *Block) SchemeHalos() HaloSet {
	out := make(HaloSet, len(b.schemeHalos))
	out.Union(b.schemeHalos)
	return out
}

// NextKernelNumber returns the block-scoped kernel counter and advances it.
func (b *Block) NextKernelNumber() int {
	n := b.kernelCounter
	b.kernelCounter++
	return n
}

// Dataset is the program-wide metadata record of one grid field. Once
// registered, block number and size are immutable.
type Dataset struct {
	Name        string
	BlockNumber int
	BlockName   string
	Size        []int
	HaloRanges  []HaloPair
}

// MergeHalos widens the dataset's halo requirement record with one kernel's
// per-dimension contributor sets. Widening is by set union and never shrinks.
func (d *Dataset) MergeHalos(ranges []HaloPair) {
	for dim := range d.HaloRanges {
		d.HaloRanges[dim][Minus].Union(ranges[dim][Minus])
		d.HaloRanges[dim][Plus].Union(ranges[dim][Plus])
	}
}

// DatasetTable is the authoritative, insertion-ordered field metadata table
// for one compilation pass.
type DatasetTable struct {
	order []string
	byKey map[string]*Dataset
}

// NewDatasetTable returns an empty table.
func NewDatasetTable() *DatasetTable {
	return &DatasetTable{byKey: make(map[string]*Dataset)}
}

// Register returns the record for the named field on b, creating it on first
// sight. A new record starts with the block's shape and its scheme halos on
// every side. On a repeat sighting the block number and shape are verified;
// a conflict is fatal and leaves the existing record untouched.
func (t *DatasetTable) Register(name string, b *Block) (*Dataset, error) {
	if d, ok := t.byKey[name]; ok {
		if d.BlockNumber != b.Number {
			return nil, fmt.Errorf("dataset %s: block %d vs %d: %w",
				name, b.Number, d.BlockNumber, ErrBlockMismatch)
		}
		if !slices.Equal(d.Size, b.Shape) {
			return nil, fmt.Errorf("dataset %s: shape %v vs %v: %w",
				name, b.Shape, d.Size, ErrShapeMismatch)
		}
		return d, nil
	}
	d := &Dataset{
		Name:        name,
		BlockNumber: b.Number,
		BlockName:   b.Name,
		Size:        slices.Clone(b.Shape),
		HaloRanges:  NewHaloRanges(b.NDim),
	}
	for dim := range d.HaloRanges {
		d.HaloRanges[dim][Minus].Union(b.schemeHalos)
		d.HaloRanges[dim][Plus].Union(b.schemeHalos)
	}
	t.byKey[name] = d
	t.order = append(t.order, name)
	return d, nil
}

// Get returns the record for a field name, if registered.
func (t *DatasetTable) Get(name string) (*Dataset, bool) {
	d, ok := t.byKey[name]
	return d, ok
}

// Names returns the registered field names in first-registration order.
func (t *DatasetTable) Names() []string {
	return slices.Clone(t.order)
}

// StencilSpec is one deduplicated stencil declaration: a canonical relative
// offset list and its stable generated name.
type StencilSpec struct {
	Name   string
	Points [][]int
	NDim   int
}

// NPoints returns the number of grid points in the footprint.
func (s *StencilSpec) NPoints() int {
	return len(s.Points)
}

// StencilRegistry deduplicates stencils program-wide. The key is the
// canonical sorted offset list, so two kernels needing the identical
// footprint share one entry. Entries are append-only and numbered in
// first-use order.
type StencilRegistry struct {
	order []string
	byKey map[string]*StencilSpec
}

// NewStencilRegistry returns an empty registry.
func NewStencilRegistry() *StencilRegistry {
	return &StencilRegistry{byKey: make(map[string]*StencilSpec)}
}

// Resolve returns the entry for the canonical key, allocating the next
// stencil_N name on a genuinely new footprint.
func (r *StencilRegistry) Resolve(key string, points [][]int, ndim int) *StencilSpec {
	if s, ok := r.byKey[key]; ok {
		return s
	}
	s := &StencilSpec{
		Name:   fmt.Sprintf("stencil_%d", len(r.order)),
		Points: points,
		NDim:   ndim,
	}
	r.byKey[key] = s
	r.order = append(r.order, key)
	return s
}

// Len returns the number of registered stencils.
func (r *StencilRegistry) Len() int {
	return len(r.order)
}

// Specs returns the registered stencils in first-use order.
func (r *StencilRegistry) Specs() []*StencilSpec {
	out := make([]*StencilSpec, 0, len(r.order))
	for _, key := range r.order {
		out = append(out, r.byKey[key])
	}
	return out
}

// Keys returns the canonical registry keys in first-use order.
func (r *StencilRegistry) Keys() []string {
	return slices.Clone(r.order)
}
