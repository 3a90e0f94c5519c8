package block

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConstHaloExtent(t *testing.T) {
	h := ConstHalo{-2, 1}
	assert.Equal(t, -2, h.Extent(Minus))
	assert.Equal(t, 1, h.Extent(Plus))
}

func TestMinMaxHalos(t *testing.T) {
	ranges := NewHaloRanges(2)
	ranges[0][Minus] = NewHaloSet(ConstHalo{-1, 1}, ConstHalo{-3, 0})
	ranges[0][Plus] = NewHaloSet(ConstHalo{-1, 1}, ConstHalo{0, 2})
	// dimension 1 has no contributors

	haloM, haloP := MinMaxHalos(ranges)
	assert.Equal(t, []int{-3, 0}, haloM, "minus side reduces by min")
	assert.Equal(t, []int{2, 0}, haloP, "plus side reduces by max")
}

func TestMinMaxHalosEmpty(t *testing.T) {
	haloM, haloP := MinMaxHalos(NewHaloRanges(1))
	assert.Equal(t, []int{0}, haloM)
	assert.Equal(t, []int{0}, haloP)
}

func TestHaloSetUnion(t *testing.T) {
	a := NewHaloSet(ConstHalo{-1, 1})
	b := NewHaloSet(ConstHalo{-2, 2}, ConstHalo{-1, 1})
	a.Union(b)
	assert.Len(t, a, 2, "union deduplicates shared contributors")
}

func TestDatasetRegisterSeedsFromBlock(t *testing.T) {
	b := New(0, 1, "blk")
	b.Shape = []int{204}
	b.AddSchemeHalo(ConstHalo{-2, 2})

	d, err := b.Datasets.Register("u", b)
	require.NoError(t, err)
	assert.Equal(t, []int{204}, d.Size)
	assert.Equal(t, 0, d.BlockNumber)

	haloM, haloP := MinMaxHalos(d.HaloRanges)
	assert.Equal(t, []int{-2}, haloM, "new datasets start with the scheme halos")
	assert.Equal(t, []int{2}, haloP)
}

func TestDatasetRegisterIsIdempotent(t *testing.T) {
	b := New(0, 1, "blk")
	b.Shape = []int{100}

	d1, err := b.Datasets.Register("u", b)
	require.NoError(t, err)
	d2, err := b.Datasets.Register("u", b)
	require.NoError(t, err)
	assert.Same(t, d1, d2)
	assert.Equal(t, []string{"u"}, b.Datasets.Names())
}

func TestDatasetRegisterConflicts(t *testing.T) {
	b := New(0, 1, "blk")
	b.Shape = []int{100}
	d, err := b.Datasets.Register("u", b)
	require.NoError(t, err)

	t.Run("shape mismatch", func(t *testing.T) {
		b.Shape = []int{200}
		_, err := b.Datasets.Register("u", b)
		require.Error(t, err)
		assert.True(t, errors.Is(err, ErrShapeMismatch))
		assert.Equal(t, []int{100}, d.Size, "a conflict must not mutate the record")
		b.Shape = []int{100}
	})

	t.Run("block mismatch", func(t *testing.T) {
		b2 := New(1, 1, "blk2")
		b2.Shape = []int{100}
		_, err := b.Datasets.Register("u", b2)
		require.Error(t, err)
		assert.True(t, errors.Is(err, ErrBlockMismatch))
		assert.Equal(t, 0, d.BlockNumber)
	})
}

func TestDatasetMergeHalosNeverShrinks(t *testing.T) {
	b := New(0, 1, "blk")
	b.Shape = []int{100}
	d, err := b.Datasets.Register("u", b)
	require.NoError(t, err)

	wide := NewHaloRanges(1)
	wide[0][Minus] = NewHaloSet(ConstHalo{-3, 3})
	wide[0][Plus] = NewHaloSet(ConstHalo{-3, 3})
	d.MergeHalos(wide)

	narrow := NewHaloRanges(1)
	narrow[0][Minus] = NewHaloSet(ConstHalo{-1, 1})
	narrow[0][Plus] = NewHaloSet(ConstHalo{-1, 1})
	d.MergeHalos(narrow)

	haloM, haloP := MinMaxHalos(d.HaloRanges)
	assert.Equal(t, []int{-3}, haloM)
	assert.Equal(t, []int{3}, haloP)
}

func TestStencilRegistryNumbering(t *testing.T) {
	r := NewStencilRegistry()

	s0 := r.Resolve("0", [][]int{{0}}, 1)
	s1 := r.Resolve("-1,0,1", [][]int{{-1}, {0}, {1}}, 1)
	assert.Equal(t, "stencil_0", s0.Name)
	assert.Equal(t, "stencil_1", s1.Name)

	// A repeat footprint shares the entry instead of allocating a new name.
	again := r.Resolve("-1,0,1", [][]int{{-1}, {0}, {1}}, 1)
	assert.Same(t, s1, again)
	assert.Equal(t, 2, r.Len())
	assert.Equal(t, []string{"0", "-1,0,1"}, r.Keys())

	specs := r.Specs()
	require.Len(t, specs, 2)
	assert.Equal(t, 1, specs[0].NPoints())
	assert.Equal(t, 3, specs[1].NPoints())
}

func TestNextKernelNumber(t *testing.T) {
	b := New(0, 1, "blk")
	assert.Equal(t, 0, b.NextKernelNumber())
	assert.Equal(t, 1, b.NextKernelNumber())
	assert.Equal(t, 2, b.NextKernelNumber())
}
