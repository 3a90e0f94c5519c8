// Package state reads and writes the persisted-state container the
// generated programs consume and produce: an HDF5 file with one group per
// execution block and one dataset per field, carrying the halo extents and
// shape metadata the OPS runtime expects on each dataset.
//
// The writer seeds simulation input data; the reader backs the
// post-processing CLI. Requires the HDF5 C library at build time.
package state

import (
	"fmt"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/hdf5"

	"github.com/structmesh/opsgen/block"
)

// Field is one field slab to persist. Data dimensions must match the
// block's halo-inclusive shape; one- and two-dimensional blocks are
// supported (a 1-D field is a single-row matrix).
type Field struct {
	Name string
	Data *mat.Dense
	// Halos is the [minus, plus] halo depth per dimension, minus side
	// negative.
	Halos [][2]int
}

// FieldState is one field read back from a state file.
type FieldState struct {
	Name   string
	Shape  []int
	DM, DP []int32
	Values []float64
}

// BlockState is the content of one block group.
type BlockState struct {
	BlockName string
	Fields    []FieldState
}

// WriteFile writes the block's fields into a new state file at path,
// replacing any existing file.
func WriteFile(path string, b *block.Block, fields []Field) error {
	if b.NDim > 2 {
		return fmt.Errorf("state: %d-dimensional blocks are not supported", b.NDim)
	}
	f, err := hdf5.CreateFile(path, hdf5.F_ACC_TRUNC)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	defer f.Close()

	g, err := f.CreateGroup(b.Name)
	if err != nil {
		return fmt.Errorf("create group %s: %w", b.Name, err)
	}
	defer g.Close()

	for _, fd := range fields {
		if err := writeField(g, b, fd); err != nil {
			return fmt.Errorf("field %s: %w", fd.Name, err)
		}
	}
	return nil
}

func writeField(g *hdf5.Group, b *block.Block, fd Field) error {
	rows, cols := fd.Data.Dims()
	dims := []uint{uint(rows), uint(cols)}
	if b.NDim == 1 {
		if rows != 1 {
			return fmt.Errorf("1-D field data must be a single-row matrix, got %dx%d", rows, cols)
		}
		dims = []uint{uint(cols)}
	}
	space, err := hdf5.NewSimpleDataspace(dims, nil)
	if err != nil {
		return err
	}
	defer space.Close()

	dtype, err := hdf5.NewDatatypeFromValue(float64(0))
	if err != nil {
		return err
	}
	defer dtype.Close()

	// Dataset name carries the block index suffix the OPS reader expects.
	ds, err := g.CreateDataset(fd.Name+"_B0", dtype, space)
	if err != nil {
		return err
	}
	defer ds.Close()

	raw := fd.Data.RawMatrix().Data
	if err := ds.Write(&raw); err != nil {
		return err
	}

	dm := make([]int32, b.NDim)
	dp := make([]int32, b.NDim)
	size := make([]int32, b.NDim)
	base := make([]int32, b.NDim)
	for d := 0; d < b.NDim; d++ {
		dm[d] = int32(fd.Halos[d][0])
		dp[d] = int32(fd.Halos[d][1])
	}
	if b.NDim == 1 {
		size[0] = int32(cols)
	} else {
		size[0] = int32(rows)
		size[1] = int32(cols)
	}
	intAttrs := []struct {
		name   string
		values []int32
	}{
		{"d_m", dm},
		{"d_p", dp},
		{"dim", []int32{1}},
		{"block_index", []int32{int32(b.Number)}},
		{"base", base},
		{"size", size},
	}
	for _, a := range intAttrs {
		if err := writeIntAttr(ds, a.name, a.values); err != nil {
			return err
		}
	}
	strAttrs := []struct {
		name, value string
	}{
		{"ops_type", "ops_dat"},
		{"type", "double"},
		{"block", b.Name},
	}
	for _, a := range strAttrs {
		if err := writeStringAttr(ds, a.name, a.value); err != nil {
			return err
		}
	}
	return nil
}

func writeIntAttr(ds *hdf5.Dataset, name string, values []int32) error {
	space, err := hdf5.NewSimpleDataspace([]uint{uint(len(values))}, nil)
	if err != nil {
		return err
	}
	defer space.Close()
	attr, err := ds.CreateAttribute(name, hdf5.T_NATIVE_INT32, space)
	if err != nil {
		return err
	}
	defer attr.Close()
	return attr.Write(&values, hdf5.T_NATIVE_INT32)
}

func writeStringAttr(ds *hdf5.Dataset, name, value string) error {
	space, err := hdf5.NewSimpleDataspace([]uint{1}, nil)
	if err != nil {
		return err
	}
	defer space.Close()
	attr, err := ds.CreateAttribute(name, hdf5.T_GO_STRING, space)
	if err != nil {
		return err
	}
	defer attr.Close()
	return attr.Write(&value, hdf5.T_GO_STRING)
}

// ReadFile loads every block group of a state file.
func ReadFile(path string) ([]BlockState, error) {
	f, err := hdf5.OpenFile(path, hdf5.F_ACC_RDONLY)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	n, err := f.NumObjects()
	if err != nil {
		return nil, err
	}
	var blocks []BlockState
	for i := uint(0); i < n; i++ {
		name, err := f.ObjectNameByIndex(i)
		if err != nil {
			return nil, err
		}
		bs, err := readBlock(f, name)
		if err != nil {
			return nil, fmt.Errorf("block %s: %w", name, err)
		}
		blocks = append(blocks, *bs)
	}
	return blocks, nil
}

func readBlock(f *hdf5.File, name string) (*BlockState, error) {
	g, err := f.OpenGroup(name)
	if err != nil {
		return nil, err
	}
	defer g.Close()

	n, err := g.NumObjects()
	if err != nil {
		return nil, err
	}
	bs := &BlockState{BlockName: name}
	for i := uint(0); i < n; i++ {
		dsName, err := g.ObjectNameByIndex(i)
		if err != nil {
			return nil, err
		}
		fs, err := readField(g, dsName)
		if err != nil {
			return nil, fmt.Errorf("dataset %s: %w", dsName, err)
		}
		bs.Fields = append(bs.Fields, *fs)
	}
	return bs, nil
}

func readField(g *hdf5.Group, name string) (*FieldState, error) {
	ds, err := g.OpenDataset(name)
	if err != nil {
		return nil, err
	}
	defer ds.Close()

	space := ds.Space()
	defer space.Close()
	dims, _, err := space.SimpleExtentDims()
	if err != nil {
		return nil, err
	}
	shape := make([]int, len(dims))
	total := 1
	for i, d := range dims {
		shape[i] = int(d)
		total *= int(d)
	}
	values := make([]float64, total)
	if err := ds.Read(&values); err != nil {
		return nil, err
	}

	fs := &FieldState{Name: name, Shape: shape, Values: values}
	fs.DM, err = readIntAttr(ds, "d_m", len(dims))
	if err != nil {
		return nil, err
	}
	fs.DP, err = readIntAttr(ds, "d_p", len(dims))
	if err != nil {
		return nil, err
	}
	return fs, nil
}

func readIntAttr(ds *hdf5.Dataset, name string, n int) ([]int32, error) {
	attr, err := ds.OpenAttribute(name)
	if err != nil {
		return nil, err
	}
	defer attr.Close()
	values := make([]int32, n)
	if err := attr.Read(&values, hdf5.T_NATIVE_INT32); err != nil {
		return nil, err
	}
	return values, nil
}
