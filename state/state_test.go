package state

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	"github.com/structmesh/opsgen/block"
)

func TestWriteReadRoundTrip(t *testing.T) {
	b := block.New(0, 1, "trip_block")
	b.Shape = []int{12}

	data := mat.NewDense(1, 12, nil)
	for j := 0; j < 12; j++ {
		data.Set(0, j, float64(j)*0.5)
	}
	fields := []Field{
		{Name: "u", Data: data, Halos: [][2]int{{-1, 1}}},
	}

	path := filepath.Join(t.TempDir(), "state.h5")
	require.NoError(t, WriteFile(path, b, fields))

	blocks, err := ReadFile(path)
	require.NoError(t, err)
	require.Len(t, blocks, 1)
	assert.Equal(t, "trip_block", blocks[0].BlockName)

	require.Len(t, blocks[0].Fields, 1)
	f := blocks[0].Fields[0]
	assert.Equal(t, "u_B0", f.Name)
	assert.Equal(t, []int{12}, f.Shape)
	assert.Equal(t, []int32{-1}, f.DM)
	assert.Equal(t, []int32{1}, f.DP)
	require.Len(t, f.Values, 12)
	assert.Equal(t, 5.5, f.Values[11])
}

func TestWriteRejectsHighDimensions(t *testing.T) {
	b := block.New(0, 3, "cube_block")
	b.Shape = []int{4, 4, 4}
	err := WriteFile(filepath.Join(t.TempDir(), "state.h5"), b, nil)
	require.Error(t, err)
}

func TestWriteRejectsBadRowCount(t *testing.T) {
	b := block.New(0, 1, "flat_block")
	b.Shape = []int{4}
	fields := []Field{
		{Name: "u", Data: mat.NewDense(2, 2, nil), Halos: [][2]int{{0, 0}}},
	}
	err := WriteFile(filepath.Join(t.TempDir(), "state.h5"), b, fields)
	require.Error(t, err)
}
