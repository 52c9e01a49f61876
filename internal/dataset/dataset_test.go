package dataset

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	pkgerrors "lshann/pkg/errors"
)

func TestNewColumnMajor(t *testing.T) {
	// Two 3-dimensional points laid out column by column.
	ds, err := New(3, []float64{1, 2, 3, 4, 5, 6})
	require.NoError(t, err)

	assert.Equal(t, 3, ds.Dims())
	assert.Equal(t, 2, ds.Len())
	assert.Equal(t, []float64{1, 2, 3}, ds.Point(0))
	assert.Equal(t, []float64{4, 5, 6}, ds.Point(1))

	m := ds.Matrix()
	r, c := m.Dims()
	assert.Equal(t, 3, r)
	assert.Equal(t, 2, c)
	assert.Equal(t, 5.0, m.At(1, 1))
}

func TestNewRejectsBadShapes(t *testing.T) {
	_, err := New(0, []float64{1})
	assert.ErrorIs(t, err, pkgerrors.ErrInvalidDimension)

	_, err = New(4, []float64{1, 2, 3})
	assert.ErrorIs(t, err, pkgerrors.ErrInvalidDimension)
}

func TestFromPoints(t *testing.T) {
	ds, err := FromPoints([][]float64{{1, 0}, {0, 1}, {1, 1}})
	require.NoError(t, err)
	assert.Equal(t, 2, ds.Dims())
	assert.Equal(t, 3, ds.Len())
	assert.Equal(t, []float64{1, 0, 0, 1, 1, 1}, ds.Raw())

	_, err = FromPoints([][]float64{{1, 0}, {0}})
	assert.ErrorIs(t, err, pkgerrors.ErrInvalidDimension)

	empty, err := FromPoints(nil)
	require.NoError(t, err)
	assert.Equal(t, 0, empty.Len())
}

func TestFromMatrixCopiesColumns(t *testing.T) {
	m := mat.NewDense(2, 3, []float64{
		1, 2, 3,
		4, 5, 6,
	})
	ds := FromMatrix(m)
	assert.Equal(t, 2, ds.Dims())
	assert.Equal(t, 3, ds.Len())
	assert.Equal(t, []float64{2, 5}, ds.Point(1))

	m.Set(0, 1, 100)
	assert.Equal(t, []float64{2, 5}, ds.Point(1))
}

func TestCloneAndRelease(t *testing.T) {
	ds, err := New(2, []float64{1, 2, 3, 4})
	require.NoError(t, err)

	clone := ds.Clone()
	ds.Release()

	assert.Equal(t, 0, ds.Len())
	assert.Equal(t, 0, ds.Dims())
	assert.Equal(t, 2, clone.Len())
	assert.Equal(t, []float64{3, 4}, clone.Point(1))
}

func TestEmpty(t *testing.T) {
	ds := Empty()
	assert.Equal(t, 0, ds.Len())
	assert.Equal(t, 0, ds.Dims())
	assert.Nil(t, ds.Raw())
	assert.Nil(t, ds.Matrix())
	assert.Equal(t, 0, ds.Clone().Len())
}
