// Package dataset holds column-major point collections: column i of a
// D x N dataset is the i-th D-dimensional point.
package dataset

import (
	"fmt"

	"gonum.org/v1/gonum/mat"

	pkgerrors "lshann/pkg/errors"
)

// Dataset is an immutable set of points. Column-major D x N storage has the
// same memory layout as a row-major N x D matrix, so points are kept as the
// rows of a gonum Dense and every point is a contiguous slice.
type Dataset struct {
	dims   int
	points *mat.Dense // N x D, nil when the dataset has no points
}

// Empty returns a dataset with no points and no dimensionality.
func Empty() *Dataset {
	return &Dataset{}
}

// New wraps column-major data of the given dimensionality. data is not copied.
func New(dims int, data []float64) (*Dataset, error) {
	if dims <= 0 {
		return nil, fmt.Errorf("%w: %d", pkgerrors.ErrInvalidDimension, dims)
	}
	if len(data)%dims != 0 {
		return nil, fmt.Errorf("%w: %d values do not form %d-dimensional points",
			pkgerrors.ErrInvalidDimension, len(data), dims)
	}
	n := len(data) / dims
	if n == 0 {
		return &Dataset{dims: dims}, nil
	}
	return &Dataset{dims: dims, points: mat.NewDense(n, dims, data)}, nil
}

// FromPoints copies points into a new dataset. All points must share one
// dimensionality.
func FromPoints(points [][]float64) (*Dataset, error) {
	if len(points) == 0 {
		return Empty(), nil
	}
	dims := len(points[0])
	if dims == 0 {
		return nil, fmt.Errorf("%w: point 0 is empty", pkgerrors.ErrInvalidDimension)
	}
	data := make([]float64, 0, len(points)*dims)
	for i, p := range points {
		if len(p) != dims {
			return nil, fmt.Errorf("%w: point %d has %d values, expected %d",
				pkgerrors.ErrInvalidDimension, i, len(p), dims)
		}
		data = append(data, p...)
	}
	return New(dims, data)
}

// FromMatrix copies a D x N matrix whose columns are points.
func FromMatrix(m mat.Matrix) *Dataset {
	dims, n := m.Dims()
	if n == 0 || dims == 0 {
		return &Dataset{dims: dims}
	}
	points := mat.NewDense(n, dims, nil)
	points.Copy(m.T())
	return &Dataset{dims: dims, points: points}
}

// Dims is the dimensionality D of every point.
func (d *Dataset) Dims() int {
	return d.dims
}

// Len is the number of points N.
func (d *Dataset) Len() int {
	if d.points == nil {
		return 0
	}
	n, _ := d.points.Dims()
	return n
}

// Point returns a view of point i. Callers must not modify it.
func (d *Dataset) Point(i int) []float64 {
	return d.points.RawRowView(i)
}

// Matrix returns the dataset as a D x N matrix view.
func (d *Dataset) Matrix() mat.Matrix {
	if d.points == nil {
		return nil
	}
	return d.points.T()
}

// Raw returns the column-major backing data.
func (d *Dataset) Raw() []float64 {
	if d.points == nil {
		return nil
	}
	return d.points.RawMatrix().Data
}

// Clone returns a deep copy.
func (d *Dataset) Clone() *Dataset {
	if d.points == nil {
		return &Dataset{dims: d.dims}
	}
	return &Dataset{dims: d.dims, points: mat.DenseCopyOf(d.points)}
}

// Release drops the point storage. Only the owner of a dataset may call it.
func (d *Dataset) Release() {
	d.points = nil
	d.dims = 0
}
