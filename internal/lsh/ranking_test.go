package lsh

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	pkgerrors "lshann/pkg/errors"
)

func TestPolicyByName(t *testing.T) {
	p, err := PolicyByName("")
	require.NoError(t, err)
	assert.Equal(t, NearestFirst, p)

	p, err = PolicyByName("furthest")
	require.NoError(t, err)
	assert.Equal(t, FurthestFirst, p)

	_, err = PolicyByName("closest")
	assert.ErrorIs(t, err, pkgerrors.ErrInvalidParameter)
}

func TestTopKNearestFirst(t *testing.T) {
	neighbors := make([]int, 3)
	distances := make([]float64, 3)
	top := NewTopK(NearestFirst, 100, neighbors, distances)

	assert.Equal(t, []int{100, 100, 100}, neighbors)
	assert.Equal(t, []float64{math.MaxFloat64, math.MaxFloat64, math.MaxFloat64}, distances)

	assert.True(t, top.Offer(7, 2.0))
	assert.True(t, top.Offer(3, 1.0))
	assert.True(t, top.Offer(9, 3.0))
	assert.Equal(t, []int{3, 7, 9}, neighbors)

	assert.Equal(t, -1, top.Position(3.0))
	assert.False(t, top.Offer(11, 4.0))

	assert.True(t, top.Offer(5, 1.5))
	assert.Equal(t, []int{3, 5, 7}, neighbors)
	assert.Equal(t, []float64{1.0, 1.5, 2.0}, distances)
}

func TestTopKTiesKeepEarlierOffer(t *testing.T) {
	neighbors := make([]int, 2)
	distances := make([]float64, 2)
	top := NewTopK(NearestFirst, 10, neighbors, distances)

	top.Offer(1, 1.0)
	top.Offer(2, 1.0)
	assert.Equal(t, []int{1, 2}, neighbors)

	assert.Equal(t, -1, top.Position(1.0))
	assert.False(t, top.Offer(3, 1.0))
	assert.Equal(t, []int{1, 2}, neighbors)
}

func TestTopKFurthestFirst(t *testing.T) {
	neighbors := make([]int, 3)
	distances := make([]float64, 3)
	top := NewTopK(FurthestFirst, 4, neighbors, distances)
	assert.Equal(t, []float64{0, 0, 0}, distances)

	top.Offer(0, 1.0)
	top.Offer(1, 5.0)
	assert.False(t, top.Offer(2, 0), "zero never beats the sentinel")

	assert.Equal(t, []int{1, 0, 4}, neighbors)
	assert.Equal(t, []float64{5.0, 1.0, 0}, distances)
}

func TestTopKZeroCapacity(t *testing.T) {
	top := NewTopK(NearestFirst, 0, nil, nil)
	assert.Equal(t, -1, top.Position(0))
	assert.False(t, top.Offer(0, 0))
}
