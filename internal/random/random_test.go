package random

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"gonum.org/v1/gonum/stat"
)

func TestSameSeedSameSequence(t *testing.T) {
	a, b := New(7), New(7)
	for i := 0; i < 100; i++ {
		assert.Equal(t, a.IntN(1000), b.IntN(1000))
		assert.Equal(t, a.Normal(), b.Normal())
		assert.Equal(t, a.Uniform(-1, 1), b.Uniform(-1, 1))
	}
}

func TestDifferentSeedsDiverge(t *testing.T) {
	a, b := New(1), New(2)
	same := 0
	for i := 0; i < 50; i++ {
		if a.Normal() == b.Normal() {
			same++
		}
	}
	assert.Less(t, same, 50)
}

func TestRanges(t *testing.T) {
	r := New(42)
	for i := 0; i < 1000; i++ {
		n := r.IntN(10)
		assert.True(t, n >= 0 && n < 10)

		u := r.Uniform(2, 5)
		assert.True(t, u >= 2 && u < 5, "uniform sample %f out of range", u)
	}
}

func TestNormalMoments(t *testing.T) {
	r := New(3)
	samples := make([]float64, 20000)
	for i := range samples {
		samples[i] = r.Normal()
	}
	mean, std := stat.MeanStdDev(samples, nil)
	assert.InDelta(t, 0, mean, 0.05)
	assert.InDelta(t, 1, std, 0.05)
}
