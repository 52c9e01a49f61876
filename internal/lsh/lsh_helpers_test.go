package lsh

import (
	"math/rand/v2"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"lshann/internal/dataset"
)

// uniformPoints returns n points in [0, 1)^dims.
func uniformPoints(t *testing.T, seed uint64, n, dims int) *dataset.Dataset {
	t.Helper()
	rng := rand.New(rand.NewPCG(seed, seed+1))
	data := make([]float64, n*dims)
	for i := range data {
		data[i] = rng.Float64()
	}
	ds, err := dataset.New(dims, data)
	require.NoError(t, err)
	return ds
}

func stableParams(numProj, numTables int) Params {
	p := DefaultParams()
	p.NumProj = numProj
	p.NumTables = numTables
	return p
}

func hyperplaneParams(t HashType, numPlanes, numTables int) Params {
	p := DefaultParams()
	p.HashType = t
	p.NumPlanes = numPlanes
	p.NumTables = numTables
	return p
}

type countingObserver struct {
	mu       sync.Mutex
	started  int
	finished int
	queries  int
}

func (o *countingObserver) SearchStarted(n int) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.started++
	o.queries += n
}

func (o *countingObserver) SearchFinished(int, time.Duration) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.finished++
}
