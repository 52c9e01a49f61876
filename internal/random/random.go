// Package random supplies the sampling used to draw LSH projections,
// hyperplanes, offsets and second-hash weights.
package random

import (
	"math/rand/v2"

	"gonum.org/v1/gonum/stat/distuv"
)

// Rand is a seeded sampler. It is not safe for concurrent use.
type Rand struct {
	rng     *rand.Rand
	normal  distuv.Normal
	uniform distuv.Uniform
}

// New returns a deterministic sampler for seed.
func New(seed uint64) *Rand {
	src := rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)
	return &Rand{
		rng:     rand.New(src),
		normal:  distuv.Normal{Mu: 0, Sigma: 1, Src: src},
		uniform: distuv.Uniform{Min: 0, Max: 1, Src: src},
	}
}

// NewRandom returns a sampler seeded from the runtime's entropy.
func NewRandom() *Rand {
	return New(rand.Uint64())
}

// IntN returns a uniform integer in [0, n).
func (r *Rand) IntN(n int) int {
	return r.rng.IntN(n)
}

// Normal returns a standard normal sample.
func (r *Rand) Normal() float64 {
	return r.normal.Rand()
}

// Uniform returns a uniform sample in [lo, hi).
func (r *Rand) Uniform(lo, hi float64) float64 {
	return lo + (hi-lo)*r.uniform.Rand()
}
