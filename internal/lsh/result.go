package lsh

// SearchResult holds k neighbors per query in column-major order: column q
// is Neighbors[q*K : (q+1)*K], best first. Slots without a candidate hold
// the reference set size and the policy's worst distance.
type SearchResult struct {
	K          int
	NumQueries int
	Neighbors  []int
	Distances  []float64
}

func newSearchResult(k, nq int) *SearchResult {
	return &SearchResult{
		K:          k,
		NumQueries: nq,
		Neighbors:  make([]int, k*nq),
		Distances:  make([]float64, k*nq),
	}
}

// Column returns the neighbors and distances of query q.
func (r *SearchResult) Column(q int) ([]int, []float64) {
	lo, hi := q*r.K, (q+1)*r.K
	return r.Neighbors[lo:hi:hi], r.Distances[lo:hi:hi]
}

// Neighbor returns the j-th ranked neighbor of query q.
func (r *SearchResult) Neighbor(j, q int) (int, float64) {
	return r.Neighbors[q*r.K+j], r.Distances[q*r.K+j]
}
