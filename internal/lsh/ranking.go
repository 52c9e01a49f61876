package lsh

import (
	"fmt"
	"math"

	pkgerrors "lshann/pkg/errors"
)

// RankingPolicy orders candidate distances.
type RankingPolicy interface {
	// String names the policy in configuration.
	String() string
	// WorstDistance is the sentinel distance of an unfilled result slot.
	WorstDistance() float64
	// IsBetter reports whether value ranks strictly ahead of ref.
	IsBetter(value, ref float64) bool
}

type nearestFirst struct{}

func (nearestFirst) String() string                   { return "nearest" }
func (nearestFirst) WorstDistance() float64           { return math.MaxFloat64 }
func (nearestFirst) IsBetter(value, ref float64) bool { return value < ref }

type furthestFirst struct{}

func (furthestFirst) String() string                   { return "furthest" }
func (furthestFirst) WorstDistance() float64           { return 0 }
func (furthestFirst) IsBetter(value, ref float64) bool { return value > ref }

var (
	NearestFirst  RankingPolicy = nearestFirst{}
	FurthestFirst RankingPolicy = furthestFirst{}
)

// PolicyByName resolves "nearest" or "furthest". An empty name is nearest.
func PolicyByName(name string) (RankingPolicy, error) {
	switch name {
	case "", NearestFirst.String():
		return NearestFirst, nil
	case FurthestFirst.String():
		return FurthestFirst, nil
	default:
		return nil, fmt.Errorf("%w: ranking policy %q", pkgerrors.ErrInvalidParameter, name)
	}
}

// TopK keeps the k best candidates of one query in a caller-owned column of
// a SearchResult. Ties keep the earlier offer.
type TopK struct {
	policy    RankingPolicy
	neighbors []int
	distances []float64
}

// NewTopK fills neighbors with sentinel and distances with the policy's
// worst distance, and returns a TopK writing into them. Both slices must
// have length k.
func NewTopK(policy RankingPolicy, sentinel int, neighbors []int, distances []float64) *TopK {
	worst := policy.WorstDistance()
	for i := range neighbors {
		neighbors[i] = sentinel
		distances[i] = worst
	}
	return &TopK{policy: policy, neighbors: neighbors, distances: distances}
}

// Position is the slot d would be inserted at, or -1 when d does not beat
// the last slot.
func (t *TopK) Position(d float64) int {
	for i, cur := range t.distances {
		if t.policy.IsBetter(d, cur) {
			return i
		}
	}
	return -1
}

// Offer inserts candidate idx at distance d, shifting worse entries down.
func (t *TopK) Offer(idx int, d float64) bool {
	pos := t.Position(d)
	if pos < 0 {
		return false
	}
	copy(t.neighbors[pos+1:], t.neighbors[pos:])
	copy(t.distances[pos+1:], t.distances[pos:])
	t.neighbors[pos] = idx
	t.distances[pos] = d
	return true
}
