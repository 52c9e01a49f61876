// Package metric implements the exact distances evaluated on LSH candidates.
package metric

import (
	"math"

	"gonum.org/v1/gonum/floats"
)

// Func is an exact distance between two points of equal length.
type Func func(a, b []float64) float64

// Euclidean is the L2 distance.
func Euclidean(a, b []float64) float64 {
	if len(a) == 0 {
		return 0
	}
	return floats.Distance(a, b, 2)
}

// cosineSimilarity returns the cosine of the angle between a and b and
// false when either vector has zero norm.
func cosineSimilarity(a, b []float64) (float64, bool) {
	if len(a) == 0 {
		return 0, false
	}
	na := floats.Norm(a, 2)
	nb := floats.Norm(b, 2)
	if na == 0 || nb == 0 {
		return 0, false
	}
	cos := floats.Dot(a, b) / (na * nb)
	// rounding can push |cos| past 1
	return math.Max(-1, math.Min(1, cos)), true
}

// Cosine is 1 - cos(a, b), in [0, 2]. A zero vector is at distance 1 from
// everything.
func Cosine(a, b []float64) float64 {
	cos, ok := cosineSimilarity(a, b)
	if !ok {
		return 1
	}
	return 1 - cos
}

// Angular is the angle between a and b normalized by pi, in [0, 1]. A zero
// vector is at the maximal distance 1. The angle is taken from the unit
// vectors as 2*atan2(|a-b|, |a+b|), which is exact at 0 where acos of a
// rounded cosine is not.
func Angular(a, b []float64) float64 {
	if len(a) == 0 {
		return 1
	}
	na := floats.Norm(a, 2)
	nb := floats.Norm(b, 2)
	if na == 0 || nb == 0 {
		return 1
	}
	ua := make([]float64, len(a))
	ub := make([]float64, len(b))
	floats.ScaleTo(ua, 1/na, a)
	floats.ScaleTo(ub, 1/nb, b)
	return 2 * math.Atan2(floats.Distance(ua, ub, 2), sumNorm(ua, ub)) / math.Pi
}

func sumNorm(a, b []float64) float64 {
	sum := make([]float64, len(a))
	floats.AddTo(sum, a, b)
	return floats.Norm(sum, 2)
}
