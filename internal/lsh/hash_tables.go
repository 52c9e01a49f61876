package lsh

import (
	"fmt"
	"math"
	"slices"

	"lshann/internal/archive"
	"lshann/internal/dataset"
	"lshann/internal/metric"
	pkgerrors "lshann/pkg/errors"
	"lshann/pkg/logger"
)

// HashTables maps points to candidate buckets: numTables first-level hash
// functions of one Kind, compacted into a single second-level table.
type HashTables struct {
	params  Params // resolved: Dims > 0, HashWidth > 0 for the stable family
	kind    Kind
	family  family
	weights []uint64 // one per code element, uniform in [0, SecondHashSize)
	buckets *bucketArena
	points  int
	dropped int
}

// BuildHashTables draws the hash functions from src and buckets every point
// of ref. Dims of 0 is taken from ref, and for the stable family a HashWidth
// of 0 is estimated from ref.
func BuildHashTables(ref *dataset.Dataset, p Params, src Source) (*HashTables, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	kind, err := KindOf(p.HashType)
	if err != nil {
		return nil, err
	}
	if p.Dims == 0 {
		p.Dims = ref.Dims()
	}
	if p.Dims <= 0 {
		return nil, fmt.Errorf("%w: reference set has no dimensionality", pkgerrors.ErrInvalidDimension)
	}
	if ref.Len() > math.MaxInt32 {
		return nil, fmt.Errorf("%w: %d reference points", pkgerrors.ErrInvalidParameter, ref.Len())
	}
	if kind == Stable {
		if p.HashWidth == 0 {
			if p.HashWidth, err = estimateHashWidth(ref, src); err != nil {
				return nil, err
			}
		}
		logger.Info("Hash width chosen", "hash_width", p.HashWidth)
	}

	h := &HashTables{
		params:  p,
		kind:    kind,
		family:  kind.newFamily(p, src),
		buckets: newBucketArena(p.SecondHashSize, p.BucketSize),
		points:  ref.Len(),
	}
	h.weights = make([]uint64, h.family.codeLen())
	for j := range h.weights {
		h.weights[j] = uint64(src.IntN(p.SecondHashSize))
	}

	code := make([]int64, h.family.codeLen())
	for t := 0; t < p.NumTables; t++ {
		for i := 0; i < ref.Len(); i++ {
			h.family.code(t, ref.Point(i), code)
			if !h.buckets.insert(h.Compact(code), int32(i)) {
				h.dropped++
			}
		}
	}
	h.buckets.seal()

	if h.dropped > 0 {
		logger.Debug("Bucket capacity exceeded, points dropped",
			"dropped", h.dropped, "bucket_size", p.BucketSize)
	}
	logger.Debug("Hash tables built",
		"type", p.HashType.String(),
		"tables", p.NumTables,
		"points", h.points,
		"rows", h.buckets.rows())
	return h, nil
}

// estimateHashWidth averages the distance of hashWidthSamples random pairs,
// drawn with replacement.
func estimateHashWidth(ref *dataset.Dataset, src Source) (float64, error) {
	n := ref.Len()
	if n == 0 {
		return 0, fmt.Errorf("%w: hash width cannot be estimated from an empty reference set",
			pkgerrors.ErrInsufficientData)
	}
	var sum float64
	for s := 0; s < hashWidthSamples; s++ {
		a, b := src.IntN(n), src.IntN(n)
		sum += metric.Euclidean(ref.Point(a), ref.Point(b))
	}
	width := sum / hashWidthSamples
	if width <= 0 || math.IsNaN(width) {
		logger.Warn("Estimated hash width is not positive, using 1", "estimate", width)
		width = 1
	}
	return width, nil
}

// Compact folds a table code into a second-level slot:
// sum_j w_j * (c_j mod P) mod P with P = SecondHashSize.
func (h *HashTables) Compact(code []int64) uint64 {
	p := int64(h.params.SecondHashSize)
	var acc uint64
	for j, c := range code {
		r := c % p
		if r < 0 {
			r += p
		}
		acc = (acc + h.weights[j]*uint64(r)) % uint64(p)
	}
	return acc
}

// Code returns table t's code for point.
func (h *HashTables) Code(t int, point []float64) []int64 {
	code := make([]int64, h.family.codeLen())
	h.family.code(t, point, code)
	return code
}

// Bucket returns the reference indices stored under a compacted hash.
func (h *HashTables) Bucket(hash uint64) []int32 {
	return h.buckets.bucket(hash)
}

// Candidates returns the sorted, duplicate-free union of the buckets query
// falls into in the first numTablesToSearch tables. 0 or a value above the
// table count searches every table.
func (h *HashTables) Candidates(query []float64, numTablesToSearch int) []int {
	tables := h.params.NumTables
	if numTablesToSearch > 0 && numTablesToSearch < tables {
		tables = numTablesToSearch
	}
	code := make([]int64, h.family.codeLen())
	var out []int
	for t := 0; t < tables; t++ {
		h.family.code(t, query, code)
		for _, idx := range h.buckets.bucket(h.Compact(code)) {
			out = append(out, int(idx))
		}
	}
	slices.Sort(out)
	return slices.Compact(out)
}

func (h *HashTables) Kind() Kind         { return h.kind }
func (h *HashTables) Params() Params     { return h.params }
func (h *HashTables) HashWidth() float64 { return h.params.HashWidth }
func (h *HashTables) NumTables() int     { return h.params.NumTables }

// Rows is the number of occupied second-level rows.
func (h *HashTables) Rows() int { return h.buckets.rows() }

// Dropped counts insertions rejected because their bucket was full.
func (h *HashTables) Dropped() int { return h.dropped }

// Serialize saves or loads the tables through ar. On load the receiver is
// filled in place.
func (h *HashTables) Serialize(ar archive.Archive) error {
	p := &h.params
	if ar.Loading() {
		h.buckets = &bucketArena{}
	}
	hashType := int(p.HashType)
	ar.Int("hash.hashType", &hashType)
	ar.Int("hash.secondHashSize", &p.SecondHashSize)
	ar.Int("hash.bucketSize", &p.BucketSize)
	ar.Int("hash.numProj", &p.NumProj)
	ar.Int("hash.numTables", &p.NumTables)
	ar.Float64("hash.hashWidth", &p.HashWidth)
	ar.Int("hash.dims", &p.Dims)
	ar.Int("hash.numPlanes", &p.NumPlanes)
	ar.Int("hash.shears", &p.Shears)
	ar.Int("hash.points", &h.points)
	ar.Int("hash.dropped", &h.dropped)
	ar.Uint64s("hash.secondHashWeights", &h.weights)
	ar.Int("hash.bucketStride", &h.buckets.stride)
	ar.Int32s("hash.bucketRowInHashTable", &h.buckets.rowOf)
	ar.Int32s("hash.bucketContentSize", &h.buckets.counts)
	ar.Int32s("hash.secondHashTable", &h.buckets.slots)
	if err := ar.Err(); err != nil {
		return err
	}

	if ar.Loading() {
		p.HashType = HashType(hashType)
		if err := h.load(); err != nil {
			return err
		}
	}
	return h.family.serialize(ar, *p)
}

// load checks freshly read scalars and prepares an empty family for the
// hash function fields that follow.
func (h *HashTables) load() error {
	p := h.params
	if err := p.Validate(); err != nil {
		return fmt.Errorf("%w: %v", pkgerrors.ErrCorruptSnapshot, err)
	}
	if p.Dims <= 0 || h.points < 0 || h.dropped < 0 {
		return fmt.Errorf("%w: dims %d, points %d, dropped %d",
			pkgerrors.ErrCorruptSnapshot, p.Dims, h.points, h.dropped)
	}
	if p.HashType == StableDistribution && p.HashWidth <= 0 {
		return fmt.Errorf("%w: hash width %v", pkgerrors.ErrCorruptSnapshot, p.HashWidth)
	}
	kind, err := KindOf(p.HashType)
	if err != nil {
		return err
	}
	codeLen := p.NumProj
	if kind != Stable {
		codeLen = p.Shears
	}
	if len(h.weights) != codeLen {
		return shapeError("hash.secondHashWeights", len(h.weights), codeLen)
	}
	for _, w := range h.weights {
		if w >= uint64(p.SecondHashSize) {
			return fmt.Errorf("%w: second hash weight %d outside [0, %d)",
				pkgerrors.ErrCorruptSnapshot, w, p.SecondHashSize)
		}
	}
	h.buckets.capacity = p.BucketSize
	if err := h.buckets.check(p.SecondHashSize, h.points); err != nil {
		return err
	}
	h.kind = kind
	h.family = kind.emptyFamily()
	return nil
}
