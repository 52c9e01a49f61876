package lsh

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"lshann/internal/archive"
	"lshann/internal/metric"
	pkgerrors "lshann/pkg/errors"
)

// Source is the randomness used to draw hash functions. random.Rand
// implements it; tests inject a seeded one.
type Source interface {
	IntN(n int) int
	Normal() float64
	Uniform(lo, hi float64) float64
}

// Kind is a hash family together with the exact distance it is sensitive
// to. The set is closed: Stable, Cosine and Angular are the only values.
type Kind interface {
	Type() HashType
	// Distance is the exact distance evaluated on candidates.
	Distance(a, b []float64) float64

	newFamily(p Params, src Source) family
	emptyFamily() family
}

var (
	Stable  Kind = stableKind{}
	Cosine  Kind = hyperplaneKind{t: CosineHyperplane}
	Angular Kind = hyperplaneKind{t: AngularHyperplane}
)

// KindOf maps a persisted hash type to its Kind.
func KindOf(t HashType) (Kind, error) {
	switch t {
	case StableDistribution:
		return Stable, nil
	case CosineHyperplane:
		return Cosine, nil
	case AngularHyperplane:
		return Angular, nil
	default:
		return nil, fmt.Errorf("%w: %d", pkgerrors.ErrUnsupportedHashType, int(t))
	}
}

// family holds the per-table hash functions of one Kind.
type family interface {
	// codeLen is the number of int64 elements in a table's code.
	codeLen() int
	// code writes table t's code for point into dst.
	code(t int, point []float64, dst []int64)
	serialize(ar archive.Archive, p Params) error
}

type stableKind struct{}

func (stableKind) Type() HashType                  { return StableDistribution }
func (stableKind) Distance(a, b []float64) float64 { return metric.Euclidean(a, b) }
func (stableKind) emptyFamily() family             { return &stableFamily{} }

func (stableKind) newFamily(p Params, src Source) family {
	f := &stableFamily{
		width:       p.HashWidth,
		projections: make([]*mat.Dense, p.NumTables),
		offsets:     mat.NewDense(p.NumProj, p.NumTables, nil),
	}
	for t := range f.projections {
		proj := mat.NewDense(p.NumProj, p.Dims, nil)
		proj.Apply(func(_, _ int, _ float64) float64 { return src.Normal() }, proj)
		f.projections[t] = proj
	}
	f.offsets.Apply(func(_, _ int, _ float64) float64 { return src.Uniform(0, p.HashWidth) }, f.offsets)
	return f
}

// stableFamily hashes with floor((a·x + b) / w) per projection.
type stableFamily struct {
	width       float64
	projections []*mat.Dense // per table: numProj x dims, N(0,1)
	offsets     *mat.Dense   // numProj x numTables, U[0, width)
}

func (f *stableFamily) codeLen() int {
	r, _ := f.offsets.Dims()
	return r
}

func (f *stableFamily) code(t int, point []float64, dst []int64) {
	proj := f.projections[t]
	for j := range dst {
		v := floats.Dot(proj.RawRowView(j), point) + f.offsets.At(j, t)
		dst[j] = int64(math.Floor(v / f.width))
	}
}

func (f *stableFamily) serialize(ar archive.Archive, p Params) error {
	var projections, offsets []float64
	if !ar.Loading() {
		projections = flatten(f.projections)
		offsets = f.offsets.RawMatrix().Data
	}
	ar.Float64s("hash.projections", &projections)
	ar.Float64s("hash.offsets", &offsets)
	if err := ar.Err(); err != nil || !ar.Loading() {
		return err
	}

	if len(offsets) != p.NumProj*p.NumTables {
		return shapeError("hash.offsets", len(offsets), p.NumProj*p.NumTables)
	}
	tables, err := unflatten("hash.projections", projections, p.NumTables, p.NumProj, p.Dims)
	if err != nil {
		return err
	}
	f.width = p.HashWidth
	f.projections = tables
	f.offsets = mat.NewDense(p.NumProj, p.NumTables, offsets)
	return nil
}

type hyperplaneKind struct {
	t HashType
}

func (k hyperplaneKind) Type() HashType { return k.t }

func (k hyperplaneKind) Distance(a, b []float64) float64 {
	if k.t == AngularHyperplane {
		return metric.Angular(a, b)
	}
	return metric.Cosine(a, b)
}

func (hyperplaneKind) emptyFamily() family { return &hyperplaneFamily{} }

func (hyperplaneKind) newFamily(p Params, src Source) family {
	f := &hyperplaneFamily{
		numPlanes: p.NumPlanes,
		shears:    p.Shears,
		planes:    make([]*mat.Dense, p.NumTables),
	}
	for t := range f.planes {
		normals := mat.NewDense(p.NumPlanes*p.Shears, p.Dims, nil)
		normals.Apply(func(_, _ int, _ float64) float64 { return src.Normal() }, normals)
		f.planes[t] = normals
	}
	return f
}

// hyperplaneFamily hashes with the sign pattern of random hyperplanes.
// Code element s packs planes s*numPlanes .. s*numPlanes+numPlanes-1, bit b
// set when the point lies on the non-negative side of plane b.
type hyperplaneFamily struct {
	numPlanes int
	shears    int
	planes    []*mat.Dense // per table: (numPlanes*shears) x dims
}

func (f *hyperplaneFamily) codeLen() int { return f.shears }

func (f *hyperplaneFamily) code(t int, point []float64, dst []int64) {
	normals := f.planes[t]
	for s := range dst {
		var bits int64
		for b := 0; b < f.numPlanes; b++ {
			if floats.Dot(normals.RawRowView(s*f.numPlanes+b), point) >= 0 {
				bits |= 1 << b
			}
		}
		dst[s] = bits
	}
}

func (f *hyperplaneFamily) serialize(ar archive.Archive, p Params) error {
	var planes []float64
	if !ar.Loading() {
		planes = flatten(f.planes)
	}
	ar.Float64s("hash.planes", &planes)
	if err := ar.Err(); err != nil || !ar.Loading() {
		return err
	}

	tables, err := unflatten("hash.planes", planes, p.NumTables, p.NumPlanes*p.Shears, p.Dims)
	if err != nil {
		return err
	}
	f.numPlanes = p.NumPlanes
	f.shears = p.Shears
	f.planes = tables
	return nil
}

// flatten concatenates the row-major data of equally shaped matrices.
func flatten(ms []*mat.Dense) []float64 {
	var out []float64
	for _, m := range ms {
		r, c := m.Dims()
		for i := 0; i < r; i++ {
			out = append(out, m.RawRowView(i)[:c]...)
		}
	}
	return out
}

func unflatten(field string, data []float64, n, rows, cols int) ([]*mat.Dense, error) {
	size := rows * cols
	if len(data) != n*size || size == 0 {
		return nil, shapeError(field, len(data), n*size)
	}
	out := make([]*mat.Dense, n)
	for t := range out {
		out[t] = mat.NewDense(rows, cols, data[t*size:(t+1)*size])
	}
	return out, nil
}

func shapeError(field string, got, want int) error {
	return fmt.Errorf("%w: %s has %d values, expected %d", pkgerrors.ErrCorruptSnapshot, field, got, want)
}
