package lsh

import (
	"fmt"
	"math"

	pkgerrors "lshann/pkg/errors"
)

// HashType is the persisted code of a hash family.
type HashType int

const (
	StableDistribution HashType = 1 // L2, random projections
	CosineHyperplane   HashType = 2 // cosine distance, random hyperplanes
	AngularHyperplane  HashType = 3 // angular distance, random hyperplanes

	MinHashType = StableDistribution
	MaxHashType = AngularHyperplane
)

func (t HashType) String() string {
	switch t {
	case StableDistribution:
		return "stable"
	case CosineHyperplane:
		return "cosine"
	case AngularHyperplane:
		return "angular"
	default:
		return fmt.Sprintf("HashType(%d)", int(t))
	}
}

// ParseHashType accepts the names printed by HashType.String.
func ParseHashType(name string) (HashType, error) {
	for t := MinHashType; t <= MaxHashType; t++ {
		if t.String() == name {
			return t, nil
		}
	}
	return 0, fmt.Errorf("%w: %q", pkgerrors.ErrUnsupportedHashType, name)
}

// Defaults
const (
	DefaultSecondHashSize = 99901
	DefaultBucketSize     = 500
	DefaultNumProj        = 10
	DefaultNumTables      = 10
	DefaultNumPlanes      = 8
	DefaultShears         = 1

	// maxPlanes keeps a packed sign pattern inside an int64 code element.
	maxPlanes = 62
	// hashWidthSamples is the number of random pairs averaged when the hash
	// width is estimated from the data.
	hashWidthSamples = 25
)

// Params is the training parameter surface of an Index.
type Params struct {
	HashType       HashType `yaml:"hash_type" json:"hash_type"`
	SecondHashSize int      `yaml:"second_hash_size" json:"second_hash_size"`
	BucketSize     int      `yaml:"bucket_size" json:"bucket_size"`
	NumProj        int      `yaml:"num_proj" json:"num_proj"`
	NumTables      int      `yaml:"num_tables" json:"num_tables"`
	// HashWidth of 0 is estimated from the reference set.
	HashWidth float64 `yaml:"hash_width" json:"hash_width"`
	// Dims of 0 is taken from the reference set.
	Dims      int `yaml:"dims" json:"dims"`
	NumPlanes int `yaml:"num_planes" json:"num_planes"`
	// Shears is the number of packed sign patterns per hyperplane table.
	Shears int `yaml:"shears" json:"shears"`
}

// DefaultParams returns the stable-distribution defaults.
func DefaultParams() Params {
	return Params{
		HashType:       StableDistribution,
		SecondHashSize: DefaultSecondHashSize,
		BucketSize:     DefaultBucketSize,
		NumProj:        DefaultNumProj,
		NumTables:      DefaultNumTables,
		NumPlanes:      DefaultNumPlanes,
		Shears:         DefaultShears,
	}
}

// Validate checks every field that training depends on.
func (p Params) Validate() error {
	if p.HashType < MinHashType || p.HashType > MaxHashType {
		return fmt.Errorf("%w: %d (valid range %d..%d)",
			pkgerrors.ErrUnsupportedHashType, int(p.HashType), MinHashType, MaxHashType)
	}
	switch {
	case p.SecondHashSize <= 0 || p.SecondHashSize > math.MaxInt32:
		return invalid("second_hash_size", p.SecondHashSize)
	case p.BucketSize <= 0 || p.BucketSize > math.MaxInt32:
		return invalid("bucket_size", p.BucketSize)
	case p.NumTables <= 0:
		return invalid("num_tables", p.NumTables)
	case p.Dims < 0:
		return invalid("dims", p.Dims)
	case p.HashWidth < 0 || math.IsNaN(p.HashWidth) || math.IsInf(p.HashWidth, 0):
		return fmt.Errorf("%w: hash_width %v", pkgerrors.ErrInvalidParameter, p.HashWidth)
	}
	if p.HashType == StableDistribution {
		if p.NumProj <= 0 {
			return invalid("num_proj", p.NumProj)
		}
		return nil
	}
	if p.NumPlanes <= 0 || p.NumPlanes > maxPlanes {
		return invalid("num_planes", p.NumPlanes)
	}
	if p.Shears <= 0 {
		return invalid("shears", p.Shears)
	}
	return nil
}

func invalid(field string, v int) error {
	return fmt.Errorf("%w: %s %d", pkgerrors.ErrInvalidParameter, field, v)
}
