package lsh

import (
	"fmt"

	pkgerrors "lshann/pkg/errors"
)

// bucketArena is the second-level hash table shared by all first-level
// tables. rowOf maps a compacted hash to its row (-1 when no point hashed
// there); row r holds counts[r] point indices starting at slots[r*stride].
// Rows never hold more than capacity entries.
type bucketArena struct {
	capacity int
	stride   int
	rowOf    []int32
	counts   []int32
	slots    []int32

	// pending holds rows while the arena is being filled; seal packs them.
	pending [][]int32
}

func newBucketArena(size, capacity int) *bucketArena {
	rowOf := make([]int32, size)
	for i := range rowOf {
		rowOf[i] = -1
	}
	return &bucketArena{capacity: capacity, rowOf: rowOf}
}

// insert appends point to the row of h. It reports false when the row is
// already full and the point was dropped.
func (b *bucketArena) insert(h uint64, point int32) bool {
	row := b.rowOf[h]
	if row < 0 {
		row = int32(len(b.pending))
		b.rowOf[h] = row
		b.pending = append(b.pending, make([]int32, 0, min(b.capacity, 16)))
	}
	if len(b.pending[row]) >= b.capacity {
		return false
	}
	b.pending[row] = append(b.pending[row], point)
	return true
}

// seal packs the pending rows into a dense rows x stride table, where
// stride is the fullest row's size.
func (b *bucketArena) seal() {
	b.stride = 0
	for _, row := range b.pending {
		b.stride = max(b.stride, len(row))
	}
	b.counts = make([]int32, len(b.pending))
	b.slots = make([]int32, len(b.pending)*b.stride)
	for r, row := range b.pending {
		b.counts[r] = int32(len(row))
		copy(b.slots[r*b.stride:], row)
	}
	b.pending = nil
}

// bucket returns the point indices stored under h in insertion order.
func (b *bucketArena) bucket(h uint64) []int32 {
	if h >= uint64(len(b.rowOf)) {
		return nil
	}
	row := b.rowOf[h]
	if row < 0 {
		return nil
	}
	start := int(row) * b.stride
	return b.slots[start : start+int(b.counts[row])]
}

func (b *bucketArena) rows() int { return len(b.counts) }

// check verifies a loaded arena against the table shape and the number of
// reference points.
func (b *bucketArena) check(size, points int) error {
	rows := len(b.counts)
	switch {
	case len(b.rowOf) != size:
		return shapeError("bucketRowInHashTable", len(b.rowOf), size)
	case b.stride < 0 || b.stride > b.capacity:
		return fmt.Errorf("%w: bucket stride %d outside [0, %d]", pkgerrors.ErrCorruptSnapshot, b.stride, b.capacity)
	case len(b.slots) != rows*b.stride:
		return shapeError("secondHashTable", len(b.slots), rows*b.stride)
	}
	for h, row := range b.rowOf {
		if row < -1 || int(row) >= rows {
			return fmt.Errorf("%w: hash %d maps to row %d of %d", pkgerrors.ErrCorruptSnapshot, h, row, rows)
		}
	}
	for r, n := range b.counts {
		if n < 0 || int(n) > b.stride {
			return fmt.Errorf("%w: row %d holds %d of %d entries", pkgerrors.ErrCorruptSnapshot, r, n, b.stride)
		}
		for _, idx := range b.slots[r*b.stride : r*b.stride+int(n)] {
			if idx < 0 || int(idx) >= points {
				return fmt.Errorf("%w: row %d references point %d of %d", pkgerrors.ErrCorruptSnapshot, r, idx, points)
			}
		}
	}
	return nil
}
