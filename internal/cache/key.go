package cache

import (
	"encoding/binary"
	"math"

	"github.com/twmb/murmur3"
)

// SearchKey hashes a search request: the index name and generation, whether
// the reference set searches itself, k, the number of tables searched and
// the exact bits of every query value.
func SearchKey(index string, generation uint64, self bool, k, tables int, queries [][]float64) uint64 {
	h := murmur3.New64()
	buf := make([]byte, 0, 64)
	buf = binary.AppendUvarint(buf, uint64(len(index)))
	buf = append(buf, index...)
	buf = binary.AppendUvarint(buf, generation)
	if self {
		buf = append(buf, 1)
	} else {
		buf = append(buf, 0)
	}
	buf = binary.AppendVarint(buf, int64(k))
	buf = binary.AppendVarint(buf, int64(tables))
	buf = binary.AppendUvarint(buf, uint64(len(queries)))
	_, _ = h.Write(buf)

	for _, q := range queries {
		buf = binary.AppendUvarint(buf[:0], uint64(len(q)))
		for _, v := range q {
			buf = binary.LittleEndian.AppendUint64(buf, math.Float64bits(v))
		}
		_, _ = h.Write(buf)
	}
	return h.Sum64()
}
