// Package archive is a named-field binary archive. The same serialization
// routine drives saving and loading: each call names a field and passes a
// pointer, which a Writer reads from and a Reader fills in.
//
// Stream layout: a 5 byte header ("LSHA" + version) followed by a zstd frame
// holding the records and a trailer with the murmur3 checksum of the record
// bytes.
package archive

import (
	"fmt"

	pkgerrors "lshann/pkg/errors"
)

const (
	magic   = "LSHA"
	version = byte(1)

	// maxElements bounds slice lengths read from a snapshot.
	maxElements = 1 << 31
)

type tag byte

const (
	tagInt tag = iota + 1
	tagUint64
	tagFloat64
	tagFloat64s
	tagInt32s
	tagUint64s
	tagText

	tagEnd tag = 0xFF
)

func (t tag) String() string {
	switch t {
	case tagInt:
		return "int"
	case tagUint64:
		return "uint64"
	case tagFloat64:
		return "float64"
	case tagFloat64s:
		return "[]float64"
	case tagInt32s:
		return "[]int32"
	case tagUint64s:
		return "[]uint64"
	case tagText:
		return "text"
	case tagEnd:
		return "end"
	default:
		return fmt.Sprintf("tag(%d)", byte(t))
	}
}

// Archive is implemented by Writer and Reader. Errors are sticky: after the
// first failure every call is a no-op and Err reports it.
type Archive interface {
	// Loading reports whether fields are being read into the pointers.
	Loading() bool

	Int(name string, v *int)
	Uint64(name string, v *uint64)
	Float64(name string, v *float64)
	Text(name string, v *string)
	Float64s(name string, v *[]float64)
	Int32s(name string, v *[]int32)
	Uint64s(name string, v *[]uint64)

	Err() error
}

func corrupt(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", pkgerrors.ErrCorruptSnapshot, fmt.Sprintf(format, args...))
}
