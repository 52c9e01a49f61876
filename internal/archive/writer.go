package archive

import (
	"encoding/binary"
	"fmt"
	"hash"
	"io"
	"math"

	"github.com/klauspost/compress/zstd"
	"github.com/twmb/murmur3"
)

// Writer saves fields to an underlying stream.
type Writer struct {
	enc  *zstd.Encoder
	sum  hash.Hash64
	body io.Writer // enc and sum
	buf  []byte
	err  error
}

// NewWriter writes the header to dst and returns a Writer. Close must be
// called to flush the records and the checksum; dst itself is not closed.
func NewWriter(dst io.Writer) (*Writer, error) {
	if _, err := dst.Write(append([]byte(magic), version)); err != nil {
		return nil, fmt.Errorf("failed to write archive header: %w", err)
	}
	enc, err := zstd.NewWriter(dst, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return nil, fmt.Errorf("failed to create zstd encoder: %w", err)
	}
	sum := murmur3.New64()
	return &Writer{
		enc:  enc,
		sum:  sum,
		body: io.MultiWriter(enc, sum),
	}, nil
}

func (w *Writer) Loading() bool { return false }

func (w *Writer) Err() error { return w.err }

func (w *Writer) record(name string, t tag) {
	w.buf = w.buf[:0]
	w.buf = binary.AppendUvarint(w.buf, uint64(len(name)))
	w.buf = append(w.buf, name...)
	w.buf = append(w.buf, byte(t))
}

func (w *Writer) flush() {
	if _, err := w.body.Write(w.buf); err != nil {
		w.err = fmt.Errorf("failed to write archive record: %w", err)
	}
}

func (w *Writer) Int(name string, v *int) {
	if w.err != nil {
		return
	}
	w.record(name, tagInt)
	w.buf = binary.AppendVarint(w.buf, int64(*v))
	w.flush()
}

func (w *Writer) Uint64(name string, v *uint64) {
	if w.err != nil {
		return
	}
	w.record(name, tagUint64)
	w.buf = binary.LittleEndian.AppendUint64(w.buf, *v)
	w.flush()
}

func (w *Writer) Float64(name string, v *float64) {
	if w.err != nil {
		return
	}
	w.record(name, tagFloat64)
	w.buf = binary.LittleEndian.AppendUint64(w.buf, math.Float64bits(*v))
	w.flush()
}

func (w *Writer) Text(name string, v *string) {
	if w.err != nil {
		return
	}
	w.record(name, tagText)
	w.buf = binary.AppendUvarint(w.buf, uint64(len(*v)))
	w.buf = append(w.buf, *v...)
	w.flush()
}

func (w *Writer) Float64s(name string, v *[]float64) {
	if w.err != nil {
		return
	}
	w.record(name, tagFloat64s)
	w.buf = binary.AppendUvarint(w.buf, uint64(len(*v)))
	for _, f := range *v {
		w.buf = binary.LittleEndian.AppendUint64(w.buf, math.Float64bits(f))
	}
	w.flush()
}

func (w *Writer) Int32s(name string, v *[]int32) {
	if w.err != nil {
		return
	}
	w.record(name, tagInt32s)
	w.buf = binary.AppendUvarint(w.buf, uint64(len(*v)))
	for _, x := range *v {
		w.buf = binary.LittleEndian.AppendUint32(w.buf, uint32(x))
	}
	w.flush()
}

func (w *Writer) Uint64s(name string, v *[]uint64) {
	if w.err != nil {
		return
	}
	w.record(name, tagUint64s)
	w.buf = binary.AppendUvarint(w.buf, uint64(len(*v)))
	for _, x := range *v {
		w.buf = binary.LittleEndian.AppendUint64(w.buf, x)
	}
	w.flush()
}

// Close writes the trailer and flushes the compressed stream. It returns the
// first error seen by the Writer.
func (w *Writer) Close() error {
	if w.err == nil {
		trailer := []byte{byte(tagEnd)}
		trailer = binary.LittleEndian.AppendUint64(trailer, w.sum.Sum64())
		if _, err := w.enc.Write(trailer); err != nil {
			w.err = fmt.Errorf("failed to write archive trailer: %w", err)
		}
	}
	if err := w.enc.Close(); err != nil && w.err == nil {
		w.err = fmt.Errorf("failed to flush archive: %w", err)
	}
	return w.err
}
