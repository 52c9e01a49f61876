package archive

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"hash"
	"io"
	"math"

	"github.com/klauspost/compress/zstd"
	"github.com/twmb/murmur3"
)

// hashingReader hashes exactly the bytes handed to the caller, so bytes
// buffered ahead (the trailer) stay out of the checksum.
type hashingReader struct {
	r   *bufio.Reader
	sum hash.Hash64
}

func (h *hashingReader) ReadByte() (byte, error) {
	b, err := h.r.ReadByte()
	if err == nil {
		_, _ = h.sum.Write([]byte{b})
	}
	return b, err
}

func (h *hashingReader) Read(p []byte) (int, error) {
	n, err := h.r.Read(p)
	_, _ = h.sum.Write(p[:n])
	return n, err
}

// Reader loads fields from a stream produced by Writer.
type Reader struct {
	dec *zstd.Decoder
	in  *hashingReader
	err error
}

// NewReader checks the header of src and returns a Reader. Close must be
// called to verify the checksum.
func NewReader(src io.Reader) (*Reader, error) {
	header := make([]byte, len(magic)+1)
	if _, err := io.ReadFull(src, header); err != nil {
		return nil, corrupt("failed to read header: %v", err)
	}
	if string(header[:len(magic)]) != magic {
		return nil, corrupt("bad magic %q", header[:len(magic)])
	}
	if header[len(magic)] != version {
		return nil, corrupt("unsupported version %d", header[len(magic)])
	}
	dec, err := zstd.NewReader(src)
	if err != nil {
		return nil, fmt.Errorf("failed to create zstd decoder: %w", err)
	}
	return &Reader{
		dec: dec,
		in:  &hashingReader{r: bufio.NewReader(dec), sum: murmur3.New64()},
	}, nil
}

func (r *Reader) Loading() bool { return true }

func (r *Reader) Err() error { return r.err }

func (r *Reader) fail(err error) {
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		r.err = corrupt("truncated stream")
		return
	}
	r.err = corrupt("%v", err)
}

// expect reads a record header and checks its name and tag.
func (r *Reader) expect(name string, want tag) bool {
	if r.err != nil {
		return false
	}
	n, err := binary.ReadUvarint(r.in)
	if err != nil {
		r.fail(err)
		return false
	}
	if n > 1<<16 {
		r.err = corrupt("field name of %d bytes", n)
		return false
	}
	got := make([]byte, n+1)
	if _, err := io.ReadFull(r.in, got); err != nil {
		r.fail(err)
		return false
	}
	if string(got[:n]) != name {
		r.err = corrupt("expected field %q, found %q", name, got[:n])
		return false
	}
	if t := tag(got[n]); t != want {
		r.err = corrupt("field %q has type %s, expected %s", name, t, want)
		return false
	}
	return true
}

func (r *Reader) length(name string) (int, bool) {
	n, err := binary.ReadUvarint(r.in)
	if err != nil {
		r.fail(err)
		return 0, false
	}
	if n > maxElements {
		r.err = corrupt("field %q has %d elements", name, n)
		return 0, false
	}
	return int(n), true
}

// fixed reads n payload bytes. The buffer grows with the data actually
// present, so a corrupt length cannot force a huge allocation up front.
func (r *Reader) fixed(n int) ([]byte, bool) {
	var buf bytes.Buffer
	if _, err := io.CopyN(&buf, r.in, int64(n)); err != nil {
		r.fail(err)
		return nil, false
	}
	return buf.Bytes(), true
}

func (r *Reader) Int(name string, v *int) {
	if !r.expect(name, tagInt) {
		return
	}
	x, err := binary.ReadVarint(r.in)
	if err != nil {
		r.fail(err)
		return
	}
	*v = int(x)
}

func (r *Reader) Uint64(name string, v *uint64) {
	if !r.expect(name, tagUint64) {
		return
	}
	if b, ok := r.fixed(8); ok {
		*v = binary.LittleEndian.Uint64(b)
	}
}

func (r *Reader) Float64(name string, v *float64) {
	if !r.expect(name, tagFloat64) {
		return
	}
	if b, ok := r.fixed(8); ok {
		*v = math.Float64frombits(binary.LittleEndian.Uint64(b))
	}
}

func (r *Reader) Text(name string, v *string) {
	if !r.expect(name, tagText) {
		return
	}
	n, ok := r.length(name)
	if !ok {
		return
	}
	if b, ok := r.fixed(n); ok {
		*v = string(b)
	}
}

func (r *Reader) Float64s(name string, v *[]float64) {
	if !r.expect(name, tagFloat64s) {
		return
	}
	n, ok := r.length(name)
	if !ok {
		return
	}
	b, ok := r.fixed(8 * n)
	if !ok {
		return
	}
	out := make([]float64, n)
	for i := range out {
		out[i] = math.Float64frombits(binary.LittleEndian.Uint64(b[8*i:]))
	}
	*v = out
}

func (r *Reader) Int32s(name string, v *[]int32) {
	if !r.expect(name, tagInt32s) {
		return
	}
	n, ok := r.length(name)
	if !ok {
		return
	}
	b, ok := r.fixed(4 * n)
	if !ok {
		return
	}
	out := make([]int32, n)
	for i := range out {
		out[i] = int32(binary.LittleEndian.Uint32(b[4*i:]))
	}
	*v = out
}

func (r *Reader) Uint64s(name string, v *[]uint64) {
	if !r.expect(name, tagUint64s) {
		return
	}
	n, ok := r.length(name)
	if !ok {
		return
	}
	b, ok := r.fixed(8 * n)
	if !ok {
		return
	}
	out := make([]uint64, n)
	for i := range out {
		out[i] = binary.LittleEndian.Uint64(b[8*i:])
	}
	*v = out
}

// Close verifies the trailer checksum and releases the decoder. It returns
// the first error seen by the Reader.
func (r *Reader) Close() error {
	defer r.dec.Close()
	if r.err != nil {
		return r.err
	}
	want := r.in.sum.Sum64()
	trailer := make([]byte, 9)
	if _, err := io.ReadFull(r.in.r, trailer); err != nil {
		r.fail(err)
		return r.err
	}
	if tag(trailer[0]) != tagEnd {
		r.err = corrupt("unexpected %s record where trailer was expected", tag(trailer[0]))
		return r.err
	}
	if got := binary.LittleEndian.Uint64(trailer[1:]); got != want {
		r.err = corrupt("checksum mismatch: stored %016x, computed %016x", got, want)
	}
	return r.err
}
