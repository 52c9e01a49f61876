package wal

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
)

var (
	// ErrTruncated reports a final record cut short, typically by a crash
	// during Write. Records before it are intact.
	ErrTruncated = errors.New("wal: truncated record")
	// ErrCorrupt reports a record whose checksum does not match.
	ErrCorrupt = errors.New("wal: corrupt record")
)

type Record struct {
	Key   []byte
	Value []byte
}

type Reader struct {
	file   string
	size   uint64
	src    *os.File
	reader *bufio.Reader
}

func NewReader(file string) (*Reader, error) {
	src, err := os.Open(file)
	if err != nil {
		return nil, err
	}
	info, err := src.Stat()
	if err != nil {
		src.Close()
		return nil, err
	}
	return &Reader{
		file:   file,
		size:   uint64(info.Size()),
		src:    src,
		reader: bufio.NewReader(src),
	}, nil
}

// ReadAll returns every intact record in order. On ErrTruncated or
// ErrCorrupt the records preceding the damage are returned with the error.
func (r *Reader) ReadAll() ([]Record, error) {
	var records []Record
	for {
		keyLen, err := binary.ReadUvarint(r.reader)
		// a clean end of file between records
		if errors.Is(err, io.EOF) {
			return records, nil
		}
		if err != nil {
			return records, r.truncated(err)
		}
		valLen, err := binary.ReadUvarint(r.reader)
		if err != nil {
			return records, r.truncated(err)
		}
		// lengths past the end of the file cannot be read back
		if keyLen > r.size || valLen > r.size-keyLen {
			return records, fmt.Errorf("%w: %s record of %d+%d bytes in a %d byte file",
				ErrTruncated, r.file, keyLen, valLen, r.size)
		}

		// the buffer grows with the bytes actually read
		var buf bytes.Buffer
		if _, err := io.CopyN(&buf, r.reader, int64(keyLen+valLen+4)); err != nil {
			return records, r.truncated(err)
		}
		body := buf.Bytes()
		key, value := body[:keyLen], body[keyLen:keyLen+valLen]
		if binary.LittleEndian.Uint32(body[keyLen+valLen:]) != checksum(key, value) {
			return records, fmt.Errorf("%w: %s checksum mismatch after %d records", ErrCorrupt, r.file, len(records))
		}
		records = append(records, Record{Key: key, Value: value})
	}
}

func (r *Reader) truncated(err error) error {
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return fmt.Errorf("%w: %s", ErrTruncated, r.file)
	}
	return err
}

func (r *Reader) Close() error {
	return r.src.Close()
}
