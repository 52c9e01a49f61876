// Package wal is an append-only log of key/value records. Each record is
// framed as uvarint(len(key)) uvarint(len(value)) key value crc, where crc
// is the little-endian murmur3 32-bit hash of key followed by value.
package wal

import (
	"encoding/binary"
	"fmt"
	"os"
	"path/filepath"

	"github.com/twmb/murmur3"
)

type Writer struct {
	file      string
	dest      *os.File
	assistBuf [2 * binary.MaxVarintLen64]byte
}

// NewWriter opens file for appending, creating it and its directory.
func NewWriter(file string) (*Writer, error) {
	// 确保目录存在
	if err := os.MkdirAll(filepath.Dir(file), 0755); err != nil {
		return nil, err
	}

	dest, err := os.OpenFile(file, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, err
	}
	return &Writer{file: file, dest: dest}, nil
}

// Write appends one record.
func (w *Writer) Write(key, value []byte) error {
	n := binary.PutUvarint(w.assistBuf[0:], uint64(len(key)))
	n += binary.PutUvarint(w.assistBuf[n:], uint64(len(value)))

	buf := make([]byte, 0, n+len(key)+len(value)+4)
	buf = append(buf, w.assistBuf[:n]...)
	buf = append(buf, key...)
	buf = append(buf, value...)
	buf = binary.LittleEndian.AppendUint32(buf, checksum(key, value))
	if _, err := w.dest.Write(buf); err != nil {
		return fmt.Errorf("failed to append to %s: %w", w.file, err)
	}
	return nil
}

// Sync flushes written records to stable storage.
func (w *Writer) Sync() error {
	return w.dest.Sync()
}

func (w *Writer) Close() error {
	return w.dest.Close()
}

func checksum(key, value []byte) uint32 {
	h := murmur3.New32()
	_, _ = h.Write(key)
	_, _ = h.Write(value)
	return h.Sum32()
}
