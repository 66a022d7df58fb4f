package log

import (
	"encoding/binary"
	"io"

	"reldb/pkg/storage/disk"
)

// Reader iterates the on-disk log from a byte offset, one record at a
// time. A truncated trailing record ends the iteration cleanly: the
// log is valid up to the last complete record.
type Reader struct {
	disk   *disk.Manager
	offset int64
}

// NewReader starts a reader at the given log offset.
func NewReader(dm *disk.Manager, offset int64) *Reader {
	return &Reader{disk: dm, offset: offset}
}

// Offset returns the byte offset of the next record.
func (r *Reader) Offset() int64 { return r.offset }

// Next reads the record at the current offset and advances past it.
// Returns io.EOF at the end of the log or at a truncated trailing
// record.
func (r *Reader) Next() (*Record, int64, error) {
	start := r.offset

	var prefix [prefixSize]byte
	n, err := r.disk.ReadLog(prefix[:], start)
	if err != nil {
		return nil, 0, err
	}
	if n < prefixSize {
		return nil, 0, io.EOF
	}

	total := int(binary.LittleEndian.Uint32(prefix[28:]))
	if total < prefixSize {
		return nil, 0, io.EOF
	}

	buf := make([]byte, total)
	n, err = r.disk.ReadLog(buf, start)
	if err != nil {
		return nil, 0, err
	}
	if n < total {
		return nil, 0, io.EOF
	}

	rec, consumed, err := Unmarshal(buf)
	if err == ErrTruncated {
		return nil, 0, io.EOF
	}
	if err != nil {
		return nil, 0, err
	}
	r.offset = start + int64(consumed)
	return rec, start, nil
}

// ReadAt parses the single record stored at the given offset without
// moving the reader.
func ReadAt(dm *disk.Manager, offset int64) (*Record, error) {
	r := NewReader(dm, offset)
	rec, _, err := r.Next()
	return rec, err
}
