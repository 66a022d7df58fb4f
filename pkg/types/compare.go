package types

import (
	"bytes"
	"encoding/binary"
	"math"
)

// CompareColumn compares two packed column values of the same
// descriptor. Numeric types compare numerically, CHAR compares
// byte-lexicographically, DATETIME compares as the tuple
// (year, month, day, hour, minute, second).
func CompareColumn(a, b []byte, col ColDesc) int {
	switch col.Type {
	case IntType:
		return cmpOrdered(int32(binary.LittleEndian.Uint32(a)), int32(binary.LittleEndian.Uint32(b)))
	case BigIntType:
		return cmpOrdered(int64(binary.LittleEndian.Uint64(a)), int64(binary.LittleEndian.Uint64(b)))
	case FloatType:
		fa := math.Float64frombits(binary.LittleEndian.Uint64(a))
		fb := math.Float64frombits(binary.LittleEndian.Uint64(b))
		switch {
		case fa < fb:
			return -1
		case fa > fb:
			return 1
		default:
			return 0
		}
	case DateTimeType:
		if c := cmpOrdered(binary.LittleEndian.Uint16(a[0:]), binary.LittleEndian.Uint16(b[0:])); c != 0 {
			return c
		}
		return bytes.Compare(a[2:7], b[2:7])
	default:
		return bytes.Compare(a[:col.Len], b[:col.Len])
	}
}

// CompareKeys compares two packed multi-column keys lexicographically
// over the column list. The shorter key may be a prefix probe: columns
// it does not cover are ignored, so a probe carrying only leading
// columns compares equal to any key sharing that prefix.
func CompareKeys(a, b []byte, cols []ColDesc) int {
	off := 0
	for _, col := range cols {
		end := off + int(col.Len)
		if end > len(a) || end > len(b) {
			break
		}
		if c := CompareColumn(a[off:end], b[off:end], col); c != 0 {
			return c
		}
		off = end
	}
	return 0
}

func cmpOrdered[T int32 | int64 | uint16](a, b T) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}
