// Package heap implements record files: slotted pages of fixed-width
// records addressed by Rid, with a used-slot bitmap per page and an
// intrusive free-page list rooted in the file header.
package heap

import (
	"encoding/binary"

	"reldb/pkg/primitives"
	"reldb/pkg/storage/page"
)

// fileHeader is the persistent state of a record file, stored in the
// payload of page 0 and cached in memory while the file is open.
type fileHeader struct {
	RecordSize    int32
	SlotsPerPage  int32
	FirstFreePage primitives.PageNumber
	NumPages      int32 // includes the header page
}

const fileHeaderSize = 16

func (h *fileHeader) marshal(buf []byte) {
	binary.LittleEndian.PutUint32(buf[0:], uint32(h.RecordSize))
	binary.LittleEndian.PutUint32(buf[4:], uint32(h.SlotsPerPage))
	binary.LittleEndian.PutUint32(buf[8:], uint32(h.FirstFreePage))
	binary.LittleEndian.PutUint32(buf[12:], uint32(h.NumPages))
}

func (h *fileHeader) unmarshal(buf []byte) {
	h.RecordSize = int32(binary.LittleEndian.Uint32(buf[0:]))
	h.SlotsPerPage = int32(binary.LittleEndian.Uint32(buf[4:]))
	h.FirstFreePage = primitives.PageNumber(int32(binary.LittleEndian.Uint32(buf[8:])))
	h.NumPages = int32(binary.LittleEndian.Uint32(buf[12:]))
}

// pageHeaderSize is the fixed part of a data page's payload:
// next-free-page (4) and number-of-records (4). The used-slot bitmap
// follows, zero-padded to 8-byte alignment, then the slot array.
const pageHeaderSize = 8

// bitmapLen returns the padded bitmap length for a slot count.
func bitmapLen(slots int32) int {
	n := (int(slots) + 7) / 8
	return (n + 7) &^ 7
}

// slotsPerPage computes how many records of the given size fit on one
// data page alongside the page header and bitmap.
func slotsPerPage(recordSize int32) int32 {
	n := int32(page.PayloadSize-pageHeaderSize) / recordSize
	for n > 0 {
		if pageHeaderSize+bitmapLen(n)+int(n)*int(recordSize) <= page.PayloadSize {
			return n
		}
		n--
	}
	return 0
}
