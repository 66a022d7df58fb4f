package heap

import (
	"encoding/binary"

	"reldb/pkg/primitives"
	"reldb/pkg/storage/page"
)

// dataPage is a typed view over one pinned data page's payload. It
// performs no locking; the owning RecordFile's mutex serializes
// access.
type dataPage struct {
	p          *page.Page
	recordSize int32
	slots      int32
}

func (f *RecordFile) view(p *page.Page) dataPage {
	return dataPage{p: p, recordSize: f.hdr.RecordSize, slots: f.hdr.SlotsPerPage}
}

func (d dataPage) nextFree() primitives.PageNumber {
	return primitives.PageNumber(int32(binary.LittleEndian.Uint32(d.p.Payload()[0:])))
}

func (d dataPage) setNextFree(no primitives.PageNumber) {
	binary.LittleEndian.PutUint32(d.p.Payload()[0:], uint32(no))
}

func (d dataPage) numRecords() int32 {
	return int32(binary.LittleEndian.Uint32(d.p.Payload()[4:]))
}

func (d dataPage) setNumRecords(n int32) {
	binary.LittleEndian.PutUint32(d.p.Payload()[4:], uint32(n))
}

func (d dataPage) slotUsed(i primitives.SlotNumber) bool {
	b := d.p.Payload()[pageHeaderSize+int(i)/8]
	return b&(1<<(uint(i)%8)) != 0
}

func (d dataPage) setSlot(i primitives.SlotNumber, used bool) {
	b := &d.p.Payload()[pageHeaderSize+int(i)/8]
	if used {
		*b |= 1 << (uint(i) % 8)
	} else {
		*b &^= 1 << (uint(i) % 8)
	}
}

// slotBytes returns the record storage of one slot.
func (d dataPage) slotBytes(i primitives.SlotNumber) []byte {
	off := pageHeaderSize + bitmapLen(d.slots) + int(i)*int(d.recordSize)
	return d.p.Payload()[off : off+int(d.recordSize)]
}

func (d dataPage) full() bool {
	return d.numRecords() >= d.slots
}

// firstFreeSlot scans the bitmap for the lowest clear bit.
func (d dataPage) firstFreeSlot() (primitives.SlotNumber, bool) {
	for i := primitives.SlotNumber(0); int32(i) < d.slots; i++ {
		if !d.slotUsed(i) {
			return i, true
		}
	}
	return 0, false
}

// init formats a fresh data page: empty bitmap, no free-list
// successor.
func (d dataPage) init() {
	d.setNextFree(primitives.InvalidPageNumber)
	d.setNumRecords(0)
}
