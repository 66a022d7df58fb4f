// Package page defines the fixed-size page unit shared by the disk
// manager, buffer pool, heap files and index files.
package page

import (
	"encoding/binary"
	"fmt"

	"reldb/pkg/primitives"
)

const (
	// Size is the page size in bytes. All page I/O is exactly Size bytes.
	Size = 4096

	// HeaderSize is the per-page prefix reserved for the page LSN.
	// Component layouts (heap page headers, index node headers) start
	// at this offset.
	HeaderSize = 8

	// PayloadSize is the number of bytes available after the LSN prefix.
	PayloadSize = Size - HeaderSize
)

// ID identifies a page as a (file handle, page number) pair.
type ID struct {
	File   primitives.FileID
	PageNo primitives.PageNumber
}

func (id ID) String() string {
	return fmt.Sprintf("%d:%d", id.File, id.PageNo)
}

// Page is one buffer-pool frame's worth of data. The buffer pool's
// mutex serializes metadata access; page contents are guarded by the
// owning component (heap file or index handle).
type Page struct {
	id       ID
	data     [Size]byte
	pinCount int
	dirty    bool
}

// ID returns the identity of the page currently held in this frame.
func (p *Page) ID() ID { return p.id }

// Data returns the full page image, including the LSN prefix.
func (p *Page) Data() []byte { return p.data[:] }

// Payload returns the page bytes after the LSN prefix.
func (p *Page) Payload() []byte { return p.data[HeaderSize:] }

// Lsn returns the last-applied LSN recorded in the page header.
func (p *Page) Lsn() primitives.LSN {
	return primitives.LSN(int64(binary.LittleEndian.Uint64(p.data[:8])))
}

// SetLsn records the last-applied LSN in the page header.
func (p *Page) SetLsn(lsn primitives.LSN) {
	binary.LittleEndian.PutUint64(p.data[:8], uint64(lsn))
}

// PinCount returns the number of active pins on the frame.
func (p *Page) PinCount() int { return p.pinCount }

// IsDirty reports whether the frame holds unwritten modifications.
func (p *Page) IsDirty() bool { return p.dirty }

// Pin increments the pin count.
func (p *Page) Pin() { p.pinCount++ }

// Unpin decrements the pin count, never below zero.
func (p *Page) Unpin() {
	if p.pinCount > 0 {
		p.pinCount--
	}
}

// MarkDirty sets the dirty flag. The flag is only cleared by a flush.
func (p *Page) MarkDirty() { p.dirty = true }

// ClearDirty resets the dirty flag after a successful writeback.
func (p *Page) ClearDirty() { p.dirty = false }

// Reset rebinds the frame to a new page identity with zeroed contents
// and the page LSN set to InvalidLSN.
func (p *Page) Reset(id ID) {
	p.id = id
	p.data = [Size]byte{}
	p.pinCount = 0
	p.dirty = false
	p.SetLsn(primitives.InvalidLSN)
}
