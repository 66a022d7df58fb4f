package memory

import (
	"sync"

	"github.com/pkg/errors"

	"reldb/pkg/primitives"
	"reldb/pkg/storage/disk"
	"reldb/pkg/storage/page"
)

// LogFlusher is the write-ahead hook the buffer pool consults before
// writing back a dirty page: every log record with lsn <= the page's
// LSN must be durable first. The log manager implements it.
type LogFlusher interface {
	PersistedLSN() primitives.LSN
	Flush() error
}

// BufferPool caches pages in a fixed set of frames. All operations are
// serialized by one mutex; pin counts act as reader refcounts that
// forbid eviction.
type BufferPool struct {
	mu        sync.Mutex
	frames    []*page.Page
	freeList  []primitives.FrameID
	pageTable map[page.ID]primitives.FrameID
	replacer  Replacer
	disk      *disk.Manager
	wal       LogFlusher
}

// NewBufferPool creates a pool of size frames over the disk manager.
// wal may be nil when write-ahead ordering is not needed (tests,
// bootstrap).
func NewBufferPool(size int, dm *disk.Manager, wal LogFlusher) *BufferPool {
	bp := &BufferPool{
		frames:    make([]*page.Page, size),
		freeList:  make([]primitives.FrameID, 0, size),
		pageTable: make(map[page.ID]primitives.FrameID, size),
		replacer:  NewLRUReplacer(),
		disk:      dm,
		wal:       wal,
	}
	for i := range bp.frames {
		bp.frames[i] = &page.Page{}
		bp.freeList = append(bp.freeList, primitives.FrameID(i))
	}
	return bp
}

// SetLogFlusher wires the write-ahead hook after construction. The log
// manager itself needs the disk manager, so the two are connected once
// both exist.
func (bp *BufferPool) SetLogFlusher(wal LogFlusher) {
	bp.mu.Lock()
	defer bp.mu.Unlock()
	bp.wal = wal
}

// FetchPage returns the frame holding the page, reading it from disk
// on a miss. The frame comes back pinned; callers must UnpinPage it.
func (bp *BufferPool) FetchPage(id page.ID) (*page.Page, error) {
	bp.mu.Lock()
	defer bp.mu.Unlock()

	if frame, ok := bp.pageTable[id]; ok {
		p := bp.frames[frame]
		p.Pin()
		bp.replacer.Pin(frame)
		return p, nil
	}

	frame, err := bp.obtainFrame()
	if err != nil {
		return nil, err
	}

	p := bp.frames[frame]
	p.Reset(id)
	if err := bp.disk.ReadPage(id.File, id.PageNo, p.Data()); err != nil {
		bp.freeList = append(bp.freeList, frame)
		return nil, err
	}
	p.Pin()
	bp.pageTable[id] = frame
	bp.replacer.Pin(frame)
	return p, nil
}

// UnpinPage drops one pin and optionally marks the page dirty. The
// dirty flag is sticky: unpinning clean never clears it. When the pin
// count reaches zero the frame becomes an eviction candidate. Returns
// false if the page is not resident.
func (bp *BufferPool) UnpinPage(id page.ID, dirty bool) bool {
	bp.mu.Lock()
	defer bp.mu.Unlock()

	frame, ok := bp.pageTable[id]
	if !ok {
		return false
	}
	p := bp.frames[frame]
	if dirty {
		p.MarkDirty()
	}
	p.Unpin()
	if p.PinCount() == 0 {
		bp.replacer.Unpin(frame)
	}
	return true
}

// FlushPage writes a resident page through to disk and clears its
// dirty flag. Returns false if the page is not resident.
func (bp *BufferPool) FlushPage(id page.ID) bool {
	bp.mu.Lock()
	defer bp.mu.Unlock()

	frame, ok := bp.pageTable[id]
	if !ok {
		return false
	}
	return bp.writeBack(bp.frames[frame]) == nil
}

// NewPage allocates a fresh page number in the file and binds it to a
// pinned, zeroed frame.
func (bp *BufferPool) NewPage(fid primitives.FileID) (*page.Page, error) {
	bp.mu.Lock()
	defer bp.mu.Unlock()

	frame, err := bp.obtainFrame()
	if err != nil {
		return nil, err
	}

	pageNo, err := bp.disk.AllocatePage(fid)
	if err != nil {
		bp.freeList = append(bp.freeList, frame)
		return nil, err
	}

	p := bp.frames[frame]
	id := page.ID{File: fid, PageNo: pageNo}
	p.Reset(id)
	p.Pin()
	bp.pageTable[id] = frame
	bp.replacer.Pin(frame)
	return p, nil
}

// DeletePage evicts a page from the pool and returns its frame to the
// free list. Fails while the page is pinned.
func (bp *BufferPool) DeletePage(id page.ID) error {
	bp.mu.Lock()
	defer bp.mu.Unlock()

	frame, ok := bp.pageTable[id]
	if !ok {
		return nil
	}
	p := bp.frames[frame]
	if p.PinCount() > 0 {
		return errors.Errorf("delete page %s: still pinned (%d)", id, p.PinCount())
	}

	delete(bp.pageTable, id)
	bp.replacer.Pin(frame)
	p.Reset(page.ID{File: primitives.InvalidFileID, PageNo: primitives.InvalidPageNumber})
	bp.freeList = append(bp.freeList, frame)
	return nil
}

// FlushAllPages writes back every resident page of a file.
func (bp *BufferPool) FlushAllPages(fid primitives.FileID) error {
	bp.mu.Lock()
	defer bp.mu.Unlock()

	for id, frame := range bp.pageTable {
		if id.File != fid {
			continue
		}
		if err := bp.writeBack(bp.frames[frame]); err != nil {
			return err
		}
	}
	return nil
}

// DeleteAllPages evicts every resident page of a file, used on file
// close. Pinned pages are skipped.
func (bp *BufferPool) DeleteAllPages(fid primitives.FileID) {
	bp.mu.Lock()
	defer bp.mu.Unlock()

	for id, frame := range bp.pageTable {
		if id.File != fid {
			continue
		}
		p := bp.frames[frame]
		if p.PinCount() > 0 {
			continue
		}
		delete(bp.pageTable, id)
		bp.replacer.Pin(frame)
		p.Reset(page.ID{File: primitives.InvalidFileID, PageNo: primitives.InvalidPageNumber})
		bp.freeList = append(bp.freeList, frame)
	}
}

// obtainFrame finds a frame for a new resident page: the free list
// first, then a replacement victim, flushing the victim if dirty.
// Callers hold bp.mu.
func (bp *BufferPool) obtainFrame() (primitives.FrameID, error) {
	if n := len(bp.freeList); n > 0 {
		frame := bp.freeList[n-1]
		bp.freeList = bp.freeList[:n-1]
		return frame, nil
	}

	frame, ok := bp.replacer.Victim()
	if !ok {
		return 0, errors.New("buffer pool: no frame available, all pages pinned")
	}

	victim := bp.frames[frame]
	if victim.IsDirty() {
		if err := bp.writeBack(victim); err != nil {
			return 0, err
		}
	}
	delete(bp.pageTable, victim.ID())
	return frame, nil
}

// writeBack flushes one frame, honoring write-ahead ordering: the log
// is forced first whenever the page's LSN is past the persisted LSN.
// Callers hold bp.mu.
func (bp *BufferPool) writeBack(p *page.Page) error {
	if bp.wal != nil && p.Lsn() > bp.wal.PersistedLSN() {
		if err := bp.wal.Flush(); err != nil {
			return err
		}
	}
	if err := bp.disk.WritePage(p.ID().File, p.ID().PageNo, p.Data()); err != nil {
		return err
	}
	p.ClearDirty()
	return nil
}
