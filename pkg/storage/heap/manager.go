package heap

import (
	"reldb/pkg/dberr"
	"reldb/pkg/log"
	"reldb/pkg/memory"
	"reldb/pkg/primitives"
	"reldb/pkg/storage/disk"
	"reldb/pkg/storage/page"
)

// Manager creates, opens and destroys record files.
type Manager struct {
	disk   *disk.Manager
	pool   *memory.BufferPool
	logMgr *log.Manager
}

// NewManager wires a record manager over the disk manager and buffer
// pool. logMgr may be nil when the file is used outside transactions.
func NewManager(dm *disk.Manager, pool *memory.BufferPool, logMgr *log.Manager) *Manager {
	return &Manager{disk: dm, pool: pool, logMgr: logMgr}
}

// CreateFile lays out an empty record file: a header page describing
// the record width and slot geometry, no data pages yet.
func (m *Manager) CreateFile(path string, recordSize int) error {
	slots := slotsPerPage(int32(recordSize))
	if recordSize <= 0 || slots <= 0 {
		return dberr.Newf(dberr.InternalError, "heap.create",
			"record size %d does not fit a page", recordSize)
	}

	if err := m.disk.CreateFile(path); err != nil {
		return err
	}
	fid, err := m.disk.OpenFile(path)
	if err != nil {
		return err
	}
	defer m.disk.CloseFile(fid)

	hdr := fileHeader{
		RecordSize:    int32(recordSize),
		SlotsPerPage:  slots,
		FirstFreePage: primitives.InvalidPageNumber,
		NumPages:      1,
	}

	var buf [page.Size]byte
	p := page.Page{}
	p.Reset(page.ID{File: fid, PageNo: primitives.FileHeaderPage})
	copy(buf[:], p.Data())
	hdr.marshal(buf[page.HeaderSize:])
	return m.disk.WritePage(fid, primitives.FileHeaderPage, buf[:])
}

// OpenFile opens a record file and caches its header. name is the
// table the file stores, used in log records.
func (m *Manager) OpenFile(path, name string) (*RecordFile, error) {
	fid, err := m.disk.OpenFile(path)
	if err != nil {
		return nil, err
	}

	var buf [page.Size]byte
	if err := m.disk.ReadPage(fid, primitives.FileHeaderPage, buf[:]); err != nil {
		m.disk.CloseFile(fid)
		return nil, err
	}

	f := &RecordFile{
		name:   name,
		fid:    fid,
		pool:   m.pool,
		logMgr: m.logMgr,
	}
	f.hdr.unmarshal(buf[page.HeaderSize:])

	// Crash before a header flush can leave the header behind the
	// file's real extent; trust the larger of the two.
	if flushed, err := m.disk.PageCountOnDisk(fid); err == nil && flushed > f.hdr.NumPages {
		f.hdr.NumPages = flushed
	}
	if err := m.disk.SetPageCounter(fid, primitives.PageNumber(f.hdr.NumPages)); err != nil {
		m.disk.CloseFile(fid)
		return nil, err
	}
	return f, nil
}

// CloseFile flushes the header and every resident page, evicts the
// file from the pool, and closes the handle.
func (m *Manager) CloseFile(f *RecordFile) error {
	if err := f.FlushHeader(); err != nil {
		return err
	}
	if err := m.pool.FlushAllPages(f.fid); err != nil {
		return err
	}
	m.pool.DeleteAllPages(f.fid)
	return m.disk.CloseFile(f.fid)
}

// DestroyFile removes a closed record file from disk.
func (m *Manager) DestroyFile(path string) error {
	return m.disk.DestroyFile(path)
}

// FlushHeader writes the cached file header back to page 0.
func (f *RecordFile) FlushHeader() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	p, err := f.pool.FetchPage(page.ID{File: f.fid, PageNo: primitives.FileHeaderPage})
	if err != nil {
		return err
	}
	f.hdr.marshal(p.Payload())
	f.pool.UnpinPage(p.ID(), true)
	return nil
}
