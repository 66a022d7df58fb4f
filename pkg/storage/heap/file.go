package heap

import (
	"sync"

	"reldb/pkg/concurrency/transaction"
	"reldb/pkg/dberr"
	"reldb/pkg/log"
	"reldb/pkg/memory"
	"reldb/pkg/primitives"
	"reldb/pkg/storage/page"
)

// Record is a copy of one heap record's bytes.
type Record struct {
	Rid  primitives.Rid
	Data []byte
}

// RecordFile is an open record file. Records are fixed width; pages
// with at least one free slot form a singly-linked free list rooted in
// the cached file header. One mutex serializes all operations on the
// file.
type RecordFile struct {
	mu     sync.Mutex
	name   string
	fid    primitives.FileID
	pool   *memory.BufferPool
	logMgr *log.Manager
	hdr    fileHeader
}

// Name returns the table name the file stores.
func (f *RecordFile) Name() string { return f.name }

// FileID returns the disk handle of the file.
func (f *RecordFile) FileID() primitives.FileID { return f.fid }

// RecordSize returns the fixed record width.
func (f *RecordFile) RecordSize() int { return int(f.hdr.RecordSize) }

// NumPages returns the page count including the header page.
func (f *RecordFile) NumPages() int { return int(f.hdr.NumPages) }

// InsertRecord places data into the first free slot on the free list,
// allocating (and logging, in the transactional path) a new page when
// the list is empty. Returns the Rid of the new record.
func (f *RecordFile) InsertRecord(data []byte, txn *transaction.Transaction) (primitives.Rid, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if len(data) != int(f.hdr.RecordSize) {
		return primitives.InvalidRid, dberr.Newf(dberr.InternalError, "heap.insert",
			"record is %d bytes, want %d", len(data), f.hdr.RecordSize)
	}

	for {
		pageNo := f.hdr.FirstFreePage
		if pageNo == primitives.InvalidPageNumber {
			var err error
			if pageNo, err = f.createPage(txn); err != nil {
				return primitives.InvalidRid, err
			}
		}

		p, err := f.pool.FetchPage(page.ID{File: f.fid, PageNo: pageNo})
		if err != nil {
			return primitives.InvalidRid, err
		}
		d := f.view(p)

		slot, ok := d.firstFreeSlot()
		if !ok {
			// Stale free-list entry; drop it and retry.
			f.hdr.FirstFreePage = d.nextFree()
			f.pool.UnpinPage(p.ID(), false)
			continue
		}

		d.setSlot(slot, true)
		copy(d.slotBytes(slot), data)
		d.setNumRecords(d.numRecords() + 1)
		if d.full() {
			f.hdr.FirstFreePage = d.nextFree()
			d.setNextFree(primitives.InvalidPageNumber)
		}
		f.pool.UnpinPage(p.ID(), true)
		return primitives.Rid{PageNo: pageNo, SlotNo: slot}, nil
	}
}

// InsertRecordAt places data at an exact Rid, allocating intervening
// pages as needed. The operation is idempotent: an occupied slot is
// simply overwritten. Used by redo and by the undo of DELETE.
func (f *RecordFile) InsertRecordAt(rid primitives.Rid, data []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if len(data) != int(f.hdr.RecordSize) {
		return dberr.Newf(dberr.InternalError, "heap.insertAt",
			"record is %d bytes, want %d", len(data), f.hdr.RecordSize)
	}

	for f.hdr.NumPages <= int32(rid.PageNo) {
		if _, err := f.createPage(nil); err != nil {
			return err
		}
	}

	p, err := f.pool.FetchPage(page.ID{File: f.fid, PageNo: rid.PageNo})
	if err != nil {
		return err
	}
	d := f.view(p)

	if !d.slotUsed(rid.SlotNo) {
		d.setSlot(rid.SlotNo, true)
		d.setNumRecords(d.numRecords() + 1)
		if d.full() && f.hdr.FirstFreePage == rid.PageNo {
			f.hdr.FirstFreePage = d.nextFree()
			d.setNextFree(primitives.InvalidPageNumber)
		}
	}
	copy(d.slotBytes(rid.SlotNo), data)
	f.pool.UnpinPage(p.ID(), true)
	return nil
}

// EnsurePage grows the file until pageNo exists, formatting each new
// page. Pages created this way keep the sentinel page LSN. Used by
// recovery when the log references pages that never reached disk.
func (f *RecordFile) EnsurePage(pageNo primitives.PageNumber) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	for f.hdr.NumPages <= int32(pageNo) {
		if _, err := f.createPage(nil); err != nil {
			return err
		}
	}
	return nil
}

// DeleteRecord clears the record's slot. A page that transitions from
// full to has-free is pushed onto the free-list head.
func (f *RecordFile) DeleteRecord(rid primitives.Rid, txn *transaction.Transaction) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	p, d, err := f.fetchUsed(rid, "heap.delete")
	if err != nil {
		return err
	}

	wasFull := d.full()
	d.setSlot(rid.SlotNo, false)
	d.setNumRecords(d.numRecords() - 1)
	if wasFull {
		d.setNextFree(f.hdr.FirstFreePage)
		f.hdr.FirstFreePage = rid.PageNo
	}
	f.pool.UnpinPage(p.ID(), true)
	return nil
}

// UpdateRecord overwrites the record in place; records are fixed
// width, so the slot never moves.
func (f *RecordFile) UpdateRecord(rid primitives.Rid, data []byte, txn *transaction.Transaction) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if len(data) != int(f.hdr.RecordSize) {
		return dberr.Newf(dberr.InternalError, "heap.update",
			"record is %d bytes, want %d", len(data), f.hdr.RecordSize)
	}

	p, d, err := f.fetchUsed(rid, "heap.update")
	if err != nil {
		return err
	}
	copy(d.slotBytes(rid.SlotNo), data)
	f.pool.UnpinPage(p.ID(), true)
	return nil
}

// GetRecord copies the record at rid.
func (f *RecordFile) GetRecord(rid primitives.Rid, txn *transaction.Transaction) (*Record, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	p, d, err := f.fetchUsed(rid, "heap.get")
	if err != nil {
		return nil, err
	}
	data := make([]byte, f.hdr.RecordSize)
	copy(data, d.slotBytes(rid.SlotNo))
	f.pool.UnpinPage(p.ID(), false)
	return &Record{Rid: rid, Data: data}, nil
}

// HasRecord reports whether a used slot exists at rid.
func (f *RecordFile) HasRecord(rid primitives.Rid) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if int32(rid.PageNo) >= f.hdr.NumPages || rid.PageNo <= primitives.FileHeaderPage ||
		rid.SlotNo < 0 || int32(rid.SlotNo) >= f.hdr.SlotsPerPage {
		return false, nil
	}
	p, err := f.pool.FetchPage(page.ID{File: f.fid, PageNo: rid.PageNo})
	if err != nil {
		return false, err
	}
	used := f.view(p).slotUsed(rid.SlotNo)
	f.pool.UnpinPage(p.ID(), false)
	return used, nil
}

// StampPageLsn records a log record's LSN as the page's last-applied
// LSN. Callers do this after logging a change to the page (WAL).
func (f *RecordFile) StampPageLsn(pageNo primitives.PageNumber, lsn primitives.LSN) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	p, err := f.pool.FetchPage(page.ID{File: f.fid, PageNo: pageNo})
	if err != nil {
		return err
	}
	p.SetLsn(lsn)
	f.pool.UnpinPage(p.ID(), true)
	return nil
}

// PageLsn reads a page's last-applied LSN.
func (f *RecordFile) PageLsn(pageNo primitives.PageNumber) (primitives.LSN, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	p, err := f.pool.FetchPage(page.ID{File: f.fid, PageNo: pageNo})
	if err != nil {
		return primitives.InvalidLSN, err
	}
	lsn := p.Lsn()
	f.pool.UnpinPage(p.ID(), false)
	return lsn, nil
}

// fetchUsed pins rid's page and validates that the slot is in range
// and occupied. Callers hold f.mu and unpin on success.
func (f *RecordFile) fetchUsed(rid primitives.Rid, op string) (*page.Page, dataPage, error) {
	if int32(rid.PageNo) >= f.hdr.NumPages || rid.PageNo <= primitives.FileHeaderPage ||
		rid.SlotNo < 0 || int32(rid.SlotNo) >= f.hdr.SlotsPerPage {
		return nil, dataPage{}, dberr.Newf(dberr.RecordNotFound, op, "rid %s", rid)
	}

	p, err := f.pool.FetchPage(page.ID{File: f.fid, PageNo: rid.PageNo})
	if err != nil {
		return nil, dataPage{}, err
	}
	d := f.view(p)
	if !d.slotUsed(rid.SlotNo) {
		f.pool.UnpinPage(p.ID(), false)
		return nil, dataPage{}, dberr.Newf(dberr.RecordNotFound, op, "rid %s", rid)
	}
	return p, d, nil
}

// createPage allocates and formats a new data page, links it at the
// free-list head, and logs NEWPAGE when running inside a transaction.
// Callers hold f.mu.
func (f *RecordFile) createPage(txn *transaction.Transaction) (primitives.PageNumber, error) {
	p, err := f.pool.NewPage(f.fid)
	if err != nil {
		return primitives.InvalidPageNumber, err
	}
	pageNo := p.ID().PageNo

	d := f.view(p)
	d.init()
	d.setNextFree(f.hdr.FirstFreePage)
	f.hdr.FirstFreePage = pageNo
	f.hdr.NumPages = int32(pageNo) + 1

	if txn != nil && f.logMgr != nil {
		rec := log.NewNewPage(txn.ID(), txn.PrevLSN(), f.name, pageNo)
		lsn, err := f.logMgr.Append(rec)
		if err != nil {
			f.pool.UnpinPage(p.ID(), true)
			return primitives.InvalidPageNumber, err
		}
		txn.SetPrevLSN(lsn)
		p.SetLsn(lsn)
	}

	f.pool.UnpinPage(p.ID(), true)
	return pageNo, nil
}
