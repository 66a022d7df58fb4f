package heap

import (
	"reldb/pkg/primitives"
	"reldb/pkg/storage/page"
)

// Scanner enumerates every record of a file in ascending
// (page, slot) order. It tolerates interleaved updates to record
// contents but not structural changes to the file.
type Scanner struct {
	file *RecordFile
	rid  primitives.Rid
	done bool
}

// NewScanner positions a scanner on the first record of the file.
func (f *RecordFile) NewScanner() (*Scanner, error) {
	s := &Scanner{
		file: f,
		rid:  primitives.Rid{PageNo: primitives.FileHeaderPage, SlotNo: -1},
	}
	if err := s.advance(); err != nil {
		return nil, err
	}
	return s, nil
}

// IsEnd reports whether the scan is exhausted.
func (s *Scanner) IsEnd() bool { return s.done }

// Rid returns the current position.
func (s *Scanner) Rid() primitives.Rid { return s.rid }

// Next moves to the next used slot.
func (s *Scanner) Next() error {
	if s.done {
		return nil
	}
	return s.advance()
}

// advance walks forward from the current position to the next set
// slot bit, crossing page boundaries as needed.
func (s *Scanner) advance() error {
	f := s.file
	f.mu.Lock()
	defer f.mu.Unlock()

	pageNo := s.rid.PageNo
	slot := s.rid.SlotNo + 1
	if pageNo == primitives.FileHeaderPage {
		pageNo = primitives.FileHeaderPage + 1
		slot = 0
	}

	for ; int32(pageNo) < f.hdr.NumPages; pageNo++ {
		p, err := f.pool.FetchPage(page.ID{File: f.fid, PageNo: pageNo})
		if err != nil {
			return err
		}
		d := f.view(p)
		for ; int32(slot) < f.hdr.SlotsPerPage; slot++ {
			if d.slotUsed(slot) {
				f.pool.UnpinPage(p.ID(), false)
				s.rid = primitives.Rid{PageNo: pageNo, SlotNo: slot}
				return nil
			}
		}
		f.pool.UnpinPage(p.ID(), false)
		slot = 0
	}

	s.done = true
	s.rid = primitives.InvalidRid
	return nil
}
