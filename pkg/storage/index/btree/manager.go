package btree

import (
	"reldb/pkg/dberr"
	"reldb/pkg/memory"
	"reldb/pkg/primitives"
	"reldb/pkg/storage/disk"
	"reldb/pkg/storage/page"
	"reldb/pkg/types"
)

// Manager creates, opens and destroys index files.
type Manager struct {
	disk *disk.Manager
	pool *memory.BufferPool
}

// NewManager wires an index manager over the disk manager and buffer
// pool.
func NewManager(dm *disk.Manager, pool *memory.BufferPool) *Manager {
	return &Manager{disk: dm, pool: pool}
}

// CreateOptions tune index creation. A zero Order derives the largest
// order that fits a page.
type CreateOptions struct {
	Order int
}

// CreateIndex lays out an empty index file: the header page, the
// reserved leaf-header page, and an empty leaf root.
func (m *Manager) CreateIndex(path string, cols []types.ColDesc, opts CreateOptions) error {
	userKeyLen := types.TotalLen(cols)
	keyLen := userKeyLen + tagLen

	order := opts.Order
	if order == 0 {
		order = (page.PayloadSize - nodeHeaderSize) / (keyLen + ridSize)
	}
	if order < 3 || nodeHeaderSize+order*(keyLen+ridSize) > page.PayloadSize {
		return dberr.Newf(dberr.InternalError, "btree.create",
			"order %d with key length %d does not fit a page", order, keyLen)
	}

	if err := m.disk.CreateFile(path); err != nil {
		return err
	}
	fid, err := m.disk.OpenFile(path)
	if err != nil {
		return err
	}
	defer m.disk.CloseFile(fid)

	hdr := indexHeader{
		Magic:      indexMagic,
		Order:      int32(order),
		UserKeyLen: int32(userKeyLen),
		Root:       primitives.IndexInitRootPage,
		FirstLeaf:  primitives.IndexInitRootPage,
		LastLeaf:   primitives.IndexInitRootPage,
		NumPages:   3,
		NextTag:    initialTag,
		Cols:       cols,
	}

	var headerPage page.Page
	headerPage.Reset(page.ID{File: fid, PageNo: primitives.FileHeaderPage})
	hdr.marshal(headerPage.Payload())
	if err := m.disk.WritePage(fid, primitives.FileHeaderPage, headerPage.Data()); err != nil {
		return err
	}

	var leafHeader page.Page
	leafHeader.Reset(page.ID{File: fid, PageNo: primitives.IndexLeafHeaderPage})
	if err := m.disk.WritePage(fid, primitives.IndexLeafHeaderPage, leafHeader.Data()); err != nil {
		return err
	}

	var rootPage page.Page
	rootPage.Reset(page.ID{File: fid, PageNo: primitives.IndexInitRootPage})
	root := node{h: &IndexHandle{hdr: hdr, keyLen: keyLen}, p: &rootPage}
	root.initNode(true, primitives.InvalidPageNumber)
	return m.disk.WritePage(fid, primitives.IndexInitRootPage, rootPage.Data())
}

// OpenIndex opens an index file and caches its header. name identifies
// the index in write records and error detail.
func (m *Manager) OpenIndex(path, name string) (*IndexHandle, error) {
	fid, err := m.disk.OpenFile(path)
	if err != nil {
		return nil, err
	}

	var buf [page.Size]byte
	if err := m.disk.ReadPage(fid, primitives.FileHeaderPage, buf[:]); err != nil {
		m.disk.CloseFile(fid)
		return nil, err
	}

	h := &IndexHandle{name: name, fid: fid, pool: m.pool}
	if err := h.hdr.unmarshal(buf[page.HeaderSize:]); err != nil {
		m.disk.CloseFile(fid)
		return nil, err
	}
	h.keyLen = h.hdr.totalKeyLen()

	if err := m.disk.SetPageCounter(fid, primitives.PageNumber(h.hdr.NumPages)); err != nil {
		m.disk.CloseFile(fid)
		return nil, err
	}
	return h, nil
}

// CloseIndex flushes the header and every resident page, evicts the
// file from the pool and closes the handle.
func (m *Manager) CloseIndex(h *IndexHandle) error {
	if err := h.FlushHeader(); err != nil {
		return err
	}
	if err := m.pool.FlushAllPages(h.fid); err != nil {
		return err
	}
	m.pool.DeleteAllPages(h.fid)
	return m.disk.CloseFile(h.fid)
}

// DestroyIndex removes a closed index file from disk.
func (m *Manager) DestroyIndex(path string) error {
	return m.disk.DestroyFile(path)
}

// FlushHeader writes the cached index header back to page 0.
func (h *IndexHandle) FlushHeader() error {
	h.mu.Lock()
	defer h.mu.Unlock()

	p, err := h.pool.FetchPage(page.ID{File: h.fid, PageNo: primitives.FileHeaderPage})
	if err != nil {
		return err
	}
	h.hdr.marshal(p.Payload())
	h.pool.UnpinPage(p.ID(), true)
	return nil
}
