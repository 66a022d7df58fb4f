package btree

import (
	"encoding/binary"
	"sync"

	"reldb/pkg/concurrency/transaction"
	"reldb/pkg/dberr"
	"reldb/pkg/memory"
	"reldb/pkg/primitives"
	"reldb/pkg/storage/page"
	"reldb/pkg/types"
)

// IndexHandle is an open B+-tree index file. One mutex serializes all
// operations, point lookups and scans included, and is held across
// entire split and coalesce chains so no other operation can observe
// a partial structural modification.
type IndexHandle struct {
	mu     sync.Mutex
	name   string
	fid    primitives.FileID
	pool   *memory.BufferPool
	hdr    indexHeader
	keyLen int
}

// Name returns the index name.
func (h *IndexHandle) Name() string { return h.name }

// FileID returns the disk handle of the index file.
func (h *IndexHandle) FileID() primitives.FileID { return h.fid }

// Cols returns the user key column descriptors.
func (h *IndexHandle) Cols() []types.ColDesc { return h.hdr.Cols }

// Order returns the tree order (maximum keys per node).
func (h *IndexHandle) Order() int { return int(h.hdr.Order) }

// UserKeyLen returns the packed width of the user key.
func (h *IndexHandle) UserKeyLen() int { return int(h.hdr.UserKeyLen) }

// cmp compares a probe against a stored key. The probe may carry only
// the user columns, in which case the tag is ignored and equal user
// keys compare equal; a full-width probe tie-breaks on the tag.
func (h *IndexHandle) cmp(probe, stored []byte) int {
	if c := types.CompareKeys(probe, stored, h.hdr.Cols); c != 0 {
		return c
	}
	userLen := int(h.hdr.UserKeyLen)
	if len(probe) < userLen+tagLen || len(stored) < userLen+tagLen {
		return 0
	}
	ta := int64(binary.LittleEndian.Uint64(probe[userLen:]))
	tb := int64(binary.LittleEndian.Uint64(stored[userLen:]))
	switch {
	case ta < tb:
		return -1
	case ta > tb:
		return 1
	default:
		return 0
	}
}

// takeTag appends the next duplicate tag to a user key, producing the
// stored key. Tags decrease monotonically so newer duplicates sort
// first.
func (h *IndexHandle) takeTag(userKey []byte) []byte {
	stored := make([]byte, h.keyLen)
	copy(stored, userKey)
	binary.LittleEndian.PutUint64(stored[h.hdr.UserKeyLen:], uint64(h.hdr.NextTag))
	h.hdr.NextTag--
	return stored
}

func (h *IndexHandle) minSize() int {
	return int(h.hdr.Order) / 2
}

// fetchNode pins a tree page. Callers hold h.mu and release the node.
func (h *IndexHandle) fetchNode(pageNo primitives.PageNumber) (node, error) {
	p, err := h.pool.FetchPage(page.ID{File: h.fid, PageNo: pageNo})
	if err != nil {
		return node{}, err
	}
	return node{h: h, p: p}, nil
}

func (h *IndexHandle) release(n node, dirty bool) {
	h.pool.UnpinPage(n.p.ID(), dirty)
}

// newNode allocates and formats a fresh tree page.
func (h *IndexHandle) newNode(leaf bool, parent primitives.PageNumber, txn *transaction.Transaction) (node, error) {
	p, err := h.pool.NewPage(h.fid)
	if err != nil {
		return node{}, err
	}
	if txn != nil {
		txn.AddLatchedPage(p.ID())
	}
	n := node{h: h, p: p}
	n.initNode(leaf, parent)
	h.hdr.NumPages = int32(p.ID().PageNo) + 1
	return n, nil
}

// findLeafLast descends to the leaf that owns the probe for insertion
// and exact search: at each internal node the last child whose minimum
// is <= the probe.
func (h *IndexHandle) findLeafLast(probe []byte) (node, error) {
	return h.descend(probe, func(n node) int {
		idx := n.upperBound(probe) - 1
		if idx < 0 {
			idx = 0
		}
		return idx
	})
}

// findLeafFirst descends to the leaf holding the first entry >= probe,
// or to the leaf just before it when that entry starts a leaf: at each
// internal node the last child whose minimum is strictly below the
// probe, so a run of equal keys is entered at its beginning.
func (h *IndexHandle) findLeafFirst(probe []byte) (node, error) {
	return h.descend(probe, func(n node) int {
		idx := n.lowerBound(probe) - 1
		if idx < 0 {
			idx = 0
		}
		return idx
	})
}

func (h *IndexHandle) descend(probe []byte, pick func(node) int) (node, error) {
	if h.hdr.Root == primitives.InvalidPageNumber {
		return node{}, dberr.Newf(dberr.IndexEntryNotFound, "btree.find", "index %s is empty", h.name)
	}

	n, err := h.fetchNode(h.hdr.Root)
	if err != nil {
		return node{}, err
	}
	for !n.isLeaf() {
		child := n.child(pick(n))
		h.release(n, false)
		if n, err = h.fetchNode(child); err != nil {
			return node{}, err
		}
	}
	return n, nil
}

// maintainParent propagates a changed minimum key up the tree: the
// parent's separator for the child is rewritten, and when the child is
// the parent's first entry the change continues upward.
func (h *IndexHandle) maintainParent(n node) error {
	cur := n
	curOwned := false
	defer func() {
		if curOwned {
			h.release(cur, true)
		}
	}()

	for cur.parent() != primitives.InvalidPageNumber {
		parent, err := h.fetchNode(cur.parent())
		if err != nil {
			return err
		}
		idx := parent.childIndex(cur.pageNo())
		if idx < 0 {
			h.release(parent, false)
			return dberr.Newf(dberr.IndexEntryNotFound, "btree.maintain",
				"page %d missing from parent %d", cur.pageNo(), parent.pageNo())
		}

		min := cur.key(0)
		if h.cmp(min, parent.key(idx)) == 0 {
			h.release(parent, false)
			return nil
		}
		parent.setKey(idx, min)

		if curOwned {
			h.release(cur, true)
		}
		cur = parent
		curOwned = true
		if idx != 0 {
			return nil
		}
	}
	return nil
}

// maintainChild repoints the parent pointer of an internal node's i-th
// child after entries moved between nodes.
func (h *IndexHandle) maintainChild(n node, i int) error {
	if n.isLeaf() {
		return nil
	}
	child, err := h.fetchNode(n.child(i))
	if err != nil {
		return err
	}
	child.setParent(n.pageNo())
	h.release(child, true)
	return nil
}
