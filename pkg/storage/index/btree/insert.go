package btree

import (
	"reldb/pkg/concurrency/transaction"
	"reldb/pkg/dberr"
	"reldb/pkg/primitives"
)

// InsertEntry adds (key, rid) to the index. The stored key is the user
// key extended with a fresh duplicate tag, so equal user keys never
// collide; a stored key that somehow already exists makes the call a
// silent no-op. Splits propagate to the root under the tree mutex.
func (h *IndexHandle) InsertEntry(userKey []byte, rid primitives.Rid, txn *transaction.Transaction) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if len(userKey) != int(h.hdr.UserKeyLen) {
		return dberr.Newf(dberr.InternalError, "btree.insert",
			"key is %d bytes, want %d", len(userKey), h.hdr.UserKeyLen)
	}

	stored := h.takeTag(userKey)

	if h.hdr.Root == primitives.InvalidPageNumber {
		return h.plantRoot(stored, rid, txn)
	}

	leaf, err := h.findLeafLast(stored)
	if err != nil {
		return err
	}

	idx := leaf.lowerBound(stored)
	if idx < leaf.numKeys() && h.cmp(stored, leaf.key(idx)) == 0 {
		h.release(leaf, false)
		return nil
	}

	leaf.insertAt(idx, stored, rid)
	if idx == 0 {
		if err := h.maintainParent(leaf); err != nil {
			h.release(leaf, true)
			return err
		}
	}

	if leaf.numKeys() == int(h.hdr.Order) {
		err = h.split(leaf, txn)
	}
	h.release(leaf, true)
	return err
}

// plantRoot creates a fresh leaf root for an empty tree and places the
// first entry in it.
func (h *IndexHandle) plantRoot(stored []byte, rid primitives.Rid, txn *transaction.Transaction) error {
	root, err := h.newNode(true, primitives.InvalidPageNumber, txn)
	if err != nil {
		return err
	}
	root.insertAt(0, stored, rid)
	h.hdr.Root = root.pageNo()
	h.hdr.FirstLeaf = root.pageNo()
	h.hdr.LastLeaf = root.pageNo()
	h.release(root, true)
	return nil
}

// split moves the upper half of a full node into a new right sibling
// and inserts the sibling into the parent, recursing as parents fill.
// The caller keeps ownership of n.
func (h *IndexHandle) split(n node, txn *transaction.Transaction) error {
	sib, err := h.newNode(n.isLeaf(), n.parent(), txn)
	if err != nil {
		return err
	}

	cnt := n.numKeys()
	pos := cnt / 2
	for i := pos; i < cnt; i++ {
		sib.setKey(i-pos, n.key(i))
		sib.setRid(i-pos, n.rid(i))
	}
	sib.setNumKeys(cnt - pos)
	n.setNumKeys(pos)

	if n.isLeaf() {
		sib.setPrev(n.pageNo())
		sib.setNext(n.next())
		if n.next() != primitives.IndexLeafHeaderPage {
			right, err := h.fetchNode(n.next())
			if err != nil {
				h.release(sib, true)
				return err
			}
			right.setPrev(sib.pageNo())
			h.release(right, true)
		} else {
			h.hdr.LastLeaf = sib.pageNo()
		}
		n.setNext(sib.pageNo())
	} else {
		for i := 0; i < sib.numKeys(); i++ {
			if err := h.maintainChild(sib, i); err != nil {
				h.release(sib, true)
				return err
			}
		}
	}

	err = h.insertIntoParent(n, sib)
	h.release(sib, true)
	return err
}

// insertIntoParent links a new right sibling after its left neighbor,
// creating a new root when the left node was the root.
func (h *IndexHandle) insertIntoParent(left, right node) error {
	if left.parent() == primitives.InvalidPageNumber {
		root, err := h.newNode(false, primitives.InvalidPageNumber, nil)
		if err != nil {
			return err
		}
		root.insertAt(0, left.key(0), primitives.Rid{PageNo: left.pageNo()})
		root.insertAt(1, right.key(0), primitives.Rid{PageNo: right.pageNo()})
		left.setParent(root.pageNo())
		right.setParent(root.pageNo())
		h.hdr.Root = root.pageNo()
		h.release(root, true)
		return nil
	}

	parent, err := h.fetchNode(left.parent())
	if err != nil {
		return err
	}
	idx := parent.childIndex(left.pageNo())
	if idx < 0 {
		h.release(parent, false)
		return dberr.Newf(dberr.IndexEntryNotFound, "btree.split",
			"page %d missing from parent %d", left.pageNo(), parent.pageNo())
	}

	parent.insertAt(idx+1, right.key(0), primitives.Rid{PageNo: right.pageNo()})
	right.setParent(parent.pageNo())

	if parent.numKeys() == int(h.hdr.Order) {
		err = h.split(parent, nil)
	}
	h.release(parent, true)
	return err
}
