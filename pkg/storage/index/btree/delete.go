package btree

import (
	"reldb/pkg/concurrency/transaction"
	"reldb/pkg/dberr"
	"reldb/pkg/primitives"
)

// DeleteEntry removes the entry matching the user key. Returns false
// when no entry matches. Underfull nodes borrow from or merge with a
// sibling, preferring the left one; the whole chain runs under the
// tree mutex.
func (h *IndexHandle) DeleteEntry(userKey []byte, txn *transaction.Transaction) (bool, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.hdr.Root == primitives.InvalidPageNumber {
		return false, nil
	}

	leaf, err := h.findLeafFirst(userKey)
	if err != nil {
		return false, err
	}

	idx := leaf.lowerBound(userKey)
	if idx >= leaf.numKeys() && leaf.next() != primitives.IndexLeafHeaderPage {
		// A key equal to a leaf's minimum is reached through the leaf on
		// its left; the match then starts the next leaf.
		next := leaf.next()
		h.release(leaf, false)
		if leaf, err = h.fetchNode(next); err != nil {
			return false, err
		}
		idx = leaf.lowerBound(userKey)
	}
	if idx >= leaf.numKeys() || h.cmp(userKey, leaf.key(idx)) != 0 {
		h.release(leaf, false)
		return false, nil
	}

	leaf.removeAt(idx)
	if idx == 0 && leaf.numKeys() > 0 {
		if err := h.maintainParent(leaf); err != nil {
			h.release(leaf, true)
			return false, err
		}
	}

	err = h.rebalance(leaf, txn)
	h.release(leaf, true)
	return err == nil, err
}

// rebalance restores the minimum-occupancy invariant after a removal.
// The caller keeps ownership of n.
func (h *IndexHandle) rebalance(n node, txn *transaction.Transaction) error {
	if n.pageNo() == h.hdr.Root {
		return h.adjustRoot(n, txn)
	}
	if n.numKeys() >= h.minSize() {
		return nil
	}

	parent, err := h.fetchNode(n.parent())
	if err != nil {
		return err
	}
	defer h.release(parent, true)

	idx := parent.childIndex(n.pageNo())
	if idx < 0 {
		return dberr.Newf(dberr.IndexEntryNotFound, "btree.rebalance",
			"page %d missing from parent %d", n.pageNo(), parent.pageNo())
	}

	// Prefer the left sibling; fall back to the right one.
	sibIdx := idx - 1
	if sibIdx < 0 {
		sibIdx = idx + 1
	}
	sib, err := h.fetchNode(parent.child(sibIdx))
	if err != nil {
		return err
	}
	defer h.release(sib, true)

	if sib.numKeys()+n.numKeys() >= 2*h.minSize() {
		return h.redistribute(parent, n, sib, idx, sibIdx)
	}
	return h.coalesce(parent, n, sib, idx, sibIdx, txn)
}

// redistribute moves one entry from the adjacent end of the sibling
// into the underfull node and refreshes the right-hand node's
// separator in the parent.
func (h *IndexHandle) redistribute(parent, n, sib node, idx, sibIdx int) error {
	if sibIdx < idx {
		// Left sibling donates its last entry to the front of n.
		last := sib.numKeys() - 1
		n.insertAt(0, sib.key(last), sib.rid(last))
		sib.removeAt(last)
		if err := h.maintainChild(n, 0); err != nil {
			return err
		}
		return h.maintainParent(n)
	}

	// Right sibling donates its first entry to the end of n.
	n.insertAt(n.numKeys(), sib.key(0), sib.rid(0))
	sib.removeAt(0)
	if err := h.maintainChild(n, n.numKeys()-1); err != nil {
		return err
	}
	if err := h.maintainParent(sib); err != nil {
		return err
	}
	return h.maintainParent(n)
}

// coalesce merges the right node into the left one, unlinks the right
// node from the leaf chain and the parent, frees its page, and
// rebalances the parent.
func (h *IndexHandle) coalesce(parent, n, sib node, idx, sibIdx int, txn *transaction.Transaction) error {
	left, right := sib, n
	rightIdx := idx
	if sibIdx > idx {
		left, right = n, sib
		rightIdx = sibIdx
	}

	base := left.numKeys()
	for i := 0; i < right.numKeys(); i++ {
		left.setKey(base+i, right.key(i))
		left.setRid(base+i, right.rid(i))
	}
	left.setNumKeys(base + right.numKeys())
	if base == 0 && left.numKeys() > 0 {
		// The left node was emptied before the merge; its minimum is
		// new and the ancestor separators must follow it.
		if err := h.maintainParent(left); err != nil {
			return err
		}
	}

	if left.isLeaf() {
		left.setNext(right.next())
		if right.next() != primitives.IndexLeafHeaderPage {
			after, err := h.fetchNode(right.next())
			if err != nil {
				return err
			}
			after.setPrev(left.pageNo())
			h.release(after, true)
		} else {
			h.hdr.LastLeaf = left.pageNo()
		}
	} else {
		for i := base; i < left.numKeys(); i++ {
			if err := h.maintainChild(left, i); err != nil {
				return err
			}
		}
	}

	parent.removeAt(rightIdx)
	if err := h.freeNode(right, txn); err != nil {
		return err
	}
	return h.rebalance(parent, txn)
}

// adjustRoot handles underflow at the root: an internal root with one
// child hands the tree to that child; an empty leaf root leaves the
// tree empty with an invalid root page.
func (h *IndexHandle) adjustRoot(root node, txn *transaction.Transaction) error {
	if !root.isLeaf() && root.numKeys() == 1 {
		child, err := h.fetchNode(root.child(0))
		if err != nil {
			return err
		}
		child.setParent(primitives.InvalidPageNumber)
		h.hdr.Root = child.pageNo()
		h.release(child, true)
		return h.freeNode(root, txn)
	}

	if root.isLeaf() && root.numKeys() == 0 {
		h.hdr.Root = primitives.InvalidPageNumber
		h.hdr.FirstLeaf = primitives.IndexLeafHeaderPage
		h.hdr.LastLeaf = primitives.IndexLeafHeaderPage
		return h.freeNode(root, txn)
	}
	return nil
}

// freeNode records the page as pending delete for the transaction. The
// page itself is dropped from the pool once its pins are gone; page
// numbers are not reused within the file.
func (h *IndexHandle) freeNode(n node, txn *transaction.Transaction) error {
	if txn != nil {
		txn.AddDeletedPage(n.p.ID())
	}
	return nil
}
