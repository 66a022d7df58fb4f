package btree

import (
	"reldb/pkg/concurrency/transaction"
	"reldb/pkg/dberr"
	"reldb/pkg/primitives"
)

// GetValue returns the Rids of every entry whose user key equals the
// probe. With uniqueness enforced by callers the result holds zero or
// one Rid, but the walk tolerates duplicates spanning leaves.
func (h *IndexHandle) GetValue(userKey []byte, txn *transaction.Transaction) ([]primitives.Rid, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	var out []primitives.Rid
	if h.hdr.Root == primitives.InvalidPageNumber {
		return out, nil
	}

	leaf, err := h.findLeafFirst(userKey)
	if err != nil {
		return nil, err
	}
	idx := leaf.lowerBound(userKey)

	for {
		if idx >= leaf.numKeys() {
			next := leaf.next()
			h.release(leaf, false)
			if next == primitives.IndexLeafHeaderPage {
				return out, nil
			}
			if leaf, err = h.fetchNode(next); err != nil {
				return nil, err
			}
			idx = 0
			continue
		}
		if h.cmp(userKey, leaf.key(idx)) != 0 {
			h.release(leaf, false)
			return out, nil
		}
		out = append(out, leaf.rid(idx))
		idx++
	}
}

// LowerBound returns the position of the first entry with key >= the
// probe.
func (h *IndexHandle) LowerBound(userKey []byte) (primitives.Iid, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.bound(userKey, true)
}

// UpperBound returns the position of the first entry with key > the
// probe.
func (h *IndexHandle) UpperBound(userKey []byte) (primitives.Iid, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.bound(userKey, false)
}

// UpperBoundForGT behaves like UpperBound but also handles a probe
// smaller than every stored key, for which it returns the first
// position of the tree.
func (h *IndexHandle) UpperBoundForGT(userKey []byte) (primitives.Iid, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.hdr.Root == primitives.InvalidPageNumber {
		return h.leafEnd(), nil
	}

	first, err := h.fetchNode(h.hdr.FirstLeaf)
	if err != nil {
		return primitives.Iid{}, err
	}
	below := first.numKeys() > 0 && h.cmp(userKey, first.key(0)) < 0
	h.release(first, false)

	if below {
		return primitives.Iid{PageNo: h.hdr.FirstLeaf, SlotNo: 0}, nil
	}
	return h.bound(userKey, false)
}

// LeafBegin returns the position of the tree's first entry.
func (h *IndexHandle) LeafBegin() primitives.Iid {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.hdr.Root == primitives.InvalidPageNumber {
		return h.leafEnd()
	}
	return primitives.Iid{PageNo: h.hdr.FirstLeaf, SlotNo: 0}
}

// LeafEnd returns the position one past the final slot of the last
// leaf.
func (h *IndexHandle) LeafEnd() (primitives.Iid, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.hdr.Root == primitives.InvalidPageNumber {
		return h.leafEnd(), nil
	}
	last, err := h.fetchNode(h.hdr.LastLeaf)
	if err != nil {
		return primitives.Iid{}, err
	}
	iid := primitives.Iid{PageNo: h.hdr.LastLeaf, SlotNo: primitives.SlotNumber(last.numKeys())}
	h.release(last, false)
	return iid, nil
}

// RidAt reads the Rid stored at a cursor position.
func (h *IndexHandle) RidAt(iid primitives.Iid) (primitives.Rid, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	leaf, err := h.fetchNode(iid.PageNo)
	if err != nil {
		return primitives.Rid{}, err
	}
	defer h.release(leaf, false)

	if int(iid.SlotNo) >= leaf.numKeys() {
		return primitives.Rid{}, dberr.Newf(dberr.IndexEntryNotFound, "btree.rid",
			"position %s out of range", iid)
	}
	return leaf.rid(int(iid.SlotNo)), nil
}

// UserKeyAt copies the user key stored at a cursor position.
func (h *IndexHandle) UserKeyAt(iid primitives.Iid) ([]byte, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	leaf, err := h.fetchNode(iid.PageNo)
	if err != nil {
		return nil, err
	}
	defer h.release(leaf, false)

	if int(iid.SlotNo) >= leaf.numKeys() {
		return nil, dberr.Newf(dberr.IndexEntryNotFound, "btree.key",
			"position %s out of range", iid)
	}
	key := make([]byte, h.hdr.UserKeyLen)
	copy(key, leaf.key(int(iid.SlotNo)))
	return key, nil
}

// bound implements LowerBound/UpperBound. Callers hold h.mu.
func (h *IndexHandle) bound(userKey []byte, lower bool) (primitives.Iid, error) {
	if h.hdr.Root == primitives.InvalidPageNumber {
		return h.leafEnd(), nil
	}

	var leaf node
	var err error
	if lower {
		leaf, err = h.findLeafFirst(userKey)
	} else {
		leaf, err = h.findLeafLast(userKey)
	}
	if err != nil {
		return primitives.Iid{}, err
	}
	defer h.release(leaf, false)

	var idx int
	if lower {
		idx = leaf.lowerBound(userKey)
	} else {
		idx = leaf.upperBound(userKey)
	}

	if idx >= leaf.numKeys() && leaf.next() != primitives.IndexLeafHeaderPage {
		return primitives.Iid{PageNo: leaf.next(), SlotNo: 0}, nil
	}
	return primitives.Iid{PageNo: leaf.pageNo(), SlotNo: primitives.SlotNumber(idx)}, nil
}

// leafEnd is the end position; on an empty tree the reserved leaf
// header page stands in. Callers hold h.mu.
func (h *IndexHandle) leafEnd() primitives.Iid {
	return primitives.Iid{PageNo: primitives.IndexLeafHeaderPage, SlotNo: 0}
}
