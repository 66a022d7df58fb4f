package btree

import (
	"encoding/binary"

	"reldb/pkg/primitives"
	"reldb/pkg/storage/page"
)

// Node page payload layout:
//
//	is-leaf     1 B   offset 0
//	parent      4 B   offset 1
//	prev-leaf   4 B   offset 5
//	next-leaf   4 B   offset 9
//	num-keys    4 B   offset 13
//	keys        order * keyLen
//	rids        order * 8
//
// For internal nodes the i-th rid's page number is the i-th child, and
// the i-th key is the smallest key of that child's subtree. Leaves use
// prev/next to chain in key order; the boundary leaves point at the
// reserved leaf-header page.
const (
	nodeHeaderSize = 17
	ridSize        = 8
)

// node is a typed view over one pinned index page. The handle's mutex
// serializes all access.
type node struct {
	h *IndexHandle
	p *page.Page
}

func (n node) pageNo() primitives.PageNumber { return n.p.ID().PageNo }

func (n node) isLeaf() bool { return n.p.Payload()[0] != 0 }

func (n node) setLeaf(leaf bool) {
	if leaf {
		n.p.Payload()[0] = 1
	} else {
		n.p.Payload()[0] = 0
	}
}

func (n node) parent() primitives.PageNumber { return n.pageNoAt(1) }
func (n node) setParent(v primitives.PageNumber) { n.setPageNoAt(1, v) }

func (n node) prev() primitives.PageNumber { return n.pageNoAt(5) }
func (n node) setPrev(v primitives.PageNumber) { n.setPageNoAt(5, v) }

func (n node) next() primitives.PageNumber { return n.pageNoAt(9) }
func (n node) setNext(v primitives.PageNumber) { n.setPageNoAt(9, v) }

func (n node) numKeys() int {
	return int(int32(binary.LittleEndian.Uint32(n.p.Payload()[13:])))
}

func (n node) setNumKeys(v int) {
	binary.LittleEndian.PutUint32(n.p.Payload()[13:], uint32(int32(v)))
}

func (n node) pageNoAt(off int) primitives.PageNumber {
	return primitives.PageNumber(int32(binary.LittleEndian.Uint32(n.p.Payload()[off:])))
}

func (n node) setPageNoAt(off int, v primitives.PageNumber) {
	binary.LittleEndian.PutUint32(n.p.Payload()[off:], uint32(v))
}

func (n node) keyOff(i int) int {
	return nodeHeaderSize + i*n.h.keyLen
}

func (n node) ridOff(i int) int {
	return nodeHeaderSize + int(n.h.hdr.Order)*n.h.keyLen + i*ridSize
}

// key returns the stored key at slot i (user key plus tag).
func (n node) key(i int) []byte {
	off := n.keyOff(i)
	return n.p.Payload()[off : off+n.h.keyLen]
}

func (n node) setKey(i int, key []byte) {
	copy(n.key(i), key)
}

func (n node) rid(i int) primitives.Rid {
	off := n.ridOff(i)
	buf := n.p.Payload()[off:]
	return primitives.Rid{
		PageNo: primitives.PageNumber(int32(binary.LittleEndian.Uint32(buf[0:]))),
		SlotNo: primitives.SlotNumber(int32(binary.LittleEndian.Uint32(buf[4:]))),
	}
}

func (n node) setRid(i int, rid primitives.Rid) {
	off := n.ridOff(i)
	buf := n.p.Payload()[off:]
	binary.LittleEndian.PutUint32(buf[0:], uint32(rid.PageNo))
	binary.LittleEndian.PutUint32(buf[4:], uint32(rid.SlotNo))
}

// child returns the i-th child page number of an internal node.
func (n node) child(i int) primitives.PageNumber {
	return n.rid(i).PageNo
}

// childIndex finds which slot points at the given child page.
func (n node) childIndex(pageNo primitives.PageNumber) int {
	for i := 0; i < n.numKeys(); i++ {
		if n.child(i) == pageNo {
			return i
		}
	}
	return -1
}

// lowerBound returns the first slot whose key is >= probe.
func (n node) lowerBound(probe []byte) int {
	lo, hi := 0, n.numKeys()
	for lo < hi {
		mid := (lo + hi) / 2
		if n.h.cmp(probe, n.key(mid)) <= 0 {
			hi = mid
		} else {
			lo = mid + 1
		}
	}
	return lo
}

// upperBound returns the first slot whose key is > probe.
func (n node) upperBound(probe []byte) int {
	lo, hi := 0, n.numKeys()
	for lo < hi {
		mid := (lo + hi) / 2
		if n.h.cmp(probe, n.key(mid)) < 0 {
			hi = mid
		} else {
			lo = mid + 1
		}
	}
	return lo
}

// insertAt shifts slots right and places a (key, rid) pair at i.
func (n node) insertAt(i int, key []byte, rid primitives.Rid) {
	cnt := n.numKeys()
	for j := cnt; j > i; j-- {
		n.setKey(j, n.key(j-1))
		n.setRid(j, n.rid(j-1))
	}
	n.setKey(i, key)
	n.setRid(i, rid)
	n.setNumKeys(cnt + 1)
}

// removeAt deletes slot i, shifting the tail left.
func (n node) removeAt(i int) {
	cnt := n.numKeys()
	for j := i; j < cnt-1; j++ {
		n.setKey(j, n.key(j+1))
		n.setRid(j, n.rid(j+1))
	}
	n.setNumKeys(cnt - 1)
}

// initNode formats a fresh node page.
func (n node) initNode(leaf bool, parent primitives.PageNumber) {
	n.setLeaf(leaf)
	n.setParent(parent)
	n.setPrev(primitives.IndexLeafHeaderPage)
	n.setNext(primitives.IndexLeafHeaderPage)
	n.setNumKeys(0)
}
