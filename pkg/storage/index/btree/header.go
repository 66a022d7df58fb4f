// Package btree implements the on-disk B+-tree secondary index:
// multi-column fixed-width keys, leaf chaining for range scans, and
// split / redistribute / coalesce maintenance under a per-tree mutex.
package btree

import (
	"encoding/binary"
	"math"

	"reldb/pkg/dberr"
	"reldb/pkg/primitives"
	"reldb/pkg/types"
)

const indexMagic = 0x42545245 // "BTRE"

// indexHeader is the persistent state of an index file, stored in the
// payload of page 0 and cached while the index is open.
//
// NextTag is the per-file duplicate tag counter: every stored key is
// the user key followed by a monotonically decreasing 8-byte tag, so
// equal user keys remain pairwise distinct on disk while prefix probes
// still find them.
type indexHeader struct {
	Magic      uint32
	Order      int32
	UserKeyLen int32
	Root       primitives.PageNumber
	FirstLeaf  primitives.PageNumber
	LastLeaf   primitives.PageNumber
	NumPages   int32
	NextTag    int64
	Cols       []types.ColDesc
}

const tagLen = 8

func (h *indexHeader) totalKeyLen() int {
	return int(h.UserKeyLen) + tagLen
}

func (h *indexHeader) marshal(buf []byte) {
	binary.LittleEndian.PutUint32(buf[0:], h.Magic)
	binary.LittleEndian.PutUint32(buf[4:], uint32(h.Order))
	binary.LittleEndian.PutUint32(buf[8:], uint32(h.UserKeyLen))
	binary.LittleEndian.PutUint32(buf[12:], uint32(h.Root))
	binary.LittleEndian.PutUint32(buf[16:], uint32(h.FirstLeaf))
	binary.LittleEndian.PutUint32(buf[20:], uint32(h.LastLeaf))
	binary.LittleEndian.PutUint32(buf[24:], uint32(h.NumPages))
	binary.LittleEndian.PutUint64(buf[28:], uint64(h.NextTag))
	binary.LittleEndian.PutUint32(buf[36:], uint32(len(h.Cols)))
	off := 40
	for _, c := range h.Cols {
		buf[off] = byte(c.Type)
		binary.LittleEndian.PutUint16(buf[off+1:], c.Len)
		off += 3
	}
}

func (h *indexHeader) unmarshal(buf []byte) error {
	h.Magic = binary.LittleEndian.Uint32(buf[0:])
	if h.Magic != indexMagic {
		return dberr.Newf(dberr.InternalError, "btree.open", "bad index magic %#x", h.Magic)
	}
	h.Order = int32(binary.LittleEndian.Uint32(buf[4:]))
	h.UserKeyLen = int32(binary.LittleEndian.Uint32(buf[8:]))
	h.Root = primitives.PageNumber(int32(binary.LittleEndian.Uint32(buf[12:])))
	h.FirstLeaf = primitives.PageNumber(int32(binary.LittleEndian.Uint32(buf[16:])))
	h.LastLeaf = primitives.PageNumber(int32(binary.LittleEndian.Uint32(buf[20:])))
	h.NumPages = int32(binary.LittleEndian.Uint32(buf[24:]))
	h.NextTag = int64(binary.LittleEndian.Uint64(buf[28:]))

	numCols := int(binary.LittleEndian.Uint32(buf[36:]))
	h.Cols = make([]types.ColDesc, numCols)
	off := 40
	for i := range h.Cols {
		h.Cols[i] = types.ColDesc{
			Type: types.Type(buf[off]),
			Len:  binary.LittleEndian.Uint16(buf[off+1:]),
		}
		off += 3
	}
	return nil
}

// initialTag is where the decreasing duplicate tag counter starts.
const initialTag = math.MaxInt64
