package primitives

import "fmt"

// Rid locates a record inside a heap file as a (page, slot) pair.
type Rid struct {
	PageNo PageNumber
	SlotNo SlotNumber
}

// InvalidRid is the sentinel (-1,-1) used where no record is referenced.
var InvalidRid = Rid{PageNo: InvalidPageNumber, SlotNo: -1}

func (r Rid) String() string {
	return fmt.Sprintf("(%d,%d)", r.PageNo, r.SlotNo)
}

// Valid reports whether the Rid points at a plausible record location.
func (r Rid) Valid() bool {
	return r.PageNo > FileHeaderPage && r.SlotNo >= 0
}

// Iid is a B+-tree cursor position: a leaf page number and a slot index
// within that leaf. The end position is one past the final slot of the
// last leaf.
type Iid struct {
	PageNo PageNumber
	SlotNo SlotNumber
}

func (i Iid) String() string {
	return fmt.Sprintf("[%d:%d]", i.PageNo, i.SlotNo)
}
