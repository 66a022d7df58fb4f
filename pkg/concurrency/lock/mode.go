// Package lock implements hierarchical multi-granularity locking over
// tables and records with strict no-wait deadlock prevention: any
// conflicting request aborts the requester instead of blocking, so no
// wait-for graph is needed.
package lock

import "reldb/pkg/primitives"

// Mode is the lock mode of a single request.
type Mode int

const (
	ModeIS Mode = iota
	ModeIX
	ModeS
	ModeSIX
	ModeX
)

func (m Mode) String() string {
	switch m {
	case ModeIS:
		return "IS"
	case ModeIX:
		return "IX"
	case ModeS:
		return "S"
	case ModeSIX:
		return "SIX"
	case ModeX:
		return "X"
	default:
		return "?"
	}
}

// GroupMode is the aggregate mode of a request queue: the supremum of
// the granted modes, with GroupNone for an empty queue.
type GroupMode int

const (
	GroupNone GroupMode = iota
	GroupIS
	GroupIX
	GroupS
	GroupSIX
	GroupX
)

// Group maps a request mode to its aggregate rank.
func (m Mode) Group() GroupMode {
	switch m {
	case ModeIS:
		return GroupIS
	case ModeIX:
		return GroupIX
	case ModeS:
		return GroupS
	case ModeSIX:
		return GroupSIX
	case ModeX:
		return GroupX
	default:
		return GroupNone
	}
}

// DataType distinguishes table-level from record-level lock targets.
type DataType int

const (
	DataTable DataType = iota
	DataRecord
)

// DataID identifies a lockable resource: a whole table file, or one
// record within it.
type DataID struct {
	File primitives.FileID
	Rid  primitives.Rid
	Typ  DataType
}

// TableID builds the lock id of a whole table.
func TableID(file primitives.FileID) DataID {
	return DataID{File: file, Typ: DataTable}
}

// RecordID builds the lock id of one record.
func RecordID(file primitives.FileID, rid primitives.Rid) DataID {
	return DataID{File: file, Rid: rid, Typ: DataRecord}
}
