package transaction

import "reldb/pkg/primitives"

// WriteType tags the kind of change a write record undoes.
type WriteType int

const (
	WriteInsert WriteType = iota
	WriteDelete
	WriteUpdate
)

func (t WriteType) String() string {
	switch t {
	case WriteInsert:
		return "INSERT"
	case WriteDelete:
		return "DELETE"
	case WriteUpdate:
		return "UPDATE"
	default:
		return "UNKNOWN"
	}
}

// WriteRecord is one entry of a transaction's ordered write set,
// carrying everything abort needs to compensate the change. Exactly
// one of Table or Index is set: table entries reference a heap record
// by Rid, index entries reference an index by the key bytes involved.
//
// The saved images per type:
//
//	INSERT  table: Rid            index: Value = inserted key
//	DELETE  table: Value (old)    index: Value = deleted key
//	UPDATE  table: Value, NewValue index: Value = old key, NewValue = new key
type WriteRecord struct {
	Type  WriteType
	Table string
	Index string
	Rid   primitives.Rid

	Value    []byte
	NewValue []byte
}

// NewTableWrite builds a write-set entry for a heap record change.
func NewTableWrite(t WriteType, table string, rid primitives.Rid, value, newValue []byte) *WriteRecord {
	return &WriteRecord{Type: t, Table: table, Rid: rid, Value: value, NewValue: newValue}
}

// NewIndexWrite builds a write-set entry for an index entry change.
func NewIndexWrite(t WriteType, index string, rid primitives.Rid, key, newKey []byte) *WriteRecord {
	return &WriteRecord{Type: t, Index: index, Rid: rid, Value: key, NewValue: newKey}
}
