// Package log implements the write-ahead log: the record wire format,
// the in-memory log buffer with monotonic LSN assignment, and the
// reader used by recovery.
package log

import (
	"fmt"

	"reldb/pkg/primitives"
)

// RecordType tags the variants of the log record union.
type RecordType uint32

const (
	RecordBegin RecordType = iota
	RecordCommit
	RecordAbort
	RecordInsert
	RecordDelete
	RecordUpdate
	RecordNewPage
)

func (t RecordType) String() string {
	switch t {
	case RecordBegin:
		return "BEGIN"
	case RecordCommit:
		return "COMMIT"
	case RecordAbort:
		return "ABORT"
	case RecordInsert:
		return "INSERT"
	case RecordDelete:
		return "DELETE"
	case RecordUpdate:
		return "UPDATE"
	case RecordNewPage:
		return "NEWPAGE"
	default:
		return "UNKNOWN"
	}
}

// Record is one log record. All variants share the prefix fields; the
// remaining fields are populated per type:
//
//	INSERT  Table, Rid, Value (after image)
//	DELETE  Table, Rid, Value (before image)
//	UPDATE  Table, Rid, OldValue, NewValue
//	NEWPAGE Table, PageNo
//
// Records of one transaction chain backward through PrevLSN.
type Record struct {
	Type    RecordType
	LSN     primitives.LSN
	PrevLSN primitives.LSN
	TxnID   primitives.TxnID

	Table    string
	Rid      primitives.Rid
	Value    []byte
	OldValue []byte
	NewValue []byte
	PageNo   primitives.PageNumber
}

func (r *Record) String() string {
	return fmt.Sprintf("%s lsn=%d prev=%d txn=%d", r.Type, r.LSN, r.PrevLSN, r.TxnID)
}

// NewBegin builds a BEGIN record for a transaction.
func NewBegin(txnID primitives.TxnID) *Record {
	return &Record{Type: RecordBegin, TxnID: txnID, PrevLSN: primitives.InvalidLSN}
}

// NewCommit builds a COMMIT record chained after prev.
func NewCommit(txnID primitives.TxnID, prev primitives.LSN) *Record {
	return &Record{Type: RecordCommit, TxnID: txnID, PrevLSN: prev}
}

// NewAbort builds an ABORT record chained after prev.
func NewAbort(txnID primitives.TxnID, prev primitives.LSN) *Record {
	return &Record{Type: RecordAbort, TxnID: txnID, PrevLSN: prev}
}

// NewInsert builds an INSERT record with the inserted value bytes.
func NewInsert(txnID primitives.TxnID, prev primitives.LSN, table string, rid primitives.Rid, value []byte) *Record {
	return &Record{Type: RecordInsert, TxnID: txnID, PrevLSN: prev, Table: table, Rid: rid, Value: value}
}

// NewDelete builds a DELETE record with the deleted value bytes.
func NewDelete(txnID primitives.TxnID, prev primitives.LSN, table string, rid primitives.Rid, value []byte) *Record {
	return &Record{Type: RecordDelete, TxnID: txnID, PrevLSN: prev, Table: table, Rid: rid, Value: value}
}

// NewUpdate builds an UPDATE record with before and after images.
func NewUpdate(txnID primitives.TxnID, prev primitives.LSN, table string, rid primitives.Rid, oldValue, newValue []byte) *Record {
	return &Record{Type: RecordUpdate, TxnID: txnID, PrevLSN: prev, Table: table, Rid: rid, OldValue: oldValue, NewValue: newValue}
}

// NewNewPage builds a NEWPAGE record for a page allocation.
func NewNewPage(txnID primitives.TxnID, prev primitives.LSN, table string, pageNo primitives.PageNumber) *Record {
	return &Record{Type: RecordNewPage, TxnID: txnID, PrevLSN: prev, Table: table, PageNo: pageNo}
}
