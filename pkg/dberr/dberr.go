// Package dberr defines the structured error kinds surfaced by the
// storage, index, lock and recovery components. Executors translate
// these into SQL-level errors; the kinds therefore form the stable
// error contract of the engine.
package dberr

import (
	"errors"
	"fmt"

	"reldb/pkg/primitives"
)

// Category classifies errors by their nature and appropriate handling
// strategy.
type Category int

const (
	// CategoryUser covers errors caused by the statement itself:
	// arity mismatches, type mismatches, uniqueness violations.
	CategoryUser Category = iota

	// CategoryConcurrency covers lock-protocol conflicts. These abort
	// the requesting transaction, which may be retried.
	CategoryConcurrency

	// CategoryCatalog covers filesystem-level guards on databases,
	// tables and indexes.
	CategoryCatalog

	// CategorySystem covers I/O failures. The engine cannot make
	// progress without an intact log and pages, so these are fatal.
	CategorySystem

	// CategoryInternal covers invariant violations.
	CategoryInternal
)

// Kind enumerates the error kinds of the engine's error contract.
type Kind int

const (
	IndexEntryNotFound Kind = iota
	RecordNotFound
	IncompatibleType
	InvalidValueCount
	DatabaseExists
	DatabaseNotFound
	TableExists
	TableNotFound
	IndexExists
	IndexNotFound
	NonUniqueIndex
	LockOnShrinking
	DeadlockPrevention
	TransactionAbort
	UnixError
	InternalError
)

var kindInfo = map[Kind]struct {
	code     string
	category Category
	message  string
}{
	IndexEntryNotFound: {"INDEX_ENTRY_NOT_FOUND", CategoryInternal, "expected index entry is missing"},
	RecordNotFound:     {"RECORD_NOT_FOUND", CategoryUser, "record does not exist"},
	IncompatibleType:   {"INCOMPATIBLE_TYPE", CategoryUser, "value does not match column type"},
	InvalidValueCount:  {"INVALID_VALUE_COUNT", CategoryUser, "value count does not match column count"},
	DatabaseExists:     {"DATABASE_EXISTS", CategoryCatalog, "database already exists"},
	DatabaseNotFound:   {"DATABASE_NOT_FOUND", CategoryCatalog, "database does not exist"},
	TableExists:        {"TABLE_EXISTS", CategoryCatalog, "table already exists"},
	TableNotFound:      {"TABLE_NOT_FOUND", CategoryCatalog, "table does not exist"},
	IndexExists:        {"INDEX_EXISTS", CategoryCatalog, "index already exists"},
	IndexNotFound:      {"INDEX_NOT_FOUND", CategoryCatalog, "index does not exist"},
	NonUniqueIndex:     {"NON_UNIQUE_INDEX", CategoryUser, "duplicate key violates unique index"},
	LockOnShrinking:    {"LOCK_ON_SHRINKING", CategoryConcurrency, "lock requested after first unlock"},
	DeadlockPrevention: {"DEADLOCK_PREVENTION", CategoryConcurrency, "conflicting lock request aborted (no-wait)"},
	TransactionAbort:   {"TRANSACTION_ABORT", CategoryConcurrency, "transaction aborted"},
	UnixError:          {"UNIX_ERROR", CategorySystem, "I/O failure"},
	InternalError:      {"INTERNAL_ERROR", CategoryInternal, "internal invariant violation"},
}

// DBError is a structured engine error: a kind, the operation that
// raised it, instance detail, and an optional wrapped cause.
type DBError struct {
	Kind   Kind
	Op     string
	Detail string
	Err    error
}

// New constructs a DBError of the given kind.
func New(kind Kind, op string) *DBError {
	return &DBError{Kind: kind, Op: op}
}

// Newf constructs a DBError with formatted instance detail.
func Newf(kind Kind, op, format string, args ...any) *DBError {
	return &DBError{Kind: kind, Op: op, Detail: fmt.Sprintf(format, args...)}
}

// Wrap attaches a cause to a DBError of the given kind.
func Wrap(err error, kind Kind, op string) *DBError {
	return &DBError{Kind: kind, Op: op, Err: err}
}

func (e *DBError) Error() string {
	info := kindInfo[e.Kind]
	msg := info.code + ": " + info.message
	if e.Op != "" {
		msg = e.Op + ": " + msg
	}
	if e.Detail != "" {
		msg += " (" + e.Detail + ")"
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *DBError) Unwrap() error { return e.Err }

// Code returns the stable identifier of the error kind.
func (e *DBError) Code() string { return kindInfo[e.Kind].code }

// Category returns the handling category of the error kind.
func (e *DBError) Category() Category { return kindInfo[e.Kind].category }

// Is matches two DBErrors by kind so that sentinel comparison with
// errors.Is works across wrapped instances.
func (e *DBError) Is(target error) bool {
	var other *DBError
	if !errors.As(target, &other) {
		return false
	}
	return e.Kind == other.Kind
}

// Sentinels for errors.Is comparisons.
var (
	ErrIndexEntryNotFound = &DBError{Kind: IndexEntryNotFound}
	ErrRecordNotFound     = &DBError{Kind: RecordNotFound}
	ErrIncompatibleType   = &DBError{Kind: IncompatibleType}
	ErrInvalidValueCount  = &DBError{Kind: InvalidValueCount}
	ErrDatabaseExists     = &DBError{Kind: DatabaseExists}
	ErrDatabaseNotFound   = &DBError{Kind: DatabaseNotFound}
	ErrTableExists        = &DBError{Kind: TableExists}
	ErrTableNotFound      = &DBError{Kind: TableNotFound}
	ErrIndexExists        = &DBError{Kind: IndexExists}
	ErrIndexNotFound      = &DBError{Kind: IndexNotFound}
	ErrNonUniqueIndex     = &DBError{Kind: NonUniqueIndex}
	ErrLockOnShrinking    = &DBError{Kind: LockOnShrinking}
	ErrDeadlockPrevention = &DBError{Kind: DeadlockPrevention}
	ErrTransactionAbort   = &DBError{Kind: TransactionAbort}
	ErrUnixError          = &DBError{Kind: UnixError}
	ErrInternal           = &DBError{Kind: InternalError}
)

// Is reports whether err is, or wraps at any depth, a DBError of the
// given kind. A transaction-abort error therefore also matches the
// kind of its cause.
func Is(err error, kind Kind) bool {
	for err != nil {
		var dbe *DBError
		if errors.As(err, &dbe) {
			if dbe.Kind == kind {
				return true
			}
			err = dbe.Err
			continue
		}
		err = errors.Unwrap(err)
	}
	return false
}

// TxnAborted wraps a protocol error into a transaction-abort error
// carrying the id of the transaction that must unwind.
func TxnAborted(txnID primitives.TxnID, cause error) *DBError {
	return &DBError{
		Kind:   TransactionAbort,
		Detail: fmt.Sprintf("txn %d", txnID),
		Err:    cause,
	}
}
