package database

import (
	"reldb/pkg/concurrency/transaction"
	"reldb/pkg/dberr"
	"reldb/pkg/log"
	"reldb/pkg/logging"
	"reldb/pkg/primitives"
)

// Begin starts a transaction: a nil argument creates one with a fresh
// id and timestamp, registers it in the global table, logs BEGIN and
// enters the GROWING phase.
func (e *Engine) Begin(txn *transaction.Transaction) (*transaction.Transaction, error) {
	txn = e.registry.Begin(txn)

	lsn, err := e.logMgr.Append(log.NewBegin(txn.ID()))
	if err != nil {
		return nil, err
	}
	txn.SetPrevLSN(lsn)
	return txn, nil
}

// Commit releases every lock, destroys the transaction's working
// sets, forces the log and moves the transaction to COMMITTED.
func (e *Engine) Commit(txn *transaction.Transaction) error {
	if _, err := e.logMgr.Append(log.NewCommit(txn.ID(), txn.PrevLSN())); err != nil {
		return err
	}

	for _, id := range txn.LockSet() {
		e.lockMgr.Unlock(txn, id)
	}
	txn.ClearSets()

	if err := e.logMgr.Flush(); err != nil {
		return err
	}
	txn.SetState(primitives.TxnCommitted)
	return nil
}

// Abort walks the write set backwards applying compensating actions,
// releases every lock, forces the log and moves the transaction to
// ABORTED.
func (e *Engine) Abort(txn *transaction.Transaction) error {
	writes := txn.Writes()
	for i := len(writes) - 1; i >= 0; i-- {
		if err := e.compensate(writes[i]); err != nil {
			logging.WithTx(txn.ID()).WithError(err).Error("abort compensation failed")
			return err
		}
	}

	if _, err := e.logMgr.Append(log.NewAbort(txn.ID(), txn.PrevLSN())); err != nil {
		return err
	}

	for _, id := range txn.LockSet() {
		e.lockMgr.Unlock(txn, id)
	}
	txn.ClearSets()

	if err := e.logMgr.Flush(); err != nil {
		return err
	}
	txn.SetState(primitives.TxnAborted)
	return nil
}

// compensate reverses one write-set entry: inserts are deleted,
// deletes reinserted at their original Rid, updates restored to the
// old image; index entries reverse analogously.
func (e *Engine) compensate(w *transaction.WriteRecord) error {
	if w.Table != "" {
		tbl, ok := e.Table(w.Table)
		if !ok {
			return dberr.Newf(dberr.TableNotFound, "database.abort", "%s", w.Table)
		}
		switch w.Type {
		case transaction.WriteInsert:
			return tbl.File.DeleteRecord(w.Rid, nil)
		case transaction.WriteDelete:
			return tbl.File.InsertRecordAt(w.Rid, w.Value)
		case transaction.WriteUpdate:
			return tbl.File.UpdateRecord(w.Rid, w.Value, nil)
		}
		return nil
	}

	idx, ok := e.Index(w.Index)
	if !ok {
		return dberr.Newf(dberr.IndexNotFound, "database.abort", "%s", w.Index)
	}
	switch w.Type {
	case transaction.WriteInsert:
		_, err := idx.Handle.DeleteEntry(w.Value, nil)
		return err
	case transaction.WriteDelete:
		return idx.Handle.InsertEntry(w.Value, w.Rid, nil)
	case transaction.WriteUpdate:
		if _, err := idx.Handle.DeleteEntry(w.NewValue, nil); err != nil {
			return err
		}
		return idx.Handle.InsertEntry(w.Value, w.Rid, nil)
	}
	return nil
}

// abortOn wraps a protocol violation (lock conflict, uniqueness
// violation) into a transaction-abort error after unwinding the
// transaction.
func (e *Engine) abortOn(txn *transaction.Transaction, cause error) error {
	if err := e.Abort(txn); err != nil {
		logging.WithTx(txn.ID()).WithError(err).Error("abort failed")
	}
	return dberr.TxnAborted(txn.ID(), cause)
}
