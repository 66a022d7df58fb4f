package database

import (
	"bytes"

	"reldb/pkg/concurrency/transaction"
	"reldb/pkg/dberr"
	"reldb/pkg/log"
	"reldb/pkg/primitives"
	"reldb/pkg/storage/heap"
	"reldb/pkg/types"
)

// InsertTuple validates the values against the table schema, acquires
// IX on the table and X on the new record, logs the insert, places the
// record and maintains every index. Uniqueness violations and lock
// conflicts abort the transaction.
func (e *Engine) InsertTuple(txn *transaction.Transaction, table string, values []types.Field) (primitives.Rid, error) {
	tbl, ok := e.Table(table)
	if !ok {
		return primitives.InvalidRid, dberr.Newf(dberr.TableNotFound, "database.insert", "%s", table)
	}

	data, err := encodeValues(&tbl.Schema, values)
	if err != nil {
		return primitives.InvalidRid, err
	}

	if _, err := e.lockMgr.LockIXOnTable(txn, tbl.File.FileID()); err != nil {
		return primitives.InvalidRid, e.abortOn(txn, err)
	}

	for _, idx := range tbl.Indexes {
		key := extractKey(tbl, idx, data)
		rids, err := idx.Handle.GetValue(key, txn)
		if err != nil {
			return primitives.InvalidRid, err
		}
		if len(rids) > 0 {
			return primitives.InvalidRid, e.abortOn(txn,
				dberr.Newf(dberr.NonUniqueIndex, "database.insert", "index %s", idx.Name))
		}
	}

	rid, err := tbl.File.InsertRecord(data, txn)
	if err != nil {
		return primitives.InvalidRid, err
	}

	if _, err := e.lockMgr.LockExclusiveOnRecord(txn, rid, tbl.File.FileID()); err != nil {
		return primitives.InvalidRid, e.abortOn(txn, err)
	}

	lsn, err := e.logMgr.Append(log.NewInsert(txn.ID(), txn.PrevLSN(), table, rid, data))
	if err != nil {
		return primitives.InvalidRid, err
	}
	txn.SetPrevLSN(lsn)
	if err := tbl.File.StampPageLsn(rid.PageNo, lsn); err != nil {
		return primitives.InvalidRid, err
	}
	txn.AppendWrite(transaction.NewTableWrite(transaction.WriteInsert, table, rid, nil, nil))

	for _, idx := range tbl.Indexes {
		key := extractKey(tbl, idx, data)
		if err := idx.Handle.InsertEntry(key, rid, txn); err != nil {
			return primitives.InvalidRid, err
		}
		txn.AppendWrite(transaction.NewIndexWrite(transaction.WriteInsert, idx.Name, rid, key, nil))
	}
	return rid, nil
}

// DeleteTuple removes the record at rid and its index entries, under
// IX table and X record locks, logging the before image.
func (e *Engine) DeleteTuple(txn *transaction.Transaction, table string, rid primitives.Rid) error {
	tbl, ok := e.Table(table)
	if !ok {
		return dberr.Newf(dberr.TableNotFound, "database.delete", "%s", table)
	}

	if _, err := e.lockMgr.LockIXOnTable(txn, tbl.File.FileID()); err != nil {
		return e.abortOn(txn, err)
	}
	if _, err := e.lockMgr.LockExclusiveOnRecord(txn, rid, tbl.File.FileID()); err != nil {
		return e.abortOn(txn, err)
	}

	old, err := tbl.File.GetRecord(rid, txn)
	if err != nil {
		return err
	}

	lsn, err := e.logMgr.Append(log.NewDelete(txn.ID(), txn.PrevLSN(), table, rid, old.Data))
	if err != nil {
		return err
	}
	txn.SetPrevLSN(lsn)

	if err := tbl.File.DeleteRecord(rid, txn); err != nil {
		return err
	}
	if err := tbl.File.StampPageLsn(rid.PageNo, lsn); err != nil {
		return err
	}
	txn.AppendWrite(transaction.NewTableWrite(transaction.WriteDelete, table, rid, old.Data, nil))

	for _, idx := range tbl.Indexes {
		key := extractKey(tbl, idx, old.Data)
		if _, err := idx.Handle.DeleteEntry(key, txn); err != nil {
			return err
		}
		txn.AppendWrite(transaction.NewIndexWrite(transaction.WriteDelete, idx.Name, rid, key, nil))
	}
	return nil
}

// UpdateTuple overwrites the record at rid with new values, logging
// before and after images and refreshing index entries whose key
// changed.
func (e *Engine) UpdateTuple(txn *transaction.Transaction, table string, rid primitives.Rid, values []types.Field) error {
	tbl, ok := e.Table(table)
	if !ok {
		return dberr.Newf(dberr.TableNotFound, "database.update", "%s", table)
	}

	data, err := encodeValues(&tbl.Schema, values)
	if err != nil {
		return err
	}

	if _, err := e.lockMgr.LockIXOnTable(txn, tbl.File.FileID()); err != nil {
		return e.abortOn(txn, err)
	}
	if _, err := e.lockMgr.LockExclusiveOnRecord(txn, rid, tbl.File.FileID()); err != nil {
		return e.abortOn(txn, err)
	}

	old, err := tbl.File.GetRecord(rid, txn)
	if err != nil {
		return err
	}

	for _, idx := range tbl.Indexes {
		newKey := extractKey(tbl, idx, data)
		if bytes.Equal(newKey, extractKey(tbl, idx, old.Data)) {
			continue
		}
		rids, err := idx.Handle.GetValue(newKey, txn)
		if err != nil {
			return err
		}
		if len(rids) > 0 {
			return e.abortOn(txn,
				dberr.Newf(dberr.NonUniqueIndex, "database.update", "index %s", idx.Name))
		}
	}

	lsn, err := e.logMgr.Append(log.NewUpdate(txn.ID(), txn.PrevLSN(), table, rid, old.Data, data))
	if err != nil {
		return err
	}
	txn.SetPrevLSN(lsn)

	if err := tbl.File.UpdateRecord(rid, data, txn); err != nil {
		return err
	}
	if err := tbl.File.StampPageLsn(rid.PageNo, lsn); err != nil {
		return err
	}
	txn.AppendWrite(transaction.NewTableWrite(transaction.WriteUpdate, table, rid, old.Data, data))

	for _, idx := range tbl.Indexes {
		oldKey := extractKey(tbl, idx, old.Data)
		newKey := extractKey(tbl, idx, data)
		if bytes.Equal(oldKey, newKey) {
			continue
		}
		if _, err := idx.Handle.DeleteEntry(oldKey, txn); err != nil {
			return err
		}
		if err := idx.Handle.InsertEntry(newKey, rid, txn); err != nil {
			return err
		}
		txn.AppendWrite(transaction.NewIndexWrite(transaction.WriteUpdate, idx.Name, rid, oldKey, newKey))
	}
	return nil
}

// GetTuple reads one record under IS table and S record locks and
// decodes it per the table schema.
func (e *Engine) GetTuple(txn *transaction.Transaction, table string, rid primitives.Rid) ([]types.Field, error) {
	tbl, ok := e.Table(table)
	if !ok {
		return nil, dberr.Newf(dberr.TableNotFound, "database.get", "%s", table)
	}

	if _, err := e.lockMgr.LockISOnTable(txn, tbl.File.FileID()); err != nil {
		return nil, e.abortOn(txn, err)
	}
	if _, err := e.lockMgr.LockSharedOnRecord(txn, rid, tbl.File.FileID()); err != nil {
		return nil, e.abortOn(txn, err)
	}

	rec, err := tbl.File.GetRecord(rid, txn)
	if err != nil {
		return nil, err
	}
	return types.DecodeFields(rec.Data, tbl.Schema.Descs())
}

// ScanTable acquires a table S lock and returns a heap scanner over
// every record.
func (e *Engine) ScanTable(txn *transaction.Transaction, table string) (*heap.Scanner, error) {
	tbl, ok := e.Table(table)
	if !ok {
		return nil, dberr.Newf(dberr.TableNotFound, "database.scan", "%s", table)
	}
	if _, err := e.lockMgr.LockSharedOnTable(txn, tbl.File.FileID()); err != nil {
		return nil, e.abortOn(txn, err)
	}
	return tbl.File.NewScanner()
}

// IndexGetValue probes an index for an exact user key, under a table S
// lock.
func (e *Engine) IndexGetValue(txn *transaction.Transaction, indexName string, key []types.Field) ([]primitives.Rid, error) {
	idx, ok := e.Index(indexName)
	if !ok {
		return nil, dberr.Newf(dberr.IndexNotFound, "database.indexGet", "%s", indexName)
	}
	tbl, _ := e.Table(idx.Table)

	if _, err := e.lockMgr.LockSharedOnTable(txn, tbl.File.FileID()); err != nil {
		return nil, e.abortOn(txn, err)
	}

	probe, err := types.EncodeFields(key)
	if err != nil {
		return nil, err
	}
	return idx.Handle.GetValue(probe, txn)
}

// encodeValues checks arity and column types, then packs the values
// into a record image.
func encodeValues(schema *Schema, values []types.Field) ([]byte, error) {
	if len(values) != len(schema.Cols) {
		return nil, dberr.Newf(dberr.InvalidValueCount, "database.encode",
			"%d values for %d columns", len(values), len(schema.Cols))
	}
	for i, v := range values {
		col := schema.Cols[i]
		if v.Type() != col.Desc.Type {
			return nil, dberr.Newf(dberr.IncompatibleType, "database.encode",
				"column %s is %s, value is %s", col.Name, col.Desc, v.Type())
		}
		if cf, ok := v.(*types.CharField); ok && len(cf.Value) > int(col.Desc.Len) {
			return nil, dberr.Newf(dberr.IncompatibleType, "database.encode",
				"column %s holds %d bytes, value needs %d", col.Name, col.Desc.Len, len(cf.Value))
		}
	}

	data := make([]byte, 0, schema.RecordSize())
	for i, v := range values {
		col := schema.Cols[i]
		if cf, ok := v.(*types.CharField); ok && cf.Width != col.Desc.Len {
			v = types.NewCharField(cf.Value, col.Desc.Len)
		}
		buf := bytes.Buffer{}
		if err := v.Serialize(&buf); err != nil {
			return nil, dberr.Wrap(err, dberr.InternalError, "database.encode")
		}
		data = append(data, buf.Bytes()...)
	}
	return data, nil
}
