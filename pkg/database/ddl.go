package database

import (
	"path/filepath"
	"strings"

	"reldb/pkg/dberr"
	"reldb/pkg/storage/index/btree"
	"reldb/pkg/types"
)

// CreateTable creates the heap file for a new table and registers it.
func (e *Engine) CreateTable(name string, schema Schema) (*Table, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if _, ok := e.tables[name]; ok {
		return nil, dberr.Newf(dberr.TableExists, "database.createTable", "%s", name)
	}

	path := e.tablePath(name)
	if err := e.heapMgr.CreateFile(path, schema.RecordSize()); err != nil {
		return nil, err
	}
	return e.openTableLocked(name, schema)
}

// OpenTable registers an existing heap file under its schema, used
// when reopening a database directory.
func (e *Engine) OpenTable(name string, schema Schema) (*Table, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if _, ok := e.tables[name]; ok {
		return nil, dberr.Newf(dberr.TableExists, "database.openTable", "%s", name)
	}
	if !e.disk.IsFile(e.tablePath(name)) {
		return nil, dberr.Newf(dberr.TableNotFound, "database.openTable", "%s", name)
	}
	return e.openTableLocked(name, schema)
}

func (e *Engine) openTableLocked(name string, schema Schema) (*Table, error) {
	file, err := e.heapMgr.OpenFile(e.tablePath(name), name)
	if err != nil {
		return nil, err
	}
	tbl := &Table{Name: name, Schema: schema, File: file}
	e.tables[name] = tbl
	return tbl, nil
}

// DropTable closes and removes a table's heap file and every index
// declared over it.
func (e *Engine) DropTable(name string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	tbl, ok := e.tables[name]
	if !ok {
		return dberr.Newf(dberr.TableNotFound, "database.dropTable", "%s", name)
	}

	for _, idx := range tbl.Indexes {
		if err := e.dropIndexLocked(idx); err != nil {
			return err
		}
	}
	if err := e.heapMgr.CloseFile(tbl.File); err != nil {
		return err
	}
	if err := e.heapMgr.DestroyFile(e.tablePath(name)); err != nil {
		return err
	}
	delete(e.tables, name)
	return nil
}

// IndexName derives the canonical name of an index over the given
// columns.
func IndexName(table string, cols []string) string {
	return table + "_" + strings.Join(cols, "_")
}

// CreateIndex creates a secondary index over the named columns and
// backfills it from the table's current records.
func (e *Engine) CreateIndex(table string, colNames []string) (*Index, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	tbl, ok := e.tables[table]
	if !ok {
		return nil, dberr.Newf(dberr.TableNotFound, "database.createIndex", "%s", table)
	}
	name := IndexName(table, colNames)
	if _, ok := e.indexes[name]; ok {
		return nil, dberr.Newf(dberr.IndexExists, "database.createIndex", "%s", name)
	}

	idx := &Index{Name: name, Table: table, Path: e.indexPath(name)}
	for _, cn := range colNames {
		ci, ok := tbl.Schema.ColumnIndex(cn)
		if !ok {
			return nil, dberr.Newf(dberr.InternalError, "database.createIndex",
				"table %s has no column %s", table, cn)
		}
		idx.ColIdx = append(idx.ColIdx, ci)
	}

	colDescs := idxColDescs(idx, tbl.Schema.Descs())
	opts := btree.CreateOptions{Order: e.cfg.IndexOrder}
	if err := e.idxMgr.CreateIndex(idx.Path, colDescs, opts); err != nil {
		return nil, err
	}
	handle, err := e.idxMgr.OpenIndex(idx.Path, name)
	if err != nil {
		return nil, err
	}
	idx.Handle = handle
	idx.Order = handle.Order()

	if err := e.backfillLocked(tbl, idx); err != nil {
		return nil, err
	}

	e.indexes[name] = idx
	tbl.Indexes = append(tbl.Indexes, idx)
	return idx, nil
}

// OpenIndex registers an existing index file, used when reopening a
// database directory.
func (e *Engine) OpenIndex(table string, colNames []string) (*Index, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	tbl, ok := e.tables[table]
	if !ok {
		return nil, dberr.Newf(dberr.TableNotFound, "database.openIndex", "%s", table)
	}
	name := IndexName(table, colNames)
	if _, ok := e.indexes[name]; ok {
		return nil, dberr.Newf(dberr.IndexExists, "database.openIndex", "%s", name)
	}
	path := e.indexPath(name)
	if !e.disk.IsFile(path) {
		return nil, dberr.Newf(dberr.IndexNotFound, "database.openIndex", "%s", name)
	}

	idx := &Index{Name: name, Table: table, Path: path}
	for _, cn := range colNames {
		ci, ok := tbl.Schema.ColumnIndex(cn)
		if !ok {
			return nil, dberr.Newf(dberr.InternalError, "database.openIndex",
				"table %s has no column %s", table, cn)
		}
		idx.ColIdx = append(idx.ColIdx, ci)
	}

	handle, err := e.idxMgr.OpenIndex(path, name)
	if err != nil {
		return nil, err
	}
	idx.Handle = handle
	idx.Order = handle.Order()

	e.indexes[name] = idx
	tbl.Indexes = append(tbl.Indexes, idx)
	return idx, nil
}

// DropIndex closes and removes one index.
func (e *Engine) DropIndex(name string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	idx, ok := e.indexes[name]
	if !ok {
		return dberr.Newf(dberr.IndexNotFound, "database.dropIndex", "%s", name)
	}
	if err := e.dropIndexLocked(idx); err != nil {
		return err
	}
	if tbl, ok := e.tables[idx.Table]; ok {
		for i, ti := range tbl.Indexes {
			if ti == idx {
				tbl.Indexes = append(tbl.Indexes[:i], tbl.Indexes[i+1:]...)
				break
			}
		}
	}
	return nil
}

func (e *Engine) dropIndexLocked(idx *Index) error {
	if err := e.idxMgr.CloseIndex(idx.Handle); err != nil {
		return err
	}
	if err := e.idxMgr.DestroyIndex(idx.Path); err != nil {
		return err
	}
	delete(e.indexes, idx.Name)
	return nil
}

// backfillLocked inserts an index entry for every record currently in
// the table.
func (e *Engine) backfillLocked(tbl *Table, idx *Index) error {
	scan, err := tbl.File.NewScanner()
	if err != nil {
		return err
	}
	for !scan.IsEnd() {
		rid := scan.Rid()
		rec, err := tbl.File.GetRecord(rid, nil)
		if err != nil {
			return err
		}
		if err := idx.Handle.InsertEntry(extractKey(tbl, idx, rec.Data), rid, nil); err != nil {
			return err
		}
		if err := scan.Next(); err != nil {
			return err
		}
	}
	return nil
}

// idxColDescs projects the table's column descriptors onto the index
// key columns.
func idxColDescs(idx *Index, descs []types.ColDesc) []types.ColDesc {
	out := make([]types.ColDesc, len(idx.ColIdx))
	for i, ci := range idx.ColIdx {
		out[i] = descs[ci]
	}
	return out
}

func (e *Engine) tablePath(name string) string {
	return filepath.Join(e.cfg.Dir, name+".tbl")
}

func (e *Engine) indexPath(name string) string {
	return filepath.Join(e.cfg.Dir, name+".idx")
}
