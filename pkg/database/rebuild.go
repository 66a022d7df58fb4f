package database

import (
	"reldb/pkg/dberr"
	"reldb/pkg/logging"
	"reldb/pkg/storage/index/btree"
)

// RebuildIndex drops an index file and reconstructs it from the
// table's current records. Recovery calls this for every declared
// index, because index-tree maintenance is not logged at node
// granularity.
func (e *Engine) RebuildIndex(name string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	idx, ok := e.indexes[name]
	if !ok {
		return dberr.Newf(dberr.IndexNotFound, "database.rebuildIndex", "%s", name)
	}
	tbl, ok := e.tables[idx.Table]
	if !ok {
		return dberr.Newf(dberr.TableNotFound, "database.rebuildIndex", "%s", idx.Table)
	}

	if err := e.idxMgr.CloseIndex(idx.Handle); err != nil {
		return err
	}
	if err := e.idxMgr.DestroyIndex(idx.Path); err != nil {
		return err
	}

	colDescs := idxColDescs(idx, tbl.Schema.Descs())
	if err := e.idxMgr.CreateIndex(idx.Path, colDescs, btree.CreateOptions{Order: idx.Order}); err != nil {
		return err
	}
	handle, err := e.idxMgr.OpenIndex(idx.Path, idx.Name)
	if err != nil {
		return err
	}
	idx.Handle = handle

	if err := e.backfillLocked(tbl, idx); err != nil {
		return err
	}
	logging.WithIndex(name).Info("index rebuilt")
	return nil
}

// RebuildAllIndexes reconstructs every declared index.
func (e *Engine) RebuildAllIndexes() error {
	for _, idx := range e.Indexes() {
		if err := e.RebuildIndex(idx.Name); err != nil {
			return err
		}
	}
	return nil
}
