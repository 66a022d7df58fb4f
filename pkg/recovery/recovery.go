// Package recovery restores a consistent database state from the
// write-ahead log after a crash: an Analyze pass reconstructs the
// active transaction table and dirty page set, Redo replays changes
// that may not have reached disk, Undo rolls back transactions that
// never finished, and every secondary index is rebuilt from the
// recovered heap.
package recovery

import (
	"io"
	"sort"

	"reldb/pkg/database"
	"reldb/pkg/dberr"
	"reldb/pkg/log"
	"reldb/pkg/logging"
	"reldb/pkg/primitives"
)

// Manager drives the three recovery phases over one engine. The
// engine's tables must be registered before Run.
type Manager struct {
	engine *database.Engine

	att       map[primitives.TxnID]primitives.LSN
	lsnOffset map[primitives.LSN]int64
	dpt       []primitives.LSN
	nextLSN   primitives.LSN
}

// New creates a recovery manager for the engine.
func New(engine *database.Engine) *Manager {
	return &Manager{
		engine:    engine,
		att:       make(map[primitives.TxnID]primitives.LSN),
		lsnOffset: make(map[primitives.LSN]int64),
	}
}

// ATT returns the active transaction table built by Analyze.
func (m *Manager) ATT() map[primitives.TxnID]primitives.LSN { return m.att }

// DPT returns the LSNs whose changes may not be on disk, in log order.
func (m *Manager) DPT() []primitives.LSN { return m.dpt }

// Run executes Analyze, Redo, Undo and the index rebuild, then
// repositions the log manager after the recovered log.
func (m *Manager) Run() error {
	if err := m.Analyze(); err != nil {
		return err
	}
	if err := m.Redo(); err != nil {
		return err
	}
	if err := m.Undo(); err != nil {
		return err
	}
	if err := m.engine.RebuildAllIndexes(); err != nil {
		return err
	}

	for _, tbl := range m.engine.Tables() {
		if err := tbl.File.FlushHeader(); err != nil {
			return err
		}
		if err := m.engine.BufferPool().FlushAllPages(tbl.File.FileID()); err != nil {
			return err
		}
	}

	m.engine.LogManager().SetNextLSN(m.nextLSN)
	logging.GetLogger().WithField("active_txns", len(m.att)).Info("recovery complete")
	return nil
}

// Analyze scans the log forward building the ATT, the LSN-to-offset
// map and the DPT. NEWPAGE records materialize pages that never
// reached disk; data records enter the DPT when the target page's LSN
// is behind them. A truncated trailing record ends the scan.
func (m *Manager) Analyze() error {
	reader := log.NewReader(m.engine.DiskManager(), 0)
	for {
		rec, offset, err := reader.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}

		m.lsnOffset[rec.LSN] = offset
		if rec.LSN >= m.nextLSN {
			m.nextLSN = rec.LSN + 1
		}

		switch rec.Type {
		case log.RecordBegin:
			m.att[rec.TxnID] = rec.LSN

		case log.RecordCommit, log.RecordAbort:
			delete(m.att, rec.TxnID)

		case log.RecordNewPage:
			m.att[rec.TxnID] = rec.LSN
			tbl, ok := m.engine.Table(rec.Table)
			if !ok {
				return dberr.Newf(dberr.TableNotFound, "recovery.analyze", "%s", rec.Table)
			}
			flushed, err := m.engine.DiskManager().IsFlushed(tbl.File.FileID(), rec.PageNo)
			if err != nil {
				return err
			}
			if !flushed {
				if err := tbl.File.EnsurePage(rec.PageNo); err != nil {
					return err
				}
			}

		case log.RecordInsert, log.RecordDelete, log.RecordUpdate:
			m.att[rec.TxnID] = rec.LSN
			tbl, ok := m.engine.Table(rec.Table)
			if !ok {
				return dberr.Newf(dberr.TableNotFound, "recovery.analyze", "%s", rec.Table)
			}
			if err := tbl.File.EnsurePage(rec.Rid.PageNo); err != nil {
				return err
			}
			pageLsn, err := tbl.File.PageLsn(rec.Rid.PageNo)
			if err != nil {
				return err
			}
			if pageLsn < rec.LSN {
				m.dpt = append(m.dpt, rec.LSN)
			}
		}
	}
}

// Redo replays every DPT entry in LSN order against the record
// manager. Each replay is idempotent and stamps the page with the
// record's LSN, so a second recovery run skips it.
func (m *Manager) Redo() error {
	sort.Slice(m.dpt, func(i, j int) bool { return m.dpt[i] < m.dpt[j] })

	for _, lsn := range m.dpt {
		rec, err := log.ReadAt(m.engine.DiskManager(), m.lsnOffset[lsn])
		if err != nil {
			return err
		}
		tbl, ok := m.engine.Table(rec.Table)
		if !ok {
			return dberr.Newf(dberr.TableNotFound, "recovery.redo", "%s", rec.Table)
		}

		switch rec.Type {
		case log.RecordInsert:
			if err := tbl.File.InsertRecordAt(rec.Rid, rec.Value); err != nil {
				return err
			}
		case log.RecordDelete:
			if err := tbl.File.DeleteRecord(rec.Rid, nil); err != nil &&
				!dberr.Is(err, dberr.RecordNotFound) {
				return err
			}
		case log.RecordUpdate:
			if err := tbl.File.InsertRecordAt(rec.Rid, rec.NewValue); err != nil {
				return err
			}
		}

		if err := tbl.File.StampPageLsn(rec.Rid.PageNo, rec.LSN); err != nil {
			return err
		}
	}
	return nil
}

// Undo rolls back every transaction still in the ATT, walking its
// prev-LSN chain from the latest record to the oldest and applying
// inverses.
func (m *Manager) Undo() error {
	for txnID, last := range m.att {
		lsn := last
		for lsn != primitives.InvalidLSN {
			offset, ok := m.lsnOffset[lsn]
			if !ok {
				break
			}
			rec, err := log.ReadAt(m.engine.DiskManager(), offset)
			if err != nil {
				return err
			}

			switch rec.Type {
			case log.RecordInsert:
				if err := m.undoInsert(rec); err != nil {
					return err
				}
			case log.RecordDelete:
				if err := m.applyImage(rec, rec.Value); err != nil {
					return err
				}
			case log.RecordUpdate:
				if err := m.applyImage(rec, rec.OldValue); err != nil {
					return err
				}
			}
			lsn = rec.PrevLSN
		}
		logging.WithTx(txnID).Info("transaction rolled back by recovery")
	}
	return nil
}

func (m *Manager) undoInsert(rec *log.Record) error {
	tbl, ok := m.engine.Table(rec.Table)
	if !ok {
		return dberr.Newf(dberr.TableNotFound, "recovery.undo", "%s", rec.Table)
	}
	err := tbl.File.DeleteRecord(rec.Rid, nil)
	if err != nil && !dberr.Is(err, dberr.RecordNotFound) {
		return err
	}
	return nil
}

func (m *Manager) applyImage(rec *log.Record, image []byte) error {
	tbl, ok := m.engine.Table(rec.Table)
	if !ok {
		return dberr.Newf(dberr.TableNotFound, "recovery.undo", "%s", rec.Table)
	}
	return tbl.File.InsertRecordAt(rec.Rid, image)
}
