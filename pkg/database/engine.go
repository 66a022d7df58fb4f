// Package database ties the storage, locking, logging and transaction
// components into one engine. It carries the in-memory table and index
// registry and exposes the executor-facing operations: tuple access
// with lock acquisition and logging, transaction begin/commit/abort,
// and index maintenance. Catalog file I/O, SQL parsing and executor
// trees live outside this module.
package database

import (
	"os"
	"path/filepath"
	"sync"

	"reldb/pkg/concurrency/lock"
	"reldb/pkg/concurrency/transaction"
	"reldb/pkg/dberr"
	"reldb/pkg/log"
	"reldb/pkg/logging"
	"reldb/pkg/memory"
	"reldb/pkg/storage/disk"
	"reldb/pkg/storage/heap"
	"reldb/pkg/storage/index/btree"
)

// Config tunes an engine instance.
type Config struct {
	Dir           string
	PoolSize      int
	LogBufferSize int
	Codec         log.Codec
	IndexOrder    int // 0 derives the largest order that fits a page
}

// DefaultPoolSize is the default number of buffer-pool frames.
const DefaultPoolSize = 256

const logFileName = "reldb.log"

// Table is one registered table: its schema, heap file, and the
// indexes declared over it.
type Table struct {
	Name    string
	Schema  Schema
	File    *heap.RecordFile
	Indexes []*Index
}

// Index is one registered secondary index.
type Index struct {
	Name   string
	Table  string
	ColIdx []int
	Path   string
	Order  int
	Handle *btree.IndexHandle
}

// Engine is the transaction coordinator and component registry of one
// open database directory.
type Engine struct {
	mu  sync.Mutex
	cfg Config

	disk     *disk.Manager
	pool     *memory.BufferPool
	logMgr   *log.Manager
	lockMgr  *lock.Manager
	registry *transaction.Registry
	heapMgr  *heap.Manager
	idxMgr   *btree.Manager

	tables  map[string]*Table
	indexes map[string]*Index
}

// CreateDatabase lays out a new database directory.
func CreateDatabase(dir string) error {
	if _, err := os.Stat(dir); err == nil {
		return dberr.Newf(dberr.DatabaseExists, "database.create", "%s", dir)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return dberr.Wrap(err, dberr.UnixError, "database.create")
	}
	return nil
}

// DestroyDatabase removes a database directory and everything in it.
func DestroyDatabase(dir string) error {
	if _, err := os.Stat(dir); err != nil {
		return dberr.Newf(dberr.DatabaseNotFound, "database.destroy", "%s", dir)
	}
	if err := os.RemoveAll(dir); err != nil {
		return dberr.Wrap(err, dberr.UnixError, "database.destroy")
	}
	return nil
}

// Open starts an engine over an existing database directory.
func Open(cfg Config) (*Engine, error) {
	if _, err := os.Stat(cfg.Dir); err != nil {
		return nil, dberr.Newf(dberr.DatabaseNotFound, "database.open", "%s", cfg.Dir)
	}
	if cfg.PoolSize <= 0 {
		cfg.PoolSize = DefaultPoolSize
	}

	dm := disk.NewManager()
	if err := dm.OpenLog(filepath.Join(cfg.Dir, logFileName)); err != nil {
		return nil, dberr.Wrap(err, dberr.UnixError, "database.open")
	}

	logMgr := log.NewManager(dm, cfg.LogBufferSize, cfg.Codec)
	pool := memory.NewBufferPool(cfg.PoolSize, dm, logMgr)

	e := &Engine{
		cfg:      cfg,
		disk:     dm,
		pool:     pool,
		logMgr:   logMgr,
		lockMgr:  lock.NewManager(),
		registry: transaction.NewRegistry(),
		heapMgr:  heap.NewManager(dm, pool, logMgr),
		idxMgr:   btree.NewManager(dm, pool),
		tables:   make(map[string]*Table),
		indexes:  make(map[string]*Index),
	}
	logging.GetLogger().WithField("dir", cfg.Dir).Info("database opened")
	return e, nil
}

// Close flushes and closes every table, index and the log.
func (e *Engine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.logMgr.Flush(); err != nil {
		return err
	}
	for _, idx := range e.indexes {
		if err := e.idxMgr.CloseIndex(idx.Handle); err != nil {
			return err
		}
	}
	for _, tbl := range e.tables {
		if err := e.heapMgr.CloseFile(tbl.File); err != nil {
			return err
		}
	}
	e.tables = make(map[string]*Table)
	e.indexes = make(map[string]*Index)
	if err := e.disk.CloseLog(); err != nil {
		return err
	}
	logging.GetLogger().WithField("dir", e.cfg.Dir).Info("database closed")
	return nil
}

// Table looks a registered table up by name.
func (e *Engine) Table(name string) (*Table, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	t, ok := e.tables[name]
	return t, ok
}

// Index looks a registered index up by name.
func (e *Engine) Index(name string) (*Index, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	i, ok := e.indexes[name]
	return i, ok
}

// Indexes returns every registered index.
func (e *Engine) Indexes() []*Index {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]*Index, 0, len(e.indexes))
	for _, i := range e.indexes {
		out = append(out, i)
	}
	return out
}

// Tables returns every registered table.
func (e *Engine) Tables() []*Table {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]*Table, 0, len(e.tables))
	for _, t := range e.tables {
		out = append(out, t)
	}
	return out
}

// LockManager exposes the lock manager to executors.
func (e *Engine) LockManager() *lock.Manager { return e.lockMgr }

// LogManager exposes the log manager.
func (e *Engine) LogManager() *log.Manager { return e.logMgr }

// DiskManager exposes the disk manager.
func (e *Engine) DiskManager() *disk.Manager { return e.disk }

// BufferPool exposes the buffer pool.
func (e *Engine) BufferPool() *memory.BufferPool { return e.pool }

// Registry exposes the global transaction table.
func (e *Engine) Registry() *transaction.Registry { return e.registry }

// extractKey packs the index key columns out of a record image.
func extractKey(tbl *Table, idx *Index, record []byte) []byte {
	var key []byte
	for _, ci := range idx.ColIdx {
		off := tbl.Schema.ColumnOffset(ci)
		key = append(key, record[off:off+int(tbl.Schema.Cols[ci].Desc.Len)]...)
	}
	return key
}
