// Package transaction defines the per-transaction state the engine
// tracks: the 2PL state machine, the ordered write set used for undo,
// the lock set, the prev-LSN chain position, and the index page sets.
package transaction

import (
	"fmt"
	"sync"

	"reldb/pkg/concurrency/lock"
	"reldb/pkg/primitives"
	"reldb/pkg/storage/page"
)

// Transaction is the single source of truth for everything one
// transaction has done.
type Transaction struct {
	id      primitives.TxnID
	startTS primitives.Timestamp

	mu      sync.RWMutex
	state   primitives.TxnState
	prevLSN primitives.LSN

	writes  []*WriteRecord
	locks   map[lock.DataID]struct{}
	lockSeq []lock.DataID

	// Index pages this transaction pinned or latched, and pages freed
	// by coalesce.
	latchedPages map[page.ID]struct{}
	deletedPages map[page.ID]struct{}
}

// New creates a transaction in the DEFAULT state.
func New(id primitives.TxnID, startTS primitives.Timestamp) *Transaction {
	return &Transaction{
		id:           id,
		startTS:      startTS,
		state:        primitives.TxnDefault,
		prevLSN:      primitives.InvalidLSN,
		locks:        make(map[lock.DataID]struct{}),
		latchedPages: make(map[page.ID]struct{}),
		deletedPages: make(map[page.ID]struct{}),
	}
}

// ID returns the transaction id.
func (t *Transaction) ID() primitives.TxnID { return t.id }

// StartTS returns the logical start timestamp.
func (t *Transaction) StartTS() primitives.Timestamp { return t.startTS }

// State returns the current 2PL state.
func (t *Transaction) State() primitives.TxnState {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.state
}

// SetState moves the transaction to a new state.
func (t *Transaction) SetState(s primitives.TxnState) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.state = s
}

// PrevLSN returns the LSN of the transaction's latest log record.
func (t *Transaction) PrevLSN() primitives.LSN {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.prevLSN
}

// SetPrevLSN advances the transaction's backward log chain.
func (t *Transaction) SetPrevLSN(lsn primitives.LSN) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.prevLSN = lsn
}

// AppendWrite records a change in program order for potential undo.
func (t *Transaction) AppendWrite(w *WriteRecord) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.writes = append(t.writes, w)
}

// Writes returns the write set in program order.
func (t *Transaction) Writes() []*WriteRecord {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]*WriteRecord, len(t.writes))
	copy(out, t.writes)
	return out
}

// AddLock records a granted lock. Called by the lock manager.
func (t *Transaction) AddLock(id lock.DataID) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.locks[id]; ok {
		return
	}
	t.locks[id] = struct{}{}
	t.lockSeq = append(t.lockSeq, id)
}

// LockSet returns the held lock ids in acquisition order.
func (t *Transaction) LockSet() []lock.DataID {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]lock.DataID, len(t.lockSeq))
	copy(out, t.lockSeq)
	return out
}

// AddLatchedPage records an index page pinned during tree maintenance.
func (t *Transaction) AddLatchedPage(id page.ID) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.latchedPages[id] = struct{}{}
}

// AddDeletedPage records an index page freed by coalesce.
func (t *Transaction) AddDeletedPage(id page.ID) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.deletedPages[id] = struct{}{}
}

// ClearSets destroys the write, lock, and index page sets. Called
// after commit or abort; the transaction keeps only its terminal
// state.
func (t *Transaction) ClearSets() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.writes = nil
	t.locks = make(map[lock.DataID]struct{})
	t.lockSeq = nil
	t.latchedPages = make(map[page.ID]struct{})
	t.deletedPages = make(map[page.ID]struct{})
}

func (t *Transaction) String() string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return fmt.Sprintf("txn %d [%s, writes=%d, locks=%d]",
		t.id, t.state, len(t.writes), len(t.lockSeq))
}
