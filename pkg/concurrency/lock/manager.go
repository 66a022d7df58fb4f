package lock

import (
	"sync"

	"reldb/pkg/dberr"
	"reldb/pkg/primitives"
)

// Txn is the view of a transaction the lock manager needs: the 2PL
// state machine and the lock set. Implemented by
// concurrency/transaction.Transaction.
type Txn interface {
	ID() primitives.TxnID
	State() primitives.TxnState
	SetState(primitives.TxnState)
	AddLock(DataID)
}

type request struct {
	txnID   primitives.TxnID
	mode    Mode
	granted bool
}

// requestQueue holds all requests on one resource together with the
// aggregate mode and the holder counters the upgrade rules consult.
type requestQueue struct {
	groupMode   GroupMode
	sharedCount int
	ixCount     int
	requests    []*request
}

func (q *requestQueue) find(txnID primitives.TxnID) *request {
	for _, r := range q.requests {
		if r.txnID == txnID {
			return r
		}
	}
	return nil
}

func (q *requestQueue) grant(txnID primitives.TxnID, mode Mode) {
	q.requests = append(q.requests, &request{txnID: txnID, mode: mode, granted: true})
}

// Manager is the process-wide lock table, guarded by a single mutex.
type Manager struct {
	mu    sync.Mutex
	table map[DataID]*requestQueue
}

// NewManager creates an empty lock manager.
func NewManager() *Manager {
	return &Manager{table: make(map[DataID]*requestQueue)}
}

// checkTxn is the per-transaction preamble of every acquire: terminal
// transactions are refused, SHRINKING ones violate 2PL, and DEFAULT
// ones enter the GROWING phase.
func checkTxn(txn Txn) (bool, error) {
	switch txn.State() {
	case primitives.TxnCommitted, primitives.TxnAborted:
		return false, nil
	case primitives.TxnShrinking:
		return false, dberr.Newf(dberr.LockOnShrinking, "lock", "txn %d", txn.ID())
	case primitives.TxnDefault:
		txn.SetState(primitives.TxnGrowing)
	}
	return true, nil
}

func (m *Manager) queue(id DataID) *requestQueue {
	q, ok := m.table[id]
	if !ok {
		q = &requestQueue{}
		m.table[id] = q
	}
	return q
}

func deadlock(txn Txn) error {
	return dberr.Newf(dberr.DeadlockPrevention, "lock", "txn %d", txn.ID())
}

// LockSharedOnRecord acquires an S lock on one record. A transaction
// with any prior request on the record already covers the read.
func (m *Manager) LockSharedOnRecord(txn Txn, rid primitives.Rid, file primitives.FileID) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	ok, err := checkTxn(txn)
	if !ok || err != nil {
		return false, err
	}

	id := RecordID(file, rid)
	q := m.queue(id)

	if q.find(txn.ID()) != nil {
		return true, nil
	}
	if q.groupMode == GroupX || q.groupMode == GroupIX || q.groupMode == GroupSIX {
		return false, deadlock(txn)
	}

	q.groupMode = maxGroup(q.groupMode, GroupS)
	q.grant(txn.ID(), ModeS)
	q.sharedCount++
	txn.AddLock(id)
	return true, nil
}

// LockExclusiveOnRecord acquires an X lock on one record, upgrading an
// IS or S lock when the transaction is the queue's only requester.
func (m *Manager) LockExclusiveOnRecord(txn Txn, rid primitives.Rid, file primitives.FileID) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	ok, err := checkTxn(txn)
	if !ok || err != nil {
		return false, err
	}

	id := RecordID(file, rid)
	q := m.queue(id)

	if req := q.find(txn.ID()); req != nil {
		if req.mode == ModeX {
			return true, nil
		}
		if (req.mode == ModeIS || req.mode == ModeS) && len(q.requests) == 1 {
			if req.mode == ModeS {
				q.sharedCount--
			}
			req.mode = ModeX
			q.groupMode = GroupX
			return true, nil
		}
		return false, deadlock(txn)
	}

	if q.groupMode != GroupNone {
		return false, deadlock(txn)
	}
	q.groupMode = GroupX
	q.grant(txn.ID(), ModeX)
	txn.AddLock(id)
	return true, nil
}

// LockSharedOnTable acquires an S lock on a whole table. Held IS locks
// upgrade to S when no writer intent exists; a sole IX holder upgrades
// to SIX.
func (m *Manager) LockSharedOnTable(txn Txn, file primitives.FileID) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	ok, err := checkTxn(txn)
	if !ok || err != nil {
		return false, err
	}

	id := TableID(file)
	q := m.queue(id)

	if req := q.find(txn.ID()); req != nil {
		switch {
		case req.mode == ModeS || req.mode == ModeX || req.mode == ModeSIX:
			return true, nil
		case req.mode == ModeIS && (q.groupMode == GroupIS || q.groupMode == GroupS):
			req.mode = ModeS
			q.groupMode = GroupS
			q.sharedCount++
			return true, nil
		case req.mode == ModeIX && q.ixCount == 1:
			req.mode = ModeSIX
			q.groupMode = GroupSIX
			q.sharedCount++
			return true, nil
		default:
			return false, deadlock(txn)
		}
	}

	if q.groupMode == GroupX || q.groupMode == GroupIX || q.groupMode == GroupSIX {
		return false, deadlock(txn)
	}
	q.groupMode = GroupS
	q.grant(txn.ID(), ModeS)
	q.sharedCount++
	txn.AddLock(id)
	return true, nil
}

// LockExclusiveOnTable acquires an X lock on a whole table. Any held
// lock upgrades when the transaction is the sole requester.
func (m *Manager) LockExclusiveOnTable(txn Txn, file primitives.FileID) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	ok, err := checkTxn(txn)
	if !ok || err != nil {
		return false, err
	}

	id := TableID(file)
	q := m.queue(id)

	if req := q.find(txn.ID()); req != nil {
		if req.mode == ModeX {
			return true, nil
		}
		if len(q.requests) == 1 {
			if req.mode == ModeS || req.mode == ModeSIX {
				q.sharedCount--
			}
			if req.mode == ModeIX || req.mode == ModeSIX {
				q.ixCount--
			}
			req.mode = ModeX
			q.groupMode = GroupX
			return true, nil
		}
		return false, deadlock(txn)
	}

	if q.groupMode != GroupNone {
		return false, deadlock(txn)
	}
	q.groupMode = GroupX
	q.grant(txn.ID(), ModeX)
	txn.AddLock(id)
	return true, nil
}

// LockISOnTable acquires an IS lock on a table; any held lock covers
// it.
func (m *Manager) LockISOnTable(txn Txn, file primitives.FileID) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	ok, err := checkTxn(txn)
	if !ok || err != nil {
		return false, err
	}

	id := TableID(file)
	q := m.queue(id)

	if q.find(txn.ID()) != nil {
		return true, nil
	}
	if q.groupMode == GroupX {
		return false, deadlock(txn)
	}
	if q.groupMode == GroupNone {
		q.groupMode = GroupIS
	}
	q.grant(txn.ID(), ModeIS)
	txn.AddLock(id)
	return true, nil
}

// LockIXOnTable acquires an IX lock on a table. A sole S holder
// upgrades to SIX; an IS holder upgrades to IX when the aggregate
// permits.
func (m *Manager) LockIXOnTable(txn Txn, file primitives.FileID) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	ok, err := checkTxn(txn)
	if !ok || err != nil {
		return false, err
	}

	id := TableID(file)
	q := m.queue(id)

	if req := q.find(txn.ID()); req != nil {
		switch {
		case req.mode == ModeIX || req.mode == ModeSIX || req.mode == ModeX:
			return true, nil
		case req.mode == ModeS && q.sharedCount == 1:
			req.mode = ModeSIX
			q.groupMode = GroupSIX
			q.ixCount++
			return true, nil
		case req.mode == ModeIS && (q.groupMode == GroupIS || q.groupMode == GroupIX):
			req.mode = ModeIX
			q.groupMode = GroupIX
			q.ixCount++
			return true, nil
		default:
			return false, deadlock(txn)
		}
	}

	if q.groupMode == GroupS || q.groupMode == GroupSIX || q.groupMode == GroupX {
		return false, deadlock(txn)
	}
	q.groupMode = GroupIX
	q.grant(txn.ID(), ModeIX)
	q.ixCount++
	txn.AddLock(id)
	return true, nil
}

// Unlock releases one lock. The first unlock moves a GROWING
// transaction into SHRINKING; afterwards no acquire is grantable. The
// queue's aggregate mode is recomputed from the remaining requests.
func (m *Manager) Unlock(txn Txn, id DataID) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if txn.State().Terminal() {
		return false
	}
	if txn.State() == primitives.TxnGrowing {
		txn.SetState(primitives.TxnShrinking)
	}

	q, ok := m.table[id]
	if !ok {
		return true
	}

	idx := -1
	for i, r := range q.requests {
		if r.txnID == txn.ID() {
			idx = i
			break
		}
	}
	if idx < 0 {
		return true
	}

	req := q.requests[idx]
	if req.mode == ModeS || req.mode == ModeSIX {
		q.sharedCount--
	}
	if req.mode == ModeIX || req.mode == ModeSIX {
		q.ixCount--
	}
	q.requests = append(q.requests[:idx], q.requests[idx+1:]...)

	if len(q.requests) == 0 {
		q.groupMode = GroupNone
		delete(m.table, id)
		return true
	}

	mode := GroupNone
	for _, r := range q.requests {
		mode = maxGroup(mode, r.mode.Group())
	}
	q.groupMode = mode
	return true
}

// GroupModeOf reports the aggregate mode currently on a resource.
func (m *Manager) GroupModeOf(id DataID) GroupMode {
	m.mu.Lock()
	defer m.mu.Unlock()

	q, ok := m.table[id]
	if !ok {
		return GroupNone
	}
	return q.groupMode
}

func maxGroup(a, b GroupMode) GroupMode {
	if a > b {
		return a
	}
	return b
}
