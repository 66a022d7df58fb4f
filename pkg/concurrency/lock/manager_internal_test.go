package lock

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"reldb/pkg/primitives"
)

// fakeTxn is a minimal Txn implementation used only by this file, so
// that it does not need to import reldb/pkg/concurrency/transaction
// (which imports this package and would create an import cycle in
// the test binary).
type fakeTxn struct {
	id    primitives.TxnID
	state primitives.TxnState
}

func (t *fakeTxn) ID() primitives.TxnID           { return t.id }
func (t *fakeTxn) State() primitives.TxnState     { return t.state }
func (t *fakeTxn) SetState(s primitives.TxnState) { t.state = s }
func (t *fakeTxn) AddLock(DataID)                 {}

func newFakeTxns(n int) []*fakeTxn {
	out := make([]*fakeTxn, n)
	for i := range out {
		out[i] = &fakeTxn{id: primitives.TxnID(i + 1), state: primitives.TxnDefault}
	}
	return out
}

func TestGrantedSetsStayCompatible(t *testing.T) {
	// Property: after any sequence of successful acquires, the granted
	// modes on one queue are pairwise compatible per the standard
	// matrix.
	compatible := map[[2]Mode]bool{
		{ModeIS, ModeIS}: true, {ModeIS, ModeIX}: true, {ModeIS, ModeS}: true, {ModeIS, ModeSIX}: true,
		{ModeIX, ModeIX}: true, {ModeS, ModeS}: true,
	}
	isCompat := func(a, b Mode) bool {
		if compatible[[2]Mode{a, b}] || compatible[[2]Mode{b, a}] {
			return true
		}
		return false
	}

	lm := NewManager()
	txns := newFakeTxns(4)
	testFile := primitives.FileID(1)
	id := TableID(testFile)

	acquire := []func(*fakeTxn) (bool, error){
		func(tx *fakeTxn) (bool, error) { return lm.LockISOnTable(tx, testFile) },
		func(tx *fakeTxn) (bool, error) { return lm.LockIXOnTable(tx, testFile) },
		func(tx *fakeTxn) (bool, error) { return lm.LockSharedOnTable(tx, testFile) },
		func(tx *fakeTxn) (bool, error) { return lm.LockExclusiveOnTable(tx, testFile) },
	}

	for step := 0; step < 64; step++ {
		tx := txns[step%len(txns)]
		_, _ = acquire[(step*7+step/4)%len(acquire)](tx)

		lm.mu.Lock()
		if q, ok := lm.table[id]; ok {
			for i, a := range q.requests {
				for _, b := range q.requests[i+1:] {
					assert.True(t, isCompat(a.mode, b.mode),
						"granted %s and %s coexist", a.mode, b.mode)
				}
			}
		}
		lm.mu.Unlock()
	}
}
