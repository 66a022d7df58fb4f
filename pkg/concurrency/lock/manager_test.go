package lock_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"reldb/pkg/concurrency/lock"
	"reldb/pkg/concurrency/transaction"
	"reldb/pkg/dberr"
	"reldb/pkg/primitives"
)

func newTxns(n int) []*transaction.Transaction {
	out := make([]*transaction.Transaction, n)
	for i := range out {
		out[i] = transaction.New(primitives.TxnID(i+1), primitives.Timestamp(i+1))
	}
	return out
}

var (
	testFile = primitives.FileID(1)
	testRid  = primitives.Rid{PageNo: 2, SlotNo: 0}
)

func TestSharedRecordLocksCoexist(t *testing.T) {
	lm := lock.NewManager()
	txns := newTxns(2)

	ok, err := lm.LockSharedOnRecord(txns[0], testRid, testFile)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = lm.LockSharedOnRecord(txns[1], testRid, testFile)
	require.NoError(t, err)
	assert.True(t, ok)

	assert.Equal(t, lock.GroupS, lm.GroupModeOf(lock.RecordID(testFile, testRid)))
}

func TestExclusiveConflictAbortsImmediately(t *testing.T) {
	lm := lock.NewManager()
	txns := newTxns(3)

	// S4: T1 takes X on the record, T2's S request must not wait.
	ok, err := lm.LockExclusiveOnRecord(txns[0], testRid, testFile)
	require.NoError(t, err)
	assert.True(t, ok)

	_, err = lm.LockSharedOnRecord(txns[1], testRid, testFile)
	assert.True(t, dberr.Is(err, dberr.DeadlockPrevention))

	// After T1 finishes, T3 succeeds.
	for _, id := range txns[0].LockSet() {
		lm.Unlock(txns[0], id)
	}
	txns[0].SetState(primitives.TxnCommitted)

	ok, err = lm.LockSharedOnRecord(txns[2], testRid, testFile)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestRecordUpgradeSToX(t *testing.T) {
	lm := lock.NewManager()
	txns := newTxns(2)

	_, err := lm.LockSharedOnRecord(txns[0], testRid, testFile)
	require.NoError(t, err)

	// Sole requester upgrades in place.
	ok, err := lm.LockExclusiveOnRecord(txns[0], testRid, testFile)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, lock.GroupX, lm.GroupModeOf(lock.RecordID(testFile, testRid)))

	// Upgrade with a second reader aborts.
	lm2 := lock.NewManager()
	_, err = lm2.LockSharedOnRecord(txns[0], testRid, testFile)
	require.NoError(t, err)
	_, err = lm2.LockSharedOnRecord(txns[1], testRid, testFile)
	require.NoError(t, err)
	_, err = lm2.LockExclusiveOnRecord(txns[0], testRid, testFile)
	assert.True(t, dberr.Is(err, dberr.DeadlockPrevention))
}

func TestIntentionModes(t *testing.T) {
	lm := lock.NewManager()
	txns := newTxns(3)

	// IS and IX are compatible with each other.
	ok, err := lm.LockISOnTable(txns[0], testFile)
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = lm.LockIXOnTable(txns[1], testFile)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, lock.GroupIX, lm.GroupModeOf(lock.TableID(testFile)))

	// Table S conflicts with the foreign IX.
	_, err = lm.LockSharedOnTable(txns[2], testFile)
	assert.True(t, dberr.Is(err, dberr.DeadlockPrevention))

	// Table X conflicts with everything.
	_, err = lm.LockExclusiveOnTable(txns[2], testFile)
	assert.True(t, dberr.Is(err, dberr.DeadlockPrevention))
}

func TestTableUpgrades(t *testing.T) {
	t.Run("IS to S", func(t *testing.T) {
		lm := lock.NewManager()
		txn := newTxns(1)[0]
		_, err := lm.LockISOnTable(txn, testFile)
		require.NoError(t, err)
		ok, err := lm.LockSharedOnTable(txn, testFile)
		require.NoError(t, err)
		assert.True(t, ok)
		assert.Equal(t, lock.GroupS, lm.GroupModeOf(lock.TableID(testFile)))
	})

	t.Run("IX to SIX", func(t *testing.T) {
		lm := lock.NewManager()
		txn := newTxns(1)[0]
		_, err := lm.LockIXOnTable(txn, testFile)
		require.NoError(t, err)
		ok, err := lm.LockSharedOnTable(txn, testFile)
		require.NoError(t, err)
		assert.True(t, ok)
		assert.Equal(t, lock.GroupSIX, lm.GroupModeOf(lock.TableID(testFile)))
	})

	t.Run("S to SIX via IX", func(t *testing.T) {
		lm := lock.NewManager()
		txn := newTxns(1)[0]
		_, err := lm.LockSharedOnTable(txn, testFile)
		require.NoError(t, err)
		ok, err := lm.LockIXOnTable(txn, testFile)
		require.NoError(t, err)
		assert.True(t, ok)
		assert.Equal(t, lock.GroupSIX, lm.GroupModeOf(lock.TableID(testFile)))
	})

	t.Run("sole holder to X", func(t *testing.T) {
		lm := lock.NewManager()
		txn := newTxns(1)[0]
		_, err := lm.LockIXOnTable(txn, testFile)
		require.NoError(t, err)
		ok, err := lm.LockExclusiveOnTable(txn, testFile)
		require.NoError(t, err)
		assert.True(t, ok)
		assert.Equal(t, lock.GroupX, lm.GroupModeOf(lock.TableID(testFile)))
	})

	t.Run("IS to IX blocked by foreign S", func(t *testing.T) {
		lm := lock.NewManager()
		txns := newTxns(2)
		_, err := lm.LockISOnTable(txns[0], testFile)
		require.NoError(t, err)
		_, err = lm.LockSharedOnTable(txns[1], testFile)
		require.NoError(t, err)
		_, err = lm.LockIXOnTable(txns[0], testFile)
		assert.True(t, dberr.Is(err, dberr.DeadlockPrevention))
	})
}

func TestTwoPhaseLocking(t *testing.T) {
	lm := lock.NewManager()
	txn := newTxns(1)[0]

	_, err := lm.LockSharedOnRecord(txn, testRid, testFile)
	require.NoError(t, err)
	assert.Equal(t, primitives.TxnGrowing, txn.State())

	lm.Unlock(txn, lock.RecordID(testFile, testRid))
	assert.Equal(t, primitives.TxnShrinking, txn.State())

	// No acquire after the first release.
	_, err = lm.LockISOnTable(txn, testFile)
	assert.True(t, dberr.Is(err, dberr.LockOnShrinking))
}

func TestTerminalTransactionIsRefused(t *testing.T) {
	lm := lock.NewManager()
	txn := newTxns(1)[0]
	txn.SetState(primitives.TxnCommitted)

	ok, err := lm.LockSharedOnRecord(txn, testRid, testFile)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.False(t, lm.Unlock(txn, lock.RecordID(testFile, testRid)))
}

func TestUnlockRecomputesAggregate(t *testing.T) {
	lm := lock.NewManager()
	txns := newTxns(2)

	_, err := lm.LockISOnTable(txns[0], testFile)
	require.NoError(t, err)
	_, err = lm.LockIXOnTable(txns[1], testFile)
	require.NoError(t, err)
	assert.Equal(t, lock.GroupIX, lm.GroupModeOf(lock.TableID(testFile)))

	lm.Unlock(txns[1], lock.TableID(testFile))
	assert.Equal(t, lock.GroupIS, lm.GroupModeOf(lock.TableID(testFile)))

	lm.Unlock(txns[0], lock.TableID(testFile))
	assert.Equal(t, lock.GroupNone, lm.GroupModeOf(lock.TableID(testFile)))
}
