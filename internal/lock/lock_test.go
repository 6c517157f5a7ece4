package lock

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/tuannm99/novacore/internal/heap"
)

type fakeTxn struct {
	id      uint64
	state   TxnState
	lockSet map[DataId]bool
}

func newFakeTxn(id uint64) *fakeTxn {
	return &fakeTxn{id: id, state: Default, lockSet: make(map[DataId]bool)}
}

func (t *fakeTxn) ID() uint64           { return t.id }
func (t *fakeTxn) State() TxnState      { return t.state }
func (t *fakeTxn) SetState(s TxnState)  { t.state = s }
func (t *fakeTxn) AddLock(id DataId)    { t.lockSet[id] = true }
func (t *fakeTxn) RemoveLock(id DataId) { delete(t.lockSet, id) }

// TestXOnTableBlocksOtherShared mirrors the spec's literal scenario 3: T1
// holds X on a table, T2's shared request fails under no-wait prevention.
func TestXOnTableBlocksOtherShared(t *testing.T) {
	m := NewManager()
	t1, t2 := newFakeTxn(1), newFakeTxn(2)
	tbl := TableID("t")

	ok, err := m.LockExclusive(t1, tbl)
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = m.LockShared(t2, tbl)
	require.ErrorIs(t, err, ErrDeadlockPrevention)
	require.False(t, ok)
}

// TestSoleHolderUpgradesSharedToExclusive mirrors scenario 4: a sole
// holder of S on a row can upgrade to X.
func TestSoleHolderUpgradesSharedToExclusive(t *testing.T) {
	m := NewManager()
	t1 := newFakeTxn(1)
	row := RecordID("t", heap.Rid{PageID: 1, Slot: 0})

	ok, err := m.LockShared(t1, row)
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = m.LockExclusive(t1, row)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, X, m.table[row].groupMode)
}

func TestSharedWithOthersCannotUpgradeToExclusive(t *testing.T) {
	m := NewManager()
	t1, t2 := newFakeTxn(1), newFakeTxn(2)
	row := RecordID("t", heap.Rid{PageID: 1, Slot: 0})

	_, err := m.LockShared(t1, row)
	require.NoError(t, err)
	_, err = m.LockShared(t2, row)
	require.NoError(t, err)

	ok, err := m.LockExclusive(t1, row)
	require.NoError(t, err, "denied-because-shared-with-others is a plain refusal, not an abort")
	require.False(t, ok)
}

func TestIntentLocksCompose(t *testing.T) {
	m := NewManager()
	t1, t2 := newFakeTxn(1), newFakeTxn(2)
	tbl := TableID("t")

	ok, err := m.LockIntentExclusive(t1, tbl)
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = m.LockIntentShared(t2, tbl)
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = m.LockShared(t2, tbl)
	require.ErrorIs(t, err, ErrDeadlockPrevention, "S conflicts with another txn's IX")
	require.False(t, ok)
}

func TestUnlockIsIdempotentAndTransitionsToShrinking(t *testing.T) {
	m := NewManager()
	t1 := newFakeTxn(1)
	tbl := TableID("t")

	_, err := m.LockShared(t1, tbl)
	require.NoError(t, err)

	ok, err := m.Unlock(t1, tbl)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, Shrinking, t1.State())

	ok, err = m.Unlock(t1, tbl)
	require.NoError(t, err)
	require.True(t, ok)
}

func TestLockAfterShrinkingFails(t *testing.T) {
	m := NewManager()
	t1 := newFakeTxn(1)
	tbl := TableID("t")

	_, err := m.LockShared(t1, tbl)
	require.NoError(t, err)
	_, err = m.Unlock(t1, tbl)
	require.NoError(t, err)

	_, err = m.LockShared(t1, TableID("u"))
	require.ErrorIs(t, err, ErrLockOnShrinking)
}

func TestFinishedTransactionCannotLock(t *testing.T) {
	m := NewManager()
	t1 := newFakeTxn(1)
	t1.SetState(Committed)

	_, err := m.LockShared(t1, TableID("t"))
	require.ErrorIs(t, err, ErrTxnFinished)
}
