package txn

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/tuannm99/novacore/internal/heap"
	"github.com/tuannm99/novacore/internal/lock"
)

// fakeStore is a RecordUndoer double that just records which inverse
// operation was invoked, for tests that only care about undo ordering and
// dispatch, not actual heap-file mutation.
type fakeStore struct {
	calls []string
	data  map[heap.Rid][]byte
}

func newFakeStore() *fakeStore {
	return &fakeStore{data: make(map[heap.Rid][]byte)}
}

func (f *fakeStore) DeleteRecord(tabName string, rid heap.Rid) error {
	f.calls = append(f.calls, "delete:"+tabName)
	delete(f.data, rid)
	return nil
}

func (f *fakeStore) InsertRecordAt(tabName string, rid heap.Rid, data []byte) error {
	f.calls = append(f.calls, "insert:"+tabName)
	f.data[rid] = append([]byte(nil), data...)
	return nil
}

func (f *fakeStore) UpdateRecord(tabName string, rid heap.Rid, data []byte) error {
	f.calls = append(f.calls, "update:"+tabName)
	f.data[rid] = append([]byte(nil), data...)
	return nil
}

func newTestManager(t *testing.T) *Manager {
	t.Helper()
	log, err := OpenLog(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { _ = log.Close() })
	return NewManager(lock.NewManager(), log)
}

func TestBeginAssignsIncreasingIDs(t *testing.T) {
	m := newTestManager(t)
	t1, err := m.Begin()
	require.NoError(t, err)
	t2, err := m.Begin()
	require.NoError(t, err)
	require.Less(t, t1.ID(), t2.ID())
	require.Equal(t, Default, t1.State())
}

func TestCommitReleasesLocksAndClearsSets(t *testing.T) {
	m := newTestManager(t)
	locks := m.locks
	txn, err := m.Begin()
	require.NoError(t, err)

	row := lock.RecordID("accounts", heap.Rid{PageID: 1, Slot: 0})
	ok, err := locks.LockExclusive(txn, row)
	require.NoError(t, err)
	require.True(t, ok)
	txn.AppendWrite(WriteRecord{Type: UpdateTuple, TabName: "accounts", Rid: row.Rid, BeforeImage: []byte("old")})

	require.NoError(t, m.Commit(txn))
	require.Equal(t, lock.Committed, txn.State())
	require.Empty(t, txn.LockSet())

	// lock released: a second transaction can now take X on the same row.
	t2 := newFakeTxnForTest(2)
	ok, err = locks.LockExclusive(t2, row)
	require.NoError(t, err)
	require.True(t, ok)
}

// TestAbortUndoesWriteSetInReverseOrder mirrors the spec's literal scenario
// 1: insert rows, delete one, abort, and confirm the delete is undone.
func TestAbortUndoesWriteSetInReverseOrder(t *testing.T) {
	m := newTestManager(t)
	locks := m.locks
	txn, err := m.Begin()
	require.NoError(t, err)

	ridA := heap.Rid{PageID: 1, Slot: 0}
	ridB := heap.Rid{PageID: 1, Slot: 1}

	store := newFakeStore()

	rowA := lock.RecordID("accounts", ridA)
	rowB := lock.RecordID("accounts", ridB)
	_, err = locks.LockExclusive(txn, rowA)
	require.NoError(t, err)
	_, err = locks.LockExclusive(txn, rowB)
	require.NoError(t, err)

	txn.AppendWrite(WriteRecord{Type: InsertTuple, TabName: "accounts", Rid: ridA})
	store.data[ridA] = []byte("row-a")

	txn.AppendWrite(WriteRecord{Type: DeleteTuple, TabName: "accounts", Rid: ridB, BeforeImage: []byte("row-b")})
	delete(store.data, ridB)

	require.NoError(t, m.Abort(txn, store))

	require.Equal(t, []string{"delete:accounts", "insert:accounts"}, store.calls, "undo replays write-set in reverse order")
	require.Equal(t, lock.Aborted, txn.State())
	require.Empty(t, txn.LockSet())
	require.Equal(t, []byte("row-b"), store.data[ridB], "deleted row restored by undo")
	require.NotContains(t, store.data, ridA, "inserted row removed by undo")
}

func TestAbortUpdateUndoRestoresBeforeImage(t *testing.T) {
	m := newTestManager(t)
	txn, err := m.Begin()
	require.NoError(t, err)

	rid := heap.Rid{PageID: 2, Slot: 3}
	store := newFakeStore()
	store.data[rid] = []byte("new-value")

	txn.AppendWrite(WriteRecord{Type: UpdateTuple, TabName: "accounts", Rid: rid, BeforeImage: []byte("old-value")})

	require.NoError(t, m.Abort(txn, store))
	require.Equal(t, []byte("old-value"), store.data[rid])
}

type fakeTxnForTest struct {
	id      uint64
	state   lock.TxnState
	lockSet map[lock.DataId]bool
}

func newFakeTxnForTest(id uint64) *fakeTxnForTest {
	return &fakeTxnForTest{id: id, state: lock.Default, lockSet: make(map[lock.DataId]bool)}
}

func (t *fakeTxnForTest) ID() uint64                 { return t.id }
func (t *fakeTxnForTest) State() lock.TxnState       { return t.state }
func (t *fakeTxnForTest) SetState(s lock.TxnState)   { t.state = s }
func (t *fakeTxnForTest) AddLock(id lock.DataId)     { t.lockSet[id] = true }
func (t *fakeTxnForTest) RemoveLock(id lock.DataId)  { delete(t.lockSet, id) }
