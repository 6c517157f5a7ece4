package exec

import (
	"os"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/tuannm99/novacore/internal/bufferpool"
	"github.com/tuannm99/novacore/internal/heap"
	idx "github.com/tuannm99/novacore/internal/index"
	"github.com/tuannm99/novacore/internal/lock"
	"github.com/tuannm99/novacore/internal/record"
	"github.com/tuannm99/novacore/internal/storage"
	"github.com/tuannm99/novacore/internal/txn"
)

func accountsTable() *record.Table {
	cols := []record.Column{
		{TabName: "accounts", Name: "id", Type: record.ColInt, Len: 4, Offset: 0},
		{TabName: "accounts", Name: "balance", Type: record.ColInt, Len: 4, Offset: 4},
		{TabName: "accounts", Name: "name", Type: record.ColString, Len: 16, Offset: 8},
	}
	return &record.Table{Name: "accounts", Cols: cols}
}

func newTestRmFile(t *testing.T, recordSize int) *heap.RmFile {
	t.Helper()
	dir, err := os.MkdirTemp("", "novacore-exec-*")
	require.NoError(t, err)
	t.Cleanup(func() { _ = os.RemoveAll(dir) })

	sm := storage.NewStorageManager()
	fs := storage.LocalFileSet{Dir: dir, Base: "accounts"}
	rf, err := heap.CreateFile(sm, fs, 8, recordSize)
	require.NoError(t, err)
	return rf
}

func newTestTxnManager(t *testing.T, locks *lock.Manager) *txn.Manager {
	t.Helper()
	log, err := txn.OpenLog(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { _ = log.Close() })
	return txn.NewManager(locks, log)
}

func TestSeqScanFiltersAndStopsAtFirstMatch(t *testing.T) {
	table := accountsTable()
	rf := newTestRmFile(t, table.RowSize())

	insertRow(t, table, rf, int32(1), int32(100), "alice")
	insertRow(t, table, rf, int32(2), int32(250), "bob")
	insertRow(t, table, rf, int32(3), int32(250), "carol")

	scan := NewSeqScan(table, rf, []Condition{{Col: "balance", Op: EQ, Value: int32(250)}})
	require.NoError(t, scan.BeginTuple())
	require.False(t, scan.IsEnd())

	row, err := record.DecodeRow(table, scan.Current().Data)
	require.NoError(t, err)
	require.Equal(t, "bob", row[2])

	require.NoError(t, scan.NextTuple())
	require.False(t, scan.IsEnd())
	row, err = record.DecodeRow(table, scan.Current().Data)
	require.NoError(t, err)
	require.Equal(t, "carol", row[2])

	require.NoError(t, scan.NextTuple())
	require.True(t, scan.IsEnd())
}

func TestProjectionRepacksSelectedColumns(t *testing.T) {
	table := accountsTable()
	rf := newTestRmFile(t, table.RowSize())
	insertRow(t, table, rf, int32(1), int32(100), "alice")

	scan := NewSeqScan(table, rf, nil)
	require.NoError(t, scan.BeginTuple())

	proj := NewProjection(scan, []string{"name", "id"})
	require.Equal(t, 16+4, proj.TupleLen())
	out := proj.Current().Data
	require.Len(t, out, 16+4)
	require.Equal(t, "alice", trimZeros(out[0:16]))
}

func TestNestedLoopJoinConcatenatesRows(t *testing.T) {
	left := accountsTable()
	leftRf := newTestRmFile(t, left.RowSize())
	insertRow(t, left, leftRf, int32(1), int32(100), "alice")

	right := accountsTable()
	rightRf := newTestRmFile(t, right.RowSize())
	insertRow(t, right, rightRf, int32(9), int32(900), "zeta")

	join := NewNestedLoopJoin(NewSeqScan(left, leftRf, nil), NewSeqScan(right, rightRf, nil))
	require.NoError(t, join.BeginTuple())
	require.False(t, join.IsEnd())
	require.Equal(t, left.RowSize()+right.RowSize(), join.TupleLen())

	data := join.Current().Data
	leftRow, err := record.DecodeRow(left, data[:left.RowSize()])
	require.NoError(t, err)
	rightRow, err := record.DecodeRow(right, data[left.RowSize():])
	require.NoError(t, err)
	require.Equal(t, "alice", leftRow[2])
	require.Equal(t, "zeta", rightRow[2])

	require.NoError(t, join.NextTuple())
	require.True(t, join.IsEnd(), "single row on each side: right exhausts, then left exhausts too")
}

func newTestIndexHandle(t *testing.T) *idx.Handle {
	t.Helper()
	dir, err := os.MkdirTemp("", "novacore-exec-idx-*")
	require.NoError(t, err)
	t.Cleanup(func() { _ = os.RemoveAll(dir) })

	sm := storage.NewStorageManager()
	fs := storage.LocalFileSet{Dir: dir, Base: "by_balance_id"}
	bp := bufferpool.NewPool(sm, fs, 8)
	return idx.Create(sm, fs, bp)
}

func insertIndexEntry(
	t *testing.T,
	table *record.Table,
	index record.Index,
	handle *idx.Handle,
	row []any,
	rid heap.Rid,
) {
	t.Helper()
	key, err := record.PackIndexKey(table, index, row)
	require.NoError(t, err)
	require.NoError(t, handle.InsertEntry(key, rid))
}

// TestIndexScanMatchesNonLeadingIndexColumn exercises a composite index
// (balance, id) with a predicate on "id" alone: "id" is not the index's
// declared first column, so the index cannot bound the scan; the scan walks
// the whole leaf range and the per-row re-check still finds the one
// matching row.
func TestIndexScanMatchesNonLeadingIndexColumn(t *testing.T) {
	table := accountsTable()
	rf := newTestRmFile(t, table.RowSize())

	index, err := record.NewIndex(table, "by_balance_id", []string{"balance", "id"})
	require.NoError(t, err)
	table.Indexes = []record.Index{index}
	handle := newTestIndexHandle(t)

	rid1 := insertRow(t, table, rf, int32(1), int32(100), "alice")
	insertIndexEntry(t, table, index, handle, []any{int32(1), int32(100), "alice"}, rid1)
	rid2 := insertRow(t, table, rf, int32(2), int32(200), "bob")
	insertIndexEntry(t, table, index, handle, []any{int32(2), int32(200), "bob"}, rid2)

	locks := lock.NewManager()
	mgr := newTestTxnManager(t, locks)
	txn1, err := mgr.Begin()
	require.NoError(t, err)

	scan := NewIndexScan(table, index, handle, rf, []Condition{{Col: "id", Op: EQ, Value: int32(2)}}, locks, txn1, "accounts")
	require.NoError(t, scan.BeginTuple())
	require.False(t, scan.IsEnd())

	row, err := record.DecodeRow(table, scan.Current().Data)
	require.NoError(t, err)
	require.Equal(t, "bob", row[2])

	require.NoError(t, scan.NextTuple())
	require.True(t, scan.IsEnd())
}

// TestIndexScanEqualOnMissingKeyYieldsEmpty covers the spec's IndexScan
// boundary case: an EQ lookup against a key absent from the index yields no
// rows at all, not an error.
func TestIndexScanEqualOnMissingKeyYieldsEmpty(t *testing.T) {
	table := accountsTable()
	rf := newTestRmFile(t, table.RowSize())

	index, err := record.NewIndex(table, "by_id", []string{"id"})
	require.NoError(t, err)
	table.Indexes = []record.Index{index}
	handle := newTestIndexHandle(t)

	rid := insertRow(t, table, rf, int32(1), int32(100), "alice")
	insertIndexEntry(t, table, index, handle, []any{int32(1), int32(100), "alice"}, rid)

	locks := lock.NewManager()
	mgr := newTestTxnManager(t, locks)
	txn1, err := mgr.Begin()
	require.NoError(t, err)

	scan := NewIndexScan(table, index, handle, rf, []Condition{{Col: "id", Op: EQ, Value: int32(999)}}, locks, txn1, "accounts")
	require.NoError(t, scan.BeginTuple())
	require.True(t, scan.IsEnd())
}

func TestDeleteRemovesRow(t *testing.T) {
	table := accountsTable()
	rf := newTestRmFile(t, table.RowSize())
	rid := insertRow(t, table, rf, int32(1), int32(100), "alice")

	locks := lock.NewManager()
	mgr := newTestTxnManager(t, locks)
	txn1, err := mgr.Begin()
	require.NoError(t, err)

	del := NewDelete(table, rf, nil, locks, txn1, "accounts", []heap.Rid{rid})
	require.NoError(t, del.BeginTuple())
	require.False(t, del.IsEnd())

	_, err = rf.GetRecord(rid)
	require.Error(t, err, "row should be gone after delete")

	require.NoError(t, del.NextTuple())
	require.True(t, del.IsEnd())
}

func TestUpdateRewritesRow(t *testing.T) {
	table := accountsTable()
	rf := newTestRmFile(t, table.RowSize())
	rid := insertRow(t, table, rf, int32(1), int32(100), "alice")

	locks := lock.NewManager()
	mgr := newTestTxnManager(t, locks)
	txn1, err := mgr.Begin()
	require.NoError(t, err)

	upd := NewUpdate(table, rf, nil, locks, txn1, "accounts", []heap.Rid{rid}, []SetClause{{Col: "balance", Value: int32(500)}})
	require.NoError(t, upd.BeginTuple())

	got, err := rf.GetRecord(rid)
	require.NoError(t, err)
	row, err := record.DecodeRow(table, got)
	require.NoError(t, err)
	require.Equal(t, int32(500), row[1])
	require.Equal(t, "alice", row[2])
}

// TestDeleteThenAbortRestoresRow mirrors the spec's literal scenario 1:
// delete a row under a transaction, abort, and confirm it reappears.
func TestDeleteThenAbortRestoresRow(t *testing.T) {
	table := accountsTable()
	rf := newTestRmFile(t, table.RowSize())
	rid := insertRow(t, table, rf, int32(1), int32(100), "alice")

	locks := lock.NewManager()
	mgr := newTestTxnManager(t, locks)
	txn1, err := mgr.Begin()
	require.NoError(t, err)

	del := NewDelete(table, rf, nil, locks, txn1, "accounts", []heap.Rid{rid})
	require.NoError(t, del.BeginTuple())

	_, err = rf.GetRecord(rid)
	require.Error(t, err)

	require.NoError(t, mgr.Abort(txn1, singleTableUndo{rf}))

	got, err := rf.GetRecord(rid)
	require.NoError(t, err)
	row, err := record.DecodeRow(table, got)
	require.NoError(t, err)
	require.Equal(t, "alice", row[2])
}

// singleTableUndo adapts a single heap.RmFile to txn.RecordUndoer for
// tests that never need the real table-name-keyed dispatch a catalog layer
// would provide.
type singleTableUndo struct{ rf *heap.RmFile }

func (u singleTableUndo) DeleteRecord(_ string, rid heap.Rid) error { return u.rf.DeleteRecord(rid) }
func (u singleTableUndo) InsertRecordAt(_ string, rid heap.Rid, data []byte) error {
	return u.rf.InsertRecordAt(rid, data)
}
func (u singleTableUndo) UpdateRecord(_ string, rid heap.Rid, data []byte) error {
	return u.rf.UpdateRecord(rid, data)
}

func trimZeros(b []byte) string {
	n := 0
	for n < len(b) && b[n] != 0 {
		n++
	}
	return string(b[:n])
}

func insertRow(t *testing.T, table *record.Table, rf *heap.RmFile, id, balance int32, name string) heap.Rid {
	t.Helper()
	buf, err := record.EncodeRow(table, []any{id, balance, name})
	require.NoError(t, err)
	rid, err := rf.InsertRecord(buf)
	require.NoError(t, err)
	return rid
}
