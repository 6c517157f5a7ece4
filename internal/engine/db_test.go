package engine

import (
	"os"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/tuannm99/novacore/internal/exec"
	"github.com/tuannm99/novacore/internal/heap"
	"github.com/tuannm99/novacore/internal/record"
)

func newTestDB(t *testing.T) *Database {
	t.Helper()
	dir, err := os.MkdirTemp("", "novacore-engine-*")
	require.NoError(t, err)
	t.Cleanup(func() { _ = os.RemoveAll(dir) })

	db, err := Open(dir)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func accountsTable() record.Table {
	return record.Table{
		Name: "accounts",
		Cols: []record.Column{
			{TabName: "accounts", Name: "id", Type: record.ColInt, Len: 4, Offset: 0, HasIndex: true},
			{TabName: "accounts", Name: "balance", Type: record.ColInt, Len: 4, Offset: 4},
			{TabName: "accounts", Name: "name", Type: record.ColString, Len: 16, Offset: 8},
		},
	}
}

func mustAccountsTableWithIndex(t *testing.T) record.Table {
	t.Helper()
	table := accountsTable()
	idx, err := record.NewIndex(&table, "by_id", []string{"id"})
	require.NoError(t, err)
	table.Indexes = []record.Index{idx}
	return table
}

func TestCreateTablePersistsToCatalog(t *testing.T) {
	db := newTestDB(t)
	table := mustAccountsTableWithIndex(t)
	require.NoError(t, db.CreateTable(table))

	reloaded, ok := db.Cat.TableByName("accounts")
	require.True(t, ok)
	require.Len(t, reloaded.Indexes, 1)

	require.ErrorIs(t, db.CreateTable(table), ErrTableExists)
}

func TestInsertAndSeqScanRoundTrip(t *testing.T) {
	db := newTestDB(t)
	require.NoError(t, db.CreateTable(mustAccountsTableWithIndex(t)))

	desc, rf, err := db.Table("accounts")
	require.NoError(t, err)

	row := []any{int32(1), int32(100), "alice"}
	buf, err := record.EncodeRow(desc, row)
	require.NoError(t, err)
	rid, err := rf.InsertRecord(buf)
	require.NoError(t, err)

	bindings, err := db.IndexBindings("accounts")
	require.NoError(t, err)
	for _, b := range bindings {
		key, err := record.PackIndexKey(desc, b.Index, row)
		require.NoError(t, err)
		require.NoError(t, b.Handle.InsertEntry(key, rid))
	}

	scan := exec.NewSeqScan(desc, rf, []exec.Condition{{Col: "id", Op: exec.EQ, Value: int32(1)}})
	require.NoError(t, scan.BeginTuple())
	require.False(t, scan.IsEnd())
	got, err := record.DecodeRow(desc, scan.Current().Data)
	require.NoError(t, err)
	require.Equal(t, "alice", got[2])
}

// TestUpdateThenCommitIndexStillResolves mirrors the spec's literal
// scenario 2: update a non-indexed column, commit, and confirm the index
// still resolves to the same row afterward.
func TestUpdateThenCommitIndexStillResolves(t *testing.T) {
	db := newTestDB(t)
	table := mustAccountsTableWithIndex(t)
	require.NoError(t, db.CreateTable(table))

	desc, rf, err := db.Table("accounts")
	require.NoError(t, err)
	row := []any{int32(7), int32(50), "bob"}
	buf, err := record.EncodeRow(desc, row)
	require.NoError(t, err)
	rid, err := rf.InsertRecord(buf)
	require.NoError(t, err)

	bindings, err := db.IndexBindings("accounts")
	require.NoError(t, err)
	for _, b := range bindings {
		key, err := record.PackIndexKey(desc, b.Index, row)
		require.NoError(t, err)
		require.NoError(t, b.Handle.InsertEntry(key, rid))
	}

	txn1, err := db.Begin()
	require.NoError(t, err)
	upd := exec.NewUpdate(desc, rf, bindings, db.Locks, txn1, "accounts", []heap.Rid{rid}, []exec.SetClause{{Col: "balance", Value: int32(999)}})
	require.NoError(t, upd.BeginTuple())
	require.NoError(t, db.Commit(txn1))

	// Re-resolve id=7 through the index after commit.
	found := false
	for _, b := range bindings {
		key, err := record.PackIndexKey(desc, b.Index, []any{int32(7), nil, nil})
		require.NoError(t, err)
		rids, err := b.Handle.Equal(key)
		require.NoError(t, err)
		for _, candidate := range rids {
			data, err := rf.GetRecord(candidate)
			if err != nil {
				continue
			}
			decoded, err := record.DecodeRow(desc, data)
			require.NoError(t, err)
			if decoded[0] == int32(7) {
				found = true
			}
		}
	}
	require.True(t, found)
}

func TestDropTableRemovesCatalogEntry(t *testing.T) {
	db := newTestDB(t)
	table := mustAccountsTableWithIndex(t)
	require.NoError(t, db.CreateTable(table))

	_, _, err := db.Table("accounts")
	require.NoError(t, err)

	require.NoError(t, db.DropTable("accounts"))

	_, ok := db.Cat.TableByName("accounts")
	require.False(t, ok)

	_, _, err = db.Table("accounts")
	require.ErrorIs(t, err, ErrTableNotFound)
}

func TestDeleteThenAbortRestoresRowThroughDatabase(t *testing.T) {
	db := newTestDB(t)
	table := mustAccountsTableWithIndex(t)
	require.NoError(t, db.CreateTable(table))

	desc, rf, err := db.Table("accounts")
	require.NoError(t, err)
	row := []any{int32(3), int32(10), "carol"}
	buf, err := record.EncodeRow(desc, row)
	require.NoError(t, err)
	rid, err := rf.InsertRecord(buf)
	require.NoError(t, err)

	bindings, err := db.IndexBindings("accounts")
	require.NoError(t, err)
	for _, b := range bindings {
		key, err := record.PackIndexKey(desc, b.Index, row)
		require.NoError(t, err)
		require.NoError(t, b.Handle.InsertEntry(key, rid))
	}

	txn1, err := db.Begin()
	require.NoError(t, err)
	del := exec.NewDelete(desc, rf, bindings, db.Locks, txn1, "accounts", []heap.Rid{rid})
	require.NoError(t, del.BeginTuple())
	require.NoError(t, db.Abort(txn1))

	got, err := rf.GetRecord(rid)
	require.NoError(t, err)
	decoded, err := record.DecodeRow(desc, got)
	require.NoError(t, err)
	require.Equal(t, "carol", decoded[2])
}
