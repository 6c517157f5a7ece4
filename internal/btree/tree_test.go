// internal/btree/tree_test.go
package btree

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/tuannm99/novacore/internal/bufferpool"
	"github.com/tuannm99/novacore/internal/heap"
	"github.com/tuannm99/novacore/internal/record"
	"github.com/tuannm99/novacore/internal/storage"
)

func newTestHeapTable(t *testing.T) (*heap.RmFile, *record.Table, *storage.StorageManager) {
	t.Helper()

	dir := t.TempDir()
	sm := storage.NewStorageManager()
	fs := storage.LocalFileSet{
		Dir:  dir,
		Base: "users",
	}

	table := &record.Table{
		Name: "users",
		Cols: []record.Column{
			{TabName: "users", Name: "id", Type: record.ColInt, Len: 4, Offset: 0},
			{TabName: "users", Name: "name", Type: record.ColString, Len: 16, Offset: 4},
			{TabName: "users", Name: "active", Type: record.ColInt, Len: 4, Offset: 20},
		},
	}

	rf, err := heap.CreateFile(sm, fs, bufferpool.DefaultCapacity, table.RowSize())
	require.NoError(t, err)
	return rf, table, sm
}

func TestTree_InsertAndSearchEqual(t *testing.T) {
	rf, table, sm := newTestHeapTable(t)

	idxFS := storage.LocalFileSet{
		Dir:  t.TempDir(),
		Base: "users_id_idx",
	}
	idxBP := bufferpool.NewPool(sm, idxFS, bufferpool.DefaultCapacity)

	tree := NewTree(sm, idxFS, idxBP)

	for i := 1; i <= 10; i++ {
		buf, err := record.EncodeRow(table, []any{
			int32(i),
			fmt.Sprintf("user-%d", i),
			int32(i % 2),
		})
		require.NoError(t, err)
		tid, err := rf.InsertRecord(buf)
		require.NoError(t, err)

		err = tree.Insert(int64(i), tid)
		require.NoError(t, err)
	}

	// Flush heap + index
	require.NoError(t, rf.Close())
	require.NoError(t, idxBP.FlushAll())

	// Search
	tids, err := tree.SearchEqual(7)
	require.NoError(t, err)
	require.Len(t, tids, 1)

	data, err := rf.GetRecord(tids[0])
	require.NoError(t, err)
	row, err := record.DecodeRow(table, data)
	require.NoError(t, err)
	require.Equal(t, int32(7), row[0].(int32))
	require.Equal(t, "user-7", row[1].(string))
}
