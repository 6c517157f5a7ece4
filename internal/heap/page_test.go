package heap

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/tuannm99/novacore/internal/storage"
)

func TestFileHeader_InitAndAccessors(t *testing.T) {
	buf := make([]byte, storage.PageSize)
	fh := InitFileHeader(buf, 64)

	require.Equal(t, uint32(1), fh.NumPages())
	require.Equal(t, uint32(64), fh.RecordSize())
	require.Equal(t, NoPage, fh.FirstFreePageNo())
	require.Greater(t, fh.NumRecordsPerPage(), uint32(0))

	fh.SetNumPages(3)
	fh.SetFirstFreePageNo(2)

	reloaded := NewFileHeader(buf)
	require.Equal(t, uint32(3), reloaded.NumPages())
	require.Equal(t, uint32(2), reloaded.FirstFreePageNo())
}

func TestDataPage_BitmapAndSlots(t *testing.T) {
	recordsPerPage, bitmapSize := fitRecordsPerPage(64)
	buf := make([]byte, storage.PageSize)
	dp := InitDataPage(buf, recordsPerPage, 64, bitmapSize)

	require.Equal(t, 0, dp.NumRecords())
	slot, ok := dp.firstClearBit()
	require.True(t, ok)
	require.Equal(t, 0, slot)

	data := make([]byte, 64)
	data[0] = 9
	dp.WriteSlot(slot, data)
	dp.SetNumRecords(1)

	require.True(t, dp.IsOccupied(0))
	got, ok := dp.ReadSlot(0)
	require.True(t, ok)
	require.Equal(t, byte(9), got[0])

	dp.ClearSlot(0)
	require.False(t, dp.IsOccupied(0))
	_, ok = dp.ReadSlot(0)
	require.False(t, ok)
}

func TestProloguePreventsStoragePageAutoInit(t *testing.T) {
	buf := make([]byte, storage.PageSize)
	InitFileHeader(buf, 64)

	p := &storage.Page{Buf: buf}
	require.False(t, p.IsUninitialized(), "a formatted heap page must never look uninitialized to storage.Page")
}
