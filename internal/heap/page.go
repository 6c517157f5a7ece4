package heap

import (
	"github.com/tuannm99/novacore/internal/alias/bx"
	"github.com/tuannm99/novacore/internal/storage"
)

// heapPrologue is a fixed, always-nonzero 12-byte marker written at the
// start of every heap page. The buffer pool's storage.Page considers a page
// "uninitialized" (and silently re-zeroes it on load) when the bytes at
// offsets 6 and 8 are both zero; heap pages share the same
// StorageManager/Page plumbing as the B+-tree's slotted pages, so this
// prologue guarantees that check never fires for a page this package has
// already written.
const (
	heapMagic    = uint32(0x4e434831) // "NCH1"
	prologueSize = 12
)

func writePrologue(buf []byte) {
	bx.PutU32At(buf, 0, heapMagic)
	bx.PutU32At(buf, 4, heapMagic)
	bx.PutU32At(buf, 8, heapMagic)
}

// --- File header page (page 0 of every heap file) ---

const fileHeaderSize = prologueSize + 4*5 // NumPages, NumRecordsPerPage, RecordSize, BitmapSize, FirstFreePageNo

// FileHeader is the transient view over a heap file's page-0 contents.
type FileHeader struct {
	buf []byte
}

func NewFileHeader(buf []byte) *FileHeader {
	return &FileHeader{buf: buf}
}

// InitFileHeader formats a freshly allocated page 0 for a table whose rows
// are recordSize bytes wide.
func InitFileHeader(buf []byte, recordSize int) *FileHeader {
	writePrologue(buf)
	fh := &FileHeader{buf: buf}
	recordsPerPage, bitmapSize := fitRecordsPerPage(recordSize)
	fh.SetNumPages(1)
	fh.SetNumRecordsPerPage(uint32(recordsPerPage))
	fh.SetRecordSize(uint32(recordSize))
	fh.SetBitmapSize(uint32(bitmapSize))
	fh.SetFirstFreePageNo(NoPage)
	return fh
}

func (fh *FileHeader) NumPages() uint32          { return bx.U32At(fh.buf, prologueSize) }
func (fh *FileHeader) SetNumPages(v uint32)      { bx.PutU32At(fh.buf, prologueSize, v) }
func (fh *FileHeader) NumRecordsPerPage() uint32 { return bx.U32At(fh.buf, prologueSize+4) }
func (fh *FileHeader) SetNumRecordsPerPage(v uint32) {
	bx.PutU32At(fh.buf, prologueSize+4, v)
}
func (fh *FileHeader) RecordSize() uint32     { return bx.U32At(fh.buf, prologueSize+8) }
func (fh *FileHeader) SetRecordSize(v uint32) { bx.PutU32At(fh.buf, prologueSize+8, v) }
func (fh *FileHeader) BitmapSize() uint32     { return bx.U32At(fh.buf, prologueSize+12) }
func (fh *FileHeader) SetBitmapSize(v uint32) { bx.PutU32At(fh.buf, prologueSize+12, v) }
func (fh *FileHeader) FirstFreePageNo() uint32 {
	return bx.U32At(fh.buf, prologueSize+16)
}
func (fh *FileHeader) SetFirstFreePageNo(v uint32) {
	bx.PutU32At(fh.buf, prologueSize+16, v)
}

// fitRecordsPerPage computes the largest number of fixed-width records that
// fit on one data page alongside their occupancy bitmap, for a given
// record width.
func fitRecordsPerPage(recordSize int) (records int, bitmapSize int) {
	pageAvail := dataPageAvail
	n := pageAvail / recordSize
	for n > 0 {
		bm := (n + 7) / 8
		if n*recordSize+bm <= pageAvail {
			return n, bm
		}
		n--
	}
	return 0, 0
}

// --- Data page (pages 1..N-1) ---

const dataPageHeaderSize = prologueSize + 4*2 // NumRecords, NextFreePageNo

// dataPageAvail is the usable byte budget for bitmap+slots on a data page.
const dataPageAvail = storage.PageSize - dataPageHeaderSize

// DataPage is the transient view over one heap data page.
type DataPage struct {
	buf               []byte
	numRecordsPerPage int
	recordSize        int
	bitmapSize        int
}

// NewDataPage wraps an existing (already-initialized) data page.
func NewDataPage(buf []byte, numRecordsPerPage, recordSize, bitmapSize int) *DataPage {
	return &DataPage{buf: buf, numRecordsPerPage: numRecordsPerPage, recordSize: recordSize, bitmapSize: bitmapSize}
}

// InitDataPage formats a freshly allocated page as an empty data page.
func InitDataPage(buf []byte, numRecordsPerPage, recordSize, bitmapSize int) *DataPage {
	writePrologue(buf)
	dp := &DataPage{buf: buf, numRecordsPerPage: numRecordsPerPage, recordSize: recordSize, bitmapSize: bitmapSize}
	dp.SetNumRecords(0)
	dp.SetNextFreePageNo(NoPage)
	for i := dataPageHeaderSize; i < dataPageHeaderSize+bitmapSize; i++ {
		dp.buf[i] = 0
	}
	return dp
}

func (dp *DataPage) NumRecords() int { return int(bx.U32At(dp.buf, prologueSize)) }
func (dp *DataPage) SetNumRecords(n int) {
	bx.PutU32At(dp.buf, prologueSize, uint32(n))
}
func (dp *DataPage) NextFreePageNo() uint32 { return bx.U32At(dp.buf, prologueSize+4) }
func (dp *DataPage) SetNextFreePageNo(v uint32) {
	bx.PutU32At(dp.buf, prologueSize+4, v)
}

func (dp *DataPage) bitmapOffset() int { return dataPageHeaderSize }
func (dp *DataPage) slotsOffset() int  { return dataPageHeaderSize + dp.bitmapSize }

func (dp *DataPage) bitSet(i int) bool {
	o := dp.bitmapOffset() + i/8
	return dp.buf[o]&(1<<uint(i%8)) != 0
}

func (dp *DataPage) setBit(i int) {
	o := dp.bitmapOffset() + i/8
	dp.buf[o] |= 1 << uint(i%8)
}

func (dp *DataPage) clearBit(i int) {
	o := dp.bitmapOffset() + i/8
	dp.buf[o] &^= 1 << uint(i%8)
}

// firstClearBit returns the lowest slot index whose bitmap bit is clear.
func (dp *DataPage) firstClearBit() (int, bool) {
	for i := 0; i < dp.numRecordsPerPage; i++ {
		if !dp.bitSet(i) {
			return i, true
		}
	}
	return -1, false
}

func (dp *DataPage) slotBytes(i int) []byte {
	o := dp.slotsOffset() + i*dp.recordSize
	return dp.buf[o : o+dp.recordSize]
}

// ReadSlot returns a copy of the record bytes for a given slot.
func (dp *DataPage) ReadSlot(slot int) ([]byte, bool) {
	if slot < 0 || slot >= dp.numRecordsPerPage || !dp.bitSet(slot) {
		return nil, false
	}
	out := make([]byte, dp.recordSize)
	copy(out, dp.slotBytes(slot))
	return out, true
}

// WriteSlot copies data into a slot and marks its bitmap bit set.
func (dp *DataPage) WriteSlot(slot int, data []byte) {
	copy(dp.slotBytes(slot), data)
	dp.setBit(slot)
}

// ClearSlot clears a slot's bitmap bit without zeroing its bytes (matching
// the spec: deletion only updates occupancy bookkeeping).
func (dp *DataPage) ClearSlot(slot int) {
	dp.clearBit(slot)
}

// IsOccupied reports whether a slot's bitmap bit is set.
func (dp *DataPage) IsOccupied(slot int) bool {
	if slot < 0 || slot >= dp.numRecordsPerPage {
		return false
	}
	return dp.bitSet(slot)
}
