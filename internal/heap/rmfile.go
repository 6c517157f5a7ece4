package heap

import (
	"errors"

	"github.com/tuannm99/novacore/internal/bufferpool"
	"github.com/tuannm99/novacore/internal/storage"
)

var (
	ErrRecordSizeMismatch = errors.New("heap: record does not match the file's fixed record width")
	ErrRecordNotFound      = errors.New("heap: no record at that rid")
	ErrSlotOccupied        = errors.New("heap: rid already holds a record")
	ErrFreeChainCorrupt    = errors.New("heap: free-page chain points at a page with no free slot")
)

// RmFile is the Record Manager's handle on one heap-organized table file.
// Page 0 is the file header; pages 1..NumPages-1 hold fixed-width records
// addressed by Rid{PageID, Slot}. Free space is tracked by a singly linked
// chain of data pages that have at least one empty slot, rooted at the file
// header's FirstFreePageNo.
type RmFile struct {
	sm *storage.StorageManager
	fs storage.FileSet
	bp *bufferpool.Pool

	recordSize        int
	numRecordsPerPage int
	bitmapSize        int
}

// CreateFile formats a brand-new heap file for rows of recordSize bytes.
func CreateFile(sm *storage.StorageManager, fs storage.FileSet, capacity, recordSize int) (*RmFile, error) {
	bp := bufferpool.NewPool(sm, fs, capacity)

	pageNo, page, err := bp.NewPage()
	if err != nil {
		return nil, err
	}
	if pageNo != 0 {
		// A brand-new file's first allocated page must be the header page.
		return nil, errors.New("heap: CreateFile called on a non-empty file")
	}
	fh := InitFileHeader(page.Buf, recordSize)
	if err := bp.Unpin(page, true); err != nil {
		return nil, err
	}

	return &RmFile{
		sm:                sm,
		fs:                fs,
		bp:                bp,
		recordSize:        recordSize,
		numRecordsPerPage: int(fh.NumRecordsPerPage()),
		bitmapSize:        int(fh.BitmapSize()),
	}, nil
}

// OpenFile attaches to an existing heap file, reading its layout from the
// on-disk file header.
func OpenFile(sm *storage.StorageManager, fs storage.FileSet, capacity int) (*RmFile, error) {
	bp := bufferpool.NewPool(sm, fs, capacity)

	page, err := bp.FetchPage(0)
	if err != nil {
		return nil, err
	}
	fh := NewFileHeader(page.Buf)
	rf := &RmFile{
		sm:                sm,
		fs:                fs,
		bp:                bp,
		recordSize:        int(fh.RecordSize()),
		numRecordsPerPage: int(fh.NumRecordsPerPage()),
		bitmapSize:        int(fh.BitmapSize()),
	}
	if err := bp.Unpin(page, false); err != nil {
		return nil, err
	}
	return rf, nil
}

// RecordSize is the fixed width, in bytes, of every row this file stores.
func (rf *RmFile) RecordSize() int { return rf.recordSize }

func (rf *RmFile) dataPage(page *storage.Page) *DataPage {
	return NewDataPage(page.Buf, rf.numRecordsPerPage, rf.recordSize, rf.bitmapSize)
}

// GetRecord returns a copy of the record stored at rid.
func (rf *RmFile) GetRecord(rid Rid) ([]byte, error) {
	page, err := rf.bp.FetchPage(rid.PageID)
	if err != nil {
		return nil, err
	}
	defer rf.bp.Unpin(page, false)

	dp := rf.dataPage(page)
	data, ok := dp.ReadSlot(int(rid.Slot))
	if !ok {
		return nil, ErrRecordNotFound
	}
	return data, nil
}

// InsertRecord stores data in the first free slot found via the file's free
// chain, allocating a new data page if the chain is empty.
func (rf *RmFile) InsertRecord(data []byte) (Rid, error) {
	if len(data) != rf.recordSize {
		return Rid{}, ErrRecordSizeMismatch
	}

	hdrPage, err := rf.bp.FetchPage(0)
	if err != nil {
		return Rid{}, err
	}
	fh := NewFileHeader(hdrPage.Buf)
	pageNo := fh.FirstFreePageNo()

	if pageNo == NoPage {
		newPageNo, newPage, err := rf.bp.NewPage()
		if err != nil {
			_, _ = rf.bp.UnpinPage(0, false)
			return Rid{}, err
		}
		InitDataPage(newPage.Buf, rf.numRecordsPerPage, rf.recordSize, rf.bitmapSize)
		fh.SetNumPages(fh.NumPages() + 1)
		fh.SetFirstFreePageNo(newPageNo)
		if err := rf.bp.Unpin(newPage, true); err != nil {
			return Rid{}, err
		}
		pageNo = newPageNo
	}
	if err := rf.bp.Unpin(hdrPage, true); err != nil {
		return Rid{}, err
	}

	page, err := rf.bp.FetchPage(pageNo)
	if err != nil {
		return Rid{}, err
	}
	dp := rf.dataPage(page)
	slot, ok := dp.firstClearBit()
	if !ok {
		_ = rf.bp.Unpin(page, false)
		return Rid{}, ErrFreeChainCorrupt
	}
	dp.WriteSlot(slot, data)
	dp.SetNumRecords(dp.NumRecords() + 1)
	becameFull := dp.NumRecords() == rf.numRecordsPerPage
	if err := rf.bp.Unpin(page, true); err != nil {
		return Rid{}, err
	}

	if becameFull {
		if err := rf.removeFromFreeChain(pageNo); err != nil {
			return Rid{}, err
		}
	}
	return Rid{PageID: pageNo, Slot: uint16(slot)}, nil
}

// InsertRecordAt writes data into a specific, currently-empty slot. Used by
// transaction rollback to undo a DeleteRecord by restoring its before-image
// at the exact rid it was deleted from.
func (rf *RmFile) InsertRecordAt(rid Rid, data []byte) error {
	if len(data) != rf.recordSize {
		return ErrRecordSizeMismatch
	}
	page, err := rf.bp.FetchPage(rid.PageID)
	if err != nil {
		return err
	}
	dp := rf.dataPage(page)
	if dp.IsOccupied(int(rid.Slot)) {
		_ = rf.bp.Unpin(page, false)
		return ErrSlotOccupied
	}
	dp.WriteSlot(int(rid.Slot), data)
	dp.SetNumRecords(dp.NumRecords() + 1)
	becameFull := dp.NumRecords() == rf.numRecordsPerPage
	if err := rf.bp.Unpin(page, true); err != nil {
		return err
	}
	if becameFull {
		return rf.removeFromFreeChain(rid.PageID)
	}
	return nil
}

// DeleteRecord clears the slot at rid. A page that was completely full
// before the delete rejoins the free chain.
func (rf *RmFile) DeleteRecord(rid Rid) error {
	page, err := rf.bp.FetchPage(rid.PageID)
	if err != nil {
		return err
	}
	dp := rf.dataPage(page)
	if !dp.IsOccupied(int(rid.Slot)) {
		_ = rf.bp.Unpin(page, false)
		return ErrRecordNotFound
	}
	wasFull := dp.NumRecords() == rf.numRecordsPerPage
	dp.ClearSlot(int(rid.Slot))
	dp.SetNumRecords(dp.NumRecords() - 1)
	if err := rf.bp.Unpin(page, true); err != nil {
		return err
	}

	if wasFull {
		return rf.pushFreeChain(rid.PageID)
	}
	return nil
}

// UpdateRecord overwrites the record at rid in place. Rows are fixed-width,
// so an update never needs to move or relocate a slot.
func (rf *RmFile) UpdateRecord(rid Rid, data []byte) error {
	if len(data) != rf.recordSize {
		return ErrRecordSizeMismatch
	}
	page, err := rf.bp.FetchPage(rid.PageID)
	if err != nil {
		return err
	}
	dp := rf.dataPage(page)
	if !dp.IsOccupied(int(rid.Slot)) {
		_ = rf.bp.Unpin(page, false)
		return ErrRecordNotFound
	}
	dp.WriteSlot(int(rid.Slot), data)
	return rf.bp.Unpin(page, true)
}

// Close flushes every dirty page belonging to this file.
func (rf *RmFile) Close() error {
	return rf.bp.FlushAll()
}

// pushFreeChain makes pageID the new head of the free-page chain.
func (rf *RmFile) pushFreeChain(pageID uint32) error {
	hdrPage, err := rf.bp.FetchPage(0)
	if err != nil {
		return err
	}
	fh := NewFileHeader(hdrPage.Buf)

	page, err := rf.bp.FetchPage(pageID)
	if err != nil {
		_, _ = rf.bp.UnpinPage(0, false)
		return err
	}
	dp := rf.dataPage(page)
	dp.SetNextFreePageNo(fh.FirstFreePageNo())
	fh.SetFirstFreePageNo(pageID)

	if err := rf.bp.Unpin(page, true); err != nil {
		return err
	}
	return rf.bp.Unpin(hdrPage, true)
}

// removeFromFreeChain unlinks pageID from the free-page chain, wherever it
// sits. No-op if pageID isn't currently on the chain.
func (rf *RmFile) removeFromFreeChain(pageID uint32) error {
	hdrPage, err := rf.bp.FetchPage(0)
	if err != nil {
		return err
	}
	fh := NewFileHeader(hdrPage.Buf)
	cur := fh.FirstFreePageNo()

	if cur == pageID {
		page, err := rf.bp.FetchPage(pageID)
		if err != nil {
			_, _ = rf.bp.UnpinPage(0, false)
			return err
		}
		dp := rf.dataPage(page)
		fh.SetFirstFreePageNo(dp.NextFreePageNo())
		if err := rf.bp.Unpin(page, false); err != nil {
			return err
		}
		return rf.bp.Unpin(hdrPage, true)
	}
	if err := rf.bp.Unpin(hdrPage, false); err != nil {
		return err
	}

	prevID := cur
	for prevID != NoPage {
		prevPage, err := rf.bp.FetchPage(prevID)
		if err != nil {
			return err
		}
		prevDP := rf.dataPage(prevPage)
		next := prevDP.NextFreePageNo()
		if next == pageID {
			curPage, err := rf.bp.FetchPage(pageID)
			if err != nil {
				_ = rf.bp.Unpin(prevPage, false)
				return err
			}
			curDP := rf.dataPage(curPage)
			prevDP.SetNextFreePageNo(curDP.NextFreePageNo())
			if err := rf.bp.Unpin(curPage, false); err != nil {
				return err
			}
			return rf.bp.Unpin(prevPage, true)
		}
		if err := rf.bp.Unpin(prevPage, false); err != nil {
			return err
		}
		prevID = next
	}
	return nil
}

// RmScan is a forward cursor over every occupied slot in the file, visiting
// pages in increasing page number and slots in increasing index within a
// page.
type RmScan struct {
	rf       *RmFile
	pageNo   uint32
	numPages uint32
	slot     int
}

// NewScan opens a scan positioned before the first record.
func (rf *RmFile) NewScan() (*RmScan, error) {
	hdrPage, err := rf.bp.FetchPage(0)
	if err != nil {
		return nil, err
	}
	fh := NewFileHeader(hdrPage.Buf)
	numPages := fh.NumPages()
	if err := rf.bp.Unpin(hdrPage, false); err != nil {
		return nil, err
	}
	return &RmScan{rf: rf, pageNo: 1, numPages: numPages, slot: -1}, nil
}

// Next advances the cursor and returns the next occupied (rid, record).
// ok is false once every page has been exhausted.
func (s *RmScan) Next() (rid Rid, data []byte, ok bool, err error) {
	for s.pageNo < s.numPages {
		page, err := s.rf.bp.FetchPage(s.pageNo)
		if err != nil {
			return Rid{}, nil, false, err
		}
		dp := s.rf.dataPage(page)

		for s.slot+1 < s.rf.numRecordsPerPage {
			s.slot++
			if dp.IsOccupied(s.slot) {
				out, _ := dp.ReadSlot(s.slot)
				rid := Rid{PageID: s.pageNo, Slot: uint16(s.slot)}
				if err := s.rf.bp.Unpin(page, false); err != nil {
					return Rid{}, nil, false, err
				}
				return rid, out, true, nil
			}
		}
		if err := s.rf.bp.Unpin(page, false); err != nil {
			return Rid{}, nil, false, err
		}
		s.pageNo++
		s.slot = -1
	}
	return Rid{}, nil, false, nil
}

// IsEnd reports whether the scan has visited every page without finding a
// pending record. It does not advance the cursor.
func (s *RmScan) IsEnd() bool {
	return s.pageNo >= s.numPages
}
