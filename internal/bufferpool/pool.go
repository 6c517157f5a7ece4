package bufferpool

import (
	"errors"
	"log/slog"
	"sync"

	"github.com/tuannm99/novacore/internal/storage"
)

var (
	logDebugPrefix  = "bufferpool: "
	DefaultCapacity = 128

	// ErrNoFreeFrame is returned when no unpinned frame is available for replacement.
	ErrNoFreeFrame = errors.New("bufferpool: no free frame available (all pinned)")

	// ErrPagePinned is returned when trying to delete a pinned page.
	ErrPagePinned = errors.New("bufferpool: page is pinned")
)

// Manager is the narrow interface heap tables and btree indexes depend on:
// fetch-and-pin, unpin, flush everything. Pool satisfies it directly; it's
// kept separate from Pool's full method set so callers that only ever touch
// one file don't need to know about NewPage/DeletePage/FlushPage.
type Manager interface {
	GetPage(pageID uint32) (*storage.Page, error)
	Unpin(page *storage.Page, dirty bool) error
	FlushAll() error
}

// Frame holds a single page and its metadata inside the buffer pool.
// pin_count > 0 means the frame can never be chosen as an eviction victim.
type Frame struct {
	PageID uint32
	Page   *storage.Page
	Dirty  bool
	Pin    int32
}

var _ Manager = (*Pool)(nil)

// Pool is a fixed-size buffer pool bound to one FileSet (one on-disk file,
// which plays the role of spec's "fd"). Every page this pool hands out is
// therefore implicitly identified by (this pool, page_no) — the pair the
// spec calls PageId.
//
// Replacement policy is strict LRU: the frame whose pin count has been at
// zero the longest is evicted first. Frames still pinned are never victims.
type Pool struct {
	sm *storage.StorageManager
	fs storage.FileSet

	mu        sync.Mutex
	frames    []*Frame       // fixed-size slice, len == capacity, nil == free slot
	pageTable map[uint32]int // PageID -> index in frames
	capacity  int
	repl      *lruReplacer
}

// NewPool creates a new buffer pool with the given capacity.
// If capacity <= 0, a small default capacity is used.
func NewPool(sm *storage.StorageManager, fs storage.FileSet, capacity int) *Pool {
	if capacity <= 0 {
		capacity = 16
	}
	return &Pool{
		sm:        sm,
		fs:        fs,
		frames:    make([]*Frame, capacity),
		pageTable: make(map[uint32]int),
		capacity:  capacity,
		repl:      newLRUReplacer(),
	}
}

// GetPage is an alias for FetchPage, satisfying Manager.
func (p *Pool) GetPage(pageID uint32) (*storage.Page, error) {
	return p.FetchPage(pageID)
}

// FetchPage returns a page from the buffer pool, pinning it. If the page is
// not resident it is loaded from disk, evicting an LRU victim if the pool is
// full. Returns ErrNoFreeFrame if every frame is pinned.
func (p *Pool) FetchPage(pageID uint32) (*storage.Page, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	slog.Debug(logDebugPrefix+"FetchPage called", "pageID", pageID)

	if idx, ok := p.pageTable[pageID]; ok {
		f := p.frames[idx]
		if f == nil {
			slog.Error(logDebugPrefix+"pageTable points to nil frame", "pageID", pageID, "frameIdx", idx)
			delete(p.pageTable, pageID)
		} else {
			if f.Pin == 0 {
				p.repl.pin(idx)
			}
			f.Pin++
			slog.Debug(logDebugPrefix+"found page in buffer", "pageID", pageID, "frameIdx", idx, "framePin", f.Pin)
			return f.Page, nil
		}
	}

	if idx, ok := p.freeFrameLocked(); ok {
		page, err := p.sm.LoadPage(p.fs, pageID)
		if err != nil {
			return nil, err
		}
		f := &Frame{PageID: pageID, Page: page, Dirty: false, Pin: 1}
		p.frames[idx] = f
		p.pageTable[pageID] = idx
		p.repl.pin(idx)

		slog.Debug(logDebugPrefix+"created new frame", "pageID", pageID, "frameIdx", idx, "framePin", f.Pin)
		return page, nil
	}

	victimIdx, ok := p.repl.victim()
	if !ok {
		slog.Debug(logDebugPrefix + "no evictable victim, pool exhausted")
		return nil, ErrNoFreeFrame
	}

	victim := p.frames[victimIdx]
	slog.Debug(logDebugPrefix+"selected LRU victim frame", "victimPageID", victim.PageID, "frameIdx", victimIdx, "dirty", victim.Dirty)

	if victim.Dirty {
		slog.Debug(logDebugPrefix+"flushing dirty victim page", "victimPageID", victim.PageID)
		if err := p.sm.SavePage(p.fs, victim.PageID, victim.Page); err != nil {
			p.repl.unpin(victimIdx)
			return nil, err
		}
		victim.Dirty = false
	}

	delete(p.pageTable, victim.PageID)

	page, err := p.sm.LoadPage(p.fs, pageID)
	if err != nil {
		p.repl.unpin(victimIdx)
		return nil, err
	}

	victim.PageID = pageID
	victim.Page = page
	victim.Dirty = false
	victim.Pin = 1

	p.pageTable[pageID] = victimIdx
	p.repl.pin(victimIdx)

	slog.Debug(logDebugPrefix+"reused victim frame for new page", "pageID", pageID, "frameIdx", victimIdx, "framePin", victim.Pin)
	return page, nil
}

// NewPage allocates a fresh page on disk, binds it to a pinned frame
// (evicting an LRU victim if necessary) and returns it dirty. The page is
// formatted by storage.NewPage as an empty slotted page: its header fields
// are set and the rest of the buffer is zero, so it is not all-zero.
func (p *Pool) NewPage() (uint32, *storage.Page, error) {
	pageID, err := p.sm.AllocatePage(p.fs)
	if err != nil {
		return 0, nil, err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	page := storage.NewPage(make([]byte, storage.PageSize), pageID)

	if idx, ok := p.freeFrameLocked(); ok {
		p.frames[idx] = &Frame{PageID: pageID, Page: page, Dirty: true, Pin: 1}
		p.pageTable[pageID] = idx
		p.repl.pin(idx)
		slog.Debug(logDebugPrefix+"NewPage bound to free frame", "pageID", pageID, "frameIdx", idx)
		return pageID, page, nil
	}

	victimIdx, ok := p.repl.victim()
	if !ok {
		return 0, nil, ErrNoFreeFrame
	}
	victim := p.frames[victimIdx]
	if victim.Dirty {
		if err := p.sm.SavePage(p.fs, victim.PageID, victim.Page); err != nil {
			p.repl.unpin(victimIdx)
			return 0, nil, err
		}
	}
	delete(p.pageTable, victim.PageID)

	victim.PageID = pageID
	victim.Page = page
	victim.Dirty = true
	victim.Pin = 1
	p.pageTable[pageID] = victimIdx
	p.repl.pin(victimIdx)

	slog.Debug(logDebugPrefix+"NewPage evicted victim for new page", "pageID", pageID, "frameIdx", victimIdx)
	return pageID, page, nil
}

// freeFrameLocked returns the index of the first nil (unused) frame slot.
// Caller must hold p.mu.
func (p *Pool) freeFrameLocked() (int, bool) {
	for i, f := range p.frames {
		if f == nil {
			return i, true
		}
	}
	return 0, false
}

// Unpin is UnpinPage for the frame holding page, satisfying Manager. The
// frame is found by page identity, so pages whose own header no longer
// carries their page id (heap pages overwrite it) are still unpinned.
func (p *Pool) Unpin(page *storage.Page, dirty bool) error {
	if page == nil {
		return nil
	}
	pageID := page.PageID()
	p.mu.Lock()
	for _, f := range p.frames {
		if f != nil && f.Page == page {
			pageID = f.PageID
			break
		}
	}
	p.mu.Unlock()
	_, err := p.UnpinPage(pageID, dirty)
	return err
}

// UnpinPage decrements a page's pin count. markDirty=true sets the dirty
// bit; markDirty=false must never clear an already-dirty frame. Returns
// false if the page is unmapped or already at pin count zero.
func (p *Pool) UnpinPage(pageID uint32, markDirty bool) (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	idx, ok := p.pageTable[pageID]
	if !ok {
		slog.Debug(logDebugPrefix+"UnpinPage: page not in pool", "pageID", pageID)
		return false, nil
	}
	f := p.frames[idx]
	if f == nil {
		delete(p.pageTable, pageID)
		return false, nil
	}
	if f.Pin == 0 {
		return false, nil
	}

	if markDirty {
		f.Dirty = true
	}

	f.Pin--
	if f.Pin == 0 {
		p.repl.unpin(idx)
	}

	slog.Debug(logDebugPrefix+"UnpinPage", "pageID", pageID, "frameIdx", idx, "dirty", f.Dirty, "newPin", f.Pin)
	return true, nil
}

// FlushPage writes a page's current buffer to disk and clears its dirty
// bit. Returns false only if the page is not resident in the pool.
func (p *Pool) FlushPage(pageID uint32) (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	idx, ok := p.pageTable[pageID]
	if !ok {
		return false, nil
	}
	f := p.frames[idx]
	if f == nil {
		delete(p.pageTable, pageID)
		return false, nil
	}
	if err := p.sm.SavePage(p.fs, f.PageID, f.Page); err != nil {
		return false, err
	}
	f.Dirty = false
	return true, nil
}

// DeletePage removes a page from the pool and deallocates it on disk.
// Idempotent: deleting an unmapped page succeeds. Fails if the page is
// still pinned.
func (p *Pool) DeletePage(pageID uint32) (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	idx, ok := p.pageTable[pageID]
	if !ok {
		return true, nil
	}
	f := p.frames[idx]
	if f == nil {
		delete(p.pageTable, pageID)
		return true, nil
	}
	if f.Pin != 0 {
		return false, ErrPagePinned
	}

	if err := p.sm.DeallocatePage(p.fs, pageID); err != nil {
		return false, err
	}

	delete(p.pageTable, pageID)
	p.repl.remove(idx)
	p.frames[idx] = nil
	return true, nil
}

// FlushAll flushes every dirty frame belonging to this pool's file to disk.
func (p *Pool) FlushAll() error {
	return p.FlushAllPages()
}

// FlushAllPages flushes every dirty frame belonging to this pool's file.
func (p *Pool) FlushAllPages() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	slog.Debug(logDebugPrefix + "FlushAllPages started")
	for idx, f := range p.frames {
		if f == nil || !f.Dirty {
			continue
		}
		slog.Debug(logDebugPrefix+"flushing frame", "pageID", f.PageID, "frameIdx", idx)
		if err := p.sm.SavePage(p.fs, f.PageID, f.Page); err != nil {
			return err
		}
		f.Dirty = false
	}
	slog.Debug(logDebugPrefix + "FlushAllPages completed")
	return nil
}
