package storage

import (
	"errors"

	"github.com/tuannm99/novacore/internal/alias/bx"
)

var (
	ErrBadSlot = errors.New("storage: slot is empty or out of range")
	ErrNoSpace = errors.New("storage: page has no free space for tuple")
)

// +------------------+ 0
// | PageHeaderData   |
// | LinePointers[]   | <-- pd_lower
// +------------------+
// |                  |
// |   Free space     |
// |                  |
// +------------------+ <-- pd_upper
// |  Tuple Data      |
// |  (grows down)    |
// +------------------+ <-- pd_special
// |  Special Space   |
// |  (fixed size)    |
// +------------------+ Block/Page Size (8192)
//
// Page is the variable-length, PostgreSQL-style slotted page used by the
// B+-tree index. Heap tuples use a different, fixed-width page format (see
// package heap) since this layout's line-pointer indirection is overhead a
// fixed-slot-per-page record manager doesn't need.
type Page struct {
	Buf []byte
}

func NewPage(buf []byte, pageID uint32) *Page {
	p := &Page{Buf: buf}
	p.init(pageID)
	return p
}

// Reset reformats this page in place as an empty slotted page for pageID,
// discarding any existing contents. Callers that hand a page back to a
// fresh logical use (e.g. a B+-tree reusing a freed page as a new node)
// call this directly.
func (p *Page) Reset(pageID uint32) {
	p.init(pageID)
}

func (p *Page) init(pageID uint32) {
	for i := range p.Buf {
		p.Buf[i] = 0
	}
	bx.PutU16At(p.Buf, 0, 0)          // flags
	bx.PutU32At(p.Buf, 2, pageID)     // page_id
	bx.PutU16At(p.Buf, 6, HeaderSize) // pd_lower
	bx.PutU16At(p.Buf, 8, PageSize)   // pd_upper
	bx.PutU16At(p.Buf, 10, PageSize)  // pd_special (unused yet)
}

func (p *Page) PageID() uint32 {
	return bx.U32At(p.Buf, 2)
}

func (p *Page) Lower() int {
	return int(bx.U16At(p.Buf, 6))
}

func (p *Page) SetLower(v int) {
	bx.PutU16At(p.Buf, 6, uint16(v))
}

func (p *Page) Upper() int {
	return int(bx.U16At(p.Buf, 8))
}

func (p *Page) SetUpper(v int) {
	bx.PutU16At(p.Buf, 8, uint16(v))
}

func (p *Page) NumSlots() int {
	return (p.Lower() - HeaderSize) / SlotSize
}

func (p *Page) slotOff(idx int) int {
	return HeaderSize + idx*SlotSize
}

// GetSlot returns (offset, length, flags). flags bit0 = deleted, bit1 = moved/redirected.
func (p *Page) GetSlot(i int) (offset, length, flags int) {
	o := p.slotOff(i)
	return int(bx.U16At(p.Buf, o)),
		int(bx.U16At(p.Buf, o+2)),
		int(bx.U16At(p.Buf, o+4))
}

func (p *Page) PutSlot(idx, offset, length, flags int) {
	o := p.slotOff(idx)
	bx.PutU16At(p.Buf, o, uint16(offset))
	bx.PutU16At(p.Buf, o+2, uint16(length))
	bx.PutU16At(p.Buf, o+4, uint16(flags))
}

func (p *Page) appendSlot(offset, length, flags int) int {
	i := p.NumSlots()
	p.PutSlot(i, offset, length, flags)
	p.SetLower(p.Lower() + SlotSize)
	return i
}

func (p *Page) IsUninitialized() bool {
	return bx.U16At(p.Buf, 6) == 0 && bx.U16At(p.Buf, 8) == 0
}

func (p *Page) InsertTuple(tup []byte) (int, error) {
	need := len(tup) + SlotSize
	if p.Upper()-p.Lower() < need {
		return -1, ErrNoSpace
	}
	u := p.Upper() - len(tup)
	copy(p.Buf[u:], tup)
	p.SetUpper(u)
	return p.appendSlot(u, len(tup), 0), nil
}

func (p *Page) ReadTuple(slot int) ([]byte, error) {
	if slot < 0 || slot >= p.NumSlots() {
		return nil, ErrBadSlot
	}
	offset, length, flags := p.GetSlot(slot)
	if flags != 0 || offset == 0 || length == 0 {
		return nil, ErrBadSlot
	}
	return p.Buf[offset : offset+length], nil
}

func (p *Page) UpdateTuple(slot int, newTuple []byte) error {
	if slot < 0 || slot >= p.NumSlots() {
		return ErrBadSlot
	}
	offset, length, flags := p.GetSlot(slot)
	if flags != 0 || offset == 0 || length == 0 {
		return ErrBadSlot
	}
	if len(newTuple) <= length {
		copy(p.Buf[offset:], newTuple)
		p.PutSlot(slot, offset, len(newTuple), 0)
		return nil
	}
	if _, err := p.InsertTuple(newTuple); err != nil {
		return err
	}
	p.PutSlot(slot, 0, 0, 2)
	return nil
}

func (p *Page) DeleteTuple(slot int) error {
	if slot < 0 || slot >= p.NumSlots() {
		return ErrBadSlot
	}
	p.PutSlot(slot, 0, 0, 1)
	return nil
}
