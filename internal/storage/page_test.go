package storage

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	defaultPageID = uint32(0)

	slot1Data = []byte("data string of slot 1")
	slot2Data = []byte("data string of slot 2")
	longData  = []byte("data string of slot longggggggggg" +
		" long longggggggggg long longggggggggg" +
		" long longggggggggg long longggggggggg" +
		" long longggggggggg long longggggggggg" +
		" long longggggggggg long longggggggggg" +
		" long longggggggggg long longggggggggg" +
		" long longggggggggg long longggggggggg" +
		" long longggggggggg long longggggggggg" +
		" long longggggggggg long longggggggggg" +
		" long longggggggggg long longggggggggg" +
		" long longggggggggg long longggggggggg" +
		" long longggggggggg long longggggggggg",
	)
)

func newPage(t *testing.T) *Page {
	buf := make([]byte, PageSize)

	p := NewPage(buf, defaultPageID)

	// default after init page
	assert.Equal(t, PageSize, p.Upper())
	assert.Equal(t, HeaderSize, p.Lower())
	assert.Equal(t, 0, p.NumSlots())
	assert.Equal(t, defaultPageID, p.PageID())

	var slot int
	var err error

	slot, err = p.InsertTuple(slot1Data)
	require.NoError(t, err)
	assert.Equal(t, 0, slot)

	slot, err = p.InsertTuple(slot2Data)
	require.NoError(t, err)
	assert.Equal(t, 1, slot)

	// after inserting two tuples
	assert.Equal(t, 2, p.NumSlots())

	return p
}

func TestCRUDTuple(t *testing.T) {
	p := newPage(t)
	byteData, err := p.ReadTuple(0)
	require.NoError(t, err)
	assert.Equal(t, slot1Data, byteData)

	// bad slot
	_, err = p.ReadTuple(-1)
	require.ErrorIs(t, err, ErrBadSlot)
	_, err = p.ReadTuple(2)
	require.ErrorIs(t, err, ErrBadSlot)

	// deleted
	require.NoError(t, p.DeleteTuple(0))
	_, err = p.ReadTuple(0)
	require.ErrorIs(t, err, ErrBadSlot)

	// moved -> update slot 1, it does not have enough room in place -> moves to slot 2
	require.NoError(t, p.UpdateTuple(1, longData))

	byteData, err = p.ReadTuple(2)
	require.NoError(t, err)
	byteData2, err := p.ReadTuple(1) // redirected slot returns empty, not the moved data
	require.Error(t, err)
	_ = byteData2
	assert.Equal(t, longData, byteData)
}

func TestInsertTupleNoSpace(t *testing.T) {
	buf := make([]byte, PageSize)
	p := NewPage(buf, defaultPageID)

	big := make([]byte, PageSize)
	_, err := p.InsertTuple(big)
	require.ErrorIs(t, err, ErrNoSpace)
}
