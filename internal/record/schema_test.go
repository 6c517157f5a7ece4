package record

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleTable() *Table {
	cols := []Column{
		{TabName: "t", Name: "a", Type: ColInt, Len: 4, Offset: 0},
		{TabName: "t", Name: "b", Type: ColInt, Len: 4, Offset: 4, HasIndex: true},
		{TabName: "t", Name: "name", Type: ColString, Len: 16, Offset: 8},
		{TabName: "t", Name: "score", Type: ColFloat, Len: 8, Offset: 24},
	}
	return &Table{
		Name: "t",
		Cols: cols,
		Indexes: []Index{
			{TabName: "t", Cols: []string{"b"}, ColTotLen: 4, ColNum: 1},
		},
	}
}

func TestEncodeDecodeRow_RoundTrip(t *testing.T) {
	tbl := sampleTable()
	values := []any{int32(1), int32(10), "hello", 3.5}

	buf, err := EncodeRow(tbl, values)
	require.NoError(t, err)
	require.Len(t, buf, tbl.RowSize())

	got, err := DecodeRow(tbl, buf)
	require.NoError(t, err)
	assert.Equal(t, int32(1), got[0])
	assert.Equal(t, int32(10), got[1])
	assert.Equal(t, "hello", got[2])
	assert.Equal(t, 3.5, got[3])
}

func TestEncodeRow_StringTooLongRejected(t *testing.T) {
	tbl := sampleTable()
	values := []any{int32(1), int32(10), "this string is definitely too long for 16 bytes", 3.5}

	_, err := EncodeRow(tbl, values)
	require.ErrorIs(t, err, ErrValueTooLong)
}

func TestPackIndexKey_PackedComposite(t *testing.T) {
	cols := []Column{
		{TabName: "t2", Name: "x", Type: ColInt, Len: 4, Offset: 0, HasIndex: true},
		{TabName: "t2", Name: "y", Type: ColInt, Len: 4, Offset: 4, HasIndex: true},
	}
	tbl := &Table{Name: "t2", Cols: cols, Indexes: []Index{
		{TabName: "t2", Cols: []string{"x", "y"}, ColTotLen: 8, ColNum: 2},
	}}

	row := []any{int32(7), int32(9)}
	key, err := PackIndexKey(tbl, tbl.Indexes[0], row)
	require.NoError(t, err)
	require.Len(t, key, 8)

	otherRow := []any{int32(9), int32(7)}
	otherKey, err := PackIndexKey(tbl, tbl.Indexes[0], otherRow)
	require.NoError(t, err)
	assert.NotEqual(t, key, otherKey, "packed key must encode column order, not just set membership")
}
