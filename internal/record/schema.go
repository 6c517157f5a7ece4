// Package record defines the fixed-layout column, table and index metadata
// shared by the catalog, database engine and executors, along with the
// fixed-width tuple codec built from that metadata.
package record

import (
	"errors"
	"fmt"
	"math"

	"github.com/tuannm99/novacore/internal/alias/bx"
)

// ColumnType is the fixed set of value types a column can hold. Every
// instance is stored at a fixed byte width, never length-prefixed.
type ColumnType uint8

const (
	ColInt ColumnType = iota
	ColFloat
	ColString
)

func (t ColumnType) String() string {
	switch t {
	case ColInt:
		return "INT"
	case ColFloat:
		return "FLOAT"
	case ColString:
		return "STRING"
	default:
		return "UNKNOWN"
	}
}

// Width returns the fixed on-disk byte width for a scalar of this type.
// For ColString, colLen is the column's declared length and IS the width.
func (t ColumnType) Width(colLen int) int {
	switch t {
	case ColInt:
		return 4
	case ColFloat:
		return 8
	case ColString:
		return colLen
	default:
		return 0
	}
}

// Column is one fixed-layout field of a table, concatenated by Offset into
// every row of that table.
type Column struct {
	TabName  string
	Name     string
	Type     ColumnType
	Len      int // declared width; for INT/FLOAT this equals Type.Width(0)
	Offset   int // byte offset within the fixed-width row
	HasIndex bool
}

// Index is the metadata for one secondary index: the indexed columns in
// declaration order, and their combined packed-key width.
type Index struct {
	Name      string
	TabName   string
	Cols      []string
	ColTotLen int
	ColNum    int
}

// NewIndex computes ColTotLen/ColNum from t's columns for the named index
// columns, in the given declaration order.
func NewIndex(t *Table, name string, cols []string) (Index, error) {
	idx := Index{Name: name, TabName: t.Name, Cols: cols, ColNum: len(cols)}
	for _, c := range cols {
		col, ok := t.ColByName(c)
		if !ok {
			return Index{}, fmt.Errorf("%w: %s", ErrUnknownColumn, c)
		}
		idx.ColTotLen += col.Len
	}
	return idx, nil
}

// Table is the full metadata for one heap-backed relation.
type Table struct {
	Name    string
	Cols    []Column
	Indexes []Index
}

// RowSize is the fixed width of one encoded row for this table: the sum of
// every column's width.
func (t *Table) RowSize() int {
	size := 0
	for _, c := range t.Cols {
		size += c.Len
	}
	return size
}

// ColByName finds a column by name, or ok=false if it isn't part of the table.
func (t *Table) ColByName(name string) (Column, bool) {
	for _, c := range t.Cols {
		if c.Name == name {
			return c, true
		}
	}
	return Column{}, false
}

// ErrValueTooLong is returned when a STRING value exceeds its column's
// declared length; fixed tuples never silently truncate.
var ErrValueTooLong = errors.New("record: value exceeds declared column length")

// ErrUnknownColumn is returned by SetClause application when a column name
// doesn't exist on the target table.
var ErrUnknownColumn = errors.New("record: unknown column")

// EncodeRow packs values into a fixed-width row buffer laid out by the
// table's column offsets. values must align 1:1 with t.Cols in order.
func EncodeRow(t *Table, values []any) ([]byte, error) {
	if len(values) != len(t.Cols) {
		return nil, fmt.Errorf("record: expected %d values, got %d", len(t.Cols), len(values))
	}
	buf := make([]byte, t.RowSize())
	for i, col := range t.Cols {
		if err := encodeValue(buf[col.Offset:col.Offset+col.Len], col, values[i]); err != nil {
			return nil, err
		}
	}
	return buf, nil
}

// DecodeRow unpacks a fixed-width row buffer into one value per column, in
// table column order.
func DecodeRow(t *Table, buf []byte) ([]any, error) {
	if len(buf) != t.RowSize() {
		return nil, fmt.Errorf("record: row buffer is %d bytes, expected %d", len(buf), t.RowSize())
	}
	out := make([]any, len(t.Cols))
	for i, col := range t.Cols {
		out[i] = decodeValue(buf[col.Offset:col.Offset+col.Len], col)
	}
	return out, nil
}

// EncodeColumnValue encodes v into dst according to col's type and width.
// dst must be exactly col.Len bytes. Used by executors (e.g. Update) that
// overwrite a single column slice of an already-encoded row in place.
func EncodeColumnValue(dst []byte, col Column, v any) error {
	return encodeValue(dst, col, v)
}

func encodeValue(dst []byte, col Column, v any) error {
	switch col.Type {
	case ColInt:
		n, err := toInt32(v)
		if err != nil {
			return err
		}
		bx.PutU32(dst, uint32(n))
		return nil
	case ColFloat:
		f, err := toFloat64(v)
		if err != nil {
			return err
		}
		bx.PutU64(dst, math.Float64bits(f))
		return nil
	case ColString:
		s, ok := v.(string)
		if !ok {
			return fmt.Errorf("record: column %s expects string, got %T", col.Name, v)
		}
		if len(s) > col.Len {
			return fmt.Errorf("%w: column %s len %d > %d", ErrValueTooLong, col.Name, len(s), col.Len)
		}
		for i := range dst {
			dst[i] = 0
		}
		copy(dst, s)
		return nil
	default:
		return fmt.Errorf("record: unknown column type %d", col.Type)
	}
}

func decodeValue(src []byte, col Column) any {
	switch col.Type {
	case ColInt:
		return int32(bx.U32(src))
	case ColFloat:
		return math.Float64frombits(bx.U64(src))
	case ColString:
		n := 0
		for n < len(src) && src[n] != 0 {
			n++
		}
		return string(src[:n])
	default:
		return nil
	}
}

func toInt32(v any) (int32, error) {
	switch n := v.(type) {
	case int32:
		return n, nil
	case int:
		return int32(n), nil
	case int64:
		return int32(n), nil
	default:
		return 0, fmt.Errorf("record: expected int value, got %T", v)
	}
}

func toFloat64(v any) (float64, error) {
	switch n := v.(type) {
	case float64:
		return n, nil
	case float32:
		return float64(n), nil
	case int:
		return float64(n), nil
	default:
		return 0, fmt.Errorf("record: expected float value, got %T", v)
	}
}

// PackIndexKey concatenates the values of an index's columns, in the
// index's declared order, into one contiguous key buffer. Both InsertEntry
// and DeleteEntry must build keys this way: using any other slice (e.g.
// only the leading column) corrupts multi-column indexes.
func PackIndexKey(t *Table, idx Index, row []any) ([]byte, error) {
	buf := make([]byte, 0, idx.ColTotLen)
	for _, name := range idx.Cols {
		col, ok := t.ColByName(name)
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrUnknownColumn, name)
		}
		pos := colPosition(t, name)
		chunk := make([]byte, col.Len)
		if err := encodeValue(chunk, col, row[pos]); err != nil {
			return nil, err
		}
		buf = append(buf, chunk...)
	}
	return buf, nil
}

func colPosition(t *Table, name string) int {
	for i, c := range t.Cols {
		if c.Name == name {
			return i
		}
	}
	return -1
}
