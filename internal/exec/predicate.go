package exec

import (
	"fmt"

	"github.com/tuannm99/novacore/internal/record"
)

// Op is a scalar comparison operator over one column and a literal value.
type Op int

const (
	EQ Op = iota
	NE
	LT
	LE
	GT
	GE
)

// Swap returns the operator that holds when the two operands of a
// comparison are exchanged: (col op value) becomes (value swapped-op col).
// A Condition always holds the column on the left, and no executor in this
// package calls Swap.
func (o Op) Swap() Op {
	switch o {
	case LT:
		return GT
	case LE:
		return GE
	case GT:
		return LT
	case GE:
		return LE
	default: // EQ, NE are self-symmetric
		return o
	}
}

// Condition is a single `column op value` predicate term. A SeqScan or
// IndexScan's full predicate is the conjunction (logical AND) of its
// Conditions slice.
type Condition struct {
	Col   string
	Op    Op
	Value any
}

// evalAll reports whether row (already decoded via record.DecodeRow) satisfies
// every condition.
func evalAll(t *record.Table, row []any, conds []Condition) (bool, error) {
	for _, c := range conds {
		ok, err := evalOne(t, row, c)
		if err != nil {
			return false, err
		}
		if !ok {
			return false, nil
		}
	}
	return true, nil
}

func evalOne(t *record.Table, row []any, c Condition) (bool, error) {
	col, ok := t.ColByName(c.Col)
	if !ok {
		return false, fmt.Errorf("exec: unknown column %q in predicate", c.Col)
	}
	idx := -1
	for i, tc := range t.Cols {
		if tc.Name == col.Name {
			idx = i
			break
		}
	}
	cmp, err := compare(row[idx], c.Value)
	if err != nil {
		return false, err
	}
	switch c.Op {
	case EQ:
		return cmp == 0, nil
	case NE:
		return cmp != 0, nil
	case LT:
		return cmp < 0, nil
	case LE:
		return cmp <= 0, nil
	case GT:
		return cmp > 0, nil
	case GE:
		return cmp >= 0, nil
	default:
		return false, fmt.Errorf("exec: unknown operator %d", c.Op)
	}
}

// compare returns <0, 0, >0 comparing a decoded column value against a
// literal. Both sides must resolve to the same underlying kind
// (int32/int, float64, or string).
func compare(a, b any) (int, error) {
	switch av := a.(type) {
	case int32:
		bv, err := asInt32(b)
		if err != nil {
			return 0, err
		}
		switch {
		case av < bv:
			return -1, nil
		case av > bv:
			return 1, nil
		default:
			return 0, nil
		}
	case float64:
		bv, err := asFloat64(b)
		if err != nil {
			return 0, err
		}
		switch {
		case av < bv:
			return -1, nil
		case av > bv:
			return 1, nil
		default:
			return 0, nil
		}
	case string:
		bv, ok := b.(string)
		if !ok {
			return 0, fmt.Errorf("exec: cannot compare string column against %T", b)
		}
		switch {
		case av < bv:
			return -1, nil
		case av > bv:
			return 1, nil
		default:
			return 0, nil
		}
	default:
		return 0, fmt.Errorf("exec: unsupported column value type %T", a)
	}
}

func asInt32(v any) (int32, error) {
	switch n := v.(type) {
	case int32:
		return n, nil
	case int:
		return int32(n), nil
	case int64:
		return int32(n), nil
	default:
		return 0, fmt.Errorf("exec: cannot compare int column against %T", v)
	}
}

func asFloat64(v any) (float64, error) {
	switch n := v.(type) {
	case float64:
		return n, nil
	case float32:
		return float64(n), nil
	case int:
		return float64(n), nil
	default:
		return 0, fmt.Errorf("exec: cannot compare float column against %T", v)
	}
}
