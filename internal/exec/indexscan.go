package exec

import (
	"github.com/tuannm99/novacore/internal/heap"
	idx "github.com/tuannm99/novacore/internal/index"
	"github.com/tuannm99/novacore/internal/lock"
	"github.com/tuannm99/novacore/internal/record"
)

// IndexScan narrows a table scan using a secondary index before falling
// back to per-tuple predicate re-evaluation. Bound-narrowing is an
// optimisation, not a filter: every candidate is still checked against the
// full condition list.
type IndexScan struct {
	table   *record.Table
	index   record.Index
	handle  *idx.Handle
	rf      *heap.RmFile
	conds   []Condition
	locks   *lock.Manager
	txn     lock.Txn
	tableFd string

	candidates []heap.Rid
	pos        int
	cur        heap.Rid
	end        bool
}

func NewIndexScan(
	table *record.Table,
	index record.Index,
	handle *idx.Handle,
	rf *heap.RmFile,
	conds []Condition,
	locks *lock.Manager,
	txn lock.Txn,
	tableFd string,
) *IndexScan {
	return &IndexScan{
		table: table, index: index, handle: handle, rf: rf, conds: conds,
		locks: locks, txn: txn, tableFd: tableFd,
	}
}

func (s *IndexScan) BeginTuple() error {
	if _, err := s.locks.LockShared(s.txn, lock.TableID(s.tableFd)); err != nil {
		return err
	}

	candidates, err := s.selectCandidates()
	if err != nil {
		return err
	}
	s.candidates = candidates
	s.pos = -1
	return s.advance()
}

func (s *IndexScan) NextTuple() error { return s.advance() }

// selectCandidates narrows a single-column index using the first usable
// (op != NE) condition on its column. A composite index yields the whole
// leaf range: its folded keys are not ordered by any one of its columns,
// so a bound taken from one column could drop matching rows.
func (s *IndexScan) selectCandidates() ([]heap.Rid, error) {
	if len(s.index.Cols) != 1 {
		return s.handle.LeafBegin()
	}
	for _, colName := range s.index.Cols {
		for _, c := range s.conds {
			if c.Col != colName || c.Op == NE {
				continue
			}
			col, ok := s.table.ColByName(colName)
			if !ok {
				continue
			}
			switch c.Op {
			case EQ:
				key, err := encodeBoundKey(s.table, s.index, col, c.Value, false)
				if err != nil {
					return nil, err
				}
				return s.handle.Equal(key)
			case GE:
				key, err := encodeBoundKey(s.table, s.index, col, c.Value, false)
				if err != nil {
					return nil, err
				}
				return s.handle.LowerBound(key)
			case GT:
				key, err := encodeBoundKey(s.table, s.index, col, c.Value, true)
				if err != nil {
					return nil, err
				}
				return s.handle.LowerBound(key)
			case LE:
				key, err := encodeBoundKey(s.table, s.index, col, c.Value, true)
				if err != nil {
					return nil, err
				}
				return s.handle.UpperBound(key)
			case LT:
				key, err := encodeBoundKey(s.table, s.index, col, c.Value, false)
				if err != nil {
					return nil, err
				}
				return s.handle.UpperBound(key)
			}
		}
	}
	// No usable indexed predicate: fall back to the whole leaf range.
	return s.handle.LeafBegin()
}

// encodeBoundKey packs value at the start of a key buffer sized to the
// index's full width; any bytes past the packed column are 0x00
// (padHigh=false) or 0xFF (padHigh=true).
func encodeBoundKey(t *record.Table, index record.Index, col record.Column, value any, padHigh bool) ([]byte, error) {
	buf := make([]byte, index.ColTotLen)
	if padHigh {
		for i := range buf {
			buf[i] = 0xff
		}
	}
	row := make([]any, len(t.Cols))
	row[colIndexOf(t, col.Name)] = value
	packed, err := record.PackIndexKey(t, record.Index{TabName: index.TabName, Cols: []string{col.Name}, ColTotLen: col.Len, ColNum: 1}, row)
	if err != nil {
		return nil, err
	}
	copy(buf, packed)
	return buf, nil
}

func colIndexOf(t *record.Table, name string) int {
	for i, c := range t.Cols {
		if c.Name == name {
			return i
		}
	}
	return -1
}

func (s *IndexScan) advance() error {
	for {
		s.pos++
		if s.pos >= len(s.candidates) {
			s.end = true
			return nil
		}
		rid := s.candidates[s.pos]
		data, err := s.rf.GetRecord(rid)
		if err != nil {
			continue
		}
		row, err := record.DecodeRow(s.table, data)
		if err != nil {
			return err
		}
		match, err := evalAll(s.table, row, s.conds)
		if err != nil {
			return err
		}
		if match {
			s.cur = rid
			s.end = false
			return nil
		}
	}
}

func (s *IndexScan) IsEnd() bool { return s.end }

func (s *IndexScan) Current() Tuple {
	data, err := s.rf.GetRecord(s.cur)
	if err != nil {
		return Tuple{Rid: s.cur}
	}
	return Tuple{Rid: s.cur, Data: data}
}

func (s *IndexScan) Cols() []record.Column { return s.table.Cols }
func (s *IndexScan) TupleLen() int         { return s.table.RowSize() }
