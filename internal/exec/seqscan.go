package exec

import (
	"github.com/tuannm99/novacore/internal/heap"
	"github.com/tuannm99/novacore/internal/record"
)

// SeqScan walks every record of a table in physical order, evaluating the
// predicate conjunction on each one and stopping at the first tuple that
// satisfies it.
type SeqScan struct {
	table *record.Table
	rf    *heap.RmFile
	conds []Condition

	scan *heap.RmScan
	cur  heap.Rid
	end  bool
}

func NewSeqScan(table *record.Table, rf *heap.RmFile, conds []Condition) *SeqScan {
	return &SeqScan{table: table, rf: rf, conds: conds}
}

func (s *SeqScan) BeginTuple() error {
	scan, err := s.rf.NewScan()
	if err != nil {
		return err
	}
	s.scan = scan
	return s.advance()
}

func (s *SeqScan) NextTuple() error {
	return s.advance()
}

// advance moves the underlying scan forward until it finds a record
// satisfying every condition, or exhausts the table.
func (s *SeqScan) advance() error {
	for {
		rid, data, ok, err := s.scan.Next()
		if err != nil {
			return err
		}
		if !ok {
			s.end = true
			return nil
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

func (s *SeqScan) IsEnd() bool { return s.end }

// Current re-fetches the record at the cursor's rid rather than returning a
// cached copy from the scan, so it reflects any intervening mutation to the
// same row under the same transaction.
func (s *SeqScan) Current() Tuple {
	data, err := s.rf.GetRecord(s.cur)
	if err != nil {
		return Tuple{Rid: s.cur}
	}
	return Tuple{Rid: s.cur, Data: data}
}

func (s *SeqScan) Cols() []record.Column { return s.table.Cols }
func (s *SeqScan) TupleLen() int         { return s.table.RowSize() }
