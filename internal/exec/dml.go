package exec

import (
	"github.com/tuannm99/novacore/internal/heap"
	idx "github.com/tuannm99/novacore/internal/index"
	"github.com/tuannm99/novacore/internal/lock"
	"github.com/tuannm99/novacore/internal/record"
	"github.com/tuannm99/novacore/internal/txn"
)

// IndexBinding pairs one secondary index's metadata with the open handle
// executors use to maintain it.
type IndexBinding struct {
	Index  record.Index
	Handle *idx.Handle
}

// SetClause is one `column = value` assignment an Update applies to every
// target row.
type SetClause struct {
	Col   string
	Value any
}

func indexKeysFor(t *record.Table, row []any, bindings []IndexBinding) ([][]byte, error) {
	keys := make([][]byte, len(bindings))
	for i, b := range bindings {
		key, err := record.PackIndexKey(t, b.Index, row)
		if err != nil {
			return nil, err
		}
		keys[i] = key
	}
	return keys, nil
}

// Delete removes a fixed list of target rids from a table, maintaining
// every secondary index and the owning transaction's write-set as it goes.
// Its BeginTuple/NextTuple calls perform the deletion for one rid per step;
// Current returns the just-deleted row's before-image.
type Delete struct {
	table    *record.Table
	rf       *heap.RmFile
	indexes  []IndexBinding
	locks    *lock.Manager
	txn      *txn.Transaction
	tableFd  string
	rids     []heap.Rid
	pos      int
	lastTup  Tuple
	end      bool
}

func NewDelete(
	table *record.Table,
	rf *heap.RmFile,
	indexes []IndexBinding,
	locks *lock.Manager,
	t *txn.Transaction,
	tableFd string,
	rids []heap.Rid,
) *Delete {
	return &Delete{table: table, rf: rf, indexes: indexes, locks: locks, txn: t, tableFd: tableFd, rids: rids, pos: -1}
}

func (d *Delete) BeginTuple() error {
	d.pos = -1
	return d.advance()
}

func (d *Delete) NextTuple() error { return d.advance() }

func (d *Delete) advance() error {
	d.pos++
	if d.pos >= len(d.rids) {
		d.end = true
		return nil
	}
	rid := d.rids[d.pos]

	if _, err := d.locks.LockExclusive(d.txn, lock.RecordID(d.tableFd, rid)); err != nil {
		return err
	}

	before, err := d.rf.GetRecord(rid)
	if err != nil {
		return err
	}
	row, err := record.DecodeRow(d.table, before)
	if err != nil {
		return err
	}
	keys, err := indexKeysFor(d.table, row, d.indexes)
	if err != nil {
		return err
	}
	for i, b := range d.indexes {
		if _, err := b.Handle.DeleteEntry(keys[i], rid); err != nil {
			return err
		}
	}

	d.txn.AppendWrite(txn.WriteRecord{Type: txn.DeleteTuple, TabName: d.tableFd, Rid: rid, BeforeImage: before})

	if err := d.rf.DeleteRecord(rid); err != nil {
		return err
	}

	d.lastTup = Tuple{Rid: rid, Data: before}
	d.end = false
	return nil
}

func (d *Delete) IsEnd() bool             { return d.end }
func (d *Delete) Current() Tuple          { return d.lastTup }
func (d *Delete) Cols() []record.Column   { return d.table.Cols }
func (d *Delete) TupleLen() int           { return d.table.RowSize() }

// Update applies a fixed set of SetClauses to a fixed list of target rids,
// maintaining every secondary index (old key removed, new key inserted)
// and the owning transaction's write-set as it goes.
type Update struct {
	table    *record.Table
	rf       *heap.RmFile
	indexes  []IndexBinding
	locks    *lock.Manager
	txn      *txn.Transaction
	tableFd  string
	rids     []heap.Rid
	sets     []SetClause
	pos      int
	lastTup  Tuple
	end      bool
}

func NewUpdate(
	table *record.Table,
	rf *heap.RmFile,
	indexes []IndexBinding,
	locks *lock.Manager,
	t *txn.Transaction,
	tableFd string,
	rids []heap.Rid,
	sets []SetClause,
) *Update {
	return &Update{table: table, rf: rf, indexes: indexes, locks: locks, txn: t, tableFd: tableFd, rids: rids, sets: sets, pos: -1}
}

func (u *Update) BeginTuple() error {
	u.pos = -1
	return u.advance()
}

func (u *Update) NextTuple() error { return u.advance() }

func (u *Update) advance() error {
	u.pos++
	if u.pos >= len(u.rids) {
		u.end = true
		return nil
	}
	rid := u.rids[u.pos]

	if _, err := u.locks.LockExclusive(u.txn, lock.RecordID(u.tableFd, rid)); err != nil {
		return err
	}

	before, err := u.rf.GetRecord(rid)
	if err != nil {
		return err
	}
	oldRow, err := record.DecodeRow(u.table, before)
	if err != nil {
		return err
	}
	oldKeys, err := indexKeysFor(u.table, oldRow, u.indexes)
	if err != nil {
		return err
	}
	for i, b := range u.indexes {
		if _, err := b.Handle.DeleteEntry(oldKeys[i], rid); err != nil {
			return err
		}
	}

	u.txn.AppendWrite(txn.WriteRecord{Type: txn.UpdateTuple, TabName: u.tableFd, Rid: rid, BeforeImage: before})

	after := append([]byte(nil), before...)
	for _, set := range u.sets {
		col, ok := u.table.ColByName(set.Col)
		if !ok {
			return record.ErrUnknownColumn
		}
		chunk := after[col.Offset : col.Offset+col.Len]
		if err := record.EncodeColumnValue(chunk, col, set.Value); err != nil {
			return err
		}
	}

	if err := u.rf.UpdateRecord(rid, after); err != nil {
		return err
	}

	newRow, err := record.DecodeRow(u.table, after)
	if err != nil {
		return err
	}
	newKeys, err := indexKeysFor(u.table, newRow, u.indexes)
	if err != nil {
		return err
	}
	for i, b := range u.indexes {
		if err := b.Handle.InsertEntry(newKeys[i], rid); err != nil {
			return err
		}
	}

	u.lastTup = Tuple{Rid: rid, Data: after}
	u.end = false
	return nil
}

func (u *Update) IsEnd() bool           { return u.end }
func (u *Update) Current() Tuple        { return u.lastTup }
func (u *Update) Cols() []record.Column { return u.table.Cols }
func (u *Update) TupleLen() int         { return u.table.RowSize() }
