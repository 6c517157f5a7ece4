package txn

import (
	"sync"

	"github.com/tuannm99/novacore/internal/heap"
	"github.com/tuannm99/novacore/internal/lock"
)

// RecordUndoer is the narrow view of table storage abort needs: one
// inverse operation per write-set entry type, keyed by table name so one
// transaction's write-set can span multiple tables.
type RecordUndoer interface {
	DeleteRecord(tabName string, rid heap.Rid) error
	InsertRecordAt(tabName string, rid heap.Rid, data []byte) error
	UpdateRecord(tabName string, rid heap.Rid, data []byte) error
}

// Manager issues transaction ids, tracks live transactions, and drives
// commit/abort, including undo replay and lock release.
type Manager struct {
	mu     sync.Mutex
	nextID uint64
	active map[uint64]*Transaction

	locks *lock.Manager
	log   *Log // nil disables logging
}

func NewManager(locks *lock.Manager, log *Log) *Manager {
	return &Manager{
		active: make(map[uint64]*Transaction),
		locks:  locks,
		log:    log,
	}
}

// Begin starts a new transaction with a monotonically increasing id.
func (m *Manager) Begin() (*Transaction, error) {
	m.mu.Lock()
	m.nextID++
	id := m.nextID
	txn := newTransaction(id)
	m.active[id] = txn
	m.mu.Unlock()

	if err := m.log.appendBegin(id); err != nil {
		return nil, err
	}
	return txn, nil
}

// Commit releases every lock the transaction holds, clears its sets, logs
// a COMMIT marker and marks it COMMITTED.
func (m *Manager) Commit(t *Transaction) error {
	for _, id := range t.LockSet() {
		if _, err := m.locks.Unlock(t, id); err != nil {
			return err
		}
	}
	t.clear()

	if err := m.log.appendCommit(t.ID()); err != nil {
		return err
	}
	if err := m.log.Flush(); err != nil {
		return err
	}

	t.SetState(lock.Committed)
	m.mu.Lock()
	delete(m.active, t.ID())
	m.mu.Unlock()
	return nil
}

// Abort replays the transaction's write-set in reverse order against undo,
// releases its locks, logs an ABORT marker and marks it ABORTED.
func (m *Manager) Abort(t *Transaction, undo RecordUndoer) error {
	for _, w := range t.writeSetReversed() {
		var err error
		switch w.Type {
		case InsertTuple:
			err = undo.DeleteRecord(w.TabName, w.Rid)
		case DeleteTuple:
			err = undo.InsertRecordAt(w.TabName, w.Rid, w.BeforeImage)
		case UpdateTuple:
			err = undo.UpdateRecord(w.TabName, w.Rid, w.BeforeImage)
		}
		if err != nil {
			return err
		}
	}

	for _, id := range t.LockSet() {
		if _, err := m.locks.Unlock(t, id); err != nil {
			return err
		}
	}
	t.clear()

	if err := m.log.appendAbort(t.ID()); err != nil {
		return err
	}
	if err := m.log.Flush(); err != nil {
		return err
	}

	t.SetState(lock.Aborted)
	m.mu.Lock()
	delete(m.active, t.ID())
	m.mu.Unlock()
	return nil
}

// Lookup returns a still-active transaction by id.
func (m *Manager) Lookup(id uint64) (*Transaction, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.active[id]
	return t, ok
}
