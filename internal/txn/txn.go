// Package txn implements the transaction manager: transaction lifecycle,
// the write-set undo log transactions carry for abort, and the logical
// BEGIN/COMMIT/ABORT record log.
package txn

import (
	"sync"

	"github.com/tuannm99/novacore/internal/heap"
	"github.com/tuannm99/novacore/internal/lock"
)

// WriteType names the inverse operation abort must perform for one
// write-set entry.
type WriteType int

const (
	InsertTuple WriteType = iota
	DeleteTuple
	UpdateTuple
)

func (w WriteType) String() string {
	switch w {
	case InsertTuple:
		return "INSERT_TUPLE"
	case DeleteTuple:
		return "DELETE_TUPLE"
	case UpdateTuple:
		return "UPDATE_TUPLE"
	default:
		return "UNKNOWN"
	}
}

// WriteRecord is one entry of a transaction's write-set: enough to undo a
// single row mutation by logical, not physical, replay.
type WriteRecord struct {
	Type        WriteType
	TabName     string
	Rid         heap.Rid
	BeforeImage []byte
}

// Re-exported lock package states so callers rarely need to import
// internal/lock directly just to compare transaction state.
const (
	Default   = lock.Default
	Growing   = lock.Growing
	Shrinking = lock.Shrinking
	Committed = lock.Committed
	Aborted   = lock.Aborted
)

// Transaction is one unit of work: a 2PL phase, the set of locks it holds,
// and the write-set it would need to replay to undo itself.
type Transaction struct {
	mu       sync.Mutex
	id       uint64
	state    lock.TxnState
	writeSet []WriteRecord
	lockSet  map[lock.DataId]struct{}
}

func newTransaction(id uint64) *Transaction {
	return &Transaction{id: id, state: lock.Default, lockSet: make(map[lock.DataId]struct{})}
}

func (t *Transaction) ID() uint64 { return t.id }

func (t *Transaction) State() lock.TxnState {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

func (t *Transaction) SetState(s lock.TxnState) {
	t.mu.Lock()
	t.state = s
	t.mu.Unlock()
}

func (t *Transaction) AddLock(id lock.DataId) {
	t.mu.Lock()
	t.lockSet[id] = struct{}{}
	t.mu.Unlock()
}

func (t *Transaction) RemoveLock(id lock.DataId) {
	t.mu.Lock()
	delete(t.lockSet, id)
	t.mu.Unlock()
}

// LockSet returns a snapshot of the data ids this transaction currently holds.
func (t *Transaction) LockSet() []lock.DataId {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]lock.DataId, 0, len(t.lockSet))
	for id := range t.lockSet {
		out = append(out, id)
	}
	return out
}

// AppendWrite records one undo-capable mutation in this transaction's
// write-set. Executors call this before or immediately after the
// corresponding record-manager mutation.
func (t *Transaction) AppendWrite(w WriteRecord) {
	t.mu.Lock()
	t.writeSet = append(t.writeSet, w)
	t.mu.Unlock()
}

// writeSetReversed returns the write-set in undo (reverse insertion) order.
func (t *Transaction) writeSetReversed() []WriteRecord {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]WriteRecord, len(t.writeSet))
	for i, w := range t.writeSet {
		out[len(out)-1-i] = w
	}
	return out
}

func (t *Transaction) clear() {
	t.mu.Lock()
	t.writeSet = nil
	t.lockSet = make(map[lock.DataId]struct{})
	t.mu.Unlock()
}
